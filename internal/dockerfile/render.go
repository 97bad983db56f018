// Package dockerfile renders the build recipe executed by the Docker
// daemon. The rendered file is the declarative form of the pipeline:
// base runtime selection, working directory, dependency install, source
// copy, model materialization, environment publication, port declaration,
// and launch command registration — in that fixed order.
//
// Render is a pure function of the configuration: identical configs
// produce byte-identical Dockerfiles, which is what makes rebuilds
// reproducible in their declared configuration.
package dockerfile

import (
	"fmt"
	"strings"

	"github.com/mmr-tortoise/modelpack/internal/config"
)

// Context-tar namespaces. The build context assembled by internal/buildctx
// keeps the application source and the model binary in separate
// subdirectories so the source COPY never drags the multi-gigabyte model
// into the application layer.
const (
	// SourceDir is the context subdirectory holding the application
	// source tree.
	SourceDir = "src"

	// ModelsDir is the context subdirectory holding the fetched model
	// binary.
	ModelsDir = "models"

	// FileName is the name of the rendered Dockerfile inside the context.
	FileName = "Dockerfile"
)

// Render produces the Dockerfile bytes for the given pipeline
// configuration. The emitted instructions follow the pipeline stage order
// exactly; see model.Stages.
func Render(cfg *config.Config) []byte {
	var b strings.Builder

	b.WriteString("# Generated by modelpack. DO NOT EDIT.\n")

	// Stage: base. Static selection, no error path.
	fmt.Fprintf(&b, "FROM %s\n\n", cfg.BaseImage)

	fmt.Fprintf(&b, "WORKDIR %s\n\n", cfg.Workdir)

	// Stage: deps. The manifest is copied alone first so the installer
	// layer is cached independently of source edits. Installer failure
	// fails the whole build with no image produced.
	fmt.Fprintf(&b, "COPY %s/%s ./%s\n", SourceDir, cfg.Manifest, cfg.Manifest)
	fmt.Fprintf(&b, "RUN pip install --no-cache-dir -r %s\n\n", cfg.Manifest)

	// Stage: source. The full application tree, copied verbatim.
	fmt.Fprintf(&b, "COPY %s/ .\n\n", SourceDir)

	// Stage: artifact. The model binary was fetched on the host by
	// internal/artifact; here it is materialized at its fixed in-image path.
	fmt.Fprintf(&b, "COPY %s/%s %s\n\n", ModelsDir, cfg.Model.FileName(), cfg.Model.Path)

	// Stage: env.
	fmt.Fprintf(&b, "ENV %s=%s\n\n", cfg.Model.EnvVar, cfg.Model.Path)

	// Stage: port. Declarative only; binding happens at container start.
	fmt.Fprintf(&b, "EXPOSE %d\n\n", cfg.Port)

	// Stage: command. Registered, not executed, at build time. Exec form
	// so the server process runs as PID 1 and receives signals directly.
	fmt.Fprintf(&b, "CMD %s\n", execForm(cfg.Command))

	return []byte(b.String())
}

// execForm formats a command as a Dockerfile exec-form JSON array,
// e.g. ["uvicorn", "app:app"].
func execForm(command []string) string {
	quoted := make([]string, 0, len(command))
	for _, arg := range command {
		quoted = append(quoted, fmt.Sprintf("%q", arg))
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

// Package cli — build.go implements the "modelpack build" command.
//
// The build command is the primary user-facing operation. It runs the
// whole packaging pipeline and produces a tagged container image.
//
// Orchestration steps:
//  1. Resolve the pipeline configuration for the build context directory
//  2. Load and validate the dependency manifest (fail-fast, no fallback)
//  3. Validate the application source tree
//  4. Fetch the model binary into the local artifact cache
//  5. Render the Dockerfile from the resolved configuration
//  6. Stream the build context (Dockerfile + source + model) to the daemon
//  7. Tag the built image and stamp it with provenance labels
//  8. Output results (text or JSON)
//
// The pipeline is fail-fast: any step that errors aborts the build with
// no image tagged. There is no retry and no partial-success path.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/modelpack/internal/artifact"
	"github.com/mmr-tortoise/modelpack/internal/buildctx"
	"github.com/mmr-tortoise/modelpack/internal/config"
	"github.com/mmr-tortoise/modelpack/internal/docker"
	"github.com/mmr-tortoise/modelpack/internal/dockerfile"
	"github.com/mmr-tortoise/modelpack/internal/manifest"
	"github.com/mmr-tortoise/modelpack/internal/model"
)

// buildFlags holds the flag values for the build command.
// These are bound to cobra flags in NewBuildCommand.
type buildFlags struct {
	contextDir string // positional [context-dir] argument
	configPath string // --config: explicit pipeline config file
	tag        string // --tag: override the image tag
	noCache    bool   // --no-cache: force a fresh artifact download
	limitRate  int64  // --limit-rate: download bandwidth cap in bytes/sec
}

// NewBuildCommand creates the "build" cobra command.
// It is called from NewRootCommand to register as a subcommand.
func NewBuildCommand() *cobra.Command {
	flags := &buildFlags{}

	cmd := &cobra.Command{
		Use:   "build [context-dir]",
		Short: "Build the model server image",
		Long: `Run the packaging pipeline and produce a tagged container image.

The pipeline installs dependencies from the manifest, copies the
application source tree, bakes the model binary into the image, publishes
the model-path environment variable, declares the serving port, and
registers the server launch command.

The model binary is downloaded once and cached locally; unchanged
rebuilds reuse the cached copy.

Examples:
  modelpack build
  modelpack build ./server --tag registry.local/gpt4all:v2
  modelpack build --no-cache
  modelpack build --limit-rate 10485760`,

		// The build context directory is optional and defaults to ".".
		Args: cobra.MaximumNArgs(1),

		// RunE is used instead of Run so we can return errors. Cobra will
		// pass them to the Execute error handler in root.go.
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				flags.contextDir = args[0]
			}
			return runBuild(cmd.Context(), flags)
		},
	}

	// Register command-specific flags. The context directory is a
	// positional argument, not a flag, so only its default lives here.
	flags.contextDir = "."
	cmd.Flags().StringVar(&flags.configPath, "config", "", "Pipeline config file (default: <context>/modelpack.json)")
	cmd.Flags().StringVar(&flags.tag, "tag", "", "Image tag (default: modelpack/<name>:latest)")
	cmd.Flags().BoolVar(&flags.noCache, "no-cache", false, "Re-download the model binary even if cached")
	cmd.Flags().Int64Var(&flags.limitRate, "limit-rate", 0, "Download bandwidth cap in bytes/sec (0 = unlimited)")

	return cmd
}

// runBuild is the main orchestration function for the build command.
// It coordinates all pipeline stages in their fixed order.
func runBuild(ctx context.Context, flags *buildFlags) error {
	started := time.Now()

	// Step 1: Resolve the pipeline configuration.
	contextDir, err := filepath.Abs(flags.contextDir)
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "failed to resolve build context path", err)
	}
	VerboseLog("Build context: %s", contextDir)

	cfg, err := config.Load(contextDir, flags.configPath)
	if err != nil {
		return err // Load already returns CLIError with ExitConfigError
	}
	if flags.tag != "" {
		cfg.Tag = flags.tag
	}
	VerboseLog("Pipeline config resolved: name=%s base=%s tag=%s", cfg.Name, cfg.BaseImage, cfg.Tag)

	// Step 2: Load the dependency manifest. A missing, unreadable, or
	// empty manifest aborts the build before anything is fetched or built.
	mf, err := manifest.Load(filepath.Join(contextDir, cfg.Manifest))
	if err != nil {
		return err // Load already returns CLIError with ExitManifestError
	}
	VerboseLog("Manifest %s lists %d dependencies", cfg.Manifest, mf.Count())

	// Step 3: Validate the source tree before any expensive work.
	if err := buildctx.ValidateSourceTree(contextDir); err != nil {
		return model.WrapCLIError(model.ExitGeneralError,
			fmt.Sprintf("invalid build context %s", contextDir), err)
	}

	// Step 4: Fetch the model binary into the artifact cache.
	fetcher := artifact.NewFetcher(artifact.Options{
		DisableCache:   flags.noCache,
		BytesPerSecond: flags.limitRate,
	})
	VerboseLog("Fetching model artifact from %s...", cfg.Model.URL)
	fetched, err := fetcher.Fetch(ctx, cfg.Model)
	if err != nil {
		return err // Fetch already returns CLIError with ExitFetchFailed
	}
	if fetched.FromCache {
		VerboseLog("Model artifact served from cache: %s (%s)", fetched.LocalPath, FormatBytes(fetched.Size))
	} else {
		VerboseLog("Model artifact downloaded: %s (%s)", fetched.LocalPath, FormatBytes(fetched.Size))
	}
	VerboseLog("Artifact digest: %s", fetched.Digest)

	// Step 5: Render the Dockerfile. Rendering is pure and deterministic,
	// so the same configuration always produces the same recipe.
	dockerfileBytes := dockerfile.Render(cfg)
	VerboseLog("Rendered Dockerfile (%d bytes)", len(dockerfileBytes))

	// Step 6: Connect to Docker and verify the daemon is available.
	cli, err := docker.NewClient()
	if err != nil {
		return err // NewClient already returns CLIError with ExitDockerNotRunning
	}
	defer func() { _ = cli.Close() }()

	if err := cli.Ping(ctx); err != nil {
		return err
	}
	VerboseLog("Connected to Docker daemon")

	// Step 7: Stream the build context to the daemon and build.
	//
	// The context is streamed through a pipe rather than assembled into a
	// buffer: the model binary can be multiple gigabytes, and buffering it
	// in memory alongside Docker's own copy would double the footprint.
	buildID := uuid.New().String()
	labels := docker.BuildImageLabels(buildID, cfg.Model, *fetched, started)

	pr, pw := io.Pipe()
	go func() {
		// CloseWithError(nil) closes the pipe cleanly; a non-nil error is
		// surfaced to the daemon-side reader and fails the build.
		_ = pw.CloseWithError(
			buildctx.Assemble(pw, contextDir, dockerfileBytes, fetched.LocalPath, cfg.Model.FileName()))
	}()

	VerboseLog("Building image %s (build %s)...", cfg.Tag, buildID)
	imageID, err := docker.BuildImage(ctx, cli, pr, cfg.Tag, labels, VerboseLog)
	if err != nil {
		// Drain the pipe writer goroutine if the build aborted early.
		_ = pr.CloseWithError(err)
		return err
	}

	// Step 8: Output results.
	result := &model.BuildResult{
		BuildID:   buildID,
		ImageID:   imageID,
		Tag:       cfg.Tag,
		Artifact:  *fetched,
		Duration:  time.Since(started),
		CreatedAt: time.Now().UTC(),
	}
	printBuildResult(result)
	return nil
}

// printBuildResult outputs the build command results in text or JSON format.
func printBuildResult(result *model.BuildResult) {
	if IsJSONOutput() {
		printBuildResultJSON(result)
	} else {
		printBuildResultText(result)
	}
}

// printBuildResultJSON outputs the build result as structured JSON.
func printBuildResultJSON(result *model.BuildResult) {
	type resultJSON struct {
		BuildID   string `json:"buildId"`
		ImageID   string `json:"imageId"`
		Tag       string `json:"tag"`
		ModelPath string `json:"modelPath"`
		ModelSize int64  `json:"modelSize"`
		Digest    string `json:"digest"`
		FromCache bool   `json:"fromCache"`
		Duration  string `json:"duration"`
	}

	out := resultJSON{
		BuildID:   result.BuildID,
		ImageID:   result.ImageID,
		Tag:       result.Tag,
		ModelPath: result.Artifact.LocalPath,
		ModelSize: result.Artifact.Size,
		Digest:    result.Artifact.Digest.String(),
		FromCache: result.Artifact.FromCache,
		Duration:  result.Duration.Round(time.Millisecond).String(),
	}

	data, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(data))
}

// printBuildResultText outputs the build result as human-readable text.
func printBuildResultText(result *model.BuildResult) {
	source := "downloaded"
	if result.Artifact.FromCache {
		source = "cached"
	}

	fmt.Printf("Built image %s\n", result.Tag)
	fmt.Printf("  Image ID:  %s\n", shortID(result.ImageID))
	fmt.Printf("  Build ID:  %s\n", result.BuildID)
	fmt.Printf("  Model:     %s (%s, %s)\n", FormatBytes(result.Artifact.Size), source, result.Artifact.Digest)
	fmt.Printf("  Duration:  %s\n", result.Duration.Round(time.Millisecond))
}

// shortID truncates a Docker ID (optionally sha256-prefixed) to the
// conventional 12-character short form.
func shortID(id string) string {
	const prefix = "sha256:"
	if len(id) > len(prefix) && id[:len(prefix)] == prefix {
		id = id[len(prefix):]
	}
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

// FormatBytes renders a byte count in human-readable binary units.
// Sizes below 1 KiB are shown as plain bytes.
//
// This function is exported for testing purposes (tested in cli_test.go).
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

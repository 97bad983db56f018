// Package compose generates a docker-compose.yml equivalent of a managed
// deployment.
//
// The CLI drives the Docker Engine API directly, but teams often want to
// hand the resulting service definition to an environment that speaks
// Compose (CI smoke jobs, orchestrator migration, local docker compose
// up). The export reconstructs the full service definition — image,
// port mapping, environment, restart policy, and management labels —
// from the deployment record, so the Compose file launches an identical
// container to `modelpack run`.
package compose

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/mmr-tortoise/modelpack/internal/config"
	"github.com/mmr-tortoise/modelpack/internal/model"
)

// composeFile represents the structure of the exported docker-compose
// YAML file. This struct is used for YAML serialization via the yaml.v3
// library.
type composeFile struct {
	// Name sets the Compose project name, which prefixes container and
	// network names. Using the deployment name keeps `docker compose ps`
	// output aligned with `modelpack list`.
	Name string `yaml:"name"`

	// Services maps service names to their definitions. The export
	// always contains exactly one service, named after the deployment.
	Services map[string]composeService `yaml:"services"`
}

// composeService represents a single service definition in the exported
// Compose file.
type composeService struct {
	// Image is the tag of the built serving image. The export assumes
	// the image already exists locally (produced by a prior build); it
	// does not embed a build section, because the build inputs (fetched
	// model artifact, rendered Dockerfile) live in a temporary context
	// that no longer exists.
	Image string `yaml:"image"`

	// Ports lists port mappings in "hostPort:containerPort" format.
	Ports []string `yaml:"ports"`

	// Environment carries the model path variable so the serving
	// process resolves the artifact at the same location as a container
	// launched by the CLI.
	Environment map[string]string `yaml:"environment,omitempty"`

	// Labels contains the management labels applied to the deployment's
	// containers, so containers launched via Compose remain discoverable
	// by `modelpack list`.
	Labels map[string]string `yaml:"labels"`

	// Restart is the container restart policy. Matches the CLI's launch
	// behavior ("no"): a crashed model server should surface as stopped,
	// not silently restart-loop while holding the host port.
	Restart string `yaml:"restart"`
}

// Generate produces the docker-compose YAML for a deployment.
//
// Key behaviors:
//   - The service launches the already-built image; there is no build
//     section (see composeService.Image).
//   - Map keys from the labels parameter are copied, not aliased, so the
//     caller's map is never shared with the serialized structure.
//   - Output is deterministic: yaml.v3 sorts map keys on marshal, and the
//     single-service structure has no other ordering freedom.
//
// Returns the YAML bytes with a header comment, or an error if
// serialization fails.
func Generate(dep *model.Deployment, labels map[string]string) ([]byte, error) {
	svc := composeService{
		Image:   dep.Image,
		Ports:   []string{fmt.Sprintf("%d:%d", dep.HostPort, dep.ContainerPort)},
		Labels:  make(map[string]string, len(labels)),
		Restart: "no",
	}
	for k, v := range labels {
		svc.Labels[k] = v
	}

	if dep.ModelPath != "" {
		svc.Environment = map[string]string{
			config.DefaultModelEnvVar: dep.ModelPath,
		}
	}

	file := composeFile{
		Name: dep.Name,
		Services: map[string]composeService{
			dep.Name: svc,
		},
	}

	yamlBytes, err := yaml.Marshal(&file)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize compose YAML: %w", err)
	}

	header := fmt.Sprintf(
		"# Auto-generated by modelpack for deployment %q\n# DO NOT EDIT - regenerate with `modelpack compose %s`\n",
		dep.Name, dep.Name,
	)

	return []byte(header + string(yamlBytes)), nil
}

// Write saves the generated Compose YAML to the specified output path,
// creating parent directories as needed.
func Write(outputPath string, data []byte) error {
	if dir := filepath.Dir(outputPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(outputPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write compose file %s: %w", outputPath, err)
	}
	return nil
}

// SortedLabelKeys returns the label keys in sorted order. Used by the CLI
// when echoing the exported labels in verbose mode.
func SortedLabelKeys(labels map[string]string) []string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

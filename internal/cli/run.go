// Package cli — run.go implements the "modelpack run" command.
//
// The run command launches a serving container from a previously built
// image. The deployment's metadata (model provenance, build ID, ports) is
// read back from the image labels stamped at build time, then persisted
// onto the container as labels — Docker remains the only state store.
//
// Before creating the container, the host port is checked for
// availability. The Docker daemon would also reject a conflicting bind,
// but only after the container is created, and with an error message that
// buries the cause; the preflight turns that into a clear failure with a
// dedicated exit code.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/modelpack/internal/config"
	"github.com/mmr-tortoise/modelpack/internal/docker"
	"github.com/mmr-tortoise/modelpack/internal/model"
	"github.com/mmr-tortoise/modelpack/internal/port"
)

// runFlags holds the flag values for the run command.
type runFlags struct {
	tag      string // --tag: image to launch (default derived from name)
	hostPort int    // --port: host port override (default: container port)
}

// NewRunCommand creates the "run" cobra command.
// It is called from NewRootCommand to register as a subcommand.
func NewRunCommand() *cobra.Command {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run [name]",
		Short: "Launch a serving container from a built image",
		Long: `Launch a model-serving container from a previously built image.

The container publishes the serving port on all host interfaces and is
labeled so modelpack can rediscover it later. The deployment name defaults
to the built-in pipeline name when omitted.

Examples:
  modelpack run
  modelpack run gpt4all-groovy
  modelpack run --port 9000 gpt4all-groovy
  modelpack run --tag registry.local/gpt4all:v2 my-deployment`,

		// The deployment name is optional; at most one may be given.
		Args: cobra.MaximumNArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			name := config.DefaultName
			if len(args) > 0 {
				name = args[0]
			}
			return runRun(cmd.Context(), name, flags)
		},
	}

	cmd.Flags().StringVar(&flags.tag, "tag", "", "Image to launch (default: modelpack/<name>:latest)")
	cmd.Flags().IntVar(&flags.hostPort, "port", 0, "Host port to publish (default: the container port)")

	return cmd
}

// runRun is the main logic function for the run command.
func runRun(ctx context.Context, name string, flags *runFlags) error {
	// Step 1: Validate the deployment name.
	if err := model.ValidateName(name); err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "invalid deployment name", err)
	}

	tag := flags.tag
	if tag == "" {
		// Mirror the tag derivation used by the build command.
		tag = "modelpack/" + name + ":latest"
	}

	// Step 2: Connect to Docker daemon.
	cli, err := docker.NewClient()
	if err != nil {
		return err // NewClient already returns CLIError with ExitDockerNotRunning
	}
	defer func() { _ = cli.Close() }()

	VerboseLog("Connected to Docker daemon")

	// Step 3: Reject a duplicate deployment name. One deployment maps to
	// one serving container; a second container under the same name would
	// make list/stop/remove ambiguous.
	existing, err := docker.ListManagedContainers(ctx, cli)
	if err != nil {
		return err
	}
	if _, taken := docker.GroupContainersByName(existing)[name]; taken {
		return model.NewCLIError(model.ExitGeneralError,
			fmt.Sprintf("deployment %q already exists (remove it first or pick another name)", name))
	}

	// Step 4: Inspect the built image and reconstruct the deployment
	// metadata from its labels.
	imgCfg, err := docker.InspectImage(ctx, cli, tag)
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError,
			fmt.Sprintf("image %q not found — run `modelpack build` first", tag), err)
	}
	VerboseLog("Image %s resolved to %s", tag, shortID(imgCfg.ID))

	containerPort, err := ContainerPortFromExposed(imgCfg.ExposedPorts)
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError,
			fmt.Sprintf("image %q declares no usable serving port", tag), err)
	}

	hostPort := flags.hostPort
	if hostPort == 0 {
		hostPort = containerPort
	}
	if err := model.ValidatePort(hostPort); err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "invalid host port", err)
	}

	// Step 5: Host port preflight.
	scanner := port.NewScanner()
	if !scanner.IsPortAvailable(hostPort) {
		return model.NewCLIError(model.ExitPortUnavailable,
			fmt.Sprintf("host port %d is already in use", hostPort))
	}
	VerboseLog("Host port %d is available", hostPort)

	// Step 6: Build the deployment record and create the container.
	dep := &model.Deployment{
		Name:          name,
		Image:         tag,
		BuildID:       imgCfg.Labels[docker.LabelBuildID],
		HostPort:      hostPort,
		ContainerPort: containerPort,
		ModelURL:      imgCfg.Labels[docker.LabelModelURL],
		ModelPath:     imgCfg.Labels[docker.LabelModelPath],
		ModelDigest:   imgCfg.Labels[docker.LabelModelDigest],
		Status:        model.StatusRunning,
		CreatedAt:     time.Now().UTC(),
	}

	containerID, err := docker.CreateServerContainer(ctx, cli, dep)
	if err != nil {
		return err
	}
	VerboseLog("Created container %s", containerID[:12])

	if err := docker.StartContainer(ctx, cli, containerID); err != nil {
		return err
	}
	VerboseLog("Started container %s", containerID[:12])

	// Step 7: Output the result.
	printRunResult(dep, containerID)
	return nil
}

// ContainerPortFromExposed extracts the single serving port from an
// image's declared exposed ports ("port/proto" form). Exactly one
// declared TCP port is expected; anything else is an error because the
// serving contract is a single reachable endpoint.
//
// This function is exported for testing purposes (tested in cli_test.go).
func ContainerPortFromExposed(exposed []string) (int, error) {
	if len(exposed) == 0 {
		return 0, fmt.Errorf("no exposed ports declared")
	}
	if len(exposed) > 1 {
		return 0, fmt.Errorf("expected exactly one exposed port, got %d (%s)",
			len(exposed), strings.Join(exposed, ", "))
	}

	spec := exposed[0]
	portPart, proto, found := strings.Cut(spec, "/")
	if found && proto != "tcp" {
		return 0, fmt.Errorf("exposed port %q is not TCP", spec)
	}

	p, err := strconv.Atoi(portPart)
	if err != nil {
		return 0, fmt.Errorf("invalid exposed port %q: %w", spec, err)
	}
	return p, nil
}

// printRunResult outputs the run command result in text or JSON format.
func printRunResult(dep *model.Deployment, containerID string) {
	if IsJSONOutput() {
		printRunResultJSON(dep, containerID)
	} else {
		printRunResultText(dep, containerID)
	}
}

// printRunResultJSON outputs the run result as structured JSON.
func printRunResultJSON(dep *model.Deployment, containerID string) {
	result := map[string]interface{}{
		"name":          dep.Name,
		"image":         dep.Image,
		"containerId":   containerID,
		"hostPort":      dep.HostPort,
		"containerPort": dep.ContainerPort,
		"endpoint":      dep.Endpoint(),
		"status":        dep.Status.String(),
	}

	data, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(data))
}

// printRunResultText outputs the run result as human-readable text.
func printRunResultText(dep *model.Deployment, containerID string) {
	fmt.Printf("Started deployment %q\n", dep.Name)
	fmt.Printf("  Image:     %s\n", dep.Image)
	fmt.Printf("  Container: %s\n", containerID[:12])
	fmt.Printf("  Endpoint:  %s\n", dep.Endpoint())
}

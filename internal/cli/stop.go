// Package cli — stop.go implements the "modelpack stop" command.
//
// The stop command gracefully stops the serving container of a named
// deployment via the Docker SDK. Stopping preserves the container and its
// configuration, allowing the deployment to be restarted later with the
// "start" command.
package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/modelpack/internal/docker"
	"github.com/mmr-tortoise/modelpack/internal/model"
)

// NewStopCommand creates the "stop" cobra command.
// It is called from NewRootCommand to register as a subcommand.
func NewStopCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop <name>",
		Short: "Stop a deployment",
		Long: `Stop the serving container of the specified deployment.

The container is gracefully stopped but not removed. The image and
deployment metadata are preserved, and the deployment can be restarted
later with the "start" command.

Examples:
  modelpack stop gpt4all-groovy
  modelpack stop --json gpt4all-groovy`,

		// Exactly one positional argument (deployment name) is required.
		Args: cobra.ExactArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			return runStop(cmd.Context(), args[0])
		},
	}

	return cmd
}

// runStop is the main logic function for the stop command.
func runStop(ctx context.Context, name string) error {
	// Step 1: Connect to Docker daemon.
	cli, err := docker.NewClient()
	if err != nil {
		return err // NewClient already returns CLIError with ExitDockerNotRunning
	}
	defer func() { _ = cli.Close() }()

	VerboseLog("Connected to Docker daemon")

	// Step 2: Find the target deployment.
	dep, containers, err := findDeployment(ctx, cli, name)
	if err != nil {
		return err
	}

	VerboseLog("Found deployment %q with %d container(s)", name, len(containers))

	// Step 3: Stop each container via Docker SDK. A deployment normally
	// has exactly one container, but the loop keeps stop robust against
	// stray duplicates.
	for _, c := range containers {
		VerboseLog("Stopping container %s (%s)...", c.ContainerName, c.ContainerID[:12])
		if err := docker.StopContainer(ctx, cli, c.ContainerID); err != nil {
			return model.WrapCLIError(model.ExitGeneralError,
				fmt.Sprintf("failed to stop container %q", c.ContainerName), err)
		}
	}

	// Step 4: Output the result.
	printStopResult(dep.Name)
	return nil
}

// printStopResult outputs the stop command result in text or JSON format.
func printStopResult(name string) {
	if IsJSONOutput() {
		result := map[string]interface{}{
			"name":   name,
			"action": "stopped",
		}
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(data))
	} else {
		fmt.Printf("Stopped deployment %q\n", name)
	}
}

// findDeployment looks up a deployment by name from Docker containers.
// It returns the deployment metadata, the list of containers belonging to
// it, and an error if the deployment is not found or Docker operations fail.
//
// This is a shared helper used by the stop, start, remove, and compose
// commands.
func findDeployment(ctx context.Context, cli *docker.Client, name string) (*model.Deployment, []model.ContainerInfo, error) {
	// List all managed containers.
	allContainers, err := docker.ListManagedContainers(ctx, cli)
	if err != nil {
		return nil, nil, err
	}

	// Group by deployment name.
	groups := docker.GroupContainersByName(allContainers)

	// Look up the target deployment.
	containers, ok := groups[name]
	if !ok || len(containers) == 0 {
		return nil, nil, model.NewCLIError(model.ExitDeploymentNotFound,
			fmt.Sprintf("deployment %q not found", name))
	}

	// Build the Deployment domain object from container labels.
	dep, err := docker.BuildDeployment(ctx, cli, name, containers)
	if err != nil {
		return nil, nil, model.WrapCLIError(model.ExitGeneralError,
			fmt.Sprintf("failed to parse deployment %q metadata", name), err)
	}

	return dep, containers, nil
}

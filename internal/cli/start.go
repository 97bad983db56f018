// Package cli — start.go implements the "modelpack start" command.
//
// The start command restarts a previously stopped deployment. Before
// starting the container, it verifies that the deployment's host port is
// still available. If the port is in use by another process, the command
// fails with a dedicated exit code instead of letting the daemon produce
// a buried bind error after the fact.
//
// An orphaned deployment (backing image removed behind modelpack's back)
// cannot be started and is reported as such.
package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/modelpack/internal/docker"
	"github.com/mmr-tortoise/modelpack/internal/model"
	"github.com/mmr-tortoise/modelpack/internal/port"
)

// NewStartCommand creates the "start" cobra command.
// It is called from NewRootCommand to register as a subcommand.
func NewStartCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start <name>",
		Short: "Start a stopped deployment",
		Long: `Start the serving container of a previously stopped deployment.

Before starting, the command verifies that the deployment's host port is
still available. If the port is in use, the command exits with the port
conflict code and reports which port is taken.

Examples:
  modelpack start gpt4all-groovy
  modelpack start --json gpt4all-groovy`,

		// Exactly one positional argument (deployment name) is required.
		Args: cobra.ExactArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(cmd.Context(), args[0])
		},
	}

	return cmd
}

// runStart is the main logic function for the start command.
// It finds the named deployment, checks port availability, and starts
// its container.
func runStart(ctx context.Context, name string) error {
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

	// Step 3: An orphaned deployment has lost its image; starting its
	// container would fail inside the daemon with a confusing error.
	if dep.Status == model.StatusOrphaned {
		return model.NewCLIError(model.ExitGeneralError,
			fmt.Sprintf("deployment %q is orphaned: its image %q no longer exists (rebuild and run again)",
				name, dep.Image))
	}

	if dep.Status == model.StatusRunning {
		return model.NewCLIError(model.ExitGeneralError,
			fmt.Sprintf("deployment %q is already running", name))
	}

	// Step 4: Port preflight. The port was free when the deployment was
	// created, but another process may have grabbed it while stopped.
	scanner := port.NewScanner()
	if !scanner.IsPortAvailable(dep.HostPort) {
		return model.NewCLIError(model.ExitPortUnavailable,
			fmt.Sprintf("host port %d is already in use", dep.HostPort))
	}
	VerboseLog("Host port %d is available", dep.HostPort)

	// Step 5: Start the container(s).
	for _, c := range containers {
		VerboseLog("Starting container %s (%s)...", c.ContainerName, c.ContainerID[:12])
		if err := docker.StartContainer(ctx, cli, c.ContainerID); err != nil {
			return err
		}
	}

	// Step 6: Output the result.
	printStartResult(dep)
	return nil
}

// printStartResult outputs the start command result in text or JSON format.
func printStartResult(dep *model.Deployment) {
	if IsJSONOutput() {
		result := map[string]interface{}{
			"name":     dep.Name,
			"action":   "started",
			"endpoint": dep.Endpoint(),
		}
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(data))
	} else {
		fmt.Printf("Started deployment %q\n", dep.Name)
		fmt.Printf("  Endpoint:  %s\n", dep.Endpoint())
	}
}

// Package cli — compose.go implements the "modelpack compose" command.
//
// The compose command exports a managed deployment as a docker-compose
// YAML file, reconstructing the service definition from the deployment's
// container labels. The exported file launches an identical container to
// "modelpack run", which makes it a handoff format for CI jobs and
// Compose-based environments.
package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/modelpack/internal/compose"
	"github.com/mmr-tortoise/modelpack/internal/docker"
	"github.com/mmr-tortoise/modelpack/internal/model"
)

// composeFlags holds the flag values for the compose command.
type composeFlags struct {
	// output is the destination file path. "-" writes the YAML to stdout.
	output string
}

// NewComposeCommand creates the "compose" cobra command.
// It is called from NewRootCommand to register as a subcommand.
func NewComposeCommand() *cobra.Command {
	flags := &composeFlags{}

	cmd := &cobra.Command{
		Use:   "compose <name>",
		Short: "Export a deployment as a docker-compose file",
		Long: `Export the specified deployment as a docker-compose YAML file.

The service definition is reconstructed from the deployment's container
labels: image, port mapping, model environment, and management labels.
Launching the exported file with "docker compose up" produces a container
equivalent to "modelpack run".

Examples:
  modelpack compose gpt4all-groovy
  modelpack compose -o compose/gpt4all.yml gpt4all-groovy
  modelpack compose -o - gpt4all-groovy`,

		// Exactly one positional argument (deployment name) is required.
		Args: cobra.ExactArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompose(cmd.Context(), args[0], flags)
		},
	}

	cmd.Flags().StringVarP(&flags.output, "output", "o", "docker-compose.yml",
		`Output file path ("-" for stdout)`)

	return cmd
}

// runCompose is the main logic function for the compose command.
func runCompose(ctx context.Context, name string, flags *composeFlags) error {
	// Step 1: Connect to Docker daemon.
	cli, err := docker.NewClient()
	if err != nil {
		return err
	}
	defer func() { _ = cli.Close() }()

	VerboseLog("Connected to Docker daemon")

	// Step 2: Find the target deployment.
	dep, _, err := findDeployment(ctx, cli, name)
	if err != nil {
		return err
	}

	// Step 3: Generate the Compose YAML. The labels are rebuilt from the
	// deployment record so containers launched via the exported file stay
	// discoverable by "modelpack list".
	labels := docker.BuildLabels(dep)
	data, err := compose.Generate(dep, labels)
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError,
			fmt.Sprintf("failed to generate compose file for deployment %q", name), err)
	}

	for _, key := range compose.SortedLabelKeys(labels) {
		VerboseLog("Exporting label %s=%s", key, labels[key])
	}

	// Step 4: Write the result.
	if flags.output == "-" {
		fmt.Print(string(data))
		return nil
	}

	if err := compose.Write(flags.output, data); err != nil {
		return model.WrapCLIError(model.ExitGeneralError,
			fmt.Sprintf("failed to write compose file to %s", flags.output), err)
	}

	printComposeResult(name, flags.output)
	return nil
}

// printComposeResult outputs the compose command result in text or JSON format.
func printComposeResult(name, output string) {
	if IsJSONOutput() {
		result := map[string]interface{}{
			"name":   name,
			"action": "exported",
			"output": output,
		}
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(data))
	} else {
		fmt.Printf("Exported deployment %q to %s\n", name, output)
	}
}

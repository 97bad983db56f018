// Package cli — remove.go implements the "modelpack remove" command.
//
// The remove command destroys a deployment by stopping and removing its
// serving container. The backing image is kept by default so the
// deployment can be re-launched with "run"; the --image flag also removes
// the image.
//
// By default, the command prompts for confirmation before proceeding.
// The --force flag skips the confirmation prompt.
package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/modelpack/internal/docker"
	"github.com/mmr-tortoise/modelpack/internal/model"
)

// removeFlags holds the flag values for the remove command.
type removeFlags struct {
	// force skips the interactive confirmation prompt when true.
	force bool

	// removeImage also removes the backing image when true.
	removeImage bool
}

// NewRemoveCommand creates the "remove" cobra command.
// It is called from NewRootCommand to register as a subcommand.
func NewRemoveCommand() *cobra.Command {
	flags := &removeFlags{}

	cmd := &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a deployment",
		Long: `Remove a deployment by stopping and removing its serving container.

The backing image is preserved by default, so the deployment can be
launched again with "run". Use --image to also remove the image.

Unless --force is specified, the command prompts for confirmation.

Examples:
  modelpack remove gpt4all-groovy
  modelpack remove --force gpt4all-groovy
  modelpack remove --image gpt4all-groovy`,

		// Exactly one positional argument (deployment name) is required.
		Args: cobra.ExactArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			return runRemove(cmd.Context(), args[0], flags)
		},
	}

	// Register command-specific flags.
	cmd.Flags().BoolVarP(&flags.force, "force", "f", false, "Remove without confirmation")
	cmd.Flags().BoolVar(&flags.removeImage, "image", false, "Also remove the backing image")

	return cmd
}

// runRemove is the main logic function for the remove command.
// It finds the deployment, optionally prompts for confirmation, removes
// the container, and optionally removes the backing image.
func runRemove(ctx context.Context, name string, flags *removeFlags) error {
	// Step 1: Connect to Docker daemon.
	cli, err := docker.NewClient()
	if err != nil {
		return err
	}
	defer func() { _ = cli.Close() }()

	VerboseLog("Connected to Docker daemon")

	// Step 2: Find the target deployment.
	dep, containers, err := findDeployment(ctx, cli, name)
	if err != nil {
		return err
	}

	VerboseLog("Found deployment %q with %d container(s)", name, len(containers))

	// Step 3: Prompt for confirmation unless --force is specified.
	if !flags.force {
		confirmed, err := promptConfirmation(name, dep.Image, flags.removeImage)
		if err != nil {
			return model.WrapCLIError(model.ExitGeneralError, "failed to read user input", err)
		}
		if !confirmed {
			return model.NewCLIError(model.ExitGeneralError, "operation cancelled by user")
		}
	}

	// Step 4: Stop and remove the container(s).
	for _, c := range containers {
		VerboseLog("Removing container %s (%s)...", c.ContainerName, c.ContainerID[:12])
		// Use force=true to handle containers that might still be running.
		if err := docker.RemoveContainer(ctx, cli, c.ContainerID, true); err != nil {
			return model.WrapCLIError(model.ExitGeneralError,
				fmt.Sprintf("failed to remove container %q", c.ContainerName), err)
		}
	}

	// Step 5: Optionally remove the backing image. An orphaned deployment
	// has no image left to remove; skip quietly in that case.
	imageRemoved := false
	if flags.removeImage {
		if docker.ImageExists(ctx, cli, dep.Image) {
			VerboseLog("Removing image %s...", dep.Image)
			if err := docker.RemoveImage(ctx, cli, dep.Image, true); err != nil {
				return err
			}
			imageRemoved = true
		} else {
			VerboseLog("Image %s no longer exists, nothing to remove", dep.Image)
		}
	}

	// Step 6: Output the result.
	printRemoveResult(name, len(containers), dep.Image, imageRemoved)
	return nil
}

// promptConfirmation asks the user to confirm the remove operation.
// It reads a single line from stdin and checks for "y" or "yes".
// Returns true if the user confirmed, false otherwise.
func promptConfirmation(name, image string, removeImage bool) (bool, error) {
	fmt.Printf("About to remove deployment %q:\n", name)
	fmt.Println("  - the serving container will be removed")
	if removeImage {
		fmt.Printf("  - image %s will be removed\n", image)
	}
	fmt.Print("\nContinue? [y/N] ")

	// Read a line from stdin. bufio.Scanner handles different line endings
	// across platforms (LF on Unix, CRLF on Windows).
	scanner := bufio.NewScanner(os.Stdin)
	if scanner.Scan() {
		answer := strings.TrimSpace(strings.ToLower(scanner.Text()))
		return answer == "y" || answer == "yes", nil
	}

	// If stdin is closed or an error occurred, treat it as "no".
	if err := scanner.Err(); err != nil {
		return false, err
	}

	return false, nil
}

// printRemoveResult outputs the remove command result in text or JSON format.
func printRemoveResult(name string, containerCount int, image string, imageRemoved bool) {
	if IsJSONOutput() {
		result := map[string]interface{}{
			"name":           name,
			"action":         "removed",
			"containerCount": containerCount,
			"image":          image,
			"imageRemoved":   imageRemoved,
		}
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(data))
	} else {
		fmt.Printf("Removed deployment %q\n", name)
		fmt.Printf("  Removed %d container(s)\n", containerCount)
		if imageRemoved {
			fmt.Printf("  Removed image %s\n", image)
		}
	}
}

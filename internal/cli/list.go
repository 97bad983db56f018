// Package cli — list.go implements the "modelpack list" command.
//
// The list command displays all managed deployments by querying Docker
// for containers with the "modelpack.managed-by=modelpack" label.
// Containers are grouped by deployment name and presented as a text table
// or JSON array, depending on the --json flag.
//
// An optional --status flag allows filtering by deployment lifecycle
// state (running, stopped, orphaned, or all).
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/modelpack/internal/docker"
	"github.com/mmr-tortoise/modelpack/internal/model"
)

// listFlags holds the flag values for the list command.
// These are bound to cobra flags in NewListCommand.
type listFlags struct {
	// status filters deployments by their lifecycle state.
	// Valid values: "running", "stopped", "orphaned", "all" (default).
	status string
}

// NewListCommand creates the "list" cobra command.
// It is called from NewRootCommand to register as a subcommand.
func NewListCommand() *cobra.Command {
	flags := &listFlags{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all deployments",
		Long: `List all managed deployments and their status.

Each deployment is shown with its name, lifecycle status, serving
endpoint, backing image, and creation time.

Examples:
  modelpack list
  modelpack list --status running
  modelpack list --json`,

		// No positional arguments are required for the list command.
		Args: cobra.NoArgs,

		// RunE returns an error to the root command's error handler.
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd.Context(), flags)
		},
	}

	// Register the --status flag with a default value of "all".
	cmd.Flags().StringVar(&flags.status, "status", "all",
		"Filter by status: running, stopped, orphaned, all (default: all)")

	return cmd
}

// runList is the main logic function for the list command.
// It connects to Docker, discovers managed deployments, applies the
// status filter, and outputs results in the appropriate format.
func runList(ctx context.Context, flags *listFlags) error {
	// Step 1: Validate the --status flag value.
	statusFilter := flags.status
	if statusFilter != "all" {
		if _, err := model.ParseDeploymentStatus(statusFilter); err != nil {
			return model.WrapCLIError(model.ExitGeneralError,
				fmt.Sprintf("invalid status filter %q: valid values are running, stopped, orphaned, all", statusFilter), nil)
		}
	}

	// Step 2: Connect to Docker and verify the daemon is available.
	cli, err := docker.NewClient()
	if err != nil {
		return err // NewClient already returns CLIError with ExitDockerNotRunning
	}
	// defer ensures the Docker client is closed when this function returns,
	// releasing the underlying HTTP connection and resources.
	defer func() { _ = cli.Close() }()

	VerboseLog("Connected to Docker daemon")

	// Step 3: List all containers that are managed by modelpack.
	containers, err := docker.ListManagedContainers(ctx, cli)
	if err != nil {
		return err // ListManagedContainers already returns CLIError
	}
	VerboseLog("Found %d managed containers", len(containers))

	// Step 4: Group containers by deployment name.
	groups := docker.GroupContainersByName(containers)

	// Step 5: Build Deployment domain objects for each group.
	var deps []*model.Deployment
	for name, containerGroup := range groups {
		dep, err := docker.BuildDeployment(ctx, cli, name, containerGroup)
		if err != nil {
			// Log the error but continue processing other deployments.
			// A single corrupted deployment should not prevent listing others.
			VerboseLog("Warning: skipping deployment %q: %v", name, err)
			continue
		}
		deps = append(deps, dep)
	}

	// Step 6: Sort deployments alphabetically by name for consistent output.
	sort.Slice(deps, func(i, j int) bool {
		return deps[i].Name < deps[j].Name
	})

	// Step 7: Apply the --status filter if specified.
	if statusFilter != "all" {
		deps = FilterByStatus(deps, statusFilter)
	}

	// Step 8: Output results in the appropriate format.
	printListResult(deps)
	return nil
}

// FilterByStatus returns the deployments whose status matches the given
// string. The filter string is assumed to be pre-validated.
//
// This function is exported for testing purposes (tested in cli_test.go).
func FilterByStatus(deps []*model.Deployment, status string) []*model.Deployment {
	filtered := make([]*model.Deployment, 0, len(deps))
	for _, dep := range deps {
		if dep.Status.String() == status {
			filtered = append(filtered, dep)
		}
	}
	return filtered
}

// printListResult outputs the list of deployments in text or JSON format,
// depending on the global --json flag.
func printListResult(deps []*model.Deployment) {
	if IsJSONOutput() {
		printListResultJSON(deps)
	} else {
		printListResultText(deps)
	}
}

// listDeploymentJSON is the JSON output structure for a single deployment
// in the list command.
type listDeploymentJSON struct {
	Name      string `json:"name"`
	Status    string `json:"status"`
	Image     string `json:"image"`
	HostPort  int    `json:"hostPort"`
	Endpoint  string `json:"endpoint"`
	BuildID   string `json:"buildId,omitempty"`
	ModelURL  string `json:"modelUrl"`
	CreatedAt string `json:"createdAt"`
}

// printListResultJSON outputs the deployment list as structured JSON.
// The top-level key is "deployments" containing an array of objects.
func printListResultJSON(deps []*model.Deployment) {
	type resultJSON struct {
		Deployments []listDeploymentJSON `json:"deployments"`
	}

	result := resultJSON{
		// Use an empty slice instead of nil to ensure JSON output shows []
		// instead of null when no deployments are found.
		Deployments: make([]listDeploymentJSON, 0, len(deps)),
	}

	for _, dep := range deps {
		result.Deployments = append(result.Deployments, listDeploymentJSON{
			Name:      dep.Name,
			Status:    dep.Status.String(),
			Image:     dep.Image,
			HostPort:  dep.HostPort,
			Endpoint:  dep.Endpoint(),
			BuildID:   dep.BuildID,
			ModelURL:  dep.ModelURL,
			CreatedAt: dep.CreatedAt.Format(time.RFC3339),
		})
	}

	// MarshalIndent produces human-readable JSON with 2-space indentation.
	data, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(data))
}

// printListResultText outputs the deployment list as a human-readable
// text table with aligned columns.
//
// The table format is:
//
//	NAME             STATUS    ENDPOINT                IMAGE
//	gpt4all-groovy   running   http://localhost:8000   modelpack/gpt4all-groovy:latest
func printListResultText(deps []*model.Deployment) {
	if len(deps) == 0 {
		fmt.Println("No deployments found.")
		return
	}

	// Print header row.
	fmt.Printf("%-20s %-10s %-24s %s\n", "NAME", "STATUS", "ENDPOINT", "IMAGE")

	for _, dep := range deps {
		endpoint := dep.Endpoint()
		if dep.Status != model.StatusRunning {
			// A stopped or orphaned deployment has no reachable endpoint.
			endpoint = "-"
		}

		// Print one row per deployment with fixed-width columns.
		fmt.Printf("%-20s %-10s %-24s %s\n",
			dep.Name,
			dep.Status.String(),
			endpoint,
			dep.Image,
		)
	}
}

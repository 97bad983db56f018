// Package cli — verify.go implements the "modelpack verify" command.
//
// The verify command checks a built image against the pipeline's declared
// contract without running a container: the model-path environment
// variable carries the exact configured value, exactly one serving port
// is declared, the launch command is registered, the working directory is
// established, and the provenance labels record a non-empty model binary.
//
// All checks run even when early ones fail, so a single invocation
// reports every deviation at once.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/modelpack/internal/config"
	"github.com/mmr-tortoise/modelpack/internal/docker"
	"github.com/mmr-tortoise/modelpack/internal/model"
)

// verifyFlags holds the flag values for the verify command.
type verifyFlags struct {
	contextDir string // --context: build context directory (for config resolution)
	configPath string // --config: explicit pipeline config file
	tag        string // positional [image] argument (default derived from config)
}

// NewVerifyCommand creates the "verify" cobra command.
// It is called from NewRootCommand to register as a subcommand.
func NewVerifyCommand() *cobra.Command {
	flags := &verifyFlags{}

	cmd := &cobra.Command{
		Use:   "verify [image]",
		Short: "Verify a built image against its pipeline configuration",
		Long: `Verify that a built image matches the pipeline configuration it was
built from.

The image's declared environment, exposed ports, launch command, working
directory, and provenance labels are checked against the resolved
configuration. All mismatches are reported in one pass.

Examples:
  modelpack verify
  modelpack verify registry.local/gpt4all:v2
  modelpack verify --context ./server --json`,

		// The image reference is optional; the default is derived from
		// the resolved configuration.
		Args: cobra.MaximumNArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				flags.tag = args[0]
			}
			return runVerify(cmd.Context(), flags)
		},
	}

	cmd.Flags().StringVar(&flags.contextDir, "context", ".", "Build context directory")
	cmd.Flags().StringVar(&flags.configPath, "config", "", "Pipeline config file (default: <context>/modelpack.json)")

	return cmd
}

// runVerify is the main logic function for the verify command.
func runVerify(ctx context.Context, flags *verifyFlags) error {
	// Step 1: Resolve the pipeline configuration the image is checked against.
	cfg, err := config.Load(flags.contextDir, flags.configPath)
	if err != nil {
		return err
	}
	if flags.tag != "" {
		cfg.Tag = flags.tag
	}

	// Step 2: Connect to Docker and inspect the image.
	cli, err := docker.NewClient()
	if err != nil {
		return err
	}
	defer func() { _ = cli.Close() }()

	VerboseLog("Connected to Docker daemon")

	imgCfg, err := docker.InspectImage(ctx, cli, cfg.Tag)
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError,
			fmt.Sprintf("image %q not found — run `modelpack build` first", cfg.Tag), err)
	}
	VerboseLog("Inspecting image %s (%s)", cfg.Tag, shortID(imgCfg.ID))

	// Step 3: Run all checks and collect every problem.
	problems := VerifyImageConfig(imgCfg, cfg)

	// Step 4: Output the result.
	printVerifyResult(cfg.Tag, problems)

	if len(problems) > 0 {
		return model.NewCLIError(model.ExitVerifyFailed,
			fmt.Sprintf("image %q failed %d verification check(s)", cfg.Tag, len(problems)))
	}
	return nil
}

// VerifyImageConfig checks a built image's declared configuration against
// the pipeline configuration and returns a description of every mismatch.
// An empty slice means the image conforms.
//
// This function is exported for testing purposes (tested in cli_test.go):
// it is pure over its inputs, so the checks can be exercised without a
// Docker daemon.
func VerifyImageConfig(imgCfg *docker.ImageConfig, cfg *config.Config) []string {
	var problems []string

	// The model-path environment variable must carry the exact configured
	// value — it is the contract the serving process locates the model by.
	if got, ok := imgCfg.EnvValue(cfg.Model.EnvVar); !ok {
		problems = append(problems,
			fmt.Sprintf("environment variable %s is not set", cfg.Model.EnvVar))
	} else if got != cfg.Model.Path {
		problems = append(problems,
			fmt.Sprintf("environment variable %s is %q, want %q", cfg.Model.EnvVar, got, cfg.Model.Path))
	}

	// Exactly one serving port, the configured one, over TCP.
	wantPort := fmt.Sprintf("%d/tcp", cfg.Port)
	if len(imgCfg.ExposedPorts) != 1 || imgCfg.ExposedPorts[0] != wantPort {
		problems = append(problems,
			fmt.Sprintf("exposed ports are [%s], want exactly [%s]",
				strings.Join(imgCfg.ExposedPorts, ", "), wantPort))
	}

	// The registered launch command must match the configured one exactly.
	if !equalStrings(imgCfg.Cmd, cfg.Command) {
		problems = append(problems,
			fmt.Sprintf("launch command is %q, want %q", imgCfg.Cmd, cfg.Command))
	}

	if imgCfg.WorkingDir != cfg.Workdir {
		problems = append(problems,
			fmt.Sprintf("working directory is %q, want %q", imgCfg.WorkingDir, cfg.Workdir))
	}

	// Provenance labels: the image must record a non-empty model binary
	// fetched from the configured URL.
	if imgCfg.Labels[docker.LabelManagedBy] != docker.ManagedByValue {
		problems = append(problems, "image is not labeled as managed by modelpack")
	}
	if url := imgCfg.Labels[docker.LabelModelURL]; url != cfg.Model.URL {
		problems = append(problems,
			fmt.Sprintf("recorded model URL is %q, want %q", url, cfg.Model.URL))
	}
	sizeLabel := imgCfg.Labels[docker.LabelModelSize]
	if size, err := strconv.ParseInt(sizeLabel, 10, 64); err != nil || size <= 0 {
		problems = append(problems,
			fmt.Sprintf("recorded model size %q is not a positive byte count", sizeLabel))
	}

	return problems
}

// equalStrings reports whether two string slices are element-wise equal.
func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// printVerifyResult outputs the verify command result in text or JSON format.
func printVerifyResult(tag string, problems []string) {
	if IsJSONOutput() {
		result := map[string]interface{}{
			"image": tag,
			"ok":    len(problems) == 0,
			// Empty slice rather than nil so JSON shows [] when clean.
			"problems": append([]string{}, problems...),
		}
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(data))
		return
	}

	if len(problems) == 0 {
		fmt.Printf("Image %s conforms to its pipeline configuration\n", tag)
		return
	}

	fmt.Printf("Image %s failed verification:\n", tag)
	for _, p := range problems {
		fmt.Printf("  - %s\n", p)
	}
}

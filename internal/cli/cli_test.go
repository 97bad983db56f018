// Package cli — cli_test.go contains unit tests for the pure helper
// functions used by the CLI commands.
//
// These tests verify data transformation and verification logic without
// requiring a Docker daemon or any external dependencies.
package cli

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmr-tortoise/modelpack/internal/config"
	"github.com/mmr-tortoise/modelpack/internal/docker"
	"github.com/mmr-tortoise/modelpack/internal/model"
)

// TestFormatBytes verifies human-readable byte formatting across unit
// boundaries.
func TestFormatBytes(t *testing.T) {
	tests := []struct {
		name string
		n    int64
		want string
	}{
		{name: "zero", n: 0, want: "0 B"},
		{name: "below one KiB", n: 512, want: "512 B"},
		{name: "exactly one KiB", n: 1024, want: "1.0 KiB"},
		{name: "megabytes", n: 5 * 1024 * 1024, want: "5.0 MiB"},
		{name: "model-sized gigabytes", n: 3785248281, want: "3.5 GiB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatBytes(tt.n))
		})
	}
}

// TestShortID verifies Docker ID truncation to the conventional short form.
func TestShortID(t *testing.T) {
	tests := []struct {
		name string
		id   string
		want string
	}{
		{
			name: "sha256-prefixed ID",
			id:   "sha256:a3f1c2d4e5b6978812345678deadbeefcafe0123456789abcdef0123456789ab",
			want: "a3f1c2d4e5b6",
		},
		{
			name: "bare long ID",
			id:   "a3f1c2d4e5b6978812345678deadbeef",
			want: "a3f1c2d4e5b6",
		},
		{
			name: "already short",
			id:   "a3f1c2d4",
			want: "a3f1c2d4",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, shortID(tt.id))
		})
	}
}

// TestContainerPortFromExposed verifies extraction of the single serving
// port from an image's declared exposed ports.
func TestContainerPortFromExposed(t *testing.T) {
	tests := []struct {
		name    string
		exposed []string
		want    int
		wantErr string
	}{
		{
			name:    "single tcp port",
			exposed: []string{"8000/tcp"},
			want:    8000,
		},
		{
			name:    "port without protocol",
			exposed: []string{"9000"},
			want:    9000,
		},
		{
			name:    "no ports declared",
			exposed: nil,
			wantErr: "no exposed ports",
		},
		{
			name:    "multiple ports declared",
			exposed: []string{"8000/tcp", "9090/tcp"},
			wantErr: "exactly one exposed port",
		},
		{
			name:    "udp port rejected",
			exposed: []string{"8000/udp"},
			wantErr: "not TCP",
		},
		{
			name:    "malformed port",
			exposed: []string{"http/tcp"},
			wantErr: "invalid exposed port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ContainerPortFromExposed(tt.exposed)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// TestFilterByStatus verifies the list command's status filtering.
func TestFilterByStatus(t *testing.T) {
	deps := []*model.Deployment{
		{Name: "a", Status: model.StatusRunning},
		{Name: "b", Status: model.StatusStopped},
		{Name: "c", Status: model.StatusRunning},
		{Name: "d", Status: model.StatusOrphaned},
	}

	running := FilterByStatus(deps, "running")
	require.Len(t, running, 2)
	assert.Equal(t, "a", running[0].Name)
	assert.Equal(t, "c", running[1].Name)

	assert.Len(t, FilterByStatus(deps, "stopped"), 1)
	assert.Len(t, FilterByStatus(deps, "orphaned"), 1)
	assert.Empty(t, FilterByStatus(nil, "running"))
}

// conformingImageConfig returns an ImageConfig that matches the default
// pipeline configuration in every verified aspect.
func conformingImageConfig(cfg *config.Config) *docker.ImageConfig {
	return &docker.ImageConfig{
		ID:           "sha256:deadbeef",
		Env:          []string{"PATH=/usr/local/bin", cfg.Model.EnvVar + "=" + cfg.Model.Path},
		Cmd:          append([]string{}, cfg.Command...),
		ExposedPorts: []string{"8000/tcp"},
		WorkingDir:   cfg.Workdir,
		Labels: map[string]string{
			docker.LabelManagedBy: docker.ManagedByValue,
			docker.LabelModelURL:  cfg.Model.URL,
			docker.LabelModelSize: "3785248281",
		},
	}
}

// TestVerifyImageConfig_Conforming verifies that a fully conforming image
// produces no problems.
func TestVerifyImageConfig_Conforming(t *testing.T) {
	cfg := config.Default()
	problems := VerifyImageConfig(conformingImageConfig(cfg), cfg)
	assert.Empty(t, problems)
}

// TestVerifyImageConfig_Deviations verifies that each contract deviation
// is detected and reported independently.
func TestVerifyImageConfig_Deviations(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*docker.ImageConfig)
		problem string
	}{
		{
			name:    "env var missing",
			mutate:  func(ic *docker.ImageConfig) { ic.Env = []string{"PATH=/usr/local/bin"} },
			problem: "GPT4ALL_MODEL_PATH is not set",
		},
		{
			name: "env var wrong value",
			mutate: func(ic *docker.ImageConfig) {
				ic.Env = []string{"GPT4ALL_MODEL_PATH=/tmp/wrong.bin"}
			},
			problem: `"/tmp/wrong.bin"`,
		},
		{
			name:    "no exposed ports",
			mutate:  func(ic *docker.ImageConfig) { ic.ExposedPorts = nil },
			problem: "exposed ports",
		},
		{
			name: "extra exposed port",
			mutate: func(ic *docker.ImageConfig) {
				ic.ExposedPorts = []string{"8000/tcp", "9090/tcp"}
			},
			problem: "exposed ports",
		},
		{
			name:    "launch command mismatch",
			mutate:  func(ic *docker.ImageConfig) { ic.Cmd = []string{"python", "app.py"} },
			problem: "launch command",
		},
		{
			name:    "working directory mismatch",
			mutate:  func(ic *docker.ImageConfig) { ic.WorkingDir = "/srv" },
			problem: "working directory",
		},
		{
			name: "zero model size",
			mutate: func(ic *docker.ImageConfig) {
				ic.Labels[docker.LabelModelSize] = "0"
			},
			problem: "not a positive byte count",
		},
		{
			name: "model size label missing",
			mutate: func(ic *docker.ImageConfig) {
				delete(ic.Labels, docker.LabelModelSize)
			},
			problem: "not a positive byte count",
		},
		{
			name: "model URL mismatch",
			mutate: func(ic *docker.ImageConfig) {
				ic.Labels[docker.LabelModelURL] = "https://example.com/other.bin"
			},
			problem: "recorded model URL",
		},
		{
			name: "not managed by modelpack",
			mutate: func(ic *docker.ImageConfig) {
				delete(ic.Labels, docker.LabelManagedBy)
			},
			problem: "not labeled as managed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			imgCfg := conformingImageConfig(cfg)
			tt.mutate(imgCfg)

			problems := VerifyImageConfig(imgCfg, cfg)
			require.NotEmpty(t, problems)

			found := false
			for _, p := range problems {
				if strings.Contains(p, tt.problem) {
					found = true
				}
			}
			assert.True(t, found, "expected a problem containing %q, got %v", tt.problem, problems)
		})
	}
}

// TestVerifyImageConfig_ReportsAllProblems verifies that multiple
// deviations are reported in a single pass rather than stopping at the
// first one.
func TestVerifyImageConfig_ReportsAllProblems(t *testing.T) {
	cfg := config.Default()
	imgCfg := conformingImageConfig(cfg)
	imgCfg.Env = nil
	imgCfg.ExposedPorts = nil
	imgCfg.Cmd = nil

	problems := VerifyImageConfig(imgCfg, cfg)
	assert.GreaterOrEqual(t, len(problems), 3)
}

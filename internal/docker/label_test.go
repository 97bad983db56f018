package docker

import (
	"testing"
	"time"

	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmr-tortoise/modelpack/internal/model"
)

// testDeployment returns a fully populated Deployment for label tests.
func testDeployment() *model.Deployment {
	return &model.Deployment{
		Name:          "groovy-server",
		Image:         "modelpack/gpt4all-groovy:latest",
		BuildID:       "1b4e28ba-2fa1-11d2-883f-0016d3cca427",
		HostPort:      8000,
		ContainerPort: 8000,
		ModelURL:      "https://gpt4all.io/models/ggml-gpt4all-j-v1.3-groovy.bin",
		ModelPath:     "/models/ggml-gpt4all-j-v1.3-groovy.bin",
		ModelDigest:   "sha256:e27bdb28e5f2dbcf2a1a7bdb7bd0e6fcc7c60ccef5a1c4c0e28fa1bbe1d8f0a2",
		CreatedAt:     time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
	}
}

// TestBuildLabels verifies the label map applied to a serving container,
// including the fixed managed-by marker and RFC3339 timestamps.
func TestBuildLabels(t *testing.T) {
	labels := BuildLabels(testDeployment())

	assert.Equal(t, "modelpack", labels[LabelManagedBy])
	assert.Equal(t, "groovy-server", labels[LabelName])
	assert.Equal(t, "modelpack/gpt4all-groovy:latest", labels[LabelImage])
	assert.Equal(t, "8000", labels[LabelHostPort])
	assert.Equal(t, "8000", labels[LabelContainerPort])
	assert.Equal(t, "https://gpt4all.io/models/ggml-gpt4all-j-v1.3-groovy.bin", labels[LabelModelURL])
	assert.Equal(t, "/models/ggml-gpt4all-j-v1.3-groovy.bin", labels[LabelModelPath])
	assert.Equal(t, "2026-03-14T09:30:00Z", labels[LabelCreatedAt])
	assert.Equal(t, "1b4e28ba-2fa1-11d2-883f-0016d3cca427", labels[LabelBuildID])
}

// TestBuildLabels_OptionalOmitted verifies that empty optional fields do
// not produce blank-valued labels.
func TestBuildLabels_OptionalOmitted(t *testing.T) {
	dep := testDeployment()
	dep.BuildID = ""
	dep.ModelDigest = ""

	labels := BuildLabels(dep)
	assert.NotContains(t, labels, LabelBuildID)
	assert.NotContains(t, labels, LabelModelDigest)
}

// TestParseLabels_RoundTrip verifies that BuildLabels → ParseLabels
// reconstructs the deployment metadata exactly. Status and Containers are
// runtime-derived and are expected to be zero after parsing.
func TestParseLabels_RoundTrip(t *testing.T) {
	original := testDeployment()

	parsed, err := ParseLabels(BuildLabels(original))
	require.NoError(t, err)

	assert.Equal(t, original.Name, parsed.Name)
	assert.Equal(t, original.Image, parsed.Image)
	assert.Equal(t, original.BuildID, parsed.BuildID)
	assert.Equal(t, original.HostPort, parsed.HostPort)
	assert.Equal(t, original.ContainerPort, parsed.ContainerPort)
	assert.Equal(t, original.ModelURL, parsed.ModelURL)
	assert.Equal(t, original.ModelPath, parsed.ModelPath)
	assert.Equal(t, original.ModelDigest, parsed.ModelDigest)
	assert.True(t, original.CreatedAt.Equal(parsed.CreatedAt))
	assert.Empty(t, parsed.Status)
	assert.Empty(t, parsed.Containers)
}

// TestParseLabels_MissingRequired verifies that every missing required
// label is reported, not just the first one found.
func TestParseLabels_MissingRequired(t *testing.T) {
	labels := BuildLabels(testDeployment())
	delete(labels, LabelName)
	delete(labels, LabelHostPort)

	_, err := ParseLabels(labels)
	require.Error(t, err)
	assert.Contains(t, err.Error(), LabelName)
	assert.Contains(t, err.Error(), LabelHostPort)
}

// TestParseLabels_WrongManagedBy verifies containers labeled by other
// tools are rejected.
func TestParseLabels_WrongManagedBy(t *testing.T) {
	labels := BuildLabels(testDeployment())
	labels[LabelManagedBy] = "someone-else"

	_, err := ParseLabels(labels)
	assert.Error(t, err)
}

// TestParseLabels_InvalidValues covers the malformed-value error paths.
func TestParseLabels_InvalidValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(labels map[string]string)
	}{
		{"bad host port", func(l map[string]string) { l[LabelHostPort] = "eighty" }},
		{"bad container port", func(l map[string]string) { l[LabelContainerPort] = "x" }},
		{"bad timestamp", func(l map[string]string) { l[LabelCreatedAt] = "yesterday" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			labels := BuildLabels(testDeployment())
			tt.mutate(labels)
			_, err := ParseLabels(labels)
			assert.Error(t, err)
		})
	}
}

// TestBuildImageLabels verifies the provenance labels stamped onto a
// built image, which the verify command later reads back.
func TestBuildImageLabels(t *testing.T) {
	art := model.ModelArtifact{
		URL:    "https://gpt4all.io/models/ggml-gpt4all-j-v1.3-groovy.bin",
		Path:   "/models/ggml-gpt4all-j-v1.3-groovy.bin",
		EnvVar: "GPT4ALL_MODEL_PATH",
	}
	fetched := model.FetchedArtifact{
		LocalPath: "/home/user/.cache/modelpack/artifacts/abc/ggml.bin",
		Size:      3785248281,
		Digest:    digest.FromString("weights"),
	}
	createdAt := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

	labels := BuildImageLabels("build-uuid", art, fetched, createdAt)

	assert.Equal(t, "modelpack", labels[LabelManagedBy])
	assert.Equal(t, "build-uuid", labels[LabelBuildID])
	assert.Equal(t, art.URL, labels[LabelModelURL])
	assert.Equal(t, art.Path, labels[LabelModelPath])
	assert.Equal(t, fetched.Digest.String(), labels[LabelModelDigest])
	assert.Equal(t, "3785248281", labels[LabelModelSize])
	assert.Equal(t, "2026-03-14T09:30:00Z", labels[LabelCreatedAt])
}

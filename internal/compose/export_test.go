package compose

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/mmr-tortoise/modelpack/internal/model"
)

func testDeployment() *model.Deployment {
	return &model.Deployment{
		Name:          "gpt4all-groovy",
		Image:         "modelpack/gpt4all-groovy:latest",
		HostPort:      8000,
		ContainerPort: 8000,
		ModelPath:     "/models/ggml-gpt4all-j-v1.3-groovy.bin",
	}
}

func TestGenerate(t *testing.T) {
	labels := map[string]string{
		"modelpack.managed-by": "modelpack",
		"modelpack.name":       "gpt4all-groovy",
	}

	data, err := Generate(testDeployment(), labels)
	require.NoError(t, err)

	// Header must identify the file as generated.
	assert.Contains(t, string(data), "# Auto-generated by modelpack")
	assert.Contains(t, string(data), `deployment "gpt4all-groovy"`)

	// Round-trip through yaml to verify the structure rather than
	// matching the exact serialization.
	var parsed struct {
		Name     string `yaml:"name"`
		Services map[string]struct {
			Image       string            `yaml:"image"`
			Ports       []string          `yaml:"ports"`
			Environment map[string]string `yaml:"environment"`
			Labels      map[string]string `yaml:"labels"`
			Restart     string            `yaml:"restart"`
		} `yaml:"services"`
	}
	require.NoError(t, yaml.Unmarshal(data, &parsed))

	assert.Equal(t, "gpt4all-groovy", parsed.Name)
	require.Contains(t, parsed.Services, "gpt4all-groovy")

	svc := parsed.Services["gpt4all-groovy"]
	assert.Equal(t, "modelpack/gpt4all-groovy:latest", svc.Image)
	assert.Equal(t, []string{"8000:8000"}, svc.Ports)
	assert.Equal(t, "/models/ggml-gpt4all-j-v1.3-groovy.bin", svc.Environment["GPT4ALL_MODEL_PATH"])
	assert.Equal(t, labels, svc.Labels)
	assert.Equal(t, "no", svc.Restart)
}

func TestGenerateWithoutModelPath(t *testing.T) {
	dep := testDeployment()
	dep.ModelPath = ""

	data, err := Generate(dep, map[string]string{"modelpack.managed-by": "modelpack"})
	require.NoError(t, err)

	// No environment section when there is no model path to publish.
	assert.NotContains(t, string(data), "environment:")
}

func TestGenerateDoesNotAliasLabels(t *testing.T) {
	labels := map[string]string{"modelpack.name": "gpt4all-groovy"}
	_, err := Generate(testDeployment(), labels)
	require.NoError(t, err)

	// Mutating the input after generation must not affect prior output;
	// Generate is expected to copy the map.
	labels["modelpack.name"] = "mutated"
	data, err := Generate(testDeployment(), map[string]string{"modelpack.name": "gpt4all-groovy"})
	require.NoError(t, err)
	assert.Contains(t, string(data), "gpt4all-groovy")
}

func TestWrite(t *testing.T) {
	dir := t.TempDir()

	t.Run("creates parent directories", func(t *testing.T) {
		path := filepath.Join(dir, "nested", "out", "docker-compose.yml")
		require.NoError(t, Write(path, []byte("name: x\n")))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "name: x\n", string(data))
	})

	t.Run("overwrites existing file", func(t *testing.T) {
		path := filepath.Join(dir, "docker-compose.yml")
		require.NoError(t, Write(path, []byte("first\n")))
		require.NoError(t, Write(path, []byte("second\n")))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "second\n", string(data))
	})
}

func TestSortedLabelKeys(t *testing.T) {
	keys := SortedLabelKeys(map[string]string{
		"modelpack.name":       "x",
		"modelpack.image":      "y",
		"modelpack.managed-by": "z",
	})
	assert.Equal(t, []string{"modelpack.image", "modelpack.managed-by", "modelpack.name"}, keys)
}

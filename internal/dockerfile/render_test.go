package dockerfile

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmr-tortoise/modelpack/internal/config"
)

// TestRender_Defaults pins the full Dockerfile produced from the default
// configuration. Any change to the recipe shows up here verbatim.
func TestRender_Defaults(t *testing.T) {
	got := string(Render(config.Default()))

	want := `# Generated by modelpack. DO NOT EDIT.
FROM python:3.11-slim

WORKDIR /app

COPY src/requirements.txt ./requirements.txt
RUN pip install --no-cache-dir -r requirements.txt

COPY src/ .

COPY models/ggml-gpt4all-j-v1.3-groovy.bin /models/ggml-gpt4all-j-v1.3-groovy.bin

ENV GPT4ALL_MODEL_PATH=/models/ggml-gpt4all-j-v1.3-groovy.bin

EXPOSE 8000

CMD ["uvicorn", "app:app", "--host", "0.0.0.0", "--port", "8000"]
`
	assert.Equal(t, want, got)
}

// TestRender_Deterministic verifies the reproducibility property:
// identical configs yield byte-identical Dockerfiles.
func TestRender_Deterministic(t *testing.T) {
	a := Render(config.Default())
	b := Render(config.Default())
	assert.Equal(t, a, b)
}

// TestRender_StageOrder verifies that instructions appear in the fixed
// pipeline order: base, deps, source, artifact, env, port, command.
func TestRender_StageOrder(t *testing.T) {
	out := string(Render(config.Default()))

	markers := []string{
		"FROM ",
		"WORKDIR ",
		"COPY src/requirements.txt",
		"RUN pip install",
		"COPY src/ .",
		"COPY models/",
		"ENV GPT4ALL_MODEL_PATH",
		"EXPOSE ",
		"CMD ",
	}

	last := -1
	for _, marker := range markers {
		idx := strings.Index(out, marker)
		require.GreaterOrEqual(t, idx, 0, "missing instruction %q", marker)
		assert.Greater(t, idx, last, "instruction %q out of order", marker)
		last = idx
	}
}

// TestRender_SinglePortDeclared verifies that exactly one EXPOSE
// instruction is emitted — the port surface is 8000 and nothing else.
func TestRender_SinglePortDeclared(t *testing.T) {
	out := string(Render(config.Default()))
	assert.Equal(t, 1, strings.Count(out, "EXPOSE "))
	assert.Contains(t, out, "EXPOSE 8000\n")
}

// TestRender_CustomConfig verifies that overridden configuration flows
// into the rendered instructions, including a nested manifest path.
func TestRender_CustomConfig(t *testing.T) {
	cfg := config.Default()
	cfg.BaseImage = "python:3.12-slim"
	cfg.Workdir = "/srv/app"
	cfg.Manifest = "deps/requirements.txt"
	cfg.Port = 9000
	cfg.Model.URL = "https://example.com/weights.bin"
	cfg.Model.Path = "/opt/models/weights.bin"
	cfg.Model.EnvVar = "MODEL_FILE"
	cfg.Command = []string{"uvicorn", "server:app", "--host", "0.0.0.0", "--port", "9000"}

	out := string(Render(cfg))

	assert.Contains(t, out, "FROM python:3.12-slim\n")
	assert.Contains(t, out, "WORKDIR /srv/app\n")
	assert.Contains(t, out, "COPY src/deps/requirements.txt ./deps/requirements.txt\n")
	assert.Contains(t, out, "RUN pip install --no-cache-dir -r deps/requirements.txt\n")
	assert.Contains(t, out, "COPY models/weights.bin /opt/models/weights.bin\n")
	assert.Contains(t, out, "ENV MODEL_FILE=/opt/models/weights.bin\n")
	assert.Contains(t, out, "EXPOSE 9000\n")
	assert.Contains(t, out, `CMD ["uvicorn", "server:app", "--host", "0.0.0.0", "--port", "9000"]`)
}

// TestExecForm verifies exec-form JSON array formatting, including
// argument quoting.
func TestExecForm(t *testing.T) {
	assert.Equal(t, `["uvicorn", "app:app"]`, execForm([]string{"uvicorn", "app:app"}))
	assert.Equal(t, `["sh", "-c", "echo \"hi\""]`, execForm([]string{"sh", "-c", `echo "hi"`}))
}

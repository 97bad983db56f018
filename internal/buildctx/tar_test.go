package buildctx

import (
	"archive/tar"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmr-tortoise/modelpack/internal/model"
)

// readTar reads a tar stream into a name→content map for assertions.
// Directory entries map to nil content.
func readTar(t *testing.T, data []byte) map[string][]byte {
	t.Helper()
	entries := make(map[string][]byte)
	tr := tar.NewReader(bytes.NewReader(data))
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		if hdr.Typeflag == tar.TypeDir {
			entries[hdr.Name] = nil
			continue
		}
		content, err := io.ReadAll(tr)
		require.NoError(t, err)
		entries[hdr.Name] = content
	}
	return entries
}

// writeContext builds a small application source tree and a fake model
// binary on disk, returning their paths.
func writeContext(t *testing.T) (contextDir, modelPath string) {
	t.Helper()

	contextDir = t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(contextDir, "requirements.txt"), []byte("fastapi\nuvicorn\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(contextDir, "app.py"), []byte("app = object()\n"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(contextDir, "routes"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(contextDir, "routes", "run.py"), []byte("# handler\n"), 0o644))

	modelDir := t.TempDir()
	modelPath = filepath.Join(modelDir, "ggml-gpt4all-j-v1.3-groovy.bin")
	require.NoError(t, os.WriteFile(modelPath, []byte("weights"), 0o644))
	return contextDir, modelPath
}

// TestValidateSourceTree covers the context-directory preflight.
func TestValidateSourceTree(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, ValidateSourceTree(dir))

	err := ValidateSourceTree(filepath.Join(dir, "missing"))
	require.Error(t, err)
	var cliErr *model.CLIError
	require.ErrorAs(t, err, &cliErr)
	assert.Equal(t, model.ExitGeneralError, cliErr.Code)

	file := filepath.Join(dir, "plain.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	assert.Error(t, ValidateSourceTree(file))
}

// TestAssemble_Layout verifies the fixed context layout: Dockerfile at the
// root, source verbatim under src/, model under models/.
func TestAssemble_Layout(t *testing.T) {
	contextDir, modelPath := writeContext(t)
	dockerfileBytes := []byte("FROM python:3.11-slim\n")

	var buf bytes.Buffer
	require.NoError(t, Assemble(&buf, contextDir, dockerfileBytes, modelPath, "ggml-gpt4all-j-v1.3-groovy.bin"))

	entries := readTar(t, buf.Bytes())

	assert.Equal(t, dockerfileBytes, entries["Dockerfile"])
	assert.Equal(t, []byte("fastapi\nuvicorn\n"), entries["src/requirements.txt"])
	assert.Equal(t, []byte("app = object()\n"), entries["src/app.py"])
	assert.Equal(t, []byte("# handler\n"), entries["src/routes/run.py"])
	assert.Equal(t, []byte("weights"), entries["models/ggml-gpt4all-j-v1.3-groovy.bin"])

	// Directory entry for the nested source directory is carried.
	_, hasDir := entries["src/routes/"]
	assert.True(t, hasDir)
}

// TestAssemble_SourceCopiedVerbatim verifies that no filtering happens:
// dotfiles and config files all travel into the context.
func TestAssemble_SourceCopiedVerbatim(t *testing.T) {
	contextDir, modelPath := writeContext(t)
	require.NoError(t, os.WriteFile(filepath.Join(contextDir, ".env"), []byte("X=1\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(contextDir, "modelpack.json"), []byte("{}"), 0o644))

	var buf bytes.Buffer
	require.NoError(t, Assemble(&buf, contextDir, []byte("FROM x\n"), modelPath, "m.bin"))

	entries := readTar(t, buf.Bytes())
	assert.Contains(t, entries, "src/.env")
	assert.Contains(t, entries, "src/modelpack.json")
}

// TestAssemble_MissingModel verifies that a vanished model file aborts
// the assembly.
func TestAssemble_MissingModel(t *testing.T) {
	contextDir, _ := writeContext(t)

	var buf bytes.Buffer
	err := Assemble(&buf, contextDir, []byte("FROM x\n"), filepath.Join(t.TempDir(), "gone.bin"), "gone.bin")
	assert.Error(t, err)
}

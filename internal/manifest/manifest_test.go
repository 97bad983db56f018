package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmr-tortoise/modelpack/internal/model"
)

// writeManifest writes a manifest file into a temp dir and returns its path.
func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "requirements.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// TestLoad_Missing verifies the fail-fast contract: a missing manifest
// aborts with the manifest exit code before any build work.
func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "requirements.txt"))
	require.Error(t, err)

	var cliErr *model.CLIError
	require.ErrorAs(t, err, &cliErr)
	assert.Equal(t, model.ExitManifestError, cliErr.Code)
}

// TestLoad_Empty verifies that a manifest with no specifiers (blank or
// comment-only) is rejected the same way as a missing one.
func TestLoad_Empty(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"empty file", ""},
		{"only blank lines", "\n\n\n"},
		{"only comments", "# deps\n# none yet\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeManifest(t, tt.content))
			require.Error(t, err)

			var cliErr *model.CLIError
			require.ErrorAs(t, err, &cliErr)
			assert.Equal(t, model.ExitManifestError, cliErr.Code)
		})
	}
}

// TestLoad_ParsesSpecifiers verifies line handling: comments and blanks
// skipped, whitespace trimmed, inline comments stripped, file order kept.
func TestLoad_ParsesSpecifiers(t *testing.T) {
	content := `# web stack
fastapi==0.110.0

uvicorn[standard]>=0.29  # ASGI server
gpt4all~=2.5
requests
`
	m, err := Load(writeManifest(t, content))
	require.NoError(t, err)

	assert.Equal(t, 4, m.Count())
	assert.Equal(t, []string{"fastapi", "uvicorn", "gpt4all", "requests"}, m.Names())

	assert.Equal(t, "fastapi==0.110.0", m.Specifiers[0].Raw)
	assert.Equal(t, "==0.110.0", m.Specifiers[0].Constraint)

	// Inline comment must not leak into the raw specifier.
	assert.Equal(t, "uvicorn[standard]>=0.29", m.Specifiers[1].Raw)
	assert.Equal(t, ">=0.29", m.Specifiers[1].Constraint)

	// Unpinned specifier has no constraint.
	assert.Equal(t, "", m.Specifiers[3].Constraint)
}

// TestParseSpecifier covers name/constraint splitting across the
// specifier syntax variants the pipeline encounters.
func TestParseSpecifier(t *testing.T) {
	tests := []struct {
		raw        string
		name       string
		constraint string
	}{
		{"fastapi", "fastapi", ""},
		{"fastapi==0.110.0", "fastapi", "==0.110.0"},
		{"uvicorn>=0.29", "uvicorn", ">=0.29"},
		{"numpy<2", "numpy", "<2"},
		{"markdown!=3.5", "markdown", "!=3.5"},
		{"duckdb~=0.10", "duckdb", "~=0.10"},
		{"uvicorn[standard]", "uvicorn", ""},
		{"uvicorn[standard]==0.29.0", "uvicorn", "==0.29.0"},
		{"tomli; python_version < '3.11'", "tomli", ""},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			spec := parseSpecifier(tt.raw)
			assert.Equal(t, tt.raw, spec.Raw)
			assert.Equal(t, tt.name, spec.Name)
			assert.Equal(t, tt.constraint, spec.Constraint)
		})
	}
}

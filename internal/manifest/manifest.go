// Package manifest parses and validates the dependency manifest consumed
// by the build pipeline.
//
// The manifest format is one dependency specifier per line (pip
// requirements style). Blank lines and lines starting with "#" are
// ignored. The pipeline fails fast before any image build work when the
// manifest is missing, unreadable, or declares no dependencies.
package manifest

import (
	"fmt"
	"os"
	"strings"

	"github.com/mmr-tortoise/modelpack/internal/model"
)

// versionOperators are the constraint operators recognized when splitting
// a specifier into package name and version constraint. Two-character
// operators must be checked before their one-character prefixes.
var versionOperators = []string{"==", ">=", "<=", "~=", "!=", ">", "<"}

// Specifier is a single dependency declaration from the manifest.
type Specifier struct {
	// Raw is the specifier line exactly as written, with surrounding
	// whitespace trimmed. This is what the installer receives.
	Raw string `json:"raw"`

	// Name is the bare package name with any version constraint and
	// extras stripped, e.g. "fastapi" for "fastapi[all]>=0.100".
	Name string `json:"name"`

	// Constraint is the version constraint portion including the
	// operator, e.g. ">=0.100". Empty when the specifier is unpinned.
	Constraint string `json:"constraint,omitempty"`
}

// Manifest is a parsed dependency manifest.
type Manifest struct {
	// Path is the path the manifest was read from.
	Path string `json:"path"`

	// Specifiers lists the declared dependencies in file order.
	Specifiers []Specifier `json:"specifiers"`
}

// Count returns the number of declared dependencies.
func (m *Manifest) Count() int {
	return len(m.Specifiers)
}

// Names returns the bare package names in file order.
func (m *Manifest) Names() []string {
	names := make([]string, 0, len(m.Specifiers))
	for _, s := range m.Specifiers {
		names = append(names, s.Name)
	}
	return names
}

// Load reads and parses the manifest at the given path.
//
// A missing or unreadable file returns a CLIError with ExitManifestError —
// this is the fail-fast contract of the pipeline: no image build work
// starts without a readable manifest. A manifest with zero specifiers is
// rejected the same way, since a dependency-less web application cannot
// exist (the server framework itself is a dependency).
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, model.WrapCLIError(
				model.ExitManifestError,
				fmt.Sprintf("dependency manifest not found: %s", path),
				err,
			)
		}
		return nil, model.WrapCLIError(
			model.ExitManifestError,
			fmt.Sprintf("failed to read dependency manifest %s", path),
			err,
		)
	}

	m := &Manifest{Path: path}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		// Trailing inline comments are not part of the specifier.
		if idx := strings.Index(line, " #"); idx >= 0 {
			line = strings.TrimSpace(line[:idx])
		}
		m.Specifiers = append(m.Specifiers, parseSpecifier(line))
	}

	if len(m.Specifiers) == 0 {
		return nil, model.NewCLIError(
			model.ExitManifestError,
			fmt.Sprintf("dependency manifest %s declares no dependencies", path),
		)
	}
	return m, nil
}

// parseSpecifier splits a specifier line into package name and version
// constraint. Environment markers (after ";") are dropped from the name
// but preserved in Raw.
func parseSpecifier(raw string) Specifier {
	spec := Specifier{Raw: raw}

	name := raw
	// Environment markers ("; python_version < '3.12'") follow the
	// constraint and never contribute to the name.
	if idx := strings.Index(name, ";"); idx >= 0 {
		name = strings.TrimSpace(name[:idx])
	}

	for _, op := range versionOperators {
		if idx := strings.Index(name, op); idx >= 0 {
			spec.Constraint = strings.TrimSpace(name[idx:])
			name = strings.TrimSpace(name[:idx])
			break
		}
	}

	// Extras ("uvicorn[standard]") are part of the install request but
	// not of the bare name.
	if idx := strings.Index(name, "["); idx >= 0 {
		name = name[:idx]
	}

	spec.Name = name
	return spec
}

// Package model defines the domain types and value objects for the
// modelpack CLI.
//
// This package contains pure data structures with minimal external
// dependencies. All entities (Deployment, BuildResult, ModelArtifact, etc.)
// are transient representations reconstructed from Docker container labels
// at runtime — there are no persistent state files.
//
// The package also defines exit codes (ExitCode) and a custom error type
// (CLIError) that carries exit codes for proper OS process exit handling.
package model

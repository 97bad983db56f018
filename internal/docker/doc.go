// Package docker provides Docker Engine API wrappers for the modelpack
// CLI.
//
// This package handles:
//   - Docker client initialization with automatic socket detection
//     (Linux, macOS, Windows)
//   - Image builds from a tar context, with fail-fast error semantics
//   - Image inspection for configuration verification
//   - Container label management for persisting deployment metadata
//     (Docker labels are the sole state storage mechanism)
//   - Container lifecycle operations: create, start, stop, remove, list
//
// The package uses github.com/docker/docker/client as the underlying
// Docker SDK, with version negotiation enabled for broad compatibility.
package docker

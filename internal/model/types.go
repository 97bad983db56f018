// Package model defines the domain types for the modelpack CLI.
//
// All entities in this package represent the build pipeline and the
// deployments it produces. These types are used throughout the application
// for passing data between components.
//
// Key design decision: all deployment state is persisted via Docker
// container labels, so these types are transient representations
// reconstructed from Docker API queries at runtime.
package model

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/opencontainers/go-digest"
)

// DeploymentStatus represents the lifecycle state of a model-serving
// deployment. The state transitions are:
//
//	[not built] → built → Running → Stopped ⇄ Running → [Removed]
//	Running/Stopped → Orphaned (when the backing image is removed manually)
type DeploymentStatus string

const (
	// StatusRunning indicates the deployment's serving container is running.
	StatusRunning DeploymentStatus = "running"

	// StatusStopped indicates the container exists but is not running.
	// The image and configuration are preserved.
	StatusStopped DeploymentStatus = "stopped"

	// StatusOrphaned indicates the backing image no longer exists on the
	// host, but the labeled container remains. This typically happens when
	// a user removes the image with `docker rmi` behind modelpack's back.
	StatusOrphaned DeploymentStatus = "orphaned"
)

// String returns the string representation of DeploymentStatus.
// This method satisfies the fmt.Stringer interface, enabling
// human-readable output in CLI commands and logging.
func (s DeploymentStatus) String() string {
	return string(s)
}

// IsValid checks whether the DeploymentStatus value is one of the
// predefined valid states.
func (s DeploymentStatus) IsValid() bool {
	switch s {
	case StatusRunning, StatusStopped, StatusOrphaned:
		return true
	default:
		return false
	}
}

// ParseDeploymentStatus converts a string to a DeploymentStatus.
// Returns an error if the string does not match any valid status.
func ParseDeploymentStatus(s string) (DeploymentStatus, error) {
	status := DeploymentStatus(strings.ToLower(s))
	if !status.IsValid() {
		return "", fmt.Errorf("invalid deployment status: %q (valid: running, stopped, orphaned)", s)
	}
	return status, nil
}

// Stage identifies one step of the build pipeline. The stages execute
// exactly once, in fixed order, with no rollback: a failure at any stage
// aborts the whole pipeline and produces no image.
type Stage string

const (
	// StageBase selects the base runtime image (static, from configuration).
	StageBase Stage = "base"

	// StageDeps copies the dependency manifest into the image and runs
	// the installer against it.
	StageDeps Stage = "deps"

	// StageSource copies the application source tree into the image verbatim.
	StageSource Stage = "source"

	// StageArtifact fetches the remote model binary and materializes it
	// at its fixed in-image path.
	StageArtifact Stage = "artifact"

	// StageEnv publishes the model-path environment variable.
	StageEnv Stage = "env"

	// StagePort declares the single reachable network port.
	StagePort Stage = "port"

	// StageCommand registers the launch command to run on container start.
	StageCommand Stage = "command"
)

// Stages lists all pipeline stages in execution order. The order is part
// of the pipeline contract and is asserted by the Dockerfile render tests.
var Stages = []Stage{
	StageBase, StageDeps, StageSource, StageArtifact,
	StageEnv, StagePort, StageCommand,
}

// String returns the string representation of Stage.
func (s Stage) String() string {
	return string(s)
}

// ModelArtifact describes the pretrained model binary the pipeline fetches
// at build time and the runtime configuration pointing at it.
type ModelArtifact struct {
	// URL is the fixed download location of the model binary.
	URL string `json:"url"`

	// Path is the absolute in-image path the binary is materialized at.
	Path string `json:"path"`

	// EnvVar is the environment variable name published in the image,
	// read by the launched process to locate the model file.
	EnvVar string `json:"envVar"`
}

// Validate checks that all ModelArtifact fields are populated and that the
// URL uses an HTTP(S) scheme. Path existence is deliberately not checked —
// the path refers to a location inside the image, not on the host.
func (m *ModelArtifact) Validate() error {
	if m.URL == "" {
		return fmt.Errorf("model artifact: URL must not be empty")
	}
	if !strings.HasPrefix(m.URL, "http://") && !strings.HasPrefix(m.URL, "https://") {
		return fmt.Errorf("model artifact: URL %q must use http:// or https://", m.URL)
	}
	if m.Path == "" {
		return fmt.Errorf("model artifact: in-image path must not be empty")
	}
	if !strings.HasPrefix(m.Path, "/") {
		return fmt.Errorf("model artifact: in-image path %q must be absolute", m.Path)
	}
	if m.EnvVar == "" {
		return fmt.Errorf("model artifact: environment variable name must not be empty")
	}
	return nil
}

// FileName returns the base name of the artifact's in-image path,
// e.g. "ggml-gpt4all-j-v1.3-groovy.bin".
func (m *ModelArtifact) FileName() string {
	idx := strings.LastIndex(m.Path, "/")
	return m.Path[idx+1:]
}

// Dir returns the in-image directory the artifact is materialized in,
// e.g. "/models". This is the directory the pipeline creates before
// fetching the binary into it.
func (m *ModelArtifact) Dir() string {
	idx := strings.LastIndex(m.Path, "/")
	if idx <= 0 {
		return "/"
	}
	return m.Path[:idx]
}

// FetchedArtifact describes a model binary that has been materialized on
// the host (in the artifact cache) and is ready to be copied into an image.
type FetchedArtifact struct {
	// LocalPath is the absolute host path of the fetched file.
	LocalPath string `json:"localPath"`

	// Size is the file size in bytes. Always non-zero for a successful
	// fetch — a zero-byte download is treated as a fetch failure.
	Size int64 `json:"size"`

	// Digest is the sha256 digest of the fetched bytes. Recorded for
	// provenance only; the pipeline performs no checksum verification
	// against an expected value.
	Digest digest.Digest `json:"digest"`

	// FromCache reports whether the artifact was served from the local
	// cache instead of the network.
	FromCache bool `json:"fromCache"`
}

// BuildResult summarizes a successful run of the build pipeline.
type BuildResult struct {
	// BuildID is a UUID generated per build invocation. It is stamped
	// onto the image as a label so deployments can be traced back to
	// the build that produced them.
	BuildID string `json:"buildId"`

	// ImageID is the Docker image ID (sha256-prefixed) of the built image.
	ImageID string `json:"imageId"`

	// Tag is the image reference the build was tagged with.
	Tag string `json:"tag"`

	// Artifact is the model binary that was baked into the image.
	Artifact FetchedArtifact `json:"artifact"`

	// Duration is the wall-clock time of the whole pipeline.
	Duration time.Duration `json:"duration"`

	// CreatedAt is the timestamp when the build completed.
	CreatedAt time.Time `json:"createdAt"`
}

// Deployment represents a named model-serving container created from a
// built image. This is the primary aggregate entity in the domain.
//
// All fields are reconstructed at runtime from Docker container labels
// (see the label schema in internal/docker). There is no persistent
// state file on disk.
type Deployment struct {
	// Name is the unique identifier for this deployment.
	// Must contain only alphanumeric characters and hyphens.
	Name string `json:"name"`

	// Image is the image reference the container was created from.
	Image string `json:"image"`

	// BuildID is the UUID of the build that produced the image.
	BuildID string `json:"buildId"`

	// HostPort is the host port published for the serving endpoint.
	HostPort int `json:"hostPort"`

	// ContainerPort is the port the server binds inside the container.
	ContainerPort int `json:"containerPort"`

	// ModelURL is the fixed URL the model binary was fetched from.
	ModelURL string `json:"modelUrl"`

	// ModelPath is the in-image path of the model binary.
	ModelPath string `json:"modelPath"`

	// ModelDigest is the recorded sha256 digest of the model binary.
	// May be empty for containers created before digest recording existed.
	ModelDigest string `json:"modelDigest,omitempty"`

	// Status is the current lifecycle state of the deployment.
	Status DeploymentStatus `json:"status"`

	// Containers holds information about the Docker container(s) backing
	// this deployment. A deployment normally has exactly one container.
	Containers []ContainerInfo `json:"containers,omitempty"`

	// CreatedAt is the timestamp when this deployment was created.
	CreatedAt time.Time `json:"createdAt"`
}

// Endpoint returns the host-side URL of the serving endpoint,
// e.g. "http://localhost:8000".
func (d *Deployment) Endpoint() string {
	return fmt.Sprintf("http://localhost:%d", d.HostPort)
}

// nameRegex validates deployment names: alphanumeric + hyphens only,
// must start and end with alphanumeric.
var nameRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9-]*[a-zA-Z0-9]$|^[a-zA-Z0-9]$`)

// ValidateName checks if the given name is a valid deployment name.
// Valid names contain only alphanumeric characters and hyphens,
// and must start/end with an alphanumeric character.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("deployment name must not be empty")
	}
	if !nameRegex.MatchString(name) {
		return fmt.Errorf("invalid deployment name %q: must contain only alphanumeric characters and hyphens, and start/end with alphanumeric", name)
	}
	return nil
}

// ValidatePort checks that a port number is usable for publishing the
// serving endpoint. Host ports below 1024 are rejected because binding
// them requires elevated privileges.
func ValidatePort(port int) error {
	if port < 1024 || port > 65535 {
		return fmt.Errorf("port %d out of range (1024-65535)", port)
	}
	return nil
}

// ContainerInfo holds runtime information about a Docker container.
// This data is fetched dynamically from the Docker API, not persisted.
type ContainerInfo struct {
	// ContainerID is the unique Docker container identifier (SHA-256 hash prefix).
	ContainerID string `json:"containerId"`

	// ContainerName is the human-readable Docker container name.
	ContainerName string `json:"containerName"`

	// ImageID is the ID of the image the container was created from.
	ImageID string `json:"imageId,omitempty"`

	// Status is the Docker container status (e.g., "running", "exited", "created").
	Status string `json:"status"`

	// Labels is the full set of Docker labels on the container.
	// Includes modelpack management labels (modelpack.* prefix).
	Labels map[string]string `json:"labels,omitempty"`
}

// ExitCode defines standard CLI exit codes. These codes allow scripts and
// CI systems to programmatically determine the outcome of a command.
type ExitCode int

const (
	// ExitSuccess indicates the command completed successfully.
	ExitSuccess ExitCode = 0

	// ExitGeneralError indicates an unspecified error occurred.
	ExitGeneralError ExitCode = 1

	// ExitConfigError indicates the pipeline configuration file is
	// missing or invalid.
	ExitConfigError ExitCode = 2

	// ExitDockerNotRunning indicates the Docker daemon is not accessible.
	ExitDockerNotRunning ExitCode = 3

	// ExitManifestError indicates the dependency manifest is missing,
	// unreadable, or empty.
	ExitManifestError ExitCode = 4

	// ExitFetchFailed indicates the model artifact download failed.
	ExitFetchFailed ExitCode = 5

	// ExitBuildFailed indicates the image build was rejected by the
	// Docker daemon (e.g., the dependency installer failed).
	ExitBuildFailed ExitCode = 6

	// ExitDeploymentNotFound indicates the specified deployment
	// does not exist.
	ExitDeploymentNotFound ExitCode = 7

	// ExitVerifyFailed indicates the built image does not match its
	// declared configuration.
	ExitVerifyFailed ExitCode = 8

	// ExitPortUnavailable indicates the requested host port is already
	// bound by another process.
	ExitPortUnavailable ExitCode = 9
)

// CLIError is a custom error type that carries an exit code.
// This allows the CLI layer to translate domain errors into
// appropriate process exit codes.
type CLIError struct {
	// Code is the exit code to return to the OS.
	Code ExitCode

	// Message is the human-readable error description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error satisfies the error interface. It returns the human-readable
// error message, optionally including the underlying error.
func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
// This follows Go's error wrapping convention introduced in Go 1.13.
func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a new CLIError with the given exit code and message.
func NewCLIError(code ExitCode, message string) *CLIError {
	return &CLIError{Code: code, Message: message}
}

// WrapCLIError creates a new CLIError that wraps an existing error.
func WrapCLIError(code ExitCode, message string, err error) *CLIError {
	return &CLIError{Code: code, Message: message, Err: err}
}

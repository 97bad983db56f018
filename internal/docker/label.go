package docker

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mmr-tortoise/modelpack/internal/model"
)

// Label key constants define the Docker label keys used to persist
// deployment metadata on containers and build metadata on images. These
// labels serve as the sole persistence mechanism — there is no external
// state file.
//
// All keys share the "modelpack." prefix to namespace them and avoid
// collisions with labels set by other tools.
const (
	// LabelPrefix is the common prefix for all modelpack labels.
	LabelPrefix = "modelpack."

	// LabelManagedBy identifies containers and images managed by
	// modelpack. This is the primary label used for filtering and
	// discovery. Key: "modelpack.managed-by", Value: always "modelpack".
	LabelManagedBy = LabelPrefix + "managed-by"

	// LabelName stores the deployment's unique identifier.
	LabelName = LabelPrefix + "name"

	// LabelImage stores the image reference the container was created from.
	LabelImage = LabelPrefix + "image"

	// LabelBuildID stores the UUID of the build that produced the image.
	// Present on both the image and every container created from it.
	LabelBuildID = LabelPrefix + "build-id"

	// LabelHostPort stores the published host port of the serving endpoint.
	LabelHostPort = LabelPrefix + "host-port"

	// LabelContainerPort stores the port the server binds inside the
	// container.
	LabelContainerPort = LabelPrefix + "container-port"

	// LabelModelURL stores the fixed URL the model binary was fetched from.
	LabelModelURL = LabelPrefix + "model-url"

	// LabelModelPath stores the in-image path of the model binary.
	LabelModelPath = LabelPrefix + "model-path"

	// LabelModelDigest stores the recorded sha256 digest of the model
	// binary. Provenance only — never verified at runtime.
	LabelModelDigest = LabelPrefix + "model-digest"

	// LabelModelSize stores the model binary size in bytes. The
	// artifact-presence property (non-zero size) is checked against this
	// by the verify command.
	LabelModelSize = LabelPrefix + "model-size"

	// LabelCreatedAt stores the ISO-8601 timestamp of creation.
	// Value: RFC3339 formatted timestamp.
	LabelCreatedAt = LabelPrefix + "created-at"
)

// ManagedByValue is the constant value for the LabelManagedBy label.
const ManagedByValue = "modelpack"

// BuildImageLabels constructs the label map stamped onto a built image.
// These labels record the build's provenance: which build produced the
// image, what model binary was baked in, and when. The verify command
// reads them back to check the artifact-presence property.
func BuildImageLabels(buildID string, art model.ModelArtifact, fetched model.FetchedArtifact, createdAt time.Time) map[string]string {
	return map[string]string{
		LabelManagedBy:   ManagedByValue,
		LabelBuildID:     buildID,
		LabelModelURL:    art.URL,
		LabelModelPath:   art.Path,
		LabelModelDigest: fetched.Digest.String(),
		LabelModelSize:   strconv.FormatInt(fetched.Size, 10),
		LabelCreatedAt:   createdAt.UTC().Format(time.RFC3339),
	}
}

// BuildLabels constructs a Docker label map from a Deployment. These
// labels are applied to the serving container, allowing full
// reconstruction of the Deployment from container inspection alone.
func BuildLabels(d *model.Deployment) map[string]string {
	labels := map[string]string{
		LabelManagedBy:     ManagedByValue,
		LabelName:          d.Name,
		LabelImage:         d.Image,
		LabelHostPort:      strconv.Itoa(d.HostPort),
		LabelContainerPort: strconv.Itoa(d.ContainerPort),
		LabelModelURL:      d.ModelURL,
		LabelModelPath:     d.ModelPath,
		LabelCreatedAt:     d.CreatedAt.UTC().Format(time.RFC3339),
	}
	// Optional labels are omitted rather than written empty, so parsing
	// can distinguish "absent" from "blank".
	if d.BuildID != "" {
		labels[LabelBuildID] = d.BuildID
	}
	if d.ModelDigest != "" {
		labels[LabelModelDigest] = d.ModelDigest
	}
	return labels
}

// ParseLabels reconstructs a Deployment from Docker container labels.
// This is the inverse of BuildLabels and is used when listing or
// inspecting containers to rebuild the domain model.
//
// Required labels: managed-by, name, image, host-port, container-port,
// model-url, model-path, created-at. Missing required labels cause an
// error. Status and Containers are NOT reconstructed from labels because
// they are determined at runtime from Docker state.
func ParseLabels(labels map[string]string) (*model.Deployment, error) {
	// Check all required keys at once so the error message can list
	// every missing label for easier debugging.
	requiredKeys := []string{
		LabelManagedBy,
		LabelName,
		LabelImage,
		LabelHostPort,
		LabelContainerPort,
		LabelModelURL,
		LabelModelPath,
		LabelCreatedAt,
	}

	var missing []string
	for _, key := range requiredKeys {
		if _, ok := labels[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required Docker labels: %s", strings.Join(missing, ", "))
	}

	if labels[LabelManagedBy] != ManagedByValue {
		return nil, fmt.Errorf(
			"label %s has unexpected value %q (expected %q)",
			LabelManagedBy, labels[LabelManagedBy], ManagedByValue,
		)
	}

	hostPort, err := strconv.Atoi(labels[LabelHostPort])
	if err != nil {
		return nil, fmt.Errorf("invalid label %s: %w", LabelHostPort, err)
	}

	containerPort, err := strconv.Atoi(labels[LabelContainerPort])
	if err != nil {
		return nil, fmt.Errorf("invalid label %s: %w", LabelContainerPort, err)
	}

	createdAt, err := time.Parse(time.RFC3339, labels[LabelCreatedAt])
	if err != nil {
		return nil, fmt.Errorf("invalid label %s: %w", LabelCreatedAt, err)
	}

	return &model.Deployment{
		Name:          labels[LabelName],
		Image:         labels[LabelImage],
		BuildID:       labels[LabelBuildID],
		HostPort:      hostPort,
		ContainerPort: containerPort,
		ModelURL:      labels[LabelModelURL],
		ModelPath:     labels[LabelModelPath],
		ModelDigest:   labels[LabelModelDigest],
		CreatedAt:     createdAt,
	}, nil
}

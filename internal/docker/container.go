// container.go implements Docker container lifecycle operations for
// modelpack deployments: creating the serving container with its port
// binding and environment, and listing, starting, stopping, and removing
// labeled containers.
//
// All managed containers are identified by the "modelpack.managed-by"
// label, which enables filtering them from unrelated containers on the
// same host. Labels are the sole persistence mechanism — a Deployment is
// reconstructed entirely from container inspection.
package docker

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/go-connections/nat"

	"github.com/mmr-tortoise/modelpack/internal/model"
)

// ListManagedContainers queries the Docker daemon for all containers that
// have the "modelpack.managed-by=modelpack" label. It returns a slice of
// ContainerInfo representing each managed container, including stopped
// ones.
//
// This function is the primary entry point for discovering what
// deployments currently exist. The All flag matters: a deployment may
// have a stopped container that still needs to be tracked for
// "modelpack list" or "modelpack remove".
func ListManagedContainers(ctx context.Context, cli *Client) ([]model.ContainerInfo, error) {
	// Filtering happens server-side in the daemon, which is cheaper than
	// listing everything and filtering in Go.
	filterArgs := filters.NewArgs(
		filters.Arg("label", LabelManagedBy+"="+ManagedByValue),
	)

	containers, err := cli.Inner().ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filterArgs,
	})
	if err != nil {
		return nil, model.WrapCLIError(
			model.ExitDockerNotRunning,
			"failed to list Docker containers",
			err,
		)
	}

	result := make([]model.ContainerInfo, 0, len(containers))
	for _, c := range containers {
		result = append(result, containerToInfo(c))
	}

	return result, nil
}

// containerToInfo converts a Docker API container summary to our domain
// model ContainerInfo. This is a pure mapping function with no side
// effects; it decouples the rest of the application from SDK types.
func containerToInfo(c container.Summary) model.ContainerInfo {
	// Docker returns names as a slice, each with a leading "/" that is
	// an artifact of the API, not meaningful to users.
	name := ""
	if len(c.Names) > 0 {
		name = strings.TrimPrefix(c.Names[0], "/")
	}

	return model.ContainerInfo{
		ContainerID:   c.ID,
		ContainerName: name,
		ImageID:       c.ImageID,
		Status:        c.State,
		Labels:        c.Labels,
	}
}

// GroupContainersByName groups a slice of ContainerInfo by their
// "modelpack.name" label value. Containers without the label are
// silently skipped, since they cannot be attributed to any deployment —
// which should not happen given that ListManagedContainers already
// filters on the management label.
func GroupContainersByName(containers []model.ContainerInfo) map[string][]model.ContainerInfo {
	groups := make(map[string][]model.ContainerInfo)

	for _, c := range containers {
		name, ok := c.Labels[LabelName]
		if !ok || name == "" {
			continue
		}
		groups[name] = append(groups[name], c)
	}

	return groups
}

// BuildDeployment constructs a Deployment domain object from the group of
// containers that carry its name label.
//
// It uses ParseLabels on the first container's labels to extract the base
// deployment metadata. The overall status is determined by:
//  1. If the backing image no longer exists on the host → orphaned
//  2. If any container has status "running" → running
//  3. Otherwise → stopped
//
// Returns an error if the containers slice is empty or label parsing fails.
func BuildDeployment(ctx context.Context, cli *Client, name string, containers []model.ContainerInfo) (*model.Deployment, error) {
	if len(containers) == 0 {
		return nil, fmt.Errorf("cannot build deployment %q: no containers provided", name)
	}

	// A deployment normally has exactly one container; all containers in
	// the same group carry identical modelpack labels, so the first one
	// is sufficient.
	dep, err := ParseLabels(containers[0].Labels)
	if err != nil {
		return nil, fmt.Errorf("failed to parse labels for deployment %q: %w", name, err)
	}

	dep.Containers = containers
	dep.Status = determineStatus(ctx, cli, containers, dep.Image)

	return dep, nil
}

// determineStatus calculates the aggregate status of a deployment based
// on its containers' states and whether the backing image still exists.
//
// The lifecycle model is:
//
//	[built] → Running → Stopped ⇄ Running → [Removed]
//	Running/Stopped → Orphaned (when the image is removed manually)
func determineStatus(ctx context.Context, cli *Client, containers []model.ContainerInfo, imageRef string) model.DeploymentStatus {
	if !ImageExists(ctx, cli, imageRef) {
		return model.StatusOrphaned
	}

	for _, c := range containers {
		if c.Status == "running" {
			return model.StatusRunning
		}
	}

	return model.StatusStopped
}

// CreateServerContainer creates (but does not start) the serving
// container for a deployment: the built image, the deployment labels,
// and the single published port binding host:container on all interfaces.
//
// The image's baked-in ENV and CMD are deliberately not overridden — the
// launch command and model path were registered at build time and the
// container only adds the port binding. The returned string is the new
// container's ID.
func CreateServerContainer(ctx context.Context, cli *Client, dep *model.Deployment) (string, error) {
	port, err := nat.NewPort("tcp", strconv.Itoa(dep.ContainerPort))
	if err != nil {
		return "", model.WrapCLIError(
			model.ExitGeneralError,
			fmt.Sprintf("invalid container port %d", dep.ContainerPort),
			err,
		)
	}

	config := &container.Config{
		Image:        dep.Image,
		Labels:       BuildLabels(dep),
		ExposedPorts: nat.PortSet{port: struct{}{}},
	}

	// The server binds all interfaces inside the container; the host
	// binding mirrors that so the endpoint is reachable the same way the
	// original deployment exposed it.
	hostConfig := &container.HostConfig{
		PortBindings: nat.PortMap{
			port: []nat.PortBinding{
				{HostIP: "0.0.0.0", HostPort: strconv.Itoa(dep.HostPort)},
			},
		},
		RestartPolicy: container.RestartPolicy{Name: container.RestartPolicyDisabled},
	}

	containerName := "modelpack-" + dep.Name
	resp, err := cli.Inner().ContainerCreate(ctx, config, hostConfig, nil, nil, containerName)
	if err != nil {
		return "", model.WrapCLIError(
			model.ExitGeneralError,
			fmt.Sprintf("failed to create container %q", containerName),
			err,
		)
	}

	return resp.ID, nil
}

// StartContainer starts a container by its ID using the Docker SDK.
// Used both to launch a freshly created serving container and to restart
// a previously stopped deployment.
func StartContainer(ctx context.Context, cli *Client, containerID string) error {
	err := cli.Inner().ContainerStart(ctx, containerID, container.StartOptions{})
	if err != nil {
		return model.WrapCLIError(
			model.ExitDockerNotRunning,
			fmt.Sprintf("failed to start container %q", containerID),
			err,
		)
	}
	return nil
}

// StopContainer stops a running container by its ID. The daemon sends
// SIGTERM and escalates to SIGKILL after its default timeout, giving the
// server process a chance to shut down gracefully.
func StopContainer(ctx context.Context, cli *Client, containerID string) error {
	err := cli.Inner().ContainerStop(ctx, containerID, container.StopOptions{})
	if err != nil {
		return model.WrapCLIError(
			model.ExitDockerNotRunning,
			fmt.Sprintf("failed to stop container %q", containerID),
			err,
		)
	}
	return nil
}

// RemoveContainer removes a container by its ID. The container must be
// stopped first unless force is true, in which case the daemon kills it
// before removal.
func RemoveContainer(ctx context.Context, cli *Client, containerID string, force bool) error {
	err := cli.Inner().ContainerRemove(ctx, containerID, container.RemoveOptions{
		Force: force,
	})
	if err != nil {
		return model.WrapCLIError(
			model.ExitDockerNotRunning,
			fmt.Sprintf("failed to remove container %q", containerID),
			err,
		)
	}
	return nil
}

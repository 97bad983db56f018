// image.go implements Docker image operations for the build pipeline:
// building the model server image from a tar context, inspecting the
// built image's declared configuration, and removing images.
//
// Building goes through the Docker Engine build API with a caller-supplied
// tar stream (assembled by internal/buildctx). The daemon reports progress
// as a JSON message stream; any error message in that stream fails the
// build with no tag applied, so a failed pipeline never produces a
// runnable image.
package docker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/docker/docker/api/types/build"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/pkg/jsonmessage"

	"github.com/mmr-tortoise/modelpack/internal/model"
)

// LogFunc receives human-readable build progress lines. The CLI passes
// its verbose logger; a nil LogFunc discards progress output.
type LogFunc func(format string, args ...interface{})

// BuildImage builds an image from the given tar build context, tags it,
// and stamps it with the given labels. It returns the image ID of the
// built image.
//
// The whole pipeline's fail-fast semantics apply: any failure reported by
// the daemon (base image pull failure, dependency installer exit, COPY of
// a missing file) aborts the build with ExitBuildFailed and no image is
// tagged. There is no retry and no partial-success path.
func BuildImage(ctx context.Context, cli *Client, buildContext io.Reader, tag string, labels map[string]string, logf LogFunc) (string, error) {
	resp, err := cli.Inner().ImageBuild(ctx, buildContext, build.ImageBuildOptions{
		Tags:        []string{tag},
		Labels:      labels,
		Dockerfile:  "Dockerfile",
		Remove:      true,
		ForceRemove: true,
	})
	if err != nil {
		return "", model.WrapCLIError(
			model.ExitBuildFailed,
			fmt.Sprintf("Docker daemon rejected the image build for %q", tag),
			err,
		)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := drainBuildOutput(resp.Body, logf); err != nil {
		return "", err
	}

	// The daemon applied the tag only if the build succeeded; resolve the
	// tag to the image ID for the build record.
	inspected, err := InspectImage(ctx, cli, tag)
	if err != nil {
		return "", model.WrapCLIError(
			model.ExitBuildFailed,
			fmt.Sprintf("built image %q is not inspectable", tag),
			err,
		)
	}
	return inspected.ID, nil
}

// drainBuildOutput consumes the daemon's JSON progress stream, forwarding
// human-readable lines to logf and converting an in-stream error message
// into a build failure.
func drainBuildOutput(body io.Reader, logf LogFunc) error {
	dec := json.NewDecoder(body)
	for {
		var msg jsonmessage.JSONMessage
		if err := dec.Decode(&msg); err != nil {
			if err == io.EOF {
				return nil
			}
			return model.WrapCLIError(
				model.ExitBuildFailed,
				"failed to decode Docker build output",
				err,
			)
		}

		if msg.Error != nil {
			return model.WrapCLIError(
				model.ExitBuildFailed,
				"image build failed",
				msg.Error,
			)
		}

		if logf != nil {
			if line := strings.TrimRight(msg.Stream, "\n"); line != "" {
				logf("%s", line)
			}
			if msg.Status != "" {
				logf("%s", msg.Status)
			}
		}
	}
}

// ImageConfig is the declared configuration of a built image, decoupled
// from the Docker SDK's inspect types. The verify command checks these
// fields against the pipeline's contract.
type ImageConfig struct {
	// ID is the image ID (sha256-prefixed).
	ID string

	// Env is the image's environment, one "KEY=VALUE" entry per variable.
	Env []string

	// Cmd is the registered launch command in exec form.
	Cmd []string

	// ExposedPorts lists the declared ports in "port/proto" form, sorted.
	ExposedPorts []string

	// WorkingDir is the image's working directory.
	WorkingDir string

	// Labels is the image's label map.
	Labels map[string]string
}

// EnvValue looks up the value of the named environment variable in the
// image config. The second return reports whether the variable is set.
func (c *ImageConfig) EnvValue(name string) (string, bool) {
	prefix := name + "="
	for _, entry := range c.Env {
		if strings.HasPrefix(entry, prefix) {
			return entry[len(prefix):], true
		}
	}
	return "", false
}

// InspectImage fetches the declared configuration of an image by
// reference (tag or ID).
func InspectImage(ctx context.Context, cli *Client, ref string) (*ImageConfig, error) {
	inspected, err := cli.Inner().ImageInspect(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect image %q: %w", ref, err)
	}

	cfg := &ImageConfig{ID: inspected.ID}
	if inspected.Config != nil {
		cfg.Env = inspected.Config.Env
		cfg.Cmd = inspected.Config.Cmd
		cfg.WorkingDir = inspected.Config.WorkingDir
		cfg.Labels = inspected.Config.Labels
		for port := range inspected.Config.ExposedPorts {
			cfg.ExposedPorts = append(cfg.ExposedPorts, string(port))
		}
		// The ExposedPorts map has no deterministic iteration order.
		sort.Strings(cfg.ExposedPorts)
	}
	return cfg, nil
}

// ImageExists reports whether an image with the given reference exists
// on the host. Used to detect orphaned deployments whose backing image
// was removed behind modelpack's back.
func ImageExists(ctx context.Context, cli *Client, ref string) bool {
	_, err := cli.Inner().ImageInspect(ctx, ref)
	return err == nil
}

// RemoveImage removes an image by reference. When force is true the
// image is removed even if tagged in multiple repositories.
func RemoveImage(ctx context.Context, cli *Client, ref string, force bool) error {
	_, err := cli.Inner().ImageRemove(ctx, ref, image.RemoveOptions{
		Force:         force,
		PruneChildren: true,
	})
	if err != nil {
		return model.WrapCLIError(
			model.ExitGeneralError,
			fmt.Sprintf("failed to remove image %q", ref),
			err,
		)
	}
	return nil
}

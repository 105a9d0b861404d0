package server

import (
	"context"
	"fmt"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/sirupsen/logrus"
)

// DockerInstanceProvider runs the backend as a local container that is started, unpaused and stopped
type DockerInstanceProvider struct {
	client      client.ContainerAPIClient
	stopTimeout int
}

func dockerApiVersionOpt(apiVersion string) client.Opt {
	if apiVersion != "" {
		logrus.WithField("apiVersion", apiVersion).Debug("Using specific Docker API version")
		return client.WithVersion(apiVersion)
	} else {
		logrus.Debug("Using Docker API version negotiation")
		return client.WithAPIVersionNegotiation()
	}
}

func NewDockerInstanceProvider(config *DockerConfig) (*DockerInstanceProvider, error) {
	opts := []client.Opt{
		client.WithHost(config.Socket),
		client.WithTimeout(config.Timeout),
		client.WithHTTPHeaders(map[string]string{
			"User-Agent": "managed-minecraft-server",
		}),
		dockerApiVersionOpt(config.ApiVersion),
	}

	dockerClient, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("could not create docker client: %w", err)
	}

	return NewDockerInstanceProviderWithClient(dockerClient, config.StopTimeout), nil
}

func NewDockerInstanceProviderWithClient(dockerClient client.ContainerAPIClient, stopTimeout int) *DockerInstanceProvider {
	return &DockerInstanceProvider{
		client:      dockerClient,
		stopTimeout: stopTimeout,
	}
}

func (d *DockerInstanceProvider) Start(ctx context.Context, containerID string) error {
	if containerID == "" {
		return fmt.Errorf("missing container id for start")
	}
	inspect, err := d.client.ContainerInspect(ctx, containerID)
	if err != nil {
		return err
	}
	if inspect.ContainerJSONBase == nil || inspect.State == nil {
		return fmt.Errorf("unable to determine container state")
	}

	// If paused, unpause; if not running, start; otherwise no-op
	if inspect.State.Paused {
		logrus.WithField("containerID", containerID).Info("Unpausing container")
		return d.client.ContainerUnpause(ctx, containerID)
	} else if !inspect.State.Running {
		logrus.WithField("containerID", containerID).Info("Starting container")
		return d.client.ContainerStart(ctx, containerID, container.StartOptions{})
	}
	logrus.WithField("containerID", containerID).Debug("Container already running")
	return nil
}

func (d *DockerInstanceProvider) Stop(ctx context.Context, containerID string) error {
	if containerID == "" {
		return fmt.Errorf("missing container id for stop")
	}
	inspect, err := d.client.ContainerInspect(ctx, containerID)
	if err != nil {
		return err
	}
	if inspect.ContainerJSONBase == nil || inspect.State == nil || !inspect.State.Running {
		logrus.WithField("containerID", containerID).Debug("Container already stopped")
		return nil
	}

	timeout := d.stopTimeout
	logrus.
		WithField("containerID", containerID).
		WithField("timeout", timeout).
		Info("Stopping container")
	return d.client.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeout})
}

package server

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// InstanceProvider starts and stops the machine or workload hosting the backend.
// Both calls must be safe to repeat against an instance already in the requested state.
type InstanceProvider interface {
	Start(ctx context.Context, instanceID string) error
	Stop(ctx context.Context, instanceID string) error
}

const (
	InstanceProviderNone       = "none"
	InstanceProviderDocker     = "docker"
	InstanceProviderKubernetes = "kubernetes"
	InstanceProviderHetzner    = "hetzner"
)

// NewInstanceProvider creates the provider named in config.Instance.Provider
func NewInstanceProvider(config *Config) (InstanceProvider, error) {
	switch strings.ToLower(config.Instance.Provider) {
	case InstanceProviderNone, "":
		return &noopInstanceProvider{}, nil
	case InstanceProviderDocker:
		return NewDockerInstanceProvider(&config.Docker)
	case InstanceProviderKubernetes, "k8s":
		if config.Kube.InCluster {
			return NewKubernetesInstanceProviderInCluster(config.Kube.Namespace)
		}
		return NewKubernetesInstanceProviderWithConfig(config.Kube.Config, config.Kube.Namespace)
	case InstanceProviderHetzner:
		if config.Hetzner.Token == "" {
			return nil, errors.New("hetzner instance provider requires a token")
		}
		return NewHetznerInstanceProvider(config.Hetzner.BaseUrl, config.Hetzner.Token), nil
	default:
		return nil, errors.Errorf("unknown instance provider %q", config.Instance.Provider)
	}
}

// noopInstanceProvider is used when something else owns the backend's lifecycle
// and the front end only has to wait for it to answer
type noopInstanceProvider struct{}

func (n *noopInstanceProvider) Start(_ context.Context, instanceID string) error {
	logrus.WithField("instance", instanceID).Debug("No instance provider configured, not starting")
	return nil
}

func (n *noopInstanceProvider) Stop(_ context.Context, instanceID string) error {
	logrus.WithField("instance", instanceID).Debug("No instance provider configured, not stopping")
	return nil
}

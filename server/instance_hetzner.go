package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// HetznerInstanceProvider powers a Hetzner Cloud server on and shuts it down gracefully
type HetznerInstanceProvider struct {
	endpoint string
	client   *hcloud.Client
}

func NewHetznerInstanceProvider(endpoint string, token string) *HetznerInstanceProvider {
	endpoint = strings.TrimSuffix(endpoint, "/")
	options := []hcloud.ClientOption{
		hcloud.WithToken(token),
		hcloud.WithApplication("managed-minecraft-server", ""),
		hcloud.WithHTTPClient(&http.Client{Timeout: 30 * time.Second}),
		hcloud.WithPollOpts(hcloud.PollOpts{BackoffFunc: hcloud.ConstantBackoff(2 * time.Second)}),
	}
	if endpoint != "" {
		options = append(options, hcloud.WithEndpoint(endpoint))
	}
	return &HetznerInstanceProvider{
		endpoint: endpoint,
		client:   hcloud.NewClient(options...),
	}
}

func (p *HetznerInstanceProvider) Start(ctx context.Context, serverID string) error {
	return p.serverAction(ctx, serverID, "poweron", p.client.Server.Poweron)
}

// Stop sends an ACPI shutdown so the Minecraft server can save the world
func (p *HetznerInstanceProvider) Stop(ctx context.Context, serverID string) error {
	return p.serverAction(ctx, serverID, "shutdown", p.client.Server.Shutdown)
}

type hetznerServerAction func(ctx context.Context, server *hcloud.Server) (*hcloud.Action, *hcloud.Response, error)

// serverAction requests the action and waits for Hetzner to report it finished
func (p *HetznerInstanceProvider) serverAction(ctx context.Context, serverID string, name string, request hetznerServerAction) error {
	if serverID == "" {
		return errors.Errorf("missing server id for %s", name)
	}
	id, err := strconv.ParseInt(serverID, 10, 64)
	if err != nil {
		return errors.Wrapf(err, "invalid server id %q", serverID)
	}

	action, _, err := request(ctx, &hcloud.Server{ID: id})
	if err != nil {
		return errors.Wrapf(err, "failed to %s server %d", name, id)
	}

	logrus.
		WithField("serverID", id).
		WithField("action", name).
		WithField("actionID", action.ID).
		Debug("Requested Hetzner server action")

	if err := p.client.Action.WaitFor(ctx, action); err != nil {
		return errors.Wrapf(err, "%s of server %d did not complete", name, id)
	}

	logrus.
		WithField("serverID", id).
		WithField("action", name).
		Info("Hetzner server action completed")
	return nil
}

package mcproto

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const DefaultStatusTimeout = 5 * time.Second

// StatusClient performs the handshake + status request exchange against a server
type StatusClient struct {
	// Timeout bounds the connect and the whole exchange; zero means DefaultStatusTimeout
	Timeout time.Duration
	// ProtocolVersion is announced in the handshake; -1 is accepted by vanilla servers as "any"
	ProtocolVersion ProtocolVersion
}

func NewStatusClient(timeout time.Duration) *StatusClient {
	return &StatusClient{
		Timeout:         timeout,
		ProtocolVersion: -1,
	}
}

// Query connects to address (host:port), asks for its status and parses the JSON reply.
// The connection is closed before returning on every path.
func (c *StatusClient) Query(ctx context.Context, address string) (*StatusResponse, error) {
	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return nil, errors.Wrap(err, "invalid server address")
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return nil, errors.Wrap(err, "invalid server port")
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultStatusTimeout
	}
	deadline := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}

	conn, err := Dial(ctx, address, timeout)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect")
	}
	//goland:noinspection GoUnhandledErrorResult
	defer conn.Close()

	if err := conn.SetDeadline(deadline); err != nil {
		return nil, errors.Wrap(err, "failed to set deadline")
	}

	err = conn.SendPacket(&Handshake{
		ProtocolVersion: c.ProtocolVersion,
		ServerAddress:   host,
		ServerPort:      uint16(port),
		NextState:       StateStatus,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to send handshake")
	}

	if err := conn.SendPacket(&StatusRequest{}); err != nil {
		return nil, errors.Wrap(err, "failed to send status request")
	}

	status := &StatusResponse{}
	if err := conn.ReceivePacket(status); err != nil {
		return nil, errors.Wrap(err, "failed to read status response")
	}

	logrus.
		WithField("server", address).
		WithField("online", status.Players.Online).
		WithField("max", status.Players.Max).
		WithField("version", status.Version.Name).
		Debug("Queried server status")

	return status, nil
}

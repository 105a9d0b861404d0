package server

import (
	"bytes"
	"context"
	"io"
	"net"

	"github.com/pires/go-proxyproto"
	"github.com/s7tya/managed-minecraft-server/mcproto"
	"github.com/sirupsen/logrus"
)

// spliceToBackend opens a backend connection, replays what was read while routing and
// then relays bytes both ways until either side is done. Only a failure to reach the
// backend is returned, in which case nothing has been consumed from the client beyond
// preReadContent.
func (c *Connector) spliceToBackend(ctx context.Context, conn *mcproto.Conn, preReadContent *bytes.Buffer) error {
	frontendConn := conn.NetConn()
	clientAddr := frontendConn.RemoteAddr()
	backendAddress := c.controller.BackendAddress()

	logrus.
		WithField("client", clientAddr).
		WithField("backend", backendAddress).
		Debug("Connecting to backend")

	dialer := &net.Dialer{Timeout: c.backendDialTimeout}
	backendConn, err := dialer.DialContext(ctx, "tcp", backendAddress)
	if err != nil {
		c.metrics.Errors.With("type", "backend_failed").Add(1)
		return backendUnreachable(err)
	}

	c.metrics.ConnectionsBackend.Add(1)
	c.metrics.ActiveConnections.Add(1)
	defer c.metrics.ActiveConnections.Add(-1)

	if c.sendProxyProto {
		header := proxyproto.HeaderProxyFromAddrs(2, clientAddr, backendConn.RemoteAddr())
		if _, err := header.WriteTo(backendConn); err != nil {
			logrus.
				WithError(err).
				WithField("clientAddr", header.SourceAddr).
				WithField("destAddr", header.DestinationAddr).
				Error("Failed to write PROXY header")
			c.metrics.Errors.With("type", "proxy_write").Add(1)
			_ = backendConn.Close()
			return nil
		}
	}

	amount, err := io.Copy(backendConn, preReadContent)
	if err != nil {
		logrus.WithError(err).Error("Failed to write handshake to backend connection")
		c.metrics.Errors.With("type", "backend_failed").Add(1)
		_ = backendConn.Close()
		return nil
	}
	logrus.WithField("amount", amount).Debug("Relayed handshake to backend")

	if err = frontendConn.SetDeadline(noDeadline); err != nil {
		logrus.
			WithError(err).
			WithField("client", clientAddr).
			Error("Failed to clear deadline")
		c.metrics.Errors.With("type", "read_deadline").Add(1)
		_ = backendConn.Close()
		return nil
	}

	c.pumpConnections(ctx, frontendConn, backendConn)
	return nil
}

// pumpConnections relays until the first direction finishes, then closes the backend side.
// The caller closes the frontend, which unblocks the other direction.
func (c *Connector) pumpConnections(ctx context.Context, frontendConn, backendConn net.Conn) {
	//noinspection GoUnhandledErrorResult
	defer backendConn.Close()

	clientAddr := frontendConn.RemoteAddr()
	defer logrus.WithField("client", clientAddr).Debug("Closing backend connection")

	errors := make(chan error, 2)

	go c.pumpFrames(backendConn, frontendConn, errors, "backend", "frontend", clientAddr)
	go c.pumpFrames(frontendConn, backendConn, errors, "frontend", "backend", clientAddr)

	select {
	case err := <-errors:
		if err != io.EOF {
			logrus.WithError(err).
				WithField("client", clientAddr).
				Debug("Error observed on connection relay")
			c.metrics.Errors.With("type", "relay").Add(1)
		}

	case <-ctx.Done():
		logrus.Debug("Observed context cancellation")
	}
}

func (c *Connector) pumpFrames(incoming io.Reader, outgoing io.Writer, errors chan<- error, from, to string, clientAddr net.Addr) {
	amount, err := io.Copy(outgoing, incoming)
	logrus.
		WithField("client", clientAddr).
		WithField("amount", amount).
		Debugf("Finished relay %s->%s", from, to)

	c.metrics.BytesTransmitted.Add(float64(amount))

	if err != nil {
		errors <- err
	} else {
		// successful io.Copy return nil error, not EOF...to simulate that to trigger outer handling
		errors <- io.EOF
	}
}

package server

import (
	"bytes"
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/juju/ratelimit"
	"github.com/pires/go-proxyproto"
	"github.com/s7tya/managed-minecraft-server/mcproto"
	"github.com/sirupsen/logrus"
	"golang.ngrok.com/ngrok"
	"golang.ngrok.com/ngrok/config"
)

const (
	handshakeTimeout = 5 * time.Second
	// exchangeTimeout bounds the answer to a status query or a login that is not spliced
	exchangeTimeout = 10 * time.Second
)

var noDeadline time.Time

// Connector is the front end: it accepts client connections, reads the handshake and either
// answers itself or splices the connection to the backend, depending on the controller's state
type Connector struct {
	ctx        context.Context
	metrics    *ConnectorMetrics
	controller *Controller
	asleep     *asleepResponder
	messages   MessagesConfig

	backendDialTimeout time.Duration
	sendProxyProto     bool
	receiveProxyProto  bool
	trustedProxyNets   []*net.IPNet
	clientFilter       *ClientFilter
	allowDeny          *AllowDenyConfig
	ngrokToken         string
	ngrokRemoteAddr    string

	activeConnections sync.WaitGroup
}

func NewConnector(ctx context.Context, metrics *ConnectorMetrics, controller *Controller,
	asleepStatus *AsleepStatus, messages MessagesConfig) *Connector {

	return &Connector{
		ctx:                ctx,
		metrics:            metrics,
		controller:         controller,
		asleep:             newAsleepResponder(asleepStatus),
		messages:           messages,
		backendDialTimeout: 5 * time.Second,
	}
}

func (c *Connector) UseSendProxyProto(sendProxyProto bool) {
	c.sendProxyProto = sendProxyProto
}

func (c *Connector) UseReceiveProxyProto(trustedProxyNets []*net.IPNet) {
	c.receiveProxyProto = true
	c.trustedProxyNets = trustedProxyNets
}

func (c *Connector) UseClientFilter(clientFilter *ClientFilter) {
	c.clientFilter = clientFilter
}

// UseAllowDeny makes a dormant backend wake only for allowed players, which requires
// reading their LoginStart
func (c *Connector) UseAllowDeny(allowDeny *AllowDenyConfig) {
	c.allowDeny = allowDeny
}

func (c *Connector) UseNgrok(ngrokConfig NgrokConfig) {
	c.ngrokToken = ngrokConfig.Token
	c.ngrokRemoteAddr = ngrokConfig.RemoteAddr
}

func (c *Connector) UseBackendDialTimeout(timeout time.Duration) {
	if timeout > 0 {
		c.backendDialTimeout = timeout
	}
}

func (c *Connector) StartAcceptingConnections(listenAddress string, connRateLimit int) error {
	ln, err := c.createListener(listenAddress)
	if err != nil {
		return err
	}

	go c.acceptConnections(ln, connRateLimit)

	return nil
}

func (c *Connector) createListener(listenAddress string) (net.Listener, error) {
	if c.ngrokToken != "" {
		var endpointOpts []config.TCPEndpointOption
		if c.ngrokRemoteAddr != "" {
			endpointOpts = append(endpointOpts, config.WithRemoteAddr(c.ngrokRemoteAddr))
		}
		ngrokListener, err := ngrok.Listen(c.ctx,
			config.TCPEndpoint(endpointOpts...),
			ngrok.WithAuthtoken(c.ngrokToken),
		)
		if err != nil {
			logrus.WithError(err).Error("Unable to start ngrok tunnel")
			return nil, err
		}
		logrus.WithField("ngrokUrl", ngrokListener.URL()).Info("Listening for Minecraft client connections via ngrok tunnel")
		return ngrokListener, nil
	}

	listener, err := net.Listen("tcp", listenAddress)
	if err != nil {
		logrus.WithError(err).Error("Unable to start listening")
		return nil, err
	}
	logrus.WithField("listenAddress", listenAddress).Info("Listening for Minecraft client connections")

	if c.receiveProxyProto {
		policy := c.createProxyProtoPolicy()
		proxyListener := &proxyproto.Listener{
			Listener: listener,
			ConnPolicy: func(opts proxyproto.ConnPolicyOptions) (proxyproto.Policy, error) {
				return policy(opts.Upstream)
			},
		}
		logrus.Info("Using PROXY protocol listener")
		return proxyListener, nil
	}

	return listener, nil
}

// createProxyProtoPolicy trusts every upstream when no networks are configured
func (c *Connector) createProxyProtoPolicy() func(upstream net.Addr) (proxyproto.Policy, error) {
	return func(upstream net.Addr) (proxyproto.Policy, error) {
		trustedIpNets := c.trustedProxyNets

		if len(trustedIpNets) == 0 {
			logrus.Debug("No trusted proxy networks configured, using the PROXY header by default")
			return proxyproto.USE, nil
		}

		tcpAddr, ok := upstream.(*net.TCPAddr)
		if !ok {
			return proxyproto.IGNORE, nil
		}
		for _, ipNet := range trustedIpNets {
			if ipNet.Contains(tcpAddr.IP) {
				logrus.WithField("upstream", upstream).Debug("IP is in trusted proxies, using the PROXY header")
				return proxyproto.USE, nil
			}
		}

		logrus.WithField("upstream", upstream).Debug("IP is not in trusted proxies, discarding PROXY header")
		return proxyproto.IGNORE, nil
	}
}

func (c *Connector) acceptConnections(ln net.Listener, connRateLimit int) {
	//noinspection GoUnhandledErrorResult
	defer ln.Close()

	go func() {
		<-c.ctx.Done()
		_ = ln.Close()
	}()

	if connRateLimit < 1 {
		connRateLimit = 1
	}
	bucket := ratelimit.NewBucketWithRate(float64(connRateLimit), int64(connRateLimit*2))

	for {
		select {
		case <-c.ctx.Done():
			return

		case <-time.After(bucket.Take(1)):
			c.metrics.RateLimitAvailable.Set(float64(bucket.Available()))
			conn, err := ln.Accept()
			if err != nil {
				if c.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
					return
				}
				logrus.WithError(err).Error("Failed to accept connection")
				c.metrics.Errors.With("type", "accept").Add(1)
			} else {
				c.AcceptConnection(conn)
			}
		}
	}
}

// AcceptConnection handles conn in its own goroutine, skipping rate limiting
func (c *Connector) AcceptConnection(conn net.Conn) {
	c.activeConnections.Add(1)
	go func() {
		defer c.activeConnections.Done()
		c.HandleConnection(c.ctx, conn)
	}()
}

// WaitForConnections blocks until every accepted connection has been handled
func (c *Connector) WaitForConnections() {
	c.activeConnections.Wait()
}

// HandleConnection reads the handshake and routes the connection. Only this connection is
// affected by anything that goes wrong here.
func (c *Connector) HandleConnection(ctx context.Context, frontendConn net.Conn) {
	c.metrics.ConnectionsFrontend.Add(1)
	//noinspection GoUnhandledErrorResult
	defer frontendConn.Close()

	clientAddr := frontendConn.RemoteAddr()
	logger := logrus.WithField("client", clientAddr)

	if !c.clientFilter.AllowAddr(clientAddr) {
		logger.Info("Client filtered")
		c.metrics.Errors.With("type", "client_filtered").Add(1)
		return
	}

	logger.Debug("Got connection")
	defer logger.Debug("Closing frontend connection")

	// everything pulled off the socket while routing is kept, to be replayed to the backend
	inspectionBuffer := new(bytes.Buffer)
	conn := mcproto.NewTeeConn(frontendConn, inspectionBuffer)

	if err := frontendConn.SetReadDeadline(time.Now().Add(handshakeTimeout)); err != nil {
		logger.WithError(err).Error("Failed to set read deadline")
		c.metrics.Errors.With("type", "read_deadline").Add(1)
		return
	}

	packet, err := conn.ReadPacket(mcproto.StateHandshaking)
	if err != nil {
		logger.WithError(err).Error("Failed to read packet")
		c.metrics.Errors.With("type", "read").Add(1)
		return
	}

	if packet.Legacy != nil {
		logger.WithField("handshake", packet.Legacy).Debug("Got legacy server list ping")
		c.handleLegacyPing(ctx, conn, inspectionBuffer)
		return
	}

	decoded, err := mcproto.DecodeServerbound(mcproto.StateHandshaking, packet)
	if err != nil {
		logger.WithError(err).Error("Failed to read handshake")
		c.metrics.Errors.With("type", "read").Add(1)
		return
	}
	handshake := decoded.(*mcproto.Handshake)

	logger.WithField("handshake", handshake).Debug("Got handshake")

	switch handshake.NextState {
	case mcproto.StateStatus:
		c.handleStatus(ctx, conn, inspectionBuffer)
	case mcproto.StateLogin:
		c.handleLogin(ctx, conn, inspectionBuffer, handshake)
	default:
		logger.
			WithError(mcproto.ErrUnsupportedNextState).
			WithField("nextState", handshake.NextState).
			Warn("Dropping connection")
		c.metrics.Errors.With("type", "unsupported_next_state").Add(1)
	}
}

func (c *Connector) handleStatus(ctx context.Context, conn *mcproto.Conn, preReadContent *bytes.Buffer) {
	logger := logrus.WithField("client", conn.RemoteAddr())

	state := c.controller.State()
	if state == Proxying {
		err := c.spliceToBackend(ctx, conn, preReadContent)
		if err == nil {
			return
		}
		// the client still waits for a status; the asleep one is better than none
		logger.WithError(err).Warn("Backend did not take status request, answering it here")
	}

	c.metrics.StatusRequests.Add(1)
	_ = conn.SetDeadline(time.Now().Add(exchangeTimeout))
	if err := c.asleep.respondStatus(conn, state); err != nil {
		logger.WithError(err).Debug("Status exchange ended early")
		return
	}
	logger.WithField("state", state).Debug("Answered status request")
}

func (c *Connector) handleLegacyPing(ctx context.Context, conn *mcproto.Conn, preReadContent *bytes.Buffer) {
	logger := logrus.WithField("client", conn.RemoteAddr())

	if c.controller.State() == Proxying {
		err := c.spliceToBackend(ctx, conn, preReadContent)
		if err == nil {
			return
		}
		logger.WithError(err).Warn("Backend did not take legacy ping, answering it here")
	}

	c.metrics.StatusRequests.Add(1)
	_ = conn.SetDeadline(time.Now().Add(exchangeTimeout))
	if err := c.asleep.respondLegacy(conn); err != nil {
		logger.WithError(err).Error("Failed to write legacy server list response")
		c.metrics.Errors.With("type", "write").Add(1)
	}
}

func (c *Connector) handleLogin(ctx context.Context, conn *mcproto.Conn, preReadContent *bytes.Buffer, handshake *mcproto.Handshake) {
	logger := logrus.WithField("client", conn.RemoteAddr())

	switch state := c.controller.State(); state {
	case Proxying:
		if err := c.spliceToBackend(ctx, conn, preReadContent); err != nil {
			logger.WithError(err).Warn("Unable to connect to backend")
			c.disconnect(conn, c.messages.Unreachable)
		}

	case Dormant:
		var player *PlayerInfo
		if c.allowDeny != nil {
			loginStart := mcproto.NewLoginStart(handshake.ProtocolVersion)
			if err := conn.ReceivePacket(loginStart); err != nil {
				logger.WithError(err).Error("Failed to read login start")
				c.metrics.Errors.With("type", "read").Add(1)
				return
			}
			player = &PlayerInfo{Name: loginStart.Name, Uuid: loginStart.PlayerUuid}
			logger = logger.WithField("player", player.Name)

			if !c.allowDeny.AllowsPlayer(player) {
				logger.Info("Player not allowed to start the server")
				c.disconnect(conn, c.messages.Denied)
				return
			}
		}

		c.metrics.WakeRequests.Add(1)
		switch result := c.controller.RequestStart(ctx, player); result {
		case StartInitiated:
			logger.Info("Backend start initiated by login")
			c.disconnect(conn, c.messages.Reconnect)
		case StartFailed:
			c.disconnect(conn, c.messages.StartFailed)
		default:
			c.disconnect(conn, c.messages.Starting)
		}

	case Starting:
		c.disconnect(conn, c.messages.Starting)

	default:
		logger.WithField("state", state).Debug("Login while not accepting")
		c.disconnect(conn, c.messages.Stopping)
	}
}

// disconnect sends the login disconnect notice, the only way failures reach a client
func (c *Connector) disconnect(conn *mcproto.Conn, message string) {
	_ = conn.SetWriteDeadline(time.Now().Add(exchangeTimeout))
	if err := conn.SendPacket(&mcproto.LoginDisconnect{Reason: mcproto.Text(message)}); err != nil {
		logrus.
			WithError(err).
			WithField("client", conn.RemoteAddr()).
			Debug("Failed to send disconnect")
	}
}

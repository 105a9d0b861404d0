package server

import (
	"context"
	"fmt"
	"net"
	"os"
	"runtime/pprof"
	"strconv"

	"github.com/s7tya/managed-minecraft-server/mcproto"
	"github.com/sirupsen/logrus"
)

type Server struct {
	ctx              context.Context
	config           *Config
	connector        *Connector
	controller       *Controller
	asleepLoader     *asleepConfigLoader
	reloadConfigChan chan struct{}
}

func NewServer(ctx context.Context, config *Config) (*Server, error) {
	if config.Backend.Address == "" {
		return nil, fmt.Errorf("a backend address is required")
	}
	if _, _, err := net.SplitHostPort(config.Backend.Address); err != nil {
		return nil, fmt.Errorf("invalid backend address: %w", err)
	}
	if config.Lifecycle.IdleThreshold < 0 {
		return nil, fmt.Errorf("idle threshold cannot be negative")
	}

	var err error

	var allowDenyConfig *AllowDenyConfig = nil
	if config.AllowDeny != "" {
		allowDenyConfig, err = ParseAllowDenyConfig(config.AllowDeny)
		if err != nil {
			return nil, fmt.Errorf("could not parse allow-deny-list: %w", err)
		}
	}

	asleepStatus, err := NewAsleepStatus(&config.Asleep)
	if err != nil {
		return nil, fmt.Errorf("could not build asleep status: %w", err)
	}

	provider, err := NewInstanceProvider(config)
	if err != nil {
		return nil, fmt.Errorf("could not create instance provider: %w", err)
	}

	metricsBuilder := NewMetricsBuilder(config.MetricsBackend, &config.MetricsBackendConfig)

	statusClient := mcproto.NewStatusClient(config.Lifecycle.StatusTimeout)
	controller := NewController(ctx, ControllerOptions{
		BackendAddress:      config.Backend.Address,
		InstanceID:          config.Instance.ID,
		IdleThreshold:       config.Lifecycle.IdleThreshold,
		StartupPollInterval: config.Lifecycle.StartupPollInterval,
	}, provider, statusClient, metricsBuilder.BuildControllerMetrics())

	if config.Webhook.Url != "" {
		logrus.WithField("url", config.Webhook.Url).
			WithField("require-user", config.Webhook.RequireUser).
			Info("Using webhook for lifecycle notifications")
		controller.UseLifecycleNotifier(
			NewWebhookNotifier(config.Webhook.Url, config.Instance.ID, config.Webhook.RequireUser))
	}

	if config.ConnectionRateLimit < 1 {
		config.ConnectionRateLimit = 1
	}

	connector := NewConnector(ctx,
		metricsBuilder.BuildConnectorMetrics(),
		controller,
		asleepStatus,
		config.Messages)
	connector.UseSendProxyProto(config.UseProxyProtocol)
	connector.UseBackendDialTimeout(config.Backend.DialTimeout)
	connector.UseAllowDeny(allowDenyConfig)

	clientFilter, err := NewClientFilter(config.ClientsToAllow, config.ClientsToDeny)
	if err != nil {
		return nil, fmt.Errorf("could not create client filter: %w", err)
	}
	connector.UseClientFilter(clientFilter)

	if config.Ngrok.Token != "" {
		connector.UseNgrok(config.Ngrok)
	}

	if config.ReceiveProxyProtocol {
		trustedIpNets := make([]*net.IPNet, 0)
		for _, ip := range config.TrustedProxies {
			_, ipNet, err := net.ParseCIDR(ip)
			if err != nil {
				return nil, fmt.Errorf("could not parse trusted proxy CIDR block: %w", err)
			}
			trustedIpNets = append(trustedIpNets, ipNet)
		}

		connector.UseReceiveProxyProto(trustedIpNets)
	}

	var asleepLoader *asleepConfigLoader
	if config.Asleep.Config != "" {
		asleepLoader = newAsleepConfigLoader(config.Asleep.Config, connector.asleep)
		if err := asleepLoader.Load(); err != nil {
			return nil, fmt.Errorf("could not load asleep status config file: %w", err)
		}

		if config.Asleep.ConfigWatch {
			if err := asleepLoader.WatchForChanges(ctx); err != nil {
				return nil, fmt.Errorf("could not watch for changes to asleep status config file: %w", err)
			}
		}
	}

	if config.ApiBinding != "" {
		StartApiServer(config.ApiBinding, NewApiRouter(controller, metricsBuilder.Handler()))
	}

	err = metricsBuilder.Start(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not start metrics reporter: %w", err)
	}

	return &Server{
		ctx:              ctx,
		config:           config,
		connector:        connector,
		controller:       controller,
		asleepLoader:     asleepLoader,
		reloadConfigChan: make(chan struct{}),
	}, nil
}

// ReloadConfig indicates that an external request, such as a SIGHUP,
// is requesting the asleep status config file to be reloaded, if enabled
func (s *Server) ReloadConfig() {
	select {
	case s.reloadConfigChan <- struct{}{}:
	case <-s.ctx.Done():
	}
}

// AcceptConnection provides a way to externally supply a connection to consume
// Note that this will skip rate limiting.
func (s *Server) AcceptConnection(conn net.Conn) {
	s.connector.AcceptConnection(conn)
}

// Run will run the server until the context is done or a fatal error occurs, so this should be
// in a go routine.
func (s *Server) Run() {
	if s.config.CpuProfile != "" {
		cpuProfileFile, err := os.Create(s.config.CpuProfile)
		if err != nil {
			logrus.WithError(err).Error("Could not create cpu profile file")
		} else {
			//goland:noinspection GoUnhandledErrorResult
			defer cpuProfileFile.Close()

			logrus.WithField("file", s.config.CpuProfile).Info("Starting cpu profiling")
			if err := pprof.StartCPUProfile(cpuProfileFile); err != nil {
				logrus.WithError(err).Error("Could not start cpu profile")
			} else {
				defer pprof.StopCPUProfile()
			}
		}
	}

	if s.config.Lifecycle.AdoptRunning && s.controller.AdoptRunning(s.ctx) {
		logrus.WithField("backend", s.config.Backend.Address).Info("Adopted running backend")
	}

	go s.controller.RunMonitor(s.ctx, s.config.Lifecycle.UsageCheckInterval)

	err := s.connector.StartAcceptingConnections(
		net.JoinHostPort(s.config.ListenAddress, strconv.Itoa(s.config.Port)),
		s.config.ConnectionRateLimit,
	)
	if err != nil {
		logrus.WithError(err).Error("Could not start accepting connections")
		return
	}

	for {
		select {
		case <-s.reloadConfigChan:
			if s.asleepLoader == nil {
				logrus.Debug("No asleep status config file to reload")
				continue
			}
			if err := s.asleepLoader.Reload(); err != nil {
				logrus.WithError(err).
					Error("Could not re-read the asleep status config file")
			}

		case <-s.ctx.Done():
			logrus.Info("Server Stopping. Waiting for connections to complete...")
			s.connector.WaitForConnections()
			logrus.Info("Stopped")
			return
		}
	}

}

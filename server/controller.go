package server

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/s7tya/managed-minecraft-server/mcproto"
	"github.com/sirupsen/logrus"
)

// StatusQuerier asks a Minecraft server for its status, as mcproto.StatusClient does
type StatusQuerier interface {
	Query(ctx context.Context, address string) (*mcproto.StatusResponse, error)
}

// StartResult tells the connection that asked for a start what to reply
type StartResult int

const (
	// StartInitiated means the instance start call succeeded and the backend is being polled
	StartInitiated StartResult = iota
	// StartBusy means another start is in flight or the backend is not dormant
	StartBusy
	// StartFailed means the instance start call failed and the state went back to Dormant
	StartFailed
)

func (r StartResult) String() string {
	switch r {
	case StartInitiated:
		return "initiated"
	case StartBusy:
		return "busy"
	case StartFailed:
		return "failed"
	}
	return "unknown"
}

type ControllerOptions struct {
	BackendAddress      string
	InstanceID          string
	IdleThreshold       int
	StartupPollInterval time.Duration
}

// Controller owns the process-wide ProxyState and the idle counter.
// Every transition is a compare-and-swap, so a connection and the monitor never both
// act on the same observed state.
type Controller struct {
	// ctx outlives any single request; readiness polling runs on it
	ctx      context.Context
	options  ControllerOptions
	provider InstanceProvider
	querier  StatusQuerier
	metrics  *ControllerMetrics
	notifier LifecycleNotifier

	state     atomic.Int32
	idleTicks atomic.Int32
	// stopMu serializes stop attempts from the monitor and the API
	stopMu     sync.Mutex
	lastStatus atomic.Pointer[mcproto.StatusResponse]
}

func NewController(ctx context.Context, options ControllerOptions, provider InstanceProvider,
	querier StatusQuerier, metrics *ControllerMetrics) *Controller {

	if options.StartupPollInterval <= 0 {
		options.StartupPollInterval = 20 * time.Second
	}
	c := &Controller{
		ctx:      ctx,
		options:  options,
		provider: provider,
		querier:  querier,
		metrics:  metrics,
	}
	c.metrics.State.Set(float64(Dormant))
	return c
}

func (c *Controller) UseLifecycleNotifier(notifier LifecycleNotifier) {
	c.notifier = notifier
}

func (c *Controller) State() ProxyState {
	return ProxyState(c.state.Load())
}

func (c *Controller) IdleTicks() int {
	return int(c.idleTicks.Load())
}

// LastStatus is the most recent successful status of the backend, or nil if it never answered
func (c *Controller) LastStatus() *mcproto.StatusResponse {
	return c.lastStatus.Load()
}

func (c *Controller) BackendAddress() string {
	return c.options.BackendAddress
}

// transition moves from -> to if the state is still from. A lost race is logged and
// leaves the state as the winner set it.
func (c *Controller) transition(from ProxyState, to ProxyState, player *PlayerInfo) bool {
	if !allowedTransition(from, to) {
		logrus.
			WithField("from", from).
			WithField("to", to).
			Error("Refusing illegal state transition")
		return false
	}
	if !c.state.CompareAndSwap(int32(from), int32(to)) {
		logrus.
			WithField("from", from).
			WithField("to", to).
			WithField("actual", c.State()).
			Debug("State changed concurrently, transition skipped")
		return false
	}

	logrus.
		WithField("from", from).
		WithField("to", to).
		Info("Proxy state changed")
	c.metrics.State.Set(float64(to))
	c.metrics.Transitions.With("to", to.String()).Add(1)

	if c.notifier != nil {
		if err := c.notifier.NotifyTransition(c.ctx, from, to, player); err != nil {
			logrus.WithError(err).Warn("Failed to notify state transition")
		}
	}
	return true
}

func (c *Controller) notifyInstanceFailure(action string, player *PlayerInfo, err error) {
	c.metrics.InstanceCalls.With("action", action, "result", "failure").Add(1)
	if c.notifier != nil {
		if notifyErr := c.notifier.NotifyInstanceFailure(c.ctx, action, player, err); notifyErr != nil {
			logrus.WithError(notifyErr).Warn("Failed to notify instance failure")
		}
	}
}

// RequestStart begins the starting sequence if the backend is dormant. Only the caller that
// wins the Dormant to Starting swap calls the provider, so concurrent logins start it once.
// On success the backend is polled in the background until it answers.
func (c *Controller) RequestStart(ctx context.Context, player *PlayerInfo) StartResult {
	if !c.transition(Dormant, Starting, player) {
		return StartBusy
	}

	logger := logrus.WithField("instance", c.options.InstanceID)
	if player != nil {
		logger = logger.WithField("player", player.Name)
	}
	logger.Info("Starting backend instance")

	if err := c.provider.Start(ctx, c.options.InstanceID); err != nil {
		instanceErr := &InstanceError{Op: "start", InstanceID: c.options.InstanceID, Err: err}
		logger.WithError(instanceErr).Error("Failed to start backend instance")
		c.notifyInstanceFailure("start", player, instanceErr)
		c.transition(Starting, Dormant, player)
		return StartFailed
	}
	c.metrics.InstanceCalls.With("action", "start", "result", "success").Add(1)

	go c.awaitBackend()
	return StartInitiated
}

// awaitBackend polls until the first successful status query, then starts proxying.
// Failed polls are retried without limit; only process shutdown ends the loop early.
func (c *Controller) awaitBackend() {
	ticker := time.NewTicker(c.options.StartupPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			logrus.Debug("Stopped waiting for backend")
			return

		case <-ticker.C:
			status, err := c.querier.Query(c.ctx, c.options.BackendAddress)
			if err != nil {
				c.metrics.StatusErrors.Add(1)
				logrus.
					WithError(backendUnreachable(err)).
					WithField("backend", c.options.BackendAddress).
					Debug("Backend not ready yet")
				continue
			}

			c.lastStatus.Store(status)
			c.resetIdle()
			if c.transition(Starting, Proxying, nil) {
				logrus.
					WithField("backend", c.options.BackendAddress).
					WithField("version", status.Version.Name).
					Info("Backend is ready")
			}
			return
		}
	}
}

// AdoptRunning starts out proxying when the backend already answers, such as one left
// running by a previous process. It reports whether the backend was adopted.
func (c *Controller) AdoptRunning(ctx context.Context) bool {
	if c.State() != Dormant {
		return false
	}
	status, err := c.querier.Query(ctx, c.options.BackendAddress)
	if err != nil {
		logrus.
			WithError(err).
			WithField("backend", c.options.BackendAddress).
			Debug("Backend not running at startup")
		return false
	}

	if !c.transition(Dormant, Starting, nil) {
		return false
	}
	c.lastStatus.Store(status)
	c.resetIdle()
	return c.transition(Starting, Proxying, nil)
}

func (c *Controller) resetIdle() {
	c.idleTicks.Store(0)
	c.metrics.IdleTicks.Set(0)
}

package server

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// RunMonitor checks backend usage every interval until ctx is done
func (c *Controller) RunMonitor(ctx context.Context, interval time.Duration) {
	logrus.
		WithField("interval", interval).
		WithField("threshold", c.options.IdleThreshold).
		Info("Monitoring backend usage")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Tick(ctx)
		}
	}
}

// Tick performs one usage check. It only acts while proxying. A failed status query leaves
// the idle counter alone; an empty server increments it and any player resets it.
// Once the counter exceeds the threshold the instance is stopped.
func (c *Controller) Tick(ctx context.Context) {
	if c.State() != Proxying {
		return
	}

	status, err := c.querier.Query(ctx, c.options.BackendAddress)
	if err != nil {
		c.metrics.StatusErrors.Add(1)
		logrus.
			WithError(backendUnreachable(err)).
			WithField("backend", c.options.BackendAddress).
			Warn("Could not determine backend usage")
		return
	}
	// a stop may have completed while the query was in flight
	if c.State() != Proxying {
		return
	}
	c.lastStatus.Store(status)
	c.metrics.OnlinePlayers.Set(float64(status.Players.Online))

	var idle int32
	if status.Players.Online == 0 {
		idle = c.idleTicks.Add(1)
	} else {
		c.idleTicks.Store(0)
	}
	c.metrics.IdleTicks.Set(float64(idle))

	logrus.
		WithField("online", status.Players.Online).
		WithField("idleTicks", idle).
		Debug("Checked backend usage")

	if int(idle) > c.options.IdleThreshold {
		logrus.
			WithField("idleTicks", idle).
			WithField("threshold", c.options.IdleThreshold).
			Info("Backend idle, stopping instance")
		if err := c.stopInstance(ctx); err != nil {
			logrus.WithError(err).Error("Failed to stop idle backend, will retry on next check")
		}
	}
}

// RequestStop stops the backend now, regardless of usage
func (c *Controller) RequestStop(ctx context.Context) error {
	return c.stopInstance(ctx)
}

// stopInstance keeps proxying until the provider confirms the stop, so a failed stop is
// retried by the next tick instead of being taken for success
func (c *Controller) stopInstance(ctx context.Context) error {
	c.stopMu.Lock()
	defer c.stopMu.Unlock()

	if c.State() != Proxying {
		return ErrNotProxying
	}

	if err := c.provider.Stop(ctx, c.options.InstanceID); err != nil {
		instanceErr := &InstanceError{Op: "stop", InstanceID: c.options.InstanceID, Err: err}
		c.notifyInstanceFailure("stop", nil, instanceErr)
		return instanceErr
	}
	c.metrics.InstanceCalls.With("action", "stop", "result", "success").Add(1)

	if !c.transition(Proxying, Stopping, nil) {
		return ErrNotProxying
	}
	c.resetIdle()
	c.transition(Stopping, Dormant, nil)
	return nil
}

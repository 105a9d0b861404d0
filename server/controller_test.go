package server

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/s7tya/managed-minecraft-server/mcproto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	mu        sync.Mutex
	starts    int
	stops     int
	startErr  error
	stopErr   error
	startGate chan struct{}
}

func (p *fakeProvider) Start(context.Context, string) error {
	if p.startGate != nil {
		<-p.startGate
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.starts++
	return p.startErr
}

func (p *fakeProvider) Stop(context.Context, string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stops++
	return p.stopErr
}

func (p *fakeProvider) setStopErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopErr = err
}

func (p *fakeProvider) counts() (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.starts, p.stops
}

// fakeQuerier answers with online players, or err when set
type fakeQuerier struct {
	mu     sync.Mutex
	online int
	err    error
	calls  int
}

func (q *fakeQuerier) Query(context.Context, string) (*mcproto.StatusResponse, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.calls++
	if q.err != nil {
		return nil, q.err
	}
	return &mcproto.StatusResponse{
		Version: mcproto.StatusVersion{Name: "1.21", Protocol: 767},
		Players: mcproto.StatusPlayers{Max: 20, Online: q.online},
	}, nil
}

func (q *fakeQuerier) set(online int, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.online = online
	q.err = err
}

// hookQuerier runs beforeReply while a query is in flight
type hookQuerier struct {
	fakeQuerier
	beforeReply func()
}

func (q *hookQuerier) Query(ctx context.Context, address string) (*mcproto.StatusResponse, error) {
	if q.beforeReply != nil {
		q.beforeReply()
	}
	return q.fakeQuerier.Query(ctx, address)
}

func newTestController(t *testing.T, provider InstanceProvider, querier StatusQuerier, threshold int) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return NewController(ctx, ControllerOptions{
		BackendAddress:      "127.0.0.1:25566",
		InstanceID:          "mc-1",
		IdleThreshold:       threshold,
		StartupPollInterval: 10 * time.Millisecond,
	}, provider, querier, discardMetricsBuilder{}.BuildControllerMetrics())
}

// proxyingController returns a controller already in the Proxying state
func proxyingController(t *testing.T, provider InstanceProvider, querier StatusQuerier, threshold int) *Controller {
	c := newTestController(t, provider, querier, threshold)
	require.True(t, c.AdoptRunning(context.Background()))
	require.Equal(t, Proxying, c.State())
	return c
}

func TestController_StartThenProxy(t *testing.T) {
	provider := &fakeProvider{}
	querier := &fakeQuerier{err: errors.New("connection refused")}
	c := newTestController(t, provider, querier, 3)

	assert.Equal(t, StartInitiated, c.RequestStart(context.Background(), nil))
	assert.Equal(t, Starting, c.State())

	// polls keep failing until the backend answers
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, Starting, c.State())
	assert.Nil(t, c.LastStatus())

	querier.set(0, nil)
	assert.Eventually(t, func() bool {
		return c.State() == Proxying
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, c.IdleTicks())
	assert.NotNil(t, c.LastStatus())

	starts, _ := provider.counts()
	assert.Equal(t, 1, starts)
}

func TestController_StartFailure(t *testing.T) {
	provider := &fakeProvider{startErr: errors.New("quota exceeded")}
	c := newTestController(t, provider, &fakeQuerier{}, 3)

	assert.Equal(t, StartFailed, c.RequestStart(context.Background(), nil))
	assert.Equal(t, Dormant, c.State())

	// a later attempt may retry
	provider.startErr = nil
	assert.Equal(t, StartInitiated, c.RequestStart(context.Background(), nil))
}

func TestController_ConcurrentStartsCallProviderOnce(t *testing.T) {
	provider := &fakeProvider{startGate: make(chan struct{})}
	c := newTestController(t, provider, &fakeQuerier{}, 3)

	const callers = 20
	results := make(chan StartResult, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- c.RequestStart(context.Background(), &PlayerInfo{Name: "steve"})
		}()
	}

	// every caller but the winner returns without reaching the provider
	assert.Eventually(t, func() bool {
		return len(results) == callers-1
	}, time.Second, 5*time.Millisecond)
	close(provider.startGate)
	wg.Wait()
	close(results)

	initiated := 0
	for result := range results {
		if result == StartInitiated {
			initiated++
		} else {
			assert.Equal(t, StartBusy, result)
		}
	}
	assert.Equal(t, 1, initiated)

	starts, _ := provider.counts()
	assert.Equal(t, 1, starts)
}

func TestController_RequestStartWhenNotDormant(t *testing.T) {
	provider := &fakeProvider{}
	c := proxyingController(t, provider, &fakeQuerier{online: 1}, 3)

	assert.Equal(t, StartBusy, c.RequestStart(context.Background(), nil))
	starts, _ := provider.counts()
	assert.Equal(t, 0, starts)
}

func TestController_IdleStop(t *testing.T) {
	provider := &fakeProvider{}
	querier := &fakeQuerier{online: 0}
	c := proxyingController(t, provider, querier, 3)

	for i := 1; i <= 3; i++ {
		c.Tick(context.Background())
		assert.Equal(t, i, c.IdleTicks())
		assert.Equal(t, Proxying, c.State())
	}
	_, stops := provider.counts()
	assert.Equal(t, 0, stops)

	c.Tick(context.Background())
	assert.Equal(t, Dormant, c.State())
	assert.Equal(t, 0, c.IdleTicks())
	_, stops = provider.counts()
	assert.Equal(t, 1, stops)

	// ticks while dormant do nothing
	c.Tick(context.Background())
	_, stops = provider.counts()
	assert.Equal(t, 1, stops)
}

func TestController_StopDuringTickQuery(t *testing.T) {
	provider := &fakeProvider{}
	querier := &hookQuerier{}
	c := proxyingController(t, provider, querier, 0)
	querier.beforeReply = func() {
		require.NoError(t, c.RequestStop(context.Background()))
	}

	c.Tick(context.Background())

	assert.Equal(t, Dormant, c.State())
	assert.Equal(t, 0, c.IdleTicks())
	_, stops := provider.counts()
	assert.Equal(t, 1, stops)
}

func TestController_IdleResetByPlayers(t *testing.T) {
	querier := &fakeQuerier{online: 0}
	c := proxyingController(t, &fakeProvider{}, querier, 3)

	c.Tick(context.Background())
	c.Tick(context.Background())
	assert.Equal(t, 2, c.IdleTicks())

	querier.set(2, nil)
	c.Tick(context.Background())
	assert.Equal(t, 0, c.IdleTicks())
	assert.Equal(t, 2, c.LastStatus().Players.Online)
}

func TestController_FailedQueryLeavesIdleAlone(t *testing.T) {
	querier := &fakeQuerier{online: 0}
	c := proxyingController(t, &fakeProvider{}, querier, 3)

	c.Tick(context.Background())
	assert.Equal(t, 1, c.IdleTicks())

	querier.set(0, errors.New("timeout"))
	for i := 0; i < 5; i++ {
		c.Tick(context.Background())
	}
	assert.Equal(t, 1, c.IdleTicks())
	assert.Equal(t, Proxying, c.State())
}

func TestController_StopFailureRetriedNextTick(t *testing.T) {
	provider := &fakeProvider{stopErr: errors.New("api down")}
	c := proxyingController(t, provider, &fakeQuerier{online: 0}, 0)

	c.Tick(context.Background())
	assert.Equal(t, Proxying, c.State())
	_, stops := provider.counts()
	assert.Equal(t, 1, stops)

	provider.setStopErr(nil)
	c.Tick(context.Background())
	assert.Equal(t, Dormant, c.State())
	_, stops = provider.counts()
	assert.Equal(t, 2, stops)
}

func TestController_RequestStop(t *testing.T) {
	provider := &fakeProvider{}
	c := newTestController(t, provider, &fakeQuerier{}, 3)

	err := c.RequestStop(context.Background())
	assert.ErrorIs(t, err, ErrNotProxying)

	require.True(t, c.AdoptRunning(context.Background()))
	require.NoError(t, c.RequestStop(context.Background()))
	assert.Equal(t, Dormant, c.State())

	provider.setStopErr(errors.New("denied"))
	require.True(t, c.AdoptRunning(context.Background()))
	err = c.RequestStop(context.Background())
	var instanceErr *InstanceError
	require.ErrorAs(t, err, &instanceErr)
	assert.Equal(t, "stop", instanceErr.Op)
	assert.Equal(t, "mc-1", instanceErr.InstanceID)
	assert.Equal(t, Proxying, c.State())
}

func TestController_AdoptRunning(t *testing.T) {
	querier := &fakeQuerier{err: errors.New("refused")}
	c := newTestController(t, &fakeProvider{}, querier, 3)

	assert.False(t, c.AdoptRunning(context.Background()))
	assert.Equal(t, Dormant, c.State())

	querier.set(4, nil)
	assert.True(t, c.AdoptRunning(context.Background()))
	assert.Equal(t, Proxying, c.State())
	assert.Equal(t, 4, c.LastStatus().Players.Online)

	// only from Dormant
	assert.False(t, c.AdoptRunning(context.Background()))
}

type recordingNotifier struct {
	mu          sync.Mutex
	transitions []ProxyState
	failures    []string
}

func (n *recordingNotifier) NotifyTransition(_ context.Context, _ ProxyState, current ProxyState, _ *PlayerInfo) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.transitions = append(n.transitions, current)
	return nil
}

func (n *recordingNotifier) NotifyInstanceFailure(_ context.Context, action string, _ *PlayerInfo, _ error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failures = append(n.failures, action)
	return nil
}

func TestController_NotifiesLifecycle(t *testing.T) {
	provider := &fakeProvider{startErr: errors.New("nope")}
	notifier := &recordingNotifier{}
	c := newTestController(t, provider, &fakeQuerier{}, 0)
	c.UseLifecycleNotifier(notifier)

	assert.Equal(t, StartFailed, c.RequestStart(context.Background(), nil))
	require.True(t, c.AdoptRunning(context.Background()))
	c.Tick(context.Background())

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	assert.Equal(t, []string{"start"}, notifier.failures)
	assert.Equal(t, []ProxyState{
		Starting, Dormant,
		Starting, Proxying,
		Stopping, Dormant,
	}, notifier.transitions)
}

func TestController_RunMonitor(t *testing.T) {
	provider := &fakeProvider{}
	c := proxyingController(t, provider, &fakeQuerier{online: 0}, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.RunMonitor(ctx, 5*time.Millisecond)

	assert.Eventually(t, func() bool {
		return c.State() == Dormant
	}, time.Second, 5*time.Millisecond)
	_, stops := provider.counts()
	assert.Equal(t, 1, stops)
}

package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWebhookReceiver(t *testing.T) (string, <-chan *WebhookNotifierPayload) {
	payloads := make(chan *WebhookNotifierPayload, 10)
	srv := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		assert.Equal(t, http.MethodPost, request.Method)
		assert.Equal(t, "application/json", request.Header.Get("Content-Type"))

		payload := &WebhookNotifierPayload{}
		if err := json.NewDecoder(request.Body).Decode(payload); err != nil {
			writer.WriteHeader(http.StatusBadRequest)
			return
		}
		payloads <- payload
		writer.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)
	return srv.URL, payloads
}

func receivePayload(t *testing.T, payloads <-chan *WebhookNotifierPayload) *WebhookNotifierPayload {
	select {
	case payload := <-payloads:
		return payload
	case <-time.After(2 * time.Second):
		t.Fatal("webhook was not called")
		return nil
	}
}

func TestWebhookNotifier_Transition(t *testing.T) {
	url, payloads := newWebhookReceiver(t)
	notifier := NewWebhookNotifier(url, "mc-1", false)

	player := &PlayerInfo{Name: "steve", Uuid: uuid.MustParse("5cddfd26-fc86-4981-b52e-c42bb10bfdef")}
	require.NoError(t, notifier.NotifyTransition(context.Background(), Dormant, Starting, player))

	payload := receivePayload(t, payloads)
	assert.Equal(t, WebhookEventTransition, payload.Event)
	assert.Equal(t, "Starting", payload.State)
	assert.Equal(t, "Dormant", payload.Previous)
	assert.Equal(t, "mc-1", payload.Instance)
	assert.Equal(t, player, payload.PlayerInfo)
	assert.False(t, payload.Timestamp.IsZero())
}

func TestWebhookNotifier_InstanceFailure(t *testing.T) {
	url, payloads := newWebhookReceiver(t)
	notifier := NewWebhookNotifier(url, "mc-1", false)

	err := &InstanceError{Op: "stop", InstanceID: "mc-1", Err: errors.New("api down")}
	require.NoError(t, notifier.NotifyInstanceFailure(context.Background(), "stop", nil, err))

	payload := receivePayload(t, payloads)
	assert.Equal(t, WebhookEventInstanceFailure, payload.Event)
	assert.Equal(t, "stop", payload.Action)
	assert.Equal(t, `could not stop instance "mc-1": api down`, payload.Error)
	assert.Nil(t, payload.PlayerInfo)
}

func TestWebhookNotifier_RequireUser(t *testing.T) {
	url, payloads := newWebhookReceiver(t)
	notifier := NewWebhookNotifier(url, "mc-1", true)

	// an API-triggered start has no player and is skipped
	require.NoError(t, notifier.NotifyTransition(context.Background(), Dormant, Starting, nil))
	// other transitions are still reported
	require.NoError(t, notifier.NotifyTransition(context.Background(), Starting, Proxying, nil))

	payload := receivePayload(t, payloads)
	assert.Equal(t, "Proxying", payload.State)

	select {
	case extra := <-payloads:
		t.Fatalf("unexpected payload %+v", extra)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWebhookNotifier_CancelledContextStillDelivers(t *testing.T) {
	url, payloads := newWebhookReceiver(t)
	notifier := NewWebhookNotifier(url, "mc-1", false)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, notifier.NotifyTransition(ctx, Stopping, Dormant, nil))

	payload := receivePayload(t, payloads)
	assert.Equal(t, "Dormant", payload.State)
}

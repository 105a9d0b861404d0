package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// WebhookNotifier implements LifecycleNotifier by sending a POST request to a webhook URL.
// The payload is a JSON object defined by WebhookNotifierPayload.
type WebhookNotifier struct {
	url         string
	instanceID  string
	requireUser bool

	client *http.Client
}

const (
	WebhookEventTransition      = "transition"
	WebhookEventInstanceFailure = "instance-failure"
)

type WebhookNotifierPayload struct {
	Event      string      `json:"event"`
	Timestamp  time.Time   `json:"timestamp"`
	State      string      `json:"state"`
	Previous   string      `json:"previous,omitempty"`
	Instance   string      `json:"instance"`
	Action     string      `json:"action,omitempty"`
	PlayerInfo *PlayerInfo `json:"player,omitempty"`
	Error      string      `json:"error,omitempty"`
}

func NewWebhookNotifier(url string, instanceID string, requireUser bool) *WebhookNotifier {

	return &WebhookNotifier{
		url:         url,
		instanceID:  instanceID,
		requireUser: requireUser,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (w *WebhookNotifier) NotifyTransition(ctx context.Context, previous ProxyState, current ProxyState, playerInfo *PlayerInfo) error {
	// a start without a known player is only reported when users are not required
	if w.requireUser && current == Starting && playerInfo == nil {
		return nil
	}

	payload := &WebhookNotifierPayload{
		Event:      WebhookEventTransition,
		Timestamp:  time.Now(),
		State:      current.String(),
		Previous:   previous.String(),
		Instance:   w.instanceID,
		PlayerInfo: playerInfo,
	}

	return w.send(ctx, payload)
}

func (w *WebhookNotifier) NotifyInstanceFailure(ctx context.Context, action string, playerInfo *PlayerInfo, err error) error {
	payload := &WebhookNotifierPayload{
		Event:      WebhookEventInstanceFailure,
		Timestamp:  time.Now(),
		Instance:   w.instanceID,
		Action:     action,
		PlayerInfo: playerInfo,
		Error:      err.Error(),
	}

	return w.send(ctx, payload)
}

func (w *WebhookNotifier) send(ctx context.Context, payload *WebhookNotifierPayload) error {
	jsonPayload, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	// the delivery outlives the caller, which is often a connection that is about to close
	req, err := http.NewRequestWithContext(
		context.WithoutCancel(ctx),
		http.MethodPost,
		w.url,
		bytes.NewBuffer(jsonPayload),
	)
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	go func() {
		resp, err := w.client.Do(req)
		if err != nil {
			logrus.
				WithError(err).
				WithField("event", payload.Event).
				Warn("Failed to send webhook notification")
			return
		}
		_ = resp.Body.Close()

		if resp.StatusCode >= 400 {
			logrus.
				WithField("status", resp.StatusCode).
				Warn("webhook receiver responded with an error")
		}

	}()

	return nil
}

package server

import (
	"context"
)

// LifecycleNotifier is told about every state transition of the controller and every failed instance call
type LifecycleNotifier interface {
	// NotifyTransition is called after the state moved from previous to current.
	// player is set when a known player caused the transition.
	NotifyTransition(ctx context.Context, previous ProxyState, current ProxyState, player *PlayerInfo) error

	// NotifyInstanceFailure is called when the start or stop call failed
	NotifyInstanceFailure(ctx context.Context, action string, player *PlayerInfo, err error) error
}

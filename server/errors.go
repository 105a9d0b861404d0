package server

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrBackendUnreachable wraps any dial, read or parse failure while talking to the backend
	ErrBackendUnreachable = errors.New("backend unreachable")
	// ErrNotProxying is returned by a stop request when the backend is not being proxied
	ErrNotProxying = errors.New("backend is not being proxied")
)

// InstanceError is a failed start or stop call against the instance provider
type InstanceError struct {
	Op         string
	InstanceID string
	Err        error
}

func (e *InstanceError) Error() string {
	return fmt.Sprintf("could not %s instance %q: %v", e.Op, e.InstanceID, e.Err)
}

func (e *InstanceError) Unwrap() error {
	return e.Err
}

func backendUnreachable(err error) error {
	return fmt.Errorf("%w: %w", ErrBackendUnreachable, err)
}

package server

import "fmt"

// ProxyState is what the front end does with a login-intent connection
type ProxyState int32

const (
	// Dormant means the backend is stopped and the asleep status is served
	Dormant ProxyState = iota
	// Starting means the instance start call succeeded and the backend is being polled
	Starting
	// Proxying means connections are spliced to the backend
	Proxying
	// Stopping is held only while the idle backend is being handed back to Dormant
	Stopping
)

func (s ProxyState) String() string {
	switch s {
	case Dormant:
		return "Dormant"
	case Starting:
		return "Starting"
	case Proxying:
		return "Proxying"
	case Stopping:
		return "Stopping"
	default:
		return fmt.Sprintf("ProxyState(%d)", int32(s))
	}
}

func (s ProxyState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// allowedTransition lists the only edges the controller may take
func allowedTransition(from, to ProxyState) bool {
	switch {
	case from == Dormant && to == Starting:
		return true
	case from == Starting && (to == Proxying || to == Dormant):
		return true
	case from == Proxying && to == Stopping:
		return true
	case from == Stopping && to == Dormant:
		return true
	}
	return false
}

package engine

import "fmt"

// State is one of the five protocol-engine states.
type State int

const (
	Disconnected State = iota
	Connecting
	ConnectedIdle
	ConnectedAwaitingResponse
	ConnectedAwaitingPacing
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case ConnectedIdle:
		return "Connected-Idle"
	case ConnectedAwaitingResponse:
		return "Connected-Awaiting-Response"
	case ConnectedAwaitingPacing:
		return "Connected-Awaiting-Pacing"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// connected reports whether s is any of the Connected-* states (including
// the transient Connecting state, which already accepts enqueues).
func (s State) connected() bool { return s != Disconnected }

package link

import "time"

// State is the connection state of the link.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ConnectionState is the link state plus when it was entered and which peer
// it concerns. It is only changed by the Manager.
type ConnectionState struct {
	State State     `json:"state"`
	Since time.Time `json:"since"`
	Peer  Address   `json:"peer"`
}

// Transition describes one change of ConnectionState.
type Transition struct {
	From ConnectionState
	To   ConnectionState
}

// DiscoveredDevice is a device seen during discovery.
type DiscoveredDevice struct {
	Address Address `json:"address"`
	Name    string  `json:"name"`
}

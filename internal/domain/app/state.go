// Package app is the top-level state machine: it walks the user from
// speaker discovery through connecting to browsing and playing, and parks
// the current screen while the link is being re-established.
package app

import "time"

// Kind names an application state.
type Kind int

const (
	Discovery Kind = iota
	Connecting
	Reconnecting
	SamplePlayback
	Artists
	Albums
	Player
	Settings
)

// String returns the state name.
func (k Kind) String() string {
	switch k {
	case Discovery:
		return "discovery"
	case Connecting:
		return "connecting"
	case Reconnecting:
		return "reconnecting"
	case SamplePlayback:
		return "sample"
	case Artists:
		return "artists"
	case Albums:
		return "albums"
	case Player:
		return "player"
	case Settings:
		return "settings"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// State is the live application state. Fields beyond Kind and Since are
// only meaningful for some kinds.
type State struct {
	Kind     Kind
	Since    time.Time
	Selected int    // menu cursor
	Artist   string // Albums, Player
	Album    string // Player
	Auto     bool   // Connecting: started by auto-connect
	Resuming bool   // re-entered after a reconnect
	Failures int    // Player: consecutive songs that failed
}

// connected reports whether the state requires a live link.
func (s State) connected() bool {
	switch s.Kind {
	case SamplePlayback, Artists, Albums, Player, Settings:
		return true
	}
	return false
}

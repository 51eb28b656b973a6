// Package player provides the per-guild playback state machine and its registry.
package player

import "github.com/cockroachdb/errors"

// State represents the lifecycle state of a player.
type State int

const (
	StateConnecting   State = iota // Waiting for the voice handshake
	StateConnected                 // Voice ready, nothing playing
	StatePlaying                   // Track is playing
	StatePaused                    // Track is paused
	StateStopped                   // Stopped explicitly or queue exhausted
	StateDisconnected              // Voice connection lost
	StateDestroyed                 // Terminal
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	case StateDisconnected:
		return "disconnected"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	for c := StateConnecting; c <= StateDestroyed; c++ {
		if c.String() == string(b) {
			*s = c
			return nil
		}
	}
	return errors.Newf("unknown player state: %q", string(b))
}

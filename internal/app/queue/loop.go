package queue

import (
	"github.com/cockroachdb/errors"
)

// LoopMode controls how Next advances.
type LoopMode int

const (
	LoopOff LoopMode = iota
	LoopTrack
	LoopQueue
)

// String returns the string representation of the loop mode.
func (m LoopMode) String() string {
	switch m {
	case LoopOff:
		return "off"
	case LoopTrack:
		return "track"
	case LoopQueue:
		return "queue"
	default:
		return "unknown"
	}
}

// ParseLoopMode parses "off", "track" or "queue".
func ParseLoopMode(s string) (LoopMode, error) {
	switch s {
	case "off", "none", "":
		return LoopOff, nil
	case "track", "song":
		return LoopTrack, nil
	case "queue":
		return LoopQueue, nil
	default:
		return LoopOff, errors.Newf("unknown loop mode: %q", s)
	}
}

func (m LoopMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *LoopMode) UnmarshalText(b []byte) error {
	parsed, err := ParseLoopMode(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

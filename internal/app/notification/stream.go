package notification

import (
	"github.com/cockroachdb/errors"
)

var ErrStreamFull = errors.New("notification stream buffer full")

// ChannelStream delivers notifications into a buffered channel without blocking.
type ChannelStream struct {
	ch chan *Event
}

// NewChannelStream creates a stream with the given buffer size.
func NewChannelStream(size int) *ChannelStream {
	return &ChannelStream{ch: make(chan *Event, size)}
}

// Send implements Stream. It drops the event when the buffer is full.
func (s *ChannelStream) Send(e *Event) error {
	select {
	case s.ch <- e:
		return nil
	default:
		return errors.Wrapf(ErrStreamFull, "dropped %s", e.Type)
	}
}

// Events returns the receive side of the stream.
func (s *ChannelStream) Events() <-chan *Event {
	return s.ch
}

// StreamFunc adapts a function to Stream.
type StreamFunc func(*Event) error

func (f StreamFunc) Send(e *Event) error { return f(e) }

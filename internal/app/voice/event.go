package voice

import "github.com/disgoorg/snowflake/v2"

// EventType represents the type of connection event.
type EventType int

const (
	EventReady EventType = iota
	EventMoved
	EventDisconnected
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventReady:
		return "ready"
	case EventMoved:
		return "moved"
	case EventDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Event is emitted by a Connection.
type Event struct {
	Type         EventType
	GuildID      snowflake.ID
	Server       *Server       // Set for EventReady
	OldChannelID *snowflake.ID // Set for EventMoved and EventDisconnected
	NewChannelID *snowflake.ID // Set for EventMoved
}

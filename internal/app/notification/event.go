package notification

import (
	"time"

	"github.com/disgoorg/snowflake/v2"

	"github.com/osa030/audiolink/internal/domain/track"
)

// Type represents a notification type.
type Type int

const (
	NodeConnected Type = iota
	NodeReady
	NodeDisconnected
	NodeReconnecting
	NodeError
	NodeStats

	PlayerCreated
	PlayerDestroyed
	PlayerConnected
	PlayerDisconnected
	PlayerMoved
	PlayerMigrated
	PlayerUpdated

	TrackStart
	TrackEnd
	TrackStuck
	TrackError

	QueueEnd
	TracksAdded

	AutoplayAdded
	AutoplayFailed
)

// String returns the string representation of the notification type.
func (t Type) String() string {
	switch t {
	case NodeConnected:
		return "node_connected"
	case NodeReady:
		return "node_ready"
	case NodeDisconnected:
		return "node_disconnected"
	case NodeReconnecting:
		return "node_reconnecting"
	case NodeError:
		return "node_error"
	case NodeStats:
		return "node_stats"
	case PlayerCreated:
		return "player_created"
	case PlayerDestroyed:
		return "player_destroyed"
	case PlayerConnected:
		return "player_connected"
	case PlayerDisconnected:
		return "player_disconnected"
	case PlayerMoved:
		return "player_moved"
	case PlayerMigrated:
		return "player_migrated"
	case PlayerUpdated:
		return "player_updated"
	case TrackStart:
		return "track_start"
	case TrackEnd:
		return "track_end"
	case TrackStuck:
		return "track_stuck"
	case TrackError:
		return "track_error"
	case QueueEnd:
		return "queue_end"
	case TracksAdded:
		return "tracks_added"
	case AutoplayAdded:
		return "autoplay_added"
	case AutoplayFailed:
		return "autoplay_failed"
	default:
		return "unknown"
	}
}

func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Category groups notification types for subscriptions.
type Category string

const (
	CategoryNode     Category = "node"
	CategoryPlayer   Category = "player"
	CategoryTrack    Category = "track"
	CategoryQueue    Category = "queue"
	CategoryAutoplay Category = "autoplay"
)

// Category returns the category of the notification type.
func (t Type) Category() Category {
	switch {
	case t <= NodeStats:
		return CategoryNode
	case t <= PlayerUpdated:
		return CategoryPlayer
	case t <= TrackError:
		return CategoryTrack
	case t <= TracksAdded:
		return CategoryQueue
	default:
		return CategoryAutoplay
	}
}

// Event is a notification delivered to subscribers.
// Data holds one of the payload types below, or nil.
type Event struct {
	SequenceNo uint64       `json:"sequenceNo"`
	Type       Type         `json:"type"`
	Time       time.Time    `json:"time"`
	Node       string       `json:"node,omitempty"`
	GuildID    snowflake.ID `json:"guildId,omitempty"`
	Data       any          `json:"data,omitempty"`
}

// NodeReadyData is the payload of NodeReady.
type NodeReadyData struct {
	SessionID string `json:"sessionId"`
	Resumed   bool   `json:"resumed"`
}

// NodeStatsData is the payload of NodeStats.
type NodeStatsData struct {
	Players        int     `json:"players"`
	PlayingPlayers int     `json:"playingPlayers"`
	Penalty        float64 `json:"penalty"`
}

// ErrorData is the payload of NodeError, TrackError and AutoplayFailed.
type ErrorData struct {
	Track    *track.Track `json:"track,omitempty"`
	Message  string       `json:"message"`
	Severity string       `json:"severity,omitempty"`
}

// NodeDisconnectedData is the payload of NodeDisconnected and NodeReconnecting.
type NodeDisconnectedData struct {
	Reason  string        `json:"reason,omitempty"`
	Attempt int           `json:"attempt,omitempty"`
	Delay   time.Duration `json:"delay,omitempty"`
}

// TrackData is the payload of TrackStart and QueueEnd.
type TrackData struct {
	Track *track.Track `json:"track,omitempty"`
}

// TrackEndData is the payload of TrackEnd.
type TrackEndData struct {
	Track  *track.Track `json:"track,omitempty"`
	Reason string       `json:"reason"`
}

// TrackStuckData is the payload of TrackStuck.
type TrackStuckData struct {
	Track       *track.Track `json:"track,omitempty"`
	ThresholdMs int64        `json:"thresholdMs"`
}

// TracksData is the payload of TracksAdded and AutoplayAdded.
type TracksData struct {
	Tracks []*track.Track `json:"tracks"`
}

// ChannelData is the payload of PlayerCreated, PlayerConnected and PlayerMoved.
type ChannelData struct {
	OldChannelID *snowflake.ID `json:"oldChannelId,omitempty"`
	ChannelID    *snowflake.ID `json:"channelId,omitempty"`
}

// PlayerDisconnectedData is the payload of PlayerDisconnected.
type PlayerDisconnectedData struct {
	Code     int    `json:"code,omitempty"`
	Reason   string `json:"reason,omitempty"`
	ByRemote bool   `json:"byRemote"`
}

// MigratedData is the payload of PlayerMigrated.
type MigratedData struct {
	From     string `json:"from,omitempty"`
	To       string `json:"to"`
	Position int64  `json:"position"`
}

// PlayerUpdatedData is the payload of PlayerUpdated.
type PlayerUpdatedData struct {
	Position  int64 `json:"position"`
	Connected bool  `json:"connected"`
	Ping      int   `json:"ping"`
}

package connect

import (
	"encoding/json"
	"time"

	"github.com/disgoorg/snowflake/v2"

	"github.com/osa030/audiolink/internal/domain/track"
)

// Empty is used by calls without parameters or results.
type Empty struct{}

// NodeInfo describes one audio node.
type NodeInfo struct {
	Name           string   `json:"name"`
	State          string   `json:"state"`
	Priority       int      `json:"priority"`
	Regions        []string `json:"regions,omitempty"`
	Players        int      `json:"players"`
	PlayingPlayers int      `json:"playingPlayers"`
	SystemLoad     float64  `json:"systemLoad"`
	Penalty        float64  `json:"penalty"`
	UptimeMs       int64    `json:"uptimeMs"`
}

type ListNodesResponse struct {
	Nodes []NodeInfo `json:"nodes"`
}

type NodeRequest struct {
	Name string `json:"name"`
}

type NodeResponse struct {
	Node NodeInfo `json:"node"`
}

// PlayerInfo describes one guild player.
type PlayerInfo struct {
	GuildID        snowflake.ID  `json:"guildId"`
	VoiceChannelID snowflake.ID  `json:"voiceChannelId"`
	TextChannelID  *snowflake.ID `json:"textChannelId,omitempty"`
	State          string        `json:"state"`
	Node           string        `json:"node,omitempty"`
	Volume         int           `json:"volume"`
	Paused         bool          `json:"paused"`
	PositionMs     int64         `json:"positionMs"`
	Current        *track.Track  `json:"current,omitempty"`
	QueueSize      int           `json:"queueSize"`
	Loop           string        `json:"loop"`
	Autoplay       bool          `json:"autoplay"`
}

type ListPlayersResponse struct {
	Players []PlayerInfo `json:"players"`
}

type CreatePlayerRequest struct {
	GuildID        snowflake.ID  `json:"guildId"`
	VoiceChannelID snowflake.ID  `json:"voiceChannelId"`
	TextChannelID  *snowflake.ID `json:"textChannelId,omitempty"`
	Volume         *int          `json:"volume,omitempty"`
	SelfDeaf       *bool         `json:"selfDeaf,omitempty"`
	Autoplay       *bool         `json:"autoplay,omitempty"`
}

type CreatePlayerResponse struct {
	Player  PlayerInfo `json:"player"`
	Created bool       `json:"created"`
}

// GuildRequest addresses the player of a guild.
type GuildRequest struct {
	GuildID snowflake.ID `json:"guildId"`
}

type PlayerResponse struct {
	Player PlayerInfo `json:"player"`
}

// RequesterInfo names the chat user a track is queued for.
type RequesterInfo struct {
	ID   snowflake.ID `json:"id"`
	Name string       `json:"name"`
}

// PlayRequest queues the result of a search. Without a requester the tracks
// are queued as the system and skip user admission filters.
type PlayRequest struct {
	GuildID   snowflake.ID   `json:"guildId"`
	Query     string         `json:"query"`
	Next      bool           `json:"next,omitempty"` // Queue ahead of the main lane
	Requester *RequesterInfo `json:"requester,omitempty"`
}

// RejectedTrack is a track refused by an admission filter.
type RejectedTrack struct {
	Track *track.Track `json:"track"`
	Code  string       `json:"code"`
}

type PlayResponse struct {
	Added    []*track.Track  `json:"added"`
	Rejected []RejectedTrack `json:"rejected"`
	Started  bool            `json:"started"`
	Player   PlayerInfo      `json:"player"`
}

type StopRequest struct {
	GuildID    snowflake.ID `json:"guildId"`
	ClearQueue bool         `json:"clearQueue,omitempty"`
}

type SeekRequest struct {
	GuildID    snowflake.ID `json:"guildId"`
	PositionMs int64        `json:"positionMs"`
}

type SetVolumeRequest struct {
	GuildID snowflake.ID `json:"guildId"`
	Volume  int          `json:"volume"`
}

type SetLoopRequest struct {
	GuildID snowflake.ID `json:"guildId"`
	Mode    string       `json:"mode"`
}

type QueueResponse struct {
	Current  *track.Track   `json:"current,omitempty"`
	Priority []*track.Track `json:"priority"`
	Tracks   []*track.Track `json:"tracks"`
	History  []*track.Track `json:"history"`
	Loop     string         `json:"loop"`
}

type WatchEventsRequest struct {
	Categories []string     `json:"categories,omitempty"` // Empty means all
	GuildID    snowflake.ID `json:"guildId,omitempty"`    // Zero means all guilds
}

// EventMessage is one streamed notification. Data keeps the payload encoding
// of the event type.
type EventMessage struct {
	SequenceNo uint64          `json:"sequenceNo"`
	Type       string          `json:"type"`
	Category   string          `json:"category"`
	Time       time.Time       `json:"time"`
	Node       string          `json:"node,omitempty"`
	GuildID    snowflake.ID    `json:"guildId,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
}

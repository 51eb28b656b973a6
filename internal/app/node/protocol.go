package node

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/disgoorg/snowflake/v2"

	"github.com/osa030/audiolink/internal/domain/filter"
	"github.com/osa030/audiolink/internal/domain/track"
)

// Op is the opcode of an inbound websocket frame.
type Op string

const (
	OpReady        Op = "ready"
	OpStats        Op = "stats"
	OpPlayerUpdate Op = "playerUpdate"
	OpEvent        Op = "event"
)

// EventType is the type of an OpEvent frame.
type EventType string

const (
	EventTrackStart      EventType = "TrackStartEvent"
	EventTrackEnd        EventType = "TrackEndEvent"
	EventTrackException  EventType = "TrackExceptionEvent"
	EventTrackStuck      EventType = "TrackStuckEvent"
	EventWebSocketClosed EventType = "WebSocketClosedEvent"
)

// TrackEndReason explains why a track ended.
type TrackEndReason string

const (
	ReasonFinished   TrackEndReason = "finished"
	ReasonLoadFailed TrackEndReason = "loadFailed"
	ReasonStopped    TrackEndReason = "stopped"
	ReasonReplaced   TrackEndReason = "replaced"
	ReasonCleanup    TrackEndReason = "cleanup"
)

// MayStartNext reports whether the queue should advance after this reason.
func (r TrackEndReason) MayStartNext() bool {
	return r == ReasonFinished || r == ReasonLoadFailed
}

// CloseCodeDisconnected is the voice close code for a forced disconnect.
const CloseCodeDisconnected = 4014

type ReadyMessage struct {
	Resumed   bool   `json:"resumed"`
	SessionID string `json:"sessionId"`
}

type Stats struct {
	Players        int         `json:"players"`
	PlayingPlayers int         `json:"playingPlayers"`
	Uptime         int64       `json:"uptime"`
	Memory         Memory      `json:"memory"`
	CPU            CPU         `json:"cpu"`
	FrameStats     *FrameStats `json:"frameStats,omitempty"`
}

type Memory struct {
	Free       int64 `json:"free"`
	Used       int64 `json:"used"`
	Allocated  int64 `json:"allocated"`
	Reservable int64 `json:"reservable"`
}

type CPU struct {
	Cores        int     `json:"cores"`
	SystemLoad   float64 `json:"systemLoad"`
	LavalinkLoad float64 `json:"lavalinkLoad"`
}

type FrameStats struct {
	Sent    int `json:"sent"`
	Nulled  int `json:"nulled"`
	Deficit int `json:"deficit"`
}

// PlayerState is the periodic position report of a remote player.
type PlayerState struct {
	Time      int64 `json:"time"` // Unix milliseconds at the node
	Position  int64 `json:"position"`
	Connected bool  `json:"connected"`
	Ping      int   `json:"ping"`
}

type PlayerUpdateMessage struct {
	GuildID snowflake.ID `json:"guildId"`
	State   PlayerState  `json:"state"`
}

type Exception struct {
	Message  string `json:"message"`
	Severity string `json:"severity"`
	Cause    string `json:"cause"`
}

// EventMessage is an OpEvent frame. Fields are populated according to Type.
type EventMessage struct {
	Type        EventType      `json:"type"`
	GuildID     snowflake.ID   `json:"guildId"`
	Track       *track.Track   `json:"track,omitempty"`
	Reason      TrackEndReason `json:"reason,omitempty"` // Close reason for WebSocketClosedEvent
	Exception   *Exception     `json:"exception,omitempty"`
	ThresholdMs int64          `json:"thresholdMs,omitempty"`
	Code        int            `json:"code,omitempty"`
	ByRemote    bool           `json:"byRemote,omitempty"`
}

// VoiceState carries the voice credentials a node needs to join a channel.
type VoiceState struct {
	Token     string `json:"token"`
	Endpoint  string `json:"endpoint"`
	SessionID string `json:"sessionId"`
	ChannelID string `json:"channelId,omitempty"`
}

// TrackUpdate selects the track of a remote player. A nil Encoded stops playback.
type TrackUpdate struct {
	Encoded  *string        `json:"encoded"`
	UserData map[string]any `json:"userData,omitempty"`
}

// PlayerUpdate is the PATCH body for a remote player. Nil fields are left unchanged.
type PlayerUpdate struct {
	Track    *TrackUpdate    `json:"track,omitempty"`
	Position *int64          `json:"position,omitempty"`
	EndTime  *int64          `json:"endTime,omitempty"`
	Volume   *int            `json:"volume,omitempty"`
	Paused   *bool           `json:"paused,omitempty"`
	Filters  *filter.Filters `json:"filters,omitempty"`
	Voice    *VoiceState     `json:"voice,omitempty"`
}

// RemotePlayer is a player as reported by a node.
type RemotePlayer struct {
	GuildID snowflake.ID    `json:"guildId"`
	Track   *track.Track    `json:"track,omitempty"`
	Volume  int             `json:"volume"`
	Paused  bool            `json:"paused"`
	State   PlayerState     `json:"state"`
	Voice   VoiceState      `json:"voice"`
	Filters *filter.Filters `json:"filters,omitempty"`
}

// LoadType is the kind of result returned by LoadTracks.
type LoadType string

const (
	LoadTypeTrack    LoadType = "track"
	LoadTypePlaylist LoadType = "playlist"
	LoadTypeSearch   LoadType = "search"
	LoadTypeEmpty    LoadType = "empty"
	LoadTypeError    LoadType = "error"
)

type PlaylistInfo struct {
	Name          string `json:"name"`
	SelectedTrack int    `json:"selectedTrack"`
}

// LoadResult is the decoded response of LoadTracks.
type LoadResult struct {
	LoadType  LoadType
	Tracks    []*track.Track
	Playlist  *PlaylistInfo
	Exception *Exception
}

// UnmarshalJSON flattens the type-dependent "data" field.
func (r *LoadResult) UnmarshalJSON(b []byte) error {
	var raw struct {
		LoadType LoadType        `json:"loadType"`
		Data     json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return errors.Wrap(err, "failed to decode load result")
	}
	*r = LoadResult{LoadType: raw.LoadType}

	var err error
	switch raw.LoadType {
	case LoadTypeTrack:
		var t track.Track
		err = json.Unmarshal(raw.Data, &t)
		r.Tracks = []*track.Track{&t}
	case LoadTypePlaylist:
		var p struct {
			Info   PlaylistInfo   `json:"info"`
			Tracks []*track.Track `json:"tracks"`
		}
		err = json.Unmarshal(raw.Data, &p)
		r.Playlist = &p.Info
		r.Tracks = p.Tracks
	case LoadTypeSearch:
		err = json.Unmarshal(raw.Data, &r.Tracks)
	case LoadTypeError:
		r.Exception = &Exception{}
		err = json.Unmarshal(raw.Data, r.Exception)
	case LoadTypeEmpty:
	default:
		return errors.Newf("unknown load type: %q", raw.LoadType)
	}
	if err != nil {
		return errors.Wrapf(err, "failed to decode %s data", raw.LoadType)
	}
	return nil
}

// Info describes the software running on a node.
type Info struct {
	Version struct {
		Semver string `json:"semver"`
		Major  int    `json:"major"`
		Minor  int    `json:"minor"`
		Patch  int    `json:"patch"`
	} `json:"version"`
	BuildTime      int64    `json:"buildTime"`
	SourceManagers []string `json:"sourceManagers"`
	Filters        []string `json:"filters"`
	Plugins        []struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"plugins"`
}

type sessionUpdate struct {
	Resuming bool  `json:"resuming"`
	Timeout  int64 `json:"timeout"` // Seconds
}

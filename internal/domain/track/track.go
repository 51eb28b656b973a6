// Package track provides the Track domain entity.
package track

import (
	"maps"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

// Track is a playable item resolved by an audio node.
// Encoded is opaque to this service and is handed back to the node verbatim.
type Track struct {
	Encoded    string         `json:"encoded"`
	Info       Info           `json:"info"`
	PluginInfo map[string]any `json:"pluginInfo,omitempty"` // Data attached by node-side source plugins
	UserData   map[string]any `json:"userData,omitempty"`   // Free-form metadata owned by the caller
	Requester  *Requester     `json:"requester,omitempty"`
}

// Info holds the display metadata of a track.
type Info struct {
	Identifier string `json:"identifier"`
	IsSeekable bool   `json:"isSeekable"`
	Author     string `json:"author"`
	Length     int64  `json:"length"` // Milliseconds
	IsStream   bool   `json:"isStream"`
	Position   int64  `json:"position"`
	Title      string `json:"title"`
	URI        string `json:"uri,omitempty"`
	ArtworkURL string `json:"artworkUrl,omitempty"`
	ISRC       string `json:"isrc,omitempty"`
	SourceName string `json:"sourceName"`
}

// RequesterType represents the type of requester.
type RequesterType string

const (
	RequesterTypeUser     RequesterType = "USER"
	RequesterTypeSystem   RequesterType = "SYSTEM"
	RequesterTypeAutoplay RequesterType = "AUTOPLAY"
)

// Requester represents who asked for the track.
type Requester struct {
	ID   snowflake.ID  `json:"id"`
	Name string        `json:"name"`
	Type RequesterType `json:"type"`
}

// Duration returns the track length.
func (t *Track) Duration() time.Duration {
	return time.Duration(t.Info.Length) * time.Millisecond
}

// Clone returns a copy that shares no mutable state with t.
func (t *Track) Clone() *Track {
	if t == nil {
		return nil
	}
	c := *t
	c.PluginInfo = maps.Clone(t.PluginInfo)
	c.UserData = maps.Clone(t.UserData)
	if t.Requester != nil {
		r := *t.Requester
		c.Requester = &r
	}
	return &c
}

// Same reports whether both tracks refer to the same encoded payload.
func (t *Track) Same(other *Track) bool {
	if t == nil || other == nil {
		return t == other
	}
	return t.Encoded == other.Encoded
}

// WithRequester stamps the requester on the track and returns it.
func (t *Track) WithRequester(r *Requester) *Track {
	if r != nil {
		cp := *r
		t.Requester = &cp
	}
	return t
}

package node

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/disgoorg/snowflake/v2"

	"github.com/osa030/audiolink/internal/domain/track"
)

// RESTError is returned for node responses with status >= 400.
type RESTError struct {
	Status  int
	Message string
	Path    string
}

func (e *RESTError) Error() string {
	return fmt.Sprintf("node responded %d for %s: %s", e.Status, e.Path, e.Message)
}

// Request performs a REST call against the node's /v4 API.
// It returns the raw JSON body, or nil for an empty body.
func (n *Node) Request(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(err, "failed to encode request body")
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, n.restBase+path, reader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Authorization", n.cfg.Password)
	req.Header.Set("User-Agent", n.cfg.ClientName)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response body")
	}

	if resp.StatusCode >= 400 {
		restErr := &RESTError{Status: resp.StatusCode, Path: path, Message: http.StatusText(resp.StatusCode)}
		var payload struct {
			Message string `json:"message"`
			Error   string `json:"error"`
		}
		if json.Unmarshal(data, &payload) == nil {
			if payload.Message != "" {
				restErr.Message = payload.Message
			} else if payload.Error != "" {
				restErr.Message = payload.Error
			}
		}
		return nil, restErr
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	return data, nil
}

func (n *Node) requestInto(ctx context.Context, method, path string, body, out any) error {
	raw, err := n.Request(ctx, method, path, body)
	if err != nil {
		return err
	}
	if out == nil || raw == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.Wrapf(err, "failed to decode response of %s", path)
	}
	return nil
}

// LoadTracks resolves an identifier or a prefixed search query ("ytsearch:...").
func (n *Node) LoadTracks(ctx context.Context, identifier string) (*LoadResult, error) {
	var result LoadResult
	path := "/loadtracks?identifier=" + url.QueryEscape(identifier)
	if err := n.requestInto(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// DecodeTrack decodes one encoded track.
func (n *Node) DecodeTrack(ctx context.Context, encoded string) (*track.Track, error) {
	var t track.Track
	path := "/decodetrack?encodedTrack=" + url.QueryEscape(encoded)
	if err := n.requestInto(ctx, http.MethodGet, path, nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// DecodeTracks decodes many encoded tracks in one call.
func (n *Node) DecodeTracks(ctx context.Context, encoded []string) ([]*track.Track, error) {
	var tracks []*track.Track
	if err := n.requestInto(ctx, http.MethodPost, "/decodetracks", encoded, &tracks); err != nil {
		return nil, err
	}
	return tracks, nil
}

// Info fetches the node's version and capabilities.
func (n *Node) Info(ctx context.Context) (*Info, error) {
	var info Info
	if err := n.requestInto(ctx, http.MethodGet, "/info", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// FetchStats fetches stats over REST and stores them as the latest snapshot.
func (n *Node) FetchStats(ctx context.Context) (*Stats, error) {
	var stats Stats
	if err := n.requestInto(ctx, http.MethodGet, "/stats", nil, &stats); err != nil {
		return nil, err
	}
	n.mu.Lock()
	s := stats
	n.stats = &s
	n.mu.Unlock()
	return &stats, nil
}

func (n *Node) sessionPath() (string, error) {
	sessionID := n.SessionID()
	if sessionID == "" {
		return "", errors.Wrapf(ErrNodeNotConnected, "node %s has no session", n.cfg.Name)
	}
	return "/sessions/" + url.PathEscape(sessionID), nil
}

// UpdatePlayer patches the remote player of a guild.
// With noReplace the node keeps a track that is already playing.
func (n *Node) UpdatePlayer(ctx context.Context, guildID snowflake.ID, update *PlayerUpdate, noReplace bool) (*RemotePlayer, error) {
	base, err := n.sessionPath()
	if err != nil {
		return nil, err
	}
	path := base + "/players/" + guildID.String() + "?noReplace=" + strconv.FormatBool(noReplace)

	var player RemotePlayer
	if err := n.requestInto(ctx, http.MethodPatch, path, update, &player); err != nil {
		return nil, err
	}
	return &player, nil
}

// Players lists the remote players of the current session.
func (n *Node) Players(ctx context.Context) ([]RemotePlayer, error) {
	base, err := n.sessionPath()
	if err != nil {
		return nil, err
	}
	var players []RemotePlayer
	if err := n.requestInto(ctx, http.MethodGet, base+"/players", nil, &players); err != nil {
		return nil, err
	}
	return players, nil
}

// DestroyPlayer deletes the remote player of a guild.
func (n *Node) DestroyPlayer(ctx context.Context, guildID snowflake.ID) error {
	base, err := n.sessionPath()
	if err != nil {
		return err
	}
	_, err = n.Request(ctx, http.MethodDelete, base+"/players/"+guildID.String(), nil)
	return err
}

// UpdateSession configures session resuming on the node.
func (n *Node) UpdateSession(ctx context.Context, resuming bool, timeout time.Duration) error {
	base, err := n.sessionPath()
	if err != nil {
		return err
	}
	_, err = n.Request(ctx, http.MethodPatch, base, sessionUpdate{Resuming: resuming, Timeout: int64(timeout / time.Second)})
	return err
}

// Package lastfm provides a client for the Last.fm API.
package lastfm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

const defaultBaseURL = "https://ws.audioscrobbler.com/2.0/"

// Client is a Last.fm API client.
// Tag lookups are cached for the lifetime of the client.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client

	cacheMu sync.RWMutex
	cache   map[string]any
}

// Config represents Last.fm client configuration.
type Config struct {
	APIKey     string
	BaseURL    string       // Defaults to the public endpoint
	HTTPClient *http.Client // Defaults to a client with a 10s timeout
}

// SimilarTrack represents a similar track from Last.fm.
type SimilarTrack struct {
	Name   string
	Artist string
	Match  float64 // Similarity in [0, 1]
}

// Tag represents a Last.fm tag.
type Tag struct {
	Name  string
	Count int // Tag count/frequency
}

// TopTrack represents a top track for a tag or chart.
type TopTrack struct {
	Name   string
	Artist string
}

// APIError is an error envelope returned by Last.fm.
type APIError struct {
	Code    int    `json:"error"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return "last.fm API error " + strconv.Itoa(e.Code) + ": " + e.Message
}

type artistRef struct {
	Name string `json:"name"`
}

type similarResponse struct {
	SimilarTracks struct {
		Track []struct {
			Name   string          `json:"name"`
			Match  json.RawMessage `json:"match"`
			Artist artistRef       `json:"artist"`
		} `json:"track"`
	} `json:"similartracks"`
}

type topTagsResponse struct {
	TopTags struct {
		Tag []struct {
			Name  string `json:"name"`
			Count int    `json:"count"`
		} `json:"tag"`
	} `json:"toptags"`
}

type topTracksResponse struct {
	Tracks struct {
		Track []struct {
			Name   string    `json:"name"`
			Artist artistRef `json:"artist"`
		} `json:"track"`
	} `json:"tracks"`
}

// New creates a new Last.fm client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("last.fm API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}

	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		httpClient: cfg.HTTPClient,
		cache:      make(map[string]any),
	}, nil
}

// GetSimilarTracks retrieves similar tracks from Last.fm based on track name and artist.
// Reference: https://www.last.fm/api/show/track.getSimilar
func (c *Client) GetSimilarTracks(ctx context.Context, trackName, artistName string, limit int) ([]SimilarTrack, error) {
	if trackName == "" || artistName == "" {
		return nil, errors.New("track name and artist name are required")
	}

	params := url.Values{}
	params.Set("method", "track.getSimilar")
	params.Set("artist", artistName)
	params.Set("track", trackName)
	params.Set("limit", strconv.Itoa(clampLimit(limit, 20)))
	params.Set("autocorrect", "1")

	var response similarResponse
	if err := c.call(ctx, params, &response); err != nil {
		return nil, err
	}

	similar := make([]SimilarTrack, 0, len(response.SimilarTracks.Track))
	for _, t := range response.SimilarTracks.Track {
		similar = append(similar, SimilarTrack{
			Name:   t.Name,
			Artist: t.Artist.Name,
			Match:  parseMatch(t.Match),
		})
	}
	return similar, nil
}

// GetTopTags retrieves top tags for a track from Last.fm.
// Reference: https://www.last.fm/api/show/track.getTopTags
func (c *Client) GetTopTags(ctx context.Context, trackName, artistName string, limit int) ([]Tag, error) {
	if trackName == "" || artistName == "" {
		return nil, errors.New("track name and artist name are required")
	}
	limit = clampLimit(limit, 10)

	cacheKey := "tracktag:" + strings.ToLower(artistName) + ":" + strings.ToLower(trackName)
	if tags, ok := cached[[]Tag](c, cacheKey); ok {
		return truncate(tags, limit), nil
	}

	params := url.Values{}
	params.Set("method", "track.getTopTags")
	params.Set("artist", artistName)
	params.Set("track", trackName)
	params.Set("autocorrect", "1")

	var response topTagsResponse
	if err := c.call(ctx, params, &response); err != nil {
		return nil, err
	}

	tags := make([]Tag, 0, len(response.TopTags.Tag))
	for _, t := range response.TopTags.Tag {
		tags = append(tags, Tag{Name: t.Name, Count: t.Count})
	}

	c.store(cacheKey, tags)
	zlog.Debug().Msgf("lastfm: cached tags: track=%s - %s count=%d", artistName, trackName, len(tags))
	return truncate(tags, limit), nil
}

// GetTopTracks retrieves top tracks for a tag from Last.fm.
// Reference: https://www.last.fm/api/show/tag.getTopTracks
func (c *Client) GetTopTracks(ctx context.Context, tagName string, limit int) ([]TopTrack, error) {
	if tagName == "" {
		return nil, errors.New("tag name is required")
	}
	limit = clampLimit(limit, 20)

	cacheKey := "tagtracks:" + strings.ToLower(tagName) + ":" + strconv.Itoa(limit)
	if tracks, ok := cached[[]TopTrack](c, cacheKey); ok {
		return tracks, nil
	}

	params := url.Values{}
	params.Set("method", "tag.getTopTracks")
	params.Set("tag", tagName)
	params.Set("limit", strconv.Itoa(limit))

	tracks, err := c.topTracks(ctx, params)
	if err != nil {
		return nil, err
	}

	c.store(cacheKey, tracks)
	zlog.Debug().Msgf("lastfm: cached top tracks: tag=%s count=%d", tagName, len(tracks))
	return tracks, nil
}

// GetChartTopTracks retrieves global top tracks from Last.fm charts.
// Reference: https://www.last.fm/api/show/chart.getTopTracks
func (c *Client) GetChartTopTracks(ctx context.Context, limit int) ([]TopTrack, error) {
	params := url.Values{}
	params.Set("method", "chart.getTopTracks")
	params.Set("limit", strconv.Itoa(clampLimit(limit, 20)))
	return c.topTracks(ctx, params)
}

func (c *Client) topTracks(ctx context.Context, params url.Values) ([]TopTrack, error) {
	var response topTracksResponse
	if err := c.call(ctx, params, &response); err != nil {
		return nil, err
	}
	tracks := make([]TopTrack, 0, len(response.Tracks.Track))
	for _, t := range response.Tracks.Track {
		tracks = append(tracks, TopTrack{Name: t.Name, Artist: t.Artist.Name})
	}
	return tracks, nil
}

// call performs a GET against the API and decodes the body into out.
func (c *Client) call(ctx context.Context, params url.Values, out any) error {
	params.Set("api_key", c.apiKey)
	params.Set("format", "json")
	method := params.Get("method")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "failed to send request: method=%s", method)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "failed to read response body")
	}

	// Errors come back as an envelope, sometimes with a 200 status.
	var apiErr APIError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Code != 0 {
		return errors.WithStack(&apiErr)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return errors.Newf("last.fm request failed: method=%s status=%d", method, resp.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrapf(err, "failed to parse response: method=%s", method)
	}
	return nil
}

func cached[T any](c *Client, key string) (T, bool) {
	c.cacheMu.RLock()
	defer c.cacheMu.RUnlock()
	v, ok := c.cache[key].(T)
	return v, ok
}

func (c *Client) store(key string, v any) {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	c.cache[key] = v
}

func clampLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	if limit > 100 {
		return 100
	}
	return limit
}

func truncate[T any](s []T, n int) []T {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// parseMatch accepts both the numeric and string encodings Last.fm uses.
func parseMatch(raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return 0
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		f, _ = strconv.ParseFloat(s, 64)
	}
	return f
}

// Package spotify provides a read-only client for the Spotify Web API.
package spotify

import (
	"context"
	cryptoRand "crypto/rand"
	"encoding/binary"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// pageLimit is the largest page the playlist endpoint serves.
const pageLimit = 100

// Song is the subset of track metadata autoplay needs.
type Song struct {
	ID         string
	Title      string
	Artists    []string
	Album      string
	ArtworkURL string
	Duration   time.Duration
	URL        string
}

// Artist returns the primary artist, or an empty string.
func (s Song) Artist() string {
	if len(s.Artists) == 0 {
		return ""
	}
	return s.Artists[0]
}

// Client is a Spotify API client authenticated with the client credentials flow.
type Client struct {
	client     *spotify.Client
	market     string
	maxRetries int
	retryDelay time.Duration

	rngMu sync.Mutex
	rng   *rand.Rand
}

// Config represents Spotify client configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	Market       string

	// Overrides for tests.
	TokenURL   string
	BaseURL    string
	HTTPClient *http.Client
}

// New creates a new Spotify client. Tokens are fetched lazily and refreshed on expiry.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("spotify credentials are required")
	}

	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = spotifyauth.TokenURL
	}
	if cfg.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, cfg.HTTPClient)
	}
	creds := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     tokenURL,
	}

	var opts []spotify.ClientOption
	if cfg.BaseURL != "" {
		opts = append(opts, spotify.WithBaseURL(cfg.BaseURL))
	}

	market := cfg.Market
	if market == "" {
		market = "US"
	}

	return &Client{
		client:     spotify.New(creds.Client(ctx), opts...),
		market:     market,
		maxRetries: 3,
		retryDelay: time.Second,
		rng:        newRand(),
	}, nil
}

// GetTrack retrieves track information by ID, URL, or URI.
func (c *Client) GetTrack(ctx context.Context, trackID string) (*Song, error) {
	id := extractTrackID(trackID)
	if id == "" {
		return nil, errors.New("track id is required")
	}

	var result *spotify.FullTrack
	err := c.retry(ctx, func() error {
		t, err := c.client.GetTrack(ctx, spotify.ID(id), spotify.Market(c.market))
		if err != nil {
			return err
		}
		result = t
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to get track")
	}

	song := convertTrack(result)
	return &song, nil
}

// Search searches for tracks on Spotify.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]Song, error) {
	if query == "" {
		return nil, errors.New("search query is required")
	}

	if limit <= 0 {
		limit = 20
	}
	if limit > 50 {
		limit = 50
	}

	var result *spotify.SearchResult
	err := c.retry(ctx, func() error {
		r, err := c.client.Search(ctx, query, spotify.SearchTypeTrack,
			spotify.Limit(limit),
			spotify.Market(c.market),
		)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to search")
	}
	if result.Tracks == nil {
		return nil, nil
	}

	songs := make([]Song, 0, len(result.Tracks.Tracks))
	for i := range result.Tracks.Tracks {
		songs = append(songs, convertTrack(&result.Tracks.Tracks[i]))
	}
	return songs, nil
}

// GetPlaylistTracksRandom retrieves a random sample of tracks from a playlist.
// First gets the total track count, then fetches a random page and returns up to count tracks.
func (c *Client) GetPlaylistTracksRandom(ctx context.Context, playlistURL string, count int) ([]Song, error) {
	playlistID := extractPlaylistID(playlistURL)
	if playlistID == "" {
		return nil, errors.New("invalid playlist URL")
	}

	first, err := c.playlistPage(ctx, playlistID, 1, 0)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get playlist info")
	}

	total := int(first.Total)
	if total == 0 {
		return []Song{}, nil
	}

	// Keep a full page reachable so the sample has room to shuffle.
	maxOffset := total - pageLimit
	offset := 0
	if maxOffset > 0 {
		c.rngMu.Lock()
		offset = c.rng.Intn(maxOffset + 1)
		c.rngMu.Unlock()
	}

	page, err := c.playlistPage(ctx, playlistID, pageLimit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get playlist items")
	}

	var songs []Song
	for _, item := range page.Items {
		// Episodes have no track.
		if item.Track.Track != nil && item.Track.Track.ID != "" {
			songs = append(songs, convertTrack(item.Track.Track))
		}
	}

	c.rngMu.Lock()
	c.rng.Shuffle(len(songs), func(i, j int) {
		songs[i], songs[j] = songs[j], songs[i]
	})
	c.rngMu.Unlock()
	if len(songs) > count {
		songs = songs[:count]
	}
	return songs, nil
}

// CheckPlaylistExists checks if a playlist exists without fetching all tracks.
func (c *Client) CheckPlaylistExists(ctx context.Context, playlistURL string) error {
	playlistID := extractPlaylistID(playlistURL)
	if playlistID == "" {
		return errors.New("invalid playlist URL")
	}
	if _, err := c.playlistPage(ctx, playlistID, 1, 0); err != nil {
		return errors.Wrap(err, "playlist does not exist or is not accessible")
	}
	return nil
}

func (c *Client) playlistPage(ctx context.Context, playlistID string, limit, offset int) (*spotify.PlaylistItemPage, error) {
	var page *spotify.PlaylistItemPage
	err := c.retry(ctx, func() error {
		p, err := c.client.GetPlaylistItems(ctx, spotify.ID(playlistID),
			spotify.Limit(limit),
			spotify.Offset(offset),
			spotify.Market(c.market),
		)
		if err != nil {
			return err
		}
		page = p
		return nil
	})
	return page, err
}

// convertTrack converts a Spotify FullTrack to a Song.
func convertTrack(t *spotify.FullTrack) Song {
	artists := make([]string, len(t.Artists))
	for i, a := range t.Artists {
		artists[i] = a.Name
	}

	var artwork string
	if len(t.Album.Images) > 0 {
		artwork = t.Album.Images[0].URL
	}

	return Song{
		ID:         string(t.ID),
		Title:      t.Name,
		Artists:    artists,
		Album:      t.Album.Name,
		ArtworkURL: artwork,
		Duration:   time.Duration(t.Duration) * time.Millisecond,
		URL:        TrackURL(string(t.ID)),
	}
}

// TrackURL returns the Spotify URL for a track.
func TrackURL(trackID string) string {
	return "https://open.spotify.com/track/" + trackID
}

// retry retries an operation with linear backoff while the error is transient.
func (c *Client) retry(ctx context.Context, fn func() error) error {
	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}

		if i < c.maxRetries-1 {
			select {
			case <-ctx.Done():
				return errors.CombineErrors(lastErr, ctx.Err())
			case <-time.After(c.retryDelay * time.Duration(i+1)):
			}
		}
	}
	return errors.Wrap(lastErr, "max retries exceeded")
}

// isRetryable checks if an error is retryable.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	var apiErr spotify.Error
	if errors.As(err, &apiErr) {
		return apiErr.Status == http.StatusTooManyRequests || apiErr.Status >= http.StatusInternalServerError
	}
	// Rate limit errors and server errors are retryable
	errStr := err.Error()
	return strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504")
}

// extractPlaylistID extracts the playlist ID from a Spotify playlist URL or URI.
func extractPlaylistID(input string) string {
	return extractID(input, "playlist")
}

// extractTrackID extracts the track ID from a Spotify track URL or URI.
func extractTrackID(input string) string {
	return extractID(input, "track")
}

// extractID handles spotify:<kind>:<id>, open.spotify.com/[intl-xx/]<kind>/<id> and bare ids.
func extractID(input, kind string) string {
	input = strings.TrimSpace(input)
	if id, ok := strings.CutPrefix(input, "spotify:"+kind+":"); ok {
		return id
	}

	if strings.Contains(input, "open.spotify.com") && strings.Contains(input, "/"+kind+"/") {
		parts := strings.Split(input, "/"+kind+"/")
		id := strings.Split(parts[len(parts)-1], "?")[0]
		return strings.TrimRight(id, "/")
	}

	return input
}

func newRand() *rand.Rand {
	var seed int64
	var buf [8]byte
	if _, err := cryptoRand.Read(buf[:]); err == nil {
		seed = int64(binary.LittleEndian.Uint64(buf[:]))
	} else {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

package spotify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zmb3/spotify/v2"
)

func TestExtractPlaylistID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "Spotify URI format",
			input:    "spotify:playlist:37i9dQZF1DXcBWIGoYBM5M",
			expected: "37i9dQZF1DXcBWIGoYBM5M",
		},
		{
			name:     "Spotify URL format",
			input:    "https://open.spotify.com/playlist/37i9dQZF1DXcBWIGoYBM5M",
			expected: "37i9dQZF1DXcBWIGoYBM5M",
		},
		{
			name:     "Spotify URL with query params",
			input:    "https://open.spotify.com/playlist/37i9dQZF1DXcBWIGoYBM5M?si=abc123",
			expected: "37i9dQZF1DXcBWIGoYBM5M",
		},
		{
			name:     "localized URL",
			input:    "https://open.spotify.com/intl-ja/playlist/abc123/",
			expected: "abc123",
		},
		{
			name:     "Plain playlist ID",
			input:    "37i9dQZF1DXcBWIGoYBM5M",
			expected: "37i9dQZF1DXcBWIGoYBM5M",
		},
		{
			name:     "Empty string",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, extractPlaylistID(tt.input))
		})
	}
}

func TestExtractTrackID(t *testing.T) {
	assert.Equal(t, "4uLU6hMCjMI75M1A2tKUQC", extractTrackID("spotify:track:4uLU6hMCjMI75M1A2tKUQC"))
	assert.Equal(t, "4uLU6hMCjMI75M1A2tKUQC", extractTrackID("https://open.spotify.com/track/4uLU6hMCjMI75M1A2tKUQC?si=1"))
	assert.Equal(t, "playlist-url", extractTrackID(" playlist-url "))
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{name: "nil error", err: nil, expected: false},
		{name: "api rate limit", err: spotify.Error{Status: http.StatusTooManyRequests, Message: "slow down"}, expected: true},
		{name: "api server error", err: spotify.Error{Status: http.StatusServiceUnavailable}, expected: true},
		{name: "api not found", err: spotify.Error{Status: http.StatusNotFound, Message: "429 in message"}, expected: false},
		{name: "rate limit text", err: errors.New("rate limit exceeded"), expected: true},
		{name: "server error 502", err: errors.New("502 Bad Gateway"), expected: true},
		{name: "client error 400", err: errors.New("400 Bad Request"), expected: false},
		{name: "generic error", err: errors.New("something went wrong"), expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, isRetryable(tt.err))
		})
	}
}

const playlistItemJSON = `{"track": {"type": "track", "id": "%[1]s", "name": "Song %[1]s", "duration_ms": 200000,
	"artists": [{"name": "Artist %[1]s"}], "album": {"name": "Album", "images": [{"url": "https://img/%[1]s"}]}}}`

// newTestClient serves the token endpoint and the Web API from one test server.
func newTestClient(t *testing.T, api http.HandlerFunc) *Client {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token": "test-token", "token_type": "bearer", "expires_in": 3600}`)
	})
	mux.HandleFunc("/v1/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		api(w, r)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	c, err := New(context.Background(), Config{
		ClientID:     "id",
		ClientSecret: "secret",
		Market:       "JP",
		TokenURL:     server.URL + "/token",
		BaseURL:      server.URL + "/v1/",
		HTTPClient:   server.Client(),
	})
	require.NoError(t, err)
	c.retryDelay = time.Millisecond
	return c
}

func TestNew_RequiresCredentials(t *testing.T) {
	_, err := New(context.Background(), Config{ClientID: "id"})
	assert.Error(t, err)
}

func TestGetPlaylistTracksRandom(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasPrefix(r.URL.Path, "/v1/playlists/pl1/"), r.URL.Path)
		assert.Equal(t, "JP", r.URL.Query().Get("market"))
		if r.URL.Query().Get("limit") == "1" {
			fmt.Fprintf(w, `{"items": [%s], "limit": 1, "offset": 0, "total": 3}`, fmt.Sprintf(playlistItemJSON, "a"))
			return
		}
		assert.Equal(t, "0", r.URL.Query().Get("offset"))
		fmt.Fprintf(w, `{"items": [%s, %s, %s], "limit": 100, "offset": 0, "total": 3}`,
			fmt.Sprintf(playlistItemJSON, "a"), fmt.Sprintf(playlistItemJSON, "b"), fmt.Sprintf(playlistItemJSON, "c"))
	})

	songs, err := c.GetPlaylistTracksRandom(context.Background(), "https://open.spotify.com/playlist/pl1?si=x", 2)
	require.NoError(t, err)
	require.Len(t, songs, 2)
	for _, s := range songs {
		assert.Contains(t, []string{"a", "b", "c"}, s.ID)
		assert.Equal(t, "Song "+s.ID, s.Title)
		assert.Equal(t, "Artist "+s.ID, s.Artist())
		assert.Equal(t, 200*time.Second, s.Duration)
		assert.Equal(t, "https://open.spotify.com/track/"+s.ID, s.URL)
		assert.Equal(t, "https://img/"+s.ID, s.ArtworkURL)
	}
	assert.NotEqual(t, songs[0].ID, songs[1].ID)
}

func TestGetPlaylistTracksRandom_Empty(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"items": [], "limit": 1, "offset": 0, "total": 0}`)
	})

	songs, err := c.GetPlaylistTracksRandom(context.Background(), "spotify:playlist:empty", 5)
	require.NoError(t, err)
	assert.Empty(t, songs)
}

func TestSearch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/search", r.URL.Path)
		assert.Equal(t, "track", r.URL.Query().Get("type"))
		assert.Equal(t, "artist:Foo", r.URL.Query().Get("q"))
		assert.Equal(t, "50", r.URL.Query().Get("limit"))
		fmt.Fprint(w, `{"tracks": {"items": [{"id": "x1", "name": "Bar", "duration_ms": 1000,
			"artists": [{"name": "Foo"}, {"name": "Guest"}], "album": {"name": "LP"}}], "total": 1}}`)
	})

	songs, err := c.Search(context.Background(), "artist:Foo", 500)
	require.NoError(t, err)
	require.Len(t, songs, 1)
	assert.Equal(t, []string{"Foo", "Guest"}, songs[0].Artists)
	assert.Equal(t, "LP", songs[0].Album)
	assert.Empty(t, songs[0].ArtworkURL)

	_, err = c.Search(context.Background(), "", 1)
	assert.Error(t, err)
}

func TestGetTrack_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/tracks/t1", r.URL.Path)
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprint(w, `{"error": {"status": 503, "message": "try later"}}`)
			return
		}
		fmt.Fprint(w, `{"id": "t1", "name": "Later", "artists": [{"name": "A"}], "album": {"name": "B"}}`)
	})

	song, err := c.GetTrack(context.Background(), "spotify:track:t1")
	require.NoError(t, err)
	assert.Equal(t, "Later", song.Title)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGetTrack_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error": {"status": 404, "message": "non existing id"}}`)
	})

	_, err := c.GetTrack(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

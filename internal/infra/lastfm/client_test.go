package lastfm

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestClient returns a client talking to handler and a counter of requests served.
func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	client, err := New(Config{APIKey: "test_key", BaseURL: server.URL + "/"})
	require.NoError(t, err)
	return client, &calls
}

func TestNew_RequiresAPIKey(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestGetTopTags(t *testing.T) {
	client, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "track.getTopTags", r.URL.Query().Get("method"))
		assert.Equal(t, "test_artist", r.URL.Query().Get("artist"))
		assert.Equal(t, "test_track", r.URL.Query().Get("track"))
		assert.Equal(t, "test_key", r.URL.Query().Get("api_key"))
		assert.Equal(t, "json", r.URL.Query().Get("format"))

		fmt.Fprint(w, `{
			"toptags": {
				"tag": [
					{"name": "rock", "count": 100, "url": "http://last.fm/tag/rock"},
					{"name": "alternative", "count": 80, "url": "http://last.fm/tag/alternative"},
					{"name": "90s", "count": 20, "url": "http://last.fm/tag/90s"}
				]
			}
		}`)
	})

	ctx := context.Background()
	tags, err := client.GetTopTags(ctx, "test_track", "test_artist", 2)
	require.NoError(t, err)
	require.Len(t, tags, 2)
	assert.Equal(t, Tag{Name: "rock", Count: 100}, tags[0])

	// The cache holds the full list, so a wider limit is served without a request.
	all, err := client.GetTopTags(ctx, "test_track", "test_artist", 10)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGetTopTracks(t *testing.T) {
	client, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tag.getTopTracks", r.URL.Query().Get("method"))
		assert.Equal(t, "rock", r.URL.Query().Get("tag"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))

		fmt.Fprint(w, `{
			"tracks": {
				"track": [
					{"name": "Track 1", "mbid": "mbid1", "artist": {"name": "Artist 1"}, "playcount": "5000"},
					{"name": "Track 2", "mbid": "mbid2", "artist": {"name": "Artist 2"}, "playcount": "2000"}
				]
			}
		}`)
	})

	ctx := context.Background()
	tracks, err := client.GetTopTracks(ctx, "rock", 5)
	require.NoError(t, err)
	assert.Equal(t, []TopTrack{
		{Name: "Track 1", Artist: "Artist 1"},
		{Name: "Track 2", Artist: "Artist 2"},
	}, tracks)

	again, err := client.GetTopTracks(ctx, "Rock", 5)
	require.NoError(t, err)
	assert.Equal(t, tracks, again)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGetSimilarTracks(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "track.getSimilar", r.URL.Query().Get("method"))
		assert.Equal(t, "1", r.URL.Query().Get("autocorrect"))
		assert.Equal(t, "20", r.URL.Query().Get("limit"))

		fmt.Fprint(w, `{
			"similartracks": {
				"track": [
					{"name": "Near", "match": 0.92, "artist": {"name": "A"}},
					{"name": "Far", "match": "0.1", "artist": {"name": "B"}}
				]
			}
		}`)
	})

	similar, err := client.GetSimilarTracks(context.Background(), "Song", "Artist", 0)
	require.NoError(t, err)
	require.Len(t, similar, 2)
	assert.Equal(t, SimilarTrack{Name: "Near", Artist: "A", Match: 0.92}, similar[0])
	assert.InDelta(t, 0.1, similar[1].Match, 1e-9)
}

func TestGetChartTopTracks(t *testing.T) {
	client, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "chart.getTopTracks", r.URL.Query().Get("method"))
		assert.Equal(t, "100", r.URL.Query().Get("limit"))
		fmt.Fprint(w, `{"tracks": {"track": [{"name": "Hit", "artist": {"name": "Star"}}]}}`)
	})

	ctx := context.Background()
	tracks, err := client.GetChartTopTracks(ctx, 500)
	require.NoError(t, err)
	assert.Equal(t, []TopTrack{{Name: "Hit", Artist: "Star"}}, tracks)

	// Charts are not cached.
	_, err = client.GetChartTopTracks(ctx, 500)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantAPI bool
		errMsg  string
	}{
		{
			name:    "error envelope with ok status",
			status:  http.StatusOK,
			body:    `{"error": 6, "message": "Track not found"}`,
			wantAPI: true,
			errMsg:  "last.fm API error 6: Track not found",
		},
		{
			name:   "server error without envelope",
			status: http.StatusBadGateway,
			body:   `<html>bad gateway</html>`,
			errMsg: "status=502",
		},
		{
			name:   "malformed body",
			status: http.StatusOK,
			body:   `{"similartracks": [`,
			errMsg: "failed to parse response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			})

			_, err := client.GetSimilarTracks(context.Background(), "Song", "Artist", 5)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)

			var apiErr *APIError
			assert.Equal(t, tt.wantAPI, errors.As(err, &apiErr))
		})
	}
}

func TestClient_ValidatesArguments(t *testing.T) {
	client, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	ctx := context.Background()

	_, err := client.GetSimilarTracks(ctx, "", "Artist", 5)
	assert.Error(t, err)
	_, err = client.GetTopTags(ctx, "Song", "", 5)
	assert.Error(t, err)
	_, err = client.GetTopTracks(ctx, "", 5)
	assert.Error(t, err)
	assert.Zero(t, calls.Load())
}

package node

import (
	"context"
	"net/http"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const trackJSON = `{"encoded":"QAAA","info":{"identifier":"abc","isSeekable":true,"author":"Artist","length":180000,"isStream":false,"position":0,"title":"Song","sourceName":"youtube"}}`

func respond(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

func sessionNode(t *testing.T, fb *fakeBackend) *Node {
	t.Helper()
	n := newTestNode(t, fb, fb.config("main"))
	n.mu.Lock()
	n.sessionID = "sess"
	n.mu.Unlock()
	return n
}

func TestNode_LoadTracks(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		loadType LoadType
		tracks   int
		check    func(t *testing.T, r *LoadResult)
	}{
		{
			name:     "single track",
			body:     `{"loadType":"track","data":` + trackJSON + `}`,
			loadType: LoadTypeTrack,
			tracks:   1,
			check: func(t *testing.T, r *LoadResult) {
				assert.Equal(t, "Song", r.Tracks[0].Info.Title)
				assert.Equal(t, int64(180000), r.Tracks[0].Info.Length)
			},
		},
		{
			name:     "playlist",
			body:     `{"loadType":"playlist","data":{"info":{"name":"Mix","selectedTrack":1},"tracks":[` + trackJSON + `,` + trackJSON + `]}}`,
			loadType: LoadTypePlaylist,
			tracks:   2,
			check: func(t *testing.T, r *LoadResult) {
				require.NotNil(t, r.Playlist)
				assert.Equal(t, "Mix", r.Playlist.Name)
				assert.Equal(t, 1, r.Playlist.SelectedTrack)
			},
		},
		{
			name:     "search",
			body:     `{"loadType":"search","data":[` + trackJSON + `]}`,
			loadType: LoadTypeSearch,
			tracks:   1,
		},
		{
			name:     "empty",
			body:     `{"loadType":"empty","data":{}}`,
			loadType: LoadTypeEmpty,
		},
		{
			name:     "error",
			body:     `{"loadType":"error","data":{"message":"video unavailable","severity":"common","cause":"x"}}`,
			loadType: LoadTypeError,
			check: func(t *testing.T, r *LoadResult) {
				require.NotNil(t, r.Exception)
				assert.Equal(t, "video unavailable", r.Exception.Message)
				assert.Equal(t, "common", r.Exception.Severity)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb := newFakeBackend(t)
			fb.setREST(respond(http.StatusOK, tt.body))
			n := newTestNode(t, fb, fb.config("main"))

			result, err := n.LoadTracks(context.Background(), "ytsearch:never gonna")
			require.NoError(t, err)
			assert.Equal(t, tt.loadType, result.LoadType)
			assert.Len(t, result.Tracks, tt.tracks)
			if tt.check != nil {
				tt.check(t, result)
			}

			req := fb.lastRequest()
			require.NotNil(t, req)
			assert.Equal(t, "/v4/loadtracks", req.Path)
			assert.Equal(t, "ytsearch:never gonna", req.Query.Get("identifier"))
			assert.Equal(t, "youshallnotpass", req.Header.Get("Authorization"))
		})
	}
}

func TestNode_LoadTracksUnknownType(t *testing.T) {
	fb := newFakeBackend(t)
	fb.setREST(respond(http.StatusOK, `{"loadType":"weird","data":null}`))
	n := newTestNode(t, fb, fb.config("main"))

	_, err := n.LoadTracks(context.Background(), "x")
	assert.Error(t, err)
}

func TestNode_RequestErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{name: "message field", status: http.StatusBadRequest, body: `{"message":"bad identifier"}`, message: "bad identifier"},
		{name: "error field", status: http.StatusNotFound, body: `{"error":"Not Found"}`, message: "Not Found"},
		{name: "no body", status: http.StatusInternalServerError, body: ``, message: "Internal Server Error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb := newFakeBackend(t)
			fb.setREST(respond(tt.status, tt.body))
			n := newTestNode(t, fb, fb.config("main"))

			_, err := n.Request(context.Background(), http.MethodGet, "/info", nil)
			var restErr *RESTError
			require.True(t, errors.As(err, &restErr))
			assert.Equal(t, tt.status, restErr.Status)
			assert.Equal(t, tt.message, restErr.Message)
			assert.Equal(t, "/info", restErr.Path)
		})
	}
}

func TestNode_RequestEmptyBody(t *testing.T) {
	fb := newFakeBackend(t)
	n := newTestNode(t, fb, fb.config("main"))

	raw, err := n.Request(context.Background(), http.MethodGet, "/stats", nil)
	require.NoError(t, err)
	assert.Nil(t, raw)
}

func TestNode_UpdatePlayer(t *testing.T) {
	fb := newFakeBackend(t)
	fb.setREST(respond(http.StatusOK, `{"guildId":"42","volume":80,"paused":false,"state":{"time":0,"position":1000,"connected":true,"ping":5},"voice":{"token":"t","endpoint":"e","sessionId":"s"}}`))
	n := sessionNode(t, fb)

	encoded := "QAAA"
	position := int64(30000)
	volume := 80
	remote, err := n.UpdatePlayer(context.Background(), snowflake.ID(42), &PlayerUpdate{
		Track:    &TrackUpdate{Encoded: &encoded},
		Position: &position,
		Volume:   &volume,
	}, true)
	require.NoError(t, err)
	assert.Equal(t, 80, remote.Volume)
	assert.Equal(t, int64(1000), remote.State.Position)

	req := fb.lastRequest()
	require.NotNil(t, req)
	assert.Equal(t, http.MethodPatch, req.Method)
	assert.Equal(t, "/v4/sessions/sess/players/42", req.Path)
	assert.Equal(t, "true", req.Query.Get("noReplace"))
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
	assert.JSONEq(t, `{"track":{"encoded":"QAAA"},"position":30000,"volume":80}`, req.Body)
}

func TestNode_UpdatePlayerStopsWithNullTrack(t *testing.T) {
	fb := newFakeBackend(t)
	fb.setREST(respond(http.StatusOK, `{"guildId":"42"}`))
	n := sessionNode(t, fb)

	_, err := n.UpdatePlayer(context.Background(), snowflake.ID(42), &PlayerUpdate{Track: &TrackUpdate{}}, false)
	require.NoError(t, err)

	req := fb.lastRequest()
	assert.Equal(t, "false", req.Query.Get("noReplace"))
	assert.JSONEq(t, `{"track":{"encoded":null}}`, req.Body)
}

func TestNode_DestroyPlayer(t *testing.T) {
	fb := newFakeBackend(t)
	n := sessionNode(t, fb)

	require.NoError(t, n.DestroyPlayer(context.Background(), snowflake.ID(42)))

	req := fb.lastRequest()
	assert.Equal(t, http.MethodDelete, req.Method)
	assert.Equal(t, "/v4/sessions/sess/players/42", req.Path)
}

func TestNode_DecodeTracks(t *testing.T) {
	fb := newFakeBackend(t)
	fb.setREST(respond(http.StatusOK, `[`+trackJSON+`,`+trackJSON+`]`))
	n := newTestNode(t, fb, fb.config("main"))

	tracks, err := n.DecodeTracks(context.Background(), []string{"QAAA", "QAAA"})
	require.NoError(t, err)
	assert.Len(t, tracks, 2)

	req := fb.lastRequest()
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/v4/decodetracks", req.Path)
	assert.JSONEq(t, `["QAAA","QAAA"]`, req.Body)
}

func TestNode_FetchStatsStoresSnapshot(t *testing.T) {
	fb := newFakeBackend(t)
	fb.setREST(respond(http.StatusOK, `{"players":4,"playingPlayers":2,"uptime":1,"memory":{},"cpu":{"cores":2,"systemLoad":0,"lavalinkLoad":0}}`))
	n := newTestNode(t, fb, fb.config("main"))

	stats, err := n.FetchStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Players)
	assert.InDelta(t, 7.0, n.Penalty(), 1e-9)
}

func TestNode_SessionCallsRequireSession(t *testing.T) {
	fb := newFakeBackend(t)
	n := newTestNode(t, fb, fb.config("main"))
	ctx := context.Background()

	_, err := n.UpdatePlayer(ctx, snowflake.ID(1), &PlayerUpdate{}, false)
	assert.True(t, errors.Is(err, ErrNodeNotConnected))
	_, err = n.Players(ctx)
	assert.True(t, errors.Is(err, ErrNodeNotConnected))
	assert.True(t, errors.Is(n.DestroyPlayer(ctx, snowflake.ID(1)), ErrNodeNotConnected))
	assert.True(t, errors.Is(n.UpdateSession(ctx, true, 0), ErrNodeNotConnected))
	assert.Zero(t, fb.requestCount())
}

package player

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/disgoorg/snowflake/v2"

	"github.com/osa030/audiolink/internal/app/node"
	"github.com/osa030/audiolink/internal/app/notification"
	"github.com/osa030/audiolink/internal/domain/track"
)

const testGuild = snowflake.ID(100)

type recordedUpdate struct {
	Guild     snowflake.ID
	Update    node.PlayerUpdate
	NoReplace bool
}

type fakeNode struct {
	name string

	mu         sync.Mutex
	updates    []recordedUpdate
	destroyed  []snowflake.ID
	queries    []string
	updateErr  error
	destroyErr error
	load       *node.LoadResult
}

func newFakeNode(name string) *fakeNode { return &fakeNode{name: name} }

func (f *fakeNode) Name() string { return f.name }

func (f *fakeNode) UpdatePlayer(_ context.Context, guildID snowflake.ID, update *node.PlayerUpdate, noReplace bool) (*node.RemotePlayer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	f.updates = append(f.updates, recordedUpdate{Guild: guildID, Update: *update, NoReplace: noReplace})
	return &node.RemotePlayer{GuildID: guildID}, nil
}

func (f *fakeNode) DestroyPlayer(_ context.Context, guildID snowflake.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroyed = append(f.destroyed, guildID)
	return f.destroyErr
}

func (f *fakeNode) LoadTracks(_ context.Context, identifier string) (*node.LoadResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, identifier)
	if f.load == nil {
		return &node.LoadResult{LoadType: node.LoadTypeEmpty}, nil
	}
	return f.load, nil
}

func (f *fakeNode) allUpdates() []recordedUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedUpdate(nil), f.updates...)
}

// trackUpdates returns only updates that carry a track.
func (f *fakeNode) trackUpdates() []recordedUpdate {
	var out []recordedUpdate
	for _, u := range f.allUpdates() {
		if u.Update.Track != nil {
			out = append(out, u)
		}
	}
	return out
}

func (f *fakeNode) voiceUpdates() []recordedUpdate {
	var out []recordedUpdate
	for _, u := range f.allUpdates() {
		if u.Update.Voice != nil {
			out = append(out, u)
		}
	}
	return out
}

func (f *fakeNode) lastEncoded() string {
	ups := f.trackUpdates()
	if len(ups) == 0 || ups[len(ups)-1].Update.Track.Encoded == nil {
		return ""
	}
	return *ups[len(ups)-1].Update.Track.Encoded
}

func (f *fakeNode) destroyedGuilds() []snowflake.ID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]snowflake.ID(nil), f.destroyed...)
}

func fixedSelector(n Node) NodeSelector {
	return SelectorFunc(func(string) (Node, error) { return n, nil })
}

func noNodes() NodeSelector {
	return SelectorFunc(func(string) (Node, error) { return nil, node.ErrNoAvailableNode })
}

type sentVoiceState struct {
	Guild   snowflake.ID
	Channel *snowflake.ID
}

// fakeAdapter records outward voice requests. onSend can complete the handshake.
type fakeAdapter struct {
	mu     sync.Mutex
	sent   []sentVoiceState
	onSend func(guildID snowflake.ID, channelID *snowflake.ID)
}

func (a *fakeAdapter) SendVoiceState(_ context.Context, guildID snowflake.ID, channelID *snowflake.ID, _, _ bool) error {
	a.mu.Lock()
	a.sent = append(a.sent, sentVoiceState{Guild: guildID, Channel: channelID})
	onSend := a.onSend
	a.mu.Unlock()
	if onSend != nil {
		onSend(guildID, channelID)
	}
	return nil
}

func (a *fakeAdapter) requests() []sentVoiceState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]sentVoiceState(nil), a.sent...)
}

type recorder struct {
	mu     sync.Mutex
	events []notification.Event
}

func (r *recorder) Publish(e notification.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) ofType(t notification.Type) []notification.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notification.Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type fakeRecommender struct {
	mu     sync.Mutex
	tracks []*track.Track
	err    error
	last   *track.Track
	recent []*track.Track
	calls  int
}

func (f *fakeRecommender) Recommend(_ context.Context, last *track.Track, recent []*track.Track) ([]*track.Track, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.last = last
	f.recent = recent
	return f.tracks, f.err
}

type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemStore() *memStore { return &memStore{data: make(map[string][]byte)} }

var errMissing = errors.New("missing")

func (s *memStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte(nil), value...)
	return nil
}

func (s *memStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return nil, errMissing
	}
	return v, nil
}

func (s *memStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *memStore) Keys(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// clock is a settable time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock { return &clock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func tr(name string) *track.Track {
	return &track.Track{
		Encoded: "enc-" + name,
		Info: track.Info{
			Identifier: name,
			Title:      strings.ToUpper(name),
			Author:     "artist",
			Length:     180000,
			IsSeekable: true,
			SourceName: "youtube",
		},
	}
}

func trs(names ...string) []*track.Track {
	out := make([]*track.Track, 0, len(names))
	for _, n := range names {
		out = append(out, tr(n))
	}
	return out
}

type testEnv struct {
	player  *Player
	node    *fakeNode
	adapter *fakeAdapter
	events  *recorder
	clock   *clock
}

// newTestEnv builds a player bound to a fake node named "main".
func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	return newTestEnvWith(t, opts, nil)
}

func newTestEnvWith(t *testing.T, opts Options, rec Recommender) *testEnv {
	t.Helper()
	if opts.GuildID == 0 {
		opts.GuildID = testGuild
	}
	if opts.VoiceChannelID == 0 {
		opts.VoiceChannelID = 200
	}
	env := &testEnv{
		node:    newFakeNode("main"),
		adapter: &fakeAdapter{},
		events:  &recorder{},
		clock:   newClock(),
	}
	env.player = New(opts, Deps{
		Adapter:     env.adapter,
		Selector:    fixedSelector(env.node),
		Publisher:   env.events,
		Recommender: rec,
	})
	env.player.now = env.clock.Now
	t.Cleanup(func() { env.player.Destroy(context.Background()) })
	return env
}

// handshake completes the voice handshake as the platform would.
func (e *testEnv) handshake() {
	ch := e.player.VoiceChannelID()
	e.player.conn.HandleVoiceStateUpdate(&ch, "voice-session")
	e.player.conn.HandleVoiceServerUpdate("voice-token", "rotterdam1234.discord.media:443")
}

func endEvent(t *track.Track, reason node.TrackEndReason) node.EventMessage {
	return node.EventMessage{Type: node.EventTrackEnd, GuildID: testGuild, Track: t, Reason: reason}
}

package player

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/disgoorg/snowflake/v2"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/audiolink/internal/app/node"
	"github.com/osa030/audiolink/internal/app/notification"
	"github.com/osa030/audiolink/internal/app/queue"
)

var (
	_ node.PlayerSource = (*Manager)(nil)
	_ node.Migratable   = (*Player)(nil)
)

type managerEnv struct {
	manager *Manager
	node    *fakeNode
	adapter *fakeAdapter
	events  *recorder
	store   *memStore
}

func newManagerEnv(t *testing.T, store *memStore) *managerEnv {
	t.Helper()
	env := &managerEnv{
		node:    newFakeNode("main"),
		adapter: &fakeAdapter{},
		events:  &recorder{},
		store:   store,
	}
	var st Store
	if store != nil {
		st = store
	}
	env.manager = NewManager(Config{DefaultVolume: 80, SelfDeaf: true}, Deps{
		Adapter:   env.adapter,
		Selector:  fixedSelector(env.node),
		Publisher: env.events,
	}, st)
	// Answer every join request the way the platform gateway would.
	env.adapter.onSend = func(guildID snowflake.ID, channelID *snowflake.ID) {
		if channelID == nil {
			return
		}
		env.manager.HandleVoiceStateUpdate(guildID, channelID, "voice-session")
		env.manager.HandleVoiceServerUpdate(guildID, "voice-token", "frankfurt12.discord.media:443")
	}
	t.Cleanup(func() { env.manager.DestroyAll(context.Background()) })
	return env
}

func TestManager_CreateIsIdempotent(t *testing.T) {
	env := newManagerEnv(t, nil)
	m := env.manager

	p, created := m.Create(CreateOptions{GuildID: 1, VoiceChannelID: 10})
	require.True(t, created)
	assert.Equal(t, 80, p.Volume())

	again, created := m.Create(CreateOptions{GuildID: 1, VoiceChannelID: 99, Volume: lo.ToPtr(5)})
	assert.False(t, created)
	assert.Same(t, p, again)
	assert.Equal(t, snowflake.ID(10), again.VoiceChannelID())

	assert.Equal(t, 1, m.Count())
	created1 := env.events.ofType(notification.PlayerCreated)
	require.Len(t, created1, 1)
	assert.Equal(t, snowflake.ID(1), created1[0].GuildID)
}

func TestManager_CreateAppliesDefaults(t *testing.T) {
	env := newManagerEnv(t, nil)
	deaf := false

	p, _ := env.manager.Create(CreateOptions{GuildID: 1, VoiceChannelID: 10, SelfDeaf: &deaf, Volume: lo.ToPtr(30)})
	require.NoError(t, p.Connect(context.Background()))

	gotDeaf, _ := p.Connection().Flags()
	assert.False(t, gotDeaf)
	assert.Equal(t, 30, p.Volume())

	q, _ := env.manager.Create(CreateOptions{GuildID: 2, VoiceChannelID: 20})
	require.NoError(t, q.Connect(context.Background()))
	gotDeaf, _ = q.Connection().Flags()
	assert.True(t, gotDeaf)
	assert.Equal(t, 80, q.Volume())
}

func TestManager_CreateMuted(t *testing.T) {
	env := newManagerEnv(t, nil)

	p, created := env.manager.Create(CreateOptions{GuildID: 1, VoiceChannelID: 10, Volume: lo.ToPtr(0)})
	require.True(t, created)
	assert.Equal(t, 0, p.Volume())
}

func TestManager_GetListDestroy(t *testing.T) {
	env := newManagerEnv(t, nil)
	m := env.manager
	ctx := context.Background()

	m.Create(CreateOptions{GuildID: 3, VoiceChannelID: 30})
	m.Create(CreateOptions{GuildID: 1, VoiceChannelID: 10})
	m.Create(CreateOptions{GuildID: 2, VoiceChannelID: 20})

	ids := make([]snowflake.ID, 0, 3)
	for _, p := range m.List() {
		ids = append(ids, p.GuildID())
	}
	assert.Equal(t, []snowflake.ID{1, 2, 3}, ids)

	require.NoError(t, m.Destroy(ctx, 2))
	_, ok := m.Get(2)
	assert.False(t, ok)
	assert.Equal(t, 2, m.Count())

	_, err := m.MustGet(2)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, errors.Is(m.Destroy(ctx, 2), ErrNotFound))

	m.DestroyAll(ctx)
	assert.Zero(t, m.Count())
}

func TestManager_DestroyedPlayerLeavesRegistry(t *testing.T) {
	env := newManagerEnv(t, nil)
	p, _ := env.manager.Create(CreateOptions{GuildID: 1, VoiceChannelID: 10})

	p.Destroy(context.Background())

	_, ok := env.manager.Get(1)
	assert.False(t, ok)

	// A fresh player can take the guild afterwards.
	fresh, created := env.manager.Create(CreateOptions{GuildID: 1, VoiceChannelID: 10})
	assert.True(t, created)
	assert.NotSame(t, p, fresh)
}

func TestManager_RoutesNodeFrames(t *testing.T) {
	env := newManagerEnv(t, nil)
	m := env.manager
	ctx := context.Background()
	n := node.New(node.Config{Name: "main"}, nil, nil)

	p, _ := m.Create(CreateOptions{GuildID: testGuild, VoiceChannelID: 10})
	p.Add(trs("a", "b"), queue.AddOptions{})
	require.NoError(t, p.Play(ctx, PlayOptions{}))

	m.HandlePlayerUpdate(n, node.PlayerUpdateMessage{GuildID: testGuild, State: node.PlayerState{Position: 1000, Ping: 7}})
	m.HandleEvent(n, endEvent(tr("a"), node.ReasonFinished))
	// Unknown guilds are ignored.
	m.HandleEvent(n, node.EventMessage{Type: node.EventTrackEnd, GuildID: 555, Reason: node.ReasonFinished})

	require.Eventually(t, func() bool { return env.node.lastEncoded() == "enc-b" }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 7, p.Ping())
}

func TestManager_PlayersOn(t *testing.T) {
	env := newManagerEnv(t, nil)
	m := env.manager

	bound, _ := m.Create(CreateOptions{GuildID: 1, VoiceChannelID: 10})
	bound.Add(trs("a"), queue.AddOptions{})
	require.NoError(t, bound.Play(context.Background(), PlayOptions{}))
	m.Create(CreateOptions{GuildID: 2, VoiceChannelID: 20})

	on := m.PlayersOn("main")
	require.Len(t, on, 1)
	assert.Equal(t, snowflake.ID(1), on[0].GuildID())
	assert.Empty(t, m.PlayersOn("backup"))
}

func TestManager_ForwardsVoiceUpdates(t *testing.T) {
	env := newManagerEnv(t, nil)
	m := env.manager
	p, _ := m.Create(CreateOptions{GuildID: 1, VoiceChannelID: 10})

	require.NoError(t, p.Connect(context.Background()))

	assert.True(t, p.Connection().Connected())
	assert.Equal(t, "frankfurt", p.VoiceRegion())
	require.Eventually(t, func() bool { return len(env.node.voiceUpdates()) == 1 }, time.Second, 5*time.Millisecond)

	// Updates for guilds without a player are dropped.
	ch := snowflake.ID(1)
	m.HandleVoiceStateUpdate(999, &ch, "x")
	m.HandleVoiceServerUpdate(999, "t", "e")
}

func TestManager_SaveAndRestore(t *testing.T) {
	store := newMemStore()
	env := newManagerEnv(t, store)
	ctx := context.Background()

	p, _ := env.manager.Create(CreateOptions{GuildID: testGuild, VoiceChannelID: 10, Volume: lo.ToPtr(40)})
	require.NoError(t, p.Connect(ctx))
	p.Add(trs("a", "b", "c"), queue.AddOptions{})
	require.NoError(t, p.Play(ctx, PlayOptions{}))
	p.applyPlayerUpdate("main", node.PlayerUpdateMessage{GuildID: testGuild, State: node.PlayerState{Position: 42000}})
	require.NoError(t, p.Pause(ctx))

	require.NoError(t, env.manager.Save(ctx))
	keys, err := store.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"audiolink:player:100"}, keys)

	// A second process restores from the same store.
	require.NoError(t, store.Set(ctx, "audiolink:player:7", []byte("{"), 0))
	require.NoError(t, store.Set(ctx, "other:key", []byte("{}"), 0))
	next := newManagerEnv(t, store)

	n, err := next.manager.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	restored, ok := next.manager.Get(testGuild)
	require.True(t, ok)
	assert.Equal(t, 40, restored.Volume())
	assert.Equal(t, "enc-a", restored.Queue().Current().Encoded)
	assert.Equal(t, 2, restored.Queue().Size())
	assert.Equal(t, StatePaused, restored.State())

	ups := next.node.trackUpdates()
	require.Len(t, ups, 1)
	assert.Equal(t, "enc-a", *ups[0].Update.Track.Encoded)
	assert.InDelta(t, 42000, *ups[0].Update.Position, 1000)
	all := next.node.allUpdates()
	assert.True(t, *all[len(all)-1].Update.Paused)

	_, err = store.Get(ctx, "audiolink:player:7")
	assert.ErrorIs(t, err, errMissing, "corrupt snapshots are dropped")
	_, err = store.Get(ctx, "other:key")
	assert.NoError(t, err)
}

func TestManager_DestroyDeletesSnapshot(t *testing.T) {
	store := newMemStore()
	env := newManagerEnv(t, store)
	ctx := context.Background()

	env.manager.Create(CreateOptions{GuildID: testGuild, VoiceChannelID: 10})
	require.NoError(t, env.manager.Save(ctx))
	require.NoError(t, env.manager.Destroy(ctx, testGuild))

	keys, err := store.Keys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

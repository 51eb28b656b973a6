package player

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/disgoorg/snowflake/v2"
	zlog "github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/osa030/audiolink/internal/app/node"
	"github.com/osa030/audiolink/internal/app/notification"
)

var ErrNotFound = errors.New("player not found")

// Config holds the defaults applied to every player the manager creates.
type Config struct {
	DefaultVolume int
	HistorySize   int
	VoiceTimeout  time.Duration
	SelfDeaf      bool
	Autoplay      bool
	SearchPrefix  string
	Inactivity    Inactivity
	KeyPrefix     string        // Prefix of snapshot keys in the store
	SnapshotTTL   time.Duration // Zero keeps snapshots forever
}

// CreateOptions describes a player to create.
type CreateOptions struct {
	GuildID        snowflake.ID
	VoiceChannelID snowflake.ID
	TextChannelID  *snowflake.ID
	SelfDeaf       *bool // nil uses the manager default
	SelfMute       bool
	Volume         *int  // nil uses the manager default
}

// Manager is the registry of players, one per guild.
// It routes node frames and voice updates to the owning player.
type Manager struct {
	mu      sync.RWMutex
	players map[snowflake.ID]*Player

	cfg   Config
	deps  Deps
	store Store
}

// NewManager creates an empty registry. store may be nil to disable persistence.
func NewManager(cfg Config, deps Deps, store Store) *Manager {
	if deps.Publisher == nil {
		deps.Publisher = notification.Nop{}
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "audiolink:"
	}
	return &Manager{
		players: make(map[snowflake.ID]*Player),
		cfg:     cfg,
		deps:    deps,
		store:   store,
	}
}

// Create returns the player of the guild, creating it if needed.
// The second result reports whether a new player was created.
func (m *Manager) Create(opts CreateOptions) (*Player, bool) {
	m.mu.Lock()
	if p, ok := m.players[opts.GuildID]; ok {
		m.mu.Unlock()
		return p, false
	}

	selfDeaf := m.cfg.SelfDeaf
	if opts.SelfDeaf != nil {
		selfDeaf = *opts.SelfDeaf
	}
	volume := opts.Volume
	if volume == nil && m.cfg.DefaultVolume > 0 {
		volume = lo.ToPtr(m.cfg.DefaultVolume)
	}
	p := New(Options{
		GuildID:        opts.GuildID,
		VoiceChannelID: opts.VoiceChannelID,
		TextChannelID:  opts.TextChannelID,
		SelfDeaf:       selfDeaf,
		SelfMute:       opts.SelfMute,
		Volume:         volume,
		HistorySize:    m.cfg.HistorySize,
		Autoplay:       m.cfg.Autoplay,
		VoiceTimeout:   m.cfg.VoiceTimeout,
		SearchPrefix:   m.cfg.SearchPrefix,
		Inactivity:     m.cfg.Inactivity,
	}, m.deps)
	p.onDestroy = m.remove
	m.players[opts.GuildID] = p
	m.mu.Unlock()

	zlog.Info().Msgf("player manager: created player: guild=%s channel=%s", opts.GuildID, opts.VoiceChannelID)
	channelID := opts.VoiceChannelID
	m.deps.Publisher.Publish(notification.Event{
		Type:    notification.PlayerCreated,
		GuildID: opts.GuildID,
		Data:    notification.ChannelData{ChannelID: &channelID},
	})
	return p, true
}

// remove drops a destroyed player and its snapshot.
func (m *Manager) remove(p *Player) {
	m.mu.Lock()
	if cur, ok := m.players[p.guildID]; ok && cur == p {
		delete(m.players, p.guildID)
	}
	m.mu.Unlock()

	if m.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), restTimeout)
	defer cancel()
	if err := m.store.Delete(ctx, m.snapshotKey(p.guildID)); err != nil {
		zlog.Debug().Msgf("player manager: failed to delete snapshot: guild=%s err=%v", p.guildID, err)
	}
}

// Get returns the player of a guild.
func (m *Manager) Get(guildID snowflake.ID) (*Player, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.players[guildID]
	return p, ok
}

// MustGet returns the player of a guild or ErrNotFound.
func (m *Manager) MustGet(guildID snowflake.ID) (*Player, error) {
	p, ok := m.Get(guildID)
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "guild %s", guildID)
	}
	return p, nil
}

// List returns every player sorted by guild id.
func (m *Manager) List() []*Player {
	m.mu.RLock()
	players := lo.Values(m.players)
	m.mu.RUnlock()

	slices.SortFunc(players, func(a, b *Player) int { return cmp.Compare(a.guildID, b.guildID) })
	return players
}

// Count returns the number of players.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.players)
}

// Destroy tears down the player of a guild.
func (m *Manager) Destroy(ctx context.Context, guildID snowflake.ID) error {
	p, err := m.MustGet(guildID)
	if err != nil {
		return err
	}
	p.Destroy(ctx)
	return nil
}

// DestroyAll tears down every player.
func (m *Manager) DestroyAll(ctx context.Context) {
	for _, p := range m.List() {
		p.Destroy(ctx)
	}
}

// HandlePlayerUpdate implements node.Handler.
func (m *Manager) HandlePlayerUpdate(n *node.Node, msg node.PlayerUpdateMessage) {
	if p, ok := m.Get(msg.GuildID); ok {
		p.enqueuePlayerUpdate(n.Name(), msg)
	}
}

// HandleEvent implements node.Handler. Events of unknown guilds are dropped.
func (m *Manager) HandleEvent(n *node.Node, msg node.EventMessage) {
	p, ok := m.Get(msg.GuildID)
	if !ok {
		zlog.Debug().Msgf("player manager: event for unknown guild dropped: guild=%s type=%s", msg.GuildID, msg.Type)
		return
	}
	p.enqueueNodeEvent(n.Name(), msg)
}

// PlayersOn implements node.PlayerSource.
func (m *Manager) PlayersOn(nodeName string) []node.Migratable {
	return lo.FilterMap(m.List(), func(p *Player, _ int) (node.Migratable, bool) {
		return p, p.NodeName() == nodeName
	})
}

// HandleVoiceStateUpdate forwards the bot's voice state of a guild.
// channelID is nil when the bot left voice.
func (m *Manager) HandleVoiceStateUpdate(guildID snowflake.ID, channelID *snowflake.ID, sessionID string) {
	if p, ok := m.Get(guildID); ok {
		p.conn.HandleVoiceStateUpdate(channelID, sessionID)
	}
}

// HandleVoiceServerUpdate forwards the voice server of a guild.
func (m *Manager) HandleVoiceServerUpdate(guildID snowflake.ID, token, endpoint string) {
	if p, ok := m.Get(guildID); ok {
		p.conn.HandleVoiceServerUpdate(token, endpoint)
	}
}

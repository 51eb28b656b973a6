package player

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/disgoorg/snowflake/v2"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/audiolink/internal/app/node"
	"github.com/osa030/audiolink/internal/app/notification"
	"github.com/osa030/audiolink/internal/app/queue"
	"github.com/osa030/audiolink/internal/app/voice"
	"github.com/osa030/audiolink/internal/domain/filter"
	"github.com/osa030/audiolink/internal/domain/track"
)

const (
	// DefaultVolume is the volume of a new player.
	DefaultVolume = 100
	// DefaultSearchPrefix is prepended to plain-text queries.
	DefaultSearchPrefix = "ytsearch"

	restTimeout = 10 * time.Second
)

var (
	ErrDestroyed = errors.New("player is destroyed")
	ErrNoTrack   = errors.New("no track playing")
)

// Node is the part of an audio node a player drives.
type Node interface {
	Name() string
	UpdatePlayer(ctx context.Context, guildID snowflake.ID, update *node.PlayerUpdate, noReplace bool) (*node.RemotePlayer, error)
	DestroyPlayer(ctx context.Context, guildID snowflake.ID) error
	LoadTracks(ctx context.Context, identifier string) (*node.LoadResult, error)
}

// NodeSelector picks the node a player should bind to.
type NodeSelector interface {
	Best(region string) (Node, error)
}

// SelectorFunc adapts a function to NodeSelector.
type SelectorFunc func(region string) (Node, error)

func (f SelectorFunc) Best(region string) (Node, error) { return f(region) }

// ManagerSelector selects through a node pool.
func ManagerSelector(m *node.Manager) NodeSelector {
	return SelectorFunc(func(region string) (Node, error) {
		n, err := m.Best(region)
		if err != nil {
			return nil, err
		}
		return n, nil
	})
}

// Recommender continues playback once the queue runs dry.
// recent is the play history, oldest first.
type Recommender interface {
	Recommend(ctx context.Context, last *track.Track, recent []*track.Track) ([]*track.Track, error)
}

// Options configures a player.
type Options struct {
	GuildID        snowflake.ID
	VoiceChannelID snowflake.ID
	TextChannelID  *snowflake.ID
	SelfDeaf       bool
	SelfMute       bool
	Volume         *int // nil uses DefaultVolume
	HistorySize    int
	Autoplay       bool
	VoiceTimeout   time.Duration
	SearchPrefix   string
	Inactivity     Inactivity
}

// Deps are the collaborators of a player.
type Deps struct {
	Adapter     voice.Adapter
	Selector    NodeSelector
	Publisher   notification.Publisher
	Recommender Recommender
}

// PlayOptions controls a single play call.
type PlayOptions struct {
	Track     *track.Track   // Play this track instead of advancing the queue
	StartTime time.Duration  // Offset to start at
	EndTime   *time.Duration // Offset to stop at
	NoReplace bool           // Keep a track the node is already playing
}

// Player is the playback state machine of one guild.
//
// Caller commands and node events are serialised by opMu. Fields read by
// accessors are additionally guarded by mu.
type Player struct {
	opMu sync.Mutex
	mu   sync.RWMutex

	guildID       snowflake.ID
	channelID     snowflake.ID
	textChannelID *snowflake.ID
	selfDeaf      bool
	selfMute      bool
	searchPrefix  string

	state      State
	node       Node
	volume     int
	filters    *filter.Filters
	playing    bool
	paused     bool
	position   int64 // Milliseconds
	positionAt time.Time
	ping       int
	preload    *track.Track
	voiceSent  voice.Server
	voiceNode  string

	queue      *queue.Queue
	conn       *voice.Connection
	selector   NodeSelector
	publisher  notification.Publisher
	inbox      *mailbox
	inactivity Inactivity
	onDestroy  func(*Player)

	inactivityCancel func()
	inactivityGen    uint64

	now func() time.Time
}

// New creates a player in the connecting state. Call Connect to join voice.
func New(opts Options, deps Deps) *Player {
	volume := DefaultVolume
	if opts.Volume != nil {
		volume = *opts.Volume
	}
	if opts.SearchPrefix == "" {
		opts.SearchPrefix = DefaultSearchPrefix
	}
	if deps.Publisher == nil {
		deps.Publisher = notification.Nop{}
	}

	p := &Player{
		guildID:       opts.GuildID,
		channelID:     opts.VoiceChannelID,
		textChannelID: opts.TextChannelID,
		selfDeaf:      opts.SelfDeaf,
		selfMute:      opts.SelfMute,
		searchPrefix:  opts.SearchPrefix,
		state:         StateConnecting,
		volume:        clampVolume(volume),
		queue:         queue.New(opts.HistorySize),
		selector:      deps.Selector,
		publisher:     deps.Publisher,
		inbox:         newMailbox(),
		inactivity:    opts.Inactivity,
		now:           time.Now,
	}
	p.conn = voice.NewConnection(voice.Options{
		GuildID:  opts.GuildID,
		Adapter:  deps.Adapter,
		Timeout:  opts.VoiceTimeout,
		Listener: p.onVoiceEvent,
	})
	p.queue.SetAutoplay(opts.Autoplay)
	if rec := deps.Recommender; rec != nil {
		q := p.queue
		p.queue.SetRecommender(func(ctx context.Context, last *track.Track) ([]*track.Track, error) {
			return rec.Recommend(ctx, last, q.History())
		})
	}
	return p
}

func (p *Player) GuildID() snowflake.ID { return p.guildID }

func (p *Player) Queue() *queue.Queue { return p.queue }

func (p *Player) Connection() *voice.Connection { return p.conn }

// VoiceRegion returns the region of the voice server, or "" before the handshake.
func (p *Player) VoiceRegion() string { return p.conn.Region() }

func (p *Player) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

func (p *Player) VoiceChannelID() snowflake.ID {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.channelID
}

func (p *Player) TextChannelID() *snowflake.ID {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.textChannelID
}

func (p *Player) Volume() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.volume
}

// Filters returns a copy of the active filters, or nil.
func (p *Player) Filters() *filter.Filters {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.filters.Clone()
}

func (p *Player) Playing() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.playing
}

func (p *Player) Paused() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.paused
}

func (p *Player) Ping() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.ping
}

// NodeName returns the name of the bound node, or "".
func (p *Player) NodeName() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.node == nil {
		return ""
	}
	return p.node.Name()
}

// Preload returns the track expected to play next.
func (p *Player) Preload() *track.Track {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.preload
}

// Position estimates the playback position of the current track.
func (p *Player) Position() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return time.Duration(p.estimatedPositionLocked()) * time.Millisecond
}

// estimatedPositionLocked extrapolates the last sample while playing.
// Must be called with mu held.
func (p *Player) estimatedPositionLocked() int64 {
	pos := p.position
	if p.playing && !p.paused && !p.positionAt.IsZero() {
		pos += p.now().Sub(p.positionAt).Milliseconds()
	}
	if cur := p.queue.Current(); cur != nil && !cur.Info.IsStream && cur.Info.Length > 0 {
		pos = min(pos, cur.Info.Length)
	}
	return max(pos, 0)
}

func (p *Player) update(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn()
}

func (p *Player) publish(t notification.Type, data any) {
	p.publisher.Publish(notification.Event{
		Type:    t,
		Node:    p.NodeName(),
		GuildID: p.guildID,
		Data:    data,
	})
}

// Connect joins the voice channel and hands the session to the bound node.
func (p *Player) Connect(ctx context.Context) error {
	p.mu.Lock()
	if p.state == StateDestroyed {
		p.mu.Unlock()
		return ErrDestroyed
	}
	if p.state != StatePlaying && p.state != StatePaused {
		p.state = StateConnecting
	}
	channelID := p.channelID
	p.mu.Unlock()

	srv, err := p.conn.Connect(ctx, channelID, p.selfDeaf, p.selfMute)
	if err != nil {
		p.update(func() {
			if p.state == StateConnecting {
				p.state = StateDisconnected
			}
		})
		return errors.Wrapf(err, "guild %s", p.guildID)
	}

	p.opMu.Lock()
	defer p.opMu.Unlock()
	return p.applyVoiceLocked(ctx, srv)
}

// SwitchChannel moves the player to another voice channel.
func (p *Player) SwitchChannel(ctx context.Context, channelID snowflake.ID) error {
	p.update(func() { p.channelID = channelID })
	return p.Connect(ctx)
}

// applyVoiceLocked forwards voice credentials to the node unless it already has them.
// Must be called with opMu held.
func (p *Player) applyVoiceLocked(ctx context.Context, srv voice.Server) error {
	if p.State() == StateDestroyed {
		return ErrDestroyed
	}
	n, err := p.ensureNodeLocked()
	if err != nil {
		return err
	}

	p.mu.RLock()
	sent := p.voiceSent == srv && p.voiceNode == n.Name()
	channelID := p.channelID
	p.mu.RUnlock()
	if sent {
		return nil
	}

	if err := p.sendVoiceLocked(ctx, n, srv); err != nil {
		return err
	}
	p.update(func() {
		if p.state == StateConnecting || p.state == StateDisconnected {
			p.state = StateConnected
		}
	})
	zlog.Info().Msgf("player: voice connected: guild=%s channel=%s node=%s region=%s", p.guildID, channelID, n.Name(), srv.Region)
	p.publish(notification.PlayerConnected, notification.ChannelData{ChannelID: &channelID})
	return nil
}

func (p *Player) sendVoiceLocked(ctx context.Context, n Node, srv voice.Server) error {
	p.mu.RLock()
	channelID := p.channelID
	p.mu.RUnlock()

	_, err := n.UpdatePlayer(ctx, p.guildID, &node.PlayerUpdate{
		Voice: &node.VoiceState{
			Token:     srv.Token,
			Endpoint:  srv.Endpoint,
			SessionID: srv.SessionID,
			ChannelID: channelID.String(),
		},
	}, false)
	if err != nil {
		return errors.Wrap(err, "failed to send voice state to node")
	}
	p.update(func() {
		p.voiceSent = srv
		p.voiceNode = n.Name()
	})
	return nil
}

// ensureNodeLocked returns the bound node, binding the best one for the voice region first.
// Must be called with opMu held.
func (p *Player) ensureNodeLocked() (Node, error) {
	p.mu.RLock()
	n := p.node
	p.mu.RUnlock()
	if n != nil {
		return n, nil
	}
	if p.selector == nil {
		return nil, node.ErrNoAvailableNode
	}
	n, err := p.selector.Best(p.conn.Region())
	if err != nil {
		return nil, errors.Wrapf(err, "guild %s", p.guildID)
	}
	p.update(func() { p.node = n })
	zlog.Debug().Msgf("player: bound to node: guild=%s node=%s", p.guildID, n.Name())
	return n, nil
}

// BindNode binds the player to n without migrating remote state.
func (p *Player) BindNode(n Node) {
	p.opMu.Lock()
	defer p.opMu.Unlock()
	p.update(func() { p.node = n })
}

// Play starts a track. Without PlayOptions.Track it advances the queue;
// an exhausted queue runs autoplay instead of failing.
func (p *Player) Play(ctx context.Context, opts PlayOptions) error {
	p.opMu.Lock()
	defer p.opMu.Unlock()
	return p.playLocked(ctx, opts)
}

// PlayIfIdle advances the queue unless a track is already playing.
// The check and the start happen under the same lock as node events,
// so an auto-advance in flight is never skipped over.
func (p *Player) PlayIfIdle(ctx context.Context) (bool, error) {
	p.opMu.Lock()
	defer p.opMu.Unlock()
	if p.Playing() {
		return false, nil
	}
	if err := p.playLocked(ctx, PlayOptions{}); err != nil {
		return false, err
	}
	return true, nil
}

// Skip advances to the next track.
func (p *Player) Skip(ctx context.Context) error {
	return p.Play(ctx, PlayOptions{})
}

// Back plays the most recent history entry.
func (p *Player) Back(ctx context.Context) error {
	p.opMu.Lock()
	defer p.opMu.Unlock()

	if p.State() == StateDestroyed {
		return ErrDestroyed
	}
	t, err := p.queue.Back()
	if err != nil {
		return err
	}
	return p.startLocked(ctx, t, PlayOptions{})
}

// Jump plays the track at position of the queue, skipping the ones before it.
func (p *Player) Jump(ctx context.Context, position int) error {
	p.opMu.Lock()
	defer p.opMu.Unlock()

	if p.State() == StateDestroyed {
		return ErrDestroyed
	}
	t, err := p.queue.Jump(position)
	if err != nil {
		return err
	}
	return p.startLocked(ctx, t, PlayOptions{})
}

// Must be called with opMu held.
func (p *Player) playLocked(ctx context.Context, opts PlayOptions) error {
	if p.State() == StateDestroyed {
		return ErrDestroyed
	}

	var t *track.Track
	if opts.Track != nil {
		t = opts.Track.Clone()
		p.queue.SetCurrent(t)
	} else {
		t = p.queue.Next()
	}
	if t == nil {
		return p.queueEndedLocked(ctx)
	}
	return p.startLocked(ctx, t, opts)
}

// startLocked sends t to the node. t must already be the queue's current track.
// Must be called with opMu held.
func (p *Player) startLocked(ctx context.Context, t *track.Track, opts PlayOptions) error {
	n, err := p.ensureNodeLocked()
	if err != nil {
		return err
	}

	p.mu.RLock()
	volume := p.volume
	filters := p.filters.Clone()
	p.mu.RUnlock()

	encoded := t.Encoded
	update := &node.PlayerUpdate{
		Track:  &node.TrackUpdate{Encoded: &encoded, UserData: t.UserData},
		Volume: &volume,
	}
	if opts.StartTime > 0 {
		start := opts.StartTime.Milliseconds()
		update.Position = &start
	}
	if opts.EndTime != nil {
		end := opts.EndTime.Milliseconds()
		update.EndTime = &end
	}
	if !filters.IsDefault() {
		update.Filters = filters
	}
	paused := false
	update.Paused = &paused

	if _, err := n.UpdatePlayer(ctx, p.guildID, update, opts.NoReplace); err != nil {
		return errors.Wrapf(err, "failed to play %q", t.Info.Title)
	}

	p.cancelInactivityLocked()
	preload := p.queue.PeekNext()
	p.update(func() {
		p.playing = true
		p.paused = false
		p.position = opts.StartTime.Milliseconds()
		p.positionAt = p.now()
		p.preload = preload
		if p.state != StateDisconnected {
			p.state = StatePlaying
		}
	})
	zlog.Info().Msgf("player: playing: guild=%s node=%s track=%q", p.guildID, n.Name(), t.Info.Title)
	return nil
}

// queueEndedLocked handles an exhausted queue: autoplay first, then the stopped state.
// Must be called with opMu held.
func (p *Player) queueEndedLocked(ctx context.Context) error {
	last := p.queue.Previous()
	p.publish(notification.QueueEnd, notification.TrackData{Track: last})

	if p.queue.Autoplay() {
		recs, err := p.queue.Recommend(ctx, last)
		switch {
		case err != nil:
			zlog.Warn().Msgf("player: autoplay failed: guild=%s err=%v", p.guildID, err)
			p.publish(notification.AutoplayFailed, notification.ErrorData{Track: last, Message: err.Error()})
		case len(recs) > 0:
			added := p.queue.Add(recs, queue.AddOptions{})
			zlog.Info().Msgf("player: autoplay added tracks: guild=%s count=%d", p.guildID, len(added))
			p.publish(notification.AutoplayAdded, notification.TracksData{Tracks: added})
			if t := p.queue.Next(); t != nil {
				return p.startLocked(ctx, t, PlayOptions{})
			}
		}
	}

	p.update(func() {
		p.playing = false
		p.paused = false
		p.position = 0
		p.preload = nil
		if p.state != StateDisconnected {
			p.state = StateStopped
		}
	})
	p.armInactivityLocked(inactivityEmptyQueue)
	return nil
}

// Pause pauses playback. Pausing a paused player does nothing.
func (p *Player) Pause(ctx context.Context) error {
	return p.setPaused(ctx, true)
}

// Resume resumes paused playback. Resuming a playing player does nothing.
func (p *Player) Resume(ctx context.Context) error {
	return p.setPaused(ctx, false)
}

func (p *Player) setPaused(ctx context.Context, paused bool) error {
	p.opMu.Lock()
	defer p.opMu.Unlock()

	if p.State() == StateDestroyed {
		return ErrDestroyed
	}
	p.mu.RLock()
	n, current := p.node, p.paused
	p.mu.RUnlock()
	if current == paused {
		return nil
	}
	if n == nil {
		return errors.Wrapf(node.ErrNodeNotConnected, "guild %s", p.guildID)
	}

	if _, err := n.UpdatePlayer(ctx, p.guildID, &node.PlayerUpdate{Paused: &paused}, false); err != nil {
		return errors.Wrap(err, "failed to update pause state")
	}

	p.update(func() {
		// Freeze the estimate at the moment of pausing.
		p.position = p.estimatedPositionLocked()
		p.positionAt = p.now()
		p.paused = paused
		if p.state == StatePlaying || p.state == StatePaused {
			if paused {
				p.state = StatePaused
			} else {
				p.state = StatePlaying
			}
		}
	})
	if paused {
		p.armInactivityLocked(inactivityPaused)
	} else {
		p.cancelInactivityLocked()
	}
	return nil
}

// Stop stops playback. The stopped track moves to history.
func (p *Player) Stop(ctx context.Context, clearQueue bool) error {
	p.opMu.Lock()
	defer p.opMu.Unlock()

	if p.State() == StateDestroyed {
		return ErrDestroyed
	}
	p.mu.RLock()
	n := p.node
	p.mu.RUnlock()
	if n != nil {
		if _, err := n.UpdatePlayer(ctx, p.guildID, &node.PlayerUpdate{Track: &node.TrackUpdate{}}, false); err != nil {
			return errors.Wrap(err, "failed to stop track")
		}
	}

	p.queue.SetCurrent(nil)
	if clearQueue {
		p.queue.Clear(true)
	}
	p.update(func() {
		p.playing = false
		p.paused = false
		p.position = 0
		p.positionAt = time.Time{}
		p.preload = nil
		if p.state != StateDisconnected {
			p.state = StateStopped
		}
	})
	p.armInactivityLocked(inactivityIdle)
	return nil
}

// Seek moves the current track to position, clamped to the track length.
func (p *Player) Seek(ctx context.Context, position time.Duration) error {
	p.opMu.Lock()
	defer p.opMu.Unlock()

	if p.State() == StateDestroyed {
		return ErrDestroyed
	}
	cur := p.queue.Current()
	if cur == nil {
		return ErrNoTrack
	}
	pos := max(position.Milliseconds(), 0)
	if !cur.Info.IsStream && cur.Info.Length > 0 {
		pos = min(pos, cur.Info.Length)
	}

	p.mu.RLock()
	n := p.node
	p.mu.RUnlock()
	if n == nil {
		return errors.Wrapf(node.ErrNodeNotConnected, "guild %s", p.guildID)
	}
	if _, err := n.UpdatePlayer(ctx, p.guildID, &node.PlayerUpdate{Position: &pos}, false); err != nil {
		return errors.Wrap(err, "failed to seek")
	}
	p.update(func() {
		p.position = pos
		p.positionAt = p.now()
	})
	return nil
}

// SetVolume sets the player volume, clamped to 0..100.
func (p *Player) SetVolume(ctx context.Context, volume int) error {
	p.opMu.Lock()
	defer p.opMu.Unlock()

	if p.State() == StateDestroyed {
		return ErrDestroyed
	}
	volume = clampVolume(volume)

	p.mu.RLock()
	n := p.node
	p.mu.RUnlock()
	if n != nil {
		if _, err := n.UpdatePlayer(ctx, p.guildID, &node.PlayerUpdate{Volume: &volume}, false); err != nil {
			return errors.Wrap(err, "failed to set volume")
		}
	}
	p.update(func() { p.volume = volume })
	return nil
}

// SetFilters replaces the active filters. nil resets every filter.
func (p *Player) SetFilters(ctx context.Context, f *filter.Filters) error {
	p.opMu.Lock()
	defer p.opMu.Unlock()

	if p.State() == StateDestroyed {
		return ErrDestroyed
	}
	f = f.Clone()

	p.mu.RLock()
	n := p.node
	p.mu.RUnlock()
	if n != nil {
		payload := f.Clone()
		if payload == nil {
			payload = &filter.Filters{}
		}
		if _, err := n.UpdatePlayer(ctx, p.guildID, &node.PlayerUpdate{Filters: payload}, false); err != nil {
			return errors.Wrap(err, "failed to set filters")
		}
	}
	p.update(func() { p.filters = f })
	return nil
}

// SetLoop sets the loop mode of the queue.
func (p *Player) SetLoop(mode queue.LoopMode) {
	p.queue.SetLoopMode(mode)
	p.refreshPreload()
}

// SetAutoplay toggles autoplay.
func (p *Player) SetAutoplay(enabled bool) {
	p.queue.SetAutoplay(enabled)
}

// Shuffle shuffles the main lane of the queue.
func (p *Player) Shuffle() {
	p.queue.Shuffle()
	p.refreshPreload()
}

// Add enqueues tracks and publishes the stored copies.
func (p *Player) Add(tracks []*track.Track, opts queue.AddOptions) []*track.Track {
	added := p.queue.Add(tracks, opts)
	if len(added) > 0 {
		p.publish(notification.TracksAdded, notification.TracksData{Tracks: added})
		p.refreshPreload()
	}
	return added
}

func (p *Player) refreshPreload() {
	next := p.queue.PeekNext()
	p.update(func() {
		if p.playing {
			p.preload = next
		}
	})
}

// Search resolves query through the bound node. Plain text is searched with
// the configured prefix; URLs and prefixed queries are passed through.
func (p *Player) Search(ctx context.Context, query string) (*node.LoadResult, error) {
	p.opMu.Lock()
	n, err := p.ensureNodeLocked()
	p.opMu.Unlock()
	if err != nil {
		return nil, err
	}
	return n.LoadTracks(ctx, SearchIdentifier(p.searchPrefix, query))
}

// SearchIdentifier turns a query into a load identifier.
func SearchIdentifier(prefix, query string) string {
	query = strings.TrimSpace(query)
	if strings.Contains(query, "://") {
		return query
	}
	if i := strings.IndexByte(query, ':'); i > 0 && strings.HasSuffix(query[:i], "search") {
		return query
	}
	return prefix + ":" + query
}

// Disconnect leaves voice but keeps the player and its queue.
func (p *Player) Disconnect(ctx context.Context) error {
	p.opMu.Lock()
	defer p.opMu.Unlock()

	if p.State() == StateDestroyed {
		return ErrDestroyed
	}
	if err := p.conn.Disconnect(ctx); err != nil {
		return err
	}
	p.update(func() {
		p.state = StateDisconnected
		p.playing = false
		p.voiceSent = voice.Server{}
		p.voiceNode = ""
	})
	p.publish(notification.PlayerDisconnected, notification.PlayerDisconnectedData{Reason: "left"})
	p.armInactivityLocked(inactivityIdle)
	return nil
}

// Destroy tears the player down. It is idempotent.
func (p *Player) Destroy(ctx context.Context) {
	p.opMu.Lock()
	defer p.opMu.Unlock()
	p.destroyLocked(ctx)
}

// Must be called with opMu held.
func (p *Player) destroyLocked(ctx context.Context) {
	if p.State() == StateDestroyed {
		return
	}
	p.cancelInactivityLocked()

	p.mu.RLock()
	n := p.node
	p.mu.RUnlock()
	if n != nil {
		if err := n.DestroyPlayer(ctx, p.guildID); err != nil {
			zlog.Debug().Msgf("player: failed to destroy remote player: guild=%s node=%s err=%v", p.guildID, n.Name(), err)
		}
	}
	if err := p.conn.Disconnect(ctx); err != nil {
		zlog.Warn().Msgf("player: failed to leave voice: guild=%s err=%v", p.guildID, err)
	}
	p.queue.Destroy()
	p.update(func() {
		p.state = StateDestroyed
		p.playing = false
		p.paused = false
		p.preload = nil
	})
	p.inbox.close()

	if p.onDestroy != nil {
		p.onDestroy(p)
	}
	zlog.Info().Msgf("player: destroyed: guild=%s", p.guildID)
	p.publish(notification.PlayerDestroyed, nil)
}

func clampVolume(v int) int {
	return min(max(v, 0), 100)
}

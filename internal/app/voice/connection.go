// Package voice reconciles the two halves of a voice handshake into one session.
package voice

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/cockroachdb/errors"
	"github.com/disgoorg/snowflake/v2"
	zlog "github.com/rs/zerolog/log"
)

// DefaultTimeout bounds how long Connect waits for both voice updates.
const DefaultTimeout = 15 * time.Second

var (
	ErrHandshakeTimeout = errors.New("voice handshake timed out")
	ErrDisconnected     = errors.New("voice connection closed")
)

// Adapter delivers outward voice-state requests to the chat platform.
// A nil channelID asks the platform to leave the current channel.
type Adapter interface {
	SendVoiceState(ctx context.Context, guildID snowflake.ID, channelID *snowflake.ID, selfDeaf, selfMute bool) error
}

// Server is a resolved voice session, ready to hand to an audio node.
type Server struct {
	SessionID string
	Token     string
	Endpoint  string
	Region    string
}

// Listener receives connection events. It is called synchronously and must not block.
type Listener func(Event)

// Options configures a Connection.
type Options struct {
	GuildID  snowflake.ID
	Adapter  Adapter
	Timeout  time.Duration
	Listener Listener
}

// Connection is the voice handshake state machine of one guild.
type Connection struct {
	mu sync.Mutex

	guildID  snowflake.ID
	adapter  Adapter
	timeout  time.Duration
	listener Listener

	channelID *snowflake.ID
	selfDeaf  bool
	selfMute  bool
	sessionID string
	token     string
	endpoint  string
	region    string
	connected bool

	waiter *waiter
}

// waiter is a single-shot completion signal.
type waiter struct {
	done chan struct{}
	once sync.Once
	err  error
}

func newWaiter() *waiter {
	return &waiter{done: make(chan struct{})}
}

func (w *waiter) resolve(err error) {
	w.once.Do(func() {
		w.err = err
		close(w.done)
	})
}

// NewConnection creates an idle connection.
func NewConnection(opts Options) *Connection {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Connection{
		guildID:  opts.GuildID,
		adapter:  opts.Adapter,
		timeout:  opts.Timeout,
		listener: opts.Listener,
	}
}

// Connect asks the platform to join channelID and waits until the handshake completes.
// It fails with ErrHandshakeTimeout when the timeout elapses first.
func (c *Connection) Connect(ctx context.Context, channelID snowflake.ID, selfDeaf, selfMute bool) (Server, error) {
	c.mu.Lock()
	if c.waiter != nil {
		c.waiter.resolve(errors.New("superseded by a new connect"))
	}
	w := newWaiter()
	c.waiter = w
	ch := channelID
	c.channelID = &ch
	c.selfDeaf = selfDeaf
	c.selfMute = selfMute
	c.mu.Unlock()

	if c.adapter == nil {
		c.clearWaiter(w)
		return Server{}, errors.New("voice adapter not configured")
	}
	if err := c.adapter.SendVoiceState(ctx, c.guildID, &ch, selfDeaf, selfMute); err != nil {
		c.clearWaiter(w)
		return Server{}, errors.Wrap(err, "failed to send voice state")
	}

	// Already in a session: the platform may not repeat both updates.
	c.mu.Lock()
	events := c.checkReadyLocked()
	if c.connected {
		w.resolve(nil)
	}
	c.mu.Unlock()
	c.emit(events)

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case <-w.done:
		c.clearWaiter(w)
		if w.err != nil {
			return Server{}, w.err
		}
		return c.Server(), nil
	case <-timer.C:
		w.resolve(ErrHandshakeTimeout)
		c.clearWaiter(w)
		return Server{}, errors.Wrapf(ErrHandshakeTimeout, "guild %s", c.guildID)
	case <-ctx.Done():
		w.resolve(ctx.Err())
		c.clearWaiter(w)
		return Server{}, errors.Wrap(ctx.Err(), "voice connect cancelled")
	}
}

func (c *Connection) clearWaiter(w *waiter) {
	c.mu.Lock()
	if c.waiter == w {
		c.waiter = nil
	}
	c.mu.Unlock()
}

// HandleVoiceStateUpdate applies the platform's voice-state half of the handshake.
// channelID is nil when the bot left or was removed from voice.
func (c *Connection) HandleVoiceStateUpdate(channelID *snowflake.ID, sessionID string) {
	var events []Event

	c.mu.Lock()
	switch {
	case channelID == nil:
		if c.channelID != nil {
			events = append(events, Event{Type: EventDisconnected, OldChannelID: c.channelID})
		}
		c.resetLocked()
		if c.waiter != nil {
			c.waiter.resolve(ErrDisconnected)
		}
		c.mu.Unlock()
		c.emit(events)
		return
	case c.channelID != nil && *c.channelID != *channelID:
		old := *c.channelID
		events = append(events, Event{Type: EventMoved, OldChannelID: &old, NewChannelID: channelID})
	}
	ch := *channelID
	c.channelID = &ch
	if sessionID != c.sessionID {
		c.sessionID = sessionID
		c.connected = false
	}
	events = append(events, c.checkReadyLocked()...)
	c.mu.Unlock()

	c.emit(events)
}

// HandleVoiceServerUpdate applies the platform's voice-server half of the handshake.
func (c *Connection) HandleVoiceServerUpdate(token, endpoint string) {
	c.mu.Lock()
	if token != c.token || endpoint != c.endpoint {
		c.connected = false
	}
	c.token = token
	c.endpoint = endpoint
	c.region = RegionFromEndpoint(endpoint)
	events := c.checkReadyLocked()
	c.mu.Unlock()

	c.emit(events)
}

// Disconnect clears the session and asks the platform to leave the channel.
func (c *Connection) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	c.resetLocked()
	if c.waiter != nil {
		c.waiter.resolve(ErrDisconnected)
		c.waiter = nil
	}
	deaf, mute := c.selfDeaf, c.selfMute
	c.mu.Unlock()

	if c.adapter == nil {
		return nil
	}
	if err := c.adapter.SendVoiceState(ctx, c.guildID, nil, deaf, mute); err != nil {
		return errors.Wrap(err, "failed to leave voice channel")
	}
	return nil
}

// checkReadyLocked flips connected once every credential is present.
// An already settled waiter is never resolved twice.
func (c *Connection) checkReadyLocked() []Event {
	if c.sessionID == "" || c.token == "" || c.endpoint == "" {
		c.connected = false
		return nil
	}
	if c.connected {
		return nil
	}
	c.connected = true
	if c.waiter != nil {
		c.waiter.resolve(nil)
	}
	zlog.Debug().Msgf("voice: session ready: guild=%s region=%s", c.guildID, c.region)
	srv := c.serverLocked()
	return []Event{{Type: EventReady, Server: &srv}}
}

func (c *Connection) resetLocked() {
	c.channelID = nil
	c.sessionID = ""
	c.token = ""
	c.endpoint = ""
	c.region = ""
	c.connected = false
}

func (c *Connection) emit(events []Event) {
	if c.listener == nil {
		return
	}
	for _, e := range events {
		e.GuildID = c.guildID
		c.listener(e)
	}
}

func (c *Connection) serverLocked() Server {
	return Server{SessionID: c.sessionID, Token: c.token, Endpoint: c.endpoint, Region: c.region}
}

// Server returns the current voice credentials.
func (c *Connection) Server() Server {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverLocked()
}

// Connected reports whether session id, token and endpoint are all present.
func (c *Connection) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// ChannelID returns the current voice channel, or nil.
func (c *Connection) ChannelID() *snowflake.ID {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channelID == nil {
		return nil
	}
	ch := *c.channelID
	return &ch
}

// Region returns the region derived from the voice endpoint.
func (c *Connection) Region() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.region
}

// Flags returns the requested self-deaf and self-mute flags.
func (c *Connection) Flags() (selfDeaf, selfMute bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selfDeaf, c.selfMute
}

// RegionFromEndpoint derives a region from a voice endpoint such as
// "us-east1234.discord.media:443": the leading label up to the first digit.
func RegionFromEndpoint(endpoint string) string {
	ep := endpoint
	if i := strings.Index(ep, "://"); i >= 0 {
		ep = ep[i+3:]
	}
	if i := strings.IndexByte(ep, '.'); i >= 0 {
		ep = ep[:i]
	}
	if i := strings.IndexFunc(ep, unicode.IsDigit); i >= 0 {
		ep = ep[:i]
	}
	return strings.TrimRight(ep, "-")
}

// Package node manages connections to remote audio nodes.
package node

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/disgoorg/snowflake/v2"
	"github.com/gorilla/websocket"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/audiolink/internal/app/notification"
)

const (
	// ConnectTimeout bounds the websocket handshake.
	ConnectTimeout = 15 * time.Second
	// DefaultClientName is sent in the Client-Name header.
	DefaultClientName = "audiolink/1.0"

	maxJitter = time.Second
)

var (
	ErrNodeNotConnected = errors.New("node is not connected")
	ErrNodeDestroyed    = errors.New("node is destroyed")
)

// State represents the connection state of a node.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateDestroyed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// Config describes one audio node.
type Config struct {
	Name          string
	Host          string
	Port          int
	Password      string
	Secure        bool
	Priority      int      // Lower is preferred
	Regions       []string // Empty means any region
	RetryAmount   int
	RetryDelay    time.Duration
	Resume        bool
	ResumeTimeout time.Duration
	UserID        snowflake.ID
	ClientName    string
}

// Handler receives per-guild frames from a node, in the order the node sent them.
type Handler interface {
	HandlePlayerUpdate(n *Node, msg PlayerUpdateMessage)
	HandleEvent(n *Node, msg EventMessage)
}

// Node is a client for one audio node: a websocket for events and a REST API for commands.
type Node struct {
	cfg        Config
	restBase   string
	wsURL      string
	httpClient *http.Client
	dialer     *websocket.Dialer
	jitter     time.Duration
	publisher  notification.Publisher

	mu             sync.RWMutex
	state          State
	conn           *websocket.Conn
	gen            uint64 // bumped by every dial and disconnect; stale loops compare against it
	sessionID      string // session of the current connection, set by ready
	resumeID       string // last session offered for resuming
	ready          chan struct{}
	stats          *Stats
	attempts       int
	connectedAt    time.Time
	reconnectTimer *time.Timer
	handler        Handler
	onFailure      func(n *Node, err error)
}

// New creates a disconnected node.
func New(cfg Config, httpClient *http.Client, publisher notification.Publisher) *Node {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if publisher == nil {
		publisher = notification.Nop{}
	}
	if cfg.ClientName == "" {
		cfg.ClientName = DefaultClientName
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	httpScheme, wsScheme := "http", "ws"
	if cfg.Secure {
		httpScheme, wsScheme = "https", "wss"
	}
	host := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	return &Node{
		cfg:        cfg,
		restBase:   (&url.URL{Scheme: httpScheme, Host: host, Path: "/v4"}).String(),
		wsURL:      (&url.URL{Scheme: wsScheme, Host: host, Path: "/v4/websocket"}).String(),
		httpClient: httpClient,
		dialer:     &websocket.Dialer{HandshakeTimeout: ConnectTimeout, Proxy: http.ProxyFromEnvironment},
		jitter:     maxJitter,
		publisher:  publisher,
	}
}

func (n *Node) Name() string { return n.cfg.Name }

func (n *Node) Priority() int { return n.cfg.Priority }

func (n *Node) Config() Config { return n.cfg }

func (n *Node) Regions() []string { return slices.Clone(n.cfg.Regions) }

// ServesRegion reports whether the node declares no region restriction or lists region.
func (n *Node) ServesRegion(region string) bool {
	return len(n.cfg.Regions) == 0 || slices.Contains(n.cfg.Regions, region)
}

func (n *Node) State() State {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.state
}

func (n *Node) SessionID() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.sessionID
}

// Available reports whether the node is connected and has received ready,
// so session calls can be made.
func (n *Node) Available() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.state == StateConnected && n.sessionID != ""
}

// WaitReady blocks until the current connection received ready or ctx ends.
func (n *Node) WaitReady(ctx context.Context) error {
	n.mu.RLock()
	state, ready := n.state, n.ready
	n.mu.RUnlock()
	if state == StateDestroyed {
		return ErrNodeDestroyed
	}
	if ready == nil {
		return ErrNodeNotConnected
	}
	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		return errors.Wrapf(ctx.Err(), "node %s not ready", n.cfg.Name)
	}
}

// Stats returns the latest stats snapshot, or nil.
func (n *Node) Stats() *Stats {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.stats == nil {
		return nil
	}
	s := *n.stats
	return &s
}

// Penalty returns the load score of the node. Lower is better.
func (n *Node) Penalty() float64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.stats.Penalty()
}

// Uptime returns how long the current connection has been up.
func (n *Node) Uptime() time.Duration {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.state != StateConnected {
		return 0
	}
	return time.Since(n.connectedAt)
}

// SetHandler installs the receiver of per-guild frames.
func (n *Node) SetHandler(h Handler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handler = h
}

func (n *Node) setOnFailure(fn func(*Node, error)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.onFailure = fn
}

// Connect opens the websocket. It is a no-op when already connected or connecting.
func (n *Node) Connect(ctx context.Context) error {
	n.mu.Lock()
	switch n.state {
	case StateDestroyed:
		n.mu.Unlock()
		return ErrNodeDestroyed
	case StateConnected, StateConnecting:
		n.mu.Unlock()
		return nil
	}
	n.stopReconnectLocked()
	n.attempts = 0
	n.mu.Unlock()

	return n.dial(ctx)
}

func (n *Node) dial(ctx context.Context) error {
	n.mu.Lock()
	if n.state == StateDestroyed {
		n.mu.Unlock()
		return ErrNodeDestroyed
	}
	n.gen++
	gen := n.gen
	n.state = StateConnecting
	n.sessionID = ""
	n.ready = make(chan struct{})
	header := n.headersLocked()
	n.mu.Unlock()

	zlog.Debug().Msgf("node: connecting: name=%s url=%s", n.cfg.Name, n.wsURL)

	dctx, cancel := context.WithTimeout(ctx, ConnectTimeout)
	defer cancel()

	conn, resp, err := n.dialer.DialContext(dctx, n.wsURL, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			err = errors.Wrapf(err, "handshake status %d", resp.StatusCode)
		}
		n.handleFailure(gen, err)
		return errors.Wrapf(err, "failed to connect node %s", n.cfg.Name)
	}

	n.mu.Lock()
	if n.gen != gen {
		// Disconnected or destroyed while dialing.
		n.mu.Unlock()
		_ = conn.Close()
		return ErrNodeNotConnected
	}
	n.conn = conn
	n.state = StateConnected
	n.attempts = 0
	n.connectedAt = time.Now()
	n.mu.Unlock()

	zlog.Info().Msgf("node: connected: name=%s", n.cfg.Name)
	n.publisher.Publish(notification.Event{Type: notification.NodeConnected, Node: n.cfg.Name})

	go n.readLoop(conn, gen)
	return nil
}

func (n *Node) headersLocked() http.Header {
	h := http.Header{}
	h.Set("Authorization", n.cfg.Password)
	h.Set("User-Id", n.cfg.UserID.String())
	h.Set("Client-Name", n.cfg.ClientName)
	if n.cfg.Resume && n.resumeID != "" {
		h.Set("Session-Id", n.resumeID)
	}
	return h
}

// Disconnect closes the websocket and cancels any pending reconnect. It is idempotent.
func (n *Node) Disconnect(code int, reason string) {
	n.mu.Lock()
	n.gen++
	n.stopReconnectLocked()
	conn := n.conn
	n.conn = nil
	wasConnected := n.state != StateDisconnected && n.state != StateDestroyed
	if n.state != StateDestroyed {
		n.state = StateDisconnected
	}
	n.mu.Unlock()

	if conn != nil {
		deadline := time.Now().Add(time.Second)
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
		_ = conn.Close()
	}
	if wasConnected {
		zlog.Info().Msgf("node: disconnected: name=%s code=%d reason=%s", n.cfg.Name, code, reason)
		n.publisher.Publish(notification.Event{
			Type: notification.NodeDisconnected,
			Node: n.cfg.Name,
			Data: notification.NodeDisconnectedData{Reason: reason},
		})
	}
}

// Destroy disconnects the node permanently.
func (n *Node) Destroy() {
	n.Disconnect(websocket.CloseNormalClosure, "destroyed")
	n.mu.Lock()
	n.state = StateDestroyed
	n.sessionID = ""
	n.resumeID = ""
	n.mu.Unlock()
}

func (n *Node) stopReconnectLocked() {
	if n.reconnectTimer != nil {
		n.reconnectTimer.Stop()
		n.reconnectTimer = nil
	}
}

// handleFailure schedules a reconnect, or gives up once RetryAmount attempts were spent.
func (n *Node) handleFailure(gen uint64, cause error) {
	n.mu.Lock()
	if n.gen != gen || n.state == StateDestroyed {
		n.mu.Unlock()
		return
	}
	n.conn = nil
	if n.attempts >= n.cfg.RetryAmount {
		n.state = StateDisconnected
		onFailure := n.onFailure
		attempts := n.attempts
		n.mu.Unlock()

		zlog.Error().Msgf("node: giving up: name=%s attempts=%d err=%v", n.cfg.Name, attempts, cause)
		n.publisher.Publish(notification.Event{
			Type: notification.NodeDisconnected,
			Node: n.cfg.Name,
			Data: notification.NodeDisconnectedData{Reason: cause.Error(), Attempt: attempts},
		})
		if onFailure != nil {
			onFailure(n, cause)
		}
		return
	}
	n.attempts++
	attempt := n.attempts
	delay := backoff(n.cfg.RetryDelay, attempt, n.jitter)
	n.state = StateReconnecting
	n.stopReconnectLocked()
	n.reconnectTimer = time.AfterFunc(delay, func() { n.reconnect(gen) })
	n.mu.Unlock()

	zlog.Warn().Msgf("node: reconnecting: name=%s attempt=%d delay=%s err=%v", n.cfg.Name, attempt, delay, cause)
	n.publisher.Publish(notification.Event{
		Type: notification.NodeReconnecting,
		Node: n.cfg.Name,
		Data: notification.NodeDisconnectedData{Reason: cause.Error(), Attempt: attempt, Delay: delay},
	})
}

func (n *Node) reconnect(gen uint64) {
	n.mu.Lock()
	if n.gen != gen || n.state != StateReconnecting {
		n.mu.Unlock()
		return
	}
	n.reconnectTimer = nil
	n.mu.Unlock()

	if err := n.dial(context.Background()); err != nil {
		zlog.Debug().Msgf("node: reconnect attempt failed: name=%s err=%v", n.cfg.Name, err)
	}
}

// backoff returns base * 1.5^(attempt-1) plus up to jitter of random delay.
func backoff(base time.Duration, attempt int, jitter time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := time.Duration(float64(base) * math.Pow(1.5, float64(attempt-1)))
	if jitter > 0 {
		d += rand.N(jitter)
	}
	return d
}

func (n *Node) readLoop(conn *websocket.Conn, gen uint64) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			n.mu.RLock()
			current := n.gen == gen
			n.mu.RUnlock()
			if !current {
				return
			}
			zlog.Warn().Msgf("node: connection lost: name=%s err=%v", n.cfg.Name, err)
			_ = conn.Close()
			n.handleFailure(gen, err)
			return
		}
		n.dispatch(gen, data)
	}
}

func (n *Node) dispatch(gen uint64, data []byte) {
	var envelope struct {
		Op Op `json:"op"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		zlog.Warn().Msgf("node: malformed frame: name=%s err=%v", n.cfg.Name, err)
		return
	}

	switch envelope.Op {
	case OpReady:
		var msg ReadyMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			zlog.Warn().Msgf("node: malformed ready: name=%s err=%v", n.cfg.Name, err)
			return
		}
		n.handleReady(gen, msg)
	case OpStats:
		var stats Stats
		if err := json.Unmarshal(data, &stats); err != nil {
			zlog.Warn().Msgf("node: malformed stats: name=%s err=%v", n.cfg.Name, err)
			return
		}
		n.mu.Lock()
		n.stats = &stats
		n.mu.Unlock()
		n.publisher.Publish(notification.Event{
			Type: notification.NodeStats,
			Node: n.cfg.Name,
			Data: notification.NodeStatsData{
				Players:        stats.Players,
				PlayingPlayers: stats.PlayingPlayers,
				Penalty:        stats.Penalty(),
			},
		})
	case OpPlayerUpdate:
		var msg PlayerUpdateMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			zlog.Warn().Msgf("node: malformed playerUpdate: name=%s err=%v", n.cfg.Name, err)
			return
		}
		if h := n.currentHandler(); h != nil {
			h.HandlePlayerUpdate(n, msg)
		}
	case OpEvent:
		var msg EventMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			zlog.Warn().Msgf("node: malformed event: name=%s err=%v", n.cfg.Name, err)
			return
		}
		zlog.Debug().Str("node", n.cfg.Name).Str("guild", msg.GuildID.String()).Msgf("node: event %s", msg.Type)
		if h := n.currentHandler(); h != nil {
			h.HandleEvent(n, msg)
		}
	default:
		zlog.Debug().Msgf("node: unknown op: name=%s op=%s", n.cfg.Name, envelope.Op)
	}
}

func (n *Node) currentHandler() Handler {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.handler
}

func (n *Node) handleReady(gen uint64, msg ReadyMessage) {
	n.mu.Lock()
	if n.gen != gen {
		n.mu.Unlock()
		return
	}
	lost := ""
	if !msg.Resumed && n.resumeID != msg.SessionID {
		lost = n.resumeID
	}
	n.sessionID = msg.SessionID
	n.resumeID = msg.SessionID
	select {
	case <-n.ready:
	default:
		close(n.ready)
	}
	n.mu.Unlock()

	if lost != "" {
		zlog.Info().Msgf("node: session not resumed: name=%s old=%s", n.cfg.Name, lost)
	}

	zlog.Info().Msgf("node: ready: name=%s session=%s resumed=%t", n.cfg.Name, msg.SessionID, msg.Resumed)
	n.publisher.Publish(notification.Event{
		Type: notification.NodeReady,
		Node: n.cfg.Name,
		Data: notification.NodeReadyData{SessionID: msg.SessionID, Resumed: msg.Resumed},
	})

	if n.cfg.Resume {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := n.UpdateSession(ctx, true, n.cfg.ResumeTimeout); err != nil {
				zlog.Warn().Msgf("node: failed to enable resuming: name=%s err=%v", n.cfg.Name, err)
			}
		}()
	}
}

// String implements fmt.Stringer for log output.
func (n *Node) String() string {
	return n.cfg.Name + "(" + n.cfg.Host + ":" + strconv.Itoa(n.cfg.Port) + ")"
}

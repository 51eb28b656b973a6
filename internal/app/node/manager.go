package node

import (
	"cmp"
	"context"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/disgoorg/snowflake/v2"
	"github.com/gorilla/websocket"
	zlog "github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/osa030/audiolink/internal/app/notification"
)

// migrateTimeout bounds the migration of a single player.
const migrateTimeout = 30 * time.Second

var ErrNoAvailableNode = errors.New("no available node")

// Migratable is a player that can be re-homed onto another node.
type Migratable interface {
	GuildID() snowflake.ID
	VoiceRegion() string
	MoveTo(ctx context.Context, target *Node) error
}

// PlayerSource enumerates the players bound to a node.
type PlayerSource interface {
	PlayersOn(nodeName string) []Migratable
}

// Manager owns the node pool.
type Manager struct {
	mu         sync.RWMutex
	nodes      map[string]*Node
	handler    Handler
	players    PlayerSource
	httpClient *http.Client
	publisher  notification.Publisher
}

// NewManager creates an empty pool.
func NewManager(httpClient *http.Client, publisher notification.Publisher) *Manager {
	if publisher == nil {
		publisher = notification.Nop{}
	}
	return &Manager{
		nodes:      make(map[string]*Node),
		httpClient: httpClient,
		publisher:  publisher,
	}
}

// SetHandler installs the receiver of per-guild frames on every current and future node.
func (m *Manager) SetHandler(h Handler) {
	m.mu.Lock()
	m.handler = h
	nodes := lo.Values(m.nodes)
	m.mu.Unlock()

	for _, n := range nodes {
		n.SetHandler(h)
	}
}

// SetPlayerSource installs the registry used to find players to migrate.
func (m *Manager) SetPlayerSource(ps PlayerSource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.players = ps
}

// Add registers a node. Adding an existing name returns the existing node.
func (m *Manager) Add(cfg Config) *Node {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n, ok := m.nodes[cfg.Name]; ok {
		return n
	}
	n := New(cfg, m.httpClient, m.publisher)
	n.SetHandler(m.handler)
	n.setOnFailure(m.handleFailure)
	m.nodes[cfg.Name] = n
	zlog.Info().Msgf("node manager: added node: name=%s host=%s:%d priority=%d", cfg.Name, cfg.Host, cfg.Port, cfg.Priority)
	return n
}

// Remove destroys a node and drops it from the pool. Its players migrate
// to the remaining nodes.
func (m *Manager) Remove(name string) bool {
	m.mu.Lock()
	n, ok := m.nodes[name]
	delete(m.nodes, name)
	m.mu.Unlock()

	if !ok {
		return false
	}
	n.Destroy()
	zlog.Info().Msgf("node manager: removed node: name=%s", name)
	go m.migrateFrom(n)
	return true
}

// Drain disconnects a node without retrying and migrates its players to
// the other nodes. The node stays in the pool and can be connected again.
func (m *Manager) Drain(name, reason string) (*Node, bool) {
	n, ok := m.Get(name)
	if !ok {
		return nil, false
	}
	n.Disconnect(websocket.CloseNormalClosure, reason)
	zlog.Info().Msgf("node manager: drained node: name=%s reason=%s", name, reason)
	go m.migrateFrom(n)
	return n, true
}

// Get returns a node by name.
func (m *Manager) Get(name string) (*Node, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.nodes[name]
	return n, ok
}

// Nodes returns a snapshot of the pool sorted by name.
func (m *Manager) Nodes() []*Node {
	m.mu.RLock()
	nodes := lo.Values(m.nodes)
	m.mu.RUnlock()

	slices.SortFunc(nodes, func(a, b *Node) int { return cmp.Compare(a.Name(), b.Name()) })
	return nodes
}

// ConnectAll connects every node in parallel and waits, up to ConnectTimeout,
// for each to receive ready. Failures are logged, not returned.
func (m *Manager) ConnectAll(ctx context.Context) {
	var wg sync.WaitGroup
	for _, n := range m.Nodes() {
		wg.Add(1)
		go func(n *Node) {
			defer wg.Done()
			if err := n.Connect(ctx); err != nil {
				zlog.Error().Msgf("node manager: connect failed: name=%s err=%v", n.Name(), err)
				return
			}
			wctx, cancel := context.WithTimeout(ctx, ConnectTimeout)
			defer cancel()
			if err := n.WaitReady(wctx); err != nil {
				zlog.Warn().Msgf("node manager: no ready received: name=%s err=%v", n.Name(), err)
			}
		}(n)
	}
	wg.Wait()
}

// DisconnectAll disconnects every node in parallel.
func (m *Manager) DisconnectAll() {
	var wg sync.WaitGroup
	for _, n := range m.Nodes() {
		wg.Add(1)
		go func(n *Node) {
			defer wg.Done()
			n.Disconnect(websocket.CloseNormalClosure, "shutdown")
		}(n)
	}
	wg.Wait()
}

// Best returns the preferred available node for region.
// Nodes serving the region are preferred when any exist; ties on priority
// are broken by penalty.
func (m *Manager) Best(region string) (*Node, error) {
	candidates := lo.Filter(m.Nodes(), func(n *Node, _ int) bool {
		return n.Available()
	})
	if len(candidates) == 0 {
		return nil, ErrNoAvailableNode
	}

	if region != "" {
		regional := lo.Filter(candidates, func(n *Node, _ int) bool { return n.ServesRegion(region) })
		if len(regional) > 0 {
			candidates = regional
		}
	}

	penalties := lo.SliceToMap(candidates, func(n *Node) (string, float64) { return n.Name(), n.Penalty() })
	slices.SortStableFunc(candidates, func(a, b *Node) int {
		return cmp.Or(
			cmp.Compare(a.Priority(), b.Priority()),
			cmp.Compare(penalties[a.Name()], penalties[b.Name()]),
		)
	})
	return candidates[0], nil
}

// handleFailure runs when a node lost its connection and exhausted its retries.
func (m *Manager) handleFailure(failed *Node, cause error) {
	m.publisher.Publish(notification.Event{
		Type: notification.NodeError,
		Node: failed.Name(),
		Data: notification.ErrorData{Message: cause.Error()},
	})
	go m.migrateFrom(failed)
}

func (m *Manager) migrateFrom(failed *Node) {
	m.mu.RLock()
	ps := m.players
	m.mu.RUnlock()
	if ps == nil {
		return
	}

	players := ps.PlayersOn(failed.Name())
	if len(players) == 0 {
		return
	}
	zlog.Warn().Msgf("node manager: migrating players: from=%s count=%d", failed.Name(), len(players))

	for _, p := range players {
		target, err := m.Best(p.VoiceRegion())
		if err != nil {
			zlog.Error().Msgf("node manager: no node to migrate to: guild=%s err=%v", p.GuildID(), err)
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), migrateTimeout)
		if err := p.MoveTo(ctx, target); err != nil {
			zlog.Error().Msgf("node manager: migration failed: guild=%s to=%s err=%v", p.GuildID(), target.Name(), err)
		}
		cancel()
	}
}

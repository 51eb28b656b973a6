// Package notification provides the notification manager for broadcasting events.
package notification

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"
)

// sendTimeout bounds a single subscriber delivery.
const sendTimeout = 500 * time.Millisecond

// Stream represents a notification stream for a subscriber.
type Stream interface {
	Send(*Event) error
}

// Publisher is the producer side of the manager.
type Publisher interface {
	Publish(Event)
}

// Nop discards every notification.
type Nop struct{}

func (Nop) Publish(Event) {}

// subscription represents a subscriber's subscription.
type subscription struct {
	id         string
	stream     Stream
	categories []Category // empty means every category
}

func (s *subscription) wants(t Type) bool {
	return len(s.categories) == 0 || slices.Contains(s.categories, t.Category())
}

// Manager manages notification subscriptions and broadcasting.
type Manager struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription
	sequenceNo    uint64
	sequenceNoMu  sync.Mutex
	now           func() time.Time
}

// NewManager creates a new notification manager.
func NewManager() *Manager {
	return &Manager{
		subscriptions: make(map[string]*subscription),
		now:           time.Now,
	}
}

// Subscribe adds a new subscription and returns the subscription ID.
// Without categories the subscriber receives everything.
func (m *Manager) Subscribe(stream Stream, categories ...Category) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.New().String()
	m.subscriptions[id] = &subscription{
		id:         id,
		stream:     stream,
		categories: slices.Clone(categories),
	}
	return id
}

// Unsubscribe removes a subscription.
func (m *Manager) Unsubscribe(subscriptionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subscriptions, subscriptionID)
}

// Publish stamps the event and broadcasts it.
func (m *Manager) Publish(e Event) {
	m.sequenceNoMu.Lock()
	m.sequenceNo++
	e.SequenceNo = m.sequenceNo
	m.sequenceNoMu.Unlock()

	if e.Time.IsZero() {
		e.Time = m.now()
	}
	m.Broadcast(&e)
}

// Broadcast sends a notification to all interested subscribers.
// Each stream send runs in a goroutine with a timeout; Broadcast returns once
// every send finished or timed out, so per-subscriber order follows call order.
func (m *Manager) Broadcast(e *Event) {
	m.mu.RLock()
	// Copy subscriptions to avoid holding lock during sends
	subs := make([]*subscription, 0, len(m.subscriptions))
	for _, sub := range m.subscriptions {
		if sub.wants(e.Type) {
			subs = append(subs, sub)
		}
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(s *subscription) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
			defer cancel()

			done := make(chan error, 1)
			go func() {
				done <- s.stream.Send(e)
			}()

			select {
			case err := <-done:
				if err != nil {
					zlog.Debug().Msgf("notification: send failed: subscription=%s type=%s err=%v", s.id, e.Type, err)
				}
			case <-ctx.Done():
				zlog.Warn().Msgf("notification: send timed out: subscription=%s type=%s", s.id, e.Type)
			}
		}(sub)
	}
	wg.Wait()
}

// SubscriberCount returns the number of active subscribers.
func (m *Manager) SubscriberCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscriptions)
}

// Close removes all subscriptions.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions = make(map[string]*subscription)
}

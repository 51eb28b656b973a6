// Package admission provides the filter chain deciding which tracks may enter a queue.
package admission

import (
	"context"
	"sort"

	"github.com/osa030/audiolink/internal/domain/track"
)

// Queue is the read view of a guild queue the filters inspect.
type Queue interface {
	Current() *track.Track
	Tracks() []*track.Track
}

// Request represents a track about to be queued.
type Request struct {
	Track     *track.Track
	Requester *track.Requester // Nil means a system request
	Queue     Queue
}

// RequesterType returns the type filters match against.
func (r Request) RequesterType() track.RequesterType {
	if r.Requester == nil || r.Requester.Type == "" {
		return track.RequesterTypeSystem
	}
	return r.Requester.Type
}

// Result represents the result of a filter check.
type Result struct {
	Accepted bool
	Code     string // e.g. "duplicate_track", "requester_limit"
}

// Accept returns an accepted result.
func Accept() Result {
	return Result{Accepted: true}
}

// Reject returns a rejected result with the given code.
func Reject(code string) Result {
	return Result{Accepted: false, Code: code}
}

// Filter is the interface for admission filters.
type Filter interface {
	// Name returns the filter name (used in config).
	Name() string
	// Description returns a human-readable description.
	Description() string
	// ReturnCodes returns the codes this filter can return.
	ReturnCodes() []string
	// ValidateConfig validates and applies the filter settings.
	ValidateConfig(settings map[string]any) error
	// AppliesTo returns true if this filter should be applied to the given requester type.
	AppliesTo(requesterType track.RequesterType) bool
	// Check performs the filter check.
	Check(ctx context.Context, req Request) Result
}

// registry holds registered filter factories.
var registry = make(map[string]func() Filter)

// Register registers a filter factory.
func Register(name string, factory func() Filter) {
	registry[name] = factory
}

// GetRegistered returns all registered filter factories.
func GetRegistered() map[string]func() Filter {
	return registry
}

// Names returns the registered filter names in order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

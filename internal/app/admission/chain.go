package admission

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/audiolink/internal/domain/track"
	"github.com/osa030/audiolink/internal/infra/config"
)

// Chain executes filters in sequence.
type Chain struct {
	filters []Filter
}

// NewChain creates a new filter chain.
func NewChain(filters ...Filter) *Chain {
	return &Chain{filters: filters}
}

// NewChainFromConfig builds the chain from the enabled filters, in name order.
func NewChainFromConfig(cfg map[string]config.FilterConfig) (*Chain, error) {
	c := NewChain()
	for _, name := range Names() {
		fc, ok := cfg[name]
		if !ok || !fc.Enabled {
			continue
		}
		f := registry[name]()
		if err := f.ValidateConfig(fc.Settings); err != nil {
			return nil, errors.Wrapf(err, "filter %s", name)
		}
		c.Add(f)
		zlog.Info().Msgf("admission: enabled filter: name=%s", name)
	}
	for name := range cfg {
		if _, ok := registry[name]; !ok {
			return nil, errors.Newf("unknown admission filter: %s", name)
		}
	}
	return c, nil
}

// Add adds a filter to the chain.
func (c *Chain) Add(f Filter) {
	c.filters = append(c.filters, f)
}

// Filters returns all filters in the chain.
func (c *Chain) Filters() []Filter {
	if c == nil {
		return nil
	}
	return c.filters
}

// Execute runs all filters in sequence.
// Returns immediately if any filter rejects the request.
func (c *Chain) Execute(ctx context.Context, req Request) Result {
	if c == nil {
		return Accept()
	}
	requesterType := req.RequesterType()
	for _, f := range c.filters {
		if !f.AppliesTo(requesterType) {
			continue
		}
		result := f.Check(ctx, req)
		if !result.Accepted {
			return result
		}
	}
	return Accept()
}

// Rejection pairs a refused track with the filter code.
type Rejection struct {
	Track *track.Track
	Code  string
}

// Admit checks tracks one by one. Accepted tracks count as queued for the
// checks of the tracks after them.
func (c *Chain) Admit(ctx context.Context, tracks []*track.Track, requester *track.Requester, q Queue) ([]*track.Track, []Rejection) {
	accepted := make([]*track.Track, 0, len(tracks))
	var rejected []Rejection

	view := &pendingQueue{base: q}
	for _, t := range tracks {
		stamped := t.Clone().WithRequester(requester)
		result := c.Execute(ctx, Request{Track: stamped, Requester: requester, Queue: view})
		if !result.Accepted {
			rejected = append(rejected, Rejection{Track: t, Code: result.Code})
			continue
		}
		accepted = append(accepted, t)
		view.pending = append(view.pending, stamped)
	}
	return accepted, rejected
}

type pendingQueue struct {
	base    Queue
	pending []*track.Track
}

func (p *pendingQueue) Current() *track.Track {
	if p.base == nil {
		return nil
	}
	return p.base.Current()
}

func (p *pendingQueue) Tracks() []*track.Track {
	var base []*track.Track
	if p.base != nil {
		base = p.base.Tracks()
	}
	tracks := make([]*track.Track, 0, len(base)+len(p.pending))
	tracks = append(tracks, base...)
	return append(tracks, p.pending...)
}

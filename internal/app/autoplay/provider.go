// Package autoplay recommends follow-up tracks once a player's queue runs dry.
package autoplay

import (
	"context"

	"github.com/osa030/audiolink/internal/app/node"
	"github.com/osa030/audiolink/internal/domain/track"
)

// Candidate is a recommendation. Providers that know a playable track set
// Track; providers that only know metadata set Query for the engine to resolve.
type Candidate struct {
	Track  *track.Track
	Query  string
	Source string // Display name of the provider
}

// Provider is the interface for recommendation providers.
type Provider interface {
	// Recommend returns up to count candidates. seeds are recently played
	// tracks, most recent first; there may be none.
	Recommend(ctx context.Context, seeds []*track.Track, count int) ([]Candidate, error)

	// Name returns the provider type (used in config).
	Name() string
}

// Loader resolves identifiers through an audio node.
type Loader interface {
	LoadTracks(ctx context.Context, identifier string) (*node.LoadResult, error)
}

// LoaderSource returns the loader to use for the next lookups.
type LoaderSource func() (Loader, error)

// StaticLoader always hands out l.
func StaticLoader(l Loader) LoaderSource {
	return func() (Loader, error) { return l, nil }
}

// NodeLoader hands out the best connected node of the pool.
func NodeLoader(m *node.Manager) LoaderSource {
	return func() (Loader, error) {
		n, err := m.Best("")
		if err != nil {
			return nil, err
		}
		return n, nil
	}
}

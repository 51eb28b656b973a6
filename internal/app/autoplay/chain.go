package autoplay

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/audiolink/internal/domain/track"
)

// ErrNoCandidates is returned when no provider produced anything.
var ErrNoCandidates = errors.New("all providers failed to return candidates")

// ProviderWithMetadata wraps a provider with its metadata.
type ProviderWithMetadata struct {
	Provider    Provider
	DisplayName string
}

// Chain tries providers in order until enough candidates are collected.
type Chain struct {
	providers []ProviderWithMetadata
}

// NewChain creates a new provider chain.
func NewChain(providers []ProviderWithMetadata) *Chain {
	return &Chain{providers: providers}
}

// Len returns the number of providers in the chain.
func (c *Chain) Len() int { return len(c.providers) }

// Name returns the provider type of a chain.
func (c *Chain) Name() string { return "chain" }

// Recommend collects up to count candidates. A failing provider is skipped.
func (c *Chain) Recommend(ctx context.Context, seeds []*track.Track, count int) ([]Candidate, error) {
	if count <= 0 {
		return nil, nil
	}

	var all []Candidate
	for i, pm := range c.providers {
		if err := ctx.Err(); err != nil {
			return all, errors.Wrap(err, "autoplay: recommendation aborted")
		}
		need := count - len(all)
		if need <= 0 {
			break
		}

		zlog.Debug().Msgf("autoplay: trying provider: index=%d total=%d name=%s type=%s",
			i+1, len(c.providers), pm.DisplayName, pm.Provider.Name())

		candidates, err := pm.Provider.Recommend(ctx, seeds, need)
		if err != nil {
			zlog.Warn().Msgf("autoplay: provider failed, trying next: provider=%s error=%v", pm.DisplayName, err)
			continue
		}
		if len(candidates) == 0 {
			zlog.Debug().Msgf("autoplay: provider returned no candidates: provider=%s", pm.DisplayName)
			continue
		}

		if len(candidates) > need {
			candidates = candidates[:need]
		}
		for _, cand := range candidates {
			cand.Source = pm.DisplayName
			all = append(all, cand)
		}

		zlog.Info().Msgf("autoplay: provider returned candidates: provider=%s count=%d total_so_far=%d",
			pm.DisplayName, len(candidates), len(all))
	}

	if len(all) == 0 {
		return nil, ErrNoCandidates
	}
	return all, nil
}

package autoplay

import (
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/audiolink/internal/infra/config"
)

// Deps are the clients providers may need. Spotify may be nil when no
// spotify provider is configured.
type Deps struct {
	Loader  LoaderSource
	Spotify SpotifyClient
}

// NewChainFromConfig creates a provider chain from configuration.
func NewChainFromConfig(cfg config.AutoplayConfig, deps Deps) (*Chain, error) {
	if len(cfg.Providers) == 0 {
		return nil, errors.New("no autoplay providers configured")
	}

	var providers []ProviderWithMetadata
	for i, pcfg := range cfg.Providers {
		var provider Provider
		var err error
		zlog.Debug().Msgf("autoplay: creating provider: index=%d type=%s", i+1, pcfg.Type)
		switch pcfg.Type {
		case "mix":
			provider, err = NewMixProvider(deps.Loader, pcfg.Settings)

		case "lastfm":
			provider, err = NewLastFmProvider(pcfg.Settings)

		case "spotify":
			if deps.Spotify == nil {
				err = errors.New("spotify client is not configured")
				break
			}
			provider, err = NewPlaylistProvider(deps.Spotify, pcfg.Settings)

		default:
			return nil, errors.Newf("unsupported provider type: %s (provider index %d)", pcfg.Type, i)
		}

		if err != nil {
			return nil, errors.Wrapf(err, "failed to create provider (index %d, type %s)", i, pcfg.Type)
		}

		providers = append(providers, ProviderWithMetadata{
			Provider:    provider,
			DisplayName: pcfg.DisplayName,
		})

		zlog.Info().Msgf("autoplay: registered provider: index=%d type=%s display_name=%s", i+1, pcfg.Type, pcfg.DisplayName)
	}

	return NewChain(providers), nil
}

// NewEngineFromConfig creates the engine and its provider chain.
func NewEngineFromConfig(cfg config.AutoplayConfig, deps Deps) (*Engine, error) {
	if deps.Loader == nil {
		return nil, errors.New("loader is required")
	}
	chain, err := NewChainFromConfig(cfg, deps)
	if err != nil {
		return nil, err
	}
	return NewEngine(Config{
		Count:         cfg.Count,
		SearchPrefix:  cfg.SearchPrefix,
		HistoryWindow: cfg.HistoryWindow,
	}, chain, deps.Loader), nil
}

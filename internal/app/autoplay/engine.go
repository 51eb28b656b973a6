package autoplay

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/osa030/audiolink/internal/app/node"
	"github.com/osa030/audiolink/internal/domain/track"
)

// ErrNoRecommendations is returned when nothing playable and new was found.
var ErrNoRecommendations = errors.New("no recommendations")

// Config tunes the engine.
type Config struct {
	Count         int           // Tracks added per refill
	SearchPrefix  string        // Used to resolve query candidates, e.g. "ytsearch"
	HistoryWindow int           // Recent tracks considered for seeding and dedupe
	Timeout       time.Duration // Upper bound of one refill
}

// Engine turns provider candidates into playable, deduplicated tracks.
type Engine struct {
	cfg      Config
	provider Provider
	loader   LoaderSource
}

// NewEngine creates an engine over provider. loader resolves query candidates.
func NewEngine(cfg Config, provider Provider, loader LoaderSource) *Engine {
	if cfg.Count <= 0 {
		cfg.Count = 5
	}
	if cfg.SearchPrefix == "" {
		cfg.SearchPrefix = "ytsearch"
	}
	if cfg.HistoryWindow < 0 {
		cfg.HistoryWindow = 0
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Engine{cfg: cfg, provider: provider, loader: loader}
}

// Recommend returns up to Count tracks to continue after last.
// recent is the play history, oldest first.
func (e *Engine) Recommend(ctx context.Context, last *track.Track, recent []*track.Track) ([]*track.Track, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	window := lo.Compact(recent)
	if len(window) > e.cfg.HistoryWindow {
		window = window[len(window)-e.cfg.HistoryWindow:]
	}

	seeds := make([]*track.Track, 0, len(window)+1)
	if last != nil {
		seeds = append(seeds, last)
	}
	for i := len(window) - 1; i >= 0; i-- {
		if !window[i].Same(last) {
			seeds = append(seeds, window[i])
		}
	}

	// Ask for extra candidates, some are lost to resolution and dedupe.
	candidates, err := e.provider.Recommend(ctx, seeds, e.cfg.Count*2)
	if err != nil {
		return nil, errors.Wrap(err, "autoplay: providers failed")
	}

	var loader Loader
	picked := make([]*track.Track, 0, e.cfg.Count)
	for _, cand := range candidates {
		if len(picked) == e.cfg.Count {
			break
		}

		t := cand.Track
		if t == nil && cand.Query != "" {
			if loader == nil {
				if loader, err = e.loader(); err != nil {
					return nil, errors.Wrap(err, "autoplay: no loader for query candidates")
				}
			}
			if t, err = e.resolve(ctx, loader, cand.Query); err != nil {
				zlog.Debug().Msgf("autoplay: failed to resolve candidate: query=%s error=%v", cand.Query, err)
				continue
			}
		}
		if t == nil {
			continue
		}

		duplicate := func(other *track.Track) bool { return IsDuplicate(other, t) }
		if lo.ContainsBy(seeds, duplicate) || lo.ContainsBy(picked, duplicate) {
			zlog.Debug().Msgf("autoplay: dropping duplicate: title=%s source=%s", t.Info.Title, cand.Source)
			continue
		}

		picked = append(picked, t.Clone().WithRequester(&track.Requester{
			Name: cand.Source,
			Type: track.RequesterTypeAutoplay,
		}))
	}

	if len(picked) == 0 {
		return nil, ErrNoRecommendations
	}
	return picked, nil
}

// resolve loads the first match of a search query.
func (e *Engine) resolve(ctx context.Context, loader Loader, query string) (*track.Track, error) {
	result, err := loader.LoadTracks(ctx, e.cfg.SearchPrefix+":"+query)
	if err != nil {
		return nil, err
	}
	switch result.LoadType {
	case node.LoadTypeError:
		if result.Exception != nil {
			return nil, errors.Newf("load failed: %s", result.Exception.Message)
		}
		return nil, errors.New("load failed")
	case node.LoadTypeEmpty:
		return nil, errors.New("no matches")
	}
	if len(result.Tracks) == 0 {
		return nil, errors.New("no matches")
	}
	return result.Tracks[0], nil
}

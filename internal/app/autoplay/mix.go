package autoplay

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/audiolink/internal/app/node"
	"github.com/osa030/audiolink/internal/domain/track"
)

type MixProviderConfig struct {
	// Sources whose identifiers are YouTube video ids.
	Sources   []string `mapstructure:"sources" default:"[\"youtube\"]" validate:"min=1"`
	SeedCount int      `mapstructure:"seed_count" default:"3" validate:"gte=1"`
}

// MixProvider recommends from the YouTube radio mix of a seed video.
// The mix is loaded through the audio node, so candidates are playable as is.
type MixProvider struct {
	loader LoaderSource
	config *MixProviderConfig
}

// NewMixProvider creates a new MixProvider.
func NewMixProvider(loader LoaderSource, settings map[string]any) (*MixProvider, error) {
	if loader == nil {
		return nil, errors.New("loader is required")
	}

	var config MixProviderConfig
	if err := mapstructure.Decode(settings, &config); err != nil {
		return nil, errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(&config); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(config); err != nil {
		return nil, errors.Wrap(err, "validation failed")
	}
	return &MixProvider{loader: loader, config: &config}, nil
}

// Name returns the provider name.
func (p *MixProvider) Name() string { return "mix" }

// MixURL returns the radio mix playlist of a YouTube video.
func MixURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + videoID + "&list=RD" + videoID
}

// Recommend loads the mix of the most recent usable seed. Older seeds are
// tried when a mix comes back empty.
func (p *MixProvider) Recommend(ctx context.Context, seeds []*track.Track, count int) ([]Candidate, error) {
	if count <= 0 {
		return nil, nil
	}

	usable := p.usableSeeds(seeds)
	if len(usable) == 0 {
		return nil, errors.New("no seed from a supported source")
	}

	loader, err := p.loader()
	if err != nil {
		return nil, errors.Wrap(err, "no loader available")
	}

	var lastErr error
	for _, seed := range usable {
		result, err := loader.LoadTracks(ctx, MixURL(seed.Info.Identifier))
		if err != nil {
			lastErr = err
			continue
		}
		if result.LoadType == node.LoadTypeError && result.Exception != nil {
			lastErr = errors.Newf("mix load failed: %s", result.Exception.Message)
			continue
		}

		var out []Candidate
		for _, t := range result.Tracks {
			if t.Info.Identifier == seed.Info.Identifier {
				continue
			}
			out = append(out, Candidate{Track: t})
			if len(out) == count {
				break
			}
		}
		if len(out) > 0 {
			return out, nil
		}
		zlog.Debug().Msgf("autoplay: empty mix: seed=%s", seed.Info.Identifier)
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, nil
}

func (p *MixProvider) usableSeeds(seeds []*track.Track) []*track.Track {
	var out []*track.Track
	for _, s := range seeds {
		if s == nil || s.Info.IsStream || s.Info.Identifier == "" {
			continue
		}
		for _, src := range p.config.Sources {
			if s.Info.SourceName == src {
				out = append(out, s)
				break
			}
		}
		if len(out) == p.config.SeedCount {
			break
		}
	}
	return out
}

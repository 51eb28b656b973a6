package admission

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/audiolink/internal/domain/track"
)

// DurationLimitConfig represents the configuration for DurationLimitFilter.
type DurationLimitConfig struct {
	MinSeconds    float64 `mapstructure:"min_seconds" validate:"gte=0"`
	MaxSeconds    float64 `mapstructure:"max_seconds" validate:"gte=0"` // 0 means no limit
	RejectStreams bool    `mapstructure:"reject_streams"`
}

// DurationLimitFilter checks if track duration is within allowed limits.
type DurationLimitFilter struct {
	config *DurationLimitConfig
}

// NewDurationLimitFilter creates a new duration limit filter.
func NewDurationLimitFilter() *DurationLimitFilter {
	return &DurationLimitFilter{}
}

func (f *DurationLimitFilter) Name() string {
	return "duration_limit"
}

func (f *DurationLimitFilter) Description() string {
	return "Checks if track duration is within allowed limits"
}

func (f *DurationLimitFilter) ReturnCodes() []string {
	return []string{"duration_limit_exceeded", "stream_rejected"}
}

func (f *DurationLimitFilter) ValidateConfig(settings map[string]any) error {
	var config DurationLimitConfig
	if err := decodeSettings(settings, &config); err != nil {
		return err
	}
	if config.MaxSeconds > 0 && config.MinSeconds > config.MaxSeconds {
		return errors.New("min_seconds cannot be greater than max_seconds")
	}
	f.config = &config
	zlog.Info().Msgf("duration limit filter config: %+v", config)
	return nil
}

func (f *DurationLimitFilter) AppliesTo(requesterType track.RequesterType) bool {
	// Autoplay picks are bounded by the recommendation engine instead
	return requesterType != track.RequesterTypeAutoplay
}

func (f *DurationLimitFilter) Check(ctx context.Context, req Request) Result {
	// If config is not set, accept all tracks
	if f.config == nil {
		return Accept()
	}

	if req.Track.Info.IsStream {
		if f.config.RejectStreams {
			return Reject("stream_rejected")
		}
		return Accept()
	}

	seconds := req.Track.Duration().Seconds()
	if seconds < f.config.MinSeconds {
		return Reject("duration_limit_exceeded")
	}
	if f.config.MaxSeconds > 0 && seconds > f.config.MaxSeconds {
		return Reject("duration_limit_exceeded")
	}
	return Accept()
}

// decodeSettings decodes filter settings, applies defaults and validates.
func decodeSettings(settings map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  out,
		TagName: "mapstructure",
	})
	if err != nil {
		return errors.Wrap(err, "failed to create decoder")
	}
	if err := decoder.Decode(settings); err != nil {
		return errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(out); err != nil {
		return errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(out); err != nil {
		return errors.Wrap(err, "validation failed")
	}
	return nil
}

func init() {
	Register("duration_limit", func() Filter {
		return &DurationLimitFilter{}
	})
}

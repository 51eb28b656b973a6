package admission

import (
	"context"

	"github.com/osa030/audiolink/internal/domain/track"
)

// RequesterLimitConfig represents the configuration for RequesterLimitFilter.
type RequesterLimitConfig struct {
	MaxPending int `mapstructure:"max_pending" default:"5" validate:"gte=1"`
}

// RequesterLimitFilter caps how many queued tracks one requester may have waiting.
type RequesterLimitFilter struct {
	config *RequesterLimitConfig
}

func (f *RequesterLimitFilter) Name() string {
	return "requester_limit"
}

func (f *RequesterLimitFilter) Description() string {
	return "Checks if the requester has too many tracks waiting to be played"
}

func (f *RequesterLimitFilter) ReturnCodes() []string {
	return []string{"requester_limit"}
}

func (f *RequesterLimitFilter) ValidateConfig(settings map[string]any) error {
	var config RequesterLimitConfig
	if err := decodeSettings(settings, &config); err != nil {
		return err
	}
	f.config = &config
	return nil
}

func (f *RequesterLimitFilter) AppliesTo(requesterType track.RequesterType) bool {
	// Pending track limits only apply to user requests, not system-generated tracks
	return requesterType == track.RequesterTypeUser
}

func (f *RequesterLimitFilter) Check(ctx context.Context, req Request) Result {
	if f.config == nil || req.Queue == nil || req.Requester == nil {
		return Accept()
	}

	pending := 0
	for _, t := range req.Queue.Tracks() {
		if t.Requester != nil && t.Requester.Type == track.RequesterTypeUser && t.Requester.ID == req.Requester.ID {
			pending++
		}
	}
	if pending >= f.config.MaxPending {
		return Reject("requester_limit")
	}
	return Accept()
}

func init() {
	Register("requester_limit", func() Filter {
		return &RequesterLimitFilter{}
	})
}

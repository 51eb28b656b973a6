package admission

import (
	"context"

	"github.com/osa030/audiolink/internal/app/autoplay"
	"github.com/osa030/audiolink/internal/domain/track"
)

// DuplicateTrackFilter rejects songs already playing or queued. Remasters and
// re-uploads by the same artist count as the same song; covers do not.
type DuplicateTrackFilter struct{}

func (f *DuplicateTrackFilter) Name() string {
	return "duplicate_track"
}

func (f *DuplicateTrackFilter) Description() string {
	return "Rejects songs already in the queue (remasters included, covers allowed)"
}

func (f *DuplicateTrackFilter) ReturnCodes() []string {
	return []string{"duplicate_track"}
}

func (f *DuplicateTrackFilter) ValidateConfig(settings map[string]any) error {
	// No configuration needed
	return nil
}

func (f *DuplicateTrackFilter) AppliesTo(requesterType track.RequesterType) bool {
	return requesterType == track.RequesterTypeUser
}

func (f *DuplicateTrackFilter) Check(ctx context.Context, req Request) Result {
	if req.Queue == nil {
		return Accept()
	}
	if autoplay.IsDuplicate(req.Queue.Current(), req.Track) {
		return Reject("duplicate_track")
	}
	for _, queued := range req.Queue.Tracks() {
		if autoplay.IsDuplicate(queued, req.Track) {
			return Reject("duplicate_track")
		}
	}
	return Accept()
}

func init() {
	Register("duplicate_track", func() Filter {
		return &DuplicateTrackFilter{}
	})
}

package autoplay

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/audiolink/internal/domain/track"
	"github.com/osa030/audiolink/internal/infra/spotify"
)

// SpotifyClient defines the Spotify operations needed by the playlist provider.
type SpotifyClient interface {
	GetPlaylistTracksRandom(ctx context.Context, playlistURL string, count int) ([]spotify.Song, error)
}

type PlaylistProviderConfig struct {
	PlaylistURL string `mapstructure:"playlist_url" validate:"required"`
	CacheSize   int    `mapstructure:"cache_size" default:"20" validate:"gte=1"`
}

// PlaylistProvider recommends random tracks of a configured Spotify playlist.
// It keeps the unused part of each sample to minimize Spotify API calls.
type PlaylistProvider struct {
	spotify SpotifyClient
	config  *PlaylistProviderConfig

	mu    sync.Mutex
	cache []spotify.Song
}

// NewPlaylistProvider creates a new PlaylistProvider.
func NewPlaylistProvider(client SpotifyClient, settings map[string]any) (*PlaylistProvider, error) {
	if client == nil {
		return nil, errors.New("spotify client is required")
	}

	var config PlaylistProviderConfig
	if err := mapstructure.Decode(settings, &config); err != nil {
		return nil, errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(&config); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	zlog.Debug().Msgf("autoplay: playlist provider config: %+v", config)
	if err := validator.New().Struct(config); err != nil {
		return nil, errors.Wrap(err, "validation failed")
	}
	return &PlaylistProvider{spotify: client, config: &config}, nil
}

// Name returns the provider name.
func (p *PlaylistProvider) Name() string { return "spotify" }

// Recommend returns playlist songs that are not among the seeds.
func (p *PlaylistProvider) Recommend(ctx context.Context, seeds []*track.Track, count int) ([]Candidate, error) {
	if count <= 0 {
		return nil, nil
	}

	exclude := make(map[string]bool, len(seeds))
	for _, s := range seeds {
		if s != nil {
			exclude[SongOf(s).Key()] = true
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	available := make([]spotify.Song, 0, len(p.cache))
	seen := make(map[string]bool)
	keep := func(s spotify.Song) {
		if seen[s.ID] || exclude[songKey(s)] {
			return
		}
		seen[s.ID] = true
		available = append(available, s)
	}
	for _, s := range p.cache {
		keep(s)
	}

	if len(available) < count {
		needed := max(p.config.CacheSize, count) - len(available)
		fresh, err := p.spotify.GetPlaylistTracksRandom(ctx, p.config.PlaylistURL, needed)
		if err != nil {
			return nil, errors.Wrap(err, "failed to get random tracks from playlist")
		}
		for _, s := range fresh {
			keep(s)
		}
	}

	n := min(count, len(available))
	p.cache = available[n:]

	out := make([]Candidate, 0, n)
	for _, s := range available[:n] {
		out = append(out, Candidate{Query: s.Artist() + " - " + s.Title})
	}
	return out, nil
}

func songKey(s spotify.Song) string {
	return Song{Title: s.Title, Artist: s.Artist()}.Key()
}

package autoplay

import (
	"context"
	cryptoRand "crypto/rand"
	"encoding/binary"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/audiolink/internal/domain/track"
	"github.com/osa030/audiolink/internal/infra/lastfm"
)

// LastFmClient defines the interface for Last.fm operations.
type LastFmClient interface {
	GetSimilarTracks(ctx context.Context, trackName, artistName string, limit int) ([]lastfm.SimilarTrack, error)
	GetTopTags(ctx context.Context, trackName, artistName string, limit int) ([]lastfm.Tag, error)
	GetTopTracks(ctx context.Context, tagName string, limit int) ([]lastfm.TopTrack, error)
	GetChartTopTracks(ctx context.Context, limit int) ([]lastfm.TopTrack, error)
}

type LastFmProviderConfig struct {
	APIKey         string  `mapstructure:"api_key" validate:"required"`
	SeedTrackCount int     `mapstructure:"seed_track_count" default:"3" validate:"gte=1"`
	TagCount       int     `mapstructure:"tag_count" default:"5" validate:"gte=1"`
	TagWeight      float64 `mapstructure:"tag_weight" default:"0.4" validate:"gte=0,lte=1.0"`
	SimilarWeight  float64 `mapstructure:"similar_weight" default:"0.6" validate:"gte=0,lte=1.0"`
}

// LastFmProvider recommends with Last.fm using hybrid scoring.
// Combines tag-based and similar-based strategies with configurable weights
// and falls back to the global chart when there is nothing to seed from.
type LastFmProvider struct {
	lastfm LastFmClient
	config *LastFmProviderConfig
}

// scoredSong is a Last.fm song with its hybrid score.
type scoredSong struct {
	Title  string
	Artist string
	Score  float64
}

// NewLastFmProvider creates a provider backed by a new Last.fm client.
func NewLastFmProvider(settings map[string]any) (*LastFmProvider, error) {
	config, err := decodeLastFmConfig(settings)
	if err != nil {
		return nil, err
	}
	client, err := lastfm.New(lastfm.Config{APIKey: config.APIKey})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create last.fm client")
	}
	return &LastFmProvider{lastfm: client, config: config}, nil
}

// NewLastFmProviderWithClient creates a provider around an existing client.
func NewLastFmProviderWithClient(client LastFmClient, settings map[string]any) (*LastFmProvider, error) {
	if client == nil {
		return nil, errors.New("last.fm client is required")
	}
	config, err := decodeLastFmConfig(settings)
	if err != nil {
		return nil, err
	}
	return &LastFmProvider{lastfm: client, config: config}, nil
}

func decodeLastFmConfig(settings map[string]any) (*LastFmProviderConfig, error) {
	if len(settings) == 0 {
		return nil, errors.New("settings are required")
	}

	var config LastFmProviderConfig
	if err := mapstructure.Decode(settings, &config); err != nil {
		return nil, errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(&config); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(config); err != nil {
		return nil, errors.Wrap(err, "validation failed")
	}
	if sum := config.TagWeight + config.SimilarWeight; sum < 0.999 || sum > 1.001 {
		return nil, errors.New("tag weight and similar weight must sum to 1.0")
	}
	return &config, nil
}

// Name returns the provider name.
func (p *LastFmProvider) Name() string { return "lastfm" }

// Recommend returns "artist - title" queries for the engine to resolve.
func (p *LastFmProvider) Recommend(ctx context.Context, seeds []*track.Track, count int) ([]Candidate, error) {
	if count <= 0 {
		return nil, nil
	}

	songs := make([]Song, 0, p.config.SeedTrackCount)
	for _, s := range seeds {
		if s == nil {
			continue
		}
		if song := SongOf(s); song.Artist != "" && song.Title != "" {
			songs = append(songs, song)
		}
		if len(songs) == p.config.SeedTrackCount {
			break
		}
	}

	var scored []scoredSong
	if len(songs) == 0 {
		chart, err := p.chartCandidates(ctx, count)
		if err != nil {
			return nil, err
		}
		scored = chart
	} else {
		exclude := make(map[string]bool, len(songs))
		for _, s := range songs {
			exclude[s.Key()] = true
		}
		tagged := p.tagBasedCandidates(ctx, songs, exclude)
		similar := p.similarBasedCandidates(ctx, songs, exclude)
		scored = p.scoreAndMerge(tagged, similar)

		// Random selection from the top count*2 adds variety.
		sort.SliceStable(scored, func(i, j int) bool {
			return scored[i].Score > scored[j].Score
		})
		if pool := count * 2; len(scored) > pool {
			scored = scored[:pool]
		}
		rng := newRand()
		rng.Shuffle(len(scored), func(i, j int) {
			scored[i], scored[j] = scored[j], scored[i]
		})
	}

	out := make([]Candidate, 0, count)
	for _, s := range scored {
		out = append(out, Candidate{Query: s.Artist + " - " + s.Title})
		if len(out) == count {
			break
		}
	}
	return out, nil
}

// tagBasedCandidates retrieves songs sharing the seeds' most common tags.
func (p *LastFmProvider) tagBasedCandidates(ctx context.Context, seeds []Song, exclude map[string]bool) []Song {
	tagCounts := make(map[string]int)
	for _, seed := range seeds {
		tags, err := p.lastfm.GetTopTags(ctx, seed.Title, seed.Artist, 10)
		if err != nil {
			zlog.Debug().Msgf("autoplay: lastfm tags failed: song=%s error=%v", seed.Key(), err)
			continue
		}
		for _, tag := range tags {
			tagCounts[tag.Name] += tag.Count
		}
	}
	if len(tagCounts) == 0 {
		return nil
	}

	var (
		candidates []Song
		mu         sync.Mutex
		wg         sync.WaitGroup
	)
	for _, tagName := range topTags(tagCounts, p.config.TagCount) {
		wg.Add(1)
		go func(tag string) {
			defer wg.Done()
			tracks, err := p.lastfm.GetTopTracks(ctx, tag, 20)
			if err != nil {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			for _, t := range tracks {
				song := Song{Title: t.Name, Artist: t.Artist}
				if !exclude[song.Key()] {
					candidates = append(candidates, song)
				}
			}
		}(tagName)
	}
	wg.Wait()

	return dedupeSongs(candidates)
}

// similarBasedCandidates retrieves songs Last.fm lists as similar to the seeds.
func (p *LastFmProvider) similarBasedCandidates(ctx context.Context, seeds []Song, exclude map[string]bool) []Song {
	var (
		candidates []Song
		mu         sync.Mutex
		wg         sync.WaitGroup
	)
	for _, seed := range seeds {
		wg.Add(1)
		go func(s Song) {
			defer wg.Done()
			similar, err := p.lastfm.GetSimilarTracks(ctx, s.Title, s.Artist, 10)
			if err != nil {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			for _, sim := range similar {
				song := Song{Title: sim.Name, Artist: sim.Artist}
				if !exclude[song.Key()] {
					candidates = append(candidates, song)
				}
			}
		}(seed)
	}
	wg.Wait()

	return dedupeSongs(candidates)
}

// scoreAndMerge scores songs by the strategies that found them.
// The result is ordered by first appearance.
func (p *LastFmProvider) scoreAndMerge(tagged, similar []Song) []scoredSong {
	index := make(map[string]int)
	var result []scoredSong

	add := func(s Song, weight float64) {
		if i, ok := index[s.Key()]; ok {
			result[i].Score += weight
			return
		}
		index[s.Key()] = len(result)
		result = append(result, scoredSong{Title: s.Title, Artist: s.Artist, Score: weight})
	}
	for _, s := range tagged {
		add(s, p.config.TagWeight)
	}
	for _, s := range similar {
		add(s, p.config.SimilarWeight)
	}
	return result
}

// chartCandidates samples the global chart. Used when no seed is available.
func (p *LastFmProvider) chartCandidates(ctx context.Context, count int) ([]scoredSong, error) {
	chart, err := p.lastfm.GetChartTopTracks(ctx, 50)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get chart")
	}

	rng := newRand()
	rng.Shuffle(len(chart), func(i, j int) {
		chart[i], chart[j] = chart[j], chart[i]
	})

	songs := make([]Song, 0, len(chart))
	for _, t := range chart {
		songs = append(songs, Song{Title: t.Name, Artist: t.Artist})
	}
	songs = dedupeSongs(songs)
	if len(songs) > count {
		songs = songs[:count]
	}

	out := make([]scoredSong, 0, len(songs))
	for _, s := range songs {
		out = append(out, scoredSong{Title: s.Title, Artist: s.Artist})
	}
	return out, nil
}

// topTags sorts tags by count and returns the top n names.
func topTags(tagCounts map[string]int, n int) []string {
	names := make([]string, 0, len(tagCounts))
	for name := range tagCounts {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if tagCounts[names[i]] != tagCounts[names[j]] {
			return tagCounts[names[i]] > tagCounts[names[j]]
		}
		return strings.Compare(names[i], names[j]) < 0
	})
	if len(names) > n {
		names = names[:n]
	}
	return names
}

func dedupeSongs(songs []Song) []Song {
	seen := make(map[string]bool, len(songs))
	out := songs[:0]
	for _, s := range songs {
		if k := s.Key(); !seen[k] {
			seen[k] = true
			out = append(out, s)
		}
	}
	return out
}

// newRand returns a generator seeded from crypto/rand.
func newRand() *rand.Rand {
	var seed int64
	var buf [8]byte
	if _, err := cryptoRand.Read(buf[:]); err == nil {
		seed = int64(binary.LittleEndian.Uint64(buf[:]))
	} else {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

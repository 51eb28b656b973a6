package autoplay

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/osa030/audiolink/internal/app/node"
	"github.com/osa030/audiolink/internal/domain/track"
	"github.com/osa030/audiolink/internal/infra/lastfm"
	"github.com/osa030/audiolink/internal/infra/spotify"
)

func yt(id, title, author string) *track.Track {
	return &track.Track{
		Encoded: "enc-" + id,
		Info: track.Info{
			Identifier: id,
			Title:      title,
			Author:     author,
			Length:     200000,
			IsSeekable: true,
			SourceName: "youtube",
		},
	}
}

// fakeLoader answers identifiers from a fixed table.
type fakeLoader struct {
	mu      sync.Mutex
	results map[string]*node.LoadResult
	err     error
	queries []string
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{results: make(map[string]*node.LoadResult)}
}

func (l *fakeLoader) search(identifier string, tracks ...*track.Track) *fakeLoader {
	l.results[identifier] = &node.LoadResult{LoadType: node.LoadTypeSearch, Tracks: tracks}
	return l
}

func (l *fakeLoader) LoadTracks(_ context.Context, identifier string) (*node.LoadResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.queries = append(l.queries, identifier)
	if l.err != nil {
		return nil, l.err
	}
	if r, ok := l.results[identifier]; ok {
		return r, nil
	}
	return &node.LoadResult{LoadType: node.LoadTypeEmpty}, nil
}

func (l *fakeLoader) calls() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.queries...)
}

// fakeProvider returns canned candidates and records its inputs.
type fakeProvider struct {
	name       string
	candidates []Candidate
	err        error

	mu     sync.Mutex
	calls  int
	seeds  []*track.Track
	counts []int
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) Recommend(_ context.Context, seeds []*track.Track, count int) ([]Candidate, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.seeds = seeds
	p.counts = append(p.counts, count)
	if p.err != nil {
		return nil, p.err
	}
	return p.candidates, nil
}

type fakeLastFm struct {
	mu       sync.Mutex
	similar  map[string][]lastfm.SimilarTrack // key: artist/title
	tags     map[string][]lastfm.Tag          // key: artist/title
	tagTops  map[string][]lastfm.TopTrack     // key: tag
	chart    []lastfm.TopTrack
	chartErr error
	asked    []string
}

func (f *fakeLastFm) record(s string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.asked = append(f.asked, s)
}

func (f *fakeLastFm) GetSimilarTracks(_ context.Context, trackName, artistName string, _ int) ([]lastfm.SimilarTrack, error) {
	f.record("similar:" + artistName + "/" + trackName)
	if s, ok := f.similar[artistName+"/"+trackName]; ok {
		return s, nil
	}
	return nil, errors.New("track not found")
}

func (f *fakeLastFm) GetTopTags(_ context.Context, trackName, artistName string, _ int) ([]lastfm.Tag, error) {
	f.record("tags:" + artistName + "/" + trackName)
	return f.tags[artistName+"/"+trackName], nil
}

func (f *fakeLastFm) GetTopTracks(_ context.Context, tagName string, _ int) ([]lastfm.TopTrack, error) {
	f.record("tag:" + tagName)
	return f.tagTops[tagName], nil
}

func (f *fakeLastFm) GetChartTopTracks(_ context.Context, _ int) ([]lastfm.TopTrack, error) {
	f.record("chart")
	return append([]lastfm.TopTrack(nil), f.chart...), f.chartErr
}

type fakeSpotify struct {
	mu     sync.Mutex
	songs  []spotify.Song
	err    error
	counts []int
}

func (f *fakeSpotify) GetPlaylistTracksRandom(_ context.Context, _ string, count int) ([]spotify.Song, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts = append(f.counts, count)
	if f.err != nil {
		return nil, f.err
	}
	if count > len(f.songs) {
		count = len(f.songs)
	}
	return append([]spotify.Song(nil), f.songs[:count]...), nil
}

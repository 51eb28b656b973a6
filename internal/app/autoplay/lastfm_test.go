package autoplay

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/audiolink/internal/domain/track"
	"github.com/osa030/audiolink/internal/infra/lastfm"
)

func candidateQueries(cands []Candidate) []string {
	out := make([]string, 0, len(cands))
	for _, c := range cands {
		out = append(out, c.Query)
	}
	return out
}

func TestNewLastFmProvider_Config(t *testing.T) {
	tests := []struct {
		name     string
		settings map[string]any
		wantErr  bool
	}{
		{name: "defaults", settings: map[string]any{"api_key": "k"}},
		{name: "custom weights", settings: map[string]any{"api_key": "k", "tag_weight": 0.5, "similar_weight": 0.5}},
		{name: "missing settings", settings: nil, wantErr: true},
		{name: "missing api key", settings: map[string]any{"tag_count": 3}, wantErr: true},
		{name: "weights do not sum to one", settings: map[string]any{"api_key": "k", "tag_weight": 0.5, "similar_weight": 0.2}, wantErr: true},
		{name: "weight out of range", settings: map[string]any{"api_key": "k", "tag_weight": 1.5, "similar_weight": -0.5}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewLastFmProviderWithClient(&fakeLastFm{}, tt.settings)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "lastfm", p.Name())
			assert.InDelta(t, 1.0, p.config.TagWeight+p.config.SimilarWeight, 1e-9)
		})
	}
}

func TestLastFmProvider_HybridScoring(t *testing.T) {
	client := &fakeLastFm{
		similar: map[string][]lastfm.SimilarTrack{
			"Queen/Bohemian Rhapsody": {
				{Name: "Don't Stop Me Now", Artist: "Queen"},
				{Name: "Bohemian Rhapsody - Remastered", Artist: "Queen"},
				{Name: "Killer Queen", Artist: "Queen"},
			},
		},
		tags: map[string][]lastfm.Tag{
			"Queen/Bohemian Rhapsody": {{Name: "rock", Count: 100}},
		},
		tagTops: map[string][]lastfm.TopTrack{
			"rock": {
				{Name: "Don't Stop Me Now", Artist: "Queen"},
				{Name: "Highway to Hell", Artist: "AC/DC"},
			},
		},
	}
	p, err := NewLastFmProviderWithClient(client, map[string]any{"api_key": "k"})
	require.NoError(t, err)

	seed := yt("1", "Queen - Bohemian Rhapsody (Official Video)", "Queen Official")
	got, err := p.Recommend(context.Background(), []*track.Track{seed}, 5)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{
		"Queen - Don't Stop Me Now",
		"Queen - Killer Queen",
		"AC/DC - Highway to Hell",
	}, candidateQueries(got), "the seed and its remaster are excluded")
	assert.Contains(t, client.asked, "similar:Queen/Bohemian Rhapsody")
	assert.Contains(t, client.asked, "tag:rock")
	assert.NotContains(t, client.asked, "chart")
}

func TestLastFmProvider_ScoreAndMerge(t *testing.T) {
	p, err := NewLastFmProviderWithClient(&fakeLastFm{}, map[string]any{"api_key": "k"})
	require.NoError(t, err)

	scored := p.scoreAndMerge(
		[]Song{{Title: "Both", Artist: "A"}, {Title: "Tag Only", Artist: "B"}},
		[]Song{{Title: "both", Artist: "a"}, {Title: "Similar Only", Artist: "C"}},
	)
	require.Len(t, scored, 3)
	assert.Equal(t, "Both", scored[0].Title)
	assert.InDelta(t, 1.0, scored[0].Score, 1e-9)
	assert.InDelta(t, 0.4, scored[1].Score, 1e-9)
	assert.InDelta(t, 0.6, scored[2].Score, 1e-9)
}

func TestLastFmProvider_ChartFallback(t *testing.T) {
	client := &fakeLastFm{
		chart: []lastfm.TopTrack{
			{Name: "Hit", Artist: "Star"},
			{Name: "hit", Artist: "STAR"},
			{Name: "Other", Artist: "Band"},
			{Name: "Third", Artist: "Group"},
		},
	}
	p, err := NewLastFmProviderWithClient(client, map[string]any{"api_key": "k"})
	require.NoError(t, err)

	// Streams without an artist give nothing to seed from.
	stream := &track.Track{Info: track.Info{Title: "Radio", IsStream: true}}
	got, err := p.Recommend(context.Background(), []*track.Track{stream}, 5)
	require.NoError(t, err)
	assert.Len(t, got, 3, "chart duplicates are merged")
	assert.Equal(t, []string{"chart"}, client.asked)

	got, err = p.Recommend(context.Background(), nil, 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	client.chartErr = errors.New("down")
	_, err = p.Recommend(context.Background(), nil, 2)
	assert.Error(t, err)
}

func TestTopTags(t *testing.T) {
	counts := map[string]int{"rock": 10, "pop": 30, "indie": 10, "jazz": 1}
	assert.Equal(t, []string{"pop", "indie", "rock"}, topTags(counts, 3))
	assert.Len(t, topTags(counts, 10), 4)
}

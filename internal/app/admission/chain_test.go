package admission

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/audiolink/internal/domain/track"
	"github.com/osa030/audiolink/internal/infra/config"
)

// stubFilter records calls and answers a fixed result.
type stubFilter struct {
	name    string
	applies bool
	result  Result
	calls   int
}

func (f *stubFilter) Name() string                        { return f.name }
func (f *stubFilter) Description() string                 { return "stub" }
func (f *stubFilter) ReturnCodes() []string               { return []string{f.result.Code} }
func (f *stubFilter) ValidateConfig(map[string]any) error { return nil }
func (f *stubFilter) AppliesTo(track.RequesterType) bool  { return f.applies }

func (f *stubFilter) Check(context.Context, Request) Result {
	f.calls++
	return f.result
}

func TestChain_Execute(t *testing.T) {
	skipped := &stubFilter{name: "skipped", applies: false, result: Reject("never")}
	passing := &stubFilter{name: "passing", applies: true, result: Accept()}
	rejecting := &stubFilter{name: "rejecting", applies: true, result: Reject("nope")}
	after := &stubFilter{name: "after", applies: true, result: Accept()}

	c := NewChain(skipped, passing, rejecting, after)
	result := c.Execute(context.Background(), Request{Track: song("a", "A", "x", time.Minute)})

	assert.False(t, result.Accepted)
	assert.Equal(t, "nope", result.Code)
	assert.Equal(t, 0, skipped.calls)
	assert.Equal(t, 1, passing.calls)
	assert.Equal(t, 1, rejecting.calls)
	assert.Equal(t, 0, after.calls)
}

func TestChain_NilAcceptsEverything(t *testing.T) {
	var c *Chain
	tracks := []*track.Track{song("a", "A", "x", time.Minute)}

	accepted, rejected := c.Admit(context.Background(), tracks, nil, nil)
	assert.Equal(t, tracks, accepted)
	assert.Empty(t, rejected)
	assert.Empty(t, c.Filters())
}

func TestChain_Admit(t *testing.T) {
	limit := &RequesterLimitFilter{config: &RequesterLimitConfig{MaxPending: 2}}
	c := NewChain(&DuplicateTrackFilter{}, limit)

	q := &staticQueue{tracks: []*track.Track{
		song("old", "Old Song", "Band", time.Minute).WithRequester(user(1)),
	}}
	a := song("a", "First", "Band", time.Minute)
	dupOfA := song("a2", "First (Remastered)", "Band", time.Minute)
	b := song("b", "Second", "Band", time.Minute)
	c3 := song("c", "Third", "Band", time.Minute)

	accepted, rejected := c.Admit(context.Background(), []*track.Track{a, dupOfA, b, c3}, user(1), q)

	// One queued plus a reaches the limit of two.
	assert.Equal(t, []*track.Track{a}, accepted)
	require.Len(t, rejected, 3)
	assert.Equal(t, Rejection{Track: dupOfA, Code: "duplicate_track"}, rejected[0])
	assert.Equal(t, "requester_limit", rejected[1].Code)
	assert.Equal(t, "requester_limit", rejected[2].Code)
	assert.Nil(t, a.Requester, "input tracks are not stamped")
}

func TestChain_AdmitSystemRequestsSkipUserFilters(t *testing.T) {
	c := NewChain(&DuplicateTrackFilter{})
	q := &staticQueue{tracks: []*track.Track{song("a", "A", "x", time.Minute)}}

	accepted, rejected := c.Admit(context.Background(), []*track.Track{song("a", "A", "x", time.Minute)}, nil, q)
	assert.Len(t, accepted, 1)
	assert.Empty(t, rejected)
}

func TestNewChainFromConfig(t *testing.T) {
	tests := []struct {
		name      string
		cfg       map[string]config.FilterConfig
		wantNames []string
		wantErr   string
	}{
		{
			name: "nothing configured",
		},
		{
			name: "enabled filters in name order",
			cfg: map[string]config.FilterConfig{
				"requester_limit": {Enabled: true, Settings: map[string]any{"max_pending": 3}},
				"duration_limit":  {Enabled: true, Settings: map[string]any{"max_seconds": 600}},
				"duplicate_track": {Enabled: false},
			},
			wantNames: []string{"duration_limit", "requester_limit"},
		},
		{
			name: "invalid settings",
			cfg: map[string]config.FilterConfig{
				"requester_limit": {Enabled: true, Settings: map[string]any{"max_pending": -1}},
			},
			wantErr: "filter requester_limit",
		},
		{
			name: "unknown filter",
			cfg: map[string]config.FilterConfig{
				"kicked": {Enabled: true},
			},
			wantErr: "unknown admission filter: kicked",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewChainFromConfig(tt.cfg)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)

			var names []string
			for _, f := range c.Filters() {
				names = append(names, f.Name())
			}
			assert.Equal(t, tt.wantNames, names)
		})
	}
}

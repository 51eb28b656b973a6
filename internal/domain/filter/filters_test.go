package filter

import (
	"encoding/json"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilters_IsDefault(t *testing.T) {
	one := 1.0
	half := 0.5

	tests := []struct {
		name     string
		filters  *Filters
		expected bool
	}{
		{name: "nil", filters: nil, expected: true},
		{name: "empty", filters: &Filters{}, expected: true},
		{name: "unity volume", filters: &Filters{Volume: &one}, expected: true},
		{name: "reduced volume", filters: &Filters{Volume: &half}, expected: false},
		{name: "flat equalizer", filters: &Filters{Equalizer: []EqualizerBand{{Band: 0, Gain: 0}}}, expected: true},
		{name: "boosted equalizer", filters: &Filters{Equalizer: []EqualizerBand{{Band: 0, Gain: 0.2}}}, expected: false},
		{name: "timescale", filters: Nightcore(), expected: false},
		{name: "plugin filter", filters: &Filters{PluginFilters: map[string]any{"echo": map[string]any{}}}, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.filters.IsDefault())
		})
	}
}

func TestFilters_SetBand(t *testing.T) {
	f := &Filters{}

	require.NoError(t, f.SetBand(3, 0.4))
	require.NoError(t, f.SetBand(3, 2.0))
	require.NoError(t, f.SetBand(4, -1))

	assert.Equal(t, []EqualizerBand{{Band: 3, Gain: 1.0}, {Band: 4, Gain: -0.25}}, f.Equalizer)

	err := f.SetBand(EqualizerBands, 0.1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidBand))
}

func TestFilters_Clone(t *testing.T) {
	vol := 0.8
	f := &Filters{Volume: &vol, Timescale: &Timescale{Speed: 1.1, Pitch: 1, Rate: 1}}
	require.NoError(t, f.SetBand(0, 0.3))

	c := f.Clone()
	assert.Equal(t, f, c)

	*c.Volume = 0.1
	c.Timescale.Speed = 2
	c.Equalizer[0].Gain = 0

	assert.Equal(t, 0.8, *f.Volume)
	assert.Equal(t, 1.1, f.Timescale.Speed)
	assert.Equal(t, 0.3, f.Equalizer[0].Gain)
}

func TestFilters_JSONOmitsDisabled(t *testing.T) {
	data, err := json.Marshal(Nightcore())
	require.NoError(t, err)
	assert.JSONEq(t, `{"timescale":{"speed":1.2,"pitch":1.2,"rate":1}}`, string(data))
}

func TestBassBoost(t *testing.T) {
	f := BassBoost(0.5)
	require.Len(t, f.Equalizer, 5)
	assert.Equal(t, 0.5, f.Equalizer[0].Gain)
	assert.False(t, f.IsDefault())
}

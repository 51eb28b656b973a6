// Package filter provides the audio filter payload sent to audio nodes.
package filter

import (
	"github.com/cockroachdb/errors"
)

// EqualizerBands is the number of bands an audio node accepts.
const EqualizerBands = 15

var ErrInvalidBand = errors.New("equalizer band out of range")

// Filters is the full filter payload of a player.
// A nil field means the filter is disabled.
type Filters struct {
	Volume        *float64        `json:"volume,omitempty"`
	Equalizer     []EqualizerBand `json:"equalizer,omitempty"`
	Karaoke       *Karaoke        `json:"karaoke,omitempty"`
	Timescale     *Timescale      `json:"timescale,omitempty"`
	Tremolo       *Tremolo        `json:"tremolo,omitempty"`
	Vibrato       *Vibrato        `json:"vibrato,omitempty"`
	Rotation      *Rotation       `json:"rotation,omitempty"`
	Distortion    *Distortion     `json:"distortion,omitempty"`
	ChannelMix    *ChannelMix     `json:"channelMix,omitempty"`
	LowPass       *LowPass        `json:"lowPass,omitempty"`
	PluginFilters map[string]any  `json:"pluginFilters,omitempty"`
}

type EqualizerBand struct {
	Band int     `json:"band"`
	Gain float64 `json:"gain"` // -0.25 to 1.0
}

type Karaoke struct {
	Level       float64 `json:"level"`
	MonoLevel   float64 `json:"monoLevel"`
	FilterBand  float64 `json:"filterBand"`
	FilterWidth float64 `json:"filterWidth"`
}

type Timescale struct {
	Speed float64 `json:"speed"`
	Pitch float64 `json:"pitch"`
	Rate  float64 `json:"rate"`
}

type Tremolo struct {
	Frequency float64 `json:"frequency"`
	Depth     float64 `json:"depth"`
}

type Vibrato struct {
	Frequency float64 `json:"frequency"`
	Depth     float64 `json:"depth"`
}

type Rotation struct {
	RotationHz float64 `json:"rotationHz"`
}

type Distortion struct {
	SinOffset float64 `json:"sinOffset"`
	SinScale  float64 `json:"sinScale"`
	CosOffset float64 `json:"cosOffset"`
	CosScale  float64 `json:"cosScale"`
	TanOffset float64 `json:"tanOffset"`
	TanScale  float64 `json:"tanScale"`
	Offset    float64 `json:"offset"`
	Scale     float64 `json:"scale"`
}

type ChannelMix struct {
	LeftToLeft   float64 `json:"leftToLeft"`
	LeftToRight  float64 `json:"leftToRight"`
	RightToLeft  float64 `json:"rightToLeft"`
	RightToRight float64 `json:"rightToRight"`
}

type LowPass struct {
	Smoothing float64 `json:"smoothing"`
}

// IsDefault reports whether no filter is active.
// A volume of exactly 1.0 counts as default.
func (f *Filters) IsDefault() bool {
	if f == nil {
		return true
	}
	if f.Volume != nil && *f.Volume != 1.0 {
		return false
	}
	for _, b := range f.Equalizer {
		if b.Gain != 0 {
			return false
		}
	}
	return f.Karaoke == nil &&
		f.Timescale == nil &&
		f.Tremolo == nil &&
		f.Vibrato == nil &&
		f.Rotation == nil &&
		f.Distortion == nil &&
		f.ChannelMix == nil &&
		f.LowPass == nil &&
		len(f.PluginFilters) == 0
}

// SetBand sets the gain of one equalizer band, replacing any existing value.
func (f *Filters) SetBand(band int, gain float64) error {
	if band < 0 || band >= EqualizerBands {
		return errors.Wrapf(ErrInvalidBand, "band %d", band)
	}
	gain = min(max(gain, -0.25), 1.0)
	for i := range f.Equalizer {
		if f.Equalizer[i].Band == band {
			f.Equalizer[i].Gain = gain
			return nil
		}
	}
	f.Equalizer = append(f.Equalizer, EqualizerBand{Band: band, Gain: gain})
	return nil
}

// Clone returns a deep copy.
func (f *Filters) Clone() *Filters {
	if f == nil {
		return nil
	}
	c := &Filters{}
	if f.Volume != nil {
		v := *f.Volume
		c.Volume = &v
	}
	if f.Equalizer != nil {
		c.Equalizer = append([]EqualizerBand(nil), f.Equalizer...)
	}
	c.Karaoke = clonePtr(f.Karaoke)
	c.Timescale = clonePtr(f.Timescale)
	c.Tremolo = clonePtr(f.Tremolo)
	c.Vibrato = clonePtr(f.Vibrato)
	c.Rotation = clonePtr(f.Rotation)
	c.Distortion = clonePtr(f.Distortion)
	c.ChannelMix = clonePtr(f.ChannelMix)
	c.LowPass = clonePtr(f.LowPass)
	if f.PluginFilters != nil {
		c.PluginFilters = make(map[string]any, len(f.PluginFilters))
		for k, v := range f.PluginFilters {
			c.PluginFilters[k] = v
		}
	}
	return c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Nightcore returns the common speed-and-pitch preset.
func Nightcore() *Filters {
	return &Filters{Timescale: &Timescale{Speed: 1.2, Pitch: 1.2, Rate: 1.0}}
}

// Vaporwave returns the slowed preset.
func Vaporwave() *Filters {
	return &Filters{Timescale: &Timescale{Speed: 0.85, Pitch: 0.8, Rate: 1.0}}
}

// BassBoost returns an equalizer preset boosting the lowest bands by level (0..1).
func BassBoost(level float64) *Filters {
	f := &Filters{}
	for band, weight := range []float64{1.0, 0.8, 0.6, 0.3, 0.1} {
		_ = f.SetBand(band, level*weight)
	}
	return f
}

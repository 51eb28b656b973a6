package autoplay

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/osa030/audiolink/internal/domain/track"
)

func TestIsDuplicate(t *testing.T) {
	tests := []struct {
		name     string
		a, b     *track.Track
		expected bool
	}{
		{
			name:     "same identifier",
			a:        yt("abc", "Some Title", "Someone"),
			b:        yt("abc", "Other Title", "Other"),
			expected: true,
		},
		{
			name:     "remaster",
			a:        yt("1", "Bohemian Rhapsody - 2011 Remaster", "Queen - Topic"),
			b:        yt("2", "Bohemian Rhapsody", "Queen"),
			expected: true,
		},
		{
			name:     "official video with artist prefix",
			a:        yt("1", "Queen - Bohemian Rhapsody (Official Video Remastered)", "Queen Official"),
			b:        yt("2", "Bohemian Rhapsody", "Queen"),
			expected: true,
		},
		{
			name:     "vevo channel",
			a:        yt("1", "Adele - Hello", "AdeleVEVO"),
			b:        yt("2", "Hello [Lyrics]", "Adele"),
			expected: true,
		},
		{
			name:     "live recording",
			a:        yt("1", "Yellow (Live at Glastonbury 2016)", "Coldplay"),
			b:        yt("2", "Yellow", "Coldplay"),
			expected: true,
		},
		{
			name:     "featured artist",
			a:        yt("1", "Stay (feat. Mikky Ekko)", "Rihanna"),
			b:        yt("2", "Stay", "Rihanna"),
			expected: true,
		},
		{
			name:     "cover by another artist",
			a:        yt("1", "Hallelujah", "Jeff Buckley"),
			b:        yt("2", "Hallelujah", "Leonard Cohen"),
			expected: false,
		},
		{
			name:     "live inside a word is kept",
			a:        yt("1", "Alive", "Pearl Jam"),
			b:        yt("2", "A", "Pearl Jam"),
			expected: false,
		},
		{
			name:     "different songs",
			a:        yt("1", "Yellow", "Coldplay"),
			b:        yt("2", "Fix You", "Coldplay"),
			expected: false,
		},
		{
			name:     "nil track",
			a:        yt("1", "Yellow", "Coldplay"),
			b:        nil,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsDuplicate(tt.a, tt.b))
			assert.Equal(t, tt.expected, IsDuplicate(tt.b, tt.a))
		})
	}
}

func TestIsDuplicate_ISRC(t *testing.T) {
	a := yt("1", "Title A", "X")
	b := yt("2", "Title B", "Y")
	a.Info.ISRC, b.Info.ISRC = "GBUM71029604", "GBUM71029604"
	assert.True(t, IsDuplicate(a, b))
}

func TestSongOf(t *testing.T) {
	tests := []struct {
		name     string
		title    string
		author   string
		expected Song
	}{
		{
			name:     "plain",
			title:    "Hello",
			author:   "Adele",
			expected: Song{Title: "Hello", Artist: "Adele"},
		},
		{
			name:     "topic channel",
			title:    "Hello",
			author:   "Adele - Topic",
			expected: Song{Title: "Hello", Artist: "Adele"},
		},
		{
			name:     "artist prefix by the artist",
			title:    "Adele - Hello (Official Music Video)",
			author:   "AdeleVEVO",
			expected: Song{Title: "Hello", Artist: "Adele"},
		},
		{
			name:     "dash in a title by another channel is kept",
			title:    "Intro - Reprise",
			author:   "The xx",
			expected: Song{Title: "Intro - Reprise", Artist: "The xx"},
		},
		{
			name:     "unknown uploader",
			title:    "Daft Punk - One More Time",
			author:   "",
			expected: Song{Title: "One More Time", Artist: "Daft Punk"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SongOf(yt("id", tt.title, tt.author)))
		})
	}
}

func TestNormalizeTitle(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Bohemian Rhapsody - 2011 Remaster", "bohemian rhapsody"},
		{"Let It Be (Remastered 2009)", "let it be"},
		{"Heroes [Remastered]", "heroes"},
		{"Wonderwall - Remastered", "wonderwall"},
		{"Hey Jude (Single Version)", "hey jude"},
		{"Blinding Lights (Radio Edit)", "blinding lights"},
		{"Creep - Live", "creep"},
		{"Hurt  (Official Audio)", "hurt"},
		{"Alive", "alive"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, normalizeTitle(tt.input))
		})
	}
}

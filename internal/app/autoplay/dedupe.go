package autoplay

import (
	"regexp"
	"strings"

	"github.com/osa030/audiolink/internal/domain/track"
)

// Song is the title/artist pair of a track with platform noise removed.
type Song struct {
	Title  string
	Artist string
}

// Key identifies the song regardless of version or case.
func (s Song) Key() string {
	return normalizeArtist(s.Artist) + "\x00" + normalizeTitle(s.Title)
}

var (
	// Upload decorations that say nothing about the recording.
	noisePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\s*[(\[][^)\]]*\bofficial\b[^)\]]*[)\]]`),                            // "(Official Music Video)"
		regexp.MustCompile(`(?i)\s*[(\[]\s*(lyrics?|lyric video|audio|visualizer|hd|hq|4k|mv)\s*[)\]]`), // "[Lyrics]"
	}

	remasterPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\s*-?\s*\d{4}\s+remaster(ed)?`),      // "- 2011 Remaster"
		regexp.MustCompile(`\s*\(remaster(ed)?\s*\d{0,4}\)`),     // "(Remastered 2023)"
		regexp.MustCompile(`\s*\[remaster(ed)?\s*\d{0,4}\]`),     // "[Remastered]"
		regexp.MustCompile(`\s*-?\s*remaster(ed)?(\s+version)?`), // "- Remastered"
		regexp.MustCompile(`\s*\(.*?remaster.*?\)`),              // "(Any Remaster text)"
		regexp.MustCompile(`\s*\[.*?remaster.*?\]`),              // "[Any Remaster text]"
	}

	versionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\s*\(.*?version\)`),                  // "(Single Version)"
		regexp.MustCompile(`\s*\(.*?edit\)`),                     // "(Radio Edit)"
		regexp.MustCompile(`\s*[(\[]\s*live\b.*?[)\]]`),          // "(Live at Wembley)"
		regexp.MustCompile(`\s+-\s+live\b.*$`),                   // "- Live"
		regexp.MustCompile(`\s*-?\s*radio\s+edit`),               // "- Radio Edit"
		regexp.MustCompile(`\s*-?\s*single\s+version`),           // "- Single Version"
		regexp.MustCompile(`\s*[(\[]\s*(feat|ft)\.?\s.*?[)\]]`),  // "(feat. Someone)"
		regexp.MustCompile(`\s+(feat|ft)\.\s.*$`),                // "feat. Someone"
	}

	spacePattern = regexp.MustCompile(`\s+`)
)

// SongOf extracts the song from a track. Titles shaped "Artist - Title" are
// split when the left side names the uploader or the uploader is unknown.
func SongOf(t *track.Track) Song {
	artist := cleanAuthor(t.Info.Author)
	title := t.Info.Title
	for _, p := range noisePatterns {
		title = p.ReplaceAllString(title, "")
	}
	title = strings.TrimSpace(title)

	if left, right, ok := strings.Cut(title, " - "); ok {
		left = strings.TrimSpace(left)
		if artist == "" || normalizeArtist(left) == normalizeArtist(artist) {
			artist, title = left, strings.TrimSpace(right)
		}
	}
	return Song{Title: title, Artist: artist}
}

// IsDuplicate reports whether two tracks are the same song: identical
// identifiers, or equal normalised titles by the same artist. Covers by a
// different artist are not duplicates.
func IsDuplicate(a, b *track.Track) bool {
	if a == nil || b == nil {
		return false
	}
	if a.Info.Identifier != "" && a.Info.Identifier == b.Info.Identifier && a.Info.SourceName == b.Info.SourceName {
		return true
	}
	if a.Info.ISRC != "" && a.Info.ISRC == b.Info.ISRC {
		return true
	}
	sa, sb := SongOf(a), SongOf(b)
	if sa.Artist == "" || sb.Artist == "" {
		return false
	}
	return sa.Key() == sb.Key()
}

// normalizeTitle removes remaster information and version details.
func normalizeTitle(name string) string {
	normalized := strings.ToLower(name)
	for _, p := range noisePatterns {
		normalized = p.ReplaceAllString(normalized, "")
	}
	for _, p := range remasterPatterns {
		normalized = p.ReplaceAllString(normalized, "")
	}
	for _, p := range versionPatterns {
		normalized = p.ReplaceAllString(normalized, "")
	}

	normalized = strings.TrimSpace(normalized)
	normalized = spacePattern.ReplaceAllString(normalized, " ")
	return strings.TrimRight(normalized, " -")
}

func normalizeArtist(name string) string {
	return strings.ToLower(cleanAuthor(name))
}

// cleanAuthor strips channel decorations such as "Artist - Topic" and "ArtistVEVO".
func cleanAuthor(author string) string {
	a := strings.TrimSpace(author)
	a = strings.TrimSuffix(a, " - Topic")
	if strings.HasSuffix(a, "VEVO") && len(a) > len("VEVO") {
		a = strings.TrimSuffix(a, "VEVO")
	}
	a = strings.TrimSuffix(a, " Official")
	return strings.TrimSpace(a)
}

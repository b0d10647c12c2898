package orchestrator

import (
	"regexp"
	"strings"

	"github.com/tonearm/tonearm/internal/music"
)

var (
	yearPattern    = regexp.MustCompile(`\b(19|20)\d{2}\b`)
	bracketPattern = regexp.MustCompile(`\[.*?\]`)
	parenPattern   = regexp.MustCompile(`\(.*?\)`)
)

// sanitizeTorrentText strips edition noise from a catalog album or
// song title so tracker keyword search matches release names:
// "OK Computer: OKNOTOK 1997 2017" becomes "OK Computer". Years are
// stripped after brackets so the pass is idempotent.
func sanitizeTorrentText(text string) string {
	if idx := strings.Index(text, ":"); idx >= 0 {
		text = text[:idx]
	}
	text = bracketPattern.ReplaceAllString(text, "")
	text = parenPattern.ReplaceAllString(text, "")
	text = yearPattern.ReplaceAllString(text, "")
	return strings.Join(strings.Fields(text), " ")
}

// buildTorrentQuery renders "{artist} {text}" from a catalog release.
// Albums make better tracker queries than song titles, so the album
// wins unless the caller wants the song itself.
func buildTorrentQuery(release music.MetadataRelease, preferSongOnly bool) string {
	text := ""
	switch {
	case preferSongOnly && release.Title != "":
		text = sanitizeTorrentText(release.Title)
	case release.Album != "":
		text = sanitizeTorrentText(release.Album)
	case release.Title != "":
		text = sanitizeTorrentText(release.Title)
	}
	return strings.Join(strings.Fields(release.Artist+" "+text), " ")
}

// metadataQuery builds the catalog search text from a parsed query:
// song and album terms when present, the artist alone otherwise.
func metadataQuery(parsed music.ParsedQuery) string {
	parts := make([]string, 0, 2)
	if parsed.Song != "" {
		parts = append(parts, parsed.Song)
	}
	if parsed.Album != "" {
		parts = append(parts, parsed.Album)
	}
	if len(parts) == 0 && parsed.Artist != "" {
		parts = append(parts, parsed.Artist)
	}
	return strings.Join(parts, " ")
}

package orchestrator

import (
	"testing"

	"github.com/tonearm/tonearm/internal/music"
)

func TestSanitizeTorrentText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"colon edition suffix", "OK Computer: OKNOTOK 1997 2017", "OK Computer"},
		{"colon live suffix", "The Book of Souls: Live Chapter", "The Book of Souls"},
		{"brackets", "Kid A [Special Edition]", "Kid A"},
		{"parens", "In Rainbows (Deluxe)", "In Rainbows"},
		{"bare year", "Greatest Hits 1995", "Greatest Hits"},
		{"year formed by bracket removal", "foo 19[x]99 bar", "foo bar"},
		{"plain text untouched", "Paranoid Android", "Paranoid Android"},
		{"whitespace collapses", "  A  Moon   Shaped  Pool ", "A Moon Shaped Pool"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizeTorrentText(tt.input)
			if got != tt.want {
				t.Errorf("sanitizeTorrentText(%q) = %q, want %q", tt.input, got, tt.want)
			}
			if again := sanitizeTorrentText(got); again != got {
				t.Errorf("sanitizeTorrentText not idempotent: %q -> %q", got, again)
			}
		})
	}
}

func TestBuildTorrentQuery(t *testing.T) {
	full := music.MetadataRelease{
		Artist: "Radiohead",
		Title:  "Paranoid Android",
		Album:  "OK Computer: OKNOTOK 1997 2017",
	}

	tests := []struct {
		name     string
		release  music.MetadataRelease
		songOnly bool
		want     string
	}{
		{"album preferred", full, false, "Radiohead OK Computer"},
		{"song only", full, true, "Radiohead Paranoid Android"},
		{"title when no album", music.MetadataRelease{Artist: "Burial", Title: "Archangel"}, false, "Burial Archangel"},
		{"artist alone", music.MetadataRelease{Artist: "Burial"}, false, "Burial"},
		{"song only falls back to album", music.MetadataRelease{Artist: "Burial", Album: "Untrue"}, true, "Burial Untrue"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := buildTorrentQuery(tt.release, tt.songOnly); got != tt.want {
				t.Errorf("buildTorrentQuery() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMetadataQuery(t *testing.T) {
	tests := []struct {
		name   string
		parsed music.ParsedQuery
		want   string
	}{
		{"song and album", music.ParsedQuery{Song: "Karma Police", Album: "OK Computer"}, "Karma Police OK Computer"},
		{"song wins over artist", music.ParsedQuery{Artist: "Radiohead", Song: "Karma Police"}, "Karma Police"},
		{"album only", music.ParsedQuery{Album: "OK Computer"}, "OK Computer"},
		{"artist fallback", music.ParsedQuery{Artist: "Radiohead"}, "Radiohead"},
		{"nothing parsed", music.ParsedQuery{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := metadataQuery(tt.parsed); got != tt.want {
				t.Errorf("metadataQuery() = %q, want %q", got, tt.want)
			}
		})
	}
}

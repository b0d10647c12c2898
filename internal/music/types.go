// Package music contains the shared domain types for federated music
// search: unified sources, parsed queries, metadata releases, and
// selection results.
package music

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// SourceKind identifies where a result came from.
type SourceKind string

const (
	KindTorrent       SourceKind = "torrent"
	KindStreamYouTube SourceKind = "stream_youtube"
	KindStreamOther   SourceKind = "stream_other"
	KindLocal         SourceKind = "local"
)

// IsStream reports whether the kind refers to a streaming catalog.
func (k SourceKind) IsStream() bool {
	return k == KindStreamYouTube || k == KindStreamOther
}

// SearchType classifies what a parsed query is looking for.
type SearchType string

const (
	SearchTypeSong        SearchType = "song"
	SearchTypeAlbum       SearchType = "album"
	SearchTypeDiscography SearchType = "discography"
	SearchTypeArtist      SearchType = "artist"
	SearchTypeUnknown     SearchType = "unknown"
)

// ParsedQuery is the structured form of a raw user query. It is built
// once per request and never mutated afterwards.
type ParsedQuery struct {
	Artist     string     `json:"artist,omitempty"`
	Song       string     `json:"song,omitempty"`
	Album      string     `json:"album,omitempty"`
	Year       int        `json:"year,omitempty"`
	SearchType SearchType `json:"search_type"`
	Confidence float64    `json:"confidence"`
	Ambiguous  bool       `json:"ambiguous"`
}

// Terms returns the text an adapter should search for.
func (q ParsedQuery) Terms() string {
	parts := make([]string, 0, 3)
	if q.Artist != "" {
		parts = append(parts, q.Artist)
	}
	if q.Song != "" {
		parts = append(parts, q.Song)
	} else if q.Album != "" {
		parts = append(parts, q.Album)
	}
	return strings.Join(parts, " ")
}

// Source is a unified search result. Torrent sources carry swarm
// fields, stream sources carry codec fields; the rest stay zero.
// Once an adapter returns a Source it is treated as immutable.
type Source struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Artist       string     `json:"artist,omitempty"`
	Format       string     `json:"format,omitempty"`
	Kind         SourceKind `json:"source_type"`
	URL          string     `json:"url"`
	QualityScore float64    `json:"quality_score"`
	Indexer      string     `json:"indexer"`

	// Torrent-specific. Seeders and Leechers are nil for streams so
	// that seeder filters never drop stream results.
	MagnetLink string     `json:"magnet_link,omitempty"`
	SizeBytes  int64      `json:"size_bytes,omitempty"`
	Seeders    *int       `json:"seeders,omitempty"`
	Leechers   *int       `json:"leechers,omitempty"`
	UploadedAt *time.Time `json:"uploaded_at,omitempty"`

	// Stream-specific.
	Codec           string `json:"codec,omitempty"`
	Bitrate         string `json:"bitrate,omitempty"`
	ThumbnailURL    string `json:"thumbnail_url,omitempty"`
	DurationSeconds int    `json:"duration_seconds,omitempty"`
}

var infohashPattern = regexp.MustCompile(`xt=urn:btih:([a-fA-F0-9]+)`)

// Identity returns the dedup key for the source. Torrents use the
// lowercase infohash from the magnet URI, falling back to a SHA-1 of
// the URL for non-magnet download links. Streams use the upstream
// track identifier.
func (s *Source) Identity() string {
	if s.Kind == KindTorrent && s.URL != "" {
		if m := infohashPattern.FindStringSubmatch(s.URL); m != nil {
			return strings.ToLower(m[1])
		}
		if !strings.HasPrefix(s.URL, "magnet:") {
			sum := sha1.Sum([]byte(s.URL))
			return hex.EncodeToString(sum[:])
		}
	}
	return s.ID
}

// SizeFormatted renders the payload size for display. Sizes below
// 1 KiB are reported as unknown since trackers use 0 as a sentinel.
func (s *Source) SizeFormatted() string {
	if s.SizeBytes < 1024 {
		return "Unknown"
	}
	gb := float64(s.SizeBytes) / (1024 * 1024 * 1024)
	if gb >= 1.0 {
		return fmt.Sprintf("%.2f GB", gb)
	}
	mb := float64(s.SizeBytes) / (1024 * 1024)
	return fmt.Sprintf("%.2f MB", mb)
}

// MetadataRelease is a canonical recording returned by the metadata
// service. MBID uniquely identifies the release.
type MetadataRelease struct {
	MBID       string `json:"mbid"`
	Artist     string `json:"artist"`
	Title      string `json:"title"`
	Album      string `json:"album,omitempty"`
	Year       int    `json:"year,omitempty"`
	DurationMS int    `json:"duration_ms,omitempty"`
	Score      int    `json:"score"`
}

// GroupedRelease is one user-facing choice produced by the release
// grouper.
type GroupedRelease struct {
	Label       string          `json:"label"`
	Release     MetadataRelease `json:"metadata_release"`
	Reason      string          `json:"reason,omitempty"`
	Recommended bool            `json:"recommended"`
}

// Grouping is the full output of release grouping: the user-facing
// choices plus what kind of search they answer.
type Grouping struct {
	Releases    []GroupedRelease `json:"releases"`
	SearchType  SearchType       `json:"search_type"`
	Explanation string           `json:"explanation"`
}

// SelectionPreferences steer candidate selection. ExpectedAlbum and
// ExpectedArtist turn album matching into a hard filter.
type SelectionPreferences struct {
	Format         string `json:"format,omitempty"`
	PreferSongOnly bool   `json:"prefer_song_only,omitempty"`
	ExpectedAlbum  string `json:"expected_album,omitempty"`
	ExpectedArtist string `json:"expected_artist,omitempty"`
}

// RankedSource decorates a Source with its position in the final
// ranking plus a human explanation and display tags.
type RankedSource struct {
	Rank        int      `json:"rank"`
	Source      Source   `json:"source"`
	Explanation string   `json:"explanation"`
	Tags        []string `json:"tags"`
}

// Display tags drawn from a closed vocabulary.
const (
	TagBest     = "best"
	TagLossless = "lossless"
	TagHiRes    = "hi-res"
	TagFast     = "fast"
	TagPopular  = "popular"
	TagStream   = "stream"
)

// RatedCandidate pairs a source with the reason it was kept or
// rejected during selection.
type RatedCandidate struct {
	Source Source `json:"source"`
	Reason string `json:"reason"`
}

// Decision is the outcome of candidate selection. Selected is always
// a member of the candidate list handed to the selector; when
// FallbackUsed is set it is the quality-score argmax.
type Decision struct {
	Selected      Source           `json:"selected"`
	Reasoning     string           `json:"reasoning"`
	TopCandidates []RatedCandidate `json:"top_candidates,omitempty"`
	Rejected      []RatedCandidate `json:"rejected,omitempty"`
	FallbackUsed  bool             `json:"fallback_used"`
	AlbumMismatch bool             `json:"album_mismatch"`
}

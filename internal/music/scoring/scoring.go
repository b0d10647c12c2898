// Package scoring computes the unified 0-1000 quality score for music
// sources. The scorer is a pure function of the source fields so a
// score can be recomputed at any time with the same result.
package scoring

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/tonearm/tonearm/internal/music"
)

// MaxScore is the ceiling every total is clamped to.
const MaxScore = 1000.0

var lpPattern = regexp.MustCompile(`\bLP\b`)

// Breakdown itemizes the score components. Torrent sources populate
// the first three fields, stream sources the last three.
type Breakdown struct {
	FormatBonus  float64 `json:"format_bonus,omitempty"`
	SeederBonus  float64 `json:"seeder_bonus,omitempty"`
	SizeBonus    float64 `json:"size_bonus,omitempty"`
	CodecBonus   float64 `json:"codec_bonus,omitempty"`
	BitrateBonus float64 `json:"bitrate_bonus,omitempty"`
	SourceBonus  float64 `json:"source_bonus,omitempty"`
	Total        float64 `json:"total"`
}

// Score returns the quality score for a source, clamped to MaxScore.
func Score(src *music.Source) float64 {
	return Explain(src).Total
}

// Explain returns the score with its per-component breakdown.
func Explain(src *music.Source) Breakdown {
	var b Breakdown

	if src.Kind == music.KindTorrent {
		b.FormatBonus = torrentFormatBonus(src)
		if src.Seeders != nil {
			b.SeederBonus = capFloat(float64(*src.Seeders)*2, 100)
		}
		sizeMB := float64(src.SizeBytes) / (1024 * 1024)
		b.SizeBonus = capFloat(sizeMB/10, 50)
		b.Total = b.FormatBonus + b.SeederBonus + b.SizeBonus
	} else {
		b.CodecBonus = streamCodecBonus(src)
		b.BitrateBonus = bitrateBonus(src.Bitrate)
		b.SourceBonus = 50
		b.Total = b.CodecBonus + b.BitrateBonus + b.SourceBonus
	}

	b.Total = capFloat(b.Total, MaxScore)
	return b
}

// SortByQuality orders sources by quality score descending. Ties are
// broken by identity so the ordering never depends on input order.
func SortByQuality(sources []music.Source) {
	sort.SliceStable(sources, func(i, j int) bool {
		if sources[i].QualityScore != sources[j].QualityScore {
			return sources[i].QualityScore > sources[j].QualityScore
		}
		return sources[i].Identity() < sources[j].Identity()
	})
}

// torrentFormatBonus scores the audio format of a torrent release.
// Lossless formats dominate, hi-res masters stack on top of FLAC.
func torrentFormatBonus(src *music.Source) float64 {
	if src.Format == "" {
		return 80
	}

	format := strings.ToUpper(src.Format)
	bitrate := strings.ToUpper(src.Bitrate)
	title := strings.ToUpper(src.Title)

	switch {
	case format == "FLAC":
		bonus := 200.0
		switch {
		case strings.Contains(bitrate, "DSD") || strings.Contains(title, "DSD"):
			bonus += 100
		case containsAny(bitrate, title, "24/192", "24/176", "24/96", "24/88", "24BIT", "24-BIT", "24 BIT"):
			bonus += 60
		case containsAny(bitrate, title, "16/192", "16/96", "16/88"):
			bonus += 30
		}
		if strings.Contains(title, "VINYL") || lpPattern.MatchString(title) {
			bonus += 15
		}
		return bonus
	case format == "ALAC":
		return 190
	case strings.Contains(bitrate, "320"):
		return 150
	case strings.Contains(bitrate, "V0"):
		return 140
	case strings.Contains(bitrate, "256"):
		return 120
	}
	return 80
}

// streamCodecBonus scores the codec of a streaming source. The
// declared format wins over the raw codec string.
func streamCodecBonus(src *music.Source) float64 {
	switch strings.ToUpper(src.Format) {
	case "FLAC":
		return 200
	case "OPUS":
		return 160
	case "AAC", "M4A":
		return 140
	case "VORBIS":
		return 120
	case "MP3":
		return 100
	}

	codec := strings.ToLower(src.Codec)
	switch {
	case strings.Contains(codec, "opus"):
		return 160
	case strings.Contains(codec, "aac"):
		return 140
	case strings.Contains(codec, "vorbis"):
		return 120
	case strings.Contains(codec, "mp3"):
		return 100
	}
	return 80
}

// bitrateBonus maps a kbps figure onto 0-100 with 320 kbps as the
// reference ceiling. Unparseable bitrates land mid-range.
func bitrateBonus(bitrate string) float64 {
	if bitrate == "" {
		return 50
	}
	cleaned := strings.ToLower(bitrate)
	cleaned = strings.ReplaceAll(cleaned, "kbps", "")
	cleaned = strings.ReplaceAll(cleaned, "k", "")
	cleaned = strings.TrimSpace(cleaned)

	kbps, err := strconv.Atoi(cleaned)
	if err != nil {
		return 50
	}
	return capFloat(float64(kbps)/320*100, 100)
}

func containsAny(bitrate, title string, markers ...string) bool {
	for _, m := range markers {
		if strings.Contains(bitrate, m) || strings.Contains(title, m) {
			return true
		}
	}
	return false
}

func capFloat(v, max float64) float64 {
	if v > max {
		return max
	}
	return v
}

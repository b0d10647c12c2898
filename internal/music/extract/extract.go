// Package extract pulls music metadata out of release titles with
// case-insensitive regex matching. Every function is pure: same input,
// same output, no state.
package extract

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	formatPattern  = regexp.MustCompile(`(?i)\b(FLAC|MP3|AAC|ALAC|OGG|Opus)\b`)
	bitratePattern = regexp.MustCompile(`(?i)\b(320|256|192|V0|V2)(?:kbps)?\b`)
	sourcePattern  = regexp.MustCompile(`(?i)\b(WEB|CD|Vinyl|DVD|BD)\b`)
	sizePattern    = regexp.MustCompile(`(?i)([\d,\.]+)\s*(GB|MB|KB)`)
)

// Format returns the uppercased audio format named in the title, or
// "" when none is present.
func Format(title string) string {
	m := formatPattern.FindStringSubmatch(title)
	if m == nil {
		return ""
	}
	return strings.ToUpper(m[1])
}

// Bitrate returns the uppercased bitrate marker in the title (320,
// 256, 192, V0, V2), or "" when none is present.
func Bitrate(title string) string {
	m := bitratePattern.FindStringSubmatch(title)
	if m == nil {
		return ""
	}
	return strings.ToUpper(m[1])
}

// SourceMedium returns the rip source named in the title (WEB, CD,
// Vinyl, DVD, BD), or "" when none is present. Vinyl keeps its
// canonical casing.
func SourceMedium(title string) string {
	m := sourcePattern.FindStringSubmatch(title)
	if m == nil {
		return ""
	}
	if strings.EqualFold(m[1], "vinyl") {
		return "Vinyl"
	}
	return strings.ToUpper(m[1])
}

// ParseSize converts a human size string like "1.5 GB" or "750 MB" to
// bytes. A comma is accepted as decimal separator. Returns 0 when the
// string cannot be parsed.
func ParseSize(s string) int64 {
	m := sizePattern.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	value, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "."), 64)
	if err != nil {
		return 0
	}
	switch strings.ToUpper(m[2]) {
	case "GB":
		return int64(value * 1024 * 1024 * 1024)
	case "MB":
		return int64(value * 1024 * 1024)
	case "KB":
		return int64(value * 1024)
	}
	return 0
}

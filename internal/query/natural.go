package query

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

var (
	formatWordPattern = regexp.MustCompile(`(?i)\b(flac|mp3|aac|alac)\b`)
	yearWordPattern   = regexp.MustCompile(`(?i)\b(?:from\s+)?((?:19|20)\d{2})\b`)

	multiSpacePattern = regexp.MustCompile(`\s+`)
)

// FromNatural converts free text into a structured query using plain
// heuristics: explicit format words and years become filters, and the
// remaining words become the search term.
func FromNatural(input string) *Query {
	text := strings.TrimSpace(input)

	format := ""
	if match := formatWordPattern.FindStringSubmatch(text); match != nil {
		format = strings.ToUpper(match[1])
		text = formatWordPattern.ReplaceAllString(text, "")
	}

	year := 0
	if match := yearWordPattern.FindStringSubmatch(text); match != nil {
		year, _ = strconv.Atoi(match[1])
		text = yearWordPattern.ReplaceAllString(text, "")
	}

	text = strings.TrimSpace(multiSpacePattern.ReplaceAllString(text, " "))
	words := strings.Fields(text)

	queryType := TypeAlbum
	if len(words) <= 2 {
		queryType = TypeArtist
	}

	q := NewQuery(queryType)
	q.Artist = titleCase(strings.Join(words, " "))
	q.Year = year
	q.Format = format
	return q
}

// titleCase uppercases the first letter of each word and lowercases
// the rest.
func titleCase(s string) string {
	words := strings.Fields(s)
	for i, word := range words {
		runes := []rune(strings.ToLower(word))
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}

package query

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/tonearm/tonearm/internal/music"
)

// Advisor asks a language model to parse a query. Implementations
// return an error on upstream failure or unparseable output.
type Advisor interface {
	ParseQuery(ctx context.Context, query string) (music.ParsedQuery, error)
}

// Parser produces a ParsedQuery from free text, preferring the
// advisor when one is configured and falling back to deterministic
// heuristics otherwise.
type Parser struct {
	advisor Advisor
	logger  zerolog.Logger
}

// NewParser creates a parser. advisor may be nil.
func NewParser(advisor Advisor, logger zerolog.Logger) *Parser {
	return &Parser{
		advisor: advisor,
		logger:  logger.With().Str("component", "query-parser").Logger(),
	}
}

// Parse never fails: any advisor problem falls through to the
// heuristic tier, which always yields a usable result.
func (p *Parser) Parse(ctx context.Context, input string) music.ParsedQuery {
	if p.advisor != nil {
		parsed, err := p.advisor.ParseQuery(ctx, input)
		if err == nil && validParse(parsed) {
			p.logger.Debug().
				Str("artist", parsed.Artist).
				Str("searchType", string(parsed.SearchType)).
				Float64("confidence", parsed.Confidence).
				Msg("Advisor parsed query")
			return parsed
		}
		if err != nil {
			p.logger.Warn().Err(err).Msg("Advisor parse failed, using heuristics")
		} else {
			p.logger.Warn().Msg("Advisor parse invalid, using heuristics")
		}
	}

	return Fallback(input)
}

// validParse checks an advisor response against the parsed query
// schema.
func validParse(parsed music.ParsedQuery) bool {
	switch parsed.SearchType {
	case music.SearchTypeSong, music.SearchTypeAlbum, music.SearchTypeDiscography,
		music.SearchTypeArtist, music.SearchTypeUnknown:
	default:
		return false
	}
	if parsed.Confidence < 0 || parsed.Confidence > 1 {
		return false
	}
	return parsed.Artist != "" || parsed.Song != "" || parsed.Album != ""
}

var querySeparators = []string{" - ", " / ", " | "}

// Fallback parses a query with deterministic heuristics. Explicit
// separators beat word-count guessing.
func Fallback(input string) music.ParsedQuery {
	input = strings.TrimSpace(input)

	for _, sep := range querySeparators {
		if !strings.Contains(input, sep) {
			continue
		}
		parts := strings.SplitN(input, sep, 2)
		return music.ParsedQuery{
			Artist:     strings.TrimSpace(parts[0]),
			Album:      strings.TrimSpace(parts[1]),
			SearchType: music.SearchTypeAlbum,
			Confidence: 0.8,
		}
	}

	words := strings.Fields(input)

	if len(words) <= 2 {
		return music.ParsedQuery{
			Artist:     strings.Join(words, " "),
			SearchType: music.SearchTypeArtist,
			Confidence: 0.5,
		}
	}

	if len(words) <= 4 {
		return music.ParsedQuery{
			Artist:     words[0],
			Album:      strings.Join(words[1:], " "),
			SearchType: music.SearchTypeAlbum,
			Confidence: 0.6,
		}
	}

	// Five or more words: a capitalized second word suggests a
	// two-word artist like "Pink Floyd".
	artist, album := words[0], strings.Join(words[1:], " ")
	if startsUpper(words[1]) {
		artist = strings.Join(words[:2], " ")
		album = strings.Join(words[2:], " ")
	}

	return music.ParsedQuery{
		Artist:     artist,
		Album:      album,
		SearchType: music.SearchTypeAlbum,
		Confidence: 0.6,
	}
}

func startsUpper(word string) bool {
	r, _ := utf8.DecodeRuneInString(word)
	return unicode.IsUpper(r)
}

// Package grouper condenses raw catalog releases into a short list of
// labeled choices a user can pick from. The advisor produces the
// curated grouping; when it is absent or fails, a deterministic
// fallback takes over so the workflow never stalls on the advisor
// tier.
package grouper

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tonearm/tonearm/internal/music"
)

// DefaultMaxGroups bounds the choices offered when the caller does not
// say otherwise.
const DefaultMaxGroups = 5

// Advisor curates a grouping from raw releases. advisor.Client
// satisfies this.
type Advisor interface {
	GroupReleases(ctx context.Context, releases []music.MetadataRelease, parsed music.ParsedQuery, maxGroups int) (music.Grouping, error)
}

// Grouper picks the advisor path when one is configured and falls back
// to a fixed top-five grouping otherwise.
type Grouper struct {
	advisor Advisor
	logger  zerolog.Logger
}

// New builds a Grouper. advisor may be nil, in which case every call
// takes the fallback path.
func New(advisor Advisor, logger zerolog.Logger) *Grouper {
	return &Grouper{
		advisor: advisor,
		logger:  logger.With().Str("component", "grouper").Logger(),
	}
}

// Group returns at most maxGroups labeled releases. It never fails:
// advisor errors degrade to the deterministic fallback, and empty
// input yields an empty grouping with an explanation.
func (g *Grouper) Group(ctx context.Context, releases []music.MetadataRelease, parsed music.ParsedQuery, maxGroups int) music.Grouping {
	if len(releases) == 0 {
		return music.Grouping{
			Releases:    []music.GroupedRelease{},
			SearchType:  music.SearchTypeUnknown,
			Explanation: "No results found in MusicBrainz",
		}
	}
	if maxGroups <= 0 {
		maxGroups = DefaultMaxGroups
	}

	if g.advisor != nil {
		grouping, err := g.advisor.GroupReleases(ctx, releases, parsed, maxGroups)
		if err == nil {
			return grouping
		}
		g.logger.Warn().Err(err).Msg("Advisor grouping failed, using fallback")
	}

	return fallbackGrouping(releases, parsed)
}

// fallbackGrouping takes the first five releases as-is. Labels prefer
// the album when the catalog knows one.
func fallbackGrouping(releases []music.MetadataRelease, parsed music.ParsedQuery) music.Grouping {
	top := releases
	if len(top) > DefaultMaxGroups {
		top = top[:DefaultMaxGroups]
	}

	grouped := make([]music.GroupedRelease, 0, len(top))
	for i, rel := range top {
		label := fmt.Sprintf("%s - %s", rel.Artist, rel.Title)
		if rel.Album != "" {
			label = fmt.Sprintf("%s - %s", rel.Artist, rel.Album)
		}
		grouped = append(grouped, music.GroupedRelease{
			Label:       label,
			Release:     rel,
			Reason:      "MusicBrainz result",
			Recommended: i == 0,
		})
	}

	searchType := parsed.SearchType
	if searchType == "" {
		searchType = music.SearchTypeUnknown
	}

	return music.Grouping{
		Releases:    grouped,
		SearchType:  searchType,
		Explanation: fmt.Sprintf("Found %d results", len(releases)),
	}
}

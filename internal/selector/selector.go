// Package selector picks the single best source out of a candidate
// list. The advisor ranks candidates when configured; every advisor
// defect degrades to the deterministic quality-score fallback, so a
// non-empty candidate list always yields a decision.
package selector

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/tonearm/tonearm/internal/advisor"
	"github.com/tonearm/tonearm/internal/music"
)

// ErrNoCandidates is returned when Select is called with an empty
// candidate list. That is a caller error, not a search miss.
var ErrNoCandidates = errors.New("no candidates to select from")

// Advisor ranks candidates. advisor.Client satisfies this.
type Advisor interface {
	SelectCandidate(ctx context.Context, query string, candidates []music.Source, prefs music.SelectionPreferences) (music.Decision, error)
}

// Selector wraps the advisor tier with the quality-score fallback.
type Selector struct {
	advisor Advisor
	logger  zerolog.Logger
}

// New builds a Selector. advisor may be nil, in which case every call
// takes the fallback path.
func New(advisor Advisor, logger zerolog.Logger) *Selector {
	return &Selector{
		advisor: advisor,
		logger:  logger.With().Str("component", "selector").Logger(),
	}
}

// Select returns a decision for a non-empty candidate list. The
// advisor's album-mismatch signal is preserved on the fallback
// decision so callers can move on to another album.
func (s *Selector) Select(ctx context.Context, query string, candidates []music.Source, prefs music.SelectionPreferences) (music.Decision, error) {
	if len(candidates) == 0 {
		return music.Decision{}, ErrNoCandidates
	}

	if s.advisor == nil {
		return fallbackDecision(candidates, "Quality score fallback", false), nil
	}

	decision, err := s.advisor.SelectCandidate(ctx, query, candidates, prefs)
	if err == nil {
		return decision, nil
	}

	if errors.Is(err, advisor.ErrAlbumMismatch) {
		s.logger.Info().Str("album", prefs.ExpectedAlbum).Msg("Advisor found no album match")
		return fallbackDecision(candidates, "No candidates match the expected album, selected highest quality score", true), nil
	}

	s.logger.Warn().Err(err).Msg("Advisor selection failed, using quality score")
	return fallbackDecision(candidates, "Advisor error, selected highest quality score", false), nil
}

// fallbackDecision selects the highest quality score. Ties keep the
// earliest candidate so repeated runs pick the same source.
func fallbackDecision(candidates []music.Source, reason string, albumMismatch bool) music.Decision {
	best := 0
	for i, c := range candidates {
		if c.QualityScore > candidates[best].QualityScore {
			best = i
		}
	}

	return music.Decision{
		Selected:  candidates[best],
		Reasoning: reason,
		TopCandidates: []music.RatedCandidate{
			{Source: candidates[best], Reason: "Highest quality score"},
		},
		FallbackUsed:  true,
		AlbumMismatch: albumMismatch,
	}
}

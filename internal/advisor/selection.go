package advisor

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/tonearm/tonearm/internal/music"
)

// ErrAlbumMismatch reports that the model rejected every candidate
// because none matched the album the user picked. Selectors map it to
// a fallback decision with AlbumMismatch set.
var ErrAlbumMismatch = errors.New("no candidate matches the expected album")

type selectionPayload struct {
	SelectedIndex  *int               `json:"selected_index"`
	Reasoning      string             `json:"reasoning"`
	Top3           []selectionComment `json:"top_3"`
	RejectedSample []selectionComment `json:"rejected_sample"`
}

type selectionComment struct {
	Index  *int   `json:"index"`
	Reason string `json:"reason"`
}

// SelectCandidate asks the model to pick the best source from the
// numbered candidate list. The returned Decision always references a
// member of candidates; any malformed or out-of-range answer is an
// error.
func (c *Client) SelectCandidate(ctx context.Context, query string, candidates []music.Source, prefs music.SelectionPreferences) (music.Decision, error) {
	if len(candidates) == 0 {
		return music.Decision{}, errors.New("no candidates to analyze")
	}

	prompt := buildSelectionPrompt(query, formatCandidates(candidates), prefs)

	content, err := c.complete(ctx, prompt)
	if err != nil {
		return music.Decision{}, err
	}

	var payload selectionPayload
	if err := extractJSON(content, &payload); err != nil {
		return music.Decision{}, err
	}
	if payload.SelectedIndex == nil {
		return music.Decision{}, errors.New("missing selected_index in response")
	}

	idx := *payload.SelectedIndex
	if idx == -1 {
		return music.Decision{}, ErrAlbumMismatch
	}
	if idx < 0 || idx >= len(candidates) {
		return music.Decision{}, fmt.Errorf("selected_index %d out of range [0,%d)", idx, len(candidates))
	}

	reasoning := payload.Reasoning
	if reasoning == "" {
		reasoning = "No reasoning provided"
	}

	decision := music.Decision{
		Selected:      candidates[idx],
		Reasoning:     reasoning,
		TopCandidates: ratedCandidates(payload.Top3, candidates, 3),
		Rejected:      ratedCandidates(payload.RejectedSample, candidates, 5),
	}

	c.logger.Info().
		Int("selectedIndex", idx).
		Str("title", decision.Selected.Title).
		Float64("qualityScore", decision.Selected.QualityScore).
		Msg("Candidate selected")

	return decision, nil
}

// ratedCandidates maps index comments onto sources, dropping entries
// whose index is missing or out of range.
func ratedCandidates(comments []selectionComment, candidates []music.Source, max int) []music.RatedCandidate {
	var rated []music.RatedCandidate
	for _, comment := range comments {
		if len(rated) == max {
			break
		}
		if comment.Index == nil {
			continue
		}
		idx := *comment.Index
		if idx < 0 || idx >= len(candidates) {
			continue
		}
		rated = append(rated, music.RatedCandidate{Source: candidates[idx], Reason: comment.Reason})
	}
	return rated
}

// formatCandidates renders sources as a numbered block for the model.
func formatCandidates(candidates []music.Source) string {
	var b strings.Builder
	for i, src := range candidates {
		format := src.Format
		if format == "" {
			format = "Unknown"
		}
		bitrate := src.Bitrate
		if bitrate == "" {
			bitrate = "Unknown"
		}
		seeders := "n/a"
		if src.Seeders != nil {
			seeders = strconv.Itoa(*src.Seeders)
		}
		fmt.Fprintf(&b, "[%d] %s\n", i, src.Title)
		fmt.Fprintf(&b, "    Format: %s\n", format)
		fmt.Fprintf(&b, "    Bitrate: %s\n", bitrate)
		fmt.Fprintf(&b, "    Size: %s\n", src.SizeFormatted())
		fmt.Fprintf(&b, "    Seeders: %s\n", seeders)
		fmt.Fprintf(&b, "    Source: %s\n", src.Indexer)
		fmt.Fprintf(&b, "    Quality Score: %.1f\n\n", src.QualityScore)
	}
	return b.String()
}

func buildSelectionPrompt(query, candidatesText string, prefs music.SelectionPreferences) string {
	var prefLines strings.Builder
	if prefs.Format != "" {
		fmt.Fprintf(&prefLines, "\n- MUST match format: %s", prefs.Format)
	}
	if prefs.PreferSongOnly {
		prefLines.WriteString("\n- IMPORTANT: User wants single-track/song-only releases, NOT full albums")
		prefLines.WriteString("\n  Prioritize: smaller size, single file, 'single' in title")
		prefLines.WriteString("\n  Avoid: large albums, multiple discs, compilations")
	}

	completeness := "Proper album releases > compilations"
	if prefs.PreferSongOnly {
		completeness = "Single tracks/songs > Albums"
	}

	var albumBlock string
	switch {
	case prefs.ExpectedAlbum != "" && prefs.ExpectedArtist != "":
		albumBlock = fmt.Sprintf(`
CRITICAL FILTER - ALBUM VERIFICATION (MANDATORY):
   User specifically selected: %q by %s

   FILTERING RULES:
   - ONLY consider candidates that contain the album name %q in their title
   - IMMEDIATELY REJECT any candidate from a different album
   - If unsure whether a candidate matches, REJECT it

   AFTER filtering to the correct album only, rank by:
   -> Audio quality (24-bit > 16-bit, etc.) - HIGHEST PRIORITY
   -> Seeders
   -> Size

   If NO candidates match %q, return {"selected_index": -1} and state
   this clearly in the reasoning.

`, prefs.ExpectedAlbum, prefs.ExpectedArtist, prefs.ExpectedAlbum, prefs.ExpectedAlbum)
	case prefs.ExpectedAlbum != "":
		albumBlock = fmt.Sprintf(`
ALBUM FILTER:
   User is looking for album: %q
   ONLY select candidates matching this album name.

`, prefs.ExpectedAlbum)
	}

	return fmt.Sprintf(`You are an audiophile music expert analyzing sources for the BEST audio quality.

Search query: %q
%s
Available sources:
%s
Selection criteria (STRICT priority order):
1. Album verification (if specified above) - MANDATORY FILTER (not a ranking factor)
2. Audio quality (HIGHEST PRIORITY for ranking):
   - DSD/SACD (highest) > 24-bit FLAC (192/176/96/88 kHz) > 16-bit FLAC > 320kbps MP3 > V0 > lower
   - Hi-res markers: look for [24/96], [24/192], [24-bit], DSD, SACD in titles
   - Vinyl/LP rips often have superior mastering quality
3. Seeders: more seeders = better availability
4. Completeness: %s
5. Source quality: known release groups preferred%s

CRITICAL RULES:
- If an album filter is specified, it acts as a FILTER (exclude wrong albums), NOT a ranking factor
- AFTER filtering, select the HIGHEST QUALITY source from the remaining candidates
- REJECT sources that do not match the artist/genre
- Hi-res audio (24-bit, DSD) should ALWAYS win over standard FLAC among filtered results

Respond in JSON format:
{
  "selected_index": <number>,
  "reasoning": "<why this source is best - include album verification if applicable>",
  "top_3": [
    {"index": <num>, "reason": "<why it's good>"},
    ...
  ],
  "rejected_sample": [
    {"index": <num>, "reason": "<why rejected - e.g., wrong album>"},
    ...
  ]
}

Select the BEST source for this query.`, query, albumBlock, candidatesText, completeness, prefLines.String())
}

package advisor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tonearm/tonearm/internal/music"
)

// No more than this many releases are shown to the model, and no more
// than this many groups are accepted back.
const (
	maxReleasesShown  = 20
	maxGroupsAccepted = 10
	defaultGroupLabel = "Unknown"
)

type groupingPayload struct {
	SearchType  string         `json:"search_type"`
	Explanation string         `json:"explanation"`
	Groups      []groupComment `json:"groups"`
}

type groupComment struct {
	Index       *int   `json:"index"`
	Label       string `json:"label"`
	Reason      string `json:"reason"`
	Recommended bool   `json:"recommended"`
}

// GroupReleases asks the model to collapse raw metadata hits into a
// short list of user-facing choices. An answer without a single valid
// group is an error so the caller can fall back deterministically.
func (c *Client) GroupReleases(ctx context.Context, releases []music.MetadataRelease, parsed music.ParsedQuery, maxGroups int) (music.Grouping, error) {
	if len(releases) == 0 {
		return music.Grouping{}, errors.New("no releases to group")
	}

	prompt := buildGroupingPrompt(formatReleases(releases), parsed, maxGroups)

	content, err := c.complete(ctx, prompt)
	if err != nil {
		return music.Grouping{}, err
	}

	var payload groupingPayload
	if err := extractJSON(content, &payload); err != nil {
		return music.Grouping{}, err
	}

	var grouped []music.GroupedRelease
	for _, group := range payload.Groups {
		if len(grouped) == maxGroupsAccepted {
			break
		}
		if group.Index == nil || *group.Index < 0 || *group.Index >= len(releases) {
			continue
		}
		label := group.Label
		if label == "" {
			label = defaultGroupLabel
		}
		grouped = append(grouped, music.GroupedRelease{
			Label:       label,
			Release:     releases[*group.Index],
			Reason:      group.Reason,
			Recommended: group.Recommended,
		})
	}
	if len(grouped) == 0 {
		return music.Grouping{}, errors.New("no valid groups in response")
	}

	c.logger.Debug().
		Int("releases", len(releases)).
		Int("groups", len(grouped)).
		Str("searchType", payload.SearchType).
		Msg("Releases grouped")

	return music.Grouping{
		Releases:    grouped,
		SearchType:  normalizeSearchType(payload.SearchType),
		Explanation: payload.Explanation,
	}, nil
}

// formatReleases renders metadata hits as a numbered block, capped so
// huge result sets do not blow up the prompt.
func formatReleases(releases []music.MetadataRelease) string {
	var b strings.Builder
	for i, rel := range releases {
		if i == maxReleasesShown {
			break
		}
		fmt.Fprintf(&b, "[%d] %s - %s\n", i, rel.Artist, rel.Title)
		if rel.Album != "" {
			fmt.Fprintf(&b, "    Album: %s\n", rel.Album)
		}
		fmt.Fprintf(&b, "    MBID: %s\n\n", rel.MBID)
	}
	return b.String()
}

func buildGroupingPrompt(releasesText string, parsed music.ParsedQuery, maxGroups int) string {
	return fmt.Sprintf(`You are a music library expert. Group and filter these catalog results for user selection.

User's query intent:
  Artist: %s
  Song: %s
  Album: %s
  Search type: %s

Catalog results:
%s
Task:
1. If the query is a SONG and multiple albums contain it:
   - Group by album/release
   - Prioritize: Deluxe > Original > Compilation > Live
   - Recommend the most complete version

2. If the query is an ALBUM and multiple editions exist:
   - Show different editions (Deluxe, Remaster, Original)
   - Recommend based on completeness and quality

3. If the query is ARTIST ONLY:
   - Group into: Popular Albums, Discography, Greatest Hits
   - Recommend the most popular album or complete discography

4. If AMBIGUOUS (multiple artists with the same song):
   - Group by artist
   - Show the top 3-5 artists

Return JSON (max %d groups):
{
  "search_type": "song|album|discography|artist",
  "explanation": "<what you found>",
  "groups": [
    {
      "index": <number from the catalog results>,
      "label": "<display label>",
      "reason": "<why this is good>",
      "recommended": <true|false>
    },
    ...
  ]
}

Be concise. The user wants to listen to music, not read essays.`,
		orUnknown(parsed.Artist), orUnknown(parsed.Song), orUnknown(parsed.Album),
		parsed.SearchType, releasesText, maxGroups)
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

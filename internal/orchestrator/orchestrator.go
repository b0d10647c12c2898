// Package orchestrator drives the two search entry points: the
// multi-round interactive workflow (parse, catalog lookup, grouping,
// availability prefilter, user selection, precise search, candidate
// selection) and the plain request/response pipeline the transports
// serve.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/tonearm/tonearm/internal/engine"
	"github.com/tonearm/tonearm/internal/music"
)

// Code classifies how a workflow run ended.
type Code string

const (
	CodeOK                  Code = "OK"
	CodeUnknownQuery        Code = "UNKNOWN_QUERY"
	CodeMetadataUnavailable Code = "METADATA_UNAVAILABLE"
	CodeNoCandidates        Code = "NO_CANDIDATES"
	CodeNoResults           Code = "NO_RESULTS"
	CodeAdvisorUnavailable  Code = "ADVISOR_UNAVAILABLE"
)

// ErrEmptyQuery is returned when the search query is blank.
var ErrEmptyQuery = errors.New("empty search query")

// ProgressFunc receives advisory progress updates. It must not block;
// progress never gates control flow.
type ProgressFunc func(percent int, message string)

// Strategy is how a song-type query gets searched once the user has
// picked a release.
type Strategy string

const (
	StrategySingleOnly    Strategy = "single-only"
	StrategySingleOrAlbum Strategy = "single-or-album"
	StrategyOtherAlbums   Strategy = "other-albums"
	StrategyAuto          Strategy = "auto"
)

// Selection is the caller's answer to the offered release choices.
type Selection struct {
	Index    int
	Strategy Strategy
}

// SelectFunc hands the grouped releases to the caller and waits for a
// choice. songQuery tells the caller whether strategy choices apply.
type SelectFunc func(ctx context.Context, grouping music.Grouping, songQuery bool) (Selection, error)

// DefaultSelect picks the recommended release (or the first one) and
// the auto strategy.
func DefaultSelect(ctx context.Context, grouping music.Grouping, songQuery bool) (Selection, error) {
	for i, rel := range grouping.Releases {
		if rel.Recommended {
			return Selection{Index: i, Strategy: StrategyAuto}, nil
		}
	}
	return Selection{Index: 0, Strategy: StrategyAuto}, nil
}

// Searcher is the federated engine surface the workflow drives.
type Searcher interface {
	Search(ctx context.Context, query string, opts engine.Options) *engine.Result
}

// Parser produces a structured query from free text.
type Parser interface {
	Parse(ctx context.Context, input string) music.ParsedQuery
}

// Metadata looks up canonical recordings.
type Metadata interface {
	SearchRecordings(ctx context.Context, query, artist string, limit int) ([]music.MetadataRelease, error)
}

// Grouper condenses catalog releases into user-facing choices.
type Grouper interface {
	Group(ctx context.Context, releases []music.MetadataRelease, parsed music.ParsedQuery, maxGroups int) music.Grouping
}

// Selector picks the best source from a candidate list.
type Selector interface {
	Select(ctx context.Context, query string, candidates []music.Source, prefs music.SelectionPreferences) (music.Decision, error)
}

// Optimizer rewrites a query before the direct fallback search.
// Optional; the original query is used when it is absent or fails.
type Optimizer interface {
	OptimizeQuery(ctx context.Context, original, hint string) (string, error)
}

const (
	// DefaultMinSeeders is the interactive workflow's seeder floor.
	DefaultMinSeeders = 5

	metadataLimit = 20
	maxGroups     = 5

	// songOnlyMaxBytes bounds what the auto strategy treats as a
	// lone track; larger payloads are almost always full albums.
	songOnlyMaxBytes = 100 * 1024 * 1024
	// singleLikelyMaxBytes is the looser bound used by the
	// single-only strategy.
	singleLikelyMaxBytes = 150 * 1024 * 1024
)

// Request parameterizes one interactive search.
type Request struct {
	Query        string
	FormatFilter string
	MinSeeders   int
	// Strict disables the any-format retry when a format-filtered
	// search returns nothing.
	Strict   bool
	Progress ProgressFunc
	Select   SelectFunc
}

// Outcome is the terminal state of one workflow run. Sources holds
// the candidate list the decision was made over.
type Outcome struct {
	Code      Code                   `json:"code"`
	Query     string                 `json:"query"`
	QueryUsed string                 `json:"query_used"`
	Parsed    music.ParsedQuery      `json:"parsed_query"`
	Grouping  *music.Grouping        `json:"grouping,omitempty"`
	Release   *music.MetadataRelease `json:"release,omitempty"`
	Strategy  Strategy               `json:"strategy,omitempty"`
	Sources   []music.Source         `json:"sources"`
	Decision  *music.Decision        `json:"decision,omitempty"`
}

// Deps wires the services the orchestrator drives.
type Deps struct {
	Parser    Parser
	Metadata  Metadata
	Grouper   Grouper
	Selector  Selector
	Engine    Searcher
	Optimizer Optimizer
	// AdvisorEnabled distinguishes a degraded advisor from plain
	// deterministic mode when reporting the outcome code.
	AdvisorEnabled bool
	Logger         zerolog.Logger
}

// Orchestrator runs the interactive workflow.
type Orchestrator struct {
	parser         Parser
	metadata       Metadata
	grouper        Grouper
	selector       Selector
	engine         Searcher
	optimizer      Optimizer
	advisorEnabled bool
	logger         zerolog.Logger
}

// New builds an Orchestrator from its service dependencies.
func New(deps Deps) *Orchestrator {
	return &Orchestrator{
		parser:         deps.Parser,
		metadata:       deps.Metadata,
		grouper:        deps.Grouper,
		selector:       deps.Selector,
		engine:         deps.Engine,
		optimizer:      deps.Optimizer,
		advisorEnabled: deps.AdvisorEnabled,
		logger:         deps.Logger.With().Str("component", "orchestrator").Logger(),
	}
}

// Search runs the full workflow. It returns an error only for caller
// mistakes (blank query, aborted or invalid selection); everything
// else degrades through the fallback states and lands in the outcome
// code.
func (o *Orchestrator) Search(ctx context.Context, req Request) (*Outcome, error) {
	raw := strings.TrimSpace(req.Query)
	if raw == "" {
		return &Outcome{Code: CodeUnknownQuery, Query: req.Query}, ErrEmptyQuery
	}
	if req.MinSeeders <= 0 {
		req.MinSeeders = DefaultMinSeeders
	}
	if req.Progress == nil {
		req.Progress = func(int, string) {}
	}
	if req.Select == nil {
		req.Select = DefaultSelect
	}

	outcome := &Outcome{Code: CodeOK, Query: raw, QueryUsed: raw}

	req.Progress(10, "Understanding your request...")
	parsed := o.parser.Parse(ctx, raw)
	outcome.Parsed = parsed

	req.Progress(20, "Looking up music metadata...")
	mbQuery := metadataQuery(parsed)
	if mbQuery == "" {
		return o.fallbackDirect(ctx, req, outcome, CodeNoResults)
	}
	releases, err := o.metadata.SearchRecordings(ctx, mbQuery, parsed.Artist, metadataLimit)
	if err != nil {
		o.logger.Warn().Err(err).Str("query", mbQuery).Msg("Metadata lookup failed, searching directly")
		return o.fallbackDirect(ctx, req, outcome, CodeMetadataUnavailable)
	}
	if len(releases) == 0 {
		return o.fallbackDirect(ctx, req, outcome, CodeNoResults)
	}

	req.Progress(30, "Grouping releases...")
	grouping := o.grouper.Group(ctx, releases, parsed, maxGroups)

	surviving := o.prefilter(ctx, req, grouping)
	if len(surviving.Releases) == 0 {
		return o.fallbackArtist(ctx, req, outcome)
	}
	outcome.Grouping = &surviving

	songQuery := parsed.SearchType == music.SearchTypeSong && parsed.Song != ""
	selection, err := req.Select(ctx, surviving, songQuery)
	if err != nil {
		return nil, fmt.Errorf("release selection: %w", err)
	}
	if selection.Index < 0 || selection.Index >= len(surviving.Releases) {
		return nil, fmt.Errorf("release selection index %d out of range", selection.Index)
	}
	chosen := surviving.Releases[selection.Index].Release
	outcome.Release = &chosen

	if songQuery {
		strategy := selection.Strategy
		if strategy == "" {
			strategy = StrategyAuto
		}
		outcome.Strategy = strategy
		return o.searchSong(ctx, req, outcome, parsed, chosen, strategy)
	}
	return o.searchRelease(ctx, req, outcome, chosen)
}

// prefilter drops grouped releases with no torrents at the user's
// seeder floor. The format filter stays off so availability reflects
// the release, not the user's format taste. Searches run one at a
// time so the per-candidate progress events stay ordered.
func (o *Orchestrator) prefilter(ctx context.Context, req Request, grouping music.Grouping) music.Grouping {
	total := len(grouping.Releases)
	kept := make([]music.GroupedRelease, 0, total)
	for i, grp := range grouping.Releases {
		req.Progress(30+30*(i+1)/total, fmt.Sprintf("Checking availability %d/%d: %s", i+1, total, grp.Label))
		q := buildTorrentQuery(grp.Release, false)
		result := o.engine.Search(ctx, q, engine.Options{MinSeeders: req.MinSeeders})
		if len(result.Sources) > 0 {
			kept = append(kept, grp)
		} else {
			o.logger.Debug().Str("release", grp.Label).Msg("No torrents for release, dropping")
		}
	}
	out := grouping
	out.Releases = kept
	return out
}

// searchRelease is the plain album/artist path after selection.
func (o *Orchestrator) searchRelease(ctx context.Context, req Request, outcome *Outcome, release music.MetadataRelease) (*Outcome, error) {
	q := buildTorrentQuery(release, false)
	outcome.QueryUsed = q
	req.Progress(70, fmt.Sprintf("Searching for %s...", q))

	sources := o.engineSearch(ctx, req, q)
	if len(sources) == 0 {
		return o.finishEmpty(req, outcome, CodeNoResults), nil
	}

	prefs := music.SelectionPreferences{
		Format:         normalizedFormat(req.FormatFilter),
		ExpectedAlbum:  release.Album,
		ExpectedArtist: release.Artist,
	}
	return o.decide(ctx, req, outcome, q, sources, prefs)
}

// searchSong dispatches on the user's strategy.
func (o *Orchestrator) searchSong(ctx context.Context, req Request, outcome *Outcome, parsed music.ParsedQuery, release music.MetadataRelease, strategy Strategy) (*Outcome, error) {
	switch strategy {
	case StrategySingleOnly:
		return o.searchSingle(ctx, req, outcome, release, true)
	case StrategySingleOrAlbum:
		return o.searchSingle(ctx, req, outcome, release, false)
	case StrategyOtherAlbums:
		return o.searchOtherAlbums(ctx, req, outcome, parsed, release)
	default:
		return o.searchAuto(ctx, req, outcome, parsed, release)
	}
}

// searchSingle searches for the song itself. With onlySingles the
// candidates are cut to likely lone tracks first; if nothing looks
// like a single the full list stays so the user still gets an answer.
func (o *Orchestrator) searchSingle(ctx context.Context, req Request, outcome *Outcome, release music.MetadataRelease, onlySingles bool) (*Outcome, error) {
	q := buildTorrentQuery(release, true)
	outcome.QueryUsed = q
	req.Progress(70, fmt.Sprintf("Searching for %s...", q))

	sources := o.engineSearch(ctx, req, q)
	if onlySingles {
		if singles := filterLikelySingles(sources); len(singles) > 0 {
			sources = singles
		}
	}
	if len(sources) == 0 {
		return o.finishEmpty(req, outcome, CodeNoResults), nil
	}

	prefs := music.SelectionPreferences{
		Format:         normalizedFormat(req.FormatFilter),
		PreferSongOnly: true,
		ExpectedArtist: release.Artist,
	}
	return o.decide(ctx, req, outcome, q, sources, prefs)
}

// searchAuto runs the three song sub-attempts in order, stopping at
// the first one that yields a decision.
func (o *Orchestrator) searchAuto(ctx context.Context, req Request, outcome *Outcome, parsed music.ParsedQuery, release music.MetadataRelease) (*Outcome, error) {
	// Attempt A: small song-only torrents from a song search. A
	// mismatch answer means the song results belong to other
	// albums, so the album search takes over.
	qa := buildTorrentQuery(release, true)
	req.Progress(70, fmt.Sprintf("Trying single track search: %s", qa))
	small := filterSongOnly(o.engineSearch(ctx, req, qa))
	if len(small) > 0 {
		prefs := music.SelectionPreferences{
			Format:         normalizedFormat(req.FormatFilter),
			PreferSongOnly: true,
			ExpectedAlbum:  release.Album,
			ExpectedArtist: release.Artist,
		}
		decision, err := o.selector.Select(ctx, qa, small, prefs)
		if err == nil && !decision.AlbumMismatch {
			outcome.QueryUsed = qa
			outcome.Sources = small
			outcome.Decision = &decision
			outcome.Code = o.completionCode(decision)
			req.Progress(100, "Complete!")
			return outcome, nil
		}
		o.logger.Debug().Str("query", qa).Msg("Single track results missed the expected album, trying album search")
	}

	// Attempt B: the selected album itself.
	qb := buildTorrentQuery(release, false)
	req.Progress(78, fmt.Sprintf("Trying album search: %s", qb))
	if sources := o.engineSearch(ctx, req, qb); len(sources) > 0 {
		outcome.QueryUsed = qb
		prefs := music.SelectionPreferences{
			Format:         normalizedFormat(req.FormatFilter),
			ExpectedAlbum:  release.Album,
			ExpectedArtist: release.Artist,
		}
		return o.decide(ctx, req, outcome, qb, sources, prefs)
	}

	// Attempt C: other albums containing the song.
	return o.searchOtherAlbums(ctx, req, outcome, parsed, release)
}

// searchOtherAlbums enumerates the other albums that contain the
// song, searches each, and keeps the album with the healthiest swarm.
func (o *Orchestrator) searchOtherAlbums(ctx context.Context, req Request, outcome *Outcome, parsed music.ParsedQuery, release music.MetadataRelease) (*Outcome, error) {
	req.Progress(82, "Checking other albums...")

	song := parsed.Song
	if song == "" {
		song = release.Title
	}
	recordings, err := o.metadata.SearchRecordings(ctx, song, release.Artist, metadataLimit)
	if err != nil {
		o.logger.Warn().Err(err).Msg("Other-album lookup failed")
		return o.finishEmpty(req, outcome, CodeNoResults), nil
	}

	albums := otherAlbums(recordings, release.Album)
	if len(albums) == 0 {
		return o.finishEmpty(req, outcome, CodeNoResults), nil
	}

	bestIdx := -1
	bestSeeders := -1
	var bestQuery string
	var bestSources []music.Source
	for i, album := range albums {
		req.Progress(82+8*(i+1)/len(albums), fmt.Sprintf("Searching album: %s", album))
		alt := release
		alt.Album = album
		q := buildTorrentQuery(alt, false)
		sources := o.engineSearch(ctx, req, q)
		if len(sources) == 0 {
			continue
		}
		if seeders := totalSeeders(sources); seeders > bestSeeders {
			bestIdx, bestSeeders = i, seeders
			bestQuery, bestSources = q, sources
		}
	}
	if bestIdx < 0 {
		return o.finishEmpty(req, outcome, CodeNoResults), nil
	}

	outcome.QueryUsed = bestQuery
	prefs := music.SelectionPreferences{
		Format:         normalizedFormat(req.FormatFilter),
		ExpectedAlbum:  albums[bestIdx],
		ExpectedArtist: release.Artist,
	}
	return o.decide(ctx, req, outcome, bestQuery, bestSources, prefs)
}

// fallbackArtist runs a generic artist search when no grouped release
// has any torrents.
func (o *Orchestrator) fallbackArtist(ctx context.Context, req Request, outcome *Outcome) (*Outcome, error) {
	artist := outcome.Parsed.Artist
	if artist == "" {
		return o.fallbackDirect(ctx, req, outcome, CodeNoCandidates)
	}

	req.Progress(70, fmt.Sprintf("No tracked releases, searching %s...", artist))
	outcome.QueryUsed = artist
	sources := o.engineSearch(ctx, req, artist)
	if len(sources) == 0 {
		return o.finishEmpty(req, outcome, CodeNoCandidates), nil
	}

	prefs := music.SelectionPreferences{Format: normalizedFormat(req.FormatFilter)}
	return o.decide(ctx, req, outcome, artist, sources, prefs)
}

// fallbackDirect searches the raw query when the catalog cannot help,
// letting the advisor clean the query up first when one is wired.
// emptyCode records why the workflow got here if nothing turns up.
func (o *Orchestrator) fallbackDirect(ctx context.Context, req Request, outcome *Outcome, emptyCode Code) (*Outcome, error) {
	q := o.optimizeQuery(ctx, outcome.Query)
	req.Progress(70, fmt.Sprintf("Searching for %s...", q))
	outcome.QueryUsed = q
	sources := o.engineSearch(ctx, req, q)
	if len(sources) == 0 {
		return o.finishEmpty(req, outcome, emptyCode), nil
	}

	prefs := music.SelectionPreferences{Format: normalizedFormat(req.FormatFilter)}
	return o.decide(ctx, req, outcome, q, sources, prefs)
}

// optimizeQuery asks the advisor for a cleaner fallback query. Any
// failure keeps the original text.
func (o *Orchestrator) optimizeQuery(ctx context.Context, original string) string {
	if o.optimizer == nil {
		return original
	}
	optimized, err := o.optimizer.OptimizeQuery(ctx, original, "no results found")
	if err != nil {
		o.logger.Debug().Err(err).Msg("Query optimization failed, keeping original")
		return original
	}
	optimized = strings.TrimSpace(optimized)
	if optimized == "" {
		return original
	}
	if optimized != original {
		o.logger.Debug().Str("original", original).Str("optimized", optimized).Msg("Fallback query rewritten")
	}
	return optimized
}

// decide hands the candidates to the selector and closes the run.
func (o *Orchestrator) decide(ctx context.Context, req Request, outcome *Outcome, query string, sources []music.Source, prefs music.SelectionPreferences) (*Outcome, error) {
	req.Progress(90, "Selecting best result...")
	decision, err := o.selector.Select(ctx, query, sources, prefs)
	if err != nil {
		return nil, err
	}
	outcome.Sources = sources
	outcome.Decision = &decision
	outcome.Code = o.completionCode(decision)
	req.Progress(100, "Complete!")
	return outcome, nil
}

// completionCode distinguishes advisor degradation from a normal
// finish. A fallback caused by an explicit album-mismatch answer is
// the advisor working, not failing.
func (o *Orchestrator) completionCode(decision music.Decision) Code {
	if o.advisorEnabled && decision.FallbackUsed && !decision.AlbumMismatch {
		return CodeAdvisorUnavailable
	}
	return CodeOK
}

// finishEmpty terminates the run with no candidates.
func (o *Orchestrator) finishEmpty(req Request, outcome *Outcome, code Code) *Outcome {
	outcome.Code = code
	outcome.Sources = []music.Source{}
	req.Progress(100, "No results found")
	return outcome
}

// engineSearch runs one engine query with the user's filters,
// retrying without the format filter when a non-strict format search
// comes back empty.
func (o *Orchestrator) engineSearch(ctx context.Context, req Request, query string) []music.Source {
	format := normalizedFormat(req.FormatFilter)
	result := o.engine.Search(ctx, query, engine.Options{FormatFilter: format, MinSeeders: req.MinSeeders})
	if len(result.Sources) == 0 && format != "" && !req.Strict {
		o.logger.Debug().Str("query", query).Str("format", format).Msg("No results with format filter, retrying any format")
		result = o.engine.Search(ctx, query, engine.Options{MinSeeders: req.MinSeeders})
	}
	return result.Sources
}

// normalizedFormat treats the wildcard as no filter.
func normalizedFormat(format string) string {
	if format == "*" {
		return ""
	}
	return format
}

// filterSongOnly keeps results small enough to be a lone track.
// Unknown sizes read as huge and are dropped.
func filterSongOnly(sources []music.Source) []music.Source {
	small := make([]music.Source, 0, len(sources))
	for _, s := range sources {
		if s.SizeBytes > 0 && s.SizeBytes < songOnlyMaxBytes {
			small = append(small, s)
		}
	}
	return small
}

// filterLikelySingles is the looser cut used by the single-only
// strategy: small payloads or titles that call themselves a single.
func filterLikelySingles(sources []music.Source) []music.Source {
	singles := make([]music.Source, 0, len(sources))
	for _, s := range sources {
		small := s.SizeBytes > 0 && s.SizeBytes < singleLikelyMaxBytes
		if small || strings.Contains(strings.ToLower(s.Title), "single") {
			singles = append(singles, s)
		}
	}
	return singles
}

// otherAlbums lists distinct albums containing the song, excluding
// the one already tried. Catalog order (score descending) carries
// through.
func otherAlbums(recordings []music.MetadataRelease, exclude string) []string {
	seen := map[string]bool{strings.ToLower(exclude): true}
	albums := make([]string, 0, len(recordings))
	for _, rec := range recordings {
		if rec.Album == "" {
			continue
		}
		key := strings.ToLower(rec.Album)
		if seen[key] {
			continue
		}
		seen[key] = true
		albums = append(albums, rec.Album)
	}
	return albums
}

// totalSeeders sums the swarm across a result list. Streams count as
// zero.
func totalSeeders(sources []music.Source) int {
	total := 0
	for _, s := range sources {
		if s.Seeders != nil {
			total += *s.Seeders
		}
	}
	return total
}

package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tonearm/tonearm/internal/engine"
	"github.com/tonearm/tonearm/internal/music"
	"github.com/tonearm/tonearm/internal/query"
)

// PipelineRequest is one transport-facing search.
type PipelineRequest struct {
	Query        string `json:"query"`
	FormatFilter string `json:"format_filter,omitempty"`
	MinSeeders   int    `json:"min_seeders"`
	Limit        int    `json:"limit"`
	// Strict disables the any-format retry when a format-filtered
	// search returns nothing.
	Strict   bool         `json:"strict"`
	Progress ProgressFunc `json:"-"`
}

// Response is the transport-facing search result.
type Response struct {
	Query        string               `json:"query"`
	SQLQuery     string               `json:"sql_query,omitempty"`
	TotalFound   int                  `json:"total_found"`
	SearchTimeMS int64                `json:"search_time_ms"`
	Results      []music.RankedSource `json:"results"`
}

// Defaults carries operator-configured fallbacks for requests that do
// not set their own values. Zero fields leave requests untouched.
type Defaults struct {
	// Timeout bounds one whole Search call, including the any-format
	// retry.
	Timeout time.Duration
	// MinSeeders is the seeder floor used when neither the request nor
	// the parsed query raises one.
	MinSeeders int
	// MaxResults caps the ranked list regardless of what the request
	// or the query asks for.
	MaxResults int
}

// Pipeline is the non-interactive search path: parse the query, fan
// out to the engine, rank what comes back. No catalog round trips, no
// user interaction.
type Pipeline struct {
	engine   Searcher
	defaults Defaults
	logger   zerolog.Logger
}

// NewPipeline builds the pipeline over a search engine.
func NewPipeline(engine Searcher, defaults Defaults, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		engine:   engine,
		defaults: defaults,
		logger:   logger.With().Str("component", "pipeline").Logger(),
	}
}

// Search runs one request straight through. Structured queries are
// honored as written; free text goes through the heuristic converter
// and the equivalent structured form is echoed back as SQLQuery.
func (p *Pipeline) Search(ctx context.Context, req PipelineRequest) (*Response, error) {
	raw := strings.TrimSpace(req.Query)
	if raw == "" {
		return nil, ErrEmptyQuery
	}
	if p.defaults.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.defaults.Timeout)
		defer cancel()
	}
	if req.MinSeeders <= 0 {
		req.MinSeeders = p.defaults.MinSeeders
	}
	progress := req.Progress
	if progress == nil {
		progress = func(int, string) {}
	}

	start := time.Now()
	p.logger.Info().Str("query", raw).Msg("Search query received")

	progress(10, "Parsing query...")

	var q *query.Query
	sqlQuery := ""
	if query.IsSQL(raw) {
		if parsed, ok := query.ParseSQL(raw); ok {
			q = parsed
			sqlQuery = raw
		}
	}
	if q == nil {
		q = query.FromNatural(raw)
		sqlQuery = q.ToSQL()
	}

	if req.FormatFilter != "" {
		q.Format = req.FormatFilter
	}
	if req.MinSeeders > q.MinSeeders {
		q.MinSeeders = req.MinSeeders
	}
	if req.Limit > 0 {
		q.Limit = req.Limit
	}
	if p.defaults.MaxResults > 0 && q.Limit > p.defaults.MaxResults {
		q.Limit = p.defaults.MaxResults
	}

	terms := q.Terms()
	if terms == "" {
		terms = raw
	}

	format := normalizedFormat(q.Format)

	progress(30, "Searching torrents...")
	result := p.engine.Search(ctx, terms, engine.Options{
		FormatFilter: format,
		MinSeeders:   q.MinSeeders,
	})
	if len(result.Sources) == 0 && format != "" && !req.Strict {
		p.logger.Debug().Str("query", terms).Str("format", format).
			Msg("No results with format filter, retrying any format")
		result = p.engine.Search(ctx, terms, engine.Options{MinSeeders: q.MinSeeders})
	}

	progress(70, "Ranking results...")
	ranked := Rank(result.Sources, q.Limit)

	progress(100, "Complete!")

	resp := &Response{
		Query:        raw,
		SQLQuery:     sqlQuery,
		TotalFound:   len(result.Sources),
		SearchTimeMS: time.Since(start).Milliseconds(),
		Results:      ranked,
	}
	p.logger.Info().
		Int("returned", len(ranked)).
		Int("totalFound", resp.TotalFound).
		Int64("ms", resp.SearchTimeMS).
		Msg("Search completed")
	return resp, nil
}

// Rank annotates a quality-sorted source list with 1-indexed ranks,
// a display explanation, and tags, clipping to limit.
func Rank(sources []music.Source, limit int) []music.RankedSource {
	if limit <= 0 {
		limit = query.DefaultLimit
	}
	if len(sources) > limit {
		sources = sources[:limit]
	}

	ranked := make([]music.RankedSource, 0, len(sources))
	for i, src := range sources {
		rank := i + 1
		ranked = append(ranked, music.RankedSource{
			Rank:        rank,
			Source:      src,
			Explanation: explain(&src, rank),
			Tags:        tag(&src, rank),
		})
	}
	return ranked
}

// explain renders the one-line summary shown next to a result, e.g.
// "🏆 • FLAC • 24bit • 42 seeders • 1.20 GB".
func explain(src *music.Source, rank int) string {
	parts := make([]string, 0, 5)
	if rank == 1 {
		parts = append(parts, "🏆")
	}
	if src.Format != "" {
		parts = append(parts, src.Format)
	}
	if src.Bitrate != "" {
		parts = append(parts, src.Bitrate)
	}
	if src.Seeders != nil {
		parts = append(parts, fmt.Sprintf("%d seeders", *src.Seeders))
	}
	if src.SizeBytes > 0 {
		parts = append(parts, src.SizeFormatted())
	}
	return strings.Join(parts, " • ")
}

// tag labels a result from the closed display vocabulary.
func tag(src *music.Source, rank int) []string {
	tags := make([]string, 0, 4)
	if rank == 1 {
		tags = append(tags, music.TagBest)
	}
	if strings.EqualFold(src.Format, "FLAC") {
		tags = append(tags, music.TagLossless)
		bitrate := strings.ToUpper(src.Bitrate)
		if strings.Contains(bitrate, "24") || strings.Contains(bitrate, "DSD") {
			tags = append(tags, music.TagHiRes)
		}
	}
	if src.Seeders != nil {
		switch {
		case *src.Seeders >= 50:
			tags = append(tags, music.TagFast, music.TagPopular)
		case *src.Seeders >= 10:
			tags = append(tags, music.TagFast)
		}
	}
	if src.Kind != music.KindTorrent {
		tags = append(tags, music.TagStream)
	}
	return tags
}

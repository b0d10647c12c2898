// Package engine fans a query out across source adapters and merges
// the responses into one deduplicated, quality-ranked list.
package engine

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tonearm/tonearm/internal/adapter"
	"github.com/tonearm/tonearm/internal/metrics"
	"github.com/tonearm/tonearm/internal/music"
	"github.com/tonearm/tonearm/internal/music/scoring"
)

// dispatchTimeout bounds one whole fan-out; individual adapters carry
// tighter per-request deadlines of their own.
const dispatchTimeout = 30 * time.Second

// Options narrow an engine search.
type Options struct {
	// FormatFilter keeps only results whose format matches
	// case-insensitively. Empty or "*" disables the filter.
	FormatFilter string
	// MinSeeders drops torrent results below the floor. Stream
	// results have no seeders and are never dropped by it.
	MinSeeders int
}

// AdapterError describes one adapter's failure during a search.
type AdapterError struct {
	Adapter string `json:"adapter"`
	Error   string `json:"error"`
}

// Result is the aggregated outcome of one federated search.
type Result struct {
	Sources         []music.Source `json:"sources"`
	AdaptersUsed    int            `json:"adapters_used"`
	AdaptersSkipped []string       `json:"adapters_skipped,omitempty"`
	Errors          []AdapterError `json:"errors,omitempty"`
}

// searchTask carries one adapter's outcome to the aggregator.
type searchTask struct {
	adapter string
	sources []music.Source
	err     error
}

// Service orchestrates searches across the configured adapters.
type Service struct {
	adapters []adapter.Adapter
	health   *adapter.HealthTracker
	logger   zerolog.Logger
}

// NewService creates a search engine over the given adapters. The
// health tracker is shared so other components can inspect breaker
// state.
func NewService(adapters []adapter.Adapter, health *adapter.HealthTracker, logger zerolog.Logger) *Service {
	return &Service{
		adapters: adapters,
		health:   health,
		logger:   logger.With().Str("component", "engine").Logger(),
	}
}

// Adapters returns the configured adapters in profile order.
func (s *Service) Adapters() []adapter.Adapter {
	return s.adapters
}

// Health returns the shared adapter health tracker.
func (s *Service) Health() *adapter.HealthTracker {
	return s.health
}

// Resolver returns the first adapter that can resolve stream URLs.
func (s *Service) Resolver() (adapter.StreamResolver, bool) {
	for _, a := range s.adapters {
		if resolver, ok := a.(adapter.StreamResolver); ok {
			return resolver, true
		}
	}
	return nil, false
}

// Search queries every healthy adapter concurrently and returns the
// merged result list sorted by quality score. Per-adapter failures
// are captured in the result, never returned as an error.
func (s *Service) Search(ctx context.Context, query string, opts Options) *Result {
	startTime := time.Now()
	metrics.SearchesTotal.Inc()

	healthy, skipped := s.partitionHealthy()

	s.logger.Info().
		Int("adapterCount", len(healthy)).
		Int("skipped", len(skipped)).
		Str("query", query).
		Msg("Starting search across adapters")

	if len(healthy) == 0 {
		return &Result{
			Sources:         []music.Source{},
			AdaptersSkipped: skipped,
		}
	}

	result := s.dispatch(ctx, healthy, query, opts)
	result.AdaptersSkipped = skipped

	elapsed := time.Since(startTime)
	metrics.SearchDuration.Observe(elapsed.Seconds())

	s.logger.Info().
		Int("totalResults", len(result.Sources)).
		Int("adaptersUsed", result.AdaptersUsed).
		Int("errors", len(result.Errors)).
		Dur("elapsed", elapsed).
		Msg("Search completed")

	return result
}

// partitionHealthy splits adapters into those the breaker allows and
// the names of those it is holding out.
func (s *Service) partitionHealthy() ([]adapter.Adapter, []string) {
	healthyAdapters := make([]adapter.Adapter, 0, len(s.adapters))
	skipped := make([]string, 0)

	for _, a := range s.adapters {
		if !s.health.Healthy(a.Name()) {
			s.logger.Debug().Str("adapter", a.Name()).Msg("Skipping tripped adapter")
			skipped = append(skipped, a.Name())
			continue
		}
		healthyAdapters = append(healthyAdapters, a)
	}

	return healthyAdapters, skipped
}

// dispatch runs searches in parallel across adapters.
func (s *Service) dispatch(ctx context.Context, adapters []adapter.Adapter, query string, opts Options) *Result {
	var wg sync.WaitGroup
	resultsChan := make(chan searchTask, len(adapters))

	searchCtx, cancel := context.WithTimeout(ctx, dispatchTimeout)
	defer cancel()

	for _, a := range adapters {
		wg.Add(1)
		go func(a adapter.Adapter) {
			defer wg.Done()
			resultsChan <- s.searchAdapter(searchCtx, a, query)
		}(a)
	}

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	return s.aggregate(resultsChan, opts)
}

// searchAdapter performs a search on a single adapter and records the
// outcome in the health tracker.
func (s *Service) searchAdapter(ctx context.Context, a adapter.Adapter, query string) searchTask {
	task := searchTask{adapter: a.Name()}

	start := time.Now()
	sources, err := a.Search(ctx, query)
	elapsed := time.Since(start)

	if err != nil {
		task.err = err
		s.logger.Error().
			Err(err).
			Str("adapter", a.Name()).
			Dur("elapsed", elapsed).
			Msg("Adapter search failed")
		s.health.RecordFailure(a.Name(), err)
		metrics.AdapterFailuresTotal.WithLabelValues(a.Name()).Inc()
		setHealthGauge(a.Name(), s.health.Healthy(a.Name()))
		return task
	}

	s.health.RecordSuccess(a.Name())
	setHealthGauge(a.Name(), true)

	task.sources = sources
	s.logger.Debug().
		Str("adapter", a.Name()).
		Int("results", len(sources)).
		Dur("elapsed", elapsed).
		Msg("Adapter search completed")

	return task
}

// aggregate combines results from multiple adapters.
func (s *Service) aggregate(results <-chan searchTask, opts Options) *Result {
	allSources := make([]music.Source, 0)
	errors := make([]AdapterError, 0)
	adaptersUsed := 0

	for task := range results {
		if task.err != nil {
			errors = append(errors, AdapterError{
				Adapter: task.adapter,
				Error:   task.err.Error(),
			})
			continue
		}
		adaptersUsed++
		allSources = append(allSources, task.sources...)
	}

	totalRaw := len(allSources)

	deduplicated := deduplicate(allSources)
	afterDedup := len(deduplicated)

	filtered := filterMinSeeders(deduplicated, opts.MinSeeders)
	filtered = filterFormat(filtered, opts.FormatFilter)

	scoring.SortByQuality(filtered)

	s.logger.Debug().
		Int("totalRaw", totalRaw).
		Int("afterDedup", afterDedup).
		Int("finalResults", len(filtered)).
		Int("adaptersUsed", adaptersUsed).
		Msg("Aggregation complete")

	return &Result{
		Sources:      filtered,
		AdaptersUsed: adaptersUsed,
		Errors:       errors,
	}
}

// deduplicate keeps the first occurrence of each identity. Results
// without an identity are kept as-is.
func deduplicate(sources []music.Source) []music.Source {
	if len(sources) == 0 {
		return sources
	}

	seen := make(map[string]struct{}, len(sources))
	result := make([]music.Source, 0, len(sources))

	for _, src := range sources {
		id := src.Identity()
		if id == "" {
			result = append(result, src)
			continue
		}
		if _, exists := seen[id]; exists {
			continue
		}
		seen[id] = struct{}{}
		result = append(result, src)
	}

	return result
}

// filterMinSeeders drops torrent results below the seeder floor.
// Results without a seeder count pass through.
func filterMinSeeders(sources []music.Source, minSeeders int) []music.Source {
	if minSeeders <= 0 {
		return sources
	}

	filtered := make([]music.Source, 0, len(sources))
	for _, src := range sources {
		if src.Seeders != nil && *src.Seeders < minSeeders {
			continue
		}
		filtered = append(filtered, src)
	}
	return filtered
}

// filterFormat keeps results matching the format case-insensitively.
// An empty or wildcard filter keeps everything.
func filterFormat(sources []music.Source, format string) []music.Source {
	if format == "" || format == "*" {
		return sources
	}

	filtered := make([]music.Source, 0, len(sources))
	for _, src := range sources {
		if strings.EqualFold(src.Format, format) {
			filtered = append(filtered, src)
		}
	}
	return filtered
}

func setHealthGauge(name string, healthy bool) {
	if healthy {
		metrics.AdapterHealthy.WithLabelValues(name).Set(1)
		return
	}
	metrics.AdapterHealthy.WithLabelValues(name).Set(0)
}

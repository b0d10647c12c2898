package adapter

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultFailureThreshold is how many consecutive failures trip
	// the breaker for an adapter.
	DefaultFailureThreshold = 3
	// DefaultCooldown is how long a tripped adapter sits out before
	// it is retried.
	DefaultCooldown = 300 * time.Second
)

// Health is a snapshot of one adapter's failure bookkeeping.
type Health struct {
	Name                string     `json:"name"`
	Healthy             bool       `json:"healthy"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LastSuccess         *time.Time `json:"last_success,omitempty"`
	LastFailure         *time.Time `json:"last_failure,omitempty"`
}

type healthRecord struct {
	consecutiveFailures int
	lastSuccess         time.Time
	lastFailure         time.Time
}

// HealthTracker keeps per-adapter circuit breaker state in memory.
// Once an adapter fails threshold times in a row it is skipped until
// the cooldown elapses; the first check after the cooldown resets the
// counter and lets the next request through.
type HealthTracker struct {
	mu        sync.Mutex
	records   map[string]*healthRecord
	threshold int
	cooldown  time.Duration
	now       func() time.Time
	logger    zerolog.Logger
}

// NewHealthTracker creates a tracker with the default threshold and
// cooldown.
func NewHealthTracker(logger zerolog.Logger) *HealthTracker {
	return NewHealthTrackerWithConfig(DefaultFailureThreshold, DefaultCooldown, logger)
}

// NewHealthTrackerWithConfig creates a tracker with a custom failure
// threshold and cooldown.
func NewHealthTrackerWithConfig(threshold int, cooldown time.Duration, logger zerolog.Logger) *HealthTracker {
	if threshold <= 0 {
		threshold = DefaultFailureThreshold
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &HealthTracker{
		records:   make(map[string]*healthRecord),
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
		logger:    logger.With().Str("component", "adapter-health").Logger(),
	}
}

// Healthy reports whether the named adapter may be queried. A tripped
// breaker whose cooldown has elapsed is reset here, so recovery needs
// no background timer.
func (t *HealthTracker) Healthy(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[name]
	if !ok {
		return true
	}
	if rec.consecutiveFailures < t.threshold {
		return true
	}
	if t.now().Sub(rec.lastFailure) < t.cooldown {
		return false
	}

	rec.consecutiveFailures = 0
	t.logger.Info().
		Str("adapter", name).
		Msg("Cooldown elapsed, re-enabling adapter")
	return true
}

// RecordSuccess clears the failure counter for an adapter.
func (t *HealthTracker) RecordSuccess(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec := t.record(name)
	rec.consecutiveFailures = 0
	rec.lastSuccess = t.now()
}

// RecordFailure bumps the failure counter and trips the breaker when
// the threshold is reached.
func (t *HealthTracker) RecordFailure(name string, opErr error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec := t.record(name)
	rec.consecutiveFailures++
	rec.lastFailure = t.now()

	if rec.consecutiveFailures == t.threshold {
		t.logger.Warn().
			Str("adapter", name).
			Int("failures", rec.consecutiveFailures).
			Dur("cooldown", t.cooldown).
			Err(opErr).
			Msg("Adapter tripped circuit breaker")
	} else {
		t.logger.Debug().
			Str("adapter", name).
			Int("failures", rec.consecutiveFailures).
			Err(opErr).
			Msg("Recorded adapter failure")
	}
}

// Snapshot returns the health record for one adapter.
func (t *HealthTracker) Snapshot(name string) Health {
	healthy := t.Healthy(name)

	t.mu.Lock()
	defer t.mu.Unlock()

	h := Health{Name: name, Healthy: healthy}
	if rec, ok := t.records[name]; ok {
		h.ConsecutiveFailures = rec.consecutiveFailures
		if !rec.lastSuccess.IsZero() {
			ts := rec.lastSuccess
			h.LastSuccess = &ts
		}
		if !rec.lastFailure.IsZero() {
			ts := rec.lastFailure
			h.LastFailure = &ts
		}
	}
	return h
}

// record returns the record for name, creating it on first use.
// Callers must hold the lock.
func (t *HealthTracker) record(name string) *healthRecord {
	rec, ok := t.records[name]
	if !ok {
		rec = &healthRecord{}
		t.records[name] = rec
	}
	return rec
}

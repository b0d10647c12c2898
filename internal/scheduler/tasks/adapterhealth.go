package tasks

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/tonearm/tonearm/internal/engine"
	"github.com/tonearm/tonearm/internal/metrics"
	"github.com/tonearm/tonearm/internal/scheduler"
)

const AdapterHealthTaskID = "adapter-health"

// AdapterHealthTask republishes circuit breaker state so the
// adapter_healthy gauge reflects cooldown expiry even when no
// searches are running.
type AdapterHealthTask struct {
	engine *engine.Service
	logger zerolog.Logger
}

// NewAdapterHealthTask creates the snapshot task for the given engine.
func NewAdapterHealthTask(engineSvc *engine.Service, logger zerolog.Logger) *AdapterHealthTask {
	return &AdapterHealthTask{
		engine: engineSvc,
		logger: logger.With().Str("task", "adapter-health").Logger(),
	}
}

// Run snapshots every adapter's breaker state into the health gauge.
func (t *AdapterHealthTask) Run(ctx context.Context) error {
	tracker := t.engine.Health()
	adapters := t.engine.Adapters()

	healthyCount := 0
	for _, a := range adapters {
		snap := tracker.Snapshot(a.Name())
		if snap.Healthy {
			metrics.AdapterHealthy.WithLabelValues(a.Name()).Set(1)
			healthyCount++
			continue
		}
		metrics.AdapterHealthy.WithLabelValues(a.Name()).Set(0)
		t.logger.Warn().
			Str("adapter", a.Name()).
			Int("consecutive_failures", snap.ConsecutiveFailures).
			Msg("Adapter remains tripped")
	}

	t.logger.Debug().
		Int("healthy", healthyCount).
		Int("total", len(adapters)).
		Msg("Adapter health snapshot published")
	return nil
}

// RegisterAdapterHealthTask registers the periodic breaker snapshot.
func RegisterAdapterHealthTask(sched *scheduler.Scheduler, engineSvc *engine.Service, logger zerolog.Logger) error {
	task := NewAdapterHealthTask(engineSvc, logger)
	return sched.RegisterTask(scheduler.TaskConfig{
		ID:          AdapterHealthTaskID,
		Name:        "Adapter Health Snapshot",
		Description: "Publishes circuit breaker state for every adapter to the health gauge",
		Cron:        "@every 15m",
		RunOnStart:  true,
		Func:        task.Run,
	})
}

// Package tasks wires the maintenance jobs into the scheduler.
package tasks

import (
	"context"

	"github.com/tonearm/tonearm/internal/history"
	"github.com/tonearm/tonearm/internal/scheduler"
)

const HistoryCleanupTaskID = "history-cleanup"

// RegisterHistoryCleanupTask schedules the nightly history purge.
// Entries older than retentionDays are removed; a retention of zero
// or less makes the run a no-op without unscheduling it.
func RegisterHistoryCleanupTask(sched *scheduler.Scheduler, historyService *history.Service, retentionDays int) error {
	return sched.RegisterTask(scheduler.TaskConfig{
		ID:          HistoryCleanupTaskID,
		Name:        "History Cleanup",
		Description: "Deletes search history entries older than the configured retention period",
		Cron:        "0 2 * * *",
		RunOnStart:  false,
		Func: func(ctx context.Context) error {
			_, err := historyService.CleanupOldEntries(ctx, retentionDays)
			return err
		},
	})
}

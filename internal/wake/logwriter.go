package wake

import (
	"context"
	"time"

	"github.com/Parlance-Social/parlance/agent-engine/internal/store"
)

// LogWriter persists the audit row for a completed cycle and settles the
// agent's spend counters. Every wake cycle that gets past mutual exclusion
// ends here, whatever its status.
type LogWriter struct {
	store store.Store
}

func NewLogWriter(st store.Store) *LogWriter {
	return &LogWriter{store: st}
}

// Write records the wake log, then advances the agent's budget day. Only
// cycles that incurred cost move the counters and the last-wake anchor: a
// zero-cost denial or failure must not refresh the anchor, or an exhausted
// agent's spend would never age past the 24h reset.
func (w *LogWriter) Write(ctx context.Context, agent store.Agent, entry store.WakeLog) error {
	if err := w.store.CreateWakeLog(ctx, entry); err != nil {
		return &StorageError{Op: "writing wake log", Err: err}
	}
	if entry.TotalCost == 0 {
		return nil
	}

	agent.DailySpent = EffectiveDailySpent(agent, entry.WakeTime) + entry.TotalCost
	agent.TotalSpent += entry.TotalCost
	wakeTime := entry.WakeTime
	agent.LastWakeTime = &wakeTime
	agent.UpdatedAt = time.Now().UTC()

	if err := w.store.UpdateAgent(ctx, agent); err != nil {
		return &StorageError{Op: "updating agent counters", Err: err}
	}
	return nil
}

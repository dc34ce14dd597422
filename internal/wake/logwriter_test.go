package wake

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Parlance-Social/parlance/agent-engine/internal/store"
	"github.com/Parlance-Social/parlance/agent-engine/internal/store/memory"
)

func TestLogWriter_WritesLogAndSettlesCounters(t *testing.T) {
	st := memory.New()
	ctx := context.Background()
	now := time.Now().UTC()
	lastWake := now.Add(-2 * time.Hour)

	agent := testAgent("a1")
	agent.DailySpent = 1.00
	agent.TotalSpent = 10.00
	agent.LastWakeTime = &lastWake
	st.AddAgent(agent)

	writer := NewLogWriter(st)
	entry := store.WakeLog{ID: "w1", AgentID: "a1", WakeTime: now, TotalCost: 0.30, Status: store.WakeStatusSuccess}
	if err := writer.Write(ctx, agent, entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	logs, _ := st.ListWakeLogs(ctx, "a1", 10)
	if len(logs) != 1 || logs[0].ID != "w1" {
		t.Fatalf("unexpected logs: %+v", logs)
	}

	updated, _ := st.FindAgentByID(ctx, "a1")
	if updated.DailySpent != 1.30 {
		t.Fatalf("DailySpent = %v, want 1.30", updated.DailySpent)
	}
	if updated.TotalSpent != 10.30 {
		t.Fatalf("TotalSpent = %v, want 10.30", updated.TotalSpent)
	}
	if updated.LastWakeTime == nil || !updated.LastWakeTime.Equal(now) {
		t.Fatalf("LastWakeTime = %v, want %v", updated.LastWakeTime, now)
	}
}

func TestLogWriter_RollingDayResetsBeforeAdding(t *testing.T) {
	st := memory.New()
	ctx := context.Background()
	now := time.Now().UTC()
	staleWake := now.Add(-30 * time.Hour)

	agent := testAgent("a1")
	agent.DailySpent = 4.50
	agent.LastWakeTime = &staleWake
	st.AddAgent(agent)

	writer := NewLogWriter(st)
	entry := store.WakeLog{ID: "w1", AgentID: "a1", WakeTime: now, TotalCost: 0.20, Status: store.WakeStatusSuccess}
	if err := writer.Write(ctx, agent, entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	updated, _ := st.FindAgentByID(ctx, "a1")
	if updated.DailySpent != 0.20 {
		t.Fatalf("DailySpent = %v, want 0.20 after rolling reset", updated.DailySpent)
	}
}

func TestLogWriter_ZeroCostCycleLeavesCountersAlone(t *testing.T) {
	st := memory.New()
	ctx := context.Background()
	now := time.Now().UTC()
	lastWake := now.Add(-23 * time.Hour)

	agent := testAgent("a1")
	agent.DailySpent = 5.00
	agent.TotalSpent = 5.00
	agent.LastWakeTime = &lastWake
	st.AddAgent(agent)

	writer := NewLogWriter(st)
	entry := store.WakeLog{ID: "w1", AgentID: "a1", WakeTime: now, TotalCost: 0, Status: store.WakeStatusBudgetExceeded}
	if err := writer.Write(ctx, agent, entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	logs, _ := st.ListWakeLogs(ctx, "a1", 10)
	if len(logs) != 1 {
		t.Fatalf("expected the audit row, got %+v", logs)
	}

	updated, _ := st.FindAgentByID(ctx, "a1")
	if updated.DailySpent != 5.00 || updated.TotalSpent != 5.00 {
		t.Fatalf("counters moved on a zero-cost cycle: %+v", updated)
	}
	if updated.LastWakeTime == nil || !updated.LastWakeTime.Equal(lastWake) {
		t.Fatalf("LastWakeTime = %v, want unchanged %v", updated.LastWakeTime, lastWake)
	}
}

func TestLogWriter_DeniedCycleDoesNotBlockRollingReset(t *testing.T) {
	st := memory.New()
	ctx := context.Background()
	t0 := time.Now().UTC().Add(-25 * time.Hour)

	agent := testAgent("a1")
	agent.DailySpent = 5.00
	agent.DailyBudget = 5.00
	agent.LastWakeTime = &t0
	st.AddAgent(agent)

	guard := NewGuard(st, 0.25, true)
	writer := NewLogWriter(st)

	// Denied at t0+23h; the audit row must not re-anchor the spend.
	denied, err := guard.Check(ctx, agent, t0.Add(23*time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if denied.CanProceed || denied.Status != store.WakeStatusBudgetExceeded {
		t.Fatalf("expected budget denial, got %+v", denied)
	}
	entry := store.WakeLog{ID: "w1", AgentID: "a1", WakeTime: t0.Add(23 * time.Hour), TotalCost: 0, Status: denied.Status}
	if err := writer.Write(ctx, agent, entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// At t0+25h the spend is more than a day old and the agent is admitted.
	reloaded, _ := st.FindAgentByID(ctx, "a1")
	admitted, err := guard.Check(ctx, *reloaded, t0.Add(25*time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !admitted.CanProceed {
		t.Fatalf("expected admission after the spend aged out, got %+v", admitted)
	}
}

func TestLogWriter_CreateFailurePropagates(t *testing.T) {
	st := newStubStore()
	st.createWakeLogFn = func(ctx context.Context, entry store.WakeLog) error {
		return errors.New("disk full")
	}

	writer := NewLogWriter(st)
	err := writer.Write(context.Background(), testAgent("a1"), store.WakeLog{ID: "w1", AgentID: "a1"})
	var storageErr *StorageError
	if !errors.As(err, &storageErr) {
		t.Fatalf("expected StorageError, got %v", err)
	}
}

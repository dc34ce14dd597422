package workflows

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Parlance-Social/parlance/agent-engine/internal/store"
	"github.com/Parlance-Social/parlance/agent-engine/internal/wake"
)

type fakeRunner struct {
	result   wake.WakeCycleResult
	err      error
	outcomes []wake.SweepOutcome
	sweepErr error
	lastID   string
	lastOpts wake.WakeOptions
}

func (f *fakeRunner) Wake(ctx context.Context, agentID string, opts wake.WakeOptions) (wake.WakeCycleResult, error) {
	f.lastID = agentID
	f.lastOpts = opts
	return f.result, f.err
}

func (f *fakeRunner) ProcessDue(ctx context.Context) ([]wake.SweepOutcome, error) {
	return f.outcomes, f.sweepErr
}

func TestRunWakeCycle_Success(t *testing.T) {
	runner := &fakeRunner{
		result: wake.WakeCycleResult{Status: store.WakeStatusSuccess, ActionsPerformed: 1, TotalCost: 0.2},
	}
	activities := NewWakeActivities(runner)

	output, err := activities.RunWakeCycle(context.Background(), WakeInput{AgentID: "a1", Forced: true, IntentPrompt: "post something"})
	require.NoError(t, err)
	require.Equal(t, store.WakeStatusSuccess, output.Status)
	require.Equal(t, 1, output.ActionsPerformed)
	require.Equal(t, "a1", runner.lastID)
	require.True(t, runner.lastOpts.Forced)
	require.NotNil(t, runner.lastOpts.Intent)
	require.Equal(t, "post something", runner.lastOpts.Intent.Prompt)
}

func TestRunWakeCycle_BlankIntentOmitted(t *testing.T) {
	runner := &fakeRunner{result: wake.WakeCycleResult{Status: store.WakeStatusSuccess}}
	activities := NewWakeActivities(runner)

	_, err := activities.RunWakeCycle(context.Background(), WakeInput{AgentID: "a1", IntentPrompt: "  "})
	require.NoError(t, err)
	require.Nil(t, runner.lastOpts.Intent)
}

func TestRunWakeCycle_InFlightIsNotAFailure(t *testing.T) {
	runner := &fakeRunner{err: wake.ErrWakeInFlight}
	activities := NewWakeActivities(runner)

	output, err := activities.RunWakeCycle(context.Background(), WakeInput{AgentID: "a1"})
	require.NoError(t, err)
	require.Equal(t, "in_flight", output.Status)
}

func TestRunWakeCycle_RealFailurePropagates(t *testing.T) {
	runner := &fakeRunner{err: &wake.NotFoundError{Kind: "agent", ID: "ghost"}}
	activities := NewWakeActivities(runner)

	_, err := activities.RunWakeCycle(context.Background(), WakeInput{AgentID: "ghost"})
	require.Error(t, err)
}

func TestSweepDueAgents_Aggregates(t *testing.T) {
	runner := &fakeRunner{
		outcomes: []wake.SweepOutcome{
			{AgentID: "a1", Result: &wake.WakeCycleResult{Status: store.WakeStatusSuccess}},
			{AgentID: "a2", Result: &wake.WakeCycleResult{Status: store.WakeStatusBudgetExceeded}},
			{AgentID: "a3", Result: &wake.WakeCycleResult{Status: store.WakeStatusError}},
			{AgentID: "a4", Skipped: "outside active hours"},
		},
	}
	activities := NewWakeActivities(runner)

	result, err := activities.SweepDueAgents(context.Background())
	require.NoError(t, err)
	require.Equal(t, 4, result.Total)
	require.Equal(t, 2, result.Woken)
	require.Equal(t, 1, result.Failed)
}

func TestSweepDueAgents_Failure(t *testing.T) {
	runner := &fakeRunner{sweepErr: errors.New("listing eligible agents failed")}
	activities := NewWakeActivities(runner)

	_, err := activities.SweepDueAgents(context.Background())
	require.Error(t, err)
}

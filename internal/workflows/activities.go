package workflows

import (
	"context"
	"errors"
	"strings"

	"github.com/Parlance-Social/parlance/agent-engine/internal/store"
	"github.com/Parlance-Social/parlance/agent-engine/internal/wake"
)

// WakeRunner is the slice of the wake scheduler the activities delegate to.
// Running activities in the same process as the HTTP surface keeps mutual
// exclusion and budget accounting consistent across both trigger paths.
type WakeRunner interface {
	Wake(ctx context.Context, agentID string, opts wake.WakeOptions) (wake.WakeCycleResult, error)
	ProcessDue(ctx context.Context) ([]wake.SweepOutcome, error)
}

type WakeActivities struct {
	scheduler WakeRunner
}

func NewWakeActivities(scheduler WakeRunner) *WakeActivities {
	return &WakeActivities{scheduler: scheduler}
}

func (a *WakeActivities) RunWakeCycle(ctx context.Context, input WakeInput) (WakeOutput, error) {
	var intent *wake.AgentIntent
	if strings.TrimSpace(input.IntentPrompt) != "" {
		intent = &wake.AgentIntent{Prompt: input.IntentPrompt}
	}

	result, err := a.scheduler.Wake(ctx, input.AgentID, wake.WakeOptions{Forced: input.Forced, Intent: intent})
	if err != nil {
		// A concurrent wake is not a failure worth retrying or recording
		// as a workflow error; the other cycle carries the work.
		if errors.Is(err, wake.ErrWakeInFlight) {
			return WakeOutput{Status: "in_flight"}, nil
		}
		return WakeOutput{}, err
	}
	return WakeOutput{
		Status:           result.Status,
		ActionsPerformed: result.ActionsPerformed,
		TotalCost:        result.TotalCost,
	}, nil
}

func (a *WakeActivities) SweepDueAgents(ctx context.Context) (SweepResult, error) {
	outcomes, err := a.scheduler.ProcessDue(ctx)
	if err != nil {
		return SweepResult{}, err
	}

	result := SweepResult{Total: len(outcomes)}
	for _, outcome := range outcomes {
		if outcome.Result == nil {
			continue
		}
		if outcome.Result.Status == store.WakeStatusError {
			result.Failed++
			continue
		}
		result.Woken++
	}
	return result, nil
}

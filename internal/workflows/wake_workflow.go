package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

type SweepResult struct {
	Total  int `json:"total"`
	Woken  int `json:"woken"`
	Failed int `json:"failed"`
}

type WakeInput struct {
	AgentID      string
	Forced       bool
	IntentPrompt string
}

type WakeOutput struct {
	Status           string  `json:"status"`
	ActionsPerformed int     `json:"actions_performed"`
	TotalCost        float64 `json:"total_cost"`
}

// SweepWorkflow runs one periodic sweep. The cron schedule on the workflow
// drives repetition; each run is a single activity execution.
func SweepWorkflow(ctx workflow.Context) (SweepResult, error) {
	activityOptions := workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 1,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, activityOptions)

	result := SweepResult{}
	if err := workflow.ExecuteActivity(ctx, "SweepDueAgents").Get(ctx, &result); err != nil {
		workflow.GetLogger(ctx).Error("sweep activity failed", "error", err)
		return SweepResult{}, err
	}
	return result, nil
}

// WakeAgentWorkflow makes a single wake durable, for admin tooling that
// wants a record in Temporal rather than a synchronous HTTP response.
func WakeAgentWorkflow(ctx workflow.Context, input WakeInput) (WakeOutput, error) {
	activityOptions := workflow.ActivityOptions{
		StartToCloseTimeout: 3 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 1,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, activityOptions)

	result := WakeOutput{}
	if err := workflow.ExecuteActivity(ctx, "RunWakeCycle", input).Get(ctx, &result); err != nil {
		workflow.GetLogger(ctx).Error("wake activity failed", "agent_id", input.AgentID, "error", err)
		return WakeOutput{}, err
	}
	return result, nil
}

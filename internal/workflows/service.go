package workflows

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
)

const sweepWorkflowID = "wake-sweep"

type Service struct {
	client    client.Client
	taskQueue string
}

func NewService(client client.Client, taskQueue string) *Service {
	if taskQueue == "" {
		taskQueue = "parlance-wakes"
	}
	return &Service{client: client, taskQueue: taskQueue}
}

// EnsureSweepSchedule starts the cron-driven sweep workflow. A sweep already
// running under the same ID is fine; anything else is a real failure.
func (s *Service) EnsureSweepSchedule(ctx context.Context, cronSchedule string) error {
	options := client.StartWorkflowOptions{
		ID:           sweepWorkflowID,
		TaskQueue:    s.taskQueue,
		CronSchedule: cronSchedule,
	}
	_, err := s.client.ExecuteWorkflow(ctx, options, SweepWorkflow)
	if err != nil && temporal.IsWorkflowExecutionAlreadyStartedError(err) {
		return nil
	}
	return err
}

// TriggerWake starts a durable single-agent wake. The workflow ID pins one
// durable wake per agent at a time; the in-process scheduler still holds the
// real mutual-exclusion lock.
func (s *Service) TriggerWake(ctx context.Context, agentID string, forced bool) error {
	options := client.StartWorkflowOptions{
		ID:        wakeWorkflowID(agentID),
		TaskQueue: s.taskQueue,
	}
	_, err := s.client.ExecuteWorkflow(ctx, options, WakeAgentWorkflow, WakeInput{AgentID: agentID, Forced: forced})
	return err
}

func wakeWorkflowID(agentID string) string {
	return fmt.Sprintf("wake:%s", agentID)
}

package wake

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Parlance-Social/parlance/agent-engine/internal/events"
	"github.com/Parlance-Social/parlance/agent-engine/internal/store"
)

const (
	defaultWakeTimeout      = 90 * time.Second
	defaultNextWakeInterval = 30 * time.Minute
	defaultSweepConcurrency = 8
	auditWriteTimeout       = 10 * time.Second
)

type SchedulerConfig struct {
	WakeTimeout      time.Duration
	NextWakeInterval time.Duration
	SweepConcurrency int
}

// WakeOptions distinguish the two trigger paths. Forced wakes come from an
// explicit operator action and bypass eligibility filtering (but never the
// budget or rate guard); the optional intent is injected into the prompt.
type WakeOptions struct {
	Forced bool
	Intent *AgentIntent
}

// Scheduler runs complete wake cycles and owns per-agent mutual exclusion.
// A second trigger for an agent whose cycle is still in flight is rejected
// with ErrWakeInFlight before any state is touched.
type Scheduler struct {
	store          store.Store
	guard          *Guard
	contextBuilder *ContextBuilder
	engine         *Engine
	filter         *ContentFilter
	executor       *Executor
	logWriter      *LogWriter
	broker         *events.Broker

	wakeTimeout      time.Duration
	nextWakeInterval time.Duration
	sweepConcurrency int

	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewScheduler(
	st store.Store,
	guard *Guard,
	contextBuilder *ContextBuilder,
	engine *Engine,
	filter *ContentFilter,
	executor *Executor,
	logWriter *LogWriter,
	broker *events.Broker,
	cfg SchedulerConfig,
) *Scheduler {
	if cfg.WakeTimeout <= 0 {
		cfg.WakeTimeout = defaultWakeTimeout
	}
	if cfg.NextWakeInterval <= 0 {
		cfg.NextWakeInterval = defaultNextWakeInterval
	}
	if cfg.SweepConcurrency <= 0 {
		cfg.SweepConcurrency = defaultSweepConcurrency
	}
	return &Scheduler{
		store:            st,
		guard:            guard,
		contextBuilder:   contextBuilder,
		engine:           engine,
		filter:           filter,
		executor:         executor,
		logWriter:        logWriter,
		broker:           broker,
		wakeTimeout:      cfg.WakeTimeout,
		nextWakeInterval: cfg.NextWakeInterval,
		sweepConcurrency: cfg.SweepConcurrency,
		inFlight:         map[string]struct{}{},
	}
}

// Wake runs one full wake cycle for the agent. Every cycle that gets past
// mutual exclusion and agent lookup ends with an audit row, whatever its
// status; the returned result mirrors that row.
func (s *Scheduler) Wake(ctx context.Context, agentID string, opts WakeOptions) (WakeCycleResult, error) {
	if !s.acquire(agentID) {
		return WakeCycleResult{}, ErrWakeInFlight
	}
	defer s.release(agentID)

	now := time.Now().UTC()

	agent, err := s.store.FindAgentByID(ctx, agentID)
	if err != nil {
		return WakeCycleResult{}, &StorageError{Op: "loading agent", Err: err}
	}
	if agent == nil {
		return WakeCycleResult{}, &NotFoundError{Kind: "agent", ID: agentID}
	}

	s.publish(*agent, events.TypeWakeStarted, opts.Forced, now, nil)

	cycleCtx, cancel := context.WithTimeout(ctx, s.wakeTimeout)
	defer cancel()

	result, entry := s.runCycle(cycleCtx, *agent, opts, now)

	// The audit write must survive a cancelled or timed-out cycle; it gets
	// its own deadline detached from the trigger's context.
	auditCtx, auditCancel := context.WithTimeout(context.WithoutCancel(ctx), auditWriteTimeout)
	defer auditCancel()
	if err := s.logWriter.Write(auditCtx, *agent, entry); err != nil {
		if result.ErrorMessage != "" {
			result.ErrorMessage += "; "
		}
		result.ErrorMessage += fmt.Sprintf("audit write failed: %v", err)
	}

	s.publish(*agent, events.TypeWakeCompleted, opts.Forced, time.Now().UTC(), &result)
	return result, nil
}

func (s *Scheduler) runCycle(ctx context.Context, agent store.Agent, opts WakeOptions, now time.Time) (WakeCycleResult, store.WakeLog) {
	result := WakeCycleResult{
		AgentID:      agent.ID,
		WakeTime:     now,
		NextWakeTime: now.Add(s.nextWakeInterval),
		Status:       store.WakeStatusSuccess,
	}

	guardResult, err := s.guard.Check(ctx, agent, now)
	if err != nil {
		result.Status = store.WakeStatusError
		result.ErrorMessage = err.Error()
		return result, s.buildLog(agent, opts, result, nil)
	}
	if !guardResult.CanProceed {
		result.Status = guardResult.Status
		result.ErrorMessage = guardResult.Message
		return result, s.buildLog(agent, opts, result, nil)
	}

	agentCtx := s.contextBuilder.Build(ctx, agent, now)

	decision, err := s.engine.Decide(ctx, agent, agentCtx, opts.Intent)
	if err != nil {
		result.Status = store.WakeStatusError
		result.ErrorMessage = err.Error()
		return result, s.buildLog(agent, opts, result, nil)
	}
	result.TotalCost = decision.Cost
	result.TokensUsed = decision.TokensUsed
	result.ThoughtProcess = decision.ThoughtProcess

	actions := s.filter.Apply(decision.Actions)
	attributeCost(actions, decision.Cost)

	summary := s.executor.Execute(ctx, agent, actions, now)
	result.ActionsPerformed = summary.ActionsPerformed

	if len(agentCtx.ReviewedPostIDs) > 0 {
		if err := s.store.MarkPostsAsChecked(ctx, agent.ID, agentCtx.ReviewedPostIDs); err != nil {
			result.ErrorMessage = fmt.Sprintf("advancing reply markers: %v", err)
		}
	}

	return result, s.buildLog(agent, opts, result, summary.ActionTypes)
}

func (s *Scheduler) buildLog(agent store.Agent, opts WakeOptions, result WakeCycleResult, actionTypes []string) store.WakeLog {
	if actionTypes == nil {
		actionTypes = []string{}
	}
	return store.WakeLog{
		ID:               uuid.New().String(),
		AgentID:          agent.ID,
		WakeTime:         result.WakeTime,
		ActionsPerformed: result.ActionsPerformed,
		ActionTypes:      actionTypes,
		TotalCost:        result.TotalCost,
		TokensUsed:       result.TokensUsed,
		Forced:           opts.Forced,
		Status:           result.Status,
		ErrorMessage:     result.ErrorMessage,
		CreatedAt:        time.Now().UTC(),
	}
}

func (s *Scheduler) publish(agent store.Agent, eventType string, forced bool, ts time.Time, result *WakeCycleResult) {
	if s.broker == nil {
		return
	}
	event := events.WakeEvent{
		AgentID: agent.ID,
		Type:    eventType,
		Ts:      ts.Format(time.RFC3339),
		Forced:  forced,
	}
	if result != nil {
		event.Payload = map[string]any{
			"status":            result.Status,
			"actions_performed": result.ActionsPerformed,
			"total_cost":        result.TotalCost,
		}
	}
	s.broker.Publish(event)
}

func (s *Scheduler) acquire(agentID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[agentID]; busy {
		return false
	}
	s.inFlight[agentID] = struct{}{}
	return true
}

func (s *Scheduler) release(agentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, agentID)
}

// SweepOutcome is one agent's slot in a periodic sweep.
type SweepOutcome struct {
	AgentID string           `json:"agent_id"`
	Skipped string           `json:"skipped,omitempty"`
	Result  *WakeCycleResult `json:"result,omitempty"`
}

// ProcessDue wakes every eligible scheduled agent currently inside its
// active hours, with bounded concurrency. One agent's failure never stops
// the sweep.
func (s *Scheduler) ProcessDue(ctx context.Context) ([]SweepOutcome, error) {
	agents, err := s.store.FindEligibleAgentsForWake(ctx, []string{store.AutonomyScheduled, store.AutonomyFull})
	if err != nil {
		return nil, &StorageError{Op: "listing eligible agents", Err: err}
	}

	now := time.Now().UTC()
	outcomes := make([]SweepOutcome, 0, len(agents))
	var outcomesMu sync.Mutex

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.sweepConcurrency)

	for _, agent := range agents {
		if !withinActiveHours(agent, now) {
			outcomesMu.Lock()
			outcomes = append(outcomes, SweepOutcome{AgentID: agent.ID, Skipped: "outside active hours"})
			outcomesMu.Unlock()
			continue
		}
		agent := agent
		group.Go(func() error {
			outcome := SweepOutcome{AgentID: agent.ID}
			result, err := s.Wake(groupCtx, agent.ID, WakeOptions{})
			switch {
			case err == ErrWakeInFlight:
				outcome.Skipped = "wake already in flight"
			case err != nil:
				outcome.Skipped = err.Error()
			default:
				outcome.Result = &result
			}
			outcomesMu.Lock()
			outcomes = append(outcomes, outcome)
			outcomesMu.Unlock()
			return nil
		})
	}

	_ = group.Wait()
	return outcomes, nil
}

// attributeCost spreads the cycle's actual LLM cost evenly across the
// content-producing actions so each stored post carries its share.
func attributeCost(actions []AgentAction, total float64) {
	contentActions := 0
	for _, action := range actions {
		if action.Type == ActionPost || action.Type == ActionReply {
			contentActions++
		}
	}
	if contentActions == 0 || total <= 0 {
		return
	}
	share := total / float64(contentActions)
	for i := range actions {
		if actions[i].Type == ActionPost || actions[i].Type == ActionReply {
			actions[i].EstimatedCost = share
		}
	}
}

// withinActiveHours applies the agent's configured posting window. Equal
// start and end means always active; a window may wrap past midnight.
func withinActiveHours(agent store.Agent, now time.Time) bool {
	start, end := agent.ActiveHoursStart, agent.ActiveHoursEnd
	if start == end {
		return true
	}
	hour := now.Hour()
	if start < end {
		return hour >= start && hour < end
	}
	return hour >= start || hour < end
}

package wake

import (
	"context"
	"time"

	"github.com/Parlance-Social/parlance/agent-engine/internal/store"
)

// Guard is the admission-control gate evaluated before any paid call. Both
// checks are read-only; the scheduler's per-agent lock makes the
// check-then-act sequence safe.
type Guard struct {
	store         store.Store
	estimatedCost float64
	countReplies  bool
}

type GuardResult struct {
	CanProceed bool
	Status     string
	Message    string
}

func NewGuard(st store.Store, estimatedCost float64, countReplies bool) *Guard {
	return &Guard{store: st, estimatedCost: estimatedCost, countReplies: countReplies}
}

func (g *Guard) Check(ctx context.Context, agent store.Agent, now time.Time) (GuardResult, error) {
	spent := EffectiveDailySpent(agent, now)
	if spent+g.estimatedCost > agent.DailyBudget {
		err := &BudgetExceededError{Spent: spent, Budget: agent.DailyBudget, Estimated: g.estimatedCost}
		return GuardResult{Status: store.WakeStatusBudgetExceeded, Message: err.Error()}, nil
	}

	count, err := g.store.CountPostsByAgentInLastHour(ctx, agent.ID, g.countReplies)
	if err != nil {
		return GuardResult{}, &StorageError{Op: "counting recent posts", Err: err}
	}
	if agent.MaxPostsPerHour > 0 && count >= agent.MaxPostsPerHour {
		limErr := &RateLimitedError{Count: count, Limit: agent.MaxPostsPerHour}
		return GuardResult{Status: store.WakeStatusRateLimited, Message: limErr.Error()}, nil
	}

	return GuardResult{CanProceed: true}, nil
}

// EffectiveDailySpent applies the rolling 24h budget day: spend anchored to
// a last wake more than 24 hours ago no longer counts against today.
func EffectiveDailySpent(agent store.Agent, now time.Time) float64 {
	if agent.LastWakeTime == nil {
		return 0
	}
	if now.Sub(*agent.LastWakeTime) >= 24*time.Hour {
		return 0
	}
	return agent.DailySpent
}

package wake

import (
	"errors"
	"fmt"
)

// ErrWakeInFlight is returned when a trigger arrives while another cycle for
// the same agent is still running. The rejected attempt writes no log row.
var ErrWakeInFlight = errors.New("a wake cycle is already in flight for this agent")

type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

type BudgetExceededError struct {
	Spent     float64
	Budget    float64
	Estimated float64
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("daily budget exceeded: spent %.4f + estimated %.4f > budget %.4f", e.Spent, e.Estimated, e.Budget)
}

type RateLimitedError struct {
	Count int
	Limit int
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("posting rate limit reached: %d posts in the last hour, limit %d", e.Count, e.Limit)
}

type ProviderError struct {
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("LLM provider failure: %v", e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

type ContentPolicyViolation struct {
	Reason string
}

func (e *ContentPolicyViolation) Error() string {
	return fmt.Sprintf("content policy violation: %s", e.Reason)
}

type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

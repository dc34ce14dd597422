// Package wake implements the wake-cycle engine: the pipeline that takes an
// agent from "eligible to act" through context assembly, an LLM decision,
// policy filtering, action execution, and the audit log.
package wake

import (
	"time"

	"github.com/Parlance-Social/parlance/agent-engine/internal/store"
)

type ActionType string

const (
	ActionPost          ActionType = "post"
	ActionReply         ActionType = "reply"
	ActionUpvote        ActionType = "upvote"
	ActionDownvote      ActionType = "downvote"
	ActionJoinCommunity ActionType = "join_community"
	ActionSkip          ActionType = "skip"
)

// AgentAction is one validated intent from the decision engine. The closed
// set of types is enforced at parse time; executors can switch exhaustively.
type AgentAction struct {
	Type          ActionType `json:"action"`
	Content       string     `json:"content,omitempty"`
	CommunityID   string     `json:"community_id,omitempty"`
	TargetPostID  string     `json:"target_post_id,omitempty"`
	Reasoning     string     `json:"reasoning,omitempty"`
	EstimatedCost float64    `json:"-"`
}

// AgentIntent carries an operator-injected goal into a forced wake.
type AgentIntent struct {
	Prompt string `json:"prompt"`
}

// AgentContext is the bounded snapshot of the world an agent reasons over.
// Every slice is capped by the context builder so prompt size stays bounded.
type AgentContext struct {
	RecentPosts         []store.Post      `json:"recent_posts"`
	UnreadReplies       []store.Post      `json:"unread_replies"`
	Mentions            []store.Post      `json:"mentions"`
	CommunityPosts      []store.Post      `json:"community_posts"`
	FollowedCommunities []store.Community `json:"followed_communities"`
	TrendingTopics      []string          `json:"trending_topics"`
	RecentVotes         []string          `json:"recent_votes"`
	TimeSinceLastPost   string            `json:"time_since_last_post"`
	TodayPostCount      int               `json:"today_post_count"`

	// ReviewedPostIDs are the agent's own posts whose replies were gathered
	// this cycle; their checked markers advance after a successful wake.
	ReviewedPostIDs []string `json:"-"`
}

type DecisionResult struct {
	Actions        []AgentAction
	Cost           float64
	TokensUsed     int
	Latency        time.Duration
	RawResponse    string
	ThoughtProcess string
}

type ActionResult struct {
	Action  AgentAction
	Success bool
	PostID  string
	Error   string
}

type ExecutionSummary struct {
	Results          []ActionResult
	ActionsPerformed int
	ActionTypes      []string
	ActionCost       float64
}

// WakeCycleResult is the value returned to the trigger surface. A failed
// cycle is still a result, never a panic or a bare error past the engine.
type WakeCycleResult struct {
	AgentID          string    `json:"agent_id"`
	WakeTime         time.Time `json:"wake_time"`
	ActionsPerformed int       `json:"actions_performed"`
	TotalCost        float64   `json:"total_cost"`
	TokensUsed       int       `json:"tokens_used"`
	NextWakeTime     time.Time `json:"next_wake_time"`
	Status           string    `json:"status"`
	ErrorMessage     string    `json:"error_message,omitempty"`
	ThoughtProcess   string    `json:"thought_process,omitempty"`
}

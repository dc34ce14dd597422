package store

import (
	"context"
	"time"
)

// Autonomy modes control whether the periodic scheduler may wake an agent.
const (
	AutonomyManual    = "manual"
	AutonomyScheduled = "scheduled"
	AutonomyFull      = "full"
)

// Vote types.
const (
	VoteUp   = "up"
	VoteDown = "down"
)

// Membership statuses.
const (
	MembershipPending  = "pending"
	MembershipApproved = "approved"
	MembershipRejected = "rejected"
)

// Community privacy settings.
const (
	CommunityPublic  = "public"
	CommunityPrivate = "private"
)

// Wake cycle terminal statuses.
const (
	WakeStatusSuccess        = "success"
	WakeStatusBudgetExceeded = "budget_exceeded"
	WakeStatusRateLimited    = "rate_limited"
	WakeStatusError          = "error"
)

type Agent struct {
	ID               string
	UserID           string
	Name             string
	Personality      string
	Traits           []string
	Interests        []string
	Model            string
	Provider         string
	AutonomyMode     string
	MaxPostsPerHour  int
	DailyBudget      float64
	DailySpent       float64
	TotalSpent       float64
	ActiveHoursStart int
	ActiveHoursEnd   int
	IsActive         bool
	LastWakeTime     *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type Post struct {
	ID           string
	AgentID      string
	AgentName    string
	CommunityID  string
	Content      string
	ParentPostID *string
	ThreadID     string
	Depth        int
	Upvotes      int
	Downvotes    int
	ReplyCount   int
	Cost         float64
	CreatedAt    time.Time
}

type Vote struct {
	AgentID   string
	PostID    string
	Type      string
	CreatedAt time.Time
}

type Community struct {
	ID      string
	Name    string
	Privacy string
}

type Membership struct {
	AgentID     string
	CommunityID string
	Status      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type WakeLog struct {
	ID               string
	AgentID          string
	WakeTime         time.Time
	ActionsPerformed int
	ActionTypes      []string
	TotalCost        float64
	TokensUsed       int
	Forced           bool
	Status           string
	ErrorMessage     string
	CreatedAt        time.Time
}

// Store is the narrow persistence port the wake engine runs against. Single
// entity lookups return a nil pointer when the row does not exist; only real
// persistence failures surface as errors.
type Store interface {
	FindAgentByID(ctx context.Context, agentID string) (*Agent, error)
	FindEligibleAgentsForWake(ctx context.Context, autonomyModes []string) ([]Agent, error)
	UpdateAgent(ctx context.Context, agent Agent) error
	GetAgentAPIKey(ctx context.Context, agentID string) (string, error)

	GetRecentPosts(ctx context.Context, excludeAgentID string, limit int) ([]Post, error)
	GetMentionsAndReplies(ctx context.Context, agentID string, limit int) ([]Post, error)
	GetRecentCommunityPosts(ctx context.Context, communityIDs []string, limit int) ([]Post, error)
	FindPostByID(ctx context.Context, postID string) (*Post, error)
	GetLastPostByAgent(ctx context.Context, agentID string) (*Post, error)
	FindPostsToReview(ctx context.Context, agentID string, since time.Time) ([]Post, error)
	GetNewRepliesForPost(ctx context.Context, agentID string, postID string) ([]Post, error)
	MarkPostsAsChecked(ctx context.Context, agentID string, postIDs []string) error
	GetDailyNewPostCount(ctx context.Context, agentID string) (int, error)
	CountPostsByAgentInLastHour(ctx context.Context, agentID string, includeReplies bool) (int, error)
	CreatePost(ctx context.Context, post Post) error
	IncrementReplyCount(ctx context.Context, postID string) error

	GetAgentFollowedCommunities(ctx context.Context, agentID string) ([]Community, error)
	GetCommunityPrivacy(ctx context.Context, communityID string) (string, error)
	GetMembershipStatus(ctx context.Context, agentID string, communityID string) (string, error)
	JoinCommunity(ctx context.Context, agentID string, communityID string, status string) error

	FindVoteByAgentAndPost(ctx context.Context, agentID string, postID string) (*Vote, error)
	CreateVote(ctx context.Context, vote Vote) error
	GetVotesByAgent(ctx context.Context, agentID string, limit int) ([]Vote, error)

	CreateWakeLog(ctx context.Context, log WakeLog) error
	ListWakeLogs(ctx context.Context, agentID string, limit int) ([]WakeLog, error)
}

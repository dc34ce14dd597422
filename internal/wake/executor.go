package wake

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Parlance-Social/parlance/agent-engine/internal/store"
)

// MaxThreadDepth bounds reply nesting; a reply that would land deeper fails.
const MaxThreadDepth = 5

// Executor applies approved actions to storage. Actions run strictly in
// order so a join_community can unlock a post later in the same batch, and
// each action is failure-isolated: one failed action never aborts the rest.
type Executor struct {
	store store.Store
}

func NewExecutor(st store.Store) *Executor {
	return &Executor{store: st}
}

func (e *Executor) Execute(ctx context.Context, agent store.Agent, actions []AgentAction, now time.Time) ExecutionSummary {
	summary := ExecutionSummary{
		Results:     make([]ActionResult, 0, len(actions)),
		ActionTypes: []string{},
	}
	// Memberships approved earlier in this batch unlock later actions
	// without a re-read.
	approvedInBatch := map[string]bool{}

	for _, action := range actions {
		result := e.executeOne(ctx, agent, action, approvedInBatch, now)
		summary.Results = append(summary.Results, result)
		if result.Success && action.Type != ActionSkip {
			summary.ActionsPerformed++
			summary.ActionTypes = append(summary.ActionTypes, string(action.Type))
			summary.ActionCost += action.EstimatedCost
		}
	}
	return summary
}

func (e *Executor) executeOne(ctx context.Context, agent store.Agent, action AgentAction, approvedInBatch map[string]bool, now time.Time) ActionResult {
	result := ActionResult{Action: action}
	var err error

	switch action.Type {
	case ActionSkip:
		result.Success = true
		return result
	case ActionPost:
		result.PostID, err = e.createPost(ctx, agent, action, approvedInBatch, now)
	case ActionReply:
		result.PostID, err = e.createReply(ctx, agent, action, approvedInBatch, now)
	case ActionUpvote:
		err = e.castVote(ctx, agent, action.TargetPostID, store.VoteUp, now)
	case ActionDownvote:
		err = e.castVote(ctx, agent, action.TargetPostID, store.VoteDown, now)
	case ActionJoinCommunity:
		err = e.joinCommunity(ctx, agent, action.CommunityID, approvedInBatch, now)
	default:
		err = fmt.Errorf("unknown action type: %s", action.Type)
	}

	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.Success = true
	return result
}

func (e *Executor) createPost(ctx context.Context, agent store.Agent, action AgentAction, approvedInBatch map[string]bool, now time.Time) (string, error) {
	if action.CommunityID != "" {
		if err := e.requireAuthorship(ctx, agent, action.CommunityID, approvedInBatch, now); err != nil {
			return "", err
		}
	}
	post := store.Post{
		ID:          uuid.New().String(),
		AgentID:     agent.ID,
		AgentName:   agent.Name,
		CommunityID: action.CommunityID,
		Content:     action.Content,
		Cost:        action.EstimatedCost,
		CreatedAt:   now,
	}
	post.ThreadID = post.ID
	if err := e.store.CreatePost(ctx, post); err != nil {
		return "", &StorageError{Op: "creating post", Err: err}
	}
	return post.ID, nil
}

func (e *Executor) createReply(ctx context.Context, agent store.Agent, action AgentAction, approvedInBatch map[string]bool, now time.Time) (string, error) {
	parent, err := e.store.FindPostByID(ctx, action.TargetPostID)
	if err != nil {
		return "", &StorageError{Op: "resolving parent post", Err: err}
	}
	if parent == nil {
		return "", &NotFoundError{Kind: "post", ID: action.TargetPostID}
	}
	depth := parent.Depth + 1
	if depth > MaxThreadDepth {
		return "", fmt.Errorf("reply would exceed maximum discussion depth %d", MaxThreadDepth)
	}
	if parent.CommunityID != "" {
		if err := e.requireAuthorship(ctx, agent, parent.CommunityID, approvedInBatch, now); err != nil {
			return "", err
		}
	}
	parentID := parent.ID
	reply := store.Post{
		ID:           uuid.New().String(),
		AgentID:      agent.ID,
		AgentName:    agent.Name,
		CommunityID:  parent.CommunityID,
		Content:      action.Content,
		ParentPostID: &parentID,
		ThreadID:     parent.ThreadID,
		Depth:        depth,
		Cost:         action.EstimatedCost,
		CreatedAt:    now,
	}
	if err := e.store.CreatePost(ctx, reply); err != nil {
		return "", &StorageError{Op: "creating reply", Err: err}
	}
	if err := e.store.IncrementReplyCount(ctx, parent.ID); err != nil {
		return "", &StorageError{Op: "incrementing reply count", Err: err}
	}
	return reply.ID, nil
}

func (e *Executor) castVote(ctx context.Context, agent store.Agent, postID string, voteType string, now time.Time) error {
	post, err := e.store.FindPostByID(ctx, postID)
	if err != nil {
		return &StorageError{Op: "resolving voted post", Err: err}
	}
	if post == nil {
		return &NotFoundError{Kind: "post", ID: postID}
	}
	existing, err := e.store.FindVoteByAgentAndPost(ctx, agent.ID, postID)
	if err != nil {
		return &StorageError{Op: "checking existing vote", Err: err}
	}
	if existing != nil {
		return fmt.Errorf("already voted on post %s", postID)
	}
	vote := store.Vote{AgentID: agent.ID, PostID: postID, Type: voteType, CreatedAt: now}
	if err := e.store.CreateVote(ctx, vote); err != nil {
		return &StorageError{Op: "creating vote", Err: err}
	}
	return nil
}

func (e *Executor) joinCommunity(ctx context.Context, agent store.Agent, communityID string, approvedInBatch map[string]bool, now time.Time) error {
	privacy, err := e.store.GetCommunityPrivacy(ctx, communityID)
	if err != nil {
		return &StorageError{Op: "resolving community privacy", Err: err}
	}
	if privacy == "" {
		return &NotFoundError{Kind: "community", ID: communityID}
	}
	status := store.MembershipPending
	if privacy == store.CommunityPublic {
		status = store.MembershipApproved
	}
	if err := e.store.JoinCommunity(ctx, agent.ID, communityID, status); err != nil {
		return &StorageError{Op: "joining community", Err: err}
	}
	if status == store.MembershipApproved {
		approvedInBatch[communityID] = true
	}
	return nil
}

// requireAuthorship enforces the platform's authoring policy: a private
// community needs an approved membership before this action; a public one
// gets a lazy approved membership on first authorship.
func (e *Executor) requireAuthorship(ctx context.Context, agent store.Agent, communityID string, approvedInBatch map[string]bool, now time.Time) error {
	if approvedInBatch[communityID] {
		return nil
	}
	privacy, err := e.store.GetCommunityPrivacy(ctx, communityID)
	if err != nil {
		return &StorageError{Op: "resolving community privacy", Err: err}
	}
	if privacy == "" {
		return &NotFoundError{Kind: "community", ID: communityID}
	}
	status, err := e.store.GetMembershipStatus(ctx, agent.ID, communityID)
	if err != nil {
		return &StorageError{Op: "resolving membership", Err: err}
	}
	if status == store.MembershipApproved {
		approvedInBatch[communityID] = true
		return nil
	}
	if privacy == store.CommunityPrivate {
		return &ContentPolicyViolation{Reason: fmt.Sprintf("posting into private community %s requires approved membership", communityID)}
	}
	if err := e.store.JoinCommunity(ctx, agent.ID, communityID, store.MembershipApproved); err != nil {
		return &StorageError{Op: "joining community", Err: err}
	}
	approvedInBatch[communityID] = true
	return nil
}

package wake

import (
	"context"
	"fmt"
	"time"

	"github.com/Parlance-Social/parlance/agent-engine/internal/store"
)

// ContextBuilder assembles the AgentContext snapshot. It performs reads
// only, and each section is failure-isolated: a broken sub-query degrades
// that section to empty instead of aborting the wake.
type ContextBuilder struct {
	store         store.Store
	postLimit     int
	replyLookback time.Duration
}

func NewContextBuilder(st store.Store, postLimit int, replyLookbackDays int) *ContextBuilder {
	if postLimit <= 0 {
		postLimit = 15
	}
	if replyLookbackDays <= 0 {
		replyLookbackDays = 30
	}
	return &ContextBuilder{
		store:         st,
		postLimit:     postLimit,
		replyLookback: time.Duration(replyLookbackDays) * 24 * time.Hour,
	}
}

func (b *ContextBuilder) Build(ctx context.Context, agent store.Agent, now time.Time) AgentContext {
	result := AgentContext{
		RecentPosts:         []store.Post{},
		UnreadReplies:       []store.Post{},
		Mentions:            []store.Post{},
		CommunityPosts:      []store.Post{},
		FollowedCommunities: []store.Community{},
		TrendingTopics:      []string{},
		RecentVotes:         []string{},
	}

	if posts, err := b.store.GetRecentPosts(ctx, agent.ID, b.postLimit); err == nil {
		result.RecentPosts = capPosts(posts, b.postLimit)
	}

	result.UnreadReplies, result.ReviewedPostIDs = b.gatherUnreadReplies(ctx, agent, now)

	if mentions, err := b.store.GetMentionsAndReplies(ctx, agent.ID, b.postLimit); err == nil {
		result.Mentions = capPosts(mentions, b.postLimit)
	}

	if communities, err := b.store.GetAgentFollowedCommunities(ctx, agent.ID); err == nil {
		result.FollowedCommunities = communities
		if len(communities) > 0 {
			ids := make([]string, 0, len(communities))
			for _, community := range communities {
				ids = append(ids, community.ID)
			}
			if posts, err := b.store.GetRecentCommunityPosts(ctx, ids, b.postLimit); err == nil {
				result.CommunityPosts = capPosts(posts, b.postLimit)
			}
		}
	}

	if votes, err := b.store.GetVotesByAgent(ctx, agent.ID, b.postLimit); err == nil {
		for _, vote := range votes {
			result.RecentVotes = append(result.RecentVotes, fmt.Sprintf("%svote on post %s", vote.Type, vote.PostID))
		}
	}

	result.TimeSinceLastPost = b.timeSinceLastPost(ctx, agent, now)

	if count, err := b.store.GetDailyNewPostCount(ctx, agent.ID); err == nil {
		result.TodayPostCount = count
	}

	// Trending topics are not computed yet; the section stays empty so the
	// prompt shape is stable when they land.
	return result
}

func (b *ContextBuilder) gatherUnreadReplies(ctx context.Context, agent store.Agent, now time.Time) ([]store.Post, []string) {
	replies := []store.Post{}
	reviewed := []string{}

	posts, err := b.store.FindPostsToReview(ctx, agent.ID, now.Add(-b.replyLookback))
	if err != nil {
		return replies, reviewed
	}
	for _, post := range posts {
		reviewed = append(reviewed, post.ID)
		if len(replies) >= b.postLimit {
			continue
		}
		newReplies, err := b.store.GetNewRepliesForPost(ctx, agent.ID, post.ID)
		if err != nil {
			continue
		}
		replies = append(replies, newReplies...)
	}
	return capPosts(replies, b.postLimit), reviewed
}

func (b *ContextBuilder) timeSinceLastPost(ctx context.Context, agent store.Agent, now time.Time) string {
	last, err := b.store.GetLastPostByAgent(ctx, agent.ID)
	if err != nil || last == nil {
		return "never"
	}
	return humanizeDuration(now.Sub(last.CreatedAt))
}

func capPosts(posts []store.Post, limit int) []store.Post {
	if len(posts) > limit {
		return posts[:limit]
	}
	return posts
}

func humanizeDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "less than a minute ago"
	case d < time.Hour:
		minutes := int(d.Minutes())
		if minutes == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", minutes)
	case d < 24*time.Hour:
		hours := int(d.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	default:
		days := int(d.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	}
}

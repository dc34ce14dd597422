// Package memory holds an in-process Store used by tests and local mode.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Parlance-Social/parlance/agent-engine/internal/store"
)

type MemoryStore struct {
	mu          sync.RWMutex
	agents      map[string]store.Agent
	apiKeys     map[string]string
	posts       map[string]store.Post
	checkedAt   map[string]time.Time
	votes       map[string]store.Vote
	communities map[string]store.Community
	memberships map[string]store.Membership
	wakeLogs    map[string][]store.WakeLog
}

func New() *MemoryStore {
	return &MemoryStore{
		agents:      map[string]store.Agent{},
		apiKeys:     map[string]string{},
		posts:       map[string]store.Post{},
		checkedAt:   map[string]time.Time{},
		votes:       map[string]store.Vote{},
		communities: map[string]store.Community{},
		memberships: map[string]store.Membership{},
		wakeLogs:    map[string][]store.WakeLog{},
	}
}

// AddAgent, AddCommunity, and SetAgentAPIKey seed fixtures; they exist on the
// concrete type only since the engine never creates these rows itself.
func (m *MemoryStore) AddAgent(agent store.Agent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.agents[agent.ID] = cloneAgent(agent)
}

func (m *MemoryStore) AddCommunity(community store.Community) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.communities[community.ID] = community
}

func (m *MemoryStore) SetAgentAPIKey(agentID string, encrypted string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.apiKeys[agentID] = encrypted
}

func (m *MemoryStore) FindAgentByID(ctx context.Context, agentID string) (*store.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	agent, ok := m.agents[agentID]
	if !ok {
		return nil, nil
	}
	cloned := cloneAgent(agent)
	return &cloned, nil
}

func (m *MemoryStore) FindEligibleAgentsForWake(ctx context.Context, autonomyModes []string) ([]store.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	allowed := map[string]struct{}{}
	for _, mode := range autonomyModes {
		allowed[mode] = struct{}{}
	}
	results := []store.Agent{}
	for _, agent := range m.agents {
		if !agent.IsActive {
			continue
		}
		if _, ok := allowed[agent.AutonomyMode]; !ok {
			continue
		}
		results = append(results, cloneAgent(agent))
	}
	sort.Slice(results, func(i, j int) bool { return results[i].ID < results[j].ID })
	return results, nil
}

func (m *MemoryStore) UpdateAgent(ctx context.Context, agent store.Agent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.agents[agent.ID]; !ok {
		return nil
	}
	m.agents[agent.ID] = cloneAgent(agent)
	return nil
}

func (m *MemoryStore) GetAgentAPIKey(ctx context.Context, agentID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.apiKeys[agentID], nil
}

func (m *MemoryStore) GetRecentPosts(ctx context.Context, excludeAgentID string, limit int) ([]store.Post, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	results := []store.Post{}
	for _, post := range m.posts {
		if post.AgentID == excludeAgentID {
			continue
		}
		results = append(results, clonePost(post))
	}
	return newestFirst(results, limit), nil
}

func (m *MemoryStore) GetMentionsAndReplies(ctx context.Context, agentID string, limit int) ([]store.Post, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mention := ""
	if agent, ok := m.agents[agentID]; ok {
		mention = "@" + strings.ToLower(agent.Name)
	}
	results := []store.Post{}
	for _, post := range m.posts {
		if post.AgentID == agentID {
			continue
		}
		isReply := post.ParentPostID != nil && m.postAuthorLocked(*post.ParentPostID) == agentID
		isMention := mention != "@" && mention != "" && strings.Contains(strings.ToLower(post.Content), mention)
		if isReply || isMention {
			results = append(results, clonePost(post))
		}
	}
	return newestFirst(results, limit), nil
}

func (m *MemoryStore) GetRecentCommunityPosts(ctx context.Context, communityIDs []string, limit int) ([]store.Post, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	wanted := map[string]struct{}{}
	for _, id := range communityIDs {
		wanted[id] = struct{}{}
	}
	results := []store.Post{}
	for _, post := range m.posts {
		if _, ok := wanted[post.CommunityID]; ok {
			results = append(results, clonePost(post))
		}
	}
	return newestFirst(results, limit), nil
}

func (m *MemoryStore) FindPostByID(ctx context.Context, postID string) (*store.Post, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	post, ok := m.posts[postID]
	if !ok {
		return nil, nil
	}
	cloned := clonePost(post)
	return &cloned, nil
}

func (m *MemoryStore) GetLastPostByAgent(ctx context.Context, agentID string) (*store.Post, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var last *store.Post
	for _, post := range m.posts {
		if post.AgentID != agentID {
			continue
		}
		if last == nil || post.CreatedAt.After(last.CreatedAt) {
			cloned := clonePost(post)
			last = &cloned
		}
	}
	return last, nil
}

func (m *MemoryStore) FindPostsToReview(ctx context.Context, agentID string, since time.Time) ([]store.Post, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	results := []store.Post{}
	for _, post := range m.posts {
		if post.AgentID != agentID || post.CreatedAt.Before(since) {
			continue
		}
		results = append(results, clonePost(post))
	}
	return newestFirst(results, 0), nil
}

func (m *MemoryStore) GetNewRepliesForPost(ctx context.Context, agentID string, postID string) ([]store.Post, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	marker := m.checkedAt[postID]
	results := []store.Post{}
	for _, post := range m.posts {
		if post.ParentPostID == nil || *post.ParentPostID != postID {
			continue
		}
		if post.AgentID == agentID {
			continue
		}
		if !marker.IsZero() && !post.CreatedAt.After(marker) {
			continue
		}
		results = append(results, clonePost(post))
	}
	return newestFirst(results, 0), nil
}

func (m *MemoryStore) MarkPostsAsChecked(ctx context.Context, agentID string, postIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	for _, postID := range postIDs {
		if post, ok := m.posts[postID]; ok && post.AgentID == agentID {
			m.checkedAt[postID] = now
		}
	}
	return nil
}

func (m *MemoryStore) GetDailyNewPostCount(ctx context.Context, agentID string) (int, error) {
	return m.countPostsSince(agentID, time.Now().UTC().Add(-24*time.Hour), true), nil
}

func (m *MemoryStore) CountPostsByAgentInLastHour(ctx context.Context, agentID string, includeReplies bool) (int, error) {
	return m.countPostsSince(agentID, time.Now().UTC().Add(-time.Hour), includeReplies), nil
}

func (m *MemoryStore) countPostsSince(agentID string, since time.Time, includeReplies bool) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, post := range m.posts {
		if post.AgentID != agentID || post.CreatedAt.Before(since) {
			continue
		}
		if !includeReplies && post.ParentPostID != nil {
			continue
		}
		count++
	}
	return count
}

func (m *MemoryStore) CreatePost(ctx context.Context, post store.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.posts[post.ID] = clonePost(post)
	return nil
}

func (m *MemoryStore) IncrementReplyCount(ctx context.Context, postID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	post, ok := m.posts[postID]
	if !ok {
		return nil
	}
	post.ReplyCount++
	m.posts[postID] = post
	return nil
}

func (m *MemoryStore) GetAgentFollowedCommunities(ctx context.Context, agentID string) ([]store.Community, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	results := []store.Community{}
	for _, membership := range m.memberships {
		if membership.AgentID != agentID || membership.Status != store.MembershipApproved {
			continue
		}
		if community, ok := m.communities[membership.CommunityID]; ok {
			results = append(results, community)
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].ID < results[j].ID })
	return results, nil
}

func (m *MemoryStore) GetCommunityPrivacy(ctx context.Context, communityID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	community, ok := m.communities[communityID]
	if !ok {
		return "", nil
	}
	return community.Privacy, nil
}

func (m *MemoryStore) GetMembershipStatus(ctx context.Context, agentID string, communityID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	membership, ok := m.memberships[membershipKey(agentID, communityID)]
	if !ok {
		return "", nil
	}
	return membership.Status, nil
}

func (m *MemoryStore) JoinCommunity(ctx context.Context, agentID string, communityID string, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := membershipKey(agentID, communityID)
	now := time.Now().UTC()
	existing, ok := m.memberships[key]
	if !ok {
		m.memberships[key] = store.Membership{
			AgentID:     agentID,
			CommunityID: communityID,
			Status:      status,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		return nil
	}
	existing.Status = status
	existing.UpdatedAt = now
	m.memberships[key] = existing
	return nil
}

func (m *MemoryStore) FindVoteByAgentAndPost(ctx context.Context, agentID string, postID string) (*store.Vote, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	vote, ok := m.votes[membershipKey(agentID, postID)]
	if !ok {
		return nil, nil
	}
	cloned := vote
	return &cloned, nil
}

func (m *MemoryStore) CreateVote(ctx context.Context, vote store.Vote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.votes[membershipKey(vote.AgentID, vote.PostID)] = vote
	if post, ok := m.posts[vote.PostID]; ok {
		if vote.Type == store.VoteUp {
			post.Upvotes++
		} else {
			post.Downvotes++
		}
		m.posts[vote.PostID] = post
	}
	return nil
}

func (m *MemoryStore) GetVotesByAgent(ctx context.Context, agentID string, limit int) ([]store.Vote, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	results := []store.Vote{}
	for _, vote := range m.votes {
		if vote.AgentID == agentID {
			results = append(results, vote)
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].CreatedAt.After(results[j].CreatedAt) })
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (m *MemoryStore) CreateWakeLog(ctx context.Context, entry store.WakeLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cloned := entry
	cloned.ActionTypes = append([]string{}, entry.ActionTypes...)
	m.wakeLogs[entry.AgentID] = append(m.wakeLogs[entry.AgentID], cloned)
	return nil
}

func (m *MemoryStore) ListWakeLogs(ctx context.Context, agentID string, limit int) ([]store.WakeLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := m.wakeLogs[agentID]
	results := make([]store.WakeLog, 0, len(entries))
	for _, entry := range entries {
		cloned := entry
		cloned.ActionTypes = append([]string{}, entry.ActionTypes...)
		results = append(results, cloned)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].WakeTime.After(results[j].WakeTime) })
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (m *MemoryStore) postAuthorLocked(postID string) string {
	post, ok := m.posts[postID]
	if !ok {
		return ""
	}
	return post.AgentID
}

func membershipKey(left string, right string) string {
	return left + "/" + right
}

func newestFirst(posts []store.Post, limit int) []store.Post {
	sort.Slice(posts, func(i, j int) bool {
		if posts[i].CreatedAt.Equal(posts[j].CreatedAt) {
			return posts[i].ID < posts[j].ID
		}
		return posts[i].CreatedAt.After(posts[j].CreatedAt)
	})
	if limit > 0 && len(posts) > limit {
		return posts[:limit]
	}
	return posts
}

func cloneAgent(agent store.Agent) store.Agent {
	cloned := agent
	cloned.Traits = append([]string{}, agent.Traits...)
	cloned.Interests = append([]string{}, agent.Interests...)
	if agent.LastWakeTime != nil {
		lastWake := *agent.LastWakeTime
		cloned.LastWakeTime = &lastWake
	}
	return cloned
}

func clonePost(post store.Post) store.Post {
	cloned := post
	if post.ParentPostID != nil {
		parent := *post.ParentPostID
		cloned.ParentPostID = &parent
	}
	return cloned
}

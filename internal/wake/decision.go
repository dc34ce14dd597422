package wake

import (
	"context"
	"encoding/json"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v4"

	"github.com/Parlance-Social/parlance/agent-engine/internal/llm"
	"github.com/Parlance-Social/parlance/agent-engine/internal/persona"
	"github.com/Parlance-Social/parlance/agent-engine/internal/secrets"
	"github.com/Parlance-Social/parlance/agent-engine/internal/store"
)

const (
	decisionTemperature = 0.8
	decisionMaxTokens   = 1024
	maxLLMRetries       = 2
	contentSnippetChars = 500
)

// Engine owns the single LLM call of a wake cycle: prompt assembly, the
// provider invocation with bounded retries, cost reconciliation, and
// response parsing.
type Engine struct {
	store           store.Store
	providerFactory func(llm.Config) (llm.Provider, error)
	secretsKey      []byte
	baseURL         string
	guidelines      string
}

func NewEngine(st store.Store, secretsKey []byte, baseURL string, guidelines string) *Engine {
	return &Engine{
		store:           st,
		providerFactory: llm.NewProvider,
		secretsKey:      secretsKey,
		baseURL:         baseURL,
		guidelines:      guidelines,
	}
}

// WithProviderFactory overrides how providers are constructed. Tests use it
// to substitute a scripted provider.
func (e *Engine) WithProviderFactory(factory func(llm.Config) (llm.Provider, error)) *Engine {
	e.providerFactory = factory
	return e
}

func (e *Engine) Decide(ctx context.Context, agent store.Agent, agentCtx AgentContext, intent *AgentIntent) (DecisionResult, error) {
	encryptedKey, err := e.store.GetAgentAPIKey(ctx, agent.ID)
	if err != nil {
		return DecisionResult{}, &StorageError{Op: "loading agent API key", Err: err}
	}
	apiKey, err := secrets.DecryptAPIKey(e.secretsKey, encryptedKey)
	if err != nil {
		return DecisionResult{}, &ProviderError{Err: err}
	}

	provider, err := e.providerFactory(llm.Config{
		Provider: agent.Provider,
		APIKey:   apiKey,
		BaseURL:  e.baseURL,
	})
	if err != nil {
		return DecisionResult{}, &ProviderError{Err: err}
	}

	request := llm.Request{
		Model: agent.Model,
		Messages: []llm.Message{
			{Role: "system", Content: persona.SystemPrompt(agent, e.guidelines)},
			{Role: "user", Content: serializeContext(agentCtx, intent)},
		},
		Temperature: decisionTemperature,
		MaxTokens:   decisionMaxTokens,
	}

	start := time.Now()
	response, err := e.completeWithRetry(ctx, provider, request)
	latency := time.Since(start)
	if err != nil {
		return DecisionResult{}, &ProviderError{Err: err}
	}

	cost, err := llm.Cost(agent.Model, response.Usage)
	if err != nil {
		// Unknown model pricing fails closed: without a price we cannot
		// reconcile spend, so the cycle is treated as a provider failure.
		return DecisionResult{}, &ProviderError{Err: err}
	}

	actions, thought := ParseActions(response.Content)
	return DecisionResult{
		Actions:        actions,
		Cost:           cost,
		TokensUsed:     response.Usage.TotalTokens,
		Latency:        latency,
		RawResponse:    response.Content,
		ThoughtProcess: thought,
	}, nil
}

func (e *Engine) completeWithRetry(ctx context.Context, provider llm.Provider, request llm.Request) (llm.Response, error) {
	operation := func() (llm.Response, error) {
		response, err := provider.Complete(ctx, request)
		if err != nil && !llm.IsRetryable(err) {
			return llm.Response{}, backoff.Permanent(err)
		}
		return response, err
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxLLMRetries), ctx)
	return backoff.RetryWithData(operation, policy)
}

type contextPayload struct {
	RecentPosts         []postSummary `json:"recent_posts"`
	UnreadReplies       []postSummary `json:"unread_replies_to_your_posts"`
	Mentions            []postSummary `json:"mentions_and_replies"`
	CommunityPosts      []postSummary `json:"posts_in_your_communities"`
	FollowedCommunities []string      `json:"your_communities"`
	TrendingTopics      []string      `json:"trending_topics"`
	RecentVotes         []string      `json:"your_recent_votes"`
	TimeSinceLastPost   string        `json:"time_since_your_last_post"`
	TodayPostCount      int           `json:"your_posts_today"`
	Intent              string        `json:"your_owner_asked_you_to,omitempty"`
}

type postSummary struct {
	ID          string `json:"id"`
	Agent       string `json:"agent"`
	CommunityID string `json:"community_id,omitempty"`
	Content     string `json:"content"`
	Depth       int    `json:"depth,omitempty"`
	Replies     int    `json:"replies,omitempty"`
	Upvotes     int    `json:"upvotes,omitempty"`
}

func serializeContext(agentCtx AgentContext, intent *AgentIntent) string {
	payload := contextPayload{
		RecentPosts:         summarizePosts(agentCtx.RecentPosts),
		UnreadReplies:       summarizePosts(agentCtx.UnreadReplies),
		Mentions:            summarizePosts(agentCtx.Mentions),
		CommunityPosts:      summarizePosts(agentCtx.CommunityPosts),
		FollowedCommunities: []string{},
		TrendingTopics:      agentCtx.TrendingTopics,
		RecentVotes:         agentCtx.RecentVotes,
		TimeSinceLastPost:   agentCtx.TimeSinceLastPost,
		TodayPostCount:      agentCtx.TodayPostCount,
	}
	for _, community := range agentCtx.FollowedCommunities {
		payload.FollowedCommunities = append(payload.FollowedCommunities, community.Name+" ("+community.ID+")")
	}
	if intent != nil {
		payload.Intent = intent.Prompt
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "{}"
	}
	return string(encoded)
}

func summarizePosts(posts []store.Post) []postSummary {
	summaries := make([]postSummary, 0, len(posts))
	for _, post := range posts {
		summaries = append(summaries, postSummary{
			ID:          post.ID,
			Agent:       post.AgentName,
			CommunityID: post.CommunityID,
			Content:     truncate(post.Content, contentSnippetChars),
			Depth:       post.Depth,
			Replies:     post.ReplyCount,
			Upvotes:     post.Upvotes,
		})
	}
	return summaries
}

// truncate cuts on a rune boundary so a multi-byte character at the limit
// never leaves invalid UTF-8 in the snippet.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}

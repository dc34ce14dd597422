package wake

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Parlance-Social/parlance/agent-engine/internal/events"
	"github.com/Parlance-Social/parlance/agent-engine/internal/llm"
	"github.com/Parlance-Social/parlance/agent-engine/internal/secrets"
	"github.com/Parlance-Social/parlance/agent-engine/internal/store"
	"github.com/Parlance-Social/parlance/agent-engine/internal/store/memory"
)

var testSecretsKey = []byte("0123456789abcdef0123456789abcdef")

func encryptedTestKey(t *testing.T) string {
	t.Helper()
	encrypted, err := secrets.Encrypt(testSecretsKey, "sk-test")
	if err != nil {
		t.Fatalf("encrypting test key: %v", err)
	}
	return encrypted
}

func testAgent(id string) store.Agent {
	return store.Agent{
		ID:              id,
		Name:            "Ada",
		Personality:     "curious systems tinkerer",
		Model:           "gpt-4o-mini",
		Provider:        "openai",
		AutonomyMode:    store.AutonomyScheduled,
		MaxPostsPerHour: 3,
		DailyBudget:     5,
		IsActive:        true,
	}
}

// scriptedProvider returns canned responses in order and records every
// request it sees.
type scriptedProvider struct {
	mu        sync.Mutex
	responses []llm.Response
	errs      []error
	calls     int
	requests  []llm.Request
	block     chan struct{}
}

func (p *scriptedProvider) Complete(ctx context.Context, request llm.Request) (llm.Response, error) {
	p.mu.Lock()
	idx := p.calls
	p.calls++
	p.requests = append(p.requests, request)
	p.mu.Unlock()

	if p.block != nil {
		select {
		case <-p.block:
		case <-ctx.Done():
			return llm.Response{}, ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	var err error
	if idx < len(p.errs) {
		err = p.errs[idx]
	}
	if err != nil {
		return llm.Response{}, err
	}
	if idx < len(p.responses) {
		return p.responses[idx], nil
	}
	if len(p.responses) > 0 {
		return p.responses[len(p.responses)-1], nil
	}
	return llm.Response{}, nil
}

func (p *scriptedProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func decisionResponse(body string, tokens int) llm.Response {
	return llm.Response{
		Content: body,
		Usage:   llm.Usage{PromptTokens: tokens / 2, CompletionTokens: tokens - tokens/2, TotalTokens: tokens},
	}
}

func newTestEngine(st store.Store, provider llm.Provider) *Engine {
	engine := NewEngine(st, testSecretsKey, "", "")
	return engine.WithProviderFactory(func(cfg llm.Config) (llm.Provider, error) {
		return provider, nil
	})
}

func newTestScheduler(st store.Store, provider llm.Provider, broker *events.Broker) *Scheduler {
	return NewScheduler(
		st,
		NewGuard(st, 0.25, true),
		NewContextBuilder(st, 15, 30),
		newTestEngine(st, provider),
		NewContentFilter(4000, nil),
		NewExecutor(st),
		NewLogWriter(st),
		broker,
		SchedulerConfig{WakeTimeout: 5 * time.Second, NextWakeInterval: 30 * time.Minute, SweepConcurrency: 4},
	)
}

func seedWakeFixture(t *testing.T, agent store.Agent) *memory.MemoryStore {
	t.Helper()
	st := memory.New()
	st.AddAgent(agent)
	st.SetAgentAPIKey(agent.ID, encryptedTestKey(t))
	return st
}

// stubStore lets a test fail exactly one storage path; everything not
// overridden behaves as empty-but-healthy.
type stubStore struct {
	store.Store
	countPostsFn    func(ctx context.Context, agentID string, includeReplies bool) (int, error)
	recentPostsFn   func(ctx context.Context, excludeAgentID string, limit int) ([]store.Post, error)
	findAgentFn     func(ctx context.Context, agentID string) (*store.Agent, error)
	createWakeLogFn func(ctx context.Context, entry store.WakeLog) error
}

func newStubStore() *stubStore {
	return &stubStore{Store: memory.New()}
}

func (s *stubStore) CountPostsByAgentInLastHour(ctx context.Context, agentID string, includeReplies bool) (int, error) {
	if s.countPostsFn != nil {
		return s.countPostsFn(ctx, agentID, includeReplies)
	}
	return s.Store.CountPostsByAgentInLastHour(ctx, agentID, includeReplies)
}

func (s *stubStore) GetRecentPosts(ctx context.Context, excludeAgentID string, limit int) ([]store.Post, error) {
	if s.recentPostsFn != nil {
		return s.recentPostsFn(ctx, excludeAgentID, limit)
	}
	return s.Store.GetRecentPosts(ctx, excludeAgentID, limit)
}

func (s *stubStore) FindAgentByID(ctx context.Context, agentID string) (*store.Agent, error) {
	if s.findAgentFn != nil {
		return s.findAgentFn(ctx, agentID)
	}
	return s.Store.FindAgentByID(ctx, agentID)
}

func (s *stubStore) CreateWakeLog(ctx context.Context, entry store.WakeLog) error {
	if s.createWakeLogFn != nil {
		return s.createWakeLogFn(ctx, entry)
	}
	return s.Store.CreateWakeLog(ctx, entry)
}

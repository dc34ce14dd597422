package wake

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/Parlance-Social/parlance/agent-engine/internal/llm"
)

const decisionBody = `{"actions":[{"action":"post","content":"thinking about schedulers","reasoning":"on topic"}],"thought_process":"a good day to post"}`

func TestEngine_Decide(t *testing.T) {
	agent := testAgent("a1")
	st := seedWakeFixture(t, agent)
	provider := &scriptedProvider{responses: []llm.Response{decisionResponse(decisionBody, 1000)}}
	engine := newTestEngine(st, provider)

	result, err := engine.Decide(context.Background(), agent, AgentContext{}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Actions) != 1 || result.Actions[0].Type != ActionPost {
		t.Fatalf("unexpected actions: %+v", result.Actions)
	}
	if result.ThoughtProcess != "a good day to post" {
		t.Fatalf("thought = %q", result.ThoughtProcess)
	}
	if result.TokensUsed != 1000 {
		t.Fatalf("TokensUsed = %d, want 1000", result.TokensUsed)
	}
	if result.Cost <= 0 {
		t.Fatalf("Cost = %v, want > 0", result.Cost)
	}
	if result.RawResponse != decisionBody {
		t.Fatalf("raw response not preserved")
	}
}

func TestEngine_PromptCarriesPersonaAndIntent(t *testing.T) {
	agent := testAgent("a1")
	st := seedWakeFixture(t, agent)
	provider := &scriptedProvider{responses: []llm.Response{decisionResponse(decisionBody, 100)}}
	engine := newTestEngine(st, provider)

	_, err := engine.Decide(context.Background(), agent, AgentContext{}, &AgentIntent{Prompt: "welcome the newcomers"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	request := provider.requests[0]
	if len(request.Messages) != 2 {
		t.Fatalf("expected system + user messages, got %d", len(request.Messages))
	}
	if !strings.Contains(request.Messages[0].Content, agent.Name) {
		t.Fatal("system prompt should carry the agent name")
	}
	if !strings.Contains(request.Messages[1].Content, "welcome the newcomers") {
		t.Fatal("intent should be injected into the user message")
	}
	if request.Model != "gpt-4o-mini" {
		t.Fatalf("model = %q", request.Model)
	}
}

func TestEngine_MalformedResponseDegradesToSkip(t *testing.T) {
	agent := testAgent("a1")
	st := seedWakeFixture(t, agent)
	provider := &scriptedProvider{responses: []llm.Response{decisionResponse("total nonsense", 50)}}
	engine := newTestEngine(st, provider)

	result, err := engine.Decide(context.Background(), agent, AgentContext{}, nil)
	if err != nil {
		t.Fatalf("parse failures must not error: %v", err)
	}
	if len(result.Actions) != 1 || result.Actions[0].Type != ActionSkip {
		t.Fatalf("expected single skip, got %+v", result.Actions)
	}
	if result.ThoughtProcess != "total nonsense" {
		t.Fatalf("raw text should become the thought, got %q", result.ThoughtProcess)
	}
}

func TestEngine_RetriesRetryableFailures(t *testing.T) {
	agent := testAgent("a1")
	st := seedWakeFixture(t, agent)
	provider := &scriptedProvider{
		errs:      []error{&llm.HTTPError{StatusCode: 500, Status: "500 Internal Server Error"}, nil},
		responses: []llm.Response{{}, decisionResponse(decisionBody, 100)},
	}
	engine := newTestEngine(st, provider)

	result, err := engine.Decide(context.Background(), agent, AgentContext{}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if provider.callCount() != 2 {
		t.Fatalf("calls = %d, want 2", provider.callCount())
	}
	if len(result.Actions) != 1 {
		t.Fatalf("unexpected actions: %+v", result.Actions)
	}
}

func TestEngine_NoRetryOnClientError(t *testing.T) {
	agent := testAgent("a1")
	st := seedWakeFixture(t, agent)
	provider := &scriptedProvider{
		errs: []error{&llm.HTTPError{StatusCode: 401, Status: "401 Unauthorized"}},
	}
	engine := newTestEngine(st, provider)

	_, err := engine.Decide(context.Background(), agent, AgentContext{}, nil)
	var providerErr *ProviderError
	if !errors.As(err, &providerErr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if provider.callCount() != 1 {
		t.Fatalf("calls = %d, want 1", provider.callCount())
	}
}

func TestEngine_GivesUpAfterBoundedRetries(t *testing.T) {
	agent := testAgent("a1")
	st := seedWakeFixture(t, agent)
	serverErr := &llm.HTTPError{StatusCode: 503, Status: "503 Service Unavailable"}
	provider := &scriptedProvider{errs: []error{serverErr, serverErr, serverErr, serverErr}}
	engine := newTestEngine(st, provider)

	_, err := engine.Decide(context.Background(), agent, AgentContext{}, nil)
	if err == nil {
		t.Fatal("expected failure after retries")
	}
	if provider.callCount() != maxLLMRetries+1 {
		t.Fatalf("calls = %d, want %d", provider.callCount(), maxLLMRetries+1)
	}
}

func TestEngine_MissingAPIKey(t *testing.T) {
	agent := testAgent("a1")
	st := seedWakeFixture(t, agent)
	st.SetAgentAPIKey(agent.ID, "")
	engine := newTestEngine(st, &scriptedProvider{})

	_, err := engine.Decide(context.Background(), agent, AgentContext{}, nil)
	var providerErr *ProviderError
	if !errors.As(err, &providerErr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if !strings.Contains(err.Error(), "no API key") {
		t.Fatalf("error = %v", err)
	}
}

func TestEngine_UnknownModelFailsClosed(t *testing.T) {
	agent := testAgent("a1")
	agent.Model = "totally-new-model"
	st := seedWakeFixture(t, agent)
	provider := &scriptedProvider{responses: []llm.Response{decisionResponse(decisionBody, 100)}}
	engine := newTestEngine(st, provider)

	_, err := engine.Decide(context.Background(), agent, AgentContext{}, nil)
	var providerErr *ProviderError
	if !errors.As(err, &providerErr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	var pricing llm.ErrUnknownModelPricing
	if !errors.As(err, &pricing) {
		t.Fatalf("expected unknown pricing cause, got %v", err)
	}
}

func TestTruncate_KeepsRuneBoundaries(t *testing.T) {
	long := strings.Repeat("世", contentSnippetChars) // 3 bytes per rune
	got := truncate(long, contentSnippetChars)
	if !utf8.ValidString(got) {
		t.Fatalf("truncated snippet is not valid UTF-8")
	}
	if !strings.HasSuffix(got, "…") {
		t.Fatalf("expected ellipsis suffix, got %q", got)
	}
	if len(got) > contentSnippetChars+len("…") {
		t.Fatalf("snippet length %d exceeds limit", len(got))
	}
	if short := truncate("short", contentSnippetChars); short != "short" {
		t.Fatalf("short string altered: %q", short)
	}
}

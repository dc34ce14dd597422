package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewOpenAIProvider_DefaultBaseURL(t *testing.T) {
	provider := NewOpenAIProvider(OpenAIConfig{APIKey: "test-api-key"})
	if provider.baseURL != "https://api.openai.com/v1" {
		t.Errorf("expected default baseURL, got %s", provider.baseURL)
	}
	if provider.client == nil {
		t.Error("expected client to not be nil")
	}
}

func TestNewOpenAIProvider_TrimTrailingSlash(t *testing.T) {
	provider := NewOpenAIProvider(OpenAIConfig{APIKey: "test-api-key", BaseURL: "https://api.openai.com/v1/"})
	if provider.baseURL != "https://api.openai.com/v1" {
		t.Errorf("expected baseURL to have trailing slash trimmed, got %s", provider.baseURL)
	}
}

func TestOpenAIProvider_Complete_MissingKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("server should not be called when API key is missing")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	provider := NewOpenAIProvider(OpenAIConfig{APIKey: "", BaseURL: server.URL})
	_, err := provider.Complete(context.Background(), Request{Model: "gpt-4o"})
	if !errors.Is(err, ErrMissingCredentials) {
		t.Fatalf("expected ErrMissingCredentials, got %v", err)
	}
}

func TestOpenAIProvider_Complete_MissingModel(t *testing.T) {
	provider := NewOpenAIProvider(OpenAIConfig{APIKey: "test-api-key"})
	_, err := provider.Complete(context.Background(), Request{})
	if err == nil {
		t.Fatal("expected error for missing model, got nil")
	}
	if err.Error() != "missing model for remote provider" {
		t.Errorf("expected specific error message, got: %s", err.Error())
	}
}

func TestOpenAIProvider_Complete_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST method, got %s", r.Method)
		}
		if r.URL.Path != "/chat/completions" {
			t.Errorf("expected path '/chat/completions', got %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-api-key" {
			t.Errorf("expected Authorization header 'Bearer test-api-key', got %s", auth)
		}

		var reqBody map[string]any
		if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
			t.Fatalf("failed to decode request body: %v", err)
		}
		if reqBody["model"] != "gpt-4o-mini" {
			t.Errorf("expected model 'gpt-4o-mini', got %v", reqBody["model"])
		}
		if reqBody["temperature"] != 0.8 {
			t.Errorf("expected temperature 0.8, got %v", reqBody["temperature"])
		}

		response := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": `{"actions":[]}`}},
			},
			"usage": map[string]any{
				"prompt_tokens":     120,
				"completion_tokens": 30,
				"total_tokens":      150,
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	}))
	defer server.Close()

	provider := NewOpenAIProvider(OpenAIConfig{APIKey: "test-api-key", BaseURL: server.URL})
	resp, err := provider.Complete(context.Background(), Request{
		Model:       "gpt-4o-mini",
		Messages:    []Message{{Role: "system", Content: "persona"}, {Role: "user", Content: "context"}},
		Temperature: 0.8,
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if resp.Content != `{"actions":[]}` {
		t.Errorf("unexpected content: %s", resp.Content)
	}
	if resp.Usage.PromptTokens != 120 || resp.Usage.CompletionTokens != 30 || resp.Usage.TotalTokens != 150 {
		t.Errorf("unexpected usage: %+v", resp.Usage)
	}
}

func TestOpenAIProvider_Complete_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error": "rate limited"}`))
	}))
	defer server.Close()

	provider := NewOpenAIProvider(OpenAIConfig{APIKey: "test-api-key", BaseURL: server.URL})
	_, err := provider.Complete(context.Background(), Request{Model: "gpt-4o"})
	if err == nil {
		t.Fatal("expected error for HTTP error, got nil")
	}
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected *HTTPError, got %T", err)
	}
	if httpErr.StatusCode != http.StatusTooManyRequests {
		t.Errorf("expected status 429, got %d", httpErr.StatusCode)
	}
	if !IsRetryable(err) {
		t.Error("429 should be retryable")
	}
}

func TestOpenAIProvider_Complete_InvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{invalid json`))
	}))
	defer server.Close()

	provider := NewOpenAIProvider(OpenAIConfig{APIKey: "test-api-key", BaseURL: server.URL})
	_, err := provider.Complete(context.Background(), Request{Model: "gpt-4o"})
	if err == nil {
		t.Fatal("expected error for invalid JSON, got nil")
	}
}

func TestOpenAIProvider_Complete_EmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"choices": []map[string]any{}})
	}))
	defer server.Close()

	provider := NewOpenAIProvider(OpenAIConfig{APIKey: "test-api-key", BaseURL: server.URL})
	_, err := provider.Complete(context.Background(), Request{Model: "gpt-4o"})
	if err == nil {
		t.Fatal("expected error for empty choices, got nil")
	}
	if err.Error() != "LLM response had no choices" {
		t.Errorf("expected 'LLM response had no choices', got: %s", err.Error())
	}
}

func TestOpenAIProvider_Complete_EmptyContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "   "}},
			},
		})
	}))
	defer server.Close()

	provider := NewOpenAIProvider(OpenAIConfig{APIKey: "test-api-key", BaseURL: server.URL})
	_, err := provider.Complete(context.Background(), Request{Model: "gpt-4o"})
	if err == nil {
		t.Fatal("expected error for empty content, got nil")
	}
	if err.Error() != "LLM response was empty" {
		t.Errorf("expected 'LLM response was empty', got: %s", err.Error())
	}
}

func TestOpenAIProvider_Complete_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	provider := NewOpenAIProvider(OpenAIConfig{APIKey: "test-api-key", BaseURL: server.URL})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := provider.Complete(ctx, Request{Model: "gpt-4o"})
	if err == nil {
		t.Fatal("expected error for cancelled context, got nil")
	}
}

func TestOpenAIProvider_Complete_NetworkError(t *testing.T) {
	provider := NewOpenAIProvider(OpenAIConfig{APIKey: "test-api-key", BaseURL: "http://localhost:1"})
	_, err := provider.Complete(context.Background(), Request{Model: "gpt-4o"})
	if err == nil {
		t.Fatal("expected error for network failure, got nil")
	}
	if !IsRetryable(err) {
		t.Error("network failures should be retryable")
	}
}

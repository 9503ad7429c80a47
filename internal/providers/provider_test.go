package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/x402-labs/inference-gateway/internal/catalog"
	"github.com/x402-labs/inference-gateway/internal/utils"
)

func testSetup(t *testing.T) (*utils.ConfigManager, *utils.LogsManager) {
	t.Helper()

	cm := utils.NewConfigManager("")
	logger := utils.NewLogsManager(cm)
	t.Cleanup(func() { logger.Close() })
	return cm, logger
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"abcd", 1},
		{"abcde", 2},
		{"12345678", 2},
	}

	for _, tt := range tests {
		if got := EstimateTokens(tt.in); got != tt.want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestIsQuotaError(t *testing.T) {
	tests := []struct {
		status  int
		message string
		want    bool
	}{
		{429, "anything", true},
		{400, "You exceeded your current quota", true},
		{403, "Rate limit reached for requests", true},
		{400, "insufficient_quota", true},
		{400, "RESOURCE_EXHAUSTED", true},
		{529, "Overloaded", true},
		{400, "invalid request body", false},
		{401, "invalid api key", false},
	}

	for _, tt := range tests {
		if got := isQuotaError(tt.status, tt.message); got != tt.want {
			t.Errorf("isQuotaError(%d, %q) = %v, want %v", tt.status, tt.message, got, tt.want)
		}
	}
}

func TestOpenAIComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("authorization header = %q", got)
		}
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"hello there"}}],"usage":{"prompt_tokens":12,"completion_tokens":3}}`)
	}))
	t.Cleanup(server.Close)

	cm, _ := testSetup(t)
	cm.SetConfig("openai_api_key", "test-key")
	cm.SetConfig("openai_base_url", server.URL)

	provider := NewOpenAIProvider(cm, &http.Client{Timeout: 5 * time.Second})

	output, usage, err := provider.Complete(context.Background(), "say hello", "gpt-4.1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if output != "hello there" {
		t.Errorf("output = %q", output)
	}
	if usage.InputTokens != 12 || usage.OutputTokens != 3 {
		t.Errorf("usage = %+v", usage)
	}
}

func TestOpenAIQuotaError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"message":"You exceeded your current quota","type":"insufficient_quota","code":"insufficient_quota"}}`)
	}))
	t.Cleanup(server.Close)

	cm, _ := testSetup(t)
	cm.SetConfig("openai_api_key", "test-key")
	cm.SetConfig("openai_base_url", server.URL)

	provider := NewOpenAIProvider(cm, &http.Client{Timeout: 5 * time.Second})

	_, _, err := provider.Complete(context.Background(), "say hello", "gpt-4.1")
	if !errors.Is(err, ErrProviderQuota) {
		t.Fatalf("expected ErrProviderQuota, got %v", err)
	}
}

func TestOpenAIUnconfigured(t *testing.T) {
	cm, _ := testSetup(t)
	cm.SetConfig("openai_api_key", "")
	t.Setenv("OPENAI_API_KEY", "")

	provider := NewOpenAIProvider(cm, http.DefaultClient)

	_, _, err := provider.Complete(context.Background(), "say hello", "gpt-4.1")
	if !errors.Is(err, ErrProviderUnconfigured) {
		t.Fatalf("expected ErrProviderUnconfigured, got %v", err)
	}
}

func TestAnthropicComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("x-api-key"); got != "test-key" {
			t.Errorf("x-api-key header = %q", got)
		}
		if got := r.Header.Get("anthropic-version"); got != anthropicAPIVersion {
			t.Errorf("anthropic-version header = %q", got)
		}
		fmt.Fprint(w, `{"content":[{"type":"text","text":"hi from claude"}],"usage":{"input_tokens":9,"output_tokens":4}}`)
	}))
	t.Cleanup(server.Close)

	cm, _ := testSetup(t)
	cm.SetConfig("anthropic_api_key", "test-key")
	cm.SetConfig("anthropic_base_url", server.URL)

	provider := NewAnthropicProvider(cm, &http.Client{Timeout: 5 * time.Second})

	output, usage, err := provider.Complete(context.Background(), "say hi", "claude-3.5-sonnet")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if output != "hi from claude" {
		t.Errorf("output = %q", output)
	}
	if usage.InputTokens != 9 || usage.OutputTokens != 4 {
		t.Errorf("usage = %+v", usage)
	}
}

func TestGoogleComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1beta/models/gemini-2.5-flash-lite:generateContent" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("key"); got != "test-key" {
			t.Errorf("key query param = %q", got)
		}
		fmt.Fprint(w, `{"candidates":[{"content":{"parts":[{"text":"gemini says hi"}]}}],"usageMetadata":{"promptTokenCount":7,"candidatesTokenCount":5}}`)
	}))
	t.Cleanup(server.Close)

	cm, _ := testSetup(t)
	cm.SetConfig("google_api_key", "test-key")
	cm.SetConfig("google_base_url", server.URL)

	provider := NewGoogleProvider(cm, &http.Client{Timeout: 5 * time.Second})

	output, usage, err := provider.Complete(context.Background(), "say hi", "gemini-2.5-flash-lite")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if output != "gemini says hi" {
		t.Errorf("output = %q", output)
	}
	if usage.InputTokens != 7 || usage.OutputTokens != 5 {
		t.Errorf("usage = %+v", usage)
	}
}

func TestGoogleQuotaError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"code":429,"message":"Quota exceeded","status":"RESOURCE_EXHAUSTED"}}`)
	}))
	t.Cleanup(server.Close)

	cm, _ := testSetup(t)
	cm.SetConfig("google_api_key", "test-key")
	cm.SetConfig("google_base_url", server.URL)

	provider := NewGoogleProvider(cm, &http.Client{Timeout: 5 * time.Second})

	_, _, err := provider.Complete(context.Background(), "say hi", "gemini-2.5-flash-lite")
	if !errors.Is(err, ErrProviderQuota) {
		t.Fatalf("expected ErrProviderQuota, got %v", err)
	}
}

func TestUsageFallbackEstimation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// No usage block in the response
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"12345678"}}]}`)
	}))
	t.Cleanup(server.Close)

	cm, _ := testSetup(t)
	cm.SetConfig("openai_api_key", "test-key")
	cm.SetConfig("openai_base_url", server.URL)

	provider := NewOpenAIProvider(cm, &http.Client{Timeout: 5 * time.Second})

	_, usage, err := provider.Complete(context.Background(), "12345", "gpt-4.1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if usage.InputTokens != 2 { // ceil(5/4)
		t.Errorf("input tokens = %d, want 2", usage.InputTokens)
	}
	if usage.OutputTokens != 2 { // ceil(8/4)
		t.Errorf("output tokens = %d, want 2", usage.OutputTokens)
	}
}

type fakeProvider struct {
	output string
	err    error
}

func (f *fakeProvider) Complete(ctx context.Context, prompt string, modelID string) (string, Usage, error) {
	if f.err != nil {
		return "", Usage{}, f.err
	}
	return f.output, Usage{InputTokens: 1, OutputTokens: 1}, nil
}

func TestRouterDispatch(t *testing.T) {
	cm, logger := testSetup(t)
	router := NewRouter(cm, logger)
	router.Register(catalog.ProviderGoogle, &fakeProvider{output: "routed"})

	model := catalog.Model{ID: "gemini-2.5-flash-lite", Provider: catalog.ProviderGoogle, PriceUSD: 0.045}
	output, _, err := router.Complete(context.Background(), "hi", model)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if output != "routed" {
		t.Errorf("output = %q", output)
	}

	_, _, err = router.Complete(context.Background(), "hi", catalog.Model{ID: "x", Provider: "acme"})
	if !errors.Is(err, ErrProvider) {
		t.Fatalf("expected ErrProvider for unknown backend, got %v", err)
	}
}

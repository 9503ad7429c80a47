// Package providers routes verified requests to interchangeable LLM
// completion backends. Provider-specific request/response quirks stay behind
// the Provider interface; the registry maps catalog provider tags to
// instances.
package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/x402-labs/inference-gateway/internal/catalog"
	"github.com/x402-labs/inference-gateway/internal/utils"
)

var (
	ErrProviderUnconfigured = errors.New("provider credential not configured")
	ErrProviderQuota        = errors.New("provider quota or rate limit exceeded")
	ErrProvider             = errors.New("provider request failed")
)

// Usage is normalized token accounting for one completion
type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
}

// Provider is one completion backend
type Provider interface {
	// Complete sends the prompt to the backend for the given model and
	// returns the output text with usage accounting
	Complete(ctx context.Context, prompt string, modelID string) (string, Usage, error)
}

// Router dispatches requests to the backend selected by the model's provider
// tag
type Router struct {
	logger   *utils.LogsManager
	backends map[catalog.Provider]Provider
}

// NewRouter creates a router with all supported backends registered
func NewRouter(config *utils.ConfigManager, logger *utils.LogsManager) *Router {
	httpClient := &http.Client{
		Timeout: config.GetConfigDuration("provider_timeout", 120*time.Second),
	}

	return &Router{
		logger: logger,
		backends: map[catalog.Provider]Provider{
			catalog.ProviderOpenAI:     NewOpenAIProvider(config, httpClient),
			catalog.ProviderAnthropic:  NewAnthropicProvider(config, httpClient),
			catalog.ProviderGoogle:     NewGoogleProvider(config, httpClient),
			catalog.ProviderPerplexity: NewPerplexityProvider(config, httpClient),
		},
	}
}

// Register replaces the backend for a provider tag. Used by tests.
func (r *Router) Register(tag catalog.Provider, p Provider) {
	r.backends[tag] = p
}

// Complete routes the prompt to the model's backend
func (r *Router) Complete(ctx context.Context, prompt string, model catalog.Model) (string, Usage, error) {
	backend, ok := r.backends[model.Provider]
	if !ok {
		return "", Usage{}, fmt.Errorf("%w: no backend for provider %q", ErrProvider, model.Provider)
	}

	output, usage, err := backend.Complete(ctx, prompt, model.ID)
	if err != nil {
		r.logger.Error(fmt.Sprintf("Provider %s failed for model %s: %v", model.Provider, model.ID, err), "providers")
		return "", Usage{}, err
	}

	r.logger.Info(fmt.Sprintf("Completion via %s model=%s in=%d out=%d tokens",
		model.Provider, model.ID, usage.InputTokens, usage.OutputTokens), "providers")
	return output, usage, nil
}

// EstimateTokens approximates token usage from character length when the
// provider does not report it: ceil(length / 4). Explicitly approximate,
// never billing-grade.
func EstimateTokens(s string) int {
	return (len(s) + 3) / 4
}

// isQuotaError pattern-matches quota/rate-limit conditions in upstream error
// bodies
func isQuotaError(statusCode int, message string) bool {
	if statusCode == http.StatusTooManyRequests {
		return true
	}

	m := strings.ToLower(message)
	for _, marker := range []string{
		"quota",
		"rate limit",
		"rate_limit",
		"resource_exhausted",
		"too many requests",
		"overloaded",
	} {
		if strings.Contains(m, marker) {
			return true
		}
	}
	return false
}

// postJSON sends a JSON request and returns the raw response body along with
// the status code
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body interface{}) (int, []byte, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to marshal request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %v", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response: %v", err)
	}

	return resp.StatusCode, respBody, nil
}

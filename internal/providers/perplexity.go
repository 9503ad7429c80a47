package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/x402-labs/inference-gateway/internal/utils"
)

// PerplexityProvider talks to the Perplexity API, which mirrors the OpenAI
// chat completions wire format on its own host
type PerplexityProvider struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewPerplexityProvider(config *utils.ConfigManager, client *http.Client) *PerplexityProvider {
	return &PerplexityProvider{
		apiKey:  config.GetConfigWithDefault("perplexity_api_key", ""),
		baseURL: strings.TrimSuffix(config.GetConfigWithDefault("perplexity_base_url", "https://api.perplexity.ai"), "/"),
		client:  client,
	}
}

func (p *PerplexityProvider) Complete(ctx context.Context, prompt string, modelID string) (string, Usage, error) {
	if p.apiKey == "" {
		return "", Usage{}, fmt.Errorf("%w: perplexity_api_key is empty", ErrProviderUnconfigured)
	}

	status, body, err := postJSON(ctx, p.client, p.baseURL+"/chat/completions",
		map[string]string{"Authorization": "Bearer " + p.apiKey},
		openAIRequest{
			Model:    modelID,
			Messages: []openAIMessage{{Role: "user", Content: prompt}},
		})
	if err != nil {
		return "", Usage{}, fmt.Errorf("%w: %v", ErrProvider, err)
	}

	var parsed openAIResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", Usage{}, fmt.Errorf("%w: invalid response (HTTP %d)", ErrProvider, status)
	}

	if status != http.StatusOK || parsed.Error != nil {
		message := string(body)
		if parsed.Error != nil {
			message = parsed.Error.Message
		}
		if isQuotaError(status, message) {
			return "", Usage{}, fmt.Errorf("%w: %s", ErrProviderQuota, message)
		}
		return "", Usage{}, fmt.Errorf("%w: HTTP %d: %s", ErrProvider, status, message)
	}

	if len(parsed.Choices) == 0 {
		return "", Usage{}, fmt.Errorf("%w: response contained no choices", ErrProvider)
	}

	output := parsed.Choices[0].Message.Content
	usage := Usage{
		InputTokens:  parsed.Usage.PromptTokens,
		OutputTokens: parsed.Usage.CompletionTokens,
	}
	if usage.InputTokens == 0 {
		usage.InputTokens = EstimateTokens(prompt)
	}
	if usage.OutputTokens == 0 {
		usage.OutputTokens = EstimateTokens(output)
	}
	return output, usage, nil
}

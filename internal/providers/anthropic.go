package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/x402-labs/inference-gateway/internal/utils"
)

const anthropicAPIVersion = "2023-06-01"

// AnthropicProvider talks to the Anthropic messages API
type AnthropicProvider struct {
	apiKey    string
	baseURL   string
	maxTokens int
	client    *http.Client
}

func NewAnthropicProvider(config *utils.ConfigManager, client *http.Client) *AnthropicProvider {
	return &AnthropicProvider{
		apiKey:    config.GetConfigWithDefault("anthropic_api_key", ""),
		baseURL:   strings.TrimSuffix(config.GetConfigWithDefault("anthropic_base_url", "https://api.anthropic.com"), "/"),
		maxTokens: config.GetConfigInt("anthropic_max_tokens", 4096, 1, 200000),
		client:    client,
	}
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (p *AnthropicProvider) Complete(ctx context.Context, prompt string, modelID string) (string, Usage, error) {
	if p.apiKey == "" {
		return "", Usage{}, fmt.Errorf("%w: anthropic_api_key is empty", ErrProviderUnconfigured)
	}

	status, body, err := postJSON(ctx, p.client, p.baseURL+"/v1/messages",
		map[string]string{
			"x-api-key":         p.apiKey,
			"anthropic-version": anthropicAPIVersion,
		},
		anthropicRequest{
			Model:     modelID,
			MaxTokens: p.maxTokens,
			Messages:  []anthropicMessage{{Role: "user", Content: prompt}},
		})
	if err != nil {
		return "", Usage{}, fmt.Errorf("%w: %v", ErrProvider, err)
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", Usage{}, fmt.Errorf("%w: invalid response (HTTP %d)", ErrProvider, status)
	}

	if status != http.StatusOK || parsed.Error != nil {
		message := string(body)
		errType := ""
		if parsed.Error != nil {
			message = parsed.Error.Message
			errType = parsed.Error.Type
		}
		if isQuotaError(status, message+" "+errType) {
			return "", Usage{}, fmt.Errorf("%w: %s", ErrProviderQuota, message)
		}
		return "", Usage{}, fmt.Errorf("%w: HTTP %d: %s", ErrProvider, status, message)
	}

	var output strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			output.WriteString(block.Text)
		}
	}
	if output.Len() == 0 {
		return "", Usage{}, fmt.Errorf("%w: response contained no text blocks", ErrProvider)
	}

	usage := Usage{
		InputTokens:  parsed.Usage.InputTokens,
		OutputTokens: parsed.Usage.OutputTokens,
	}
	if usage.InputTokens == 0 {
		usage.InputTokens = EstimateTokens(prompt)
	}
	if usage.OutputTokens == 0 {
		usage.OutputTokens = EstimateTokens(output.String())
	}
	return output.String(), usage, nil
}

package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/x402-labs/inference-gateway/internal/utils"
)

// OpenAIProvider talks to the OpenAI chat completions API
type OpenAIProvider struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewOpenAIProvider(config *utils.ConfigManager, client *http.Client) *OpenAIProvider {
	return &OpenAIProvider{
		apiKey:  config.GetConfigWithDefault("openai_api_key", ""),
		baseURL: strings.TrimSuffix(config.GetConfigWithDefault("openai_base_url", "https://api.openai.com"), "/"),
		client:  client,
	}
}

type openAIRequest struct {
	Model    string          `json:"model"`
	Messages []openAIMessage `json:"messages"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Choices []struct {
		Message openAIMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

func (p *OpenAIProvider) Complete(ctx context.Context, prompt string, modelID string) (string, Usage, error) {
	if p.apiKey == "" {
		return "", Usage{}, fmt.Errorf("%w: openai_api_key is empty", ErrProviderUnconfigured)
	}

	status, body, err := postJSON(ctx, p.client, p.baseURL+"/v1/chat/completions",
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
		errType := ""
		if parsed.Error != nil {
			message = parsed.Error.Message
			errType = parsed.Error.Type + " " + parsed.Error.Code
		}
		if isQuotaError(status, message+" "+errType) {
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

package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/x402-labs/inference-gateway/internal/utils"
)

// GoogleProvider talks to the Gemini generateContent API
type GoogleProvider struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewGoogleProvider(config *utils.ConfigManager, client *http.Client) *GoogleProvider {
	return &GoogleProvider{
		apiKey:  config.GetConfigWithDefault("google_api_key", ""),
		baseURL: strings.TrimSuffix(config.GetConfigWithDefault("google_base_url", "https://generativelanguage.googleapis.com"), "/"),
		client:  client,
	}
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func (p *GoogleProvider) Complete(ctx context.Context, prompt string, modelID string) (string, Usage, error) {
	if p.apiKey == "" {
		return "", Usage{}, fmt.Errorf("%w: google_api_key is empty", ErrProviderUnconfigured)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		p.baseURL, modelID, url.QueryEscape(p.apiKey))

	status, body, err := postJSON(ctx, p.client, endpoint, nil,
		geminiRequest{
			Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
		})
	if err != nil {
		return "", Usage{}, fmt.Errorf("%w: %v", ErrProvider, err)
	}

	var parsed geminiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", Usage{}, fmt.Errorf("%w: invalid response (HTTP %d)", ErrProvider, status)
	}

	if status != http.StatusOK || parsed.Error != nil {
		message := string(body)
		errStatus := ""
		if parsed.Error != nil {
			message = parsed.Error.Message
			errStatus = parsed.Error.Status
		}
		if isQuotaError(status, message+" "+errStatus) {
			return "", Usage{}, fmt.Errorf("%w: %s", ErrProviderQuota, message)
		}
		return "", Usage{}, fmt.Errorf("%w: HTTP %d: %s", ErrProvider, status, message)
	}

	if len(parsed.Candidates) == 0 {
		return "", Usage{}, fmt.Errorf("%w: response contained no candidates", ErrProvider)
	}

	var output strings.Builder
	for _, part := range parsed.Candidates[0].Content.Parts {
		output.WriteString(part.Text)
	}

	usage := Usage{
		InputTokens:  parsed.UsageMetadata.PromptTokenCount,
		OutputTokens: parsed.UsageMetadata.CandidatesTokenCount,
	}
	if usage.InputTokens == 0 {
		usage.InputTokens = EstimateTokens(prompt)
	}
	if usage.OutputTokens == 0 {
		usage.OutputTokens = EstimateTokens(output.String())
	}
	return output.String(), usage, nil
}

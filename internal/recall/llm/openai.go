package llm

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

	"github.com/HrishitaRaj/smriti-ai/common/retry"
	"github.com/HrishitaRaj/smriti-ai/common/trace"
)

// DefaultBaseURL is OpenRouter, which serves the default model.
const DefaultBaseURL = "https://openrouter.ai/api/v1"

// DefaultModel is used when neither the config nor the request names one.
const DefaultModel = "mistralai/mistral-7b-instruct"

const maxResponseBytes = 4 << 20

// OpenAIConfig configures the OpenAI-compatible adapter.
type OpenAIConfig struct {
	APIKey string
	// BaseURL defaults to DefaultBaseURL.
	BaseURL string
	// Model defaults to DefaultModel.
	Model string
	// Timeout per HTTP request. Defaults to 120s.
	Timeout time.Duration
	// Retry controls retries of rate-limited and 5xx answers. Zero value
	// means retry.DefaultConfig.
	Retry retry.Config
}

type openAIProvider struct {
	cfg    OpenAIConfig
	client *http.Client
}

// NewOpenAI returns a Provider backed by an OpenAI-compatible API. An empty
// APIKey is allowed for local servers such as Ollama.
func NewOpenAI(cfg OpenAIConfig) Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultConfig
	}
	return &openAIProvider{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

type oaiRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
}

type oaiResponse struct {
	Choices []struct {
		Message struct {
			Role    string  `json:"role"`
			Content *string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Complete sends a chat completion request, retrying transient failures.
func (p *openAIProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	body := oaiRequest{
		Model:     req.Model,
		Messages:  req.Messages,
		MaxTokens: req.MaxTokens,
	}
	if body.Model == "" {
		body.Model = p.cfg.Model
	}
	if req.Temperature > 0 {
		t := req.Temperature
		body.Temperature = &t
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("llm: marshal request: %w", err)
	}

	var out *CompletionResponse
	err = retry.Do(ctx, p.cfg.Retry, func() error {
		var callErr error
		out, callErr = p.call(ctx, data)
		var apiErr *APIError
		if errors.As(callErr, &apiErr) && !apiErr.Temporary() {
			return retry.Permanent(callErr)
		}
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (p *openAIProvider) call(ctx context.Context, data []byte) (*CompletionResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("llm: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}
	if traceID := trace.FromContext(ctx); traceID != "" {
		httpReq.Header.Set("X-Trace-ID", traceID)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("llm: http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("llm: read response: %w", err)
	}

	var oaiResp oaiResponse
	jsonErr := json.Unmarshal(respBody, &oaiResp)
	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
		if jsonErr == nil && oaiResp.Error != nil {
			apiErr.Type = oaiResp.Error.Type
			apiErr.Message = oaiResp.Error.Message
		}
		return nil, apiErr
	}
	if jsonErr != nil {
		return nil, fmt.Errorf("llm: decode response: %w", jsonErr)
	}
	if oaiResp.Error != nil {
		return nil, &APIError{StatusCode: resp.StatusCode, Type: oaiResp.Error.Type, Message: oaiResp.Error.Message}
	}
	if len(oaiResp.Choices) == 0 {
		return nil, fmt.Errorf("llm: no choices in response (status %d)", resp.StatusCode)
	}

	choice := oaiResp.Choices[0]
	out := &CompletionResponse{
		FinishReason: choice.FinishReason,
		Usage: TokenUsage{
			PromptTokens:     oaiResp.Usage.PromptTokens,
			CompletionTokens: oaiResp.Usage.CompletionTokens,
			TotalTokens:      oaiResp.Usage.TotalTokens,
		},
	}
	if choice.Message.Content != nil {
		out.Content = strings.TrimSpace(*choice.Message.Content)
	}
	return out, nil
}

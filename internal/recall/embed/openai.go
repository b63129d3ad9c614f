package embed

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
)

const (
	defaultOpenAIBase  = "https://api.openai.com/v1"
	defaultOpenAIModel = "text-embedding-3-small"
	defaultTimeout     = 30 * time.Second
	maxResponseBytes   = 8 << 20
)

// OpenAIConfig configures the OpenAI-compatible embeddings client.
type OpenAIConfig struct {
	APIKey string
	// BaseURL defaults to https://api.openai.com/v1.
	BaseURL string
	// Model defaults to text-embedding-3-small.
	Model   string
	Timeout time.Duration
	Retry   retry.Config
}

// OpenAI calls the /embeddings endpoint. It is safe for concurrent use.
type OpenAI struct {
	cfg    OpenAIConfig
	client *http.Client
}

// NewOpenAI returns an embedder for cfg.
func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultOpenAIBase
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = defaultOpenAIModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultConfig
	}
	return &OpenAI{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

type embeddingRequest struct {
	Input string `json:"input"`
	Model string `json:"model"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// errClient marks answers that retrying cannot fix.
var errClient = errors.New("client error")

// Embed returns the vector for text. Empty text yields nil.
func (e *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	data, err := json.Marshal(embeddingRequest{Input: text, Model: e.cfg.Model})
	if err != nil {
		return nil, fmt.Errorf("embed openai: marshal request: %w", err)
	}

	var vec []float32
	err = retry.Do(ctx, e.cfg.Retry, func() error {
		var callErr error
		vec, callErr = e.call(ctx, data)
		if errors.Is(callErr, errClient) {
			return retry.Permanent(callErr)
		}
		return callErr
	})
	return vec, err
}

func (e *OpenAI) call(ctx context.Context, data []byte) ([]float32, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.BaseURL+"/embeddings", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("embed openai: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed openai: http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("embed openai: read response: %w", err)
	}

	var out embeddingResponse
	jsonErr := json.Unmarshal(body, &out)
	if resp.StatusCode >= 400 {
		msg := strings.TrimSpace(string(body))
		if jsonErr == nil && out.Error != nil {
			msg = out.Error.Message
		}
		if resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode < 500 {
			return nil, fmt.Errorf("embed openai: status %d: %s: %w", resp.StatusCode, msg, errClient)
		}
		return nil, fmt.Errorf("embed openai: status %d: %s", resp.StatusCode, msg)
	}
	if jsonErr != nil {
		return nil, fmt.Errorf("embed openai: decode response: %w", jsonErr)
	}
	if out.Error != nil {
		return nil, fmt.Errorf("embed openai: %s: %s", out.Error.Type, out.Error.Message)
	}
	if len(out.Data) == 0 || len(out.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("embed openai: no embedding data returned")
	}
	return out.Data[0].Embedding, nil
}

var _ Embedder = (*OpenAI)(nil)

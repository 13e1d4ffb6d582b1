package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ryandam9/gemma-chatd/internal/prompt"
)

const completionsPath = "/v1/completions"

// Config holds completion client configuration.
type Config struct {
	// BaseURL of an OpenAI-compatible completion server (llama.cpp,
	// vLLM, an Ollama gateway, ...). The /v1/completions path is
	// appended.
	BaseURL string

	// Model identifier passed through to the server.
	Model string

	// MaxTokens caps the generated continuation length.
	MaxTokens int

	// Temperature for sampling; zero omits the field.
	Temperature float64

	// APIKey is sent as a bearer token when set.
	APIKey string

	// Timeout bounds the whole HTTP exchange. Generation can take
	// seconds, so this defaults generously.
	Timeout time.Duration
}

// Client calls an OpenAI-compatible text completion endpoint. It sends
// the rendered prompt verbatim and stops generation at the end-of-turn
// marker.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient creates a completion client.
func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 2048
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")

	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

type completionRequest struct {
	Model       string   `json:"model"`
	Prompt      string   `json:"prompt"`
	MaxTokens   int      `json:"max_tokens"`
	Temperature float64  `json:"temperature,omitempty"`
	Stop        []string `json:"stop,omitempty"`
	Stream      bool     `json:"stream"`
}

type completionResponse struct {
	Choices []struct {
		Text         string `json:"text"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// Generate implements Generator. It returns the raw generated text
// from the first choice; prompt-echo handling is left to the caller.
func (c *Client) Generate(ctx context.Context, promptText string) (string, error) {
	reqBody, err := json.Marshal(completionRequest{
		Model:       c.cfg.Model,
		Prompt:      promptText,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
		Stop:        []string{strings.TrimSuffix(prompt.EndTurn, "\n")},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal completion request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+completionsPath, bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("completion request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("completion API error: status %d: %s", resp.StatusCode, string(body))
	}

	var cr completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", fmt.Errorf("failed to decode completion response: %w", err)
	}
	if len(cr.Choices) == 0 {
		return "", fmt.Errorf("completion response contained no choices")
	}

	return cr.Choices[0].Text, nil
}

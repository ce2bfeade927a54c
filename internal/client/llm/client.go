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
)

// ErrEmptyCompletion is returned when the API answers without choices
var ErrEmptyCompletion = errors.New("completion returned no choices")

// Completer produces a reply for one user message
type Completer interface {
	Complete(ctx context.Context, req *Request) (string, error)
}

// Request is one completion call made on behalf of a tenant
type Request struct {
	APIKey       string
	Model        string
	SystemPrompt string
	UserMessage  string
}

// ChatMessage is one message of the conversation sent to the API
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model     string        `json:"model"`
	Messages  []ChatMessage `json:"messages"`
	MaxTokens *int          `json:"max_tokens,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message ChatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Client calls an OpenAI-compatible chat completion endpoint
type Client struct {
	baseURL      string
	defaultModel string
	maxTokens    int
	httpClient   *http.Client
}

// NewClient creates a new completion client
func NewClient(baseURL, defaultModel string, maxTokens int, timeout time.Duration) *Client {
	return &Client{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		defaultModel: defaultModel,
		maxTokens:    maxTokens,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Complete sends the system prompt and user message and returns the first choice
func (c *Client) Complete(ctx context.Context, req *Request) (string, error) {
	model := req.Model
	if model == "" {
		model = c.defaultModel
	}
	payload := chatCompletionRequest{Model: model}
	if req.SystemPrompt != "" {
		payload.Messages = append(payload.Messages, ChatMessage{Role: "system", Content: req.SystemPrompt})
	}
	payload.Messages = append(payload.Messages, ChatMessage{Role: "user", Content: req.UserMessage})
	if c.maxTokens > 0 {
		payload.MaxTokens = &c.maxTokens
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+req.APIKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("completion request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	var out chatCompletionResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("completion returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out.Error != nil {
		return "", fmt.Errorf("completion error (status %d): %s", resp.StatusCode, out.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("completion returned status %d", resp.StatusCode)
	}
	if len(out.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

package botapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/prohmpiriya/botfleet/internal/bot"
)

var (
	// ErrUnauthorized is returned when the API rejects the bot credential
	ErrUnauthorized = errors.New("bot credential rejected")
	// ErrEmptyCredential is returned by Dial for an empty token
	ErrEmptyCredential = errors.New("bot credential is empty")
)

// Config holds settings shared by every bot client
type Config struct {
	BaseURL        string
	RequestTimeout time.Duration
	PollTimeout    time.Duration
	SendRate       float64
	SendBurst      int
}

// User is the bot identity returned by getMe
type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	Username  string `json:"username"`
}

// APIError is a non-ok reply from the Bot API
type APIError struct {
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bot api error %d: %s", e.Code, e.Description)
}

type envelope struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
}

// Client talks to a Bot-API-compatible HTTP endpoint for one credential
type Client struct {
	baseURL     string
	token       string
	httpClient  *http.Client
	limiter     *rate.Limiter
	pollTimeout time.Duration
	retryDelay  time.Duration
	me          *User
}

// New creates a client without contacting the API
func New(cfg Config, token string) *Client {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.PollTimeout < 0 {
		cfg.PollTimeout = 0
	}
	limit := rate.Inf
	if cfg.SendRate > 0 {
		limit = rate.Limit(cfg.SendRate)
	}
	burst := cfg.SendBurst
	if burst <= 0 {
		burst = 1
	}
	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			// long polls must outlive the server-side wait
			Timeout: cfg.RequestTimeout + cfg.PollTimeout,
		},
		limiter:     rate.NewLimiter(limit, burst),
		pollTimeout: cfg.PollTimeout,
		retryDelay:  time.Second,
	}
}

// Dial creates a client and verifies the credential with getMe
func Dial(ctx context.Context, cfg Config, token string) (*Client, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrEmptyCredential
	}
	c := New(cfg, token)
	me, err := c.GetMe(ctx)
	if err != nil {
		return nil, err
	}
	c.me = me
	return c, nil
}

// Me returns the identity captured by Dial, if any
func (c *Client) Me() *User {
	return c.me
}

func (c *Client) call(ctx context.Context, method string, payload interface{}, out interface{}) error {
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			return fmt.Errorf("failed to encode %s request: %w", method, err)
		}
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("failed to decode %s response (status %d): %w", method, resp.StatusCode, err)
	}
	if !env.OK {
		if resp.StatusCode == http.StatusUnauthorized || env.ErrorCode == http.StatusUnauthorized {
			return fmt.Errorf("%w: %s", ErrUnauthorized, env.Description)
		}
		return &APIError{Code: env.ErrorCode, Description: env.Description}
	}
	if out != nil && len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return fmt.Errorf("failed to decode %s result: %w", method, err)
		}
	}
	return nil
}

// GetMe returns the bot identity for the credential
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	var me User
	if err := c.call(ctx, "getMe", nil, &me); err != nil {
		return nil, err
	}
	return &me, nil
}

type inlineKeyboard struct {
	InlineKeyboard [][]bot.Button `json:"inline_keyboard"`
}

type sendMessageRequest struct {
	ChatID      string          `json:"chat_id"`
	Text        string          `json:"text"`
	ReplyMarkup *inlineKeyboard `json:"reply_markup,omitempty"`
}

// SendMessage sends text to a chat, throttled by the per-client limiter
func (c *Client) SendMessage(ctx context.Context, chatID, text string, kb *bot.Keyboard) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	req := sendMessageRequest{ChatID: chatID, Text: text}
	if kb != nil && len(kb.Rows) > 0 {
		req.ReplyMarkup = &inlineKeyboard{InlineKeyboard: kb.Rows}
	}
	return c.call(ctx, "sendMessage", req, nil)
}

type answerCallbackRequest struct {
	CallbackQueryID string `json:"callback_query_id"`
	Text            string `json:"text,omitempty"`
}

// AnswerCallback acknowledges a button press
func (c *Client) AnswerCallback(ctx context.Context, callbackID, text string) error {
	return c.call(ctx, "answerCallbackQuery", answerCallbackRequest{CallbackQueryID: callbackID, Text: text}, nil)
}

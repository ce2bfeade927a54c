package messaging

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

// ErrGateway is returned when the gateway replies with an error body
var ErrGateway = errors.New("messaging gateway error")

// Response is the normalized gateway reply. Non-JSON bodies become
// {Error: true, Text: body}.
type Response struct {
	Success bool            `json:"success"`
	Error   bool            `json:"error"`
	Message string          `json:"message,omitempty"`
	Text    string          `json:"text,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Status  int             `json:"-"`
}

// Failed reports whether the reply describes a failure
func (r *Response) Failed() bool {
	return r.Error || r.Status >= http.StatusBadRequest
}

func (r *Response) reason() string {
	switch {
	case r.Message != "":
		return r.Message
	case r.Text != "":
		return r.Text
	default:
		return http.StatusText(r.Status)
	}
}

// Instance is a linked messaging account provisioned on the gateway
type Instance struct {
	ID    string `json:"instance_id"`
	Token string `json:"token"`
	Name  string `json:"name"`
}

// Gateway is the subset of the messaging gateway the bots use
type Gateway interface {
	CreateInstance(ctx context.Context, name string) (*Instance, error)
	Connect(ctx context.Context, token string) (string, error)
	Status(ctx context.Context, token string) (bool, error)
	Disconnect(ctx context.Context, token string) error
}

// Client is an HTTP client for the messaging gateway
type Client struct {
	baseURL    string
	adminToken string
	httpClient *http.Client
}

// NewClient creates a new gateway client
func NewClient(baseURL, adminToken string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		adminToken: adminToken,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type auth func(*http.Request)

func (c *Client) admin() auth {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+c.adminToken) }
}

func instance(token string) auth {
	return func(r *http.Request) { r.Header.Set("token", token) }
}

// do sends a request and normalizes the reply
func (c *Client) do(ctx context.Context, method, path string, payload interface{}, authorize auth) (*Response, error) {
	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("messaging gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read gateway response: %w", err)
	}
	return parseResponse(resp.StatusCode, raw), nil
}

func parseResponse(status int, raw []byte) *Response {
	out := &Response{Status: status}
	if err := json.Unmarshal(raw, out); err != nil {
		return &Response{Error: true, Text: strings.TrimSpace(string(raw)), Status: status}
	}
	if out.Data == nil {
		out.Data = json.RawMessage(raw)
	}
	return out
}

func (c *Client) expect(ctx context.Context, method, path string, payload interface{}, authorize auth, out interface{}) error {
	resp, err := c.do(ctx, method, path, payload, authorize)
	if err != nil {
		return err
	}
	if resp.Failed() {
		return fmt.Errorf("%w: %s", ErrGateway, resp.reason())
	}
	if out != nil {
		if err := json.Unmarshal(resp.Data, out); err != nil {
			return fmt.Errorf("failed to decode gateway data: %w", err)
		}
	}
	return nil
}

// CreateInstance provisions a new linked account
func (c *Client) CreateInstance(ctx context.Context, name string) (*Instance, error) {
	var inst Instance
	if err := c.expect(ctx, http.MethodPost, "/instance/init", map[string]string{"name": name}, c.admin(), &inst); err != nil {
		return nil, err
	}
	if inst.Token == "" {
		return nil, fmt.Errorf("%w: instance created without token", ErrGateway)
	}
	if inst.Name == "" {
		inst.Name = name
	}
	return &inst, nil
}

// Connect starts pairing and returns the QR code payload
func (c *Client) Connect(ctx context.Context, token string) (string, error) {
	var out struct {
		QRCode   string `json:"qrcode"`
		Instance struct {
			QRCode string `json:"qrcode"`
		} `json:"instance"`
	}
	if err := c.expect(ctx, http.MethodPost, "/instance/connect", map[string]string{}, instance(token), &out); err != nil {
		return "", err
	}
	if out.QRCode == "" {
		out.QRCode = out.Instance.QRCode
	}
	if out.QRCode == "" {
		return "", fmt.Errorf("%w: no qr code in response", ErrGateway)
	}
	return out.QRCode, nil
}

// Status reports whether the linked account is connected
func (c *Client) Status(ctx context.Context, token string) (bool, error) {
	var out struct {
		Connected bool `json:"connected"`
		Status    struct {
			Connected bool `json:"connected"`
		} `json:"status"`
	}
	if err := c.expect(ctx, http.MethodGet, "/instance/status", nil, instance(token), &out); err != nil {
		return false, err
	}
	return out.Connected || out.Status.Connected, nil
}

// Disconnect logs the linked account out
func (c *Client) Disconnect(ctx context.Context, token string) error {
	return c.expect(ctx, http.MethodPost, "/instance/disconnect", nil, instance(token), nil)
}

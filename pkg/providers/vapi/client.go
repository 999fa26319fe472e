package vapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/harunnryd/voxa/pkg/errorsx"
	"github.com/harunnryd/voxa/pkg/providers"
)

const DefaultBaseURL = "https://api.vapi.ai"

type Config struct {
	APIKey     string
	PublicKey  string
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client is the hosted voice-agent platform API. It intentionally exposes no
// delete or release operations.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
	log     *slog.Logger
}

func New(cfg Config, log *slog.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errorsx.NotConfigured("providers.vapi")
	}
	if log == nil {
		log = slog.Default()
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{apiKey: cfg.APIKey, baseURL: base, http: hc, log: log}, nil
}

func (c *Client) ListPhoneNumbers(ctx context.Context) ([]PhoneNumber, error) {
	var out []PhoneNumber
	err := c.do(ctx, "list_phone_numbers", http.MethodGet, "/phone-number", nil, &out)
	return out, err
}

func (c *Client) ListAssistants(ctx context.Context) ([]Assistant, error) {
	var out []Assistant
	err := c.do(ctx, "list_assistants", http.MethodGet, "/assistant", nil, &out)
	return out, err
}

// GetAssistant returns a NotFoundError when the assistant no longer exists.
func (c *Client) GetAssistant(ctx context.Context, id string) (*Assistant, error) {
	var out Assistant
	if err := c.do(ctx, "get_assistant", http.MethodGet, "/assistant/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateAssistant(ctx context.Context, a Assistant) (*Assistant, error) {
	a.ID = ""
	var out Assistant
	if err := c.do(ctx, "create_assistant", http.MethodPost, "/assistant", a, &out); err != nil {
		return nil, err
	}
	c.log.Info("vapi_assistant_created", slog.String("assistant_id", out.ID), slog.String("name", a.Name))
	return &out, nil
}

func (c *Client) CreateCall(ctx context.Context, req CallRequest) (*Call, error) {
	customer := map[string]any{}
	for k, v := range req.Customer.Extra {
		customer[k] = v
	}
	customer["number"] = req.Customer.Number
	if req.Customer.Name != "" {
		customer["name"] = req.Customer.Name
	}
	payload := map[string]any{
		"assistantId":   req.AssistantID,
		"phoneNumberId": req.PhoneNumberID,
		"customer":      customer,
	}
	var out Call
	if err := c.do(ctx, "create_call", http.MethodPost, "/call", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return providers.TransportError("vapi", op, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return providers.StatusError("vapi", op, resp.StatusCode, vapiMessage(data))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errorsx.Transient("vapi", op, resp.StatusCode, err)
	}
	return nil
}

// vapiMessage prefers the API's message field over the raw body.
func vapiMessage(body []byte) string {
	var payload struct {
		Message any `json:"message"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Message != nil {
		switch m := payload.Message.(type) {
		case string:
			return m
		case []any:
			parts := make([]string, 0, len(m))
			for _, p := range m {
				if s, ok := p.(string); ok {
					parts = append(parts, s)
				}
			}
			return strings.Join(parts, "; ")
		}
	}
	return string(body)
}

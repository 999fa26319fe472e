package nlu

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/harunnryd/voxa/pkg/errorsx"
	"github.com/harunnryd/voxa/pkg/providers"
)

type Config struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client talks to the external NLU engine.
type Client struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
}

func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errorsx.NotConfigured("providers.nlu")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{baseURL: base, timeout: timeout, http: hc}, nil
}

type ProcessRequest struct {
	Text     string         `json:"text"`
	Language string         `json:"language"`
	AgentID  string         `json:"agent_id"`
	CallID   string         `json:"call_id"`
	Context  map[string]any `json:"context,omitempty"`
}

type ProcessResponse struct {
	Response      string         `json:"response"`
	Intent        string         `json:"intent"`
	Entities      map[string]any `json:"entities"`
	Sentiment     string         `json:"sentiment"`
	Confidence    float64        `json:"confidence"`
	Context       map[string]any `json:"context"`
	ShouldEndCall bool           `json:"should_end_call"`
}

// Process asks the engine for a reply. Every call is bounded by the client timeout.
func (c *Client) Process(ctx context.Context, req ProcessRequest) (ProcessResponse, error) {
	var out ProcessResponse
	err := c.post(ctx, "process", "/process", req, &out)
	return out, err
}

func (c *Client) DetectLanguage(ctx context.Context, text string) (string, error) {
	var out struct {
		Language string `json:"language"`
	}
	if err := c.post(ctx, "detect_language", "/detect-language", map[string]string{"text": text}, &out); err != nil {
		return "", err
	}
	return out.Language, nil
}

func (c *Client) Translate(ctx context.Context, text, from, to string) (string, error) {
	var out struct {
		TranslatedText string `json:"translated_text"`
	}
	err := c.post(ctx, "translate", "/translate", map[string]string{
		"text":          text,
		"from_language": from,
		"to_language":   to,
	}, &out)
	if err != nil {
		return "", err
	}
	return out.TranslatedText, nil
}

func (c *Client) post(ctx context.Context, op, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return providers.TransportError("nlu", op, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return providers.StatusError("nlu", op, resp.StatusCode, string(data))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errorsx.Transient("nlu", op, resp.StatusCode, err)
	}
	return nil
}

// Package mock provides offline stand-ins for the language-model and
// speech-synthesis providers, selected with provider: mock.
package mock

import (
	"context"
	"sync"

	"github.com/harunnryd/voxa/pkg/llm"
)

type LLMConfig struct {
	ResponseText string
	// Responses are returned in order before falling back to ResponseText.
	Responses []string
	Err       error
}

// Completer is a scripted llm.Completer that records every request.
type Completer struct {
	cfg      LLMConfig
	mu       sync.Mutex
	requests []llm.Request
}

func NewCompleter(cfg LLMConfig) *Completer {
	if cfg.ResponseText == "" {
		cfg.ResponseText = "mock response"
	}
	return &Completer{cfg: cfg}
}

func (c *Completer) Name() string { return "mock_llm" }

func (c *Completer) Complete(_ context.Context, req llm.Request) (llm.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
	if c.cfg.Err != nil {
		return llm.Response{}, c.cfg.Err
	}
	text := c.cfg.ResponseText
	if len(c.cfg.Responses) > 0 {
		text = c.cfg.Responses[0]
		c.cfg.Responses = c.cfg.Responses[1:]
	}
	return llm.Response{Text: text, Model: "mock", FinishReason: "stop"}, nil
}

func (c *Completer) Requests() []llm.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]llm.Request(nil), c.requests...)
}

package openai

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/harunnryd/voxa/pkg/errorsx"
	"github.com/harunnryd/voxa/pkg/llm"
	"github.com/harunnryd/voxa/pkg/providers"
	openai "github.com/sashabaranov/go-openai"
)

const DefaultModel = "gpt-4o-mini"

type Config struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// Completer implements llm.Completer on the chat completions API.
type Completer struct {
	client *openai.Client
	model  string
}

func New(cfg Config) (*Completer, error) {
	if cfg.APIKey == "" {
		return nil, errorsx.NotConfigured("providers.llm.openai")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	clientCfg.HTTPClient = &http.Client{Timeout: timeout}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	return &Completer{client: openai.NewClientWithConfig(clientCfg), model: model}, nil
}

func (c *Completer) Name() string { return "openai" }

func (c *Completer) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	msgs := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	for _, m := range req.Messages {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content})
	}
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    msgs,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return llm.Response{}, wrapError(err)
	}
	if len(resp.Choices) == 0 {
		return llm.Response{}, errorsx.Transient("openai", "complete", 0, errors.New("no choices"))
	}
	return llm.Response{
		Text:         resp.Choices[0].Message.Content,
		Model:        resp.Model,
		FinishReason: string(resp.Choices[0].FinishReason),
		Usage: llm.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

func wrapError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return providers.StatusError("openai", "complete", apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return providers.StatusError("openai", "complete", reqErr.HTTPStatusCode, reqErr.Error())
	}
	return providers.TransportError("openai", "complete", err)
}

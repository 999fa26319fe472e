package anthropic

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/harunnryd/voxa/pkg/errorsx"
	"github.com/harunnryd/voxa/pkg/llm"
	"github.com/harunnryd/voxa/pkg/providers"
)

const DefaultModel = "claude-3-5-haiku-latest"

type Config struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// Completer implements llm.Completer on the Messages API. Retries are left to
// llm.RetryCompleter so the SDK's own retry loop is disabled.
type Completer struct {
	client anthropic.Client
	model  string
}

func New(cfg Config) (*Completer, error) {
	if cfg.APIKey == "" {
		return nil, errorsx.NotConfigured("providers.llm.anthropic")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(timeout),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	return &Completer{client: anthropic.NewClient(opts...), model: model}, nil
}

func (c *Completer) Name() string { return "anthropic" }

func (c *Completer) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 256
	}
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(model),
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(float64(req.Temperature)),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	for _, m := range req.Messages {
		switch m.Role {
		case llm.RoleAssistant:
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		case llm.RoleSystem:
			params.System = append(params.System, anthropic.TextBlockParam{Text: m.Content})
		default:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return llm.Response{}, providers.StatusError("anthropic", "complete", apiErr.StatusCode, apiErr.Error())
		}
		return llm.Response{}, providers.TransportError("anthropic", "complete", err)
	}
	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	in, out := int(msg.Usage.InputTokens), int(msg.Usage.OutputTokens)
	return llm.Response{
		Text:         text.String(),
		Model:        string(msg.Model),
		FinishReason: string(msg.StopReason),
		Usage:        llm.Usage{PromptTokens: in, CompletionTokens: out, TotalTokens: in + out},
	}, nil
}

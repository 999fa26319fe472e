// Package nlu turns a caller utterance plus call context into the agent's reply.
// Providers are tried in a fixed order until one succeeds; the last attempt never fails.
package nlu

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/harunnryd/voxa/pkg/conversation"
	"github.com/harunnryd/voxa/pkg/domain"
	"github.com/harunnryd/voxa/pkg/errorsx"
	"github.com/harunnryd/voxa/pkg/llm"
	"github.com/harunnryd/voxa/pkg/metrics"
	nluclient "github.com/harunnryd/voxa/pkg/providers/nlu"
	"github.com/harunnryd/voxa/pkg/redact"
)

const (
	AttemptExternal      = "external"
	AttemptLanguageModel = "language_model"
	AttemptCanned        = "canned"

	DefaultExternalTimeout = 3 * time.Second
	DefaultTemperature     = 0.7
	DefaultMaxTokens       = 150

	cannedConfidence = 0.1
	apologyLine      = "I apologize, I'm having trouble understanding. Could you please rephrase that?"
)

// Engine is the external language-understanding service.
type Engine interface {
	Process(ctx context.Context, req nluclient.ProcessRequest) (nluclient.ProcessResponse, error)
	DetectLanguage(ctx context.Context, text string) (string, error)
	Translate(ctx context.Context, text, from, to string) (string, error)
}

type Request struct {
	CallID   string
	Text     string
	Language string
	Agent    domain.AgentConfig
	Context  *conversation.CallContext
}

type Result struct {
	Response       string         `json:"response"`
	Intent         string         `json:"intent"`
	Entities       map[string]any `json:"entities,omitempty"`
	Sentiment      string         `json:"sentiment"`
	SentimentScore float64        `json:"sentiment_score"`
	Confidence     float64        `json:"confidence"`
	Context        map[string]any `json:"context,omitempty"`
	ShouldEndCall  bool           `json:"should_end_call"`
	Source         string         `json:"source"`
}

// Attempt is one step of the chain. A returned error hands over to the next attempt.
type Attempt struct {
	Name string
	Run  func(ctx context.Context, req Request) (Result, error)
}

type Options struct {
	ExternalTimeout time.Duration `mapstructure:"external_timeout"`
	Model           string        `mapstructure:"model"`
	Temperature     float32       `mapstructure:"temperature"`
	MaxTokens       int           `mapstructure:"max_tokens"`
}

func (o Options) withDefaults() Options {
	if o.ExternalTimeout <= 0 {
		o.ExternalTimeout = DefaultExternalTimeout
	}
	if o.Temperature <= 0 {
		o.Temperature = DefaultTemperature
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = DefaultMaxTokens
	}
	return o
}

type Chain struct {
	attempts []Attempt
	opts     Options
	obs      metrics.Observer
	log      *slog.Logger
}

// NewChain builds the attempt list once. A nil engine or completer leaves its
// attempt out; the canned reply is always last.
func NewChain(engine Engine, completer llm.Completer, opts Options, obs metrics.Observer, log *slog.Logger) *Chain {
	if log == nil {
		log = slog.Default()
	}
	if obs == nil {
		obs = metrics.NoopObserver{}
	}
	c := &Chain{opts: opts.withDefaults(), obs: obs, log: log}
	if engine != nil {
		c.attempts = append(c.attempts, Attempt{Name: AttemptExternal, Run: c.external(engine)})
	}
	if completer != nil {
		c.attempts = append(c.attempts, Attempt{Name: AttemptLanguageModel, Run: c.languageModel(completer)})
	}
	c.attempts = append(c.attempts, Attempt{Name: AttemptCanned, Run: canned})
	return c
}

// Attempts lists the active attempt names in order.
func (c *Chain) Attempts() []string {
	out := make([]string, len(c.attempts))
	for i, a := range c.attempts {
		out[i] = a.Name
	}
	return out
}

// Process runs the attempts in order. It always returns a usable reply.
func (c *Chain) Process(ctx context.Context, req Request) Result {
	for _, a := range c.attempts {
		start := time.Now()
		res, err := a.Run(ctx, req)
		elapsed := float64(time.Since(start).Milliseconds())
		if err == nil && strings.TrimSpace(res.Response) != "" {
			res.Source = a.Name
			metrics.Record(c.obs, metrics.EventNLUAttempt, elapsed, map[string]string{"attempt": a.Name, "outcome": "success"})
			return res
		}
		if err == nil {
			err = errors.New("empty response")
		}
		metrics.Record(c.obs, metrics.EventNLUAttempt, elapsed, map[string]string{"attempt": a.Name, "outcome": "error"})
		c.log.Warn("nlu_fallback", "call_id", req.CallID, "attempt", a.Name, "reason", string(errorsx.Reason(err)), "error", err)
	}
	res, _ := canned(ctx, req)
	res.Source = AttemptCanned
	return res
}

func (c *Chain) external(engine Engine) func(context.Context, Request) (Result, error) {
	return func(ctx context.Context, req Request) (Result, error) {
		ctx, cancel := context.WithTimeout(ctx, c.opts.ExternalTimeout)
		defer cancel()
		var sessionCtx map[string]any
		if req.Context != nil {
			sessionCtx = req.Context.Session.Context
		}
		type outcome struct {
			resp nluclient.ProcessResponse
			err  error
		}
		done := make(chan outcome, 1)
		go func() {
			resp, err := engine.Process(ctx, nluclient.ProcessRequest{
				Text:     req.Text,
				Language: req.Language,
				AgentID:  req.Agent.ID,
				CallID:   req.CallID,
				Context:  sessionCtx,
			})
			done <- outcome{resp, err}
		}()
		var out outcome
		select {
		case out = <-done:
		case <-ctx.Done():
			return Result{}, errorsx.Wrap(errorsx.Transient("nlu", "process", 0, ctx.Err()), errorsx.ReasonNLUExternal)
		}
		if out.err != nil {
			return Result{}, errorsx.Wrap(out.err, errorsx.ReasonNLUExternal)
		}
		r := out.resp
		return Result{
			Response:      r.Response,
			Intent:        r.Intent,
			Entities:      r.Entities,
			Sentiment:     r.Sentiment,
			Confidence:    r.Confidence,
			Context:       r.Context,
			ShouldEndCall: r.ShouldEndCall,
		}, nil
	}
}

func (c *Chain) languageModel(completer llm.Completer) func(context.Context, Request) (Result, error) {
	return func(ctx context.Context, req Request) (Result, error) {
		resp, err := completer.Complete(ctx, llm.Request{
			Model:       c.opts.Model,
			System:      SystemPrompt(req),
			Messages:    []llm.Message{{Role: llm.RoleUser, Content: req.Text}},
			Temperature: c.opts.Temperature,
			MaxTokens:   c.opts.MaxTokens,
		})
		if err != nil {
			return Result{}, errorsx.Wrap(err, errorsx.ReasonNLUModel)
		}
		text := strings.TrimSpace(resp.Text)
		if text == "" {
			return Result{}, errorsx.Wrap(fmt.Errorf("%s returned no text", completer.Name()), errorsx.ReasonNLUModel)
		}
		c.log.Debug("nlu_model_reply", "call_id", req.CallID, "reply", redact.Text(text))
		intent, score := ClassifyIntent(req.Text)
		sentiment, sentimentScore := Sentiment(req.Text)
		return Result{
			Response:       text,
			Intent:         intent,
			Entities:       ExtractEntities(req.Text),
			Sentiment:      sentiment,
			SentimentScore: sentimentScore,
			Confidence:     score,
			Context:        map[string]any{"last_intent": intent},
			ShouldEndCall:  intent == IntentFarewell,
		}, nil
	}
}

func canned(_ context.Context, req Request) (Result, error) {
	text := strings.TrimSpace(req.Agent.Greeting)
	if text == "" {
		text = apologyLine
	}
	sentiment, score := Sentiment(req.Text)
	return Result{
		Response:       text,
		Intent:         IntentUnknown,
		Sentiment:      sentiment,
		SentimentScore: score,
		Confidence:     cannedConfidence,
	}, nil
}

// SystemPrompt is the language-model instruction for an agent and its call context.
func SystemPrompt(req Request) string {
	a := req.Agent
	var b strings.Builder
	if a.SystemPrompt != "" {
		b.WriteString(a.SystemPrompt)
		b.WriteString("\n\n")
	}
	name := a.Name
	if name == "" {
		name = "an AI phone agent"
	}
	fmt.Fprintf(&b, "You are %s.", name)
	if a.Personality != "" {
		fmt.Fprintf(&b, " Personality: %s.", strings.TrimSuffix(a.Personality, "."))
	}
	if a.Description != "" {
		fmt.Fprintf(&b, "\nRole: %s", a.Description)
	}
	if len(a.Intents) > 0 {
		fmt.Fprintf(&b, "\nYou can help with: %s", strings.Join(a.Intents, ", "))
	}
	lang := req.Language
	if lang == "" {
		lang = a.Language
	}
	if lang == "" {
		lang = "en"
	}
	fmt.Fprintf(&b, "\nRespond in %s with one or two short sentences suitable for a phone call.", lang)
	if req.Context != nil {
		b.WriteString("\n\n")
		b.WriteString(conversation.FormatForLanguageModel(*req.Context, req.Text))
	}
	return b.String()
}

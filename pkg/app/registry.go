package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/harunnryd/voxa/pkg/config"
	"github.com/harunnryd/voxa/pkg/llm"
	"github.com/harunnryd/voxa/pkg/providers/anthropic"
	"github.com/harunnryd/voxa/pkg/providers/mock"
	"github.com/harunnryd/voxa/pkg/providers/openai"
)

// LLMFactory builds a completer from decoded provider settings.
type LLMFactory func(s config.LLMSettings) (llm.Completer, error)

// ProviderRegistry maps providers.llm.provider names onto factories.
type ProviderRegistry struct {
	llm map[string]LLMFactory
}

func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{llm: make(map[string]LLMFactory)}
}

// DefaultRegistry knows openai, anthropic and mock.
func DefaultRegistry() *ProviderRegistry {
	r := NewProviderRegistry()
	r.RegisterLLM("openai", func(s config.LLMSettings) (llm.Completer, error) {
		return openai.New(openai.Config{APIKey: s.APIKey, Model: s.Model, BaseURL: s.BaseURL, Timeout: s.Timeout})
	})
	r.RegisterLLM("anthropic", func(s config.LLMSettings) (llm.Completer, error) {
		return anthropic.New(anthropic.Config{APIKey: s.APIKey, Model: s.Model, BaseURL: s.BaseURL, Timeout: s.Timeout})
	})
	r.RegisterLLM("mock", func(s config.LLMSettings) (llm.Completer, error) {
		return mock.NewCompleter(mock.LLMConfig{ResponseText: s.ResponseText}), nil
	})
	return r
}

func (r *ProviderRegistry) RegisterLLM(name string, factory LLMFactory) {
	r.llm[strings.ToLower(strings.TrimSpace(name))] = factory
}

// BuildLLM returns nil, nil when no provider is selected.
func (r *ProviderRegistry) BuildLLM(v config.VendorConfig) (llm.Completer, config.LLMSettings, error) {
	name := v.Name()
	if name == "" {
		return nil, config.LLMSettings{}, nil
	}
	fn := r.llm[name]
	if fn == nil {
		return nil, config.LLMSettings{}, fmt.Errorf("llm provider not registered: %s", v.Provider)
	}
	s, err := v.LLMSettings()
	if err != nil {
		return nil, config.LLMSettings{}, fmt.Errorf("llm settings: %w", err)
	}
	c, err := fn(s)
	if err != nil {
		return nil, s, err
	}
	return c, s, nil
}

const (
	llmRetryAttempts   = 2
	llmRetryBase       = 300 * time.Millisecond
	llmBreakerFailures = 5
	llmBreakerCooldown = 30 * time.Second
)

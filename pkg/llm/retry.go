package llm

import (
	"context"

	"github.com/harunnryd/voxa/pkg/metrics"
	"github.com/harunnryd/voxa/pkg/resilience"
)

// RetryCompleter retries transient completion failures with backoff.
type RetryCompleter struct {
	inner  Completer
	policy resilience.RetryPolicy
}

func NewRetryCompleter(inner Completer, policy resilience.RetryPolicy) *RetryCompleter {
	return &RetryCompleter{inner: inner, policy: policy}
}

func (c *RetryCompleter) Name() string { return c.inner.Name() }

func (c *RetryCompleter) Complete(ctx context.Context, req Request) (Response, error) {
	return resilience.Retry(ctx, c.policy, func(ctx context.Context) (Response, error) {
		return c.inner.Complete(ctx, req)
	})
}

// Wrap layers retry inside the breaker so one logical call counts once
// against the breaker.
func Wrap(inner Completer, policy resilience.RetryPolicy, breaker *resilience.CircuitBreaker, obs metrics.Observer) Completer {
	bc := NewBreakerCompleter(NewRetryCompleter(inner, policy), breaker)
	bc.SetObserver(obs)
	return bc
}

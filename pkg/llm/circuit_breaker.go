package llm

import (
	"context"
	"time"

	"github.com/harunnryd/voxa/pkg/metrics"
	"github.com/harunnryd/voxa/pkg/resilience"
)

// BreakerCompleter wraps a Completer with rate-limit circuit breaking.
type BreakerCompleter struct {
	inner   Completer
	breaker *resilience.CircuitBreaker
	obs     metrics.Observer
}

func NewBreakerCompleter(inner Completer, breaker *resilience.CircuitBreaker) *BreakerCompleter {
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker(3, 30*time.Second)
	}
	return &BreakerCompleter{inner: inner, breaker: breaker}
}

func (c *BreakerCompleter) Name() string { return c.inner.Name() }

// SetObserver allows metrics emission for breaker events.
func (c *BreakerCompleter) SetObserver(obs metrics.Observer) { c.obs = obs }

func (c *BreakerCompleter) Complete(ctx context.Context, req Request) (Response, error) {
	if !c.breaker.Allow() {
		c.record(metrics.EventBreakerDenied)
		return Response{}, resilience.RateLimitError{Provider: c.Name(), Message: "degraded"}
	}
	resp, err := c.inner.Complete(ctx, req)
	if err != nil {
		if resilience.IsRateLimit(err) {
			c.record(metrics.EventRateLimit)
		}
		c.breaker.OnError(err)
		return Response{}, err
	}
	c.breaker.OnSuccess()
	return resp, nil
}

func (c *BreakerCompleter) record(name string) {
	metrics.Record(c.obs, name, 1, map[string]string{
		"provider":  c.inner.Name(),
		"component": "llm",
	})
}

package resilience

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/harunnryd/voxa/pkg/errorsx"
)

// RetryPolicy bounds retries of transient provider failures.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      float64
	IsRetryable func(error) bool
	// Sleep replaces the context-aware wait between attempts. Tests only.
	Sleep func(time.Duration)
}

func NewRetryPolicy(maxAttempts int, base time.Duration) RetryPolicy {
	return RetryPolicy{MaxAttempts: maxAttempts, BaseDelay: base}.withDefaults()
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 100 * time.Millisecond
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 2 * time.Second
	}
	if p.IsRetryable == nil {
		p.IsRetryable = DefaultIsRetryable
	}
	return p
}

// Do runs fn until it succeeds, returns a non-retryable error, or attempts run out.
func (p RetryPolicy) Do(ctx context.Context, fn func(context.Context) error) error {
	_, err := Retry(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Retry is the value-returning form of RetryPolicy.Do.
func Retry[T any](ctx context.Context, p RetryPolicy, fn func(context.Context) (T, error)) (T, error) {
	p = p.withDefaults()
	var zero T
	var lastErr error
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	for i := 0; i < p.MaxAttempts; i++ {
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		out, err := fn(ctx)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !p.IsRetryable(err) {
			return zero, err
		}
		if i == p.MaxAttempts-1 {
			break
		}
		delay := backoffDelay(p.BaseDelay, p.MaxDelay, p.Jitter, i, r)
		if err := p.wait(ctx, delay); err != nil {
			return zero, err
		}
	}
	return zero, fmt.Errorf("retry exhausted after %d attempts: %w", p.MaxAttempts, lastErr)
}

func (p RetryPolicy) wait(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		p.Sleep(d)
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// DefaultIsRetryable retries transient provider errors and rate limits only.
func DefaultIsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return errorsx.IsTransient(err) || IsRateLimit(err)
}

func backoffDelay(base, max time.Duration, jitter float64, attempt int, r *rand.Rand) time.Duration {
	pow := math.Pow(2, float64(attempt))
	d := time.Duration(float64(base) * pow)
	if d > max {
		d = max
	}
	if jitter > 0 {
		return d + time.Duration(float64(d)*jitter*r.Float64())
	}
	return d
}

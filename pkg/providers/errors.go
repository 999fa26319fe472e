// Package providers holds the typed clients for every external service and
// the status mapping they share.
package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/harunnryd/voxa/pkg/errorsx"
	"github.com/harunnryd/voxa/pkg/resilience"
)

// RejectedError is a non-retryable 4xx from a provider.
type RejectedError struct {
	Provider string
	Op       string
	Status   int
	Body     string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s %s rejected (%d): %s", e.Provider, e.Op, e.Status, e.Body)
}

// StatusError maps a non-2xx provider response onto the error taxonomy.
func StatusError(provider, op string, status int, body string) error {
	body = strings.TrimSpace(body)
	if len(body) > 512 {
		body = body[:512]
	}
	switch {
	case status == http.StatusNotFound:
		return errorsx.NotFound(provider+" "+op, body)
	case status == http.StatusTooManyRequests:
		return errorsx.Wrap(resilience.RateLimitError{Provider: provider, Message: body}, errorsx.ReasonRateLimit)
	case status >= 500:
		return errorsx.Transient(provider, op, status, errors.New(body))
	default:
		return errorsx.Wrap(&RejectedError{Provider: provider, Op: op, Status: status, Body: body}, errorsx.ReasonProviderRejected)
	}
}

// TransportError classifies a failure to get any response at all. Timeouts and
// connection errors are transient; caller cancellation passes through.
func TransportError(provider, op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return errorsx.Transient(provider, op, 0, err)
}

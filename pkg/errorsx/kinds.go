package errorsx

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// TransientProviderError is a timeout or 5xx from an external provider.
// Fallback chains treat it as "try the next step".
type TransientProviderError struct {
	Provider string
	Op       string
	Status   int
	Err      error
}

func (e *TransientProviderError) Error() string {
	msg := e.Provider + " " + e.Op + ": transient failure"
	if e.Status > 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TransientProviderError) Unwrap() error { return e.Err }

// NotConfiguredError marks a component whose credentials or feature flag are missing.
type NotConfiguredError struct {
	Component string
}

func (e *NotConfiguredError) Error() string {
	return e.Component + " is not configured"
}

// ValidationError is a malformed input surfaced as 4xx to API callers.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// NotFoundError reports a missing entity (agent for a number, session for an event).
type NotFoundError struct {
	Kind string
	Key  string
}

func (e *NotFoundError) Error() string {
	return e.Kind + " not found: " + e.Key
}

// ItemError is one failed item inside a partially successful batch.
type ItemError struct {
	Item  string `json:"item"`
	Error string `json:"error"`
}

// PartialFailureError carries the per-item failures of a batch that still ran to completion.
type PartialFailureError struct {
	Errors []ItemError
}

func (e *PartialFailureError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, ie := range e.Errors {
		parts = append(parts, ie.Item+": "+ie.Error)
	}
	return fmt.Sprintf("%d item(s) failed: %s", len(e.Errors), strings.Join(parts, "; "))
}

func Transient(provider, op string, status int, err error) error {
	return ReasonedError{
		Err:    &TransientProviderError{Provider: provider, Op: op, Status: status, Err: err},
		Reason: ReasonProviderTransient,
	}
}

func NotConfigured(component string) error {
	return ReasonedError{Err: &NotConfiguredError{Component: component}, Reason: ReasonNotConfigured}
}

func Invalid(field, message string) error {
	return ReasonedError{Err: &ValidationError{Field: field, Message: message}, Reason: ReasonValidation}
}

func NotFound(kind, key string) error {
	return ReasonedError{Err: &NotFoundError{Kind: kind, Key: key}, Reason: ReasonNotFound}
}

func IsTransient(err error) bool {
	var te *TransientProviderError
	return errors.As(err, &te)
}

func IsNotConfigured(err error) bool {
	var ne *NotConfiguredError
	return errors.As(err, &ne)
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// HTTPStatus maps the taxonomy onto a response status for API callers.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case IsValidation(err):
		return http.StatusBadRequest
	case IsNotFound(err):
		return http.StatusNotFound
	case IsNotConfigured(err):
		return http.StatusServiceUnavailable
	case IsTransient(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

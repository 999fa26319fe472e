package errorsx

import (
	"errors"
	"fmt"
)

// ReasonedError wraps an error with a reason code.
type ReasonedError struct {
	Err    error
	Reason ReasonCode
}

func (e ReasonedError) Error() string {
	if e.Err == nil {
		return string(e.Reason)
	}
	return e.Err.Error()
}

func (e ReasonedError) Unwrap() error {
	return e.Err
}

// Wrap attaches a reason code to an error. The innermost reason wins.
func Wrap(err error, reason ReasonCode) error {
	if err == nil {
		return nil
	}
	var re ReasonedError
	if errors.As(err, &re) {
		return err
	}
	return ReasonedError{Err: err, Reason: reason}
}

// Wrapf adds a message prefix and a reason code, keeping any reason already attached.
func Wrapf(err error, reason ReasonCode, format string, args ...any) error {
	if err == nil {
		return nil
	}
	msg := fmt.Sprintf(format, args...)
	if existing := Reason(err); existing != ReasonUnknown {
		reason = existing
	}
	return ReasonedError{Err: fmt.Errorf("%s: %w", msg, err), Reason: reason}
}

// Reason extracts a reason code from an error, if present.
func Reason(err error) ReasonCode {
	if err == nil {
		return ReasonUnknown
	}
	var re ReasonedError
	if errors.As(err, &re) {
		return re.Reason
	}
	return ReasonUnknown
}

// HasReason returns true if err contains the given reason code.
func HasReason(err error, reason ReasonCode) bool {
	return Reason(err) == reason
}

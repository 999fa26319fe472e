package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/harunnryd/voxa/pkg/errorsx"
)

func TestNormalizeNumber(t *testing.T) {
	cases := map[string]string{
		"+1 (555) 123-4567": "+15551234567",
		"15551234567":       "+15551234567",
		"+44 20 7946 0958":  "+442079460958",
	}
	for in, want := range cases {
		got, err := NormalizeNumber(in)
		if err != nil || got != want {
			t.Fatalf("NormalizeNumber(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	for _, bad := range []string{"", "+12", "555-CALL-NOW", "+1234567890123456"} {
		if _, err := NormalizeNumber(bad); !errorsx.IsValidation(err) {
			t.Fatalf("expected validation error for %q, got %v", bad, err)
		}
	}
}

func TestCountryCodeFor(t *testing.T) {
	if got := CountryCodeFor("+15551234567"); got != "+1" {
		t.Fatalf("expected +1, got %q", got)
	}
}

func TestNewCallSessionRejectsInvalidShapes(t *testing.T) {
	now := time.Now()
	if _, err := NewCallSession("", "a1", "+1555", DirectionInbound, now); !errorsx.IsValidation(err) {
		t.Fatalf("expected validation error for empty call id")
	}
	if _, err := NewCallSession("c1", "a1", "+1555", Direction("sideways"), now); !errorsx.IsValidation(err) {
		t.Fatalf("expected validation error for direction")
	}
	s, err := NewCallSession("c1", "a1", "+15551234567", DirectionInbound, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.ConversationState != DefaultConversationState || s.Context == nil {
		t.Fatalf("expected defaults, got %+v", s)
	}
}

func TestSyncResultFail(t *testing.T) {
	r := NewSyncResult()
	r.Fail("+15550001111", errors.New("conflict"))
	if len(r.Errors) != 1 || r.Errors[0].Item != "+15550001111" {
		t.Fatalf("unexpected errors %+v", r.Errors)
	}
}

package errorsx

import (
	"errors"
	"net/http"
	"testing"
)

func TestWrapAndReason(t *testing.T) {
	err := Wrap(assertErr{}, ReasonNLUModel)
	if Reason(err) != ReasonNLUModel {
		t.Fatalf("expected reason %s, got %s", ReasonNLUModel, Reason(err))
	}
	if !HasReason(err, ReasonNLUModel) {
		t.Fatalf("expected HasReason true")
	}
}

func TestWrapPreservesExistingReason(t *testing.T) {
	first := Wrap(assertErr{}, ReasonTTSPremium)
	second := Wrap(first, ReasonNLUModel)
	if Reason(second) != ReasonTTSPremium {
		t.Fatalf("expected reason preserved, got %s", Reason(second))
	}
	third := Wrapf(first, ReasonSyncStep, "step %d", 2)
	if Reason(third) != ReasonTTSPremium {
		t.Fatalf("expected Wrapf to keep reason, got %s", Reason(third))
	}
	if third.Error() != "step 2: boom" {
		t.Fatalf("unexpected message %q", third.Error())
	}
}

func TestTaxonomyHelpers(t *testing.T) {
	cases := []struct {
		err    error
		check  func(error) bool
		status int
	}{
		{Transient("vapi", "list", 503, assertErr{}), IsTransient, http.StatusBadGateway},
		{NotConfigured("elevenlabs"), IsNotConfigured, http.StatusServiceUnavailable},
		{Invalid("phoneNumber", "must be E.164"), IsValidation, http.StatusBadRequest},
		{NotFound("agent", "a1"), IsNotFound, http.StatusNotFound},
	}
	for _, tc := range cases {
		if !tc.check(tc.err) {
			t.Fatalf("expected classifier to match %v", tc.err)
		}
		if got := HTTPStatus(tc.err); got != tc.status {
			t.Fatalf("expected status %d for %v, got %d", tc.status, tc.err, got)
		}
	}
	if HTTPStatus(errors.New("x")) != http.StatusInternalServerError {
		t.Fatalf("expected 500 for unclassified error")
	}
}

func TestTransientUnwrapsCause(t *testing.T) {
	err := Transient("nlu", "process", 0, assertErr{})
	if !errors.Is(err, assertErr{}) {
		t.Fatalf("expected cause to be reachable")
	}
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }

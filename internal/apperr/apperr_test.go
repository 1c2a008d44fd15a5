package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindPredicates(t *testing.T) {
	cause := errors.New("connection reset")
	cases := []struct {
		name string
		err  error
		kind Kind
	}{
		{"validation", Validation("ride.create", "bid below base fare"), KindValidation},
		{"store", Store("ride.create", cause), KindStore},
		{"rejected", Rejected("ride.accept", "ride no longer available"), KindRejected},
		{"not found", NotFound("ride.get", "ride"), KindNotFound},
		{"plain", cause, KindInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := KindOf(tc.err); got != tc.kind {
				t.Fatalf("KindOf = %s, want %s", got, tc.kind)
			}
			wrapped := fmt.Errorf("handler: %w", tc.err)
			if got := KindOf(wrapped); got != tc.kind {
				t.Fatalf("KindOf(wrapped) = %s, want %s", got, tc.kind)
			}
		})
	}
}

func TestStoreKeepsCause(t *testing.T) {
	cause := errors.New("timeout")
	err := Store("wallet.add", cause)
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to be reachable through Unwrap")
	}
	if Store("wallet.add", nil) != nil {
		t.Fatalf("Store(nil) must be nil")
	}
	rej := Rejected("ride.accept", "lost race")
	if Store("ride.accept", rej) != rej {
		t.Fatalf("Store must not re-wrap an already classified error")
	}
}

func TestReasonOf(t *testing.T) {
	err := fmt.Errorf("x: %w", Rejected("ride.accept", "pending approval"))
	if got := ReasonOf(err); got != "pending approval" {
		t.Fatalf("ReasonOf = %q", got)
	}
	if ReasonOf(errors.New("plain")) != "" {
		t.Fatalf("expected empty reason for plain error")
	}
}

func TestOpOf(t *testing.T) {
	if got := OpOf(fmt.Errorf("h: %w", Rejected("wallet.topup", "payment was declined"))); got != "wallet.topup" {
		t.Fatalf("OpOf = %q", got)
	}
	if OpOf(errors.New("plain")) != "" {
		t.Fatalf("expected empty op for plain error")
	}
}

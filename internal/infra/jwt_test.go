package infra

import (
	"context"
	"testing"
	"time"
)

func TestJWTVerifierRoundTrip(t *testing.T) {
	v := NewJWTVerifier("s3cret")
	raw, err := v.Sign("driver-1", "admin", time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	tok, err := v.VerifyIDToken(context.Background(), raw)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if tok.UID != "driver-1" || tok.Claims["role"] != "admin" {
		t.Fatalf("unexpected token: %+v", tok)
	}
}

func TestJWTVerifierRejects(t *testing.T) {
	v := NewJWTVerifier("s3cret")
	expired, _ := v.Sign("u", "", -time.Minute)
	foreign, _ := NewJWTVerifier("other").Sign("u", "", time.Minute)
	noSub, _ := v.Sign("", "", time.Minute)

	cases := map[string]string{
		"garbage":      "not-a-token",
		"expired":      expired,
		"wrong secret": foreign,
		"no subject":   noSub,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := v.VerifyIDToken(context.Background(), raw); err == nil {
				t.Fatalf("expected rejection")
			}
		})
	}
}

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	if _, err := NewLogger("loud", false); err == nil {
		t.Fatal("expected error for unknown level")
	}
	if _, err := NewLogger("debug", true); err != nil {
		t.Fatalf("debug logger: %v", err)
	}
}

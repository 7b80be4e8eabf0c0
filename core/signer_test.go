package core

import (
	"strings"
	"testing"
	"time"
)

func TestPayloadSigner_VerifyRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	signer := NewPayloadSigner()
	signer.Now = func() time.Time { return now }

	payload := []byte(`{"event":"call.completed"}`)
	signature := signer.Sign(payload, "whsec_test", now)

	if err := signer.Verify(payload, "whsec_test", FormatSignatureTimestamp(now), signature); err != nil {
		t.Fatalf("verify round trip: %v", err)
	}
}

func TestPayloadSigner_RejectsTamperedPayload(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	signer := NewPayloadSigner()
	signer.Now = func() time.Time { return now }

	signature := signer.Sign([]byte(`{"amount":10}`), "whsec_test", now)

	err := signer.Verify([]byte(`{"amount":99}`), "whsec_test", FormatSignatureTimestamp(now), signature)
	if err == nil {
		t.Fatal("expected tampered payload to be rejected")
	}
	if !strings.Contains(err.Error(), "mismatch") {
		t.Fatalf("expected signature mismatch, got %v", err)
	}
}

func TestPayloadSigner_RejectsWrongSecret(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	signer := NewPayloadSigner()
	signer.Now = func() time.Time { return now }

	payload := []byte(`{}`)
	signature := signer.Sign(payload, "whsec_a", now)

	if err := signer.Verify(payload, "whsec_b", FormatSignatureTimestamp(now), signature); err == nil {
		t.Fatal("expected wrong secret to be rejected")
	}
}

func TestPayloadSigner_RejectsStaleTimestamp(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	signer := NewPayloadSigner()
	signer.Now = func() time.Time { return now }

	payload := []byte(`{}`)
	signedAt := now.Add(-6 * time.Minute)
	signature := signer.Sign(payload, "whsec_test", signedAt)

	err := signer.Verify(payload, "whsec_test", FormatSignatureTimestamp(signedAt), signature)
	if err == nil {
		t.Fatal("expected stale timestamp to be rejected")
	}
	if !strings.Contains(err.Error(), "freshness") {
		t.Fatalf("expected freshness rejection, got %v", err)
	}
}

func TestPayloadSigner_RejectsFutureTimestamp(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	signer := NewPayloadSigner()
	signer.Now = func() time.Time { return now }

	payload := []byte(`{}`)
	signedAt := now.Add(6 * time.Minute)
	signature := signer.Sign(payload, "whsec_test", signedAt)

	if err := signer.Verify(payload, "whsec_test", FormatSignatureTimestamp(signedAt), signature); err == nil {
		t.Fatal("expected future timestamp to be rejected")
	}
}

func TestPayloadSigner_AcceptsInsideFreshnessWindow(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	signer := NewPayloadSigner()
	signer.Now = func() time.Time { return now }

	payload := []byte(`{}`)
	signedAt := now.Add(-4 * time.Minute)
	signature := signer.Sign(payload, "whsec_test", signedAt)

	if err := signer.Verify(payload, "whsec_test", FormatSignatureTimestamp(signedAt), signature); err != nil {
		t.Fatalf("expected timestamp inside window to verify: %v", err)
	}
}

func TestPayloadSigner_RejectsMissingFields(t *testing.T) {
	signer := NewPayloadSigner()
	payload := []byte(`{}`)

	if err := signer.Verify(payload, "whsec_test", "", "abc123"); err == nil {
		t.Fatal("expected missing timestamp to be rejected")
	}
	if err := signer.Verify(payload, "whsec_test", FormatSignatureTimestamp(time.Now()), ""); err == nil {
		t.Fatal("expected missing signature to be rejected")
	}
	if err := signer.Verify(payload, "", FormatSignatureTimestamp(time.Now()), "abc123"); err == nil {
		t.Fatal("expected missing secret to be rejected")
	}
}

func TestPayloadSigner_RejectsMalformedTimestamp(t *testing.T) {
	signer := NewPayloadSigner()
	if err := signer.Verify([]byte(`{}`), "whsec_test", "not-a-timestamp", "abc123"); err == nil {
		t.Fatal("expected malformed timestamp to be rejected")
	}
}

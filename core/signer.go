package core

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const (
	HeaderSignature  = "X-Koya-Signature"
	HeaderTimestamp  = "X-Koya-Timestamp"
	HeaderDeliveryID = "X-Koya-Delivery-Id"
)

const defaultFreshnessWindow = 5 * time.Minute

// PayloadSigner produces and verifies HMAC-SHA256 proofs over timestamped
// payloads. The signed message is "{RFC3339 timestamp}.{payload bytes}";
// receivers must replicate that exact framing.
type PayloadSigner struct {
	// FreshnessWindow bounds how far a verified timestamp may lie in the
	// past (replay defense) or the future (clock skew).
	FreshnessWindow time.Duration
	Now             func() time.Time
}

func NewPayloadSigner() *PayloadSigner {
	return &PayloadSigner{
		FreshnessWindow: defaultFreshnessWindow,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Sign returns the hex-encoded HMAC-SHA256 digest for payload at timestamp.
func (s *PayloadSigner) Sign(payload []byte, secret string, timestamp time.Time) string {
	return computeSignature(payload, secret, FormatSignatureTimestamp(timestamp))
}

// Verify checks a provided signature against the payload. Missing fields
// reject as bad input; stale or future timestamps reject as auth failures;
// digest comparison is constant-time.
func (s *PayloadSigner) Verify(payload []byte, secret string, timestamp string, signature string) error {
	timestamp = strings.TrimSpace(timestamp)
	signature = strings.TrimSpace(signature)
	if timestamp == "" {
		return signerBadInput("core: signature timestamp is required")
	}
	if signature == "" {
		return signerBadInput("core: signature is required")
	}
	if strings.TrimSpace(secret) == "" {
		return signerBadInput("core: signing secret is required")
	}

	parsed, err := time.Parse(time.RFC3339, timestamp)
	if err != nil {
		return signerBadInput(fmt.Sprintf("core: invalid signature timestamp %q", timestamp))
	}

	now := s.now()
	window := s.freshnessWindow()
	if now.Sub(parsed) > window {
		return signerRejected("core: signature timestamp is outside the freshness window")
	}
	if parsed.Sub(now) > window {
		return signerRejected("core: signature timestamp is in the future")
	}

	expected, err := hex.DecodeString(computeSignature(payload, secret, timestamp))
	if err != nil {
		return signerRejected("core: signature computation failed")
	}
	provided, err := hex.DecodeString(signature)
	if err != nil {
		return signerRejected("core: signature is not valid hex")
	}
	if !hmac.Equal(expected, provided) {
		return signerRejected("core: signature mismatch")
	}
	return nil
}

// FormatSignatureTimestamp renders the canonical timestamp used both in the
// signed message and the timestamp header.
func FormatSignatureTimestamp(timestamp time.Time) string {
	return timestamp.UTC().Format(time.RFC3339)
}

func computeSignature(payload []byte, secret string, timestamp string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(timestamp))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *PayloadSigner) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *PayloadSigner) freshnessWindow() time.Duration {
	if s != nil && s.FreshnessWindow > 0 {
		return s.FreshnessWindow
	}
	return defaultFreshnessWindow
}

func signerBadInput(message string) error {
	return goerrors.New(message, goerrors.CategoryBadInput).
		WithTextCode(WebhookErrorBadInput)
}

func signerRejected(message string) error {
	return goerrors.New(message, goerrors.CategoryAuth).
		WithTextCode(WebhookErrorSignatureInvalid)
}

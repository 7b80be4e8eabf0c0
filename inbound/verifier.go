package inbound

import (
	"context"
	"fmt"
	"net/http"

	goerrors "github.com/goliatone/go-errors"

	"github.com/cabibbz/koya-caller-sub009/core"
)

// SourceConfig names the secret and header layout one provider uses for
// its signatures. Header names default to the Koya conventions when
// unset.
type SourceConfig struct {
	Secret          string
	SignatureHeader string
	TimestampHeader string
}

// SignatureVerifier verifies inbound payload signatures per source using
// the shared HMAC scheme.
type SignatureVerifier struct {
	Signer  *core.PayloadSigner
	Sources map[string]SourceConfig
}

func NewSignatureVerifier(signer *core.PayloadSigner) *SignatureVerifier {
	if signer == nil {
		signer = core.NewPayloadSigner()
	}
	return &SignatureVerifier{
		Signer:  signer,
		Sources: map[string]SourceConfig{},
	}
}

func (v *SignatureVerifier) Configure(source string, cfg SourceConfig) *SignatureVerifier {
	if v == nil {
		return v
	}
	source = normalizeSource(source)
	if source == "" {
		return v
	}
	if v.Sources == nil {
		v.Sources = map[string]SourceConfig{}
	}
	v.Sources[source] = cfg
	return v
}

func (v *SignatureVerifier) Verify(_ context.Context, req Request) error {
	if v == nil || v.Signer == nil {
		return inboundInternal("inbound: signature verifier is not configured", nil)
	}
	cfg, ok := v.Sources[normalizeSource(req.Source)]
	if !ok {
		return inboundError(
			fmt.Sprintf("inbound: no signature config for source %q", req.Source),
			goerrors.CategoryAuth,
			http.StatusUnauthorized,
			core.WebhookErrorSignatureInvalid,
			map[string]any{"source": req.Source},
		)
	}

	signatureHeader := cfg.SignatureHeader
	if signatureHeader == "" {
		signatureHeader = core.HeaderSignature
	}
	timestampHeader := cfg.TimestampHeader
	if timestampHeader == "" {
		timestampHeader = core.HeaderTimestamp
	}

	signature := headerValue(req.Headers, signatureHeader)
	timestamp := headerValue(req.Headers, timestampHeader)
	if err := v.Signer.Verify(req.Body, cfg.Secret, timestamp, signature); err != nil {
		return inboundWrapError(
			err,
			goerrors.CategoryAuth,
			"inbound: signature verification failed",
			http.StatusUnauthorized,
			core.WebhookErrorSignatureInvalid,
			map[string]any{"source": req.Source},
		)
	}
	return nil
}

var _ Verifier = (*SignatureVerifier)(nil)

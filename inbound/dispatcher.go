package inbound

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	goerrors "github.com/goliatone/go-errors"

	"github.com/cabibbz/koya-caller-sub009/core"
)

// Request is a provider-originated webhook as it arrives at the edge.
type Request struct {
	Source    string
	EventType string
	Body      []byte
	Headers   map[string]string
	Metadata  map[string]any
}

type Result struct {
	Accepted   bool
	StatusCode int
	Metadata   map[string]any
}

// Handler processes a verified inbound webhook for one source.
type Handler interface {
	Source() string
	Handle(ctx context.Context, req Request) (Result, error)
}

type Verifier interface {
	Verify(ctx context.Context, req Request) error
}

// FailureRecorder captures processing failures into the dead-letter
// store so a retry pass can replay them.
type FailureRecorder interface {
	RecordInboundFailure(ctx context.Context, in core.RecordInboundFailureInput) (core.FailedWebhook, error)
}

// Dispatcher routes inbound webhooks to the handler registered for their
// source. Verification rejects before any handler runs; handler failures
// are captured as dead letters rather than silently dropped.
type Dispatcher struct {
	Verifier Verifier
	Recorder FailureRecorder
	// Deduper, when set, suppresses provider redeliveries after
	// verification but before the handler runs. Optional.
	Deduper Deduper

	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewDispatcher(verifier Verifier, recorder FailureRecorder) *Dispatcher {
	return &Dispatcher{
		Verifier: verifier,
		Recorder: recorder,
		handlers: map[string]Handler{},
	}
}

func (d *Dispatcher) Register(handler Handler) error {
	if d == nil {
		return inboundInternal("inbound: dispatcher is nil", nil)
	}
	if handler == nil {
		return inboundBadInput("inbound: handler is nil", nil)
	}
	source := normalizeSource(handler.Source())
	if source == "" {
		return inboundBadInput("inbound: handler source is required", nil)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.handlers[source]; exists {
		return inboundError(
			fmt.Sprintf("inbound: handler already registered for source %q", source),
			goerrors.CategoryConflict,
			http.StatusConflict,
			core.WebhookErrorConflict,
			map[string]any{"source": source},
		)
	}
	d.handlers[source] = handler
	return nil
}

func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (Result, error) {
	if d == nil {
		return Result{}, inboundInternal("inbound: dispatcher is nil", nil)
	}
	req.Source = normalizeSource(req.Source)
	req.EventType = strings.TrimSpace(req.EventType)
	if req.Source == "" {
		return Result{}, inboundBadInput("inbound: source is required", nil)
	}

	if d.Verifier != nil {
		if err := d.Verifier.Verify(ctx, req); err != nil {
			return Result{
				Accepted:   false,
				StatusCode: http.StatusUnauthorized,
				Metadata: map[string]any{
					"source":   req.Source,
					"rejected": true,
				},
			}, inboundWrapError(
				err,
				goerrors.CategoryAuth,
				"inbound: request verification failed",
				http.StatusUnauthorized,
				core.WebhookErrorSignatureInvalid,
				map[string]any{"source": req.Source},
			)
		}
	}

	if d.Deduper != nil {
		decision, err := d.Deduper.Allow(ctx, req)
		if err != nil {
			return Result{}, inboundWrapError(
				err,
				goerrors.CategoryInternal,
				"inbound: duplicate check failed",
				http.StatusInternalServerError,
				core.WebhookErrorInternal,
				map[string]any{"source": req.Source},
			)
		}
		if !decision.Allow {
			metadata := ensureMetadata(decision.Metadata)
			metadata["source"] = req.Source
			return Result{
				Accepted:   true,
				StatusCode: http.StatusOK,
				Metadata:   metadata,
			}, nil
		}
	}

	handler := d.handlerFor(req.Source)
	if handler == nil {
		return Result{}, inboundError(
			fmt.Sprintf("inbound: no handler registered for source %q", req.Source),
			goerrors.CategoryNotFound,
			http.StatusNotFound,
			core.WebhookErrorNotFound,
			map[string]any{"source": req.Source},
		)
	}

	result, err := handler.Handle(ctx, req)
	if err != nil {
		handlerErr := inboundWrapError(
			err,
			goerrors.CategoryOperation,
			"inbound: handler execution failed",
			http.StatusBadGateway,
			core.WebhookErrorDispatchFailed,
			map[string]any{"source": req.Source, "event_type": req.EventType},
		)
		d.recordFailure(ctx, req, err)
		return Result{}, handlerErr
	}

	retryableFailure := !result.Accepted || result.StatusCode >= http.StatusInternalServerError
	if retryableFailure {
		retryErr := inboundError(
			fmt.Sprintf("inbound: handler returned retryable status %d", result.StatusCode),
			goerrors.CategoryOperation,
			http.StatusBadGateway,
			core.WebhookErrorDispatchFailed,
			map[string]any{
				"source":      req.Source,
				"event_type":  req.EventType,
				"status_code": result.StatusCode,
			},
		)
		d.recordFailure(ctx, req, retryErr)
		return result, retryErr
	}

	result.Metadata = ensureMetadata(result.Metadata)
	result.Metadata["source"] = req.Source
	if req.EventType != "" {
		result.Metadata["event_type"] = req.EventType
	}
	return result, nil
}

// recordFailure is best effort: a dead-letter write failure must not mask
// the original processing error.
func (d *Dispatcher) recordFailure(ctx context.Context, req Request, cause error) {
	if d == nil || d.Recorder == nil {
		return
	}
	_, _ = d.Recorder.RecordInboundFailure(ctx, core.RecordInboundFailureInput{
		Source:    req.Source,
		EventType: req.EventType,
		Payload:   req.Body,
		Cause:     cause,
	})
}

func (d *Dispatcher) handlerFor(source string) Handler {
	if d == nil {
		return nil
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.handlers[normalizeSource(source)]
}

func normalizeSource(source string) string {
	return strings.TrimSpace(strings.ToLower(source))
}

func ensureMetadata(metadata map[string]any) map[string]any {
	if len(metadata) == 0 {
		return map[string]any{}
	}
	return metadata
}

func headerValue(headers map[string]string, key string) string {
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), strings.TrimSpace(key)) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	WebhookErrorBadInput         = "WEBHOOK_BAD_INPUT"
	WebhookErrorNotFound         = "WEBHOOK_NOT_FOUND"
	WebhookErrorSignatureInvalid = "WEBHOOK_SIGNATURE_INVALID"
	WebhookErrorDispatchFailed   = "WEBHOOK_DISPATCH_FAILED"
	WebhookErrorRetryExhausted   = "WEBHOOK_RETRY_EXHAUSTED"
	WebhookErrorConflict         = "WEBHOOK_CONFLICT"
	WebhookErrorInternal         = "WEBHOOK_INTERNAL_ERROR"
)

func webhookErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureWebhookErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "signature"), strings.Contains(msg, "timestamp"):
		return newWebhookError(err.Error(), goerrors.CategoryAuth, WebhookErrorSignatureInvalid)
	case strings.Contains(msg, "not found"):
		return newWebhookError(err.Error(), goerrors.CategoryNotFound, WebhookErrorNotFound)
	case strings.Contains(msg, "exhausted"), strings.Contains(msg, "max attempts"):
		return newWebhookError(err.Error(), goerrors.CategoryOperation, WebhookErrorRetryExhausted)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "unsupported"):
		return newWebhookError(err.Error(), goerrors.CategoryBadInput, WebhookErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureWebhookErrorEnvelope(mapped)
}

func newWebhookError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureWebhookErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureWebhookErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = webhookHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultWebhookTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultWebhookTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return WebhookErrorBadInput
	case goerrors.CategoryNotFound:
		return WebhookErrorNotFound
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return WebhookErrorSignatureInvalid
	case goerrors.CategoryConflict:
		return WebhookErrorConflict
	case goerrors.CategoryOperation:
		return WebhookErrorDispatchFailed
	default:
		return WebhookErrorInternal
	}
}

func webhookHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

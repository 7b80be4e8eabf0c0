package command

import (
	"fmt"
	"strings"

	"github.com/cabibbz/koya-caller-sub009/core"
)

const (
	TypeDispatchEvent          = "webhooks.command.dispatch"
	TypeSaveWebhook            = "webhooks.command.endpoint.save"
	TypeDeactivateWebhook      = "webhooks.command.endpoint.deactivate"
	TypeProcessDeliveryRetries = "webhooks.command.deliveries.retry"
	TypeProcessInboundRetries  = "webhooks.command.inbound.retry"
	TypeRecordInboundFailure   = "webhooks.command.inbound.record"
	TypeMarkInboundSuccess     = "webhooks.command.inbound.mark_success"
	TypeMarkInboundFailed      = "webhooks.command.inbound.mark_failed"
	TypePurgeInboundSuccesses  = "webhooks.command.inbound.purge"
)

type DispatchEventMessage struct {
	Request core.DispatchEventRequest
}

func (DispatchEventMessage) Type() string { return TypeDispatchEvent }

func (m DispatchEventMessage) Validate() error {
	if strings.TrimSpace(m.Request.TenantID) == "" {
		return commandValidationError("tenant_id", "tenant id is required")
	}
	if !m.Request.Event.Valid() {
		return commandInvalidInputError(fmt.Sprintf("command: unsupported event type %q", m.Request.Event))
	}
	return nil
}

type SaveWebhookMessage struct {
	Input core.SaveWebhookInput
}

func (SaveWebhookMessage) Type() string { return TypeSaveWebhook }

func (m SaveWebhookMessage) Validate() error {
	if strings.TrimSpace(m.Input.TenantID) == "" {
		return commandValidationError("tenant_id", "tenant id is required")
	}
	if strings.TrimSpace(m.Input.URL) == "" {
		return commandValidationError("url", "url is required")
	}
	if strings.TrimSpace(m.Input.Secret) == "" {
		return commandValidationError("secret", "secret is required")
	}
	if len(m.Input.Events) == 0 {
		return commandValidationError("events", "at least one event subscription is required")
	}
	return nil
}

type DeactivateWebhookMessage struct {
	WebhookID string
}

func (DeactivateWebhookMessage) Type() string { return TypeDeactivateWebhook }

func (m DeactivateWebhookMessage) Validate() error {
	if strings.TrimSpace(m.WebhookID) == "" {
		return commandValidationError("webhook_id", "webhook id is required")
	}
	return nil
}

type ProcessDeliveryRetriesMessage struct {
	BatchSize int
}

func (ProcessDeliveryRetriesMessage) Type() string { return TypeProcessDeliveryRetries }

func (m ProcessDeliveryRetriesMessage) Validate() error {
	if m.BatchSize < 0 {
		return commandValidationError("batch_size", "batch size must be >= 0")
	}
	return nil
}

type ProcessInboundRetriesMessage struct {
	BatchSize int
}

func (ProcessInboundRetriesMessage) Type() string { return TypeProcessInboundRetries }

func (m ProcessInboundRetriesMessage) Validate() error {
	if m.BatchSize < 0 {
		return commandValidationError("batch_size", "batch size must be >= 0")
	}
	return nil
}

type RecordInboundFailureMessage struct {
	Input core.RecordInboundFailureInput
}

func (RecordInboundFailureMessage) Type() string { return TypeRecordInboundFailure }

func (m RecordInboundFailureMessage) Validate() error {
	if strings.TrimSpace(m.Input.Source) == "" {
		return commandValidationError("source", "source is required")
	}
	return nil
}

type MarkInboundSuccessMessage struct {
	FailureID string
}

func (MarkInboundSuccessMessage) Type() string { return TypeMarkInboundSuccess }

func (m MarkInboundSuccessMessage) Validate() error {
	if strings.TrimSpace(m.FailureID) == "" {
		return commandValidationError("failure_id", "failure id is required")
	}
	return nil
}

type MarkInboundFailedMessage struct {
	FailureID string
	Cause     error
}

func (MarkInboundFailedMessage) Type() string { return TypeMarkInboundFailed }

func (m MarkInboundFailedMessage) Validate() error {
	if strings.TrimSpace(m.FailureID) == "" {
		return commandValidationError("failure_id", "failure id is required")
	}
	if m.Cause == nil {
		return commandValidationError("cause", "cause is required")
	}
	return nil
}

type PurgeInboundSuccessesMessage struct{}

func (PurgeInboundSuccessesMessage) Type() string { return TypePurgeInboundSuccesses }

func (PurgeInboundSuccessesMessage) Validate() error { return nil }

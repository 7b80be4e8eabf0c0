package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"

	"github.com/cabibbz/koya-caller-sub009/core"
)

// MutatingService is the write surface the commands delegate to. The core
// webhook service satisfies it.
type MutatingService interface {
	DispatchEvent(ctx context.Context, req core.DispatchEventRequest) ([]core.DispatchResult, error)
	SaveWebhook(ctx context.Context, in core.SaveWebhookInput) (core.Webhook, error)
	DeactivateWebhook(ctx context.Context, id string) error
	ProcessDeliveryRetries(ctx context.Context, batchSize int) (core.RetryStats, error)
	ProcessInboundRetries(ctx context.Context, batchSize int) (core.RetryStats, error)
	RecordInboundFailure(ctx context.Context, in core.RecordInboundFailureInput) (core.FailedWebhook, error)
	MarkInboundSuccess(ctx context.Context, id string) error
	MarkInboundFailed(ctx context.Context, id string, cause error) (core.FailedWebhook, error)
	PurgeInboundSuccesses(ctx context.Context) (int, error)
}

type DispatchEventCommand struct {
	service MutatingService
}

func NewDispatchEventCommand(service MutatingService) *DispatchEventCommand {
	return &DispatchEventCommand{service: service}
}

func (c *DispatchEventCommand) Execute(ctx context.Context, msg DispatchEventMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: dispatch service is required")
	}
	out, err := c.service.DispatchEvent(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type SaveWebhookCommand struct {
	service MutatingService
}

func NewSaveWebhookCommand(service MutatingService) *SaveWebhookCommand {
	return &SaveWebhookCommand{service: service}
}

func (c *SaveWebhookCommand) Execute(ctx context.Context, msg SaveWebhookMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: endpoint service is required")
	}
	out, err := c.service.SaveWebhook(ctx, msg.Input)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type DeactivateWebhookCommand struct {
	service MutatingService
}

func NewDeactivateWebhookCommand(service MutatingService) *DeactivateWebhookCommand {
	return &DeactivateWebhookCommand{service: service}
}

func (c *DeactivateWebhookCommand) Execute(ctx context.Context, msg DeactivateWebhookMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: endpoint service is required")
	}
	return c.service.DeactivateWebhook(ctx, msg.WebhookID)
}

type ProcessDeliveryRetriesCommand struct {
	service MutatingService
}

func NewProcessDeliveryRetriesCommand(service MutatingService) *ProcessDeliveryRetriesCommand {
	return &ProcessDeliveryRetriesCommand{service: service}
}

func (c *ProcessDeliveryRetriesCommand) Execute(ctx context.Context, msg ProcessDeliveryRetriesMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: retry service is required")
	}
	out, err := c.service.ProcessDeliveryRetries(ctx, msg.BatchSize)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type ProcessInboundRetriesCommand struct {
	service MutatingService
}

func NewProcessInboundRetriesCommand(service MutatingService) *ProcessInboundRetriesCommand {
	return &ProcessInboundRetriesCommand{service: service}
}

func (c *ProcessInboundRetriesCommand) Execute(ctx context.Context, msg ProcessInboundRetriesMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: retry service is required")
	}
	out, err := c.service.ProcessInboundRetries(ctx, msg.BatchSize)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RecordInboundFailureCommand struct {
	service MutatingService
}

func NewRecordInboundFailureCommand(service MutatingService) *RecordInboundFailureCommand {
	return &RecordInboundFailureCommand{service: service}
}

func (c *RecordInboundFailureCommand) Execute(ctx context.Context, msg RecordInboundFailureMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: inbound failure service is required")
	}
	out, err := c.service.RecordInboundFailure(ctx, msg.Input)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type MarkInboundSuccessCommand struct {
	service MutatingService
}

func NewMarkInboundSuccessCommand(service MutatingService) *MarkInboundSuccessCommand {
	return &MarkInboundSuccessCommand{service: service}
}

func (c *MarkInboundSuccessCommand) Execute(ctx context.Context, msg MarkInboundSuccessMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: inbound failure service is required")
	}
	return c.service.MarkInboundSuccess(ctx, msg.FailureID)
}

type MarkInboundFailedCommand struct {
	service MutatingService
}

func NewMarkInboundFailedCommand(service MutatingService) *MarkInboundFailedCommand {
	return &MarkInboundFailedCommand{service: service}
}

func (c *MarkInboundFailedCommand) Execute(ctx context.Context, msg MarkInboundFailedMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: inbound failure service is required")
	}
	out, err := c.service.MarkInboundFailed(ctx, msg.FailureID, msg.Cause)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type PurgeInboundSuccessesCommand struct {
	service MutatingService
}

func NewPurgeInboundSuccessesCommand(service MutatingService) *PurgeInboundSuccessesCommand {
	return &PurgeInboundSuccessesCommand{service: service}
}

func (c *PurgeInboundSuccessesCommand) Execute(ctx context.Context, msg PurgeInboundSuccessesMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: inbound failure service is required")
	}
	out, err := c.service.PurgeInboundSuccesses(ctx)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}

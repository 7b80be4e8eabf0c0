package koyawebhooks

import (
	"fmt"

	webhookcommand "github.com/cabibbz/koya-caller-sub009/command"
	"github.com/cabibbz/koya-caller-sub009/core"
	webhookquery "github.com/cabibbz/koya-caller-sub009/query"
)

var _ CommandQueryService = (*core.Service)(nil)

// CommandQueryService is the surface a service must expose to back the
// full command/query bundle. *core.Service satisfies it.
type CommandQueryService interface {
	webhookcommand.MutatingService
	webhookquery.WebhookReader
	webhookquery.DeliveryReader
	webhookquery.FailedWebhookReader
}

type Commands struct {
	DispatchEvent          *webhookcommand.DispatchEventCommand
	SaveWebhook            *webhookcommand.SaveWebhookCommand
	DeactivateWebhook      *webhookcommand.DeactivateWebhookCommand
	ProcessDeliveryRetries *webhookcommand.ProcessDeliveryRetriesCommand
	ProcessInboundRetries  *webhookcommand.ProcessInboundRetriesCommand
	RecordInboundFailure   *webhookcommand.RecordInboundFailureCommand
	MarkInboundSuccess     *webhookcommand.MarkInboundSuccessCommand
	MarkInboundFailed      *webhookcommand.MarkInboundFailedCommand
	PurgeInboundSuccesses  *webhookcommand.PurgeInboundSuccessesCommand
}

type Queries struct {
	GetWebhook          *webhookquery.GetWebhookQuery
	GetDelivery         *webhookquery.GetDeliveryQuery
	ListDeliveries      *webhookquery.ListDeliveriesQuery
	ListFailedWebhooks  *webhookquery.ListFailedWebhooksQuery
	InboundFailureStats *webhookquery.InboundFailureStatsQuery
}

// Facade bundles the command and query handlers around one service so
// applications wire the subsystem with a single constructor call.
type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	failureReader webhookquery.FailedWebhookReader
}

// WithFailedWebhookReader overrides the reader backing the inbound
// failure queries, e.g. to point them at a replica.
func WithFailedWebhookReader(reader webhookquery.FailedWebhookReader) FacadeOption {
	return func(options *facadeOptions) {
		options.failureReader = reader
	}
}

func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("webhooks: command/query service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	failureReader := cfg.failureReader
	if failureReader == nil {
		failureReader = service
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		DispatchEvent:          webhookcommand.NewDispatchEventCommand(service),
		SaveWebhook:            webhookcommand.NewSaveWebhookCommand(service),
		DeactivateWebhook:      webhookcommand.NewDeactivateWebhookCommand(service),
		ProcessDeliveryRetries: webhookcommand.NewProcessDeliveryRetriesCommand(service),
		ProcessInboundRetries:  webhookcommand.NewProcessInboundRetriesCommand(service),
		RecordInboundFailure:   webhookcommand.NewRecordInboundFailureCommand(service),
		MarkInboundSuccess:     webhookcommand.NewMarkInboundSuccessCommand(service),
		MarkInboundFailed:      webhookcommand.NewMarkInboundFailedCommand(service),
		PurgeInboundSuccesses:  webhookcommand.NewPurgeInboundSuccessesCommand(service),
	}
	facade.queries = Queries{
		GetWebhook:          webhookquery.NewGetWebhookQuery(service),
		GetDelivery:         webhookquery.NewGetDeliveryQuery(service),
		ListDeliveries:      webhookquery.NewListDeliveriesQuery(service),
		ListFailedWebhooks:  webhookquery.NewListFailedWebhooksQuery(failureReader),
		InboundFailureStats: webhookquery.NewInboundFailureStatsQuery(failureReader),
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}

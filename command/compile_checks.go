package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[DispatchEventMessage]          = (*DispatchEventCommand)(nil)
	_ gocmd.Commander[SaveWebhookMessage]            = (*SaveWebhookCommand)(nil)
	_ gocmd.Commander[DeactivateWebhookMessage]      = (*DeactivateWebhookCommand)(nil)
	_ gocmd.Commander[ProcessDeliveryRetriesMessage] = (*ProcessDeliveryRetriesCommand)(nil)
	_ gocmd.Commander[ProcessInboundRetriesMessage]  = (*ProcessInboundRetriesCommand)(nil)
	_ gocmd.Commander[RecordInboundFailureMessage]   = (*RecordInboundFailureCommand)(nil)
	_ gocmd.Commander[MarkInboundSuccessMessage]     = (*MarkInboundSuccessCommand)(nil)
	_ gocmd.Commander[MarkInboundFailedMessage]      = (*MarkInboundFailedCommand)(nil)
	_ gocmd.Commander[PurgeInboundSuccessesMessage]  = (*PurgeInboundSuccessesCommand)(nil)
)

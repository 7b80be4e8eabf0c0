package query

import (
	gocmd "github.com/goliatone/go-command"

	"github.com/cabibbz/koya-caller-sub009/core"
)

var (
	_ gocmd.Querier[GetWebhookMessage, core.Webhook]                      = (*GetWebhookQuery)(nil)
	_ gocmd.Querier[GetDeliveryMessage, core.WebhookDelivery]             = (*GetDeliveryQuery)(nil)
	_ gocmd.Querier[ListDeliveriesMessage, []core.WebhookDelivery]        = (*ListDeliveriesQuery)(nil)
	_ gocmd.Querier[ListFailedWebhooksMessage, []core.FailedWebhook]      = (*ListFailedWebhooksQuery)(nil)
	_ gocmd.Querier[InboundFailureStatsMessage, core.InboundFailureStats] = (*InboundFailureStatsQuery)(nil)
)

package query

import (
	"github.com/cabibbz/koya-caller-sub009/core"
)

const (
	TypeGetWebhook          = "webhooks.query.endpoint.get"
	TypeGetDelivery         = "webhooks.query.delivery.get"
	TypeListDeliveries      = "webhooks.query.deliveries.list"
	TypeListFailedWebhooks  = "webhooks.query.failures.list"
	TypeInboundFailureStats = "webhooks.query.failures.stats"
)

type GetWebhookMessage struct {
	WebhookID string
}

func (GetWebhookMessage) Type() string { return TypeGetWebhook }

func (m GetWebhookMessage) Validate() error {
	if m.WebhookID == "" {
		return queryValidationError("webhook_id", "webhook id is required")
	}
	return nil
}

type GetDeliveryMessage struct {
	DeliveryID string
}

func (GetDeliveryMessage) Type() string { return TypeGetDelivery }

func (m GetDeliveryMessage) Validate() error {
	if m.DeliveryID == "" {
		return queryValidationError("delivery_id", "delivery id is required")
	}
	return nil
}

type ListDeliveriesMessage struct {
	Filter core.DeliveryFilter
}

func (ListDeliveriesMessage) Type() string { return TypeListDeliveries }

func (m ListDeliveriesMessage) Validate() error {
	if m.Filter.Limit < 0 {
		return queryValidationError("limit", "limit must be >= 0")
	}
	if m.Filter.Offset < 0 {
		return queryValidationError("offset", "offset must be >= 0")
	}
	return nil
}

type ListFailedWebhooksMessage struct {
	Filter core.FailedWebhookFilter
}

func (ListFailedWebhooksMessage) Type() string { return TypeListFailedWebhooks }

func (m ListFailedWebhooksMessage) Validate() error {
	if m.Filter.Limit < 0 {
		return queryValidationError("limit", "limit must be >= 0")
	}
	if m.Filter.Offset < 0 {
		return queryValidationError("offset", "offset must be >= 0")
	}
	return nil
}

type InboundFailureStatsMessage struct{}

func (InboundFailureStatsMessage) Type() string { return TypeInboundFailureStats }

func (InboundFailureStatsMessage) Validate() error { return nil }

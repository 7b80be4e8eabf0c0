package query

import (
	"context"

	"github.com/cabibbz/koya-caller-sub009/core"
)

type WebhookReader interface {
	GetWebhook(ctx context.Context, id string) (core.Webhook, error)
}

type DeliveryReader interface {
	GetDelivery(ctx context.Context, id string) (core.WebhookDelivery, error)
	ListDeliveries(ctx context.Context, filter core.DeliveryFilter) ([]core.WebhookDelivery, error)
}

type FailedWebhookReader interface {
	ListFailedWebhooks(ctx context.Context, filter core.FailedWebhookFilter) ([]core.FailedWebhook, error)
	InboundFailureStats(ctx context.Context) (core.InboundFailureStats, error)
}

type GetWebhookQuery struct {
	reader WebhookReader
}

func NewGetWebhookQuery(reader WebhookReader) *GetWebhookQuery {
	return &GetWebhookQuery{reader: reader}
}

func (q *GetWebhookQuery) Query(ctx context.Context, msg GetWebhookMessage) (core.Webhook, error) {
	if q == nil || q.reader == nil {
		return core.Webhook{}, queryDependencyError("query: webhook reader is required")
	}
	return q.reader.GetWebhook(ctx, msg.WebhookID)
}

type GetDeliveryQuery struct {
	reader DeliveryReader
}

func NewGetDeliveryQuery(reader DeliveryReader) *GetDeliveryQuery {
	return &GetDeliveryQuery{reader: reader}
}

func (q *GetDeliveryQuery) Query(ctx context.Context, msg GetDeliveryMessage) (core.WebhookDelivery, error) {
	if q == nil || q.reader == nil {
		return core.WebhookDelivery{}, queryDependencyError("query: delivery reader is required")
	}
	return q.reader.GetDelivery(ctx, msg.DeliveryID)
}

type ListDeliveriesQuery struct {
	reader DeliveryReader
}

func NewListDeliveriesQuery(reader DeliveryReader) *ListDeliveriesQuery {
	return &ListDeliveriesQuery{reader: reader}
}

func (q *ListDeliveriesQuery) Query(
	ctx context.Context,
	msg ListDeliveriesMessage,
) ([]core.WebhookDelivery, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: delivery reader is required")
	}
	return q.reader.ListDeliveries(ctx, msg.Filter)
}

type ListFailedWebhooksQuery struct {
	reader FailedWebhookReader
}

func NewListFailedWebhooksQuery(reader FailedWebhookReader) *ListFailedWebhooksQuery {
	return &ListFailedWebhooksQuery{reader: reader}
}

func (q *ListFailedWebhooksQuery) Query(
	ctx context.Context,
	msg ListFailedWebhooksMessage,
) ([]core.FailedWebhook, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: failed webhook reader is required")
	}
	return q.reader.ListFailedWebhooks(ctx, msg.Filter)
}

type InboundFailureStatsQuery struct {
	reader FailedWebhookReader
}

func NewInboundFailureStatsQuery(reader FailedWebhookReader) *InboundFailureStatsQuery {
	return &InboundFailureStatsQuery{reader: reader}
}

func (q *InboundFailureStatsQuery) Query(
	ctx context.Context,
	msg InboundFailureStatsMessage,
) (core.InboundFailureStats, error) {
	if q == nil || q.reader == nil {
		return core.InboundFailureStats{}, queryDependencyError("query: failed webhook reader is required")
	}
	return q.reader.InboundFailureStats(ctx)
}

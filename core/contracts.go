package core

import (
	"context"
	"net/http"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// HTTPDoer abstracts the outbound HTTP client so tests can stub transport
// behavior without a listener.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type SaveWebhookInput struct {
	ID       string
	TenantID string
	URL      string
	Secret   string
	Events   []EventType
	Active   bool
	Metadata map[string]any
}

// WebhookStore is the tenant endpoint registry consumed by the dispatcher.
type WebhookStore interface {
	ListActiveForEvent(ctx context.Context, tenantID string, event EventType) ([]Webhook, error)
	Get(ctx context.Context, id string) (Webhook, error)
	Save(ctx context.Context, in SaveWebhookInput) (Webhook, error)
	Deactivate(ctx context.Context, id string) error
}

type CreateDeliveryInput struct {
	WebhookID   string
	TenantID    string
	EventType   EventType
	Payload     []byte
	MaxAttempts int
}

// DeliveryStore persists WebhookDelivery lifecycles. Every mutation is a
// single-row update keyed by id; the Mark* methods increment the attempt
// counter as part of applying the outcome.
type DeliveryStore interface {
	Create(ctx context.Context, in CreateDeliveryInput) (WebhookDelivery, error)
	Get(ctx context.Context, id string) (WebhookDelivery, error)
	List(ctx context.Context, filter DeliveryFilter) ([]WebhookDelivery, error)
	MarkSuccess(ctx context.Context, id string, responseCode int, responseBody string) error
	MarkRetry(ctx context.Context, id string, cause string, responseCode int, responseBody string, nextRetryAt time.Time) error
	MarkFailed(ctx context.Context, id string, cause string, responseCode int, responseBody string) error
	// ClaimDueBatch selects due records (status pending or retrying,
	// next_retry_at <= now) ordered by next_retry_at ascending, pushing
	// next_retry_at forward by lease under a conditional update so
	// overlapping passes never pick up the same record.
	ClaimDueBatch(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]WebhookDelivery, error)
}

type CreateFailedWebhookInput struct {
	Source      string
	EventType   string
	Payload     []byte
	Cause       string
	MaxRetries  int
	NextRetryAt time.Time
}

// FailedWebhookStore persists inbound processing failures. Same claim and
// mutation contract as DeliveryStore.
type FailedWebhookStore interface {
	Create(ctx context.Context, in CreateFailedWebhookInput) (FailedWebhook, error)
	Get(ctx context.Context, id string) (FailedWebhook, error)
	List(ctx context.Context, filter FailedWebhookFilter) ([]FailedWebhook, error)
	MarkSuccess(ctx context.Context, id string) error
	MarkRetry(ctx context.Context, id string, cause string, nextRetryAt time.Time) error
	MarkFailed(ctx context.Context, id string, cause string) error
	ClaimDueBatch(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]FailedWebhook, error)
	Stats(ctx context.Context) (InboundFailureStats, error)
	PurgeSucceeded(ctx context.Context, olderThan time.Time) (int, error)
}

// RetryPolicy yields the delay before retry number index (0-based count of
// failures already consumed).
type RetryPolicy interface {
	NextDelay(index int) time.Duration
}

// InboundReprocessor re-runs the domain processing for a captured inbound
// failure. Implementations must be idempotent: the contract is
// at-least-once.
type InboundReprocessor interface {
	Source() string
	Reprocess(ctx context.Context, record FailedWebhook) error
}

// WebhookService is the full operation surface exposed to the command and
// query layers.
type WebhookService interface {
	DispatchEvent(ctx context.Context, req DispatchEventRequest) ([]DispatchResult, error)
	ProcessDeliveryRetries(ctx context.Context, batchSize int) (RetryStats, error)
	ProcessInboundRetries(ctx context.Context, batchSize int) (RetryStats, error)
	RecordInboundFailure(ctx context.Context, in RecordInboundFailureInput) (FailedWebhook, error)
	MarkInboundSuccess(ctx context.Context, id string) error
	MarkInboundFailed(ctx context.Context, id string, cause error) (FailedWebhook, error)
	InboundFailureStats(ctx context.Context) (InboundFailureStats, error)
	PurgeInboundSuccesses(ctx context.Context) (int, error)
	GetDelivery(ctx context.Context, id string) (WebhookDelivery, error)
	ListDeliveries(ctx context.Context, filter DeliveryFilter) ([]WebhookDelivery, error)
	ListFailedWebhooks(ctx context.Context, filter FailedWebhookFilter) ([]FailedWebhook, error)
	SaveWebhook(ctx context.Context, in SaveWebhookInput) (Webhook, error)
	DeactivateWebhook(ctx context.Context, id string) error
}

type StoreProvider interface {
	WebhookStore() WebhookStore
	DeliveryStore() DeliveryStore
	FailedWebhookStore() FailedWebhookStore
}

type RepositoryStoreFactory interface {
	BuildStores(persistenceClient any) (StoreProvider, error)
}

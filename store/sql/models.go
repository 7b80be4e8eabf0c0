package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type webhookRecord struct {
	bun.BaseModel `bun:"table:koya_webhooks,alias:kw"`

	ID        string         `bun:"id,pk"`
	TenantID  string         `bun:"tenant_id,notnull"`
	URL       string         `bun:"url,notnull"`
	Secret    string         `bun:"secret,notnull"`
	Events    []string       `bun:"events,type:jsonb,notnull"`
	Active    bool           `bun:"active,notnull"`
	Metadata  map[string]any `bun:"metadata,type:jsonb,notnull"`
	CreatedAt time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type deliveryRecord struct {
	bun.BaseModel `bun:"table:koya_webhook_deliveries,alias:kwd"`

	ID           string     `bun:"id,pk"`
	WebhookID    string     `bun:"webhook_id,notnull"`
	TenantID     string     `bun:"tenant_id,notnull"`
	EventType    string     `bun:"event_type,notnull"`
	Payload      []byte     `bun:"payload,notnull"`
	Status       string     `bun:"status,notnull"`
	Attempts     int        `bun:"attempts,notnull"`
	MaxAttempts  int        `bun:"max_attempts,notnull"`
	LastError    string     `bun:"last_error"`
	ResponseCode int        `bun:"response_code"`
	ResponseBody string     `bun:"response_body"`
	NextRetryAt  *time.Time `bun:"next_retry_at,nullzero"`
	CreatedAt    time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt    time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type failedWebhookRecord struct {
	bun.BaseModel `bun:"table:koya_failed_webhooks,alias:kfw"`

	ID          string     `bun:"id,pk"`
	Source      string     `bun:"source,notnull"`
	EventType   string     `bun:"event_type"`
	Payload     []byte     `bun:"payload,notnull"`
	LastError   string     `bun:"last_error"`
	RetryCount  int        `bun:"retry_count,notnull"`
	MaxRetries  int        `bun:"max_retries,notnull"`
	Status      string     `bun:"status,notnull"`
	NextRetryAt *time.Time `bun:"next_retry_at,nullzero"`
	CreatedAt   time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt   time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

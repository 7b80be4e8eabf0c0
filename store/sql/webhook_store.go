package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/cabibbz/koya-caller-sub009/core"
)

// WebhookStore persists tenant endpoint subscriptions. Event subscriptions
// are stored as a JSON array, so subscription matching happens in Go after
// the tenant scope narrows the candidate set.
type WebhookStore struct {
	db   *bun.DB
	repo repository.Repository[*webhookRecord]
}

func NewWebhookStore(db *bun.DB) (*WebhookStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*webhookRecord](db, webhookHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid webhook repository wiring: %w", err)
		}
	}
	return &WebhookStore{
		db:   db,
		repo: repo,
	}, nil
}

func (s *WebhookStore) ListActiveForEvent(ctx context.Context, tenantID string, event core.EventType) ([]core.Webhook, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: webhook store is not configured")
	}
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return nil, fmt.Errorf("sqlstore: tenant id is required")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("tenant_id", "=", tenantID),
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.active = ?", true)
		}),
		repository.OrderBy("created_at ASC"),
	)
	if err != nil {
		return nil, err
	}
	endpoints := make([]core.Webhook, 0, len(records))
	for _, record := range records {
		endpoint := webhookToDomain(record)
		if endpoint.SubscribedTo(event) {
			endpoints = append(endpoints, endpoint)
		}
	}
	return endpoints, nil
}

func (s *WebhookStore) Get(ctx context.Context, id string) (core.Webhook, error) {
	if s == nil || s.db == nil {
		return core.Webhook{}, fmt.Errorf("sqlstore: webhook store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return core.Webhook{}, fmt.Errorf("sqlstore: webhook id is required")
	}
	record := &webhookRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.Webhook{}, fmt.Errorf("sqlstore: webhook %q not found", id)
		}
		return core.Webhook{}, err
	}
	return webhookToDomain(record), nil
}

func (s *WebhookStore) Save(ctx context.Context, in core.SaveWebhookInput) (core.Webhook, error) {
	if s == nil || s.db == nil {
		return core.Webhook{}, fmt.Errorf("sqlstore: webhook store is not configured")
	}
	id := strings.TrimSpace(in.ID)
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now().UTC()
	record := &webhookRecord{
		ID:        id,
		TenantID:  strings.TrimSpace(in.TenantID),
		URL:       strings.TrimSpace(in.URL),
		Secret:    in.Secret,
		Events:    eventTypesToStrings(in.Events),
		Active:    in.Active,
		Metadata:  ensureMetadataMap(in.Metadata),
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.NewInsert().
		Model(record).
		On("CONFLICT (id) DO UPDATE").
		Set("tenant_id = EXCLUDED.tenant_id").
		Set("url = EXCLUDED.url").
		Set("secret = EXCLUDED.secret").
		Set("events = EXCLUDED.events").
		Set("active = EXCLUDED.active").
		Set("metadata = EXCLUDED.metadata").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return core.Webhook{}, err
	}
	return s.Get(ctx, id)
}

func (s *WebhookStore) Deactivate(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: webhook store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("sqlstore: webhook id is required")
	}
	result, err := s.db.NewUpdate().
		Model((*webhookRecord)(nil)).
		Set("active = ?", false).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("sqlstore: webhook %q not found", id)
	}
	return nil
}

func webhookToDomain(record *webhookRecord) core.Webhook {
	if record == nil {
		return core.Webhook{}
	}
	events := make([]core.EventType, 0, len(record.Events))
	for _, raw := range record.Events {
		parsed, err := core.ParseEventType(raw)
		if err != nil {
			continue
		}
		events = append(events, parsed)
	}
	return core.Webhook{
		ID:        record.ID,
		TenantID:  record.TenantID,
		URL:       record.URL,
		Secret:    record.Secret,
		Events:    events,
		Active:    record.Active,
		CreatedAt: record.CreatedAt,
		UpdatedAt: record.UpdatedAt,
	}
}

func eventTypesToStrings(events []core.EventType) []string {
	out := make([]string, 0, len(events))
	for _, event := range events {
		out = append(out, string(event))
	}
	return out
}

func ensureMetadataMap(metadata map[string]any) map[string]any {
	if metadata == nil {
		return map[string]any{}
	}
	return metadata
}

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

// DeliveryStore persists outbound delivery lifecycles. The Mark* methods
// increment the attempt counter as part of applying the outcome, and
// ClaimDueBatch leases due rows by pushing next_retry_at forward so
// overlapping retry passes never pick up the same record.
type DeliveryStore struct {
	db   *bun.DB
	repo repository.Repository[*deliveryRecord]
}

func NewDeliveryStore(db *bun.DB) (*DeliveryStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*deliveryRecord](db, deliveryHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid delivery repository wiring: %w", err)
		}
	}
	return &DeliveryStore{
		db:   db,
		repo: repo,
	}, nil
}

func (s *DeliveryStore) Create(ctx context.Context, in core.CreateDeliveryInput) (core.WebhookDelivery, error) {
	if s == nil || s.db == nil {
		return core.WebhookDelivery{}, fmt.Errorf("sqlstore: delivery store is not configured")
	}
	webhookID := strings.TrimSpace(in.WebhookID)
	tenantID := strings.TrimSpace(in.TenantID)
	if webhookID == "" || tenantID == "" {
		return core.WebhookDelivery{}, fmt.Errorf("sqlstore: webhook id and tenant id are required")
	}
	now := time.Now().UTC()
	record := &deliveryRecord{
		ID:          uuid.NewString(),
		WebhookID:   webhookID,
		TenantID:    tenantID,
		EventType:   string(in.EventType),
		Payload:     append([]byte(nil), in.Payload...),
		Status:      string(core.DeliveryStatusPending),
		Attempts:    0,
		MaxAttempts: in.MaxAttempts,
		// Schedule the fresh record so ClaimDueBatch can reclaim it even
		// when the initial attempt's outcome never reaches the store.
		NextRetryAt: &now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		return core.WebhookDelivery{}, err
	}
	return deliveryToDomain(record), nil
}

func (s *DeliveryStore) Get(ctx context.Context, id string) (core.WebhookDelivery, error) {
	if s == nil || s.db == nil {
		return core.WebhookDelivery{}, fmt.Errorf("sqlstore: delivery store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return core.WebhookDelivery{}, fmt.Errorf("sqlstore: delivery id is required")
	}
	record := &deliveryRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.WebhookDelivery{}, fmt.Errorf("sqlstore: delivery %q not found", id)
		}
		return core.WebhookDelivery{}, err
	}
	return deliveryToDomain(record), nil
}

func (s *DeliveryStore) List(ctx context.Context, filter core.DeliveryFilter) ([]core.WebhookDelivery, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: delivery store is not configured")
	}
	perPage := filter.Limit
	if perPage <= 0 {
		perPage = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	selectors := []repository.SelectCriteria{
		repository.OrderBy("created_at DESC"),
		repository.SelectPaginate(perPage, offset),
	}
	if tenantID := strings.TrimSpace(filter.TenantID); tenantID != "" {
		selectors = append(selectors, repository.SelectBy("tenant_id", "=", tenantID))
	}
	if webhookID := strings.TrimSpace(filter.WebhookID); webhookID != "" {
		selectors = append(selectors, repository.SelectBy("webhook_id", "=", webhookID))
	}
	if filter.EventType != "" {
		selectors = append(selectors, repository.SelectBy("event_type", "=", string(filter.EventType)))
	}
	if filter.Status != "" {
		selectors = append(selectors, repository.SelectBy("status", "=", string(filter.Status)))
	}
	records, _, err := s.repo.List(ctx, selectors...)
	if err != nil {
		return nil, err
	}
	deliveries := make([]core.WebhookDelivery, 0, len(records))
	for _, record := range records {
		deliveries = append(deliveries, deliveryToDomain(record))
	}
	return deliveries, nil
}

func (s *DeliveryStore) MarkSuccess(ctx context.Context, id string, responseCode int, responseBody string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: delivery store is not configured")
	}
	return s.applyOutcome(ctx, id, func(query *bun.UpdateQuery) *bun.UpdateQuery {
		return query.
			Set("status = ?", string(core.DeliveryStatusSuccess)).
			Set("last_error = ''").
			Set("response_code = ?", responseCode).
			Set("response_body = ?", responseBody).
			Set("next_retry_at = NULL")
	})
}

func (s *DeliveryStore) MarkRetry(ctx context.Context, id string, cause string, responseCode int, responseBody string, nextRetryAt time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: delivery store is not configured")
	}
	return s.applyOutcome(ctx, id, func(query *bun.UpdateQuery) *bun.UpdateQuery {
		return query.
			Set("status = ?", string(core.DeliveryStatusRetrying)).
			Set("last_error = ?", cause).
			Set("response_code = ?", responseCode).
			Set("response_body = ?", responseBody).
			Set("next_retry_at = ?", nextRetryAt.UTC())
	})
}

func (s *DeliveryStore) MarkFailed(ctx context.Context, id string, cause string, responseCode int, responseBody string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: delivery store is not configured")
	}
	return s.applyOutcome(ctx, id, func(query *bun.UpdateQuery) *bun.UpdateQuery {
		return query.
			Set("status = ?", string(core.DeliveryStatusFailed)).
			Set("last_error = ?", cause).
			Set("response_code = ?", responseCode).
			Set("response_body = ?", responseBody).
			Set("next_retry_at = NULL")
	})
}

func (s *DeliveryStore) applyOutcome(ctx context.Context, id string, apply func(*bun.UpdateQuery) *bun.UpdateQuery) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("sqlstore: delivery id is required")
	}
	query := s.db.NewUpdate().
		Model((*deliveryRecord)(nil)).
		Set("attempts = attempts + 1").
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id)
	result, err := apply(query).Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("sqlstore: delivery %q not found", id)
	}
	return nil
}

func (s *DeliveryStore) ClaimDueBatch(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]core.WebhookDelivery, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: delivery store is not configured")
	}
	if limit <= 0 {
		limit = 1
	}
	now = now.UTC()
	leaseUntil := now.Add(lease)
	var records []deliveryRecord
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		query := `
WITH claimed AS (
	SELECT id
	FROM koya_webhook_deliveries
	WHERE status IN (?, ?)
	  AND next_retry_at IS NOT NULL
	  AND next_retry_at <= ?
	ORDER BY next_retry_at ASC
	LIMIT ?
)
UPDATE koya_webhook_deliveries
SET next_retry_at = ?, updated_at = ?
WHERE id IN (SELECT id FROM claimed)
  AND status IN (?, ?)
RETURNING
	id,
	webhook_id,
	tenant_id,
	event_type,
	payload,
	status,
	attempts,
	max_attempts,
	last_error,
	response_code,
	response_body,
	next_retry_at,
	created_at,
	updated_at
`
		return tx.NewRaw(
			query,
			string(core.DeliveryStatusPending),
			string(core.DeliveryStatusRetrying),
			now,
			limit,
			leaseUntil,
			now,
			string(core.DeliveryStatusPending),
			string(core.DeliveryStatusRetrying),
		).Scan(ctx, &records)
	})
	if err != nil {
		return nil, err
	}

	deliveries := make([]core.WebhookDelivery, 0, len(records))
	for i := range records {
		deliveries = append(deliveries, deliveryToDomain(&records[i]))
	}
	return deliveries, nil
}

func deliveryToDomain(record *deliveryRecord) core.WebhookDelivery {
	if record == nil {
		return core.WebhookDelivery{}
	}
	delivery := core.WebhookDelivery{
		ID:           record.ID,
		WebhookID:    record.WebhookID,
		TenantID:     record.TenantID,
		EventType:    core.EventType(record.EventType),
		Payload:      append([]byte(nil), record.Payload...),
		Status:       core.DeliveryStatus(record.Status),
		Attempts:     record.Attempts,
		MaxAttempts:  record.MaxAttempts,
		LastError:    record.LastError,
		ResponseCode: record.ResponseCode,
		ResponseBody: record.ResponseBody,
		CreatedAt:    record.CreatedAt,
		UpdatedAt:    record.UpdatedAt,
	}
	if record.NextRetryAt != nil {
		next := record.NextRetryAt.UTC()
		delivery.NextRetryAt = &next
	}
	return delivery
}

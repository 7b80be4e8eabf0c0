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

// FailedWebhookStore is the dead-letter table for inbound webhooks whose
// processing failed. It shares the claim and outcome contract with
// DeliveryStore.
type FailedWebhookStore struct {
	db   *bun.DB
	repo repository.Repository[*failedWebhookRecord]
}

func NewFailedWebhookStore(db *bun.DB) (*FailedWebhookStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*failedWebhookRecord](db, failedWebhookHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid failed webhook repository wiring: %w", err)
		}
	}
	return &FailedWebhookStore{
		db:   db,
		repo: repo,
	}, nil
}

func (s *FailedWebhookStore) Create(ctx context.Context, in core.CreateFailedWebhookInput) (core.FailedWebhook, error) {
	if s == nil || s.db == nil {
		return core.FailedWebhook{}, fmt.Errorf("sqlstore: failed webhook store is not configured")
	}
	source := strings.TrimSpace(in.Source)
	if source == "" {
		return core.FailedWebhook{}, fmt.Errorf("sqlstore: source is required")
	}
	now := time.Now().UTC()
	nextRetryAt := in.NextRetryAt.UTC()
	record := &failedWebhookRecord{
		ID:          uuid.NewString(),
		Source:      source,
		EventType:   strings.TrimSpace(in.EventType),
		Payload:     append([]byte(nil), in.Payload...),
		LastError:   in.Cause,
		RetryCount:  0,
		MaxRetries:  in.MaxRetries,
		Status:      string(core.FailureStatusPending),
		NextRetryAt: &nextRetryAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		return core.FailedWebhook{}, err
	}
	return failedWebhookToDomain(record), nil
}

func (s *FailedWebhookStore) Get(ctx context.Context, id string) (core.FailedWebhook, error) {
	if s == nil || s.db == nil {
		return core.FailedWebhook{}, fmt.Errorf("sqlstore: failed webhook store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return core.FailedWebhook{}, fmt.Errorf("sqlstore: failed webhook id is required")
	}
	record := &failedWebhookRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.FailedWebhook{}, fmt.Errorf("sqlstore: failed webhook %q not found", id)
		}
		return core.FailedWebhook{}, err
	}
	return failedWebhookToDomain(record), nil
}

func (s *FailedWebhookStore) List(ctx context.Context, filter core.FailedWebhookFilter) ([]core.FailedWebhook, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: failed webhook store is not configured")
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
	if source := strings.TrimSpace(filter.Source); source != "" {
		selectors = append(selectors, repository.SelectBy("source", "=", source))
	}
	if filter.Status != "" {
		selectors = append(selectors, repository.SelectBy("status", "=", string(filter.Status)))
	}
	records, _, err := s.repo.List(ctx, selectors...)
	if err != nil {
		return nil, err
	}
	failures := make([]core.FailedWebhook, 0, len(records))
	for _, record := range records {
		failures = append(failures, failedWebhookToDomain(record))
	}
	return failures, nil
}

func (s *FailedWebhookStore) MarkSuccess(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: failed webhook store is not configured")
	}
	return s.applyOutcome(ctx, id, func(query *bun.UpdateQuery) *bun.UpdateQuery {
		return query.
			Set("status = ?", string(core.FailureStatusSuccess)).
			Set("last_error = ''").
			Set("next_retry_at = NULL")
	})
}

func (s *FailedWebhookStore) MarkRetry(ctx context.Context, id string, cause string, nextRetryAt time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: failed webhook store is not configured")
	}
	return s.applyOutcome(ctx, id, func(query *bun.UpdateQuery) *bun.UpdateQuery {
		return query.
			Set("status = ?", string(core.FailureStatusRetrying)).
			Set("last_error = ?", cause).
			Set("next_retry_at = ?", nextRetryAt.UTC())
	})
}

func (s *FailedWebhookStore) MarkFailed(ctx context.Context, id string, cause string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: failed webhook store is not configured")
	}
	return s.applyOutcome(ctx, id, func(query *bun.UpdateQuery) *bun.UpdateQuery {
		return query.
			Set("status = ?", string(core.FailureStatusFailed)).
			Set("last_error = ?", cause).
			Set("next_retry_at = NULL")
	})
}

func (s *FailedWebhookStore) applyOutcome(ctx context.Context, id string, apply func(*bun.UpdateQuery) *bun.UpdateQuery) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("sqlstore: failed webhook id is required")
	}
	query := s.db.NewUpdate().
		Model((*failedWebhookRecord)(nil)).
		Set("retry_count = retry_count + 1").
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
		return fmt.Errorf("sqlstore: failed webhook %q not found", id)
	}
	return nil
}

func (s *FailedWebhookStore) ClaimDueBatch(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]core.FailedWebhook, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: failed webhook store is not configured")
	}
	if limit <= 0 {
		limit = 1
	}
	now = now.UTC()
	leaseUntil := now.Add(lease)
	var records []failedWebhookRecord
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		query := `
WITH claimed AS (
	SELECT id
	FROM koya_failed_webhooks
	WHERE status IN (?, ?)
	  AND next_retry_at IS NOT NULL
	  AND next_retry_at <= ?
	ORDER BY next_retry_at ASC
	LIMIT ?
)
UPDATE koya_failed_webhooks
SET next_retry_at = ?, updated_at = ?
WHERE id IN (SELECT id FROM claimed)
  AND status IN (?, ?)
RETURNING
	id,
	source,
	event_type,
	payload,
	last_error,
	retry_count,
	max_retries,
	status,
	next_retry_at,
	created_at,
	updated_at
`
		return tx.NewRaw(
			query,
			string(core.FailureStatusPending),
			string(core.FailureStatusRetrying),
			now,
			limit,
			leaseUntil,
			now,
			string(core.FailureStatusPending),
			string(core.FailureStatusRetrying),
		).Scan(ctx, &records)
	})
	if err != nil {
		return nil, err
	}

	failures := make([]core.FailedWebhook, 0, len(records))
	for i := range records {
		failures = append(failures, failedWebhookToDomain(&records[i]))
	}
	return failures, nil
}

func (s *FailedWebhookStore) Stats(ctx context.Context) (core.InboundFailureStats, error) {
	if s == nil || s.db == nil {
		return core.InboundFailureStats{}, fmt.Errorf("sqlstore: failed webhook store is not configured")
	}
	stats := core.InboundFailureStats{
		ByStatus: map[core.FailureStatus]int{},
		BySource: map[string]int{},
	}

	var statusRows []struct {
		Status string `bun:"status"`
		Count  int    `bun:"count"`
	}
	err := s.db.NewSelect().
		Model((*failedWebhookRecord)(nil)).
		ColumnExpr("?TableAlias.status AS status").
		ColumnExpr("count(*) AS count").
		Group("status").
		Scan(ctx, &statusRows)
	if err != nil {
		return core.InboundFailureStats{}, err
	}
	for _, row := range statusRows {
		stats.ByStatus[core.FailureStatus(row.Status)] = row.Count
		stats.Total += row.Count
	}

	var sourceRows []struct {
		Source string `bun:"source"`
		Count  int    `bun:"count"`
	}
	err = s.db.NewSelect().
		Model((*failedWebhookRecord)(nil)).
		ColumnExpr("?TableAlias.source AS source").
		ColumnExpr("count(*) AS count").
		Group("source").
		Scan(ctx, &sourceRows)
	if err != nil {
		return core.InboundFailureStats{}, err
	}
	for _, row := range sourceRows {
		stats.BySource[row.Source] = row.Count
	}

	return stats, nil
}

func (s *FailedWebhookStore) PurgeSucceeded(ctx context.Context, olderThan time.Time) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: failed webhook store is not configured")
	}
	result, err := s.db.NewDelete().
		Model((*failedWebhookRecord)(nil)).
		Where("status = ?", string(core.FailureStatusSuccess)).
		Where("updated_at < ?", olderThan.UTC()).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

func failedWebhookToDomain(record *failedWebhookRecord) core.FailedWebhook {
	if record == nil {
		return core.FailedWebhook{}
	}
	failure := core.FailedWebhook{
		ID:         record.ID,
		Source:     record.Source,
		EventType:  record.EventType,
		Payload:    append([]byte(nil), record.Payload...),
		LastError:  record.LastError,
		RetryCount: record.RetryCount,
		MaxRetries: record.MaxRetries,
		Status:     core.FailureStatus(record.Status),
		CreatedAt:  record.CreatedAt,
		UpdatedAt:  record.UpdatedAt,
	}
	if record.NextRetryAt != nil {
		next := record.NextRetryAt.UTC()
		failure.NextRetryAt = &next
	}
	return failure
}

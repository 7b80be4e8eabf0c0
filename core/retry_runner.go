package core

import (
	"context"
	"fmt"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// ProcessDeliveryRetries claims a batch of due outbound deliveries and
// re-attempts each one. Claiming pushes next_retry_at forward by the
// configured lease so overlapping passes never double-send a record.
func (s *Service) ProcessDeliveryRetries(ctx context.Context, batchSize int) (stats RetryStats, err error) {
	startedAt := s.clock()
	fields := map[string]any{}
	defer func() {
		fields["processed"] = stats.Processed
		fields["succeeded"] = stats.Succeeded
		fields["failed"] = stats.Failed
		s.observeOperation(ctx, startedAt, "process_delivery_retries", err, fields)
	}()

	if s == nil || s.deliveryStore == nil {
		err = s.mapError(ErrDeliveryStoreUnavailable)
		return RetryStats{}, err
	}
	if s.webhookStore == nil {
		err = s.mapError(ErrWebhookStoreUnavailable)
		return RetryStats{}, err
	}

	if batchSize <= 0 {
		batchSize = s.config.Retry.BatchSize
	}
	due, claimErr := s.deliveryStore.ClaimDueBatch(ctx, s.clock(), batchSize, s.config.Retry.ClaimLease)
	if claimErr != nil {
		err = s.mapError(claimErr)
		return RetryStats{}, err
	}

	for _, delivery := range due {
		stats.Processed++
		if s.retryDelivery(ctx, delivery) {
			stats.Succeeded++
		} else {
			stats.Failed++
		}
	}
	return stats, nil
}

func (s *Service) retryDelivery(ctx context.Context, delivery WebhookDelivery) bool {
	endpoint, err := s.webhookStore.Get(ctx, delivery.WebhookID)
	if err != nil {
		if !isNotFound(err) {
			// Transient store error: leave the record under its claim
			// lease so a later pass picks it up again.
			s.logError(ctx, "endpoint lookup failed, deferring delivery", map[string]any{
				"delivery_id": delivery.ID,
				"webhook_id":  delivery.WebhookID,
				"error":       err.Error(),
			})
			return false
		}
		s.abandonDelivery(ctx, delivery, err.Error())
		return false
	}
	if !endpoint.Active {
		s.abandonDelivery(ctx, delivery, "endpoint is no longer active")
		return false
	}

	code, responseBody, attemptErr := s.attemptDelivery(ctx, endpoint, delivery.Payload)
	if applyErr := s.applyDeliveryOutcome(ctx, delivery, code, responseBody, attemptErr); applyErr != nil {
		s.logError(ctx, "delivery outcome persist failed", map[string]any{
			"delivery_id": delivery.ID,
			"webhook_id":  delivery.WebhookID,
			"error":       applyErr.Error(),
		})
	}
	return attemptErr == nil
}

// abandonDelivery marks a delivery terminally failed because its endpoint
// is gone or deactivated. Attempt exhaustion is handled separately by
// applyDeliveryOutcome.
func (s *Service) abandonDelivery(ctx context.Context, delivery WebhookDelivery, cause string) {
	if markErr := s.deliveryStore.MarkFailed(ctx, delivery.ID, cause, 0, ""); markErr != nil {
		s.logError(ctx, "delivery abandon persist failed", map[string]any{
			"delivery_id": delivery.ID,
			"error":       markErr.Error(),
		})
	}
}

func isNotFound(err error) bool {
	mapped := webhookErrorMapper(err)
	return mapped != nil && mapped.Category == goerrors.CategoryNotFound
}

// ProcessInboundRetries claims due dead-letter records and replays each
// one through the reprocessor registered for its source. Reprocessors
// must be idempotent: a replay can race a concurrent pass at most once
// per lease window.
func (s *Service) ProcessInboundRetries(ctx context.Context, batchSize int) (stats RetryStats, err error) {
	startedAt := s.clock()
	fields := map[string]any{}
	defer func() {
		fields["processed"] = stats.Processed
		fields["succeeded"] = stats.Succeeded
		fields["failed"] = stats.Failed
		s.observeOperation(ctx, startedAt, "process_inbound_retries", err, fields)
	}()

	if s == nil || s.failedWebhookStore == nil {
		err = s.mapError(ErrInboundStoreUnavailable)
		return RetryStats{}, err
	}

	if batchSize <= 0 {
		batchSize = s.config.Inbound.BatchSize
	}
	due, claimErr := s.failedWebhookStore.ClaimDueBatch(ctx, s.clock(), batchSize, s.config.Retry.ClaimLease)
	if claimErr != nil {
		err = s.mapError(claimErr)
		return RetryStats{}, err
	}

	for _, record := range due {
		stats.Processed++
		if s.retryInbound(ctx, record) {
			stats.Succeeded++
		} else {
			stats.Failed++
		}
	}
	return stats, nil
}

func (s *Service) retryInbound(ctx context.Context, record FailedWebhook) bool {
	reprocessor, ok := s.reprocessors[normalizeSource(record.Source)]
	if !ok {
		s.applyInboundOutcome(ctx, record, fmt.Errorf("core: no reprocessor registered for source %q", record.Source))
		return false
	}

	if reprocessErr := reprocessor.Reprocess(ctx, record); reprocessErr != nil {
		s.applyInboundOutcome(ctx, record, reprocessErr)
		return false
	}

	if markErr := s.failedWebhookStore.MarkSuccess(ctx, record.ID); markErr != nil {
		s.logError(ctx, "inbound success persist failed", map[string]any{
			"failed_webhook_id": record.ID,
			"source":            record.Source,
			"error":             markErr.Error(),
		})
	}
	return true
}

func (s *Service) applyInboundOutcome(ctx context.Context, record FailedWebhook, cause error) {
	causeText := strings.TrimSpace(cause.Error())
	maxRetries := record.MaxRetries
	if maxRetries <= 0 {
		maxRetries = s.config.Inbound.MaxRetries
	}

	var markErr error
	if record.RetryCount+1 >= maxRetries {
		markErr = s.failedWebhookStore.MarkFailed(ctx, record.ID, causeText)
	} else {
		nextRetryAt := s.clock().Add(s.nextRetryDelay(record.RetryCount + 1))
		markErr = s.failedWebhookStore.MarkRetry(ctx, record.ID, causeText, nextRetryAt)
	}
	if markErr != nil {
		s.logError(ctx, "inbound outcome persist failed", map[string]any{
			"failed_webhook_id": record.ID,
			"source":            record.Source,
			"error":             markErr.Error(),
		})
	}
}

// RecordInboundFailure captures an inbound webhook whose processing
// failed so a retry pass can replay it later. The first retry is
// scheduled at the head of the backoff table.
func (s *Service) RecordInboundFailure(ctx context.Context, in RecordInboundFailureInput) (record FailedWebhook, err error) {
	startedAt := s.clock()
	fields := map[string]any{
		"source":     in.Source,
		"event_type": in.EventType,
	}
	defer func() {
		if record.ID != "" {
			fields["failed_webhook_id"] = record.ID
		}
		s.observeOperation(ctx, startedAt, "record_inbound_failure", err, fields)
	}()

	if s == nil || s.failedWebhookStore == nil {
		err = s.mapError(ErrInboundStoreUnavailable)
		return FailedWebhook{}, err
	}
	source := normalizeSource(in.Source)
	if source == "" {
		err = s.mapError(newWebhookError("core: inbound source is required", goerrors.CategoryBadInput, WebhookErrorBadInput))
		return FailedWebhook{}, err
	}
	cause := "unknown processing failure"
	if in.Cause != nil {
		cause = in.Cause.Error()
	}
	maxRetries := in.MaxRetries
	if maxRetries <= 0 {
		maxRetries = s.config.Inbound.MaxRetries
	}

	record, createErr := s.failedWebhookStore.Create(ctx, CreateFailedWebhookInput{
		Source:      source,
		EventType:   strings.TrimSpace(in.EventType),
		Payload:     in.Payload,
		Cause:       cause,
		MaxRetries:  maxRetries,
		NextRetryAt: s.clock().Add(s.nextRetryDelay(0)),
	})
	if createErr != nil {
		err = s.mapError(createErr)
		return FailedWebhook{}, err
	}
	return record, nil
}

// MarkInboundSuccess resolves a dead-letter record after an out-of-band
// replay, typically from an operator tool.
func (s *Service) MarkInboundSuccess(ctx context.Context, id string) error {
	if s == nil || s.failedWebhookStore == nil {
		return s.mapError(ErrInboundStoreUnavailable)
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return s.mapError(newWebhookError("core: failed webhook id is required", goerrors.CategoryBadInput, WebhookErrorBadInput))
	}
	if err := s.failedWebhookStore.MarkSuccess(ctx, id); err != nil {
		return s.mapError(err)
	}
	return nil
}

// MarkInboundFailed records a failed replay outcome for the record,
// scheduling the next retry or exhausting it, and returns the updated
// record.
func (s *Service) MarkInboundFailed(ctx context.Context, id string, cause error) (FailedWebhook, error) {
	if s == nil || s.failedWebhookStore == nil {
		return FailedWebhook{}, s.mapError(ErrInboundStoreUnavailable)
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return FailedWebhook{}, s.mapError(newWebhookError("core: failed webhook id is required", goerrors.CategoryBadInput, WebhookErrorBadInput))
	}
	if cause == nil {
		cause = fmt.Errorf("core: unknown processing failure")
	}

	record, err := s.failedWebhookStore.Get(ctx, id)
	if err != nil {
		return FailedWebhook{}, s.mapError(err)
	}
	s.applyInboundOutcome(ctx, record, cause)

	updated, err := s.failedWebhookStore.Get(ctx, id)
	if err != nil {
		return FailedWebhook{}, s.mapError(err)
	}
	return updated, nil
}

func (s *Service) InboundFailureStats(ctx context.Context) (InboundFailureStats, error) {
	if s == nil || s.failedWebhookStore == nil {
		return InboundFailureStats{}, s.mapError(ErrInboundStoreUnavailable)
	}
	stats, err := s.failedWebhookStore.Stats(ctx)
	if err != nil {
		return InboundFailureStats{}, s.mapError(err)
	}
	return stats, nil
}

// PurgeInboundSuccesses removes resolved dead-letter records older than
// the success retention window.
func (s *Service) PurgeInboundSuccesses(ctx context.Context) (purged int, err error) {
	startedAt := s.clock()
	fields := map[string]any{}
	defer func() {
		fields["purged"] = purged
		s.observeOperation(ctx, startedAt, "purge_inbound_successes", err, fields)
	}()

	if s == nil || s.failedWebhookStore == nil {
		err = s.mapError(ErrInboundStoreUnavailable)
		return 0, err
	}
	retention := s.config.Inbound.SuccessRetention
	if retention <= 0 {
		retention = DefaultConfig().Inbound.SuccessRetention
	}
	purged, purgeErr := s.failedWebhookStore.PurgeSucceeded(ctx, s.clock().Add(-retention))
	if purgeErr != nil {
		err = s.mapError(purgeErr)
		return 0, err
	}
	return purged, nil
}

func normalizeSource(source string) string {
	return strings.TrimSpace(strings.ToLower(source))
}

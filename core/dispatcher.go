package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// DispatchEvent fans an event out to every active endpoint of the tenant
// subscribed to that event. The payload envelope is built and serialized
// once; each endpoint gets its own delivery record, signature, and
// delivery id. Endpoint outcomes are independent: one slow or failing
// endpoint never blocks or fails the others.
func (s *Service) DispatchEvent(ctx context.Context, req DispatchEventRequest) (results []DispatchResult, err error) {
	startedAt := s.clock()
	fields := map[string]any{
		"tenant_id":  req.TenantID,
		"event_type": string(req.Event),
	}
	defer func() {
		fields["endpoints"] = len(results)
		s.observeOperation(ctx, startedAt, "dispatch_event", err, fields)
	}()

	if s == nil || s.webhookStore == nil {
		err = s.mapError(ErrWebhookStoreUnavailable)
		return nil, err
	}
	if s.deliveryStore == nil {
		err = s.mapError(ErrDeliveryStoreUnavailable)
		return nil, err
	}

	tenantID := strings.TrimSpace(req.TenantID)
	if tenantID == "" {
		err = s.mapError(newWebhookError("core: tenant id is required", goerrors.CategoryBadInput, WebhookErrorBadInput))
		return nil, err
	}
	event, parseErr := ParseEventType(string(req.Event))
	if parseErr != nil {
		err = s.mapError(parseErr)
		return nil, err
	}
	fields["event_type"] = string(event)

	endpoints, listErr := s.webhookStore.ListActiveForEvent(ctx, tenantID, event)
	if listErr != nil {
		err = s.mapError(listErr)
		return nil, err
	}
	if len(endpoints) == 0 {
		return []DispatchResult{}, nil
	}

	payload := NewWebhookPayload(event, req.Data, s.clock())
	body, marshalErr := json.Marshal(payload)
	if marshalErr != nil {
		err = s.mapError(fmt.Errorf("core: payload serialization failed: %w", marshalErr))
		return nil, err
	}

	results = make([]DispatchResult, len(endpoints))
	var wg sync.WaitGroup
	for i, endpoint := range endpoints {
		wg.Add(1)
		go func(slot int, target Webhook) {
			defer wg.Done()
			results[slot] = s.dispatchToEndpoint(ctx, target, tenantID, event, body)
		}(i, endpoint)
	}
	wg.Wait()

	return results, nil
}

func (s *Service) dispatchToEndpoint(
	ctx context.Context,
	target Webhook,
	tenantID string,
	event EventType,
	body []byte,
) DispatchResult {
	result := DispatchResult{EndpointID: target.ID}

	delivery, err := s.deliveryStore.Create(ctx, CreateDeliveryInput{
		WebhookID:   target.ID,
		TenantID:    tenantID,
		EventType:   event,
		Payload:     body,
		MaxAttempts: s.config.Retry.MaxAttempts,
	})
	if err != nil {
		result.Error = err.Error()
		s.logError(ctx, "delivery record create failed", map[string]any{
			"tenant_id":  tenantID,
			"webhook_id": target.ID,
			"event_type": string(event),
			"error":      err.Error(),
		})
		return result
	}
	result.DeliveryID = delivery.ID

	code, responseBody, attemptErr := s.attemptDelivery(ctx, target, body)
	result.ResponseCode = code
	result.Success = attemptErr == nil
	if attemptErr != nil {
		result.Error = attemptErr.Error()
	}

	if applyErr := s.applyDeliveryOutcome(ctx, delivery, code, responseBody, attemptErr); applyErr != nil {
		s.logError(ctx, "delivery outcome persist failed", map[string]any{
			"delivery_id": delivery.ID,
			"webhook_id":  target.ID,
			"error":       applyErr.Error(),
		})
	}
	return result
}

// attemptDelivery performs one signed POST to the endpoint under the
// configured per-attempt timeout. A 2xx response is success; everything
// else, including transport errors, is a failure carrying whatever status
// and truncated body was observed.
func (s *Service) attemptDelivery(ctx context.Context, target Webhook, body []byte) (int, string, error) {
	timeout := s.config.Dispatch.Timeout
	if timeout <= 0 {
		timeout = defaultDispatchTimeout
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, target.URL, bytes.NewReader(body))
	if err != nil {
		return 0, "", fmt.Errorf("core: request build failed: %w", err)
	}

	timestamp := s.clock()
	signature := s.signer.Sign(body, target.Secret, timestamp)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(HeaderSignature, signature)
	httpReq.Header.Set(HeaderTimestamp, FormatSignatureTimestamp(timestamp))
	httpReq.Header.Set(HeaderDeliveryID, uuid.NewString())
	httpReq.Header.Set("User-Agent", s.config.Dispatch.UserAgent)

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return 0, "", fmt.Errorf("core: delivery attempt failed: %w", err)
	}
	defer resp.Body.Close()

	responseBody := s.readTruncatedBody(resp.Body)
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return resp.StatusCode, responseBody, fmt.Errorf("core: endpoint returned status %d", resp.StatusCode)
	}
	return resp.StatusCode, responseBody, nil
}

func (s *Service) readTruncatedBody(reader io.Reader) string {
	limit := s.config.Dispatch.MaxResponseBytes
	if limit <= 0 {
		limit = defaultMaxResponseBytes
	}
	data, err := io.ReadAll(io.LimitReader(reader, int64(limit)))
	if err != nil {
		return ""
	}
	return string(data)
}

// applyDeliveryOutcome persists the result of one attempt. The stores own
// the attempt increment, so the retry delay index is the attempt count as
// it stood when the record was claimed or created.
func (s *Service) applyDeliveryOutcome(
	ctx context.Context,
	delivery WebhookDelivery,
	responseCode int,
	responseBody string,
	attemptErr error,
) error {
	if attemptErr == nil {
		return s.deliveryStore.MarkSuccess(ctx, delivery.ID, responseCode, responseBody)
	}

	cause := attemptErr.Error()
	maxAttempts := delivery.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = s.config.Retry.MaxAttempts
	}
	if delivery.Attempts+1 >= maxAttempts {
		return s.deliveryStore.MarkFailed(ctx, delivery.ID, cause, responseCode, responseBody)
	}
	nextRetryAt := s.clock().Add(s.nextRetryDelay(delivery.Attempts))
	return s.deliveryStore.MarkRetry(ctx, delivery.ID, cause, responseCode, responseBody, nextRetryAt)
}

func (s *Service) nextRetryDelay(index int) time.Duration {
	policy := s.retryPolicy
	if policy == nil {
		policy = DefaultSchedulePolicy()
	}
	return policy.NextDelay(index)
}

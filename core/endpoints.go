package core

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// SaveWebhook creates or updates a tenant endpoint subscription. Event
// names are normalized through the alias table before persisting.
func (s *Service) SaveWebhook(ctx context.Context, in SaveWebhookInput) (saved Webhook, err error) {
	startedAt := s.clock()
	fields := map[string]any{
		"tenant_id":  in.TenantID,
		"webhook_id": in.ID,
	}
	defer func() {
		if saved.ID != "" {
			fields["webhook_id"] = saved.ID
		}
		s.observeOperation(ctx, startedAt, "save_webhook", err, fields)
	}()

	if s == nil || s.webhookStore == nil {
		err = s.mapError(ErrWebhookStoreUnavailable)
		return Webhook{}, err
	}
	if err = validateSaveWebhookInput(&in); err != nil {
		err = s.mapError(err)
		return Webhook{}, err
	}

	saved, saveErr := s.webhookStore.Save(ctx, in)
	if saveErr != nil {
		err = s.mapError(saveErr)
		return Webhook{}, err
	}
	return saved, nil
}

func validateSaveWebhookInput(in *SaveWebhookInput) error {
	in.TenantID = strings.TrimSpace(in.TenantID)
	if in.TenantID == "" {
		return newWebhookError("core: tenant id is required", goerrors.CategoryBadInput, WebhookErrorBadInput)
	}
	in.URL = strings.TrimSpace(in.URL)
	parsed, parseErr := url.Parse(in.URL)
	if parseErr != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return newWebhookError("core: endpoint url must be a valid http(s) url", goerrors.CategoryBadInput, WebhookErrorBadInput)
	}
	if strings.TrimSpace(in.Secret) == "" {
		return newWebhookError("core: signing secret is required", goerrors.CategoryBadInput, WebhookErrorBadInput)
	}
	if len(in.Events) == 0 {
		return newWebhookError("core: at least one event subscription is required", goerrors.CategoryBadInput, WebhookErrorBadInput)
	}

	normalized := make([]EventType, 0, len(in.Events))
	seen := map[EventType]bool{}
	for _, event := range in.Events {
		parsed, eventErr := ParseEventType(string(event))
		if eventErr != nil {
			return newWebhookError(
				fmt.Sprintf("core: unsupported event type %q", event),
				goerrors.CategoryBadInput,
				WebhookErrorBadInput,
			)
		}
		if seen[parsed] {
			continue
		}
		seen[parsed] = true
		normalized = append(normalized, parsed)
	}
	in.Events = normalized
	return nil
}

// DeactivateWebhook retires an endpoint without deleting its delivery
// history. Pending deliveries for the endpoint fail on their next retry
// pass.
func (s *Service) DeactivateWebhook(ctx context.Context, id string) (err error) {
	startedAt := s.clock()
	fields := map[string]any{"webhook_id": id}
	defer func() {
		s.observeOperation(ctx, startedAt, "deactivate_webhook", err, fields)
	}()

	if s == nil || s.webhookStore == nil {
		err = s.mapError(ErrWebhookStoreUnavailable)
		return err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		err = s.mapError(newWebhookError("core: webhook id is required", goerrors.CategoryBadInput, WebhookErrorBadInput))
		return err
	}
	if deactivateErr := s.webhookStore.Deactivate(ctx, id); deactivateErr != nil {
		err = s.mapError(deactivateErr)
		return err
	}
	return nil
}

func (s *Service) GetWebhook(ctx context.Context, id string) (Webhook, error) {
	if s == nil || s.webhookStore == nil {
		return Webhook{}, s.mapError(ErrWebhookStoreUnavailable)
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return Webhook{}, s.mapError(newWebhookError("core: webhook id is required", goerrors.CategoryBadInput, WebhookErrorBadInput))
	}
	endpoint, err := s.webhookStore.Get(ctx, id)
	if err != nil {
		return Webhook{}, s.mapError(err)
	}
	return endpoint, nil
}

func (s *Service) GetDelivery(ctx context.Context, id string) (WebhookDelivery, error) {
	if s == nil || s.deliveryStore == nil {
		return WebhookDelivery{}, s.mapError(ErrDeliveryStoreUnavailable)
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return WebhookDelivery{}, s.mapError(newWebhookError("core: delivery id is required", goerrors.CategoryBadInput, WebhookErrorBadInput))
	}
	delivery, err := s.deliveryStore.Get(ctx, id)
	if err != nil {
		return WebhookDelivery{}, s.mapError(err)
	}
	return delivery, nil
}

func (s *Service) ListDeliveries(ctx context.Context, filter DeliveryFilter) ([]WebhookDelivery, error) {
	if s == nil || s.deliveryStore == nil {
		return nil, s.mapError(ErrDeliveryStoreUnavailable)
	}
	deliveries, err := s.deliveryStore.List(ctx, filter)
	if err != nil {
		return nil, s.mapError(err)
	}
	return deliveries, nil
}

func (s *Service) ListFailedWebhooks(ctx context.Context, filter FailedWebhookFilter) ([]FailedWebhook, error) {
	if s == nil || s.failedWebhookStore == nil {
		return nil, s.mapError(ErrInboundStoreUnavailable)
	}
	records, err := s.failedWebhookStore.List(ctx, filter)
	if err != nil {
		return nil, s.mapError(err)
	}
	return records, nil
}

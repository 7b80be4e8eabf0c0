package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	repositorycache "github.com/goliatone/go-repository-cache/cache"

	"github.com/cabibbz/koya-caller-sub009/core"
)

const webhookCacheKeyPrefix = "koya::webhooks::v1"

// CachedWebhookStore layers a read-through cache over a WebhookStore.
// Endpoint lookups dominate dispatch hot paths while writes are rare;
// every write invalidates both the per-endpoint key and the tenant
// fan-out key.
type CachedWebhookStore struct {
	base  core.WebhookStore
	cache repositorycache.CacheService
}

func NewCachedWebhookStore(base core.WebhookStore, cacheService repositorycache.CacheService) (*CachedWebhookStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base webhook store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: webhook cache service is required")
	}
	return &CachedWebhookStore{base: base, cache: cacheService}, nil
}

// WebhookCacheKey returns the deterministic per-endpoint cache key:
// koya::webhooks::v1::endpoint::<id> with the id URL-path escaped.
func WebhookCacheKey(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("sqlstore: webhook id is required")
	}
	return strings.Join([]string{webhookCacheKeyPrefix, "endpoint", url.PathEscape(id)}, "::"), nil
}

// TenantEventCacheKey returns the fan-out cache key for the active
// endpoints of one (tenant, event) pair.
func TenantEventCacheKey(tenantID string, event core.EventType) (string, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return "", fmt.Errorf("sqlstore: tenant id is required")
	}
	segments := []string{
		webhookCacheKeyPrefix,
		"tenant",
		url.PathEscape(tenantID),
		url.PathEscape(string(event)),
	}
	return strings.Join(segments, "::"), nil
}

func (s *CachedWebhookStore) ListActiveForEvent(ctx context.Context, tenantID string, event core.EventType) ([]core.Webhook, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return nil, fmt.Errorf("sqlstore: cached webhook store is not configured")
	}
	cacheKey, err := TenantEventCacheKey(tenantID, event)
	if err != nil {
		return nil, err
	}
	endpoints, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) ([]core.Webhook, error) {
		return s.base.ListActiveForEvent(ctx, tenantID, event)
	})
	if err != nil {
		return nil, err
	}
	return cloneWebhooks(endpoints), nil
}

func (s *CachedWebhookStore) Get(ctx context.Context, id string) (core.Webhook, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Webhook{}, fmt.Errorf("sqlstore: cached webhook store is not configured")
	}
	cacheKey, err := WebhookCacheKey(id)
	if err != nil {
		return core.Webhook{}, err
	}
	endpoint, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.Webhook, error) {
		return s.base.Get(ctx, id)
	})
	if err != nil {
		return core.Webhook{}, err
	}
	return cloneWebhook(endpoint), nil
}

func (s *CachedWebhookStore) Save(ctx context.Context, in core.SaveWebhookInput) (core.Webhook, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Webhook{}, fmt.Errorf("sqlstore: cached webhook store is not configured")
	}
	// Capture the pre-image on updates so event subscriptions removed
	// by this write lose their fan-out keys too, not just the ones the
	// saved record still carries.
	var stale []core.EventType
	if strings.TrimSpace(in.ID) != "" {
		if previous, err := s.base.Get(ctx, in.ID); err == nil {
			stale = previous.Events
		}
	}
	endpoint, err := s.base.Save(ctx, in)
	if err != nil {
		return core.Webhook{}, err
	}
	if err := s.invalidate(ctx, endpoint, stale...); err != nil {
		return core.Webhook{}, err
	}
	return endpoint, nil
}

func (s *CachedWebhookStore) Deactivate(ctx context.Context, id string) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached webhook store is not configured")
	}
	endpoint, err := s.base.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.base.Deactivate(ctx, id); err != nil {
		return err
	}
	return s.invalidate(ctx, endpoint)
}

func (s *CachedWebhookStore) invalidate(ctx context.Context, endpoint core.Webhook, staleEvents ...core.EventType) error {
	endpointKey, err := WebhookCacheKey(endpoint.ID)
	if err != nil {
		return err
	}
	if err := s.cache.Delete(ctx, endpointKey); err != nil {
		return err
	}
	seen := make(map[core.EventType]struct{}, len(endpoint.Events)+len(staleEvents))
	events := make([]core.EventType, 0, len(endpoint.Events)+len(staleEvents))
	for _, event := range append(append([]core.EventType{}, endpoint.Events...), staleEvents...) {
		if _, dup := seen[event]; dup {
			continue
		}
		seen[event] = struct{}{}
		events = append(events, event)
	}
	for _, event := range events {
		tenantKey, err := TenantEventCacheKey(endpoint.TenantID, event)
		if err != nil {
			return err
		}
		if err := s.cache.Delete(ctx, tenantKey); err != nil {
			return err
		}
	}
	return nil
}

func cloneWebhook(endpoint core.Webhook) core.Webhook {
	cloned := endpoint
	cloned.Events = append([]core.EventType(nil), endpoint.Events...)
	return cloned
}

func cloneWebhooks(endpoints []core.Webhook) []core.Webhook {
	cloned := make([]core.Webhook, 0, len(endpoints))
	for _, endpoint := range endpoints {
		cloned = append(cloned, cloneWebhook(endpoint))
	}
	return cloned
}

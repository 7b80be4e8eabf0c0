package core

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

func readAllBody(body io.ReadCloser) ([]byte, error) {
	defer body.Close()
	return io.ReadAll(body)
}

func newStringReadCloser(value string) io.ReadCloser {
	return io.NopCloser(strings.NewReader(value))
}

type memoryWebhookStore struct {
	mu   sync.Mutex
	next int
	byID map[string]Webhook
}

func newMemoryWebhookStore() *memoryWebhookStore {
	return &memoryWebhookStore{byID: map[string]Webhook{}}
}

func (s *memoryWebhookStore) ListActiveForEvent(_ context.Context, tenantID string, event EventType) ([]Webhook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	matches := []Webhook{}
	for _, endpoint := range s.byID {
		if endpoint.Active && endpoint.TenantID == tenantID && endpoint.SubscribedTo(event) {
			matches = append(matches, endpoint)
		}
	}
	return matches, nil
}

func (s *memoryWebhookStore) Get(_ context.Context, id string) (Webhook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	endpoint, ok := s.byID[id]
	if !ok {
		return Webhook{}, fmt.Errorf("webhook %q not found", id)
	}
	return endpoint, nil
}

func (s *memoryWebhookStore) Save(_ context.Context, in SaveWebhookInput) (Webhook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := strings.TrimSpace(in.ID)
	if id == "" {
		s.next++
		id = fmt.Sprintf("wh_%d", s.next)
	}
	now := time.Now().UTC()
	endpoint := Webhook{
		ID:        id,
		TenantID:  in.TenantID,
		URL:       in.URL,
		Secret:    in.Secret,
		Events:    copyEventTypes(in.Events),
		Active:    in.Active,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if existing, ok := s.byID[id]; ok {
		endpoint.CreatedAt = existing.CreatedAt
	}
	s.byID[id] = endpoint
	return endpoint, nil
}

func (s *memoryWebhookStore) Deactivate(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	endpoint, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("webhook %q not found", id)
	}
	endpoint.Active = false
	endpoint.UpdatedAt = time.Now().UTC()
	s.byID[id] = endpoint
	return nil
}

type memoryDeliveryStore struct {
	mu   sync.Mutex
	next int
	byID map[string]WebhookDelivery
}

func newMemoryDeliveryStore() *memoryDeliveryStore {
	return &memoryDeliveryStore{byID: map[string]WebhookDelivery{}}
}

func (s *memoryDeliveryStore) Create(_ context.Context, in CreateDeliveryInput) (WebhookDelivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	now := time.Now().UTC()
	delivery := WebhookDelivery{
		ID:          fmt.Sprintf("del_%d", s.next),
		WebhookID:   in.WebhookID,
		TenantID:    in.TenantID,
		EventType:   in.EventType,
		Payload:     append([]byte(nil), in.Payload...),
		Status:      DeliveryStatusPending,
		MaxAttempts: in.MaxAttempts,
		NextRetryAt: &now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.byID[delivery.ID] = delivery
	return delivery, nil
}

func (s *memoryDeliveryStore) Get(_ context.Context, id string) (WebhookDelivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delivery, ok := s.byID[id]
	if !ok {
		return WebhookDelivery{}, fmt.Errorf("delivery %q not found", id)
	}
	return delivery, nil
}

func (s *memoryDeliveryStore) List(_ context.Context, filter DeliveryFilter) ([]WebhookDelivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	matches := []WebhookDelivery{}
	for _, delivery := range s.byID {
		if filter.TenantID != "" && delivery.TenantID != filter.TenantID {
			continue
		}
		if filter.WebhookID != "" && delivery.WebhookID != filter.WebhookID {
			continue
		}
		if filter.Status != "" && delivery.Status != filter.Status {
			continue
		}
		matches = append(matches, delivery)
	}
	return matches, nil
}

func (s *memoryDeliveryStore) MarkSuccess(_ context.Context, id string, responseCode int, responseBody string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delivery, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("delivery %q not found", id)
	}
	delivery.Status = DeliveryStatusSuccess
	delivery.Attempts++
	delivery.ResponseCode = responseCode
	delivery.ResponseBody = responseBody
	delivery.LastError = ""
	delivery.NextRetryAt = nil
	delivery.UpdatedAt = time.Now().UTC()
	s.byID[id] = delivery
	return nil
}

func (s *memoryDeliveryStore) MarkRetry(_ context.Context, id string, cause string, responseCode int, responseBody string, nextRetryAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delivery, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("delivery %q not found", id)
	}
	delivery.Status = DeliveryStatusRetrying
	delivery.Attempts++
	delivery.LastError = cause
	delivery.ResponseCode = responseCode
	delivery.ResponseBody = responseBody
	next := nextRetryAt.UTC()
	delivery.NextRetryAt = &next
	delivery.UpdatedAt = time.Now().UTC()
	s.byID[id] = delivery
	return nil
}

func (s *memoryDeliveryStore) MarkFailed(_ context.Context, id string, cause string, responseCode int, responseBody string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delivery, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("delivery %q not found", id)
	}
	delivery.Status = DeliveryStatusFailed
	delivery.Attempts++
	delivery.LastError = cause
	delivery.ResponseCode = responseCode
	delivery.ResponseBody = responseBody
	delivery.NextRetryAt = nil
	delivery.UpdatedAt = time.Now().UTC()
	s.byID[id] = delivery
	return nil
}

func (s *memoryDeliveryStore) ClaimDueBatch(_ context.Context, now time.Time, limit int, lease time.Duration) ([]WebhookDelivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	claimed := []WebhookDelivery{}
	for id, delivery := range s.byID {
		if len(claimed) >= limit {
			break
		}
		if delivery.Status != DeliveryStatusPending && delivery.Status != DeliveryStatusRetrying {
			continue
		}
		if delivery.NextRetryAt == nil || delivery.NextRetryAt.After(now) {
			continue
		}
		leased := now.Add(lease)
		delivery.NextRetryAt = &leased
		s.byID[id] = delivery
		claimed = append(claimed, delivery)
	}
	return claimed, nil
}

type memoryFailedWebhookStore struct {
	mu   sync.Mutex
	next int
	byID map[string]FailedWebhook
}

func newMemoryFailedWebhookStore() *memoryFailedWebhookStore {
	return &memoryFailedWebhookStore{byID: map[string]FailedWebhook{}}
}

func (s *memoryFailedWebhookStore) Create(_ context.Context, in CreateFailedWebhookInput) (FailedWebhook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	now := time.Now().UTC()
	next := in.NextRetryAt.UTC()
	record := FailedWebhook{
		ID:          fmt.Sprintf("fwh_%d", s.next),
		Source:      in.Source,
		EventType:   in.EventType,
		Payload:     append([]byte(nil), in.Payload...),
		LastError:   in.Cause,
		MaxRetries:  in.MaxRetries,
		Status:      FailureStatusPending,
		NextRetryAt: &next,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.byID[record.ID] = record
	return record, nil
}

func (s *memoryFailedWebhookStore) Get(_ context.Context, id string) (FailedWebhook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.byID[id]
	if !ok {
		return FailedWebhook{}, fmt.Errorf("failed webhook %q not found", id)
	}
	return record, nil
}

func (s *memoryFailedWebhookStore) List(_ context.Context, filter FailedWebhookFilter) ([]FailedWebhook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	matches := []FailedWebhook{}
	for _, record := range s.byID {
		if filter.Source != "" && record.Source != filter.Source {
			continue
		}
		if filter.Status != "" && record.Status != filter.Status {
			continue
		}
		matches = append(matches, record)
	}
	return matches, nil
}

func (s *memoryFailedWebhookStore) MarkSuccess(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("failed webhook %q not found", id)
	}
	record.Status = FailureStatusSuccess
	record.RetryCount++
	record.NextRetryAt = nil
	record.UpdatedAt = time.Now().UTC()
	s.byID[id] = record
	return nil
}

func (s *memoryFailedWebhookStore) MarkRetry(_ context.Context, id string, cause string, nextRetryAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("failed webhook %q not found", id)
	}
	record.Status = FailureStatusRetrying
	record.RetryCount++
	record.LastError = cause
	next := nextRetryAt.UTC()
	record.NextRetryAt = &next
	record.UpdatedAt = time.Now().UTC()
	s.byID[id] = record
	return nil
}

func (s *memoryFailedWebhookStore) MarkFailed(_ context.Context, id string, cause string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("failed webhook %q not found", id)
	}
	record.Status = FailureStatusFailed
	record.RetryCount++
	record.LastError = cause
	record.NextRetryAt = nil
	record.UpdatedAt = time.Now().UTC()
	s.byID[id] = record
	return nil
}

func (s *memoryFailedWebhookStore) ClaimDueBatch(_ context.Context, now time.Time, limit int, lease time.Duration) ([]FailedWebhook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	claimed := []FailedWebhook{}
	for id, record := range s.byID {
		if len(claimed) >= limit {
			break
		}
		if record.Status != FailureStatusPending && record.Status != FailureStatusRetrying {
			continue
		}
		if record.NextRetryAt == nil || record.NextRetryAt.After(now) {
			continue
		}
		leased := now.Add(lease)
		record.NextRetryAt = &leased
		s.byID[id] = record
		claimed = append(claimed, record)
	}
	return claimed, nil
}

func (s *memoryFailedWebhookStore) Stats(_ context.Context) (InboundFailureStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := InboundFailureStats{
		ByStatus: map[FailureStatus]int{},
		BySource: map[string]int{},
	}
	for _, record := range s.byID {
		stats.Total++
		stats.ByStatus[record.Status]++
		stats.BySource[record.Source]++
	}
	return stats, nil
}

func (s *memoryFailedWebhookStore) PurgeSucceeded(_ context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	purged := 0
	for id, record := range s.byID {
		if record.Status != FailureStatusSuccess {
			continue
		}
		if record.UpdatedAt.After(olderThan) {
			continue
		}
		delete(s.byID, id)
		purged++
	}
	return purged, nil
}

type stubHTTPClient struct {
	mu        sync.Mutex
	responses map[string]stubResponse
	requests  []*http.Request
	bodies    [][]byte
}

type stubResponse struct {
	status int
	body   string
	err    error
}

func newStubHTTPClient() *stubHTTPClient {
	return &stubHTTPClient{responses: map[string]stubResponse{}}
}

func (c *stubHTTPClient) respondWith(url string, status int, body string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responses[url] = stubResponse{status: status, body: body}
}

func (c *stubHTTPClient) failWith(url string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responses[url] = stubResponse{err: err}
}

func (c *stubHTTPClient) Do(req *http.Request) (*http.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	body := []byte{}
	if req.Body != nil {
		data, err := readAllBody(req.Body)
		if err != nil {
			return nil, err
		}
		body = data
	}
	c.requests = append(c.requests, req)
	c.bodies = append(c.bodies, body)

	response, ok := c.responses[req.URL.String()]
	if !ok {
		response = stubResponse{status: http.StatusOK, body: "ok"}
	}
	if response.err != nil {
		return nil, response.err
	}
	return &http.Response{
		StatusCode: response.status,
		Body:       newStringReadCloser(response.body),
		Header:     http.Header{},
	}, nil
}

func (c *stubHTTPClient) requestCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

type testReprocessor struct {
	mu     sync.Mutex
	source string
	err    error
	seen   []FailedWebhook
}

func (r *testReprocessor) Source() string { return r.source }

func (r *testReprocessor) Reprocess(_ context.Context, record FailedWebhook) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, record)
	return r.err
}

type testHarness struct {
	service    *Service
	webhooks   *memoryWebhookStore
	deliveries *memoryDeliveryStore
	failures   *memoryFailedWebhookStore
	client     *stubHTTPClient
	clock      *manualClock
}

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock(start time.Time) *manualClock {
	return &manualClock{now: start.UTC()}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestHarness(t testingT, options ...Option) *testHarness {
	t.Helper()
	harness := &testHarness{
		webhooks:   newMemoryWebhookStore(),
		deliveries: newMemoryDeliveryStore(),
		failures:   newMemoryFailedWebhookStore(),
		client:     newStubHTTPClient(),
		clock:      newManualClock(time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)),
	}
	base := []Option{
		WithWebhookStore(harness.webhooks),
		WithDeliveryStore(harness.deliveries),
		WithFailedWebhookStore(harness.failures),
		WithHTTPClient(harness.client),
		WithClock(harness.clock.Now),
	}
	service, err := NewService(Config{}, append(base, options...)...)
	if err != nil {
		t.Fatalf("NewService returned error: %v", err)
	}
	harness.service = service
	return harness
}

type testingT interface {
	Helper()
	Fatalf(format string, args ...any)
}

func (h *testHarness) saveEndpoint(t testingT, url string, events ...EventType) Webhook {
	t.Helper()
	if len(events) == 0 {
		events = []EventType{EventCallCompleted}
	}
	endpoint, err := h.service.SaveWebhook(context.Background(), SaveWebhookInput{
		TenantID: "tenant_1",
		URL:      url,
		Secret:   "whsec_test",
		Events:   events,
		Active:   true,
	})
	if err != nil {
		t.Fatalf("SaveWebhook returned error: %v", err)
	}
	return endpoint
}

package core

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestDispatchEvent_NoSubscribersIsNoOp(t *testing.T) {
	harness := newTestHarness(t)

	results, err := harness.service.DispatchEvent(context.Background(), DispatchEventRequest{
		TenantID: "tenant_1",
		Event:    EventCallCompleted,
		Data:     map[string]any{"call_id": "call_1"},
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results, got %d", len(results))
	}
	if harness.client.requestCount() != 0 {
		t.Fatalf("expected no outbound requests, got %d", harness.client.requestCount())
	}
	deliveries, _ := harness.deliveries.List(context.Background(), DeliveryFilter{})
	if len(deliveries) != 0 {
		t.Fatalf("expected no delivery records, got %d", len(deliveries))
	}
}

func TestDispatchEvent_DeliversSignedPayload(t *testing.T) {
	harness := newTestHarness(t)
	endpoint := harness.saveEndpoint(t, "https://example.com/hooks", EventAppointmentBooked)
	harness.client.respondWith(endpoint.URL, 200, `{"received":true}`)

	results, err := harness.service.DispatchEvent(context.Background(), DispatchEventRequest{
		TenantID: "tenant_1",
		Event:    EventAppointmentBooked,
		Data:     map[string]any{"appointment_id": "appt_1"},
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected one result, got %d", len(results))
	}
	if !results[0].Success {
		t.Fatalf("expected success, got error %q", results[0].Error)
	}
	if results[0].ResponseCode != 200 {
		t.Fatalf("expected response code 200, got %d", results[0].ResponseCode)
	}

	delivery, err := harness.deliveries.Get(context.Background(), results[0].DeliveryID)
	if err != nil {
		t.Fatalf("load delivery: %v", err)
	}
	if delivery.Status != DeliveryStatusSuccess {
		t.Fatalf("expected delivery success, got %s", delivery.Status)
	}
	if delivery.Attempts != 1 {
		t.Fatalf("expected one attempt, got %d", delivery.Attempts)
	}
	if delivery.ResponseBody != `{"received":true}` {
		t.Fatalf("unexpected response body %q", delivery.ResponseBody)
	}

	req := harness.client.requests[0]
	if got := req.Header.Get("Content-Type"); got != "application/json" {
		t.Fatalf("unexpected content type %q", got)
	}
	if got := req.Header.Get("User-Agent"); got != "Koya-Webhooks/1.0" {
		t.Fatalf("unexpected user agent %q", got)
	}
	if req.Header.Get(HeaderDeliveryID) == "" {
		t.Fatal("expected delivery id header")
	}

	body := harness.client.bodies[0]
	var payload WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Event != EventAppointmentBooked {
		t.Fatalf("unexpected payload event %q", payload.Event)
	}
	if payload.Data["appointment_id"] != "appt_1" {
		t.Fatalf("unexpected payload data %v", payload.Data)
	}

	verifier := NewPayloadSigner()
	verifier.Now = harness.clock.Now
	if err := verifier.Verify(body, endpoint.Secret, req.Header.Get(HeaderTimestamp), req.Header.Get(HeaderSignature)); err != nil {
		t.Fatalf("signature did not verify: %v", err)
	}
}

func TestDispatchEvent_EndpointOutcomesAreIndependent(t *testing.T) {
	harness := newTestHarness(t)
	healthy := harness.saveEndpoint(t, "https://a.example.com/hooks", EventCallCompleted)
	broken := harness.saveEndpoint(t, "https://b.example.com/hooks", EventCallCompleted)
	harness.client.respondWith(healthy.URL, 200, "ok")
	harness.client.failWith(broken.URL, fmt.Errorf("connection timed out"))

	results, err := harness.service.DispatchEvent(context.Background(), DispatchEventRequest{
		TenantID: "tenant_1",
		Event:    EventCallCompleted,
		Data:     map[string]any{"call_id": "call_1"},
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected two results, got %d", len(results))
	}

	byEndpoint := map[string]DispatchResult{}
	for _, result := range results {
		byEndpoint[result.EndpointID] = result
	}
	if !byEndpoint[healthy.ID].Success {
		t.Fatalf("expected healthy endpoint to succeed: %q", byEndpoint[healthy.ID].Error)
	}
	if byEndpoint[broken.ID].Success {
		t.Fatal("expected broken endpoint to fail")
	}

	healthyDelivery, _ := harness.deliveries.Get(context.Background(), byEndpoint[healthy.ID].DeliveryID)
	if healthyDelivery.Status != DeliveryStatusSuccess {
		t.Fatalf("expected healthy delivery success, got %s", healthyDelivery.Status)
	}

	brokenDelivery, _ := harness.deliveries.Get(context.Background(), byEndpoint[broken.ID].DeliveryID)
	if brokenDelivery.Status != DeliveryStatusRetrying {
		t.Fatalf("expected broken delivery retrying, got %s", brokenDelivery.Status)
	}
	if brokenDelivery.NextRetryAt == nil {
		t.Fatal("expected broken delivery to be scheduled")
	}
	expectedRetry := harness.clock.Now().Add(time.Minute)
	if !brokenDelivery.NextRetryAt.Equal(expectedRetry) {
		t.Fatalf("expected first retry at %v, got %v", expectedRetry, brokenDelivery.NextRetryAt)
	}
	if !strings.Contains(brokenDelivery.LastError, "connection timed out") {
		t.Fatalf("expected cause to be captured, got %q", brokenDelivery.LastError)
	}
}

func TestDispatchEvent_NonSuccessStatusSchedulesRetry(t *testing.T) {
	harness := newTestHarness(t)
	endpoint := harness.saveEndpoint(t, "https://example.com/hooks", EventLeadCaptured)
	harness.client.respondWith(endpoint.URL, 503, "upstream unavailable")

	results, err := harness.service.DispatchEvent(context.Background(), DispatchEventRequest{
		TenantID: "tenant_1",
		Event:    EventLeadCaptured,
		Data:     map[string]any{},
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if results[0].Success {
		t.Fatal("expected 503 response to fail the attempt")
	}
	if results[0].ResponseCode != 503 {
		t.Fatalf("expected status 503, got %d", results[0].ResponseCode)
	}

	delivery, _ := harness.deliveries.Get(context.Background(), results[0].DeliveryID)
	if delivery.Status != DeliveryStatusRetrying {
		t.Fatalf("expected retrying, got %s", delivery.Status)
	}
	if delivery.ResponseBody != "upstream unavailable" {
		t.Fatalf("expected response body capture, got %q", delivery.ResponseBody)
	}
}

func TestDispatchEvent_TruncatesResponseBody(t *testing.T) {
	harness := newTestHarness(t)
	endpoint := harness.saveEndpoint(t, "https://example.com/hooks", EventMessageTaken)
	harness.client.respondWith(endpoint.URL, 500, strings.Repeat("x", 5000))

	results, err := harness.service.DispatchEvent(context.Background(), DispatchEventRequest{
		TenantID: "tenant_1",
		Event:    EventMessageTaken,
		Data:     map[string]any{},
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	delivery, _ := harness.deliveries.Get(context.Background(), results[0].DeliveryID)
	if len(delivery.ResponseBody) != 2048 {
		t.Fatalf("expected response body truncated to 2048 bytes, got %d", len(delivery.ResponseBody))
	}
}

func TestDispatchEvent_NormalizesAliasEvents(t *testing.T) {
	harness := newTestHarness(t)
	endpoint := harness.saveEndpoint(t, "https://example.com/hooks", EventCallCompleted)
	harness.client.respondWith(endpoint.URL, 200, "ok")

	results, err := harness.service.DispatchEvent(context.Background(), DispatchEventRequest{
		TenantID: "tenant_1",
		Event:    EventType("call.ended"),
		Data:     map[string]any{},
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected alias to reach call.completed subscriber, got %d results", len(results))
	}

	var payload WebhookPayload
	if err := json.Unmarshal(harness.client.bodies[0], &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Event != EventCallCompleted {
		t.Fatalf("expected normalized event, got %q", payload.Event)
	}
}

func TestDispatchEvent_RejectsBadInput(t *testing.T) {
	harness := newTestHarness(t)

	if _, err := harness.service.DispatchEvent(context.Background(), DispatchEventRequest{
		TenantID: " ",
		Event:    EventCallCompleted,
	}); err == nil {
		t.Fatal("expected missing tenant to be rejected")
	}
	if _, err := harness.service.DispatchEvent(context.Background(), DispatchEventRequest{
		TenantID: "tenant_1",
		Event:    EventType("call.exploded"),
	}); err == nil {
		t.Fatal("expected unsupported event to be rejected")
	}
}

func TestDispatchEvent_SkipsEndpointsNotSubscribed(t *testing.T) {
	harness := newTestHarness(t)
	harness.saveEndpoint(t, "https://example.com/hooks", EventPaymentCollected)

	results, err := harness.service.DispatchEvent(context.Background(), DispatchEventRequest{
		TenantID: "tenant_1",
		Event:    EventCallStarted,
		Data:     map[string]any{},
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no deliveries for unsubscribed event, got %d", len(results))
	}
}

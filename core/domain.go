package core

import (
	"fmt"
	"strings"
	"time"
)

// EventType is the closed set of domain events a tenant endpoint can
// subscribe to. Historic aliases are normalized by ParseEventType.
type EventType string

const (
	EventCallStarted          EventType = "call.started"
	EventCallCompleted        EventType = "call.completed"
	EventAppointmentBooked    EventType = "appointment.booked"
	EventAppointmentUpdated   EventType = "appointment.updated"
	EventAppointmentCancelled EventType = "appointment.cancelled"
	EventMessageTaken         EventType = "message.taken"
	EventLeadCaptured         EventType = "lead.captured"
	EventPaymentCollected     EventType = "payment.collected"
)

var eventTypeAliases = map[string]EventType{
	"call.ended":          EventCallCompleted,
	"appointment.created": EventAppointmentBooked,
}

func SupportedEventTypes() []EventType {
	return []EventType{
		EventCallStarted,
		EventCallCompleted,
		EventAppointmentBooked,
		EventAppointmentUpdated,
		EventAppointmentCancelled,
		EventMessageTaken,
		EventLeadCaptured,
		EventPaymentCollected,
	}
}

func (t EventType) Valid() bool {
	switch t {
	case EventCallStarted, EventCallCompleted,
		EventAppointmentBooked, EventAppointmentUpdated, EventAppointmentCancelled,
		EventMessageTaken, EventLeadCaptured, EventPaymentCollected:
		return true
	default:
		return false
	}
}

func ParseEventType(value string) (EventType, error) {
	normalized := strings.TrimSpace(strings.ToLower(value))
	if normalized == "" {
		return "", fmt.Errorf("core: event type is required")
	}
	if alias, ok := eventTypeAliases[normalized]; ok {
		return alias, nil
	}
	candidate := EventType(normalized)
	if !candidate.Valid() {
		return "", fmt.Errorf("core: unsupported event type %q", value)
	}
	return candidate, nil
}

type DeliveryStatus string

const (
	DeliveryStatusPending  DeliveryStatus = "pending"
	DeliveryStatusSuccess  DeliveryStatus = "success"
	DeliveryStatusRetrying DeliveryStatus = "retrying"
	DeliveryStatusFailed   DeliveryStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s DeliveryStatus) Terminal() bool {
	return s == DeliveryStatusSuccess || s == DeliveryStatusFailed
}

type FailureStatus string

const (
	FailureStatusPending  FailureStatus = "pending"
	FailureStatusRetrying FailureStatus = "retrying"
	FailureStatusSuccess  FailureStatus = "success"
	FailureStatusFailed   FailureStatus = "failed"
)

func (s FailureStatus) Terminal() bool {
	return s == FailureStatusSuccess || s == FailureStatusFailed
}

// Recognized inbound webhook sources. The stores accept any non-empty
// source so new providers do not require a schema change.
const (
	SourceStripe  = "stripe"
	SourceTwilio  = "twilio"
	SourceVoiceAI = "vapi"
)

// Webhook is a tenant-owned endpoint subscription. Endpoints are
// deactivated rather than deleted so delivery history stays intact.
type Webhook struct {
	ID        string
	TenantID  string
	URL       string
	Secret    string
	Events    []EventType
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (w Webhook) SubscribedTo(event EventType) bool {
	for _, candidate := range w.Events {
		if candidate == event {
			return true
		}
	}
	return false
}

// WebhookPayload is the wire envelope shared by every endpoint in a
// fan-out. Never mutated after construction.
type WebhookPayload struct {
	Event     EventType      `json:"event"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

func NewWebhookPayload(event EventType, data map[string]any, now time.Time) WebhookPayload {
	return WebhookPayload{
		Event:     event,
		Timestamp: now.UTC(),
		Data:      copyAnyMap(data),
	}
}

// WebhookDelivery is the lifecycle record for one (endpoint, event)
// dispatch. Status moves monotonically toward success or failed; only the
// dispatch and retry components write to it.
type WebhookDelivery struct {
	ID           string
	WebhookID    string
	TenantID     string
	EventType    EventType
	Payload      []byte
	Status       DeliveryStatus
	Attempts     int
	MaxAttempts  int
	LastError    string
	ResponseCode int
	ResponseBody string
	NextRetryAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// FailedWebhook is the dead-letter record for an inbound provider webhook
// whose processing failed.
type FailedWebhook struct {
	ID          string
	Source      string
	EventType   string
	Payload     []byte
	LastError   string
	RetryCount  int
	MaxRetries  int
	Status      FailureStatus
	NextRetryAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type DispatchEventRequest struct {
	TenantID string
	Event    EventType
	Data     map[string]any
}

// DispatchResult reports the immediate outcome for one endpoint of a
// fan-out. DeliveryID references the persisted WebhookDelivery record.
type DispatchResult struct {
	EndpointID   string
	DeliveryID   string
	Success      bool
	ResponseCode int
	Error        string
}

type RecordInboundFailureInput struct {
	Source     string
	EventType  string
	Payload    []byte
	Cause      error
	MaxRetries int
}

type RetryStats struct {
	Processed int
	Succeeded int
	Failed    int
}

type InboundFailureStats struct {
	Total    int
	ByStatus map[FailureStatus]int
	BySource map[string]int
}

type DeliveryFilter struct {
	TenantID  string
	WebhookID string
	EventType EventType
	Status    DeliveryStatus
	Limit     int
	Offset    int
}

type FailedWebhookFilter struct {
	Source string
	Status FailureStatus
	Limit  int
	Offset int
}

func copyAnyMap(input map[string]any) map[string]any {
	if len(input) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(input))
	for key, value := range input {
		out[key] = value
	}
	return out
}

func copyEventTypes(events []EventType) []EventType {
	if len(events) == 0 {
		return nil
	}
	return append([]EventType(nil), events...)
}

// Package koyawebhooks is the composition surface for the webhook
// subsystem: service construction, configuration, and the domain types
// downstream applications need, re-exported from core so callers import a
// single package.
package koyawebhooks

import "github.com/cabibbz/koya-caller-sub009/core"

type Config = core.Config

type Option = core.Option

type Service = core.Service

type Webhook = core.Webhook
type WebhookPayload = core.WebhookPayload
type WebhookDelivery = core.WebhookDelivery
type FailedWebhook = core.FailedWebhook
type EventType = core.EventType
type DeliveryStatus = core.DeliveryStatus
type FailureStatus = core.FailureStatus

type DispatchEventRequest = core.DispatchEventRequest
type DispatchResult = core.DispatchResult
type RecordInboundFailureInput = core.RecordInboundFailureInput
type SaveWebhookInput = core.SaveWebhookInput
type DeliveryFilter = core.DeliveryFilter
type FailedWebhookFilter = core.FailedWebhookFilter
type RetryStats = core.RetryStats
type InboundFailureStats = core.InboundFailureStats

type WebhookStore = core.WebhookStore
type DeliveryStore = core.DeliveryStore
type FailedWebhookStore = core.FailedWebhookStore
type InboundReprocessor = core.InboundReprocessor
type RetryPolicy = core.RetryPolicy
type PayloadSigner = core.PayloadSigner

var (
	WithLogger             = core.WithLogger
	WithLoggerProvider     = core.WithLoggerProvider
	WithMetricsRecorder    = core.WithMetricsRecorder
	WithErrorFactory       = core.WithErrorFactory
	WithErrorMapper        = core.WithErrorMapper
	WithConfigProvider     = core.WithConfigProvider
	WithOptionsResolver    = core.WithOptionsResolver
	WithPersistenceClient  = core.WithPersistenceClient
	WithRepositoryFactory  = core.WithRepositoryFactory
	WithWebhookStore       = core.WithWebhookStore
	WithDeliveryStore      = core.WithDeliveryStore
	WithFailedWebhookStore = core.WithFailedWebhookStore
	WithSigner             = core.WithSigner
	WithRetryPolicy        = core.WithRetryPolicy
	WithHTTPClient         = core.WithHTTPClient
	WithInboundReprocessor = core.WithInboundReprocessor
	WithClock              = core.WithClock
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return core.Setup(cfg, opts...)
}

func NewPayloadSigner() *PayloadSigner {
	return core.NewPayloadSigner()
}

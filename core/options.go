package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ErrorFactory func(message string, category ...goerrors.Category) *goerrors.Error

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type serviceBuilder struct {
	runtimeConfig      Config
	logger             Logger
	loggerProvider     LoggerProvider
	metricsRecorder    MetricsRecorder
	errorFactory       ErrorFactory
	errorMapper        ErrorMapper
	configProvider     ConfigProvider
	optionsResolver    OptionsResolver
	persistenceClient  any
	repositoryFactory  any
	webhookStore       WebhookStore
	deliveryStore      DeliveryStore
	failedWebhookStore FailedWebhookStore
	signer             *PayloadSigner
	retryPolicy        RetryPolicy
	httpClient         HTTPDoer
	reprocessors       []InboundReprocessor
	now                func() time.Time
}

type Option func(*serviceBuilder)

func WithLogger(logger Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *serviceBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorFactory(factory ErrorFactory) Option {
	return func(b *serviceBuilder) {
		b.errorFactory = factory
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *serviceBuilder) {
		b.errorMapper = mapper
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *serviceBuilder) {
		b.optionsResolver = resolver
	}
}

func WithPersistenceClient(client any) Option {
	return func(b *serviceBuilder) {
		b.persistenceClient = client
	}
}

func WithRepositoryFactory(factory any) Option {
	return func(b *serviceBuilder) {
		b.repositoryFactory = factory
	}
}

func WithWebhookStore(store WebhookStore) Option {
	return func(b *serviceBuilder) {
		b.webhookStore = store
	}
}

func WithDeliveryStore(store DeliveryStore) Option {
	return func(b *serviceBuilder) {
		b.deliveryStore = store
	}
}

func WithFailedWebhookStore(store FailedWebhookStore) Option {
	return func(b *serviceBuilder) {
		b.failedWebhookStore = store
	}
}

func WithSigner(signer *PayloadSigner) Option {
	return func(b *serviceBuilder) {
		b.signer = signer
	}
}

func WithRetryPolicy(policy RetryPolicy) Option {
	return func(b *serviceBuilder) {
		b.retryPolicy = policy
	}
}

func WithHTTPClient(client HTTPDoer) Option {
	return func(b *serviceBuilder) {
		b.httpClient = client
	}
}

func WithInboundReprocessor(reprocessor InboundReprocessor) Option {
	return func(b *serviceBuilder) {
		if reprocessor != nil {
			b.reprocessors = append(b.reprocessors, reprocessor)
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *serviceBuilder) {
		b.now = now
	}
}

func defaultServiceBuilder(runtime Config) serviceBuilder {
	_, logger := glog.Resolve("webhooks", nil, nil)
	return serviceBuilder{
		runtimeConfig:   runtime,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorFactory:    goerrors.New,
		errorMapper:     defaultErrorMapper,
	}
}

func defaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return webhookErrorMapper(err)
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}

	dispatch := map[string]any{}
	if includeZero || cfg.Dispatch.Timeout > 0 {
		dispatch["timeout"] = cfg.Dispatch.Timeout
	}
	if includeZero || strings.TrimSpace(cfg.Dispatch.UserAgent) != "" {
		dispatch["user_agent"] = cfg.Dispatch.UserAgent
	}
	if includeZero || cfg.Dispatch.MaxResponseBytes > 0 {
		dispatch["max_response_bytes"] = cfg.Dispatch.MaxResponseBytes
	}
	if len(dispatch) > 0 {
		layer["dispatch"] = dispatch
	}

	retry := map[string]any{}
	if includeZero || cfg.Retry.MaxAttempts > 0 {
		retry["max_attempts"] = cfg.Retry.MaxAttempts
	}
	if includeZero || cfg.Retry.BatchSize > 0 {
		retry["batch_size"] = cfg.Retry.BatchSize
	}
	if includeZero || cfg.Retry.ClaimLease > 0 {
		retry["claim_lease"] = cfg.Retry.ClaimLease
	}
	if len(retry) > 0 {
		layer["retry"] = retry
	}

	inbound := map[string]any{}
	if includeZero || cfg.Inbound.MaxRetries > 0 {
		inbound["max_retries"] = cfg.Inbound.MaxRetries
	}
	if includeZero || cfg.Inbound.BatchSize > 0 {
		inbound["batch_size"] = cfg.Inbound.BatchSize
	}
	if includeZero || cfg.Inbound.FreshnessWindow > 0 {
		inbound["freshness_window"] = cfg.Inbound.FreshnessWindow
	}
	if includeZero || cfg.Inbound.SuccessRetention > 0 {
		inbound["success_retention"] = cfg.Inbound.SuccessRetention
	}
	if len(inbound) > 0 {
		layer["inbound"] = inbound
	}

	return layer
}

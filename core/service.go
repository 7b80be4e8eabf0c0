package core

import (
	"context"
	"errors"
	"net/http"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

var (
	ErrWebhookStoreUnavailable  = errors.New("core: webhook store unavailable")
	ErrDeliveryStoreUnavailable = errors.New("core: delivery store unavailable")
	ErrInboundStoreUnavailable  = errors.New("core: failed webhook store unavailable")
)

// Service dispatches outbound webhook deliveries and drives the retry
// passes for both outbound deliveries and inbound dead letters.
type Service struct {
	config             Config
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
	reprocessors       map[string]InboundReprocessor
	now                func() time.Time
}

type ServiceDependencies struct {
	Logger             Logger
	LoggerProvider     LoggerProvider
	MetricsRecorder    MetricsRecorder
	ErrorFactory       ErrorFactory
	ErrorMapper        ErrorMapper
	ConfigProvider     ConfigProvider
	OptionsResolver    OptionsResolver
	PersistenceClient  any
	RepositoryFactory  any
	WebhookStore       WebhookStore
	DeliveryStore      DeliveryStore
	FailedWebhookStore FailedWebhookStore
	Signer             *PayloadSigner
	RetryPolicy        RetryPolicy
	HTTPClient         HTTPDoer
}

func NewService(cfg Config, options ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("webhooks", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("webhooks"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.now == nil {
		builder.now = func() time.Time { return time.Now().UTC() }
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if builder.signer == nil {
		signer := NewPayloadSigner()
		signer.FreshnessWindow = finalConfig.Inbound.FreshnessWindow
		signer.Now = builder.now
		builder.signer = signer
	}
	if builder.retryPolicy == nil {
		builder.retryPolicy = DefaultSchedulePolicy()
	}
	if builder.httpClient == nil {
		builder.httpClient = &http.Client{Timeout: finalConfig.Dispatch.Timeout}
	}

	missingStores := builder.webhookStore == nil ||
		builder.deliveryStore == nil ||
		builder.failedWebhookStore == nil
	if missingStores && builder.repositoryFactory != nil {
		var storeProvider StoreProvider
		if factory, ok := builder.repositoryFactory.(RepositoryStoreFactory); ok {
			built, buildErr := factory.BuildStores(builder.persistenceClient)
			if buildErr != nil {
				return nil, mapBuildError(builder.errorMapper, buildErr)
			}
			storeProvider = built
		} else if direct, ok := builder.repositoryFactory.(StoreProvider); ok {
			storeProvider = direct
		}
		if storeProvider != nil {
			if builder.webhookStore == nil {
				builder.webhookStore = storeProvider.WebhookStore()
			}
			if builder.deliveryStore == nil {
				builder.deliveryStore = storeProvider.DeliveryStore()
			}
			if builder.failedWebhookStore == nil {
				builder.failedWebhookStore = storeProvider.FailedWebhookStore()
			}
		}
	}

	reprocessors := map[string]InboundReprocessor{}
	for _, reprocessor := range builder.reprocessors {
		if reprocessor == nil {
			continue
		}
		source := normalizeSource(reprocessor.Source())
		if source == "" {
			continue
		}
		reprocessors[source] = reprocessor
	}

	return &Service{
		config:             finalConfig,
		logger:             logger,
		loggerProvider:     provider,
		metricsRecorder:    builder.metricsRecorder,
		errorFactory:       builder.errorFactory,
		errorMapper:        builder.errorMapper,
		configProvider:     builder.configProvider,
		optionsResolver:    builder.optionsResolver,
		persistenceClient:  builder.persistenceClient,
		repositoryFactory:  builder.repositoryFactory,
		webhookStore:       builder.webhookStore,
		deliveryStore:      builder.deliveryStore,
		failedWebhookStore: builder.failedWebhookStore,
		signer:             builder.signer,
		retryPolicy:        builder.retryPolicy,
		httpClient:         builder.httpClient,
		reprocessors:       reprocessors,
		now:                builder.now,
	}, nil
}

func Setup(cfg Config, options ...Option) (*Service, error) {
	return NewService(cfg, options...)
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:             s.logger,
		LoggerProvider:     s.loggerProvider,
		MetricsRecorder:    s.metricsRecorder,
		ErrorFactory:       s.errorFactory,
		ErrorMapper:        s.errorMapper,
		ConfigProvider:     s.configProvider,
		OptionsResolver:    s.optionsResolver,
		PersistenceClient:  s.persistenceClient,
		RepositoryFactory:  s.repositoryFactory,
		WebhookStore:       s.webhookStore,
		DeliveryStore:      s.deliveryStore,
		FailedWebhookStore: s.failedWebhookStore,
		Signer:             s.signer,
		RetryPolicy:        s.retryPolicy,
		HTTPClient:         s.httpClient,
	}
}

func (s *Service) Signer() *PayloadSigner {
	if s == nil {
		return nil
	}
	return s.signer
}

func (s *Service) clock() time.Time {
	if s == nil || s.now == nil {
		return time.Now().UTC()
	}
	return s.now()
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

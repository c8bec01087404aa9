package bootstrap

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/zapgate/zapgate/config"
	"github.com/zapgate/zapgate/internal/adapters"
	"github.com/zapgate/zapgate/internal/core"
	"github.com/zapgate/zapgate/internal/data"
	"github.com/zapgate/zapgate/internal/domain/model"
	"github.com/zapgate/zapgate/internal/lightning"
	"github.com/zapgate/zapgate/internal/observability/notify/slack"
	"github.com/zapgate/zapgate/internal/observability/statsd"
	"github.com/zapgate/zapgate/internal/pricing"
	"github.com/zapgate/zapgate/internal/service"
	"github.com/zapgate/zapgate/internal/service/failurenotifier"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Jobs          *service.JobService
	Payments      *service.PaymentService
	Offerings     *service.OfferingService
	Observability ObservabilityContainer
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	MetricsSink     *statsd.Client
	FailureNotifier *failurenotifier.Service
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// BuildServices wires repositories, the pricing stack, the Lightning
// provider, and the backend adapters into the application services.
func BuildServices(deps ServiceDeps) (ServiceContainer, error) {
	if deps.Config == nil {
		return ServiceContainer{}, errors.New("config is required")
	}
	if deps.DB == nil {
		return ServiceContainer{}, errors.New("database is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config

	jobRepo := data.NewJobRepo(deps.DB, data.RepoConfig{Logger: logger})

	var cacheRepo core.CacheRepository
	if deps.RedisClient != nil {
		cacheRepo = data.NewRedisCacheRepo(deps.RedisClient)
	}

	provider, err := lightning.NewClient(lightning.ClientOptions{
		Address: cfg.Lightning.Address,
		Logger:  logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("lightning client: %w", err)
	}

	registry, err := buildAdapters(cfg, logger)
	if err != nil {
		return ServiceContainer{}, err
	}

	pricer, err := buildPricing(pricingDeps{
		Config:   cfg,
		Cache:    cacheRepo,
		Registry: registry,
		Logger:   logger,
	})
	if err != nil {
		return ServiceContainer{}, err
	}

	observability := buildObservability(logger, cfg.Observability)

	payments, err := service.NewPaymentService(service.PaymentServiceOptions{
		Repo:     jobRepo,
		Provider: provider,
		Logger:   logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("payment service: %w", err)
	}

	jobOpts := service.JobServiceOptions{
		Repo:            jobRepo,
		Provider:        provider,
		Pricer:          pricer,
		Adapters:        registry,
		Payments:        payments,
		PublicBaseURL:   cfg.HTTP.BaseURL,
		InvoiceExpiry:   cfg.Lightning.InvoiceExpiry,
		DispatchTimeout: cfg.Lightning.DispatchTimeout,
		Logger:          logger,
		FailureNotifier: observability.FailureNotifier,
	}
	if observability.MetricsSink != nil {
		jobOpts.Metrics = observability.MetricsSink
	}
	jobs, err := service.NewJobService(jobOpts)
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("job service: %w", err)
	}

	offerings, err := service.NewOfferingService(service.OfferingServiceOptions{
		Pricer:        pricer,
		PublicBaseURL: cfg.HTTP.BaseURL,
		Specs:         offeringSpecs(registry),
		Logger:        logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("offering service: %w", err)
	}

	return ServiceContainer{
		Jobs:          jobs,
		Payments:      payments,
		Offerings:     offerings,
		Observability: observability,
	}, nil
}

// buildAdapters constructs one backend adapter per enabled, fully configured
// service. A service missing credentials is skipped with a warning so one
// unconfigured backend cannot keep the others offline.
func buildAdapters(cfg *config.AppConfig, logger *slog.Logger) (*adapters.Registry, error) {
	var backends []core.BackendAdapter

	if cfg.Services.IsEnabled(string(model.ServiceGPT)) {
		if cfg.Services.OpenAI.APIKey == "" {
			logger.Warn("GPT service enabled without an api key; skipping")
		} else {
			openai, err := adapters.NewOpenAI(adapters.OpenAIOptions{
				APIKey:  cfg.Services.OpenAI.APIKey,
				BaseURL: cfg.Services.OpenAI.BaseURL,
				Logger:  logger,
			})
			if err != nil {
				return nil, fmt.Errorf("openai adapter: %w", err)
			}
			backends = append(backends, openai)
		}
	}

	if cfg.Services.IsEnabled(string(model.ServiceStableDiffusion)) {
		if cfg.Services.StableDiffusion.APIKey == "" {
			logger.Warn("STABLE service enabled without an api key; skipping")
		} else {
			sd, err := adapters.NewStableDiffusion(adapters.StableDiffusionOptions{
				APIKey:  cfg.Services.StableDiffusion.APIKey,
				BaseURL: cfg.Services.StableDiffusion.BaseURL,
				Logger:  logger,
			})
			if err != nil {
				return nil, fmt.Errorf("stable diffusion adapter: %w", err)
			}
			backends = append(backends, sd)
		}
	}

	if cfg.Services.IsEnabled(string(model.ServiceRelay)) {
		switch {
		case cfg.Services.Relay.TargetURL == "":
			logger.Warn("RELAY service enabled without a target url; skipping")
		case !cfg.Lightning.LNbits.Enabled():
			logger.Warn("RELAY service enabled without an lnbits wallet; skipping")
		default:
			payer, err := lightning.NewLNbitsPayer(lightning.LNbitsPayerOptions{
				BaseURL: cfg.Lightning.LNbits.BaseURL,
				APIKey:  cfg.Lightning.LNbits.APIKey,
				Logger:  logger,
			})
			if err != nil {
				return nil, fmt.Errorf("lnbits payer: %w", err)
			}
			relay, err := adapters.NewRelay(adapters.RelayOptions{
				TargetURL: cfg.Services.Relay.TargetURL,
				Payer:     payer,
				Logger:    logger,
			})
			if err != nil {
				return nil, fmt.Errorf("relay adapter: %w", err)
			}
			backends = append(backends, relay)
		}
	}

	if len(backends) == 0 {
		return nil, errors.New("no backend service is fully configured")
	}
	return adapters.NewRegistry(backends...)
}

type pricingDeps struct {
	Config   *config.AppConfig
	Cache    core.CacheRepository
	Registry *adapters.Registry
	Logger   *slog.Logger
}

// buildPricing assembles the BTC-USD oracle and the per-service price policy
// for every registered backend.
func buildPricing(deps pricingDeps) (*pricing.Policy, error) {
	sources, err := pricing.DefaultSources(nil)
	if err != nil {
		return nil, fmt.Errorf("price sources: %w", err)
	}

	oracle, err := pricing.NewOracle(pricing.OracleOptions{
		Sources:       sources,
		Quorum:        deps.Config.Pricing.Quorum,
		SourceTimeout: deps.Config.Pricing.SourceTimeout,
		Cache:         deps.Cache,
		CacheTTL:      deps.Config.Pricing.CacheTTL,
		Logger:        deps.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("price oracle: %w", err)
	}

	usdByService := map[model.ServiceID]float64{
		model.ServiceGPT:             deps.Config.Pricing.GPTUSD,
		model.ServiceStableDiffusion: deps.Config.Pricing.StableUSD,
		model.ServiceRelay:           deps.Config.Pricing.RelayUSD,
	}
	services := make(map[model.ServiceID]pricing.ServicePricing)
	for _, id := range deps.Registry.Services() {
		services[id] = pricing.ServicePricing{
			USD:       usdByService[id],
			MarginPct: deps.Config.Pricing.MarginPct,
		}
	}

	policy, err := pricing.NewPolicy(pricing.PolicyOptions{
		Oracle:           oracle,
		Services:         services,
		GranularityMsats: deps.Config.Pricing.GranularityMsats,
		Logger:           deps.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("pricing policy: %w", err)
	}
	return policy, nil
}

// offeringSpecs describes each registered backend for the discovery document.
func offeringSpecs(registry *adapters.Registry) []service.OfferingSpec {
	descriptions := map[model.ServiceID]string{
		model.ServiceGPT:             "Chat completion. Pay the invoice, poll the success action URL for the response.",
		model.ServiceStableDiffusion: "Text to image generation. Pay the invoice, poll the success action URL for the image.",
		model.ServiceRelay:           "Forwards the job to another payment-gated endpoint and settles its invoice.",
	}
	inputSchemas := map[model.ServiceID]map[string]any{
		model.ServiceGPT: {
			"model":    "string",
			"messages": "array",
		},
		model.ServiceStableDiffusion: {
			"prompt": "string",
		},
	}

	specs := make([]service.OfferingSpec, 0, len(registry.Services()))
	for _, id := range registry.Services() {
		specs = append(specs, service.OfferingSpec{
			Service:     id,
			Description: descriptions[id],
			InputSchema: inputSchemas[id],
		})
	}
	return specs
}

// buildObservability configures metrics and notification adapters.
func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig) ObservabilityContainer {
	var metricsSink *statsd.Client
	if cfg.Metrics.IsEnabled() {
		client, err := statsd.NewClient(statsd.Config{
			Enabled: true,
			Address: cfg.Metrics.StatsdAddress,
			Prefix:  "zapgate",
			Logger:  logger,
		})
		if err != nil {
			logger.Error("failed to initialise statsd client", "error", err)
		} else {
			metricsSink = client
		}
	}

	return ObservabilityContainer{
		MetricsSink:     metricsSink,
		FailureNotifier: buildFailureNotifier(logger, cfg.Notifications),
	}
}

// buildFailureNotifier wires configured notification sinks into the fan-out
// service. With no sinks the notifier is present but disabled.
func buildFailureNotifier(logger *slog.Logger, cfg config.ObservabilityNotificationsConfig) *failurenotifier.Service {
	var sinks []failurenotifier.SinkRegistration

	if cfg.Slack.Enabled {
		client, err := slack.NewClient(slack.Config{
			WebhookURL: cfg.Slack.WebhookURL,
			Channel:    cfg.Slack.Channel,
			Username:   cfg.Slack.Username,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
		})
		if err != nil {
			logger.Error("failed to initialise slack notifier", "error", err)
		} else {
			sinks = append(sinks, failurenotifier.SinkRegistration{Name: "slack", Sink: client})
		}
	}

	return failurenotifier.NewService(failurenotifier.Options{
		Logger: logger,
		Sinks:  sinks,
	})
}

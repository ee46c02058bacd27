package di

import (
	"context"
	"fmt"
	"time"

	"AlphaPilot/internal/allocation"
	"AlphaPilot/internal/deliberation"
	"AlphaPilot/internal/domain/models"
	"AlphaPilot/internal/domain/repository"
	domsvc "AlphaPilot/internal/domain/service"
	"AlphaPilot/internal/execution"
	"AlphaPilot/internal/fusion"
	"AlphaPilot/internal/handler/api"
	internalrepo "AlphaPilot/internal/repository"
	"AlphaPilot/internal/risk"
	"AlphaPilot/internal/services/notify"
	"AlphaPilot/internal/services/reasoning"
	"AlphaPilot/internal/source"
	"AlphaPilot/internal/usecase"
	"AlphaPilot/internal/validation"
	pkgcache "AlphaPilot/pkg/cache"
	pkgch "AlphaPilot/pkg/clickhouse"
	"AlphaPilot/pkg/config"
	xhttp "AlphaPilot/pkg/http"
	pkgkafka "AlphaPilot/pkg/kafka"
	"AlphaPilot/pkg/logger"
	"AlphaPilot/pkg/metrics"
	"AlphaPilot/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
}

// ProvideMetrics creates the Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideCache builds the verdict and lock cache. Layered over Redis when
// enabled; in-process memory otherwise.
func ProvideCache(cfg *config.Config) (pkgcache.Service, error) {
	if !cfg.Redis.Enabled {
		return pkgcache.NewMemoryCache(pkgcache.WithMemoryMaxSize(10_000)), nil
	}
	redis, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisHost(cfg.Redis.Host),
		pkgcache.WithRedisPort(cfg.Redis.Port),
		pkgcache.WithRedisPassword(cfg.Redis.Password),
		pkgcache.WithRedisDB(cfg.Redis.DB),
		pkgcache.WithRedisPrefix("alphapilot"),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return pkgcache.NewLayeredCache(redis), nil
}

// ProvideClickHouseClient connects to ClickHouse and prepares the journal
// schema.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, false),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideSourceManager builds the streaming and polling adapters declared
// in config. Kafka-kind sources enter through the firehose consumer, not an
// adapter.
func ProvideSourceManager(cfg *config.Config, l *logger.Logger, m repository.Metrics) *source.Manager {
	mgr := source.NewManager(l)

	breakerCfg := source.BreakerConfig{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		Window:           cfg.Breaker.FailureWindow,
		Cooldown:         cfg.Breaker.Cooldown,
		MaxCooldown:      cfg.Breaker.MaxCooldown,
	}
	onTransition := func(sourceID string, from, to models.CircuitState) {
		m.RecordCircuitTransition(sourceID, string(from), string(to))
	}

	for _, sc := range cfg.Sources {
		var src repository.SignalSource
		switch sc.Kind {
		case "dexstream":
			src = source.NewDexStream(source.DexStreamConfig{
				SourceID:     sc.ID,
				URL:          sc.URL,
				APIKey:       sc.APIKey,
				Assets:       sc.Assets,
				PingInterval: sc.PingInterval,
				HalfLife:     cfg.Fusion.DefaultHalfLife,
			})
		case "httppoll":
			src = source.NewHTTPPoll(source.HTTPPollConfig{
				SourceID:     sc.ID,
				URL:          sc.URL,
				APIKey:       sc.APIKey,
				Assets:       sc.Assets,
				PollInterval: sc.PollInterval,
				HalfLife:     cfg.Fusion.DefaultHalfLife,
			})
		default:
			continue
		}

		br := source.NewBreaker(sc.ID, breakerCfg, onTransition)
		mgr.Register(source.NewAdapter(src, br, l, m), sc.InitialWeight)
	}
	return mgr
}

// ProvideFusionEngine creates the confluence scorer backed by the manager's
// reliability weights.
func ProvideFusionEngine(cfg *config.Config, mgr *source.Manager, m repository.Metrics) *fusion.Engine {
	return fusion.NewEngine(fusion.Config{
		Lookback:           cfg.Fusion.Lookback,
		DefaultHalfLife:    cfg.Fusion.DefaultHalfLife,
		StalenessMultiple:  cfg.Fusion.StalenessMultiple,
		HighFloor:          cfg.Fusion.HighFloor,
		MediumFloor:        cfg.Fusion.MediumFloor,
		TrivialWeightFloor: cfg.Fusion.TrivialWeightFloor,
	}, mgr, m)
}

// ProvideJournal wires the ClickHouse journal with score-based source
// attribution and initializes its schema.
func ProvideJournal(client *pkgch.Client, engine *fusion.Engine) (repository.Journal, error) {
	j := internalrepo.NewJournal(client, func(assetID string) []string {
		if s, ok := engine.Score(assetID); ok {
			return s.ContributingSources
		}
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := j.Init(ctx); err != nil {
		return nil, fmt.Errorf("journal schema: %w", err)
	}
	return j, nil
}

// ProvideWeightAdapter creates the outcome-driven weight adaptation job.
func ProvideWeightAdapter(j repository.Journal, mgr *source.Manager, engine *fusion.Engine, cfg *config.Config, l *logger.Logger) *fusion.WeightAdapter {
	return fusion.NewWeightAdapter(j, mgr, engine, cfg.Fusion.AdaptationStep, cfg.Fusion.AdaptationWindow, l)
}

// ProvideKafkaProducer creates a producer when brokers are configured.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideEventPublisher publishes lifecycle events, or drops them when no
// broker is configured.
func ProvideEventPublisher(producer *pkgkafka.Producer) repository.EventPublisher {
	if producer == nil {
		return internalrepo.NopPublisher{}
	}
	return internalrepo.NewKafkaPublisher(producer)
}

// ProvideNotifier creates the operator alert notifier.
func ProvideNotifier(producer *pkgkafka.Producer, l *logger.Logger) repository.Notifier {
	return notify.NewNotifier(producer, l)
}

// ProvideValidationGate builds the safety check battery.
func ProvideValidationGate(cfg *config.Config, c pkgcache.Service, l *logger.Logger, m repository.Metrics) *validation.Gate {
	venue := validation.NewVenueClient(cfg.Validation.VenueBaseURL, cfg.Validation.CheckTimeout)
	return validation.NewGate(validation.Config{
		VerdictTTL:   cfg.Validation.VerdictTTL,
		CheckTimeout: cfg.Validation.CheckTimeout,
		Thresholds: validation.Thresholds{
			MinLiquidityUSD: cfg.Validation.MinLiquidityUSD,
			MaxHolderShare:  cfg.Validation.MaxHolderShare,
		},
		Breaker: source.BreakerConfig{
			FailureThreshold: cfg.Breaker.FailureThreshold,
			Window:           cfg.Breaker.FailureWindow,
			Cooldown:         cfg.Breaker.Cooldown,
			MaxCooldown:      cfg.Breaker.MaxCooldown,
		},
	}, venue, c, l, m)
}

// ProvideReasoner builds the provider chain: primary with optional fallback.
func ProvideReasoner(cfg *config.Config, l *logger.Logger) (domsvc.ReasoningProvider, error) {
	primary, err := reasoning.NewHTTPProvider(reasoning.Config{
		Name:    cfg.Deliberation.Primary.Name,
		BaseURL: cfg.Deliberation.Primary.BaseURL,
		APIKey:  cfg.Deliberation.Primary.APIKey,
		Model:   cfg.Deliberation.Primary.Model,
		Timeout: cfg.Deliberation.Primary.Timeout,
	})
	if err != nil {
		return nil, err
	}

	if cfg.Deliberation.Fallback.BaseURL == "" {
		return reasoning.NewFallback(primary, nil, l), nil
	}
	fallback, err := reasoning.NewHTTPProvider(reasoning.Config{
		Name:    cfg.Deliberation.Fallback.Name,
		BaseURL: cfg.Deliberation.Fallback.BaseURL,
		APIKey:  cfg.Deliberation.Fallback.APIKey,
		Model:   cfg.Deliberation.Fallback.Model,
		Timeout: cfg.Deliberation.Fallback.Timeout,
	})
	if err != nil {
		return nil, err
	}
	return reasoning.NewFallback(primary, fallback, l), nil
}

// ProvideDeliberationEngine creates the four-role deliberation engine.
func ProvideDeliberationEngine(provider domsvc.ReasoningProvider, cfg *config.Config, l *logger.Logger, m repository.Metrics) *deliberation.Engine {
	return deliberation.NewEngine(provider, deliberation.Config{
		CycleDeadline: cfg.Deliberation.CycleDeadline,
		CallTimeout:   cfg.Deliberation.CallTimeout,
		MaxSize:       cfg.Deliberation.MaxSize,
	}, l, m)
}

// ProvideGovernor creates the risk governor.
func ProvideGovernor(cfg *config.Config, l *logger.Logger, m repository.Metrics, n repository.Notifier) *risk.Governor {
	return risk.NewGovernor(risk.Config{
		MaxOpenPositions:     cfg.Risk.MaxOpenPositions,
		PerPositionCeiling:   cfg.Risk.PerPositionLimit,
		PortfolioExposureCap: cfg.Risk.PortfolioExposure,
		DrawdownFraction:     cfg.Risk.DrawdownFraction,
		InitialEquity:        cfg.Risk.InitialEquity,
	}, l, m, n)
}

// ProvidePriceCache creates the shared last-price cache.
func ProvidePriceCache() *execution.PriceCache {
	return execution.NewPriceCache()
}

// ProvideVenue selects paper or live execution.
func ProvideVenue(cfg *config.Config, prices *execution.PriceCache) repository.Venue {
	if cfg.Execution.Mode == string(models.ModeLive) {
		return execution.NewLiveVenue(execution.LiveVenueConfig{
			BaseURL: cfg.Execution.GatewayBaseURL,
			APIKey:  cfg.Execution.GatewayAPIKey,
			Timeout: cfg.Execution.GatewayTimeout,
		})
	}
	return execution.NewPaperVenue(prices)
}

// ProvideExecutionEngine creates the position lifecycle engine. Closed
// positions accrue their realized pnl into the allocation gate.
func ProvideExecutionEngine(cfg *config.Config, venue repository.Venue, g *risk.Governor, j repository.Journal, ev repository.EventPublisher, alloc *allocation.Gate, l *logger.Logger, m repository.Metrics) *execution.Engine {
	return execution.NewEngine(execution.Config{
		Mode:             models.ExecutionMode(cfg.Execution.Mode),
		TPMultiples:      cfg.Execution.TPMultiples,
		TPSellFractions:  cfg.Execution.TPSellFractions,
		StopLossFraction: cfg.Execution.StopLossFraction,
		MoonbagFraction:  cfg.Execution.MoonbagFraction,
	}, venue, g, j, ev, alloc, l, m)
}

// ProvideAllocationGate creates the profit allocation gate.
func ProvideAllocationGate(cfg *config.Config, c pkgcache.Service, n repository.Notifier, l *logger.Logger) *allocation.Gate {
	splits := make([]allocation.Split, 0, len(cfg.Allocation.Splits))
	for dest, pct := range cfg.Allocation.Splits {
		splits = append(splits, allocation.Split{Destination: dest, Percent: pct})
	}
	return allocation.NewGate(allocation.Config{
		ProfitThreshold:    cfg.Allocation.ProfitThreshold,
		AutoApproveCeiling: cfg.Allocation.AutoApproveCeiling,
		Splits:             splits,
	}, c, n, l)
}

// ProvideSignalPipeline creates the ingest pipeline.
func ProvideSignalPipeline(engine *fusion.Engine, gate *validation.Gate, j repository.Journal, prices *execution.PriceCache, exec *execution.Engine, l *logger.Logger, m repository.Metrics) *usecase.SignalPipeline {
	return usecase.NewSignalPipeline(engine, gate, j, prices, exec, l, m)
}

// ProvideTradeCycle creates the deliberation-to-execution loop.
func ProvideTradeCycle(engine *fusion.Engine, gate *validation.Gate, delib *deliberation.Engine, g *risk.Governor, exec *execution.Engine, pipeline *usecase.SignalPipeline, l *logger.Logger, m repository.Metrics) *usecase.TradeCycle {
	return usecase.NewTradeCycle(engine, gate, delib, g, exec, pipeline.Triggers(), time.Minute, l, m)
}

// ProvideKafkaConsumer creates the firehose consumer when configured.
func ProvideKafkaConsumer(cfg *config.Config) (*pkgkafka.Consumer, error) {
	if len(cfg.Kafka.Brokers) == 0 || cfg.Kafka.SignalsTopic == "" {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.RetryMax, cfg.Kafka.BackoffMin, cfg.Kafka.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.DLQTopic),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideFirehoseHandler creates the firehose message handler.
func ProvideFirehoseHandler(cfg *config.Config, pipeline *usecase.SignalPipeline, l *logger.Logger) *usecase.FirehoseHandler {
	if cfg.Kafka.SignalsTopic == "" {
		return nil
	}
	return usecase.NewFirehoseHandler(cfg.Kafka.SignalsTopic, pipeline, l)
}

// ProvideOperatorHandler creates the operator HTTP surface.
func ProvideOperatorHandler(cfg *config.Config, mgr *source.Manager, engine *fusion.Engine, g *risk.Governor, exec *execution.Engine, alloc *allocation.Gate, l *logger.Logger) xhttp.Handler {
	return api.NewOperatorHandler(mgr, engine, g, exec, alloc, cfg.Server.OperatorToken, l)
}

// ProvideApp assembles the application.
func ProvideApp(
	cfg *config.Config,
	l *logger.Logger,
	mgr *source.Manager,
	pipeline *usecase.SignalPipeline,
	cycle *usecase.TradeCycle,
	weights *fusion.WeightAdapter,
	consumer *pkgkafka.Consumer,
	firehose *usecase.FirehoseHandler,
	handler xhttp.Handler,
	j repository.Journal,
	ev repository.EventPublisher,
) *server.App {
	return server.New(cfg, l, mgr, pipeline, cycle, weights, consumer, firehose, handler, j, ev)
}

package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"AlphaPilot/internal/domain/repository"
	"AlphaPilot/internal/fusion"
	"AlphaPilot/internal/source"
	"AlphaPilot/internal/usecase"
	"AlphaPilot/pkg/config"
	xhttp "AlphaPilot/pkg/http"
	pkgkafka "AlphaPilot/pkg/kafka"
	applogger "AlphaPilot/pkg/logger"
)

// App encapsulates the application lifecycle: signal adapters, the Kafka
// firehose, the trade cycle, the weight adaptation job and the operator API.
type App struct {
	cfg      *config.Config
	logger   *applogger.Logger
	sources  *source.Manager
	pipeline *usecase.SignalPipeline
	cycle    *usecase.TradeCycle
	weights  *fusion.WeightAdapter
	consumer *pkgkafka.Consumer
	firehose *usecase.FirehoseHandler
	handler  xhttp.Handler
	journal  repository.Journal
	events   repository.EventPublisher

	httpServer *xhttp.Server
}

// New creates an App with all dependencies.
func New(
	cfg *config.Config,
	logger *applogger.Logger,
	sources *source.Manager,
	pipeline *usecase.SignalPipeline,
	cycle *usecase.TradeCycle,
	weights *fusion.WeightAdapter,
	consumer *pkgkafka.Consumer,
	firehose *usecase.FirehoseHandler,
	handler xhttp.Handler,
	journal repository.Journal,
	events repository.EventPublisher,
) *App {
	return &App{
		cfg:      cfg,
		logger:   logger,
		sources:  sources,
		pipeline: pipeline,
		cycle:    cycle,
		weights:  weights,
		consumer: consumer,
		firehose: firehose,
		handler:  handler,
		journal:  journal,
		events:   events,
	}
}

// Run starts everything and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.sources.StartAll(ctx, a.pipeline.HandleSignal, a.pipeline.HandlePrice)
	a.logger.Info("signal adapters started")

	go a.cycle.Run(ctx)
	go a.weights.Run(ctx)

	if a.consumer != nil && a.firehose != nil {
		a.consumer.RegisterHandler(a.firehose)
		if err := a.consumer.Start(); err != nil {
			a.logger.Error("kafka consumer start failed", applogger.Error(err))
			return err
		}
		a.logger.Info("firehose consumer started", applogger.String("topic", a.firehose.Topic()))
	}

	a.httpServer = xhttp.NewServer(a.handler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	)
	if err := a.httpServer.Start(); err != nil {
		a.logger.Error("http server start failed", applogger.Error(err))
		return err
	}
	a.logger.Info("operator api listening",
		applogger.Int("port", a.cfg.Server.Port),
		applogger.String("mode", a.cfg.Execution.Mode))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.logger.Info("shutdown signal received")
	cancel()
	return a.shutdown()
}

// shutdown stops services in dependency order: intake first, then the
// decision loop, then infrastructure.
func (a *App) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	a.sources.Wait()

	if a.consumer != nil {
		if err := a.consumer.Stop(shutdownCtx); err != nil {
			a.logger.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	if a.httpServer != nil {
		if err := a.httpServer.Stop(shutdownCtx); err != nil {
			a.logger.Warn("http shutdown error", applogger.Error(err))
		}
	}

	if err := a.events.Close(); err != nil {
		a.logger.Warn("event publisher close error", applogger.Error(err))
	}
	if err := a.journal.Close(); err != nil {
		a.logger.Warn("journal close error", applogger.Error(err))
	}

	a.logger.Info("shutdown complete")
	return nil
}

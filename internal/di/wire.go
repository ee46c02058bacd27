//go:build wireinject
// +build wireinject

package di

import (
	"AlphaPilot/pkg/config"
	"AlphaPilot/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire generates the implementation in wire_gen.go.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,
		ProvideCache,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,

		// Signal intake
		ProvideSourceManager,
		ProvideFusionEngine,
		ProvideJournal,
		ProvideWeightAdapter,
		ProvideFirehoseHandler,

		// Decision path
		ProvideValidationGate,
		ProvideReasoner,
		ProvideDeliberationEngine,
		ProvideNotifier,
		ProvideGovernor,

		// Execution
		ProvidePriceCache,
		ProvideVenue,
		ProvideEventPublisher,
		ProvideExecutionEngine,
		ProvideAllocationGate,

		// Orchestration
		ProvideSignalPipeline,
		ProvideTradeCycle,

		// Operator surface and lifecycle
		ProvideOperatorHandler,
		ProvideApp,
	)
	return &server.App{}, nil
}

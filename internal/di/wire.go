//go:build wireinject
// +build wireinject

package di

import (
	domrepo "SignalDesk/internal/domain/repository"
	"SignalDesk/pkg/config"
	pkgmetrics "SignalDesk/pkg/metrics"
	"SignalDesk/pkg/server"

	"github.com/google/wire"
)

var infraSet = wire.NewSet(
	ProvideKafkaProducer,
	ProvideLogger,
	ProvideRegistry,
	ProvideMetrics,
	wire.Bind(new(domrepo.Metrics), new(*pkgmetrics.Recorder)),
	ProvideRedisClient,
	ProvideStores,
	ProvideConfigHolder,
	ProvideMarketClient,
	ProvideNATSConn,
	ProvideClickHouseClient,
	ProvideDecisionArchive,
	ProvideDecisionPublisher,
	ProvideEvaluator,
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		infraSet,

		ProvidePriceStream,
		ProvideExplainer,

		// Use cases
		ProvideExplainTier,
		ProvideScheduler,
		ProvideJobQueue,
		ProvideIngestor,
		ProvideKafkaConsumer,
		ProvideKafkaAlertsHandler,
		ProvidePriceRelay,
		ProvideQueryService,
		ProvideAdminService,

		// HTTP
		ProvideHandlers,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}

// InitializeOneshot wires the evaluator alone for CLI use.
func InitializeOneshot(cfg *config.Config) (*Oneshot, error) {
	wire.Build(infraSet, ProvideOneshot)
	return &Oneshot{}, nil
}

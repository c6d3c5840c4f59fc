//go:build wireinject
// +build wireinject

package di

import (
	"InsiderSignals/pkg/config"
	"InsiderSignals/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,
		ProvideRunConfig,

		// Infrastructure clients
		ProvideRedisCache,
		ProvideCache,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,
		ProvideClickHouseClient,

		// Repositories and sinks
		ProvideStore,
		ProvideStoreLock,
		ProvideArchive,
		ProvideEventPublisher,
		ProvideHub,
		ProvideResolver,

		// Use cases
		ProvideGenerateSignals,
		ProvideIngestTrades,
		ProvideSignalQuery,
		ProvideIngestPipeline,
		ProvideKafkaTradesHandler,
		ProvideQueue,
		ProvideDailyDigest,
		ProvideScheduler,

		// Transport
		ProvideRateLimiter,
		ProvideSignalsHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}

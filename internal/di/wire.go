//go:build wireinject
// +build wireinject

package di

import (
	"TradeLab/pkg/config"
	"TradeLab/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,
		ProvideCache,
		ProvideRateLimiter,

		// Repositories
		ProvideBarStore,
		ProvideSignalProvider,
		ProvideTradeStorage,
		ProvideTradePublisher,

		// Use cases
		ProvideExitRegistry,
		ProvideBacktestRunner,
		ProvideJobLoader,
		ProvideResultSink,
		ProvideKafkaJobsHandler,

		// Transport
		ProvideBacktestHandler,
		ProvideHealthHandler,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}

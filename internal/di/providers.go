package di

import (
	"context"
	"fmt"
	"io"
	"time"

	"TradeLab/internal/domain/repository"
	"TradeLab/internal/domain/service"
	"TradeLab/internal/handler/api"
	internalrepo "TradeLab/internal/repository"
	icache "TradeLab/internal/service/cache"
	"TradeLab/internal/service/ratelimit"
	"TradeLab/internal/services/exit"
	"TradeLab/internal/services/signals"
	"TradeLab/internal/usecase"
	pkgch "TradeLab/pkg/clickhouse"
	"TradeLab/pkg/config"
	xhttp "TradeLab/pkg/http"
	pkgkafka "TradeLab/pkg/kafka"
	applogger "TradeLab/pkg/logger"
	"TradeLab/pkg/metrics"
	"TradeLab/pkg/server"
)

// localCacheEntries bounds the in-process response cache.
const localCacheEntries = 4096

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideClickHouseClient creates a ClickHouse client and ensures the schema. Returns nil when
// ClickHouse is disabled.
func ProvideClickHouseClient(cfg *config.Config, l *applogger.Logger) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.InitSchema(ctx, pkgch.Schema(client.Database())); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	l.Info("clickhouse ready", applogger.String("database", client.Database()))
	return client, nil
}

// ProvideBarStore serves bars from ClickHouse; nil without it.
func ProvideBarStore(ch *pkgch.Client, l *applogger.Logger) repository.BarStore {
	if ch == nil {
		return nil
	}
	return internalrepo.NewCHBarStore(ch, l)
}

// ProvideSignalProvider prefers the remote signal service, then the ClickHouse table.
func ProvideSignalProvider(cfg *config.Config, ch *pkgch.Client) service.SignalProvider {
	switch {
	case cfg.Signals.ServiceURL != "":
		return signals.NewHTTPProvider(cfg.Signals.ServiceURL, cfg.Signals.Attempts, xhttp.WithTimeout(cfg.Signals.Timeout))
	case ch != nil:
		return internalrepo.NewCHSignalStore(ch, cfg.Signals.Column)
	default:
		return nil
	}
}

// ProvideTradeStorage creates ClickHouse result storage; nil without it.
func ProvideTradeStorage(ch *pkgch.Client) repository.Storage {
	if ch == nil {
		return nil
	}
	return internalrepo.NewClickHouseStorage(ch)
}

// ProvideKafkaProducer creates a Kafka producer when results go to Kafka.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if cfg.Backend.Type != usecase.BackendKafka {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideTradePublisher creates the Kafka result publisher; nil without a producer.
func ProvideTradePublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.Publisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaPublisher(producer, cfg.Kafka.ResultsTopic, false)
}

// ProvideCache creates the response cache: in-process, layered over Redis when enabled.
// Returns nil when caching is off.
func ProvideCache(cfg *config.Config, l *applogger.Logger) icache.BytesCache {
	if cfg.Backtest.CacheTTL <= 0 {
		return nil
	}
	local := icache.NewTTLCache(localCacheEntries)
	if !cfg.Redis.Enabled {
		return local
	}
	shared := icache.NewRedisCache(icache.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := shared.Ping(ctx); err != nil {
		l.Warn("redis unreachable, using local cache only", applogger.String("addr", cfg.Redis.Addr), applogger.Error(err))
		_ = shared.Close()
		return local
	}
	return icache.NewLayered(local, shared, time.Minute)
}

// ProvideRateLimiter returns nil when rate limiting is disabled.
func ProvideRateLimiter(cfg *config.Config) *ratelimit.Limiter {
	if !cfg.Server.RateLimit.Enabled {
		return nil
	}
	return ratelimit.New(cfg.Server.RateLimit.RPS, cfg.Server.RateLimit.Burst)
}

// ProvideExitRegistry returns the built-in exit rules.
func ProvideExitRegistry() *exit.Registry {
	return exit.NewRegistry()
}

// ProvideBacktestRunner creates the backtest runner.
func ProvideBacktestRunner(reg *exit.Registry, m repository.Metrics, l *applogger.Logger, cfg *config.Config) *usecase.BacktestRunner {
	return usecase.NewBacktestRunner(reg, m, l, cfg.Backtest.Workers)
}

// ProvideJobLoader creates the job loader over the configured stores.
func ProvideJobLoader(bars repository.BarStore, sp service.SignalProvider) *usecase.JobLoader {
	return usecase.NewJobLoader(bars, sp)
}

// ProvideResultSink creates the result sink for backend.type.
func ProvideResultSink(pub repository.Publisher, store repository.Storage, m repository.Metrics, cfg *config.Config) *usecase.ResultSink {
	return usecase.NewResultSink(pub, store, m, cfg.Backend.Type)
}

// ProvideBacktestHandler creates the backtest HTTP handler.
func ProvideBacktestHandler(
	cfg *config.Config,
	l *applogger.Logger,
	loader *usecase.JobLoader,
	runner *usecase.BacktestRunner,
	sink *usecase.ResultSink,
	store repository.Storage,
	cache icache.BytesCache,
	rl *ratelimit.Limiter,
) *api.BacktestHandler {
	opts := []api.HandlerOption{api.WithMaxBatch(cfg.Backtest.MaxBatch)}
	if cache != nil {
		opts = append(opts, api.WithCache(cache, cfg.Backtest.CacheTTL))
	}
	if rl != nil {
		opts = append(opts, api.WithRateLimit(rl))
	}
	if store != nil {
		opts = append(opts, api.WithStorage(store))
	}
	return api.NewBacktestHandler(l, loader, runner, sink, opts...)
}

// ProvideHealthHandler probes the enabled infrastructure.
func ProvideHealthHandler(ch *pkgch.Client, store repository.Storage) *api.HealthHandler {
	h := api.NewHealthHandler(2 * time.Second)
	if ch != nil {
		h.Add("clickhouse", ch.Health)
	}
	if store != nil {
		h.Add("storage", store.Health)
	}
	return h
}

// ProvideHTTPServer creates the Echo server with every handler.
func ProvideHTTPServer(cfg *config.Config, l *applogger.Logger, bh *api.BacktestHandler, hh *api.HealthHandler) *xhttp.Server {
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	return xhttp.NewServer(l, []xhttp.Handler{bh, hh},
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithMetricsPath(metricsPath),
	)
}

// ProvideKafkaConsumer creates the job consumer when enabled.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Consumer.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(l,
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideKafkaJobsHandler handles the jobs topic.
func ProvideKafkaJobsHandler(
	cfg *config.Config,
	loader *usecase.JobLoader,
	runner *usecase.BacktestRunner,
	sink *usecase.ResultSink,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.KafkaJobsHandler {
	return usecase.NewKafkaJobsHandler(cfg.Kafka.JobsTopic, loader, runner, sink, m, l)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	srv *xhttp.Server,
	consumer *pkgkafka.Consumer,
	jobs *usecase.KafkaJobsHandler,
	sink *usecase.ResultSink,
	ch *pkgch.Client,
	cache icache.BytesCache,
) *server.App {
	opts := []server.Option{server.WithCloser("result_sink", sink)}
	if consumer != nil {
		opts = append(opts, server.WithConsumer(consumer, jobs))
	}
	if c, ok := cache.(io.Closer); ok {
		opts = append(opts, server.WithCloser("cache", c))
	}
	if ch != nil {
		opts = append(opts, server.WithCloser("clickhouse", ch))
	}
	return server.New(cfg, l, srv, opts...)
}

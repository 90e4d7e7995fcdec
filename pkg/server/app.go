package server

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"TradeLab/pkg/config"
	xhttp "TradeLab/pkg/http"
	pkgkafka "TradeLab/pkg/kafka"
	applogger "TradeLab/pkg/logger"
)

type closer struct {
	name string
	c    io.Closer
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	logger     *applogger.Logger
	httpServer *xhttp.Server
	consumer   *pkgkafka.Consumer
	jobs       pkgkafka.MessageHandler
	closers    []closer
}

// Option configures App.
type Option func(*App)

// WithConsumer runs a Kafka consumer for handler alongside the HTTP server.
func WithConsumer(c *pkgkafka.Consumer, handler pkgkafka.MessageHandler) Option {
	return func(a *App) {
		a.consumer = c
		a.jobs = handler
	}
}

// WithCloser closes c on shutdown, after the servers stop. Closers run in registration order.
func WithCloser(name string, c io.Closer) Option {
	return func(a *App) {
		if c != nil {
			a.closers = append(a.closers, closer{name: name, c: c})
		}
	}
}

// New creates a new App instance with all dependencies.
func New(cfg *config.Config, l *applogger.Logger, srv *xhttp.Server, opts ...Option) *App {
	if l == nil {
		l = applogger.Nop()
	}
	a := &App{cfg: cfg, logger: l, httpServer: srv}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext starts every component and blocks until ctx is done, then shuts down.
func (a *App) RunContext(ctx context.Context) error {
	if err := a.start(); err != nil {
		a.shutdown(context.Background())
		return err
	}
	<-ctx.Done()
	a.logger.Info("shutdown signal received")
	a.shutdown(context.Background())
	return nil
}

func (a *App) start() error {
	if a.consumer != nil && a.jobs != nil {
		a.consumer.RegisterHandler(a.jobs)
		if err := a.consumer.Start(); err != nil {
			a.logger.Error("kafka consumer start error", applogger.Error(err))
			return err
		}
		a.logger.Info("kafka consumer started", applogger.String("topic", a.jobs.Topic()))
	}

	if a.httpServer != nil {
		if err := a.httpServer.Start(); err != nil {
			a.logger.Error("http server start error", applogger.Error(err))
			return err
		}
	}
	a.logger.Info("tradelab started",
		applogger.String("backend", a.cfg.Backend.Type),
		applogger.Int("workers", a.cfg.Backtest.Workers))
	return nil
}

// shutdown stops intake first, then releases resources.
func (a *App) shutdown(ctx context.Context) {
	a.logger.Info("shutting down...")

	if a.httpServer != nil {
		if err := a.httpServer.Stop(ctx); err != nil {
			a.logger.Error("http shutdown error", applogger.Error(err))
		}
	}

	if a.consumer != nil {
		stopCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
		if err := a.consumer.Stop(stopCtx); err != nil {
			a.logger.Warn("kafka consumer stop error", applogger.Error(err))
		}
		cancel()
	}

	for _, c := range a.closers {
		if err := c.c.Close(); err != nil {
			a.logger.Warn("close error", applogger.String("component", c.name), applogger.Error(err))
		}
	}

	a.logger.Info("shutdown complete")
}

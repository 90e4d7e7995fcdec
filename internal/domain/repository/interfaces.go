package repository

import (
	"context"
	"time"

	"TradeLab/internal/domain/models"
)

// BarStore serves the daily bar calendar for a symbol. Zero from/to mean unbounded.
type BarStore interface {
	Bars(ctx context.Context, symbol string, from, to time.Time) ([]models.DailyBar, error)
	StoreBars(ctx context.Context, symbol string, bars []models.DailyBar) error
}

// Publisher fans finished results out to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, r *models.BacktestResult) error
	PublishBatch(ctx context.Context, results []*models.BacktestResult) error
	Close() error
}

// Storage persists finished results and their trades.
type Storage interface {
	Init(ctx context.Context) error // ensure tables
	Store(ctx context.Context, r *models.BacktestResult) error
	StoreBatch(ctx context.Context, results []*models.BacktestResult) error
	Trades(ctx context.Context, runID string) ([]models.Trade, error)
	Health(ctx context.Context) error
	Close() error
}

type Metrics interface {
	RecordRun(exitRule, status string)
	RecordTrades(symbol string, n int)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}

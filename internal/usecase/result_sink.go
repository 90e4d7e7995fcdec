package usecase

import (
	"context"
	"fmt"
	"time"

	"TradeLab/internal/domain/models"
	drepo "TradeLab/internal/domain/repository"
)

// Result sink backends.
const (
	BackendKafka      = "kafka"
	BackendClickHouse = "clickhouse"
	BackendNone       = "none"
)

// ResultSink routes finished results to the configured backend. Failed results are not
// forwarded.
type ResultSink struct {
	pub     drepo.Publisher
	store   drepo.Storage
	metrics drepo.Metrics
	backend string
}

func NewResultSink(pub drepo.Publisher, store drepo.Storage, metrics drepo.Metrics, backend string) *ResultSink {
	return &ResultSink{pub: pub, store: store, metrics: metrics, backend: backend}
}

// Backend returns the configured backend name.
func (s *ResultSink) Backend() string { return s.backend }

// Process forwards a single result.
func (s *ResultSink) Process(ctx context.Context, r *models.BacktestResult) error {
	if r == nil {
		return fmt.Errorf("result is nil")
	}
	return s.ProcessBatch(ctx, []*models.BacktestResult{r})
}

// ProcessBatch forwards every successful result in one call to the backend.
func (s *ResultSink) ProcessBatch(ctx context.Context, results []*models.BacktestResult) error {
	ok := make([]*models.BacktestResult, 0, len(results))
	for _, r := range results {
		if r != nil && r.Err == nil {
			ok = append(ok, r)
		}
	}
	if len(ok) == 0 || s.backend == BackendNone || s.backend == "" {
		return nil
	}

	start := time.Now()
	var err error
	switch s.backend {
	case BackendKafka:
		if s.pub == nil {
			return fmt.Errorf("kafka backend without publisher")
		}
		err = s.pub.PublishBatch(ctx, ok)
	case BackendClickHouse:
		if s.store == nil {
			return fmt.Errorf("clickhouse backend without storage")
		}
		err = s.store.StoreBatch(ctx, ok)
	default:
		err = fmt.Errorf("unknown backend: %s", s.backend)
	}

	if err != nil {
		s.metrics.RecordError("sink")
		return fmt.Errorf("sink %s: %w", s.backend, err)
	}
	s.metrics.RecordLatency("sink_"+s.backend, time.Since(start).Seconds())
	return nil
}

// Close closes underlying resources if available and returns the first error.
func (s *ResultSink) Close() error {
	var first error
	if s.pub != nil {
		first = s.pub.Close()
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

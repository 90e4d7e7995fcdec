package usecase

import (
	"context"
	"errors"
	"fmt"

	"TradeLab/internal/domain/models"
	domrepo "TradeLab/internal/domain/repository"
	xhttp "TradeLab/pkg/http"
	pkgkafka "TradeLab/pkg/kafka"
	applogger "TradeLab/pkg/logger"
)

// KafkaJobsHandler consumes backtest requests (the POST /api/backtest body) and forwards the
// results to the sink.
type KafkaJobsHandler struct {
	topic   string
	loader  *JobLoader
	runner  *BacktestRunner
	sink    *ResultSink
	metrics domrepo.Metrics
	log     *applogger.Logger
}

var _ pkgkafka.MessageHandler = (*KafkaJobsHandler)(nil)

func NewKafkaJobsHandler(topic string, loader *JobLoader, runner *BacktestRunner, sink *ResultSink, metrics domrepo.Metrics, l *applogger.Logger) *KafkaJobsHandler {
	if l == nil {
		l = applogger.Nop()
	}
	return &KafkaJobsHandler{topic: topic, loader: loader, runner: runner, sink: sink, metrics: metrics, log: l}
}

func (h *KafkaJobsHandler) Topic() string { return h.topic }

// Handle runs one job. Undecodable or invalid jobs are permanent failures; store and sink
// errors are returned as-is so the consumer retries them.
func (h *KafkaJobsHandler) Handle(ctx context.Context, b []byte) error {
	var req models.BacktestRequest
	if err := xhttp.DecodeAndValidate(ctx, b, &req); err != nil {
		h.metrics.RecordError("consumer_decode")
		return pkgkafka.Permanent(err)
	}
	job, err := h.loader.Load(ctx, req)
	if err != nil {
		if models.IsInputShape(err) || errors.Is(err, ErrNoSource) {
			return pkgkafka.Permanent(err)
		}
		return err
	}
	res, err := h.runner.Run(ctx, job)
	if err != nil {
		if models.IsInputShape(err) || models.IsConfiguration(err) {
			return pkgkafka.Permanent(err)
		}
		return err
	}
	if err := h.sink.Process(ctx, res); err != nil {
		return fmt.Errorf("job %s: %w", job.ID, err)
	}
	h.log.Info("kafka job done",
		applogger.String("job", job.ID),
		applogger.String("run_id", res.RunID.String()),
		applogger.Int("trades", len(res.Trades)))
	return nil
}

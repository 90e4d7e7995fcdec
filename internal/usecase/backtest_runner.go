package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"TradeLab/internal/domain/models"
	drepo "TradeLab/internal/domain/repository"
	"TradeLab/internal/services/capguard"
	"TradeLab/internal/services/entry"
	"TradeLab/internal/services/exit"
	"TradeLab/internal/services/tradelog"
	"TradeLab/internal/services/tradestats"
	applogger "TradeLab/pkg/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// BacktestRunner runs the pipeline entry -> exit -> cap -> trades -> summary for one job and
// fans batches out over a bounded pool.
type BacktestRunner struct {
	registry *exit.Registry
	metrics  drepo.Metrics
	log      *applogger.Logger
	workers  int
	now      func() time.Time
}

func NewBacktestRunner(registry *exit.Registry, metrics drepo.Metrics, l *applogger.Logger, workers int) *BacktestRunner {
	if workers < 1 {
		workers = 1
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &BacktestRunner{registry: registry, metrics: metrics, log: l, workers: workers, now: time.Now}
}

// Registry exposes the exit rule registry for listing.
func (r *BacktestRunner) Registry() *exit.Registry { return r.registry }

// Run executes one job. Input shape and configuration problems are returned wrapped with
// models.ErrInputShape or models.ErrConfiguration.
func (r *BacktestRunner) Run(ctx context.Context, job models.BacktestJob) (*models.BacktestResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := r.now()
	res, err := r.run(job)
	elapsed := time.Since(start)
	r.metrics.RecordLatency("backtest", elapsed.Seconds())

	exitRule := job.Exit.Type
	if exitRule == "" {
		exitRule = exit.NoOpName
	}
	if err != nil {
		r.metrics.RecordRun(exitRule, "error")
		r.metrics.RecordError(errorKind(err))
		r.log.Warn("backtest failed",
			applogger.String("job", job.ID),
			applogger.String("symbol", job.Symbol),
			applogger.String("exit_rule", exitRule),
			applogger.Error(err))
		return nil, err
	}

	res.StartedAt = start
	res.Elapsed = elapsed
	r.metrics.RecordRun(exitRule, "ok")
	r.metrics.RecordTrades(job.Symbol, len(res.Trades))
	r.log.Debug("backtest finished",
		applogger.String("run_id", res.RunID.String()),
		applogger.String("symbol", job.Symbol),
		applogger.String("exit_rule", exitRule),
		applogger.Int("trades", len(res.Trades)),
		applogger.Int("skipped", res.SkippedTrades),
		applogger.Float64("total_return", res.Summary.TotalReturn),
		applogger.Duration("duration_ms", elapsed))
	return res, nil
}

func (r *BacktestRunner) run(job models.BacktestJob) (*models.BacktestResult, error) {
	if err := models.ValidateBars(job.Bars); err != nil {
		return nil, err
	}
	rule, err := entry.NewDirectional(entry.DirectionalConfig{
		DaysBefore:                job.Entry.DaysBefore,
		FlipOnNegativeCorrelation: job.Entry.FlipOnNegativeCorrelation,
		MinConfidence:             job.Entry.MinConfidence,
	})
	if err != nil {
		return nil, err
	}
	if job.Entry.MaxEntriesPerSignal < 0 {
		return nil, models.ConfigErrorf("max_entries_per_signal must be >= 0, got %d", job.Entry.MaxEntriesPerSignal)
	}

	decisions := job.Decisions
	if len(decisions) == 0 {
		if decisions, err = rule.Decide(job.Observations); err != nil {
			return nil, err
		}
	}
	res, err := rule.Resolve(models.Calendar(job.Bars), decisions)
	if err != nil {
		return nil, err
	}

	exitRule, err := r.registry.Build(job.Exit, exit.RuleContext{
		SignalDates:   res.EntryDates(),
		EarningsDates: job.EarningsDates,
	})
	if err != nil {
		return nil, err
	}
	series, err := exitRule.Apply(job.Bars, res.Series)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", exitRule.Name(), err)
	}
	if job.Entry.MaxEntriesPerSignal > 0 {
		guard, err := capguard.New(job.Entry.MaxEntriesPerSignal)
		if err != nil {
			return nil, err
		}
		if series, err = guard.Apply(job.Bars, series); err != nil {
			return nil, fmt.Errorf("%s: %w", guard.Name(), err)
		}
	}

	log, err := tradelog.Build(job.Bars, series)
	if err != nil {
		return nil, err
	}
	return &models.BacktestResult{
		RunID:         uuid.New(),
		JobID:         job.ID,
		Symbol:        job.Symbol,
		EntryRule:     rule.Name(),
		ExitRule:      exitRule.Name(),
		ExitParams:    exitRule.Params(),
		Series:        series,
		Entries:       res.Entries,
		Trades:        log.Trades,
		Summary:       tradestats.Summarize(log.Trades, len(job.Bars)),
		SkippedTrades: log.Skipped,
	}, nil
}

// RunBatch runs every job with at most workers in flight. Results keep the job order; a failed
// job carries its error in Err and never stops its siblings. Jobs not yet started when ctx is
// cancelled get ctx.Err().
func (r *BacktestRunner) RunBatch(ctx context.Context, jobs []models.BacktestJob) []*models.BacktestResult {
	out := make([]*models.BacktestResult, len(jobs))
	r.RunEach(ctx, jobs, func(i int, res *models.BacktestResult) { out[i] = res })
	return out
}

// RunEach is RunBatch with a callback per finished job. emit runs on worker goroutines, at
// most once per index, and every call has returned when RunEach returns.
func (r *BacktestRunner) RunEach(ctx context.Context, jobs []models.BacktestJob, emit func(i int, res *models.BacktestResult)) {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs int
	)
	report := func(i int, res *models.BacktestResult) {
		if res.Err != nil {
			mu.Lock()
			errs++
			mu.Unlock()
		}
		emit(i, res)
	}
	g.SetLimit(r.workers)
	for i := range jobs {
		i := i
		job := jobs[i]
		if err := ctx.Err(); err != nil {
			report(i, failed(job, err))
			continue
		}
		g.Go(func() error {
			res, err := r.Run(ctx, job)
			if err != nil {
				res = failed(job, err)
			}
			report(i, res)
			return nil
		})
	}
	_ = g.Wait()

	r.log.Info("backtest batch finished",
		applogger.Int("jobs", len(jobs)),
		applogger.Int("failed", errs),
		applogger.Int("workers", r.workers))
}

func failed(job models.BacktestJob, err error) *models.BacktestResult {
	return &models.BacktestResult{JobID: job.ID, Symbol: job.Symbol, ExitRule: job.Exit.Type, Err: err}
}

func errorKind(err error) string {
	switch {
	case models.IsInputShape(err):
		return "input_shape"
	case models.IsConfiguration(err):
		return "configuration"
	default:
		return "internal"
	}
}

package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"TradeLab/internal/domain/models"
	domrepo "TradeLab/internal/domain/repository"
	"TradeLab/internal/domain/service"
)

// ErrNoSource is returned when a request omits bars or signals and no store is configured to
// provide them.
var ErrNoSource = errors.New("no data source configured")

// MaxBars caps the calendar length of one job.
const MaxBars = 50000

// JobLoader turns a request into a job, filling bars and signals from the stores when the
// request does not carry them inline.
type JobLoader struct {
	bars    domrepo.BarStore
	signals service.SignalProvider
}

// NewJobLoader accepts nil stores; requests then must be self-contained.
func NewJobLoader(bars domrepo.BarStore, signals service.SignalProvider) *JobLoader {
	return &JobLoader{bars: bars, signals: signals}
}

func (l *JobLoader) Load(ctx context.Context, req models.BacktestRequest) (models.BacktestJob, error) {
	from, to, err := req.Range()
	if err != nil {
		return models.BacktestJob{}, models.ShapeErrorf("%v", err)
	}
	if !from.IsZero() && !to.IsZero() && from.After(to) {
		return models.BacktestJob{}, models.ShapeErrorf("from must be <= to")
	}
	job, err := req.ToJob()
	if err != nil {
		return job, err
	}
	if job.ID == "" {
		job.ID = req.Symbol
	}

	if len(job.Bars) == 0 {
		if l.bars == nil {
			return job, fmt.Errorf("bars for %s: %w", req.Symbol, ErrNoSource)
		}
		if job.Bars, err = l.bars.Bars(ctx, req.Symbol, from, to); err != nil {
			return job, fmt.Errorf("load bars: %w", err)
		}
	} else {
		models.SortBars(job.Bars)
		job.Bars = clip(job.Bars, from, to)
	}
	if len(job.Bars) > MaxBars {
		return job, models.ShapeErrorf("%d bars exceed the limit of %d", len(job.Bars), MaxBars)
	}

	if len(job.Observations) == 0 && l.signals != nil {
		if job.Observations, err = l.signals.Signals(ctx, req.Symbol, from, to); err != nil {
			return job, fmt.Errorf("load signals: %w", err)
		}
	}
	return job, nil
}

// clip keeps bars inside [from, to]; zero bounds are open.
func clip(bars []models.DailyBar, from, to time.Time) []models.DailyBar {
	lo, hi := 0, len(bars)
	for lo < hi && !from.IsZero() && bars[lo].Date.Before(from) {
		lo++
	}
	for hi > lo && !to.IsZero() && bars[hi-1].Date.After(to) {
		hi--
	}
	return bars[lo:hi]
}

package service

import (
	"context"
	"time"

	"TradeLab/internal/domain/models"
)

// ExitRule rewrites a daily position series in one forward pass. Row t of the output depends
// only on rows 0..t of its inputs.
type ExitRule interface {
	Name() string
	Params() map[string]any
	Apply(bars []models.DailyBar, positions models.PositionSeries) (models.PositionSeries, error)
}

// EntryRule turns raw observations into dated decisions and resolves them onto the calendar.
type EntryRule interface {
	Name() string
	Params() map[string]any
	Decide(obs []models.SignalObservation) ([]models.SignalDecision, error)
	Resolve(calendar []time.Time, decisions []models.SignalDecision) (models.Resolution, error)
}

// SignalProvider fetches observations from the upstream signal layer (a remote service or a
// table of precomputed signals).
type SignalProvider interface {
	Signals(ctx context.Context, symbol string, from, to time.Time) ([]models.SignalObservation, error)
}

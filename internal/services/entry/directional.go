package entry

import (
	"math"
	"time"

	"TradeLab/internal/domain/models"
	"TradeLab/internal/domain/service"
)

const DirectionalName = "directional"

// Entry type tags recorded on the context.
const (
	EntrySignal  = "signal"
	EntryFlipped = "correlation_flip"
	EntryGated   = "low_confidence"
)

type DirectionalConfig struct {
	DaysBefore                int
	FlipOnNegativeCorrelation bool
	MinConfidence             float64
}

func (c DirectionalConfig) Validate() error {
	if c.DaysBefore < 0 {
		return models.ConfigErrorf("entry_days_before must be >= 0, got %d", c.DaysBefore)
	}
	if math.IsNaN(c.MinConfidence) || c.MinConfidence < 0 || c.MinConfidence > 1 {
		return models.ConfigErrorf("min_confidence must be in [0,1], got %v", c.MinConfidence)
	}
	return nil
}

// Directional trades the sign of the signal value, optionally inverted when the signal is
// negatively correlated with returns, and stays flat on low-confidence observations.
type Directional struct {
	cfg      DirectionalConfig
	resolver *Resolver
}

var _ service.EntryRule = (*Directional)(nil)

func NewDirectional(cfg DirectionalConfig) (*Directional, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r, err := NewResolver(cfg.DaysBefore)
	if err != nil {
		return nil, err
	}
	return &Directional{cfg: cfg, resolver: r}, nil
}

func (d *Directional) Name() string { return DirectionalName }

func (d *Directional) Params() map[string]any {
	return map[string]any{
		"entry_days_before":            d.cfg.DaysBefore,
		"flip_on_negative_correlation": d.cfg.FlipOnNegativeCorrelation,
		"min_confidence":               d.cfg.MinConfidence,
	}
}

// Decide snapshots one context per observation. Non-finite values are rejected.
func (d *Directional) Decide(obs []models.SignalObservation) ([]models.SignalDecision, error) {
	out := make([]models.SignalDecision, 0, len(obs))
	for i, o := range obs {
		if math.IsNaN(o.Value) || math.IsInf(o.Value, 0) {
			return nil, models.ShapeErrorf("signal %d (%s) has non-finite value", i, o.Date.Format(models.DateLayout))
		}
		raw := sign(o.Value)
		final := raw
		entryType := EntrySignal
		flipped := false
		if d.cfg.FlipOnNegativeCorrelation && o.Correlation < 0 && raw != 0 {
			final = -raw
			flipped = true
			entryType = EntryFlipped
		}
		if o.Confidence < d.cfg.MinConfidence {
			final = 0
			entryType = EntryGated
		}
		strength := o.Strength
		if strength == 0 {
			strength = math.Abs(o.Value)
		}
		ctx := &models.EntryContext{
			EntryType:          entryType,
			SignalColumn:       o.Column,
			SignalValue:        o.Value,
			SignalDate:         models.TruncateDay(o.Date),
			RawDirection:       raw,
			FinalDirection:     final,
			CorrelationFlipped: flipped,
			CorrelationUsed:    o.Correlation,
			ConfidenceUsed:     o.Confidence,
			RegimeShift:        o.RegimeShift,
			Momentum:           copyMomentum(o.Momentum),
		}
		out = append(out, models.SignalDecision{
			SignalDate: ctx.SignalDate,
			Direction:  float64(final),
			Strength:   strength,
			Confidence: o.Confidence,
			Context:    ctx,
		})
	}
	return out, nil
}

func (d *Directional) Resolve(calendar []time.Time, decisions []models.SignalDecision) (models.Resolution, error) {
	return d.resolver.Resolve(calendar, decisions)
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

func copyMomentum(m map[string]float64) map[string]float64 {
	if m == nil {
		return nil
	}
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

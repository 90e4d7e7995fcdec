package models

import (
	"fmt"
	"math"
	"time"

	"TradeLab/pkg/util"

	"github.com/shopspring/decimal"
)

// Requests and responses for the backtest HTTP endpoints.

const DateLayout = util.DayLayout

type BarDTO struct {
	Date   string  `json:"date" validate:"required"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close" validate:"gt=0"`
	Volume float64 `json:"volume"`
}

type SignalDTO struct {
	Date        string             `json:"date" validate:"required"`
	Column      string             `json:"column"`
	Value       float64            `json:"value"`
	Strength    float64            `json:"strength"`
	Correlation float64            `json:"correlation"`
	Confidence  *float64           `json:"confidence,omitempty" validate:"omitempty,gte=0,lte=1"` // nil means 1
	RegimeShift bool               `json:"regime_shift"`
	Momentum    map[string]float64 `json:"momentum,omitempty"`
}

// Observation converts the wire form. A missing confidence is full confidence.
func (s SignalDTO) Observation() (SignalObservation, error) {
	d, err := ParseDate(s.Date)
	if err != nil {
		return SignalObservation{}, ShapeErrorf("signal: %v", err)
	}
	confidence := 1.0
	if s.Confidence != nil {
		confidence = *s.Confidence
	}
	return SignalObservation{
		Date: d, Column: s.Column, Value: s.Value, Strength: s.Strength,
		Correlation: s.Correlation, Confidence: confidence,
		RegimeShift: s.RegimeShift, Momentum: s.Momentum,
	}, nil
}

type RuleSpecDTO struct {
	Type   string         `json:"type" yaml:"type" default:"none" validate:"required"`
	Params map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
}

// BacktestRequest carries one job. When Bars or Signals are empty they are loaded from the
// configured stores for Symbol between From and To.
type BacktestRequest struct {
	ID                        string      `json:"id"`
	Symbol                    string      `json:"symbol" validate:"required"`
	From                      string      `json:"from"`
	To                        string      `json:"to"`
	Bars                      []BarDTO    `json:"bars" validate:"dive"`
	Signals                   []SignalDTO `json:"signals" validate:"dive"`
	EarningsDates             []string    `json:"earnings_dates"`
	EntryDaysBefore           int         `json:"entry_days_before" validate:"gte=0,lte=250"`
	FlipOnNegativeCorrelation bool        `json:"flip_on_negative_correlation"`
	MinConfidence             float64     `json:"min_confidence" validate:"gte=0,lte=1"`
	MaxEntriesPerSignal       *int        `json:"max_entries_per_signal,omitempty" validate:"omitempty,gte=0"`
	Exit                      RuleSpecDTO `json:"exit"`
	IncludeSeries             bool        `json:"include_series"`
}

type BatchRequest struct {
	Jobs []BacktestRequest `json:"jobs" validate:"required,min=1,max=500,dive"`
}

type ExitsRequest struct {
	Verbose bool `query:"verbose" json:"verbose"`
}

// ParseDate accepts YYYY-MM-DD, RFC3339 or unix seconds and returns the UTC calendar date.
func ParseDate(s string) (time.Time, error) {
	t, ok := util.ParseDay(s)
	if !ok {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	return t, nil
}

// Range returns the optional From/To bounds; zero values mean unbounded.
func (r BacktestRequest) Range() (from, to time.Time, err error) {
	if r.From != "" {
		if from, err = ParseDate(r.From); err != nil {
			return
		}
	}
	if r.To != "" {
		if to, err = ParseDate(r.To); err != nil {
			return
		}
	}
	return
}

// DefaultMaxEntriesPerSignal applies when a request leaves max_entries_per_signal out; an
// explicit 0 disables the cap.
const DefaultMaxEntriesPerSignal = 1

// ToJob converts the request; bars and signals must already be filled in.
func (r BacktestRequest) ToJob() (BacktestJob, error) {
	maxEntries := DefaultMaxEntriesPerSignal
	if r.MaxEntriesPerSignal != nil {
		maxEntries = *r.MaxEntriesPerSignal
	}
	job := BacktestJob{
		ID:     r.ID,
		Symbol: r.Symbol,
		Entry: EntrySpec{
			DaysBefore:                r.EntryDaysBefore,
			FlipOnNegativeCorrelation: r.FlipOnNegativeCorrelation,
			MinConfidence:             r.MinConfidence,
			MaxEntriesPerSignal:       maxEntries,
		},
		Exit: RuleSpec{Type: r.Exit.Type, Params: r.Exit.Params},
	}
	for _, b := range r.Bars {
		d, err := ParseDate(b.Date)
		if err != nil {
			return job, ShapeErrorf("bar: %v", err)
		}
		bar := DailyBar{Date: d, Open: b.Open, High: b.High, Low: b.Low, Close: b.Close, Volume: b.Volume}
		// omitted open/high/low fall back to close
		for _, p := range []*float64{&bar.Open, &bar.High, &bar.Low} {
			if *p == 0 {
				*p = bar.Close
			}
		}
		job.Bars = append(job.Bars, bar)
	}
	for _, s := range r.Signals {
		o, err := s.Observation()
		if err != nil {
			return job, err
		}
		job.Observations = append(job.Observations, o)
	}
	for _, e := range r.EarningsDates {
		d, err := ParseDate(e)
		if err != nil {
			return job, ShapeErrorf("earnings date: %v", err)
		}
		job.EarningsDates = append(job.EarningsDates, d)
	}
	return job, nil
}

type TradeDTO struct {
	EntryDate      string          `json:"entry_date"`
	ExitDate       string          `json:"exit_date"`
	Direction      int             `json:"direction"`
	EntryPrice     decimal.Decimal `json:"entry_price"`
	ExitPrice      decimal.Decimal `json:"exit_price"`
	HoldingDays    int             `json:"holding_days"`
	Return         decimal.Decimal `json:"trade_return"`
	SignalStrength float64         `json:"signal_strength"`
	Confidence     float64         `json:"confidence"`
	SignalID       int64           `json:"signal_id"`
	ExitReason     ExitReason      `json:"exit_reason"`
	EntryType      string          `json:"entry_type,omitempty"`
}

// SummaryDTO renders a Summary. ProfitFactor is null when infinite.
type SummaryDTO struct {
	Trades               int              `json:"trades"`
	Wins                 int              `json:"wins"`
	Losses               int              `json:"losses"`
	Longs                int              `json:"longs"`
	Shorts               int              `json:"shorts"`
	TotalReturn          decimal.Decimal  `json:"total_return"`
	WinRate              decimal.Decimal  `json:"win_rate"`
	MeanReturn           decimal.Decimal  `json:"mean_return"`
	MeanHoldingDays      decimal.Decimal  `json:"mean_holding_days"`
	ProfitFactor         *decimal.Decimal `json:"profit_factor"`
	ProfitFactorInfinite bool             `json:"profit_factor_infinite,omitempty"`
	LongestLosingStreak  int              `json:"longest_losing_streak"`
	LongestWinStreak     int              `json:"longest_win_streak"`
	AvgWin               decimal.Decimal  `json:"avg_win"`
	AvgLoss              decimal.Decimal  `json:"avg_loss"`
	BestReturn           decimal.Decimal  `json:"best_return"`
	WorstReturn          decimal.Decimal  `json:"worst_return"`
	Exposure             decimal.Decimal  `json:"exposure"`
}

type SeriesRowDTO struct {
	Date       string           `json:"date"`
	Position   float64          `json:"position"`
	Strength   float64          `json:"strength"`
	Confidence float64          `json:"confidence"`
	SignalID   int64            `json:"signal_id"`
	ExitPrice  *decimal.Decimal `json:"exit_price,omitempty"`
	ExitReason ExitReason       `json:"exit_reason,omitempty"`
}

type BacktestResponse struct {
	RunID         string         `json:"run_id"`
	JobID         string         `json:"job_id,omitempty"`
	Symbol        string         `json:"symbol"`
	EntryRule     string         `json:"entry_rule"`
	ExitRule      string         `json:"exit_rule"`
	ExitParams    map[string]any `json:"exit_params,omitempty"`
	Summary       SummaryDTO     `json:"summary"`
	Trades        []TradeDTO     `json:"trades"`
	Series        []SeriesRowDTO `json:"series,omitempty"`
	SkippedTrades int            `json:"skipped_trades"`
	ElapsedMs     int64          `json:"elapsed_ms"`
	Error         string         `json:"error,omitempty"`
}

const (
	pricePlaces  = 4
	returnPlaces = 6
)

func dec(v float64, places int32) decimal.Decimal {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(v).Round(places)
}

// NewTradeDTO renders one trade.
func NewTradeDTO(t Trade) TradeDTO {
	out := TradeDTO{
		EntryDate:      t.EntryDate.Format(DateLayout),
		ExitDate:       t.ExitDate.Format(DateLayout),
		Direction:      t.Direction,
		EntryPrice:     dec(t.EntryPrice, pricePlaces),
		ExitPrice:      dec(t.ExitPrice, pricePlaces),
		HoldingDays:    t.HoldingDays,
		Return:         dec(t.Return, returnPlaces),
		SignalStrength: t.SignalStrength,
		Confidence:     t.Confidence,
		SignalID:       t.SignalID,
		ExitReason:     t.ExitReason,
	}
	if t.Context != nil {
		out.EntryType = t.Context.EntryType
	}
	return out
}

// NewSummaryDTO renders a summary.
func NewSummaryDTO(s Summary) SummaryDTO {
	out := SummaryDTO{
		Trades:              s.Trades,
		Wins:                s.Wins,
		Losses:              s.Losses,
		Longs:               s.Longs,
		Shorts:              s.Shorts,
		TotalReturn:         dec(s.TotalReturn, returnPlaces),
		WinRate:             dec(s.WinRate, returnPlaces),
		MeanReturn:          dec(s.MeanReturn, returnPlaces),
		MeanHoldingDays:     dec(s.MeanHoldingDays, 2),
		LongestLosingStreak: s.LongestLosingStreak,
		LongestWinStreak:    s.LongestWinStreak,
		AvgWin:              dec(s.AvgWin, returnPlaces),
		AvgLoss:             dec(s.AvgLoss, returnPlaces),
		BestReturn:          dec(s.BestReturn, returnPlaces),
		WorstReturn:         dec(s.WorstReturn, returnPlaces),
		Exposure:            dec(s.Exposure, returnPlaces),
	}
	if math.IsInf(s.ProfitFactor, 1) {
		out.ProfitFactorInfinite = true
	} else {
		pf := dec(s.ProfitFactor, returnPlaces)
		out.ProfitFactor = &pf
	}
	return out
}

// NewBacktestResponse renders a result, optionally with the daily series.
func NewBacktestResponse(r BacktestResult, includeSeries bool) BacktestResponse {
	out := BacktestResponse{
		RunID:         r.RunID.String(),
		JobID:         r.JobID,
		Symbol:        r.Symbol,
		EntryRule:     r.EntryRule,
		ExitRule:      r.ExitRule,
		ExitParams:    r.ExitParams,
		Summary:       NewSummaryDTO(r.Summary),
		Trades:        make([]TradeDTO, 0, len(r.Trades)),
		SkippedTrades: r.SkippedTrades,
		ElapsedMs:     r.Elapsed.Milliseconds(),
	}
	if r.Err != nil {
		out.Error = r.Err.Error()
	}
	for _, t := range r.Trades {
		out.Trades = append(out.Trades, NewTradeDTO(t))
	}
	if includeSeries {
		s := r.Series
		out.Series = make([]SeriesRowDTO, 0, s.Len())
		for i := 0; i < s.Len(); i++ {
			row := SeriesRowDTO{
				Date:       s.Dates[i].Format(DateLayout),
				Position:   s.Position[i],
				Strength:   s.Strength[i],
				Confidence: s.Confidence[i],
				SignalID:   s.SignalID[i],
			}
			if s.ExitPrice != nil {
				p := dec(s.ExitPrice[i], pricePlaces)
				row.ExitPrice = &p
			}
			if s.ExitReason != nil {
				row.ExitReason = s.ExitReason[i]
			}
			out.Series = append(out.Series, row)
		}
	}
	return out
}

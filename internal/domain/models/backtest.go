package models

import (
	"time"

	"github.com/google/uuid"
)

// RuleSpec names a registered rule and its raw params.
type RuleSpec struct {
	Type   string         `yaml:"type" json:"type"`
	Params map[string]any `yaml:"params,omitempty" json:"params,omitempty"`
}

// EntrySpec configures entry resolution and the per-signal cap.
type EntrySpec struct {
	DaysBefore                int     `yaml:"entry_days_before" json:"entry_days_before"`
	FlipOnNegativeCorrelation bool    `yaml:"flip_on_negative_correlation" json:"flip_on_negative_correlation"`
	MinConfidence             float64 `yaml:"min_confidence" json:"min_confidence"`
	// MaxEntriesPerSignal caps round trips per signal period; 0 disables the guard.
	MaxEntriesPerSignal int `yaml:"max_entries_per_signal" json:"max_entries_per_signal"`
}

// BacktestJob is one independent backtest. Decisions take precedence over Observations.
type BacktestJob struct {
	ID            string
	Symbol        string
	Bars          []DailyBar
	Decisions     []SignalDecision
	Observations  []SignalObservation
	EarningsDates []time.Time
	Entry         EntrySpec
	Exit          RuleSpec
}

// BacktestResult is the output of one job. Err is set only by batch runs.
type BacktestResult struct {
	RunID         uuid.UUID
	JobID         string
	Symbol        string
	EntryRule     string
	ExitRule      string
	ExitParams    map[string]any
	Series        PositionSeries
	Entries       []Entry
	Trades        []Trade
	Summary       Summary
	SkippedTrades int
	StartedAt     time.Time
	Elapsed       time.Duration
	Err           error
}

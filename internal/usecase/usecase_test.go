package usecase

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"TradeLab/internal/domain/models"
	"TradeLab/internal/services/exit"
	pkgkafka "TradeLab/pkg/kafka"
)

var day0 = time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)

type fakeMetrics struct {
	mu     sync.Mutex
	runs   map[string]int
	errors map[string]int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{runs: map[string]int{}, errors: map[string]int{}}
}

func (m *fakeMetrics) RecordRun(exitRule, status string) {
	m.mu.Lock()
	m.runs[exitRule+"/"+status]++
	m.mu.Unlock()
}

func (m *fakeMetrics) RecordTrades(string, int) {}

func (m *fakeMetrics) RecordError(kind string) {
	m.mu.Lock()
	m.errors[kind]++
	m.mu.Unlock()
}

func (m *fakeMetrics) RecordLatency(string, float64) {}

func bars(closes ...float64) []models.DailyBar {
	out := make([]models.DailyBar, len(closes))
	for i, c := range closes {
		out[i] = models.DailyBar{Date: day0.AddDate(0, 0, i), Open: c, High: c, Low: c, Close: c}
	}
	return out
}

func newRunner(m *fakeMetrics) *BacktestRunner {
	return NewBacktestRunner(exit.NewRegistry(), m, nil, 2)
}

func stopJob(maxEntries int) models.BacktestJob {
	return models.BacktestJob{
		ID:     "stop",
		Symbol: "AAPL",
		Bars:   bars(100, 100, 95, 90, 100),
		Observations: []models.SignalObservation{
			{Date: day0.AddDate(0, 0, 1), Column: "sent", Value: 0.5, Correlation: 0.3, Confidence: 1},
		},
		Entry: models.EntrySpec{MaxEntriesPerSignal: maxEntries},
		Exit: models.RuleSpec{Type: exit.StopTakeName, Params: map[string]any{
			"stop_pct": -0.08, "take_pct": 0.1,
		}},
	}
}

func TestRunStopLoss(t *testing.T) {
	m := newFakeMetrics()
	res, err := newRunner(m).Run(context.Background(), stopJob(1))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(res.Trades) != 1 {
		t.Fatalf("expected 1 trade, got %+v", res.Trades)
	}
	tr := res.Trades[0]
	if tr.ExitReason != models.ExitStopLoss || tr.ExitPrice != 92 || math.Abs(tr.Return+0.08) > 1e-12 {
		t.Fatalf("unexpected trade %+v", tr)
	}
	if !tr.ExitDate.Equal(day0.AddDate(0, 0, 3)) || tr.HoldingDays != 2 {
		t.Fatalf("unexpected exit timing %+v", tr)
	}
	// re-entry after the stop is capped
	if res.SkippedTrades != 0 || res.Series.ExitReason[4] != models.ExitEntryCap {
		t.Fatalf("expected capped re-entry, got skipped=%d reason=%q", res.SkippedTrades, res.Series.ExitReason[4])
	}
	if res.EntryRule != "directional" || res.ExitRule != exit.StopTakeName || res.RunID.String() == "" {
		t.Fatalf("unexpected identity %+v", res)
	}
	if m.runs[exit.StopTakeName+"/ok"] != 1 {
		t.Fatalf("run not recorded: %v", m.runs)
	}
}

func TestRunWithoutCapKeepsReentry(t *testing.T) {
	res, err := newRunner(newFakeMetrics()).Run(context.Background(), stopJob(0))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	// the re-entry opens on the final row and is dropped
	if len(res.Trades) != 1 || res.SkippedTrades != 1 {
		t.Fatalf("expected 1 trade and 1 skipped, got %d/%d", len(res.Trades), res.SkippedTrades)
	}
}

func TestRunCappedReentryThenFreshSignal(t *testing.T) {
	job := stopJob(1)
	job.Bars = bars(100, 100, 90, 120, 130, 133, 133)
	job.Observations = nil
	job.Decisions = []models.SignalDecision{
		{SignalDate: day0, Direction: 1, Confidence: 1},
		{SignalDate: day0.AddDate(0, 0, 4), Direction: 1, Confidence: 1},
	}
	job.Exit.Params = map[string]any{"stop_pct": -0.05, "take_pct": 0.1}
	res, err := newRunner(newFakeMetrics()).Run(context.Background(), job)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(res.Trades) != 2 {
		t.Fatalf("expected 2 trades, got %+v", res.Trades)
	}
	if res.Series.ExitReason[3] != models.ExitEntryCap {
		t.Fatalf("expected capped re-entry on row 3, got %q", res.Series.ExitReason[3])
	}
	tr := res.Trades[1]
	// the target sits at 143 from the 130 entry, so nothing fires before the data ends
	if tr.EntryPrice != 130 || tr.ExitPrice != 133 || tr.ExitReason != models.ExitEndOfData {
		t.Fatalf("unexpected second trade %+v", tr)
	}
}

func TestRunPrecomputedDecisions(t *testing.T) {
	job := models.BacktestJob{
		Symbol: "MSFT",
		Bars:   bars(100, 101, 102, 103, 104, 105),
		Decisions: []models.SignalDecision{
			{SignalDate: day0.AddDate(0, 0, 2), Direction: 1, Strength: 0.7, Confidence: 0.9},
		},
		Entry: models.EntrySpec{DaysBefore: 1, MaxEntriesPerSignal: 1},
	}
	res, err := newRunner(newFakeMetrics()).Run(context.Background(), job)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(res.Trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(res.Trades))
	}
	tr := res.Trades[0]
	if tr.EntryPrice != 101 || tr.ExitPrice != 105 || tr.ExitReason != models.ExitEndOfData || tr.HoldingDays != 4 {
		t.Fatalf("unexpected trade %+v", tr)
	}
	if tr.SignalStrength != 0.7 || res.ExitRule != exit.NoOpName {
		t.Fatalf("unexpected attribution %+v", tr)
	}
	if len(res.Entries) != 1 || res.Entries[0].Index != 1 {
		t.Fatalf("unexpected entries %+v", res.Entries)
	}
}

func TestRunErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.BacktestJob)
		is     error
	}{
		{"no bars", func(j *models.BacktestJob) { j.Bars = nil }, models.ErrInputShape},
		{"unknown exit", func(j *models.BacktestJob) { j.Exit = models.RuleSpec{Type: "moon"} }, models.ErrConfiguration},
		{"bad stop", func(j *models.BacktestJob) { j.Exit.Params = map[string]any{"stop_pct": 0.2} }, models.ErrConfiguration},
		{"negative lead", func(j *models.BacktestJob) { j.Entry.DaysBefore = -1 }, models.ErrConfiguration},
		{"negative cap", func(j *models.BacktestJob) { j.Entry.MaxEntriesPerSignal = -1 }, models.ErrConfiguration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newFakeMetrics()
			job := stopJob(1)
			tt.mutate(&job)
			if _, err := newRunner(m).Run(context.Background(), job); !errors.Is(err, tt.is) {
				t.Fatalf("expected %v, got %v", tt.is, err)
			}
			if len(m.errors) != 1 {
				t.Fatalf("error not recorded: %v", m.errors)
			}
		})
	}
}

func TestRunEmptySignalsIsFlat(t *testing.T) {
	job := stopJob(1)
	job.Observations = nil
	res, err := newRunner(newFakeMetrics()).Run(context.Background(), job)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(res.Trades) != 0 || res.Summary != (models.Summary{}) {
		t.Fatalf("expected no trades, got %+v", res.Summary)
	}
}

func TestRunBatchIsolatesFailures(t *testing.T) {
	good := stopJob(1)
	bad := stopJob(1)
	bad.ID = "bad"
	bad.Bars = nil
	jobs := []models.BacktestJob{good, bad, good, good}
	out := newRunner(newFakeMetrics()).RunBatch(context.Background(), jobs)
	if len(out) != len(jobs) {
		t.Fatalf("expected %d results, got %d", len(jobs), len(out))
	}
	for i, r := range out {
		if i == 1 {
			if r.Err == nil || r.JobID != "bad" {
				t.Fatalf("expected failure on job 1, got %+v", r)
			}
			continue
		}
		if r.Err != nil || len(r.Trades) != 1 {
			t.Fatalf("job %d: unexpected result %+v", i, r)
		}
	}
	if out[0].RunID == out[2].RunID {
		t.Fatalf("run ids must be unique")
	}
}

func TestRunBatchCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := newRunner(newFakeMetrics()).RunBatch(ctx, []models.BacktestJob{stopJob(1), stopJob(1)})
	for _, r := range out {
		if !errors.Is(r.Err, context.Canceled) {
			t.Fatalf("expected cancellation, got %v", r.Err)
		}
	}
}

type fakeBars struct {
	bars  []models.DailyBar
	calls int
}

func (f *fakeBars) Bars(context.Context, string, time.Time, time.Time) ([]models.DailyBar, error) {
	f.calls++
	return f.bars, nil
}

func (f *fakeBars) StoreBars(context.Context, string, []models.DailyBar) error { return nil }

type fakeSignals struct{ obs []models.SignalObservation }

func (f *fakeSignals) Signals(context.Context, string, time.Time, time.Time) ([]models.SignalObservation, error) {
	return f.obs, nil
}

func TestJobLoader(t *testing.T) {
	inline := models.BacktestRequest{
		Symbol: "AAPL",
		From:   "2024-05-07",
		Bars: []models.BarDTO{
			{Date: "2024-05-08", Close: 11},
			{Date: "2024-05-06", Close: 9},
			{Date: "2024-05-07", Close: 10},
		},
	}
	job, err := NewJobLoader(nil, nil).Load(context.Background(), inline)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(job.Bars) != 2 || job.Bars[0].Close != 10 || job.ID != "AAPL" {
		t.Fatalf("expected sorted and clipped bars, got %+v", job.Bars)
	}

	if _, err := NewJobLoader(nil, nil).Load(context.Background(), models.BacktestRequest{Symbol: "AAPL"}); !errors.Is(err, ErrNoSource) {
		t.Fatalf("expected ErrNoSource, got %v", err)
	}

	store := &fakeBars{bars: bars(1, 2, 3)}
	sigs := &fakeSignals{obs: []models.SignalObservation{{Date: day0, Value: 1, Confidence: 1}}}
	job, err = NewJobLoader(store, sigs).Load(context.Background(), models.BacktestRequest{Symbol: "AAPL"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if store.calls != 1 || len(job.Bars) != 3 || len(job.Observations) != 1 {
		t.Fatalf("stores not used: %+v", job)
	}

	bad := models.BacktestRequest{Symbol: "AAPL", From: "2024-06-01", To: "2024-05-01"}
	if _, err := NewJobLoader(store, nil).Load(context.Background(), bad); !errors.Is(err, models.ErrInputShape) {
		t.Fatalf("expected input shape error, got %v", err)
	}
}

type fakePublisher struct{ got []*models.BacktestResult }

func (p *fakePublisher) Publish(_ context.Context, r *models.BacktestResult) error {
	p.got = append(p.got, r)
	return nil
}

func (p *fakePublisher) PublishBatch(_ context.Context, rs []*models.BacktestResult) error {
	p.got = append(p.got, rs...)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

func TestResultSinkRouting(t *testing.T) {
	ok := &models.BacktestResult{JobID: "a"}
	failedRes := &models.BacktestResult{JobID: "b", Err: errors.New("x")}

	pub := &fakePublisher{}
	sink := NewResultSink(pub, nil, newFakeMetrics(), BackendKafka)
	if err := sink.ProcessBatch(context.Background(), []*models.BacktestResult{ok, failedRes, nil}); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(pub.got) != 1 || pub.got[0].JobID != "a" {
		t.Fatalf("expected only the successful result, got %+v", pub.got)
	}

	if err := NewResultSink(nil, nil, newFakeMetrics(), BackendNone).Process(context.Background(), ok); err != nil {
		t.Fatalf("none backend: %v", err)
	}
	m := newFakeMetrics()
	if err := NewResultSink(nil, nil, m, "s3").Process(context.Background(), ok); err == nil || m.errors["sink"] != 1 {
		t.Fatalf("expected unknown backend error, got %v", err)
	}
}

func TestKafkaJobsHandler(t *testing.T) {
	pub := &fakePublisher{}
	m := newFakeMetrics()
	h := NewKafkaJobsHandler("backtest.jobs", NewJobLoader(nil, nil), newRunner(m),
		NewResultSink(pub, nil, m, BackendKafka), m, nil)

	body := []byte(`{"symbol":"AAPL","bars":[{"date":"2024-05-06","close":10},{"date":"2024-05-07","close":11},{"date":"2024-05-08","close":12}],
		"signals":[{"date":"2024-05-06","value":1}],"exit":{"type":"fixed_holding","params":{"max_days":1}}}`)
	if err := h.Handle(context.Background(), body); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(pub.got) != 1 || len(pub.got[0].Trades) != 1 || pub.got[0].ExitRule != exit.FixedHoldingName {
		t.Fatalf("unexpected published results %+v", pub.got)
	}

	tests := []struct {
		name string
		body string
	}{
		{"not json", `nope`},
		{"missing symbol", `{"bars":[{"date":"2024-05-06","close":10}]}`},
		{"no bars source", `{"symbol":"AAPL"}`},
		{"unknown rule", `{"symbol":"AAPL","bars":[{"date":"2024-05-06","close":10}],"exit":{"type":"moon"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := h.Handle(context.Background(), []byte(tt.body)); !pkgkafka.IsPermanent(err) {
				t.Fatalf("expected permanent error, got %v", err)
			}
		})
	}
}

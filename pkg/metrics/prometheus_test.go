package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRecorderCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewWithRegistry(reg)
	r.RecordRun("trailing_stop", "ok")
	r.RecordRun("trailing_stop", "ok")
	r.RecordTrades("AAPL", 4)
	r.RecordError("input_shape")
	r.RecordLatency("exit", 0.002)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	got := map[string]float64{}
	for _, f := range families {
		for _, m := range f.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				got[f.GetName()] += m.GetCounter().GetValue()
			case m.GetHistogram() != nil:
				got[f.GetName()] += float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	want := map[string]float64{
		"tradelab_backtest_runs_total":    2,
		"tradelab_backtest_trades_total":  4,
		"tradelab_errors_total":           1,
		"tradelab_stage_duration_seconds": 1,
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("%s = %v want %v", k, got[k], v)
		}
	}
}

package exit

import (
	"errors"
	"testing"

	"TradeLab/internal/domain/models"
	"TradeLab/internal/domain/service"
)

func TestRegistryBuild(t *testing.T) {
	reg := NewRegistry()
	tests := []struct {
		name   string
		spec   models.RuleSpec
		want   string
		params map[string]any
	}{
		{"empty type", models.RuleSpec{}, NoOpName, map[string]any{}},
		{"fixed defaults", models.RuleSpec{Type: FixedHoldingName}, FixedHoldingName, map[string]any{"max_days": 5}},
		{"fixed from json numbers", models.RuleSpec{Type: FixedHoldingName, Params: map[string]any{"max_days": float64(3)}}, FixedHoldingName, map[string]any{"max_days": 3}},
		{"stop take", models.RuleSpec{Type: StopTakeName, Params: map[string]any{"stop_pct": -0.08, "take_pct": 0.08}}, StopTakeName, map[string]any{"stop_pct": -0.08, "take_pct": 0.08}},
		{"trailing", models.RuleSpec{Type: TrailingName, Params: map[string]any{"trail_pct": 0.1}}, TrailingName, map[string]any{"trail_pct": 0.1}},
		{"earnings keeps explicit zero", models.RuleSpec{Type: NextEarningsName, Params: map[string]any{"days_before": 0, "earnings_dates": []any{"2024-05-01"}}}, NextEarningsName, map[string]any{"days_before": 0, "earnings_dates": 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := reg.Build(tt.spec, RuleContext{})
			if err != nil {
				t.Fatalf("build: %v", err)
			}
			if r.Name() != tt.want {
				t.Fatalf("name %q want %q", r.Name(), tt.want)
			}
			got := r.Params()
			for k, v := range tt.params {
				if got[k] != v {
					t.Fatalf("param %s = %v want %v", k, got[k], v)
				}
			}
		})
	}
}

func TestRegistryRejects(t *testing.T) {
	reg := NewRegistry()
	specs := []models.RuleSpec{
		{Type: "martingale"},
		{Type: FixedHoldingName, Params: map[string]any{"max_days": 0}},
		{Type: StopTakeName, Params: map[string]any{"stop_pct": 0.05}},
		{Type: TrailingName, Params: map[string]any{"trail_pct": 2}},
		{Type: NextEarningsName, Params: map[string]any{"earnings_dates": []any{"soon"}}},
		{Type: FixedHoldingName, Params: map[string]any{"max_days": "many"}},
	}
	for _, s := range specs {
		if _, err := reg.Build(s, RuleContext{}); !errors.Is(err, models.ErrConfiguration) {
			t.Fatalf("%+v: expected configuration error, got %v", s, err)
		}
	}
}

func TestRegistryCustomRule(t *testing.T) {
	reg := NewRegistry()
	reg.Register("always_flat", func(map[string]any, RuleContext) (service.ExitRule, error) { return NoOp{}, nil })
	names := reg.Names()
	found := false
	for _, n := range names {
		if n == "always_flat" {
			found = true
		}
	}
	if !found || len(names) != 6 {
		t.Fatalf("unexpected names %v", names)
	}
	if d := reg.Describe(); d[StopTakeName]["stop_pct"] != -0.05 {
		t.Fatalf("unexpected defaults %v", d[StopTakeName])
	}
}

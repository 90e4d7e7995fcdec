package entry

import (
	"errors"
	"testing"

	"TradeLab/internal/domain/models"
)

func TestDirectionalDecide(t *testing.T) {
	cal := calendar(4)
	tests := []struct {
		name     string
		cfg      DirectionalConfig
		obs      models.SignalObservation
		wantDir  float64
		wantType string
		flipped  bool
	}{
		{"positive", DirectionalConfig{}, models.SignalObservation{Date: cal[0], Value: 0.4, Confidence: 1}, 1, EntrySignal, false},
		{"negative", DirectionalConfig{}, models.SignalObservation{Date: cal[0], Value: -2, Confidence: 1}, -1, EntrySignal, false},
		{"flip", DirectionalConfig{FlipOnNegativeCorrelation: true}, models.SignalObservation{Date: cal[0], Value: 1, Correlation: -0.3, Confidence: 1}, -1, EntryFlipped, true},
		{"no flip when disabled", DirectionalConfig{}, models.SignalObservation{Date: cal[0], Value: 1, Correlation: -0.3, Confidence: 1}, 1, EntrySignal, false},
		{"gated", DirectionalConfig{MinConfidence: 0.6}, models.SignalObservation{Date: cal[0], Value: 1, Confidence: 0.5}, 0, EntryGated, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule, err := NewDirectional(tt.cfg)
			if err != nil {
				t.Fatalf("new: %v", err)
			}
			got, err := rule.Decide([]models.SignalObservation{tt.obs})
			if err != nil {
				t.Fatalf("decide: %v", err)
			}
			if len(got) != 1 {
				t.Fatalf("expected one decision, got %d", len(got))
			}
			d := got[0]
			if d.Direction != tt.wantDir {
				t.Fatalf("direction %v want %v", d.Direction, tt.wantDir)
			}
			if d.Context == nil || d.Context.EntryType != tt.wantType || d.Context.CorrelationFlipped != tt.flipped {
				t.Fatalf("unexpected context %+v", d.Context)
			}
			if d.Context.FinalDirection != int(tt.wantDir) {
				t.Fatalf("final direction %d want %v", d.Context.FinalDirection, tt.wantDir)
			}
		})
	}
}

func TestDirectionalContextIsShared(t *testing.T) {
	cal := calendar(6)
	rule, err := NewDirectional(DirectionalConfig{DaysBefore: 1})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	momentum := map[string]float64{"roc_5": 0.02}
	dec, err := rule.Decide([]models.SignalObservation{{Date: cal[2], Column: "sentiment", Value: 3, Confidence: 0.8, Momentum: momentum}})
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	momentum["roc_5"] = 9
	res, err := rule.Resolve(cal, dec)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	first := res.Series.Context[1]
	if first == nil || first.SignalColumn != "sentiment" || first.Momentum["roc_5"] != 0.02 {
		t.Fatalf("unexpected context %+v", first)
	}
	for i := 2; i < len(cal); i++ {
		if res.Series.Context[i] != first {
			t.Fatalf("row %d does not share the entry context", i)
		}
	}
	if res.Series.Strength[1] != 3 {
		t.Fatalf("expected |value| as strength fallback, got %v", res.Series.Strength[1])
	}
}

func TestDirectionalRejectsBadConfig(t *testing.T) {
	for _, cfg := range []DirectionalConfig{{DaysBefore: -1}, {MinConfidence: 1.5}} {
		if _, err := NewDirectional(cfg); !errors.Is(err, models.ErrConfiguration) {
			t.Fatalf("expected configuration error for %+v, got %v", cfg, err)
		}
	}
}

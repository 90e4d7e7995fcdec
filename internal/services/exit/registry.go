package exit

import (
	"errors"
	"sort"
	"sync"
	"time"

	"TradeLab/internal/domain/models"
	"TradeLab/internal/domain/service"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// RuleContext carries the per-job inputs a rule may need besides its params.
type RuleContext struct {
	SignalDates   []time.Time // entry dates of the resolved signals
	EarningsDates []time.Time
}

// Factory builds a rule from raw params.
type Factory func(params map[string]any, rc RuleContext) (service.ExitRule, error)

// Registry builds exit rules by name.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns a registry with the built-in rules.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register(NoOpName, func(map[string]any, RuleContext) (service.ExitRule, error) { return NoOp{}, nil })
	r.Register(FixedHoldingName, func(params map[string]any, rc RuleContext) (service.ExitRule, error) {
		var p FixedHoldingParams
		if err := DecodeParams(params, &p); err != nil {
			return nil, err
		}
		return NewFixedHolding(p.MaxDays, rc.SignalDates)
	})
	r.Register(NextEarningsName, func(params map[string]any, rc RuleContext) (service.ExitRule, error) {
		var p NextEarningsParams
		if err := DecodeParams(params, &p); err != nil {
			return nil, err
		}
		dates := append([]time.Time(nil), rc.EarningsDates...)
		for _, s := range p.EarningsDates {
			d, err := models.ParseDate(s)
			if err != nil {
				return nil, models.ConfigErrorf("earnings_dates: %v", err)
			}
			dates = append(dates, d)
		}
		return NewNextEarnings(p.DaysBefore, dates)
	})
	r.Register(StopTakeName, func(params map[string]any, _ RuleContext) (service.ExitRule, error) {
		var p StopTakeParams
		if err := DecodeParams(params, &p); err != nil {
			return nil, err
		}
		return NewStopTake(p.StopPct, p.TakePct)
	})
	r.Register(TrailingName, func(params map[string]any, _ RuleContext) (service.ExitRule, error) {
		var p TrailingParams
		if err := DecodeParams(params, &p); err != nil {
			return nil, err
		}
		return NewTrailing(p.TrailPct)
	})
	return r
}

// Register adds or replaces a factory.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Build resolves spec.Type. An empty type means no exit rule.
func (r *Registry) Build(spec models.RuleSpec, rc RuleContext) (service.ExitRule, error) {
	name := spec.Type
	if name == "" {
		name = NoOpName
	}
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, models.ConfigErrorf("unknown exit rule %q", name)
	}
	return f(spec.Params, rc)
}

// Names lists registered rules in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for n := range r.factories {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Describe returns each rule's default params.
func (r *Registry) Describe() map[string]map[string]any {
	out := make(map[string]map[string]any)
	for _, n := range r.Names() {
		rule, err := r.Build(models.RuleSpec{Type: n}, RuleContext{})
		if err != nil {
			out[n] = nil
			continue
		}
		out[n] = rule.Params()
	}
	return out
}

var validate = validator.New()

// DecodeParams fills out from struct defaults and raw params, then validates it.
func DecodeParams(params map[string]any, out any) error {
	// defaults first so explicit zero values survive the decode
	if err := defaults.Set(out); err != nil {
		return models.ConfigErrorf("defaults: %v", err)
	}
	if len(params) > 0 {
		raw, err := yaml.Marshal(params)
		if err != nil {
			return models.ConfigErrorf("encode params: %v", err)
		}
		if err := yaml.Unmarshal(raw, out); err != nil {
			return models.ConfigErrorf("decode params: %v", err)
		}
	}
	if err := validate.Struct(out); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return models.ConfigErrorf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param())
		}
		return models.ConfigErrorf("%v", err)
	}
	return nil
}

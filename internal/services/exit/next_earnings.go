package exit

import (
	"sort"
	"time"

	"TradeLab/internal/domain/models"
	"TradeLab/internal/domain/service"
)

const NextEarningsName = "next_earnings"

type NextEarningsParams struct {
	DaysBefore    int      `yaml:"days_before" default:"1" validate:"gte=0"`
	EarningsDates []string `yaml:"earnings_dates"`
}

// NextEarnings goes flat when the next scheduled earnings date is at most DaysBefore calendar
// days away. Earnings dates are announced ahead of time, so reading them forward is allowed.
type NextEarnings struct {
	daysBefore int
	earnings   []time.Time
}

var _ service.ExitRule = (*NextEarnings)(nil)

func NewNextEarnings(daysBefore int, earnings []time.Time) (*NextEarnings, error) {
	if daysBefore < 0 {
		return nil, models.ConfigErrorf("days_before must be >= 0, got %d", daysBefore)
	}
	dates := make([]time.Time, 0, len(earnings))
	for _, d := range earnings {
		dates = append(dates, models.TruncateDay(d))
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return &NextEarnings{daysBefore: daysBefore, earnings: dates}, nil
}

func (r *NextEarnings) Name() string { return NextEarningsName }

func (r *NextEarnings) Params() map[string]any {
	return map[string]any{"days_before": r.daysBefore, "earnings_dates": len(r.earnings)}
}

// next returns the first earnings date strictly after t.
func (r *NextEarnings) next(t time.Time) (time.Time, bool) {
	i := sort.Search(len(r.earnings), func(i int) bool { return r.earnings[i].After(t) })
	if i == len(r.earnings) {
		return time.Time{}, false
	}
	return r.earnings[i], true
}

func (r *NextEarnings) Apply(bars []models.DailyBar, in models.PositionSeries) (models.PositionSeries, error) {
	if err := checkInput(bars, in, false); err != nil {
		return models.PositionSeries{}, err
	}
	out := withReasons(in)
	for i := range bars {
		if models.IsFlat(in.Position[i]) {
			continue
		}
		day := models.TruncateDay(bars[i].Date)
		e, ok := r.next(day)
		if !ok {
			continue
		}
		if gap := int(e.Sub(day).Hours() / 24); gap <= r.daysBefore {
			forceFlat(&out, i, models.ExitNextEarnings)
		}
	}
	return out, nil
}

package entry

import (
	"math"
	"sort"
	"time"

	"TradeLab/internal/domain/models"
)

// Resolver maps signal dates onto the trading calendar and forward-fills the decisions.
type Resolver struct {
	daysBefore int
}

// NewResolver returns a resolver entering daysBefore trading days ahead of each signal.
func NewResolver(daysBefore int) (*Resolver, error) {
	if daysBefore < 0 {
		return nil, models.ConfigErrorf("entry_days_before must be >= 0, got %d", daysBefore)
	}
	return &Resolver{daysBefore: daysBefore}, nil
}

func (r *Resolver) DaysBefore() int { return r.daysBefore }

// Resolve registers one entry per usable decision and forward-fills it until the next entry.
// A signal is matched to the latest calendar date at or before it, never a later one.
func (r *Resolver) Resolve(calendar []time.Time, decisions []models.SignalDecision) (models.Resolution, error) {
	if err := models.ValidateCalendar(calendar); err != nil {
		return models.Resolution{}, err
	}
	ordered := make([]models.SignalDecision, len(decisions))
	copy(ordered, decisions)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].SignalDate.Before(ordered[j].SignalDate) })

	var (
		entries []models.Entry
		picked  []models.SignalDecision
		nextID  int64
	)
	for k, d := range ordered {
		if math.IsNaN(d.Direction) || d.Direction < -1 || d.Direction > 1 {
			return models.Resolution{}, models.ShapeErrorf("decision %d direction %v outside [-1,1]", k, d.Direction)
		}
		idx := models.IndexAtOrBefore(calendar, d.SignalDate)
		if idx < 0 {
			continue
		}
		idx -= r.daysBefore
		if idx < 0 {
			continue
		}
		nextID++
		e := models.Entry{SignalID: nextID, SignalDate: d.SignalDate, EntryDate: calendar[idx], Index: idx}
		// same entry row: the later signal wins
		if n := len(entries); n > 0 && entries[n-1].Index == idx {
			entries[n-1], picked[n-1] = e, d
			continue
		}
		entries = append(entries, e)
		picked = append(picked, d)
	}

	series := models.NewFlatSeries(calendar)
	if len(entries) == 0 {
		return models.Resolution{Series: series}, nil
	}
	next := 0
	cur := -1
	for i := range calendar {
		if next < len(entries) && entries[next].Index == i {
			cur = next
			next++
		}
		if cur < 0 {
			continue
		}
		d := picked[cur]
		series.Position[i] = d.Direction
		series.Strength[i] = d.Strength
		series.Confidence[i] = d.Confidence
		series.SignalID[i] = entries[cur].SignalID
		series.Context[i] = d.Context
	}
	return models.Resolution{Series: series, Entries: entries}, nil
}

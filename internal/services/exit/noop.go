package exit

import (
	"TradeLab/internal/domain/models"
	"TradeLab/internal/domain/service"
)

const NoOpName = "none"

// NoOp returns the upstream positions unchanged.
type NoOp struct{}

var _ service.ExitRule = NoOp{}

func (NoOp) Name() string           { return NoOpName }
func (NoOp) Params() map[string]any { return map[string]any{} }

func (NoOp) Apply(bars []models.DailyBar, in models.PositionSeries) (models.PositionSeries, error) {
	if err := checkInput(bars, in, false); err != nil {
		return models.PositionSeries{}, err
	}
	return in.Clone(), nil
}

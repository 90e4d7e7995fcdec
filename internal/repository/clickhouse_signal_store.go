package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"TradeLab/internal/domain/models"
	"TradeLab/internal/domain/service"
	pkgch "TradeLab/pkg/clickhouse"
)

// CHSignalStore serves stored signal observations. Without a column filter every column on a
// day becomes its own decision and the resolver keeps the last one, so same-day columns are
// ordered by name and the alphabetically last column wins.
type CHSignalStore struct {
	db     *sql.DB
	table  string
	column string
}

var _ service.SignalProvider = (*CHSignalStore)(nil)

// NewCHSignalStore reads from the signals table; a non-empty column restricts reads to it.
func NewCHSignalStore(ch *pkgch.Client, column string) *CHSignalStore {
	return &CHSignalStore{db: ch.DB(), table: ch.Database() + "." + pkgch.TableSigs, column: column}
}

func signalsQuery(table, column, symbol string, from, to time.Time) (string, []any) {
	where, args := "symbol = ?", []any{symbol}
	if column != "" {
		where += " AND signal_column = ?"
		args = append(args, column)
	}
	where, args = dayRange(where, args, from, to)
	q := fmt.Sprintf(`
        SELECT day, signal_column, value, strength, correlation, confidence, regime_shift, momentum
        FROM %s FINAL
        WHERE %s
        ORDER BY day ASC, signal_column ASC
    `, table, where)
	return q, args
}

func (s *CHSignalStore) Signals(ctx context.Context, symbol string, from, to time.Time) ([]models.SignalObservation, error) {
	q, args := signalsQuery(s.table, s.column, symbol, from, to)
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("get signals: %w", err)
	}
	defer rows.Close()

	var out []models.SignalObservation
	for rows.Next() {
		var (
			o      models.SignalObservation
			regime uint8
		)
		if err := rows.Scan(&o.Date, &o.Column, &o.Value, &o.Strength, &o.Correlation, &o.Confidence, &regime, &o.Momentum); err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		o.Date = models.TruncateDay(o.Date)
		o.RegimeShift = regime != 0
		out = append(out, o)
	}
	return out, rows.Err()
}

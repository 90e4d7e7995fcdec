package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"TradeLab/internal/domain/models"
	domrepo "TradeLab/internal/domain/repository"
	pkgch "TradeLab/pkg/clickhouse"
	applogger "TradeLab/pkg/logger"
)

// insertChunk bounds the rows of one multi-row INSERT.
const insertChunk = 2000

// CHBarStore implements BarStore backed by ClickHouse.
type CHBarStore struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
}

var _ domrepo.BarStore = (*CHBarStore)(nil)

func NewCHBarStore(ch *pkgch.Client, l *applogger.Logger) *CHBarStore {
	return &CHBarStore{db: ch.DB(), table: ch.Database() + "." + pkgch.TableBars, l: l}
}

func (s *CHBarStore) Bars(ctx context.Context, symbol string, from, to time.Time) ([]models.DailyBar, error) {
	start := time.Now()
	where, args := dayRange("symbol = ?", []any{symbol}, from, to)
	// FINAL collapses re-imported days to the latest version
	q := fmt.Sprintf(`
        SELECT day, open, high, low, close, volume
        FROM %s FINAL
        WHERE %s
        ORDER BY day ASC
    `, s.table, where)
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		s.logError("clickhouse bars query error", symbol, err)
		return nil, fmt.Errorf("get bars: %w", err)
	}
	defer rows.Close()

	out := make([]models.DailyBar, 0, 512)
	for rows.Next() {
		var b models.DailyBar
		if err := rows.Scan(&b.Date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			s.logError("clickhouse bars scan error", symbol, err)
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		b.Date = models.TruncateDay(b.Date)
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	if s.l != nil {
		s.l.Debug("clickhouse bars ok",
			applogger.String("symbol", symbol),
			applogger.Int("rows", len(out)),
			applogger.Duration("duration_ms", time.Since(start)))
	}
	return out, nil
}

func (s *CHBarStore) StoreBars(ctx context.Context, symbol string, bars []models.DailyBar) error {
	for lo := 0; lo < len(bars); lo += insertChunk {
		hi := min(lo+insertChunk, len(bars))
		values := make([]string, 0, hi-lo)
		args := make([]any, 0, (hi-lo)*7)
		for _, b := range bars[lo:hi] {
			values = append(values, "(?, ?, ?, ?, ?, ?, ?)")
			args = append(args, symbol, b.Date, b.Open, b.High, b.Low, b.Close, b.Volume)
		}
		q := fmt.Sprintf("INSERT INTO %s (symbol, day, open, high, low, close, volume) VALUES %s",
			s.table, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			s.logError("clickhouse store bars error", symbol, err)
			return fmt.Errorf("store bars: %w", err)
		}
	}
	return nil
}

func (s *CHBarStore) logError(msg, symbol string, err error) {
	if s.l != nil {
		s.l.Error(msg, applogger.String("table", s.table), applogger.String("symbol", symbol), applogger.Error(err))
	}
}

// dayRange appends inclusive day bounds to a WHERE clause; zero times are unbounded.
func dayRange(where string, args []any, from, to time.Time) (string, []any) {
	if !from.IsZero() {
		where += " AND day >= ?"
		args = append(args, models.TruncateDay(from))
	}
	if !to.IsZero() {
		where += " AND day <= ?"
		args = append(args, models.TruncateDay(to))
	}
	return where, args
}

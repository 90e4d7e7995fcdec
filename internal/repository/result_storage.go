package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"TradeLab/internal/domain/models"
	"TradeLab/internal/domain/repository"
	pkgch "TradeLab/pkg/clickhouse"

	"github.com/google/uuid"
)

// ClickHouseStorage implements Storage for ClickHouse: one row per run and one per trade.
type ClickHouseStorage struct {
	ch     *pkgch.Client
	db     *sql.DB
	runs   string
	trades string
}

var _ repository.Storage = (*ClickHouseStorage)(nil)

func NewClickHouseStorage(ch *pkgch.Client) *ClickHouseStorage {
	return &ClickHouseStorage{
		ch:     ch,
		db:     ch.DB(),
		runs:   ch.Database() + "." + pkgch.TableRuns,
		trades: ch.Database() + "." + pkgch.TableTrades,
	}
}

func (s *ClickHouseStorage) Init(ctx context.Context) error {
	return s.ch.InitSchema(ctx, pkgch.Schema(s.ch.Database()))
}

func (s *ClickHouseStorage) Store(ctx context.Context, r *models.BacktestResult) error {
	return s.StoreBatch(ctx, []*models.BacktestResult{r})
}

func (s *ClickHouseStorage) StoreBatch(ctx context.Context, results []*models.BacktestResult) error {
	var runVals, tradeVals []string
	var runArgs, tradeArgs []any
	for _, r := range results {
		if r == nil || r.Err != nil {
			continue
		}
		args, err := runRow(r)
		if err != nil {
			return err
		}
		runVals = append(runVals, placeholders(len(args)))
		runArgs = append(runArgs, args...)
		for i := range r.Trades {
			ta := tradeRow(r, i)
			tradeVals = append(tradeVals, placeholders(len(ta)))
			tradeArgs = append(tradeArgs, ta...)
		}
	}
	if len(runVals) == 0 {
		return nil
	}
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", s.runs, runColumns, strings.Join(runVals, ","))
	if _, err := s.db.ExecContext(ctx, q, runArgs...); err != nil {
		return fmt.Errorf("store runs: %w", err)
	}
	for lo := 0; lo < len(tradeVals); lo += insertChunk {
		hi := min(lo+insertChunk, len(tradeVals))
		q := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", s.trades, tradeColumns, strings.Join(tradeVals[lo:hi], ","))
		if _, err := s.db.ExecContext(ctx, q, tradeArgs[lo*tradeWidth:hi*tradeWidth]...); err != nil {
			return fmt.Errorf("store trades: %w", err)
		}
	}
	return nil
}

func (s *ClickHouseStorage) Trades(ctx context.Context, runID string) ([]models.Trade, error) {
	id, err := uuid.Parse(runID)
	if err != nil {
		return nil, models.ShapeErrorf("run id %q: %v", runID, err)
	}
	q := fmt.Sprintf(`
        SELECT entry_date, exit_date, direction, entry_price, exit_price, holding_days, return,
               signal_strength, confidence, signal_id, exit_reason
        FROM %s
        WHERE run_id = ?
        ORDER BY seq ASC
    `, s.trades)
	rows, err := s.db.QueryContext(ctx, q, id)
	if err != nil {
		return nil, fmt.Errorf("get trades: %w", err)
	}
	defer rows.Close()

	var out []models.Trade
	for rows.Next() {
		var (
			t       models.Trade
			dir     int8
			holding uint32
			reason  string
		)
		if err := rows.Scan(&t.EntryDate, &t.ExitDate, &dir, &t.EntryPrice, &t.ExitPrice, &holding, &t.Return,
			&t.SignalStrength, &t.Confidence, &t.SignalID, &reason); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		t.Direction = int(dir)
		t.HoldingDays = int(holding)
		t.ExitReason = models.ExitReason(reason)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *ClickHouseStorage) Health(ctx context.Context) error {
	return s.ch.Health(ctx)
}

// Close is a no-op, the pool belongs to the clickhouse client.
func (s *ClickHouseStorage) Close() error {
	return nil
}

const (
	runColumns   = "run_id, job_id, symbol, entry_rule, exit_rule, exit_params, trades, total_return, win_rate, profit_factor, skipped, started_at, elapsed_ms"
	tradeColumns = "run_id, seq, symbol, entry_date, exit_date, direction, entry_price, exit_price, holding_days, return, signal_strength, confidence, signal_id, exit_reason"
	tradeWidth   = 14
)

func runRow(r *models.BacktestResult) ([]any, error) {
	params, err := json.Marshal(r.ExitParams)
	if err != nil {
		return nil, fmt.Errorf("encode exit params: %w", err)
	}
	// ClickHouse Float64 holds +Inf, keep the value as computed
	pf := r.Summary.ProfitFactor
	if math.IsNaN(pf) {
		pf = 0
	}
	return []any{
		r.RunID, r.JobID, r.Symbol, r.EntryRule, r.ExitRule, string(params),
		uint32(r.Summary.Trades), r.Summary.TotalReturn, r.Summary.WinRate, pf,
		uint32(r.SkippedTrades), r.StartedAt, uint64(r.Elapsed / time.Millisecond),
	}, nil
}

func tradeRow(r *models.BacktestResult, i int) []any {
	t := r.Trades[i]
	return []any{
		r.RunID, uint32(i), r.Symbol, t.EntryDate, t.ExitDate, int8(t.Direction),
		t.EntryPrice, t.ExitPrice, uint32(t.HoldingDays), t.Return,
		t.SignalStrength, t.Confidence, t.SignalID, string(t.ExitReason),
	}
}

func placeholders(n int) string {
	return "(" + strings.TrimSuffix(strings.Repeat("?, ", n), ", ") + ")"
}

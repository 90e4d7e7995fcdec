package clickhouse

import "fmt"

// Table names inside the configured database.
const (
	TableBars   = "daily_bars"
	TableSigs   = "signal_observations"
	TableRuns   = "backtest_runs"
	TableTrades = "backtest_trades"
)

// Schema returns the DDL for every table the service reads or writes.
func Schema(database string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
    symbol LowCardinality(String),
    day Date,
    open Float64,
    high Float64,
    low Float64,
    close Float64,
    volume Float64,
    updated_at DateTime DEFAULT now()
) ENGINE = ReplacingMergeTree(updated_at)
ORDER BY (symbol, day)`, database, TableBars),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
    symbol LowCardinality(String),
    day Date,
    signal_column String,
    value Float64,
    strength Float64,
    correlation Float64,
    confidence Float64,
    regime_shift UInt8,
    momentum Map(String, Float64)
) ENGINE = ReplacingMergeTree
ORDER BY (symbol, day, signal_column)`, database, TableSigs),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
    run_id UUID,
    job_id String,
    symbol LowCardinality(String),
    entry_rule String,
    exit_rule String,
    exit_params String,
    trades UInt32,
    total_return Float64,
    win_rate Float64,
    profit_factor Float64,
    skipped UInt32,
    started_at DateTime64(3),
    elapsed_ms UInt64
) ENGINE = MergeTree
ORDER BY (symbol, started_at)`, database, TableRuns),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
    run_id UUID,
    seq UInt32,
    symbol LowCardinality(String),
    entry_date Date,
    exit_date Date,
    direction Int8,
    entry_price Float64,
    exit_price Float64,
    holding_days UInt32,
    return Float64,
    signal_strength Float64,
    confidence Float64,
    signal_id Int64,
    exit_reason LowCardinality(String)
) ENGINE = MergeTree
ORDER BY (run_id, seq)`, database, TableTrades),
	}
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"TradeLab/internal/domain/models"
	applogger "TradeLab/pkg/logger"
)

const barsCSV = `date,open,high,low,close
2024-05-06,100,101,99,100
2024-05-07,100,101,91,92
2024-05-08,92,95,90,94
2024-05-09,94,96,93,95
`

const jobsYAML = `jobs:
  - id: stop
    symbol: AAPL
    bars_csv: aapl.csv
    signals:
      - {date: "2024-05-06", value: 1}
    exit:
      type: stop_loss_take_profit
      params: {stop_pct: -0.05, take_pct: 0.5}
  - id: hold
    symbol: AAPL
    bars_csv: aapl.csv
    to: "2024-05-08"
    signals:
      - {date: "2024-05-06", value: -1}
    exit: {type: fixed_holding, params: {max_days: 1}}
`

func writeFiles(t *testing.T, jobs string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "aapl.csv"), []byte(barsCSV), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	path := filepath.Join(dir, "jobs.yaml")
	if err := os.WriteFile(path, []byte(jobs), 0o644); err != nil {
		t.Fatalf("write jobs: %v", err)
	}
	return path
}

func TestRunWritesResults(t *testing.T) {
	path := writeFiles(t, jobsYAML)
	var out bytes.Buffer
	if err := run(context.Background(), options{jobsPath: path, workers: 2}, &out, applogger.Nop()); err != nil {
		t.Fatalf("run: %v", err)
	}

	var got []models.BacktestResponse
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 2 || got[0].JobID != "stop" || got[1].JobID != "hold" {
		t.Fatalf("unexpected results %+v", got)
	}
	if len(got[0].Trades) != 1 || got[0].Trades[0].ExitReason != models.ExitStopLoss {
		t.Fatalf("expected one stop-loss trade, got %+v", got[0].Trades)
	}
	if len(got[1].Trades) != 1 || got[1].Trades[0].Direction != -1 || got[1].Trades[0].ExitDate != "2024-05-07" {
		t.Fatalf("unexpected holding trade %+v", got[1].Trades)
	}
}

func TestRunReportsFailedJobs(t *testing.T) {
	path := writeFiles(t, jobsYAML+`  - symbol: MSFT
    exit: {type: moon}
`)
	outPath := filepath.Join(t.TempDir(), "out.json")
	err := run(context.Background(), options{jobsPath: path, outPath: outPath, workers: 1}, nil, applogger.Nop())
	if !errors.Is(err, errJobsFailed) {
		t.Fatalf("expected errJobsFailed, got %v", err)
	}
	b, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	var got []models.BacktestResponse
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 3 || got[2].Error == "" {
		t.Fatalf("expected the third job to fail, got %+v", got)
	}
}

func TestReadJobsRejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"empty", "jobs: []\n"},
		{"missing symbol", "jobs:\n  - bars_csv: aapl.csv\n"},
		{"missing csv", "jobs:\n  - symbol: A\n    bars_csv: nope.csv\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := readJobs(context.Background(), writeFiles(t, tt.yaml)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

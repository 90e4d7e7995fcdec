package repository

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"TradeLab/internal/domain/models"
	pkgkafka "TradeLab/pkg/kafka"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

func TestReadBarsCSV(t *testing.T) {
	in := "Date,Open,High,Low,Close,Volume\n" +
		"2024-01-03,10,11,9,10.5,100\n" +
		"2024-01-02,,,,10,\n"
	bars, err := ReadBarsCSV(strings.NewReader(in))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("expected 2 bars, got %d", len(bars))
	}
	if !bars[0].Date.Equal(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("bars not sorted: %v", bars[0].Date)
	}
	if bars[0].Open != 10 || bars[0].High != 10 || bars[0].Low != 10 || bars[0].Volume != 0 {
		t.Fatalf("defaults not applied: %+v", bars[0])
	}
	if bars[1].High != 11 || bars[1].Volume != 100 {
		t.Fatalf("unexpected bar %+v", bars[1])
	}
}

func TestReadBarsCSVErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"no close column", "date,open\n2024-01-02,1\n"},
		{"bad date", "date,close\nyesterday,1\n"},
		{"bad number", "date,close\n2024-01-02,abc\n"},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadBarsCSV(strings.NewReader(tt.in))
			if !errors.Is(err, models.ErrInputShape) {
				t.Fatalf("expected input shape error, got %v", err)
			}
		})
	}
}

type captureWriter struct{ msgs []kafka.Message }

func (w *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *captureWriter) Close() error { return nil }

func sampleResult() *models.BacktestResult {
	d := func(day int) time.Time { return time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC) }
	return &models.BacktestResult{
		RunID:    uuid.New(),
		JobID:    "job-1",
		Symbol:   "AAPL",
		ExitRule: "none",
		Trades: []models.Trade{
			{EntryDate: d(2), ExitDate: d(4), Direction: 1, EntryPrice: 100, ExitPrice: 110, HoldingDays: 2, Return: 0.1, ExitReason: models.ExitSignal},
			{EntryDate: d(5), ExitDate: d(8), Direction: -1, EntryPrice: 110, ExitPrice: 99, HoldingDays: 3, Return: 0.1, ExitReason: models.ExitEndOfData},
		},
		Summary: models.Summary{Trades: 2},
	}
}

func TestKafkaPublisherKeysBySymbol(t *testing.T) {
	w := &captureWriter{}
	p := NewKafkaPublisher(pkgkafka.NewProducerWithWriter(w, "snappy"), "backtest.results", false)
	r := sampleResult()
	if err := p.PublishBatch(context.Background(), []*models.BacktestResult{r, nil}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(w.msgs) != 1 || string(w.msgs[0].Key) != "AAPL" {
		t.Fatalf("unexpected messages %+v", w.msgs)
	}
	var body models.BacktestResponse
	if err := json.Unmarshal(w.msgs[0].Value, &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.RunID != r.RunID.String() || len(body.Trades) != 2 {
		t.Fatalf("unexpected payload %+v", body)
	}
}

func TestRowBuilders(t *testing.T) {
	r := sampleResult()
	run, err := runRow(r)
	if err != nil {
		t.Fatalf("run row: %v", err)
	}
	if len(run) != len(strings.Split(runColumns, ",")) {
		t.Fatalf("run row has %d values for %d columns", len(run), len(strings.Split(runColumns, ",")))
	}
	tr := tradeRow(r, 1)
	if len(tr) != tradeWidth || len(strings.Split(tradeColumns, ",")) != tradeWidth {
		t.Fatalf("trade row width mismatch")
	}
	if tr[5] != int8(-1) || tr[13] != "end_of_data" {
		t.Fatalf("unexpected trade row %v", tr)
	}
	if got := placeholders(3); got != "(?, ?, ?)" {
		t.Fatalf("placeholders %q", got)
	}
}

func TestSignalsQuery(t *testing.T) {
	from := time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC)
	tests := []struct {
		name   string
		column string
		from   time.Time
		want   string
		args   int
	}{
		{"all columns", "", time.Time{}, "WHERE symbol = ?\n", 1},
		{"one column", "sentiment", time.Time{}, "WHERE symbol = ? AND signal_column = ?\n", 2},
		{"column and range", "sentiment", from, "WHERE symbol = ? AND signal_column = ? AND day >= ?\n", 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, args := signalsQuery("db.sigs", tt.column, "AAPL", tt.from, time.Time{})
			if !strings.Contains(q, tt.want) || !strings.Contains(q, "FROM db.sigs FINAL") {
				t.Fatalf("unexpected query %q", q)
			}
			if len(args) != tt.args || args[0] != "AAPL" {
				t.Fatalf("unexpected args %v", args)
			}
			if tt.column != "" && args[1] != tt.column {
				t.Fatalf("column arg %v", args[1])
			}
		})
	}
}

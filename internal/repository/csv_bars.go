package repository

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"TradeLab/internal/domain/models"
	"TradeLab/pkg/util"
)

// ReadBarsCSV parses daily bars with a header row. date and close are required; open, high
// and low default to close and volume to 0. Rows are sorted by date.
func ReadBarsCSV(r io.Reader) ([]models.DailyBar, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return nil, models.ShapeErrorf("csv header: %v", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, req := range []string{"date", "close"} {
		if _, ok := col[req]; !ok {
			return nil, models.ShapeErrorf("csv missing %q column", req)
		}
	}

	var bars []models.DailyBar
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, models.ShapeErrorf("csv line %d: %v", line, err)
		}
		d, ok := util.ParseDay(rec[col["date"]])
		if !ok {
			return nil, models.ShapeErrorf("csv line %d: invalid date %q", line, rec[col["date"]])
		}
		b := models.DailyBar{Date: d}
		if b.Close, err = field(rec, col, "close", 0); err != nil {
			return nil, models.ShapeErrorf("csv line %d: %v", line, err)
		}
		for _, f := range []struct {
			name string
			dst  *float64
			def  float64
		}{
			{"open", &b.Open, b.Close},
			{"high", &b.High, b.Close},
			{"low", &b.Low, b.Close},
			{"volume", &b.Volume, 0},
		} {
			if *f.dst, err = field(rec, col, f.name, f.def); err != nil {
				return nil, models.ShapeErrorf("csv line %d: %v", line, err)
			}
		}
		bars = append(bars, b)
	}
	models.SortBars(bars)
	return bars, nil
}

// LoadBarsCSV reads bars from a file.
func LoadBarsCSV(path string) ([]models.DailyBar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open bars: %w", err)
	}
	defer f.Close()
	return ReadBarsCSV(f)
}

func field(rec []string, col map[string]int, name string, def float64) (float64, error) {
	i, ok := col[name]
	if !ok || i >= len(rec) || strings.TrimSpace(rec[i]) == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(rec[i]), 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return v, nil
}

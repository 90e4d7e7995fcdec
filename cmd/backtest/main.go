// Command backtest runs a YAML file of backtest jobs offline and writes the JSON results.
//
// Each job takes the POST /api/backtest fields plus bars_csv, a path (relative to the job
// file) of daily bars used when the job has no inline bars:
//
//	jobs:
//	  - symbol: AAPL
//	    bars_csv: aapl.csv
//	    signals: [{date: "2024-05-06", value: 1}]
//	    exit: {type: stop_loss_take_profit, params: {stop_pct: -0.05}}
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"TradeLab/internal/domain/models"
	"TradeLab/internal/domain/service"
	"TradeLab/internal/repository"
	"TradeLab/internal/services/exit"
	"TradeLab/internal/services/signals"
	"TradeLab/internal/usecase"
	xhttp "TradeLab/pkg/http"
	applogger "TradeLab/pkg/logger"
	"TradeLab/pkg/metrics"
	"TradeLab/pkg/util"

	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"
)

// errJobsFailed marks a run where at least one job failed.
var errJobsFailed = errors.New("some jobs failed")

type options struct {
	jobsPath   string
	outPath    string
	workers    int
	series     bool
	signalsURL string
	logLevel   string
}

type jobFile struct {
	Jobs []jobEntry `yaml:"jobs"`
}

type jobEntry struct {
	BarsCSV string         `yaml:"bars_csv"`
	Request map[string]any `yaml:",inline"`
}

func main() {
	var o options
	flag.StringVar(&o.jobsPath, "jobs", "jobs.yaml", "YAML job file")
	flag.StringVar(&o.outPath, "out", "", "output file, stdout when empty")
	flag.IntVar(&o.workers, "workers", 4, "concurrent jobs")
	flag.BoolVar(&o.series, "series", false, "include the daily position series")
	flag.StringVar(&o.signalsURL, "signals-url", "", "signal service for jobs without inline signals")
	flag.StringVar(&o.logLevel, "log-level", "info", "log level")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	l := applogger.NewWriter(os.Stderr, o.logLevel)
	err := run(ctx, o, os.Stdout, l)
	switch {
	case errors.Is(err, errJobsFailed):
		os.Exit(2)
	case err != nil:
		l.Error("backtest failed", applogger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, o options, stdout io.Writer, l *applogger.Logger) error {
	reqs, err := readJobs(ctx, o.jobsPath)
	if err != nil {
		return err
	}

	var sp service.SignalProvider
	if o.signalsURL != "" {
		sp = signals.NewHTTPProvider(o.signalsURL, 3)
	}
	loader := usecase.NewJobLoader(nil, sp)
	runner := usecase.NewBacktestRunner(exit.NewRegistry(), metrics.NewWithRegistry(prometheus.NewRegistry()), l, o.workers)

	results := make([]*models.BacktestResult, len(reqs))
	jobs := make([]models.BacktestJob, 0, len(reqs))
	index := make([]int, 0, len(reqs))
	for i, req := range reqs {
		job, err := loader.Load(ctx, req)
		if err != nil {
			results[i] = &models.BacktestResult{JobID: req.ID, Symbol: req.Symbol, ExitRule: req.Exit.Type, Err: err}
			continue
		}
		jobs = append(jobs, job)
		index = append(index, i)
	}
	for k, res := range runner.RunBatch(ctx, jobs) {
		results[index[k]] = res
	}

	failed := 0
	out := make([]models.BacktestResponse, len(results))
	for i, r := range results {
		if r.Err != nil {
			failed++
			l.Warn("job failed", applogger.String("symbol", r.Symbol), applogger.String("job", r.JobID), applogger.Error(r.Err))
		}
		out[i] = models.NewBacktestResponse(*r, o.series || reqs[i].IncludeSeries)
	}

	w := stdout
	if o.outPath != "" {
		f, err := os.Create(o.outPath)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		w = f
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("write results: %w", err)
	}

	l.Info("backtest done", applogger.Int("jobs", len(results)), applogger.Int("failed", failed))
	if failed > 0 {
		return errJobsFailed
	}
	return nil
}

// readJobs decodes the job file into validated requests, loading bars_csv files into the
// inline bars.
func readJobs(ctx context.Context, path string) ([]models.BacktestRequest, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read jobs: %w", err)
	}
	var f jobFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse jobs: %w", err)
	}
	if len(f.Jobs) == 0 {
		return nil, fmt.Errorf("%s has no jobs", path)
	}

	dir := filepath.Dir(path)
	reqs := make([]models.BacktestRequest, len(f.Jobs))
	for i, e := range f.Jobs {
		raw, err := json.Marshal(e.Request)
		if err != nil {
			return nil, fmt.Errorf("job %d: %w", i, err)
		}
		if err := xhttp.DecodeAndValidate(ctx, raw, &reqs[i]); err != nil {
			return nil, fmt.Errorf("job %d: %w", i, err)
		}
		if e.BarsCSV == "" || len(reqs[i].Bars) > 0 {
			continue
		}
		csvPath := e.BarsCSV
		if !filepath.IsAbs(csvPath) {
			csvPath = filepath.Join(dir, csvPath)
		}
		bars, err := repository.LoadBarsCSV(csvPath)
		if err != nil {
			return nil, fmt.Errorf("job %d: %w", i, err)
		}
		reqs[i].Bars = make([]models.BarDTO, len(bars))
		for k, bar := range bars {
			reqs[i].Bars[k] = models.BarDTO{
				Date: bar.Date.Format(util.DayLayout), Open: bar.Open, High: bar.High,
				Low: bar.Low, Close: bar.Close, Volume: bar.Volume,
			}
		}
	}
	return reqs, nil
}

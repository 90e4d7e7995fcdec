package api

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"TradeLab/internal/domain/models"
	domrepo "TradeLab/internal/domain/repository"
	icache "TradeLab/internal/service/cache"
	"TradeLab/internal/service/metrics"
	"TradeLab/internal/service/ratelimit"
	"TradeLab/internal/usecase"
	xhttp "TradeLab/pkg/http"
	xlogger "TradeLab/pkg/logger"

	"github.com/labstack/echo/v4"
)

// BacktestHandler serves the backtest API.
type BacktestHandler struct {
	logger   *xlogger.Logger
	loader   *usecase.JobLoader
	runner   *usecase.BacktestRunner
	sink     *usecase.ResultSink
	store    domrepo.Storage
	cache    icache.BytesCache
	cacheTTL time.Duration
	rl       *ratelimit.Limiter
	maxBatch int
}

// HandlerOption configures BacktestHandler.
type HandlerOption func(*BacktestHandler)

// WithCache caches single-job responses keyed by the request body.
func WithCache(c icache.BytesCache, ttl time.Duration) HandlerOption {
	return func(h *BacktestHandler) {
		h.cache = c
		h.cacheTTL = ttl
	}
}

// WithRateLimit limits requests per client address.
func WithRateLimit(rl *ratelimit.Limiter) HandlerOption {
	return func(h *BacktestHandler) {
		h.rl = rl
	}
}

// WithStorage enables trade lookups of stored runs.
func WithStorage(s domrepo.Storage) HandlerOption {
	return func(h *BacktestHandler) {
		h.store = s
	}
}

// WithMaxBatch caps jobs per batch request.
func WithMaxBatch(n int) HandlerOption {
	return func(h *BacktestHandler) {
		if n > 0 {
			h.maxBatch = n
		}
	}
}

func NewBacktestHandler(logger *xlogger.Logger, loader *usecase.JobLoader, runner *usecase.BacktestRunner, sink *usecase.ResultSink, opts ...HandlerOption) *BacktestHandler {
	metrics.Register()
	h := &BacktestHandler{
		logger:   logger,
		loader:   loader,
		runner:   runner,
		sink:     sink,
		maxBatch: 500,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *BacktestHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.POST("/backtest", h.Backtest, h.limit)
	g.POST("/backtest/batch", h.Batch, h.limit)
	g.GET("/backtest/stream", h.Stream, h.limit)
	g.GET("/exits", h.Exits)
	g.GET("/runs/:id/trades", h.RunTrades)
}

// BatchResponse is the body of POST /api/backtest/batch.
type BatchResponse struct {
	Results []models.BacktestResponse `json:"results"`
	Failed  int                       `json:"failed"`
}

func (h *BacktestHandler) Backtest(c echo.Context) error {
	const endpoint = "backtest"
	defer observe(endpoint, time.Now())

	req := &models.BacktestRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		metrics.EndpointErrors.WithLabelValues(endpoint).Inc()
		return xhttp.BadRequestResponse(c, verr)
	}
	ctx := c.Request().Context()

	key := cacheKey(req)
	if b, ok := h.cached(ctx, key); ok {
		return xhttp.SuccessResponse(c, json.RawMessage(b))
	}

	job, err := h.loader.Load(ctx, *req)
	if err != nil {
		return h.fail(c, endpoint, err)
	}
	res, err := h.runner.Run(ctx, job)
	if err != nil {
		return h.fail(c, endpoint, err)
	}
	h.forward(ctx, []*models.BacktestResult{res})

	b, err := json.Marshal(models.NewBacktestResponse(*res, req.IncludeSeries))
	if err != nil {
		return h.fail(c, endpoint, err)
	}
	h.remember(ctx, key, b)
	return xhttp.SuccessResponse(c, json.RawMessage(b))
}

func (h *BacktestHandler) Batch(c echo.Context) error {
	const endpoint = "batch"
	defer observe(endpoint, time.Now())

	req := &models.BatchRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		metrics.EndpointErrors.WithLabelValues(endpoint).Inc()
		return xhttp.BadRequestResponse(c, verr)
	}
	if len(req.Jobs) > h.maxBatch {
		return h.fail(c, endpoint, xhttp.BadRequestErrorf("batch of %d jobs exceeds the limit of %d", len(req.Jobs), h.maxBatch).
			WithParam("max_jobs", h.maxBatch))
	}
	ctx := c.Request().Context()

	results := h.runAll(ctx, req.Jobs, nil)
	h.forward(ctx, results)

	out := BatchResponse{Results: make([]models.BacktestResponse, len(results))}
	for i, r := range results {
		if r.Err != nil {
			out.Failed++
		}
		out.Results[i] = models.NewBacktestResponse(*r, req.Jobs[i].IncludeSeries)
	}
	return xhttp.SuccessResponse(c, out)
}

// runAll loads every request, runs the loadable ones as one batch and returns results in
// request order. emit, when set, sees each result as soon as it is known.
func (h *BacktestHandler) runAll(ctx context.Context, reqs []models.BacktestRequest, emit func(i int, r *models.BacktestResult)) []*models.BacktestResult {
	results := make([]*models.BacktestResult, len(reqs))
	jobs := make([]models.BacktestJob, 0, len(reqs))
	index := make([]int, 0, len(reqs))
	for i, r := range reqs {
		job, err := h.loader.Load(ctx, r)
		if err != nil {
			results[i] = &models.BacktestResult{JobID: job.ID, Symbol: r.Symbol, ExitRule: r.Exit.Type, Err: err}
			if emit != nil {
				emit(i, results[i])
			}
			continue
		}
		jobs = append(jobs, job)
		index = append(index, i)
	}
	h.runner.RunEach(ctx, jobs, func(k int, res *models.BacktestResult) {
		results[index[k]] = res
		if emit != nil {
			emit(index[k], res)
		}
	})
	return results
}

func (h *BacktestHandler) Exits(c echo.Context) error {
	req := &models.ExitsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	reg := h.runner.Registry()
	if req.Verbose {
		return xhttp.SuccessResponse(c, reg.Describe())
	}
	return xhttp.SuccessResponse(c, reg.Names())
}

func (h *BacktestHandler) RunTrades(c echo.Context) error {
	const endpoint = "run_trades"
	defer observe(endpoint, time.Now())

	if h.store == nil {
		return h.fail(c, endpoint, xhttp.UnavailableError("result storage is not configured"))
	}
	trades, err := h.store.Trades(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.fail(c, endpoint, err)
	}
	if len(trades) == 0 {
		return h.fail(c, endpoint, xhttp.NotFoundErrorf("no trades for run %s", c.Param("id")))
	}
	out := make([]models.TradeDTO, len(trades))
	for i, t := range trades {
		out[i] = models.NewTradeDTO(t)
	}
	return xhttp.ListResponse(c, out, int64(len(out)))
}

// limit rejects clients over their request budget.
func (h *BacktestHandler) limit(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if h.rl != nil && !h.rl.Allow(c.RealIP()) {
			h.logger.Warn("backtest rate_limited", xlogger.String("remote", c.RealIP()), xlogger.String("path", c.Path()))
			return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("rate limited"))
		}
		return next(c)
	}
}

func (h *BacktestHandler) fail(c echo.Context, endpoint string, err error) error {
	metrics.EndpointErrors.WithLabelValues(endpoint).Inc()
	appErr := toAppError(err)
	if appErr.Status >= http.StatusInternalServerError {
		h.logger.Error("backtest request failed", xlogger.String("endpoint", endpoint), xlogger.Error(err))
	} else {
		h.logger.Debug("backtest request rejected", xlogger.String("endpoint", endpoint), xlogger.Error(err))
	}
	return xhttp.AppErrorResponse(c, appErr)
}

func (h *BacktestHandler) forward(ctx context.Context, results []*models.BacktestResult) {
	if h.sink == nil {
		return
	}
	if err := h.sink.ProcessBatch(ctx, results); err != nil {
		h.logger.Warn("result sink failed", xlogger.String("backend", h.sink.Backend()), xlogger.Error(err))
	}
}

func (h *BacktestHandler) cached(ctx context.Context, key string) ([]byte, bool) {
	if h.cache == nil {
		return nil, false
	}
	b, ok, err := h.cache.GetBytes(ctx, key)
	switch {
	case err != nil:
		metrics.CacheLookups.WithLabelValues("error").Inc()
		h.logger.Warn("backtest cache_get_error", xlogger.Error(err))
		return nil, false
	case ok:
		metrics.CacheLookups.WithLabelValues("hit").Inc()
		h.logger.Debug("backtest cache_hit", xlogger.String("key", key))
		return b, true
	default:
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return nil, false
	}
}

func (h *BacktestHandler) remember(ctx context.Context, key string, b []byte) {
	if h.cache == nil {
		return
	}
	if err := h.cache.SetBytes(ctx, key, b, h.cacheTTL); err != nil {
		h.logger.Warn("backtest cache_set_error", xlogger.Error(err))
	}
}

// toAppError maps domain failures onto HTTP errors.
func toAppError(err error) *xhttp.AppError {
	var appErr *xhttp.AppError
	switch {
	case errors.As(err, &appErr):
		return appErr
	case models.IsInputShape(err):
		return xhttp.NewAppError("ERR_INPUT_SHAPE", "", err.Error(), http.StatusBadRequest).WithError(err)
	case models.IsConfiguration(err):
		return xhttp.NewAppError("ERR_CONFIGURATION", "", err.Error(), http.StatusBadRequest).WithError(err)
	case errors.Is(err, usecase.ErrNoSource):
		return xhttp.UnavailableError(err.Error()).WithError(err)
	default:
		return xhttp.InternalError("backtest failed").WithError(err)
	}
}

// cacheKey hashes the decoded request, so equivalent bodies share an entry.
func cacheKey(req *models.BacktestRequest) string {
	b, _ := json.Marshal(req)
	sum := sha256.Sum256(b)
	return "bt:" + hex.EncodeToString(sum[:])
}

func observe(endpoint string, start time.Time) {
	metrics.EndpointLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}

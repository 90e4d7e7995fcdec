package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	xhttp "TradeLab/pkg/http"

	"github.com/labstack/echo/v4"
)

// Check probes one dependency.
type Check func(ctx context.Context) error

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	checks  map[string]Check
	timeout time.Duration
}

func NewHealthHandler(timeout time.Duration) *HealthHandler {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HealthHandler{checks: make(map[string]Check), timeout: timeout}
}

// Add registers a readiness check. A nil check is ignored.
func (h *HealthHandler) Add(name string, c Check) *HealthHandler {
	if c != nil {
		h.checks[name] = c
	}
	return h
}

func (h *HealthHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Live)
	e.GET("/readyz", h.Ready)
}

func (h *HealthHandler) Live(c echo.Context) error {
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}

// Ready runs every check and answers 503 when any of them fails.
func (h *HealthHandler) Ready(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for n := range h.checks {
		names = append(names, n)
	}
	sort.Strings(names)

	status := http.StatusOK
	out := make(map[string]string, len(names))
	for _, n := range names {
		if err := h.checks[n](ctx); err != nil {
			out[n] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		out[n] = "ok"
	}
	return xhttp.DataResponse(c, status, out)
}

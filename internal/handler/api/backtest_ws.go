package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"TradeLab/internal/domain/models"
	"TradeLab/internal/service/metrics"
	xhttp "TradeLab/pkg/http"
	xlogger "TradeLab/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	wsIdleTimeout  = 5 * time.Minute
	wsWriteTimeout = 10 * time.Second
	wsReadLimit    = 32 << 20
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// StreamMessage is one frame of GET /api/backtest/stream. Results arrive in completion order
// tagged with their job index; a final frame has Done set.
type StreamMessage struct {
	Index  int                      `json:"index"`
	Result *models.BacktestResponse `json:"result,omitempty"`
	Done   bool                     `json:"done,omitempty"`
	Jobs   int                      `json:"jobs,omitempty"`
	Failed int                      `json:"failed,omitempty"`
	Error  string                   `json:"error,omitempty"`
}

// Stream accepts batch requests (the POST /api/backtest/batch body) over a websocket, one at
// a time, and streams every job result as soon as it finishes.
func (h *BacktestHandler) Stream(c echo.Context) error {
	const endpoint = "stream"
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		metrics.EndpointErrors.WithLabelValues(endpoint).Inc()
		h.logger.Warn("ws upgrade error", xlogger.Error(err))
		return nil
	}
	defer conn.Close()
	conn.SetReadLimit(wsReadLimit)

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	var mu sync.Mutex
	write := func(m StreamMessage) {
		mu.Lock()
		defer mu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(m); err != nil {
			h.logger.Debug("ws write error", xlogger.Error(err))
			// the peer is gone, stop the remaining jobs
			cancel()
		}
	}

	for {
		_ = conn.SetReadDeadline(time.Now().Add(wsIdleTimeout))
		_, b, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warn("ws read error", xlogger.Error(err))
			}
			return nil
		}

		start := time.Now()
		req := &models.BatchRequest{}
		if err := xhttp.DecodeAndValidate(ctx, b, req); err != nil {
			metrics.EndpointErrors.WithLabelValues(endpoint).Inc()
			write(StreamMessage{Done: true, Error: err.Error()})
			continue
		}
		if len(req.Jobs) > h.maxBatch {
			metrics.EndpointErrors.WithLabelValues(endpoint).Inc()
			write(StreamMessage{Done: true, Error: xhttp.BadRequestErrorf("batch of %d jobs exceeds the limit of %d", len(req.Jobs), h.maxBatch).Error()})
			continue
		}

		failed := 0
		results := h.runAll(ctx, req.Jobs, func(i int, r *models.BacktestResult) {
			resp := models.NewBacktestResponse(*r, req.Jobs[i].IncludeSeries)
			if r.Err != nil {
				mu.Lock()
				failed++
				mu.Unlock()
			}
			write(StreamMessage{Index: i, Result: &resp})
		})
		h.forward(ctx, results)
		write(StreamMessage{Done: true, Jobs: len(req.Jobs), Failed: failed})
		observe(endpoint, start)

		if ctx.Err() != nil {
			return nil
		}
	}
}

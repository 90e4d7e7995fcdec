package signals

import (
	"context"
	"errors"
	"fmt"
	"time"

	"TradeLab/internal/domain/models"
	"TradeLab/internal/domain/service"
	xhttp "TradeLab/pkg/http"
)

// HTTPProvider fetches signal observations from the remote signal layer:
// GET {base}/signals?symbol=..&from=..&to=.. returning {"signals": [...]}.
type HTTPProvider struct {
	baseURL  string
	client   *xhttp.Client
	attempts int
}

var _ service.SignalProvider = (*HTTPProvider)(nil)

type signalsResponse struct {
	Signals []models.SignalDTO `json:"signals"`
}

func NewHTTPProvider(baseURL string, attempts int, opts ...xhttp.ClientOption) *HTTPProvider {
	if attempts < 1 {
		attempts = 1
	}
	return &HTTPProvider{baseURL: baseURL, client: xhttp.NewClient(opts...), attempts: attempts}
}

func (p *HTTPProvider) Signals(ctx context.Context, symbol string, from, to time.Time) ([]models.SignalObservation, error) {
	if p.baseURL == "" {
		return nil, fmt.Errorf("signal service url not configured")
	}
	q := map[string][]string{"symbol": {symbol}}
	if !from.IsZero() {
		q["from"] = []string{from.Format(models.DateLayout)}
	}
	if !to.IsZero() {
		q["to"] = []string{to.Format(models.DateLayout)}
	}

	var resp signalsResponse
	if err := p.getWithRetry(ctx, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         p.baseURL + "/signals",
		Headers:     map[string]string{"Accept": "application/json"},
		QueryParams: q,
	}, &resp); err != nil {
		return nil, fmt.Errorf("fetch signals for %s: %w", symbol, err)
	}

	out := make([]models.SignalObservation, 0, len(resp.Signals))
	for _, s := range resp.Signals {
		o, err := s.Observation()
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

// getWithRetry retries transport failures and temporary status codes with linear backoff.
func (p *HTTPProvider) getWithRetry(ctx context.Context, opts *xhttp.RequestOptions, dest interface{}) error {
	var err error
	for i := 1; i <= p.attempts; i++ {
		err = p.client.SendAndParse(ctx, opts, dest)
		if err == nil {
			return nil
		}
		var se *xhttp.StatusError
		if errors.As(err, &se) && !se.Temporary() {
			return err
		}
		if i == p.attempts {
			break
		}
		select {
		case <-time.After(time.Duration(i) * 50 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

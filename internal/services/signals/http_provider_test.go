package signals

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"TradeLab/internal/domain/models"
	xhttp "TradeLab/pkg/http"
)

func TestHTTPProviderSignals(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		if r.URL.Path != "/signals" || r.URL.Query().Get("symbol") != "AAPL" || r.URL.Query().Get("from") != "2024-01-01" {
			t.Errorf("unexpected request %s", r.URL.String())
		}
		_, _ = w.Write([]byte(`{"signals":[{"date":"2024-01-05","column":"sent","value":-0.4,"correlation":-0.2},{"date":"2024-01-09","value":1,"confidence":0.3},{"date":"2024-01-10","value":1,"confidence":0}]}`))
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL, 3, xhttp.WithTransport(srv.Client().Transport))
	obs, err := p.Signals(context.Background(), "AAPL", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Time{})
	if err != nil {
		t.Fatalf("signals: %v", err)
	}
	if len(obs) != 3 || calls != 2 {
		t.Fatalf("unexpected result %d obs after %d calls", len(obs), calls)
	}
	if obs[0].Confidence != 1 || obs[0].Column != "sent" || obs[0].Correlation != -0.2 {
		t.Fatalf("unexpected first observation %+v", obs[0])
	}
	if obs[1].Confidence != 0.3 {
		t.Fatalf("unexpected second observation %+v", obs[1])
	}
	if obs[2].Confidence != 0 {
		t.Fatalf("explicit zero confidence not kept: %+v", obs[2])
	}
}

func TestHTTPProviderPermanentError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL, 3, xhttp.WithTransport(srv.Client().Transport))
	_, err := p.Signals(context.Background(), "AAPL", time.Time{}, time.Time{})
	var se *xhttp.StatusError
	if !errors.As(err, &se) || se.Code != http.StatusNotFound || calls != 1 {
		t.Fatalf("expected a single 404 attempt, got %v after %d calls", err, calls)
	}
}

func TestHTTPProviderBadDate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"signals":[{"date":"soon","value":1}]}`))
	}))
	defer srv.Close()
	p := NewHTTPProvider(srv.URL, 1, xhttp.WithTransport(srv.Client().Transport))
	if _, err := p.Signals(context.Background(), "X", time.Time{}, time.Time{}); !errors.Is(err, models.ErrInputShape) {
		t.Fatalf("expected input shape error, got %v", err)
	}
}

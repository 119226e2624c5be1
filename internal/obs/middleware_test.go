package obs_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sponsor-api/internal/common"
	"github.com/noah-isme/sponsor-api/internal/obs"
)

func TestHTTPMetricsLabels(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := obs.NewHTTPMetrics("sponsor", []float64{1, 10}, registry)
	r := chi.NewRouter()
	r.Use(obs.TrackOperation)
	r.Use(obs.HTTPObs{Metrics: metrics}.Middleware)
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Post("/exec", func(w http.ResponseWriter, r *http.Request) {
		obs.SetOperation(r.Context(), "exec:createOrder")
		common.Fail(w, common.Errorf(common.ErrInvalidOrder, "no books"))
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204 got %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/exec", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	total := testutil.ToFloat64(metrics.ReqTotal.WithLabelValues(http.MethodGet, "/health/ready", "204", "ok"))
	if total != 1 {
		t.Fatalf("expected counter to be 1, got %v", total)
	}
	failed := testutil.ToFloat64(metrics.ReqTotal.WithLabelValues(http.MethodPost, "exec:createOrder", "200", "INVALID_ORDER"))
	require.Equal(t, float64(1), failed)

	if samples := testutil.CollectAndCount(metrics.ReqDur); samples != 2 {
		t.Fatalf("expected two histogram series, got %d", samples)
	}
	if val := testutil.ToFloat64(metrics.InFlight); val != 0 {
		t.Fatalf("expected no in-flight requests, got %v", val)
	}
}

func TestOperationFallsBackToUnknown(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/nowhere", nil)
	require.Equal(t, "unknown", obs.Operation(req))
	obs.SetOperation(req.Context(), "ignored")
	require.Equal(t, "unknown", obs.Operation(req))
}

func TestNewHTTPMetricsReusesCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()
	first := obs.NewHTTPMetrics("sponsor", nil, registry)
	second := obs.NewHTTPMetrics("sponsor", nil, registry)
	require.Same(t, first.ReqTotal, second.ReqTotal)
	require.Equal(t, []float64{5, 50}, obs.ParseBucketsCSV("5, x, -1, 50"))
}

func TestDomainMetricsRegistration(t *testing.T) {
	registry := prometheus.NewRegistry()
	obs.MustRegisterDomainMetrics("sponsor", registry)
	obs.MustRegisterDomainMetrics("sponsor", registry)

	obs.Inc(obs.PaymentNotificationTotal, "payfast", "itn", "paid")
	if got := testutil.ToFloat64(obs.PaymentNotificationTotal.WithLabelValues("payfast", "itn", "paid")); got != 1 {
		t.Fatalf("expected counter to be 1, got %v", got)
	}
	obs.Inc(nil, "ignored")
}

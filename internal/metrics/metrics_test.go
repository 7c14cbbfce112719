package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRegisterIsIdempotent(t *testing.T) {
	require.NotPanics(t, Register)
	require.NotPanics(t, Register)
}

func TestCountersAccumulate(t *testing.T) {
	before := testutil.ToFloat64(ItemsTotal.WithLabelValues("rss", "created"))
	ItemsTotal.WithLabelValues("rss", "created").Inc()
	require.Equal(t, before+1, testutil.ToFloat64(ItemsTotal.WithLabelValues("rss", "created")))
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware())
	r.Get("/tenants/{tenantID}/runs", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/tenants/{tenantID}/runs", "418"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tenants/acme/runs", nil))
	require.Equal(t, http.StatusTeapot, rec.Code)
	require.Equal(t, before+1, testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/tenants/{tenantID}/runs", "418")))
}

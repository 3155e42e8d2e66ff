package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/2beens/coachprogress/internal/telemetry/metrics"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRequestMetrics(t *testing.T) {
	metricsManager := metrics.NewTestManager()

	r := mux.NewRouter()
	r.HandleFunc("/progress/days/{date}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})
	r.Use(RequestMetrics(metricsManager))

	for i := 0; i < 3; i++ {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/progress/days/2024-03-05", nil))
		assert.Equal(t, http.StatusConflict, rr.Code)
	}

	assert.Equal(t, float64(3), testutil.ToFloat64(metricsManager.CounterRequests.WithLabelValues("POST", "409")))
	assert.Equal(t, 1, testutil.CollectAndCount(metricsManager.HistogramRequestDuration))
	assert.Equal(t, float64(0), testutil.ToFloat64(metricsManager.GaugeRequests))
}

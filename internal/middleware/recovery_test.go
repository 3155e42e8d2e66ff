package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/2beens/coachprogress/internal/auth"
	"github.com/2beens/coachprogress/internal/telemetry/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type panicRecTestHandler struct {
	panic  bool
	called bool
}

func (p *panicRecTestHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	p.called = true
	if p.panic {
		panic("YOLO")
	}
	w.WriteHeader(http.StatusOK)
}

func TestPanicRecovery(t *testing.T) {
	testCases := []struct {
		name           string
		panic          bool
		expectedStatus int
		expectedPanics float64
	}{
		{name: "no panic", panic: false, expectedStatus: http.StatusOK, expectedPanics: 0},
		{name: "panic", panic: true, expectedStatus: http.StatusInternalServerError, expectedPanics: 1},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			metricsManager := metrics.NewTestManager()
			next := &panicRecTestHandler{panic: tc.panic}

			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/progress/events", nil)
			PanicRecovery(metricsManager)(next).ServeHTTP(rr, req)

			assert.True(t, next.called)
			assert.Equal(t, tc.expectedStatus, rr.Code)
			assert.Equal(t, tc.expectedPanics, testutil.ToFloat64(metricsManager.CounterHandleRequestPanic))
		})
	}
}

func TestPanicRecovery_LogsRequestAndUser(t *testing.T) {
	hook := logtest.NewGlobal()
	t.Cleanup(hook.Reset)

	handler := RequestID()(PanicRecovery(nil)(&panicRecTestHandler{panic: true}))

	req := httptest.NewRequest(http.MethodPost, "/progress/days/move", nil)
	req = req.WithContext(auth.WithClaims(req.Context(), &auth.Claims{Subject: "user-1"}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.ErrorLevel, entry.Level)
	assert.Equal(t, "/progress/days/move", entry.Data["path"])
	assert.Equal(t, "user-1", entry.Data["user_id"])
	assert.Equal(t, rr.Header().Get(RequestIDHeader), entry.Data["request_id"])
	assert.NotEmpty(t, entry.Data["request_id"])
}

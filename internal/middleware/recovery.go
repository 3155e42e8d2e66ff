package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/2beens/coachprogress/internal/auth"
	"github.com/2beens/coachprogress/internal/telemetry/metrics"

	log "github.com/sirupsen/logrus"
)

// PanicRecovery turns a handler panic into a 500, tagged with the request id and user when known.
func PanicRecovery(metricsManager *metrics.Manager) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(respWriter http.ResponseWriter, req *http.Request) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				fields := log.Fields{
					"path":       req.URL.Path,
					"request_id": RequestIDFromContext(req.Context()),
				}
				if userID, ok := auth.UserID(req.Context()); ok {
					fields["user_id"] = userID
				}
				log.WithFields(fields).Errorf("http: panic serving request: %v\n%s", r, debug.Stack())
				if metricsManager != nil {
					metricsManager.CounterHandleRequestPanic.Inc()
				}
				http.Error(respWriter, "internal error", http.StatusInternalServerError)
			}()

			next.ServeHTTP(respWriter, req)
		})
	}
}

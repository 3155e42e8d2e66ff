package misc

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/2beens/coachprogress/internal/telemetry/tracing"
	"github.com/2beens/coachprogress/pkg"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

const healthCheckTimeout = 2 * time.Second

// PingFunc checks one dependency of the service.
type PingFunc func(ctx context.Context) error

type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

type Handler struct {
	versionInfo string
	checks      map[string]PingFunc
}

func NewHandler(versionInfo string, checks map[string]PingFunc) *Handler {
	return &Handler{
		versionInfo: versionInfo,
		checks:      checks,
	}
}

func (handler *Handler) SetupRoutes(mainRouter *mux.Router) {
	mainRouter.HandleFunc("/", handler.handleRoot).Methods("GET", "POST", "OPTIONS").Name("root")
	mainRouter.HandleFunc("/version", handler.handleGetVersionInfo).Methods("GET").Name("version")
	mainRouter.HandleFunc("/health/live", handler.handleLive).Methods("GET").Name("health-live")
	mainRouter.HandleFunc("/health", handler.handleHealth).Methods("GET").Name("health")
}

func (handler *Handler) handleRoot(w http.ResponseWriter, _ *http.Request) {
	pkg.WriteTextResponseOK(w, "I'm OK, thanks ;)")
}

func (handler *Handler) handleGetVersionInfo(w http.ResponseWriter, _ *http.Request) {
	pkg.WriteTextResponseOK(w, handler.versionInfo)
}

func (handler *Handler) handleLive(w http.ResponseWriter, _ *http.Request) {
	pkg.WriteTextResponseOK(w, "alive")
}

// handleHealth runs every dependency check and answers 503 when any of them fails.
func (handler *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "miscHandler.health")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	names := make([]string, 0, len(handler.checks))
	for name := range handler.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := HealthResponse{Status: "ok", Checks: make(map[string]string, len(names))}
	for _, name := range names {
		if err := handler.checks[name](ctx); err != nil {
			log.Errorf("health check [%s]: %s", name, err)
			resp.Status = "degraded"
			resp.Checks[name] = err.Error()
			continue
		}
		resp.Checks[name] = "ok"
	}

	respBytes, err := json.Marshal(resp)
	if err != nil {
		log.Errorf("marshal health response: %s", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, respBytes, status)
}

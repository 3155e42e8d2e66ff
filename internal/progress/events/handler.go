package events

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/2beens/coachprogress/internal/auth"
	"github.com/2beens/coachprogress/internal/telemetry/tracing"
	"github.com/2beens/coachprogress/pkg"

	log "github.com/sirupsen/logrus"
)

//go:generate mockgen -source=$GOFILE -destination=handler_mocks_test.go -package=events_test

type eventsLister interface {
	List(ctx context.Context, params ListParams) ([]*Event, error)
	Count(ctx context.Context, userID string) (int, error)
}

type ListResponse struct {
	Events []*Event `json:"events"`
	Total  int      `json:"total"`
}

type Handler struct {
	service eventsLister
}

func NewHandler(service eventsLister) *Handler {
	return &Handler{
		service: service,
	}
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.progress.events.list")
	defer span.End()

	userID, ok := auth.UserID(ctx)
	if !ok {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	params := ListParams{UserID: userID}
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		limit, err := strconv.Atoi(limitParam)
		if err != nil || limit <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		params.Limit = limit
	}
	if typeParam := r.URL.Query().Get("type"); typeParam != "" {
		eventType := EventType(typeParam)
		if !eventType.IsValid() {
			http.Error(w, "invalid event type", http.StatusBadRequest)
			return
		}
		params.Type = &eventType
	}

	events, err := h.service.List(ctx, params)
	if err != nil {
		log.Errorf("list events for user [%s]: %s", userID, err)
		http.Error(w, "failed to list events", http.StatusInternalServerError)
		return
	}

	total, err := h.service.Count(ctx, userID)
	if err != nil {
		log.Errorf("count events for user [%s]: %s", userID, err)
		http.Error(w, "failed to list events", http.StatusInternalServerError)
		return
	}

	resp, err := json.Marshal(ListResponse{Events: events, Total: total})
	if err != nil {
		log.Errorf("marshal events: %s", err)
		http.Error(w, "failed to list events", http.StatusInternalServerError)
		return
	}
	pkg.WriteJSONResponseOK(w, string(resp))
}

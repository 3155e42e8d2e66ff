package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/2beens/coachprogress/internal/auth"
	"github.com/2beens/coachprogress/internal/progress/cycle"
	"github.com/2beens/coachprogress/internal/telemetry/tracing"
	"github.com/2beens/coachprogress/pkg"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

//go:generate mockgen -source=$GOFILE -destination=handler_mocks_test.go -package=progress_test

type progressService interface {
	GetDay(ctx context.Context, q DayQuery) (*DayView, error)
	Toggle(ctx context.Context, req ToggleRequest) (*ToggleResult, error)
	Month(ctx context.Context, q MonthQuery) (*MonthView, error)
	MoveDay(ctx context.Context, req MoveRequest) (int64, error)
	StartEnrollment(ctx context.Context, userID string, enrollmentID int64, startDate time.Time) (*SeedResult, error)
}

type ToggleBody struct {
	ItemID       int64  `json:"itemId"`
	Block        int    `json:"block"`
	Order        int    `json:"order"`
	Category     string `json:"category,omitempty"`
	EnrollmentID *int64 `json:"enrollmentId,omitempty"`
}

type MoveBody struct {
	From         string `json:"from"`
	To           string `json:"to"`
	ActivityID   *int64 `json:"activityId,omitempty"`
	EnrollmentID *int64 `json:"enrollmentId,omitempty"`
}

type StartBody struct {
	StartDate string `json:"startDate,omitempty"`
}

type MoveResponse struct {
	Moved int64 `json:"moved"`
}

type PlanDayResponse struct {
	Start   string `json:"start"`
	Date    string `json:"date"`
	Started bool   `json:"started"`
	PlanDay int    `json:"planDay,omitempty"`
	Week    int    `json:"week,omitempty"`
}

type Handler struct {
	service  progressService
	resolver *cycle.Resolver
	now      func() time.Time
}

func NewHandler(service progressService, resolver *cycle.Resolver) *Handler {
	return &Handler{
		service:  service,
		resolver: resolver,
		now:      time.Now,
	}
}

// parseDate accepts YYYY-MM-DD or "today"; today is resolved in the service timezone.
func (h *Handler) parseDate(s string) (time.Time, error) {
	if s == "" || strings.EqualFold(s, "today") {
		return h.resolver.Today(h.now()), nil
	}
	return cycle.ParseDate(s)
}

func pathInt(r *http.Request, name string) (int64, error) {
	v, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid %s [%s]", name, mux.Vars(r)[name])
	}
	return v, nil
}

func writeJSON(w http.ResponseWriter, v any) {
	if err := pkg.WriteJSON(w, v, http.StatusOK); err != nil {
		log.Errorf("marshal response: %s", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput), errors.Is(err, cycle.ErrInvalidDate):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrProgressNotFound):
		http.Error(w, "progress not found", http.StatusNotFound)
	case errors.Is(err, ErrEnrollmentNotFound):
		http.Error(w, "enrollment not found", http.StatusNotFound)
	case errors.Is(err, ErrActivityNotFound):
		http.Error(w, "activity not found", http.StatusNotFound)
	case errors.Is(err, ErrItemNotFound):
		http.Error(w, "item not found in progress", http.StatusConflict)
	case errors.Is(err, ErrVersionConflict):
		http.Error(w, "progress changed, retry", http.StatusConflict)
	case errors.Is(err, ErrTargetDateOccupied):
		http.Error(w, "target date already has progress", http.StatusConflict)
	case errors.Is(err, ErrEnrollmentAlreadyStarted):
		http.Error(w, "enrollment already started", http.StatusConflict)
	case errors.Is(err, ErrEnrollmentNotStarted):
		http.Error(w, "enrollment not started", http.StatusConflict)
	default:
		log.Errorf("%s: %s", op, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func optionalIDParam(r *http.Request, name string) (*int64, error) {
	v, err := pkg.ParseOptionalID(r.URL.Query().Get(name))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidInput, name, err)
	}
	return v, nil
}

func (h *Handler) HandleGetDay(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.progress.day")
	defer span.End()

	userID, ok := auth.UserID(ctx)
	if !ok {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}
	activityID, err := pathInt(r, "activityId")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	date, err := h.parseDate(mux.Vars(r)["date"])
	if err != nil {
		writeError(w, "get day", err)
		return
	}
	enrollmentID, err := optionalIDParam(r, "enrollment")
	if err != nil {
		writeError(w, "get day", err)
		return
	}

	view, err := h.service.GetDay(ctx, DayQuery{
		UserID:       userID,
		ActivityID:   activityID,
		Date:         date,
		EnrollmentID: enrollmentID,
		Category:     ParseCategory(r.URL.Query().Get("category")),
	})
	if err != nil {
		writeError(w, "get day", err)
		return
	}
	writeJSON(w, view)
}

func (h *Handler) HandleToggle(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.progress.toggle")
	defer span.End()

	userID, ok := auth.UserID(ctx)
	if !ok {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}
	activityID, err := pathInt(r, "activityId")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	date, err := h.parseDate(mux.Vars(r)["date"])
	if err != nil {
		writeError(w, "toggle", err)
		return
	}

	var body ToggleBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid toggle body", http.StatusBadRequest)
		return
	}

	result, err := h.service.Toggle(ctx, ToggleRequest{
		UserID:       userID,
		ActivityID:   activityID,
		Date:         date,
		ItemID:       body.ItemID,
		Block:        body.Block,
		Order:        body.Order,
		Category:     ParseCategory(body.Category),
		EnrollmentID: body.EnrollmentID,
	})
	if err != nil {
		writeError(w, "toggle", err)
		return
	}
	writeJSON(w, result)
}

func (h *Handler) HandleMonth(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.progress.month")
	defer span.End()

	userID, ok := auth.UserID(ctx)
	if !ok {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}
	activityID, err := pathInt(r, "activityId")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	year, err := strconv.Atoi(mux.Vars(r)["year"])
	if err != nil {
		http.Error(w, "invalid year", http.StatusBadRequest)
		return
	}
	month, err := strconv.Atoi(mux.Vars(r)["month"])
	if err != nil {
		http.Error(w, "invalid month", http.StatusBadRequest)
		return
	}
	enrollmentID, err := optionalIDParam(r, "enrollment")
	if err != nil {
		writeError(w, "month", err)
		return
	}

	view, err := h.service.Month(ctx, MonthQuery{
		UserID:       userID,
		ActivityID:   activityID,
		EnrollmentID: enrollmentID,
		Year:         year,
		Month:        time.Month(month),
	})
	if err != nil {
		writeError(w, "month", err)
		return
	}
	writeJSON(w, view)
}

func (h *Handler) HandleMoveDay(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.progress.moveday")
	defer span.End()

	userID, ok := auth.UserID(ctx)
	if !ok {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	var body MoveBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid move body", http.StatusBadRequest)
		return
	}
	from, err := cycle.ParseDate(body.From)
	if err != nil {
		writeError(w, "move day", err)
		return
	}
	to, err := h.parseDate(body.To)
	if err != nil {
		writeError(w, "move day", err)
		return
	}

	moved, err := h.service.MoveDay(ctx, MoveRequest{
		UserID:       userID,
		ActivityID:   body.ActivityID,
		EnrollmentID: body.EnrollmentID,
		From:         from,
		To:           to,
	})
	if err != nil {
		writeError(w, "move day", err)
		return
	}
	writeJSON(w, MoveResponse{Moved: moved})
}

func (h *Handler) HandleStartEnrollment(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.progress.enrollment.start")
	defer span.End()

	userID, ok := auth.UserID(ctx)
	if !ok {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}
	enrollmentID, err := pathInt(r, "id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var body StartBody
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid start body", http.StatusBadRequest)
			return
		}
	}
	startDate, err := h.parseDate(body.StartDate)
	if err != nil {
		writeError(w, "start enrollment", err)
		return
	}

	result, err := h.service.StartEnrollment(ctx, userID, enrollmentID, startDate)
	if err != nil {
		writeError(w, "start enrollment", err)
		return
	}
	writeJSON(w, result)
}

// HandlePlanDay resolves the plan day and week of a date for a given start date.
func (h *Handler) HandlePlanDay(w http.ResponseWriter, r *http.Request) {
	start, err := cycle.ParseDate(r.URL.Query().Get("start"))
	if err != nil {
		http.Error(w, "invalid start date", http.StatusBadRequest)
		return
	}
	date, err := h.parseDate(r.URL.Query().Get("date"))
	if err != nil {
		http.Error(w, "invalid date", http.StatusBadRequest)
		return
	}

	resp := PlanDayResponse{
		Start: cycle.FormatDate(start),
		Date:  cycle.FormatDate(date),
	}
	if planDay, ok := cycle.PlanDay(start, date); ok {
		resp.Started = true
		resp.PlanDay = planDay
		resp.Week = cycle.PlanWeek(start, date)
	}
	writeJSON(w, resp)
}

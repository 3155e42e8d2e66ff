package progress

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/2beens/coachprogress/internal/progress/cycle"
	"github.com/2beens/coachprogress/internal/progress/events"
	"github.com/2beens/coachprogress/internal/progress/shape"
	"github.com/2beens/coachprogress/internal/telemetry/metrics"
	"github.com/2beens/coachprogress/internal/telemetry/tracing"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

const defaultProgramWeeks = 4

type progressStore interface {
	FindRecords(ctx context.Context, t Table, f Filter) ([]Record, error)
	ListRecords(ctx context.Context, t Table, rf RangeFilter) ([]Record, error)
	UpdateContainers(ctx context.Context, rec Record) (Record, error)
	MoveDate(ctx context.Context, p MoveParams) (int64, error)
	GetEnrollment(ctx context.Context, id int64) (*Enrollment, error)
	GetActivity(ctx context.Context, id int64) (*Activity, error)
	SeedEnrollment(ctx context.Context, p SeedParams) (int, error)
}

type itemDetailer interface {
	Lookup(ctx context.Context, category Category, ids []int64) (map[int64]ItemDetail, error)
}

type eventRecorder interface {
	Record(ctx context.Context, event events.Event) (*events.Event, error)
}

type DayQuery struct {
	UserID       string
	ActivityID   int64
	Date         time.Time
	EnrollmentID *int64
	Category     Category
}

// DayView is the projected day. Started is false for an enrollment without a start date,
// HasProgress is false when no progress row exists for the date.
type DayView struct {
	Date        string         `json:"date"`
	ActivityID  int64          `json:"activityId"`
	Category    Category       `json:"category"`
	Started     bool           `json:"started"`
	PlanDay     int            `json:"planDay,omitempty"`
	Week        int            `json:"week,omitempty"`
	HasProgress bool           `json:"hasProgress"`
	Items       []DisplayItem  `json:"items"`
	BlockNames  map[int]string `json:"blockNames"`
}

type ToggleRequest struct {
	UserID       string
	ActivityID   int64
	Date         time.Time
	ItemID       int64
	Block        int
	Order        int
	Category     Category
	EnrollmentID *int64
}

type ToggleResult struct {
	Completed bool      `json:"completed"`
	Key       shape.Key `json:"key"`
	RecordID  int64     `json:"recordId"`
	Version   int64     `json:"version"`
}

type MonthQuery struct {
	UserID       string
	ActivityID   int64
	EnrollmentID *int64
	Year         int
	Month        time.Month
}

type CalendarDay struct {
	Date   string `json:"date"`
	Status Status `json:"status"`
}

type MonthView struct {
	Year   int           `json:"year"`
	Month  int           `json:"month"`
	Days   []CalendarDay `json:"days"`
	Counts Counts        `json:"counts"`
}

type MoveRequest struct {
	UserID       string
	ActivityID   *int64
	EnrollmentID *int64
	From         time.Time
	To           time.Time
}

type SeedResult struct {
	Enrollment *Enrollment `json:"enrollment"`
	Seeded     int         `json:"seeded"`
}

type Service struct {
	store          progressStore
	locator        *Locator
	projector      *Projector
	details        itemDetailer
	events         eventRecorder
	resolver       *cycle.Resolver
	metricsManager *metrics.Manager
	now            func() time.Time
}

func NewService(
	store progressStore,
	details itemDetailer,
	events eventRecorder,
	resolver *cycle.Resolver,
	metricsManager *metrics.Manager,
) *Service {
	if metricsManager == nil {
		metricsManager = metrics.NewTestManager()
	}
	return &Service{
		store:          store,
		locator:        NewLocator(store, metricsManager),
		projector:      NewProjector(),
		details:        details,
		events:         events,
		resolver:       resolver,
		metricsManager: metricsManager,
		now:            time.Now,
	}
}

// Today is the current civil date of the service timezone.
func (s *Service) Today() time.Time {
	return s.resolver.Today(s.now())
}

func (s *Service) Resolver() *cycle.Resolver {
	return s.resolver
}

// ownedEnrollment hides enrollments of other users behind ErrEnrollmentNotFound.
func (s *Service) ownedEnrollment(ctx context.Context, userID string, id int64) (*Enrollment, error) {
	enrollment, err := s.store.GetEnrollment(ctx, id)
	if err != nil {
		return nil, err
	}
	if enrollment.UserID != userID {
		return nil, ErrEnrollmentNotFound
	}
	return enrollment, nil
}

// activity returns nil without error for an unknown activity: historical rows may outlive it.
func (s *Service) activity(ctx context.Context, id int64) (*Activity, error) {
	activity, err := s.store.GetActivity(ctx, id)
	if err != nil {
		if errors.Is(err, ErrActivityNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return activity, nil
}

func resolveCategory(requested Category, activity *Activity) Category {
	if requested.IsValid() {
		return requested
	}
	if activity != nil {
		return activity.Category
	}
	return CategoryUnknown
}

func (s *Service) GetDay(ctx context.Context, q DayQuery) (_ *DayView, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "service.progress.day")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	date := cycle.Civil(q.Date, time.UTC)
	activity, err := s.activity(ctx, q.ActivityID)
	if err != nil {
		return nil, fmt.Errorf("get activity [%d]: %w", q.ActivityID, err)
	}

	view := &DayView{
		Date:       date.Format(time.DateOnly),
		ActivityID: q.ActivityID,
		Category:   resolveCategory(q.Category, activity),
		Started:    true,
		Items:      []DisplayItem{},
		BlockNames: map[int]string{},
	}

	if q.EnrollmentID != nil {
		enrollment, err := s.ownedEnrollment(ctx, q.UserID, *q.EnrollmentID)
		if err != nil {
			return nil, err
		}
		if !enrollment.Started() {
			view.Started = false
			return view, nil
		}
		start := cycle.Civil(*enrollment.StartDate, time.UTC)
		planDay, ok := cycle.PlanDay(start, date)
		if !ok {
			// no plan day before the program starts
			return view, nil
		}
		view.PlanDay = planDay
		view.Week = cycle.PlanWeek(start, date)
	}
	span.SetAttributes(attribute.Int("plan.day", view.PlanDay))

	if activity != nil && view.PlanDay > 0 {
		for i, name := range activity.Plan.BlockNames(view.PlanDay) {
			if name != "" {
				view.BlockNames[i+1] = name
			}
		}
	}

	match, err := s.locator.Locate(ctx, LocateQuery{
		UserID:       q.UserID,
		ActivityID:   q.ActivityID,
		Date:         date,
		EnrollmentID: q.EnrollmentID,
		Category:     view.Category,
	})
	if err != nil {
		if IsNotFound(err) {
			return view, nil
		}
		return nil, err
	}

	rec := match.Record
	view.HasProgress = true
	view.Category = rec.Category()

	details, err := s.details.Lookup(ctx, view.Category, ItemIDs(rec))
	if err != nil {
		return nil, fmt.Errorf("lookup item details: %w", err)
	}

	projection := s.projector.Project(rec, details)
	s.observeDropped(rec, projection.Dropped)
	view.Items = projection.Items
	for block, name := range projection.BlockNames {
		view.BlockNames[block] = name
	}
	return view, nil
}

func (s *Service) observeDropped(rec Record, dropped map[string]int) {
	for container, count := range dropped {
		if count == 0 {
			continue
		}
		log.Warnf("record [%d] table [%s]: dropped [%d] malformed entries of container [%s]",
			rec.ID, rec.Table, count, container)
		s.metricsManager.CounterDroppedEntries.WithLabelValues(string(rec.Table), container).Add(float64(count))
	}
}

// Toggle flips one item of the day between pending and completed. The write is rejected with
// ErrVersionConflict when the row changed since it was read; retrying is up to the caller.
func (s *Service) Toggle(ctx context.Context, req ToggleRequest) (_ *ToggleResult, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "service.progress.toggle")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(
		attribute.Int64("item.id", req.ItemID),
		attribute.Int("item.block", req.Block),
		attribute.Int("item.order", req.Order),
	)

	if req.ItemID <= 0 || req.Block < 1 || req.Order < 1 {
		return nil, fmt.Errorf("%w: item [%d] block [%d] order [%d]", ErrInvalidInput, req.ItemID, req.Block, req.Order)
	}
	if req.EnrollmentID != nil {
		enrollment, err := s.ownedEnrollment(ctx, req.UserID, *req.EnrollmentID)
		if err != nil {
			return nil, err
		}
		if !enrollment.Started() {
			return nil, ErrEnrollmentNotStarted
		}
	}

	category := req.Category
	if !category.IsValid() {
		activity, err := s.activity(ctx, req.ActivityID)
		if err != nil {
			return nil, fmt.Errorf("get activity [%d]: %w", req.ActivityID, err)
		}
		category = resolveCategory(category, activity)
	}

	match, err := s.locator.Locate(ctx, LocateQuery{
		UserID:       req.UserID,
		ActivityID:   req.ActivityID,
		Date:         cycle.Civil(req.Date, time.UTC),
		EnrollmentID: req.EnrollmentID,
		Category:     category,
		ItemID:       req.ItemID,
	})
	if err != nil {
		return nil, err
	}

	outcome, err := Toggle(match.Record, req.ItemID, req.Block, req.Order)
	if err != nil {
		var itemErr *ItemNotFoundError
		if errors.As(err, &itemErr) {
			s.metricsManager.CounterItemNotFound.Inc()
			log.Errorf("toggle: %s, pending keys %v, completed keys %v", itemErr, itemErr.PendingKeys, itemErr.CompletedKeys)
		}
		return nil, err
	}

	updated, err := s.store.UpdateContainers(ctx, outcome.Record)
	if err != nil {
		if errors.Is(err, ErrVersionConflict) {
			s.metricsManager.CounterVersionConflicts.Inc()
		}
		return nil, fmt.Errorf("update record [%d]: %w", outcome.Record.ID, err)
	}

	state := "pending"
	if outcome.Completed {
		state = "completed"
	}
	s.metricsManager.CounterToggles.WithLabelValues(updated.Category().String(), state).Inc()

	s.recordEvent(ctx, events.NewItemToggledEvent(events.ItemToggled{
		UserID:    req.UserID,
		RecordID:  updated.ID,
		Table:     string(updated.Table),
		Key:       outcome.Key.String(),
		Completed: outcome.Completed,
		Timestamp: s.now(),
	}))

	return &ToggleResult{
		Completed: outcome.Completed,
		Key:       outcome.Key,
		RecordID:  updated.ID,
		Version:   updated.Version,
	}, nil
}

// Month returns the calendar of one month. Dates without a record are no-exercises.
func (s *Service) Month(ctx context.Context, q MonthQuery) (_ *MonthView, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "service.progress.month")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if q.Month < time.January || q.Month > time.December || q.Year < 1 {
		return nil, fmt.Errorf("%w: month [%d-%d]", ErrInvalidInput, q.Year, q.Month)
	}
	if q.EnrollmentID != nil {
		if _, err := s.ownedEnrollment(ctx, q.UserID, *q.EnrollmentID); err != nil {
			return nil, err
		}
	}

	activity, err := s.activity(ctx, q.ActivityID)
	if err != nil {
		return nil, fmt.Errorf("get activity [%d]: %w", q.ActivityID, err)
	}

	from := time.Date(q.Year, q.Month, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)
	rf := RangeFilter{UserID: q.UserID, From: from, To: to, EnrollmentID: q.EnrollmentID}
	if q.EnrollmentID == nil {
		activityID := q.ActivityID
		rf.ActivityID = &activityID
	}

	var records []Record
	for _, t := range candidateTables(resolveCategory(CategoryUnknown, activity)) {
		tableRecords, err := s.store.ListRecords(ctx, t, rf)
		if err != nil {
			return nil, fmt.Errorf("list records of [%s]: %w", t, err)
		}
		records = append(records, tableRecords...)
	}

	agg := AggregateMonth(records)
	view := &MonthView{
		Year:   q.Year,
		Month:  int(q.Month),
		Counts: agg.Counts,
	}
	for d := from; d.Before(to); d = d.AddDate(0, 0, 1) {
		date := d.Format(time.DateOnly)
		status, ok := agg.Days[date]
		if !ok {
			status = StatusNoExercises
		}
		view.Days = append(view.Days, CalendarDay{Date: date, Status: status})
	}
	return view, nil
}

// MoveDay reassigns a date's progress rows to another date, across both tables.
func (s *Service) MoveDay(ctx context.Context, req MoveRequest) (_ int64, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "service.progress.moveday")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	from := cycle.Civil(req.From, time.UTC)
	to := cycle.Civil(req.To, time.UTC)
	if from.Equal(to) {
		return 0, fmt.Errorf("%w: same source and target date", ErrInvalidInput)
	}
	if req.EnrollmentID != nil {
		if _, err := s.ownedEnrollment(ctx, req.UserID, *req.EnrollmentID); err != nil {
			return 0, err
		}
	}

	moved, err := s.store.MoveDate(ctx, MoveParams{
		UserID:       req.UserID,
		ActivityID:   req.ActivityID,
		EnrollmentID: req.EnrollmentID,
		From:         from,
		To:           to,
	})
	if err != nil {
		return 0, err
	}
	if moved == 0 {
		return 0, &NotFoundError{Tables: allTables, Strategies: []string{"move"}}
	}

	s.recordEvent(ctx, events.NewDayMovedEvent(events.DayMoved{
		UserID:    req.UserID,
		From:      from.Format(time.DateOnly),
		To:        to.Format(time.DateOnly),
		Moved:     moved,
		Timestamp: s.now(),
	}))
	return moved, nil
}

// StartEnrollment sets the start date of an enrollment and seeds one progress row per
// scheduled date of the program. The start date can only be set once.
func (s *Service) StartEnrollment(ctx context.Context, userID string, enrollmentID int64, startDate time.Time) (_ *SeedResult, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "service.progress.enrollment.start")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int64("enrollment.id", enrollmentID))

	enrollment, err := s.ownedEnrollment(ctx, userID, enrollmentID)
	if err != nil {
		return nil, err
	}
	if enrollment.Started() {
		return nil, ErrEnrollmentAlreadyStarted
	}

	activity, err := s.store.GetActivity(ctx, enrollment.ActivityID)
	if err != nil {
		return nil, fmt.Errorf("get activity [%d]: %w", enrollment.ActivityID, err)
	}
	table, ok := TableFor(activity.Category)
	if !ok {
		return nil, fmt.Errorf("%w: activity [%d] has no category", ErrInvalidInput, activity.ID)
	}

	start := cycle.Civil(startDate, time.UTC)
	rows, err := SeedRows(activity, start, enrollment.ExpirationDate)
	if err != nil {
		return nil, err
	}

	seeded, err := s.store.SeedEnrollment(ctx, SeedParams{
		EnrollmentID: enrollment.ID,
		UserID:       enrollment.UserID,
		ActivityID:   activity.ID,
		Table:        table,
		StartDate:    start,
		Rows:         rows,
	})
	if err != nil {
		return nil, fmt.Errorf("seed enrollment [%d]: %w", enrollment.ID, err)
	}
	s.metricsManager.CounterSeededRecords.Add(float64(seeded))
	log.Debugf("enrollment [%d] started on [%s], seeded [%d] progress rows",
		enrollment.ID, start.Format(time.DateOnly), seeded)

	enrollment.StartDate = &start
	s.recordEvent(ctx, events.NewProgressSeededEvent(events.ProgressSeeded{
		UserID:       enrollment.UserID,
		EnrollmentID: enrollment.ID,
		StartDate:    start.Format(time.DateOnly),
		Rows:         seeded,
		Timestamp:    s.now(),
	}))
	return &SeedResult{Enrollment: enrollment, Seeded: seeded}, nil
}

// SeedRows builds the pending containers of every scheduled date of the program, in the
// canonical object map shape. Dates without plan items are skipped.
func SeedRows(activity *Activity, start time.Time, expiration *time.Time) ([]SeedRow, error) {
	weeks := activity.DurationWeeks
	if weeks <= 0 {
		weeks = defaultProgramWeeks
	}
	end := start.AddDate(0, 0, weeks*7)
	if expiration != nil {
		if exp := cycle.Civil(*expiration, time.UTC).AddDate(0, 0, 1); exp.Before(end) {
			end = exp
		}
	}

	var rows []SeedRow
	for d := start; d.Before(end); d = d.AddDate(0, 0, 1) {
		planDay, _ := cycle.PlanDay(start, d)
		var items, withDetails []shape.Item
		for _, block := range activity.Plan[planDay] {
			for _, pi := range block.Items {
				if pi.ItemID <= 0 {
					continue
				}
				b := pi.Block
				if b < 1 {
					b = block.Block
				}
				it := shape.Item{
					Key:    shape.NewKey(pi.ItemID, b, pi.Order),
					ID:     pi.ItemID,
					Block:  b,
					Order:  pi.Order,
					Detail: pi.Details,
				}
				items = append(items, it)
				if len(pi.Details) > 0 {
					withDetails = append(withDetails, it)
				}
			}
		}
		if len(items) == 0 {
			continue
		}

		pending, err := shape.Canonical(items, activity.Plan.BlockNames(planDay))
		if err != nil {
			return nil, fmt.Errorf("encode pending of [%s]: %w", d.Format(time.DateOnly), err)
		}
		info, err := shape.Canonical(withDetails, nil)
		if err != nil {
			return nil, fmt.Errorf("encode info of [%s]: %w", d.Format(time.DateOnly), err)
		}
		rows = append(rows, SeedRow{Date: d, Pending: pending, Info: info})
	}
	return rows, nil
}

func (s *Service) recordEvent(ctx context.Context, event events.Event) {
	if s.events == nil {
		return
	}
	if _, err := s.events.Record(ctx, event); err != nil {
		log.Errorf("record %s event for user [%s]: %s", event.Type, event.UserID, err)
	}
}

package progress

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/2beens/coachprogress/internal/progress/shape"
	"github.com/2beens/coachprogress/internal/telemetry/metrics"
	"github.com/2beens/coachprogress/internal/telemetry/tracing"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

const (
	dateScanLimit    = 50
	contentScanLimit = 25
)

type recordFinder interface {
	FindRecords(ctx context.Context, t Table, f Filter) ([]Record, error)
}

// LocateQuery identifies the progress row of one user, activity and date.
// ItemID is only set when locating for a toggle; it enables the content scan.
type LocateQuery struct {
	UserID       string
	ActivityID   int64
	Date         time.Time
	EnrollmentID *int64
	Category     Category
	ItemID       int64
}

type Match struct {
	Record   Record
	Strategy string
}

// Strategy is one lookup attempt against one table. A nil record with a nil error means no match.
type Strategy struct {
	Name    string
	Applies func(q LocateQuery) bool
	Find    func(ctx context.Context, finder recordFinder, t Table, q LocateQuery) (*Record, error)
}

// DefaultStrategies are tried in order, each one across all candidate tables, first match wins:
// exact match, activity id as text, date scan, content scan.
func DefaultStrategies() []Strategy {
	return []Strategy{
		{Name: "exact", Find: findExact},
		{Name: "activity-text", Find: findActivityText},
		{Name: "date-scan", Find: findDateScan},
		{
			Name:    "content-scan",
			Applies: func(q LocateQuery) bool { return q.ItemID > 0 },
			Find:    findContentScan,
		},
	}
}

func findExact(ctx context.Context, finder recordFinder, t Table, q LocateQuery) (*Record, error) {
	f := Filter{UserID: q.UserID, Date: q.Date, Limit: 1}
	if q.EnrollmentID != nil {
		f.EnrollmentID = q.EnrollmentID
	} else {
		activityID := q.ActivityID
		f.ActivityNum = &activityID
	}
	return first(finder.FindRecords(ctx, t, f))
}

func findActivityText(ctx context.Context, finder recordFinder, t Table, q LocateQuery) (*Record, error) {
	activityText := strconv.FormatInt(q.ActivityID, 10)
	return first(finder.FindRecords(ctx, t, Filter{
		UserID:       q.UserID,
		Date:         q.Date,
		ActivityText: &activityText,
		Limit:        1,
	}))
}

func findDateScan(ctx context.Context, finder recordFinder, t Table, q LocateQuery) (*Record, error) {
	records, err := finder.FindRecords(ctx, t, Filter{UserID: q.UserID, Date: q.Date, Limit: dateScanLimit})
	if err != nil {
		return nil, err
	}
	for i := range records {
		if activityMatches(records[i].ActivityID, q.ActivityID) {
			return &records[i], nil
		}
	}
	return nil, nil
}

func findContentScan(ctx context.Context, finder recordFinder, t Table, q LocateQuery) (*Record, error) {
	records, err := finder.FindRecords(ctx, t, Filter{UserID: q.UserID, Date: q.Date, Limit: contentScanLimit})
	if err != nil {
		return nil, err
	}
	hasItem := func(it shape.Item) bool { return it.ID == q.ItemID }
	for i := range records {
		if _, ok := shape.Parse(records[i].Pending).Find(hasItem); ok {
			return &records[i], nil
		}
		if _, ok := shape.Parse(records[i].Completed).Find(hasItem); ok {
			return &records[i], nil
		}
	}
	return nil, nil
}

func first(records []Record, err error) (*Record, error) {
	if err != nil || len(records) == 0 {
		return nil, err
	}
	return &records[0], nil
}

// Locator resolves the single progress row for a day, degrading through its strategies
// to survive type and format drift of historical rows.
type Locator struct {
	finder         recordFinder
	strategies     []Strategy
	metricsManager *metrics.Manager
}

func NewLocator(finder recordFinder, metricsManager *metrics.Manager, strategies ...Strategy) *Locator {
	if len(strategies) == 0 {
		strategies = DefaultStrategies()
	}
	return &Locator{
		finder:         finder,
		strategies:     strategies,
		metricsManager: metricsManager,
	}
}

// Locate returns a *NotFoundError (matching ErrProgressNotFound) when no strategy finds the row.
// It never creates a row.
func (l *Locator) Locate(ctx context.Context, q LocateQuery) (_ *Match, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "locator.progress.locate")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(
		attribute.Int64("activity.id", q.ActivityID),
		attribute.String("date", q.Date.Format(time.DateOnly)),
		attribute.String("category", q.Category.String()),
	)

	tables := candidateTables(q.Category)
	notFound := &NotFoundError{Tables: tables}
	for _, s := range l.strategies {
		if s.Applies != nil && !s.Applies(q) {
			continue
		}
		notFound.Strategies = append(notFound.Strategies, s.Name)
		for _, t := range tables {
			rec, err := s.Find(ctx, l.finder, t, q)
			if err != nil {
				return nil, err
			}
			if rec == nil {
				continue
			}

			span.SetAttributes(attribute.String("strategy", s.Name), attribute.Int64("record.id", rec.ID))
			if l.metricsManager != nil {
				l.metricsManager.CounterLocatorHits.WithLabelValues(s.Name).Inc()
			}
			if s.Name != "exact" {
				log.Debugf("progress [%d] in [%s] found by fallback strategy [%s]", rec.ID, t, s.Name)
			}
			return &Match{Record: *rec, Strategy: s.Name}, nil
		}
	}

	if l.metricsManager != nil {
		l.metricsManager.CounterLocatorNotFound.Inc()
	}
	log.Tracef("no progress for user [%s] activity [%d] date [%s]: %s",
		q.UserID, q.ActivityID, q.Date.Format(time.DateOnly), notFound)
	return nil, notFound
}

// IsNotFound is a shorthand for errors.Is(err, ErrProgressNotFound).
func IsNotFound(err error) bool {
	return errors.Is(err, ErrProgressNotFound)
}

package cycle

import (
	"errors"
	"fmt"
	"time"
)

const (
	DateLayout = "2006-01-02"
	daysInWeek = 7
	secsPerDay = 24 * 60 * 60
)

// DefaultTimezone is the civil timezone all plan-day calculations are pinned to,
// regardless of the device timezone of the caller.
const DefaultTimezone = "America/Mexico_City"

var ErrInvalidDate = errors.New("invalid date")

// Civil returns the calendar date of t as seen in loc, expressed as midnight UTC.
// Comparing two Civil values never crosses a DST boundary.
func Civil(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w [%s]: %w", ErrInvalidDate, s, err)
	}
	return d, nil
}

func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// DayOfWeek returns the weekday of a civil date with Monday = 1 ... Sunday = 7.
func DayOfWeek(date time.Time) int {
	wd := int(date.Weekday())
	if wd == 0 {
		return daysInWeek
	}
	return wd
}

// DaysBetween returns the number of whole days from a to b (negative if b is before a).
// Both arguments are expected to be civil dates.
func DaysBetween(a, b time.Time) int {
	return int((b.Unix() - a.Unix()) / secsPerDay)
}

// Resolver maps calendar dates onto the recurring weekly plan of an enrollment.
type Resolver struct {
	loc *time.Location
}

func NewResolver(loc *time.Location) *Resolver {
	if loc == nil {
		loc = time.UTC
	}
	return &Resolver{loc: loc}
}

// NewResolverForZone loads the named IANA zone; an empty name selects DefaultTimezone.
func NewResolverForZone(zone string) (*Resolver, error) {
	if zone == "" {
		zone = DefaultTimezone
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("load location [%s]: %w", zone, err)
	}
	return NewResolver(loc), nil
}

func (r *Resolver) Location() *time.Location {
	return r.loc
}

// Today returns the current civil date in the resolver timezone.
func (r *Resolver) Today(now time.Time) time.Time {
	return Civil(now, r.loc)
}

// PlanDay returns the plan-day ordinal (1-7) of target for a program started on start.
// ok is false when target is before start.
func (r *Resolver) PlanDay(start, target time.Time) (day int, ok bool) {
	return PlanDay(r.civil(start), r.civil(target))
}

// PlanWeek returns the 1-based plan-week ordinal of target for a program started on start.
func (r *Resolver) PlanWeek(start, target time.Time) int {
	return PlanWeek(r.civil(start), r.civil(target))
}

// civil keeps values that already are civil dates (midnight UTC, as returned by ParseDate)
// and converts instants to their calendar date in the resolver timezone.
func (r *Resolver) civil(t time.Time) time.Time {
	if IsCivil(t) {
		return t
	}
	return Civil(t, r.loc)
}

// IsCivil reports whether t is in the civil date form produced by Civil and ParseDate.
func IsCivil(t time.Time) bool {
	if t.Location() != time.UTC {
		return false
	}
	h, m, sec := t.Clock()
	return h == 0 && m == 0 && sec == 0 && t.Nanosecond() == 0
}

// PlanDay works on civil dates (see Civil).
func PlanDay(start, target time.Time) (int, bool) {
	if target.Before(start) {
		return 0, false
	}
	startDow := DayOfWeek(start)
	if target.Equal(start) {
		return startDow, true
	}
	diff := DaysBetween(start, target)
	return ((startDow-1+diff)%daysInWeek + 1), true
}

// PlanWeek aligns both civil dates to the Monday of their week and counts whole weeks
// between them, 1-based and never below 1.
func PlanWeek(start, target time.Time) int {
	startMonday := mondayOf(start)
	targetMonday := mondayOf(target)
	diff := DaysBetween(startMonday, targetMonday)
	week := floorDiv(diff, daysInWeek) + 1
	if week < 1 {
		return 1
	}
	return week
}

func mondayOf(date time.Time) time.Time {
	return date.AddDate(0, 0, -(DayOfWeek(date) - 1))
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

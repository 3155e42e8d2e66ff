package progress

import (
	"time"

	"github.com/2beens/coachprogress/internal/progress/shape"
)

type Status string

const (
	StatusNotStarted  Status = "not-started"
	StatusStarted     Status = "started"
	StatusCompleted   Status = "completed"
	StatusNoExercises Status = "no-exercises"
)

// StatusOf buckets a day by its completed and total item counts.
// ok is false for a day without resolvable items, which belongs to no bucket.
func StatusOf(completed, total int) (_ Status, ok bool) {
	switch {
	case total <= 0:
		return "", false
	case completed <= 0:
		return StatusNotStarted, true
	case completed >= total:
		return StatusCompleted, true
	default:
		return StatusStarted, true
	}
}

// Counts is the calendar legend. Pending counts the not-started days.
type Counts struct {
	Pending   int `json:"pending"`
	Started   int `json:"started"`
	Completed int `json:"completed"`
}

type MonthAggregate struct {
	// Days is keyed by the YYYY-MM-DD date and only holds dates with a record.
	Days   map[string]Status
	Counts Counts
}

// DayCounts returns the completed and total (completed ∪ pending) composite key counts of rec.
func DayCounts(rec Record) (completed, total int) {
	pendingKeys := shape.ToKeySet(rec.Pending)
	completedKeys := shape.ToKeySet(rec.Completed)
	total = len(completedKeys)
	for k := range pendingKeys {
		if _, ok := completedKeys[k]; !ok {
			total++
		}
	}
	return len(completedKeys), total
}

type tableDate struct {
	table Table
	date  string
}

// AggregateMonth buckets the records of one user and activity by date. Duplicate rows of
// the same table and date are resolved to the most recent one (highest id); ids are only
// comparable within a table. A date holding rows of both tables counts the items of both.
func AggregateMonth(records []Record) MonthAggregate {
	latest := make(map[tableDate]Record, len(records))
	for _, rec := range records {
		k := tableDate{table: rec.Table, date: rec.Date.Format(time.DateOnly)}
		if prev, ok := latest[k]; ok && prev.ID > rec.ID {
			continue
		}
		latest[k] = rec
	}

	type dayCounts struct{ completed, total int }
	byDate := make(map[string]dayCounts, len(latest))
	for k, rec := range latest {
		completed, total := DayCounts(rec)
		c := byDate[k.date]
		c.completed += completed
		c.total += total
		byDate[k.date] = c
	}

	agg := MonthAggregate{Days: make(map[string]Status, len(byDate))}
	for date, c := range byDate {
		status, ok := StatusOf(c.completed, c.total)
		if !ok {
			continue
		}
		agg.Days[date] = status
		switch status {
		case StatusNotStarted:
			agg.Counts.Pending++
		case StatusStarted:
			agg.Counts.Started++
		case StatusCompleted:
			agg.Counts.Completed++
		}
	}
	return agg
}

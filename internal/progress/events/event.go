package events

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

type ItemToggled struct {
	UserID    string
	RecordID  int64
	Table     string
	Key       string
	Completed bool
	Timestamp time.Time
}

type DayMoved struct {
	UserID    string
	From      string
	To        string
	Moved     int64
	Timestamp time.Time
}

type ProgressSeeded struct {
	UserID       string
	EnrollmentID int64
	StartDate    string
	Rows         int
	Timestamp    time.Time
}

// Event (DB level type) is one progress domain event:
//   - item toggled (record, item key and the new state)
//   - day moved (from/to dates and number of moved rows)
//   - progress seeded (enrollment, start date and number of seeded rows)
type Event struct {
	ID        int64             `json:"id"`
	UUID      string            `json:"uuid"`
	Type      EventType         `json:"type"`
	UserID    string            `json:"userId"`
	Timestamp time.Time         `json:"timestamp"`
	Data      map[string]string `json:"data"`
}

func NewItemToggledEvent(it ItemToggled) Event {
	return Event{
		UUID:      uuid.NewString(),
		Type:      EventTypeItemToggled,
		UserID:    it.UserID,
		Timestamp: it.Timestamp,
		Data: map[string]string{
			"record_id": fmt.Sprintf("%d", it.RecordID),
			"table":     it.Table,
			"key":       it.Key,
			"completed": strconv.FormatBool(it.Completed),
		},
	}
}

func NewDayMovedEvent(dm DayMoved) Event {
	return Event{
		UUID:      uuid.NewString(),
		Type:      EventTypeDayMoved,
		UserID:    dm.UserID,
		Timestamp: dm.Timestamp,
		Data: map[string]string{
			"from":  dm.From,
			"to":    dm.To,
			"moved": fmt.Sprintf("%d", dm.Moved),
		},
	}
}

func NewProgressSeededEvent(ps ProgressSeeded) Event {
	return Event{
		UUID:      uuid.NewString(),
		Type:      EventTypeProgressSeeded,
		UserID:    ps.UserID,
		Timestamp: ps.Timestamp,
		Data: map[string]string{
			"enrollment_id": fmt.Sprintf("%d", ps.EnrollmentID),
			"start_date":    ps.StartDate,
			"rows":          fmt.Sprintf("%d", ps.Rows),
		},
	}
}

// EventType can be one of:
//   - item_toggled
//   - day_moved
//   - progress_seeded
type EventType string

const (
	EventTypeItemToggled    EventType = "item_toggled"
	EventTypeDayMoved       EventType = "day_moved"
	EventTypeProgressSeeded EventType = "progress_seeded"
)

func (et EventType) String() string {
	return string(et)
}

func (et EventType) IsValid() bool {
	switch et {
	case EventTypeItemToggled,
		EventTypeDayMoved,
		EventTypeProgressSeeded:
		return true
	default:
		return false
	}
}

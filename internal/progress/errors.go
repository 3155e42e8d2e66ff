package progress

import (
	"errors"
	"fmt"
	"strings"

	"github.com/2beens/coachprogress/internal/progress/shape"
)

var (
	ErrProgressNotFound         = errors.New("progress not found")
	ErrItemNotFound             = errors.New("item not found in progress")
	ErrVersionConflict          = errors.New("progress record changed since it was read")
	ErrEnrollmentNotFound       = errors.New("enrollment not found")
	ErrEnrollmentNotStarted     = errors.New("enrollment not started")
	ErrEnrollmentAlreadyStarted = errors.New("enrollment already started")
	ErrActivityNotFound         = errors.New("activity not found")
	ErrTargetDateOccupied       = errors.New("target date already has progress")
	ErrInvalidInput             = errors.New("invalid input")
)

// NotFoundError carries what the locator tried before giving up.
type NotFoundError struct {
	Tables     []Table
	Strategies []string
}

func (e *NotFoundError) Error() string {
	tables := make([]string, 0, len(e.Tables))
	for _, t := range e.Tables {
		tables = append(tables, string(t))
	}
	return fmt.Sprintf("%s: tables [%s], strategies [%s]",
		ErrProgressNotFound, strings.Join(tables, ","), strings.Join(e.Strategies, ","))
}

func (e *NotFoundError) Unwrap() error {
	return ErrProgressNotFound
}

// ItemNotFoundError is returned when a toggled item is in neither container of the record.
type ItemNotFoundError struct {
	RecordID      int64
	Table         Table
	Key           shape.Key
	PendingKeys   []shape.Key
	CompletedKeys []shape.Key
}

func (e *ItemNotFoundError) Error() string {
	return fmt.Sprintf("%s: record [%d] table [%s] key [%s]", ErrItemNotFound, e.RecordID, e.Table, e.Key)
}

func (e *ItemNotFoundError) Unwrap() error {
	return ErrItemNotFound
}

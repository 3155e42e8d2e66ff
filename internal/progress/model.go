package progress

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Category is either fitness or nutrition. The zero value means unknown.
type Category string

const (
	CategoryUnknown   Category = ""
	CategoryFitness   Category = "fitness"
	CategoryNutrition Category = "nutrition"
)

// ParseCategory only accepts the exact category names; anything else is unknown.
func ParseCategory(s string) Category {
	switch Category(s) {
	case CategoryFitness:
		return CategoryFitness
	case CategoryNutrition:
		return CategoryNutrition
	default:
		return CategoryUnknown
	}
}

func (c Category) IsValid() bool {
	return c == CategoryFitness || c == CategoryNutrition
}

func (c Category) String() string {
	if c == CategoryUnknown {
		return "unknown"
	}
	return string(c)
}

// Table is one of the two progress storage tables.
type Table string

const (
	TableFitness   Table = "fitness_progress"
	TableNutrition Table = "nutrition_progress"
)

func (t Table) Category() Category {
	switch t {
	case TableFitness:
		return CategoryFitness
	case TableNutrition:
		return CategoryNutrition
	default:
		return CategoryUnknown
	}
}

// infoColumn is the category specific auxiliary blob column.
func (t Table) infoColumn() string {
	if t == TableNutrition {
		return "macros"
	}
	return "information"
}

func TableFor(c Category) (Table, bool) {
	switch c {
	case CategoryFitness:
		return TableFitness, true
	case CategoryNutrition:
		return TableNutrition, true
	default:
		return "", false
	}
}

// candidateTables lists the tables to search for a category.
// Unknown categories search nutrition first: most untagged historical rows are nutrition rows.
func candidateTables(c Category) []Table {
	if t, ok := TableFor(c); ok {
		return []Table{t}
	}
	return []Table{TableNutrition, TableFitness}
}

var allTables = []Table{TableFitness, TableNutrition}

type EnrollmentStatus string

const (
	EnrollmentActive    EnrollmentStatus = "active"
	EnrollmentCompleted EnrollmentStatus = "completed"
	EnrollmentCancelled EnrollmentStatus = "cancelled"
	EnrollmentUnknown   EnrollmentStatus = "unknown"
)

func ParseEnrollmentStatus(s string) EnrollmentStatus {
	switch EnrollmentStatus(strings.ToLower(strings.TrimSpace(s))) {
	case EnrollmentActive:
		return EnrollmentActive
	case EnrollmentCompleted:
		return EnrollmentCompleted
	case EnrollmentCancelled:
		return EnrollmentCancelled
	default:
		return EnrollmentUnknown
	}
}

// Enrollment is a user's subscription to an activity. A nil StartDate means not started yet.
type Enrollment struct {
	ID             int64            `json:"id"`
	UserID         string           `json:"userId"`
	ActivityID     int64            `json:"activityId"`
	StartDate      *time.Time       `json:"startDate,omitempty"`
	ExpirationDate *time.Time       `json:"expirationDate,omitempty"`
	Status         EnrollmentStatus `json:"status"`
}

func (e *Enrollment) Started() bool {
	return e != nil && e.StartDate != nil
}

// PlanItem is one scheduled exercise or meal in a plan day block.
type PlanItem struct {
	ItemID  int64           `json:"id"`
	Block   int             `json:"block"`
	Order   int             `json:"order"`
	Details json.RawMessage `json:"details,omitempty"`
}

type PlanBlock struct {
	Block int        `json:"block"`
	Name  string     `json:"name,omitempty"`
	Items []PlanItem `json:"items"`
}

// WeeklyPlan maps the plan day (1 = Monday ... 7 = Sunday) to the blocks of that day.
type WeeklyPlan map[int][]PlanBlock

// BlockNames returns the names of the day's blocks, index 0 being block 1.
func (p WeeklyPlan) BlockNames(planDay int) []string {
	blocks := p[planDay]
	maxBlock := 0
	for _, b := range blocks {
		if b.Block > maxBlock {
			maxBlock = b.Block
		}
	}
	if maxBlock == 0 {
		return nil
	}
	names := make([]string, maxBlock)
	hasNames := false
	for _, b := range blocks {
		if b.Block >= 1 && b.Name != "" {
			names[b.Block-1] = b.Name
			hasNames = true
		}
	}
	if !hasNames {
		return nil
	}
	return names
}

type Activity struct {
	ID            int64      `json:"id"`
	Category      Category   `json:"category"`
	Title         string     `json:"title"`
	Plan          WeeklyPlan `json:"plan"`
	DurationWeeks int        `json:"durationWeeks"`
}

// Record is one progress row. ActivityID is kept as persisted, historical rows store it as text
// in more than one format.
type Record struct {
	ID           int64           `json:"id"`
	Table        Table           `json:"table"`
	UserID       string          `json:"userId"`
	ActivityID   string          `json:"activityId"`
	EnrollmentID *int64          `json:"enrollmentId,omitempty"`
	Date         time.Time       `json:"date"`
	Pending      json.RawMessage `json:"pending"`
	Completed    json.RawMessage `json:"completed"`
	Info         json.RawMessage `json:"info,omitempty"`
	Version      int64           `json:"version"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

func (r Record) Category() Category {
	return r.Table.Category()
}

// activityMatches compares the persisted activity id both as a number and as a string.
func activityMatches(persisted string, activityID int64) bool {
	persisted = strings.TrimSpace(persisted)
	if persisted == strconv.FormatInt(activityID, 10) {
		return true
	}
	f, err := strconv.ParseFloat(persisted, 64)
	if err != nil {
		return false
	}
	return f == float64(activityID)
}

// Filter selects progress rows of one user on one date.
// Exactly one of ActivityNum, ActivityText or EnrollmentID narrows the query, or none of them.
type Filter struct {
	UserID       string
	Date         time.Time
	ActivityNum  *int64
	ActivityText *string
	EnrollmentID *int64
	Limit        int
}

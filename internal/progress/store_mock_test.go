package progress

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"
)

var _ progressStore = (*storeMock)(nil)

// storeMock keeps progress rows in memory and mimics the filters of Repo.
type storeMock struct {
	mutex       sync.Mutex
	nextID      int64
	records     map[Table][]Record
	enrollments map[int64]*Enrollment
	activities  map[int64]*Activity

	findCalls []Filter
	seeded    []SeedParams
	moveErr   error
	findErr   error
}

func newStoreMock() *storeMock {
	return &storeMock{
		nextID:      100,
		records:     make(map[Table][]Record),
		enrollments: make(map[int64]*Enrollment),
		activities:  make(map[int64]*Activity),
	}
}

func (s *storeMock) add(rec Record) Record {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if rec.ID == 0 {
		s.nextID++
		rec.ID = s.nextID
	}
	if rec.Version == 0 {
		rec.Version = 1
	}
	s.records[rec.Table] = append(s.records[rec.Table], rec)
	return rec
}

func (s *storeMock) get(t Table, id int64) (Record, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	for _, rec := range s.records[t] {
		if rec.ID == id {
			return rec, true
		}
	}
	return Record{}, false
}

func (s *storeMock) FindRecords(_ context.Context, t Table, f Filter) ([]Record, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.findCalls = append(s.findCalls, f)
	if s.findErr != nil {
		return nil, s.findErr
	}

	var found []Record
	for _, rec := range s.records[t] {
		if rec.UserID != f.UserID || !rec.Date.Equal(f.Date) {
			continue
		}
		if f.ActivityNum != nil {
			n, err := strconv.ParseInt(rec.ActivityID, 10, 64)
			if err != nil || n != *f.ActivityNum {
				continue
			}
		}
		if f.ActivityText != nil && rec.ActivityID != *f.ActivityText {
			continue
		}
		if f.EnrollmentID != nil && (rec.EnrollmentID == nil || *rec.EnrollmentID != *f.EnrollmentID) {
			continue
		}
		found = append(found, rec)
	}
	sort.Slice(found, func(i, j int) bool { return found[i].ID > found[j].ID })
	if f.Limit > 0 && len(found) > f.Limit {
		found = found[:f.Limit]
	}
	return found, nil
}

func (s *storeMock) ListRecords(_ context.Context, t Table, rf RangeFilter) ([]Record, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var found []Record
	for _, rec := range s.records[t] {
		if rec.UserID != rf.UserID || rec.Date.Before(rf.From) || !rec.Date.Before(rf.To) {
			continue
		}
		if rf.ActivityID != nil && !activityMatches(rec.ActivityID, *rf.ActivityID) {
			continue
		}
		if rf.EnrollmentID != nil && (rec.EnrollmentID == nil || *rec.EnrollmentID != *rf.EnrollmentID) {
			continue
		}
		found = append(found, rec)
	}
	return found, nil
}

func (s *storeMock) UpdateContainers(_ context.Context, rec Record) (Record, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	for i, stored := range s.records[rec.Table] {
		if stored.ID != rec.ID {
			continue
		}
		if stored.Version != rec.Version {
			return Record{}, ErrVersionConflict
		}
		rec.Version++
		rec.UpdatedAt = time.Now()
		s.records[rec.Table][i] = rec
		return rec, nil
	}
	return Record{}, ErrVersionConflict
}

func (s *storeMock) MoveDate(_ context.Context, p MoveParams) (int64, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.moveErr != nil {
		return 0, s.moveErr
	}

	matches := func(rec Record) bool {
		if rec.UserID != p.UserID {
			return false
		}
		if p.ActivityID != nil && !activityMatches(rec.ActivityID, *p.ActivityID) {
			return false
		}
		if p.EnrollmentID != nil && (rec.EnrollmentID == nil || *rec.EnrollmentID != *p.EnrollmentID) {
			return false
		}
		return true
	}

	for _, t := range allTables {
		for _, rec := range s.records[t] {
			if matches(rec) && rec.Date.Equal(p.To) {
				return 0, ErrTargetDateOccupied
			}
		}
	}

	var moved int64
	for _, t := range allTables {
		for i, rec := range s.records[t] {
			if matches(rec) && rec.Date.Equal(p.From) {
				s.records[t][i].Date = p.To
				moved++
			}
		}
	}
	return moved, nil
}

func (s *storeMock) GetEnrollment(_ context.Context, id int64) (*Enrollment, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	e, ok := s.enrollments[id]
	if !ok {
		return nil, ErrEnrollmentNotFound
	}
	copied := *e
	return &copied, nil
}

func (s *storeMock) GetActivity(_ context.Context, id int64) (*Activity, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	a, ok := s.activities[id]
	if !ok {
		return nil, ErrActivityNotFound
	}
	return a, nil
}

func (s *storeMock) SeedEnrollment(_ context.Context, p SeedParams) (int, error) {
	s.mutex.Lock()
	e, ok := s.enrollments[p.EnrollmentID]
	if !ok {
		s.mutex.Unlock()
		return 0, ErrEnrollmentNotFound
	}
	if e.StartDate != nil {
		s.mutex.Unlock()
		return 0, ErrEnrollmentAlreadyStarted
	}
	start := p.StartDate
	e.StartDate = &start
	s.seeded = append(s.seeded, p)
	s.mutex.Unlock()

	enrollmentID := p.EnrollmentID
	for _, row := range p.Rows {
		s.add(Record{
			Table:        p.Table,
			UserID:       p.UserID,
			ActivityID:   strconv.FormatInt(p.ActivityID, 10),
			EnrollmentID: &enrollmentID,
			Date:         row.Date,
			Pending:      row.Pending,
			Completed:    []byte(`{}`),
			Info:         row.Info,
		})
	}
	return len(p.Rows), nil
}

func mustDate(s string) time.Time {
	d, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return d
}

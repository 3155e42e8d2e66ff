package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusOf(t *testing.T) {
	tests := []struct {
		name      string
		completed int
		total     int
		want      Status
		wantOK    bool
	}{
		{"no items", 0, 0, "", false},
		{"nothing done", 0, 4, StatusNotStarted, true},
		{"some done", 2, 4, StatusStarted, true},
		{"all done", 4, 4, StatusCompleted, true},
		{"more done than planned", 5, 4, StatusCompleted, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := StatusOf(tt.completed, tt.total)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDayCounts_UnionOfContainers(t *testing.T) {
	rec := Record{
		Table:     TableFitness,
		Pending:   []byte(`{"ejercicios":[{"id":10,"bloque":1,"orden":1},{"id":11,"bloque":1,"orden":2}]}`),
		Completed: []byte(`"11_1_2,12_2_1"`),
	}
	completed, total := DayCounts(rec)
	assert.Equal(t, 2, completed)
	assert.Equal(t, 3, total)
}

func TestAggregateMonth(t *testing.T) {
	records := []Record{
		{ID: 1, Table: TableFitness, Date: mustDate("2025-09-01"), Pending: []byte(`{"10_1_1":{}}`), Completed: []byte(`{}`)},
		{ID: 2, Table: TableFitness, Date: mustDate("2025-09-02"), Pending: []byte(`{"10_1_1":{}}`), Completed: []byte(`{"11_1_2":{}}`)},
		{ID: 3, Table: TableFitness, Date: mustDate("2025-09-03"), Pending: []byte(`{}`), Completed: []byte(`["10_1_1","11_1_2"]`)},
		// empty day, no bucket
		{ID: 4, Table: TableFitness, Date: mustDate("2025-09-04"), Pending: []byte(`null`), Completed: []byte(`null`)},
		// duplicate date: the most recent row wins
		{ID: 9, Table: TableFitness, Date: mustDate("2025-09-05"), Pending: []byte(`{}`), Completed: []byte(`{"10_1_1":{}}`)},
		{ID: 5, Table: TableFitness, Date: mustDate("2025-09-05"), Pending: []byte(`{"10_1_1":{}}`), Completed: []byte(`{}`)},
	}

	agg := AggregateMonth(records)
	assert.Equal(t, map[string]Status{
		"2025-09-01": StatusNotStarted,
		"2025-09-02": StatusStarted,
		"2025-09-03": StatusCompleted,
		"2025-09-05": StatusCompleted,
	}, agg.Days)
	assert.Equal(t, Counts{Pending: 1, Started: 1, Completed: 2}, agg.Counts)
}

func TestAggregateMonth_BothTables(t *testing.T) {
	records := []Record{
		// nutrition ids run their own sequence, a higher id says nothing about fitness rows
		{ID: 40, Table: TableNutrition, Date: mustDate("2025-09-01"), Pending: []byte(`{"3_1_1":{}}`), Completed: []byte(`{}`)},
		{ID: 7, Table: TableFitness, Date: mustDate("2025-09-01"), Pending: []byte(`{}`), Completed: []byte(`{"10_1_1":{}}`)},
		{ID: 41, Table: TableNutrition, Date: mustDate("2025-09-02"), Pending: []byte(`{}`), Completed: []byte(`["3_1_1"]`)},
		{ID: 8, Table: TableFitness, Date: mustDate("2025-09-02"), Pending: []byte(`null`), Completed: []byte(`"10_1_1"`)},
		// same table and date: the most recent row wins
		{ID: 9, Table: TableFitness, Date: mustDate("2025-09-03"), Pending: []byte(`{"10_1_1":{}}`), Completed: []byte(`{}`)},
		{ID: 3, Table: TableFitness, Date: mustDate("2025-09-03"), Pending: []byte(`{}`), Completed: []byte(`{"10_1_1":{}}`)},
	}

	agg := AggregateMonth(records)
	assert.Equal(t, map[string]Status{
		"2025-09-01": StatusStarted,
		"2025-09-02": StatusCompleted,
		"2025-09-03": StatusNotStarted,
	}, agg.Days)
	assert.Equal(t, Counts{Pending: 1, Started: 1, Completed: 1}, agg.Counts)
}

func TestToggle_DrivesDayStatus(t *testing.T) {
	rec := Record{
		ID:        1,
		Table:     TableFitness,
		Pending:   []byte(`{"ejercicios":[{"id":10,"bloque":1,"orden":1},{"id":11,"bloque":1,"orden":2}]}`),
		Completed: []byte(`{}`),
	}
	status := func(rec Record) Status {
		t.Helper()
		s, ok := StatusOf(DayCounts(rec))
		require.True(t, ok)
		return s
	}

	assert.Equal(t, StatusNotStarted, status(rec))

	outcome, err := Toggle(rec, 10, 1, 1)
	require.NoError(t, err)
	rec = outcome.Record
	assert.Equal(t, StatusStarted, status(rec))

	outcome, err = Toggle(rec, 11, 1, 2)
	require.NoError(t, err)
	rec = outcome.Record
	assert.Equal(t, StatusCompleted, status(rec))

	outcome, err = Toggle(rec, 10, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, StatusStarted, status(outcome.Record))

	agg := AggregateMonth([]Record{{ID: 1, Table: TableFitness, Date: mustDate("2025-09-01"), Pending: outcome.Record.Pending, Completed: outcome.Record.Completed}})
	assert.Equal(t, Counts{Started: 1}, agg.Counts)
}

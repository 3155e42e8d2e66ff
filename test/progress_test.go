//go:build integration_test

package test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/2beens/coachprogress/internal/progress"
	"github.com/2beens/coachprogress/internal/progress/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (s *IntegrationTestSuite) TestProgressLifecycle() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	t := s.T()
	user := newTestUser(t)
	activityID, exerciseIDs := s.addFitnessActivity()
	enrollmentID := s.addEnrollment(user.ID, activityID)

	dayPath := func(date string) string {
		return fmt.Sprintf("/progress/activities/%d/days/%s?enrollment=%d", activityID, date, enrollmentID)
	}
	togglePath := func(date string) string {
		return fmt.Sprintf("/progress/activities/%d/days/%s/toggle", activityID, date)
	}

	// not started yet
	status, body := s.doRequest(ctx, http.MethodGet, dayPath("2024-01-01"), user.Token, nil)
	require.Equal(t, http.StatusOK, status, string(body))
	var day progress.DayView
	require.NoError(t, json.Unmarshal(body, &day))
	assert.False(t, day.Started)
	assert.False(t, day.HasProgress)

	// start on a monday, one week program: monday and wednesday have exercises
	status, body = s.doRequest(ctx, http.MethodPost,
		fmt.Sprintf("/progress/enrollments/%d/start", enrollmentID), user.Token,
		progress.StartBody{StartDate: "2024-01-01"},
	)
	require.Equal(t, http.StatusOK, status, string(body))
	var seedResult progress.SeedResult
	require.NoError(t, json.Unmarshal(body, &seedResult))
	assert.Equal(t, 2, seedResult.Seeded)
	require.NotNil(t, seedResult.Enrollment.StartDate)

	// starting twice is a conflict
	status, _ = s.doRequest(ctx, http.MethodPost,
		fmt.Sprintf("/progress/enrollments/%d/start", enrollmentID), user.Token,
		progress.StartBody{StartDate: "2024-01-08"},
	)
	assert.Equal(t, http.StatusConflict, status)

	status, body = s.doRequest(ctx, http.MethodGet, dayPath("2024-01-01"), user.Token, nil)
	require.Equal(t, http.StatusOK, status, string(body))
	require.NoError(t, json.Unmarshal(body, &day))
	assert.True(t, day.Started)
	assert.True(t, day.HasProgress)
	assert.Equal(t, 1, day.PlanDay)
	assert.Equal(t, 1, day.Week)
	assert.Equal(t, "warm up", day.BlockNames[1])
	assert.Equal(t, "strength", day.BlockNames[2])
	require.Len(t, day.Items, 2)
	for _, item := range day.Items {
		assert.False(t, item.Done)
		assert.NotEmpty(t, item.Name, "name comes from the exercise catalog")
	}

	// tuesday has no progress row
	status, body = s.doRequest(ctx, http.MethodGet, dayPath("2024-01-02"), user.Token, nil)
	require.Equal(t, http.StatusOK, status, string(body))
	require.NoError(t, json.Unmarshal(body, &day))
	assert.False(t, day.HasProgress)
	assert.Empty(t, day.Items)

	toggle := progress.ToggleBody{
		ItemID:       exerciseIDs[0],
		Block:        1,
		Order:        1,
		Category:     "fitness",
		EnrollmentID: &enrollmentID,
	}
	status, body = s.doRequest(ctx, http.MethodPost, togglePath("2024-01-01"), user.Token, toggle)
	require.Equal(t, http.StatusOK, status, string(body))
	var toggleResult progress.ToggleResult
	require.NoError(t, json.Unmarshal(body, &toggleResult))
	assert.True(t, toggleResult.Completed)
	firstVersion := toggleResult.Version

	// toggling back and forth keeps bumping the version
	status, body = s.doRequest(ctx, http.MethodPost, togglePath("2024-01-01"), user.Token, toggle)
	require.Equal(t, http.StatusOK, status, string(body))
	require.NoError(t, json.Unmarshal(body, &toggleResult))
	assert.False(t, toggleResult.Completed)
	assert.Greater(t, toggleResult.Version, firstVersion)

	status, body = s.doRequest(ctx, http.MethodPost, togglePath("2024-01-01"), user.Token, toggle)
	require.Equal(t, http.StatusOK, status, string(body))
	require.NoError(t, json.Unmarshal(body, &toggleResult))
	assert.True(t, toggleResult.Completed)

	// an item that is not part of the day
	missing := toggle
	missing.Order = 7
	status, _ = s.doRequest(ctx, http.MethodPost, togglePath("2024-01-01"), user.Token, missing)
	assert.Equal(t, http.StatusConflict, status)

	status, body = s.doRequest(ctx, http.MethodGet, dayPath("2024-01-01"), user.Token, nil)
	require.Equal(t, http.StatusOK, status, string(body))
	require.NoError(t, json.Unmarshal(body, &day))
	done := 0
	for _, item := range day.Items {
		if item.Done {
			done++
			assert.Equal(t, exerciseIDs[0], item.ItemID)
		}
	}
	assert.Equal(t, 1, done)

	// calendar: monday started, wednesday not started, everything else without exercises
	status, body = s.doRequest(ctx, http.MethodGet,
		fmt.Sprintf("/progress/activities/%d/calendar/2024/1?enrollment=%d", activityID, enrollmentID),
		user.Token, nil,
	)
	require.Equal(t, http.StatusOK, status, string(body))
	var month progress.MonthView
	require.NoError(t, json.Unmarshal(body, &month))
	require.Len(t, month.Days, 31)
	statuses := make(map[string]progress.Status, len(month.Days))
	for _, d := range month.Days {
		statuses[d.Date] = d.Status
	}
	assert.Equal(t, progress.StatusStarted, statuses["2024-01-01"])
	assert.Equal(t, progress.StatusNotStarted, statuses["2024-01-03"])
	assert.Equal(t, progress.StatusNoExercises, statuses["2024-01-02"])
	assert.Equal(t, progress.Counts{Pending: 1, Started: 1}, month.Counts)

	// move wednesday to thursday
	move := progress.MoveBody{From: "2024-01-03", To: "2024-01-04", EnrollmentID: &enrollmentID}
	status, body = s.doRequest(ctx, http.MethodPost, "/progress/days/move", user.Token, move)
	require.Equal(t, http.StatusOK, status, string(body))
	var moveResp progress.MoveResponse
	require.NoError(t, json.Unmarshal(body, &moveResp))
	assert.Equal(t, int64(1), moveResp.Moved)

	// thursday is now occupied
	move = progress.MoveBody{From: "2024-01-01", To: "2024-01-04", EnrollmentID: &enrollmentID}
	status, _ = s.doRequest(ctx, http.MethodPost, "/progress/days/move", user.Token, move)
	assert.Equal(t, http.StatusConflict, status)

	// nothing left on wednesday
	move = progress.MoveBody{From: "2024-01-03", To: "2024-01-05", EnrollmentID: &enrollmentID}
	status, _ = s.doRequest(ctx, http.MethodPost, "/progress/days/move", user.Token, move)
	assert.Equal(t, http.StatusNotFound, status)

	status, body = s.doRequest(ctx, http.MethodGet, "/progress/events", user.Token, nil)
	require.Equal(t, http.StatusOK, status, string(body))
	var eventsResp events.ListResponse
	require.NoError(t, json.Unmarshal(body, &eventsResp))
	// seeded, three toggles, one move
	assert.Equal(t, 5, eventsResp.Total)
	require.NotEmpty(t, eventsResp.Events)
	assert.Equal(t, events.EventTypeDayMoved, eventsResp.Events[0].Type)

	// the dispatcher drains the event log in the background
	assert.Eventually(t, func() bool {
		var unpublished int
		err := s.DB.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM progress_event WHERE user_id = $1 AND published_at IS NULL`, user.ID,
		).Scan(&unpublished)
		return err == nil && unpublished == 0
	}, 5*time.Second, 100*time.Millisecond)
}

func (s *IntegrationTestSuite) TestProgress_OtherUsersEnrollment() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	t := s.T()
	owner := newTestUser(t)
	intruder := newTestUser(t)
	activityID, _ := s.addFitnessActivity()
	enrollmentID := s.addEnrollment(owner.ID, activityID)

	status, _ := s.doRequest(ctx, http.MethodGet,
		fmt.Sprintf("/progress/activities/%d/days/2024-01-01?enrollment=%d", activityID, enrollmentID),
		intruder.Token, nil,
	)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = s.doRequest(ctx, http.MethodPost,
		fmt.Sprintf("/progress/enrollments/%d/start", enrollmentID), intruder.Token, nil,
	)
	assert.Equal(t, http.StatusNotFound, status)
}

func (s *IntegrationTestSuite) TestAuth_RevokedToken() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	t := s.T()
	user := newTestUser(t)

	status, _ := s.doRequest(ctx, http.MethodGet, "/progress/events", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = s.doRequest(ctx, http.MethodGet, "/progress/events", user.Token, nil)
	assert.Equal(t, http.StatusOK, status)

	status, body := s.doRequest(ctx, http.MethodPost, "/auth/revoke", user.Token, nil)
	require.Equal(t, http.StatusOK, status, string(body))

	status, _ = s.doRequest(ctx, http.MethodGet, "/progress/events", user.Token, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func (s *IntegrationTestSuite) TestPlanDay_Public() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	t := s.T()
	status, body := s.doRequest(ctx, http.MethodGet, "/plan/day?start=2024-01-03&date=2024-01-08", "", nil)
	require.Equal(t, http.StatusOK, status, string(body))

	var resp progress.PlanDayResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	assert.True(t, resp.Started)
	assert.Equal(t, 1, resp.PlanDay)
	assert.Equal(t, 2, resp.Week)
}

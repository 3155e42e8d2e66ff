//go:build integration_test

package test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

type testUser struct {
	ID      string
	TokenID string
	Token   string
}

func newTestUser(t *testing.T) testUser {
	t.Helper()
	u := testUser{
		ID:      gofakeit.UUID(),
		TokenID: gofakeit.UUID(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": u.ID,
		"jti": u.TokenID,
		"iss": testJWTIssuer,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	u.Token = signed
	return u
}

// doRequest sends body (if any) as JSON and returns the status code and the raw response.
func (s *IntegrationTestSuite) doRequest(ctx context.Context, method, path, token string, body any) (int, []byte) {
	t := s.T()

	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, serverEndpoint+path, reqBody)
	require.NoError(t, err)
	req.Header.Set("User-Agent", "test-agent")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.httpClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, respBytes
}

// addFitnessActivity stores a one week fitness program with exercises on Monday and Wednesday,
// plus their catalog entries. It returns the activity id and the exercise ids.
func (s *IntegrationTestSuite) addFitnessActivity() (int64, []int64) {
	t := s.T()

	exerciseIDs := make([]int64, 0, 2)
	for i := 0; i < 2; i++ {
		var id int64
		err := s.DB.QueryRow(
			`INSERT INTO exercise_catalog (name, video_url, calories, duration) VALUES ($1, $2, $3, $4) RETURNING id;`,
			gofakeit.HipsterWord(), gofakeit.URL(), gofakeit.Float64Range(50, 300), gofakeit.Float64Range(5, 30),
		).Scan(&id)
		require.NoError(t, err)
		exerciseIDs = append(exerciseIDs, id)
	}

	plan := fmt.Sprintf(`{
		"1": [{"block": 1, "name": "warm up", "items": [{"id": %[1]d, "block": 1, "order": 1}]},
		      {"block": 2, "name": "strength", "items": [{"id": %[2]d, "block": 2, "order": 1, "details": {"sets": 3, "reps": 10}}]}],
		"3": [{"block": 1, "name": "cardio", "items": [{"id": %[1]d, "block": 1, "order": 1}]}]
	}`, exerciseIDs[0], exerciseIDs[1])

	var activityID int64
	err := s.DB.QueryRow(
		`INSERT INTO activities (category, title, plan, duration_weeks) VALUES ('fitness', $1, $2, 1) RETURNING id;`,
		gofakeit.Sentence(3), plan,
	).Scan(&activityID)
	require.NoError(t, err)

	return activityID, exerciseIDs
}

func (s *IntegrationTestSuite) addEnrollment(userID string, activityID int64) int64 {
	var id int64
	err := s.DB.QueryRow(
		`INSERT INTO enrollments (user_id, activity_id, status) VALUES ($1, $2, 'active') RETURNING id;`,
		userID, activityID,
	).Scan(&id)
	require.NoError(s.T(), err)
	return id
}

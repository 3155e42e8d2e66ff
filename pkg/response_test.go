package pkg

import (
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteResponses(t *testing.T) {
	testCases := []struct {
		name                string
		write               func(w http.ResponseWriter)
		expectedStatus      int
		expectedContentType string
		expectedBody        string
	}{
		{
			name: "bytes with status",
			write: func(w http.ResponseWriter) {
				WriteResponseBytes(w, ContentType.JSON, []byte(`{"moved":1}`), http.StatusConflict)
			},
			expectedStatus:      http.StatusConflict,
			expectedContentType: ContentType.JSON,
			expectedBody:        `{"moved":1}`,
		},
		{
			name: "bytes without content type",
			write: func(w http.ResponseWriter) {
				WriteResponseBytes(w, "", []byte("raw"), http.StatusAccepted)
			},
			expectedStatus: http.StatusAccepted,
			expectedBody:   "raw",
		},
		{
			name: "text ok",
			write: func(w http.ResponseWriter) {
				WriteTextResponseOK(w, "alive")
			},
			expectedStatus:      http.StatusOK,
			expectedContentType: ContentType.Text,
			expectedBody:        "alive",
		},
		{
			name: "json ok",
			write: func(w http.ResponseWriter) {
				WriteJSONResponseOK(w, `{"date":"2024-01-01"}`)
			},
			expectedStatus:      http.StatusOK,
			expectedContentType: ContentType.JSON,
			expectedBody:        `{"date":"2024-01-01"}`,
		},
		{
			name: "json value",
			write: func(w http.ResponseWriter) {
				err := WriteJSON(w, map[string]int{"planDay": 3}, http.StatusCreated)
				require.NoError(t, err)
			},
			expectedStatus:      http.StatusCreated,
			expectedContentType: ContentType.JSON,
			expectedBody:        `{"planDay":3}`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			tc.write(rr)

			assert.Equal(t, tc.expectedStatus, rr.Code)
			assert.Equal(t, tc.expectedContentType, rr.Header().Get("Content-Type"))
			assert.Equal(t, tc.expectedBody, rr.Body.String())
		})
	}
}

func TestWriteJSON_MarshalError(t *testing.T) {
	rr := httptest.NewRecorder()
	err := WriteJSON(rr, math.Inf(1), http.StatusOK)
	require.Error(t, err)
	assert.Empty(t, rr.Body.String())
	assert.Empty(t, rr.Header().Get("Content-Type"))
}

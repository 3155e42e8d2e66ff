package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type trackingBody struct {
	io.Reader
	closed bool
}

func (b *trackingBody) Close() error {
	b.closed = true
	return nil
}

func TestLimitAndDrainRequest_DrainsUnreadBody(t *testing.T) {
	body := &trackingBody{Reader: strings.NewReader(`{"itemId":1,"block":1,"order":1}`)}
	req := httptest.NewRequest(http.MethodPost, "/progress/days/move", nil)
	req.Body = body

	called := false
	handler := LimitAndDrainRequest(0)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.True(t, called)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.True(t, body.closed)
	rest, err := io.ReadAll(body.Reader)
	require.NoError(t, err)
	assert.Empty(t, rest)
}

func TestLimitAndDrainRequest_TooLarge(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/progress/days/move", strings.NewReader(strings.Repeat("x", 100)))

	var readErr error
	handler := LimitAndDrainRequest(10)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
		http.Error(w, "too large", http.StatusRequestEntityTooLarge)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	var maxBytesErr *http.MaxBytesError
	require.ErrorAs(t, readErr, &maxBytesErr)
	assert.Equal(t, int64(10), maxBytesErr.Limit)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
}

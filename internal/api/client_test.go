package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// noSleep replaces backoff waits so retry tests run instantly.
func noSleep(ctx context.Context, d time.Duration) error { return nil }

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := New(srv.URL, slog.Default(), WithSleep(noSleep))
	return c, srv
}

func TestDo_Success(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/sessions/open", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Write([]byte(`{"session_id": 42}`))
	})

	var out struct {
		SessionID int `json:"session_id"`
	}
	err := c.Do(context.Background(), http.MethodPost, "/api/sessions/open",
		map[string]any{"table_id": 7}, &out)
	require.NoError(t, err)
	assert.Equal(t, 42, out.SessionID)
}

func TestDo_RetriesTransientStatusThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"ok": true}`))
	})

	err := c.Do(context.Background(), http.MethodGet, "/api/session/validate", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load(), "two retries then success")
}

func TestDo_ExhaustedRetriesSurfaceTypedError(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{"error": "upstream down"}`))
	})

	err := c.Do(context.Background(), http.MethodGet, "/api/orders", nil, nil)
	require.Error(t, err)

	var re *RequestError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, http.StatusBadGateway, re.HTTPStatus)
	assert.Equal(t, "upstream down", re.Message)
	assert.Equal(t, "/api/orders", re.Endpoint)
	assert.Equal(t, int32(3), calls.Load(), "initial attempt plus two retries")
}

func TestDo_NonRetryableStatusFailsImmediately(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message": "no such session"}`))
	})

	err := c.Do(context.Background(), http.MethodGet, "/api/session/9/orders", nil, nil)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.Equal(t, int32(1), calls.Load(), "404 must not be retried")

	var re *RequestError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "no such session", re.Message)
}

func TestDo_MessageFieldPrecedence(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"error field wins", `{"error":"a","message":"b"}`, "a"},
		{"message second", `{"message":"b","detail":"c"}`, "b"},
		{"detail third", `{"detail":"c"}`, "c"},
		{"error_description last", `{"error_description":"d"}`, "d"},
		{"no known field", `{"status":"bad"}`, DefaultErrorMessage},
		{"not json", `<html>oops</html>`, DefaultErrorMessage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractMessage([]byte(tt.body)))
		})
	}
}

func TestDo_NetworkFailureRetriedAndWrapped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // every dial now fails

	c := New(srv.URL, slog.Default(), WithSleep(noSleep))
	err := c.Do(context.Background(), http.MethodGet, "/api/session/validate", nil, nil)
	require.Error(t, err)

	var re *RequestError
	require.ErrorAs(t, err, &re)
	assert.Zero(t, re.HTTPStatus)
	assert.Error(t, errors.Unwrap(re))
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Real sleep, cancelled context: the retry loop must give up with the
	// last typed error rather than hanging.
	c.sleep = sleepCtx
	err := c.Do(ctx, http.MethodGet, "/api/orders", nil, nil)
	var re *RequestError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, http.StatusInternalServerError, re.HTTPStatus)
}

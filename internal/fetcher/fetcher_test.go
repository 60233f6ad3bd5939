package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/civicdata/gemeinden-extractor/internal/gemeinde"
)

func testPolicy(attempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: attempts,
		BaseDelay:   time.Millisecond,
		MaxDelay:    10 * time.Millisecond,
	}
}

func TestFetchSucceeds(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html><body>ok</body></html>"))
	}))
	defer srv.Close()

	f := New(Config{Retry: testPolicy(3)}, nil, zap.NewNop())
	body, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Contains(t, body, "ok")
}

func TestFetchRetriesTransientFailures(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("recovered"))
	}))
	defer srv.Close()

	f := New(Config{Retry: testPolicy(3)}, nil, zap.NewNop())
	body, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "recovered", body)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchExhaustionReturnsFetchError(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := New(Config{Retry: testPolicy(3)}, nil, zap.NewNop())
	body, err := f.Fetch(context.Background(), srv.URL)
	assert.Empty(t, body)

	var fetchErr *gemeinde.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, srv.URL, fetchErr.URL)
	assert.Equal(t, 3, fetchErr.Attempts)
	require.NotNil(t, fetchErr.Unwrap())

	// 404 is retried like any other non-success status.
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchCanceledContext(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := New(Config{Retry: testPolicy(3)}, nil, zap.NewNop())
	_, err := f.Fetch(ctx, srv.URL)

	var fetchErr *gemeinde.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.True(t, errors.Is(err, context.Canceled))
	// Canceled before the first request: no attempt was made.
	assert.Equal(t, 0, fetchErr.Attempts)
}

func TestFetchAttemptsReflectRequestsMade(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		// Cancel mid-run so the retry loop stops after one request.
		calls.Add(1)
		cancel()
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f := New(Config{Retry: testPolicy(3)}, nil, zap.NewNop())
	_, err := f.Fetch(ctx, srv.URL)

	var fetchErr *gemeinde.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, int(calls.Load()), fetchErr.Attempts)
	assert.Equal(t, 1, fetchErr.Attempts)
}

func TestRetryPolicyBackoffDeterministic(t *testing.T) {
	t.Parallel()

	p := RetryPolicy{MaxAttempts: 5, BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}
	assert.Equal(t, 100*time.Millisecond, p.Backoff(0))
	assert.Equal(t, 200*time.Millisecond, p.Backoff(1))
	assert.Equal(t, 400*time.Millisecond, p.Backoff(2))
	assert.Equal(t, 800*time.Millisecond, p.Backoff(3))
	// Capped.
	assert.Equal(t, time.Second, p.Backoff(4))
	// Re-evaluating the same attempt yields the same wait.
	assert.Equal(t, p.Backoff(2), p.Backoff(2))
}

func TestRetryPolicyShouldRetry(t *testing.T) {
	t.Parallel()

	p := testPolicy(3)
	assert.False(t, p.ShouldRetry(nil, 1))
	assert.True(t, p.ShouldRetry(errors.New("boom"), 1))
	assert.False(t, p.ShouldRetry(errors.New("boom"), 3))
	assert.False(t, p.ShouldRetry(context.Canceled, 1))
	assert.False(t, p.ShouldRetry(context.DeadlineExceeded, 1))
}

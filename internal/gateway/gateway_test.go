package gateway

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backmig/backmig/internal/backlog"
	"github.com/backmig/backmig/internal/logging"
)

// fakeTimer fires immediately so rate-limit waits do not slow tests down.
type fakeTimer struct {
	ch     chan time.Time
	starts int
}

func (t *fakeTimer) Start(time.Duration) {
	t.starts++
	go func() { t.ch <- time.Now() }()
}

func (t *fakeTimer) C() <-chan time.Time { return t.ch }
func (t *fakeTimer) Stop()               {}

func newTestGateway() (*Gateway, *fakeTimer) {
	timer := &fakeTimer{ch: make(chan time.Time, 1)}
	g := New(time.Millisecond, logging.NewWriter(&bytes.Buffer{}, false))
	g.timer = timer
	g.sleep = func(context.Context, time.Duration) error { return nil }
	return g, timer
}

func rateLimitErr() error {
	return &backlog.APIError{StatusCode: http.StatusTooManyRequests}
}

func TestDoSucceedsFirstTry(t *testing.T) {
	g, _ := newTestGateway()
	calls := 0
	err := g.Do(context.Background(), "op", func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesRateLimitThenSucceeds(t *testing.T) {
	g, _ := newTestGateway()

	const failures = 3
	calls := 0
	err := g.Do(context.Background(), "op", func(context.Context) error {
		calls++
		if calls <= failures {
			return rateLimitErr()
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, failures+1, calls)
}

func TestDoExhaustsAttemptsOnPersistentRateLimit(t *testing.T) {
	g, _ := newTestGateway()
	g.MaxAttempts = 4

	calls := 0
	err := g.Do(context.Background(), "op", func(context.Context) error {
		calls++
		return rateLimitErr()
	})
	require.Error(t, err)
	assert.Equal(t, 4, calls)
	assert.True(t, backlog.IsRateLimited(err), "last rate-limit error must surface: %v", err)
}

func TestDoDoesNotRetryOtherFailures(t *testing.T) {
	g, _ := newTestGateway()

	fatal := &backlog.APIError{StatusCode: http.StatusNotFound}
	calls := 0
	err := g.Do(context.Background(), "op", func(context.Context) error {
		calls++
		return fatal
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)

	var apiErr *backlog.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

func TestDoThrottlesAfterSuccess(t *testing.T) {
	g, _ := newTestGateway()

	var slept []time.Duration
	g.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	require.NoError(t, g.Do(context.Background(), "op", func(context.Context) error { return nil }))
	require.Len(t, slept, 1)
	assert.Equal(t, g.Interval, slept[0])
}

func TestCallReturnsTypedResult(t *testing.T) {
	g, _ := newTestGateway()

	got, err := Call(g, context.Background(), "op", func(context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

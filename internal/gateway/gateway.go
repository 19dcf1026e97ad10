// Package gateway executes remote calls against the Backlog API with the
// rate-limit handling and call pacing the shared tenant limit demands.
// Every remote read and write in the export and replay pipelines goes
// through one Gateway; nothing else in the tree sleeps or retries.
package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/backmig/backmig/internal/backlog"
	"github.com/backmig/backmig/internal/logging"
)

const (
	// DefaultInterval is the pause after every successful call.
	DefaultInterval = time.Second

	// DefaultRateLimitWait is the long pause after an HTTP 429 before the
	// call is attempted again.
	DefaultRateLimitWait = time.Minute

	// DefaultMaxAttempts bounds executions of a single operation,
	// the first attempt included.
	DefaultMaxAttempts = 10
)

// Gateway serializes remote calls. Only a rate-limit rejection is retried;
// any other failure propagates immediately as fatal for that operation.
type Gateway struct {
	Interval      time.Duration
	RateLimitWait time.Duration
	MaxAttempts   int

	log *logging.Log

	// timer overrides backoff's wall-clock timer in tests.
	timer backoff.Timer
	// sleep overrides the inter-call throttle in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a gateway with the given pacing interval and the default
// rate-limit policy.
func New(interval time.Duration, log *logging.Log) *Gateway {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Gateway{
		Interval:      interval,
		RateLimitWait: DefaultRateLimitWait,
		MaxAttempts:   DefaultMaxAttempts,
		log:           log,
		sleep:         sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Do executes op, retrying on rate limiting with a constant long backoff
// up to MaxAttempts executions. On success the inter-call throttle is
// applied before returning. After the cap, the last rate-limit error is
// returned.
func (g *Gateway) Do(ctx context.Context, name string, op func(context.Context) error) error {
	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(g.RateLimitWait), uint64(g.MaxAttempts-1)),
		ctx)

	err := backoff.RetryNotifyWithTimer(func() error {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if backlog.IsRateLimited(err) {
			g.log.Warn("%s: API rate limit exceeded, waiting %s before retrying", name, g.RateLimitWait)
			return err
		}
		return backoff.Permanent(err)
	}, bo, nil, g.timer)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	return g.sleep(ctx, g.Interval)
}

// Call is the typed form of Do for operations that return a value.
func Call[T any](g *Gateway, ctx context.Context, name string, op func(context.Context) (T, error)) (T, error) {
	var result T
	err := g.Do(ctx, name, func(ctx context.Context) error {
		var err error
		result, err = op(ctx)
		return err
	})
	return result, err
}

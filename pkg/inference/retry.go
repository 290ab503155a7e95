package inference

import (
	"context"
	"time"

	"github.com/Rican7/retry"
	"github.com/Rican7/retry/backoff"
	"github.com/Rican7/retry/strategy"
	"github.com/go-go-golems/threadchat/pkg/conversation"
	"github.com/rs/zerolog/log"
)

// RetrySettings controls the caller-side retry decorator.
type RetrySettings struct {
	Attempts  uint
	BaseDelay time.Duration
}

type retryClient struct {
	inner    Client
	settings RetrySettings
}

// WithRetry retries transient failures of inner with exponential backoff.
// Permanent failures and caller cancellation return immediately. This belongs
// to the caller surface: the conversation runner itself never retries.
func WithRetry(inner Client, settings RetrySettings) Client {
	if settings.Attempts <= 1 {
		return inner
	}
	if settings.BaseDelay <= 0 {
		settings.BaseDelay = 250 * time.Millisecond
	}
	return &retryClient{inner: inner, settings: settings}
}

func (r *retryClient) Complete(ctx context.Context, history conversation.History) (conversation.Message, error) {
	var (
		reply   conversation.Message
		lastErr error
	)
	_ = retry.Retry(
		func(attempt uint) error {
			if ctx.Err() != nil {
				if lastErr == nil {
					lastErr = classifyTransport(ctx.Err())
				}
				return nil
			}
			m, err := r.inner.Complete(ctx, history)
			if err == nil {
				reply, lastErr = m, nil
				return nil
			}
			lastErr = err
			if !IsTransient(err) {
				return nil
			}
			log.Warn().
				Err(err).
				Str("component", "inference").
				Uint("attempt", attempt).
				Msg("transient inference failure")
			return err
		},
		strategy.Limit(r.settings.Attempts),
		waitOrCancel(ctx, backoff.Exponential(r.settings.BaseDelay, 2), func(err error) {
			lastErr = classifyTransport(err)
		}),
	)
	if lastErr != nil {
		return conversation.Message{}, lastErr
	}
	return reply, nil
}

// waitOrCancel sleeps for the backoff before each retry like strategy.Backoff,
// but gives up as soon as ctx is done and hands the context error to onCancel.
func waitOrCancel(ctx context.Context, algorithm backoff.Algorithm, onCancel func(error)) strategy.Strategy {
	return func(attempt uint) bool {
		if attempt == 0 {
			return true
		}
		timer := time.NewTimer(algorithm(attempt))
		defer timer.Stop()
		select {
		case <-ctx.Done():
			onCancel(ctx.Err())
			return false
		case <-timer.C:
			return true
		}
	}
}

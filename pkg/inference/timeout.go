package inference

import (
	"context"
	"time"

	"github.com/go-go-golems/threadchat/pkg/conversation"
	"github.com/pkg/errors"
)

type timeoutClient struct {
	inner   Client
	timeout time.Duration
}

// WithTimeout bounds each Complete call. Running out of time is reported as a
// transient error. A non-positive timeout returns inner unchanged.
func WithTimeout(inner Client, timeout time.Duration) Client {
	if timeout <= 0 {
		return inner
	}
	return &timeoutClient{inner: inner, timeout: timeout}
}

func (t *timeoutClient) Complete(ctx context.Context, history conversation.History) (conversation.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	reply, err := t.inner.Complete(ctx, history)
	if err == nil {
		return reply, nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && !IsTransient(err) {
		return conversation.Message{}, NewTransientError(errors.Wrapf(context.DeadlineExceeded, "completion exceeded %s", t.timeout))
	}
	return conversation.Message{}, err
}

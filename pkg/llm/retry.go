package llm

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"

	"github.com/d4l-data4life/go-svc/pkg/logging"
)

const (
	defaultRetryAttempts     = 3
	defaultInitialInterval   = 500 * time.Millisecond
	defaultMaxInterval       = 8 * time.Second
	defaultBackoffMultiplier = 2.0
)

// RetryClient wraps a Client and retries transient completion failures
// with exponential backoff. Non-retryable errors are returned immediately.
type RetryClient struct {
	inner    Client
	attempts int
}

// NewRetryClient wraps the given client. attempts <= 0 falls back to the default.
func NewRetryClient(inner Client, attempts int) *RetryClient {
	if attempts <= 0 {
		attempts = defaultRetryAttempts
	}
	return &RetryClient{inner: inner, attempts: attempts}
}

func (c *RetryClient) newBackOff(ctx context.Context) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = defaultInitialInterval
	bo.MaxInterval = defaultMaxInterval
	bo.Multiplier = defaultBackoffMultiplier
	return backoff.WithContext(backoff.WithMaxRetries(bo, uint64(c.attempts-1)), ctx)
}

// Chat retries the inner Chat call on transient errors
func (c *RetryClient) Chat(ctx context.Context, request ChatRequest) (*ChatResponse, error) {
	var resp *ChatResponse
	operation := func() error {
		var err error
		resp, err = c.inner.Chat(ctx, request)
		if err == nil {
			return nil
		}
		if IsRetryable(err) {
			logging.LogWarningf(err, "Transient completion error, retrying")
			return err
		}
		return backoff.Permanent(err)
	}

	if err := backoff.Retry(operation, c.newBackOff(ctx)); err != nil {
		return nil, errors.Wrap(err, ErrRequestFailed.Error())
	}
	return resp, nil
}

// ChatStream retries establishing the stream. Errors arriving mid-stream
// are passed through untouched because partial output has already been
// delivered to the consumer.
func (c *RetryClient) ChatStream(ctx context.Context, request ChatRequest) (<-chan StreamChunk, error) {
	var stream <-chan StreamChunk
	operation := func() error {
		var err error
		stream, err = c.inner.ChatStream(ctx, request)
		if err == nil {
			return nil
		}
		if IsRetryable(err) {
			logging.LogWarningf(err, "Transient completion stream error, retrying")
			return err
		}
		return backoff.Permanent(err)
	}

	if err := backoff.Retry(operation, c.newBackOff(ctx)); err != nil {
		return nil, errors.Wrap(err, ErrConnectionFailed.Error())
	}
	return stream, nil
}

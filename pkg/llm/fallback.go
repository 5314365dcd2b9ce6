package llm

import (
	"context"

	"github.com/pkg/errors"

	"github.com/d4l-data4life/go-svc/pkg/logging"
)

// FallbackClient tries the primary provider first and switches to the
// fallback provider once the primary has exhausted its retries. Each
// provider keeps its own default model, so requests forward with the
// model field left empty unless the caller pinned one explicitly.
type FallbackClient struct {
	primary  Client
	fallback Client
}

// NewFallbackClient builds a client chain. fallback may be nil, in which
// case primary errors are returned as-is.
func NewFallbackClient(primary, fallback Client) *FallbackClient {
	return &FallbackClient{primary: primary, fallback: fallback}
}

// Chat tries the primary provider, then the fallback
func (c *FallbackClient) Chat(ctx context.Context, request ChatRequest) (*ChatResponse, error) {
	resp, primaryErr := c.primary.Chat(ctx, request)
	if primaryErr == nil {
		return resp, nil
	}
	if c.fallback == nil || ctx.Err() != nil {
		return nil, primaryErr
	}

	logging.LogWarningf(primaryErr, "Primary completion provider failed, switching to fallback")
	resp, fallbackErr := c.fallback.Chat(ctx, request)
	if fallbackErr == nil {
		return resp, nil
	}
	return nil, errors.Wrapf(ErrAllProvidersFailed, "primary: %v, fallback: %v", primaryErr, fallbackErr)
}

// ChatStream tries the primary provider, then the fallback. Only failures
// to establish the stream trigger the fallback; once chunks flow the
// stream belongs to whichever provider produced it.
func (c *FallbackClient) ChatStream(ctx context.Context, request ChatRequest) (<-chan StreamChunk, error) {
	stream, primaryErr := c.primary.ChatStream(ctx, request)
	if primaryErr == nil {
		return stream, nil
	}
	if c.fallback == nil || ctx.Err() != nil {
		return nil, primaryErr
	}

	logging.LogWarningf(primaryErr, "Primary completion provider failed, switching to fallback")
	stream, fallbackErr := c.fallback.ChatStream(ctx, request)
	if fallbackErr == nil {
		return stream, nil
	}
	return nil, errors.Wrapf(ErrAllProvidersFailed, "primary: %v, fallback: %v", primaryErr, fallbackErr)
}

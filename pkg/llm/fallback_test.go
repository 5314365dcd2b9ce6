package llm

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFallbackClient_PrimaryWins(t *testing.T) {
	primary := &scriptedClient{responses: []*ChatResponse{
		{Message: Message{Role: RoleAssistant, Content: "primary"}},
	}}
	fallback := &scriptedClient{}
	client := NewFallbackClient(primary, fallback)

	resp, err := client.Chat(context.Background(), ChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, "primary", resp.Message.Content)
	assert.Zero(t, fallback.calls)
}

func TestFallbackClient_SwitchesOnPrimaryFailure(t *testing.T) {
	primary := &scriptedClient{errs: []error{errors.New("primary down")}}
	fallback := &scriptedClient{responses: []*ChatResponse{
		{Message: Message{Role: RoleAssistant, Content: "fallback"}},
	}}
	client := NewFallbackClient(primary, fallback)

	resp, err := client.Chat(context.Background(), ChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, "fallback", resp.Message.Content)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, fallback.calls)
}

func TestFallbackClient_BothFail(t *testing.T) {
	primary := &scriptedClient{errs: []error{errors.New("primary down")}}
	fallback := &scriptedClient{errs: []error{errors.New("fallback down")}}
	client := NewFallbackClient(primary, fallback)

	_, err := client.Chat(context.Background(), ChatRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAllProvidersFailed)
}

func TestFallbackClient_NilFallback(t *testing.T) {
	primaryErr := errors.New("primary down")
	primary := &scriptedClient{errs: []error{primaryErr}}
	client := NewFallbackClient(primary, nil)

	_, err := client.Chat(context.Background(), ChatRequest{})
	assert.ErrorIs(t, err, primaryErr)
}

func TestFallbackClient_NoSwitchOnCanceledContext(t *testing.T) {
	primary := &scriptedClient{errs: []error{errors.New("primary down")}}
	fallback := &scriptedClient{}
	client := NewFallbackClient(primary, fallback)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Chat(ctx, ChatRequest{})
	require.Error(t, err)
	assert.Zero(t, fallback.calls)
}

func TestFallbackClient_StreamSwitches(t *testing.T) {
	primary := &scriptedClient{errs: []error{errors.New("primary down")}}
	fallback := &scriptedClient{responses: []*ChatResponse{
		{Message: Message{Role: RoleAssistant, Content: "fallback stream"}},
	}}
	client := NewFallbackClient(primary, fallback)

	stream, err := client.ChatStream(context.Background(), ChatRequest{})
	require.NoError(t, err)
	chunk := <-stream
	assert.Equal(t, "fallback stream", chunk.Delta.Content)
}

package agent

import "errors"

// Sentinel errors for agent operations
var (
	// ErrLLMUnavailable indicates no LLM provider could serve the request
	ErrLLMUnavailable = errors.New("LLM service unavailable")

	// ErrMaxRounds indicates the agent reached its round limit
	ErrMaxRounds = errors.New("max rounds reached")

	// ErrDisconnected indicates the client went away mid-conversation
	ErrDisconnected = errors.New("client disconnected")
)

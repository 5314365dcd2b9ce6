package transport

import (
	"context"
	"time"

	"github.com/fikriaf/ordo-backend/pkg/mcp/protocol"
)

// Transport defines the interface for remote tool server transports
type Transport interface {
	// Send sends a JSON-RPC request and waits for a response
	Send(ctx context.Context, request *protocol.JSONRPCRequest) (*protocol.JSONRPCResponse, error)

	// SendNotification sends a JSON-RPC notification (no response expected)
	SendNotification(ctx context.Context, notification *protocol.JSONRPCNotification) error

	// Close closes the transport connection
	Close() error

	// IsConnected returns whether the transport is currently connected
	IsConnected() bool
}

// TransportType defines the type of transport
type TransportType string

const (
	TransportTypeHTTP TransportType = "http"
	TransportTypeSSE  TransportType = "sse"
)

// Config holds transport configuration
type Config struct {
	URL     string
	Headers map[string]string
	Timeout time.Duration

	// ForwardBearer passes the calling user's bearer token from the
	// request context on to the server as the Authorization header
	ForwardBearer bool

	// TLS configuration
	TLSSkipVerify bool
}

// MessageHandler is a function that handles incoming messages
type MessageHandler func(message interface{}) error

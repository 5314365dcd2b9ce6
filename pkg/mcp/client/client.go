package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/fikriaf/ordo-backend/pkg/mcp/protocol"
	"github.com/fikriaf/ordo-backend/pkg/mcp/transport"

	"github.com/d4l-data4life/go-svc/pkg/logging"
)

// Client speaks JSON-RPC with a single remote tool server
type Client struct {
	transport          transport.Transport
	serverInfo         *protocol.Implementation
	serverCapabilities *protocol.ServerCapabilities
	mu                 sync.RWMutex
	initialized        bool
	requestIDCounter   uint64

	// Notification callbacks
	onToolsListChanged func()
}

// ClientConfig holds configuration for creating a client
type ClientConfig struct {
	ClientName    string
	ClientVersion string
	Capabilities  protocol.ClientCapabilities
}

// NewClient creates a new client with the given transport
func NewClient(trans transport.Transport, config ClientConfig) *Client {
	client := &Client{
		transport: trans,
	}

	if sseTrans, ok := trans.(*transport.SSETransport); ok {
		sseTrans.AddNotificationHandler(client.handleNotification)
	}

	return client
}

// Initialize performs the initialization handshake
func (c *Client) Initialize(ctx context.Context, config ClientConfig) error {
	c.mu.Lock()
	if c.initialized {
		c.mu.Unlock()
		return errors.New("client already initialized")
	}
	c.mu.Unlock()

	initRequest := protocol.InitializeRequest{
		ProtocolVersion: protocol.ProtocolVersion,
		Capabilities:    config.Capabilities,
		ClientInfo: protocol.Implementation{
			Name:    config.ClientName,
			Version: config.ClientVersion,
		},
	}

	paramsData, err := json.Marshal(initRequest)
	if err != nil {
		return errors.Wrap(err, "failed to marshal initialize request")
	}

	request := &protocol.JSONRPCRequest{
		JSONRPC: protocol.JSONRPCVersion,
		ID:      c.nextRequestID(),
		Method:  protocol.MethodInitialize,
		Params:  paramsData,
	}

	response, err := c.transport.Send(ctx, request)
	if err != nil {
		return errors.Wrap(err, "initialize request failed")
	}

	var result protocol.InitializeResult
	if err := json.Unmarshal(response.Result, &result); err != nil {
		return errors.Wrap(err, "failed to parse initialize result")
	}

	c.mu.Lock()
	c.serverInfo = &result.ServerInfo
	c.serverCapabilities = &result.Capabilities
	c.initialized = true
	c.mu.Unlock()

	logging.LogDebugf("Tool server client initialized: server=%s version=%s", result.ServerInfo.Name, result.ServerInfo.Version)

	notification := &protocol.JSONRPCNotification{
		JSONRPC: protocol.JSONRPCVersion,
		Method:  protocol.NotificationInitialized,
	}

	if err := c.transport.SendNotification(ctx, notification); err != nil {
		logging.LogWarningf(err, "Failed to send initialized notification")
	}

	return nil
}

// ListTools lists all available tools from the server, following the
// pagination cursor until the server reports the last page
func (c *Client) ListTools(ctx context.Context) ([]protocol.Tool, error) {
	if !c.isInitialized() {
		return nil, errors.New("client not initialized")
	}

	var tools []protocol.Tool
	var cursor *string

	for {
		paramsData, err := json.Marshal(protocol.PaginationParams{Cursor: cursor})
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal list tools params")
		}

		request := &protocol.JSONRPCRequest{
			JSONRPC: protocol.JSONRPCVersion,
			ID:      c.nextRequestID(),
			Method:  protocol.MethodListTools,
			Params:  paramsData,
		}

		response, err := c.transport.Send(ctx, request)
		if err != nil {
			return nil, errors.Wrap(err, "list tools request failed")
		}

		var result protocol.ListToolsResult
		if err := json.Unmarshal(response.Result, &result); err != nil {
			return nil, errors.Wrap(err, "failed to parse list tools result")
		}

		tools = append(tools, result.Tools...)
		if result.NextCursor == nil || *result.NextCursor == "" {
			return tools, nil
		}
		cursor = result.NextCursor
	}
}

// CallTool executes a tool with the given arguments
func (c *Client) CallTool(ctx context.Context, name string, arguments map[string]interface{}) (*protocol.CallToolResult, error) {
	if !c.isInitialized() {
		return nil, errors.New("client not initialized")
	}

	callRequest := protocol.CallToolRequest{
		Name:      name,
		Arguments: arguments,
	}

	paramsData, err := json.Marshal(callRequest)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal call tool request")
	}

	request := &protocol.JSONRPCRequest{
		JSONRPC: protocol.JSONRPCVersion,
		ID:      c.nextRequestID(),
		Method:  protocol.MethodCallTool,
		Params:  paramsData,
	}

	response, err := c.transport.Send(ctx, request)
	if err != nil {
		return nil, errors.Wrap(err, "call tool request failed")
	}

	var result protocol.CallToolResult
	if err := json.Unmarshal(response.Result, &result); err != nil {
		return nil, errors.Wrap(err, "failed to parse call tool result")
	}

	return &result, nil
}

// StartEventStream opens the notification stream when the underlying
// transport supports one. It is a no-op for plain HTTP transports.
func (c *Client) StartEventStream(ctx context.Context) error {
	if sseTrans, ok := c.transport.(*transport.SSETransport); ok {
		return sseTrans.StartEventStream(ctx)
	}
	return nil
}

// Ping sends a ping to check if the server is alive
func (c *Client) Ping(ctx context.Context) error {
	request := &protocol.JSONRPCRequest{
		JSONRPC: protocol.JSONRPCVersion,
		ID:      c.nextRequestID(),
		Method:  protocol.MethodPing,
	}

	_, err := c.transport.Send(ctx, request)
	return err
}

// Close closes the client and its transport
func (c *Client) Close() error {
	return c.transport.Close()
}

// GetServerInfo returns information about the connected server
func (c *Client) GetServerInfo() *protocol.Implementation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverInfo
}

// GetServerCapabilities returns the capabilities of the connected server
func (c *Client) GetServerCapabilities() *protocol.ServerCapabilities {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverCapabilities
}

// SetOnToolsListChanged sets a callback for when the tools list changes
func (c *Client) SetOnToolsListChanged(callback func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onToolsListChanged = callback
}

// handleNotification handles incoming notifications from the server
func (c *Client) handleNotification(message interface{}) error {
	notification, ok := message.(*protocol.JSONRPCNotification)
	if !ok {
		return errors.New("invalid notification type")
	}

	logging.LogDebugf("Received notification: %s", notification.Method)

	c.mu.RLock()
	defer c.mu.RUnlock()

	switch notification.Method {
	case protocol.NotificationToolsListChanged:
		if c.onToolsListChanged != nil {
			go c.onToolsListChanged()
		}
	default:
		logging.LogDebugf("Unknown notification method: %s", notification.Method)
	}

	return nil
}

// isInitialized checks if the client is initialized (thread-safe)
func (c *Client) isInitialized() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.initialized
}

// nextRequestID generates a unique request ID
func (c *Client) nextRequestID() interface{} {
	return fmt.Sprintf("req_%d", atomic.AddUint64(&c.requestIDCounter, 1))
}

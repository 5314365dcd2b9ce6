package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/fikriaf/ordo-backend/pkg/auth"
	"github.com/fikriaf/ordo-backend/pkg/mcp/protocol"

	"github.com/d4l-data4life/go-svc/pkg/logging"
)

const defaultRequestTimeout = 30 * time.Second

// HTTPTransport implements the Transport interface for HTTP-based tool servers
type HTTPTransport struct {
	baseURL       string
	headers       map[string]string
	forwardBearer bool
	client        *http.Client
	mu            sync.Mutex
	connected     bool

	// Session management for servers that issue one on initialize
	sessionID string
}

// NewHTTPTransport creates a new HTTP transport
func NewHTTPTransport(cfg Config) (*HTTPTransport, error) {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultRequestTimeout
	}

	client := &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: cfg.TLSSkipVerify,
			},
		},
	}

	t := &HTTPTransport{
		baseURL:       cfg.URL,
		headers:       cfg.Headers,
		forwardBearer: cfg.ForwardBearer,
		client:        client,
		connected:     true,
	}

	logging.LogDebugf("Created HTTP transport: %s", cfg.URL)

	return t, nil
}

// Send sends a JSON-RPC request and waits for a response
func (t *HTTPTransport) Send(ctx context.Context, request *protocol.JSONRPCRequest) (*protocol.JSONRPCResponse, error) {
	if !t.IsConnected() {
		return nil, errors.New("transport not connected")
	}

	data, err := json.Marshal(request)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal request")
	}

	logging.LogDebugf("Sending tool server request: %s", string(data))

	httpReq, err := t.newRequest(ctx, data)
	if err != nil {
		return nil, err
	}

	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "failed to send HTTP request")
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(httpResp.Body)
		return nil, fmt.Errorf("HTTP error %d: %s", httpResp.StatusCode, string(body))
	}

	// Capture session id if provided on initialize
	if request.Method == protocol.MethodInitialize {
		if sid := httpResp.Header.Get("mcp-session-id"); sid != "" {
			logging.LogDebugf("Captured session id from initialize: %s", sid)
			t.setSessionID(sid)
		}
	}

	respData, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response body")
	}

	logging.LogDebugf("Received tool server response: %s", string(respData))

	// Some servers answer the POST in SSE framing, extract the JSON
	// payload from data: lines in that case
	var response *protocol.JSONRPCResponse
	if strings.Contains(httpResp.Header.Get("Content-Type"), "text/event-stream") {
		response, err = parseSSEJSONRPCResponse(string(respData), request.ID)
		if err != nil {
			return nil, errors.Wrap(err, "failed to parse SSE JSON-RPC response")
		}
	} else {
		response = &protocol.JSONRPCResponse{}
		if err := json.Unmarshal(respData, response); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal response")
		}
	}

	if response.Error != nil {
		return nil, fmt.Errorf("JSON-RPC error %d: %s", response.Error.Code, response.Error.Message)
	}

	return response, nil
}

// SendNotification sends a JSON-RPC notification (no response expected)
func (t *HTTPTransport) SendNotification(ctx context.Context, notification *protocol.JSONRPCNotification) error {
	if !t.IsConnected() {
		return errors.New("transport not connected")
	}

	data, err := json.Marshal(notification)
	if err != nil {
		return errors.Wrap(err, "failed to marshal notification")
	}

	httpReq, err := t.newRequest(ctx, data)
	if err != nil {
		return err
	}

	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		return errors.Wrap(err, "failed to send HTTP notification")
	}
	defer httpResp.Body.Close()

	// Drain response body
	_, _ = io.Copy(io.Discard, httpResp.Body)

	return nil
}

func (t *HTTPTransport) newRequest(ctx context.Context, body []byte) (*http.Request, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create HTTP request")
	}

	httpReq.Header.Set("Content-Type", "application/json")
	for key, value := range t.headers {
		httpReq.Header.Set(key, value)
	}
	if t.forwardBearer {
		if token := auth.BearerTokenFromContext(ctx); token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}
	}
	// Servers may answer with plain JSON or SSE framing
	httpReq.Header.Set("Accept", "application/json, text/event-stream")
	if sid := t.getSessionID(); sid != "" {
		httpReq.Header.Set("mcp-session-id", sid)
	}
	return httpReq, nil
}

// Close closes the transport
func (t *HTTPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.connected {
		return nil
	}
	t.connected = false

	logging.LogDebugf("Closed HTTP transport")
	return nil
}

// IsConnected returns whether the transport is connected
func (t *HTTPTransport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *HTTPTransport) setSessionID(sid string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessionID = sid
}

func (t *HTTPTransport) getSessionID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessionID
}

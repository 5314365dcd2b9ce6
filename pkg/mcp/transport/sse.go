package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/fikriaf/ordo-backend/pkg/mcp/protocol"

	"github.com/d4l-data4life/go-svc/pkg/logging"
)

// SSETransport extends the HTTP transport with a long-lived event stream
// for server-initiated notifications (tool list changes in particular).
// Requests still travel over POST.
type SSETransport struct {
	*HTTPTransport

	sseCancel   context.CancelFunc
	sseResponse *http.Response
	sseMu       sync.Mutex

	notificationHandlers []MessageHandler
	notificationMu       sync.RWMutex
}

// NewSSETransport creates a new SSE transport
func NewSSETransport(cfg Config) (*SSETransport, error) {
	inner, err := NewHTTPTransport(cfg)
	if err != nil {
		return nil, err
	}
	return &SSETransport{HTTPTransport: inner}, nil
}

// AddNotificationHandler adds a handler for server notifications
func (t *SSETransport) AddNotificationHandler(handler MessageHandler) {
	t.notificationMu.Lock()
	defer t.notificationMu.Unlock()
	t.notificationHandlers = append(t.notificationHandlers, handler)
}

// StartEventStream opens the event stream and listens for notifications
// until the transport closes
func (t *SSETransport) StartEventStream(ctx context.Context) error {
	t.sseMu.Lock()
	defer t.sseMu.Unlock()

	if t.sseResponse != nil {
		return errors.New("event stream already started")
	}

	sseURL := strings.TrimSuffix(t.baseURL, "/") + "/sse"

	streamCtx, cancel := context.WithCancel(ctx)

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, sseURL, nil)
	if err != nil {
		cancel()
		return errors.Wrap(err, "failed to create event stream request")
	}

	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	for key, value := range t.headers {
		req.Header.Set(key, value)
	}

	// The stream outlives the client timeout, use a dedicated client
	streamClient := &http.Client{Transport: t.client.Transport}
	resp, err := streamClient.Do(req)
	if err != nil {
		cancel()
		return errors.Wrap(err, "failed to connect to event stream")
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return fmt.Errorf("event stream connection failed with status %d", resp.StatusCode)
	}

	t.sseResponse = resp
	t.sseCancel = cancel

	logging.LogDebugf("Started event stream: %s", sseURL)

	go t.readLoop(resp.Body)

	return nil
}

func (t *SSETransport) readLoop(body io.ReadCloser) {
	defer body.Close()

	reader := bufio.NewReader(body)
	var eventData strings.Builder

	for t.IsConnected() {
		line, err := reader.ReadString('\n')
		if err != nil {
			if err != io.EOF {
				logging.LogWarningf(err, "Error reading event stream")
			}
			return
		}

		line = strings.TrimSpace(line)

		// Empty line signals end of event
		if line == "" {
			if eventData.Len() > 0 {
				t.dispatchEvent(eventData.String())
				eventData.Reset()
			}
			continue
		}

		if strings.HasPrefix(line, "data:") {
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if eventData.Len() > 0 {
				eventData.WriteString("\n")
			}
			eventData.WriteString(data)
		}
	}
}

func (t *SSETransport) dispatchEvent(data string) {
	var notification protocol.JSONRPCNotification
	if err := json.Unmarshal([]byte(data), &notification); err != nil {
		logging.LogDebugf("Ignoring non-notification event: %s", data)
		return
	}

	t.notificationMu.RLock()
	handlers := t.notificationHandlers
	t.notificationMu.RUnlock()

	for _, handler := range handlers {
		if err := handler(&notification); err != nil {
			logging.LogErrorf(err, "Error handling notification: %s", notification.Method)
		}
	}
}

// Close closes the event stream and the underlying transport
func (t *SSETransport) Close() error {
	t.sseMu.Lock()
	if t.sseCancel != nil {
		t.sseCancel()
		t.sseCancel = nil
	}
	if t.sseResponse != nil {
		t.sseResponse.Body.Close()
		t.sseResponse = nil
	}
	t.sseMu.Unlock()

	return t.HTTPTransport.Close()
}

// parseSSEJSONRPCResponse extracts the JSON-RPC response from an SSE-formatted payload.
// It scans for data: lines within SSE events and returns the first JSON object
// that parses into a JSONRPCResponse matching the given request ID (if provided).
func parseSSEJSONRPCResponse(payload string, requestID interface{}) (*protocol.JSONRPCResponse, error) {
	scanner := bufio.NewScanner(strings.NewReader(payload))
	var eventData strings.Builder

	flush := func() (*protocol.JSONRPCResponse, bool) {
		if eventData.Len() == 0 {
			return nil, false
		}
		candidate := eventData.String()
		var resp protocol.JSONRPCResponse
		if err := json.Unmarshal([]byte(candidate), &resp); err == nil {
			if requestID == nil || fmt.Sprint(resp.ID) == fmt.Sprint(requestID) {
				return &resp, true
			}
		}
		eventData.Reset()
		return nil, false
	}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			if resp, ok := flush(); ok {
				return resp, nil
			}
			continue
		}
		if strings.HasPrefix(line, "data:") {
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if eventData.Len() > 0 {
				eventData.WriteString("\n")
			}
			eventData.WriteString(data)
		}
	}

	// Flush any remaining buffered data (in case stream ended without blank line)
	if resp, ok := flush(); ok {
		return resp, nil
	}

	return nil, errors.New("no JSON-RPC response found in SSE payload")
}

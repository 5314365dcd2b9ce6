// Package plugins bundles the locally hosted tool sources. Each plugin
// wraps one family of upstream APIs and exposes its operations through
// the shared tool catalog.
package plugins

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"

	"github.com/fikriaf/ordo-backend/pkg/mcp/protocol"
)

const upstreamTimeout = 30 * time.Second

// newHTTPClient builds the retrying client shared by all plugins.
// Upstream market data APIs rate-limit aggressively, a couple of
// backed-off retries absorbs most of that.
func newHTTPClient() *retryablehttp.Client {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMin = 250 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.HTTPClient.Timeout = upstreamTimeout
	client.Logger = nil
	return client
}

// getJSON performs a GET and returns the raw JSON body
func getJSON(ctx context.Context, client *retryablehttp.Client, rawURL string, headers map[string]string) ([]byte, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build upstream request")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "upstream request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed reading upstream response")
	}
	if resp.StatusCode >= 400 {
		return nil, errors.Errorf("upstream error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

// postJSON performs a POST with a JSON payload and returns the raw JSON body
func postJSON(ctx context.Context, client *retryablehttp.Client, rawURL string, payload interface{}, headers map[string]string) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal upstream payload")
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, rawURL, data)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build upstream request")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "upstream request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed reading upstream response")
	}
	if resp.StatusCode >= 400 {
		return nil, errors.Errorf("upstream error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

// jsonResult wraps a raw JSON body as a successful tool result
func jsonResult(body []byte) *protocol.CallToolResult {
	return &protocol.CallToolResult{Content: protocol.TextContent(string(body))}
}

// withQuery appends query parameters to a base URL
func withQuery(base string, params map[string]string) string {
	values := url.Values{}
	for k, v := range params {
		if v != "" {
			values.Set(k, v)
		}
	}
	if len(values) == 0 {
		return base
	}
	return base + "?" + values.Encode()
}

// stringArg extracts a string argument
func stringArg(args map[string]interface{}, name string) string {
	if v, ok := args[name].(string); ok {
		return v
	}
	return ""
}

// floatArg extracts a numeric argument
func floatArg(args map[string]interface{}, name string) float64 {
	switch v := args[name].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	}
	return 0
}

// intArg extracts an integer argument
func intArg(args map[string]interface{}, name string) int {
	return int(floatArg(args, name))
}

// boolArg extracts a boolean argument
func boolArg(args map[string]interface{}, name string) bool {
	if v, ok := args[name].(bool); ok {
		return v
	}
	return false
}

// unknownTool is the shared error for a bare name no plugin tool matches
func unknownTool(pluginID, name string) error {
	return errors.Errorf("plugin %s has no tool %s", pluginID, name)
}

// formatAmount renders a numeric argument without trailing zeros
func formatAmount(v float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%f", v), "0"), ".")
}

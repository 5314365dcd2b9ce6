package gateway_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fikriaf/ordo-backend/pkg/config"
	"github.com/fikriaf/ordo-backend/pkg/mcp/client"
	"github.com/fikriaf/ordo-backend/pkg/mcp/gateway"
	"github.com/fikriaf/ordo-backend/pkg/mcp/protocol"
)

// toolServer is a scriptable JSON-RPC tool server for tests
type toolServer struct {
	*httptest.Server

	listCalls atomic.Int64
	failing   atomic.Bool
	tools     []protocol.Tool

	mu          sync.Mutex
	listStarted chan struct{}
	listRelease chan struct{}
}

// holdListCalls makes tools/list calls block until release is closed,
// signalling on started when one arrives
func (ts *toolServer) holdListCalls() (started, release chan struct{}) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.listStarted = make(chan struct{}, 1)
	ts.listRelease = make(chan struct{})
	return ts.listStarted, ts.listRelease
}

func newToolServer(t *testing.T) *toolServer {
	ts := &toolServer{
		tools: []protocol.Tool{
			{Name: "get_price", Description: "Get a token price", InputSchema: map[string]interface{}{"type": "object"}},
			{Name: "get_ohlcv", Description: "Get OHLCV candles", InputSchema: map[string]interface{}{"type": "object"}},
		},
	}

	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req protocol.JSONRPCRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		// notifications get an empty ack
		if req.ID == nil {
			w.WriteHeader(http.StatusOK)
			return
		}

		respond := func(result interface{}) {
			raw, err := json.Marshal(result)
			require.NoError(t, err)
			resp := protocol.JSONRPCResponse{
				JSONRPC: protocol.JSONRPCVersion,
				ID:      req.ID,
				Result:  raw,
			}
			w.Header().Set("Content-Type", "application/json")
			require.NoError(t, json.NewEncoder(w).Encode(resp))
		}

		switch req.Method {
		case protocol.MethodInitialize:
			respond(protocol.InitializeResult{
				ProtocolVersion: protocol.ProtocolVersion,
				ServerInfo:      protocol.Implementation{Name: "test-server", Version: "1.0"},
			})
		case protocol.MethodListTools:
			ts.listCalls.Add(1)
			ts.mu.Lock()
			started, release := ts.listStarted, ts.listRelease
			ts.mu.Unlock()
			if started != nil {
				started <- struct{}{}
				<-release
			}
			if ts.failing.Load() {
				http.Error(w, "boom", http.StatusInternalServerError)
				return
			}
			respond(protocol.ListToolsResult{Tools: ts.tools})
		case protocol.MethodCallTool:
			var call protocol.CallToolRequest
			require.NoError(t, json.Unmarshal(req.Params, &call))
			respond(protocol.CallToolResult{Content: protocol.TextContent("result of " + call.Name)})
		default:
			http.Error(w, "unknown method", http.StatusNotFound)
		}
	}))

	t.Cleanup(ts.Server.Close)
	return ts
}

func newTestGateway(ts *toolServer, ttl time.Duration) *gateway.Gateway {
	cfgs := []config.ToolServerConfig{{
		ID:      "market",
		Name:    "Market Data",
		Type:    "http",
		URL:     ts.URL,
		Enabled: true,
	}}
	factory := client.NewFactory("ordo-test", "0.0.1", 5*time.Second)
	return gateway.NewGateway(cfgs, factory, config.GatewayConfig{DiscoveryTTL: ttl})
}

func TestGateway_DiscoveryIsCached(t *testing.T) {
	ts := newToolServer(t)
	gw := newTestGateway(ts, time.Minute)
	defer gw.Close()
	ctx := context.Background()

	tools, err := gw.Tools(ctx, "market")
	require.NoError(t, err)
	assert.Len(t, tools, 2)

	// subsequent reads inside the TTL never hit the server again
	for i := 0; i < 5; i++ {
		_, err := gw.Tools(ctx, "market")
		require.NoError(t, err)
	}
	assert.Equal(t, int64(1), ts.listCalls.Load())
}

func TestGateway_TTLExpiryTriggersRediscovery(t *testing.T) {
	ts := newToolServer(t)
	gw := newTestGateway(ts, 30*time.Millisecond)
	defer gw.Close()
	ctx := context.Background()

	_, err := gw.Tools(ctx, "market")
	require.NoError(t, err)
	assert.Equal(t, int64(1), ts.listCalls.Load())

	time.Sleep(50 * time.Millisecond)

	_, err = gw.Tools(ctx, "market")
	require.NoError(t, err)
	assert.Equal(t, int64(2), ts.listCalls.Load())
}

func TestGateway_InvalidateForcesRefresh(t *testing.T) {
	ts := newToolServer(t)
	gw := newTestGateway(ts, time.Minute)
	defer gw.Close()
	ctx := context.Background()

	_, err := gw.Tools(ctx, "market")
	require.NoError(t, err)

	gw.Invalidate("market")

	_, err = gw.Tools(ctx, "market")
	require.NoError(t, err)
	assert.Equal(t, int64(2), ts.listCalls.Load())
}

func TestGateway_ServesStaleOnFailedRefresh(t *testing.T) {
	ts := newToolServer(t)
	gw := newTestGateway(ts, time.Minute)
	defer gw.Close()
	ctx := context.Background()

	tools, err := gw.Tools(ctx, "market")
	require.NoError(t, err)
	require.Len(t, tools, 2)

	ts.failing.Store(true)
	gw.Invalidate("market")

	// the refresh fails, the last good list is served instead
	tools, err = gw.Tools(ctx, "market")
	require.NoError(t, err)
	assert.Len(t, tools, 2)

	statuses := gw.Status()
	require.Len(t, statuses, 1)
	assert.Equal(t, gateway.ServerStateUnreachable, statuses[0].State)
	assert.NotEmpty(t, statuses[0].LastError)
}

func TestGateway_RefreshInFlightServesStale(t *testing.T) {
	ts := newToolServer(t)
	gw := newTestGateway(ts, time.Minute)
	defer gw.Close()
	ctx := context.Background()

	tools, err := gw.Tools(ctx, "market")
	require.NoError(t, err)
	require.Len(t, tools, 2)

	gw.Invalidate("market")
	started, release := ts.holdListCalls()

	refreshed := make(chan error, 1)
	go func() {
		_, err := gw.Tools(ctx, "market")
		refreshed <- err
	}()
	<-started

	// the refresh is mid-flight, readers get the last good list
	// instead of waiting behind the network trip
	stale, err := gw.Tools(ctx, "market")
	require.NoError(t, err)
	assert.Len(t, stale, 2)

	close(release)
	require.NoError(t, <-refreshed)
}

func TestGateway_NoStaleListMeansError(t *testing.T) {
	ts := newToolServer(t)
	ts.failing.Store(true)
	gw := newTestGateway(ts, time.Minute)
	defer gw.Close()

	_, err := gw.Tools(context.Background(), "market")
	require.Error(t, err)
	assert.ErrorIs(t, err, gateway.ErrDiscoveryFailed)

	statuses := gw.Status()
	require.Len(t, statuses, 1)
	assert.Equal(t, gateway.ServerStateUnreachable, statuses[0].State)
}

func TestGateway_RecoversAfterOutage(t *testing.T) {
	ts := newToolServer(t)
	ts.failing.Store(true)
	gw := newTestGateway(ts, time.Minute)
	defer gw.Close()
	ctx := context.Background()

	_, err := gw.Tools(ctx, "market")
	require.Error(t, err)

	ts.failing.Store(false)

	tools, err := gw.Tools(ctx, "market")
	require.NoError(t, err)
	assert.Len(t, tools, 2)

	statuses := gw.Status()
	require.Len(t, statuses, 1)
	assert.Equal(t, gateway.ServerStateCached, statuses[0].State)
	assert.Empty(t, statuses[0].LastError)
}

func TestGateway_UnknownServer(t *testing.T) {
	ts := newToolServer(t)
	gw := newTestGateway(ts, time.Minute)
	defer gw.Close()

	_, err := gw.Tools(context.Background(), "nope")
	assert.ErrorIs(t, err, gateway.ErrUnknownServer)

	_, err = gw.CallTool(context.Background(), "nope", "get_price", nil)
	assert.ErrorIs(t, err, gateway.ErrUnknownServer)
}

func TestGateway_DisabledServer(t *testing.T) {
	ts := newToolServer(t)
	cfgs := []config.ToolServerConfig{{
		ID:      "market",
		Type:    "http",
		URL:     ts.URL,
		Enabled: false,
	}}
	factory := client.NewFactory("ordo-test", "0.0.1", 5*time.Second)
	gw := gateway.NewGateway(cfgs, factory, config.GatewayConfig{})
	defer gw.Close()

	_, err := gw.Tools(context.Background(), "market")
	assert.ErrorIs(t, err, gateway.ErrServerDisabled)
	assert.Empty(t, gw.ServerIDs())
	assert.Empty(t, gw.AllTools(context.Background()))
}

func TestGateway_CallTool(t *testing.T) {
	ts := newToolServer(t)
	gw := newTestGateway(ts, time.Minute)
	defer gw.Close()

	result, err := gw.CallTool(context.Background(), "market", "get_price", map[string]interface{}{"mint": "SOL"})
	require.NoError(t, err)
	require.Len(t, result.Content, 1)
	assert.Equal(t, "result of get_price", result.Content[0].Text)
	assert.False(t, result.IsError)
}

func TestGateway_StatusBeforeDiscovery(t *testing.T) {
	ts := newToolServer(t)
	gw := newTestGateway(ts, time.Minute)
	defer gw.Close()

	statuses := gw.Status()
	require.Len(t, statuses, 1)
	assert.Equal(t, gateway.ServerStateUnknown, statuses[0].State)
	assert.Zero(t, statuses[0].ToolCount)
	assert.Nil(t, statuses[0].LastRefreshAt)
}

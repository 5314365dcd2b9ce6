package gateway

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/pkg/errors"

	"github.com/fikriaf/ordo-backend/pkg/config"
	"github.com/fikriaf/ordo-backend/pkg/mcp/client"
	"github.com/fikriaf/ordo-backend/pkg/mcp/protocol"
	"github.com/fikriaf/ordo-backend/pkg/mcp/transport"

	"github.com/d4l-data4life/go-svc/pkg/logging"
)

// Sentinel errors for gateway operations
var (
	ErrUnknownServer      = errors.New("unknown tool server")
	ErrServerUnreachable  = errors.New("tool server unreachable")
	ErrDiscoveryFailed    = errors.New("tool discovery failed")
	ErrServerDisabled     = errors.New("tool server disabled")
	ErrInvocationRejected = errors.New("tool invocation rejected by server")
)

// ServerState tracks where a server is in its discovery lifecycle
type ServerState string

const (
	ServerStateUnknown     ServerState = "unknown"
	ServerStateDiscovering ServerState = "discovering"
	ServerStateCached      ServerState = "cached"
	ServerStateUnreachable ServerState = "unreachable"
)

const defaultDiscoveryTTL = 5 * time.Minute

// ServerStatus is a snapshot of one server for the management API
type ServerStatus struct {
	ID            string      `json:"id"`
	Name          string      `json:"name"`
	Type          string      `json:"type"`
	URL           string      `json:"url"`
	Enabled       bool        `json:"enabled"`
	State         ServerState `json:"state"`
	ToolCount     int         `json:"toolCount"`
	LastError     string      `json:"lastError,omitempty"`
	LastRefreshAt *time.Time  `json:"lastRefreshAt,omitempty"`
}

type serverEntry struct {
	cfg    config.ToolServerConfig
	client *client.Client

	// mu serializes discovery and client setup per server so that
	// concurrent callers do not stampede an expired entry
	mu sync.Mutex

	// snapMu guards the lifecycle snapshot below, so status reads and
	// stale fallbacks never wait behind an in-flight refresh
	snapMu        sync.RWMutex
	state         ServerState
	lastGood      []protocol.Tool
	lastErr       error
	lastRefreshAt time.Time
}

// staleTools returns the last good tool list, nil if none exists
func (e *serverEntry) staleTools() []protocol.Tool {
	e.snapMu.RLock()
	defer e.snapMu.RUnlock()
	return e.lastGood
}

// Gateway manages connections to remote tool servers and caches their
// discovered tool lists. Expired entries are re-discovered on demand,
// and the last good list is served when a refresh fails.
type Gateway struct {
	factory *client.Factory
	cache   *gocache.Cache
	ttl     time.Duration

	mu      sync.RWMutex
	servers map[string]*serverEntry
}

// NewGateway builds a gateway over the configured tool servers
func NewGateway(serverConfigs []config.ToolServerConfig, factory *client.Factory, cfg config.GatewayConfig) *Gateway {
	ttl := cfg.DiscoveryTTL
	if ttl <= 0 {
		ttl = defaultDiscoveryTTL
	}

	servers := make(map[string]*serverEntry, len(serverConfigs))
	for _, sc := range serverConfigs {
		servers[sc.ID] = &serverEntry{
			cfg:   sc,
			state: ServerStateUnknown,
		}
	}

	return &Gateway{
		factory: factory,
		cache:   gocache.New(ttl, 2*ttl),
		ttl:     ttl,
		servers: servers,
	}
}

// ServerIDs returns the ids of all enabled servers
func (g *Gateway) ServerIDs() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	ids := make([]string, 0, len(g.servers))
	for id, entry := range g.servers {
		if entry.cfg.Enabled {
			ids = append(ids, id)
		}
	}
	return ids
}

// Tools returns the tool list of one server, from cache when fresh.
// A failed refresh falls back to the last successful list if one exists.
func (g *Gateway) Tools(ctx context.Context, serverID string) ([]protocol.Tool, error) {
	entry, err := g.entry(serverID)
	if err != nil {
		return nil, err
	}
	if !entry.cfg.Enabled {
		return nil, errors.Wrap(ErrServerDisabled, serverID)
	}

	if cached, found := g.cache.Get(serverID); found {
		return cached.([]protocol.Tool), nil
	}

	// When another caller is already mid-refresh, serve the last good
	// list instead of parking this reader behind the network trip
	if !entry.mu.TryLock() {
		if stale := entry.staleTools(); stale != nil {
			return stale, nil
		}
		entry.mu.Lock()
	}
	defer entry.mu.Unlock()

	return g.discover(ctx, entry)
}

// AllTools returns the tool lists of every enabled server. Servers that
// fail discovery and have no stale list to serve are skipped, the
// catalog stays usable when a single backend is down.
func (g *Gateway) AllTools(ctx context.Context) map[string][]protocol.Tool {
	result := make(map[string][]protocol.Tool)
	for _, id := range g.ServerIDs() {
		tools, err := g.Tools(ctx, id)
		if err != nil {
			logging.LogWarningf(err, "Skipping tool server %s", id)
			continue
		}
		result[id] = tools
	}
	return result
}

// CallTool invokes a tool on the given server
func (g *Gateway) CallTool(ctx context.Context, serverID, toolName string, arguments map[string]interface{}) (*protocol.CallToolResult, error) {
	entry, err := g.entry(serverID)
	if err != nil {
		return nil, err
	}
	if !entry.cfg.Enabled {
		return nil, errors.Wrap(ErrServerDisabled, serverID)
	}

	c, err := g.ensureClient(ctx, entry)
	if err != nil {
		return nil, errors.Wrapf(ErrServerUnreachable, "%s: %v", serverID, err)
	}

	result, err := c.CallTool(ctx, toolName, arguments)
	if err != nil {
		return nil, errors.Wrapf(err, "tool call %s on server %s failed", toolName, serverID)
	}
	return result, nil
}

// Invalidate drops the cached tool list of one server so the next read
// triggers a fresh discovery
func (g *Gateway) Invalidate(serverID string) {
	g.cache.Delete(serverID)
	logging.LogDebugf("Invalidated tool cache for server %s", serverID)
}

// InvalidateAll drops every cached tool list
func (g *Gateway) InvalidateAll() {
	g.cache.Flush()
	logging.LogDebugf("Invalidated tool cache for all servers")
}

// Refresh forces a fresh discovery for one server
func (g *Gateway) Refresh(ctx context.Context, serverID string) ([]protocol.Tool, error) {
	g.Invalidate(serverID)
	return g.Tools(ctx, serverID)
}

// Status returns a snapshot of all configured servers
func (g *Gateway) Status() []ServerStatus {
	g.mu.RLock()
	defer g.mu.RUnlock()

	statuses := make([]ServerStatus, 0, len(g.servers))
	for id, entry := range g.servers {
		entry.snapMu.RLock()
		status := ServerStatus{
			ID:        id,
			Name:      entry.cfg.Name,
			Type:      entry.cfg.Type,
			URL:       entry.cfg.URL,
			Enabled:   entry.cfg.Enabled,
			State:     entry.state,
			ToolCount: len(entry.lastGood),
		}
		if entry.lastErr != nil {
			status.LastError = entry.lastErr.Error()
		}
		if !entry.lastRefreshAt.IsZero() {
			t := entry.lastRefreshAt
			status.LastRefreshAt = &t
		}
		entry.snapMu.RUnlock()
		statuses = append(statuses, status)
	}
	return statuses
}

// Close shuts down all server connections
func (g *Gateway) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()

	for id, entry := range g.servers {
		entry.mu.Lock()
		if entry.client != nil {
			if err := entry.client.Close(); err != nil {
				logging.LogWarningf(err, "Failed closing client for server %s", id)
			}
			entry.client = nil
		}
		entry.mu.Unlock()
		entry.setState(ServerStateUnknown)
	}
	g.cache.Flush()
}

func (g *Gateway) entry(serverID string) (*serverEntry, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	entry, ok := g.servers[serverID]
	if !ok {
		return nil, errors.Wrap(ErrUnknownServer, serverID)
	}
	return entry, nil
}

// discover refreshes one server's tool list. The caller holds entry.mu,
// which keeps concurrent refreshes behind a single network trip.
func (g *Gateway) discover(ctx context.Context, entry *serverEntry) ([]protocol.Tool, error) {
	// Another caller may have refreshed while this one waited
	if cached, found := g.cache.Get(entry.cfg.ID); found {
		return cached.([]protocol.Tool), nil
	}

	entry.setState(ServerStateDiscovering)

	c, err := g.ensureClientLocked(ctx, entry)
	if err != nil {
		return g.degrade(entry, errors.Wrapf(ErrServerUnreachable, "%s: %v", entry.cfg.ID, err))
	}

	tools, err := c.ListTools(ctx)
	if err != nil {
		// A dead connection is not worth keeping, the next attempt
		// starts from a fresh handshake
		_ = c.Close()
		entry.client = nil
		return g.degrade(entry, errors.Wrapf(ErrDiscoveryFailed, "%s: %v", entry.cfg.ID, err))
	}

	entry.snapMu.Lock()
	entry.state = ServerStateCached
	entry.lastGood = tools
	entry.lastErr = nil
	entry.lastRefreshAt = time.Now().UTC()
	entry.snapMu.Unlock()
	g.cache.Set(entry.cfg.ID, tools, g.ttl)

	logging.LogDebugf("Discovered %d tools on server %s", len(tools), entry.cfg.ID)
	return tools, nil
}

// degrade records a failed refresh and serves the stale list when available
func (g *Gateway) degrade(entry *serverEntry, err error) ([]protocol.Tool, error) {
	entry.snapMu.Lock()
	entry.state = ServerStateUnreachable
	entry.lastErr = err
	stale := entry.lastGood
	entry.snapMu.Unlock()

	if stale != nil {
		logging.LogWarningf(err, "Serving stale tool list for server %s (%d tools)", entry.cfg.ID, len(stale))
		return stale, nil
	}
	return nil, err
}

func (e *serverEntry) setState(state ServerState) {
	e.snapMu.Lock()
	e.state = state
	e.snapMu.Unlock()
}

func (g *Gateway) ensureClient(ctx context.Context, entry *serverEntry) (*client.Client, error) {
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return g.ensureClientLocked(ctx, entry)
}

// ensureClientLocked lazily connects and initializes the server client.
// Callers must hold entry.mu.
func (g *Gateway) ensureClientLocked(ctx context.Context, entry *serverEntry) (*client.Client, error) {
	if entry.client != nil {
		return entry.client, nil
	}

	c, err := g.factory.CreateClient(entry.cfg)
	if err != nil {
		return nil, err
	}

	if err := c.Initialize(ctx, client.ClientConfig{
		ClientName:    config.Name,
		ClientVersion: config.Version,
	}); err != nil {
		_ = c.Close()
		return nil, err
	}

	// A push-capable server tells us when its tool list changes,
	// drop the cache instead of waiting out the TTL
	serverID := entry.cfg.ID
	c.SetOnToolsListChanged(func() {
		g.Invalidate(serverID)
	})

	if transport.TransportType(entry.cfg.Type) == transport.TransportTypeSSE {
		if err := c.StartEventStream(context.Background()); err != nil {
			logging.LogWarningf(err, "Event stream unavailable for server %s, relying on TTL expiry", serverID)
		}
	}

	entry.client = c
	return c, nil
}

package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/render"

	"github.com/fikriaf/ordo-backend/pkg/mcp/gateway"
	"github.com/fikriaf/ordo-backend/pkg/tools"

	"github.com/d4l-data4life/go-svc/pkg/logging"
)

// ToolServersHandler exposes the tool catalog and the remote server
// discovery state
type ToolServersHandler struct {
	gateway *gateway.Gateway
	catalog *tools.Catalog
}

// NewToolServersHandler creates a new tool servers handler
func NewToolServersHandler(gw *gateway.Gateway, catalog *tools.Catalog) *ToolServersHandler {
	return &ToolServersHandler{
		gateway: gw,
		catalog: catalog,
	}
}

// Routes returns tool server routes
func (h *ToolServersHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/servers", h.ListServers)
	r.Get("/tools", h.ListTools)
	r.Post("/servers/{id}/refresh", h.RefreshServer)

	return r
}

// CatalogToolInfo is the wire form of one catalog entry
type CatalogToolInfo struct {
	Name        string                 `json:"name"`
	Source      string                 `json:"source"`
	Kind        string                 `json:"kind"`
	Description string                 `json:"description,omitempty"`
	InputSchema map[string]interface{} `json:"inputSchema,omitempty"`
}

// ListServers returns the discovery state of all configured tool servers
func (h *ToolServersHandler) ListServers(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.gateway.Status())
}

// ListTools returns the merged tool catalog, plugins and remote servers
// under their qualified names
func (h *ToolServersHandler) ListTools(w http.ResponseWriter, r *http.Request) {
	entries := h.catalog.Entries(r.Context())

	infos := make([]CatalogToolInfo, len(entries))
	for i, entry := range entries {
		infos[i] = CatalogToolInfo{
			Name:        entry.QualifiedName,
			Source:      entry.SourceID,
			Kind:        string(entry.SourceKind),
			Description: entry.Tool.Description,
			InputSchema: entry.Tool.InputSchema,
		}
	}

	render.JSON(w, r, infos)
}

// RefreshServer invalidates a server's cached tool list and rediscovers
// it immediately
func (h *ToolServersHandler) RefreshServer(w http.ResponseWriter, r *http.Request) {
	serverID := chi.URLParam(r, "id")

	refreshed, err := h.gateway.Refresh(r.Context(), serverID)
	if err != nil {
		if errors.Is(err, gateway.ErrUnknownServer) {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, map[string]string{"error": "Unknown tool server"})
			return
		}
		logging.LogErrorf(err, "Failed to refresh tool server %s", serverID)
		render.Status(r, http.StatusBadGateway)
		render.JSON(w, r, map[string]string{"error": "Failed to refresh tool server"})
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"server":    serverID,
		"toolCount": len(refreshed),
	})
}

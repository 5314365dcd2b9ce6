package tools

import (
	"context"

	"github.com/fikriaf/ordo-backend/pkg/mcp/protocol"
)

// Plugin is a locally hosted tool source. Plugins expose the same tool
// definition shape as remote servers so the catalog can merge both.
type Plugin interface {
	// ID is the namespace prefix for all tools of this plugin
	ID() string

	// Description summarizes what the plugin covers
	Description() string

	// Tools lists the tool definitions offered by this plugin
	Tools() []protocol.Tool

	// Call executes one of the plugin's tools by bare name
	Call(ctx context.Context, name string, arguments map[string]interface{}) (*protocol.CallToolResult, error)
}

// SensitivityReporter is implemented by plugins whose tools include
// operations that move funds or mutate external state
type SensitivityReporter interface {
	// SensitiveTools returns the bare names of tools that need a
	// user decision before they run
	SensitiveTools() []string
}

// SourceKind tells local plugin tools apart from remote server tools
type SourceKind string

const (
	SourceKindPlugin SourceKind = "plugin"
	SourceKindRemote SourceKind = "remote"
)

// NamespacedTool is one catalog entry with its fully qualified name
type NamespacedTool struct {
	QualifiedName string        `json:"qualifiedName"`
	SourceID      string        `json:"sourceId"`
	SourceKind    SourceKind    `json:"sourceKind"`
	Tool          protocol.Tool `json:"tool"`
}

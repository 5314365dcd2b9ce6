package tools

import (
	"context"
	"sort"

	"github.com/pkg/errors"

	"github.com/fikriaf/ordo-backend/pkg/llm"
	"github.com/fikriaf/ordo-backend/pkg/mcp/gateway"
	"github.com/fikriaf/ordo-backend/pkg/mcp/protocol"

	"github.com/d4l-data4life/go-svc/pkg/logging"
)

// Sentinel errors for catalog operations
var (
	ErrUnknownTool = errors.New("unknown tool")
)

// Catalog merges locally hosted plugins with remote tool servers into a
// single namespace. Every tool is addressed as <sourceId>__<name>, where
// the source id is a plugin id or a remote server id. A plugin and a
// remote server never share an id, the registry is checked first and a
// clashing remote server is shadowed with a warning.
type Catalog struct {
	registry *Registry
	gateway  *gateway.Gateway
}

// NewCatalog builds a catalog over the given plugin registry and gateway
func NewCatalog(registry *Registry, gw *gateway.Gateway) *Catalog {
	return &Catalog{
		registry: registry,
		gateway:  gw,
	}
}

// Entries returns every tool currently exposed, sorted by qualified name.
// Remote servers that cannot be reached and have no cached list simply
// contribute nothing.
func (c *Catalog) Entries(ctx context.Context) []NamespacedTool {
	var entries []NamespacedTool

	for _, p := range c.registry.All() {
		for _, tool := range p.Tools() {
			tool.InputSchema = NormalizeSchema(tool.InputSchema)
			entries = append(entries, NamespacedTool{
				QualifiedName: llm.QualifiedToolName(p.ID(), tool.Name),
				SourceID:      p.ID(),
				SourceKind:    SourceKindPlugin,
				Tool:          tool,
			})
		}
	}

	for serverID, serverTools := range c.gateway.AllTools(ctx) {
		if c.registry.Has(serverID) {
			logging.LogInfof("Remote server id %s clashes with a plugin, skipping its tools", serverID)
			continue
		}
		for _, tool := range serverTools {
			tool.InputSchema = NormalizeSchema(tool.InputSchema)
			entries = append(entries, NamespacedTool{
				QualifiedName: llm.QualifiedToolName(serverID, tool.Name),
				SourceID:      serverID,
				SourceKind:    SourceKindRemote,
				Tool:          tool,
			})
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].QualifiedName < entries[j].QualifiedName
	})
	return entries
}

// LLMTools returns the catalog in LLM function-calling format
func (c *Catalog) LLMTools(ctx context.Context) []llm.Tool {
	entries := c.Entries(ctx)
	result := make([]llm.Tool, len(entries))
	for i, entry := range entries {
		result[i] = llm.ConvertRemoteToolToLLMTool(entry.Tool, entry.SourceID)
	}
	return result
}

// Lookup resolves a qualified name to its catalog entry
func (c *Catalog) Lookup(ctx context.Context, qualifiedName string) (*NamespacedTool, error) {
	sourceID, toolName, ok := llm.SplitQualifiedToolName(qualifiedName)
	if !ok {
		return nil, errors.Wrap(ErrUnknownTool, qualifiedName)
	}

	if p, err := c.registry.Get(sourceID); err == nil {
		for _, tool := range p.Tools() {
			if tool.Name == toolName {
				tool.InputSchema = NormalizeSchema(tool.InputSchema)
				return &NamespacedTool{
					QualifiedName: qualifiedName,
					SourceID:      sourceID,
					SourceKind:    SourceKindPlugin,
					Tool:          tool,
				}, nil
			}
		}
		return nil, errors.Wrap(ErrUnknownTool, qualifiedName)
	}

	serverTools, err := c.gateway.Tools(ctx, sourceID)
	if err != nil {
		return nil, errors.Wrap(ErrUnknownTool, qualifiedName)
	}
	for _, tool := range serverTools {
		if tool.Name == toolName {
			tool.InputSchema = NormalizeSchema(tool.InputSchema)
			return &NamespacedTool{
				QualifiedName: qualifiedName,
				SourceID:      sourceID,
				SourceKind:    SourceKindRemote,
				Tool:          tool,
			}, nil
		}
	}
	return nil, errors.Wrap(ErrUnknownTool, qualifiedName)
}

// Execute validates and coerces the arguments against the tool's schema,
// then dispatches the invocation to its source. Validation failures and
// unknown tools come back as errors, the caller decides how to surface
// them to the model.
func (c *Catalog) Execute(ctx context.Context, qualifiedName string, arguments map[string]interface{}) (*protocol.CallToolResult, error) {
	entry, err := c.Lookup(ctx, qualifiedName)
	if err != nil {
		return nil, err
	}

	arguments = CoerceArguments(entry.Tool.InputSchema, arguments)
	if err := ValidateArguments(entry.Tool.InputSchema, arguments); err != nil {
		return nil, err
	}

	_, toolName, _ := llm.SplitQualifiedToolName(qualifiedName)

	switch entry.SourceKind {
	case SourceKindPlugin:
		p, err := c.registry.Get(entry.SourceID)
		if err != nil {
			return nil, err
		}
		return p.Call(ctx, toolName, arguments)
	default:
		return c.gateway.CallTool(ctx, entry.SourceID, toolName, arguments)
	}
}

// IsSensitive reports whether a tool needs a user decision before it
// runs, based on the plugin's own declaration. Remote tools carry no
// such declaration, the policy layer decides for them by name.
func (c *Catalog) IsSensitive(qualifiedName string) bool {
	sourceID, toolName, ok := llm.SplitQualifiedToolName(qualifiedName)
	if !ok {
		return false
	}
	p, err := c.registry.Get(sourceID)
	if err != nil {
		return false
	}
	reporter, ok := p.(SensitivityReporter)
	if !ok {
		return false
	}
	for _, name := range reporter.SensitiveTools() {
		if name == toolName {
			return true
		}
	}
	return false
}

// Invalidate drops the cached remote list of one server
func (c *Catalog) Invalidate(serverID string) {
	c.gateway.Invalidate(serverID)
}

package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fikriaf/ordo-backend/pkg/mcp/protocol"
)

const toolNameSeparator = "__"

// QualifiedToolName returns the canonical tool identifier (<serverId>__<tool>)
func QualifiedToolName(serverID, toolName string) string {
	return fmt.Sprintf("%s%s%s", serverID, toolNameSeparator, toolName)
}

// SplitQualifiedToolName splits a qualified name into server id and bare
// tool name. The server id never contains the separator, so the split
// happens at the first occurrence.
func SplitQualifiedToolName(qualified string) (serverID, toolName string, ok bool) {
	serverID, toolName, ok = strings.Cut(qualified, toolNameSeparator)
	if !ok || serverID == "" || toolName == "" {
		return "", "", false
	}
	return serverID, toolName, true
}

// ConvertRemoteToolToLLMTool converts a tool definition to LLM function format
func ConvertRemoteToolToLLMTool(remoteTool protocol.Tool, serverID string) Tool {
	// Clone schema (don't add "strict" as it confuses some models)
	parameters := cloneMap(remoteTool.InputSchema)

	return Tool{
		Type: ToolTypeFunction,
		Function: ToolFunction{
			Name:        QualifiedToolName(serverID, remoteTool.Name),
			Description: remoteTool.Description,
			Parameters:  parameters,
		},
	}
}

// ConvertContentToString converts a tool result content array to a single string
func ConvertContentToString(contents []protocol.Content) string {
	if len(contents) == 0 {
		return ""
	}

	result := ""
	for i, content := range contents {
		if i > 0 {
			result += "\n"
		}
		result += content.Text
	}
	return result
}

// cloneMap performs a deep copy of a generic map to avoid mutating original schemas
func cloneMap(src map[string]interface{}) map[string]interface{} {
	if src == nil {
		return nil
	}
	// Use JSON round-trip for a safe deep copy of arbitrary structures
	b, _ := json.Marshal(src)
	var dst map[string]interface{}
	_ = json.Unmarshal(b, &dst)
	if dst == nil {
		dst = make(map[string]interface{})
	}
	return dst
}

package plugins

import (
	"context"
	"strconv"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/spf13/viper"

	"github.com/fikriaf/ordo-backend/pkg/mcp/protocol"
	"github.com/fikriaf/ordo-backend/pkg/tools"
)

// SearchPlugin exposes web search backed by the Brave Search API, for
// questions the other tools cannot answer from chain data
type SearchPlugin struct {
	client  *retryablehttp.Client
	baseURL string
	apiKey  string
}

// NewSearchPlugin builds the search plugin from viper configuration
func NewSearchPlugin() *SearchPlugin {
	return &SearchPlugin{
		client:  newHTTPClient(),
		baseURL: viper.GetString("BRAVE_BASE_URL"),
		apiKey:  viper.GetString("BRAVE_API_KEY"),
	}
}

// ID returns the plugin namespace
func (p *SearchPlugin) ID() string { return "search" }

// Description summarizes the plugin
func (p *SearchPlugin) Description() string {
	return "Web search with source citations"
}

// Tools lists the search tool definitions
func (p *SearchPlugin) Tools() []protocol.Tool {
	return []protocol.Tool{
		{
			Name:        "web_search",
			Description: "Search the web and return titles, URLs and snippets",
			InputSchema: tools.ObjectSchema(map[string]interface{}{
				"query": tools.Property("string", "Search query"),
				"count": tools.Property("integer", "Number of results to return, default 5"),
			}, "query"),
		},
	}
}

// Call dispatches one search tool by bare name
func (p *SearchPlugin) Call(ctx context.Context, name string, args map[string]interface{}) (*protocol.CallToolResult, error) {
	switch name {
	case "web_search":
		return p.webSearch(ctx, args)
	default:
		return nil, unknownTool(p.ID(), name)
	}
}

func (p *SearchPlugin) webSearch(ctx context.Context, args map[string]interface{}) (*protocol.CallToolResult, error) {
	count := intArg(args, "count")
	if count <= 0 {
		count = 5
	}
	u := withQuery(p.baseURL+"/res/v1/web/search", map[string]string{
		"q":     stringArg(args, "query"),
		"count": strconv.Itoa(count),
	})
	body, err := getJSON(ctx, p.client, u, map[string]string{
		"X-Subscription-Token": p.apiKey,
	})
	if err != nil {
		return nil, err
	}
	return jsonResult(body), nil
}

package tools

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fikriaf/ordo-backend/pkg/config"
	"github.com/fikriaf/ordo-backend/pkg/mcp/client"
	"github.com/fikriaf/ordo-backend/pkg/mcp/gateway"
	"github.com/fikriaf/ordo-backend/pkg/mcp/protocol"
)

func emptyGateway() *gateway.Gateway {
	factory := client.NewFactory("ordo-test", "0.0.1", time.Second)
	return gateway.NewGateway(nil, factory, config.GatewayConfig{})
}

func walletStub() *stubPlugin {
	return &stubPlugin{
		id: "wallet",
		tools: []protocol.Tool{
			{
				Name:        "get_balance",
				Description: "Get a wallet balance",
				InputSchema: ObjectSchema(map[string]interface{}{
					"address": Property("string", ""),
				}, "address"),
			},
			{
				Name:        "transfer",
				Description: "Transfer SOL",
				InputSchema: ObjectSchema(map[string]interface{}{
					"to":         Property("string", ""),
					"amount_sol": Property("number", ""),
				}, "to", "amount_sol"),
			},
		},
		sensitive: []string{"transfer"},
	}
}

func TestCatalog_EntriesAreNamespacedAndSorted(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(walletStub()))
	require.NoError(t, registry.Register(&stubPlugin{
		id:    "defi",
		tools: []protocol.Tool{{Name: "get_apy"}},
	}))
	catalog := NewCatalog(registry, emptyGateway())

	entries := catalog.Entries(context.Background())
	require.Len(t, entries, 3)
	assert.Equal(t, "defi__get_apy", entries[0].QualifiedName)
	assert.Equal(t, "wallet__get_balance", entries[1].QualifiedName)
	assert.Equal(t, "wallet__transfer", entries[2].QualifiedName)

	for _, entry := range entries {
		assert.Equal(t, SourceKindPlugin, entry.SourceKind)
		// schemas come back normalized, never nil
		assert.NotNil(t, entry.Tool.InputSchema)
	}
}

func TestCatalog_LLMTools(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(walletStub()))
	catalog := NewCatalog(registry, emptyGateway())

	llmTools := catalog.LLMTools(context.Background())
	require.Len(t, llmTools, 2)
	assert.Equal(t, "function", llmTools[0].Type)
	assert.Equal(t, "wallet__get_balance", llmTools[0].Function.Name)
	assert.Equal(t, "Get a wallet balance", llmTools[0].Function.Description)
}

func TestCatalog_Lookup(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(walletStub()))
	catalog := NewCatalog(registry, emptyGateway())
	ctx := context.Background()

	entry, err := catalog.Lookup(ctx, "wallet__get_balance")
	require.NoError(t, err)
	assert.Equal(t, "wallet", entry.SourceID)
	assert.Equal(t, "get_balance", entry.Tool.Name)

	_, err = catalog.Lookup(ctx, "wallet__nope")
	assert.ErrorIs(t, err, ErrUnknownTool)

	_, err = catalog.Lookup(ctx, "unknownserver__tool")
	assert.ErrorIs(t, err, ErrUnknownTool)

	// names without a namespace separator are never valid
	_, err = catalog.Lookup(ctx, "get_balance")
	assert.ErrorIs(t, err, ErrUnknownTool)
}

func TestCatalog_Execute(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(walletStub()))
	catalog := NewCatalog(registry, emptyGateway())

	result, err := catalog.Execute(context.Background(), "wallet__get_balance", map[string]interface{}{
		"address": "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin",
	})
	require.NoError(t, err)
	require.Len(t, result.Content, 1)
	assert.Equal(t, "called get_balance", result.Content[0].Text)
}

func TestCatalog_ExecuteValidatesArguments(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(walletStub()))
	catalog := NewCatalog(registry, emptyGateway())

	_, err := catalog.Execute(context.Background(), "wallet__get_balance", map[string]interface{}{})
	assert.ErrorIs(t, err, ErrInvalidArguments)
}

func TestCatalog_ExecuteCoercesArguments(t *testing.T) {
	registry := NewRegistry()
	plugin := walletStub()
	require.NoError(t, registry.Register(plugin))
	catalog := NewCatalog(registry, emptyGateway())

	// amount arrives as a string, the schema wants a number
	_, err := catalog.Execute(context.Background(), "wallet__transfer", map[string]interface{}{
		"to":         "somewhere",
		"amount_sol": "1.5",
	})
	assert.NoError(t, err)
}

func TestCatalog_ExecuteUnknownTool(t *testing.T) {
	catalog := NewCatalog(NewRegistry(), emptyGateway())

	_, err := catalog.Execute(context.Background(), "wallet__get_balance", nil)
	assert.ErrorIs(t, err, ErrUnknownTool)
}

func TestCatalog_IsSensitive(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(walletStub()))
	require.NoError(t, registry.Register(&stubPlugin{
		id:    "defi",
		tools: []protocol.Tool{{Name: "get_apy"}},
	}))
	catalog := NewCatalog(registry, emptyGateway())

	assert.True(t, catalog.IsSensitive("wallet__transfer"))
	assert.False(t, catalog.IsSensitive("wallet__get_balance"))
	// an empty sensitivity list never gates
	assert.False(t, catalog.IsSensitive("defi__get_apy"))
	assert.False(t, catalog.IsSensitive("not-namespaced"))
	assert.False(t, catalog.IsSensitive("unknown__tool"))
}

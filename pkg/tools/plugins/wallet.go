package plugins

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/spf13/viper"

	"github.com/fikriaf/ordo-backend/pkg/mcp/protocol"
	"github.com/fikriaf/ordo-backend/pkg/tools"
)

// WalletPlugin exposes Solana wallet operations backed by the Helius API
type WalletPlugin struct {
	client  *retryablehttp.Client
	baseURL string
	rpcURL  string
	apiKey  string
}

// NewWalletPlugin builds the wallet plugin from viper configuration
func NewWalletPlugin() *WalletPlugin {
	return &WalletPlugin{
		client:  newHTTPClient(),
		baseURL: viper.GetString("HELIUS_BASE_URL"),
		rpcURL:  viper.GetString("HELIUS_RPC_URL"),
		apiKey:  viper.GetString("HELIUS_API_KEY"),
	}
}

// ID returns the plugin namespace
func (p *WalletPlugin) ID() string { return "wallet" }

// Description summarizes the plugin
func (p *WalletPlugin) Description() string {
	return "Solana wallet portfolio, balances, history and transfers"
}

// SensitiveTools lists the operations that need a user decision
func (p *WalletPlugin) SensitiveTools() []string {
	return []string{"build_transfer_transaction"}
}

// Tools lists the wallet tool definitions
func (p *WalletPlugin) Tools() []protocol.Tool {
	return []protocol.Tool{
		{
			Name:        "get_wallet_portfolio",
			Description: "Get the full token portfolio of a Solana wallet including native SOL",
			InputSchema: tools.ObjectSchema(map[string]interface{}{
				"address": tools.Property("string", "Base58 wallet address"),
			}, "address"),
		},
		{
			Name:        "get_token_balances",
			Description: "Get SPL token balances of a wallet, optionally filtered to one mint",
			InputSchema: tools.ObjectSchema(map[string]interface{}{
				"address": tools.Property("string", "Base58 wallet address"),
				"mint":    tools.Property("string", "Optional token mint to filter on"),
			}, "address"),
		},
		{
			Name:        "get_transaction_history",
			Description: "Get recent transactions of a wallet",
			InputSchema: tools.ObjectSchema(map[string]interface{}{
				"address": tools.Property("string", "Base58 wallet address"),
				"limit":   tools.Property("integer", "Number of transactions to return, default 10"),
			}, "address"),
		},
		{
			Name:        "get_priority_fee_estimate",
			Description: "Estimate the priority fee for a transaction touching the given accounts",
			InputSchema: tools.ObjectSchema(map[string]interface{}{
				"accountKeys": map[string]interface{}{
					"type":        "array",
					"items":       tools.Property("string", ""),
					"description": "Accounts the transaction will touch",
				},
			}, "accountKeys"),
		},
		{
			Name:        "build_transfer_transaction",
			Description: "Build an unsigned SOL transfer transaction for the user to sign",
			InputSchema: tools.ObjectSchema(map[string]interface{}{
				"from":       tools.Property("string", "Sender wallet address"),
				"to":         tools.Property("string", "Recipient wallet address"),
				"amount_sol": tools.Property("number", "Amount in SOL"),
			}, "from", "to", "amount_sol"),
		},
	}
}

// Call dispatches one wallet tool by bare name
func (p *WalletPlugin) Call(ctx context.Context, name string, args map[string]interface{}) (*protocol.CallToolResult, error) {
	switch name {
	case "get_wallet_portfolio":
		return p.getBalances(ctx, stringArg(args, "address"), "")
	case "get_token_balances":
		return p.getBalances(ctx, stringArg(args, "address"), stringArg(args, "mint"))
	case "get_transaction_history":
		return p.getTransactionHistory(ctx, args)
	case "get_priority_fee_estimate":
		return p.getPriorityFeeEstimate(ctx, args)
	case "build_transfer_transaction":
		return p.buildTransferTransaction(args)
	default:
		return nil, unknownTool(p.ID(), name)
	}
}

func (p *WalletPlugin) getBalances(ctx context.Context, address, mint string) (*protocol.CallToolResult, error) {
	u := withQuery(fmt.Sprintf("%s/v0/addresses/%s/balances", p.baseURL, address), map[string]string{
		"api-key": p.apiKey,
	})
	body, err := getJSON(ctx, p.client, u, nil)
	if err != nil {
		return nil, err
	}
	if mint == "" {
		return jsonResult(body), nil
	}

	// Filter to the requested mint so the model is not flooded with
	// the entire portfolio
	var parsed struct {
		Tokens []json.RawMessage `json:"tokens"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return jsonResult(body), nil
	}
	filtered := make([]json.RawMessage, 0, 1)
	for _, raw := range parsed.Tokens {
		var token struct {
			Mint string `json:"mint"`
		}
		if json.Unmarshal(raw, &token) == nil && token.Mint == mint {
			filtered = append(filtered, raw)
		}
	}
	out, _ := json.Marshal(map[string]interface{}{"mint": mint, "tokens": filtered})
	return jsonResult(out), nil
}

func (p *WalletPlugin) getTransactionHistory(ctx context.Context, args map[string]interface{}) (*protocol.CallToolResult, error) {
	limit := intArg(args, "limit")
	if limit <= 0 {
		limit = 10
	}
	u := withQuery(fmt.Sprintf("%s/v0/addresses/%s/transactions", p.baseURL, stringArg(args, "address")), map[string]string{
		"api-key": p.apiKey,
		"limit":   strconv.Itoa(limit),
	})
	body, err := getJSON(ctx, p.client, u, nil)
	if err != nil {
		return nil, err
	}
	return jsonResult(body), nil
}

func (p *WalletPlugin) getPriorityFeeEstimate(ctx context.Context, args map[string]interface{}) (*protocol.CallToolResult, error) {
	accountKeys, _ := args["accountKeys"].([]interface{})
	payload := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      "fee-estimate",
		"method":  "getPriorityFeeEstimate",
		"params": []interface{}{
			map[string]interface{}{
				"accountKeys": accountKeys,
				"options":     map[string]interface{}{"includeAllPriorityFeeLevels": true},
			},
		},
	}
	u := withQuery(p.rpcURL, map[string]string{"api-key": p.apiKey})
	body, err := postJSON(ctx, p.client, u, payload, nil)
	if err != nil {
		return nil, err
	}
	return jsonResult(body), nil
}

// buildTransferTransaction assembles the unsigned transfer description.
// Signing never happens server-side, the wallet owner signs client-side.
func (p *WalletPlugin) buildTransferTransaction(args map[string]interface{}) (*protocol.CallToolResult, error) {
	amount := floatArg(args, "amount_sol")
	out, _ := json.Marshal(map[string]interface{}{
		"type":       "transfer",
		"from":       stringArg(args, "from"),
		"to":         stringArg(args, "to"),
		"amountSol":  formatAmount(amount),
		"lamports":   int64(amount * 1e9),
		"unsigned":   true,
		"signWith":   "owner-wallet",
		"validUntil": "next-blockhash",
	})
	return jsonResult(out), nil
}

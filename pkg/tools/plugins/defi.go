package plugins

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/spf13/viper"

	"github.com/fikriaf/ordo-backend/pkg/mcp/protocol"
	"github.com/fikriaf/ordo-backend/pkg/tools"
)

// DefiPlugin exposes price discovery, swaps, lending and staking
// operations across Birdeye, Jupiter, Lulo, Sanctum and Drift
type DefiPlugin struct {
	client     *retryablehttp.Client
	birdeyeURL string
	birdeyeKey string
	jupiterURL string
	luloURL    string
	sanctumURL string
	driftURL   string
}

// NewDefiPlugin builds the defi plugin from viper configuration
func NewDefiPlugin() *DefiPlugin {
	return &DefiPlugin{
		client:     newHTTPClient(),
		birdeyeURL: viper.GetString("BIRDEYE_BASE_URL"),
		birdeyeKey: viper.GetString("BIRDEYE_API_KEY"),
		jupiterURL: viper.GetString("JUPITER_BASE_URL"),
		luloURL:    viper.GetString("LULO_BASE_URL"),
		sanctumURL: viper.GetString("SANCTUM_BASE_URL"),
		driftURL:   viper.GetString("DRIFT_BASE_URL"),
	}
}

// ID returns the plugin namespace
func (p *DefiPlugin) ID() string { return "defi" }

// Description summarizes the plugin
func (p *DefiPlugin) Description() string {
	return "Token prices, swaps, lending, staking and perps"
}

// SensitiveTools lists the operations that need a user decision
func (p *DefiPlugin) SensitiveTools() []string {
	return []string{"jupiter_execute_swap", "lulo_lend", "sanctum_stake", "drift_open_position"}
}

// Tools lists the defi tool definitions
func (p *DefiPlugin) Tools() []protocol.Tool {
	return []protocol.Tool{
		{
			Name:        "get_token_price_birdeye",
			Description: "Get the current USD price of a token from Birdeye",
			InputSchema: tools.ObjectSchema(map[string]interface{}{
				"mint": tools.Property("string", "Token mint address"),
			}, "mint"),
		},
		{
			Name:        "jupiter_swap_quote",
			Description: "Get a swap quote from Jupiter for a token pair",
			InputSchema: tools.ObjectSchema(map[string]interface{}{
				"input_mint":   tools.Property("string", "Mint of the token to sell"),
				"output_mint":  tools.Property("string", "Mint of the token to buy"),
				"amount":       tools.Property("integer", "Input amount in base units"),
				"slippage_bps": tools.Property("integer", "Allowed slippage in basis points, default 50"),
			}, "input_mint", "output_mint", "amount"),
		},
		{
			Name:        "jupiter_execute_swap",
			Description: "Build the swap transaction for a previously fetched Jupiter quote",
			InputSchema: tools.ObjectSchema(map[string]interface{}{
				"quote":       tools.Property("object", "The quote object returned by jupiter_swap_quote"),
				"user_wallet": tools.Property("string", "Wallet that will sign the swap"),
			}, "quote", "user_wallet"),
		},
		{
			Name:        "lulo_get_rates",
			Description: "Get current lending rates from Lulo",
			InputSchema: tools.ObjectSchema(map[string]interface{}{
				"mint": tools.Property("string", "Optional token mint to filter on"),
			}),
		},
		{
			Name:        "lulo_lend",
			Description: "Deposit tokens into Lulo lending",
			InputSchema: tools.ObjectSchema(map[string]interface{}{
				"mint":   tools.Property("string", "Token mint to lend"),
				"amount": tools.Property("number", "Amount in token units"),
				"owner":  tools.Property("string", "Wallet address of the depositor"),
			}, "mint", "amount", "owner"),
		},
		{
			Name:        "sanctum_stake",
			Description: "Stake SOL into a Sanctum LST",
			InputSchema: tools.ObjectSchema(map[string]interface{}{
				"lst":        tools.Property("string", "Target liquid staking token symbol"),
				"amount_sol": tools.Property("number", "Amount of SOL to stake"),
				"owner":      tools.Property("string", "Wallet address of the staker"),
			}, "lst", "amount_sol", "owner"),
		},
		{
			Name:        "drift_get_positions",
			Description: "Get open Drift perp positions of a wallet",
			InputSchema: tools.ObjectSchema(map[string]interface{}{
				"owner": tools.Property("string", "Wallet address"),
			}, "owner"),
		},
		{
			Name:        "drift_open_position",
			Description: "Open a perp position on Drift",
			InputSchema: tools.ObjectSchema(map[string]interface{}{
				"market":     tools.Property("string", "Perp market symbol, e.g. SOL-PERP"),
				"direction":  tools.EnumProperty("Position direction", "long", "short"),
				"amount_usd": tools.Property("number", "Position size in USD"),
				"owner":      tools.Property("string", "Wallet address"),
			}, "market", "direction", "amount_usd", "owner"),
		},
	}
}

// Call dispatches one defi tool by bare name
func (p *DefiPlugin) Call(ctx context.Context, name string, args map[string]interface{}) (*protocol.CallToolResult, error) {
	switch name {
	case "get_token_price_birdeye":
		return p.getTokenPrice(ctx, args)
	case "jupiter_swap_quote":
		return p.jupiterQuote(ctx, args)
	case "jupiter_execute_swap":
		return p.jupiterSwap(ctx, args)
	case "lulo_get_rates":
		return p.luloRates(ctx, args)
	case "lulo_lend":
		return p.luloLend(ctx, args)
	case "sanctum_stake":
		return p.sanctumStake(ctx, args)
	case "drift_get_positions":
		return p.driftPositions(ctx, args)
	case "drift_open_position":
		return p.driftOpenPosition(ctx, args)
	default:
		return nil, unknownTool(p.ID(), name)
	}
}

func (p *DefiPlugin) birdeyeHeaders() map[string]string {
	return map[string]string{"X-API-KEY": p.birdeyeKey, "x-chain": "solana"}
}

func (p *DefiPlugin) getTokenPrice(ctx context.Context, args map[string]interface{}) (*protocol.CallToolResult, error) {
	u := withQuery(p.birdeyeURL+"/defi/price", map[string]string{
		"address": stringArg(args, "mint"),
	})
	body, err := getJSON(ctx, p.client, u, p.birdeyeHeaders())
	if err != nil {
		return nil, err
	}
	return jsonResult(body), nil
}

func (p *DefiPlugin) jupiterQuote(ctx context.Context, args map[string]interface{}) (*protocol.CallToolResult, error) {
	slippage := intArg(args, "slippage_bps")
	if slippage <= 0 {
		slippage = 50
	}
	u := withQuery(p.jupiterURL+"/v6/quote", map[string]string{
		"inputMint":   stringArg(args, "input_mint"),
		"outputMint":  stringArg(args, "output_mint"),
		"amount":      fmt.Sprintf("%d", int64(floatArg(args, "amount"))),
		"slippageBps": fmt.Sprintf("%d", slippage),
	})
	body, err := getJSON(ctx, p.client, u, nil)
	if err != nil {
		return nil, err
	}
	return jsonResult(body), nil
}

func (p *DefiPlugin) jupiterSwap(ctx context.Context, args map[string]interface{}) (*protocol.CallToolResult, error) {
	payload := map[string]interface{}{
		"quoteResponse":    args["quote"],
		"userPublicKey":    stringArg(args, "user_wallet"),
		"wrapAndUnwrapSol": true,
	}
	body, err := postJSON(ctx, p.client, p.jupiterURL+"/v6/swap", payload, nil)
	if err != nil {
		return nil, err
	}
	return jsonResult(body), nil
}

func (p *DefiPlugin) luloRates(ctx context.Context, args map[string]interface{}) (*protocol.CallToolResult, error) {
	u := withQuery(p.luloURL+"/v1/rates.getRates", map[string]string{
		"mint": stringArg(args, "mint"),
	})
	body, err := getJSON(ctx, p.client, u, nil)
	if err != nil {
		return nil, err
	}
	return jsonResult(body), nil
}

func (p *DefiPlugin) luloLend(ctx context.Context, args map[string]interface{}) (*protocol.CallToolResult, error) {
	payload := map[string]interface{}{
		"mintAddress": stringArg(args, "mint"),
		"amount":      floatArg(args, "amount"),
		"owner":       stringArg(args, "owner"),
	}
	body, err := postJSON(ctx, p.client, p.luloURL+"/v1/generate.transactions.deposit", payload, nil)
	if err != nil {
		return nil, err
	}
	return jsonResult(body), nil
}

func (p *DefiPlugin) sanctumStake(ctx context.Context, args map[string]interface{}) (*protocol.CallToolResult, error) {
	payload := map[string]interface{}{
		"lst":       stringArg(args, "lst"),
		"amountSol": floatArg(args, "amount_sol"),
		"signer":    stringArg(args, "owner"),
	}
	body, err := postJSON(ctx, p.client, p.sanctumURL+"/v1/swap", payload, nil)
	if err != nil {
		return nil, err
	}
	return jsonResult(body), nil
}

func (p *DefiPlugin) driftPositions(ctx context.Context, args map[string]interface{}) (*protocol.CallToolResult, error) {
	u := withQuery(p.driftURL+"/positions", map[string]string{
		"owner": stringArg(args, "owner"),
	})
	body, err := getJSON(ctx, p.client, u, nil)
	if err != nil {
		return nil, err
	}
	return jsonResult(body), nil
}

// driftOpenPosition builds the unsigned order payload, the wallet owner
// signs client-side
func (p *DefiPlugin) driftOpenPosition(ctx context.Context, args map[string]interface{}) (*protocol.CallToolResult, error) {
	out, _ := json.Marshal(map[string]interface{}{
		"type":      "drift_perp_order",
		"market":    stringArg(args, "market"),
		"direction": stringArg(args, "direction"),
		"amountUsd": floatArg(args, "amount_usd"),
		"owner":     stringArg(args, "owner"),
		"unsigned":  true,
	})
	return jsonResult(out), nil
}

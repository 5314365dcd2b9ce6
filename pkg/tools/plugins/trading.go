package plugins

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/fikriaf/ordo-backend/pkg/mcp/protocol"
	"github.com/fikriaf/ordo-backend/pkg/tools"
)

// TradingPlugin exposes market analysis, risk metrics, research and
// fiat onramp operations
type TradingPlugin struct {
	client     *retryablehttp.Client
	birdeyeURL string
	birdeyeKey string
	messariURL string
	messariKey string
	onrampURL  string
	onrampKey  string
}

// NewTradingPlugin builds the trading plugin from viper configuration
func NewTradingPlugin() *TradingPlugin {
	return &TradingPlugin{
		client:     newHTTPClient(),
		birdeyeURL: viper.GetString("BIRDEYE_BASE_URL"),
		birdeyeKey: viper.GetString("BIRDEYE_API_KEY"),
		messariURL: viper.GetString("MESSARI_BASE_URL"),
		messariKey: viper.GetString("MESSARI_API_KEY"),
		onrampURL:  viper.GetString("ONRAMP_BASE_URL"),
		onrampKey:  viper.GetString("ONRAMP_API_KEY"),
	}
}

// ID returns the plugin namespace
func (p *TradingPlugin) ID() string { return "trading" }

// Description summarizes the plugin
func (p *TradingPlugin) Description() string {
	return "Market analysis, risk metrics, research and fiat onramp"
}

// SensitiveTools lists the operations that need a user decision
func (p *TradingPlugin) SensitiveTools() []string {
	return []string{"onramp_create_order"}
}

// Tools lists the trading tool definitions
func (p *TradingPlugin) Tools() []protocol.Tool {
	return []protocol.Tool{
		{
			Name:        "get_market_analysis",
			Description: "Get OHLCV candles and trade stats for a token",
			InputSchema: tools.ObjectSchema(map[string]interface{}{
				"mint":       tools.Property("string", "Token mint address"),
				"resolution": tools.EnumProperty("Candle resolution", "1m", "5m", "15m", "1H", "4H", "1D"),
			}, "mint"),
		},
		{
			Name:        "get_risk_metrics",
			Description: "Get liquidity, holder distribution and volatility signals for a token",
			InputSchema: tools.ObjectSchema(map[string]interface{}{
				"mint": tools.Property("string", "Token mint address"),
			}, "mint"),
		},
		{
			Name:        "messari_get_insights",
			Description: "Get Messari research metrics for an asset",
			InputSchema: tools.ObjectSchema(map[string]interface{}{
				"asset": tools.Property("string", "Asset slug or symbol, e.g. solana"),
			}, "asset"),
		},
		{
			Name:        "onramp_get_quote",
			Description: "Quote a fiat to crypto purchase",
			InputSchema: tools.ObjectSchema(map[string]interface{}{
				"fiat_currency": tools.Property("string", "ISO fiat currency code, e.g. EUR"),
				"crypto_symbol": tools.Property("string", "Crypto symbol to buy, e.g. SOL"),
				"fiat_amount":   tools.Property("number", "Fiat amount to spend"),
			}, "fiat_currency", "crypto_symbol", "fiat_amount"),
		},
		{
			Name:        "onramp_create_order",
			Description: "Create a fiat to crypto purchase order from a quote",
			InputSchema: tools.ObjectSchema(map[string]interface{}{
				"quote_id":       tools.Property("string", "Quote id returned by onramp_get_quote"),
				"wallet_address": tools.Property("string", "Destination wallet"),
			}, "quote_id", "wallet_address"),
		},
	}
}

// Call dispatches one trading tool by bare name
func (p *TradingPlugin) Call(ctx context.Context, name string, args map[string]interface{}) (*protocol.CallToolResult, error) {
	switch name {
	case "get_market_analysis":
		return p.getMarketAnalysis(ctx, args)
	case "get_risk_metrics":
		return p.getRiskMetrics(ctx, args)
	case "messari_get_insights":
		return p.messariInsights(ctx, args)
	case "onramp_get_quote":
		return p.onrampQuote(ctx, args)
	case "onramp_create_order":
		return p.onrampCreateOrder(ctx, args)
	default:
		return nil, unknownTool(p.ID(), name)
	}
}

func (p *TradingPlugin) birdeyeHeaders() map[string]string {
	return map[string]string{"X-API-KEY": p.birdeyeKey, "x-chain": "solana"}
}

// solMint is the wrapped SOL mint used for spot price lookups
const solMint = "So11111111111111111111111111111111111111112"

// SOLPriceUSD returns the current SOL spot price from Birdeye. The
// policy engine uses it to put a fiat value on SOL-denominated actions.
func (p *TradingPlugin) SOLPriceUSD(ctx context.Context) (float64, error) {
	u := withQuery(p.birdeyeURL+"/defi/price", map[string]string{"address": solMint})
	body, err := getJSON(ctx, p.client, u, p.birdeyeHeaders())
	if err != nil {
		return 0, err
	}
	var resp struct {
		Data struct {
			Value float64 `json:"value"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, errors.Wrap(err, "failed to decode price response")
	}
	if resp.Data.Value <= 0 {
		return 0, errors.New("price feed returned no quote")
	}
	return resp.Data.Value, nil
}

func (p *TradingPlugin) getMarketAnalysis(ctx context.Context, args map[string]interface{}) (*protocol.CallToolResult, error) {
	resolution := stringArg(args, "resolution")
	if resolution == "" {
		resolution = "1H"
	}
	u := withQuery(p.birdeyeURL+"/defi/ohlcv", map[string]string{
		"address": stringArg(args, "mint"),
		"type":    resolution,
	})
	body, err := getJSON(ctx, p.client, u, p.birdeyeHeaders())
	if err != nil {
		return nil, err
	}
	return jsonResult(body), nil
}

func (p *TradingPlugin) getRiskMetrics(ctx context.Context, args map[string]interface{}) (*protocol.CallToolResult, error) {
	u := withQuery(p.birdeyeURL+"/defi/token_overview", map[string]string{
		"address": stringArg(args, "mint"),
	})
	body, err := getJSON(ctx, p.client, u, p.birdeyeHeaders())
	if err != nil {
		return nil, err
	}
	return jsonResult(body), nil
}

func (p *TradingPlugin) messariInsights(ctx context.Context, args map[string]interface{}) (*protocol.CallToolResult, error) {
	u := fmt.Sprintf("%s/v1/assets/%s/metrics", p.messariURL, stringArg(args, "asset"))
	headers := map[string]string{}
	if p.messariKey != "" {
		headers["x-messari-api-key"] = p.messariKey
	}
	body, err := getJSON(ctx, p.client, u, headers)
	if err != nil {
		return nil, err
	}
	return jsonResult(body), nil
}

func (p *TradingPlugin) onrampQuote(ctx context.Context, args map[string]interface{}) (*protocol.CallToolResult, error) {
	payload := map[string]interface{}{
		"fiatCurrency": stringArg(args, "fiat_currency"),
		"cryptoSymbol": stringArg(args, "crypto_symbol"),
		"fiatAmount":   floatArg(args, "fiat_amount"),
	}
	body, err := postJSON(ctx, p.client, p.onrampURL+"/v2/quote", payload, p.onrampHeaders())
	if err != nil {
		return nil, err
	}
	return jsonResult(body), nil
}

func (p *TradingPlugin) onrampCreateOrder(ctx context.Context, args map[string]interface{}) (*protocol.CallToolResult, error) {
	payload := map[string]interface{}{
		"quoteId":       stringArg(args, "quote_id"),
		"walletAddress": stringArg(args, "wallet_address"),
	}
	body, err := postJSON(ctx, p.client, p.onrampURL+"/v2/order", payload, p.onrampHeaders())
	if err != nil {
		return nil, err
	}
	return jsonResult(body), nil
}

func (p *TradingPlugin) onrampHeaders() map[string]string {
	headers := map[string]string{}
	if p.onrampKey != "" {
		headers["Authorization"] = "Bearer " + p.onrampKey
	}
	return headers
}

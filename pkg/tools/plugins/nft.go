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

// NFTPlugin exposes NFT collection data and Tensor marketplace operations
type NFTPlugin struct {
	client    *retryablehttp.Client
	heliusURL string
	heliusKey string
	tensorURL string
	tensorKey string
}

// NewNFTPlugin builds the nft plugin from viper configuration
func NewNFTPlugin() *NFTPlugin {
	return &NFTPlugin{
		client:    newHTTPClient(),
		heliusURL: viper.GetString("HELIUS_BASE_URL"),
		heliusKey: viper.GetString("HELIUS_API_KEY"),
		tensorURL: viper.GetString("TENSOR_BASE_URL"),
		tensorKey: viper.GetString("TENSOR_API_KEY"),
	}
}

// ID returns the plugin namespace
func (p *NFTPlugin) ID() string { return "nft" }

// Description summarizes the plugin
func (p *NFTPlugin) Description() string {
	return "NFT collections, metadata, floor prices and marketplace actions"
}

// SensitiveTools lists the operations that need a user decision
func (p *NFTPlugin) SensitiveTools() []string {
	return []string{"tensor_list_nft", "tensor_buy_nft", "metaplex_create_nft"}
}

// Tools lists the nft tool definitions
func (p *NFTPlugin) Tools() []protocol.Tool {
	return []protocol.Tool{
		{
			Name:        "get_nft_collection",
			Description: "Get the NFTs of a collection or the NFTs held by a wallet",
			InputSchema: tools.ObjectSchema(map[string]interface{}{
				"owner":      tools.Property("string", "Wallet address holding the NFTs"),
				"collection": tools.Property("string", "Optional collection address to filter on"),
			}, "owner"),
		},
		{
			Name:        "get_nft_metadata",
			Description: "Get the on-chain and off-chain metadata of one NFT",
			InputSchema: tools.ObjectSchema(map[string]interface{}{
				"mint": tools.Property("string", "NFT mint address"),
			}, "mint"),
		},
		{
			Name:        "tensor_get_floor_price",
			Description: "Get the current floor price of a collection on Tensor",
			InputSchema: tools.ObjectSchema(map[string]interface{}{
				"collection": tools.Property("string", "Collection slug or address"),
			}, "collection"),
		},
		{
			Name:        "tensor_list_nft",
			Description: "List an NFT for sale on Tensor",
			InputSchema: tools.ObjectSchema(map[string]interface{}{
				"mint":      tools.Property("string", "NFT mint address"),
				"price_sol": tools.Property("number", "Listing price in SOL"),
				"owner":     tools.Property("string", "Wallet address of the seller"),
			}, "mint", "price_sol", "owner"),
		},
		{
			Name:        "tensor_buy_nft",
			Description: "Buy a listed NFT on Tensor",
			InputSchema: tools.ObjectSchema(map[string]interface{}{
				"mint":          tools.Property("string", "NFT mint address"),
				"max_price_sol": tools.Property("number", "Maximum price in SOL"),
				"buyer":         tools.Property("string", "Wallet address of the buyer"),
			}, "mint", "max_price_sol", "buyer"),
		},
		{
			Name:        "metaplex_create_nft",
			Description: "Build the mint transaction for a new NFT via Metaplex",
			InputSchema: tools.ObjectSchema(map[string]interface{}{
				"name":         tools.Property("string", "NFT name"),
				"symbol":       tools.Property("string", "NFT symbol"),
				"metadata_uri": tools.Property("string", "URI of the metadata JSON"),
				"owner":        tools.Property("string", "Wallet address of the creator"),
			}, "name", "metadata_uri", "owner"),
		},
	}
}

// Call dispatches one nft tool by bare name
func (p *NFTPlugin) Call(ctx context.Context, name string, args map[string]interface{}) (*protocol.CallToolResult, error) {
	switch name {
	case "get_nft_collection":
		return p.getCollection(ctx, args)
	case "get_nft_metadata":
		return p.getMetadata(ctx, args)
	case "tensor_get_floor_price":
		return p.tensorFloorPrice(ctx, args)
	case "tensor_list_nft":
		return p.tensorList(ctx, args)
	case "tensor_buy_nft":
		return p.tensorBuy(ctx, args)
	case "metaplex_create_nft":
		return p.metaplexCreate(args)
	default:
		return nil, unknownTool(p.ID(), name)
	}
}

func (p *NFTPlugin) tensorHeaders() map[string]string {
	headers := map[string]string{}
	if p.tensorKey != "" {
		headers["x-tensor-api-key"] = p.tensorKey
	}
	return headers
}

func (p *NFTPlugin) getCollection(ctx context.Context, args map[string]interface{}) (*protocol.CallToolResult, error) {
	u := withQuery(fmt.Sprintf("%s/v0/addresses/%s/nfts", p.heliusURL, stringArg(args, "owner")), map[string]string{
		"api-key":    p.heliusKey,
		"collection": stringArg(args, "collection"),
	})
	body, err := getJSON(ctx, p.client, u, nil)
	if err != nil {
		return nil, err
	}
	return jsonResult(body), nil
}

func (p *NFTPlugin) getMetadata(ctx context.Context, args map[string]interface{}) (*protocol.CallToolResult, error) {
	u := withQuery(p.heliusURL+"/v0/token-metadata", map[string]string{
		"api-key": p.heliusKey,
	})
	payload := map[string]interface{}{
		"mintAccounts": []string{stringArg(args, "mint")},
	}
	body, err := postJSON(ctx, p.client, u, payload, nil)
	if err != nil {
		return nil, err
	}
	return jsonResult(body), nil
}

func (p *NFTPlugin) tensorFloorPrice(ctx context.Context, args map[string]interface{}) (*protocol.CallToolResult, error) {
	u := withQuery(p.tensorURL+"/api/v1/collections/floor", map[string]string{
		"collection": stringArg(args, "collection"),
	})
	body, err := getJSON(ctx, p.client, u, p.tensorHeaders())
	if err != nil {
		return nil, err
	}
	return jsonResult(body), nil
}

func (p *NFTPlugin) tensorList(ctx context.Context, args map[string]interface{}) (*protocol.CallToolResult, error) {
	payload := map[string]interface{}{
		"mint":     stringArg(args, "mint"),
		"priceSol": floatArg(args, "price_sol"),
		"owner":    stringArg(args, "owner"),
	}
	body, err := postJSON(ctx, p.client, p.tensorURL+"/api/v1/tx/list", payload, p.tensorHeaders())
	if err != nil {
		return nil, err
	}
	return jsonResult(body), nil
}

func (p *NFTPlugin) tensorBuy(ctx context.Context, args map[string]interface{}) (*protocol.CallToolResult, error) {
	payload := map[string]interface{}{
		"mint":        stringArg(args, "mint"),
		"maxPriceSol": floatArg(args, "max_price_sol"),
		"buyer":       stringArg(args, "buyer"),
	}
	body, err := postJSON(ctx, p.client, p.tensorURL+"/api/v1/tx/buy", payload, p.tensorHeaders())
	if err != nil {
		return nil, err
	}
	return jsonResult(body), nil
}

// metaplexCreate builds the unsigned mint payload, signing happens in
// the owner's wallet
func (p *NFTPlugin) metaplexCreate(args map[string]interface{}) (*protocol.CallToolResult, error) {
	out, _ := json.Marshal(map[string]interface{}{
		"type":        "metaplex_create_nft",
		"name":        stringArg(args, "name"),
		"symbol":      stringArg(args, "symbol"),
		"metadataUri": stringArg(args, "metadata_uri"),
		"owner":       stringArg(args, "owner"),
		"unsigned":    true,
	})
	return jsonResult(out), nil
}

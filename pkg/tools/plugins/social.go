package plugins

import (
	"context"
	"fmt"
	"strconv"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/spf13/viper"

	"github.com/fikriaf/ordo-backend/pkg/mcp/protocol"
	"github.com/fikriaf/ordo-backend/pkg/tools"
)

// SocialPlugin exposes X/Twitter and Telegram messaging operations.
// Reads go straight through; sends are approval-gated because the
// model composes the outgoing text.
type SocialPlugin struct {
	client       *retryablehttp.Client
	xBaseURL     string
	xBearerToken string
	tgBaseURL    string
	tgBotToken   string
}

// NewSocialPlugin builds the social plugin from viper configuration
func NewSocialPlugin() *SocialPlugin {
	return &SocialPlugin{
		client:       newHTTPClient(),
		xBaseURL:     viper.GetString("X_API_BASE_URL"),
		xBearerToken: viper.GetString("X_API_BEARER_TOKEN"),
		tgBaseURL:    viper.GetString("TELEGRAM_BASE_URL"),
		tgBotToken:   viper.GetString("TELEGRAM_BOT_TOKEN"),
	}
}

// ID returns the plugin namespace
func (p *SocialPlugin) ID() string { return "social" }

// Description summarizes the plugin
func (p *SocialPlugin) Description() string {
	return "X/Twitter DMs and mentions, Telegram messages"
}

// SensitiveTools lists the operations that need a user decision
func (p *SocialPlugin) SensitiveTools() []string {
	return []string{"send_x_dm", "send_telegram_message"}
}

// Tools lists the social tool definitions
func (p *SocialPlugin) Tools() []protocol.Tool {
	return []protocol.Tool{
		{
			Name:        "get_x_dms",
			Description: "Get recent X/Twitter direct messages",
			InputSchema: tools.ObjectSchema(map[string]interface{}{
				"limit": tools.Property("integer", "Number of messages to return, default 20"),
			}),
		},
		{
			Name:        "get_x_mentions",
			Description: "Get recent X/Twitter tweets mentioning the given user",
			InputSchema: tools.ObjectSchema(map[string]interface{}{
				"user_id": tools.Property("string", "Numeric X user id whose mentions to fetch"),
				"limit":   tools.Property("integer", "Number of mentions to return, default 20"),
			}, "user_id"),
		},
		{
			Name:        "send_x_dm",
			Description: "Send an X/Twitter direct message",
			InputSchema: tools.ObjectSchema(map[string]interface{}{
				"recipient_id": tools.Property("string", "Numeric X user id of the recipient"),
				"text":         tools.Property("string", "Message text"),
			}, "recipient_id", "text"),
		},
		{
			Name:        "get_telegram_messages",
			Description: "Get recent Telegram messages received by the bot",
			InputSchema: tools.ObjectSchema(map[string]interface{}{
				"limit": tools.Property("integer", "Number of messages to return, default 20"),
			}),
		},
		{
			Name:        "send_telegram_message",
			Description: "Send a Telegram message to a chat",
			InputSchema: tools.ObjectSchema(map[string]interface{}{
				"chat_id": tools.Property("string", "Chat id to send to"),
				"text":    tools.Property("string", "Message text"),
				"silent":  tools.Property("boolean", "Deliver without a notification sound"),
			}, "chat_id", "text"),
		},
	}
}

// Call dispatches one social tool by bare name
func (p *SocialPlugin) Call(ctx context.Context, name string, args map[string]interface{}) (*protocol.CallToolResult, error) {
	switch name {
	case "get_x_dms":
		return p.getXDMs(ctx, args)
	case "get_x_mentions":
		return p.getXMentions(ctx, args)
	case "send_x_dm":
		return p.sendXDM(ctx, args)
	case "get_telegram_messages":
		return p.getTelegramMessages(ctx, args)
	case "send_telegram_message":
		return p.sendTelegramMessage(ctx, args)
	default:
		return nil, unknownTool(p.ID(), name)
	}
}

func (p *SocialPlugin) xHeaders() map[string]string {
	return map[string]string{"Authorization": "Bearer " + p.xBearerToken}
}

func (p *SocialPlugin) getXDMs(ctx context.Context, args map[string]interface{}) (*protocol.CallToolResult, error) {
	u := withQuery(p.xBaseURL+"/dm_events", map[string]string{
		"max_results":     strconv.Itoa(limitArg(args, 20)),
		"dm_event.fields": "id,text,sender_id,created_at",
	})
	body, err := getJSON(ctx, p.client, u, p.xHeaders())
	if err != nil {
		return nil, err
	}
	return jsonResult(body), nil
}

func (p *SocialPlugin) getXMentions(ctx context.Context, args map[string]interface{}) (*protocol.CallToolResult, error) {
	u := withQuery(fmt.Sprintf("%s/users/%s/mentions", p.xBaseURL, stringArg(args, "user_id")), map[string]string{
		"max_results":  strconv.Itoa(limitArg(args, 20)),
		"tweet.fields": "id,text,author_id,created_at",
	})
	body, err := getJSON(ctx, p.client, u, p.xHeaders())
	if err != nil {
		return nil, err
	}
	return jsonResult(body), nil
}

func (p *SocialPlugin) sendXDM(ctx context.Context, args map[string]interface{}) (*protocol.CallToolResult, error) {
	u := fmt.Sprintf("%s/dm_conversations/with/%s/messages", p.xBaseURL, stringArg(args, "recipient_id"))
	body, err := postJSON(ctx, p.client, u, map[string]interface{}{
		"text": stringArg(args, "text"),
	}, p.xHeaders())
	if err != nil {
		return nil, err
	}
	return jsonResult(body), nil
}

func (p *SocialPlugin) getTelegramMessages(ctx context.Context, args map[string]interface{}) (*protocol.CallToolResult, error) {
	u := withQuery(fmt.Sprintf("%s/bot%s/getUpdates", p.tgBaseURL, p.tgBotToken), map[string]string{
		"limit":           strconv.Itoa(limitArg(args, 20)),
		"allowed_updates": `["message"]`,
	})
	body, err := getJSON(ctx, p.client, u, nil)
	if err != nil {
		return nil, err
	}
	return jsonResult(body), nil
}

func (p *SocialPlugin) sendTelegramMessage(ctx context.Context, args map[string]interface{}) (*protocol.CallToolResult, error) {
	u := fmt.Sprintf("%s/bot%s/sendMessage", p.tgBaseURL, p.tgBotToken)
	body, err := postJSON(ctx, p.client, u, map[string]interface{}{
		"chat_id":              stringArg(args, "chat_id"),
		"text":                 stringArg(args, "text"),
		"disable_notification": boolArg(args, "silent"),
	}, nil)
	if err != nil {
		return nil, err
	}
	return jsonResult(body), nil
}

// limitArg reads a limit argument with a default
func limitArg(args map[string]interface{}, fallback int) int {
	if limit := intArg(args, "limit"); limit > 0 {
		return limit
	}
	return fallback
}

package plugins

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/spf13/viper"

	"github.com/fikriaf/ordo-backend/pkg/mcp/protocol"
	"github.com/fikriaf/ordo-backend/pkg/tools"
)

// EmailPlugin exposes Gmail search, read and send operations. Reads run
// through the policy output filter downstream (OTP codes and password
// resets in mail bodies never reach the model); sending is
// approval-gated.
type EmailPlugin struct {
	client      *retryablehttp.Client
	baseURL     string
	accessToken string
}

// NewEmailPlugin builds the email plugin from viper configuration
func NewEmailPlugin() *EmailPlugin {
	return &EmailPlugin{
		client:      newHTTPClient(),
		baseURL:     viper.GetString("GMAIL_BASE_URL"),
		accessToken: viper.GetString("GMAIL_ACCESS_TOKEN"),
	}
}

// ID returns the plugin namespace
func (p *EmailPlugin) ID() string { return "email" }

// Description summarizes the plugin
func (p *EmailPlugin) Description() string {
	return "Gmail thread search, message reading and sending"
}

// SensitiveTools lists the operations that need a user decision
func (p *EmailPlugin) SensitiveTools() []string {
	return []string{"send_email"}
}

// Tools lists the email tool definitions
func (p *EmailPlugin) Tools() []protocol.Tool {
	return []protocol.Tool{
		{
			Name:        "search_email_threads",
			Description: "Search Gmail threads using Gmail query syntax",
			InputSchema: tools.ObjectSchema(map[string]interface{}{
				"query":       tools.Property("string", "Gmail search query, e.g. from:alice subject:invoice"),
				"max_results": tools.Property("integer", "Number of threads to return, default 10"),
				"unread_only": tools.Property("boolean", "Restrict the search to unread mail"),
			}, "query"),
		},
		{
			Name:        "get_email_content",
			Description: "Get the subject, sender and plain-text body of one email",
			InputSchema: tools.ObjectSchema(map[string]interface{}{
				"email_id": tools.Property("string", "Gmail message id"),
			}, "email_id"),
		},
		{
			Name:        "send_email",
			Description: "Send an email from the connected Gmail account",
			InputSchema: tools.ObjectSchema(map[string]interface{}{
				"to":      tools.Property("string", "Recipient email address"),
				"subject": tools.Property("string", "Email subject"),
				"body":    tools.Property("string", "Plain-text email body"),
			}, "to", "subject", "body"),
		},
	}
}

// Call dispatches one email tool by bare name. Upstream failures come
// back as error-flagged results rather than hard errors, the model sees
// what went wrong and can tell the user.
func (p *EmailPlugin) Call(ctx context.Context, name string, args map[string]interface{}) (*protocol.CallToolResult, error) {
	var result *protocol.CallToolResult
	var err error

	switch name {
	case "search_email_threads":
		result, err = p.searchThreads(ctx, args)
	case "get_email_content":
		result, err = p.getEmailContent(ctx, stringArg(args, "email_id"))
	case "send_email":
		result, err = p.sendEmail(ctx, args)
	default:
		return nil, unknownTool(p.ID(), name)
	}

	if err != nil {
		return protocol.ErrorResult(fmt.Sprintf("%s failed: %v", name, err)), nil
	}
	return result, nil
}

func (p *EmailPlugin) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + p.accessToken}
}

func (p *EmailPlugin) searchThreads(ctx context.Context, args map[string]interface{}) (*protocol.CallToolResult, error) {
	maxResults := intArg(args, "max_results")
	if maxResults <= 0 {
		maxResults = 10
	}
	query := stringArg(args, "query")
	if boolArg(args, "unread_only") {
		query = strings.TrimSpace(query + " is:unread")
	}

	u := withQuery(p.baseURL+"/users/me/threads", map[string]string{
		"q":          query,
		"maxResults": strconv.Itoa(maxResults),
	})
	body, err := getJSON(ctx, p.client, u, p.headers())
	if err != nil {
		return nil, err
	}
	return jsonResult(body), nil
}

func (p *EmailPlugin) getEmailContent(ctx context.Context, emailID string) (*protocol.CallToolResult, error) {
	u := withQuery(fmt.Sprintf("%s/users/me/messages/%s", p.baseURL, emailID), map[string]string{
		"format": "full",
	})
	body, err := getJSON(ctx, p.client, u, p.headers())
	if err != nil {
		return nil, err
	}

	var message gmailMessage
	if err := json.Unmarshal(body, &message); err != nil {
		return jsonResult(body), nil
	}

	headers := message.Payload.headerMap()
	out, _ := json.Marshal(map[string]interface{}{
		"id":       emailID,
		"threadId": message.ThreadID,
		"from":     headers["From"],
		"to":       splitAddresses(headers["To"]),
		"subject":  headers["Subject"],
		"date":     headers["Date"],
		"body":     message.Payload.plainTextBody(),
		"labels":   message.LabelIDs,
	})
	return jsonResult(out), nil
}

func (p *EmailPlugin) sendEmail(ctx context.Context, args map[string]interface{}) (*protocol.CallToolResult, error) {
	raw := fmt.Sprintf("To: %s\r\nSubject: %s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s",
		stringArg(args, "to"), stringArg(args, "subject"), stringArg(args, "body"))

	body, err := postJSON(ctx, p.client, p.baseURL+"/users/me/messages/send", map[string]interface{}{
		"raw": base64.URLEncoding.EncodeToString([]byte(raw)),
	}, p.headers())
	if err != nil {
		return nil, err
	}
	return jsonResult(body), nil
}

// gmailMessage is the subset of the Gmail message resource the plugin reads
type gmailMessage struct {
	ThreadID string       `json:"threadId"`
	LabelIDs []string     `json:"labelIds"`
	Payload  gmailPayload `json:"payload"`
}

type gmailPayload struct {
	MimeType string         `json:"mimeType"`
	Headers  []gmailHeader  `json:"headers"`
	Body     gmailBody      `json:"body"`
	Parts    []gmailPayload `json:"parts"`
}

type gmailHeader struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type gmailBody struct {
	Data string `json:"data"`
}

func (p gmailPayload) headerMap() map[string]string {
	headers := make(map[string]string, len(p.Headers))
	for _, h := range p.Headers {
		headers[h.Name] = h.Value
	}
	return headers
}

// plainTextBody extracts the text/plain part, descending into multipart
// payloads. Gmail delivers body data base64url-encoded.
func (p gmailPayload) plainTextBody() string {
	if len(p.Parts) == 0 {
		return decodeBody(p.Body.Data)
	}
	for _, part := range p.Parts {
		if part.MimeType == "text/plain" {
			return decodeBody(part.Body.Data)
		}
	}
	for _, part := range p.Parts {
		if body := part.plainTextBody(); body != "" {
			return body
		}
	}
	return ""
}

func decodeBody(data string) string {
	if data == "" {
		return ""
	}
	decoded, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(strings.TrimRight(data, "="))
	if err != nil {
		return ""
	}
	return string(decoded)
}

func splitAddresses(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/datatypes"

	"github.com/fikriaf/ordo-backend/pkg/llm"
	"github.com/fikriaf/ordo-backend/pkg/models"

	"github.com/d4l-data4life/go-svc/pkg/logging"
)

const (
	defaultWindowSize         = 10
	defaultSummarizeThreshold = 2048
	defaultSummarizeRetain    = 4
)

const summarizerPrompt = `You are a conversation summarizer. Condense the following chat ` +
	`history into a short factual summary. Preserve user goals, decisions made, tool ` +
	`results that still matter, and any amounts or identifiers. Do not add commentary.`

// Window builds the bounded message context sent to the LLM. The newest
// messages always go in verbatim, older history gets folded into a
// single summary system message once it outgrows the threshold.
type Window struct {
	store              *Store
	summarizer         llm.Client
	size               int
	summarizeThreshold int
	summarizeRetain    int
}

// NewWindow builds a window over a store. The summarizer may be nil, in
// which case overflow is truncated instead of summarized.
func NewWindow(store *Store, summarizer llm.Client, size, threshold, retain int) *Window {
	if size <= 0 {
		size = defaultWindowSize
	}
	if threshold <= 0 {
		threshold = defaultSummarizeThreshold
	}
	if retain <= 0 || retain >= size {
		retain = defaultSummarizeRetain
	}
	return &Window{
		store:              store,
		summarizer:         summarizer,
		size:               size,
		summarizeThreshold: threshold,
		summarizeRetain:    retain,
	}
}

// Build returns the LLM messages for one conversation: the system
// prompt followed by at most the window size of recent history
func (w *Window) Build(ctx context.Context, conversationID uuid.UUID, systemPrompt string) ([]llm.Message, error) {
	active, err := w.store.ActiveMessages(conversationID)
	if err != nil {
		return nil, err
	}

	if estimateTokens(active) > w.summarizeThreshold && len(active) > w.summarizeRetain {
		if err := w.summarize(ctx, conversationID, active); err != nil {
			logging.LogWarningf(err, "Summarization failed, truncating context instead")
		} else {
			active, err = w.store.ActiveMessages(conversationID)
			if err != nil {
				return nil, err
			}
		}
	}

	start := len(active) - w.size
	if start < 0 {
		start = 0
	}
	// drop tool results whose calling assistant message fell outside
	// the window instead of widening it past the bound
	for start < len(active) && active[start].Role == models.MessageRoleTool {
		start++
	}

	result := make([]llm.Message, 0, len(active)-start+1)
	if systemPrompt != "" {
		result = append(result, llm.Message{Role: llm.RoleSystem, Content: systemPrompt})
	}
	for _, msg := range active[start:] {
		result = append(result, toLLMMessage(msg))
	}
	return result, nil
}

// summarize folds everything but the newest retained messages into one
// system message and flags the folded rows
func (w *Window) summarize(ctx context.Context, conversationID uuid.UUID, active []models.Message) error {
	if w.summarizer == nil {
		return errors.New("no summarizer configured")
	}

	older := active[:len(active)-w.summarizeRetain]
	if len(older) == 0 {
		return nil
	}

	response, err := w.summarizer.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: summarizerPrompt},
			{Role: llm.RoleUser, Content: renderTranscript(older)},
		},
	})
	if err != nil {
		return errors.Wrap(err, "summary generation failed")
	}
	summary := strings.TrimSpace(response.Message.Content)
	if summary == "" {
		return errors.New("summarizer returned empty content")
	}

	ids := make([]uuid.UUID, len(older))
	for i, msg := range older {
		ids[i] = msg.ID
	}

	// place the summary just before the retained tail so ordering by
	// created_at keeps it first in the window
	summaryMsg := &models.Message{
		Role:      models.MessageRoleSystem,
		Content:   fmt.Sprintf("Summary of earlier conversation: %s", summary),
		CreatedAt: older[len(older)-1].CreatedAt.Add(time.Millisecond),
	}
	if err := w.store.Append(conversationID, summaryMsg); err != nil {
		return err
	}

	if err := w.store.MarkSummarized(ids); err != nil {
		return err
	}

	logging.LogInfof("Folded %d messages of conversation %s into a summary", len(older), conversationID)
	return nil
}

// renderTranscript flattens messages into plain text for the summarizer
func renderTranscript(msgs []models.Message) string {
	var b strings.Builder
	for _, msg := range msgs {
		b.WriteString(string(msg.Role))
		b.WriteString(": ")
		if msg.Content != "" {
			b.WriteString(msg.Content)
		}
		if len(msg.ToolCalls) > 0 {
			b.WriteString(" [called tools: ")
			b.WriteString(toolCallNames(msg.ToolCalls))
			b.WriteString("]")
		}
		b.WriteString("\n")
	}
	return b.String()
}

func toolCallNames(raw datatypes.JSON) string {
	var calls []llm.ToolCall
	if err := json.Unmarshal(raw, &calls); err != nil {
		return "unknown"
	}
	names := make([]string, len(calls))
	for i, call := range calls {
		names[i] = call.Function.Name
	}
	return strings.Join(names, ", ")
}

// estimateTokens uses the rough 4 chars per token heuristic
func estimateTokens(msgs []models.Message) int {
	total := 0
	for _, msg := range msgs {
		total += len(msg.Content) / 4
		total += len(msg.ToolCalls) / 4
	}
	return total
}

// toLLMMessage converts a persisted message into its wire form
func toLLMMessage(msg models.Message) llm.Message {
	out := llm.Message{
		Role:       string(msg.Role),
		Content:    msg.Content,
		ToolCallID: msg.ToolCallID,
		Name:       msg.Name,
	}
	if len(msg.ToolCalls) > 0 {
		var calls []llm.ToolCall
		if err := json.Unmarshal(msg.ToolCalls, &calls); err == nil {
			out.ToolCalls = calls
		}
	}
	return out
}

// NewUserMessage builds a persistable user message
func NewUserMessage(content string) *models.Message {
	return &models.Message{Role: models.MessageRoleUser, Content: content}
}

// NewAssistantMessage builds a persistable assistant message, capturing
// any tool calls it made
func NewAssistantMessage(content string, toolCalls []llm.ToolCall) *models.Message {
	msg := &models.Message{Role: models.MessageRoleAssistant, Content: content}
	if len(toolCalls) > 0 {
		if raw, err := json.Marshal(toolCalls); err == nil {
			msg.ToolCalls = datatypes.JSON(raw)
		}
	}
	return msg
}

// NewToolMessage builds a persistable tool result message
func NewToolMessage(toolCallID, toolName, content string) *models.Message {
	return &models.Message{
		Role:       models.MessageRoleTool,
		Content:    content,
		ToolCallID: toolCallID,
		Name:       toolName,
	}
}

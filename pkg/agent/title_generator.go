package agent

import (
	"context"
	"strings"

	"github.com/fikriaf/ordo-backend/pkg/llm"

	"github.com/d4l-data4life/go-svc/pkg/logging"
)

// GenerateChatTitle generates a short, descriptive title for a conversation based on the user's first message
func (a *Agent) GenerateChatTitle(ctx context.Context, userMessage string) string {
	systemPrompt := `You are a title generator. Generate a short, descriptive title (max 6 words) for a chat conversation based on the user's first message.
Return ONLY the title text, no quotes, no explanations, no punctuation at the end.
Keep it concise and relevant to the main topic of the message.

Examples:
User: "What's my SOL balance right now?"
Title: Checking SOL Balance

User: "Swap 10 USDC to SOL at the best rate"
Title: USDC to SOL Swap

User: "What's the floor price of Mad Lads?"
Title: Mad Lads Floor Price`

	messages := []llm.Message{
		{
			Role:    llm.RoleSystem,
			Content: systemPrompt,
		},
		{
			Role:    llm.RoleUser,
			Content: userMessage,
		},
	}

	// Low temperature for consistent results
	req := llm.ChatRequest{
		Model:       a.config.DefaultModel,
		Messages:    messages,
		Temperature: float64Ptr(0.3),
		MaxTokens:   intPtr(50), // Short titles only
		Stream:      false,
	}

	response, err := a.llmClient.Chat(ctx, req)
	if err != nil {
		logging.LogErrorf(err, "Failed to generate chat title - LLM request failed")
		return "" // Return empty to keep default
	}

	title := strings.TrimSpace(response.Message.Content)
	title = strings.Trim(title, `"'`)

	if len(title) > 60 {
		title = title[:57] + "..."
	}
	if len(title) < 3 {
		return ""
	}

	logging.LogDebugf("Generated chat title: %q", title)
	return title
}

func float64Ptr(f float64) *float64 {
	return &f
}

func intPtr(i int) *int {
	return &i
}

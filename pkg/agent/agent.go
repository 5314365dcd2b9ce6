// Package agent runs the tool-calling loop: feed the bounded context
// window to the LLM, execute whatever tools it asks for, and hand the
// results back until it answers in plain text or runs out of rounds.
package agent

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/fikriaf/ordo-backend/pkg/approval"
	"github.com/fikriaf/ordo-backend/pkg/conversation"
	"github.com/fikriaf/ordo-backend/pkg/llm"
	"github.com/fikriaf/ordo-backend/pkg/models"
	"github.com/fikriaf/ordo-backend/pkg/policy"
	"github.com/fikriaf/ordo-backend/pkg/tools"
)

// Agent wires the orchestration loop to its collaborators
type Agent struct {
	store        *conversation.Store
	window       *conversation.Window
	catalog      *tools.Catalog
	policy       *policy.Engine
	gate         *approval.Gate
	llmClient    llm.Client
	orchestrator *Orchestrator
	config       Config
}

// Config holds agent configuration
type Config struct {
	// Maximum number of LLM rounds per user turn
	MaxRounds int

	// Tool execution timeout per invocation
	ToolExecutionTimeout time.Duration

	// System prompt for the agent
	SystemPrompt string

	// Default LLM model
	DefaultModel string

	// LLM parameters
	Temperature *float64
	MaxTokens   *int
	TopP        *float64
}

// NewAgent creates a new agent instance
func NewAgent(
	store *conversation.Store,
	window *conversation.Window,
	catalog *tools.Catalog,
	policyEngine *policy.Engine,
	gate *approval.Gate,
	llmClient llm.Client,
	cfg Config,
) *Agent {
	if cfg.MaxRounds == 0 {
		cfg.MaxRounds = 8
	}
	if cfg.ToolExecutionTimeout == 0 {
		cfg.ToolExecutionTimeout = 30 * time.Second
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}

	agent := &Agent{
		store:     store,
		window:    window,
		catalog:   catalog,
		policy:    policyEngine,
		gate:      gate,
		llmClient: llmClient,
		config:    cfg,
	}
	agent.orchestrator = NewOrchestrator(agent)
	return agent
}

// Chat runs one user turn to completion and returns the final answer
func (a *Agent) Chat(ctx context.Context, request ChatRequest) (*ChatResponse, error) {
	return a.orchestrator.Execute(ctx, request)
}

// ChatStream runs one user turn, emitting events as they happen
func (a *Agent) ChatStream(ctx context.Context, request ChatRequest) (<-chan StreamEvent, error) {
	return a.orchestrator.ExecuteStream(ctx, request)
}

// ChatRequest represents one user turn
type ChatRequest struct {
	ConversationID uuid.UUID
	User           models.User
	UserMessage    string
	Model          string // Optional: override default model
}

// ChatResponse represents the agent's final answer for a turn
type ChatResponse struct {
	Message          llm.Message
	ToolsUsed        []ToolExecution
	PendingApprovals []models.ApprovalRequest
	Rounds           int
	TotalTokens      int
	Error            error
}

// StreamEvent represents a streaming event from the agent
type StreamEvent struct {
	Type     StreamEventType
	Content  string
	Tool     *ToolExecution
	Approval *models.ApprovalRequest
	Delta    *llm.Delta
	Done     bool
	Error    error
}

// StreamEventType defines types of streaming events
type StreamEventType string

const (
	StreamEventTypeContent          StreamEventType = "content"
	StreamEventTypeToolStart        StreamEventType = "tool_start"
	StreamEventTypeToolComplete     StreamEventType = "tool_complete"
	StreamEventTypeAwaitingApproval StreamEventType = "awaiting_approval"
	StreamEventTypeDone             StreamEventType = "done"
	StreamEventTypeError            StreamEventType = "error"
)

// ToolExecution represents a single tool invocation within a round
type ToolExecution struct {
	QualifiedName string
	SourceID      string
	ToolName      string
	Arguments     map[string]interface{}
	Result        string
	Error         error
	Duration      time.Duration
	ApprovalID    *uuid.UUID

	pendingApproval *models.ApprovalRequest
}

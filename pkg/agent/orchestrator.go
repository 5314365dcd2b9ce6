package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/fikriaf/ordo-backend/pkg/conversation"
	"github.com/fikriaf/ordo-backend/pkg/llm"
	"github.com/fikriaf/ordo-backend/pkg/metrics"
	"github.com/fikriaf/ordo-backend/pkg/models"

	"github.com/d4l-data4life/go-svc/pkg/logging"
)

// Orchestrator drives the round loop. Rounds run sequentially, the tool
// calls inside one round run concurrently, and a tool failure is
// reported back to the LLM instead of retried.
type Orchestrator struct {
	agent *Agent
}

// NewOrchestrator creates an orchestrator bound to its agent
func NewOrchestrator(agent *Agent) *Orchestrator {
	return &Orchestrator{agent: agent}
}

// Execute runs the round loop to completion and returns the final answer
func (o *Orchestrator) Execute(ctx context.Context, request ChatRequest) (*ChatResponse, error) {
	a := o.agent

	if err := a.store.Append(request.ConversationID, conversation.NewUserMessage(request.UserMessage)); err != nil {
		return nil, err
	}

	llmTools := a.catalog.LLMTools(ctx)
	logging.LogDebugf("Starting agent loop: tools=%d max_rounds=%d", len(llmTools), a.config.MaxRounds)

	var toolExecutions []ToolExecution
	var pendingApprovals []models.ApprovalRequest
	var totalTokens int
	round := 0

	for round < a.config.MaxRounds {
		round++
		logging.LogDebugf("Agent round %d/%d", round, a.config.MaxRounds)

		messages, err := a.window.Build(ctx, request.ConversationID, a.config.SystemPrompt)
		if err != nil {
			return nil, err
		}

		response, err := a.llmClient.Chat(ctx, o.chatRequest(request, messages, llmTools, false))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLLMUnavailable, err)
		}
		totalTokens += response.Usage.TotalTokens

		if err := a.store.Append(request.ConversationID,
			conversation.NewAssistantMessage(response.Message.Content, response.Message.ToolCalls)); err != nil {
			return nil, err
		}

		if len(response.Message.ToolCalls) == 0 {
			logging.LogDebugf("Agent complete: rounds=%d tokens=%d", round, totalTokens)
			metrics.ObserveAgentRounds(round)
			return &ChatResponse{
				Message:          response.Message,
				ToolsUsed:        toolExecutions,
				PendingApprovals: pendingApprovals,
				Rounds:           round,
				TotalTokens:      totalTokens,
			}, nil
		}

		executions := o.runRound(ctx, request, response.Message.ToolCalls, nil)
		toolExecutions = append(toolExecutions, executions...)
		for i := range executions {
			if executions[i].pendingApproval != nil {
				pendingApprovals = append(pendingApprovals, *executions[i].pendingApproval)
			}
		}
		if err := o.persistResults(request.ConversationID, response.Message.ToolCalls, executions); err != nil {
			return nil, err
		}
	}

	logging.LogWarningf(ErrMaxRounds, "Agent stopped after %d rounds", a.config.MaxRounds)
	return &ChatResponse{
		Message: llm.Message{
			Role:    llm.RoleAssistant,
			Content: "I've reached my maximum number of reasoning rounds. Please try rephrasing your request.",
		},
		ToolsUsed:        toolExecutions,
		PendingApprovals: pendingApprovals,
		Rounds:           round,
		TotalTokens:      totalTokens,
		Error:            ErrMaxRounds,
	}, nil
}

// ExecuteStream runs the round loop, emitting events as they happen.
// When the consumer disconnects, in-flight tool invocations finish and
// their results are persisted, but no further round starts.
func (o *Orchestrator) ExecuteStream(ctx context.Context, request ChatRequest) (<-chan StreamEvent, error) {
	a := o.agent
	eventChan := make(chan StreamEvent, 10)

	emit := func(event StreamEvent) {
		select {
		case eventChan <- event:
		case <-ctx.Done():
		}
	}

	go func() {
		defer close(eventChan)

		if err := a.store.Append(request.ConversationID, conversation.NewUserMessage(request.UserMessage)); err != nil {
			emit(StreamEvent{Type: StreamEventTypeError, Error: err, Done: true})
			return
		}

		llmTools := a.catalog.LLMTools(ctx)
		round := 0

		for round < a.config.MaxRounds {
			round++

			messages, err := a.window.Build(ctx, request.ConversationID, a.config.SystemPrompt)
			if err != nil {
				emit(StreamEvent{Type: StreamEventTypeError, Error: err, Done: true})
				return
			}

			streamChan, err := a.llmClient.ChatStream(ctx, o.chatRequest(request, messages, llmTools, true))
			if err != nil {
				wrapped := fmt.Errorf("%w: %v", ErrLLMUnavailable, err)
				logging.LogErrorf(wrapped, "Unable to start LLM streaming")
				emit(StreamEvent{Type: StreamEventTypeError, Error: wrapped, Done: true})
				return
			}

			var fullContent string
			var toolCalls []llm.ToolCall

			for chunk := range streamChan {
				if chunk.Error != nil {
					emit(StreamEvent{Type: StreamEventTypeError, Error: chunk.Error, Done: true})
					return
				}
				if chunk.Delta.Content != "" {
					fullContent += chunk.Delta.Content
					emit(StreamEvent{
						Type:    StreamEventTypeContent,
						Content: chunk.Delta.Content,
						Delta:   &chunk.Delta,
					})
				}
				if len(chunk.Delta.ToolCalls) > 0 {
					toolCalls = mergeToolCallDeltas(toolCalls, chunk.Delta.ToolCalls)
				}
				if chunk.Done {
					break
				}
			}

			if err := a.store.Append(request.ConversationID,
				conversation.NewAssistantMessage(fullContent, toolCalls)); err != nil {
				emit(StreamEvent{Type: StreamEventTypeError, Error: err, Done: true})
				return
			}

			if len(toolCalls) == 0 {
				metrics.ObserveAgentRounds(round)
				emit(StreamEvent{Type: StreamEventTypeDone, Done: true})
				return
			}

			executions := o.runRound(ctx, request, toolCalls, emit)
			if err := o.persistResults(request.ConversationID, toolCalls, executions); err != nil {
				emit(StreamEvent{Type: StreamEventTypeError, Error: err, Done: true})
				return
			}

			// disconnect abandons further rounds, never mid-round
			if ctx.Err() != nil {
				logging.LogInfof("Client disconnected, abandoning conversation %s after round %d",
					request.ConversationID, round)
				return
			}
		}

		emit(StreamEvent{
			Type:    StreamEventTypeError,
			Content: "Maximum rounds reached",
			Error:   ErrMaxRounds,
			Done:    true,
		})
	}()

	return eventChan, nil
}

func (o *Orchestrator) chatRequest(request ChatRequest, messages []llm.Message, llmTools []llm.Tool, stream bool) llm.ChatRequest {
	cfg := o.agent.config
	chatRequest := llm.ChatRequest{
		Model:       request.Model,
		Messages:    messages,
		Tools:       llmTools,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		TopP:        cfg.TopP,
		Stream:      stream,
	}
	if chatRequest.Model == "" {
		chatRequest.Model = cfg.DefaultModel
	}
	return chatRequest
}

// runRound executes all tool calls of one round concurrently. Results
// come back slotted in call order regardless of completion order.
func (o *Orchestrator) runRound(ctx context.Context, request ChatRequest, calls []llm.ToolCall, emit func(StreamEvent)) []ToolExecution {
	executions := make([]ToolExecution, len(calls))

	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(slot int, call llm.ToolCall) {
			defer wg.Done()
			executions[slot] = o.runToolCall(ctx, request, call, emit)
		}(i, call)
	}
	wg.Wait()

	return executions
}

// runToolCall resolves, gates, and executes one invocation. Every
// failure mode becomes a tool result so the LLM can react to it.
func (o *Orchestrator) runToolCall(ctx context.Context, request ChatRequest, call llm.ToolCall, emit func(StreamEvent)) ToolExecution {
	a := o.agent
	startTime := time.Now()

	execution := ToolExecution{
		QualifiedName: call.Function.Name,
		ToolName:      call.Function.Name,
	}
	if sourceID, toolName, ok := llm.SplitQualifiedToolName(call.Function.Name); ok {
		execution.SourceID = sourceID
		execution.ToolName = toolName
	}

	if emit != nil {
		emit(StreamEvent{Type: StreamEventTypeToolStart, Tool: &execution})
	}

	args := map[string]interface{}{}
	if call.Function.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
			execution.Error = errors.Wrap(err, "failed to parse tool arguments")
			execution.Result = fmt.Sprintf("Error: tool call arguments are not valid JSON: %v", err)
			execution.Duration = time.Since(startTime)
			if emit != nil {
				emit(StreamEvent{Type: StreamEventTypeToolComplete, Tool: &execution})
			}
			return execution
		}
	}
	execution.Arguments = args

	sensitive := a.catalog.IsSensitive(call.Function.Name)
	estimate := a.policy.EstimateInvocation(ctx, call.Function.Name, args)
	if needed, reason := a.policy.RequiresApproval(request.User, call.Function.Name, estimate, sensitive); needed {
		o.fileApproval(request, call, reason, estimate, &execution, emit)
		execution.Duration = time.Since(startTime)
		if emit != nil {
			emit(StreamEvent{Type: StreamEventTypeToolComplete, Tool: &execution})
		}
		return execution
	}

	// the invocation outlives a client disconnect, only new rounds stop
	toolCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.config.ToolExecutionTimeout)
	defer cancel()

	result, err := a.catalog.Execute(toolCtx, call.Function.Name, args)
	execution.Duration = time.Since(startTime)
	metrics.ObserveToolInvocation(execution.SourceID, err != nil)

	if err != nil {
		execution.Error = err
		execution.Result = fmt.Sprintf("Error: %v", err)
		logging.LogErrorf(err, "Tool execution failed: %s", call.Function.Name)
	} else {
		text := llm.ConvertContentToString(result.Content)
		if result.IsError {
			execution.Error = errors.Errorf("tool reported an error: %s", text)
		}
		filtered, withheld := a.policy.FilterToolOutput(request.User.ID.String(), call.Function.Name, text)
		if withheld {
			logging.LogInfof("Tool output withheld by policy: %s", call.Function.Name)
		}
		execution.Result = filtered
	}

	if emit != nil {
		emit(StreamEvent{Type: StreamEventTypeToolComplete, Tool: &execution})
	}
	return execution
}

// fileApproval records a pending approval instead of executing and
// tells the LLM to wait for the user
func (o *Orchestrator) fileApproval(request ChatRequest, call llm.ToolCall, reason string, estimate models.InvocationEstimate, execution *ToolExecution, emit func(StreamEvent)) {
	approvalRequest, err := o.agent.gate.Request(
		request.User.ID, request.ConversationID, call.Function.Name, execution.Arguments, reason, estimate)
	if err != nil {
		execution.Error = err
		execution.Result = fmt.Sprintf("Error: could not file approval request: %v", err)
		return
	}

	execution.ApprovalID = &approvalRequest.ID
	execution.pendingApproval = approvalRequest
	execution.Result = fmt.Sprintf(
		"Approval required: %s. The user must approve request %s before this runs (expires %s). Do not retry, tell the user what is pending.",
		reason, approvalRequest.ID, approvalRequest.ExpiresAt.Format(time.RFC3339))

	if emit != nil {
		emit(StreamEvent{Type: StreamEventTypeAwaitingApproval, Tool: execution, Approval: approvalRequest})
	}
}

// persistResults appends the round's tool messages in call order
func (o *Orchestrator) persistResults(conversationID uuid.UUID, calls []llm.ToolCall, executions []ToolExecution) error {
	messages := make([]*models.Message, len(executions))
	for i := range executions {
		messages[i] = conversation.NewToolMessage(calls[i].ID, calls[i].Function.Name, executions[i].Result)
	}
	return o.agent.store.Append(conversationID, messages...)
}

// mergeToolCallDeltas accumulates streamed tool call fragments by index
func mergeToolCallDeltas(acc []llm.ToolCall, deltas []llm.ToolCall) []llm.ToolCall {
	for _, delta := range deltas {
		for delta.Index >= len(acc) {
			acc = append(acc, llm.ToolCall{Index: len(acc), Type: llm.ToolTypeFunction})
		}
		merged := &acc[delta.Index]
		if delta.ID != "" {
			merged.ID = delta.ID
		}
		if delta.Type != "" {
			merged.Type = delta.Type
		}
		if delta.Function.Name != "" {
			merged.Function.Name = delta.Function.Name
		}
		merged.Function.Arguments += delta.Function.Arguments
	}
	return acc
}

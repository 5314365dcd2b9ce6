package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/render"
	"github.com/gorilla/websocket"

	"github.com/fikriaf/ordo-backend/pkg/agent"
	"github.com/fikriaf/ordo-backend/pkg/conversation"
	"github.com/fikriaf/ordo-backend/pkg/models"

	"github.com/d4l-data4life/go-svc/pkg/logging"
)

// ChatHandler handles agent chat endpoints, both the synchronous ask
// and the WebSocket stream
type ChatHandler struct {
	store    *conversation.Store
	agent    *agent.Agent
	upgrader websocket.Upgrader
}

// NewChatHandler creates a new chat handler
func NewChatHandler(store *conversation.Store, ag *agent.Agent) *ChatHandler {
	return &ChatHandler{
		store: store,
		agent: ag,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // CORS is enforced at the router level
			},
		},
	}
}

// Routes returns chat routes, mounted under /conversations/{id}
func (h *ChatHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/ask", h.Ask)
	r.Get("/stream", h.Stream)

	return r
}

// AskRequest represents a request to send a message
type AskRequest struct {
	Content string `json:"content"`
}

// AskResponse represents the agent's answer to a message
type AskResponse struct {
	Content          string                   `json:"content"`
	Rounds           int                      `json:"rounds"`
	ToolsUsed        []ToolExecutionInfo      `json:"toolsUsed"`
	PendingApprovals []models.ApprovalRequest `json:"pendingApprovals,omitempty"`
	TotalTokens      int                      `json:"totalTokens"`
}

// ToolExecutionInfo is the wire form of one tool invocation
type ToolExecutionInfo struct {
	Tool       string                 `json:"tool"`
	Source     string                 `json:"source,omitempty"`
	Arguments  map[string]interface{} `json:"arguments,omitempty"`
	Result     string                 `json:"result,omitempty"`
	Error      string                 `json:"error,omitempty"`
	DurationMs int64                  `json:"durationMs"`
	ApprovalID string                 `json:"approvalId,omitempty"`
}

func toolExecutionInfo(te agent.ToolExecution) ToolExecutionInfo {
	info := ToolExecutionInfo{
		Tool:       te.QualifiedName,
		Source:     te.SourceID,
		Arguments:  te.Arguments,
		Result:     te.Result,
		DurationMs: te.Duration.Milliseconds(),
	}
	if te.Error != nil {
		info.Error = te.Error.Error()
	}
	if te.ApprovalID != nil {
		info.ApprovalID = te.ApprovalID.String()
	}
	return info
}

// Ask sends a message and waits for the agent's final answer
func (h *ChatHandler) Ask(w http.ResponseWriter, r *http.Request) {
	user, _ := GetUserFromContext(r.Context())

	convID, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}

	conv, err := h.store.Get(user.ID, convID)
	if err != nil {
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, map[string]string{"error": "Conversation not found"})
		return
	}

	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Content == "" {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, map[string]string{"error": "Message content is required"})
		return
	}

	response, err := h.agent.Chat(r.Context(), agent.ChatRequest{
		ConversationID: convID,
		User:           user,
		UserMessage:    req.Content,
		Model:          conv.Model,
	})
	if err != nil {
		logging.LogErrorf(err, "Agent failed")
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, map[string]string{"error": "Agent failed to process message"})
		return
	}

	h.maybeGenerateTitle(conv, req.Content)

	toolInfos := make([]ToolExecutionInfo, len(response.ToolsUsed))
	for i, te := range response.ToolsUsed {
		toolInfos[i] = toolExecutionInfo(te)
	}

	logging.LogDebugf("Message processed: conversation=%s rounds=%d tools=%d",
		convID, response.Rounds, len(response.ToolsUsed))

	render.JSON(w, r, AskResponse{
		Content:          response.Message.Content,
		Rounds:           response.Rounds,
		ToolsUsed:        toolInfos,
		PendingApprovals: response.PendingApprovals,
		TotalTokens:      response.TotalTokens,
	})
}

// Stream handles streaming chat over a WebSocket. Each client JSON
// frame {"content": ...} starts one agent turn; events stream back
// until the turn's done or error frame.
func (h *ChatHandler) Stream(w http.ResponseWriter, r *http.Request) {
	user, _ := GetUserFromContext(r.Context())

	convID, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}

	conv, err := h.store.Get(user.ID, convID)
	if err != nil {
		http.Error(w, "Conversation not found", http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.LogErrorf(err, "Failed to upgrade to WebSocket")
		return
	}
	defer conn.Close()

	logging.LogDebugf("WebSocket connection established: conversation=%s user=%s", convID, user.ID)

	// canceled when the socket goes away so the agent stops starting
	// new rounds
	streamCtx, cancel := context.WithCancel(r.Context())
	defer cancel()

	for {
		var req AskRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logging.LogDebugf("WebSocket closed normally")
			} else {
				logging.LogErrorf(err, "WebSocket read error")
			}
			return
		}

		if req.Content == "" {
			conn.WriteJSON(map[string]string{"error": "Message content is required"})
			continue
		}

		streamChan, err := h.agent.ChatStream(streamCtx, agent.ChatRequest{
			ConversationID: convID,
			User:           user,
			UserMessage:    req.Content,
			Model:          conv.Model,
		})
		if err != nil {
			conn.WriteJSON(map[string]string{"error": "Failed to start agent"})
			continue
		}

		h.maybeGenerateTitle(conv, req.Content)

		for event := range streamChan {
			if writeErr := h.writeEvent(conn, event); writeErr != nil {
				// client gone: in-flight tool calls finish, further
				// rounds are abandoned
				cancel()
				for range streamChan {
				}
				return
			}
		}
	}
}

// writeEvent forwards one agent event to the WebSocket client
func (h *ChatHandler) writeEvent(conn *websocket.Conn, event agent.StreamEvent) error {
	switch event.Type {
	case agent.StreamEventTypeContent:
		return conn.WriteJSON(map[string]interface{}{
			"type":    "content",
			"content": event.Content,
		})
	case agent.StreamEventTypeToolStart:
		return conn.WriteJSON(map[string]interface{}{
			"type": "tool_start",
			"tool": toolExecutionInfo(*event.Tool),
		})
	case agent.StreamEventTypeToolComplete:
		return conn.WriteJSON(map[string]interface{}{
			"type": "tool_complete",
			"tool": toolExecutionInfo(*event.Tool),
		})
	case agent.StreamEventTypeAwaitingApproval:
		return conn.WriteJSON(map[string]interface{}{
			"type":     "awaiting_approval",
			"tool":     toolExecutionInfo(*event.Tool),
			"approval": event.Approval,
		})
	case agent.StreamEventTypeDone:
		return conn.WriteJSON(map[string]interface{}{
			"type": "done",
		})
	case agent.StreamEventTypeError:
		msg := "internal error"
		if event.Error != nil {
			msg = event.Error.Error()
		}
		return conn.WriteJSON(map[string]interface{}{
			"type":  "error",
			"error": msg,
		})
	}
	return nil
}

// maybeGenerateTitle replaces the default title once the first exchange
// of a conversation exists
func (h *ChatHandler) maybeGenerateTitle(conv *models.Conversation, firstMessage string) {
	if conv.Title != "New Chat" && conv.Title != "New Conversation" {
		return
	}

	go func() {
		title := h.agent.GenerateChatTitle(context.Background(), firstMessage)
		if title == "" {
			return
		}
		if err := h.store.UpdateTitle(conv.UserID, conv.ID, title); err != nil {
			logging.LogErrorf(err, "Failed to update conversation title")
			return
		}
		conv.Title = title
		logging.LogDebugf("Auto-generated title for conversation %s: %s", conv.ID, title)
	}()
}

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/fikriaf/ordo-backend/pkg/conversation"

	"github.com/d4l-data4life/go-svc/pkg/logging"
)

// ConversationsHandler handles conversation endpoints
type ConversationsHandler struct {
	store *conversation.Store
}

// NewConversationsHandler creates a new conversations handler
func NewConversationsHandler(store *conversation.Store) *ConversationsHandler {
	return &ConversationsHandler{
		store: store,
	}
}

// Routes returns conversation routes
func (h *ConversationsHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListConversations)
	r.Post("/", h.CreateConversation)
	r.Get("/{id}", h.GetConversation)
	r.Put("/{id}", h.UpdateConversation)
	r.Delete("/{id}", h.DeleteConversation)
	r.Get("/{id}/messages", h.ListMessages)

	return r
}

// CreateConversationRequest represents a request to create a conversation
type CreateConversationRequest struct {
	Title string `json:"title"`
	Model string `json:"model"`
}

// UpdateConversationRequest represents a request to update a conversation
type UpdateConversationRequest struct {
	Title string `json:"title"`
}

// ListConversations returns the current user's conversations. Archived
// ones show up only with ?archived=true.
func (h *ConversationsHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	user, _ := GetUserFromContext(r.Context())
	includeArchived := r.URL.Query().Get("archived") == "true"

	summaries, err := h.store.List(user.ID, includeArchived)
	if err != nil {
		logging.LogErrorf(err, "Failed to list conversations")
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, map[string]string{"error": "Failed to list conversations"})
		return
	}

	render.JSON(w, r, summaries)
}

// CreateConversation creates a new conversation
func (h *ConversationsHandler) CreateConversation(w http.ResponseWriter, r *http.Request) {
	user, _ := GetUserFromContext(r.Context())

	var req CreateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, map[string]string{"error": "Invalid request body"})
		return
	}

	if req.Title == "" {
		req.Title = "New Conversation"
	}

	conv, err := h.store.Create(user.ID, req.Title, req.Model)
	if err != nil {
		logging.LogErrorf(err, "Failed to create conversation")
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, map[string]string{"error": "Failed to create conversation"})
		return
	}

	logging.LogDebugf("Created conversation: %s for user: %s", conv.ID, user.ID)

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, conv)
}

// GetConversation returns a specific conversation
func (h *ConversationsHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	user, _ := GetUserFromContext(r.Context())

	convID, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}

	conv, err := h.store.Get(user.ID, convID)
	if err != nil {
		if errors.Is(err, conversation.ErrConversationNotFound) {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, map[string]string{"error": "Conversation not found"})
		} else {
			logging.LogErrorf(err, "Failed to get conversation")
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "Failed to get conversation"})
		}
		return
	}

	render.JSON(w, r, conv)
}

// UpdateConversation renames a conversation
func (h *ConversationsHandler) UpdateConversation(w http.ResponseWriter, r *http.Request) {
	user, _ := GetUserFromContext(r.Context())

	convID, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}

	var req UpdateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Title == "" {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, map[string]string{"error": "Title is required"})
		return
	}

	if err := h.store.UpdateTitle(user.ID, convID, req.Title); err != nil {
		if errors.Is(err, conversation.ErrConversationNotFound) {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, map[string]string{"error": "Conversation not found"})
		} else {
			logging.LogErrorf(err, "Failed to update conversation")
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "Failed to update conversation"})
		}
		return
	}

	conv, err := h.store.Get(user.ID, convID)
	if err != nil {
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, map[string]string{"error": "Failed to load conversation"})
		return
	}

	render.JSON(w, r, conv)
}

// DeleteConversation removes a conversation and its messages
func (h *ConversationsHandler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	user, _ := GetUserFromContext(r.Context())

	convID, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}

	if err := h.store.Delete(user.ID, convID); err != nil {
		if errors.Is(err, conversation.ErrConversationNotFound) {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, map[string]string{"error": "Conversation not found"})
		} else {
			logging.LogErrorf(err, "Failed to delete conversation")
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "Failed to delete conversation"})
		}
		return
	}

	logging.LogDebugf("Deleted conversation: %s", convID)

	w.WriteHeader(http.StatusNoContent)
}

const (
	defaultMessagePageSize = 50
	maxMessagePageSize     = 200
)

// ListMessages returns a page of the conversation's history, controlled
// by limit and offset query parameters
func (h *ConversationsHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	user, _ := GetUserFromContext(r.Context())

	convID, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}

	// ownership check before exposing history
	if _, err := h.store.Get(user.ID, convID); err != nil {
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, map[string]string{"error": "Conversation not found"})
		return
	}

	limit := queryInt(r, "limit", defaultMessagePageSize)
	if limit <= 0 || limit > maxMessagePageSize {
		limit = defaultMessagePageSize
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	messages, total, err := h.store.MessagePage(convID, limit, offset)
	if err != nil {
		logging.LogErrorf(err, "Failed to list messages")
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, map[string]string{"error": "Failed to list messages"})
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"messages": messages,
		"total":    total,
		"limit":    limit,
		"offset":   offset,
	})
}

// queryInt parses an integer query parameter with a fallback
func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

// parseIDParam parses a UUID URL parameter, writing the error response itself
func parseIDParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, map[string]string{"error": "Invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}

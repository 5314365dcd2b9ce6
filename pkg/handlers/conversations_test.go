package handlers_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fikriaf/ordo-backend/internal/testutils"
	"github.com/fikriaf/ordo-backend/pkg/conversation"
	"github.com/fikriaf/ordo-backend/pkg/handlers"
	"github.com/fikriaf/ordo-backend/pkg/models"

	"github.com/d4l-data4life/go-svc/pkg/db"
)

func setupConversationsHandler(t *testing.T) (*handlers.ConversationsHandler, *conversation.Store, models.User) {
	models.InitializeTestDB(t)
	t.Cleanup(func() { db.Close() })

	store := conversation.NewStore(db.Get(), 24*time.Hour, time.Hour)
	user := testutils.CreateTestUser(t, "alice", models.AutonomyLevelSemi)
	return handlers.NewConversationsHandler(store), store, user
}

func userRequest(req *http.Request, user models.User) *http.Request {
	return req.WithContext(context.WithValue(req.Context(), handlers.ContextKeyUser, user))
}

func userRequestWithID(req *http.Request, user models.User, id string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
	ctx = context.WithValue(ctx, handlers.ContextKeyUser, user)
	return req.WithContext(ctx)
}

func TestCreateConversation(t *testing.T) {
	handler, _, user := setupConversationsHandler(t)

	payload := testutils.GetRequestPayload(handlers.CreateConversationRequest{Title: "Portfolio check"})
	req := userRequest(httptest.NewRequest(http.MethodPost, "/conversations", payload), user)
	rec := httptest.NewRecorder()

	handler.CreateConversation(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var conv models.Conversation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &conv))
	assert.Equal(t, "Portfolio check", conv.Title)
	assert.Equal(t, user.ID, conv.UserID)
}

func TestCreateConversationDefaultTitle(t *testing.T) {
	handler, _, user := setupConversationsHandler(t)

	payload := testutils.GetRequestPayload(handlers.CreateConversationRequest{})
	req := userRequest(httptest.NewRequest(http.MethodPost, "/conversations", payload), user)
	rec := httptest.NewRecorder()

	handler.CreateConversation(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var conv models.Conversation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &conv))
	assert.Equal(t, "New Conversation", conv.Title)
}

func TestListConversations(t *testing.T) {
	handler, store, user := setupConversationsHandler(t)
	_, err := store.Create(user.ID, "first", "")
	require.NoError(t, err)
	_, err = store.Create(user.ID, "second", "")
	require.NoError(t, err)

	// another user's conversation stays invisible
	other := testutils.CreateTestUser(t, "bob", models.AutonomyLevelSemi)
	_, err = store.Create(other.ID, "not yours", "")
	require.NoError(t, err)

	req := userRequest(httptest.NewRequest(http.MethodGet, "/conversations", nil), user)
	rec := httptest.NewRecorder()

	handler.ListConversations(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var summaries []models.ConversationSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summaries))
	assert.Len(t, summaries, 2)
}

func TestGetConversationScopedToOwner(t *testing.T) {
	handler, store, user := setupConversationsHandler(t)
	other := testutils.CreateTestUser(t, "bob", models.AutonomyLevelSemi)
	conv, err := store.Create(other.ID, "bob's chat", "")
	require.NoError(t, err)

	req := userRequestWithID(httptest.NewRequest(http.MethodGet, "/conversations/id", nil), user, conv.ID.String())
	rec := httptest.NewRecorder()

	handler.GetConversation(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateConversation(t *testing.T) {
	handler, store, user := setupConversationsHandler(t)
	conv, err := store.Create(user.ID, "old title", "")
	require.NoError(t, err)

	payload := testutils.GetRequestPayload(handlers.UpdateConversationRequest{Title: "new title"})
	req := userRequestWithID(httptest.NewRequest(http.MethodPut, "/conversations/id", payload), user, conv.ID.String())
	rec := httptest.NewRecorder()

	handler.UpdateConversation(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var updated models.Conversation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, "new title", updated.Title)
}

func TestUpdateConversationRequiresTitle(t *testing.T) {
	handler, store, user := setupConversationsHandler(t)
	conv, err := store.Create(user.ID, "old title", "")
	require.NoError(t, err)

	payload := testutils.GetRequestPayload(handlers.UpdateConversationRequest{})
	req := userRequestWithID(httptest.NewRequest(http.MethodPut, "/conversations/id", payload), user, conv.ID.String())
	rec := httptest.NewRecorder()

	handler.UpdateConversation(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteConversation(t *testing.T) {
	handler, store, user := setupConversationsHandler(t)
	conv, err := store.Create(user.ID, "doomed", "")
	require.NoError(t, err)
	require.NoError(t, store.Append(conv.ID, conversation.NewUserMessage("hello")))

	req := userRequestWithID(httptest.NewRequest(http.MethodDelete, "/conversations/id", nil), user, conv.ID.String())
	rec := httptest.NewRecorder()

	handler.DeleteConversation(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)

	_, err = store.Get(user.ID, conv.ID)
	assert.ErrorIs(t, err, conversation.ErrConversationNotFound)
}

// messagePage mirrors the pagination envelope of ListMessages
type messagePage struct {
	Messages []models.Message `json:"messages"`
	Total    int64            `json:"total"`
	Limit    int              `json:"limit"`
	Offset   int              `json:"offset"`
}

func TestListMessages(t *testing.T) {
	handler, store, user := setupConversationsHandler(t)
	conv, err := store.Create(user.ID, "chat", "")
	require.NoError(t, err)
	require.NoError(t, store.Append(conv.ID,
		conversation.NewUserMessage("what's my balance?"),
		conversation.NewAssistantMessage("You hold 12.5 SOL", nil),
	))

	req := userRequestWithID(httptest.NewRequest(http.MethodGet, "/conversations/id/messages", nil), user, conv.ID.String())
	rec := httptest.NewRecorder()

	handler.ListMessages(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var page messagePage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Messages, 2)
	assert.Equal(t, int64(2), page.Total)
	assert.Equal(t, models.MessageRoleUser, page.Messages[0].Role)
	assert.Equal(t, models.MessageRoleAssistant, page.Messages[1].Role)
}

func TestListMessagesPaginates(t *testing.T) {
	handler, store, user := setupConversationsHandler(t)
	conv, err := store.Create(user.ID, "long chat", "")
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		require.NoError(t, store.Append(conv.ID, conversation.NewUserMessage(fmt.Sprintf("message %d", i))))
		time.Sleep(2 * time.Millisecond)
	}

	req := userRequestWithID(
		httptest.NewRequest(http.MethodGet, "/conversations/id/messages?limit=2&offset=2", nil),
		user, conv.ID.String())
	rec := httptest.NewRecorder()

	handler.ListMessages(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var page messagePage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Messages, 2)
	assert.Equal(t, int64(5), page.Total)
	assert.Equal(t, 2, page.Limit)
	assert.Equal(t, 2, page.Offset)
	assert.Equal(t, "message 2", page.Messages[0].Content)
	assert.Equal(t, "message 3", page.Messages[1].Content)

	// out-of-range offsets yield an empty page, not an error
	req = userRequestWithID(
		httptest.NewRequest(http.MethodGet, "/conversations/id/messages?limit=2&offset=50", nil),
		user, conv.ID.String())
	rec = httptest.NewRecorder()

	handler.ListMessages(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Empty(t, page.Messages)
	assert.Equal(t, int64(5), page.Total)
}

func TestListMessagesChecksOwnership(t *testing.T) {
	handler, store, user := setupConversationsHandler(t)
	other := testutils.CreateTestUser(t, "bob", models.AutonomyLevelSemi)
	conv, err := store.Create(other.ID, "bob's chat", "")
	require.NoError(t, err)

	req := userRequestWithID(httptest.NewRequest(http.MethodGet, "/conversations/id/messages", nil), user, conv.ID.String())
	rec := httptest.NewRecorder()

	handler.ListMessages(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

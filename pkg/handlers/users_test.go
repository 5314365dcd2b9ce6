package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fikriaf/ordo-backend/internal/testutils"
	"github.com/fikriaf/ordo-backend/pkg/handlers"
	"github.com/fikriaf/ordo-backend/pkg/models"

	"github.com/d4l-data4life/go-svc/pkg/db"
)

func setupUsersHandler(t *testing.T) *handlers.UsersHandler {
	models.InitializeTestDB(t)
	t.Cleanup(func() { db.Close() })
	return handlers.NewUsersHandler(db.Get())
}

// withIDParam injects a chi URL parameter the way the router would
func withIDParam(req *http.Request, id string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestListUsers(t *testing.T) {
	handler := setupUsersHandler(t)
	testutils.CreateTestUser(t, "alice", models.AutonomyLevelSemi)
	testutils.CreateTestUser(t, "bob", models.AutonomyLevelManual)

	req := httptest.NewRequest(http.MethodGet, "/internal/users", nil)
	rec := httptest.NewRecorder()

	handler.ListUsers(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var users []models.PublicUser
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &users))
	require.Len(t, users, 2)

	usernames := []string{*users[0].Username, *users[1].Username}
	assert.ElementsMatch(t, []string{"alice", "bob"}, usernames)
}

func TestUpdateAutonomy(t *testing.T) {
	handler := setupUsersHandler(t)
	user := testutils.CreateTestUser(t, "alice", models.AutonomyLevelSemi)

	payload := testutils.GetRequestPayload(handlers.UpdateAutonomyRequest{
		Autonomy:                models.AutonomyLevelFull,
		RequireApprovalAboveUSD: testutils.Pointerfy(250.0),
	})
	req := withIDParam(httptest.NewRequest(http.MethodPut, "/internal/users/id/autonomy", payload), user.ID.String())
	rec := httptest.NewRecorder()

	handler.UpdateAutonomy(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)

	var updated models.User
	require.NoError(t, db.Get().First(&updated, "id = ?", user.ID).Error)
	assert.Equal(t, models.AutonomyLevelFull, updated.Autonomy)
	assert.Equal(t, 250.0, updated.RequireApprovalAboveUSD)
}

func TestUpdateAutonomyRejectsUnknownLevel(t *testing.T) {
	handler := setupUsersHandler(t)
	user := testutils.CreateTestUser(t, "alice", models.AutonomyLevelSemi)

	payload := testutils.GetRequestPayload(map[string]string{"autonomy": "yolo"})
	req := withIDParam(httptest.NewRequest(http.MethodPut, "/internal/users/id/autonomy", payload), user.ID.String())
	rec := httptest.NewRecorder()

	handler.UpdateAutonomy(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateAutonomyUnknownUser(t *testing.T) {
	handler := setupUsersHandler(t)

	payload := testutils.GetRequestPayload(handlers.UpdateAutonomyRequest{Autonomy: models.AutonomyLevelManual})
	req := withIDParam(httptest.NewRequest(http.MethodPut, "/internal/users/id/autonomy", payload), uuid.New().String())
	rec := httptest.NewRecorder()

	handler.UpdateAutonomy(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteUser(t *testing.T) {
	handler := setupUsersHandler(t)
	user := testutils.CreateTestUser(t, "alice", models.AutonomyLevelSemi)

	req := withIDParam(httptest.NewRequest(http.MethodDelete, "/internal/users/id", nil), user.ID.String())
	rec := httptest.NewRecorder()

	handler.DeleteUser(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)

	// soft delete: gone from normal queries, still visible unscoped
	var count int64
	require.NoError(t, db.Get().Model(&models.User{}).Where("id = ?", user.ID).Count(&count).Error)
	assert.Zero(t, count)
	require.NoError(t, db.Get().Unscoped().Model(&models.User{}).Where("id = ?", user.ID).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestDeleteUserNotFound(t *testing.T) {
	handler := setupUsersHandler(t)

	req := withIDParam(httptest.NewRequest(http.MethodDelete, "/internal/users/id", nil), uuid.New().String())
	rec := httptest.NewRecorder()

	handler.DeleteUser(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteUserInvalidID(t *testing.T) {
	handler := setupUsersHandler(t)

	req := withIDParam(httptest.NewRequest(http.MethodDelete, "/internal/users/id", nil), "not-a-uuid")
	rec := httptest.NewRecorder()

	handler.DeleteUser(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

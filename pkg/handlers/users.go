package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/render"
	"gorm.io/gorm"

	"github.com/fikriaf/ordo-backend/pkg/models"

	"github.com/d4l-data4life/go-svc/pkg/logging"
)

// UsersHandler handles the internal user management endpoints
type UsersHandler struct {
	db *gorm.DB
}

// NewUsersHandler creates a new users handler
func NewUsersHandler(db *gorm.DB) *UsersHandler {
	return &UsersHandler{
		db: db,
	}
}

// Routes returns user management routes
func (h *UsersHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListUsers)
	r.Put("/{id}/autonomy", h.UpdateAutonomy)
	r.Delete("/{id}", h.DeleteUser)

	return r
}

// UpdateAutonomyRequest changes how much the agent may do unattended
type UpdateAutonomyRequest struct {
	Autonomy                models.AutonomyLevel `json:"autonomy"`
	RequireApprovalAboveUSD *float64             `json:"requireApprovalAboveUsd,omitempty"`
}

// ListUsers returns all users in the system
func (h *UsersHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	var users []models.User

	// include soft-deleted users for admin visibility
	if err := h.db.Unscoped().Find(&users).Error; err != nil {
		logging.LogErrorf(err, "Failed to list users")
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, map[string]string{"error": "Failed to list users"})
		return
	}

	publicUsers := make([]models.PublicUser, len(users))
	for i, user := range users {
		publicUsers[i] = user.ToPublic()
	}

	render.JSON(w, r, publicUsers)
}

// UpdateAutonomy sets a user's autonomy level and approval threshold
func (h *UsersHandler) UpdateAutonomy(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}

	var req UpdateAutonomyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, map[string]string{"error": "Invalid request body"})
		return
	}

	switch req.Autonomy {
	case models.AutonomyLevelManual, models.AutonomyLevelSemi, models.AutonomyLevelFull:
	default:
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, map[string]string{"error": "Autonomy must be manual, semi, or full"})
		return
	}

	updates := map[string]interface{}{"autonomy": req.Autonomy}
	if req.RequireApprovalAboveUSD != nil {
		updates["require_approval_above_usd"] = *req.RequireApprovalAboveUSD
	}

	result := h.db.Model(&models.User{}).Where("id = ?", userID).Updates(updates)
	if result.Error != nil {
		logging.LogErrorf(result.Error, "Failed to update user autonomy")
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, map[string]string{"error": "Failed to update user"})
		return
	}
	if result.RowsAffected == 0 {
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, map[string]string{"error": "User not found"})
		return
	}

	logging.LogDebugf("Updated autonomy for user %s to %s", userID, req.Autonomy)
	w.WriteHeader(http.StatusNoContent)
}

// DeleteUser deletes a user by ID
func (h *UsersHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}

	var user models.User
	if err := h.db.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, map[string]string{"error": "User not found"})
			return
		}
		logging.LogErrorf(err, "Failed to find user")
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, map[string]string{"error": "Failed to find user"})
		return
	}

	if err := h.db.Delete(&user).Error; err != nil {
		logging.LogErrorf(err, "Failed to delete user")
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, map[string]string{"error": "Failed to delete user"})
		return
	}

	logging.LogDebugf("User deleted successfully: %s", userID)
	w.WriteHeader(http.StatusNoContent)
}

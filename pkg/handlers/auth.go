package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/render"
	"golang.org/x/crypto/bcrypt"

	"github.com/fikriaf/ordo-backend/pkg/auth"
	"github.com/fikriaf/ordo-backend/pkg/models"

	"github.com/d4l-data4life/go-svc/pkg/logging"
)

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	issuer *auth.Issuer
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(issuer *auth.Issuer) *AuthHandler {
	return &AuthHandler{
		issuer: issuer,
	}
}

// Routes returns auth routes
func (h *AuthHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/register", h.Register)
	r.Post("/login", h.Login)

	return r
}

// RegisterRequest represents a registration request
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest represents a login request
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthResponse represents an authentication response
type AuthResponse struct {
	User  models.PublicUser `json:"user"`
	Token string            `json:"token"`
}

// Register handles user registration
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, map[string]string{"error": "Invalid request body"})
		return
	}

	if req.Username == "" || req.Password == "" {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, map[string]string{"error": "Username and password are required"})
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		logging.LogErrorf(err, "Failed to hash password")
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, map[string]string{"error": "Failed to create user"})
		return
	}
	hashedPasswordStr := string(hashedPassword)

	user := models.User{
		Username:     &req.Username,
		PasswordHash: &hashedPasswordStr,
	}
	if req.Email != "" {
		user.Email = &req.Email
	}

	if err := models.CreateUser(&user); err != nil {
		if errors.Is(err, models.ErrUserDuplicateUsername) {
			render.Status(r, http.StatusConflict)
			render.JSON(w, r, map[string]string{"error": "Username already exists"})
			return
		}
		logging.LogErrorf(err, "Failed to create user")
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, map[string]string{"error": "Failed to create user"})
		return
	}

	token, err := h.issuer.IssueToken(user.ID)
	if err != nil {
		logging.LogErrorf(err, "Failed to issue JWT")
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, map[string]string{"error": "Failed to generate token"})
		return
	}

	logging.LogDebugf("User registered: %s", req.Username)

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, AuthResponse{
		User:  user.ToPublic(),
		Token: token,
	})
}

// Login handles user login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, map[string]string{"error": "Invalid request body"})
		return
	}

	user, err := models.GetUserByUsername(req.Username)
	if err != nil {
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, map[string]string{"error": "Invalid username or password"})
		return
	}

	if user.PasswordHash == nil {
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, map[string]string{"error": "Invalid username or password"})
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(req.Password)); err != nil {
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, map[string]string{"error": "Invalid username or password"})
		return
	}

	token, err := h.issuer.IssueToken(user.ID)
	if err != nil {
		logging.LogErrorf(err, "Failed to issue JWT")
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, map[string]string{"error": "Failed to generate token"})
		return
	}

	logging.LogDebugf("User logged in: %s", req.Username)

	render.JSON(w, r, AuthResponse{
		User:  user.ToPublic(),
		Token: token,
	})
}

// Me returns the current authenticated user
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := GetUserFromContext(r.Context())
	if !ok {
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, map[string]string{"error": "Unauthorized"})
		return
	}
	render.JSON(w, r, user.ToPublic())
}

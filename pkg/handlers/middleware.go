package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/render"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fikriaf/ordo-backend/pkg/auth"
	"github.com/fikriaf/ordo-backend/pkg/models"
)

// ContextKey is the type for context keys
type ContextKey string

// ContextKeyUser is the context key for the authenticated user
const ContextKeyUser ContextKey = "user"

// AuthMiddleware validates the request's JWT and loads the user into
// the context. The token comes from the Authorization header or, for
// WebSocket upgrades where headers are awkward, a token query parameter.
func AuthMiddleware(db *gorm.DB, tokenValidator auth.TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, map[string]string{"error": "Missing authorization token"})
				return
			}

			userID, err := validateToken(tokenValidator, token)
			if err != nil {
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, map[string]string{"error": "Invalid or expired token"})
				return
			}

			var user models.User
			if err := db.First(&user, "id = ?", userID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					render.Status(r, http.StatusUnauthorized)
					render.JSON(w, r, map[string]string{
						"error": "User not found - please log in again",
						"code":  "USER_NOT_FOUND",
					})
					return
				}
				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, map[string]string{"error": "Failed to load user"})
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyUser, user)
			ctx = auth.ContextWithBearerToken(ctx, token)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken extracts the token from header or query parameter
func bearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

// validateToken verifies the JWT and extracts the user ID from its
// subject claim
func validateToken(validator auth.TokenValidator, tokenStr string) (uuid.UUID, error) {
	parsedToken, err := validator.ValidateJWT(tokenStr)
	if err != nil {
		return uuid.Nil, err
	}
	token := *parsedToken

	subject := token.Subject()
	if subject == "" {
		if oid, ok := token.Get("oid"); ok {
			subject, _ = oid.(string)
		}
	}
	if subject == "" {
		return uuid.Nil, errors.New("token missing subject claim")
	}

	userID, err := uuid.Parse(subject)
	if err != nil {
		// non-UUID subjects from external identity providers map to a
		// deterministic UUID so the user keeps the same ID across logins
		userID = uuid.NewSHA1(uuid.NameSpaceOID, []byte(subject))
	}
	return userID, nil
}

// GetUserFromContext retrieves the authenticated user from the request context
func GetUserFromContext(ctx context.Context) (models.User, bool) {
	user, ok := ctx.Value(ContextKeyUser).(models.User)
	return user, ok
}

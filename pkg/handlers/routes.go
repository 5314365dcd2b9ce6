package handlers

import (
	"github.com/go-chi/chi"
	"github.com/spf13/viper"
	"gorm.io/gorm"

	"github.com/fikriaf/ordo-backend/pkg/agent"
	"github.com/fikriaf/ordo-backend/pkg/approval"
	"github.com/fikriaf/ordo-backend/pkg/auth"
	"github.com/fikriaf/ordo-backend/pkg/config"
	"github.com/fikriaf/ordo-backend/pkg/conversation"
	"github.com/fikriaf/ordo-backend/pkg/mcp/gateway"
	"github.com/fikriaf/ordo-backend/pkg/tools"

	"github.com/d4l-data4life/go-svc/pkg/middlewares"
)

// Deps bundles everything the API routes need
type Deps struct {
	DB             *gorm.DB
	Agent          *agent.Agent
	Store          *conversation.Store
	Gate           *approval.Gate
	Gateway        *gateway.Gateway
	Catalog        *tools.Catalog
	Issuer         *auth.Issuer
	TokenValidator auth.TokenValidator
}

// RegisterRoutes registers all API routes
func RegisterRoutes(r chi.Router, deps Deps) {
	prefix := viper.GetString("PREFIX")

	// External routes (ingress routes)
	r.Route(prefix, func(r chi.Router) {
		// Public routes (no authentication required)
		authHandler := NewAuthHandler(deps.Issuer)
		r.Mount("/auth", authHandler.Routes())

		// Protected routes (authentication required)
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(deps.DB, deps.TokenValidator))

			r.Get("/auth/me", authHandler.Me)

			// Conversations and chat
			conversationsHandler := NewConversationsHandler(deps.Store)
			r.Mount("/conversations", conversationsHandler.Routes())

			chatHandler := NewChatHandler(deps.Store, deps.Agent)
			r.Route("/conversations/{id}", func(r chi.Router) {
				r.Mount("/", chatHandler.Routes())
			})

			// Approval inbox
			approvalsHandler := NewApprovalsHandler(deps.Gate, deps.Agent)
			r.Mount("/approvals", approvalsHandler.Routes())

			// Tool catalog and server state
			toolServersHandler := NewToolServersHandler(deps.Gateway, deps.Catalog)
			r.Mount("/tools", toolServersHandler.Routes())
		})
	})

	// Internal routes (service-to-service)
	r.Route(config.InternalPrefix, func(r chi.Router) {
		r.Group(func(r chi.Router) {
			serviceSecret := viper.GetString("SERVICE_SECRET")
			if serviceSecret == "" {
				// no service secret configured, skip service auth routes
				return
			}

			logger := NewServiceAuthLogger()
			serviceAuth := middlewares.NewServiceSecretAuthenticator(serviceSecret, logger)
			r.Use(serviceAuth.Authenticate())

			// Users management
			usersHandler := NewUsersHandler(deps.DB)
			r.Mount("/users", usersHandler.Routes())
		})
	})
}

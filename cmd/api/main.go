package main

import (
	"context"
	"strings"

	"github.com/go-chi/cors"
	"github.com/spf13/viper"

	"github.com/fikriaf/ordo-backend/pkg/agent"
	"github.com/fikriaf/ordo-backend/pkg/approval"
	"github.com/fikriaf/ordo-backend/pkg/auth"
	"github.com/fikriaf/ordo-backend/pkg/config"
	"github.com/fikriaf/ordo-backend/pkg/conversation"
	"github.com/fikriaf/ordo-backend/pkg/handlers"
	"github.com/fikriaf/ordo-backend/pkg/llm"
	"github.com/fikriaf/ordo-backend/pkg/llm/openai"
	"github.com/fikriaf/ordo-backend/pkg/mcp/client"
	"github.com/fikriaf/ordo-backend/pkg/mcp/gateway"
	"github.com/fikriaf/ordo-backend/pkg/metrics"
	"github.com/fikriaf/ordo-backend/pkg/models"
	"github.com/fikriaf/ordo-backend/pkg/policy"
	"github.com/fikriaf/ordo-backend/pkg/server"
	"github.com/fikriaf/ordo-backend/pkg/tools"
	"github.com/fikriaf/ordo-backend/pkg/tools/plugins"

	"github.com/d4l-data4life/go-svc/pkg/db"
	"github.com/d4l-data4life/go-svc/pkg/logging"
	"github.com/d4l-data4life/go-svc/pkg/standard"
)

func main() {
	config.SetupEnv()
	dbOpts := db.NewConnection(
		db.WithDebug(viper.GetBool("DEBUG")),
		db.WithHost(viper.GetString("DB_HOST")),
		db.WithPort(viper.GetString("DB_PORT")),
		db.WithDatabaseSchema(viper.GetString("DB_SCHEMA")),
		db.WithDatabaseName(viper.GetString("DB_NAME")),
		db.WithUser(viper.GetString("DB_USER")),
		db.WithPassword(viper.GetString("DB_PASS")),
		db.WithSSLMode(viper.GetString("DB_SSL_MODE")),
		db.WithSSLRootCertPath(viper.GetString("DB_SSL_ROOT_CERT_PATH")),
		db.WithMigrationFunc(models.MigrationFunc),
		db.WithMigrationVersion(config.MigrationVersion),
	)
	standard.Main(mainAPI, config.Name, standard.WithPostgres(dbOpts))
}

// mainAPI contains the main service logic - it must finish on runCtx cancelation!
func mainAPI(runCtx context.Context, svcName string) <-chan struct{} {
	port := viper.GetString("PORT")
	corsOptions := config.CorsConfig(strings.Split(viper.GetString("CORS_HOSTS"), " "))
	srv := server.NewServer(svcName,
		cors.New(corsOptions),
		viper.GetInt("HTTP_MAX_PARALLEL_REQUESTS"),
		viper.GetDuration("HTTP_REQUEST_TIMEOUT"),
	)

	llmCfg := config.GetLLMConfig()
	llmClient := buildCompletionChain(llmCfg)

	gatewayCfg := config.GetGatewayConfig()
	factory := client.NewFactory(config.Name, config.Version, gatewayCfg.RequestTimeout)
	gw := gateway.NewGateway(config.GetToolServers(), factory, gatewayCfg)

	registry := tools.NewRegistry()
	tradingPlugin := plugins.NewTradingPlugin()
	for _, p := range []tools.Plugin{
		plugins.NewWalletPlugin(),
		plugins.NewDefiPlugin(),
		tradingPlugin,
		plugins.NewNFTPlugin(),
		plugins.NewSocialPlugin(),
		plugins.NewEmailPlugin(),
		plugins.NewSearchPlugin(),
	} {
		if err := registry.Register(p); err != nil {
			logging.LogErrorf(err, "Failed to register plugin %s", p.ID())
		}
	}
	catalog := tools.NewCatalog(registry, gw)

	approvalCfg := config.GetApprovalConfig()
	gate := approval.NewGate(db.Get(), approvalCfg.TTL, approvalCfg.SweepInterval)
	gate.StartSweeper(runCtx)

	conversationCfg := config.GetConversationConfig()
	store := conversation.NewStore(db.Get(), conversationCfg.ArchiveAfter, conversationCfg.ArchiveInterval)
	store.StartArchiver(runCtx)

	agentCfg := config.GetAgentConfig()
	summarizeThreshold := agentCfg.SummarizeThreshold
	if agentCfg.MaxContextTokens > 0 && summarizeThreshold > agentCfg.MaxContextTokens {
		summarizeThreshold = agentCfg.MaxContextTokens
	}
	window := conversation.NewWindow(store, llmClient,
		agentCfg.WindowSize, summarizeThreshold, agentCfg.SummarizeRetain)

	engine := policy.NewEngine().WithPriceQuoter(tradingPlugin)
	ordoAgent := agent.NewAgent(store, window, catalog, engine, gate, llmClient, agent.Config{
		MaxRounds:            agentCfg.MaxRounds,
		ToolExecutionTimeout: agentCfg.ToolExecutionTimeout,
		DefaultModel:         llmCfg.Primary.Model,
		Temperature:          &llmCfg.Temperature,
		MaxTokens:            &llmCfg.MaxTokens,
		TopP:                 &llmCfg.TopP,
	})

	issuer, err := auth.NewIssuer([]byte(viper.GetString("JWT_SECRET")))
	if err != nil {
		logging.LogErrorf(err, "Failed to initialize token issuer")
		dieEarly := make(chan struct{})
		close(dieEarly)
		return dieEarly
	}
	validator, err := buildTokenValidator(runCtx)
	if err != nil {
		logging.LogErrorf(err, "Failed to initialize token validator")
		dieEarly := make(chan struct{})
		close(dieEarly)
		return dieEarly
	}

	server.SetupRoutes(srv.Mux(), handlers.Deps{
		DB:             db.Get(),
		Agent:          ordoAgent,
		Store:          store,
		Gate:           gate,
		Gateway:        gw,
		Catalog:        catalog,
		Issuer:         issuer,
		TokenValidator: validator,
	})
	metrics.AddBuildInfoMetric()
	metrics.RegisterAgentMetrics()
	return standard.ListenAndServe(runCtx, srv.Mux(), port)
}

// buildCompletionChain wraps the configured providers with per-provider
// retries and a primary-to-fallback switch on exhaustion.
func buildCompletionChain(cfg config.LLMConfig) llm.Client {
	primary := llm.NewRetryClient(openai.NewClient(openai.Config{
		APIKey:  cfg.Primary.APIKey,
		BaseURL: cfg.Primary.BaseURL,
		Model:   cfg.Primary.Model,
		Timeout: cfg.RequestTimeout,
	}), cfg.RetryAttempts)

	if cfg.Fallback.BaseURL == "" {
		return primary
	}

	fallback := llm.NewRetryClient(openai.NewClient(openai.Config{
		APIKey:  cfg.Fallback.APIKey,
		BaseURL: cfg.Fallback.BaseURL,
		Model:   cfg.Fallback.Model,
		Timeout: cfg.RequestTimeout,
	}), cfg.RetryAttempts)

	return llm.NewFallbackClient(primary, fallback)
}

// buildTokenValidator prefers a remote JWKS endpoint when one is
// configured and falls back to the shared-secret validator.
func buildTokenValidator(ctx context.Context) (auth.TokenValidator, error) {
	if keysURL := viper.GetString("JWT_KEYS_URL"); keysURL != "" {
		return auth.NewRemoteKeyStore(ctx, keysURL)
	}
	return auth.NewLocalJWTValidator([]byte(viper.GetString("JWT_SECRET")))
}

package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/d4l-data4life/go-svc/pkg/logging"
)

// ToolServerConfig represents configuration for a remote tool server connection
type ToolServerConfig struct {
	ID            string            `yaml:"id"                    json:"id"`
	Name          string            `yaml:"name"                  json:"name"`
	Type          string            `yaml:"type"                  json:"type"` // "http" or "sse"
	URL           string            `yaml:"url"                   json:"url"`
	Headers       map[string]string `yaml:"headers,omitempty"     json:"headers,omitempty"`
	ForwardBearer bool              `yaml:"forwardBearer"         json:"forwardBearer"` // When true, the current user's bearer token will be forwarded as Authorization header.
	Enabled       bool              `yaml:"enabled"               json:"enabled"`
	Description   string            `yaml:"description,omitempty" json:"description,omitempty"`
}

// LLMProviderConfig represents configuration for a single OpenAI-compatible provider
type LLMProviderConfig struct {
	BaseURL string `yaml:"baseUrl" json:"baseUrl"`
	APIKey  string `yaml:"apiKey"  json:"-"`
	Model   string `yaml:"model"   json:"model"`
}

// LLMConfig represents configuration for the completion providers
type LLMConfig struct {
	Primary        LLMProviderConfig `yaml:"primary"        json:"primary"`
	Fallback       LLMProviderConfig `yaml:"fallback"       json:"fallback"`
	Temperature    float64           `yaml:"temperature"    json:"temperature"`
	MaxTokens      int               `yaml:"maxTokens"      json:"maxTokens"`
	TopP           float64           `yaml:"topP"           json:"topP"`
	RequestTimeout time.Duration     `yaml:"requestTimeout" json:"requestTimeout"`
	RetryAttempts  int               `yaml:"retryAttempts"  json:"retryAttempts"`
}

// AgentConfig represents configuration for the agent orchestrator
type AgentConfig struct {
	MaxRounds            int           `yaml:"maxRounds"            json:"maxRounds"`
	MaxContextTokens     int           `yaml:"maxContextTokens"     json:"maxContextTokens"`
	ToolExecutionTimeout time.Duration `yaml:"toolExecutionTimeout" json:"toolExecutionTimeout"`
	WindowSize           int           `yaml:"windowSize"           json:"windowSize"`
	SummarizeThreshold   int           `yaml:"summarizeThreshold"   json:"summarizeThreshold"`
	SummarizeRetain      int           `yaml:"summarizeRetain"      json:"summarizeRetain"`
}

// ApprovalConfig represents configuration for the approval gate
type ApprovalConfig struct {
	TTL           time.Duration `yaml:"ttl"           json:"ttl"`
	SweepInterval time.Duration `yaml:"sweepInterval" json:"sweepInterval"`
}

// GatewayConfig represents configuration for the remote tool gateway
type GatewayConfig struct {
	DiscoveryTTL   time.Duration `yaml:"discoveryTTL"   json:"discoveryTTL"`
	RequestTimeout time.Duration `yaml:"requestTimeout" json:"requestTimeout"`
}

// ConversationConfig represents configuration for conversation housekeeping
type ConversationConfig struct {
	ArchiveAfter    time.Duration `yaml:"archiveAfter"    json:"archiveAfter"`
	ArchiveInterval time.Duration `yaml:"archiveInterval" json:"archiveInterval"`
}

// GetToolServers returns configured remote tool servers from viper
func GetToolServers() []ToolServerConfig {
	var servers []ToolServerConfig
	if err := viper.UnmarshalKey("tool_servers", &servers); err != nil {
		fmt.Printf("Warning: Failed to unmarshal tool_servers from config: %v\n", err)
		return nil
	}
	logging.LogDebugf("Loaded %d tool servers from configuration", len(servers))
	return servers
}

// GetLLMConfig returns completion provider configuration from viper
func GetLLMConfig() LLMConfig {
	return LLMConfig{
		Primary: LLMProviderConfig{
			BaseURL: viper.GetString("LLM_BASE_URL"),
			APIKey:  viper.GetString("LLM_API_KEY"),
			Model:   viper.GetString("LLM_MODEL"),
		},
		Fallback: LLMProviderConfig{
			BaseURL: viper.GetString("LLM_FALLBACK_BASE_URL"),
			APIKey:  viper.GetString("LLM_FALLBACK_API_KEY"),
			Model:   viper.GetString("LLM_FALLBACK_MODEL"),
		},
		Temperature:    viper.GetFloat64("LLM_TEMPERATURE"),
		MaxTokens:      viper.GetInt("LLM_MAX_TOKENS"),
		TopP:           viper.GetFloat64("LLM_TOP_P"),
		RequestTimeout: viper.GetDuration("LLM_REQUEST_TIMEOUT"),
		RetryAttempts:  viper.GetInt("LLM_RETRY_ATTEMPTS"),
	}
}

// GetAgentConfig returns agent configuration from viper
func GetAgentConfig() AgentConfig {
	return AgentConfig{
		MaxRounds:            viper.GetInt("AGENT_MAX_ROUNDS"),
		MaxContextTokens:     viper.GetInt("AGENT_MAX_CONTEXT_TOKENS"),
		ToolExecutionTimeout: viper.GetDuration("AGENT_TOOL_EXECUTION_TIMEOUT"),
		WindowSize:           viper.GetInt("AGENT_WINDOW_SIZE"),
		SummarizeThreshold:   viper.GetInt("AGENT_SUMMARIZE_THRESHOLD"),
		SummarizeRetain:      viper.GetInt("AGENT_SUMMARIZE_RETAIN"),
	}
}

// GetApprovalConfig returns approval gate configuration from viper
func GetApprovalConfig() ApprovalConfig {
	return ApprovalConfig{
		TTL:           viper.GetDuration("APPROVAL_TTL"),
		SweepInterval: viper.GetDuration("APPROVAL_SWEEP_INTERVAL"),
	}
}

// GetGatewayConfig returns tool gateway configuration from viper
func GetGatewayConfig() GatewayConfig {
	return GatewayConfig{
		DiscoveryTTL:   viper.GetDuration("GATEWAY_DISCOVERY_TTL"),
		RequestTimeout: viper.GetDuration("GATEWAY_REQUEST_TIMEOUT"),
	}
}

// GetConversationConfig returns conversation housekeeping configuration from viper
func GetConversationConfig() ConversationConfig {
	return ConversationConfig{
		ArchiveAfter:    viper.GetDuration("CONVERSATION_ARCHIVE_AFTER"),
		ArchiveInterval: viper.GetDuration("CONVERSATION_ARCHIVE_INTERVAL"),
	}
}

// SetupOrdoEnv configures orchestrator-related environment variables
func SetupOrdoEnv() {
	// Completion providers
	bindEnvVariable("LLM_BASE_URL", "https://api.mistral.ai/v1")
	bindEnvVariable("LLM_API_KEY", "")
	bindEnvVariable("LLM_MODEL", "mistral-large-latest")
	bindEnvVariable("LLM_FALLBACK_BASE_URL", "https://openrouter.ai/api/v1")
	bindEnvVariable("LLM_FALLBACK_API_KEY", "")
	bindEnvVariable("LLM_FALLBACK_MODEL", "meta-llama/llama-3.3-70b-instruct")
	bindEnvVariable("LLM_TEMPERATURE", 0.7)
	bindEnvVariable("LLM_MAX_TOKENS", 4096)
	bindEnvVariable("LLM_TOP_P", 0.9)
	bindEnvVariable("LLM_REQUEST_TIMEOUT", "120s")
	bindEnvVariable("LLM_RETRY_ATTEMPTS", 3)

	// Agent
	bindEnvVariable("AGENT_MAX_ROUNDS", 8)
	bindEnvVariable("AGENT_MAX_CONTEXT_TOKENS", 8192)
	bindEnvVariable("AGENT_TOOL_EXECUTION_TIMEOUT", "30s")
	bindEnvVariable("AGENT_WINDOW_SIZE", 10)
	bindEnvVariable("AGENT_SUMMARIZE_THRESHOLD", 2048)
	bindEnvVariable("AGENT_SUMMARIZE_RETAIN", 4)

	// Approvals
	bindEnvVariable("APPROVAL_TTL", "15m")
	bindEnvVariable("APPROVAL_SWEEP_INTERVAL", "1m")

	// Tool gateway
	bindEnvVariable("GATEWAY_DISCOVERY_TTL", "5m")
	bindEnvVariable("GATEWAY_REQUEST_TIMEOUT", "30s")

	// Conversation housekeeping
	bindEnvVariable("CONVERSATION_ARCHIVE_AFTER", "24h")
	bindEnvVariable("CONVERSATION_ARCHIVE_INTERVAL", "1h")

	// External tool APIs used by the bundled plugins
	bindEnvVariable("HELIUS_API_KEY", "")
	bindEnvVariable("HELIUS_BASE_URL", "https://api.helius.xyz")
	bindEnvVariable("HELIUS_RPC_URL", "https://mainnet.helius-rpc.com")
	bindEnvVariable("BIRDEYE_API_KEY", "")
	bindEnvVariable("BIRDEYE_BASE_URL", "https://public-api.birdeye.so")
	bindEnvVariable("JUPITER_BASE_URL", "https://quote-api.jup.ag")
	bindEnvVariable("LULO_BASE_URL", "https://api.lulo.fi")
	bindEnvVariable("SANCTUM_BASE_URL", "https://sanctum-s-api.fly.dev")
	bindEnvVariable("DRIFT_BASE_URL", "https://dlob.drift.trade")
	bindEnvVariable("MESSARI_BASE_URL", "https://data.messari.io/api")
	bindEnvVariable("MESSARI_API_KEY", "")
	bindEnvVariable("ONRAMP_BASE_URL", "https://api.onramp.money")
	bindEnvVariable("ONRAMP_API_KEY", "")
	bindEnvVariable("TENSOR_API_KEY", "")
	bindEnvVariable("TENSOR_BASE_URL", "https://api.tensor.so")
	bindEnvVariable("X_API_BASE_URL", "https://api.x.com/2")
	bindEnvVariable("X_API_BEARER_TOKEN", "")
	bindEnvVariable("TELEGRAM_BASE_URL", "https://api.telegram.org")
	bindEnvVariable("TELEGRAM_BOT_TOKEN", "")
	bindEnvVariable("GMAIL_BASE_URL", "https://gmail.googleapis.com/gmail/v1")
	bindEnvVariable("GMAIL_ACCESS_TOKEN", "")
	bindEnvVariable("BRAVE_BASE_URL", "https://api.search.brave.com")
	bindEnvVariable("BRAVE_API_KEY", "")
}

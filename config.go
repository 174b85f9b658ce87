package assistme

import (
	"time"

	"github.com/ferro-labs/assistme/plugin"
	"github.com/ferro-labs/assistme/providers"
)

// Config holds the configuration for the assistant and its HTTP server.
// Durations are expressed in whole seconds or milliseconds so config files
// stay plain numbers.
type Config struct {
	Server     ServerConfig     `json:"server" yaml:"server"`
	OpenRouter OpenRouterConfig `json:"openrouter" yaml:"openrouter"`
	Gemini     GeminiConfig     `json:"gemini" yaml:"gemini"`
	// DefaultModel is used when a request names no model or an unknown one.
	DefaultModel   string               `json:"default_model" yaml:"default_model"`
	Chat           ChatConfig           `json:"chat" yaml:"chat"`
	RateLimit      RateLimitConfig      `json:"rate_limit" yaml:"rate_limit"`
	Session        SessionConfig        `json:"session" yaml:"session"`
	Stream         StreamConfig         `json:"stream" yaml:"stream"`
	CircuitBreaker CircuitBreakerConfig `json:"circuit_breaker" yaml:"circuit_breaker"`
	GitHub         GitHubConfig         `json:"github" yaml:"github"`
	Contact        ContactConfig        `json:"contact" yaml:"contact"`
	ChatLog        ChatLogConfig        `json:"chat_log" yaml:"chat_log"`
	// Plugins configuration (optional).
	Plugins []plugin.Config `json:"plugins,omitempty" yaml:"plugins,omitempty"`
}

// ServerConfig configures the HTTP listener and static content.
type ServerConfig struct {
	Port        int      `json:"port" yaml:"port"`
	StaticDir   string   `json:"static_dir" yaml:"static_dir"`
	ResumePath  string   `json:"resume_path" yaml:"resume_path"`
	CORSOrigins []string `json:"cors_origins,omitempty" yaml:"cors_origins,omitempty"`
	// SweepIntervalSeconds paces the limiter and session sweepers.
	SweepIntervalSeconds int `json:"sweep_interval_seconds" yaml:"sweep_interval_seconds"`
}

// OpenRouterConfig configures the OpenRouter provider. It is registered only
// when APIKey is set.
type OpenRouterConfig struct {
	APIKey    string                `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	BaseURL   string                `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	SiteURL   string                `json:"site_url,omitempty" yaml:"site_url,omitempty"`
	SiteTitle string                `json:"site_title,omitempty" yaml:"site_title,omitempty"`
	Models    []providers.ModelInfo `json:"models" yaml:"models"`
}

// GeminiConfig configures the Gemini provider. It is registered only when
// APIKey is set.
type GeminiConfig struct {
	APIKey  string                `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	BaseURL string                `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Models  []providers.ModelInfo `json:"models" yaml:"models"`
}

// ChatConfig holds generation parameters and the response cache settings.
type ChatConfig struct {
	MaxMessageLength int     `json:"max_message_length" yaml:"max_message_length"`
	Temperature      float64 `json:"temperature" yaml:"temperature"`
	TopP             float64 `json:"top_p" yaml:"top_p"`
	MaxTokens        int     `json:"max_tokens" yaml:"max_tokens"`
	StreamMaxTokens  int     `json:"stream_max_tokens" yaml:"stream_max_tokens"`
	CacheTTLSeconds  int     `json:"cache_ttl_seconds" yaml:"cache_ttl_seconds"`
	CacheSize        int     `json:"cache_size" yaml:"cache_size"`
	// MinCacheableLength rejects answers too short to be worth caching.
	MinCacheableLength int `json:"min_cacheable_length" yaml:"min_cacheable_length"`
}

// RateLimitConfig configures the per-client sliding window.
type RateLimitConfig struct {
	Requests      int `json:"requests" yaml:"requests"`
	WindowSeconds int `json:"window_seconds" yaml:"window_seconds"`
}

// Session backends.
const (
	SessionBackendMemory = "memory"
	SessionBackendValkey = "valkey"
)

// SessionConfig selects and tunes the conversation memory.
type SessionConfig struct {
	Backend        string `json:"backend" yaml:"backend"`
	MaxHistory     int    `json:"max_history" yaml:"max_history"`
	ExpirySeconds  int    `json:"expiry_seconds" yaml:"expiry_seconds"`
	ValkeyAddr     string `json:"valkey_addr,omitempty" yaml:"valkey_addr,omitempty"`
	ValkeyPassword string `json:"valkey_password,omitempty" yaml:"valkey_password,omitempty"`
	ValkeyDB       int    `json:"valkey_db,omitempty" yaml:"valkey_db,omitempty"`
	ValkeyPrefix   string `json:"valkey_prefix,omitempty" yaml:"valkey_prefix,omitempty"`
}

// StreamConfig tunes the streaming relay and the local synthesizer.
type StreamConfig struct {
	MaxRetries        int `json:"max_retries" yaml:"max_retries"`
	BackoffBaseMS     int `json:"backoff_base_ms" yaml:"backoff_base_ms"`
	LocalSliceSize    int `json:"local_slice_size" yaml:"local_slice_size"`
	LocalSliceDelayMS int `json:"local_slice_delay_ms" yaml:"local_slice_delay_ms"`
}

// CircuitBreakerConfig is shared by every provider breaker.
type CircuitBreakerConfig struct {
	FailureThreshold int `json:"failure_threshold" yaml:"failure_threshold"`
	SuccessThreshold int `json:"success_threshold" yaml:"success_threshold"`
	TimeoutSeconds   int `json:"timeout_seconds" yaml:"timeout_seconds"`
}

// GitHubConfig configures the GitHub proxy. It is disabled when Username is
// empty.
type GitHubConfig struct {
	Username        string `json:"username" yaml:"username"`
	Token           string `json:"token,omitempty" yaml:"token,omitempty"`
	BaseURL         string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	CacheTTLSeconds int    `json:"cache_ttl_seconds" yaml:"cache_ttl_seconds"`
}

// Contact backends.
const (
	ContactBackendNone      = ""
	ContactBackendFirestore = "firestore"
	ContactBackendSQL       = "sql"
)

// ContactConfig selects where contact form submissions go.
type ContactConfig struct {
	Backend             string `json:"backend" yaml:"backend"`
	FirestoreProject    string `json:"firestore_project,omitempty" yaml:"firestore_project,omitempty"`
	FirestoreAPIKey     string `json:"firestore_api_key,omitempty" yaml:"firestore_api_key,omitempty"`
	FirestoreCollection string `json:"firestore_collection,omitempty" yaml:"firestore_collection,omitempty"`
	FirestoreBaseURL    string `json:"firestore_base_url,omitempty" yaml:"firestore_base_url,omitempty"`
	CredentialsFile     string `json:"credentials_file,omitempty" yaml:"credentials_file,omitempty"`
	DSN                 string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
}

// ChatLogConfig enables the persistent chat log when DSN is set.
type ChatLogConfig struct {
	DSN string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
}

// DefaultOpenRouterModels are offered when the config lists none.
var DefaultOpenRouterModels = []providers.ModelInfo{
	{ID: "x-ai/grok-4.1-fast", Name: "Grok 4.1 Fast", Priority: 1, Streaming: true},
	{ID: "x-ai/grok-2-1212", Name: "Grok 2 (Legacy)", Priority: 2, Streaming: true},
	{ID: "anthropic/claude-3.5-sonnet", Name: "Claude 3.5 Sonnet", Priority: 3, Streaming: true},
}

// DefaultGeminiModels are offered when the config lists none.
var DefaultGeminiModels = []providers.ModelInfo{
	{ID: "gemini-2.0-flash", Name: "Gemini 2.0 Flash", Priority: 4, Streaming: true},
}

// DefaultConfig returns a Config with every default filled in.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Port:                 8080,
			StaticDir:            "src",
			ResumePath:           "src/assets/files/Mangesh_Raut_Resume.pdf",
			SweepIntervalSeconds: 300,
		},
		OpenRouter: OpenRouterConfig{
			SiteURL:   "https://mangeshraut.pro",
			SiteTitle: "AssistMe AI Assistant",
			Models:    append([]providers.ModelInfo(nil), DefaultOpenRouterModels...),
		},
		Gemini: GeminiConfig{
			Models: append([]providers.ModelInfo(nil), DefaultGeminiModels...),
		},
		DefaultModel: "x-ai/grok-4.1-fast",
		Chat: ChatConfig{
			MaxMessageLength:   2000,
			Temperature:        0.7,
			TopP:               0.9,
			MaxTokens:          1500,
			StreamMaxTokens:    2000,
			CacheTTLSeconds:    300,
			CacheSize:          100,
			MinCacheableLength: 10,
		},
		RateLimit: RateLimitConfig{Requests: 20, WindowSeconds: 60},
		Session: SessionConfig{
			Backend:       SessionBackendMemory,
			MaxHistory:    10,
			ExpirySeconds: 3600,
			ValkeyPrefix:  "assistme:session:",
		},
		Stream: StreamConfig{
			MaxRetries:        2,
			BackoffBaseMS:     250,
			LocalSliceSize:    24,
			LocalSliceDelayMS: 15,
		},
		CircuitBreaker: CircuitBreakerConfig{
			FailureThreshold: 5,
			SuccessThreshold: 1,
			TimeoutSeconds:   30,
		},
		GitHub: GitHubConfig{
			Username:        "mangeshraut712",
			CacheTTLSeconds: 300,
		},
		Contact: ContactConfig{
			FirestoreCollection: "messages",
		},
	}
}

func seconds(n int) time.Duration      { return time.Duration(n) * time.Second }
func milliseconds(n int) time.Duration { return time.Duration(n) * time.Millisecond }

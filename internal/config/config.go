// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration object for the loom service.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Agent    AgentConfig    `mapstructure:"agent" yaml:"agent"`
	Browser  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	Tools    ToolsConfig    `mapstructure:"tools" yaml:"tools"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// DatabaseConfig holds the database connection details.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// ServerConfig tunes the HTTP/SSE surface.
type ServerConfig struct {
	ListenAddr      string        `mapstructure:"listen_addr" yaml:"listen_addr"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	// JWTSecret verifies bearer tokens issued by the external auth service.
	// Token issuance itself is not loom's concern.
	JWTSecret string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	// AllowAnonymous skips bearer verification. Development only.
	AllowAnonymous bool `mapstructure:"allow_anonymous" yaml:"allow_anonymous"`
}

// AgentConfig holds settings for the build agent and its model access.
type AgentConfig struct {
	LLM LLMRouterConfig `mapstructure:"llm" yaml:"llm"`
	// MaxRetries is the fixed retry ceiling for transient model failures.
	MaxRetries int `mapstructure:"max_retries" yaml:"max_retries"`
	// MaxTurns bounds node executions within one run so a misrouting model
	// cannot loop forever.
	MaxTurns int          `mapstructure:"max_turns" yaml:"max_turns"`
	Memory   MemoryConfig `mapstructure:"memory" yaml:"memory"`
}

// MemoryConfig configures long-term memory recall.
type MemoryConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Model    string `mapstructure:"model" yaml:"model"`
	APIKey   string `mapstructure:"api_key" yaml:"api_key"`
	TaskType string `mapstructure:"task_type" yaml:"task_type"`
	TopK     int    `mapstructure:"top_k" yaml:"top_k"`
}

// LLMProvider defines the supported LLM providers.
type LLMProvider string

const (
	ProviderGemini LLMProvider = "gemini"
)

// LLMRouterConfig configures the model routing logic.
type LLMRouterConfig struct {
	DefaultFastModel     string                    `mapstructure:"default_fast_model" yaml:"default_fast_model"`
	DefaultPowerfulModel string                    `mapstructure:"default_powerful_model" yaml:"default_powerful_model"`
	// APIKey is the shared key applied to any model entry that does not set
	// its own. Bound from LOOM_GEMINI_API_KEY.
	APIKey string                    `mapstructure:"api_key" yaml:"api_key"`
	Models map[string]LLMModelConfig `mapstructure:"models" yaml:"models"`
}

// LLMModelConfig defines the configuration for a single LLM.
type LLMModelConfig struct {
	Provider          LLMProvider       `mapstructure:"provider" yaml:"provider"`
	Model             string            `mapstructure:"model" yaml:"model"`
	APIKey            string            `mapstructure:"api_key" yaml:"api_key"`
	Endpoint          string            `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout        time.Duration     `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature       float32           `mapstructure:"temperature" yaml:"temperature"`
	TopP              float32           `mapstructure:"top_p" yaml:"top_p"`
	TopK              int               `mapstructure:"top_k" yaml:"top_k"`
	MaxTokens         int               `mapstructure:"max_tokens" yaml:"max_tokens"`
	MaxRetries        int               `mapstructure:"max_retries" yaml:"max_retries"`
	RequestsPerMinute float64           `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	SafetyFilters     map[string]string `mapstructure:"safety_filters" yaml:"safety_filters"`
}

// ResolveModel returns the configuration for a named model entry, applying
// the router-level API key when the entry does not carry its own.
func (r LLMRouterConfig) ResolveModel(name string) (LLMModelConfig, error) {
	mc, ok := r.Models[name]
	if !ok {
		return LLMModelConfig{}, fmt.Errorf("no model configuration for %q", name)
	}
	if mc.APIKey == "" {
		mc.APIKey = r.APIKey
	}
	if mc.Model == "" {
		mc.Model = name
	}
	return mc, nil
}

// BrowserConfig holds settings for the headless browser used by the snapshot
// tool.
type BrowserConfig struct {
	Headless       bool          `mapstructure:"headless" yaml:"headless"`
	DisableGPU     bool          `mapstructure:"disable_gpu" yaml:"disable_gpu"`
	Args           []string      `mapstructure:"args" yaml:"args"`
	CaptureTimeout time.Duration `mapstructure:"capture_timeout" yaml:"capture_timeout"`
	ViewportWidth  int           `mapstructure:"viewport_width" yaml:"viewport_width"`
	ViewportHeight int           `mapstructure:"viewport_height" yaml:"viewport_height"`
}

// ToolsConfig is a container for the agent's tool integrations.
type ToolsConfig struct {
	Search SearchConfig `mapstructure:"search" yaml:"search"`
	Upload UploadConfig `mapstructure:"upload" yaml:"upload"`
	Lint   LintConfig   `mapstructure:"lint" yaml:"lint"`
}

// SearchConfig configures the custom search backend used for inspiration
// images.
type SearchConfig struct {
	APIKey   string `mapstructure:"api_key" yaml:"api_key"`
	EngineID string `mapstructure:"engine_id" yaml:"engine_id"`
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
}

// UploadConfig points at the asset store that receives captured snapshots.
type UploadConfig struct {
	Endpoint      string `mapstructure:"endpoint" yaml:"endpoint"`
	PublicBaseURL string `mapstructure:"public_base_url" yaml:"public_base_url"`
}

// LintConfig toggles syntax checking of generated files before persistence.
type LintConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "loom")
	v.SetDefault("logger.log_file", "loom.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Server --
	v.SetDefault("server.listen_addr", ":8080")
	v.SetDefault("server.request_timeout", "10m")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.allow_anonymous", false)

	// -- Agent --
	v.SetDefault("agent.max_retries", 3)
	v.SetDefault("agent.max_turns", 24)
	v.SetDefault("agent.llm.default_fast_model", "gemini-2.5-flash")
	v.SetDefault("agent.llm.default_powerful_model", "gemini-2.5-pro")
	v.SetDefault("agent.llm.models.gemini-2.5-flash.provider", "gemini")
	v.SetDefault("agent.llm.models.gemini-2.5-flash.api_timeout", "90s")
	v.SetDefault("agent.llm.models.gemini-2.5-flash.temperature", 0.2)
	v.SetDefault("agent.llm.models.gemini-2.5-flash.max_tokens", 8192)
	v.SetDefault("agent.llm.models.gemini-2.5-flash.max_retries", 3)
	v.SetDefault("agent.llm.models.gemini-2.5-flash.requests_per_minute", 60)
	v.SetDefault("agent.llm.models.gemini-2.5-pro.provider", "gemini")
	v.SetDefault("agent.llm.models.gemini-2.5-pro.api_timeout", "5m")
	v.SetDefault("agent.llm.models.gemini-2.5-pro.temperature", 0.4)
	v.SetDefault("agent.llm.models.gemini-2.5-pro.max_tokens", 20000)
	v.SetDefault("agent.llm.models.gemini-2.5-pro.max_retries", 3)
	v.SetDefault("agent.llm.models.gemini-2.5-pro.requests_per_minute", 20)

	// -- Agent Memory --
	v.SetDefault("agent.memory.enabled", false)
	v.SetDefault("agent.memory.model", "gemini-embedding-001")
	v.SetDefault("agent.memory.task_type", "SEMANTIC_SIMILARITY")
	v.SetDefault("agent.memory.top_k", 4)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.disable_gpu", true)
	v.SetDefault("browser.capture_timeout", "45s")
	v.SetDefault("browser.viewport_width", 1440)
	v.SetDefault("browser.viewport_height", 900)

	// -- Tools --
	v.SetDefault("tools.search.endpoint", "https://www.googleapis.com/customsearch/v1")
	v.SetDefault("tools.lint.enabled", true)
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data.
	v.BindEnv("agent.llm.api_key", "LOOM_GEMINI_API_KEY")
	v.BindEnv("agent.memory.api_key", "LOOM_GEMINI_API_KEY")
	v.BindEnv("tools.search.api_key", "LOOM_SEARCH_API_KEY")
	v.BindEnv("server.jwt_secret", "LOOM_JWT_SECRET")
	v.BindEnv("database.url", "LOOM_DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Agent.MaxRetries < 0 {
		return fmt.Errorf("agent.max_retries must not be negative")
	}
	if c.Agent.MaxTurns <= 0 {
		return fmt.Errorf("agent.max_turns must be a positive integer")
	}
	if c.Agent.LLM.DefaultFastModel == "" || c.Agent.LLM.DefaultPowerfulModel == "" {
		return fmt.Errorf("agent.llm.default_fast_model and agent.llm.default_powerful_model are required")
	}
	if !c.Server.AllowAnonymous && c.Server.JWTSecret == "" {
		return fmt.Errorf("server.jwt_secret is required unless server.allow_anonymous is set (hint: LOOM_JWT_SECRET)")
	}
	if c.Browser.CaptureTimeout <= 0 {
		return fmt.Errorf("browser.capture_timeout must be a positive duration")
	}
	return nil
}

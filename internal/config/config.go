package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config contains all runtime settings for the companion chat service.
type Config struct {
	BindAddr         string        `envconfig:"APP_BIND_ADDR" default:":8080"`
	ShutdownTimeout  time.Duration `envconfig:"APP_SHUTDOWN_TIMEOUT" default:"15s"`
	MetricsNamespace string        `envconfig:"APP_METRICS_NAMESPACE" default:"mentalpalace"`
	AllowAnyOrigin   bool          `envconfig:"APP_ALLOW_ANY_ORIGIN" default:"false"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`
	// TraceSampleRatio is the share of turns traced into the log; 0 disables.
	TraceSampleRatio float64 `envconfig:"TRACE_SAMPLE_RATIO" default:"0"`

	// ModelProvider selects the LLM backend: auto|gemini|openai|ollama|http|mock.
	ModelProvider   string        `envconfig:"MODEL_PROVIDER" default:"auto"`
	ModelName       string        `envconfig:"MODEL_NAME"`
	ModelTimeout    time.Duration `envconfig:"MODEL_TIMEOUT" default:"45s"`
	ModelMaxRetries int           `envconfig:"MODEL_MAX_RETRIES" default:"0"`
	ModelHTTPURL    string        `envconfig:"MODEL_HTTP_URL"`
	GeminiAPIKey    string        `envconfig:"GEMINI_API_KEY"`
	OpenAIAPIKey    string        `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL   string        `envconfig:"OPENAI_BASE_URL"`
	OllamaHost      string        `envconfig:"OLLAMA_HOST" default:"http://localhost:11434"`

	// MemoryStrategy is buffered (full replay, process-local) or summarized
	// (running summary persisted to the store).
	MemoryStrategy string `envconfig:"MEMORY_STRATEGY" default:"buffered"`

	DatabaseURL string `envconfig:"DATABASE_URL"`
	SQLitePath  string `envconfig:"SQLITE_PATH"`
	RedactPII   bool   `envconfig:"STORE_REDACT_PII" default:"true"`

	AuthSecret   string        `envconfig:"AUTH_SECRET"`
	AuthTokenTTL time.Duration `envconfig:"AUTH_TOKEN_TTL" default:"30m"`
	AuthRequired bool          `envconfig:"AUTH_REQUIRED" default:"false"`
}

var (
	modelProviders   = []string{"auto", "gemini", "openai", "ollama", "http", "mock"}
	memoryStrategies = []string{"buffered", "summarized"}
)

// Load reads environment variables, applies defaults and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config parse error: %w", err)
	}

	cfg.ModelProvider = strings.ToLower(strings.TrimSpace(cfg.ModelProvider))
	cfg.MemoryStrategy = strings.ToLower(strings.TrimSpace(cfg.MemoryStrategy))
	cfg.ModelHTTPURL = strings.TrimSpace(cfg.ModelHTTPURL)
	cfg.GeminiAPIKey = strings.TrimSpace(cfg.GeminiAPIKey)
	cfg.OpenAIAPIKey = strings.TrimSpace(cfg.OpenAIAPIKey)
	cfg.DatabaseURL = strings.TrimSpace(cfg.DatabaseURL)
	cfg.SQLitePath = strings.TrimSpace(cfg.SQLitePath)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	if strings.TrimSpace(c.BindAddr) == "" {
		return fmt.Errorf("APP_BIND_ADDR must not be empty")
	}
	if !oneOf(c.ModelProvider, modelProviders) {
		return fmt.Errorf("invalid MODEL_PROVIDER: %q (expected %s)", c.ModelProvider, strings.Join(modelProviders, "|"))
	}
	if c.ModelProvider == "http" && c.ModelHTTPURL == "" {
		return fmt.Errorf("MODEL_HTTP_URL is required when MODEL_PROVIDER=http")
	}
	if c.ModelProvider == "gemini" && c.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required when MODEL_PROVIDER=gemini")
	}
	if c.ModelProvider == "openai" && c.OpenAIAPIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required when MODEL_PROVIDER=openai")
	}
	if c.ModelTimeout < time.Second {
		return fmt.Errorf("MODEL_TIMEOUT must be at least 1s")
	}
	if c.ModelMaxRetries < 0 || c.ModelMaxRetries > 5 {
		return fmt.Errorf("MODEL_MAX_RETRIES must be in [0,5]")
	}
	if c.TraceSampleRatio < 0 || c.TraceSampleRatio > 1 {
		return fmt.Errorf("TRACE_SAMPLE_RATIO must be in [0,1]")
	}
	if !oneOf(c.MemoryStrategy, memoryStrategies) {
		return fmt.Errorf("invalid MEMORY_STRATEGY: %q (expected %s)", c.MemoryStrategy, strings.Join(memoryStrategies, "|"))
	}
	if c.AuthTokenTTL < time.Minute {
		return fmt.Errorf("AUTH_TOKEN_TTL must be at least 1m")
	}
	if c.AuthRequired && len(c.AuthSecret) < 16 {
		return fmt.Errorf("AUTH_SECRET must be at least 16 characters when AUTH_REQUIRED=true")
	}
	return nil
}

// StoreMode reports which transcript backend the settings select.
func (c Config) StoreMode() string {
	switch {
	case c.DatabaseURL != "":
		return "postgres"
	case c.SQLitePath != "":
		return "sqlite"
	default:
		return "in-memory"
	}
}

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for the casetrail engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8443"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Database configuration (PostgreSQL)
	Database DatabaseConfig `yaml:"database"`

	// Generation collaborator configuration
	LLM LLMConfig `yaml:"llm"`

	// Retrieval collaborator configuration
	Retrieval RetrievalConfig `yaml:"retrieval"`

	// Pipeline behavior constants
	Pipeline PipelineConfig `yaml:"pipeline"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"casetrail"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"casetrail"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LLMConfig holds generation collaborator settings. The provider selects
// which client implementation the factory builds.
type LLMConfig struct {
	Provider    string        `yaml:"provider" env:"LLM_PROVIDER" env-default:"openai"` // openai | anthropic
	Endpoint    string        `yaml:"endpoint" env:"LLM_ENDPOINT" env-default:"https://api.openai.com/v1"`
	Model       string        `yaml:"model" env:"LLM_MODEL" env-default:"gpt-4o"`
	APIKey      string        `yaml:"-" env:"LLM_API_KEY"` // Secret - not in YAML
	MaxTokens   int           `yaml:"max_tokens" env:"LLM_MAX_TOKENS" env-default:"4096"`
	Temperature float64       `yaml:"temperature" env:"LLM_TEMPERATURE" env-default:"0.2"`
	Timeout     time.Duration `yaml:"timeout" env:"LLM_TIMEOUT" env-default:"60s"`
}

// RetrievalConfig holds retrieval collaborator settings.
type RetrievalConfig struct {
	BaseURL string        `yaml:"base_url" env:"RETRIEVAL_BASE_URL" env-default:"http://localhost:8200"`
	TopK    int           `yaml:"top_k" env:"RETRIEVAL_TOP_K" env-default:"5"`
	Timeout time.Duration `yaml:"timeout" env:"RETRIEVAL_TIMEOUT" env-default:"10s"`
	Retries int           `yaml:"retries" env:"RETRIEVAL_RETRIES" env-default:"2"`
}

// PipelineConfig holds the documented constants governing retry, fallback and
// review behavior. These are configuration, not code: regulators expect the
// retry budget and scoring inputs to be stated, not implied.
type PipelineConfig struct {
	// MaxGenerationAttempts is the validation-retry budget per pipeline run.
	MaxGenerationAttempts int `yaml:"max_generation_attempts" env:"PIPELINE_MAX_GENERATION_ATTEMPTS" env-default:"3"`
	// GenerationBackoff is the delay before the second attempt; it doubles each retry.
	GenerationBackoff time.Duration `yaml:"generation_backoff" env:"PIPELINE_GENERATION_BACKOFF" env-default:"2s"`
	// MaxRedrafts bounds the REJECTED -> NARRATIVE_DRAFTED loop per case.
	MaxRedrafts int `yaml:"max_redrafts" env:"PIPELINE_MAX_REDRAFTS" env-default:"3"`
	// RiskAlertThreshold is the composite score at and above which a case is
	// flagged high-priority in pipeline results.
	RiskAlertThreshold float64 `yaml:"risk_alert_threshold" env:"PIPELINE_RISK_ALERT_THRESHOLD" env-default:"0.7"`
}

// Load reads configuration from config.yaml with environment variable
// overrides. The version parameter is injected at build time and set on the
// returned Config. When config.yaml is absent, environment variables and
// defaults alone are used.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat("config.yaml"); err == nil {
		if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment config: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Pipeline.MaxGenerationAttempts < 1 {
		return fmt.Errorf("max_generation_attempts must be at least 1, got %d", c.Pipeline.MaxGenerationAttempts)
	}
	if c.Pipeline.MaxRedrafts < 0 {
		return fmt.Errorf("max_redrafts must not be negative, got %d", c.Pipeline.MaxRedrafts)
	}
	switch c.LLM.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("unknown llm provider %q", c.LLM.Provider)
	}
	return nil
}

// Package config loads runtime configuration from YAML, .env files, and
// environment variables, in that order of increasing precedence.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// envPrefix namespaces environment overrides, e.g. CONDUCTOR_MODEL.
const envPrefix = "CONDUCTOR"

// Config is the root configuration.
type Config struct {
	// Provider selects the model backend: "openai" or "gollm".
	Provider string `yaml:"provider" envconfig:"PROVIDER"`
	Model    string `yaml:"model" envconfig:"MODEL"`
	APIKey   string `yaml:"api_key" envconfig:"API_KEY"`
	BaseURL  string `yaml:"base_url" envconfig:"BASE_URL"`

	SystemPrompt     string `yaml:"system_prompt" envconfig:"SYSTEM_PROMPT"`
	MaxIterations    int    `yaml:"max_iterations" envconfig:"MAX_ITERATIONS"`
	MaxContextTokens int    `yaml:"max_context_tokens" envconfig:"MAX_CONTEXT_TOKENS"`

	// AutoApprove disables the confirmation protocol: dangerous tool calls
	// execute without asking. Explicit opt-in only.
	AutoApprove bool `yaml:"auto_approve" envconfig:"AUTO_APPROVE"`

	WorkingDir string `yaml:"working_dir" envconfig:"WORKING_DIR"`
	StatePath  string `yaml:"state_path" envconfig:"STATE_PATH"`
	LogLevel   string `yaml:"log_level" envconfig:"LOG_LEVEL"`
}

// providerKeyEnvVars lets the API key come from the conventional provider
// variables when no explicit key is configured.
var providerKeyEnvVars = map[string][]string{
	"openai": {"OPENAI_API_KEY"},
	"gollm":  {"OPENAI_API_KEY", "ANTHROPIC_API_KEY", "GROQ_API_KEY"},
}

var providerDefaultModels = map[string]string{
	"openai": "gpt-4o",
	"gollm":  "gpt-4o",
}

// Load reads configuration. Precedence, lowest to highest: built-in
// defaults, YAML file at path (or the default locations), .env files,
// CONDUCTOR_* environment variables.
func Load(path string) (*Config, error) {
	// .env files feed the environment lookups below; absence is fine.
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load(".env")

	if path == "" {
		path = defaultConfigPath()
	}

	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := envconfig.Process(envPrefix, cfg); err != nil {
		return nil, fmt.Errorf("process environment overrides: %w", err)
	}

	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// defaultConfigPath returns the first existing default config location.
func defaultConfigPath() string {
	if home, err := os.UserHomeDir(); err == nil {
		p := filepath.Join(home, ".conductor", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	if _, err := os.Stat("conductor.yaml"); err == nil {
		return "conductor.yaml"
	}
	return ""
}

func applyDefaults(cfg *Config) {
	if cfg.Provider == "" {
		cfg.Provider = "openai"
	}
	if cfg.Model == "" {
		cfg.Model = providerDefaultModels[cfg.Provider]
	}
	if cfg.APIKey == "" {
		for _, name := range providerKeyEnvVars[cfg.Provider] {
			if v := os.Getenv(name); v != "" {
				cfg.APIKey = v
				break
			}
		}
	}
	if cfg.WorkingDir == "" {
		cfg.WorkingDir, _ = os.Getwd()
	}
	if cfg.StatePath == "" {
		cfg.StatePath = filepath.Join(cfg.WorkingDir, ".conductor", "state.json")
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
}

// Validate checks the settings a run cannot proceed without.
func (c *Config) Validate() error {
	switch c.Provider {
	case "openai", "gollm":
	default:
		return fmt.Errorf("unknown provider %q", c.Provider)
	}
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	if c.APIKey == "" {
		return fmt.Errorf("no API key configured for provider %q", c.Provider)
	}
	if c.MaxIterations < 0 {
		return fmt.Errorf("max_iterations must not be negative")
	}
	if c.MaxContextTokens < 0 {
		return fmt.Errorf("max_context_tokens must not be negative")
	}
	return nil
}

// SlogLevel maps the configured log level to a slog.Level, defaulting to
// Info for unrecognized values.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Package config loads the Director's YAML configuration with
// environment-variable expansion, overrides, defaults, and validation.
package config

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for the Director server.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	LLM      LLMConfig      `yaml:"llm"`
	Browser  BrowserConfig  `yaml:"browser"`
	Director DirectorConfig `yaml:"director"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig configures the HTTP API listener.
type ServerConfig struct {
	// Addr is the host:port the HTTP API binds to.
	Addr string `yaml:"addr"`

	// ShutdownTimeout bounds graceful shutdown on SIGINT/SIGTERM.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig selects the State Store backend. With an empty URL the
// server falls back to the in-memory store.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// LLMConfig configures the Anthropic provider.
type LLMConfig struct {
	APIKey               string `yaml:"api_key"`
	BaseURL              string `yaml:"base_url"`
	Model                string `yaml:"model"`
	MaxTokens            int    `yaml:"max_tokens"`
	EnableThinking       bool   `yaml:"enable_thinking"`
	ThinkingBudgetTokens int    `yaml:"thinking_budget_tokens"`
}

// BrowserConfig configures the Browser Facade's Playwright pool.
type BrowserConfig struct {
	Headless     bool          `yaml:"headless"`
	MaxInstances int           `yaml:"max_instances"`
	Timeout      time.Duration `yaml:"timeout"`
	RemoteURL    string        `yaml:"remote_url"`
	CDPDebugPort int           `yaml:"cdp_debug_port"`
}

// DirectorConfig bounds the control loop's per-turn behavior.
type DirectorConfig struct {
	SystemPrompt       string `yaml:"system_prompt"`
	MaxToolIterations  int    `yaml:"max_tool_iterations"`
	RecentMessageLimit int    `yaml:"recent_message_limit"`
}

// LoggingConfig configures slog output.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is "json" or "text".
	Format string `yaml:"format"`
}

// Load reads path, expands $VAR references, decodes the YAML strictly,
// applies environment overrides and defaults, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes raw YAML bytes the same way Load does. Split out so
// tests and embedded callers can skip the filesystem.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	decoder := yaml.NewDecoder(strings.NewReader(expanded))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration a server gets with no config file at
// all: in-memory store, env-supplied API key, local defaults.
func Default() (*Config, error) {
	return Parse(nil)
}

func applyEnvOverrides(cfg *Config) {
	if value := strings.TrimSpace(os.Getenv("DIRECTOR_ADDR")); value != "" {
		cfg.Server.Addr = value
	}
	if value := strings.TrimSpace(os.Getenv("DATABASE_URL")); value != "" {
		cfg.Database.URL = value
	}
	if value := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")); value != "" {
		cfg.LLM.APIKey = value
	}
	if value := strings.TrimSpace(os.Getenv("DIRECTOR_MODEL")); value != "" {
		cfg.LLM.Model = value
	}
	if value := strings.TrimSpace(os.Getenv("DIRECTOR_BROWSER_REMOTE_URL")); value != "" {
		cfg.Browser.RemoteURL = value
	}
	if value := strings.TrimSpace(os.Getenv("DIRECTOR_LOG_LEVEL")); value != "" {
		cfg.Logging.Level = value
	}
	if value := strings.TrimSpace(os.Getenv("DIRECTOR_HEADLESS")); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			cfg.Browser.Headless = parsed
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8420"
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		cfg.Server.ShutdownTimeout = 15 * time.Second
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "claude-sonnet-4-20250514"
	}
	if cfg.LLM.MaxTokens <= 0 {
		cfg.LLM.MaxTokens = 4096
	}
	if cfg.Browser.MaxInstances <= 0 {
		cfg.Browser.MaxInstances = 5
	}
	if cfg.Browser.Timeout <= 0 {
		cfg.Browser.Timeout = 30 * time.Second
	}
	if cfg.Director.MaxToolIterations <= 0 {
		cfg.Director.MaxToolIterations = 25
	}
	if cfg.Director.RecentMessageLimit <= 0 {
		cfg.Director.RecentMessageLimit = 20
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func validateConfig(cfg *Config) error {
	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown logging level %q", cfg.Logging.Level)
	}
	switch cfg.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("config: unknown logging format %q", cfg.Logging.Format)
	}
	if cfg.LLM.EnableThinking && cfg.LLM.ThinkingBudgetTokens <= 0 {
		return fmt.Errorf("config: enable_thinking requires thinking_budget_tokens > 0")
	}
	return nil
}

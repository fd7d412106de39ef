// Package config provides configuration management for crm-assistant.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultPort is the default HTTP port for the service.
	DefaultPort = 8001

	// DefaultOllamaModel is the model used when OLLAMA_MODEL is unset.
	DefaultOllamaModel = "llama3.2"

	// DefaultOllamaURL is the Ollama endpoint used when OLLAMA_BASE_URL is unset.
	DefaultOllamaURL = "http://localhost:11434"

	// DefaultPromptTokenBudget bounds the data sections of a prompt.
	DefaultPromptTokenBudget = 6000

	// MaxMemoryExchanges is the largest per-user conversation log allowed.
	MaxMemoryExchanges = 10
)

// DefaultAllowedOrigins are the browser origins allowed by CORS.
var DefaultAllowedOrigins = []string{"http://localhost:3000"}

// DatabaseConfig describes the CRM database connection.
type DatabaseConfig struct {
	URL         string `yaml:"url"`
	Host        string `yaml:"host"`
	Name        string `yaml:"name"`
	User        string `yaml:"user"`
	Password    string `yaml:"password"`
	SSLMode     string `yaml:"sslmode"`
	Port        int    `yaml:"port"`
	MaxConns    int    `yaml:"max_conns"`
	AutoMigrate bool   `yaml:"auto_migrate"`
}

// LLMConfig selects and tunes the model backend.
type LLMConfig struct {
	Provider     string        `yaml:"provider"`
	BaseURL      string        `yaml:"base_url"`
	Model        string        `yaml:"model"`
	APIKey       string        `yaml:"api_key"`
	StreamMode   string        `yaml:"stream_mode"`
	TokenDelay   time.Duration `yaml:"token_delay"`
	ModelTimeout time.Duration `yaml:"model_timeout"`
	Breaker      bool          `yaml:"breaker"`
}

// Config holds the application configuration.
type Config struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	AllowedOrigins []string       `yaml:"allowed_origins"`
	Database       DatabaseConfig `yaml:"database"`
	LLM            LLMConfig      `yaml:"llm"`

	MemoryIdleTTL      time.Duration `yaml:"memory_idle_ttl"`
	Port               int           `yaml:"port"`
	MemoryMaxExchanges int           `yaml:"memory_max_exchanges"`
	PromptTokenBudget  int           `yaml:"prompt_token_budget"`
	RateLimit          float64       `yaml:"rate_limit"`
	RateBurst          int           `yaml:"rate_burst"`
}

// DataDir returns the data directory path (~/.crm-assistant).
func DataDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".crm-assistant")
}

// SettingsPath returns the settings file path. CRM_ASSISTANT_CONFIG overrides it.
func SettingsPath() string {
	if p := os.Getenv("CRM_ASSISTANT_CONFIG"); p != "" {
		return p
	}
	return filepath.Join(DataDir(), "settings.yaml")
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Port:           DefaultPort,
		LogLevel:       "info",
		LogFormat:      "console",
		AllowedOrigins: append([]string(nil), DefaultAllowedOrigins...),
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			Name:     "crm",
			User:     "postgres",
			SSLMode:  "disable",
			MaxConns: 10,
		},
		LLM: LLMConfig{
			Provider:     "ollama",
			BaseURL:      DefaultOllamaURL,
			Model:        DefaultOllamaModel,
			StreamMode:   "native",
			TokenDelay:   50 * time.Millisecond,
			ModelTimeout: 2 * time.Minute,
			Breaker:      true,
		},
		MemoryMaxExchanges: MaxMemoryExchanges,
		PromptTokenBudget:  DefaultPromptTokenBudget,
		RateLimit:          5,
		RateBurst:          20,
	}
}

// Load reads the settings file over the defaults, then applies environment overrides.
// A missing settings file is not an error.
func Load() (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(SettingsPath())
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", SettingsPath(), err)
		}
	case !errors.Is(err, os.ErrNotExist):
		return nil, err
	}

	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	integer := func(key string, dst *int) error {
		if v := getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
		return nil
	}
	duration := func(key string, dst *time.Duration) error {
		if v := getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = d
		}
		return nil
	}
	boolean := func(key string, dst *bool) error {
		if v := getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = b
		}
		return nil
	}

	str("DATABASE_URL", &c.Database.URL)
	str("DB_HOST", &c.Database.Host)
	str("DB_NAME", &c.Database.Name)
	str("DB_USER", &c.Database.User)
	str("DB_PASSWORD", &c.Database.Password)
	str("DB_SSLMODE", &c.Database.SSLMode)
	str("OLLAMA_MODEL", &c.LLM.Model)
	str("OLLAMA_BASE_URL", &c.LLM.BaseURL)
	str("CRM_ASSISTANT_LLM_PROVIDER", &c.LLM.Provider)
	str("OPENAI_API_KEY", &c.LLM.APIKey)
	str("CRM_ASSISTANT_STREAM_MODE", &c.LLM.StreamMode)
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FORMAT", &c.LogFormat)

	// OPENAI_BASE_URL only applies to the openai provider.
	if c.LLM.Provider == "openai" {
		str("OPENAI_BASE_URL", &c.LLM.BaseURL)
	}
	if v := getenv("CRM_ASSISTANT_ALLOWED_ORIGINS"); v != "" {
		c.AllowedOrigins = splitTrim(v)
	}

	return errors.Join(
		integer("DB_PORT", &c.Database.Port),
		integer("CRM_ASSISTANT_PORT", &c.Port),
		integer("CRM_ASSISTANT_PROMPT_TOKEN_BUDGET", &c.PromptTokenBudget),
		duration("CRM_ASSISTANT_TOKEN_DELAY", &c.LLM.TokenDelay),
		duration("CRM_ASSISTANT_MODEL_TIMEOUT", &c.LLM.ModelTimeout),
		boolean("CRM_ASSISTANT_AUTO_MIGRATE", &c.Database.AutoMigrate),
	)
}

// DSN returns the PostgreSQL connection string. DATABASE_URL wins over the parts.
func (c *Config) DSN() string {
	if c.Database.URL != "" {
		return c.Database.URL
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.Database.User, c.Database.Password),
		Host:   fmt.Sprintf("%s:%d", c.Database.Host, c.Database.Port),
		Path:   "/" + c.Database.Name,
	}
	if c.Database.SSLMode != "" {
		u.RawQuery = "sslmode=" + url.QueryEscape(c.Database.SSLMode)
	}
	return u.String()
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	switch c.LLM.Provider {
	case "ollama", "openai":
	default:
		errs = append(errs, fmt.Errorf("unknown llm provider %q", c.LLM.Provider))
	}
	switch c.LLM.StreamMode {
	case "native", "chunked":
	default:
		errs = append(errs, fmt.Errorf("unknown stream mode %q", c.LLM.StreamMode))
	}
	if c.LLM.Model == "" {
		errs = append(errs, errors.New("llm model is required"))
	}
	if c.LLM.TokenDelay < 0 {
		errs = append(errs, errors.New("token delay must not be negative"))
	}
	if c.MemoryMaxExchanges < 0 || c.MemoryMaxExchanges > MaxMemoryExchanges {
		errs = append(errs, fmt.Errorf("memory_max_exchanges must be between 0 and %d", MaxMemoryExchanges))
	}
	if c.MemoryIdleTTL < 0 {
		errs = append(errs, errors.New("memory_idle_ttl must not be negative"))
	}
	if _, err := pgx.ParseConfig(c.DSN()); err != nil {
		errs = append(errs, fmt.Errorf("database dsn: %w", err))
	}
	return errors.Join(errs...)
}

// splitTrim splits a comma-separated string and trims whitespace.
func splitTrim(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// Package config provides configuration loading for quizgen.
// Supports YAML files, .env files and environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for quizgen.
type Config struct {
	AI            AIConfig            `yaml:"ai"`
	Equation      EquationConfig      `yaml:"equation"`
	Cache         CacheConfig         `yaml:"cache"`
	Output        OutputConfig        `yaml:"output"`
	Render        RenderConfig        `yaml:"render"`
	Orchestrator  OrchestratorConfig  `yaml:"orchestrator"`
	Ledger        LedgerConfig        `yaml:"ledger"`
	Status        StatusConfig        `yaml:"status"`
	Prompts       PromptsConfig       `yaml:"prompts"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// AIConfig holds settings for the AI collaborator.
type AIConfig struct {
	BaseURL         string        `yaml:"base_url"`
	Model           string        `yaml:"model"`
	RepairModel     string        `yaml:"repair_model"`
	ImageModel      string        `yaml:"image_model"`
	APIKeys         []string      `yaml:"api_keys"`
	Timeout         time.Duration `yaml:"timeout"`
	RepairTimeout   time.Duration `yaml:"repair_timeout"`
	ImageTimeout    time.Duration `yaml:"image_timeout"`
	MaxOutputTokens int           `yaml:"max_output_tokens"`
	Temperature     float64       `yaml:"temperature"`
	TopP            float64       `yaml:"top_p"`
	Stream          bool          `yaml:"stream"`
	UseSchema       bool          `yaml:"use_schema"`
}

// EquationConfig holds pandoc settings.
type EquationConfig struct {
	PandocPath string        `yaml:"pandoc_path"`
	Timeout    time.Duration `yaml:"timeout"`
}

// CacheConfig holds equation cache settings.
type CacheConfig struct {
	Driver     string        `yaml:"driver"` // memory or redis
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
	Redis      RedisConfig   `yaml:"redis"`
}

// RedisConfig holds Redis-specific settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
	Prefix   string `yaml:"prefix"`
}

// OutputConfig controls where artifacts go.
type OutputConfig struct {
	Root        string        `yaml:"root"`
	DebugJSON   bool          `yaml:"debug_json"`
	SaveRetries int           `yaml:"save_retries"`
	RetryDelay  time.Duration `yaml:"retry_delay"`
}

// RenderConfig controls document rendering.
type RenderConfig struct {
	Bilingual bool `yaml:"bilingual"`
	// Images draws illustrations described as "tu_mo_ta". Otherwise every
	// illustration is left as a placeholder.
	Images bool `yaml:"images"`
}

// OrchestratorConfig controls the worker pool.
type OrchestratorConfig struct {
	Concurrency   int           `yaml:"concurrency"`
	GraceTimeout  time.Duration `yaml:"grace_timeout"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	DispatchDelay time.Duration `yaml:"dispatch_delay"`
	InProcess     bool          `yaml:"in_process"`
}

// LedgerConfig holds the batch ledger database settings.
type LedgerConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Driver   string         `yaml:"driver"` // sqlite or postgres
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// PostgresConfig holds Postgres-specific settings.
type PostgresConfig struct {
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// StatusConfig holds the status API settings.
type StatusConfig struct {
	Addr string `yaml:"addr"`
}

// PromptsConfig names the prompt file for each question kind.
type PromptsConfig struct {
	Dir            string `yaml:"dir"`
	MultipleChoice string `yaml:"multiple_choice"`
	TrueFalse      string `yaml:"true_false"`
	ShortAnswer    string `yaml:"short_answer"`
	Essay          string `yaml:"essay"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Load reads a .env file if present, then the YAML file, then environment overrides.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with defaults for local use.
func DefaultConfig() *Config {
	return &Config{
		AI: AIConfig{
			BaseURL:         "https://openrouter.ai/api/v1",
			Model:           "google/gemini-2.5-pro",
			RepairModel:     "google/gemini-2.5-flash",
			ImageModel:      "google/gemini-2.5-flash-image",
			Timeout:         300 * time.Second,
			RepairTimeout:   120 * time.Second,
			ImageTimeout:    60 * time.Second,
			MaxOutputTokens: 65535,
			Temperature:     0.2,
			TopP:            0.8,
			Stream:          true,
			UseSchema:       false,
		},
		Equation: EquationConfig{
			Timeout: 10 * time.Second,
		},
		Render: RenderConfig{
			Images: true,
		},
		Cache: CacheConfig{
			Driver:     "memory",
			TTL:        24 * time.Hour,
			MaxEntries: 10000,
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				PoolSize: 10,
				Prefix:   "quizgen:",
			},
		},
		Output: OutputConfig{
			Root:        "output",
			DebugJSON:   true,
			SaveRetries: 3,
			RetryDelay:  time.Second,
		},
		Orchestrator: OrchestratorConfig{
			Concurrency:  3,
			GraceTimeout: 15 * time.Second,
			PollInterval: 100 * time.Millisecond,
		},
		Ledger: LedgerConfig{
			Enabled: true,
			Driver:  "sqlite",
			SQLite: SQLiteConfig{
				Path: "output/quizgen.db",
			},
			Postgres: PostgresConfig{
				MaxOpenConns: 10,
			},
		},
		Status: StatusConfig{
			Addr: ":8090",
		},
		Prompts: PromptsConfig{
			Dir: "prompts",
		},
		Observability: ObservabilityConfig{
			LogLevel:  "info",
			LogFormat: "console",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Orchestrator.Concurrency < 1 {
		return fmt.Errorf("orchestrator concurrency must be at least 1, got %d", c.Orchestrator.Concurrency)
	}

	if c.Orchestrator.GraceTimeout <= 0 {
		return fmt.Errorf("orchestrator grace_timeout must be positive")
	}

	if c.Equation.Timeout <= 0 {
		return fmt.Errorf("equation timeout must be positive")
	}

	if c.Cache.Driver != "memory" && c.Cache.Driver != "redis" {
		return fmt.Errorf("invalid cache driver: %s", c.Cache.Driver)
	}

	if c.Ledger.Driver != "sqlite" && c.Ledger.Driver != "postgres" {
		return fmt.Errorf("invalid ledger driver: %s", c.Ledger.Driver)
	}

	if c.Ledger.Enabled && c.Ledger.Driver == "postgres" && c.Ledger.Postgres.DSN == "" {
		return fmt.Errorf("ledger postgres dsn is required")
	}

	if strings.TrimSpace(c.Output.Root) == "" {
		return fmt.Errorf("output root cannot be empty")
	}

	if c.Output.SaveRetries < 1 {
		return fmt.Errorf("output save_retries must be at least 1")
	}

	return nil
}

// LedgerDSN returns the connection string for the configured ledger driver.
func (c *Config) LedgerDSN() string {
	if c.Ledger.Driver == "sqlite" {
		return c.Ledger.SQLite.Path
	}
	return c.Ledger.Postgres.DSN
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("OPENROUTER_API_KEYS"); v != "" {
		cfg.AI.APIKeys = splitList(v)
	} else if v := os.Getenv("OPENROUTER_API_KEY"); v != "" {
		cfg.AI.APIKeys = []string{v}
	}

	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.AI.Model = v
	}

	if v := os.Getenv("LLM_REPAIR_MODEL"); v != "" {
		cfg.AI.RepairModel = v
	}

	if v := os.Getenv("LLM_IMAGE_MODEL"); v != "" {
		cfg.AI.ImageModel = v
	}

	if v := os.Getenv("PANDOC_PATH"); v != "" {
		cfg.Equation.PandocPath = v
	}

	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Cache.Driver = "redis"
		cfg.Cache.Redis.Addr = strings.TrimPrefix(v, "redis://")
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		if strings.HasPrefix(v, "sqlite:") {
			cfg.Ledger.Driver = "sqlite"
			cfg.Ledger.SQLite.Path = strings.TrimPrefix(v, "sqlite:")
		} else if strings.HasPrefix(v, "postgres") {
			cfg.Ledger.Driver = "postgres"
			cfg.Ledger.Postgres.DSN = v
		}
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}

	if v := os.Getenv("QUIZGEN_OUTPUT_DIR"); v != "" {
		cfg.Output.Root = v
	}

	if v := os.Getenv("QUIZGEN_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Orchestrator.Concurrency = n
		}
	}

	if v := os.Getenv("QUIZGEN_STATUS_ADDR"); v != "" {
		cfg.Status.Addr = v
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

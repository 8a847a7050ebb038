package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"
)

// Supported service backends
const (
	BackendOllama = "ollama"
	BackendGemini = "gemini"
)

// Supported ledger backends
const (
	LedgerSQLite   = "sqlite"
	LedgerPostgres = "postgres"
	LedgerRedis    = "redis"
	LedgerMemory   = "memory"
)

// Config represents the application configuration
type Config struct {
	DataDir   string        `yaml:"data_dir"`
	Debug     bool          `yaml:"debug"`      // Enable debug logging
	TasksDir  string        `yaml:"tasks_dir"`  // Directory with task descriptors (default: <data_dir>/prompts)
	OutputDir string        `yaml:"output_dir"` // Directory for completion records (default: <data_dir>/completions)
	Engine    EngineConfig  `yaml:"engine"`
	Service   ServiceConfig `yaml:"service"`
	Policy    PolicyConfig  `yaml:"policy"`
	Ledger    LedgerConfig  `yaml:"ledger"`
	Metrics   MetricsConfig `yaml:"metrics"`
	Notify    NotifyConfig  `yaml:"notify"`
}

// EngineConfig controls the worker pool
type EngineConfig struct {
	Workers    int `yaml:"workers"`     // Fixed pool size; <= 0 derives it from the CPU count
	MaxWorkers int `yaml:"max_workers"` // Cap applied when the pool size is derived
}

// ServiceConfig describes the text-generation service
type ServiceConfig struct {
	Backend        string                   `yaml:"backend"`  // "ollama" or "gemini"
	Endpoint       string                   `yaml:"endpoint"` // Generate endpoint for the ollama backend
	Temperature    float32                  `yaml:"temperature"`
	DefaultTimeout time.Duration            `yaml:"default_timeout"`
	Timeouts       map[string]time.Duration `yaml:"timeouts"`  // Per-target deadlines; replaces the defaults when set
	ModelMap       map[string]string        `yaml:"model_map"` // Target name -> backend model name; replaces the defaults when set
	APIKey         string                   `yaml:"api_key"`     // Direct API key (takes precedence over api_key_env)
	APIKeyEnv      string                   `yaml:"api_key_env"` // Environment variable name containing API key
}

// PolicyConfig controls fallback escalation
type PolicyConfig struct {
	Escalate           bool     `yaml:"escalate"`
	LightweightTargets []string `yaml:"lightweight_targets"`
	FallbackTarget     string   `yaml:"fallback_target"`
}

// LedgerConfig selects and configures the completion ledger
type LedgerConfig struct {
	Backend        string `yaml:"backend"`         // sqlite, postgres, redis or memory
	FlushThreshold int    `yaml:"flush_threshold"` // Successes buffered before a durable write
	PostgresDSN    string `yaml:"postgres_dsn"`
	PostgresDSNEnv string `yaml:"postgres_dsn_env"`
	RedisAddr      string `yaml:"redis_addr"`
	RedisPassword  string `yaml:"redis_password"`
	RedisDB        int    `yaml:"redis_db"`
	RedisPrefix    string `yaml:"redis_prefix"`
}

// MetricsConfig controls the Prometheus textfile written at the end of a run
type MetricsConfig struct {
	Textfile string `yaml:"textfile"` // Empty disables the textfile
}

// NotifyConfig represents run summary email configuration
type NotifyConfig struct {
	Enabled        bool     `yaml:"enabled"`
	DryRun         bool     `yaml:"dry_run"`
	SendGridAPIKey string   `yaml:"sendgrid_api_key"`     // Direct API key
	SendGridKeyEnv string   `yaml:"sendgrid_api_key_env"` // Environment variable name
	FromEmail      string   `yaml:"from_email"`
	FromName       string   `yaml:"from_name"`
	To             []string `yaml:"to"`
	SubjectPrefix  string   `yaml:"subject_prefix"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		DataDir: "", // Must be specified by user
		Engine: EngineConfig{
			Workers:    0,
			MaxWorkers: 3,
		},
		Service: ServiceConfig{
			Backend:        BackendOllama,
			Endpoint:       "http://localhost:11434/api/generate",
			Temperature:    0.4,
			DefaultTimeout: 15 * time.Minute, // big models can be slow
			Timeouts: map[string]time.Duration{
				"microsoft/phi-3-mini-4k-instruct": 5 * time.Minute,
				"deepseek-llm":                     15 * time.Minute,
			},
			ModelMap: map[string]string{
				"microsoft/phi-3-mini-4k-instruct": "phi:latest",
				"deepseek-llm":                     "deepseek-llm:latest",
			},
			APIKeyEnv: "GOOGLE_API_KEY",
		},
		Policy: PolicyConfig{
			Escalate:           true,
			LightweightTargets: []string{"microsoft/phi-3-mini-4k-instruct"},
			FallbackTarget:     "deepseek-llm",
		},
		Ledger: LedgerConfig{
			Backend:        LedgerSQLite,
			FlushThreshold: 10,
			PostgresDSNEnv: "PROMPTRUN_POSTGRES_DSN",
			RedisAddr:      "localhost:6379",
			RedisPrefix:    "promptrun",
		},
		Notify: NotifyConfig{
			Enabled:        false,
			SendGridKeyEnv: "SENDGRID_API_KEY",
			FromEmail:      "promptrun@example.com",
			FromName:       "Prompt Runner",
			SubjectPrefix:  "[promptrun]",
		},
	}
}

// Load loads configuration from the specified path, falling back to defaults
func Load(configPath string) (*Config, error) {
	// If no path specified, use default location
	if configPath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(homeDir, ".config", "promptrun", "config.yaml")
	}

	configPath = expandPath(configPath)

	cfg := DefaultConfig()

	data, err := os.ReadFile(configPath)
	if err != nil {
		// If file doesn't exist, return defaults
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// yaml merges into non-nil maps; a configured table replaces the default
	var present struct {
		Service struct {
			Timeouts *yaml.Node `yaml:"timeouts"`
			ModelMap *yaml.Node `yaml:"model_map"`
		} `yaml:"service"`
	}
	if err := yaml.Unmarshal(data, &present); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if present.Service.Timeouts != nil {
		cfg.Service.Timeouts = nil
	}
	if present.Service.ModelMap != nil {
		cfg.Service.ModelMap = nil
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.DataDir = expandPath(cfg.DataDir)
	cfg.TasksDir = expandPath(cfg.TasksDir)
	cfg.OutputDir = expandPath(cfg.OutputDir)

	return cfg, nil
}

// Validate checks the combination of settings a run depends on
func (c *Config) Validate() error {
	switch c.Service.Backend {
	case BackendOllama:
		if c.Service.Endpoint == "" {
			return fmt.Errorf("service.endpoint is required for the %s backend", BackendOllama)
		}
	case BackendGemini:
	default:
		return fmt.Errorf("unknown service backend: %q", c.Service.Backend)
	}

	switch c.Ledger.Backend {
	case LedgerSQLite, LedgerPostgres, LedgerRedis, LedgerMemory:
	default:
		return fmt.Errorf("unknown ledger backend: %q", c.Ledger.Backend)
	}

	if c.Ledger.FlushThreshold < 1 {
		return fmt.Errorf("ledger.flush_threshold must be at least 1, got %d", c.Ledger.FlushThreshold)
	}
	if c.Service.DefaultTimeout <= 0 {
		return fmt.Errorf("service.default_timeout must be positive")
	}
	for target, timeout := range c.Service.Timeouts {
		if timeout <= 0 {
			return fmt.Errorf("service.timeouts[%s] must be positive", target)
		}
	}
	if c.Policy.Escalate && len(c.Policy.LightweightTargets) > 0 && c.Policy.FallbackTarget == "" {
		return fmt.Errorf("policy.fallback_target is required when escalation is enabled")
	}
	if c.Notify.Enabled && len(c.Notify.To) == 0 {
		return fmt.Errorf("notify.to must list at least one recipient when notifications are enabled")
	}

	return nil
}

// expandPath expands ~ to home directory in paths
func expandPath(path string) string {
	if path == "" {
		return path
	}

	if path[0] == '~' {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		if len(path) == 1 {
			return homeDir
		}
		return filepath.Join(homeDir, path[1:])
	}

	return path
}

// EnsureDataDir creates the data directory if it doesn't exist
func (c *Config) EnsureDataDir() error {
	if err := os.MkdirAll(c.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	return nil
}

// GetTasksDir returns the descriptor directory, defaulting to <data_dir>/prompts
func (c *Config) GetTasksDir() string {
	if c.TasksDir != "" {
		return c.TasksDir
	}
	return filepath.Join(c.DataDir, "prompts")
}

// GetOutputDir returns the completion directory, defaulting to <data_dir>/completions
func (c *Config) GetOutputDir() string {
	if c.OutputDir != "" {
		return c.OutputDir
	}
	return filepath.Join(c.DataDir, "completions")
}

// PoolSize returns the number of workers for a run
func (c *Config) PoolSize() int {
	if c.Engine.Workers > 0 {
		return c.Engine.Workers
	}
	n := runtime.NumCPU()
	if c.Engine.MaxWorkers > 0 && n > c.Engine.MaxWorkers {
		n = c.Engine.MaxWorkers
	}
	return n
}

// GetAPIKey returns the service API key, checking direct key first then env var
func (c *Config) GetAPIKey() string {
	if c.Service.APIKey != "" {
		return c.Service.APIKey
	}
	if c.Service.APIKeyEnv != "" {
		return os.Getenv(c.Service.APIKeyEnv)
	}
	return ""
}

// GetPostgresDSN returns the Postgres DSN, checking direct value first then env var
func (c *Config) GetPostgresDSN() string {
	if c.Ledger.PostgresDSN != "" {
		return c.Ledger.PostgresDSN
	}
	if c.Ledger.PostgresDSNEnv != "" {
		return os.Getenv(c.Ledger.PostgresDSNEnv)
	}
	return ""
}

// GetSendGridAPIKey returns the SendGrid API key, checking direct key first then env var
func (c *Config) GetSendGridAPIKey() string {
	if c.Notify.SendGridAPIKey != "" {
		return c.Notify.SendGridAPIKey
	}
	if c.Notify.SendGridKeyEnv != "" {
		return os.Getenv(c.Notify.SendGridKeyEnv)
	}
	return ""
}

// Redacted returns a copy with secrets masked, for display
func (c *Config) Redacted() *Config {
	cp := *c
	if cp.Service.APIKey != "" {
		cp.Service.APIKey = "********"
	}
	if cp.Ledger.PostgresDSN != "" {
		cp.Ledger.PostgresDSN = "********"
	}
	if cp.Ledger.RedisPassword != "" {
		cp.Ledger.RedisPassword = "********"
	}
	if cp.Notify.SendGridAPIKey != "" {
		cp.Notify.SendGridAPIKey = "********"
	}
	return &cp
}

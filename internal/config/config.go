package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g.
// SECURESCOPE_DATABASE_PATH or SECURESCOPE_VAULT_BACKEND.
const EnvPrefix = "SECURESCOPE"

// Feature flag names understood by the server.
const (
	FeatureLLMAdvice = "llm_advice"
)

// Config is the top-level application configuration.
// It is read from an optional YAML file and environment variables and must
// never be committed with real secrets.
type Config struct {
	ListenAddr   string      `mapstructure:"listen_addr"`
	APIPrefix    string      `mapstructure:"api_prefix"`
	DatabasePath string      `mapstructure:"database_path"`
	CatalogDir   string      `mapstructure:"catalog_dir"`
	EnforceHTTPS bool        `mapstructure:"enforce_https"`
	FeatureFlags []string    `mapstructure:"feature_flags"`
	Vault        VaultConfig `mapstructure:"vault"`
	Queue        QueueConfig `mapstructure:"queue"`
	LLM          LLMConfig   `mapstructure:"llm"`
	Log          LogConfig   `mapstructure:"log"`
}

// VaultConfig selects where scan credentials live between start and
// execution.
type VaultConfig struct {
	// Backend is "memory" or "bolt".
	Backend string `mapstructure:"backend"`

	// Path is the bbolt file used by the "bolt" backend.
	Path string `mapstructure:"path"`

	TTL time.Duration `mapstructure:"ttl"`
}

// QueueConfig sizes the in-process scan queue.
type QueueConfig struct {
	Size        int `mapstructure:"size"`
	Concurrency int `mapstructure:"concurrency"`
}

// LLMConfig configures the optional advice backend.
type LLMConfig struct {
	// Endpoint is an OpenAI compatible completions URL. Empty disables
	// advice generation.
	Endpoint string        `mapstructure:"endpoint"`
	Model    string        `mapstructure:"model"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// LogConfig configures the zerolog logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Enabled reports whether flag is listed in FeatureFlags.
func (c *Config) Enabled(flag string) bool {
	for _, f := range c.FeatureFlags {
		if strings.EqualFold(strings.TrimSpace(f), flag) {
			return true
		}
	}
	return false
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	var errs []error
	switch c.Vault.Backend {
	case "memory":
	case "bolt":
		if c.Vault.Path == "" {
			errs = append(errs, errors.New("vault.path is required for the bolt backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("vault.backend %q: must be memory or bolt", c.Vault.Backend))
	}
	if c.Vault.TTL <= 0 {
		errs = append(errs, errors.New("vault.ttl must be positive"))
	}
	if c.Queue.Size <= 0 || c.Queue.Concurrency <= 0 {
		errs = append(errs, errors.New("queue.size and queue.concurrency must be positive"))
	}
	if c.DatabasePath == "" {
		errs = append(errs, errors.New("database_path is required"))
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q: must be console or json", c.Log.Format))
	}
	return errors.Join(errs...)
}

// SetDefaults registers every key's default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("api_prefix", "/api")
	v.SetDefault("database_path", "securescope.db")
	v.SetDefault("catalog_dir", "")
	v.SetDefault("enforce_https", true)
	v.SetDefault("feature_flags", []string{})
	v.SetDefault("vault.backend", "memory")
	v.SetDefault("vault.path", "securescope-vault.db")
	v.SetDefault("vault.ttl", 900*time.Second)
	v.SetDefault("queue.size", 64)
	v.SetDefault("queue.concurrency", 4)
	v.SetDefault("llm.endpoint", "")
	v.SetDefault("llm.model", "mistral-7b-instruct")
	v.SetDefault("llm.timeout", 60*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// Load reads configuration from path (optional) and the environment.
// Environment variables win over the file, which wins over defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

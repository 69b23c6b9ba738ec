// Package config loads lia settings from defaults, an optional YAML file and
// LIA_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/ajitpratap0/lia/internal/models"
)

const (
	appName = "lia"

	socketFile   = "lia.sock"
	pidFile      = "lia.pid"
	databaseFile = "review_db.sqlite"
	historyFile  = "history"
	workerLog    = "daemon.log"
)

// Config holds all configuration for lia.
type Config struct {
	Paths    PathsConfig    `mapstructure:"paths"`
	Embedder EmbedderConfig `mapstructure:"embedder"`
	Ollama   OllamaConfig   `mapstructure:"ollama"`
	OpenAI   OpenAIConfig   `mapstructure:"openai"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// PathsConfig holds where records and runtime files live.
type PathsConfig struct {
	DataDir  string `mapstructure:"data_dir" validate:"required"`
	CacheDir string `mapstructure:"cache_dir" validate:"required"`
}

// EmbedderConfig selects the embedding provider.
type EmbedderConfig struct {
	Provider  string `mapstructure:"provider" validate:"oneof=ollama openai"`
	Dimension int    `mapstructure:"dimension" validate:"gt=0"`
}

// OllamaConfig holds Ollama embedding service settings.
type OllamaConfig struct {
	BaseURL string `mapstructure:"base_url" validate:"required,url"`
	Model   string `mapstructure:"model" validate:"required"`
}

// OpenAIConfig holds OpenAI embedding API settings.
type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url" validate:"omitempty,url"`
}

// String returns a safe representation of OpenAIConfig with the API key masked.
func (c OpenAIConfig) String() string {
	return fmt.Sprintf("OpenAIConfig{APIKey:%s, Model:%s, BaseURL:%s}", maskAPIKey(c.APIKey), c.Model, c.BaseURL)
}

// maskAPIKey shows first 4 + last 4 chars, replacing the middle with asterisks.
func maskAPIKey(key string) string {
	const visible = 4
	if len(key) <= visible*2 {
		return "***"
	}
	return key[:visible] + "****" + key[len(key)-visible:]
}

// WorkerConfig holds similarity worker timeouts.
type WorkerConfig struct {
	StartTimeout   time.Duration `mapstructure:"start_timeout" validate:"gt=0"`
	StopTimeout    time.Duration `mapstructure:"stop_timeout" validate:"gt=0"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"gt=0"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

// Load reads configuration from file and environment variables.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("paths.data_dir", filepath.Join(xdgDir("XDG_DATA_HOME", ".local", "share"), appName, "data"))
	v.SetDefault("paths.cache_dir", filepath.Join(xdgDir("XDG_CACHE_HOME", ".cache"), appName))

	v.SetDefault("embedder.provider", "ollama")
	v.SetDefault("embedder.dimension", 768)

	v.SetDefault("ollama.base_url", "http://localhost:11434")
	v.SetDefault("ollama.model", "paraphrase-multilingual")

	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.model", "text-embedding-3-small")
	v.SetDefault("openai.base_url", "https://api.openai.com")

	v.SetDefault("worker.start_timeout", 60*time.Second)
	v.SetDefault("worker.stop_timeout", 5*time.Second)
	v.SetDefault("worker.request_timeout", 30*time.Second)

	v.SetDefault("logging.level", "warn")
	v.SetDefault("logging.format", "text")

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(filepath.Join(xdgDir("XDG_CONFIG_HOME", ".config"), appName))
	v.AddConfigPath(".")

	// Environment variables: LIA_PATHS_DATA_DIR, LIA_WORKER_START_TIMEOUT, ...
	v.SetEnvPrefix("LIA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("openai.api_key", "LIA_OPENAI_API_KEY", "OPENAI_API_KEY")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

var validate = validator.New()

// Validate checks that required configuration fields are set and consistent.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, fmt.Sprintf("%s %s", fieldName(fe), formatValidationError(fe)))
		}
		return errors.New(strings.Join(msgs, "; "))
	}
	if c.Embedder.Provider == "openai" && c.OpenAI.APIKey == "" {
		return fmt.Errorf("openai.api_key must be set when embedder.provider is openai")
	}
	return nil
}

// fieldName turns "Config.Worker.StartTimeout" into "worker.start_timeout".
func fieldName(fe validator.FieldError) string {
	parts := strings.Split(fe.StructNamespace(), ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, p := range parts {
		parts[i] = snake(p)
	}
	return strings.Join(parts, ".")
}

func snake(s string) string {
	switch s {
	case "OpenAI":
		return "openai"
	case "APIKey":
		return "api_key"
	case "BaseURL":
		return "base_url"
	}
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

// formatValidationError converts validator.FieldError to a human-readable message.
func formatValidationError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "must not be empty"
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "url":
		return "must be a valid URL"
	default:
		return fmt.Sprintf("failed validation: %s", fe.Tag())
	}
}

// SocketPath is the similarity worker's Unix socket.
func (c *Config) SocketPath() string { return filepath.Join(c.Paths.CacheDir, socketFile) }

// PIDPath holds the similarity worker's process id.
func (c *Config) PIDPath() string { return filepath.Join(c.Paths.CacheDir, pidFile) }

// DatabasePath is the review schedule database.
func (c *Config) DatabasePath() string { return filepath.Join(c.Paths.CacheDir, databaseFile) }

// HistoryPath stores past queries of the interactive prompt.
func (c *Config) HistoryPath() string { return filepath.Join(c.Paths.CacheDir, historyFile) }

// WorkerLogPath receives the detached worker's output.
func (c *Config) WorkerLogPath() string { return filepath.Join(c.Paths.CacheDir, workerLog) }

// EnsureDirs creates the data and cache directories, the undefined topic
// file and the history file when they are missing.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.CacheDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	for _, path := range []string{
		filepath.Join(c.Paths.DataDir, models.UndefinedTopic+".md"),
		c.HistoryPath(),
	} {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("closing %s: %w", path, err)
		}
	}
	return nil
}

// xdgDir returns $env, or ~/<fallback...> when it is unset.
func xdgDir(env string, fallback ...string) string {
	if dir := os.Getenv(env); dir != "" {
		return dir
	}
	return filepath.Join(append([]string{homeDir()}, fallback...)...)
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}

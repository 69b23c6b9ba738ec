package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points every XDG directory at a fresh temp dir.
func isolate(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	t.Setenv("HOME", root)
	t.Setenv("XDG_DATA_HOME", filepath.Join(root, "data"))
	t.Setenv("XDG_CACHE_HOME", filepath.Join(root, "cache"))
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(root, "config"))
	t.Setenv("OPENAI_API_KEY", "")
	return root
}

func validCfg() *Config {
	return &Config{
		Paths:    PathsConfig{DataDir: "/tmp/lia/data", CacheDir: "/tmp/lia/cache"},
		Embedder: EmbedderConfig{Provider: "ollama", Dimension: 768},
		Ollama:   OllamaConfig{BaseURL: "http://localhost:11434", Model: "paraphrase-multilingual"},
		OpenAI:   OpenAIConfig{Model: "text-embedding-3-small"},
		Worker: WorkerConfig{
			StartTimeout:   time.Minute,
			StopTimeout:    5 * time.Second,
			RequestTimeout: 30 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

func TestLoad_Defaults(t *testing.T) {
	root := isolate(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(root, "data", "lia", "data"), cfg.Paths.DataDir)
	assert.Equal(t, filepath.Join(root, "cache", "lia"), cfg.Paths.CacheDir)
	assert.Equal(t, "ollama", cfg.Embedder.Provider)
	assert.Equal(t, "paraphrase-multilingual", cfg.Ollama.Model)
	assert.Equal(t, 60*time.Second, cfg.Worker.StartTimeout)
	assert.Equal(t, "warn", cfg.Logging.Level)

	assert.Equal(t, filepath.Join(cfg.Paths.CacheDir, "lia.sock"), cfg.SocketPath())
	assert.Equal(t, filepath.Join(cfg.Paths.CacheDir, "review_db.sqlite"), cfg.DatabasePath())
	assert.Equal(t, filepath.Join(cfg.Paths.CacheDir, "daemon.log"), cfg.WorkerLogPath())
	assert.Equal(t, filepath.Join(cfg.Paths.CacheDir, "history"), cfg.HistoryPath())
	assert.Equal(t, filepath.Join(cfg.Paths.CacheDir, "lia.pid"), cfg.PIDPath())
}

func TestLoad_EnvOverrides(t *testing.T) {
	root := isolate(t)
	t.Setenv("LIA_PATHS_DATA_DIR", filepath.Join(root, "kb"))
	t.Setenv("LIA_WORKER_START_TIMEOUT", "10s")
	t.Setenv("LIA_LOGGING_LEVEL", "debug")
	t.Setenv("LIA_EMBEDDER_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "sk-test-1234567890")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "kb"), cfg.Paths.DataDir)
	assert.Equal(t, 10*time.Second, cfg.Worker.StartTimeout)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "sk-test-1234567890", cfg.OpenAI.APIKey)
}

func TestLoad_ConfigFile(t *testing.T) {
	root := isolate(t)
	dir := filepath.Join(root, "config", "lia")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(
		"ollama:\n  model: nomic-embed-text\nworker:\n  request_timeout: 2s\n"), 0o644))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "nomic-embed-text", cfg.Ollama.Model)
	assert.Equal(t, 2*time.Second, cfg.Worker.RequestTimeout)
}

func TestLoad_InvalidEnv(t *testing.T) {
	isolate(t)
	t.Setenv("LIA_EMBEDDER_PROVIDER", "bert")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embedder.provider must be one of [ollama openai]")
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"empty data dir", func(c *Config) { c.Paths.DataDir = "" }, "paths.data_dir must not be empty"},
		{"bad provider", func(c *Config) { c.Embedder.Provider = "x" }, "embedder.provider"},
		{"zero dimension", func(c *Config) { c.Embedder.Dimension = 0 }, "embedder.dimension must be greater than 0"},
		{"bad ollama url", func(c *Config) { c.Ollama.BaseURL = "not a url" }, "ollama.base_url must be a valid URL"},
		{"zero start timeout", func(c *Config) { c.Worker.StartTimeout = 0 }, "worker.start_timeout"},
		{"bad level", func(c *Config) { c.Logging.Level = "trace" }, "logging.level"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"openai without key", func(c *Config) { c.Embedder.Provider = "openai" }, "openai.api_key"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validCfg()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}

	assert.NoError(t, validCfg().Validate())
}

func TestOpenAIConfig_StringMasksKey(t *testing.T) {
	c := OpenAIConfig{APIKey: "sk-abcdefghijklmnop", Model: "m"}
	s := c.String()
	assert.NotContains(t, s, "abcdefghijkl")
	assert.True(t, strings.Contains(s, "sk-a****mnop"), s)

	assert.Contains(t, OpenAIConfig{APIKey: "short"}.String(), "***")
}

func TestEnsureDirs(t *testing.T) {
	root := t.TempDir()
	cfg := validCfg()
	cfg.Paths.DataDir = filepath.Join(root, "data")
	cfg.Paths.CacheDir = filepath.Join(root, "cache")

	require.NoError(t, cfg.EnsureDirs())
	assert.DirExists(t, cfg.Paths.DataDir)
	assert.FileExists(t, filepath.Join(cfg.Paths.DataDir, "undefined.md"))
	assert.FileExists(t, cfg.HistoryPath())

	// existing content is kept
	undefined := filepath.Join(cfg.Paths.DataDir, "undefined.md")
	require.NoError(t, os.WriteFile(undefined, []byte("# kept\n"), 0o644))
	require.NoError(t, cfg.EnsureDirs())
	raw, err := os.ReadFile(undefined)
	require.NoError(t, err)
	assert.Equal(t, "# kept\n", string(raw))
}

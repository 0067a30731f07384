// Package config provides configuration loading and structs for the taisaku server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application. Secrets never live
// here: auth settings name environment variables, and the values are read
// from the environment (godotenv loads a .env file at process start).
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Search    SearchConfig    `yaml:"search"`
	Auth      AuthConfig      `yaml:"auth"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StoreConfig holds the trouble-table location and append-lock settings.
// The lock file lives next to the table at Path + ".lock".
type StoreConfig struct {
	Path               string `yaml:"path"`
	LockTimeoutSeconds int    `yaml:"lock_timeout_seconds"`
	LockRetryMillis    int    `yaml:"lock_retry_millis"`
	Watch              *bool  `yaml:"watch"`
}

// LockTimeout returns the bounded wait for the append lock.
func (s *StoreConfig) LockTimeout() time.Duration {
	return time.Duration(s.LockTimeoutSeconds) * time.Second
}

// LockRetry returns the poll interval while waiting for the append lock.
func (s *StoreConfig) LockRetry() time.Duration {
	return time.Duration(s.LockRetryMillis) * time.Millisecond
}

// WatchOrDefault returns whether to watch the store file for outside
// changes; defaults to true when unset.
func (s *StoreConfig) WatchOrDefault() bool {
	if s.Watch != nil {
		return *s.Watch
	}
	return true
}

// EmbeddingConfig holds embedder settings. Type selects the provider:
// "onnx" (local model), "remote" (OpenAI-compatible endpoint), or "mock".
type EmbeddingConfig struct {
	Type       string `yaml:"type"`
	ModelPath  string `yaml:"model_path"`
	Dimensions int    `yaml:"dimensions"`
	MaxTokens  int    `yaml:"max_tokens"`
	CacheSize  int    `yaml:"cache_size"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	APIKeyEnv  string `yaml:"api_key_env"`
	BatchSize  int    `yaml:"batch_size"`
}

// SearchConfig holds result-count and corpus-warming settings.
type SearchConfig struct {
	DefaultTopN     int  `yaml:"default_top_n"`
	MaxTopN         int  `yaml:"max_top_n"`
	WarmOnStart     bool `yaml:"warm_on_start"`
	WarmBatchSize   int  `yaml:"warm_batch_size"`
	WarmConcurrency int  `yaml:"warm_concurrency"`
}

// AuthConfig names the environment variables carrying the two passphrases:
// the system passphrase gates every API route, the register passphrase
// additionally gates record registration.
type AuthConfig struct {
	SystemPassphraseEnv   string `yaml:"system_passphrase_env"`
	RegisterPassphraseEnv string `yaml:"register_passphrase_env"`
}

// Load reads and parses the config file at path, applies defaults, and
// expands paths. Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Store.Path = expandPath(cfg.Store.Path, configDir)
	cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)

	return &cfg, nil
}

// Default returns the configuration used when no config file exists.
func Default() *Config {
	var cfg Config
	ApplyDefaults(&cfg)
	cfg.Store.Path = expandPath(cfg.Store.Path, ".")
	cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, ".")
	return &cfg
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}

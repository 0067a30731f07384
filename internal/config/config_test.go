package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
store:
  path: "./trouble_list.csv"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	wantStore := filepath.Join(dir, "trouble_list.csv")
	if cfg.Store.Path != wantStore {
		t.Errorf("store path = %s, want %s", cfg.Store.Path, wantStore)
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
	if cfg.Embedding.Type != "onnx" {
		t.Errorf("default embedding type: got %s", cfg.Embedding.Type)
	}
}

func TestLoad_debugTrue(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
debug: true
embedding:
  type: mock
  dimensions: 64
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Debug {
		t.Error("debug should be true when set in config")
	}
	if cfg.Embedding.Type != "mock" || cfg.Embedding.Dimensions != 64 {
		t.Errorf("unexpected embedding config: %+v", cfg.Embedding)
	}
}

func TestLoad_missingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Server.Host != "localhost" {
		t.Errorf("default host: got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("default port: got %d", cfg.Server.Port)
	}
	if cfg.Store.LockTimeoutSeconds != 10 {
		t.Errorf("default lock timeout: got %d", cfg.Store.LockTimeoutSeconds)
	}
	if cfg.Store.LockRetryMillis != 100 {
		t.Errorf("default lock retry: got %d", cfg.Store.LockRetryMillis)
	}
	if cfg.Embedding.Dimensions != 768 || cfg.Embedding.MaxTokens != 512 {
		t.Errorf("default embedding sizes: %+v", cfg.Embedding)
	}
	if cfg.Search.DefaultTopN != 5 || cfg.Search.MaxTopN != 100 {
		t.Errorf("default search counts: %+v", cfg.Search)
	}
	if cfg.Search.WarmBatchSize != 32 {
		t.Errorf("default warm batch size: got %d", cfg.Search.WarmBatchSize)
	}
	if cfg.Search.WarmOnStart {
		t.Error("warm_on_start should default to false")
	}
	if cfg.Auth.SystemPassphraseEnv != "TAISAKU_SYSTEM_PASSPHRASE" {
		t.Errorf("default system passphrase env: got %s", cfg.Auth.SystemPassphraseEnv)
	}
	if cfg.Auth.RegisterPassphraseEnv != "TAISAKU_REGISTER_PASSPHRASE" {
		t.Errorf("default register passphrase env: got %s", cfg.Auth.RegisterPassphraseEnv)
	}
}

func TestStoreConfig_Durations(t *testing.T) {
	s := &StoreConfig{LockTimeoutSeconds: 10, LockRetryMillis: 100}
	if s.LockTimeout() != 10*time.Second {
		t.Errorf("LockTimeout() = %v", s.LockTimeout())
	}
	if s.LockRetry() != 100*time.Millisecond {
		t.Errorf("LockRetry() = %v", s.LockRetry())
	}
}

func TestStoreConfig_WatchOrDefault(t *testing.T) {
	t.Run("nil_returns_true", func(t *testing.T) {
		s := &StoreConfig{}
		if !s.WatchOrDefault() {
			t.Error("WatchOrDefault() = false, want true")
		}
	})
	t.Run("false_returns_false", func(t *testing.T) {
		f := false
		s := &StoreConfig{Watch: &f}
		if s.WatchOrDefault() {
			t.Error("WatchOrDefault() = true, want false")
		}
	})
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Store.Path == "" || cfg.Store.Path == ".taisaku/trouble_list.csv" {
		t.Errorf("store path should be expanded, got %s", cfg.Store.Path)
	}
	if !filepath.IsAbs(cfg.Store.Path) {
		t.Errorf("store path should be absolute, got %s", cfg.Store.Path)
	}
}

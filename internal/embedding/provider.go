package embedding

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/moldworks/taisaku/internal/config"
)

// New builds an embedder from config. Provider types: "onnx" (local model,
// needs CGO and the onnxruntime library), "remote" (OpenAI-compatible
// endpoint), "mock" (deterministic, for tests and trial runs). ONNX and
// remote providers are wrapped with an LRU cache when cfg.CacheSize > 0.
// A provider that cannot be built is an error; there is no fallback to a
// weaker provider.
func New(cfg *config.EmbeddingConfig, logger *zap.Logger) (Embedder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var (
		inner Embedder
		err   error
	)
	switch cfg.Type {
	case "onnx", "":
		inner, err = NewONNXEmbedder(cfg.ModelPath, cfg.Dimensions, cfg.MaxTokens)
	case "remote":
		inner, err = NewRemoteEmbedder(cfg.BaseURL, cfg.Model, cfg.APIKeyEnv, cfg.Dimensions, cfg.BatchSize, logger)
	case "mock":
		return NewMockEmbedder(cfg.Dimensions), nil
	default:
		return nil, fmt.Errorf("%w: unknown embedding type %q", ErrUnavailable, cfg.Type)
	}
	if err != nil {
		return nil, err
	}
	logger.Info("embedder initialized",
		zap.String("type", cfg.Type),
		zap.Int("dimensions", inner.Dimensions()),
		zap.Int("cache_size", cfg.CacheSize))
	if cfg.CacheSize > 0 {
		return NewCachedEmbedder(inner, cfg.CacheSize), nil
	}
	return inner, nil
}

var (
	sharedOnce sync.Once
	sharedEmb  Embedder
	sharedErr  error
)

// Shared returns the process-wide embedder, building it on the first call
// and returning the same instance (or the same construction error) on every
// later call, whatever config they carry. Model load is the expensive step,
// so it happens at most once per process. Callers hold the returned handle
// and pass it on explicitly.
func Shared(cfg *config.EmbeddingConfig, logger *zap.Logger) (Embedder, error) {
	sharedOnce.Do(func() {
		sharedEmb, sharedErr = New(cfg, logger)
	})
	return sharedEmb, sharedErr
}

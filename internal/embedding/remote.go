package embedding

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
)

// RemoteEmbedder talks to an OpenAI-compatible embedding endpoint through
// langchaingo, for deployments where the model runs in a separate inference
// server instead of in-process ONNX.
type RemoteEmbedder struct {
	embedder embeddings.Embedder
	logger   *zap.Logger

	mu         sync.Mutex
	dimensions int
}

// NewRemoteEmbedder builds a client for baseURL and model. The API token is
// read from the environment variable named by apiKeyEnv; an empty token
// resolves to "none", which local OpenAI-compatible servers accept.
// dimensions may be 0, in which case it is recorded from the first response.
func NewRemoteEmbedder(baseURL, model, apiKeyEnv string, dimensions, batchSize int, logger *zap.Logger) (*RemoteEmbedder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	token := ""
	if apiKeyEnv != "" {
		token = os.Getenv(apiKeyEnv)
	}
	if token == "" {
		token = "none"
	}
	client, err := openai.New(
		openai.WithBaseURL(baseURL),
		openai.WithToken(token),
		openai.WithEmbeddingModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: create embedding client: %v", ErrUnavailable, err)
	}
	opts := []embeddings.Option{embeddings.WithStripNewLines(true)}
	if batchSize > 0 {
		opts = append(opts, embeddings.WithBatchSize(batchSize))
	}
	embedder, err := embeddings.NewEmbedder(client, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: create embedder: %v", ErrUnavailable, err)
	}
	return &RemoteEmbedder{
		embedder:   embedder,
		logger:     logger,
		dimensions: dimensions,
	}, nil
}

// Embed returns the embedding for a single text.
func (e *RemoteEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in one request (langchaingo batches internally
// when the request exceeds its batch size).
func (e *RemoteEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	vecs, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		e.logger.Error("remote embedding failed", zap.Int("texts", len(texts)), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrUnavailable, len(vecs), len(texts))
	}
	e.noteDimensions(vecs)
	return vecs, nil
}

func (e *RemoteEmbedder) noteDimensions(vecs [][]float32) {
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return
	}
	e.mu.Lock()
	if e.dimensions == 0 {
		e.dimensions = len(vecs[0])
	}
	e.mu.Unlock()
}

// Dimensions returns the configured dimension, or the dimension observed
// from the first response, or 0 before either is known.
func (e *RemoteEmbedder) Dimensions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dimensions
}

// Close is a no-op for RemoteEmbedder.
func (e *RemoteEmbedder) Close() error {
	return nil
}

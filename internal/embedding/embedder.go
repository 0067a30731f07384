// Package embedding provides text embedding via a local ONNX model or a
// remote embedding service, with caching.
package embedding

import (
	"context"
	"errors"
)

// ErrUnavailable is wrapped by every embedding failure: a provider that
// cannot be constructed, a model that cannot be loaded, or an inference
// call that fails. There is no degraded mode; callers treat it as fatal
// to the search subsystem.
var ErrUnavailable = errors.New("embedding unavailable")

// Embedder produces vector embeddings for text.
//
// EmbedBatch returns exactly one vector per input text, in input order,
// all of equal dimension. An empty input yields an empty output without
// touching the model.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

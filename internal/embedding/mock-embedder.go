package embedding

import (
	"context"

	"github.com/moldworks/taisaku/pkg/utils"
)

// MockEmbedder is a deterministic embedder for tests and trial runs. Each
// token of the text adds a signed unit to one hashed coordinate, so texts
// sharing tokens get vectors with positive cosine similarity, roughly
// proportional to their token overlap. The same text always produces the
// same vector.
type MockEmbedder struct {
	dimensions int
}

// NewMockEmbedder returns an embedder producing deterministic token-hash
// embeddings of the given dimensions.
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &MockEmbedder{dimensions: dimensions}
}

// Embed returns the feature-hashed, L2-normalized embedding of text.
// Text with no tokens embeds to the zero vector.
func (e *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	emb := make([]float32, e.dimensions)
	for _, tok := range SplitTokens(text) {
		h := HashString(tok)
		idx := h % e.dimensions
		if (h/e.dimensions)%2 == 0 {
			emb[idx]++
		} else {
			emb[idx]--
		}
	}
	utils.NormalizeL2(emb)
	return emb, nil
}

// EmbedBatch calls Embed for each text.
func (e *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}

// Dimensions returns the embedding dimension.
func (e *MockEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op for MockEmbedder.
func (e *MockEmbedder) Close() error {
	return nil
}

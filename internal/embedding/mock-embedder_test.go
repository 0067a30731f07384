package embedding

import (
	"context"
	"math"
	"testing"
)

func cosine32(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func TestMockEmbedder_Deterministic(t *testing.T) {
	e := NewMockEmbedder(64)
	ctx := context.Background()
	a, err := e.Embed(ctx, "hydraulic leak at joint 3")
	if err != nil {
		t.Fatal(err)
	}
	b, _ := e.Embed(ctx, "hydraulic leak at joint 3")
	for i := range a {
		if a[i] != b[i] {
			t.Fatal("same text produced different vectors")
		}
	}
	if len(a) != 64 {
		t.Errorf("dimensions: got %d", len(a))
	}
}

func TestMockEmbedder_OverlapBeatsDisjoint(t *testing.T) {
	e := NewMockEmbedder(128)
	ctx := context.Background()
	query, _ := e.Embed(ctx, "leak near joint")
	related, _ := e.Embed(ctx, "hydraulic leak at joint 3")
	unrelated, _ := e.Embed(ctx, "conveyor belt misaligned")

	simRelated := cosine32(query, related)
	simUnrelated := cosine32(query, unrelated)
	if simRelated <= simUnrelated {
		t.Errorf("overlap similarity %v should beat disjoint %v", simRelated, simUnrelated)
	}
	if simRelated <= 0 {
		t.Errorf("texts sharing tokens should have positive similarity, got %v", simRelated)
	}
}

func TestMockEmbedder_NoTokensZeroVector(t *testing.T) {
	e := NewMockEmbedder(32)
	v, err := e.Embed(context.Background(), "  ")
	if err != nil {
		t.Fatal(err)
	}
	for _, x := range v {
		if x != 0 {
			t.Fatal("blank text should embed to the zero vector")
		}
	}
}

func TestMockEmbedder_Normalized(t *testing.T) {
	e := NewMockEmbedder(96)
	v, _ := e.Embed(context.Background(), "temperature controller alarm")
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if math.Abs(sum-1) > 1e-5 {
		t.Errorf("vector norm^2 = %v, want 1", sum)
	}
}

func TestMockEmbedder_BatchOrder(t *testing.T) {
	e := NewMockEmbedder(32)
	ctx := context.Background()
	texts := []string{"first", "second", "third"}
	batch, err := e.EmbedBatch(ctx, texts)
	if err != nil {
		t.Fatal(err)
	}
	if len(batch) != 3 {
		t.Fatalf("got %d vectors", len(batch))
	}
	for i, text := range texts {
		single, _ := e.Embed(ctx, text)
		for j := range single {
			if batch[i][j] != single[j] {
				t.Fatalf("batch vector %d differs from single embedding of %q", i, text)
			}
		}
	}
}

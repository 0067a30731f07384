package search

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/moldworks/taisaku/internal/config"
	"github.com/moldworks/taisaku/internal/embedding"
	"github.com/moldworks/taisaku/internal/models"
)

type staticSource struct {
	records []models.IncidentRecord
	err     error
}

func (s *staticSource) Records(ctx context.Context) ([]models.IncidentRecord, error) {
	return s.records, s.err
}

// scriptedEmbedder returns fixed vectors per text and fails on any text it
// was not scripted for, so tests catch stray embedding calls.
type scriptedEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	batches [][]string
}

func (f *scriptedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (f *scriptedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, append([]string(nil), texts...))
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, ok := f.vectors[text]
		if !ok {
			return nil, fmt.Errorf("unexpected text %q", text)
		}
		out[i] = v
	}
	return out, nil
}

func (f *scriptedEmbedder) Dimensions() int { return 2 }
func (f *scriptedEmbedder) Close() error    { return nil }

func (f *scriptedEmbedder) batchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

// withCosine builds a unit vector whose cosine against [1, 0] is c.
func withCosine(c float64) []float32 {
	return []float32{float32(c), float32(math.Sqrt(1 - c*c))}
}

func incident(machineID, equipment, description string) models.IncidentRecord {
	return models.IncidentRecord{
		Site:                 "Hofu",
		OccurredOn:           "2024/06/15",
		MachineID:            machineID,
		Equipment:            equipment,
		Description:          description,
		Cause:                "cause",
		CorrectiveAction:     "action",
		ResponseHours:        1,
		Responder:            "Tanaka",
		InvestigationProcess: "process",
		InvestigationNotes:   "notes",
	}
}

func testConfig() *config.SearchConfig {
	return &config.SearchConfig{DefaultTopN: 5, MaxTopN: 100}
}

func TestSearch_SingleBatchWithQueryLast(t *testing.T) {
	emb := &scriptedEmbedder{vectors: map[string][]float32{
		"first fault":  withCosine(0.4),
		"second fault": withCosine(0.8),
		"pump noise":   {1, 0},
	}}
	source := &staticSource{records: []models.IncidentRecord{
		incident("M-1", "molding machine", "first fault"),
		incident("M-2", "molding machine", "second fault"),
	}}
	e := NewEngine(source, emb, testConfig(), zap.NewNop())

	resp, err := e.Search(context.Background(), &models.SearchQuery{Query: "pump noise"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if emb.batchCount() != 1 {
		t.Fatalf("expected one embedding batch, got %d", emb.batchCount())
	}
	batch := emb.batches[0]
	if len(batch) != 3 {
		t.Fatalf("batch size = %d, want 3", len(batch))
	}
	if batch[len(batch)-1] != "pump noise" {
		t.Errorf("query must be the last batch element, got %q", batch[len(batch)-1])
	}
	if resp.Candidates != 2 {
		t.Errorf("candidates = %d, want 2", resp.Candidates)
	}
	if resp.Query != "pump noise" {
		t.Errorf("query echo = %q", resp.Query)
	}
}

func TestSearch_EquipmentFilter(t *testing.T) {
	emb := &scriptedEmbedder{vectors: map[string][]float32{
		"robot grip slips":   withCosine(0.9),
		"robot arm vibrates": withCosine(0.5),
		"q":                  {1, 0},
	}}
	source := &staticSource{records: []models.IncidentRecord{
		incident("M-1", "molding machine", "screw wear"),
		incident("R-1", "take-out robot", "robot grip slips"),
		incident("M-2", "molding machine", "heater drift"),
		incident("R-2", "take-out robot", "robot arm vibrates"),
	}}
	e := NewEngine(source, emb, testConfig(), zap.NewNop())

	resp, err := e.Search(context.Background(), &models.SearchQuery{Query: "q", Equipment: "take-out robot"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if resp.Candidates != 2 {
		t.Fatalf("candidates = %d, want 2", resp.Candidates)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("results = %d, want 2", len(resp.Results))
	}
	for i, r := range resp.Results {
		if r.Record.Equipment != "take-out robot" {
			t.Errorf("result %d equipment = %q", i, r.Record.Equipment)
		}
		if r.Rank != i+1 {
			t.Errorf("result %d rank = %d", i, r.Rank)
		}
	}
	if resp.Results[0].Record.MachineID != "R-1" {
		t.Errorf("top result = %s, want R-1", resp.Results[0].Record.MachineID)
	}
}

func TestSearch_NoCandidatesSkipsEmbedding(t *testing.T) {
	emb := &scriptedEmbedder{vectors: map[string][]float32{}}
	source := &staticSource{records: []models.IncidentRecord{
		incident("M-1", "molding machine", "screw wear"),
		incident("M-2", "molding machine", "   "),
	}}
	e := NewEngine(source, emb, testConfig(), zap.NewNop())

	// Filter matches nothing.
	resp, err := e.Search(context.Background(), &models.SearchQuery{Query: "q", Equipment: "leak tester"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Results) != 0 || resp.Candidates != 0 {
		t.Errorf("expected empty response, got %+v", resp)
	}
	if emb.batchCount() != 0 {
		t.Errorf("embedder must not be called with no candidates, got %d batches", emb.batchCount())
	}

	// Only blank descriptions remain.
	blankOnly := &staticSource{records: []models.IncidentRecord{
		incident("M-2", "molding machine", ""),
	}}
	e = NewEngine(blankOnly, emb, testConfig(), zap.NewNop())
	resp, err = e.Search(context.Background(), &models.SearchQuery{Query: "q"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Results) != 0 || emb.batchCount() != 0 {
		t.Errorf("blank-only corpus must not embed, results=%d batches=%d", len(resp.Results), emb.batchCount())
	}
}

func TestSearch_BlankDescriptionsExcluded(t *testing.T) {
	// The blank row is not scripted; embedding it would fail the search.
	emb := &scriptedEmbedder{vectors: map[string][]float32{
		"valve stuck": withCosine(0.7),
		"q":           {1, 0},
	}}
	source := &staticSource{records: []models.IncidentRecord{
		incident("M-1", "valve gate", "   "),
		incident("M-2", "valve gate", "valve stuck"),
	}}
	e := NewEngine(source, emb, testConfig(), zap.NewNop())

	resp, err := e.Search(context.Background(), &models.SearchQuery{Query: "q"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if resp.Candidates != 1 || len(resp.Results) != 1 {
		t.Fatalf("candidates=%d results=%d, want 1/1", resp.Candidates, len(resp.Results))
	}
	if resp.Results[0].Record.MachineID != "M-2" {
		t.Errorf("top result = %s", resp.Results[0].Record.MachineID)
	}
}

func TestSearch_RanksByScore(t *testing.T) {
	emb := &scriptedEmbedder{vectors: map[string][]float32{
		"half":    withCosine(0.5),
		"best":    withCosine(0.9),
		"worst":   withCosine(0.1),
		"the fix": {1, 0},
	}}
	source := &staticSource{records: []models.IncidentRecord{
		incident("M-1", "other", "half"),
		incident("M-2", "other", "best"),
		incident("M-3", "other", "worst"),
	}}
	e := NewEngine(source, emb, testConfig(), zap.NewNop())

	resp, err := e.Search(context.Background(), &models.SearchQuery{Query: "the fix"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(resp.Results))
	}
	var order []string
	for _, r := range resp.Results {
		order = append(order, r.Record.MachineID)
	}
	want := []string{"M-2", "M-1", "M-3"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
	if resp.Results[0].Score <= resp.Results[1].Score || resp.Results[1].Score <= resp.Results[2].Score {
		t.Errorf("scores not descending: %v %v %v",
			resp.Results[0].Score, resp.Results[1].Score, resp.Results[2].Score)
	}
}

func TestSearch_TieKeepsEarlierRecord(t *testing.T) {
	same := withCosine(0.6)
	emb := &scriptedEmbedder{vectors: map[string][]float32{
		"alpha": same,
		"beta":  same,
		"q":     {1, 0},
	}}
	source := &staticSource{records: []models.IncidentRecord{
		incident("M-1", "other", "alpha"),
		incident("M-2", "other", "beta"),
	}}
	e := NewEngine(source, emb, testConfig(), zap.NewNop())

	resp, err := e.Search(context.Background(), &models.SearchQuery{Query: "q"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(resp.Results))
	}
	if resp.Results[0].Record.MachineID != "M-1" {
		t.Errorf("tie must keep the earlier record, got %s first", resp.Results[0].Record.MachineID)
	}
}

func TestSearch_TopNDefaultAndCap(t *testing.T) {
	vectors := map[string][]float32{"q": {1, 0}}
	var records []models.IncidentRecord
	for i := 0; i < 5; i++ {
		desc := fmt.Sprintf("fault %d", i)
		vectors[desc] = withCosine(0.1 * float64(i+1))
		records = append(records, incident(fmt.Sprintf("M-%d", i), "other", desc))
	}
	emb := &scriptedEmbedder{vectors: vectors}
	cfg := &config.SearchConfig{DefaultTopN: 2, MaxTopN: 3}
	e := NewEngine(&staticSource{records: records}, emb, cfg, zap.NewNop())

	resp, err := e.Search(context.Background(), &models.SearchQuery{Query: "q"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Results) != 2 {
		t.Errorf("default top_n: got %d results, want 2", len(resp.Results))
	}

	resp, err = e.Search(context.Background(), &models.SearchQuery{Query: "q", TopN: 50})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Results) != 3 {
		t.Errorf("capped top_n: got %d results, want 3", len(resp.Results))
	}
}

func TestSearch_BlankQueryRejected(t *testing.T) {
	e := NewEngine(&staticSource{}, &scriptedEmbedder{}, testConfig(), zap.NewNop())
	_, err := e.Search(context.Background(), &models.SearchQuery{Query: "   "})
	if !errors.Is(err, models.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSearch_Deterministic(t *testing.T) {
	source := &staticSource{records: []models.IncidentRecord{
		incident("M-1", "other", "hydraulic leak at joint 3"),
		incident("M-2", "other", "conveyor belt misaligned"),
		incident("M-3", "other", "control panel fuse blown"),
	}}
	e := NewEngine(source, embedding.NewMockEmbedder(128), testConfig(), zap.NewNop())

	first, err := e.Search(context.Background(), &models.SearchQuery{Query: "leak near joint"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for i := 0; i < 3; i++ {
		again, err := e.Search(context.Background(), &models.SearchQuery{Query: "leak near joint"})
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if len(again.Results) != len(first.Results) {
			t.Fatalf("result count changed between runs")
		}
		for j := range again.Results {
			if again.Results[j].Record.MachineID != first.Results[j].Record.MachineID ||
				again.Results[j].Score != first.Results[j].Score {
				t.Fatalf("run %d result %d differs", i, j)
			}
		}
	}
}

func TestSearch_FindsRelatedIncident(t *testing.T) {
	source := &staticSource{records: []models.IncidentRecord{
		incident("M-1", "molding machine", "conveyor belt misaligned"),
		incident("M-2", "molding machine", "hydraulic leak at joint 3"),
		incident("M-3", "molding machine", "control panel fuse blown"),
	}}
	e := NewEngine(source, embedding.NewMockEmbedder(384), testConfig(), zap.NewNop())

	resp, err := e.Search(context.Background(), &models.SearchQuery{Query: "leak near joint", TopN: 1})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(resp.Results))
	}
	if got := resp.Results[0].Record.MachineID; got != "M-2" {
		t.Errorf("top result = %s, want the leak incident M-2", got)
	}
	if resp.Results[0].Score <= 0 {
		t.Errorf("related incident scored %v, want > 0", resp.Results[0].Score)
	}
}

func TestWarm_EmbedsDistinctDescriptions(t *testing.T) {
	emb := &scriptedEmbedder{vectors: map[string][]float32{
		"screw wear":   withCosine(0.1),
		"heater drift": withCosine(0.2),
		"grip slips":   withCosine(0.3),
	}}
	source := &staticSource{records: []models.IncidentRecord{
		incident("M-1", "other", "screw wear"),
		incident("M-2", "other", "heater drift"),
		incident("M-3", "other", "screw wear"),
		incident("M-4", "other", "   "),
		incident("M-5", "other", "grip slips"),
	}}
	e := NewEngine(source, emb, testConfig(), zap.NewNop())

	n, err := e.Warm(context.Background(), 2, 1)
	if err != nil {
		t.Fatalf("Warm: %v", err)
	}
	if n != 3 {
		t.Errorf("warmed %d texts, want 3 distinct non-blank", n)
	}
	total := 0
	for _, b := range emb.batches {
		if len(b) > 2 {
			t.Errorf("batch larger than batchSize: %v", b)
		}
		total += len(b)
	}
	if total != 3 {
		t.Errorf("embedded %d texts across batches, want 3", total)
	}
}

func TestWarm_PropagatesFailure(t *testing.T) {
	// "broken" is not scripted, so its batch fails.
	emb := &scriptedEmbedder{vectors: map[string][]float32{}}
	source := &staticSource{records: []models.IncidentRecord{
		incident("M-1", "other", "broken"),
	}}
	e := NewEngine(source, emb, testConfig(), zap.NewNop())

	if _, err := e.Warm(context.Background(), 8, 2); err == nil {
		t.Fatal("expected warm failure")
	}
}

func TestWarm_StopsAfterFirstFailure(t *testing.T) {
	// Nothing is scripted, so the very first batch fails. With one worker
	// the failure lands before any later batch runs, so no further
	// embedding may happen.
	emb := &scriptedEmbedder{vectors: map[string][]float32{}}
	source := &staticSource{records: []models.IncidentRecord{
		incident("M-1", "other", "broken one"),
		incident("M-2", "other", "broken two"),
		incident("M-3", "other", "broken three"),
	}}
	e := NewEngine(source, emb, testConfig(), zap.NewNop())

	if _, err := e.Warm(context.Background(), 1, 1); err == nil {
		t.Fatal("expected warm failure")
	}
	if n := emb.batchCount(); n != 1 {
		t.Errorf("embedder called %d times after failure, want 1", n)
	}
}

func TestWarm_EmptyCorpus(t *testing.T) {
	e := NewEngine(&staticSource{}, &scriptedEmbedder{}, testConfig(), zap.NewNop())
	n, err := e.Warm(context.Background(), 8, 2)
	if err != nil {
		t.Fatalf("Warm: %v", err)
	}
	if n != 0 {
		t.Errorf("warmed %d texts, want 0", n)
	}
}

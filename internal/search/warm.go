package search

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/moldworks/taisaku/pkg/utils"
)

const defaultWarmBatch = 32

// Warm pre-embeds every distinct candidate description so the first search
// does not pay for the whole corpus. It only helps when the embedder has a
// cache in front of it; without one the work is repeated at search time.
// Returns the number of texts embedded.
func (e *Engine) Warm(ctx context.Context, batchSize, concurrency int) (int, error) {
	records, err := e.source.Records(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read records: %w", err)
	}

	seen := make(map[string]struct{})
	var texts []string
	for i := range records {
		d := records[i].Description
		if utils.IsBlank(d) {
			continue
		}
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		texts = append(texts, d)
	}
	if len(texts) == 0 {
		return 0, nil
	}

	if batchSize <= 0 {
		batchSize = defaultWarmBatch
	}
	if concurrency <= 0 {
		concurrency = runtime.NumCPU() / 2
		if concurrency < 1 {
			concurrency = 1
		}
	}
	pool, err := ants.NewPool(concurrency)
	if err != nil {
		return 0, fmt.Errorf("failed to create warm pool: %w", err)
	}
	defer pool.Release()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	setErr := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
	}
	failed := func() bool {
		mu.Lock()
		defer mu.Unlock()
		return firstErr != nil
	}
	for start := 0; start < len(texts); start += batchSize {
		if failed() {
			break
		}
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			// The first failure cancels the rest; batches already
			// queued behind it become no-ops.
			if failed() {
				return
			}
			if _, err := e.embedder.EmbedBatch(ctx, batch); err != nil {
				setErr(err)
			}
		}); err != nil {
			wg.Done()
			setErr(err)
			break
		}
	}
	wg.Wait()
	if firstErr != nil {
		return 0, fmt.Errorf("corpus warm failed: %w", firstErr)
	}
	e.logger.Info("corpus warmed",
		zap.Int("records", len(records)),
		zap.Int("texts", len(texts)),
		zap.Int("concurrency", concurrency))
	return len(texts), nil
}

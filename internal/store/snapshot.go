package store

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/moldworks/taisaku/internal/models"
)

// Snapshot serves an in-memory view of the store so every search does not
// reread the CSV. Appends write through; a Watcher calls Invalidate when the
// file changes underneath us.
type Snapshot struct {
	store  *Store
	logger *zap.Logger

	mu      sync.RWMutex
	records []models.IncidentRecord
	report  LoadReport
	loaded  bool
}

// NewSnapshot returns an empty snapshot over st. Nothing is read until the
// first Records call.
func NewSnapshot(st *Store, logger *zap.Logger) *Snapshot {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Snapshot{store: st, logger: logger}
}

// Records returns the current table, loading from disk on first use or after
// Invalidate. The returned slice is shared; callers must not modify it.
func (s *Snapshot) Records(ctx context.Context) ([]models.IncidentRecord, error) {
	s.mu.RLock()
	if s.loaded {
		records := s.records
		s.mu.RUnlock()
		return records, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return s.records, nil
	}
	records, report, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	s.records = records
	s.report = *report
	s.loaded = true
	if warns := report.Warnings(); len(warns) > 0 {
		s.logger.Warn("store loaded with warnings",
			zap.String("path", s.store.Path()),
			zap.Int("records", len(records)),
			zap.Strings("warnings", warns))
	} else {
		s.logger.Debug("store loaded",
			zap.String("path", s.store.Path()),
			zap.Int("records", len(records)))
	}
	return records, nil
}

// Append validates and persists a record, then refreshes the cached view in
// one step. Returns the record count after the append.
func (s *Snapshot) Append(ctx context.Context, rec *models.IncidentRecord) (int, error) {
	records, err := s.store.Append(ctx, rec)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	s.records = records
	// The append rewrote the file in canonical form, so prior load
	// anomalies no longer describe what is on disk.
	s.report = LoadReport{Rows: len(records)}
	s.loaded = true
	s.mu.Unlock()
	return len(records), nil
}

// Invalidate drops the cached view; the next Records call rereads the file.
func (s *Snapshot) Invalidate() {
	s.mu.Lock()
	s.loaded = false
	s.mu.Unlock()
}

// Report returns the load report behind the current view.
func (s *Snapshot) Report() LoadReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.report
}

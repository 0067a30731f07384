// Package store persists incident records in a shared CSV trouble list.
// The file is UTF-8 with a byte order mark so spreadsheet tools open it
// correctly; writers hold a cross-process lock and replace the file
// atomically, so readers never see a partial write.
package store

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/moldworks/taisaku/internal/models"
	"github.com/moldworks/taisaku/pkg/utils"
)

var (
	// ErrAccessDenied marks store operations rejected by file permissions,
	// typically a read-only share or a file held open exclusively elsewhere.
	ErrAccessDenied = errors.New("store access denied")

	// ErrLockTimeout marks an append that gave up waiting for the store lock.
	ErrLockTimeout = errors.New("store lock timeout")
)

// Store reads and appends the CSV trouble list at a fixed path.
type Store struct {
	path        string
	lockTimeout time.Duration
	lockRetry   time.Duration
	logger      *zap.Logger
}

// New returns a store for the CSV file at path. lockTimeout bounds how long
// an append waits for the cross-process lock, polling every lockRetry.
func New(path string, lockTimeout, lockRetry time.Duration, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		path:        path,
		lockTimeout: lockTimeout,
		lockRetry:   lockRetry,
		logger:      logger,
	}
}

// Path returns the store file path.
func (s *Store) Path() string {
	return s.path
}

// LoadReport describes what Load had to tolerate in the file. A fresh file
// written by this package produces a zero report apart from Rows.
type LoadReport struct {
	Rows       int      `json:"rows"`
	Dropped    int      `json:"dropped"`
	Backfilled []string `json:"backfilled,omitempty"`
	Unknown    []string `json:"unknown,omitempty"`
	Positional bool     `json:"positional,omitempty"`
}

// Warnings renders the report anomalies as human-readable strings.
func (r *LoadReport) Warnings() []string {
	var w []string
	if r.Positional {
		w = append(w, "no header row; columns mapped by position")
	}
	if r.Dropped > 0 {
		w = append(w, fmt.Sprintf("%d unreadable rows dropped", r.Dropped))
	}
	if len(r.Backfilled) > 0 {
		w = append(w, "missing columns backfilled: "+strings.Join(r.Backfilled, ", "))
	}
	if len(r.Unknown) > 0 {
		w = append(w, "unknown columns ignored: "+strings.Join(r.Unknown, ", "))
	}
	return w
}

// Load reads every record in file order. A missing file is an empty store,
// not an error. Unreadable rows are dropped and counted in the report;
// columns are matched by header name, with missing ones backfilled blank and
// unrecognized ones ignored. A file with no header row at all is read
// positionally. Load never validates rows; whatever is in the table is
// returned as-is.
func (s *Store) Load(ctx context.Context) ([]models.IncidentRecord, *LoadReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	report := &LoadReport{}
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []models.IncidentRecord{}, report, nil
		}
		return nil, nil, accessErr("failed to open store", err)
	}
	defer f.Close()

	r := csv.NewReader(transform.NewReader(f, unicode.UTF8BOM.NewDecoder()))
	r.FieldsPerRecord = -1

	colMap := make([]int, models.FieldCount)
	headerSeen := false
	var records []models.IncidentRecord

	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				report.Dropped++
				s.logger.Warn("store row unreadable", zap.String("path", s.path), zap.Error(err))
				continue
			}
			return nil, nil, accessErr("failed to read store", err)
		}
		if !headerSeen {
			headerSeen = true
			if mapHeader(row, colMap, report) {
				continue
			}
			// No recognizable header: legacy file, columns in canonical order.
			report.Positional = true
			for i := range colMap {
				colMap[i] = i
			}
		}
		rec, convErr := models.RecordFromRow(remap(row, colMap))
		if convErr != nil {
			s.logger.Warn("store cell coerced", zap.String("path", s.path), zap.Error(convErr))
		}
		records = append(records, rec)
		report.Rows++
	}
	return records, report, nil
}

// Append validates rec, then rewrites the file with rec as the last row,
// holding the store lock for the whole read-modify-write. The replacement is
// a rename of a synced temp file, so concurrent readers see either the old
// or the new table. The rewrite emits the full canonical header, which also
// normalizes legacy files missing newer columns. Returns the complete table
// after the append.
func (s *Store) Append(ctx context.Context, rec *models.IncidentRecord) ([]models.IncidentRecord, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, accessErr("failed to create store directory", err)
		}
	}
	lock, err := s.acquireLock(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = lock.Unlock() }()

	records, report, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	if report.Dropped > 0 {
		s.logger.Warn("store rewrite drops unreadable rows",
			zap.Int("count", report.Dropped), zap.String("path", s.path))
	}
	records = append(records, *rec)
	if err := s.write(records); err != nil {
		return nil, err
	}
	s.logger.Info("record appended", zap.String("path", s.path), zap.Int("records", len(records)))
	return records, nil
}

func (s *Store) write(records []models.IncidentRecord) error {
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".taisaku-*.tmp")
	if err != nil {
		return accessErr("failed to create temp store", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}
	// The table is shared with spreadsheet users; don't keep CreateTemp's 0600.
	_ = tmp.Chmod(0644)

	enc := transform.NewWriter(tmp, unicode.UTF8BOM.NewEncoder())
	w := csv.NewWriter(enc)
	if err := w.Write(models.Headers()); err != nil {
		cleanup()
		return fmt.Errorf("failed to write store header: %w", err)
	}
	for i := range records {
		if err := w.Write(records[i].Row()); err != nil {
			cleanup()
			return fmt.Errorf("failed to write store row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		cleanup()
		return accessErr("failed to flush store", err)
	}
	if err := enc.Close(); err != nil {
		cleanup()
		return fmt.Errorf("failed to finish store encoding: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return accessErr("failed to sync store", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return accessErr("failed to close temp store", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return accessErr("failed to replace store", err)
	}
	return nil
}

// Stats reports the on-disk state of the store file. A missing file yields
// Exists false with no error.
type Stats struct {
	Path      string    `json:"path"`
	Exists    bool      `json:"exists"`
	SizeBytes int64     `json:"size_bytes"`
	ModTime   time.Time `json:"mod_time"`
}

// Stats returns file-level information about the store.
func (s *Store) Stats() (Stats, error) {
	st := Stats{Path: s.path}
	info, err := os.Stat(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return st, nil
		}
		return st, accessErr("failed to stat store", err)
	}
	st.Exists = true
	st.SizeBytes = info.Size()
	st.ModTime = info.ModTime()
	return st, nil
}

// accessErr maps permission failures onto ErrAccessDenied so callers can
// tell a locked-down file apart from other I/O trouble.
func accessErr(op string, err error) error {
	if os.IsPermission(err) {
		return fmt.Errorf("%w: %s: %v", ErrAccessDenied, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// canonicalIndex resolves a header cell to its canonical column position,
// tolerating surrounding whitespace and case differences.
func canonicalIndex(name string) int {
	name = strings.TrimSpace(name)
	if i := models.HeaderIndex(name); i >= 0 {
		return i
	}
	for i, h := range models.Headers() {
		if strings.EqualFold(h, name) {
			return i
		}
	}
	return -1
}

// mapHeader fills colMap with the source position of each canonical column.
// Returns false when no cell matches a canonical name, meaning the row is
// data, not a header.
func mapHeader(row []string, colMap []int, report *LoadReport) bool {
	for i := range colMap {
		colMap[i] = -1
	}
	matched := false
	var unknown []string
	for pos, cell := range row {
		idx := canonicalIndex(cell)
		if idx < 0 {
			if !utils.IsBlank(cell) {
				unknown = append(unknown, strings.TrimSpace(cell))
			}
			continue
		}
		if colMap[idx] == -1 {
			colMap[idx] = pos
		}
		matched = true
	}
	if !matched {
		return false
	}
	report.Unknown = unknown
	for i, src := range colMap {
		if src == -1 {
			report.Backfilled = append(report.Backfilled, models.Headers()[i])
		}
	}
	return true
}

func remap(row []string, colMap []int) []string {
	out := make([]string, models.FieldCount)
	for i, src := range colMap {
		if src >= 0 && src < len(row) {
			out[i] = row[src]
		}
	}
	return out
}

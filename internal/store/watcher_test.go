package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestWatcher_FiresOnReplace(t *testing.T) {
	s, path := newTestStore(t)
	ctx := context.Background()

	changed := make(chan struct{}, 1)
	w := NewWatcher(path, func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	}, WithDebounce(50*time.Millisecond))
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	if _, err := s.Append(ctx, validRecord("M-1")); err != nil {
		t.Fatalf("Append: %v", err)
	}

	select {
	case <-changed:
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not fire after store replace")
	}
}

func TestWatcher_IgnoresSiblingFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trouble_list.csv")

	changed := make(chan struct{}, 1)
	w := NewWatcher(path, func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	}, WithDebounce(20*time.Millisecond))
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-changed:
		t.Fatal("watcher fired for an unrelated file")
	case <-time.After(500 * time.Millisecond):
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trouble_list.csv")
	w := NewWatcher(path, func() {}, WithLogger(zap.NewNop()))
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	w.Stop()
	w.Stop()
}

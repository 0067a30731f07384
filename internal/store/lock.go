package store

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/gofrs/flock"
)

// Writers serialize on a sidecar lock file next to the CSV, not on the CSV
// itself: every write replaces the data file by rename, which would detach
// any lock held on it.
const lockSuffix = ".lock"

// acquireLock takes the store's cross-process write lock, polling until it
// is free or the configured timeout passes. The caller must Unlock.
func (s *Store) acquireLock(ctx context.Context) (*flock.Flock, error) {
	fl := flock.New(s.path + lockSuffix)
	lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()

	locked, err := fl.TryLockContext(lockCtx, s.lockRetry)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s not released within %s", ErrLockTimeout, fl.Path(), s.lockTimeout)
		}
		if os.IsPermission(err) {
			return nil, fmt.Errorf("%w: %v", ErrAccessDenied, err)
		}
		return nil, fmt.Errorf("failed to acquire store lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrLockTimeout, fl.Path())
	}
	return fl, nil
}

package repository

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/jupyterlite/piplite/internal/logger"
)

const (
	// LockTimeout defines the maximum time to wait for a lock
	LockTimeout = 30 * time.Second
	// LockRetryInterval defines the interval between lock retry attempts
	LockRetryInterval = 100 * time.Millisecond
)

// Unlock releases a lock taken with AcquireLock.
type Unlock func()

// AcquireLock takes an exclusive (or shared) lock on path, polling until
// LockTimeout expires or ctx is canceled. The lock file lives on the OS
// filesystem since flock needs a real file descriptor.
func AcquireLock(ctx context.Context, path string, shared bool) (Unlock, error) {
	if err := os.MkdirAll(filepath.Dir(path), StateDirPermissions); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}
	lock := flock.New(path)
	lockCtx, cancel := context.WithTimeout(ctx, LockTimeout)
	defer cancel()
	try := lock.TryLock
	if shared {
		try = lock.TryRLock
	}
	if locked, err := try(); err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	} else if locked {
		return unlocker(ctx, lock), nil
	}
	ticker := time.NewTicker(LockRetryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-lockCtx.Done():
			return nil, fmt.Errorf("could not acquire lock on %s: %w", path, lockCtx.Err())
		case <-ticker.C:
			locked, err := try()
			if err != nil {
				return nil, fmt.Errorf("failed to acquire lock: %w", err)
			}
			if locked {
				return unlocker(ctx, lock), nil
			}
		}
	}
}

func unlocker(ctx context.Context, lock *flock.Flock) Unlock {
	return func() {
		if err := lock.Unlock(); err != nil {
			logger.WarnKV(ctx, "failed to unlock file", "path", lock.Path(), "error", err)
		}
	}
}

package statestore

import (
	"errors"
	"fmt"
	"os"
	"time"
)

// Lock acquisition parameters. Acquisition polls with a fixed backoff up to
// the timeout; a lock file older than staleAfter is treated as abandoned by
// a crashed writer and reclaimed.
const (
	lockRetryInterval = 50 * time.Millisecond
	lockTimeout       = 5 * time.Second
	lockStaleAfter    = 30 * time.Second
)

// ErrLockTimeout is returned when the path's lock could not be acquired
// within the bounded wait.
var ErrLockTimeout = errors.New("failed to acquire lock")

// lockPath returns the lock marker path for a state file path.
func lockPath(path string) string {
	return path + ".lock"
}

// acquireLock atomically creates <path>.lock, retrying with backoff until
// the timeout. Creation uses O_CREATE|O_EXCL so two writers can never both
// proceed. Stale locks left by crashed writers are removed once their
// mtime exceeds the staleness threshold.
func acquireLock(path string) error {
	lp := lockPath(path)
	deadline := time.Now().Add(lockTimeout)

	for {
		f, err := os.OpenFile(lp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			// Record the owner for post-mortem debugging.
			fmt.Fprintf(f, "%d %s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
			f.Close()
			return nil
		}
		if !os.IsExist(err) {
			return fmt.Errorf("%w: %v", ErrLockTimeout, err)
		}

		if reclaimStaleLock(lp) {
			continue
		}

		if time.Now().After(deadline) {
			return ErrLockTimeout
		}
		time.Sleep(lockRetryInterval)
	}
}

// reclaimStaleLock removes the lock file if its mtime is past the
// staleness threshold. Returns true when a reclaim was attempted so the
// caller retries immediately.
func reclaimStaleLock(lp string) bool {
	info, err := os.Stat(lp)
	if err != nil {
		// Holder released between our create attempt and this stat.
		return true
	}
	if time.Since(info.ModTime()) < lockStaleAfter {
		return false
	}
	// Best effort; if another waiter won the removal race the next create
	// attempt sorts it out.
	_ = os.Remove(lp)
	return true
}

// releaseLock deletes the lock marker. Callers invoke this on every exit
// path, including failures.
func releaseLock(path string) error {
	err := os.Remove(lockPath(path))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

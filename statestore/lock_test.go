package statestore

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestAcquireAndReleaseLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	if err := acquireLock(path); err != nil {
		t.Fatalf("acquireLock failed: %v", err)
	}
	if _, err := os.Stat(lockPath(path)); err != nil {
		t.Fatalf("lock file not created: %v", err)
	}
	if err := releaseLock(path); err != nil {
		t.Fatalf("releaseLock failed: %v", err)
	}
	if _, err := os.Stat(lockPath(path)); !os.IsNotExist(err) {
		t.Error("lock file still present after release")
	}
}

func TestReleaseLockIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := releaseLock(path); err != nil {
		t.Errorf("releasing an unheld lock should succeed, got %v", err)
	}
}

func TestAcquireLockWaitsForHolder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := acquireLock(path); err != nil {
		t.Fatal(err)
	}

	released := make(chan struct{})
	go func() {
		time.Sleep(150 * time.Millisecond)
		releaseLock(path)
		close(released)
	}()

	start := time.Now()
	if err := acquireLock(path); err != nil {
		t.Fatalf("second acquire failed: %v", err)
	}
	<-released
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Errorf("second acquire returned after %v, expected it to wait for the holder", elapsed)
	}
	releaseLock(path)
}

func TestAcquireLockTimesOut(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for the full lock timeout")
	}
	path := filepath.Join(t.TempDir(), "state.json")
	if err := acquireLock(path); err != nil {
		t.Fatal(err)
	}
	defer releaseLock(path)

	// Keep the lock fresh so staleness reclaim cannot kick in.
	err := acquireLock(path)
	if !errors.Is(err, ErrLockTimeout) {
		t.Errorf("contended acquire = %v, want ErrLockTimeout", err)
	}
}

func TestStaleLockReclaimed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	lp := lockPath(path)
	if err := os.WriteFile(lp, []byte("dead writer\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-lockStaleAfter - time.Minute)
	if err := os.Chtimes(lp, old, old); err != nil {
		t.Fatal(err)
	}

	if err := acquireLock(path); err != nil {
		t.Fatalf("acquire over stale lock failed: %v", err)
	}
	releaseLock(path)
}

func TestFreshLockNotReclaimed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	lp := lockPath(path)
	if err := os.WriteFile(lp, []byte("live writer\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if reclaimStaleLock(lp) {
		t.Error("fresh lock was reclaimed")
	}
	if _, err := os.Stat(lp); err != nil {
		t.Errorf("fresh lock removed: %v", err)
	}
}

package statestore

import (
	"fmt"
	"os"
)

// Rotation parameters: when the current file exceeds the threshold it is
// renamed to <path>.1 after shifting existing snapshots up, keeping at most
// retainCount numbered copies (most recent first).
const (
	rotateThreshold = 10 * 1024 * 1024 // 10 MiB
	retainCount     = 5
)

// rotateIfNeeded shifts <path>.1..4 to <path>.2..5 and renames the current
// target to <path>.1 when it exceeds the size threshold. The oldest
// snapshot beyond the retention count is discarded. Callers hold the
// path's lock.
func rotateIfNeeded(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("stat before rotation: %w", err)
	}
	if info.Size() <= rotateThreshold {
		return nil
	}

	// Shift from the oldest down so nothing is overwritten.
	for i := retainCount - 1; i >= 1; i-- {
		src := fmt.Sprintf("%s.%d", path, i)
		if _, err := os.Stat(src); err != nil {
			continue
		}
		dst := fmt.Sprintf("%s.%d", path, i+1)
		if err := os.Rename(src, dst); err != nil {
			return fmt.Errorf("shift snapshot %s: %w", src, err)
		}
	}

	if err := os.Rename(path, path+".1"); err != nil {
		return fmt.Errorf("rotate current file: %w", err)
	}
	return nil
}

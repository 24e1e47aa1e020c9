// Package statestore persists one task's state as a UTF-8 JSON file with
// crash-safe semantics: writes go to a sibling temporary file and are
// renamed into place atomically, a path-scoped .lock file excludes
// concurrent writers, and files past 10 MiB are rotated into numbered
// .1-.5 snapshots (most recent first) before being replaced.
//
// Readers never observe a partial write: at any moment the target path
// holds either the fully-old or fully-new content. Two simultaneous
// writers to the same path serialize on the lock; whoever cannot acquire
// it within the bounded wait fails with ErrLockTimeout and the file is
// left exactly as one writer produced it.
//
// # Quick Start
//
//	store := statestore.New(nil)
//	if err := store.Write(path, state); err != nil { ... }
//
//	state, err := store.Read(path)
//	switch {
//	case errors.Is(err, statestore.ErrNotFound):      // initialize fresh
//	case errors.Is(err, statestore.ErrInvalidJSON):   // corrupt, abort
//	case errors.Is(err, statestore.ErrInvalidFormat): // schema drift, abort
//	}
package statestore

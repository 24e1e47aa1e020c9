package statestore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func testState() *StateFile {
	return &StateFile{
		Metadata: Metadata{
			AgentName:           "conductor",
			AgentVersion:        "1.0.0",
			InvocationTimestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		},
		Phase:           PhaseBuild,
		TaskDescription: "add retry to the fetcher",
		Status:          StatusInProgress,
		Results:         Results{Build: "in flight"},
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store := New(nil)

	want := testState()
	want.Errors = []StateError{{Timestamp: time.Now().UTC().Truncate(time.Second), Message: "transient fetch failure"}}
	want.Artifacts = []Artifact{{Path: "plan.md", Description: "generated plan"}}

	if err := store.Write(path, want); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	got, err := store.Read(path)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if got.Metadata.AgentName != want.Metadata.AgentName {
		t.Errorf("agent_name = %q, want %q", got.Metadata.AgentName, want.Metadata.AgentName)
	}
	if got.Phase != PhaseBuild || got.Status != StatusInProgress {
		t.Errorf("phase/status = %q/%q, want build/in_progress", got.Phase, got.Status)
	}
	if got.Results.Build != "in flight" {
		t.Errorf("results.build = %q, want %q", got.Results.Build, "in flight")
	}
	if len(got.Errors) != 1 || got.Errors[0].Message != "transient fetch failure" {
		t.Errorf("errors = %+v, want one transient entry", got.Errors)
	}
	if len(got.Artifacts) != 1 || got.Artifacts[0].Path != "plan.md" {
		t.Errorf("artifacts = %+v, want plan.md", got.Artifacts)
	}
}

func TestReadMissingFile(t *testing.T) {
	store := New(nil)
	_, err := store.Read(filepath.Join(t.TempDir(), "absent.json"))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Read of missing file = %v, want ErrNotFound", err)
	}
}

func TestReadInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := New(nil).Read(path)
	if !errors.Is(err, ErrInvalidJSON) {
		t.Errorf("Read of corrupt file = %v, want ErrInvalidJSON", err)
	}
}

func TestReadInvalidFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	// Valid JSON, unknown phase.
	if err := os.WriteFile(path, []byte(`{"phase":"deploy","status":"pending","metadata":{"agent_name":"x"}}`), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := New(nil).Read(path)
	if !errors.Is(err, ErrInvalidFormat) {
		t.Errorf("Read of bad schema = %v, want ErrInvalidFormat", err)
	}
}

func TestWriteLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	if err := New(nil).Write(path, testState()); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if e.Name() != "state.json" {
			t.Errorf("unexpected leftover file %q", e.Name())
		}
	}
}

func TestRotationOnOversizedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	big := strings.Repeat("x", rotateThreshold+1)
	if err := os.WriteFile(path, []byte(big), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := New(nil).Write(path, testState()); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	rotated, err := os.Stat(path + ".1")
	if err != nil {
		t.Fatalf("expected rotated snapshot at .1: %v", err)
	}
	if rotated.Size() != int64(len(big)) {
		t.Errorf("rotated size = %d, want %d", rotated.Size(), len(big))
	}

	current, err := os.Stat(path)
	if err != nil {
		t.Fatalf("current file missing after rotation: %v", err)
	}
	if current.Size() >= int64(len(big)) {
		t.Errorf("current file was not replaced, size = %d", current.Size())
	}
}

func TestRotationRetainsFiveSnapshots(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	// Seed five existing snapshots plus an oversized current file. The
	// oldest (.5) must be discarded by the shift.
	for i := 1; i <= retainCount; i++ {
		name := fmt.Sprintf("%s.%d", path, i)
		if err := os.WriteFile(name, []byte{byte(i)}, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	big := strings.Repeat("y", rotateThreshold+1)
	if err := os.WriteFile(path, []byte(big), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := rotateIfNeeded(path); err != nil {
		t.Fatalf("rotateIfNeeded failed: %v", err)
	}

	if _, err := os.Stat(path + ".6"); !os.IsNotExist(err) {
		t.Errorf("snapshot .6 should not exist")
	}
	got, err := os.ReadFile(path + ".1")
	if err != nil {
		t.Fatalf("missing .1 after rotation: %v", err)
	}
	if len(got) != len(big) {
		t.Errorf(".1 holds %d bytes, want the rotated current file (%d bytes)", len(got), len(big))
	}
	// The previous .4 content moved to .5.
	five, err := os.ReadFile(path + ".5")
	if err != nil {
		t.Fatalf("missing .5 after rotation: %v", err)
	}
	if len(five) != 1 || five[0] != 4 {
		t.Errorf(".5 = %v, want previous .4 content", five)
	}
}

func TestConcurrentWritersProduceValidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store := New(nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			state := testState()
			state.Results.Build = strings.Repeat("z", n+1)
			if err := store.Write(path, state); err != nil {
				t.Errorf("writer %d failed: %v", n, err)
			}
		}(i)
	}
	wg.Wait()

	got, err := store.Read(path)
	if err != nil {
		t.Fatalf("Read after concurrent writes failed: %v", err)
	}
	if got.Results.Build == "" {
		t.Error("final file holds no writer's content")
	}
	if _, err := os.Stat(lockPath(path)); !os.IsNotExist(err) {
		t.Errorf("lock file left behind after all writers finished")
	}
}

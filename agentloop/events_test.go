package agentloop

import "testing"

func TestEmitterDeliversEvents(t *testing.T) {
	e := NewEventEmitter("run-1", 4)
	e.Emit(EventRunStart, map[string]any{"task": "t"})
	e.Close()

	var events []Event
	for event := range e.Events() {
		events = append(events, event)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Kind != EventRunStart || events[0].RunID != "run-1" {
		t.Errorf("event = %+v", events[0])
	}
}

func TestEmitterDropsWhenFull(t *testing.T) {
	e := NewEventEmitter("run-1", 1)
	e.Emit(EventWarning, nil)
	// Must not block with nobody reading.
	e.Emit(EventWarning, nil)
	e.Close()

	count := 0
	for range e.Events() {
		count++
	}
	if count != 1 {
		t.Errorf("buffered %d events, want 1", count)
	}
}

func TestEmitAfterCloseIsDropped(t *testing.T) {
	e := NewEventEmitter("run-1", 4)
	e.Close()
	e.Emit(EventWarning, nil) // must not panic on the closed channel
}

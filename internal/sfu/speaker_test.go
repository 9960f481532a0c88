package sfu

import (
	"testing"
	"time"
)

func testTracker(t *testing.T) *SpeakerTracker {
	t.Helper()
	tr := NewSpeakerTracker(nil)
	t.Cleanup(tr.Close)
	return tr
}

func TestMarkSpeaking(t *testing.T) {
	tr := testTracker(t)

	tr.MarkSpeaking("R", "p1")
	speakers := tr.ActiveSpeakers("R")
	if len(speakers) != 1 || speakers[0] != "p1" {
		t.Fatalf("got %v, want [p1]", speakers)
	}
}

func TestMarkStopSpeaking(t *testing.T) {
	tr := testTracker(t)

	tr.MarkSpeaking("R", "p1")
	tr.MarkStopSpeaking("R", "p1")
	if got := tr.ActiveSpeakers("R"); len(got) != 0 {
		t.Fatalf("got %v, want empty", got)
	}
}

func TestActiveSpeakersExcludesStale(t *testing.T) {
	tr := testTracker(t)

	tr.MarkSpeaking("R", "fresh")
	tr.mu.Lock()
	tr.rooms["R"]["stale"] = time.Now().Add(-3 * time.Second)
	tr.mu.Unlock()

	speakers := tr.ActiveSpeakers("R")
	if len(speakers) != 1 || speakers[0] != "fresh" {
		t.Fatalf("got %v, want [fresh]", speakers)
	}
}

func TestSweepEvictsInactive(t *testing.T) {
	tr := testTracker(t)

	tr.MarkSpeaking("R", "gone")
	tr.mu.Lock()
	tr.rooms["R"]["gone"] = time.Now().Add(-10 * time.Second)
	tr.mu.Unlock()

	tr.sweep()

	tr.mu.Lock()
	_, roomExists := tr.rooms["R"]
	tr.mu.Unlock()
	if roomExists {
		t.Error("empty room retained after sweep")
	}
}

func TestSweepKeepsRecent(t *testing.T) {
	tr := testTracker(t)

	tr.MarkSpeaking("R", "p1")
	tr.sweep()

	if got := tr.ActiveSpeakers("R"); len(got) != 1 {
		t.Fatalf("got %v, want [p1]", got)
	}
}

func TestClearRoom(t *testing.T) {
	tr := testTracker(t)

	tr.MarkSpeaking("R", "p1")
	tr.MarkSpeaking("other", "p2")
	tr.ClearRoom("R")

	if got := tr.ActiveSpeakers("R"); len(got) != 0 {
		t.Fatalf("got %v, want empty", got)
	}
	if got := tr.ActiveSpeakers("other"); len(got) != 1 {
		t.Fatalf("unrelated room lost entries: %v", got)
	}
}

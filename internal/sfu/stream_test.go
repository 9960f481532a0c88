package sfu

import "testing"

func TestStreamRegistryRegisterAndGet(t *testing.T) {
	sr := newStreamRegistry()

	s, err := sr.Register("room1", "peer1", "prod1", "audio", StreamTypeAudio, nil, nil)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if s.StreamID == "" {
		t.Fatal("expected non-empty streamId")
	}

	got, ok := sr.Get(s.StreamID)
	if !ok || got.StreamID != s.StreamID {
		t.Fatalf("Get(%q) = %v, %v", s.StreamID, got, ok)
	}

	byProd, ok := sr.GetByProducer("prod1")
	if !ok || byProd.StreamID != s.StreamID {
		t.Fatalf("GetByProducer: got %v, %v", byProd, ok)
	}
}

func TestStreamIDFormat(t *testing.T) {
	sr := newStreamRegistry()
	s, err := sr.Register("room1", "peer42", "prod1", "video", StreamTypeVideo, nil, nil)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	peerID, kind, ok := ParseFallbackStreamID(s.StreamID)
	if !ok {
		t.Fatalf("ParseFallbackStreamID(%q) failed", s.StreamID)
	}
	if peerID != "peer42" {
		t.Errorf("got peerID %q, want %q", peerID, "peer42")
	}
	if kind != string(StreamTypeVideo) {
		t.Errorf("got kind %q, want %q", kind, StreamTypeVideo)
	}
}

func TestPriorityStreamsCapAndOrder(t *testing.T) {
	sr := newStreamRegistry()
	const total = 15
	for i := 0; i < total; i++ {
		if _, err := sr.Register("room1", "peer", "prod", "audio", StreamTypeAudio, nil, nil); err != nil {
			t.Fatalf("Register #%d: %v", i, err)
		}
	}

	priority := sr.PriorityStreams("room1")
	if len(priority) != priorityStreamCap {
		t.Fatalf("got %d priority streams, want %d", len(priority), priorityStreamCap)
	}
	for i := 1; i < len(priority); i++ {
		if priority[i-1].StreamID >= priority[i].StreamID {
			t.Fatalf("priority streams not sorted ascending at %d: %q >= %q", i, priority[i-1].StreamID, priority[i].StreamID)
		}
	}
}

func TestFindLivePublisherStreamFallback(t *testing.T) {
	sr := newStreamRegistry()
	s, err := sr.Register("room1", "peer1", "prod1", "audio", StreamTypeAudio, nil, nil)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	found, ok := sr.FindLivePublisherStream("room1", "peer1", "audio")
	if !ok || found.StreamID != s.StreamID {
		t.Fatalf("FindLivePublisherStream: got %v, %v", found, ok)
	}

	if _, ok := sr.FindLivePublisherStream("room1", "peer1", "video"); ok {
		t.Fatal("expected no match for mismatched kind")
	}
}

func TestStreamRegistryRemoveRoom(t *testing.T) {
	sr := newStreamRegistry()
	if _, err := sr.Register("room1", "peer1", "prod1", "audio", StreamTypeAudio, nil, nil); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := sr.Register("room1", "peer2", "prod2", "video", StreamTypeVideo, nil, nil); err != nil {
		t.Fatalf("Register: %v", err)
	}

	removed := sr.RemoveRoom("room1")
	if len(removed) != 2 {
		t.Fatalf("got %d removed streamIds, want 2", len(removed))
	}
	if len(sr.ByRoom("room1")) != 0 {
		t.Fatal("expected room1 empty after RemoveRoom")
	}
}

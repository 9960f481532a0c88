package sfu

import (
	"fmt"
	"regexp"
	"testing"
)

type engineFixture struct {
	engine     *Engine
	rooms      *RoomRegistry
	streams    *StreamRegistry
	transports *TransportRegistry
	speakers   *SpeakerTracker
}

func testEngine(t *testing.T) *engineFixture {
	t.Helper()
	pool, err := NewWorkerPool(WorkerConfig{})
	if err != nil {
		t.Fatalf("NewWorkerPool: %v", err)
	}
	rooms := newRoomRegistry(pool)
	streams := newStreamRegistry()
	transports := newTransportRegistry()
	speakers := NewSpeakerTracker(nil)
	t.Cleanup(speakers.Close)
	return &engineFixture{
		engine:     newEngine(rooms, streams, transports, speakers),
		rooms:      rooms,
		streams:    streams,
		transports: transports,
		speakers:   speakers,
	}
}

// addTransport registers a bare transport so produce/consume lookups
// resolve without a real PeerConnection handshake.
func (f *engineFixture) addTransport(id string) {
	f.transports.mu.Lock()
	f.transports.transports[id] = &WebRtcTransport{id: id}
	f.transports.mu.Unlock()
}

func (f *engineFixture) room(t *testing.T, roomID string) *MediaRoom {
	t.Helper()
	room, err := f.rooms.GetOrCreate(roomID)
	if err != nil {
		t.Fatalf("GetOrCreate(%q): %v", roomID, err)
	}
	return room
}

func TestProduceRegistersStream(t *testing.T) {
	f := testEngine(t)
	f.room(t, "R")
	f.addTransport("t1")

	res, err := f.engine.Produce("R", "t1", "audio", nil, nil, nil, "peer1")
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	if res.ProducerID == "" || res.StreamID == "" {
		t.Fatalf("got empty ids: %+v", res)
	}
	if !res.IsPriority {
		t.Error("first stream in room should be priority")
	}
	if res.TotalStreams != 1 {
		t.Errorf("got %d total streams, want 1", res.TotalStreams)
	}

	s, ok := f.streams.Get(res.StreamID)
	if !ok {
		t.Fatal("stream not registered")
	}
	if byProd, ok := f.streams.GetByProducer(res.ProducerID); !ok || byProd != s {
		t.Error("producerToStream back-reference missing")
	}
}

func TestProduceScreenShareStreamType(t *testing.T) {
	f := testEngine(t)
	f.room(t, "R")
	f.addTransport("t1")

	res, err := f.engine.Produce("R", "t1", "video", nil, Metadata{"isScreenShare": true}, nil, "P1")
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	pattern := regexp.MustCompile(`^P1_screen_\d+_[a-z0-9]{5}$`)
	if !pattern.MatchString(res.StreamID) {
		t.Errorf("streamId %q does not match screen-share format", res.StreamID)
	}
}

func TestProduceScreenAudioFromAppData(t *testing.T) {
	f := testEngine(t)
	f.room(t, "R")
	f.addTransport("t1")

	res, err := f.engine.Produce("R", "t1", "audio", nil, nil, Metadata{"type": "screen_audio"}, "P1")
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	s, _ := f.streams.Get(res.StreamID)
	if s.Type != StreamTypeScreenAudio {
		t.Errorf("got type %q, want %q", s.Type, StreamTypeScreenAudio)
	}
}

func TestProduceMissingRoom(t *testing.T) {
	f := testEngine(t)
	f.addTransport("t1")
	if _, err := f.engine.Produce("nope", "t1", "audio", nil, nil, nil, "peer1"); err != ErrRoomNotFound {
		t.Fatalf("got %v, want ErrRoomNotFound", err)
	}
}

// publishEleven produces one audio stream for each of pub01..pub11 and
// returns streamId by publisher. Zero-padded names keep lexicographic
// order aligned with publish order, so the first ten are the priority set.
func publishEleven(t *testing.T, f *engineFixture) map[string]string {
	t.Helper()
	ids := make(map[string]string)
	for i := 1; i <= 11; i++ {
		pub := fmt.Sprintf("pub%02d", i)
		res, err := f.engine.Produce("R", "t1", "audio", nil, nil, nil, pub)
		if err != nil {
			t.Fatalf("Produce(%s): %v", pub, err)
		}
		ids[pub] = res.StreamID
	}
	return ids
}

func TestConsumePriorityCap(t *testing.T) {
	f := testEngine(t)
	f.room(t, "R")
	f.addTransport("t1")
	ids := publishEleven(t, f)

	res, err := f.engine.Consume("R", ids["pub11"], "t1", nil, "pub01", false)
	if err != nil {
		t.Fatalf("Consume out-of-priority: %v", err)
	}
	if res.ConsumerID != "" {
		t.Errorf("expected null consumer for 11th stream, got %q", res.ConsumerID)
	}
	if res.Message != "Stream not in priority list" {
		t.Errorf("got message %q", res.Message)
	}

	res, err = f.engine.Consume("R", ids["pub01"], "t1", nil, "pub02", false)
	if err != nil {
		t.Fatalf("Consume priority stream: %v", err)
	}
	if res.ConsumerID == "" {
		t.Fatal("expected a real consumer for a priority stream")
	}
}

func TestConsumerCreatedPaused(t *testing.T) {
	f := testEngine(t)
	room := f.room(t, "R")
	f.addTransport("t1")

	prod, _ := f.engine.Produce("R", "t1", "audio", nil, nil, nil, "pub01")
	res, err := f.engine.Consume("R", prod.StreamID, "t1", nil, "pub02", false)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}

	consumer, _, ok := room.findConsumer(res.ConsumerID)
	if !ok {
		t.Fatal("consumer not registered in room")
	}
	if !consumer.Paused() {
		t.Error("consumer should start paused")
	}

	if err := f.engine.Resume("R", res.ConsumerID); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if consumer.Paused() {
		t.Error("consumer still paused after Resume")
	}
}

func TestResumeUnknownConsumer(t *testing.T) {
	f := testEngine(t)
	f.room(t, "R")
	if err := f.engine.Resume("R", "missing"); err != ErrConsumerNotFound {
		t.Fatalf("got %v, want ErrConsumerNotFound", err)
	}
}

func TestConsumeFallbackStreamLookup(t *testing.T) {
	f := testEngine(t)
	f.room(t, "R")
	f.addTransport("t1")

	prod, err := f.engine.Produce("R", "t1", "audio", nil, nil, nil, "P1")
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}

	res, err := f.engine.Consume("R", "P1_audio_999_zzzzz", "t1", nil, "P2", false)
	if err != nil {
		t.Fatalf("Consume fallback: %v", err)
	}
	if res.StreamID != prod.StreamID {
		t.Errorf("fallback resolved %q, want %q", res.StreamID, prod.StreamID)
	}
	if res.ConsumerID == "" {
		t.Error("expected a real consumer via fallback")
	}
}

func TestConsumeFallbackNoMatch(t *testing.T) {
	f := testEngine(t)
	f.room(t, "R")
	f.addTransport("t1")

	if _, err := f.engine.Consume("R", "ghost_video_1_aaaaa", "t1", nil, "P2", false); err != ErrStreamNotFound {
		t.Fatalf("got %v, want ErrStreamNotFound", err)
	}
}

func TestPinUserOverridesPriority(t *testing.T) {
	f := testEngine(t)
	room := f.room(t, "R")
	f.addTransport("t1")
	ids := publishEleven(t, f)

	pin, err := f.engine.PinUser("R", "pub01", "pub11", "t1", nil)
	if err != nil {
		t.Fatalf("PinUser: %v", err)
	}
	if pin.AlreadyPriority {
		t.Fatal("pub11 should not already be in priority")
	}
	if len(pin.ConsumersCreated) != 1 {
		t.Fatalf("got %d consumers created, want 1", len(pin.ConsumersCreated))
	}
	if _, _, ok := room.findConsumer(pin.ConsumersCreated[0]); !ok {
		t.Fatal("pinned consumer not registered in room")
	}

	unpin, err := f.engine.UnpinUser("R", "pub01", "pub11")
	if err != nil {
		t.Fatalf("UnpinUser: %v", err)
	}
	if unpin.StillInPriority {
		t.Fatal("pub11 should not be in priority")
	}
	if len(unpin.ConsumersRemoved) != 1 {
		t.Fatalf("got %d consumers removed, want 1", len(unpin.ConsumersRemoved))
	}
	if len(room.consumersForStream(ids["pub11"])) != 0 {
		t.Error("consumers remain after unpin")
	}
}

func TestPinUserAlreadyPriority(t *testing.T) {
	f := testEngine(t)
	f.room(t, "R")
	f.addTransport("t1")
	publishEleven(t, f)

	pin, err := f.engine.PinUser("R", "pub02", "pub01", "t1", nil)
	if err != nil {
		t.Fatalf("PinUser: %v", err)
	}
	if !pin.AlreadyPriority {
		t.Fatal("expected alreadyPriority=true")
	}
	if len(pin.ConsumersCreated) != 0 {
		t.Errorf("got %d consumers created, want 0", len(pin.ConsumersCreated))
	}
}

func TestUnpinUserStillInPriority(t *testing.T) {
	f := testEngine(t)
	f.room(t, "R")
	f.addTransport("t1")
	publishEleven(t, f)

	unpin, err := f.engine.UnpinUser("R", "pub02", "pub01")
	if err != nil {
		t.Fatalf("UnpinUser: %v", err)
	}
	if !unpin.StillInPriority {
		t.Fatal("expected stillInPriority=true")
	}
	if len(unpin.ConsumersRemoved) != 0 {
		t.Errorf("got %d consumers removed, want 0", len(unpin.ConsumersRemoved))
	}
}

func TestUnpublishCascade(t *testing.T) {
	f := testEngine(t)
	room := f.room(t, "R")
	f.addTransport("t1")

	prod, _ := f.engine.Produce("R", "t1", "audio", nil, nil, nil, "pub01")
	res, _ := f.engine.Consume("R", prod.StreamID, "t1", nil, "pub02", false)

	if err := f.engine.Unpublish("R", prod.StreamID); err != nil {
		t.Fatalf("Unpublish: %v", err)
	}

	if _, ok := f.streams.Get(prod.StreamID); ok {
		t.Error("stream still registered after unpublish")
	}
	if _, ok := f.streams.GetByProducer(prod.ProducerID); ok {
		t.Error("producer back-reference still registered")
	}
	if _, ok := room.getProducer(prod.StreamID); ok {
		t.Error("producer still in room")
	}
	if _, _, ok := room.findConsumer(res.ConsumerID); ok {
		t.Error("consumer still in room")
	}
}

func TestRemoveParticipantMedia(t *testing.T) {
	f := testEngine(t)
	f.room(t, "R")
	f.addTransport("t1")

	a1, _ := f.engine.Produce("R", "t1", "audio", nil, nil, nil, "pub01")
	v1, _ := f.engine.Produce("R", "t1", "video", nil, nil, nil, "pub01")
	other, _ := f.engine.Produce("R", "t1", "audio", nil, nil, nil, "pub02")
	f.speakers.MarkSpeaking("R", "pub01")

	removed, err := f.engine.RemoveParticipantMedia("R", "pub01")
	if err != nil {
		t.Fatalf("RemoveParticipantMedia: %v", err)
	}
	if len(removed) != 2 {
		t.Fatalf("got %d removed streams, want 2", len(removed))
	}
	for _, id := range []string{a1.StreamID, v1.StreamID} {
		if _, ok := f.streams.Get(id); ok {
			t.Errorf("stream %q survived removal", id)
		}
	}
	if _, ok := f.streams.Get(other.StreamID); !ok {
		t.Error("unrelated publisher's stream was removed")
	}
	if got := f.speakers.ActiveSpeakers("R"); len(got) != 0 {
		t.Errorf("participant still in speaker table: %v", got)
	}
}

func TestConsumeCannotConsume(t *testing.T) {
	f := testEngine(t)
	f.room(t, "R")
	f.addTransport("t1")

	prod, err := f.engine.Produce("R", "t1", "audio", nil, nil, nil, "pub01")
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}

	videoOnly := RawJSON(`{"codecs":[{"mimeType":"video/VP8","clockRate":90000}]}`)
	if _, err := f.engine.Consume("R", prod.StreamID, "t1", videoOnly, "pub02", false); err != ErrCannotConsume {
		t.Fatalf("got %v, want ErrCannotConsume", err)
	}

	opus := RawJSON(`{"codecs":[{"mimeType":"audio/opus","clockRate":48000,"channels":2}]}`)
	res, err := f.engine.Consume("R", prod.StreamID, "t1", opus, "pub02", false)
	if err != nil {
		t.Fatalf("Consume with matching capabilities: %v", err)
	}
	if res.ConsumerID == "" {
		t.Fatal("expected a real consumer for matching capabilities")
	}
}

func TestUpdateStreamMetadataMerge(t *testing.T) {
	f := testEngine(t)
	f.room(t, "R")
	f.addTransport("t1")

	prod, _ := f.engine.Produce("R", "t1", "video", nil, Metadata{"label": "cam", "muted": false}, nil, "pub01")

	if err := f.engine.UpdateStreamMetadata(prod.StreamID, Metadata{"muted": true}); err != nil {
		t.Fatalf("UpdateStreamMetadata: %v", err)
	}

	s, _ := f.streams.Get(prod.StreamID)
	if s.Metadata["label"] != "cam" {
		t.Error("existing key lost in merge")
	}
	if s.Metadata["muted"] != true {
		t.Error("patched key not applied")
	}
}

func TestUpdateStreamMetadataUnknownStream(t *testing.T) {
	f := testEngine(t)
	if err := f.engine.UpdateStreamMetadata("missing", Metadata{"a": 1}); err != ErrStreamNotFound {
		t.Fatalf("got %v, want ErrStreamNotFound", err)
	}
}

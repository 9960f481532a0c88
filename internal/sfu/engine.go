package sfu

import (
	"github.com/rs/xid"
)

// ProduceResult is the engine-level result of Produce; internal/sfuapi
// projects it onto the CreateProducer wire shape.
type ProduceResult struct {
	ProducerID   string `json:"producerId"`
	StreamID     string `json:"streamId"`
	IsPriority   bool   `json:"isPriority"`
	TotalStreams int    `json:"totalStreams"`
}

// ConsumeResult is the engine-level result of Consume. ConsumerID is empty
// when admission was denied by priority — that is a success
// outcome, not an error.
type ConsumeResult struct {
	ConsumerID string `json:"consumerId"`
	Kind       string `json:"kind"`
	StreamID   string `json:"streamId"`
	ProducerID string `json:"producerId"`
	Message    string `json:"message,omitempty"`
}

// PinResult is the engine-level result of PinUser.
type PinResult struct {
	Success          bool     `json:"success"`
	Message          string   `json:"message"`
	AlreadyPriority  bool     `json:"alreadyPriority,omitempty"`
	ConsumersCreated []string `json:"consumersCreated"`
}

// UnpinResult is the engine-level result of UnpinUser.
type UnpinResult struct {
	Success          bool     `json:"success"`
	Message          string   `json:"message"`
	StillInPriority  bool     `json:"stillInPriority,omitempty"`
	ConsumersRemoved []string `json:"consumersRemoved"`
}

// Engine implements the Producer/Consumer Engine: produce, consume,
// resume, pin/unpin, unpublish, and participant-media removal. It operates
// purely on the Stream/Transport registries and the owning MediaRoom's
// producer/consumer maps — no network I/O of its own.
type Engine struct {
	rooms     *RoomRegistry
	streams   *StreamRegistry
	transport *TransportRegistry
	speakers  *SpeakerTracker
}

func newEngine(rooms *RoomRegistry, streams *StreamRegistry, transports *TransportRegistry, speakers *SpeakerTracker) *Engine {
	return &Engine{rooms: rooms, streams: streams, transport: transports, speakers: speakers}
}

// detectStreamType decides the stream type: metadata wins on conflict,
// producer app-data is consulted only if metadata says nothing.
func detectStreamType(kind string, metadata, appData Metadata) StreamType {
	screenShare := metadata.IsScreenShare() || appData.IsScreenShare()
	switch {
	case kind == "video" && screenShare:
		return StreamTypeScreen
	case kind == "audio" && screenShare:
		return StreamTypeScreenAudio
	case kind == "audio":
		return StreamTypeAudio
	default:
		return StreamTypeVideo
	}
}

// Produce creates a producer on transportID and registers the resulting
// Stream.
func (e *Engine) Produce(roomID, transportID, kind string, rtpParameters RawJSON, metadata, appData Metadata, publisherID string) (*ProduceResult, error) {
	if roomID == "" || transportID == "" || kind == "" || publisherID == "" {
		return nil, ErrInvalidArgument
	}
	room, ok := e.rooms.Get(roomID)
	if !ok {
		return nil, ErrRoomNotFound
	}
	if _, ok := e.transport.Get(transportID); !ok {
		return nil, ErrTransportNotFound
	}

	streamType := detectStreamType(kind, metadata, appData)
	producerID := xid.New().String()

	stream, err := e.streams.Register(roomID, publisherID, producerID, kind, streamType, rtpParameters, metadata)
	if err != nil {
		return nil, err
	}

	producer := &Producer{
		ID:          producerID,
		StreamID:    stream.StreamID,
		Kind:        kind,
		TransportID: transportID,
	}
	room.addProducer(stream.StreamID, producer)

	if t, ok := e.transport.Get(transportID); ok {
		streamID := stream.StreamID
		t.OnClose(func() {
			e.teardownStream(room, streamID)
		})
	}

	return &ProduceResult{
		ProducerID:   producerID,
		StreamID:     stream.StreamID,
		IsPriority:   e.streams.IsPriority(roomID, stream.StreamID),
		TotalStreams: len(e.streams.ByRoom(roomID)),
	}, nil
}

// Consume creates a paused consumer for streamID on transportID, subject
// to the priority/pin admission policy.
func (e *Engine) Consume(roomID, streamID, transportID string, rtpCapabilities RawJSON, consumerPeerID string, forcePin bool) (*ConsumeResult, error) {
	return e.consume(roomID, streamID, transportID, rtpCapabilities, consumerPeerID, forcePin, false)
}

func (e *Engine) consume(roomID, streamID, transportID string, rtpCapabilities RawJSON, consumerPeerID string, forcePin, retried bool) (*ConsumeResult, error) {
	if roomID == "" || transportID == "" {
		return nil, ErrInvalidArgument
	}
	room, ok := e.rooms.Get(roomID)
	if !ok {
		return nil, ErrRoomNotFound
	}
	if _, ok := e.transport.Get(transportID); !ok {
		return nil, ErrTransportNotFound
	}

	stream, ok := e.streams.Get(streamID)
	if !ok {
		// Fallback lookup by <peerId>_<kind>_... prefix, retried once.
		if retried {
			return nil, ErrStreamNotFound
		}
		peerID, kind, parsed := ParseFallbackStreamID(streamID)
		if !parsed {
			return nil, ErrStreamNotFound
		}
		substitute, found := e.streams.FindLivePublisherStream(roomID, peerID, kind)
		if !found {
			return nil, ErrStreamNotFound
		}
		return e.consume(roomID, substitute.StreamID, transportID, rtpCapabilities, consumerPeerID, forcePin, true)
	}

	if !forcePin {
		if _, isPrioritised := e.streams.PrioritisedUsers(roomID)[stream.PublisherID]; !isPrioritised {
			return &ConsumeResult{
				ConsumerID: "",
				StreamID:   stream.StreamID,
				ProducerID: stream.ProducerID,
				Message:    "Stream not in priority list",
			}, nil
		}
	}

	if !room.router.CanConsume(stream.Kind, rtpCapabilities) {
		return nil, ErrCannotConsume
	}

	consumerID := xid.New().String()
	consumer := &Consumer{
		ID:             consumerID,
		ProducerID:     stream.ProducerID,
		StreamID:       stream.StreamID,
		TransportID:    transportID,
		ConsumerPeerID: consumerPeerID,
		Kind:           stream.Kind,
		paused:         true,
	}
	room.addConsumer(stream.StreamID, consumer)

	return &ConsumeResult{
		ConsumerID: consumerID,
		Kind:       stream.Kind,
		StreamID:   stream.StreamID,
		ProducerID: stream.ProducerID,
	}, nil
}

// Resume resumes a previously-created paused consumer, looking it up by id
// across every stream in the room.
func (e *Engine) Resume(roomID, consumerID string) error {
	room, ok := e.rooms.Get(roomID)
	if !ok {
		return ErrRoomNotFound
	}
	consumer, _, ok := room.findConsumer(consumerID)
	if !ok {
		return ErrConsumerNotFound
	}
	consumer.Resume()
	return nil
}

// PinUser force-admits a consumer for each of pinned's streams, unless
// pinned is already in priority.
func (e *Engine) PinUser(roomID, pinner, pinned, transportID string, rtpCapabilities RawJSON) (*PinResult, error) {
	if _, ok := e.rooms.Get(roomID); !ok {
		return nil, ErrRoomNotFound
	}

	pinnedStreams := e.streamsByPublisher(roomID, pinned)
	for _, s := range pinnedStreams {
		if e.streams.IsPriority(roomID, s.StreamID) {
			return &PinResult{Success: true, Message: "already in priority", AlreadyPriority: true}, nil
		}
	}

	created := make([]string, 0, len(pinnedStreams))
	for _, s := range pinnedStreams {
		res, err := e.Consume(roomID, s.StreamID, transportID, rtpCapabilities, pinner, true)
		if err != nil || res.ConsumerID == "" {
			continue // best-effort: accumulate successes only
		}
		created = append(created, res.ConsumerID)
	}

	return &PinResult{Success: true, Message: "pinned", ConsumersCreated: created}, nil
}

// UnpinUser closes every consumer currently attached to unpinned's streams,
// unless unpinned is still in priority. Note this closes ALL consumers on
// the unpinned user's streams, not only the unpinner's own.
func (e *Engine) UnpinUser(roomID, unpinner, unpinned string) (*UnpinResult, error) {
	room, ok := e.rooms.Get(roomID)
	if !ok {
		return nil, ErrRoomNotFound
	}

	unpinnedStreams := e.streamsByPublisher(roomID, unpinned)
	for _, s := range unpinnedStreams {
		if e.streams.IsPriority(roomID, s.StreamID) {
			return &UnpinResult{Success: true, Message: "still in priority", StillInPriority: true}, nil
		}
	}

	removed := make([]string, 0)
	for _, s := range unpinnedStreams {
		for _, c := range room.removeConsumersForStream(s.StreamID) {
			if c.markClosed() {
				removed = append(removed, c.ID)
			}
		}
	}

	return &UnpinResult{Success: true, Message: "unpinned", ConsumersRemoved: removed}, nil
}

func (e *Engine) streamsByPublisher(roomID, publisherID string) []*Stream {
	var out []*Stream
	for _, s := range e.streams.ByRoom(roomID) {
		if s.PublisherID == publisherID {
			out = append(out, s)
		}
	}
	return out
}

// Unpublish closes streamID's producer, then every consumer attached to
// it, then removes its registrations.
func (e *Engine) Unpublish(roomID, streamID string) error {
	room, ok := e.rooms.Get(roomID)
	if !ok {
		return ErrRoomNotFound
	}
	if _, ok := e.streams.Get(streamID); !ok {
		return ErrStreamNotFound
	}
	e.teardownStream(room, streamID)
	return nil
}

// teardownStream closes streamID's producer/consumers and removes its
// registry entries. It is the cascade both Unpublish and transport-close
// hooks drive.
func (e *Engine) teardownStream(room *MediaRoom, streamID string) {
	for _, c := range room.removeConsumersForStream(streamID) {
		c.markClosed()
	}
	room.removeProducer(streamID)
	e.streams.Remove(streamID)
}

// RemoveParticipantMedia tears down every stream published by
// participantID in roomID and drops the participant from the
// active-speaker table, returning the removed streamIds.
func (e *Engine) RemoveParticipantMedia(roomID, participantID string) ([]string, error) {
	room, ok := e.rooms.Get(roomID)
	if !ok {
		return nil, ErrRoomNotFound
	}
	streams := e.streamsByPublisher(roomID, participantID)
	removed := make([]string, 0, len(streams))
	for _, s := range streams {
		e.teardownStream(room, s.StreamID)
		removed = append(removed, s.StreamID)
	}
	e.speakers.MarkStopSpeaking(roomID, participantID)
	return removed, nil
}

// UpdateStreamMetadata shallow-merges patch into the stream's metadata;
// no invariants are re-evaluated.
func (e *Engine) UpdateStreamMetadata(streamID string, patch Metadata) error {
	stream, ok := e.streams.Get(streamID)
	if !ok {
		return ErrStreamNotFound
	}
	if stream.Metadata == nil {
		stream.Metadata = make(Metadata)
	}
	for k, v := range patch {
		stream.Metadata[k] = v
	}
	return nil
}

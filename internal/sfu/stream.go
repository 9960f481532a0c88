package sfu

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"
)

// maxStreamIDRetries bounds streamId collision retries.
const maxStreamIDRetries = 10

// priorityStreamCap is the number of streams that auto-admit consumers.
const priorityStreamCap = 10

// Stream ties (publisher, producer, rtpParameters, metadata) to a stable
// id used by clients.
type Stream struct {
	StreamID      string
	PublisherID   string
	ProducerID    string
	RoomID        string
	Kind          string // "audio" | "video"
	Type          StreamType
	RTPParameters RawJSON
	Metadata      Metadata
	CreatedAt     time.Time
}

// randSuffix returns the 5-char lowercase-alnum suffix the streamId format requires.
func randSuffix() string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, 5)
	for i := range b {
		b[i] = alphabet[rand.Intn(len(alphabet))]
	}
	return string(b)
}

func buildStreamID(publisherID string, typ StreamType, now time.Time) string {
	return fmt.Sprintf("%s_%s_%d_%s", publisherID, typ, now.UnixMilli(), randSuffix())
}

// StreamRegistry maps streamId → Stream and producerId → Stream, with
// per-room indexing for enumeration and priority ordering.
type StreamRegistry struct {
	mu         sync.RWMutex
	byStreamID map[string]*Stream
	byProducer map[string]*Stream
	byRoom     map[string]map[string]struct{} // roomId -> set of streamId
}

func newStreamRegistry() *StreamRegistry {
	return &StreamRegistry{
		byStreamID: make(map[string]*Stream),
		byProducer: make(map[string]*Stream),
		byRoom:     make(map[string]map[string]struct{}),
	}
}

// Register generates a streamId for the given publisher/type and inserts
// the Stream under both indexes, making at most maxStreamIDRetries
// attempts when candidate ids collide.
func (sr *StreamRegistry) Register(roomID, publisherID, producerID, kind string, typ StreamType, rtpParams RawJSON, meta Metadata) (*Stream, error) {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	now := time.Now()
	var id string
	for attempt := 0; attempt < maxStreamIDRetries; attempt++ {
		candidate := buildStreamID(publisherID, typ, now)
		if attempt > 0 {
			candidate = fmt.Sprintf("%s_%d", candidate, attempt)
		}
		if _, exists := sr.byStreamID[candidate]; !exists {
			id = candidate
			break
		}
	}
	if id == "" {
		return nil, ErrResourceExhausted
	}

	s := &Stream{
		StreamID:      id,
		PublisherID:   publisherID,
		ProducerID:    producerID,
		RoomID:        roomID,
		Kind:          kind,
		Type:          typ,
		RTPParameters: rtpParams,
		Metadata:      meta,
		CreatedAt:     now,
	}
	sr.byStreamID[id] = s
	sr.byProducer[producerID] = s
	if sr.byRoom[roomID] == nil {
		sr.byRoom[roomID] = make(map[string]struct{})
	}
	sr.byRoom[roomID][id] = struct{}{}
	return s, nil
}

// RegisterExplicit inserts a Stream whose streamId was computed by the
// caller (used by the translation cabin, whose streamId format is
// `translated_<targetUserId>_<sourceLanguage>_<targetLanguage>`, not the
// producer-derived format ordinary streams use).
func (sr *StreamRegistry) RegisterExplicit(s *Stream) {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	sr.byStreamID[s.StreamID] = s
	sr.byProducer[s.ProducerID] = s
	if sr.byRoom[s.RoomID] == nil {
		sr.byRoom[s.RoomID] = make(map[string]struct{})
	}
	sr.byRoom[s.RoomID][s.StreamID] = struct{}{}
}

// Get returns a Stream by streamId.
func (sr *StreamRegistry) Get(streamID string) (*Stream, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()
	s, ok := sr.byStreamID[streamID]
	return s, ok
}

// GetByProducer returns a Stream by producerId.
func (sr *StreamRegistry) GetByProducer(producerID string) (*Stream, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()
	s, ok := sr.byProducer[producerID]
	return s, ok
}

// ByRoom returns every live Stream in a room, unordered.
func (sr *StreamRegistry) ByRoom(roomID string) []*Stream {
	sr.mu.RLock()
	defer sr.mu.RUnlock()
	ids := sr.byRoom[roomID]
	out := make([]*Stream, 0, len(ids))
	for id := range ids {
		if s, ok := sr.byStreamID[id]; ok {
			out = append(out, s)
		}
	}
	return out
}

// Remove deletes a Stream from every index.
func (sr *StreamRegistry) Remove(streamID string) {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	s, ok := sr.byStreamID[streamID]
	if !ok {
		return
	}
	delete(sr.byStreamID, streamID)
	delete(sr.byProducer, s.ProducerID)
	if set, ok := sr.byRoom[s.RoomID]; ok {
		delete(set, streamID)
	}
}

// RemoveRoom drops every Stream belonging to roomID, returning their ids.
func (sr *StreamRegistry) RemoveRoom(roomID string) []string {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	ids := sr.byRoom[roomID]
	removed := make([]string, 0, len(ids))
	for id := range ids {
		if s, ok := sr.byStreamID[id]; ok {
			delete(sr.byProducer, s.ProducerID)
			delete(sr.byStreamID, id)
		}
		removed = append(removed, id)
	}
	delete(sr.byRoom, roomID)
	return removed
}

// PriorityStreams returns priorityStreams(roomId): the first 10 entries of
// the room's streams sorted ascending by streamId. Recomputed
// lazily on every call — no invalidation.
func (sr *StreamRegistry) PriorityStreams(roomID string) []*Stream {
	streams := sr.ByRoom(roomID)
	sort.Slice(streams, func(i, j int) bool { return streams[i].StreamID < streams[j].StreamID })
	if len(streams) > priorityStreamCap {
		streams = streams[:priorityStreamCap]
	}
	return streams
}

// PrioritisedUsers returns the publisher set of PriorityStreams(roomId).
func (sr *StreamRegistry) PrioritisedUsers(roomID string) map[string]struct{} {
	users := make(map[string]struct{})
	for _, s := range sr.PriorityStreams(roomID) {
		users[s.PublisherID] = struct{}{}
	}
	return users
}

// IsPriority reports whether streamID is currently one of the room's
// priority streams.
func (sr *StreamRegistry) IsPriority(roomID, streamID string) bool {
	for _, s := range sr.PriorityStreams(roomID) {
		if s.StreamID == streamID {
			return true
		}
	}
	return false
}

// FindLivePublisherStream is the consume fallback: given a publisherId
// and a media kind, find any live stream from that publisher with the
// same kind.
func (sr *StreamRegistry) FindLivePublisherStream(roomID, publisherID, kind string) (*Stream, bool) {
	for _, s := range sr.ByRoom(roomID) {
		if s.PublisherID == publisherID && s.Kind == kind {
			return s, true
		}
	}
	return nil, false
}

// ParseFallbackStreamID splits a caller-supplied streamId of the form
// `<peerId>_<kind>_...` into its peerId and kind components. It returns
// ok=false if the id does not have at least two underscore-separated
// segments to draw from.
func ParseFallbackStreamID(streamID string) (peerID, kind string, ok bool) {
	parts := strings.Split(streamID, "_")
	if len(parts) < 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}

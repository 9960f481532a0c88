package sfu

import (
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
)

// Producer is a sending endpoint inside the SFU: one publication of one
// media track. It wraps the pion TrackRemote the publisher's
// WebRtcTransport received.
type Producer struct {
	ID          string
	StreamID    string
	Kind        string
	TransportID string

	mu    sync.Mutex
	track *webrtc.TrackRemote
}

// AttachTrack records the live TrackRemote for this producer once the
// owning transport's ICE/DTLS handshake completes and media starts
// flowing — a separate event from producer creation itself, since
// Produce is a signaling-only operation.
func (p *Producer) AttachTrack(track *webrtc.TrackRemote) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.track = track
}

// Track returns the producer's live TrackRemote, or nil if media has not
// started flowing yet.
func (p *Producer) Track() *webrtc.TrackRemote {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.track
}

// Consumer is a forwarding endpoint inside the SFU: one subscription of
// one producer onto one transport. Consumers are created paused and must
// be resumed explicitly.
type Consumer struct {
	ID             string
	ProducerID     string
	StreamID       string
	TransportID    string
	ConsumerPeerID string
	Kind           string
	LocalTrack     *webrtc.TrackLocalStaticRTP

	mu     sync.Mutex
	paused bool
	closed bool
}

// Paused reports whether the consumer has not yet been resumed.
func (c *Consumer) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// Resume marks the consumer unpaused. Idempotent.
func (c *Consumer) Resume() {
	c.mu.Lock()
	c.paused = false
	c.mu.Unlock()
}

func (c *Consumer) markClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.closed = true
	return true
}

// MediaRoom maps roomId to its router, producers, consumers, and pinned
// worker. Transports themselves live in the shared
// TransportRegistry; MediaRoom tracks only which producer/consumer handles
// belong to it.
type MediaRoom struct {
	mu     sync.Mutex
	id     string
	router *Router
	worker *MediaWorker

	producers map[string]*Producer            // streamId -> Producer
	consumers map[string][]*Consumer          // streamId -> ordered consumers
	closed    bool
	createdAt time.Time
}

// ID returns the room's identifier.
func (r *MediaRoom) ID() string { return r.id }

// Router returns the room's media router handle.
func (r *MediaRoom) Router() *Router { return r.router }

// WorkerID returns the index of the worker this room is pinned to.
func (r *MediaRoom) WorkerID() int { return r.worker.Index() }

// Worker returns the MediaWorker this room is pinned to.
func (r *MediaRoom) Worker() *MediaWorker { return r.worker }

func (r *MediaRoom) addProducer(streamID string, p *Producer) {
	r.mu.Lock()
	r.producers[streamID] = p
	r.mu.Unlock()
	r.worker.addProducer(1)
}

func (r *MediaRoom) removeProducer(streamID string) (*Producer, bool) {
	r.mu.Lock()
	p, ok := r.producers[streamID]
	if ok {
		delete(r.producers, streamID)
	}
	r.mu.Unlock()
	if ok {
		r.worker.addProducer(-1)
	}
	return p, ok
}

func (r *MediaRoom) getProducer(streamID string) (*Producer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.producers[streamID]
	return p, ok
}

// GetProducer returns the producer registered under streamID, if any.
func (r *MediaRoom) GetProducer(streamID string) (*Producer, bool) {
	return r.getProducer(streamID)
}

// Producers returns every producer currently registered in the room,
// keyed by streamId. Used by the translation cabin manager to scan for a
// target user's live audio producer.
func (r *MediaRoom) Producers() map[string]*Producer {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]*Producer, len(r.producers))
	for k, v := range r.producers {
		out[k] = v
	}
	return out
}

// AddProducer registers p under streamID. Used by the translation cabin
// manager, which mints its own streamId format and bypasses Engine.Produce
//.
func (r *MediaRoom) AddProducer(streamID string, p *Producer) {
	r.addProducer(streamID, p)
}

// RemoveProducer deregisters and returns the producer for streamID, if any.
func (r *MediaRoom) RemoveProducer(streamID string) (*Producer, bool) {
	return r.removeProducer(streamID)
}

// AddConsumer registers c under streamID. Used by the translation cabin
// manager to track its target-audio consumer inside the normal room
// bookkeeping, so closeMediaRoom's cascade finds and closes it too.
func (r *MediaRoom) AddConsumer(streamID string, c *Consumer) {
	r.addConsumer(streamID, c)
}

// ConsumersForStream returns a copy of the consumer slice for streamID.
func (r *MediaRoom) ConsumersForStream(streamID string) []*Consumer {
	return r.consumersForStream(streamID)
}

// RemoveConsumersForStream removes and returns every consumer attached to streamID.
func (r *MediaRoom) RemoveConsumersForStream(streamID string) []*Consumer {
	return r.removeConsumersForStream(streamID)
}

// RemoveConsumer deletes a single consumer by id from streamID's list.
func (r *MediaRoom) RemoveConsumer(streamID, consumerID string) bool {
	return r.removeConsumer(streamID, consumerID)
}

func (r *MediaRoom) addConsumer(streamID string, c *Consumer) {
	r.mu.Lock()
	r.consumers[streamID] = append(r.consumers[streamID], c)
	r.mu.Unlock()
	r.worker.addConsumer(1)
}

// consumersForStream returns a copy of the consumer slice for streamID.
func (r *MediaRoom) consumersForStream(streamID string) []*Consumer {
	r.mu.Lock()
	defer r.mu.Unlock()
	cs := r.consumers[streamID]
	out := make([]*Consumer, len(cs))
	copy(out, cs)
	return out
}

// allConsumers returns every consumer in the room.
func (r *MediaRoom) allConsumers() []*Consumer {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Consumer
	for _, cs := range r.consumers {
		out = append(out, cs...)
	}
	return out
}

// removeConsumer deletes one consumer by id from streamID's list, pruning
// the entry entirely if it becomes empty.
func (r *MediaRoom) removeConsumer(streamID, consumerID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cs := r.consumers[streamID]
	for i, c := range cs {
		if c.ID == consumerID {
			r.consumers[streamID] = append(cs[:i], cs[i+1:]...)
			if len(r.consumers[streamID]) == 0 {
				delete(r.consumers, streamID)
			}
			r.worker.addConsumer(-1)
			return true
		}
	}
	return false
}

// removeConsumersForStream removes and returns every consumer attached to streamID.
func (r *MediaRoom) removeConsumersForStream(streamID string) []*Consumer {
	r.mu.Lock()
	cs := r.consumers[streamID]
	delete(r.consumers, streamID)
	r.mu.Unlock()
	if len(cs) > 0 {
		r.worker.addConsumer(-len(cs))
	}
	return cs
}

// findConsumer locates a consumer by id across every stream in the room.
func (r *MediaRoom) findConsumer(consumerID string) (*Consumer, string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for streamID, cs := range r.consumers {
		for _, c := range cs {
			if c.ID == consumerID {
				return c, streamID, true
			}
		}
	}
	return nil, "", false
}

func (r *MediaRoom) close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.router.close()
	r.mu.Unlock()
	r.worker.addRoom(-1)
}

// RoomRegistry maps roomId → MediaRoom, with idempotent creation
// and a full teardown cascade on close.
type RoomRegistry struct {
	mu    sync.RWMutex
	rooms map[string]*MediaRoom
	pool  *MediaWorkerPool
}

func newRoomRegistry(pool *MediaWorkerPool) *RoomRegistry {
	return &RoomRegistry{rooms: make(map[string]*MediaRoom), pool: pool}
}

// GetOrCreate implements createMediaRoom/getMediaRouter: idempotent, picks
// a worker by deterministic hash of roomID on first creation.
func (rr *RoomRegistry) GetOrCreate(roomID string) (*MediaRoom, error) {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	if room, ok := rr.rooms[roomID]; ok {
		return room, nil
	}

	worker := rr.pool.PickForRoom(roomID)
	if !worker.Alive() {
		return nil, ErrWorkerDied
	}

	room := &MediaRoom{
		id:        roomID,
		router:    newRouter(fmt.Sprintf("router_%s", roomID), worker.Index()),
		worker:    worker,
		producers: make(map[string]*Producer),
		consumers: make(map[string][]*Consumer),
		createdAt: time.Now(),
	}
	worker.addRoom(1)
	rr.rooms[roomID] = room
	return room, nil
}

// Get returns a room by id without creating it.
func (rr *RoomRegistry) Get(roomID string) (*MediaRoom, bool) {
	rr.mu.RLock()
	defer rr.mu.RUnlock()
	r, ok := rr.rooms[roomID]
	return r, ok
}

// Remove deregisters and returns the room, or (nil, false) if unknown.
func (rr *RoomRegistry) Remove(roomID string) (*MediaRoom, bool) {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	r, ok := rr.rooms[roomID]
	if ok {
		delete(rr.rooms, roomID)
	}
	return r, ok
}

// List returns every room currently registered.
func (rr *RoomRegistry) List() []*MediaRoom {
	rr.mu.RLock()
	defer rr.mu.RUnlock()
	out := make([]*MediaRoom, 0, len(rr.rooms))
	for _, r := range rr.rooms {
		out = append(out, r)
	}
	return out
}

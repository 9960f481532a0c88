package sfu

import (
	"context"
	"fmt"

	"github.com/pion/webrtc/v4"
	"github.com/pitabwire/frame/workerpool"
)

// Config holds the settings Core is built from.
type Config struct {
	Worker       WorkerConfig
	WebRTCConfig webrtc.Configuration
}

// Stats reports aggregate Core metrics.
type Stats struct {
	RoomCount   int
	WorkerCount int
	StreamCount int
	ProducerCnt int
	ConsumerCnt int
}

// Core is the top-level SFU manager: it owns the MediaWorkerPool, the
// RoomRegistry, the shared TransportRegistry/StreamRegistry, the
// Producer/Consumer Engine, and the SpeakerTracker.
type Core struct {
	cfg        Config
	pool       *MediaWorkerPool
	rooms      *RoomRegistry
	transports *TransportRegistry
	streams    *StreamRegistry
	engine     *Engine
	speakers   *SpeakerTracker
}

// New builds a Core from cfg, spawning the media worker pool. Bootstrap
// failure is fatal.
func New(cfg Config, pool workerpool.WorkerPool) (*Core, error) {
	workerPool, err := NewWorkerPool(cfg.Worker)
	if err != nil {
		return nil, fmt.Errorf("initialising media worker pool: %w", err)
	}

	rooms := newRoomRegistry(workerPool)
	transports := newTransportRegistry()
	streams := newStreamRegistry()
	speakers := NewSpeakerTracker(pool)
	engine := newEngine(rooms, streams, transports, speakers)

	return &Core{
		cfg:        cfg,
		pool:       workerPool,
		rooms:      rooms,
		transports: transports,
		streams:    streams,
		engine:     engine,
		speakers:   speakers,
	}, nil
}

// WorkerPool returns the media worker pool.
func (c *Core) WorkerPool() *MediaWorkerPool { return c.pool }

// Streams returns the stream registry (used directly by GetStreams/serialisation).
func (c *Core) Streams() *StreamRegistry { return c.streams }

// Transports returns the transport registry.
func (c *Core) Transports() *TransportRegistry { return c.transports }

// Engine returns the producer/consumer engine.
func (c *Core) Engine() *Engine { return c.engine }

// Speakers returns the active-speaker tracker.
func (c *Core) Speakers() *SpeakerTracker { return c.speakers }

// CreateMediaRoom is idempotent: if roomID already exists, its router is returned.
func (c *Core) CreateMediaRoom(roomID string) (*MediaRoom, error) {
	return c.rooms.GetOrCreate(roomID)
}

// Room returns roomID's MediaRoom without creating it. Used by the
// translation cabin manager to resolve a room's live producers.
func (c *Core) Room(roomID string) (*MediaRoom, bool) {
	return c.rooms.Get(roomID)
}

// GetMediaRouter returns the existing router for roomID, or creates one.
func (c *Core) GetMediaRouter(roomID string) (*Router, error) {
	room, err := c.rooms.GetOrCreate(roomID)
	if err != nil {
		return nil, err
	}
	return room.Router(), nil
}

// CreateWebRtcTransport creates a new transport on the room's pinned
// worker, using that worker's WebRTC API and its UDP port window. There is
// no worker-local WebRTC server to share.
func (c *Core) CreateWebRtcTransport(ctx context.Context, roomID string) (*WebRtcTransport, error) {
	room, ok := c.rooms.Get(roomID)
	if !ok {
		return nil, ErrRoomNotFound
	}
	return c.transports.Create(ctx, roomID, room.Worker(), c.cfg.WebRTCConfig)
}

// ConnectTransport is idempotent; a repeat call reports already-connected.
func (c *Core) ConnectTransport(transportID string, dtlsParameters RawJSON) (alreadyConnected bool, err error) {
	t, ok := c.transports.Get(transportID)
	if !ok {
		return false, ErrTransportNotFound
	}
	return t.Connect(dtlsParameters)
}

// CloseMediaRoom closes the router (cascading through producers, consumers,
// and transports) and clears the speaker tracker. It does not touch
// translation cabins: Server, which owns both Core and the cabin Manager,
// tears down every cabin rooted at roomID before calling it — see
// internal/sfuapi.
func (c *Core) CloseMediaRoom(roomID string) ([]string, error) {
	room, ok := c.rooms.Remove(roomID)
	if !ok {
		return nil, ErrRoomNotFound
	}

	removedStreams := c.streams.RemoveRoom(roomID)
	for _, cons := range room.allConsumers() {
		cons.markClosed()
	}
	room.close()

	c.transports.CloseRoom(roomID)
	c.speakers.ClearRoom(roomID)

	return removedStreams, nil
}

// Stats returns aggregate Core statistics.
func (c *Core) Stats() Stats {
	rooms := c.rooms.List()
	stats := Stats{RoomCount: len(rooms), WorkerCount: c.pool.Size()}
	for _, r := range rooms {
		stats.StreamCount += len(c.streams.ByRoom(r.ID()))
		stats.ProducerCnt += len(r.producers)
		for _, cs := range r.consumers {
			stats.ConsumerCnt += len(cs)
		}
	}
	return stats
}

// Close gracefully closes every room.
func (c *Core) Close() {
	for _, r := range c.rooms.List() {
		_, _ = c.CloseMediaRoom(r.ID())
	}
	c.speakers.Close()
}

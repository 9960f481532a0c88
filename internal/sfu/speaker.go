package sfu

import (
	"context"
	"sync"
	"time"

	"github.com/pitabwire/frame/workerpool"
)

// Default speaking-activity and eviction thresholds.
const (
	defaultActiveThreshold     = 2000 * time.Millisecond
	defaultInactivityThreshold = 5000 * time.Millisecond
	defaultSweepInterval       = 5000 * time.Millisecond
)

// SpeakerTracker maintains a per-room peerId → lastSpokeAt map and
// periodically evicts stale entries. It is driven entirely by explicit
// HandleSpeaking/HandleStopSpeaking RPCs from the gateway; the SFU never
// inspects RTP audio levels itself.
type SpeakerTracker struct {
	mu                  sync.Mutex
	rooms               map[string]map[string]time.Time // roomId -> peerId -> lastSpokeAt
	activeThreshold     time.Duration
	inactivityThreshold time.Duration

	pool   workerpool.WorkerPool
	cancel context.CancelFunc
}

// NewSpeakerTracker creates a tracker and starts its periodic sweep on pool
// (or a bare goroutine if pool is nil).
func NewSpeakerTracker(pool workerpool.WorkerPool) *SpeakerTracker {
	t := &SpeakerTracker{
		rooms:               make(map[string]map[string]time.Time),
		activeThreshold:     defaultActiveThreshold,
		inactivityThreshold: defaultInactivityThreshold,
		pool:                pool,
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.startSweep(ctx)
	return t
}

func (t *SpeakerTracker) startSweep(ctx context.Context) {
	run := func() {
		ticker := time.NewTicker(defaultSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.sweep()
			}
		}
	}
	if t.pool != nil {
		_ = t.pool.Submit(ctx, run)
		return
	}
	go run()
}

func (t *SpeakerTracker) sweep() {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	for roomID, peers := range t.rooms {
		for peerID, last := range peers {
			if now.Sub(last) > t.inactivityThreshold {
				delete(peers, peerID)
			}
		}
		if len(peers) == 0 {
			delete(t.rooms, roomID)
		}
	}
}

// MarkSpeaking upserts lastSpokeAt = now for (roomId, peerId).
func (t *SpeakerTracker) MarkSpeaking(roomID, peerID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.rooms[roomID] == nil {
		t.rooms[roomID] = make(map[string]time.Time)
	}
	t.rooms[roomID][peerID] = time.Now()
}

// MarkStopSpeaking deletes (roomId, peerId)'s entry.
func (t *SpeakerTracker) MarkStopSpeaking(roomID, peerID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if peers, ok := t.rooms[roomID]; ok {
		delete(peers, peerID)
	}
}

// ActiveSpeakers returns peerIds whose lastSpokeAt is within activeThreshold.
func (t *SpeakerTracker) ActiveSpeakers(roomID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	var out []string
	for peerID, last := range t.rooms[roomID] {
		if now.Sub(last) < t.activeThreshold {
			out = append(out, peerID)
		}
	}
	return out
}

// ClearRoom removes every speaker entry for roomID (used by closeMediaRoom's cascade).
func (t *SpeakerTracker) ClearRoom(roomID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.rooms, roomID)
}

// Close stops the periodic sweep.
func (t *SpeakerTracker) Close() {
	t.cancel()
}

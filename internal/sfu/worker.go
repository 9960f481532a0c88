package sfu

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/pion/webrtc/v4"
)

// maxWorkers caps the media worker count regardless of CPU count.
const maxWorkers = 16

// WorkerConfig carries the settings every MediaWorker is built from.
type WorkerConfig struct {
	// ListenIP is the configured local bind address. newWorker does not
	// read it; ICE gathers on pion's default interfaces.
	ListenIP string
	// AnnouncedIP is the public address injected into ICE candidates.
	AnnouncedIP string
	// BasePort is mediasoupBasePort; worker i records BasePort+i as its
	// server port. No listener is opened on that port.
	BasePort int
	// RTCBasePort is the first port of worker 0's RTC port window.
	RTCBasePort int
	// RTCPortWindow is the number of ports each worker owns, applied as
	// the worker's ephemeral UDP port range.
	RTCPortWindow int
	ICEServers    []webrtc.ICEServer
}

// MediaWorker owns one disjoint RTC port range and one WebRTC API instance
// bound to it. Rooms are pinned to exactly one worker for their
// lifetime.
type MediaWorker struct {
	index       int
	portFrom    int
	portTo      int
	serverPort  int
	api         *webrtc.API
	iceServers  []webrtc.ICEServer
	mu          sync.Mutex
	roomCount   int
	producerCnt int
	consumerCnt int
	alive       bool
}

// Index returns the worker's position in the pool.
func (w *MediaWorker) Index() int { return w.index }

// PortRange returns the worker's RTC port window [from, to].
func (w *MediaWorker) PortRange() (from, to int) { return w.portFrom, w.portTo }

// API returns the worker's WebRTC API instance, to be used by every
// WebRtcTransport a room pinned to this worker creates.
func (w *MediaWorker) API() *webrtc.API { return w.api }

// IceServers returns the ICE server list new transports on this worker should use.
func (w *MediaWorker) IceServers() []webrtc.ICEServer { return w.iceServers }

// Alive reports whether the worker is currently serving traffic.
func (w *MediaWorker) Alive() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.alive
}

// load computes the weighted load vector: rooms·10 + consumers·5 + producers·2.
func (w *MediaWorker) load() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.roomCount*10 + w.consumerCnt*5 + w.producerCnt*2
}

func (w *MediaWorker) addRoom(delta int) {
	w.mu.Lock()
	w.roomCount += delta
	w.mu.Unlock()
}

func (w *MediaWorker) addProducer(delta int) {
	w.mu.Lock()
	w.producerCnt += delta
	w.mu.Unlock()
}

func (w *MediaWorker) addConsumer(delta int) {
	w.mu.Lock()
	w.consumerCnt += delta
	w.mu.Unlock()
}

func newWorker(index int, cfg WorkerConfig) (*MediaWorker, error) {
	from := cfg.RTCBasePort + index*cfg.RTCPortWindow
	to := cfg.RTCBasePort + (index+1)*cfg.RTCPortWindow - 1

	me := &webrtc.MediaEngine{}
	if err := registerCodecs(me); err != nil {
		return nil, fmt.Errorf("worker %d: registering codecs: %w", index, err)
	}

	se := webrtc.SettingEngine{}
	if err := se.SetEphemeralUDPPortRange(uint16(from), uint16(to)); err != nil {
		return nil, fmt.Errorf("worker %d: setting port range [%d,%d]: %w", index, from, to, err)
	}
	if cfg.AnnouncedIP != "" {
		se.SetNAT1To1IPs([]string{cfg.AnnouncedIP}, webrtc.ICECandidateTypeHost)
	}

	api := webrtc.NewAPI(webrtc.WithMediaEngine(me), webrtc.WithSettingEngine(se))

	return &MediaWorker{
		index:      index,
		portFrom:   from,
		portTo:     to,
		serverPort: cfg.BasePort + index,
		api:        api,
		iceServers: cfg.ICEServers,
		alive:      true,
	}, nil
}

// registerCodecs registers the codec set every router advertises:
// Opus (48kHz/2ch), VP8, VP9, and H264 with two profile-level-ids.
func registerCodecs(me *webrtc.MediaEngine) error {
	if err := me.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:    webrtc.MimeTypeOpus,
			ClockRate:   48000,
			Channels:    2,
			SDPFmtpLine: "minptime=10;useinbandfec=1",
		},
		PayloadType: 111,
	}, webrtc.RTPCodecTypeAudio); err != nil {
		return err
	}

	videoCodecs := []webrtc.RTPCodecParameters{
		{
			RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
			PayloadType:        96,
		},
		{
			RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP9, ClockRate: 90000, SDPFmtpLine: "profile-id=0"},
			PayloadType:        98,
		},
		{
			RTPCodecCapability: webrtc.RTPCodecCapability{
				MimeType:    webrtc.MimeTypeH264,
				ClockRate:   90000,
				SDPFmtpLine: "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42e01f",
			},
			PayloadType: 102,
		},
		{
			RTPCodecCapability: webrtc.RTPCodecCapability{
				MimeType:    webrtc.MimeTypeH264,
				ClockRate:   90000,
				SDPFmtpLine: "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42001f",
			},
			PayloadType: 103,
		},
	}
	for _, c := range videoCodecs {
		if err := me.RegisterCodec(c, webrtc.RTPCodecTypeVideo); err != nil {
			return err
		}
	}
	return nil
}

// MediaWorkerPool owns N media workers sized to the CPU count, capped at 16
//. It is the platform's recovery boundary: a dead worker is replaced
// in place, never migrated.
type MediaWorkerPool struct {
	mu      sync.RWMutex
	workers []*MediaWorker
	cfg     WorkerConfig
}

// NewWorkerPool spawns min(GOMAXPROCS, 16) workers. Bootstrap failure is
// fatal — the pool cannot serve any room without at least one worker.
func NewWorkerPool(cfg WorkerConfig) (*MediaWorkerPool, error) {
	n := runtime.GOMAXPROCS(0)
	if n > maxWorkers {
		n = maxWorkers
	}
	if n < 1 {
		n = 1
	}
	if cfg.RTCPortWindow <= 0 {
		cfg.RTCPortWindow = 1000
	}
	if cfg.RTCBasePort <= 0 {
		cfg.RTCBasePort = 10000
	}

	p := &MediaWorkerPool{cfg: cfg, workers: make([]*MediaWorker, n)}
	for i := 0; i < n; i++ {
		w, err := newWorker(i, cfg)
		if err != nil {
			return nil, fmt.Errorf("bootstrapping worker pool: %w", err)
		}
		p.workers[i] = w
	}
	return p, nil
}

// Size returns the number of workers in the pool.
func (p *MediaWorkerPool) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.workers)
}

// PickForRoom deterministically maps roomId to a worker index via
// sum-of-char-codes mod N, guaranteeing stable room→worker affinity across
// calls within the process lifetime.
func (p *MediaWorkerPool) PickForRoom(roomID string) *MediaWorker {
	p.mu.RLock()
	defer p.mu.RUnlock()
	n := len(p.workers)
	sum := 0
	for _, r := range roomID {
		sum += int(r)
	}
	return p.workers[sum%n]
}

// PickLeastLoaded returns the worker with the smallest weighted load vector.
func (p *MediaWorkerPool) PickLeastLoaded() *MediaWorker {
	p.mu.RLock()
	defer p.mu.RUnlock()
	best := p.workers[0]
	bestLoad := best.load()
	for _, w := range p.workers[1:] {
		if l := w.load(); l < bestLoad {
			best, bestLoad = w, l
		}
	}
	return best
}

// WorkerAt returns the worker at index, or false if the index is out of range.
func (p *MediaWorkerPool) WorkerAt(index int) (*MediaWorker, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if index < 0 || index >= len(p.workers) {
		return nil, false
	}
	return p.workers[index], true
}

// ReplaceDeadWorker deregisters the worker at index and spawns a
// replacement bound to the same port window. Rooms previously pinned to it
// are not migrated — callers must recreate them on next activity.
func (p *MediaWorkerPool) ReplaceDeadWorker(index int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if index < 0 || index >= len(p.workers) {
		return fmt.Errorf("worker index %d out of range", index)
	}
	p.workers[index].mu.Lock()
	p.workers[index].alive = false
	p.workers[index].mu.Unlock()

	w, err := newWorker(index, p.cfg)
	if err != nil {
		return fmt.Errorf("replacing worker %d: %w", index, err)
	}
	p.workers[index] = w
	return nil
}

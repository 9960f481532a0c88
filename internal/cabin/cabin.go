package cabin

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pion/rtp"
	"github.com/pitabwire/util"
	"github.com/rs/xid"

	"github.com/xuantruongg03/vionex-be-monorepo-sub001/internal/sfu"
)

// audioServiceIngressPort is the audio service's fixed RTP ingress.
const audioServiceIngressPort = 35000

// Cabin is one bidirectional translation bridge, keyed by
// (roomId, targetUserId, sourceLanguage, targetLanguage).
// It owns both PlainTransports exclusively; the translated Stream is owned
// by the Stream registry but its lifecycle is driven by the cabin.
type Cabin struct {
	ID             string
	RoomID         string
	TargetUserID   string
	SourceLanguage string
	TargetLanguage string
	StreamID       string

	targetStreamID string // the target's own audio stream, consumed into sendTransport

	receiveTransport *PlainTransport
	sendTransport    *PlainTransport
	consumer         *sfu.Consumer
	producer         *sfu.Producer

	mu        sync.Mutex
	consumers map[string]struct{} // sourceUserId set
	createdAt time.Time

	cancel context.CancelFunc
}

// CreateResult is the engine-level result of Manager.Create.
type CreateResult struct {
	Success       bool
	StreamID      string
	SfuListenPort int
	ConsumerSSRC  uint32
	Message       string
}

// DestroyResult is the engine-level result of Manager.Destroy.
type DestroyResult struct {
	Success bool
	Message string
}

// Info projects a Cabin for listCabins.
type Info struct {
	TargetUserID   string
	SourceLanguage string
	TargetLanguage string
}

// Manager owns every live Cabin, keyed by cabinId. A single mutex
// serialises cabin mutations; cabin create/destroy is far rarer than
// produce/consume, so the serialisation is cheap.
type Manager struct {
	mu               sync.Mutex
	cabins           map[string]*Cabin
	core             *sfu.Core
	listenIP         string
	audioServiceHost string
}

// NewManager builds a cabin Manager bound to core. listenIP is the address
// receiveTransports bind to (MEDIASOUP_LISTEN_IP); audioServiceHost is the
// fixed destination sendTransports dial (AUDIO_SERVICE_HOST).
func NewManager(core *sfu.Core, listenIP, audioServiceHost string) *Manager {
	return &Manager{
		cabins:           make(map[string]*Cabin),
		core:             core,
		listenIP:         listenIP,
		audioServiceHost: audioServiceHost,
	}
}

func cabinKey(roomID, targetUserID, sourceLanguage, targetLanguage string) string {
	return fmt.Sprintf("%s_%s_%s_%s", roomID, targetUserID, sourceLanguage, targetLanguage)
}

func translatedStreamID(targetUserID, sourceLanguage, targetLanguage string) string {
	return fmt.Sprintf("translated_%s_%s_%s", targetUserID, sourceLanguage, targetLanguage)
}

// findAudioProducer resolves the target's live audio producer by scanning
// room producers for one whose stream key starts with
// "<targetUserId>_audio_" and whose kind is audio.
func findAudioProducer(room *sfu.MediaRoom, targetUserID string) (*sfu.Producer, string, bool) {
	prefix := targetUserID + "_audio_"
	for streamID, p := range room.Producers() {
		if p.Kind == "audio" && strings.HasPrefix(streamID, prefix) {
			return p, streamID, true
		}
	}
	return nil, "", false
}

// Create implements allocatePort: reuse-by-refcount if the
// cabin already exists, else build both PlainTransports, the forwarding
// consumer, the translated producer/Stream, and start the bridging
// goroutines.
func (m *Manager) Create(
	ctx context.Context,
	roomID, sourceUserID, targetUserID, sourceLanguage, targetLanguage string,
	audioServiceRxPort, sfuListenPort int,
	ssrc uint32,
) (*CreateResult, error) {
	id := cabinKey(roomID, targetUserID, sourceLanguage, targetLanguage)

	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.cabins[id]; ok {
		c.mu.Lock()
		c.consumers[sourceUserID] = struct{}{}
		c.mu.Unlock()
		return &CreateResult{Success: true, StreamID: c.StreamID}, nil
	}

	room, ok := m.core.Room(roomID)
	if !ok {
		return nil, sfu.ErrRoomNotFound
	}

	targetProducer, targetStreamID, ok := findAudioProducer(room, targetUserID)
	if !ok {
		return nil, ErrNoAudioProducer
	}

	sendTransport, err := NewDirect(context.Background(), m.audioServiceHost, audioServiceIngressPort)
	if err != nil {
		util.Log(ctx).WithError(err).Error("translation cabin: send transport")
		return nil, fmt.Errorf("cabin %s: creating send transport: %w", id, err)
	}

	consumerID := xid.New().String()
	consumer := &sfu.Consumer{
		ID:             consumerID,
		ProducerID:     targetProducer.ID,
		StreamID:       targetStreamID,
		TransportID:    "cabin:" + id,
		ConsumerPeerID: sourceUserID,
		Kind:           "audio",
	}
	consumer.Resume() // the forwarder into the audio service is never muted
	room.AddConsumer(targetStreamID, consumer)

	receiveTransport, err := NewComedia(context.Background(), m.listenIP, sfuListenPort)
	if err != nil {
		util.Log(ctx).WithError(err).Error("translation cabin: receive transport, rolling back")
		_ = sendTransport.Close()
		room.RemoveConsumer(targetStreamID, consumerID)
		return nil, fmt.Errorf("cabin %s: creating receive transport: %w", id, err)
	}

	streamID := translatedStreamID(targetUserID, sourceLanguage, targetLanguage)
	producer := &sfu.Producer{
		ID:          xid.New().String(),
		StreamID:    streamID,
		Kind:        "audio",
		TransportID: "cabin:" + id,
	}
	room.AddProducer(streamID, producer)

	stream := &sfu.Stream{
		StreamID:    streamID,
		PublisherID: targetUserID,
		ProducerID:  producer.ID,
		RoomID:      roomID,
		Kind:        "audio",
		Type:        sfu.StreamTypeTranslatedAudio,
		Metadata:    sfu.Metadata{"type": "translated_audio"},
		CreatedAt:   time.Now(),
	}
	m.core.Streams().RegisterExplicit(stream)

	cabinCtx, cancel := context.WithCancel(context.Background())
	c := &Cabin{
		ID:               id,
		RoomID:           roomID,
		TargetUserID:     targetUserID,
		SourceLanguage:   sourceLanguage,
		TargetLanguage:   targetLanguage,
		StreamID:         streamID,
		targetStreamID:   targetStreamID,
		receiveTransport: receiveTransport,
		sendTransport:    sendTransport,
		consumer:         consumer,
		producer:         producer,
		consumers:        map[string]struct{}{sourceUserID: {}},
		createdAt:        time.Now(),
		cancel:           cancel,
	}

	go forwardToAudioService(cabinCtx, targetProducer, sendTransport)
	go receiveTransport.ReadLoop(fanOutHandler(room, streamID))

	m.cabins[id] = c

	return &CreateResult{
		Success:       true,
		StreamID:      streamID,
		SfuListenPort: sfuListenPort,
		ConsumerSSRC:  ssrc,
	}, nil
}

// forwardToAudioService reads RTP off the target's WebRTC audio track and
// writes it to the cabin's sendTransport. The track may attach
// asynchronously after producer creation, so a short retry loop tolerates
// the gap before media actually starts flowing.
func forwardToAudioService(ctx context.Context, target *sfu.Producer, dst *PlainTransport) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		track := target.Track()
		if track == nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(50 * time.Millisecond):
				continue
			}
		}

		pkt, _, err := track.ReadRTP()
		if err != nil {
			return
		}
		_ = dst.WritePacket(pkt)
	}
}

// fanOutHandler writes every decoded translated-audio packet to each
// consumer currently subscribed to streamID — the mirror image of a normal
// WebRTC producer's forwarder, just sourced from a PlainTransport instead
// of a TrackRemote.
func fanOutHandler(room *sfu.MediaRoom, streamID string) PacketHandler {
	return func(pkt *rtp.Packet) {
		for _, c := range room.ConsumersForStream(streamID) {
			if c.Paused() || c.LocalTrack == nil {
				continue
			}
			_ = c.LocalTrack.WriteRTP(pkt)
		}
	}
}

// List implements listCabins: cabins where userId is in cabin.consumers and
// cabinId belongs to roomId.
func (m *Manager) List(roomID, userID string) []Info {
	m.mu.Lock()
	defer m.mu.Unlock()

	prefix := roomID + "_"
	var out []Info
	for id, c := range m.cabins {
		if !strings.HasPrefix(id, prefix) {
			continue
		}
		c.mu.Lock()
		_, isConsumer := c.consumers[userID]
		c.mu.Unlock()
		if !isConsumer {
			continue
		}
		out = append(out, Info{
			TargetUserID:   c.TargetUserID,
			SourceLanguage: c.SourceLanguage,
			TargetLanguage: c.TargetLanguage,
		})
	}
	return out
}

// Destroy implements destroyCabin: the last
// consumer leaving tears the cabin down and returns the "10001" sentinel.
func (m *Manager) Destroy(roomID, sourceUserID, targetUserID, sourceLanguage, targetLanguage string) *DestroyResult {
	id := cabinKey(roomID, targetUserID, sourceLanguage, targetLanguage)

	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.cabins[id]
	if !ok {
		return &DestroyResult{Success: false, Message: "not found"}
	}

	c.mu.Lock()
	delete(c.consumers, sourceUserID)
	remaining := len(c.consumers)
	c.mu.Unlock()

	if remaining > 0 {
		return &DestroyResult{Success: true, Message: "still in use"}
	}

	m.teardown(c)
	delete(m.cabins, id)
	return &DestroyResult{Success: true, Message: "10001"}
}

// teardown closes both PlainTransports (which stops the bridging goroutines)
// and removes the cabin's producer/consumer/Stream registrations. Errors
// closing either transport are swallowed — teardown must not abort
// partway.
func (m *Manager) teardown(c *Cabin) {
	c.cancel()
	_ = c.receiveTransport.Close()
	_ = c.sendTransport.Close()

	if room, ok := m.core.Room(c.RoomID); ok {
		room.RemoveConsumer(c.targetStreamID, c.consumer.ID)
		room.RemoveProducer(c.StreamID)
	}
	m.core.Streams().Remove(c.StreamID)
}

// ClearForRoom tears down every cabin rooted at roomID unconditionally,
// ignoring the reference count. It is the room-close teardown path.
func (m *Manager) ClearForRoom(roomID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prefix := roomID + "_"
	for id, c := range m.cabins {
		if !strings.HasPrefix(id, prefix) {
			continue
		}
		m.teardown(c)
		delete(m.cabins, id)
	}
}

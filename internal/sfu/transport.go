package sfu

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"
	"github.com/rs/xid"
)

// SCTPNumStreams and SCTPMaxMessageSize are the SCTP limits advertised in
// CreateTransport's sctpParameters. They are not applied to the pion
// PeerConnection, whose SCTP association uses pion's own defaults.
const (
	SCTPNumStreams     = 1024
	SCTPMaxMessageSize = 262144
)

// WebRtcTransport is a DTLS/SRTP channel between the SFU and one
// participant. It owns no tracks and no room membership of its own —
// upstream passes peer identity on every call that needs it.
type WebRtcTransport struct {
	id     string
	roomID string
	pc     *webrtc.PeerConnection
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	connected bool
	closed    bool

	onClose []func()
}

// ID returns the transport's identifier.
func (t *WebRtcTransport) ID() string { return t.id }

// PeerConnection returns the underlying pion PeerConnection so producers and
// consumers can attach tracks to it.
func (t *WebRtcTransport) PeerConnection() *webrtc.PeerConnection { return t.pc }

// OnClose registers a hook invoked exactly once when the transport closes,
// either via an explicit Close() or the underlying PeerConnection reaching
// a terminal ICE state.
func (t *WebRtcTransport) OnClose(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onClose = append(t.onClose, fn)
}

// Connect marks the transport connected. Idempotent: a second call returns
// (true, nil) reporting "already connected" rather than erroring.
func (t *WebRtcTransport) Connect(dtlsParameters RawJSON) (alreadyConnected bool, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false, fmt.Errorf("transport %q is closed", t.id)
	}
	if t.connected {
		return true, nil
	}
	t.connected = true
	return false, nil
}

// Connected reports whether Connect has already succeeded.
func (t *WebRtcTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// Close tears down the underlying PeerConnection and runs every registered
// close hook exactly once.
func (t *WebRtcTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	hooks := t.onClose
	t.onClose = nil
	t.mu.Unlock()

	t.cancel()
	err := t.pc.Close()
	for _, h := range hooks {
		h()
	}
	return err
}

// IceParameters mirrors mediasoup's iceParameters wire shape.
type IceParameters struct {
	UsernameFragment string `json:"usernameFragment"`
	Password         string `json:"password"`
}

// IceCandidate mirrors one mediasoup iceCandidates entry.
type IceCandidate struct {
	Foundation string `json:"foundation"`
	Priority   uint32 `json:"priority"`
	IP         string `json:"ip"`
	Protocol   string `json:"protocol"`
	Port       uint16 `json:"port"`
	Type       string `json:"type"`
}

// DtlsFingerprint is one entry of DtlsParameters.Fingerprints.
type DtlsFingerprint struct {
	Algorithm string `json:"algorithm"`
	Value     string `json:"value"`
}

// DtlsParameters mirrors mediasoup's dtlsParameters wire shape.
type DtlsParameters struct {
	Role         string            `json:"role"`
	Fingerprints []DtlsFingerprint `json:"fingerprints"`
}

// GatherParameters forces an internal offer/answer exchange against
// pion's own PeerConnection purely to surface the ICE/DTLS parameters a
// mediasoup-style client expects from CreateTransport.
// pion has no ORTC-style direct accessor for these, so the usual
// negotiation path (SetLocalDescription + GatheringCompletePromise) is
// driven internally and the resulting SDP is parsed with pion/sdp instead
// of ever being sent anywhere — the client never sees this offer, only
// the extracted parameters.
func (t *WebRtcTransport) GatherParameters(ctx context.Context) (IceParameters, []IceCandidate, DtlsParameters, error) {
	offer, err := t.pc.CreateOffer(nil)
	if err != nil {
		return IceParameters{}, nil, DtlsParameters{}, fmt.Errorf("creating offer: %w", err)
	}

	gatherComplete := webrtc.GatheringCompletePromise(t.pc)
	if err := t.pc.SetLocalDescription(offer); err != nil {
		return IceParameters{}, nil, DtlsParameters{}, fmt.Errorf("setting local description: %w", err)
	}

	select {
	case <-gatherComplete:
	case <-ctx.Done():
		return IceParameters{}, nil, DtlsParameters{}, ctx.Err()
	}

	desc := t.pc.LocalDescription()
	var sess sdp.SessionDescription
	if err := sess.Unmarshal([]byte(desc.SDP)); err != nil {
		return IceParameters{}, nil, DtlsParameters{}, fmt.Errorf("parsing local SDP: %w", err)
	}

	var iceParams IceParameters
	dtlsParams := DtlsParameters{Role: "auto"}
	var candidates []IceCandidate

	scanAttrs := func(attrs []sdp.Attribute) {
		for _, a := range attrs {
			switch a.Key {
			case "ice-ufrag":
				if iceParams.UsernameFragment == "" {
					iceParams.UsernameFragment = a.Value
				}
			case "ice-pwd":
				if iceParams.Password == "" {
					iceParams.Password = a.Value
				}
			case "fingerprint":
				if parts := strings.SplitN(a.Value, " ", 2); len(parts) == 2 {
					dtlsParams.Fingerprints = append(dtlsParams.Fingerprints, DtlsFingerprint{Algorithm: parts[0], Value: parts[1]})
				}
			case "candidate":
				if c, ok := parseCandidateAttr(a.Value); ok {
					candidates = append(candidates, c)
				}
			}
		}
	}

	scanAttrs(sess.Attributes)
	for _, media := range sess.MediaDescriptions {
		scanAttrs(media.Attributes)
	}

	return iceParams, candidates, dtlsParams, nil
}

// parseCandidateAttr parses an ICE "candidate" SDP attribute value of the
// form "<foundation> <component> <protocol> <priority> <ip> <port> typ <type> ...".
func parseCandidateAttr(value string) (IceCandidate, bool) {
	fields := strings.Fields(value)
	if len(fields) < 8 {
		return IceCandidate{}, false
	}
	priority, err := strconv.ParseUint(fields[3], 10, 32)
	if err != nil {
		return IceCandidate{}, false
	}
	port, err := strconv.ParseUint(fields[5], 10, 16)
	if err != nil {
		return IceCandidate{}, false
	}
	return IceCandidate{
		Foundation: fields[0],
		Priority:   uint32(priority),
		IP:         fields[4],
		Protocol:   strings.ToLower(fields[2]),
		Port:       uint16(port),
		Type:       fields[7],
	}, true
}

// TransportRegistry maps transportId → WebRtcTransport, with close
// hooks that auto-unregister.
type TransportRegistry struct {
	mu         sync.RWMutex
	transports map[string]*WebRtcTransport
}

func newTransportRegistry() *TransportRegistry {
	return &TransportRegistry{transports: make(map[string]*WebRtcTransport)}
}

// Create builds a new WebRtcTransport on the given worker's API. It sets
// no SCTP stream or message-size limits and no initial outgoing bitrate.
func (tr *TransportRegistry) Create(ctx context.Context, roomID string, worker *MediaWorker, webrtcConfig webrtc.Configuration) (*WebRtcTransport, error) {
	cfg := webrtcConfig
	if len(worker.IceServers()) > 0 {
		cfg.ICEServers = worker.IceServers()
	}

	// SCTPNumStreams/SCTPMaxMessageSize are not passed to the PeerConnection;
	// the SCTP association and its data channels use pion's defaults.
	pc, err := worker.API().NewPeerConnection(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating peer connection on worker %d: %w", worker.Index(), err)
	}

	tctx, cancel := context.WithCancel(ctx)
	t := &WebRtcTransport{
		id:     xid.New().String(),
		roomID: roomID,
		pc:     pc,
		ctx:    tctx,
		cancel: cancel,
	}

	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		switch state {
		case webrtc.ICEConnectionStateFailed, webrtc.ICEConnectionStateClosed:
			_ = t.Close()
		}
	})

	tr.mu.Lock()
	tr.transports[t.id] = t
	tr.mu.Unlock()

	t.OnClose(func() {
		tr.mu.Lock()
		delete(tr.transports, t.id)
		tr.mu.Unlock()
	})

	return t, nil
}

// Get returns a transport by id.
func (tr *TransportRegistry) Get(id string) (*WebRtcTransport, bool) {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	t, ok := tr.transports[id]
	return t, ok
}

// CloseAll closes every transport currently registered.
func (tr *TransportRegistry) CloseAll() {
	tr.closeWhere(func(*WebRtcTransport) bool { return true })
}

// CloseRoom closes every transport created for roomID, used by
// closeMediaRoom's cascade.
func (tr *TransportRegistry) CloseRoom(roomID string) {
	tr.closeWhere(func(t *WebRtcTransport) bool { return t.roomID == roomID })
}

func (tr *TransportRegistry) closeWhere(match func(*WebRtcTransport) bool) {
	tr.mu.RLock()
	transports := make([]*WebRtcTransport, 0, len(tr.transports))
	for _, t := range tr.transports {
		if match(t) {
			transports = append(transports, t)
		}
	}
	tr.mu.RUnlock()

	for _, t := range transports {
		_ = t.Close()
	}
}

package sfu

import (
	"encoding/json"
	"strings"

	"github.com/pion/webrtc/v4"
)

// RouterCapabilities is the serialisable shape of a Router's advertised
// codec set, returned verbatim over the wire by GetMediaRouter/CreateMediaRoom
//.
type RouterCapabilities struct {
	Codecs []RouterCodec `json:"codecs"`
}

// RouterCodec describes one codec a Router can forward.
type RouterCodec struct {
	Kind        string `json:"kind"`
	MimeType    string `json:"mimeType"`
	ClockRate   uint32 `json:"clockRate"`
	Channels    uint16 `json:"channels,omitempty"`
	SDPFmtpLine string `json:"parameters,omitempty"`
	PayloadType uint8  `json:"preferredPayloadType"`
}

// Router is a per-room RTP-capability descriptor bound to exactly one
// MediaWorker. Pion's
// webrtc.API has no router concept of its own, so this is the wrapper
// that gives every room a stable capability snapshot to hand clients.
type Router struct {
	id       string
	workerID int
	caps     RouterCapabilities
	closed   bool
}

func newRouter(id string, workerIndex int) *Router {
	return &Router{
		id:       id,
		workerID: workerIndex,
		caps: RouterCapabilities{Codecs: []RouterCodec{
			{Kind: "audio", MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2, SDPFmtpLine: "minptime=10;useinbandfec=1", PayloadType: 111},
			{Kind: "video", MimeType: webrtc.MimeTypeVP8, ClockRate: 90000, PayloadType: 96},
			{Kind: "video", MimeType: webrtc.MimeTypeVP9, ClockRate: 90000, SDPFmtpLine: "profile-id=0", PayloadType: 98},
			{Kind: "video", MimeType: webrtc.MimeTypeH264, ClockRate: 90000, SDPFmtpLine: "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42e01f", PayloadType: 102},
			{Kind: "video", MimeType: webrtc.MimeTypeH264, ClockRate: 90000, SDPFmtpLine: "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42001f", PayloadType: 103},
		}},
	}
}

// ID returns the router's identifier.
func (r *Router) ID() string { return r.id }

// Capabilities returns the router's advertised RTP capabilities.
func (r *Router) Capabilities() RouterCapabilities { return r.caps }

// consumerCapabilities is the subset of a caller-supplied rtpCapabilities
// blob CanConsume inspects; everything else stays opaque.
type consumerCapabilities struct {
	Codecs []struct {
		MimeType string `json:"mimeType"`
	} `json:"codecs"`
}

// CanConsume verifies the caller's rtpCapabilities against the router's
// advertised codec set for a producer of the given kind. Empty or missing
// capabilities fall back to the router's own, which trivially intersect;
// otherwise at least one named mimeType must match a router codec of that
// kind. Full parameter negotiation is left to the WebRTC transport layer —
// the router's job here is admission, not SDP negotiation.
func (r *Router) CanConsume(kind string, rtpCapabilities RawJSON) bool {
	var caps consumerCapabilities
	if len(rtpCapabilities) > 0 {
		if err := json.Unmarshal(rtpCapabilities, &caps); err != nil {
			return false
		}
	}
	if len(caps.Codecs) == 0 {
		for _, c := range r.caps.Codecs {
			if c.Kind == kind {
				return true
			}
		}
		return false
	}
	for _, cc := range caps.Codecs {
		for _, rc := range r.caps.Codecs {
			if rc.Kind == kind && strings.EqualFold(rc.MimeType, cc.MimeType) {
				return true
			}
		}
	}
	return false
}

func (r *Router) close() { r.closed = true }

// Closed reports whether the router has been closed.
func (r *Router) Closed() bool { return r.closed }

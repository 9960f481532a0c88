package sfu

import "testing"

func TestCanConsumeFallbackToRouterCapabilities(t *testing.T) {
	r := newRouter("router_R", 0)

	for _, caps := range []RawJSON{nil, RawJSON(`{}`), RawJSON(`{"codecs":[]}`)} {
		if !r.CanConsume("audio", caps) {
			t.Errorf("CanConsume(audio, %s) = false, want fallback to router capabilities", caps)
		}
		if !r.CanConsume("video", caps) {
			t.Errorf("CanConsume(video, %s) = false, want fallback to router capabilities", caps)
		}
	}
}

func TestCanConsumeMimeTypeIntersection(t *testing.T) {
	r := newRouter("router_R", 0)

	opus := RawJSON(`{"codecs":[{"mimeType":"audio/opus","clockRate":48000}]}`)
	if !r.CanConsume("audio", opus) {
		t.Error("opus capabilities rejected for an audio producer")
	}
	if r.CanConsume("video", opus) {
		t.Error("opus capabilities accepted for a video producer")
	}

	mixedCase := RawJSON(`{"codecs":[{"mimeType":"Audio/OPUS"}]}`)
	if !r.CanConsume("audio", mixedCase) {
		t.Error("mimeType match should be case-insensitive")
	}

	vp8 := RawJSON(`{"codecs":[{"mimeType":"video/VP8","clockRate":90000}]}`)
	if !r.CanConsume("video", vp8) {
		t.Error("VP8 capabilities rejected for a video producer")
	}
	if r.CanConsume("audio", vp8) {
		t.Error("VP8 capabilities accepted for an audio producer")
	}
}

func TestCanConsumeMalformedCapabilities(t *testing.T) {
	r := newRouter("router_R", 0)
	if r.CanConsume("audio", RawJSON(`{"codecs":`)) {
		t.Error("malformed capabilities accepted")
	}
}

package sfu

import "testing"

func TestConnectIdempotent(t *testing.T) {
	tr := &WebRtcTransport{id: "t1"}

	already, err := tr.Connect(nil)
	if err != nil {
		t.Fatalf("first Connect: %v", err)
	}
	if already {
		t.Fatal("first Connect reported already-connected")
	}

	for i := 0; i < 3; i++ {
		already, err = tr.Connect(nil)
		if err != nil {
			t.Fatalf("Connect #%d: %v", i, err)
		}
		if !already {
			t.Fatalf("Connect #%d did not report already-connected", i)
		}
	}
	if !tr.Connected() {
		t.Error("transport not marked connected")
	}
}

func TestConnectClosedTransport(t *testing.T) {
	tr := &WebRtcTransport{id: "t1", closed: true}
	if _, err := tr.Connect(nil); err == nil {
		t.Fatal("expected error connecting a closed transport")
	}
}

func TestParseCandidateAttr(t *testing.T) {
	c, ok := parseCandidateAttr("842163049 1 udp 1677729535 192.0.2.10 61665 typ srflx raddr 0.0.0.0 rport 0")
	if !ok {
		t.Fatal("parseCandidateAttr failed")
	}
	if c.Foundation != "842163049" {
		t.Errorf("foundation %q", c.Foundation)
	}
	if c.Protocol != "udp" {
		t.Errorf("protocol %q", c.Protocol)
	}
	if c.Priority != 1677729535 {
		t.Errorf("priority %d", c.Priority)
	}
	if c.IP != "192.0.2.10" || c.Port != 61665 {
		t.Errorf("tuple %s:%d", c.IP, c.Port)
	}
	if c.Type != "srflx" {
		t.Errorf("type %q", c.Type)
	}
}

func TestParseCandidateAttrMalformed(t *testing.T) {
	for _, v := range []string{
		"",
		"too short",
		"f 1 udp notanumber 192.0.2.10 61665 typ host",
		"f 1 udp 100 192.0.2.10 notaport typ host",
	} {
		if _, ok := parseCandidateAttr(v); ok {
			t.Errorf("parseCandidateAttr(%q) unexpectedly succeeded", v)
		}
	}
}

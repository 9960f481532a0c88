package cabin

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/pion/rtp"
)

func testPacket(ssrc uint32) *rtp.Packet {
	return &rtp.Packet{
		Header:  rtp.Header{Version: 2, PayloadType: 100, SequenceNumber: 1, SSRC: ssrc},
		Payload: []byte{0x01, 0x02, 0x03},
	}
}

func TestComediaLearnsRemoteTuple(t *testing.T) {
	pt, err := NewComedia(context.Background(), "127.0.0.1", 0)
	if err != nil {
		t.Fatalf("NewComedia: %v", err)
	}
	defer pt.Close()

	if pt.RemoteConnected() {
		t.Fatal("comedia transport reports remote before any packet")
	}
	if err := pt.WritePacket(testPacket(1)); err == nil {
		t.Fatal("expected write error before the remote tuple is learned")
	}

	got := make(chan *rtp.Packet, 1)
	go pt.ReadLoop(func(p *rtp.Packet) {
		select {
		case got <- p:
		default:
		}
	})

	client, err := net.DialUDP("udp", nil, &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: pt.LocalPort()})
	if err != nil {
		t.Fatalf("dialing transport: %v", err)
	}
	defer client.Close()

	data, _ := testPacket(12345).Marshal()
	if _, err := client.Write(data); err != nil {
		t.Fatalf("sending packet: %v", err)
	}

	select {
	case p := <-got:
		if p.SSRC != 12345 {
			t.Errorf("got SSRC %d, want 12345", p.SSRC)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for packet")
	}

	if !pt.RemoteConnected() {
		t.Fatal("remote tuple not learned from inbound packet")
	}
	if err := pt.WritePacket(testPacket(2)); err != nil {
		t.Errorf("write after tuple learned: %v", err)
	}
}

func TestDirectWrite(t *testing.T) {
	server, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	if err != nil {
		t.Fatalf("listening: %v", err)
	}
	defer server.Close()

	pt, err := NewDirect(context.Background(), "127.0.0.1", server.LocalAddr().(*net.UDPAddr).Port)
	if err != nil {
		t.Fatalf("NewDirect: %v", err)
	}
	defer pt.Close()

	if !pt.RemoteConnected() {
		t.Fatal("direct transport should know its remote immediately")
	}
	if err := pt.WritePacket(testPacket(777)); err != nil {
		t.Fatalf("WritePacket: %v", err)
	}

	_ = server.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1500)
	n, _, err := server.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("reading: %v", err)
	}

	pkt := &rtp.Packet{}
	if err := pkt.Unmarshal(buf[:n]); err != nil {
		t.Fatalf("unmarshalling: %v", err)
	}
	if pkt.SSRC != 777 {
		t.Errorf("got SSRC %d, want 777", pkt.SSRC)
	}
}

func TestPlainTransportCloseIdempotent(t *testing.T) {
	pt, err := NewComedia(context.Background(), "127.0.0.1", 0)
	if err != nil {
		t.Fatalf("NewComedia: %v", err)
	}
	if err := pt.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := pt.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

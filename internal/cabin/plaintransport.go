// Package cabin implements the bidirectional translation-cabin subsystem
//: it bridges a target participant's WebRTC audio to and from a
// Plain-RTP translation pipeline run by an external audio service.
package cabin

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
)

// PacketHandler receives one decoded RTP packet read off a PlainTransport.
type PacketHandler func(pkt *rtp.Packet)

// PlainTransport is a raw-UDP RTP/RTCP endpoint with rtcpMux. pion/webrtc
// has no equivalent type — mediasoup's PlainTransport talks directly to
// non-WebRTC endpoints — so it is a buffered blocking read loop feeding a
// handler, cancelled via context.
type PlainTransport struct {
	conn    *net.UDPConn
	comedia bool

	mu         sync.Mutex
	remoteAddr *net.UDPAddr
	closed     bool

	ctx    context.Context
	cancel context.CancelFunc
}

// NewComedia opens a PlainTransport listening on localPort that learns its
// remote RTP tuple from the first inbound packet.
// Used for the cabin's receiveTransport, which the audio service connects
// to from behind its own NAT.
func NewComedia(ctx context.Context, listenIP string, localPort int) (*PlainTransport, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP(listenIP), Port: localPort})
	if err != nil {
		return nil, fmt.Errorf("listening on %s:%d: %w", listenIP, localPort, err)
	}
	return newTransport(ctx, conn, true), nil
}

// NewDirect opens a PlainTransport dialed to a fixed remote address
// (comedia=false). Used for the cabin's sendTransport, which connects to
// the audio service's well-known ingress port.
func NewDirect(ctx context.Context, remoteHost string, remotePort int) (*PlainTransport, error) {
	raddr := &net.UDPAddr{IP: net.ParseIP(remoteHost), Port: remotePort}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("dialing %s:%d: %w", remoteHost, remotePort, err)
	}
	t := newTransport(ctx, conn, false)
	t.remoteAddr = raddr
	return t, nil
}

func newTransport(ctx context.Context, conn *net.UDPConn, comedia bool) *PlainTransport {
	tctx, cancel := context.WithCancel(ctx)
	return &PlainTransport{conn: conn, comedia: comedia, ctx: tctx, cancel: cancel}
}

// LocalPort returns the UDP port this transport is bound to.
func (t *PlainTransport) LocalPort() int {
	return t.conn.LocalAddr().(*net.UDPAddr).Port
}

// RemoteConnected reports whether the remote tuple is known — always true
// for a non-comedia transport, true for a comedia transport only after its
// first inbound packet.
func (t *PlainTransport) RemoteConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remoteAddr != nil
}

// ReadLoop blocks reading RTP packets off the socket and invoking handler
// for each, until the transport closes. For a comedia transport, the first
// received packet's source address becomes the learned remote tuple.
func (t *PlainTransport) ReadLoop(handler PacketHandler) {
	buf := make([]byte, 1500)
	for {
		select {
		case <-t.ctx.Done():
			return
		default:
		}

		n, addr, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-t.ctx.Done():
				return
			default:
				continue
			}
		}

		if t.comedia {
			t.mu.Lock()
			if t.remoteAddr == nil {
				t.remoteAddr = addr
			}
			t.mu.Unlock()
		}

		pkt := &rtp.Packet{}
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			continue
		}
		handler(pkt)
	}
}

// WritePacket marshals and sends pkt to the learned/configured remote
// tuple. Returns an error if the remote tuple is not yet known (comedia
// transport with no inbound packet observed yet).
func (t *PlainTransport) WritePacket(pkt *rtp.Packet) error {
	data, err := pkt.Marshal()
	if err != nil {
		return fmt.Errorf("marshalling rtp packet: %w", err)
	}

	if t.comedia {
		t.mu.Lock()
		addr := t.remoteAddr
		t.mu.Unlock()
		if addr == nil {
			return fmt.Errorf("plain transport: remote tuple not yet learned")
		}
		_, err = t.conn.WriteToUDP(data, addr)
		return err
	}

	_, err = t.conn.Write(data)
	return err
}

// WriteRTCP sends an RTCP packet (e.g. a PLI) to the remote tuple.
func (t *PlainTransport) WriteRTCP(pkts []rtcp.Packet) error {
	data, err := rtcp.Marshal(pkts)
	if err != nil {
		return fmt.Errorf("marshalling rtcp packet: %w", err)
	}
	if t.comedia {
		t.mu.Lock()
		addr := t.remoteAddr
		t.mu.Unlock()
		if addr == nil {
			return fmt.Errorf("plain transport: remote tuple not yet learned")
		}
		_, err = t.conn.WriteToUDP(data, addr)
		return err
	}
	_, err = t.conn.Write(data)
	return err
}

// Close stops the read loop and releases the socket.
func (t *PlainTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	t.cancel()
	return t.conn.Close()
}

package transport

import (
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"claj/server/internal/packet"
	"claj/server/internal/stream"
)

// Conn is one live transport endpoint: a TCP connection plus, once the
// peer registers, a UDP return address on the shared port.
type Conn struct {
	id  int32
	srv *Server
	tcp net.Conn
	ip  string

	writeMu sync.Mutex

	udpAddr  atomic.Pointer[net.UDPAddr]
	lastRecv atomic.Int64 // unix nanos of the last inbound frame
	closed   atomic.Bool

	// arb is the ownership slot for the logical connection record layered
	// on top of this endpoint.
	arb atomic.Value

	// streams reassembles this peer's chunked packets. Only the read
	// loops touch it.
	streams *stream.Receiver
}

// ID returns the process-unique connection id.
func (c *Conn) ID() int32 { return c.id }

// Address returns the remote IP without port.
func (c *Conn) Address() string { return c.ip }

// IsConnected reports whether the endpoint is still open.
func (c *Conn) IsConnected() bool { return !c.closed.Load() }

// SetArbitrary stores the logical connection record for this endpoint.
func (c *Conn) SetArbitrary(v any) { c.arb.Store(v) }

// Arbitrary returns the stored logical connection record, or nil.
func (c *Conn) Arbitrary() any { return c.arb.Load() }

// IdleSince returns how long ago the last inbound frame arrived.
func (c *Conn) IdleSince(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, c.lastRecv.Load()))
}

func (c *Conn) touch() { c.lastRecv.Store(time.Now().UnixNano()) }

// frameBody renders the on-wire body for one outbound packet.
func frameBody(p packet.Packet) []byte {
	switch v := p.(type) {
	case *packet.Raw:
		return v.Data
	case *packet.LegacyText:
		return append([]byte{packet.LegacyMarker}, v.Text...)
	default:
		return packet.Marshal(p)
	}
}

// Send transmits one packet. Reliable sends go over TCP in order;
// unreliable sends use UDP when the peer has registered a return address
// and silently fall back to TCP until then.
func (c *Conn) Send(p packet.Packet, reliable bool) error {
	if c.closed.Load() {
		return net.ErrClosed
	}
	body := frameBody(p)
	if !reliable {
		if addr := c.udpAddr.Load(); addr != nil {
			_, err := c.srv.udp.WriteToUDP(body, addr)
			// Unreliable means unreliable: drop on error, never kill
			// the connection over a lost datagram.
			_ = err
			return nil
		}
	}
	if len(body) > maxFrameSize {
		return fmt.Errorf("frame of %d bytes exceeds limit", len(body))
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(body)))
	_ = c.tcp.SetWriteDeadline(time.Now().Add(writeTimeout))
	if _, err := c.tcp.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := c.tcp.Write(body)
	return err
}

// Close tears the endpoint down, sending the reason best-effort first.
// Idempotent; the disconnect callback fires exactly once.
func (c *Conn) Close(reason packet.CloseReason) {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	c.writeMu.Lock()
	body := frameBody(&packet.Disconnect{Reason: reason})
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(body)))
	_ = c.tcp.SetWriteDeadline(time.Now().Add(writeTimeout))
	_, _ = c.tcp.Write(append(lenBuf[:], body...))
	_ = c.tcp.Close()
	c.writeMu.Unlock()

	c.srv.forget(c)
	c.srv.handler.Disconnected(c, reason)
}

// closeFromRead is the read-loop path for peer-initiated closure: the
// socket is already dead, so skip the farewell frame.
func (c *Conn) closeFromRead(reason packet.CloseReason) {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	_ = c.tcp.Close()
	c.srv.forget(c)
	c.srv.handler.Disconnected(c, reason)
}

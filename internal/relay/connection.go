package relay

import (
	"log/slog"
	"sync/atomic"

	"golang.org/x/time/rate"

	"claj/server/internal/packet"
	"claj/server/internal/stream"
)

// Endpoint is the transport-side surface of one peer. transport.Conn
// satisfies it; tests substitute in-memory fakes.
type Endpoint interface {
	ID() int32
	Address() string
	IsConnected() bool
	Send(p packet.Packet, reliable bool) error
	Close(reason packet.CloseReason)
}

// packetGate is a spam limiter built for one limit value; it is rebuilt
// when the operator changes the limit.
type packetGate struct {
	limit int
	lim   *rate.Limiter
}

// Connection is the relay's view of one peer. Relay state attached to it
// (room membership, host flag) is owned by the loop; the spam gate and
// host flag are also read by the network goroutines.
type Connection struct {
	ep  Endpoint
	sid string

	host atomic.Bool
	gate atomic.Pointer[packetGate]
}

func newConnection(ep Endpoint) *Connection {
	return &Connection{ep: ep, sid: packet.EncodeConnID(ep.ID())}
}

// ID returns the transport connection id.
func (c *Connection) ID() int32 { return c.ep.ID() }

// SID is the short printable id used in logs and the console.
func (c *Connection) SID() string { return c.sid }

// Address returns the remote IP.
func (c *Connection) Address() string { return c.ep.Address() }

// IsConnected reports whether the transport link is still open.
func (c *Connection) IsConnected() bool { return c.ep.IsConnected() }

// IsHost reports whether this peer currently hosts a room. Readable from
// any goroutine.
func (c *Connection) IsHost() bool { return c.host.Load() }

func (c *Connection) setHost(v bool) { c.host.Store(v) }

// Send forwards one packet; transport errors close the peer.
func (c *Connection) Send(p packet.Packet, reliable bool) error {
	err := c.ep.Send(p, reliable)
	if err != nil {
		slog.Debug("send failed, closing peer", "con", c.sid, "err", err)
		c.Close(packet.CloseError)
	}
	return err
}

// SendStream delivers one packet as a head-plus-chunks stream.
func (c *Connection) SendStream(p packet.Packet) error {
	return stream.Send(c, p)
}

// Close tears down the transport link with a farewell reason. Safe to
// call more than once.
func (c *Connection) Close(reason packet.CloseReason) {
	c.ep.Close(reason)
}

// allowPacket applies the per-connection spam budget: limit packets per
// three-second window, zero meaning unlimited. Hosts are exempted by the
// caller.
func (c *Connection) allowPacket(limit int) bool {
	if limit <= 0 {
		return true
	}
	g := c.gate.Load()
	if g == nil || g.limit != limit {
		g = &packetGate{limit: limit, lim: rate.NewLimiter(rate.Limit(float64(limit)/3.0), limit)}
		c.gate.Store(g)
	}
	return g.lim.Allow()
}

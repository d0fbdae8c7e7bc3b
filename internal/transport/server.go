// Package transport serves the relay's wire: TCP for reliable ordered
// frames and UDP for best-effort datagrams, both on the same port. Frames
// are decoded into control packets or opaque game payloads and handed to a
// Handler; the transport itself never interprets game traffic.
package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"claj/server/internal/packet"
	"claj/server/internal/stream"
)

const (
	// maxFrameSize bounds one TCP frame body; larger payloads go through
	// the stream layer.
	maxFrameSize = 32768

	writeTimeout = 5 * time.Second

	// DefaultIdleInterval is how long a connection must stay silent
	// before the Idle callback fires.
	DefaultIdleInterval = 15 * time.Second
)

// Handler receives transport events. Connected, Received and Idle run on
// transport goroutines; implementations post to their own loop for any
// state mutation. Returning false from Connected rejects the peer.
type Handler interface {
	Connected(c *Conn) bool
	Disconnected(c *Conn, reason packet.CloseReason)
	Received(c *Conn, p packet.Packet, reliable bool)
	Idle(c *Conn)
}

// Server owns the listening sockets and the connection table.
type Server struct {
	handler      Handler
	idleInterval time.Duration

	tcp *net.TCPListener
	udp *net.UDPConn

	mu     sync.RWMutex
	conns  map[int32]*Conn
	byUDP  map[string]*Conn
	nextID atomic.Int32

	// discovery is the cached reply to UDP discovery probes.
	discovery []byte

	closed atomic.Bool
	wg     sync.WaitGroup
}

// NewServer builds a transport bound to handler; discovery is the fixed
// buffer answered to UDP discovery probes.
func NewServer(handler Handler, discovery []byte, idleInterval time.Duration) *Server {
	if idleInterval <= 0 {
		idleInterval = DefaultIdleInterval
	}
	return &Server{
		handler:      handler,
		idleInterval: idleInterval,
		conns:        make(map[int32]*Conn),
		byUDP:        make(map[string]*Conn),
		discovery:    discovery,
	}
}

// Bind opens the TCP listener and UDP socket on port. Both sockets share
// one port: with port 0 the UDP socket follows the ephemeral TCP port.
func (s *Server) Bind(port int) error {
	tcp, err := net.ListenTCP("tcp", &net.TCPAddr{Port: port})
	if err != nil {
		return fmt.Errorf("bind tcp port %d: %w", port, err)
	}
	port = tcp.Addr().(*net.TCPAddr).Port
	udp, err := net.ListenUDP("udp", &net.UDPAddr{Port: port})
	if err != nil {
		_ = tcp.Close()
		return fmt.Errorf("bind udp port %d: %w", port, err)
	}
	s.tcp, s.udp = tcp, udp
	return nil
}

// Port returns the bound TCP port.
func (s *Server) Port() int {
	return s.tcp.Addr().(*net.TCPAddr).Port
}

// Run serves until Stop. Must be called after Bind.
func (s *Server) Run() {
	s.wg.Add(2)
	go s.acceptLoop()
	go s.udpLoop()
	go s.idleLoop()
	s.wg.Wait()
}

// Stop closes the sockets and every live connection.
func (s *Server) Stop() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	_ = s.tcp.Close()
	_ = s.udp.Close()

	s.mu.RLock()
	conns := make([]*Conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.RUnlock()
	for _, c := range conns {
		c.Close(packet.CloseServerClosed)
	}
}

// Connections returns a snapshot of the live connection count.
func (s *Server) Connections() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		sock, err := s.tcp.AcceptTCP()
		if err != nil {
			if s.closed.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			slog.Warn("accept failed", "err", err)
			continue
		}
		_ = sock.SetNoDelay(true)

		c := &Conn{
			id:      s.nextID.Add(1),
			srv:     s,
			tcp:     sock,
			ip:      remoteIP(sock),
			streams: stream.NewReceiver(),
		}
		c.touch()

		if !s.handler.Connected(c) {
			c.closed.Store(true)
			_ = sock.Close()
			continue
		}
		s.mu.Lock()
		s.conns[c.id] = c
		s.mu.Unlock()

		go s.readLoop(c)
	}
}

func (s *Server) readLoop(c *Conn) {
	var lenBuf [2]byte
	for {
		if _, err := io.ReadFull(c.tcp, lenBuf[:]); err != nil {
			c.closeFromRead(packet.CloseClosed)
			return
		}
		n := int(binary.BigEndian.Uint16(lenBuf[:]))
		if n == 0 {
			c.closeFromRead(packet.CloseError)
			return
		}
		body := make([]byte, n)
		if _, err := io.ReadFull(c.tcp, body); err != nil {
			c.closeFromRead(packet.CloseClosed)
			return
		}
		c.touch()
		if !s.dispatch(c, body, true) {
			return
		}
	}
}

// dispatch decodes one frame body and routes it. Returns false when the
// connection was closed on a protocol error.
func (s *Server) dispatch(c *Conn, body []byte, reliable bool) bool {
	p, err := packet.Unmarshal(body)
	if err != nil {
		slog.Warn("malformed frame", "conn", packet.EncodeConnID(c.id), "err", err)
		c.Close(packet.CloseError)
		return false
	}

	switch v := p.(type) {
	case *packet.Disconnect:
		c.closeFromRead(v.Reason)
		return false
	case *packet.StreamHead:
		if !reliable {
			return true
		}
		c.streams.Head(v)
	case *packet.StreamChunk:
		if !reliable {
			return true
		}
		full, err := c.streams.Chunk(v)
		if err != nil {
			slog.Warn("broken stream", "conn", packet.EncodeConnID(c.id), "err", err)
			c.Close(packet.CloseError)
			return false
		}
		if full != nil {
			s.handler.Received(c, full, reliable)
		}
	default:
		s.handler.Received(c, p, reliable)
	}
	return true
}

func (s *Server) udpLoop() {
	defer s.wg.Done()
	buf := make([]byte, 65536)
	for {
		n, addr, err := s.udp.ReadFromUDP(buf)
		if err != nil {
			if s.closed.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			continue
		}
		if n == 0 {
			continue
		}
		body := make([]byte, n)
		copy(body, buf[:n])

		// Discovery probes come from unregistered peers.
		if n == 2 && body[0] == packet.Magic && body[1] == packet.DiscoveryMagic {
			_, _ = s.udp.WriteToUDP(s.discovery, addr)
			continue
		}

		s.mu.RLock()
		c := s.byUDP[addr.String()]
		s.mu.RUnlock()

		if c == nil {
			s.tryRegisterUDP(body, addr)
			continue
		}
		if !c.IsConnected() {
			continue
		}
		c.touch()
		s.dispatch(c, body, false)
	}
}

// tryRegisterUDP binds a UDP return address to its TCP connection when the
// datagram is a valid registration frame; anything else from an unknown
// address is dropped.
func (s *Server) tryRegisterUDP(body []byte, addr *net.UDPAddr) {
	p, err := packet.Unmarshal(body)
	if err != nil {
		return
	}
	reg, ok := p.(*packet.UDPRegister)
	if !ok {
		return
	}
	s.mu.Lock()
	c := s.conns[reg.ConID]
	if c != nil && c.ip == addr.IP.String() {
		c.udpAddr.Store(addr)
		s.byUDP[addr.String()] = c
	} else {
		c = nil
	}
	s.mu.Unlock()
	if c != nil {
		// Ack so the client knows datagrams will be routed.
		_, _ = s.udp.WriteToUDP(body, addr)
		c.touch()
	}
}

func (s *Server) idleLoop() {
	ticker := time.NewTicker(s.idleInterval / 3)
	defer ticker.Stop()
	for range ticker.C {
		if s.closed.Load() {
			return
		}
		now := time.Now()
		s.mu.RLock()
		idle := make([]*Conn, 0, 4)
		for _, c := range s.conns {
			if c.IdleSince(now) >= s.idleInterval {
				idle = append(idle, c)
			}
		}
		s.mu.RUnlock()
		for _, c := range idle {
			s.handler.Idle(c)
		}
	}
}

func (s *Server) forget(c *Conn) {
	s.mu.Lock()
	delete(s.conns, c.id)
	if addr := c.udpAddr.Load(); addr != nil {
		delete(s.byUDP, addr.String())
	}
	s.mu.Unlock()
	c.streams.Reset()
}

func remoteIP(conn net.Conn) string {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return conn.RemoteAddr().String()
	}
	return host
}

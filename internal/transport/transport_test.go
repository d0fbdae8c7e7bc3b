package transport

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	"claj/server/internal/packet"
)

type received struct {
	conn     *Conn
	p        packet.Packet
	reliable bool
}

// recordingHandler funnels transport events into channels so tests can
// wait on them with deadlines.
type recordingHandler struct {
	accept    bool
	connected chan *Conn
	dropped   chan packet.CloseReason
	packets   chan received
	idle      chan *Conn
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{
		accept:    true,
		connected: make(chan *Conn, 4),
		dropped:   make(chan packet.CloseReason, 4),
		packets:   make(chan received, 16),
		idle:      make(chan *Conn, 4),
	}
}

func (h *recordingHandler) Connected(c *Conn) bool {
	h.connected <- c
	return h.accept
}
func (h *recordingHandler) Disconnected(c *Conn, reason packet.CloseReason) {
	h.dropped <- reason
}
func (h *recordingHandler) Received(c *Conn, p packet.Packet, reliable bool) {
	h.packets <- received{conn: c, p: p, reliable: reliable}
}
func (h *recordingHandler) Idle(c *Conn) {
	h.idle <- c
}

func startServer(t *testing.T, h Handler, discovery []byte) *Server {
	t.Helper()
	s := NewServer(h, discovery, time.Minute)
	if err := s.Bind(0); err != nil {
		t.Fatalf("bind: %v", err)
	}
	go s.Run()
	t.Cleanup(s.Stop)
	return s
}

func dialTCP(t *testing.T, s *Server) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", s.Port()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func writeFrame(t *testing.T, conn net.Conn, body []byte) {
	t.Helper()
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(body)))
	if _, err := conn.Write(append(lenBuf[:], body...)); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

func readFrame(t *testing.T, conn net.Conn) []byte {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var lenBuf [2]byte
	if _, err := io.ReadFull(conn, lenBuf[:]); err != nil {
		t.Fatalf("read frame length: %v", err)
	}
	body := make([]byte, binary.BigEndian.Uint16(lenBuf[:]))
	if _, err := io.ReadFull(conn, body); err != nil {
		t.Fatalf("read frame body: %v", err)
	}
	return body
}

func waitPacket(t *testing.T, h *recordingHandler) received {
	t.Helper()
	select {
	case r := <-h.packets:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a packet")
		return received{}
	}
}

func waitConn(t *testing.T, h *recordingHandler) *Conn {
	t.Helper()
	select {
	case c := <-h.connected:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the connection")
		return nil
	}
}

func TestControlFrameBothDirections(t *testing.T) {
	h := newRecordingHandler()
	s := startServer(t, h, nil)
	client := dialTCP(t, s)
	sc := waitConn(t, h)

	writeFrame(t, client, packet.Marshal(&packet.RoomListRequest{Type: "game"}))
	got := waitPacket(t, h)
	req, ok := got.p.(*packet.RoomListRequest)
	if !ok || req.Type != "game" || !got.reliable {
		t.Fatalf("bad inbound packet: %+v", got)
	}

	if err := sc.Send(&packet.RoomJoinAccepted{RoomID: 7}, true); err != nil {
		t.Fatalf("send: %v", err)
	}
	reply, err := packet.Unmarshal(readFrame(t, client))
	if err != nil {
		t.Fatalf("unmarshal reply: %v", err)
	}
	acc, ok := reply.(*packet.RoomJoinAccepted)
	if !ok || acc.RoomID != 7 {
		t.Fatalf("bad reply: %+v", reply)
	}
}

func TestNonMagicFrameIsRawPayload(t *testing.T) {
	h := newRecordingHandler()
	s := startServer(t, h, nil)
	client := dialTCP(t, s)
	waitConn(t, h)

	payload := []byte{0x10, 0x20, 0x30}
	writeFrame(t, client, payload)
	got := waitPacket(t, h)
	raw, ok := got.p.(*packet.Raw)
	if !ok || !bytes.Equal(raw.Data, payload) {
		t.Fatalf("bad raw payload: %+v", got.p)
	}
}

func TestRejectedConnectionNeverReads(t *testing.T) {
	h := newRecordingHandler()
	h.accept = false
	s := startServer(t, h, nil)
	client := dialTCP(t, s)
	waitConn(t, h)

	// The server closed its side; writes eventually fail and no packet
	// ever reaches the handler.
	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	if _, err := client.Read(buf); err == nil {
		t.Fatal("expected the rejected socket to be closed")
	}
	select {
	case p := <-h.packets:
		t.Fatalf("rejected connection delivered a packet: %+v", p)
	default:
	}
}

func TestPeerDisconnectFrameCarriesReason(t *testing.T) {
	h := newRecordingHandler()
	s := startServer(t, h, nil)
	client := dialTCP(t, s)
	waitConn(t, h)

	writeFrame(t, client, packet.Marshal(&packet.Disconnect{Reason: packet.CloseClosed}))
	select {
	case reason := <-h.dropped:
		if reason != packet.CloseClosed {
			t.Fatalf("reason %v, want closed", reason)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("disconnect not reported")
	}
}

func TestDiscoveryProbe(t *testing.T) {
	h := newRecordingHandler()
	discovery := []byte{packet.Magic, 0, 0, 0, 3}
	s := startServer(t, h, discovery)

	conn, err := net.Dial("udp", fmt.Sprintf("127.0.0.1:%d", s.Port()))
	if err != nil {
		t.Fatalf("dial udp: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte{packet.Magic, packet.DiscoveryMagic}); err != nil {
		t.Fatalf("send probe: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 16)
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("read reply: %v", err)
	}
	if !bytes.Equal(buf[:n], discovery) {
		t.Fatalf("reply %v, want %v", buf[:n], discovery)
	}
}

func TestUDPRegistrationAndDatagrams(t *testing.T) {
	h := newRecordingHandler()
	s := startServer(t, h, nil)
	_ = dialTCP(t, s)
	sc := waitConn(t, h)

	udp, err := net.Dial("udp", fmt.Sprintf("127.0.0.1:%d", s.Port()))
	if err != nil {
		t.Fatalf("dial udp: %v", err)
	}
	defer udp.Close()

	// Register the return address; the server echoes the frame as an ack.
	reg := packet.Marshal(&packet.UDPRegister{ConID: sc.ID()})
	if _, err := udp.Write(reg); err != nil {
		t.Fatalf("send registration: %v", err)
	}
	_ = udp.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 64)
	n, err := udp.Read(buf)
	if err != nil {
		t.Fatalf("read ack: %v", err)
	}
	if !bytes.Equal(buf[:n], reg) {
		t.Fatalf("ack %v, want echo of %v", buf[:n], reg)
	}

	// Inbound datagrams are now routed to the connection, unreliable.
	payload := []byte{0xAB, 0xCD}
	if _, err := udp.Write(payload); err != nil {
		t.Fatalf("send datagram: %v", err)
	}
	got := waitPacket(t, h)
	raw, ok := got.p.(*packet.Raw)
	if !ok || !bytes.Equal(raw.Data, payload) || got.reliable {
		t.Fatalf("bad datagram delivery: %+v", got)
	}

	// Outbound unreliable sends use the registered address.
	if err := sc.Send(&packet.Raw{Data: []byte{0x42}}, false); err != nil {
		t.Fatalf("send unreliable: %v", err)
	}
	_ = udp.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err = udp.Read(buf)
	if err != nil {
		t.Fatalf("read datagram: %v", err)
	}
	if n != 1 || buf[0] != 0x42 {
		t.Fatalf("datagram %v, want [42]", buf[:n])
	}
}

func TestUnknownUDPSourceDropped(t *testing.T) {
	h := newRecordingHandler()
	s := startServer(t, h, nil)

	udp, err := net.Dial("udp", fmt.Sprintf("127.0.0.1:%d", s.Port()))
	if err != nil {
		t.Fatalf("dial udp: %v", err)
	}
	defer udp.Close()
	if _, err := udp.Write([]byte{0x01, 0x02, 0x03}); err != nil {
		t.Fatalf("send: %v", err)
	}

	select {
	case p := <-h.packets:
		t.Fatalf("unregistered datagram delivered: %+v", p)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestStreamedPacketReassembledFromFrames(t *testing.T) {
	h := newRecordingHandler()
	s := startServer(t, h, nil)
	client := dialTCP(t, s)
	waitConn(t, h)

	state := bytes.Repeat([]byte{0x5A}, 6000)
	body := packet.MarshalBody(&packet.RoomState{State: state})
	writeFrame(t, client, packet.Marshal(&packet.StreamHead{
		StreamID: 1,
		Total:    int32(len(body)),
		Type:     (&packet.RoomState{}).ID(),
	}))
	for off := 0; off < len(body); off += 2048 {
		end := min(off+2048, len(body))
		writeFrame(t, client, packet.Marshal(&packet.StreamChunk{
			StreamID: 1,
			Last:     end == len(body),
			Data:     body[off:end],
		}))
	}

	got := waitPacket(t, h)
	st, ok := got.p.(*packet.RoomState)
	if !ok || !bytes.Equal(st.State, state) {
		t.Fatalf("reassembly failed: %T", got.p)
	}
}

func TestMalformedControlFrameClosesConnection(t *testing.T) {
	h := newRecordingHandler()
	s := startServer(t, h, nil)
	client := dialTCP(t, s)
	waitConn(t, h)

	// Magic with an unregistered packet id.
	writeFrame(t, client, []byte{packet.Magic, 0xFF})
	select {
	case reason := <-h.dropped:
		if reason != packet.CloseError {
			t.Fatalf("reason %v, want error", reason)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("malformed frame did not close the connection")
	}
}

package packet

import (
	"errors"
	"fmt"
)

// Wire constants shared by both relay and clients.
const (
	// Magic is the first byte of every control frame. Game frameworks
	// carried through the relay must not emit frames starting with it.
	Magic byte = 0xC7

	// LegacyMarker opens frames from the pre-rewrite string protocol.
	// Connections speaking it are rejected as obsolete.
	LegacyMarker byte = 0x01

	// DiscoveryMagic identifies the relay in the UDP discovery reply.
	DiscoveryMagic byte = 0xCA

	// MaxStateSize caps a room's raw state snapshot.
	MaxStateSize = 16 * 1024

	// SplitStateSize is the threshold above which a RoomInfo or RoomList
	// body is sent through the stream layer instead of a single frame.
	SplitStateSize = 4 * 1024

	// DefaultChunkSize is the stream-chunk payload size.
	DefaultChunkSize = 2048
)

// Packet ids. The zero id is reserved so a truncated frame never decodes.
const (
	idServerInfo byte = iota + 1
	idDisconnect
	idRoomCreationRequest
	idRoomLink
	idRoomClosureRequest
	idRoomClosed
	idRoomJoin
	idRoomJoinRequest
	idRoomJoinAccepted
	idRoomJoinDenied
	idRoomConfig
	idRoomState
	idRoomStateRequest
	idRoomInfoRequest
	idRoomInfo
	idRoomInfoDenied
	idRoomListRequest
	idRoomList
	idRoomMessage
	idRoomTextMessage
	idConnectionJoin
	idConnectionClosed
	idConnectionIdling
	idConnectionPacketWrap
	idStreamHead
	idStreamChunk
	idUDPRegister
)

// Packet is one typed control message.
type Packet interface {
	ID() byte
	Encode(w *Writer)
	Decode(r *Reader)
}

var registry [256]func() Packet

func register(id byte, f func() Packet) {
	if registry[id] != nil {
		panic(fmt.Sprintf("packet: id %d registered twice", id))
	}
	registry[id] = f
}

// ErrUnknownID is returned when decoding a control frame whose packet id
// has no registered type.
var ErrUnknownID = errors.New("unknown packet id")

// New returns a zero packet for the given id, or ErrUnknownID.
func New(id byte) (Packet, error) {
	f := registry[id]
	if f == nil {
		return nil, fmt.Errorf("%w: %d", ErrUnknownID, id)
	}
	return f(), nil
}

// Marshal encodes a full control frame body: magic, id, fields.
func Marshal(p Packet) []byte {
	w := NewWriter(64)
	w.Byte(Magic)
	w.Byte(p.ID())
	p.Encode(w)
	return w.Bytes()
}

// MarshalBody encodes only the packet fields, as carried inside a stream.
func MarshalBody(p Packet) []byte {
	w := NewWriter(64)
	p.Encode(w)
	return w.Bytes()
}

// UnmarshalBody decodes packet fields for a known id, as produced by
// MarshalBody.
func UnmarshalBody(id byte, body []byte) (Packet, error) {
	p, err := New(id)
	if err != nil {
		return nil, err
	}
	r := NewReader(body)
	p.Decode(r)
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("decode packet %d: %w", id, err)
	}
	return p, nil
}

// Unmarshal decodes one inbound frame body. Frames that do not start with
// the control magic are returned as *Raw game payloads. Legacy string
// frames decode to *LegacyText so the relay can kick the obsolete client
// with a readable notice.
func Unmarshal(body []byte) (Packet, error) {
	if len(body) == 0 {
		return nil, ErrTruncated
	}
	if body[0] == LegacyMarker {
		return &LegacyText{Text: string(body[1:])}, nil
	}
	if body[0] != Magic {
		return &Raw{Data: body}, nil
	}
	if len(body) < 2 {
		return nil, ErrTruncated
	}
	return UnmarshalBody(body[1], body[2:])
}

// LegacyText is a frame from the deprecated string-based protocol. Not a
// registered control packet; senders of it are rejected as obsolete.
type LegacyText struct {
	Text string
}

func (*LegacyText) ID() byte { panic("packet: LegacyText has no control id") }
func (p *LegacyText) Encode(w *Writer) {
	w.Byte(LegacyMarker)
	w.Raw([]byte(p.Text))
}
func (p *LegacyText) Decode(r *Reader) { p.Text = string(r.Rest()) }

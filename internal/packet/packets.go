package packet

// Raw is an opaque game payload relayed verbatim. It is not a registered
// control packet: the transport emits it for any frame that does not start
// with the control magic, and sends it back as a bare frame body.
type Raw struct {
	Data []byte
}

func (*Raw) ID() byte          { panic("packet: Raw has no control id") }
func (p *Raw) Encode(w *Writer) { w.Raw(p.Data) }
func (p *Raw) Decode(r *Reader) { p.Data = r.Rest() }

// ServerInfo answers a version probe over TCP.
type ServerInfo struct {
	Version int32
}

func (*ServerInfo) ID() byte          { return idServerInfo }
func (p *ServerInfo) Encode(w *Writer) { w.Int32(p.Version) }
func (p *ServerInfo) Decode(r *Reader) { p.Version = r.Int32() }

// Disconnect carries the close reason to the peer just before the socket
// drops. Best-effort.
type Disconnect struct {
	Reason CloseReason
}

func (*Disconnect) ID() byte          { return idDisconnect }
func (p *Disconnect) Encode(w *Writer) { w.Byte(byte(p.Reason)) }
func (p *Disconnect) Decode(r *Reader) { p.Reason = CloseReason(r.Byte()) }

// RoomCreationRequest asks the relay to mint a room for the sender.
type RoomCreationRequest struct {
	Version int32
	Type    GameType
}

func (*RoomCreationRequest) ID() byte { return idRoomCreationRequest }
func (p *RoomCreationRequest) Encode(w *Writer) {
	w.Int32(p.Version)
	writeGameType(w, p.Type)
}
func (p *RoomCreationRequest) Decode(r *Reader) {
	p.Version = r.Int32()
	p.Type = readGameType(r)
}

// RoomLink tells the new host its room id.
type RoomLink struct {
	RoomID uint64
}

func (*RoomLink) ID() byte          { return idRoomLink }
func (p *RoomLink) Encode(w *Writer) { w.Uint64(p.RoomID) }
func (p *RoomLink) Decode(r *Reader) { p.RoomID = r.Uint64() }

// RoomClosureRequest asks the relay to close the sender's room.
type RoomClosureRequest struct{}

func (*RoomClosureRequest) ID() byte        { return idRoomClosureRequest }
func (*RoomClosureRequest) Encode(*Writer)  {}
func (*RoomClosureRequest) Decode(*Reader)  {}

// RoomClosed notifies the host that its room is gone.
type RoomClosed struct {
	Reason CloseReason
}

func (*RoomClosed) ID() byte          { return idRoomClosed }
func (p *RoomClosed) Encode(w *Writer) { w.Byte(byte(p.Reason)) }
func (p *RoomClosed) Decode(r *Reader) { p.Reason = CloseReason(r.Byte()) }

// RoomJoin commits a join; the sender becomes a client of the room.
type RoomJoin struct {
	RoomID       uint64
	Type         GameType
	WithPassword bool
	Password     uint16
}

func (*RoomJoin) ID() byte { return idRoomJoin }
func (p *RoomJoin) Encode(w *Writer) {
	w.Uint64(p.RoomID)
	writeGameType(w, p.Type)
	w.Bool(p.WithPassword)
	w.Uint16(p.Password)
}
func (p *RoomJoin) Decode(r *Reader) {
	p.RoomID = r.Uint64()
	p.Type = readGameType(r)
	p.WithPassword = r.Bool()
	p.Password = r.Uint16()
}

// RoomJoinRequest probes whether a join would succeed, without joining.
type RoomJoinRequest struct {
	RoomID       uint64
	Type         GameType
	WithPassword bool
	Password     uint16
}

func (*RoomJoinRequest) ID() byte { return idRoomJoinRequest }
func (p *RoomJoinRequest) Encode(w *Writer) {
	w.Uint64(p.RoomID)
	writeGameType(w, p.Type)
	w.Bool(p.WithPassword)
	w.Uint16(p.Password)
}
func (p *RoomJoinRequest) Decode(r *Reader) {
	p.RoomID = r.Uint64()
	p.Type = readGameType(r)
	p.WithPassword = r.Bool()
	p.Password = r.Uint16()
}

// RoomJoinAccepted answers a successful RoomJoinRequest.
type RoomJoinAccepted struct {
	RoomID uint64
}

func (*RoomJoinAccepted) ID() byte          { return idRoomJoinAccepted }
func (p *RoomJoinAccepted) Encode(w *Writer) { w.Uint64(p.RoomID) }
func (p *RoomJoinAccepted) Decode(r *Reader) { p.RoomID = r.Uint64() }

// RoomJoinDenied answers a rejected RoomJoinRequest.
type RoomJoinDenied struct {
	RoomID uint64
	Reason RejectReason
}

func (*RoomJoinDenied) ID() byte { return idRoomJoinDenied }
func (p *RoomJoinDenied) Encode(w *Writer) {
	w.Uint64(p.RoomID)
	w.Byte(byte(p.Reason))
}
func (p *RoomJoinDenied) Decode(r *Reader) {
	p.RoomID = r.Uint64()
	p.Reason = RejectReason(r.Byte())
}

// RoomConfig sets a room's visibility and protection. Host-only.
type RoomConfig struct {
	IsPublic     bool
	IsProtected  bool
	Password     uint16
	RequestState bool
}

func (*RoomConfig) ID() byte { return idRoomConfig }
func (p *RoomConfig) Encode(w *Writer) {
	w.Bool(p.IsPublic)
	w.Bool(p.IsProtected)
	w.Uint16(p.Password)
	w.Bool(p.RequestState)
}
func (p *RoomConfig) Decode(r *Reader) {
	p.IsPublic = r.Bool()
	p.IsProtected = r.Bool()
	p.Password = r.Uint16()
	p.RequestState = r.Bool()
}

// RoomState carries the host-provided opaque room snapshot. Host-only.
type RoomState struct {
	State []byte
}

func (*RoomState) ID() byte          { return idRoomState }
func (p *RoomState) Encode(w *Writer) { w.Blob(p.State) }
func (p *RoomState) Decode(r *Reader) { p.State = r.Blob() }

// RoomStateRequest asks the host for a fresh state snapshot.
type RoomStateRequest struct{}

func (*RoomStateRequest) ID() byte       { return idRoomStateRequest }
func (*RoomStateRequest) Encode(*Writer) {}
func (*RoomStateRequest) Decode(*Reader) {}

// RoomInfoRequest asks the relay for one room's info.
type RoomInfoRequest struct {
	RoomID uint64
}

func (*RoomInfoRequest) ID() byte          { return idRoomInfoRequest }
func (p *RoomInfoRequest) Encode(w *Writer) { w.Uint64(p.RoomID) }
func (p *RoomInfoRequest) Decode(r *Reader) { p.RoomID = r.Uint64() }

// RoomInfo is the relay's answer to RoomInfoRequest. State is nil when the
// room is not public.
type RoomInfo struct {
	RoomID      uint64
	IsProtected bool
	Type        GameType
	State       []byte
}

func (*RoomInfo) ID() byte { return idRoomInfo }
func (p *RoomInfo) Encode(w *Writer) {
	w.Uint64(p.RoomID)
	w.Bool(p.IsProtected)
	writeGameType(w, p.Type)
	w.Blob(p.State)
}
func (p *RoomInfo) Decode(r *Reader) {
	p.RoomID = r.Uint64()
	p.IsProtected = r.Bool()
	p.Type = readGameType(r)
	p.State = r.Blob()
}

// RoomInfoDenied answers a rate-limited or unresolvable info request.
// Deliberately indistinguishable from "room not found".
type RoomInfoDenied struct{}

func (*RoomInfoDenied) ID() byte       { return idRoomInfoDenied }
func (*RoomInfoDenied) Encode(*Writer) {}
func (*RoomInfoDenied) Decode(*Reader) {}

// RoomListRequest asks for the cached list of public rooms of one type.
type RoomListRequest struct {
	Type GameType
}

func (*RoomListRequest) ID() byte          { return idRoomListRequest }
func (p *RoomListRequest) Encode(w *Writer) { writeGameType(w, p.Type) }
func (p *RoomListRequest) Decode(r *Reader) { p.Type = readGameType(r) }

// RoomList maps room ids to their raw states, plus the subset of ids that
// require a password.
type RoomList struct {
	States         map[uint64][]byte
	ProtectedRooms map[uint64]struct{}
}

func (*RoomList) ID() byte { return idRoomList }
func (p *RoomList) Encode(w *Writer) {
	w.Int32(int32(len(p.States)))
	for id, state := range p.States {
		w.Uint64(id)
		w.Blob(state)
	}
	w.Int32(int32(len(p.ProtectedRooms)))
	for id := range p.ProtectedRooms {
		w.Uint64(id)
	}
}
func (p *RoomList) Decode(r *Reader) {
	n := int(r.Int32())
	if r.Err() != nil || n < 0 {
		return
	}
	p.States = make(map[uint64][]byte, n)
	for i := 0; i < n && r.Err() == nil; i++ {
		id := r.Uint64()
		p.States[id] = r.Blob()
	}
	n = int(r.Int32())
	if r.Err() != nil || n < 0 {
		return
	}
	p.ProtectedRooms = make(map[uint64]struct{}, n)
	for i := 0; i < n && r.Err() == nil; i++ {
		p.ProtectedRooms[r.Uint64()] = struct{}{}
	}
}

// RoomMessage is a short host-bound notice the host client translates.
type RoomMessage struct {
	Message MessageType
}

func (*RoomMessage) ID() byte          { return idRoomMessage }
func (p *RoomMessage) Encode(w *Writer) { w.Byte(byte(p.Message)) }
func (p *RoomMessage) Decode(r *Reader) { p.Message = MessageType(r.Byte()) }

// RoomTextMessage is a free-form text broadcast to a room; the host
// redistributes it to its clients.
type RoomTextMessage struct {
	Text string
}

func (*RoomTextMessage) ID() byte          { return idRoomTextMessage }
func (p *RoomTextMessage) Encode(w *Writer) { w.String(p.Text) }
func (p *RoomTextMessage) Decode(r *Reader) { p.Text = r.String() }

// ConnectionJoin tells the host a new client is attached to its room.
type ConnectionJoin struct {
	ConID       int32
	AddressHash uint64
}

func (*ConnectionJoin) ID() byte { return idConnectionJoin }
func (p *ConnectionJoin) Encode(w *Writer) {
	w.Int32(p.ConID)
	w.Uint64(p.AddressHash)
}
func (p *ConnectionJoin) Decode(r *Reader) {
	p.ConID = r.Int32()
	p.AddressHash = r.Uint64()
}

// ConnectionClosed reports a client gone, in either direction: relay→host
// as a notification, host→relay as a kick order.
type ConnectionClosed struct {
	ConID  int32
	Reason CloseReason
}

func (*ConnectionClosed) ID() byte { return idConnectionClosed }
func (p *ConnectionClosed) Encode(w *Writer) {
	w.Int32(p.ConID)
	w.Byte(byte(p.Reason))
}
func (p *ConnectionClosed) Decode(r *Reader) {
	p.ConID = r.Int32()
	p.Reason = CloseReason(r.Byte())
}

// ConnectionIdling tells the host a client went quiet.
type ConnectionIdling struct {
	ConID int32
}

func (*ConnectionIdling) ID() byte          { return idConnectionIdling }
func (p *ConnectionIdling) Encode(w *Writer) { w.Int32(p.ConID) }
func (p *ConnectionIdling) Decode(r *Reader) { p.ConID = r.Int32() }

// ConnectionPacketWrap envelopes a game payload with its logical
// connection id and reliability class.
type ConnectionPacketWrap struct {
	ConID int32
	IsTCP bool
	Raw   []byte
}

func (*ConnectionPacketWrap) ID() byte { return idConnectionPacketWrap }
func (p *ConnectionPacketWrap) Encode(w *Writer) {
	w.Int32(p.ConID)
	w.Bool(p.IsTCP)
	w.Raw(p.Raw)
}
func (p *ConnectionPacketWrap) Decode(r *Reader) {
	p.ConID = r.Int32()
	p.IsTCP = r.Bool()
	p.Raw = r.Rest()
}

// StreamHead opens one logical stream: total wire bytes to follow, the
// payload packet id, and whether the payload bytes are zlib-compressed.
type StreamHead struct {
	StreamID   int32
	Total      int32
	Type       byte
	Compressed bool
}

func (*StreamHead) ID() byte { return idStreamHead }
func (p *StreamHead) Encode(w *Writer) {
	w.Int32(p.StreamID)
	w.Int32(p.Total)
	w.Byte(p.Type)
	w.Bool(p.Compressed)
}
func (p *StreamHead) Decode(r *Reader) {
	p.StreamID = r.Int32()
	p.Total = r.Int32()
	p.Type = r.Byte()
	p.Compressed = r.Bool()
}

// StreamChunk carries one slice of a stream's bytes.
type StreamChunk struct {
	StreamID int32
	Last     bool
	Data     []byte
}

func (*StreamChunk) ID() byte { return idStreamChunk }
func (p *StreamChunk) Encode(w *Writer) {
	w.Int32(p.StreamID)
	w.Bool(p.Last)
	w.Raw(p.Data)
}
func (p *StreamChunk) Decode(r *Reader) {
	p.StreamID = r.Int32()
	p.Last = r.Bool()
	p.Data = r.Rest()
}

// UDPRegister binds the sender's UDP address to its TCP connection. Sent
// once, as the first UDP datagram after connecting.
type UDPRegister struct {
	ConID int32
}

func (*UDPRegister) ID() byte          { return idUDPRegister }
func (p *UDPRegister) Encode(w *Writer) { w.Int32(p.ConID) }
func (p *UDPRegister) Decode(r *Reader) { p.ConID = r.Int32() }

func init() {
	register(idServerInfo, func() Packet { return &ServerInfo{} })
	register(idDisconnect, func() Packet { return &Disconnect{} })
	register(idRoomCreationRequest, func() Packet { return &RoomCreationRequest{} })
	register(idRoomLink, func() Packet { return &RoomLink{} })
	register(idRoomClosureRequest, func() Packet { return &RoomClosureRequest{} })
	register(idRoomClosed, func() Packet { return &RoomClosed{} })
	register(idRoomJoin, func() Packet { return &RoomJoin{} })
	register(idRoomJoinRequest, func() Packet { return &RoomJoinRequest{} })
	register(idRoomJoinAccepted, func() Packet { return &RoomJoinAccepted{} })
	register(idRoomJoinDenied, func() Packet { return &RoomJoinDenied{} })
	register(idRoomConfig, func() Packet { return &RoomConfig{} })
	register(idRoomState, func() Packet { return &RoomState{} })
	register(idRoomStateRequest, func() Packet { return &RoomStateRequest{} })
	register(idRoomInfoRequest, func() Packet { return &RoomInfoRequest{} })
	register(idRoomInfo, func() Packet { return &RoomInfo{} })
	register(idRoomInfoDenied, func() Packet { return &RoomInfoDenied{} })
	register(idRoomListRequest, func() Packet { return &RoomListRequest{} })
	register(idRoomList, func() Packet { return &RoomList{} })
	register(idRoomMessage, func() Packet { return &RoomMessage{} })
	register(idRoomTextMessage, func() Packet { return &RoomTextMessage{} })
	register(idConnectionJoin, func() Packet { return &ConnectionJoin{} })
	register(idConnectionClosed, func() Packet { return &ConnectionClosed{} })
	register(idConnectionIdling, func() Packet { return &ConnectionIdling{} })
	register(idConnectionPacketWrap, func() Packet { return &ConnectionPacketWrap{} })
	register(idStreamHead, func() Packet { return &StreamHead{} })
	register(idStreamChunk, func() Packet { return &StreamChunk{} })
	register(idUDPRegister, func() Packet { return &UDPRegister{} })
}

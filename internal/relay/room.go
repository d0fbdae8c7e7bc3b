package relay

import (
	"time"

	"claj/server/internal/config"
	"claj/server/internal/packet"
)

// Room is one hosted session: a host connection plus the clients whose
// traffic it relays. All fields are owned by the relay loop.
type Room struct {
	ID   uint64
	SID  string
	Type packet.GameType
	Host *Connection

	clients map[int32]*Connection
	cfg     *config.Config

	closed    bool
	createdAt time.Time

	isPublic        bool
	isProtected     bool
	password        uint16
	canRequestState bool

	requestingState    bool
	rawState           []byte
	lastReceivedState  time.Time
	lastRequestedState time.Time

	// Relayed game traffic, counted at the relay in both directions.
	packetsToHost   uint64
	packetsToClient uint64
	bytesToHost     uint64
	bytesToClient   uint64

	onClosed func(r *Room, reason packet.CloseReason)
}

func newRoom(id uint64, host *Connection, typ packet.GameType, cfg *config.Config, onClosed func(*Room, packet.CloseReason)) *Room {
	return &Room{
		ID:        id,
		SID:       packet.EncodeRoomID(id),
		Type:      typ,
		Host:      host,
		clients:   make(map[int32]*Connection),
		cfg:       cfg,
		createdAt: time.Now(),
		onClosed:  onClosed,
	}
}

// Create announces the fresh room to its host.
func (r *Room) Create() {
	r.Host.setHost(true)
	r.Host.Send(&packet.RoomLink{RoomID: r.ID}, true)
}

// IsHost reports whether c hosts this room.
func (r *Room) IsHost(c *Connection) bool { return r.Host == c }

// Contains reports whether id is the host or one of the clients.
func (r *Room) Contains(id int32) bool {
	if r.Host.ID() == id {
		return true
	}
	_, ok := r.clients[id]
	return ok
}

// ClientCount returns the number of attached clients.
func (r *Room) ClientCount() int { return len(r.clients) }

// Connected attaches a new client and announces it to the host with its
// salted address hash.
func (r *Room) Connected(c *Connection) {
	if r.closed {
		return
	}
	r.clients[c.ID()] = c
	r.Host.Send(&packet.ConnectionJoin{ConID: c.ID(), AddressHash: hashAddress(c.Address())}, true)
}

// Disconnected detaches a peer. A dying host collapses the whole room
// with the same reason; a dying client is reported to the host.
func (r *Room) Disconnected(c *Connection, reason packet.CloseReason) {
	if r.closed {
		return
	}
	if r.IsHost(c) {
		r.Close(reason)
		return
	}
	delete(r.clients, c.ID())
	if r.Host.IsConnected() {
		r.Host.Send(&packet.ConnectionClosed{ConID: c.ID(), Reason: reason}, true)
	}
}

// DisconnectedQuietly detaches a client without telling the host, used
// when the host itself ordered the kick.
func (r *Room) DisconnectedQuietly(c *Connection) {
	if r.closed {
		return
	}
	delete(r.clients, c.ID())
}

// Idle forwards a client's quiet period to the host. Host idling is the
// relay's own business and is never echoed back.
func (r *Room) Idle(c *Connection) {
	if r.closed || r.IsHost(c) || !r.Host.IsConnected() {
		return
	}
	r.Host.Send(&packet.ConnectionIdling{ConID: c.ID()}, true)
}

// ReceivedWrap unwraps a host payload and forwards it to the addressed
// client. A stale target is reported back once instead of forwarded.
func (r *Room) ReceivedWrap(w *packet.ConnectionPacketWrap) {
	if r.closed {
		return
	}
	target, ok := r.clients[w.ConID]
	if !ok || !target.IsConnected() {
		if r.Host.IsConnected() {
			r.Host.Send(&packet.ConnectionClosed{ConID: w.ConID, Reason: packet.CloseError}, true)
		}
		return
	}
	if target.Send(&packet.Raw{Data: w.Raw}, w.IsTCP) == nil {
		r.packetsToClient++
		r.bytesToClient += uint64(len(w.Raw))
		metricRelayedPackets.WithLabelValues("to_client").Inc()
		metricRelayedBytes.WithLabelValues("to_client").Add(float64(len(w.Raw)))
	}
}

// ReceivedRaw wraps a client payload and forwards it to the host with the
// sender's id and reliability class.
func (r *Room) ReceivedRaw(sender *Connection, raw *packet.Raw, reliable bool) {
	if r.closed {
		return
	}
	if _, ok := r.clients[sender.ID()]; !ok || !r.Host.IsConnected() {
		return
	}
	wrap := &packet.ConnectionPacketWrap{ConID: sender.ID(), IsTCP: reliable, Raw: raw.Data}
	if r.Host.Send(wrap, reliable) == nil {
		r.packetsToHost++
		r.bytesToHost += uint64(len(raw.Data))
		metricRelayedPackets.WithLabelValues("to_host").Inc()
		metricRelayedBytes.WithLabelValues("to_host").Add(float64(len(raw.Data)))
	}
}

// Notify sends a short coded notice to the host.
func (r *Room) Notify(msg packet.MessageType) {
	if r.closed || !r.Host.IsConnected() {
		return
	}
	r.Host.Send(&packet.RoomMessage{Message: msg}, true)
}

// Broadcast sends a text message to the host and every client.
func (r *Room) Broadcast(text string) {
	if r.closed {
		return
	}
	msg := &packet.RoomTextMessage{Text: text}
	if r.Host.IsConnected() {
		r.Host.Send(msg, true)
	}
	for _, c := range r.clients {
		if c.IsConnected() {
			c.Send(msg, true)
		}
	}
}

// Close tears the room down exactly once: the host learns the reason via
// RoomClosed, then every peer's transport drops with that same reason.
func (r *Room) Close(reason packet.CloseReason) {
	if r.closed {
		return
	}
	r.closed = true
	r.Host.setHost(false)

	if r.Host.IsConnected() {
		r.Host.Send(&packet.RoomClosed{Reason: reason}, true)
		r.Host.Close(packet.CloseClosed)
	}
	for _, c := range r.clients {
		if c.IsConnected() {
			c.Close(reason)
		}
	}

	// The callback still sees the final client set; the relay uses it to
	// settle its connection index in the same loop turn.
	if r.onClosed != nil {
		r.onClosed(r, reason)
	}
	clear(r.clients)
}

// Closed reports whether the room was already torn down.
func (r *Room) Closed() bool { return r.closed }

// SetConfiguration applies a host-sent visibility update.
func (r *Room) SetConfiguration(p *packet.RoomConfig) {
	r.isPublic = p.IsPublic
	r.isProtected = p.IsProtected
	r.password = p.Password
	r.canRequestState = p.RequestState
}

// CheckPassword validates a join attempt against the room's protection.
func (r *Room) CheckPassword(withPassword bool, password uint16) packet.RejectReason {
	if !r.isProtected {
		return 0
	}
	if !withPassword {
		return packet.RejectPasswordRequired
	}
	if password != r.password {
		return packet.RejectInvalidPassword
	}
	return 0
}

// SetState stores a fresh host snapshot and settles any in-flight request.
func (r *Room) SetState(state []byte) {
	r.rawState = state
	r.lastReceivedState = time.Now()
	r.requestingState = false
}

// StateOutdated reports whether the cached snapshot is too old to serve.
func (r *Room) StateOutdated(now time.Time) bool {
	return now.Sub(r.lastReceivedState) > r.cfg.StateLifetime()
}

// StateRequestTimedOut reports whether an in-flight request is stuck.
func (r *Room) StateRequestTimedOut(now time.Time) bool {
	return now.Sub(r.lastRequestedState) > r.cfg.StateTimeout()
}

// ShouldRequestState decides whether to poke the host for a snapshot:
// outdated cache, and either no request in flight or the last one stuck.
func (r *Room) ShouldRequestState(now time.Time) bool {
	if r.closed || !r.canRequestState || !r.Host.IsConnected() {
		return false
	}
	if !r.StateOutdated(now) {
		return false
	}
	return !r.requestingState || r.StateRequestTimedOut(now)
}

// RequestState asks the host for a snapshot and marks the request.
func (r *Room) RequestState(now time.Time) {
	r.requestingState = true
	r.lastRequestedState = now
	r.Host.Send(&packet.RoomStateRequest{}, true)
}

// RequestingState reports whether a snapshot request is in flight.
func (r *Room) RequestingState() bool { return r.requestingState }

// Public reports whether the room is listed and serves info.
func (r *Room) Public() bool { return r.isPublic }

// Protected reports whether joining requires a password.
func (r *Room) Protected() bool { return r.isProtected }

// State returns the cached raw snapshot.
func (r *Room) State() []byte { return r.rawState }

// Info builds this room's answer to an info request. Only public rooms
// expose their state snapshot.
func (r *Room) Info() *packet.RoomInfo {
	info := &packet.RoomInfo{
		RoomID:      r.ID,
		IsProtected: r.isProtected,
		Type:        r.Type,
	}
	if r.isPublic {
		info.State = r.rawState
	}
	return info
}

// Package relay implements the room service: hosts open rooms, clients
// join them, and the relay forwards opaque game traffic between the two
// while answering discovery, info and listing requests. All room state
// is confined to a single loop goroutine; the network side only posts.
package relay

import (
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"claj/server/internal/config"
	"claj/server/internal/packet"
	"claj/server/internal/transport"
)

// obsoleteNotice is sent as a legacy text frame so pre-protocol clients
// can still display it.
const obsoleteNotice = "Your client uses an obsolete protocol, please update it."

// deprecatedNotice warns hosts that still create untyped rooms.
const deprecatedNotice = "Hosting without a game type is deprecated and will stop working."

// Hooks are optional observer callbacks, fired on the relay loop.
type Hooks struct {
	PeerConnected    func(c *Connection)
	PeerDisconnected func(c *Connection, reason packet.CloseReason)
	RoomCreated      func(r *Room)
	RoomClosed       func(r *Room, reason packet.CloseReason)
	Closing          func()
}

// addressRater tracks the per-address request budgets: joins per minute,
// info and list requests per three seconds. Owned by the relay loop.
type addressRater struct {
	join, info, list *packetGate
	touched          time.Time
}

// allowGate checks one budget of limit events per window, rebuilding the
// limiter when the operator changed the limit. Zero disables the gate.
func allowGate(gp **packetGate, limit int, window time.Duration) bool {
	if limit <= 0 {
		return true
	}
	g := *gp
	if g == nil || g.limit != limit {
		g = &packetGate{limit: limit, lim: rate.NewLimiter(rate.Limit(float64(limit)/window.Seconds()), limit)}
		*gp = g
	}
	return g.lim.Allow()
}

type queuedPayload struct {
	raw      *packet.Raw
	reliable bool
}

const (
	// earlyQueueLen bounds payloads buffered for a peer not yet in a room.
	earlyQueueLen = 3
	// earlyQueuePeers bounds how many peers may hold such a buffer at once.
	earlyQueuePeers = 1024
	// raterLimit triggers pruning of stale per-address raters.
	raterLimit = 8192
)

// Relay is the room service. Its exported admin methods are safe from any
// goroutine; everything else runs on the loop.
type Relay struct {
	cfg     *config.Config
	loop    Scheduler
	version int32
	hooks   Hooks

	startedAt time.Time
	conns     atomic.Int64

	// Set once on the loop at shutdown, read by the ingress gate.
	closing atomic.Bool

	// Loop-owned state.
	rooms       map[uint64]*Room
	conToRoom   map[int32]*Room
	types       map[packet.GameType]map[uint64]*Room
	lists       map[packet.GameType]*listCache
	rates       map[string]*addressRater
	queues      map[int32][]queuedPayload
	pendingInfo map[uint64][]*Connection

	// Touched from network goroutines.
	idleMu       sync.Mutex
	notifiedIdle map[int32]struct{}
}

// New builds a relay serving protocol version on the given loop.
func New(cfg *config.Config, loop Scheduler, version int32, hooks Hooks) *Relay {
	return &Relay{
		cfg:          cfg,
		loop:         loop,
		version:      version,
		hooks:        hooks,
		startedAt:    time.Now(),
		rooms:        make(map[uint64]*Room),
		conToRoom:    make(map[int32]*Room),
		types:        make(map[packet.GameType]map[uint64]*Room),
		lists:        make(map[packet.GameType]*listCache),
		rates:        make(map[string]*addressRater),
		queues:       make(map[int32][]queuedPayload),
		pendingInfo:  make(map[uint64][]*Connection),
		notifiedIdle: make(map[int32]struct{}),
	}
}

// DiscoveryPayload is the fixed buffer the transport answers to UDP
// discovery probes: the protocol magic plus the server version.
func (r *Relay) DiscoveryPayload() []byte {
	w := packet.NewWriter(5)
	w.Byte(packet.Magic)
	w.Int32(r.version)
	return w.Bytes()
}

// Version returns the protocol version the relay serves.
func (r *Relay) Version() int32 { return r.version }

// ---- transport.Handler bridge (network goroutines) ----

// admit is the ingress gate: a closing or blacklisting relay takes no
// new peers.
func (r *Relay) admit(addr string) bool {
	if r.closing.Load() {
		slog.Debug("rejecting peer during shutdown", "addr", addr)
		return false
	}
	if r.cfg.IsBlacklisted(addr) {
		slog.Debug("rejecting blacklisted address", "addr", addr)
		return false
	}
	return true
}

// Connected admits or rejects a fresh transport connection.
func (r *Relay) Connected(tc *transport.Conn) bool {
	if !r.admit(tc.Address()) {
		return false
	}
	con := newConnection(tc)
	tc.SetArbitrary(con)
	r.conns.Add(1)
	metricConnectionsTotal.Inc()
	metricConnectionsActive.Inc()
	slog.Debug("peer connected", "con", con.SID(), "addr", con.Address())
	if r.hooks.PeerConnected != nil {
		r.loop.Post(func() { r.hooks.PeerConnected(con) })
	}
	return true
}

// Disconnected routes a transport closure to the loop.
func (r *Relay) Disconnected(tc *transport.Conn, reason packet.CloseReason) {
	con, _ := tc.Arbitrary().(*Connection)
	if con == nil {
		return
	}
	r.idleMu.Lock()
	delete(r.notifiedIdle, con.ID())
	r.idleMu.Unlock()
	r.conns.Add(-1)
	metricConnectionsActive.Dec()
	r.loop.Post(func() { r.onDisconnect(con, reason) })
}

// Received filters one inbound packet on the network side, then posts it
// to the loop. Hosts are exempt from the spam budget: relayed game
// traffic is their job.
func (r *Relay) Received(tc *transport.Conn, p packet.Packet, reliable bool) {
	con, _ := tc.Arbitrary().(*Connection)
	if con == nil {
		return
	}
	r.idleMu.Lock()
	delete(r.notifiedIdle, con.ID())
	r.idleMu.Unlock()

	if limit := r.cfg.SpamLimit(); !con.IsHost() && !con.allowPacket(limit) {
		metricRateLimited.Inc()
		r.loop.Post(func() { r.spamKick(con) })
		return
	}
	r.loop.Post(func() { r.handle(con, p, reliable) })
}

// Idle reports a quiet connection, at most once until it speaks again.
func (r *Relay) Idle(tc *transport.Conn) {
	con, _ := tc.Arbitrary().(*Connection)
	if con == nil {
		return
	}
	r.idleMu.Lock()
	if _, seen := r.notifiedIdle[con.ID()]; seen {
		r.idleMu.Unlock()
		return
	}
	r.notifiedIdle[con.ID()] = struct{}{}
	r.idleMu.Unlock()
	r.loop.Post(func() { r.onIdle(con) })
}

// ---- loop handlers ----

// spamKick drops a flooding client; the toast goes to its room's host,
// not to the peer being kicked.
func (r *Relay) spamKick(con *Connection) {
	if room := r.conToRoom[con.ID()]; room != nil {
		room.Notify(packet.MsgPacketSpamming)
	}
	con.Close(packet.CloseError)
}

func (r *Relay) handle(con *Connection, p packet.Packet, reliable bool) {
	if !con.IsConnected() {
		return
	}
	// A handler panic costs the offending connection, never the relay.
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("handler panic", "con", con.SID(), "panic", rec)
			con.Close(packet.CloseError)
		}
	}()
	switch v := p.(type) {
	case *packet.Raw:
		r.handleRaw(con, v, reliable)
	case *packet.ConnectionPacketWrap:
		r.handleWrap(con, v)
	case *packet.ServerInfo:
		con.Send(&packet.ServerInfo{Version: r.version}, true)
	case *packet.RoomCreationRequest:
		r.handleCreate(con, v)
	case *packet.RoomClosureRequest:
		r.handleClosureRequest(con)
	case *packet.RoomJoinRequest:
		r.handleJoin(con, v.RoomID, v.Type, v.WithPassword, v.Password, false)
	case *packet.RoomJoin:
		r.handleJoin(con, v.RoomID, v.Type, v.WithPassword, v.Password, true)
	case *packet.RoomConfig:
		r.handleConfig(con, v)
	case *packet.RoomState:
		r.handleState(con, v)
	case *packet.RoomInfoRequest:
		r.handleInfoRequest(con, v)
	case *packet.RoomListRequest:
		r.handleListRequest(con, v)
	case *packet.ConnectionClosed:
		r.handleKick(con, v)
	case *packet.RoomTextMessage:
		r.handleText(con, v)
	case *packet.LegacyText:
		r.rejectObsolete(con)
	case *packet.UDPRegister:
		// Registration is a transport concern; over TCP it is noise.
	default:
		slog.Debug("ignoring unexpected packet", "con", con.SID(), "packet", p.ID())
	}
}

func (r *Relay) handleRaw(con *Connection, raw *packet.Raw, reliable bool) {
	if room := r.conToRoom[con.ID()]; room != nil {
		room.ReceivedRaw(con, raw, reliable)
		return
	}
	// Game traffic can outrun the join commit; buffer a little of it.
	q, ok := r.queues[con.ID()]
	if !ok && len(r.queues) >= earlyQueuePeers {
		return
	}
	if len(q) >= earlyQueueLen {
		return
	}
	r.queues[con.ID()] = append(q, queuedPayload{raw: raw, reliable: reliable})
}

func (r *Relay) handleWrap(con *Connection, w *packet.ConnectionPacketWrap) {
	room := r.conToRoom[con.ID()]
	if room == nil || !room.IsHost(con) {
		return
	}
	room.ReceivedWrap(w)
}

func (r *Relay) handleCreate(con *Connection, v *packet.RoomCreationRequest) {
	if r.closing.Load() {
		con.Close(packet.CloseServerClosed)
		return
	}
	if v.Version < r.version {
		con.Close(packet.CloseOutdatedClient)
		return
	}
	if v.Version > r.version {
		con.Close(packet.CloseOutdatedServer)
		return
	}
	if !v.Type.Valid() {
		con.Close(packet.CloseError)
		return
	}
	if v.Type != "" && r.cfg.IsTypeBlacklisted(v.Type) {
		con.Close(packet.CloseBlacklisted)
		return
	}
	if r.conToRoom[con.ID()] != nil {
		con.Send(&packet.RoomMessage{Message: packet.MsgAlreadyHosting}, true)
		return
	}
	if v.Type == "" {
		if !r.cfg.AcceptNoType() {
			con.Close(packet.CloseOutdatedClient)
			return
		}
		if r.cfg.WarnDeprecated() {
			con.Send(&packet.RoomTextMessage{Text: deprecatedNotice}, true)
		}
	}

	room := newRoom(r.newRoomID(), con, v.Type, r.cfg, r.roomClosed)
	r.rooms[room.ID] = room
	r.conToRoom[con.ID()] = room
	if room.Type != "" {
		byType := r.types[room.Type]
		if byType == nil {
			byType = make(map[uint64]*Room)
			r.types[room.Type] = byType
		}
		byType[room.ID] = room
	}
	room.Create()

	metricRoomsCreated.Inc()
	metricRoomsActive.Inc()
	slog.Info("room created", "room", room.SID, "type", room.Type, "host", con.SID())
	if r.hooks.RoomCreated != nil {
		r.hooks.RoomCreated(room)
	}
}

func (r *Relay) handleClosureRequest(con *Connection) {
	room := r.conToRoom[con.ID()]
	if room == nil || !room.IsHost(con) {
		con.Send(&packet.RoomMessage{Message: packet.MsgRoomClosureDenied}, true)
		return
	}
	room.Close(packet.CloseClosed)
}

func (r *Relay) handleJoin(con *Connection, roomID uint64, typ packet.GameType, withPassword bool, password uint16, commit bool) {
	if cur := r.conToRoom[con.ID()]; cur != nil {
		if cur.IsHost(con) {
			con.Send(&packet.RoomMessage{Message: packet.MsgAlreadyHosting}, true)
			return
		}
		// Moving rooms: detach quietly first, the old host learns via a
		// regular closure notice.
		cur.Disconnected(con, packet.CloseClosed)
		delete(r.conToRoom, con.ID())
	}
	if r.closing.Load() {
		r.denyJoin(con, roomID, packet.RejectServerClosing)
		return
	}
	room := r.rooms[roomID]
	if room == nil || room.Closed() {
		r.denyJoin(con, roomID, packet.RejectRoomNotFound)
		return
	}
	rater := r.raterFor(con.Address())
	if !allowGate(&rater.join, r.cfg.JoinLimit(), time.Minute) {
		metricRateLimited.Inc()
		// Indistinguishable from a missing room on purpose.
		r.denyJoin(con, roomID, packet.RejectRoomNotFound)
		return
	}
	if typ != room.Type && !(typ == "" && r.cfg.AcceptNoType()) {
		r.denyJoin(con, roomID, packet.RejectIncompatible)
		return
	}
	if reason := room.CheckPassword(withPassword, password); reason != 0 {
		r.denyJoin(con, roomID, reason)
		return
	}

	if !commit {
		con.Send(&packet.RoomJoinAccepted{RoomID: roomID}, true)
		return
	}
	r.conToRoom[con.ID()] = room
	room.Connected(con)
	r.flushQueue(con, room)
	slog.Debug("client joined", "room", room.SID, "con", con.SID())
}

func (r *Relay) denyJoin(con *Connection, roomID uint64, reason packet.RejectReason) {
	metricJoinsDenied.WithLabelValues(reason.String()).Inc()
	con.Send(&packet.RoomJoinDenied{RoomID: roomID, Reason: reason}, true)
}

func (r *Relay) flushQueue(con *Connection, room *Room) {
	q, ok := r.queues[con.ID()]
	if !ok {
		return
	}
	delete(r.queues, con.ID())
	for _, p := range q {
		room.ReceivedRaw(con, p.raw, p.reliable)
	}
}

func (r *Relay) handleConfig(con *Connection, v *packet.RoomConfig) {
	room := r.conToRoom[con.ID()]
	if room == nil || !room.IsHost(con) {
		con.Send(&packet.RoomMessage{Message: packet.MsgConfigureDenied}, true)
		return
	}
	room.SetConfiguration(v)
	// Visibility may have flipped; the cached list is rebuilt on demand.
	r.invalidateList(room.Type)
}

func (r *Relay) handleState(con *Connection, v *packet.RoomState) {
	room := r.conToRoom[con.ID()]
	if room == nil || !room.IsHost(con) {
		con.Send(&packet.RoomMessage{Message: packet.MsgStatingDenied}, true)
		return
	}
	if len(v.State) > packet.MaxStateSize {
		con.Close(packet.CloseError)
		return
	}
	room.SetState(v.State)

	r.flushInfo(room)
	if lc := r.lists[room.Type]; lc != nil && lc.settle(room.ID) {
		r.finishListRefresh(lc)
	}
}

func (r *Relay) handleInfoRequest(con *Connection, v *packet.RoomInfoRequest) {
	rater := r.raterFor(con.Address())
	if !allowGate(&rater.info, r.cfg.InfoLimit(), 3*time.Second) {
		metricRateLimited.Inc()
		con.Send(&packet.RoomInfoDenied{}, true)
		return
	}
	room := r.rooms[v.RoomID]
	if room == nil || room.Closed() {
		con.Send(&packet.RoomInfoDenied{}, true)
		return
	}
	if !room.Public() {
		// The room's existence is public, its state is not.
		r.sendInfo(con, room)
		return
	}
	now := time.Now()
	switch {
	case room.ShouldRequestState(now):
		room.RequestState(now)
		r.pendingInfo[room.ID] = append(r.pendingInfo[room.ID], con)
		roomID := room.ID
		r.loop.Schedule(TaskKey{Kind: TaskStateWatchdog, Room: roomID}, r.cfg.StateTimeout(), func() {
			if stuck := r.rooms[roomID]; stuck != nil {
				r.flushInfo(stuck)
			}
		})
	case room.RequestingState():
		r.pendingInfo[room.ID] = append(r.pendingInfo[room.ID], con)
	default:
		r.sendInfo(con, room)
	}
}

func (r *Relay) sendInfo(con *Connection, room *Room) {
	info := room.Info()
	if len(info.State) > packet.SplitStateSize {
		_ = con.SendStream(info)
		return
	}
	con.Send(info, true)
}

// flushInfo answers every requester parked on this room, with whatever
// state is cached. Called on fresh state or on the request watchdog.
func (r *Relay) flushInfo(room *Room) {
	pending, ok := r.pendingInfo[room.ID]
	if !ok {
		return
	}
	delete(r.pendingInfo, room.ID)
	r.loop.Cancel(TaskKey{Kind: TaskStateWatchdog, Room: room.ID})
	for _, c := range pending {
		if c.IsConnected() {
			r.sendInfo(c, room)
		}
	}
}

func (r *Relay) handleListRequest(con *Connection, v *packet.RoomListRequest) {
	if !v.Type.Valid() {
		con.Close(packet.CloseError)
		return
	}
	lc := r.lists[v.Type]
	rater := r.raterFor(con.Address())
	if !allowGate(&rater.list, r.cfg.ListLimit(), 3*time.Second) {
		metricRateLimited.Inc()
		// Rate-limited peers get the cached list, however stale.
		if lc != nil {
			lc.send(con)
		} else {
			con.Send(emptyRoomList(), true)
		}
		return
	}
	if lc == nil {
		// No cache is minted for a type nobody hosts; arbitrary labels
		// must not grow the map.
		if len(r.types[v.Type]) == 0 {
			con.Send(emptyRoomList(), true)
			return
		}
		lc = newListCache(v.Type)
		r.lists[v.Type] = lc
	}
	now := time.Now()
	if !lc.outdated(now, r.cfg.ListLifetime()) {
		lc.send(con)
		return
	}
	if lc.updating() {
		lc.enqueue(con)
		return
	}

	// Start one refresh poll; everyone arriving meanwhile shares it.
	metricListRefreshes.Inc()
	for id, room := range r.types[v.Type] {
		if room.Public() && room.ShouldRequestState(now) {
			room.RequestState(now)
			lc.requesting[id] = struct{}{}
		}
	}
	if !lc.updating() {
		r.rebuildList(lc)
		lc.send(con)
		return
	}
	lc.enqueue(con)
	typ := v.Type
	r.loop.Schedule(TaskKey{Kind: TaskListWatchdog, Type: typ}, r.cfg.ListTimeout(), func() {
		if stuck := r.lists[typ]; stuck != nil && stuck.updating() {
			r.finishListRefresh(stuck)
		}
	})
}

func emptyRoomList() *packet.RoomList {
	return &packet.RoomList{
		States:         map[uint64][]byte{},
		ProtectedRooms: map[uint64]struct{}{},
	}
}

func (r *Relay) rebuildList(lc *listCache) {
	if err := lc.rebuild(r.types[lc.typ]); err != nil {
		slog.Error("list rebuild failed", "type", lc.typ, "err", err)
	}
}

func (r *Relay) finishListRefresh(lc *listCache) {
	r.loop.Cancel(TaskKey{Kind: TaskListWatchdog, Type: lc.typ})
	r.rebuildList(lc)
	lc.flush()
}

// invalidateList forces a rebuild on the next list request.
func (r *Relay) invalidateList(typ packet.GameType) {
	if lc := r.lists[typ]; lc != nil {
		lc.lastUpdate = time.Time{}
	}
}

func (r *Relay) handleKick(con *Connection, v *packet.ConnectionClosed) {
	room := r.conToRoom[con.ID()]
	if room == nil || !room.IsHost(con) {
		con.Send(&packet.RoomMessage{Message: packet.MsgConClosureDenied}, true)
		return
	}
	target := room.clients[v.ConID]
	if target == nil {
		con.Send(&packet.RoomMessage{Message: packet.MsgConClosureDenied}, true)
		return
	}
	room.DisconnectedQuietly(target)
	delete(r.conToRoom, target.ID())
	reason := v.Reason
	if reason != packet.CloseClosed && reason != packet.CloseError {
		reason = packet.CloseClosed
	}
	target.Close(reason)
}

func (r *Relay) handleText(con *Connection, v *packet.RoomTextMessage) {
	room := r.conToRoom[con.ID()]
	if room == nil || room.Closed() {
		return
	}
	if room.IsHost(con) {
		for _, c := range room.clients {
			if c.IsConnected() {
				c.Send(v, true)
			}
		}
		return
	}
	if room.Host.IsConnected() {
		room.Host.Send(v, true)
	}
}

func (r *Relay) rejectObsolete(con *Connection) {
	con.Send(&packet.LegacyText{Text: obsoleteNotice}, true)
	con.Close(packet.CloseObsoleteClient)
}

func (r *Relay) onIdle(con *Connection) {
	if room := r.conToRoom[con.ID()]; room != nil {
		room.Idle(con)
	}
}

func (r *Relay) onDisconnect(con *Connection, reason packet.CloseReason) {
	delete(r.queues, con.ID())
	room := r.conToRoom[con.ID()]
	delete(r.conToRoom, con.ID())
	if room != nil {
		room.Disconnected(con, reason)
	}
	slog.Debug("peer disconnected", "con", con.SID(), "reason", reason.String())
	if r.hooks.PeerDisconnected != nil {
		r.hooks.PeerDisconnected(con, reason)
	}
}

// roomClosed is the Room.Close callback: settle every index that still
// points at the room, in the same loop turn.
func (r *Relay) roomClosed(room *Room, reason packet.CloseReason) {
	delete(r.rooms, room.ID)
	delete(r.conToRoom, room.Host.ID())
	for id := range room.clients {
		delete(r.conToRoom, id)
		delete(r.queues, id)
	}
	if byType := r.types[room.Type]; byType != nil {
		delete(byType, room.ID)
		if len(byType) == 0 {
			delete(r.types, room.Type)
		}
	}

	// Pending info requesters get a denial rather than silence.
	if pending, ok := r.pendingInfo[room.ID]; ok {
		delete(r.pendingInfo, room.ID)
		r.loop.Cancel(TaskKey{Kind: TaskStateWatchdog, Room: room.ID})
		for _, c := range pending {
			if c.IsConnected() {
				c.Send(&packet.RoomInfoDenied{}, true)
			}
		}
	}
	if lc := r.lists[room.Type]; lc != nil {
		lc.lastUpdate = time.Time{}
		if lc.settle(room.ID) {
			r.finishListRefresh(lc)
		}
		// Last room of the type gone: flush anyone still parked, then
		// drop the cache entry with the type index.
		if len(r.types[room.Type]) == 0 {
			r.loop.Cancel(TaskKey{Kind: TaskListWatchdog, Type: room.Type})
			r.rebuildList(lc)
			lc.flush()
			delete(r.lists, room.Type)
		}
	}

	metricRoomsActive.Dec()
	slog.Info("room closed", "room", room.SID, "reason", reason.String(), "clients", len(room.clients))
	if r.hooks.RoomClosed != nil {
		r.hooks.RoomClosed(room, reason)
	}
}

func (r *Relay) raterFor(addr string) *addressRater {
	ar := r.rates[addr]
	if ar == nil {
		if len(r.rates) >= raterLimit {
			r.pruneRaters()
		}
		ar = &addressRater{}
		r.rates[addr] = ar
	}
	ar.touched = time.Now()
	return ar
}

func (r *Relay) pruneRaters() {
	cutoff := time.Now().Add(-10 * time.Minute)
	for addr, ar := range r.rates {
		if ar.touched.Before(cutoff) {
			delete(r.rates, addr)
		}
	}
}

func (r *Relay) newRoomID() uint64 {
	for {
		id := rand.Uint64()
		if id != 0 {
			if _, taken := r.rooms[id]; !taken {
				return id
			}
		}
	}
}

// Stop drains the relay: optionally warn rooms and wait the grace period,
// then close everything. Blocks until the cascade finished; the caller
// stops the transport and the loop afterwards.
func (r *Relay) Stop() {
	done := make(chan struct{})
	if !r.loop.Call(func() { r.beginShutdown(done) }) {
		return
	}
	<-done
}

func (r *Relay) beginShutdown(done chan struct{}) {
	if r.closing.Load() {
		close(done)
		return
	}
	r.closing.Store(true)
	if r.hooks.Closing != nil {
		r.hooks.Closing()
	}
	if !r.cfg.WarnClosing() || len(r.rooms) == 0 {
		r.finishShutdown(done)
		return
	}
	slog.Info("shutdown grace period", "rooms", len(r.rooms), "wait", r.cfg.CloseWait())
	for _, room := range r.rooms {
		room.Notify(packet.MsgServerClosing)
	}
	r.loop.Schedule(TaskKey{Kind: TaskCloseWait}, r.cfg.CloseWait(), func() {
		r.finishShutdown(done)
	})
}

func (r *Relay) finishShutdown(done chan struct{}) {
	for _, room := range r.rooms {
		room.Close(packet.CloseServerClosed)
	}
	for id, pending := range r.pendingInfo {
		delete(r.pendingInfo, id)
		for _, c := range pending {
			if c.IsConnected() {
				c.Send(&packet.RoomInfoDenied{}, true)
			}
		}
	}
	for _, lc := range r.lists {
		r.loop.Cancel(TaskKey{Kind: TaskListWatchdog, Type: lc.typ})
		lc.flush()
	}
	clear(r.queues)
	close(done)
}

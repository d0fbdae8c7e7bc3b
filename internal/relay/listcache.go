package relay

import (
	"time"

	"claj/server/internal/packet"
	"claj/server/internal/stream"
)

// listCache is the per-type cache of the public room list. A refresh
// polls every listed host for a fresh state; requesters that arrive
// while the poll is in flight pile up in pending and are all answered
// by the same rebuild. Owned by the relay loop.
type listCache struct {
	typ        packet.GameType
	prepared   *stream.Prepared
	count      int
	lastUpdate time.Time

	pending    []*Connection
	requesting map[uint64]struct{}
}

func newListCache(typ packet.GameType) *listCache {
	return &listCache{typ: typ, requesting: make(map[uint64]struct{})}
}

// outdated reports whether the cached list is too old to serve as is.
func (lc *listCache) outdated(now time.Time, lifetime time.Duration) bool {
	return now.Sub(lc.lastUpdate) > lifetime
}

// updating reports whether a refresh poll is in flight.
func (lc *listCache) updating() bool { return len(lc.requesting) > 0 }

// enqueue parks a requester until the running refresh completes.
func (lc *listCache) enqueue(c *Connection) {
	lc.pending = append(lc.pending, c)
}

// settle marks one polled room as answered; reports whether the poll is
// fully settled.
func (lc *listCache) settle(roomID uint64) bool {
	if _, ok := lc.requesting[roomID]; !ok {
		return false
	}
	delete(lc.requesting, roomID)
	return len(lc.requesting) == 0
}

// rebuild re-encodes the list from the given rooms and timestamps it.
// Closed and unlisted rooms are skipped.
func (lc *listCache) rebuild(rooms map[uint64]*Room) error {
	list := &packet.RoomList{
		States:         make(map[uint64][]byte),
		ProtectedRooms: make(map[uint64]struct{}),
	}
	for id, room := range rooms {
		if room.Closed() || !room.Public() {
			continue
		}
		list.States[id] = room.State()
		if room.Protected() {
			list.ProtectedRooms[id] = struct{}{}
		}
	}
	prep, err := stream.Prepare(list)
	if err != nil {
		return err
	}
	lc.prepared = prep
	lc.count = len(list.States)
	lc.lastUpdate = time.Now()
	return nil
}

// send delivers the cached list to one requester. Empty lists skip the
// stream machinery.
func (lc *listCache) send(c *Connection) {
	if lc.count == 0 || lc.prepared == nil {
		c.Send(&packet.RoomList{
			States:         map[uint64][]byte{},
			ProtectedRooms: map[uint64]struct{}{},
		}, true)
		return
	}
	_ = lc.prepared.SendTo(c)
}

// flush answers every parked requester with the current cached list.
func (lc *listCache) flush() {
	for _, c := range lc.pending {
		if c.IsConnected() {
			lc.send(c)
		}
	}
	lc.pending = nil
	clear(lc.requesting)
}

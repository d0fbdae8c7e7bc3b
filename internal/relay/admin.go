package relay

import (
	"errors"
	"sort"
	"time"

	"claj/server/internal/packet"
)

// ErrRoomNotFound is returned by admin lookups for an unknown room id.
var ErrRoomNotFound = errors.New("room not found")

// Status is a point-in-time view of the relay, for the console and the
// admin API.
type Status struct {
	Version     int32         `json:"version"`
	Uptime      time.Duration `json:"uptime"`
	Closing     bool          `json:"closing"`
	Connections int           `json:"connections"`
	Rooms       int           `json:"rooms"`
	Clients     int           `json:"clients"`
	GameTypes   int           `json:"gameTypes"`
}

// RoomSummary describes one open room.
type RoomSummary struct {
	SID             string    `json:"sid"`
	Type            string    `json:"type"`
	Public          bool      `json:"public"`
	Protected       bool      `json:"protected"`
	Clients         int       `json:"clients"`
	CreatedAt       time.Time `json:"createdAt"`
	PacketsToHost   uint64    `json:"packetsToHost"`
	PacketsToClient uint64    `json:"packetsToClient"`
	BytesToHost     uint64    `json:"bytesToHost"`
	BytesToClient   uint64    `json:"bytesToClient"`
}

// Status snapshots the relay. Safe from any goroutine.
func (r *Relay) Status() Status {
	var st Status
	r.loop.Call(func() {
		clients := 0
		for _, room := range r.rooms {
			clients += room.ClientCount()
		}
		st = Status{
			Version:     r.version,
			Uptime:      time.Since(r.startedAt),
			Closing:     r.closing.Load(),
			Connections: int(r.conns.Load()),
			Rooms:       len(r.rooms),
			Clients:     clients,
			GameTypes:   len(r.types),
		}
	})
	return st
}

// RoomSummaries lists every open room, newest first.
func (r *Relay) RoomSummaries() []RoomSummary {
	var out []RoomSummary
	r.loop.Call(func() {
		out = make([]RoomSummary, 0, len(r.rooms))
		for _, room := range r.rooms {
			out = append(out, RoomSummary{
				SID:             room.SID,
				Type:            string(room.Type),
				Public:          room.Public(),
				Protected:       room.Protected(),
				Clients:         room.ClientCount(),
				CreatedAt:       room.createdAt,
				PacketsToHost:   room.packetsToHost,
				PacketsToClient: room.packetsToClient,
				BytesToHost:     room.bytesToHost,
				BytesToClient:   room.bytesToClient,
			})
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// CloseRoom closes one room by its short id.
func (r *Relay) CloseRoom(sid string) error {
	id, err := packet.DecodeRoomID(sid)
	if err != nil {
		return ErrRoomNotFound
	}
	found := false
	r.loop.Call(func() {
		if room := r.rooms[id]; room != nil {
			found = true
			room.Close(packet.CloseClosed)
		}
	})
	if !found {
		return ErrRoomNotFound
	}
	return nil
}

// Broadcast sends a text message to every room; returns how many rooms
// were reached.
func (r *Relay) Broadcast(text string) int {
	n := 0
	r.loop.Call(func() {
		for _, room := range r.rooms {
			room.Broadcast(text)
			n++
		}
	})
	return n
}

// RefreshLists invalidates every cached room list so the next request
// rebuilds it.
func (r *Relay) RefreshLists() {
	r.loop.Call(func() {
		for _, lc := range r.lists {
			lc.lastUpdate = time.Time{}
		}
	})
}

// RefreshList invalidates one cached list, addressed either by a room's
// short id or by a game type label. Reports whether a cache matched.
func (r *Relay) RefreshList(label string) bool {
	found := false
	r.loop.Call(func() {
		typ := packet.GameType(label)
		if id, err := packet.DecodeRoomID(label); err == nil {
			if room := r.rooms[id]; room != nil {
				typ = room.Type
			}
		}
		if lc := r.lists[typ]; lc != nil {
			found = true
			lc.lastUpdate = time.Time{}
		}
	})
	return found
}

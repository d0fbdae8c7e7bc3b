package packet

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// LinkScheme prefixes shareable room links.
const LinkScheme = "claj://"

// EncodeRoomID returns the url-safe short form of a room id.
func EncodeRoomID(id uint64) string {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], id)
	return base64.RawURLEncoding.EncodeToString(b[:])
}

// DecodeRoomID parses the short form back into a room id.
func DecodeRoomID(sid string) (uint64, error) {
	b, err := base64.RawURLEncoding.DecodeString(sid)
	if err != nil {
		return 0, fmt.Errorf("decode room id %q: %w", sid, err)
	}
	if len(b) != 8 {
		return 0, fmt.Errorf("decode room id %q: want 8 bytes, got %d", sid, len(b))
	}
	return binary.BigEndian.Uint64(b), nil
}

// Link is a shareable pointer to a room on a relay.
type Link struct {
	Host   string
	Port   int
	RoomID uint64
}

// String formats the link as claj://host:port/sid.
func (l Link) String() string {
	return LinkScheme + net.JoinHostPort(l.Host, strconv.Itoa(l.Port)) + "/" + EncodeRoomID(l.RoomID)
}

// ParseLink parses a claj://host:port/sid link.
func ParseLink(s string) (Link, error) {
	raw := strings.TrimSpace(s)
	if !strings.HasPrefix(raw, LinkScheme) {
		return Link{}, fmt.Errorf("link %q: missing %s prefix", s, LinkScheme)
	}
	rest := raw[len(LinkScheme):]
	slash := strings.LastIndexByte(rest, '/')
	if slash < 0 {
		return Link{}, fmt.Errorf("link %q: missing room id", s)
	}
	hostport, sid := rest[:slash], rest[slash+1:]
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return Link{}, fmt.Errorf("link %q: %w", s, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return Link{}, fmt.Errorf("link %q: bad port %q", s, portStr)
	}
	id, err := DecodeRoomID(sid)
	if err != nil {
		return Link{}, err
	}
	return Link{Host: host, Port: port, RoomID: id}, nil
}

// EncodeConnID is the textual short form of a connection id, used in logs.
func EncodeConnID(id int32) string {
	return strconv.FormatUint(uint64(uint32(id)), 16)
}

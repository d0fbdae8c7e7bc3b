package packet

// CloseReason explains why a connection or room was closed.
type CloseReason byte

const (
	CloseClosed CloseReason = iota
	CloseError
	CloseServerClosed
	CloseOutdatedClient
	CloseOutdatedServer
	CloseObsoleteClient
	CloseBlacklisted
)

func (r CloseReason) String() string {
	switch r {
	case CloseClosed:
		return "closed"
	case CloseError:
		return "error"
	case CloseServerClosed:
		return "serverClosed"
	case CloseOutdatedClient:
		return "outdatedClient"
	case CloseOutdatedServer:
		return "outdatedServer"
	case CloseObsoleteClient:
		return "obsoleteClient"
	case CloseBlacklisted:
		return "blacklisted"
	default:
		return "unknown"
	}
}

// RejectReason explains a denied join request.
type RejectReason byte

const (
	RejectRoomNotFound RejectReason = iota
	RejectServerClosing
	RejectIncompatible
	RejectPasswordRequired
	RejectInvalidPassword
)

func (r RejectReason) String() string {
	switch r {
	case RejectRoomNotFound:
		return "roomNotFound"
	case RejectServerClosing:
		return "serverClosing"
	case RejectIncompatible:
		return "incompatible"
	case RejectPasswordRequired:
		return "passwordRequired"
	case RejectInvalidPassword:
		return "invalidPassword"
	default:
		return "unknown"
	}
}

// MessageType enumerates the short host-bound notices. The host client
// translates them for display.
type MessageType byte

const (
	MsgAlreadyHosting MessageType = iota
	MsgRoomClosureDenied
	MsgConfigureDenied
	MsgStatingDenied
	MsgConClosureDenied
	MsgPacketSpamming
	MsgServerClosing
)

func (m MessageType) String() string {
	switch m {
	case MsgAlreadyHosting:
		return "alreadyHosting"
	case MsgRoomClosureDenied:
		return "roomClosureDenied"
	case MsgConfigureDenied:
		return "configureDenied"
	case MsgStatingDenied:
		return "statingDenied"
	case MsgConClosureDenied:
		return "conClosureDenied"
	case MsgPacketSpamming:
		return "packetSpamming"
	case MsgServerClosing:
		return "serverClosing"
	default:
		return "unknown"
	}
}

// GameType is the short label identifying the game implementation carried
// inside a room. Empty means untyped: joinable without a type gate but
// invisible to discovery and listing.
type GameType string

// MaxGameTypeLen bounds the wire form of a GameType.
const MaxGameTypeLen = 8

// Valid reports whether the label fits the wire form: at most 8 bytes of
// printable ASCII. The empty label is valid and means "no type".
func (t GameType) Valid() bool {
	if len(t) > MaxGameTypeLen {
		return false
	}
	for i := 0; i < len(t); i++ {
		if t[i] < 0x21 || t[i] > 0x7E {
			return false
		}
	}
	return true
}

func writeGameType(w *Writer, t GameType) {
	w.Byte(byte(len(t)))
	w.Raw([]byte(t))
}

func readGameType(r *Reader) GameType {
	n := int(r.Byte())
	if n == 0 || n > MaxGameTypeLen {
		if n > MaxGameTypeLen {
			r.err = ErrTruncated
		}
		return ""
	}
	b := r.take(n)
	return GameType(b)
}

package packet

import (
	"bytes"
	"errors"
	"testing"
)

func TestUnmarshalControlFrame(t *testing.T) {
	in := &RoomJoin{RoomID: 7, Type: "T", WithPassword: true, Password: 0x1234}
	frame := Marshal(in)
	if frame[0] != Magic {
		t.Fatalf("frame must start with the control magic, got %#x", frame[0])
	}

	out, err := Unmarshal(frame)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	got, ok := out.(*RoomJoin)
	if !ok {
		t.Fatalf("expected *RoomJoin, got %T", out)
	}
	if got.RoomID != 7 || got.Type != "T" || !got.WithPassword || got.Password != 0x1234 {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestUnmarshalRawPayload(t *testing.T) {
	payload := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	out, err := Unmarshal(payload)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	raw, ok := out.(*Raw)
	if !ok {
		t.Fatalf("expected *Raw, got %T", out)
	}
	if !bytes.Equal(raw.Data, payload) {
		t.Fatalf("raw data mismatch: %x", raw.Data)
	}
}

func TestUnmarshalLegacyFrame(t *testing.T) {
	out, err := Unmarshal([]byte{LegacyMarker, 'j', 'o', 'i', 'n'})
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	legacy, ok := out.(*LegacyText)
	if !ok {
		t.Fatalf("expected *LegacyText, got %T", out)
	}
	if legacy.Text != "join" {
		t.Fatalf("legacy text mismatch: %q", legacy.Text)
	}
}

func TestUnmarshalTruncated(t *testing.T) {
	frame := Marshal(&ConnectionJoin{ConID: 42, AddressHash: 99})
	_, err := Unmarshal(frame[:len(frame)-3])
	if !errors.Is(err, ErrTruncated) {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}
}

func TestUnmarshalUnknownID(t *testing.T) {
	_, err := Unmarshal([]byte{Magic, 0xFE})
	if !errors.Is(err, ErrUnknownID) {
		t.Fatalf("expected ErrUnknownID, got %v", err)
	}
}

func TestRoomListRoundTrip(t *testing.T) {
	in := &RoomList{
		States: map[uint64][]byte{
			1: []byte("alpha"),
			2: nil,
		},
		ProtectedRooms: map[uint64]struct{}{2: {}},
	}
	out, err := UnmarshalBody(in.ID(), MarshalBody(in))
	if err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	got := out.(*RoomList)
	if len(got.States) != 2 {
		t.Fatalf("expected 2 states, got %d", len(got.States))
	}
	if string(got.States[1]) != "alpha" {
		t.Fatalf("state 1 mismatch: %q", got.States[1])
	}
	if got.States[2] != nil {
		t.Fatalf("nil state must survive as nil, got %x", got.States[2])
	}
	if _, ok := got.ProtectedRooms[2]; !ok || len(got.ProtectedRooms) != 1 {
		t.Fatalf("protected set mismatch: %v", got.ProtectedRooms)
	}
}

func TestRoomInfoNullState(t *testing.T) {
	out, err := UnmarshalBody(idRoomInfo, MarshalBody(&RoomInfo{RoomID: 5, Type: "mindustr"}))
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	got := out.(*RoomInfo)
	if got.State != nil {
		t.Fatalf("nil state must decode as nil, got %x", got.State)
	}
	if got.Type != "mindustr" {
		t.Fatalf("type mismatch: %q", got.Type)
	}
}

func TestGameTypeValid(t *testing.T) {
	for _, tc := range []struct {
		t  GameType
		ok bool
	}{
		{"", true},
		{"mindustr", true},
		{"toolongtype", false},
		{"has sp", false},
	} {
		if got := tc.t.Valid(); got != tc.ok {
			t.Errorf("Valid(%q) = %v, want %v", tc.t, got, tc.ok)
		}
	}
}

func TestRoomIDShortForm(t *testing.T) {
	const id = uint64(0x0000_0000_0000_0007)
	sid := EncodeRoomID(id)
	back, err := DecodeRoomID(sid)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if back != id {
		t.Fatalf("round trip mismatch: %d != %d", back, id)
	}
	if _, err := DecodeRoomID("not!valid!"); err == nil {
		t.Fatal("expected error for invalid short id")
	}
}

func TestLinkRoundTrip(t *testing.T) {
	l := Link{Host: "relay.example.org", Port: 7050, RoomID: 0xDEADBEEF}
	parsed, err := ParseLink(l.String())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed != l {
		t.Fatalf("round trip mismatch: %+v != %+v", parsed, l)
	}
	if _, err := ParseLink("http://x:1/abc"); err == nil {
		t.Fatal("expected error for wrong scheme")
	}
}

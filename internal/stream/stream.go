// Package stream splits oversized control packets into a head frame plus
// ordered chunks and reassembles them on the receiving side. Streams are
// scoped to one peer: ids from different peers never collide because each
// peer owns its own Receiver.
package stream

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/klauspost/compress/zlib"

	"claj/server/internal/packet"
)

// ErrChunkWithoutHead is a protocol error: a chunk referenced a stream id
// with no prior head.
var ErrChunkWithoutHead = errors.New("stream chunk without a head")

// ErrOverflow is a protocol error: a stream delivered more bytes than its
// head declared.
var ErrOverflow = errors.New("stream exceeded declared total")

var nextStreamID atomic.Int32

// Sender is the minimal outbound surface the stream layer needs. Both real
// transport connections and test fakes satisfy it.
type Sender interface {
	Send(p packet.Packet, reliable bool) error
}

// Prepared is a packet encoded (and optionally compressed) once so it can
// be streamed to many peers without re-serializing. Each SendTo uses a
// fresh stream id.
type Prepared struct {
	data       []byte
	typ        byte
	chunkSize  int
	compressed bool
}

// Prepare encodes p for streaming with the default chunk size and
// compression enabled.
func Prepare(p packet.Packet) (*Prepared, error) {
	return PrepareSized(p, packet.DefaultChunkSize, true)
}

// PrepareSized encodes p for streaming. When compress is set the payload
// is zlib-compressed, but kept uncompressed if that would not shrink it.
func PrepareSized(p packet.Packet, chunkSize int, compress bool) (*Prepared, error) {
	if chunkSize <= 0 {
		chunkSize = packet.DefaultChunkSize
	}
	body := packet.MarshalBody(p)
	data, compressed := body, false
	if compress {
		var buf bytes.Buffer
		zw := zlib.NewWriter(&buf)
		if _, err := zw.Write(body); err != nil {
			return nil, fmt.Errorf("compress stream payload: %w", err)
		}
		if err := zw.Close(); err != nil {
			return nil, fmt.Errorf("compress stream payload: %w", err)
		}
		if buf.Len() < len(body) {
			data, compressed = buf.Bytes(), true
		}
	}
	return &Prepared{data: data, typ: p.ID(), chunkSize: chunkSize, compressed: compressed}, nil
}

// Len returns the wire length of the prepared payload.
func (p *Prepared) Len() int { return len(p.data) }

// SendTo streams the prepared payload to one peer as head plus chunks,
// all reliable.
func (p *Prepared) SendTo(s Sender) error {
	id := nextStreamID.Add(1)
	head := &packet.StreamHead{
		StreamID:   id,
		Total:      int32(len(p.data)),
		Type:       p.typ,
		Compressed: p.compressed,
	}
	if err := s.Send(head, true); err != nil {
		return err
	}
	for off := 0; off < len(p.data); off += p.chunkSize {
		end := off + p.chunkSize
		if end > len(p.data) {
			end = len(p.data)
		}
		chunk := &packet.StreamChunk{
			StreamID: id,
			Last:     end == len(p.data),
			Data:     p.data[off:end],
		}
		if err := s.Send(chunk, true); err != nil {
			return err
		}
	}
	return nil
}

// Send streams one packet to one peer.
func Send(s Sender, p packet.Packet) error {
	prep, err := Prepare(p)
	if err != nil {
		return err
	}
	return prep.SendTo(s)
}

// builder accumulates one in-flight stream.
type builder struct {
	head packet.StreamHead
	buf  bytes.Buffer
	done bool
}

func (b *builder) add(c *packet.StreamChunk) error {
	b.buf.Write(c.Data)
	if b.buf.Len() > int(b.head.Total) {
		return ErrOverflow
	}
	if c.Last || b.buf.Len() == int(b.head.Total) {
		b.done = true
	}
	return nil
}

func (b *builder) build() (packet.Packet, error) {
	body := b.buf.Bytes()
	if b.head.Compressed {
		zr, err := zlib.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("open compressed stream: %w", err)
		}
		defer zr.Close()
		// Cap the inflated size so a hostile head cannot balloon memory.
		inflated, err := io.ReadAll(io.LimitReader(zr, packet.MaxStateSize*4+1))
		if err != nil {
			return nil, fmt.Errorf("inflate stream: %w", err)
		}
		if len(inflated) > packet.MaxStateSize*4 {
			return nil, ErrOverflow
		}
		body = inflated
	}
	return packet.UnmarshalBody(b.head.Type, body)
}

// Receiver reassembles the streams of a single peer. It is not safe for
// concurrent use; the owning connection's read loop is the only caller.
type Receiver struct {
	builders map[int32]*builder
}

// NewReceiver returns an empty per-peer receiver.
func NewReceiver() *Receiver {
	return &Receiver{builders: make(map[int32]*builder, 4)}
}

// Pending returns the number of in-flight streams.
func (r *Receiver) Pending() int { return len(r.builders) }

// Head opens a new stream. A head reusing a live id replaces it.
func (r *Receiver) Head(h *packet.StreamHead) {
	r.builders[h.StreamID] = &builder{head: *h}
}

// Chunk appends bytes to a stream. It returns the materialized packet once
// the stream completes, nil while it is still partial, or an error for
// protocol violations.
func (r *Receiver) Chunk(c *packet.StreamChunk) (packet.Packet, error) {
	b, ok := r.builders[c.StreamID]
	if !ok {
		return nil, ErrChunkWithoutHead
	}
	if err := b.add(c); err != nil {
		delete(r.builders, c.StreamID)
		return nil, err
	}
	if !b.done {
		return nil, nil
	}
	delete(r.builders, c.StreamID)
	return b.build()
}

// Reset drops every in-flight stream, called when the peer disconnects.
func (r *Receiver) Reset() {
	clear(r.builders)
}

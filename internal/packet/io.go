package packet

import (
	"encoding/binary"
	"errors"
	"math"
)

// ErrTruncated is returned when a packet body ends before all declared
// fields have been read.
var ErrTruncated = errors.New("packet body truncated")

// Writer builds a packet body. All integers are big-endian.
type Writer struct {
	buf []byte
}

// NewWriter returns a writer with room for n bytes preallocated.
func NewWriter(n int) *Writer {
	return &Writer{buf: make([]byte, 0, n)}
}

// Bytes returns the accumulated body.
func (w *Writer) Bytes() []byte { return w.buf }

func (w *Writer) Byte(v byte)     { w.buf = append(w.buf, v) }
func (w *Writer) Uint16(v uint16) { w.buf = binary.BigEndian.AppendUint16(w.buf, v) }
func (w *Writer) Int32(v int32)   { w.buf = binary.BigEndian.AppendUint32(w.buf, uint32(v)) }
func (w *Writer) Uint64(v uint64) { w.buf = binary.BigEndian.AppendUint64(w.buf, v) }

func (w *Writer) Bool(v bool) {
	if v {
		w.Byte(1)
	} else {
		w.Byte(0)
	}
}

// Raw appends bytes with no length prefix; the reader must know how many
// bytes remain, so this is only valid as the final field.
func (w *Writer) Raw(b []byte) { w.buf = append(w.buf, b...) }

// Blob appends a length-prefixed byte slice. A nil slice is encoded
// distinctly from an empty one.
func (w *Writer) Blob(b []byte) {
	if b == nil {
		w.Int32(-1)
		return
	}
	if len(b) > math.MaxInt32 {
		panic("packet: blob too large")
	}
	w.Int32(int32(len(b)))
	w.Raw(b)
}

// String appends a uint16-length-prefixed UTF-8 string.
func (w *Writer) String(s string) {
	if len(s) > math.MaxUint16 {
		s = s[:math.MaxUint16]
	}
	w.Uint16(uint16(len(s)))
	w.buf = append(w.buf, s...)
}

// Reader consumes a packet body. Errors are sticky: after the first short
// read every accessor returns a zero value and Err reports ErrTruncated.
type Reader struct {
	buf []byte
	off int
	err error
}

// NewReader wraps a packet body for reading.
func NewReader(b []byte) *Reader { return &Reader{buf: b} }

// Err reports the first decoding error, if any.
func (r *Reader) Err() error { return r.err }

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.buf) - r.off }

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.Remaining() < n {
		r.err = ErrTruncated
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *Reader) Byte() byte {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *Reader) Bool() bool { return r.Byte() != 0 }

func (r *Reader) Uint16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

func (r *Reader) Int32() int32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return int32(binary.BigEndian.Uint32(b))
}

func (r *Reader) Uint64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

// Rest returns a copy of all unread bytes.
func (r *Reader) Rest() []byte {
	b := r.take(r.Remaining())
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Blob reads a length-prefixed byte slice written by Writer.Blob.
func (r *Reader) Blob() []byte {
	n := r.Int32()
	if r.err != nil || n < 0 {
		return nil
	}
	b := r.take(int(n))
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// String reads a uint16-length-prefixed UTF-8 string.
func (r *Reader) String() string {
	n := r.Uint16()
	b := r.take(int(n))
	if b == nil {
		return ""
	}
	return string(b)
}

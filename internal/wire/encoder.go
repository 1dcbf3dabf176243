// Package wire implements the six-message frame protocol described for
// the transport: a one-byte kind followed by kind-specific,
// length-prefixed fields, all on one shared full-duplex stream.
//
// The encoder/decoder pair is pooled and length-prefixed the way the
// corpus's binary RPC framing is, rather than routed through a
// general-purpose serialization format: the message set is fixed and
// small, so a hand-rolled little-endian codec avoids paying for a codec
// built for arbitrary schemas.
package wire

import (
	"encoding/binary"
	"sync"
)

var smallPool = sync.Pool{New: func() any { return make([]byte, 0, 256) }}

// Encoder accumulates one frame's bytes. The first four bytes are
// reserved for the total frame length, patched in by Bytes.
type Encoder struct {
	buf []byte
}

// NewEncoder returns an Encoder from the pool with a reserved 4-byte
// length header.
func NewEncoder() *Encoder {
	buf := smallPool.Get().([]byte)[:0]
	buf = append(buf, 0, 0, 0, 0)
	return &Encoder{buf: buf}
}

// Release returns the encoder's backing array to the pool. Call after
// the frame produced by Bytes has been written to the transport.
func (e *Encoder) Release() {
	if cap(e.buf) <= 4096 {
		smallPool.Put(e.buf[:0])
	}
	e.buf = nil
}

// WriteByte appends a single byte (the frame kind, or a mode marker).
func (e *Encoder) WriteByte(b byte) {
	e.buf = append(e.buf, b)
}

// WriteUint32 appends a little-endian uint32.
func (e *Encoder) WriteUint32(v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	e.buf = append(e.buf, tmp[:]...)
}

// WriteBytes appends a uint32 length prefix followed by data.
func (e *Encoder) WriteBytes(data []byte) {
	e.WriteUint32(uint32(len(data)))
	e.buf = append(e.buf, data...)
}

// WriteString appends a length-prefixed string.
func (e *Encoder) WriteString(s string) {
	e.WriteBytes([]byte(s))
}

// Bytes patches the leading 4-byte total-length header and returns the
// complete frame, ready to write to the transport. The returned slice is
// only valid until Release is called.
func (e *Encoder) Bytes() []byte {
	binary.LittleEndian.PutUint32(e.buf[0:4], uint32(len(e.buf)-4))
	return e.buf
}

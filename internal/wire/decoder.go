package wire

import (
	"encoding/binary"
	"fmt"
)

// Decoder walks a single frame's payload (the bytes after the 4-byte
// length header has already been consumed by the transport reader).
type Decoder struct {
	buf []byte
	pos int
}

// NewDecoder wraps buf, the frame body (kind byte + fields), for
// sequential reads.
func NewDecoder(buf []byte) *Decoder {
	return &Decoder{buf: buf}
}

func (d *Decoder) need(n int) error {
	if len(d.buf)-d.pos < n {
		return fmt.Errorf("wire: short frame: need %d bytes, have %d", n, len(d.buf)-d.pos)
	}
	return nil
}

// ReadByte reads a single byte.
func (d *Decoder) ReadByte() (byte, error) {
	if err := d.need(1); err != nil {
		return 0, err
	}
	b := d.buf[d.pos]
	d.pos++
	return b, nil
}

// ReadUint32 reads a little-endian uint32.
func (d *Decoder) ReadUint32() (uint32, error) {
	if err := d.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(d.buf[d.pos : d.pos+4])
	d.pos += 4
	return v, nil
}

// ReadBytes reads a uint32 length prefix followed by that many bytes.
// The returned slice aliases the decoder's backing array; callers that
// need to retain it past the current frame must copy it.
func (d *Decoder) ReadBytes() ([]byte, error) {
	n, err := d.ReadUint32()
	if err != nil {
		return nil, err
	}
	if err := d.need(int(n)); err != nil {
		return nil, err
	}
	b := d.buf[d.pos : d.pos+int(n)]
	d.pos += int(n)
	return b, nil
}

// ReadString reads a length-prefixed string.
func (d *Decoder) ReadString() (string, error) {
	b, err := d.ReadBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

package wire

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"
)

// Transport is one full-duplex byte stream carrying frames. The send
// side is serialized by writeMu for the duration of a single frame
// emission so frames never interleave; the receive side has no lock of
// its own because it is owned solely by the dispatcher goroutine.
type Transport struct {
	rw      io.ReadWriter
	writeMu sync.Mutex
	readbuf []byte
}

// NewTransport wraps rw (typically a net.Conn) as a frame transport.
func NewTransport(rw io.ReadWriter) *Transport {
	return &Transport{rw: rw}
}

// Send writes one frame atomically with respect to other Send calls.
// enc.Bytes() must already contain the 4-byte length header produced by
// Encoder.Bytes(). The encoder is released back to its pool before Send
// returns.
func (t *Transport) Send(enc *Encoder) error {
	defer enc.Release()

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	_, err := t.rw.Write(enc.Bytes())
	return err
}

// Recv reads exactly one frame and decodes it. It must only be called
// from the dispatcher goroutine: there is no receive-side lock. A short
// read or EOF is returned unwrapped so the dispatcher can distinguish
// clean shutdown (io.EOF) from a severed link (io.ErrUnexpectedEOF or a
// network error) if it needs to, though both are treated identically by
// the caller: force_exit on every pipe.
func (t *Transport) Recv() (Frame, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(t.rw, lenBuf[:]); err != nil {
		return Frame{}, err
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	if n == 0 {
		return Frame{}, fmt.Errorf("wire: zero-length frame")
	}

	if cap(t.readbuf) < int(n) {
		t.readbuf = make([]byte, n)
	}
	body := t.readbuf[:n]
	if _, err := io.ReadFull(t.rw, body); err != nil {
		return Frame{}, err
	}

	return DecodeFrame(body)
}

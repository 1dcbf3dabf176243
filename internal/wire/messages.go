package wire

import "fmt"

// Kind identifies one of the six message kinds carried by the transport.
type Kind byte

const (
	KindOpen        Kind = 1
	KindClose       Kind = 2
	KindWrite       Kind = 3
	KindFlush       Kind = 4
	KindRead        Kind = 5
	KindReadRequest Kind = 6
)

func (k Kind) String() string {
	switch k {
	case KindOpen:
		return "OPEN"
	case KindClose:
		return "CLOSE"
	case KindWrite:
		return "WRITE"
	case KindFlush:
		return "FLUSH"
	case KindRead:
		return "READ"
	case KindReadRequest:
		return "READ-REQUEST"
	default:
		return fmt.Sprintf("Kind(%d)", byte(k))
	}
}

// Mode marks which direction a handle was opened or closed in.
type Mode byte

const (
	ModeRead  Mode = 'R'
	ModeWrite Mode = 'W'
)

// Frame is the decoded, in-memory form of any of the six message kinds.
// WRITE and FLUSH share the Data field: they are identical on the receive
// side and split only for debug tracing, per the wire framing table.
type Frame struct {
	Kind Kind
	Path string
	Mode Mode   // OPEN, CLOSE
	Data []byte // WRITE, FLUSH
	Len  uint32 // READ, READ-REQUEST
}

// EncodeOpen builds an OPEN frame: path, mode.
func EncodeOpen(path string, mode Mode) *Encoder {
	e := NewEncoder()
	e.WriteByte(byte(KindOpen))
	e.WriteString(path)
	e.WriteByte(byte(mode))
	return e
}

// EncodeClose builds a CLOSE frame: path, mode.
func EncodeClose(path string, mode Mode) *Encoder {
	e := NewEncoder()
	e.WriteByte(byte(KindClose))
	e.WriteString(path)
	e.WriteByte(byte(mode))
	return e
}

// EncodeWrite builds a WRITE frame: path, len, bytes.
func EncodeWrite(path string, data []byte) *Encoder {
	e := NewEncoder()
	e.WriteByte(byte(KindWrite))
	e.WriteString(path)
	e.WriteBytes(data)
	return e
}

// EncodeFlush builds a FLUSH frame: path, len, bytes. Semantically
// identical to WRITE on the receive side.
func EncodeFlush(path string, data []byte) *Encoder {
	e := NewEncoder()
	e.WriteByte(byte(KindFlush))
	e.WriteString(path)
	e.WriteBytes(data)
	return e
}

// EncodeRead builds a READ frame: path, len (credit return).
func EncodeRead(path string, n uint32) *Encoder {
	e := NewEncoder()
	e.WriteByte(byte(KindRead))
	e.WriteString(path)
	e.WriteUint32(n)
	return e
}

// EncodeReadRequest builds a READ-REQUEST frame: path, len (credit
// grant).
func EncodeReadRequest(path string, n uint32) *Encoder {
	e := NewEncoder()
	e.WriteByte(byte(KindReadRequest))
	e.WriteString(path)
	e.WriteUint32(n)
	return e
}

// DecodeFrame parses a frame body (everything after the transport's
// 4-byte length header) into a Frame.
func DecodeFrame(body []byte) (Frame, error) {
	d := NewDecoder(body)
	kb, err := d.ReadByte()
	if err != nil {
		return Frame{}, err
	}
	kind := Kind(kb)

	f := Frame{Kind: kind}
	f.Path, err = d.ReadString()
	if err != nil {
		return Frame{}, fmt.Errorf("wire: decode %s path: %w", kind, err)
	}

	switch kind {
	case KindOpen, KindClose:
		m, err := d.ReadByte()
		if err != nil {
			return Frame{}, fmt.Errorf("wire: decode %s mode: %w", kind, err)
		}
		f.Mode = Mode(m)
	case KindWrite, KindFlush:
		data, err := d.ReadBytes()
		if err != nil {
			return Frame{}, fmt.Errorf("wire: decode %s data: %w", kind, err)
		}
		// Copy out: the decoder's backing array is reused by the
		// transport's read buffer on the next frame.
		f.Data = append([]byte(nil), data...)
	case KindRead, KindReadRequest:
		n, err := d.ReadUint32()
		if err != nil {
			return Frame{}, fmt.Errorf("wire: decode %s len: %w", kind, err)
		}
		f.Len = n
	default:
		return Frame{}, fmt.Errorf("wire: unknown frame kind %d", kb)
	}

	return f, nil
}

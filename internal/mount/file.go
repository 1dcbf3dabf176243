package mount

import (
	"io"
	"sync"

	"github.com/netpipefs/netpipefs/internal/pipe"
	"github.com/netpipefs/netpipefs/internal/pipeerr"
	"github.com/netpipefs/netpipefs/internal/wire"
)

// PipeFile adapts one open handle on a Pipe to billy.File. It is not
// seekable and not safe for concurrent Read/Write from multiple
// goroutines on the same handle (the underlying pipe.Pipe is; PipeFile's
// own mutex only guards against closing the handle twice, and Read/Write
// do not take it).
type PipeFile struct {
	reg  *pipe.Registry
	p    *pipe.Pipe
	name string
	mode wire.Mode

	mu     sync.Mutex
	closed bool
}

var closedFileErr = pipeerr.ErrInval

func newPipeFile(reg *pipe.Registry, p *pipe.Pipe, name string, mode wire.Mode) *PipeFile {
	return &PipeFile{reg: reg, p: p, name: name, mode: mode}
}

func (f *PipeFile) Name() string { return f.name }

// Read implements io.Reader: a clean EOF from the engine (0 bytes, nil
// error) is translated to io.EOF, since billy/NFS callers expect the
// io.Reader contract rather than the engine's raw "0 means EOF" return.
func (f *PipeFile) Read(p []byte) (int, error) {
	if f.mode != wire.ModeRead {
		return 0, pipeerr.Wrap("read", f.name, pipeerr.ErrInval)
	}
	n, err := f.p.Read(p, false)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

// ReadAt is unsupported: a pipe has no addressable byte offsets to seek
// to, only the next bytes in arrival order.
func (f *PipeFile) ReadAt([]byte, int64) (int, error) {
	return 0, pipeerr.Wrap("readat", f.name, pipeerr.ErrInval)
}

func (f *PipeFile) Write(p []byte) (int, error) {
	if f.mode != wire.ModeWrite {
		return 0, pipeerr.Wrap("write", f.name, pipeerr.ErrInval)
	}
	n, err := f.p.Send(p, false)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Seek only tolerates the no-op case of seeking to the current stream
// position (whence io.SeekCurrent, offset 0), which some NFS clients
// issue defensively before a read; anything else is EINVAL, per the
// engine's non-goal of seekable pipes.
func (f *PipeFile) Seek(offset int64, whence int) (int64, error) {
	if offset == 0 && whence == io.SeekCurrent {
		return 0, nil
	}
	return 0, pipeerr.Wrap("seek", f.name, pipeerr.ErrInval)
}

// Truncate is a no-op success regardless of size, per the mount
// surface.
func (f *PipeFile) Truncate(int64) error { return nil }

func (f *PipeFile) Lock() error   { return nil }
func (f *PipeFile) Unlock() error { return nil }

func (f *PipeFile) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return pipeerr.Wrap("close", f.name, closedFileErr)
	}
	f.closed = true
	f.mu.Unlock()

	_, err := pipe.Close(f.reg, f.p, f.mode)
	return err
}

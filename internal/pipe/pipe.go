// Package pipe implements the per-file pipe engine: the data structure
// and algorithms that buffer bytes in transit between the two peers of a
// single mount, enforce remote flow control, and coordinate blocking
// readers, writers, flushers, and pollers on one path.
package pipe

import (
	"container/list"
	"sync"

	"github.com/netpipefs/netpipefs/internal/pipeerr"
	"github.com/netpipefs/netpipefs/internal/registry"
	"github.com/netpipefs/netpipefs/internal/ringbuffer"
	"github.com/netpipefs/netpipefs/internal/utils"
	"github.com/netpipefs/netpipefs/internal/wire"
)

// bufPool is shared by every pipe in the process: pipes come and go far
// more often than the process itself, so their ring buffers are drawn
// from and returned to one size-classed pool rather than allocated and
// garbage-collected per open/close cycle.
var bufPool = utils.NewBufferPool()

// OpenMode is the mode a pipe is currently held open in. Once set away
// from None it rejects the opposite mode until every handle closes.
type OpenMode int

const (
	OpenNone OpenMode = iota
	OpenRead
	OpenWrite
)

// request is an in-flight local read or write. It is heap-allocated (Go
// has no raw pointer linking of stack frames into a shared queue) and
// referenced by the *list.Element the caller keeps until it unlinks
// itself; the dispatcher goroutine mutates bytesProcessed/err under the
// pipe's mutex while the caller's goroutine is parked in Wait.
type request struct {
	buf            []byte
	bytesProcessed int
	err            error
}

func (r *request) done(forceExit bool) bool {
	return r.bytesProcessed == len(r.buf) || r.err != nil || forceExit
}

// Registry is the concrete registry type pipes are stored in.
type Registry = registry.Registry[*Pipe]

// NewRegistry allocates an empty pipe registry.
func NewRegistry() *Registry {
	return registry.New[*Pipe]()
}

// Pipe is the per-path engine instance shared, by mirrored bookkeeping,
// between both peers: local calls (Open/Send/Read/Flush/Close) and
// dispatcher-driven updates (OpenUpdate/Recv/ReadRequest/ReadUpdate/
// CloseUpdate) mutate the same fields, so readers and writers always
// reflect the sum of both sides' open handles for path.
type Pipe struct {
	path string
	tr   *wire.Transport

	mu        sync.Mutex
	cvCanOpen *sync.Cond
	cvRd      *sync.Cond
	cvWr      *sync.Cond

	buffer *ringbuffer.RingBuffer

	remoteMax  uint32
	remoteSize uint32

	readers  int
	writers  int
	openMode OpenMode

	forceExit bool

	rdReq *list.List
	wrReq *list.List

	pollHandles map[PollHandle]struct{}
}

// newPipe seeds remoteMax from remoteCapacity, the peer's own local
// buffer size as learned by the handshake's capacity exchange (or the
// operator's configured guess, before the first exchange lands): a
// freshly opened pipe can write straight into an idle peer's receive
// buffer up to that many bytes before the first READ-REQUEST credit
// ever arrives, matching the original's `remotemax` seeding at
// pipe-creation time rather than starting flow control at zero credit.
func newPipe(path string, localCapacity, remoteCapacity int, tr *wire.Transport) *Pipe {
	p := &Pipe{
		path:        path,
		tr:          tr,
		buffer:      ringbuffer.NewPooled(localCapacity, bufPool),
		remoteMax:   uint32(remoteCapacity),
		rdReq:       list.New(),
		wrReq:       list.New(),
		pollHandles: make(map[PollHandle]struct{}),
	}
	p.cvCanOpen = sync.NewCond(&p.mu)
	p.cvRd = sync.NewCond(&p.mu)
	p.cvWr = sync.NewCond(&p.mu)
	return p
}

// Path returns the pipe's identifying path, also its wire key.
func (p *Pipe) Path() string { return p.path }

func toOpenMode(mode wire.Mode) OpenMode {
	switch mode {
	case wire.ModeRead:
		return OpenRead
	case wire.ModeWrite:
		return OpenWrite
	default:
		return OpenNone
	}
}

// remoteAvail is remote_max - remote_size, the credit still available to
// send without exceeding what the peer is willing to buffer for us.
func (p *Pipe) remoteAvail() int {
	if p.remoteSize >= p.remoteMax {
		return 0
	}
	return int(p.remoteMax - p.remoteSize)
}

func (p *Pipe) bump(mode wire.Mode, delta int) {
	if mode == wire.ModeRead {
		p.readers += delta
	} else {
		p.writers += delta
	}
}

// undoOpen reverses the count bump from a failed open, resetting
// open_mode to None if that mode's count is now zero.
func (p *Pipe) undoOpen(mode wire.Mode) {
	p.bump(mode, -1)
	if (mode == wire.ModeRead && p.readers == 0) || (mode == wire.ModeWrite && p.writers == 0) {
		p.openMode = OpenNone
	}
}

func (p *Pipe) emitOpenLocked(mode wire.Mode) error {
	return p.tr.Send(wire.EncodeOpen(p.path, mode))
}

func (p *Pipe) emitCloseLocked(mode wire.Mode) error {
	return p.tr.Send(wire.EncodeClose(p.path, mode))
}

func (p *Pipe) emitWriteLocked(data []byte) error {
	return p.tr.Send(wire.EncodeWrite(p.path, data))
}

func (p *Pipe) emitReadCreditLocked(n uint32) error {
	return p.tr.Send(wire.EncodeRead(p.path, n))
}

func (p *Pipe) emitReadRequestLocked(n uint32) error {
	return p.tr.Send(wire.EncodeReadRequest(p.path, n))
}

// flushBufferLocked emits a FLUSH frame carrying up to
// min(buffer.Size(), remote_avail) bytes from the buffer's head,
// removing them only once the send succeeds, and returns the number of
// bytes flushed.
func (p *Pipe) flushBufferLocked() (int, error) {
	avail := p.remoteAvail()
	if avail <= 0 || p.buffer.Empty() {
		return 0, nil
	}
	n := p.buffer.Size()
	if n > avail {
		n = avail
	}
	tmp := make([]byte, n)
	got := p.buffer.Peek(tmp)
	if got == 0 {
		return 0, nil
	}
	if err := p.tr.Send(wire.EncodeFlush(p.path, tmp[:got])); err != nil {
		return 0, err
	}
	p.buffer.Discard(got)
	p.remoteSize += uint32(got)
	p.cvWr.Broadcast()
	return got, nil
}

// wakePollHandlesLocked fires a single edge notification on every
// registered poll handle and forgets it: notify-once semantics.
func (p *Pipe) wakePollHandlesLocked() {
	for h := range p.pollHandles {
		close(h)
		delete(p.pollHandles, h)
	}
}

// forceExitLocked sets the sticky force_exit flag and wakes every
// waiter. Idempotent: a second call is a no-op.
func (p *Pipe) forceExitLocked() {
	if p.forceExit {
		return
	}
	p.forceExit = true
	p.cvCanOpen.Broadcast()
	p.cvRd.Broadcast()
	p.cvWr.Broadcast()
	p.wakePollHandlesLocked()
}

// ForceExit sets the sticky shutdown flag and unblocks every waiter with
// EPIPE/ENOENT. Calling it twice leaves state unchanged.
func (p *Pipe) ForceExit() {
	p.mu.Lock()
	p.forceExitLocked()
	p.mu.Unlock()
}

// Open implements the open() operation: reject O_RDWR, get-or-create the
// pipe, check for a mode conflict or forced exit, bump the count, fail
// fast with EAGAIN if non-blocking and the other side is absent (before
// anything is sent to the peer), otherwise emit the OPEN frame and
// either return immediately (other side already present) or wait for
// the peer to open its side too.
func Open(reg *Registry, path string, mode wire.Mode, nonblock bool, localCapacity, remoteCapacity int, tr *wire.Transport) (*Pipe, error) {
	if mode != wire.ModeRead && mode != wire.ModeWrite {
		return nil, pipeerr.Wrap("open", path, pipeerr.ErrInval)
	}

	p, created := reg.GetOrCreate(path, func() *Pipe {
		return newPipe(path, localCapacity, remoteCapacity, tr)
	})

	p.mu.Lock()

	if p.forceExit {
		p.mu.Unlock()
		if created {
			reg.Remove(path)
		}
		return nil, pipeerr.Wrap("open", path, pipeerr.ErrNoEnt)
	}

	if p.openMode != OpenNone && p.openMode != toOpenMode(mode) {
		p.mu.Unlock()
		if created {
			reg.Remove(path)
		}
		return nil, pipeerr.Wrap("open", path, pipeerr.ErrPerm)
	}

	p.bump(mode, +1)
	p.openMode = toOpenMode(mode)

	// The non-block/other-side-absent check runs before the OPEN frame is
	// ever sent: emitting OPEN first would leave the peer with a phantom
	// opener it never gets a matching CLOSE for once this side backs out
	// locally under EAGAIN.
	otherSideAbsent := (mode == wire.ModeWrite && p.readers == 0) || (mode == wire.ModeRead && p.writers == 0)
	if nonblock && otherSideAbsent {
		p.undoOpen(mode)
		p.mu.Unlock()
		if created {
			reg.Remove(path)
		}
		return nil, pipeerr.Wrap("open", path, pipeerr.ErrAgain)
	}

	if err := p.emitOpenLocked(mode); err != nil {
		p.undoOpen(mode)
		p.mu.Unlock()
		if created {
			reg.Remove(path)
		}
		return nil, pipeerr.Wrap("open", path, err)
	}

	p.cvCanOpen.Broadcast()

	for p.readers == 0 || p.writers == 0 {
		if p.forceExit {
			p.undoOpen(mode)
			p.mu.Unlock()
			if created {
				reg.Remove(path)
			}
			return nil, pipeerr.Wrap("open", path, pipeerr.ErrNoEnt)
		}
		p.cvCanOpen.Wait()
	}

	p.mu.Unlock()
	return p, nil
}

// OpenUpdate is called by the dispatcher when the peer's OPEN frame for
// path arrives: increment the matching count and wake anyone waiting in
// Open, without emitting a frame or ever failing.
func OpenUpdate(reg *Registry, path string, mode wire.Mode, localCapacity, remoteCapacity int, tr *wire.Transport) {
	if mode != wire.ModeRead && mode != wire.ModeWrite {
		return
	}
	p, _ := reg.GetOrCreate(path, func() *Pipe {
		return newPipe(path, localCapacity, remoteCapacity, tr)
	})

	p.mu.Lock()
	p.bump(mode, +1)
	p.cvCanOpen.Broadcast()
	p.mu.Unlock()
}

// Close implements the close() operation for a local handle.
func Close(reg *Registry, p *Pipe, mode wire.Mode) (int, error) {
	p.mu.Lock()

	p.bump(mode, -1)
	if p.readers == 0 && p.writers == 0 {
		p.openMode = OpenNone
	}
	writerSideDrained := mode == wire.ModeWrite && p.writers == 0

	var sent int
	var flushErr error
	if writerSideDrained {
		p.mu.Unlock()
		sent, flushErr = p.Flush(false)
		p.mu.Lock()
	}

	closeErr := p.emitCloseLocked(mode)

	bothClosed := p.readers == 0 && p.writers == 0
	p.mu.Unlock()

	if bothClosed {
		reg.Remove(p.path)
		p.buffer.Release()
	}

	if closeErr != nil {
		return sent, pipeerr.Wrap("close", p.path, closeErr)
	}
	if flushErr != nil {
		return sent, flushErr
	}
	return sent, nil
}

// CloseUpdate is called by the dispatcher when the peer's CLOSE frame
// for path arrives. A path not open locally (registry lookup miss) is
// the caller's responsibility to skip; this is a no-op by construction
// in that case since there is no *Pipe to call it on.
func CloseUpdate(reg *Registry, p *Pipe, peerMode wire.Mode) {
	p.mu.Lock()

	p.bump(peerMode, -1)

	if peerMode == wire.ModeWrite && p.writers == 0 {
		failQueue(p.rdReq, pipeerr.ErrPipe)
		p.cvRd.Broadcast()
	}
	if peerMode == wire.ModeRead && p.readers == 0 {
		failQueue(p.wrReq, pipeerr.ErrPipe)
		p.cvWr.Broadcast()
	}

	if p.readers == 0 && p.writers == 0 {
		p.openMode = OpenNone
	}

	p.wakePollHandlesLocked()

	bothZero := p.readers == 0 && p.writers == 0
	p.mu.Unlock()

	if bothZero {
		reg.Remove(p.path)
		p.buffer.Release()
	}
}

// failQueue marks every queued request with err and clears the queue.
// Called with the pipe mutex held.
func failQueue(q *list.List, err error) {
	for e := q.Front(); e != nil; {
		next := e.Next()
		e.Value.(*request).err = err
		q.Remove(e)
		e = next
	}
}

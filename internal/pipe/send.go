package pipe

import (
	"github.com/netpipefs/netpipefs/internal/pipeerr"
)

// Send implements send(): flush anything already buffered, attempt a
// direct send of the caller's bytes under current credit, writeahead
// whatever is left into the local buffer, and block (unless nonblock)
// for the remainder to drain.
func (p *Pipe) Send(buf []byte, nonblock bool) (int, error) {
	p.mu.Lock()

	if p.forceExit || p.readers == 0 {
		p.mu.Unlock()
		return -1, pipeerr.Wrap("send", p.path, pipeerr.ErrPipe)
	}

	if _, err := p.flushBufferLocked(); err != nil {
		p.forceExitLocked()
		p.mu.Unlock()
		return -1, pipeerr.Wrap("send", p.path, pipeerr.ErrConnReset)
	}

	sent := 0
	remaining := buf

	if p.buffer.Empty() && p.remoteAvail() > 0 {
		n := len(remaining)
		if avail := p.remoteAvail(); n > avail {
			n = avail
		}
		if n > 0 {
			if err := p.emitWriteLocked(remaining[:n]); err != nil {
				p.forceExitLocked()
				p.mu.Unlock()
				return -1, pipeerr.Wrap("send", p.path, pipeerr.ErrConnReset)
			}
			p.remoteSize += uint32(n)
			remaining = remaining[n:]
			sent += n
		}
	}

	if len(remaining) > 0 {
		n := p.buffer.Put(remaining)
		remaining = remaining[n:]
		sent += n
	}

	if len(remaining) == 0 {
		p.mu.Unlock()
		return sent, nil
	}

	if nonblock {
		p.mu.Unlock()
		if sent == 0 {
			return -1, pipeerr.Wrap("send", p.path, pipeerr.ErrAgain)
		}
		return sent, nil
	}

	req := &request{buf: remaining}
	elem := p.wrReq.PushBack(req)
	for !req.done(p.forceExit) {
		p.cvWr.Wait()
	}
	p.wrReq.Remove(elem)

	bp := req.bytesProcessed
	rerr := req.err
	fe := p.forceExit
	p.mu.Unlock()

	if bp == 0 && (fe || rerr != nil) {
		if rerr != nil {
			return -1, pipeerr.Wrap("send", p.path, rerr)
		}
		return -1, pipeerr.Wrap("send", p.path, pipeerr.ErrPipe)
	}
	return sent + bp, nil
}

// sendDataLocked opportunistically drains whatever can now go out: the
// buffered bytes, then queued write requests up to remote_avail, then
// writeahead of queued requests into the now-partially-drained buffer.
// Called with the pipe mutex held, from ReadRequest and ReadUpdate.
func (p *Pipe) sendDataLocked() bool {
	moved := false

	if n, err := p.flushBufferLocked(); err != nil {
		p.forceExitLocked()
		return moved
	} else if n > 0 {
		moved = true
	}

	for p.wrReq.Len() > 0 && p.remoteAvail() > 0 {
		elem := p.wrReq.Front()
		req := elem.Value.(*request)
		remaining := req.buf[req.bytesProcessed:]

		n := len(remaining)
		if avail := p.remoteAvail(); n > avail {
			n = avail
		}
		if n == 0 {
			break
		}

		if err := p.emitWriteLocked(remaining[:n]); err != nil {
			req.err = pipeerr.ErrConnReset
			p.wrReq.Remove(elem)
			p.cvWr.Broadcast()
			p.forceExitLocked()
			return moved
		}

		req.bytesProcessed += n
		p.remoteSize += uint32(n)
		moved = true

		if req.bytesProcessed == len(req.buf) {
			p.wrReq.Remove(elem)
		}
	}

	for p.wrReq.Len() > 0 && !p.buffer.Full() {
		elem := p.wrReq.Front()
		req := elem.Value.(*request)
		remaining := req.buf[req.bytesProcessed:]

		n := p.buffer.Put(remaining)
		if n == 0 {
			break
		}
		req.bytesProcessed += n
		moved = true

		if req.bytesProcessed == len(req.buf) {
			p.wrReq.Remove(elem)
		} else {
			break
		}
	}

	if moved {
		p.wakePollHandlesLocked()
	}
	return moved
}

// ReadRequest is called by the dispatcher on the peer's READ-REQUEST
// frame: the peer advertises willingness to accept size more bytes.
func (p *Pipe) ReadRequest(size uint32) {
	p.mu.Lock()
	p.remoteMax += size
	if p.sendDataLocked() {
		p.cvWr.Broadcast()
	}
	p.mu.Unlock()
}

// ReadUpdate is called by the dispatcher on the peer's READ frame: the
// peer drained size bytes from its receive buffer.
func (p *Pipe) ReadUpdate(size uint32) {
	p.mu.Lock()
	p.remoteMax -= size
	p.remoteSize -= size
	if p.sendDataLocked() {
		p.cvWr.Broadcast()
	}
	p.mu.Unlock()
}

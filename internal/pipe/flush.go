package pipe

import "github.com/netpipefs/netpipefs/internal/pipeerr"

// Flush implements flush(): send everything currently buffered. If bytes
// remain after the initial flush and the caller isn't non-blocking, they
// are copied out into a staging slice enqueued as a write request and
// the caller waits for send_data (driven by ReadRequest/ReadUpdate) to
// drain it. The staging slice is only ever referenced from this frame
// and the request queue, so it is freed unconditionally on return simply
// by falling out of scope; there is no separate free step to forget.
func (p *Pipe) Flush(nonblock bool) (int, error) {
	p.mu.Lock()

	if p.forceExit || p.readers == 0 {
		p.mu.Unlock()
		return -1, pipeerr.Wrap("flush", p.path, pipeerr.ErrPipe)
	}

	sent, err := p.flushBufferLocked()
	if err != nil {
		p.forceExitLocked()
		p.mu.Unlock()
		return -1, pipeerr.Wrap("flush", p.path, pipeerr.ErrConnReset)
	}

	remainingLen := p.buffer.Size()
	if remainingLen == 0 || nonblock {
		p.mu.Unlock()
		if remainingLen > 0 && nonblock && sent == 0 {
			return -1, pipeerr.Wrap("flush", p.path, pipeerr.ErrAgain)
		}
		return sent, nil
	}

	staging := make([]byte, remainingLen)
	p.buffer.Get(staging)

	req := &request{buf: staging}
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
			return -1, pipeerr.Wrap("flush", p.path, rerr)
		}
		return -1, pipeerr.Wrap("flush", p.path, pipeerr.ErrPipe)
	}
	return sent + bp, nil
}

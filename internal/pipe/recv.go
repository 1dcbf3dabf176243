package pipe

import "bytes"

// Recv is called by the dispatcher when size bytes have arrived on the
// transport via a WRITE or FLUSH frame (WRITE and FLUSH are identical on
// the receive side). data is delivered under the pipe lock without
// blocking the dispatcher on user threads: already-buffered readers are
// filled first (preserving FIFO between buffered and newly arrived
// bytes), then any still-empty-handed reader gets bytes straight from
// the frame, and whatever is left over is buffered for later readers.
func (p *Pipe) Recv(data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	remaining := data
	wakeup := false // initialised false regardless of which branch below runs

	for p.rdReq.Len() > 0 && !p.buffer.Empty() {
		elem := p.rdReq.Front()
		req := elem.Value.(*request)
		dst := req.buf[req.bytesProcessed:]

		n := p.buffer.Get(dst)
		if n > 0 {
			req.bytesProcessed += n
			if err := p.emitReadCreditLocked(uint32(n)); err != nil {
				p.forceExitLocked()
				return
			}
		}
		if req.bytesProcessed == len(req.buf) {
			p.rdReq.Remove(elem)
			wakeup = true
		}
	}

	for p.rdReq.Len() > 0 && p.buffer.Empty() && len(remaining) > 0 {
		elem := p.rdReq.Front()
		req := elem.Value.(*request)
		dst := req.buf[req.bytesProcessed:]

		n := copy(dst, remaining)
		remaining = remaining[n:]
		req.bytesProcessed += n
		if n > 0 {
			if err := p.emitReadCreditLocked(uint32(n)); err != nil {
				p.forceExitLocked()
				return
			}
		}
		if req.bytesProcessed == len(req.buf) {
			p.rdReq.Remove(elem)
			wakeup = true
		}
	}

	if len(remaining) > 0 {
		n, err := p.buffer.DrainFromTransport(bytes.NewReader(remaining), len(remaining))
		if err != nil || n != len(remaining) {
			// The local buffer could not take the rest of the frame:
			// fail the frame and force-exit this pipe rather than
			// silently drop bytes.
			p.forceExitLocked()
			return
		}
	}

	if wakeup {
		p.cvRd.Broadcast()
	}
	p.wakePollHandlesLocked()
}

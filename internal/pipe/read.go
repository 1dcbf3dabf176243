package pipe

import (
	"errors"

	"github.com/netpipefs/netpipefs/internal/pipeerr"
)

// Read implements read(): drain whatever is already buffered first and
// return it immediately (a pipe read, like a Unix pipe, returns as soon
// as it has any bytes rather than waiting to fill dst completely); only
// when the buffer had nothing to offer does it check for EOF or block.
func (p *Pipe) Read(dst []byte, nonblock bool) (int, error) {
	p.mu.Lock()

	if p.forceExit {
		p.mu.Unlock()
		return -1, pipeerr.Wrap("read", p.path, pipeerr.ErrPipe)
	}

	n := p.buffer.Get(dst)
	if n > 0 {
		if err := p.emitReadCreditLocked(uint32(n)); err != nil {
			p.forceExitLocked()
			p.mu.Unlock()
			return -1, pipeerr.Wrap("read", p.path, pipeerr.ErrConnReset)
		}
	}

	if n == len(dst) {
		p.mu.Unlock()
		return n, nil
	}
	if n == 0 && p.writers == 0 {
		p.mu.Unlock()
		return 0, nil
	}
	if nonblock {
		p.mu.Unlock()
		if n == 0 {
			return -1, pipeerr.Wrap("read", p.path, pipeerr.ErrAgain)
		}
		return n, nil
	}
	if n > 0 {
		p.mu.Unlock()
		return n, nil
	}

	req := &request{buf: dst}
	elem := p.rdReq.PushBack(req)
	if err := p.emitReadRequestLocked(uint32(len(dst))); err != nil {
		p.rdReq.Remove(elem)
		p.forceExitLocked()
		p.mu.Unlock()
		return -1, pipeerr.Wrap("read", p.path, pipeerr.ErrConnReset)
	}

	for !req.done(p.forceExit) {
		p.cvRd.Wait()
	}
	p.rdReq.Remove(elem)

	bp := req.bytesProcessed
	rerr := req.err
	fe := p.forceExit
	p.mu.Unlock()

	if bp == 0 {
		if rerr != nil {
			if errors.Is(rerr, pipeerr.ErrPipe) {
				return 0, nil
			}
			return -1, pipeerr.Wrap("read", p.path, rerr)
		}
		if fe {
			return 0, nil
		}
	}
	return bp, nil
}

package pipe

// PollHandle is an opaque token registered by a Poll call. The engine
// closes it exactly once, when readability or writability may have
// changed, and then forgets it; reusing a handle requires re-registering
// it via another Poll call.
type PollHandle chan struct{}

// NewPollHandle allocates a fresh, unfired poll handle.
func NewPollHandle() PollHandle {
	return make(PollHandle)
}

// Revents is a bitmask of poll(2)-style readiness events.
type Revents int

const (
	PollIn Revents = 1 << iota
	PollOut
	PollHup
	PollErr
)

// Poll links handle into the pipe's poll set and returns the immediate
// readiness computed from the pipe's current state.
func (p *Pipe) Poll(handle PollHandle) Revents {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.pollHandles[handle] = struct{}{}

	var rev Revents
	switch p.openMode {
	case OpenRead:
		if !p.buffer.Empty() || p.writers > 0 {
			rev |= PollIn
		} else if p.writers == 0 {
			rev |= PollHup
		}
	case OpenWrite:
		if p.readers == 0 {
			rev |= PollErr
		} else if p.remoteAvail()+p.buffer.Free() > 0 {
			rev |= PollOut
		}
	}
	return rev
}

// Package ringbuffer implements the fixed-capacity byte FIFO backing each
// pipe's local buffer. It is not internally synchronized: callers hold the
// owning pipe's mutex for the duration of any operation, matching the
// single-producer/single-consumer contract described for the pipe engine.
package ringbuffer

import (
	"io"

	"github.com/netpipefs/netpipefs/internal/utils"
)

// RingBuffer is a fixed-capacity circular byte queue.
type RingBuffer struct {
	buf   []byte
	head  int // next byte to read
	tail  int // next free slot to write
	count int

	pool *utils.BufferPool
}

// New allocates a ring buffer with the given capacity in bytes.
func New(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &RingBuffer{buf: make([]byte, capacity)}
}

// NewPooled behaves like New but draws its backing array from pool
// instead of allocating fresh, and zeroes it (pooled buffers carry the
// previous pipe's bytes) before use. Pipes open and close far more
// often than they carry data, so reusing size-classed backing arrays
// across that churn avoids a fresh allocation on every open.
func NewPooled(capacity int, pool *utils.BufferPool) *RingBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	buf := pool.Get(capacity)
	for i := range buf {
		buf[i] = 0
	}
	return &RingBuffer{buf: buf, pool: pool}
}

// Release returns the backing array to the pool it was drawn from. It is
// a no-op for a RingBuffer built with New. Callers must not use r after
// calling Release.
func (r *RingBuffer) Release() {
	if r.pool != nil {
		r.pool.Put(r.buf)
		r.buf = nil
	}
}

// Capacity returns the fixed buffer capacity.
func (r *RingBuffer) Capacity() int { return len(r.buf) }

// Size returns the number of bytes currently queued.
func (r *RingBuffer) Size() int { return r.count }

// Free returns the number of bytes of free space.
func (r *RingBuffer) Free() int { return len(r.buf) - r.count }

// Empty reports whether the buffer holds no bytes.
func (r *RingBuffer) Empty() bool { return r.count == 0 }

// Full reports whether the buffer has no free space.
func (r *RingBuffer) Full() bool { return r.count == len(r.buf) }

// Put copies min(len(src), Free()) bytes from src into the buffer and
// returns the number of bytes accepted.
func (r *RingBuffer) Put(src []byte) int {
	n := len(src)
	if free := r.Free(); n > free {
		n = free
	}
	if n == 0 {
		return 0
	}
	first := len(r.buf) - r.tail
	if first > n {
		first = n
	}
	copy(r.buf[r.tail:], src[:first])
	if rest := n - first; rest > 0 {
		copy(r.buf, src[first:n])
	}
	r.tail = (r.tail + n) % len(r.buf)
	r.count += n
	return n
}

// Get copies min(len(dst), Size()) bytes out of the buffer into dst,
// removing them, and returns the number of bytes copied.
func (r *RingBuffer) Get(dst []byte) int {
	n := len(dst)
	if n > r.count {
		n = r.count
	}
	if n == 0 {
		return 0
	}
	first := len(r.buf) - r.head
	if first > n {
		first = n
	}
	copy(dst[:first], r.buf[r.head:r.head+first])
	if rest := n - first; rest > 0 {
		copy(dst[first:n], r.buf[:rest])
	}
	r.head = (r.head + n) % len(r.buf)
	r.count -= n
	return n
}

// Peek behaves like Get but does not remove the bytes from the buffer.
// Used by the flush path to draw the buffer's head without consuming it
// until the send actually succeeds.
func (r *RingBuffer) Peek(dst []byte) int {
	n := len(dst)
	if n > r.count {
		n = r.count
	}
	if n == 0 {
		return 0
	}
	first := len(r.buf) - r.head
	if first > n {
		first = n
	}
	copy(dst[:first], r.buf[r.head:r.head+first])
	if rest := n - first; rest > 0 {
		copy(dst[first:n], r.buf[:rest])
	}
	return n
}

// Discard removes up to n bytes from the head of the buffer without
// copying them anywhere, returning the number actually removed.
func (r *RingBuffer) Discard(n int) int {
	if n > r.count {
		n = r.count
	}
	r.head = (r.head + n) % len(r.buf)
	r.count -= n
	return n
}

// DrainFromTransport reads up to n bytes directly from rd into the free
// space at the buffer's tail, wrapping around the end of the backing
// array with at most two reads, avoiding a staging copy on the receive
// hot path. It returns the number of bytes accepted, which may be less
// than n if rd returns fewer bytes than requested or the buffer lacks
// room.
func (r *RingBuffer) DrainFromTransport(rd io.Reader, n int) (int, error) {
	if free := r.Free(); n > free {
		n = free
	}
	if n == 0 {
		return 0, nil
	}

	total := 0
	first := len(r.buf) - r.tail
	if first > n {
		first = n
	}
	if first > 0 {
		k, err := io.ReadFull(rd, r.buf[r.tail:r.tail+first])
		total += k
		r.tail = (r.tail + k) % len(r.buf)
		r.count += k
		if err != nil {
			return total, err
		}
	}

	if rest := n - total; rest > 0 && r.tail == 0 {
		k, err := io.ReadFull(rd, r.buf[:rest])
		total += k
		r.tail = (r.tail + k) % len(r.buf)
		r.count += k
		if err != nil {
			return total, err
		}
	}

	return total, nil
}

package valuation

import (
	"sync"

	"poolvault/internal/domain/pool"
)

// ringBuffer keeps the last N resolved views in memory.
// Oldest entries are dropped once capacity is reached; the buffer is
// owned by the valuation service, never shared as package state.
type ringBuffer struct {
	mu   sync.Mutex
	buf  []*pool.View
	next int
	full bool
}

func newRingBuffer(capacity int) *ringBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &ringBuffer{buf: make([]*pool.View, capacity)}
}

// Add records a resolved view, evicting the oldest beyond capacity
func (r *ringBuffer) Add(v *pool.View) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buf[r.next] = v
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
}

// Recent returns the stored views, newest first
func (r *ringBuffer) Recent() []*pool.View {
	r.mu.Lock()
	defer r.mu.Unlock()

	size := r.next
	if r.full {
		size = len(r.buf)
	}

	out := make([]*pool.View, 0, size)
	for i := 1; i <= size; i++ {
		idx := (r.next - i + len(r.buf)) % len(r.buf)
		out = append(out, r.buf[idx])
	}
	return out
}

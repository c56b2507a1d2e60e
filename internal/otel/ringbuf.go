package otel

import (
	"strings"
	"sync"
)

// DefaultRingSize is the default ring buffer capacity.
const DefaultRingSize = 1024

// RingBuffer is a fixed-size circular buffer of Events.
// Goroutine-safe for concurrent Push and read operations.
type RingBuffer struct {
	mu    sync.Mutex
	buf   []Event
	size  int
	head  int // next write position
	count int // valid entries, 0..size
}

// NewRingBuffer creates a ring buffer with the given capacity.
func NewRingBuffer(size int) *RingBuffer {
	if size <= 0 {
		size = DefaultRingSize
	}
	return &RingBuffer{
		buf:  make([]Event, size),
		size: size,
	}
}

// Push adds an event, overwriting the oldest if full.
// Extra is shallow-copied so callers may reuse their map.
func (r *RingBuffer) Push(e Event) {
	if e.Extra != nil {
		cp := make(map[string]any, len(e.Extra))
		for k, v := range e.Extra {
			cp[k] = v
		}
		e.Extra = cp
	}
	r.mu.Lock()
	r.buf[r.head] = e
	r.head = (r.head + 1) % r.size
	if r.count < r.size {
		r.count++
	}
	r.mu.Unlock()
}

// oldest returns the buffer index of the oldest valid entry. Caller holds mu.
func (r *RingBuffer) oldest() int {
	if r.count < r.size {
		return 0
	}
	return r.head
}

// Last returns the n most recent events, oldest first.
// Returns nil for n <= 0 and everything buffered when n exceeds Len;
// Last(Cap()) is a full copy.
func (r *RingBuffer) Last(n int) []Event {
	if n <= 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count == 0 {
		return nil
	}
	if n > r.count {
		n = r.count
	}
	out := make([]Event, n)
	start := (r.head - n + r.size) % r.size
	for i := range out {
		out[i] = r.buf[(start+i)%r.size]
	}
	return out
}

// Len returns the number of events currently in the buffer.
func (r *RingBuffer) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Cap returns the buffer capacity.
func (r *RingBuffer) Cap() int {
	return r.size
}

// Stats returns counts by EventKind over all buffered events.
func (r *RingBuffer) Stats() map[EventKind]int {
	r.mu.Lock()
	defer r.mu.Unlock()

	counts := make(map[EventKind]int)
	start := r.oldest()
	for i := 0; i < r.count; i++ {
		counts[r.buf[(start+i)%r.size].Kind]++
	}
	return counts
}

// CountSubsystem sums buffered events whose kind starts with "<subsystem>.".
func (r *RingBuffer) CountSubsystem(subsystem string) int {
	prefix := subsystem + "."
	n := 0
	for kind, c := range r.Stats() {
		if strings.HasPrefix(string(kind), prefix) {
			n += c
		}
	}
	return n
}

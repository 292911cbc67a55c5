// Package ring implements ObservationRing: a bounded, lossy FIFO of
// observations backed by a fixed-size array so a platform adapter can place
// it wholesale into sleep-preserved memory.
package ring

import "github.com/henryshunt/psn-node-go/internal/observation"

// Ring is a fixed-capacity single-producer single-consumer ring buffer.
// Overflow silently discards the oldest element to admit the newest, tracked
// with head/tail indices into a plain slice.
type Ring struct {
	data       []observation.Observation
	head, tail int // head: oldest element; tail: next write position
	count      int
}

// New creates a ring with the given fixed capacity.
func New(capacity int) *Ring {
	if capacity <= 0 {
		panic("ring: capacity must be positive")
	}
	return &Ring{data: make([]observation.Observation, capacity)}
}

// Capacity returns the ring's fixed capacity.
func (r *Ring) Capacity() int { return len(r.data) }

// Len returns the number of retained elements.
func (r *Ring) Len() int { return r.count }

// IsEmpty reports whether the ring holds no elements.
func (r *Ring) IsEmpty() bool { return r.count == 0 }

// IsFull reports whether the ring is at capacity.
func (r *Ring) IsFull() bool { return r.count == len(r.data) }

// Push always succeeds. If the ring is full, it silently drops the oldest
// element to make room for obs, preserving push order of retained elements.
// It reports whether this push forced an overflow eviction, for callers that
// want to track that as a metric.
func (r *Ring) Push(obs observation.Observation) (overflowed bool) {
	cap := len(r.data)
	if r.count == cap {
		// Overwrite the oldest slot in place and advance head past it.
		r.data[r.tail] = obs
		r.tail = (r.tail + 1) % cap
		r.head = r.tail
		return true
	}
	r.data[r.tail] = obs
	r.tail = (r.tail + 1) % cap
	r.count++
	return false
}

// PeekOldest returns the oldest retained observation without removing it.
func (r *Ring) PeekOldest() (observation.Observation, bool) {
	if r.count == 0 {
		return observation.Observation{}, false
	}
	return r.data[r.head], true
}

// PopOldest removes and returns the oldest retained observation.
func (r *Ring) PopOldest() (observation.Observation, bool) {
	if r.count == 0 {
		return observation.Observation{}, false
	}
	obs := r.data[r.head]
	r.head = (r.head + 1) % len(r.data)
	r.count--
	return obs, true
}

// Snapshot returns the retained observations oldest-first, for persistence
// by a platform adapter or for test assertions. It does not mutate the ring.
func (r *Ring) Snapshot() []observation.Observation {
	out := make([]observation.Observation, 0, r.count)
	for i := 0; i < r.count; i++ {
		out = append(out, r.data[(r.head+i)%len(r.data)])
	}
	return out
}

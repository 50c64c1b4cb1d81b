package audio

import (
	"sync"
	"sync/atomic"
)

// Frame is one stereo PCM frame handed to the output device.
type Frame struct {
	Left  int16
	Right int16
}

// SamplesPerFrame is the number of interleaved samples in one Frame.
const SamplesPerFrame = 2

// RingBuffer is a fixed-capacity FIFO of interleaved stereo int16 samples
// shared by exactly one producer and one consumer.
//
// Overflow policy is drop-newest: Push writes what fits and discards the
// rest. Dropped samples are counted and never reported as an error.
// Every operation holds the lock for a bounded copy and performs no I/O.
type RingBuffer struct {
	mu    sync.Mutex
	buf   []int16
	head  int // next write index
	tail  int // oldest valid sample
	count int

	dropped atomic.Uint64
}

// NewRingBuffer creates a ring buffer holding capacity samples.
// capacity is rounded up to a whole number of frames.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity < SamplesPerFrame {
		capacity = SamplesPerFrame
	}
	if capacity%SamplesPerFrame != 0 {
		capacity++
	}
	return &RingBuffer{buf: make([]int16, capacity)}
}

// Push appends as many samples as fit and returns the number written.
func (r *RingBuffer) Push(samples []int16) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.buf) - r.count
	if n > len(samples) {
		n = len(samples)
	}
	if dropped := len(samples) - n; dropped > 0 {
		r.dropped.Add(uint64(dropped))
	}
	if n == 0 {
		return 0
	}

	first := copy(r.buf[r.head:], samples[:n])
	if first < n {
		copy(r.buf, samples[first:n])
	}
	r.head = (r.head + n) % len(r.buf)
	r.count += n
	return n
}

// Pop removes up to len(dst) frames and returns how many were written to dst.
func (r *RingBuffer) Pop(dst []Frame) int {
	n, _ := r.PopFrames(dst)
	return n
}

// PopFrames is Pop that also reports the number of samples left in the
// buffer, both observed under the same lock.
func (r *RingBuffer) PopFrames(dst []Frame) (popped, remaining int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.count / SamplesPerFrame
	if n > len(dst) {
		n = len(dst)
	}

	size := len(r.buf)
	idx := r.tail
	for i := 0; i < n; i++ {
		dst[i].Left = r.buf[idx]
		idx++
		if idx == size {
			idx = 0
		}
		dst[i].Right = r.buf[idx]
		idx++
		if idx == size {
			idx = 0
		}
	}

	r.tail = idx
	r.count -= n * SamplesPerFrame
	return n, r.count
}

// Clear empties the buffer. The storage is kept.
func (r *RingBuffer) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.head = 0
	r.tail = 0
	r.count = 0
}

// Len returns the number of buffered samples.
func (r *RingBuffer) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Free returns the number of samples that can be pushed without dropping.
func (r *RingBuffer) Free() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buf) - r.count
}

// Cap returns the capacity in samples.
func (r *RingBuffer) Cap() int {
	return len(r.buf)
}

// Dropped returns the total number of samples discarded by Push.
func (r *RingBuffer) Dropped() uint64 {
	return r.dropped.Load()
}

package audio

import "sync/atomic"

// RingBuffer is a bounded single-producer/single-consumer queue of samples.
//
// The write index is advanced only by the producer (the capture callback) and
// the read index only by the consumer. Neither side locks or blocks. When the
// buffer is full the producer drops the incoming samples and counts them.
type RingBuffer struct {
	buf []float32

	write atomic.Uint64
	_     [56]byte // keep the indices on separate cache lines
	read  atomic.Uint64
	_     [56]byte

	dropped atomic.Uint64
}

// NewRingBuffer allocates a ring buffer holding up to capacity samples.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &RingBuffer{buf: make([]float32, capacity)}
}

// Push copies as many samples as fit and returns the number written.
// Samples that do not fit are discarded and added to the drop counter.
// Producer side only; never allocates.
func (rb *RingBuffer) Push(samples []float32) int {
	if len(samples) == 0 {
		return 0
	}

	w := rb.write.Load()
	r := rb.read.Load()
	size := uint64(len(rb.buf))
	free := size - (w - r)

	n := uint64(len(samples))
	if n > free {
		rb.dropped.Add(n - free)
		n = free
	}
	if n == 0 {
		return 0
	}

	start := w % size
	first := copy(rb.buf[start:], samples[:n])
	if uint64(first) < n {
		copy(rb.buf, samples[first:n])
	}

	rb.write.Store(w + n)
	return int(n)
}

// Drain appends every resident sample to dst in FIFO order and returns the
// extended slice. It never waits for more data. Consumer side only.
func (rb *RingBuffer) Drain(dst []float32) []float32 {
	r := rb.read.Load()
	w := rb.write.Load()
	n := w - r
	if n == 0 {
		return dst
	}

	size := uint64(len(rb.buf))
	start := r % size
	end := start + n
	if end <= size {
		dst = append(dst, rb.buf[start:end]...)
	} else {
		dst = append(dst, rb.buf[start:]...)
		dst = append(dst, rb.buf[:end-size]...)
	}

	rb.read.Store(w)
	return dst
}

// Len returns the number of samples waiting to be drained.
func (rb *RingBuffer) Len() int {
	return int(rb.write.Load() - rb.read.Load())
}

// Cap returns the fixed capacity in samples.
func (rb *RingBuffer) Cap() int {
	return len(rb.buf)
}

// Dropped returns the number of samples discarded since the last Reset.
func (rb *RingBuffer) Dropped() uint64 {
	return rb.dropped.Load()
}

// Reset empties the buffer and clears the drop counter. It must only be
// called while no producer is running.
func (rb *RingBuffer) Reset() {
	rb.read.Store(0)
	rb.write.Store(0)
	rb.dropped.Store(0)
}

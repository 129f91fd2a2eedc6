package queue

import "sync"

// Buffer is a bounded FIFO for raw frames that arrive before the
// service confirms the session. Frames are consumed exactly once, in
// arrival order, when the connection becomes ready, and dropped
// entirely on teardown.
//
// The bound protects against a service that opens the transport but
// never sends the ready confirmation: on overflow the oldest frame is
// dropped so the most recent traffic survives the wait.
type Buffer struct {
	mu       sync.Mutex
	frames   [][]byte
	capacity int
	dropped  uint64
}

// New creates a buffer holding at most capacity frames.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &Buffer{capacity: capacity}
}

// Push appends a frame, evicting the oldest one when full. Reports
// whether an eviction happened.
func (b *Buffer) Push(frame []byte) (evicted bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.frames) == b.capacity {
		b.frames = b.frames[1:]
		b.dropped++
		evicted = true
	}
	b.frames = append(b.frames, frame)
	return evicted
}

// Drain removes and returns all buffered frames in arrival order.
func (b *Buffer) Drain() [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	frames := b.frames
	b.frames = nil
	return frames
}

// Drop discards all buffered frames.
func (b *Buffer) Drop() {
	b.mu.Lock()
	b.frames = nil
	b.mu.Unlock()
}

// Len returns the number of buffered frames.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.frames)
}

// Dropped returns the total number of frames evicted on overflow.
func (b *Buffer) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

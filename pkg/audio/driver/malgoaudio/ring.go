// ABOUTME: Byte ring buffer between Play and the device callback
// ABOUTME: Underruns are filled with silence; writers can wait for free space
package malgoaudio

import (
	"context"
	"sync"
)

// RingBuffer provides a thread-safe circular buffer for mixed audio bytes
type RingBuffer struct {
	buffer   []byte
	readPos  int
	writePos int
	size     int
	count    int // Number of bytes currently in buffer
	silence  byte
	mu       sync.Mutex

	drained chan struct{}
}

// NewRingBuffer creates a ring buffer with given capacity in bytes
func NewRingBuffer(capacity int, silence byte) *RingBuffer {
	return &RingBuffer{
		buffer:  make([]byte, capacity),
		size:    capacity,
		silence: silence,
		drained: make(chan struct{}, 1),
	}
}

// Write adds bytes to the ring buffer and returns how many fit
func (rb *RingBuffer) Write(p []byte) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	written := 0
	for written < len(p) && rb.count < rb.size {
		n := copy(rb.buffer[rb.writePos:min(rb.size, rb.writePos+rb.size-rb.count)], p[written:])
		rb.writePos = (rb.writePos + n) % rb.size
		rb.count += n
		written += n
	}
	return written
}

// Read retrieves bytes from the ring buffer, filling any shortfall with silence
func (rb *RingBuffer) Read(p []byte) int {
	rb.mu.Lock()

	read := 0
	for read < len(p) && rb.count > 0 {
		n := copy(p[read:], rb.buffer[rb.readPos:min(rb.size, rb.readPos+rb.count)])
		rb.readPos = (rb.readPos + n) % rb.size
		rb.count -= n
		read += n
	}

	// Silence-fill remaining if underrun
	for i := read; i < len(p); i++ {
		p[i] = rb.silence
	}
	rb.mu.Unlock()

	if read > 0 {
		select {
		case rb.drained <- struct{}{}:
		default:
		}
	}
	return read
}

// Available returns the number of bytes available to read
func (rb *RingBuffer) Available() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.count
}

// Free returns the number of free bytes in the buffer
func (rb *RingBuffer) Free() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.size - rb.count
}

// WaitFree blocks until at least n bytes are free
func (rb *RingBuffer) WaitFree(ctx context.Context, n int) error {
	for rb.Free() < n {
		select {
		case <-rb.drained:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

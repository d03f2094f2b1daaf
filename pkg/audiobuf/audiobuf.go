// Package audiobuf provides the queued speech-output buffer a session
// speaks through. Frames are pushed by the response pipeline and drained
// by the transport; Clear drops everything queued and Stop shuts the
// buffer down so stale speech cannot leak into the next session.
package audiobuf

import (
	"errors"
	"sync"
)

// ErrStopped is returned by Push and Next after Stop.
var ErrStopped = errors.New("audiobuf: buffer stopped")

// Frame is one unit of queued speech output.
type Frame struct {
	// Text is the transcript of the frame, if known.
	Text string
	// Audio is the encoded audio payload, if any.
	Audio []byte
}

// Buffer is a thread-safe FIFO of speech frames.
type Buffer struct {
	notify chan struct{}

	mu      sync.Mutex
	frames  []Frame
	stopped bool
}

// New creates an empty buffer.
func New() *Buffer {
	return &Buffer{notify: make(chan struct{}, 1)}
}

// Push appends a frame to the queue.
func (b *Buffer) Push(f Frame) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return ErrStopped
	}
	b.frames = append(b.frames, f)
	select {
	case b.notify <- struct{}{}:
	default:
	}
	return nil
}

// Next removes and returns the oldest queued frame, blocking until a frame
// is available or the buffer is stopped.
func (b *Buffer) Next() (Frame, error) {
	b.mu.Lock()
	for len(b.frames) == 0 {
		if b.stopped {
			b.mu.Unlock()
			return Frame{}, ErrStopped
		}
		b.mu.Unlock()
		<-b.notify
		b.mu.Lock()
	}
	f := b.frames[0]
	b.frames = b.frames[1:]
	b.mu.Unlock()
	return f, nil
}

// Clear drops all queued frames without stopping the buffer.
func (b *Buffer) Clear() {
	b.mu.Lock()
	b.frames = nil
	b.mu.Unlock()
}

// Stop clears the queue, rejects further pushes, and unblocks any reader.
// Stopping an already stopped buffer is a no-op.
func (b *Buffer) Stop() {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	b.stopped = true
	b.frames = nil
	close(b.notify)
	b.mu.Unlock()
}

// Len returns the number of queued frames.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.frames)
}

// Stopped reports whether Stop has been called.
func (b *Buffer) Stopped() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stopped
}

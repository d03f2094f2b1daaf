package ingest

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/binfin8/haakeem-agent/pkg/room"
)

// Drain reads every chunk of a byte stream into one buffer. The stream must
// be fully drained before extraction starts.
func Drain(r room.ByteStreamReader) ([]byte, error) {
	var buf []byte
	for {
		chunk, err := r.Next()
		if len(chunk) > 0 {
			buf = append(buf, chunk...)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return buf, nil
			}
			return nil, fmt.Errorf("ingest: drain stream %q: %w", r.Info().ID, err)
		}
	}
}

// Accumulator buffers the chunks of in-flight uploads keyed by stream id.
// An entry exists from Open until Take or Abandon.
type Accumulator struct {
	mu      sync.Mutex
	pending map[string][][]byte
}

// NewAccumulator creates an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{pending: make(map[string][][]byte)}
}

// Open starts accumulation for a stream id. Opening an already open id
// resets its buffered chunks.
func (a *Accumulator) Open(id string) {
	a.mu.Lock()
	a.pending[id] = nil
	a.mu.Unlock()
}

// Append adds a chunk to an open stream. Chunks for unknown ids are
// dropped; the stream was abandoned.
func (a *Accumulator) Append(id string, chunk []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.pending[id]; !ok {
		return
	}
	// Copy: the caller may reuse the chunk's backing array.
	c := make([]byte, len(chunk))
	copy(c, chunk)
	a.pending[id] = append(a.pending[id], c)
}

// Take joins and removes the buffered chunks for a stream id.
func (a *Accumulator) Take(id string) ([]byte, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	chunks, ok := a.pending[id]
	if !ok {
		return nil, false
	}
	delete(a.pending, id)
	var n int
	for _, c := range chunks {
		n += len(c)
	}
	buf := make([]byte, 0, n)
	for _, c := range chunks {
		buf = append(buf, c...)
	}
	return buf, true
}

// Abandon discards the buffered chunks for a stream id.
func (a *Accumulator) Abandon(id string) {
	a.mu.Lock()
	delete(a.pending, id)
	a.mu.Unlock()
}

// Len returns the number of in-flight uploads.
func (a *Accumulator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

package roomws

import (
	"io"
	"sync"

	"github.com/binfin8/haakeem-agent/pkg/ingest"
	"github.com/binfin8/haakeem-agent/pkg/room"
)

// streamReader delivers one byte stream to its handler. Chunks accumulate
// in the connection's ingest accumulator while the stream is open; Next
// blocks until the stream closes, then hands over the assembled payload.
// Uploads are extracted only after a full drain, so assembling on close
// loses nothing and keeps the read loop free of backpressure.
type streamReader struct {
	info room.StreamInfo
	acc  *ingest.Accumulator

	notify chan struct{}
	mu     sync.Mutex
	done   bool // stream closed, payload ready to take
	taken  bool
	closed bool // consumer abandoned the stream
}

func newStreamReader(info room.StreamInfo, acc *ingest.Accumulator) *streamReader {
	acc.Open(info.ID)
	return &streamReader{
		info:   info,
		acc:    acc,
		notify: make(chan struct{}, 1),
	}
}

// Info returns the stream descriptor.
func (r *streamReader) Info() room.StreamInfo { return r.info }

// Next blocks until the stream ends, returns the full payload once, then
// io.EOF.
func (r *streamReader) Next() ([]byte, error) {
	for {
		r.mu.Lock()
		if r.closed || r.taken {
			r.mu.Unlock()
			return nil, io.EOF
		}
		if r.done {
			r.taken = true
			r.mu.Unlock()
			data, ok := r.acc.Take(r.info.ID)
			if !ok || len(data) == 0 {
				return nil, io.EOF
			}
			return data, nil
		}
		r.mu.Unlock()

		<-r.notify
	}
}

// Close abandons the stream; accumulated chunks are discarded and any
// blocked Next returns io.EOF.
func (r *streamReader) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.acc.Abandon(r.info.ID)
	r.wake()
	return nil
}

// finish marks the end of the stream; the accumulated payload stays
// available for Next.
func (r *streamReader) finish() {
	r.mu.Lock()
	r.done = true
	r.mu.Unlock()
	r.wake()
}

// abort ends the stream and discards the payload, used when the connection
// dies mid-stream.
func (r *streamReader) abort() {
	r.mu.Lock()
	r.done = true
	r.mu.Unlock()
	r.acc.Abandon(r.info.ID)
	r.wake()
}

func (r *streamReader) wake() {
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

var _ room.ByteStreamReader = (*streamReader)(nil)

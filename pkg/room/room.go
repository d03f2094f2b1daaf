// Package room defines the boundary to the room/transport layer. The media
// plane (join, publish, subscribe, audio tracks) lives behind these
// interfaces; the worker only depends on the control surface: RPC
// invocations, data packets, byte-stream uploads and a best-effort data
// publish.
package room

import "context"

// RPCHandler handles one RPC invocation from a participant.
type RPCHandler func(ctx context.Context, caller string)

// DataHandler handles one opaque data packet from a participant.
type DataHandler func(payload []byte, participant string)

// ByteStreamHandler handles one incoming byte stream. The handler owns the
// reader and is expected to drain it fully before extraction.
type ByteStreamHandler func(r ByteStreamReader, participant string)

// StreamInfo describes an incoming byte stream.
type StreamInfo struct {
	ID       string
	Name     string
	MIMEType string
	Size     int64
	Topic    string
}

// ByteStreamReader yields the chunks of one byte stream in order.
type ByteStreamReader interface {
	// Info returns the stream descriptor.
	Info() StreamInfo

	// Next returns the next chunk, or io.EOF when the stream ends.
	Next() ([]byte, error)

	// Close abandons the stream; buffered chunks are discarded.
	Close() error
}

// Room is the control-plane surface of the transport.
type Room interface {
	// RegisterRPC registers a handler for a named RPC method.
	RegisterRPC(method string, h RPCHandler) error

	// HandleData registers the handler for incoming data packets.
	HandleData(h DataHandler)

	// RegisterByteStream registers a handler for byte streams on a topic.
	// Registering the same topic twice returns an error.
	RegisterByteStream(topic string, h ByteStreamHandler) error

	// PublishData broadcasts a payload to the room. Best-effort: callers
	// log failures and move on.
	PublishData(ctx context.Context, payload []byte) error
}

// IO adapts a session's audio input/output to the room. The orchestrator
// attaches exactly one session at a time.
type IO interface {
	// Attach binds the session identified by id to the room's tracks.
	Attach(ctx context.Context, id string) error

	// Detach unbinds the currently attached session, if any.
	Detach(ctx context.Context) error

	// SetParticipant selects which participant's audio is routed to the
	// session input (multi-user rooms).
	SetParticipant(identity string)
}

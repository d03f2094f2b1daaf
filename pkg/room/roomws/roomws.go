// Package roomws is the websocket room adapter. One connection carries the
// room control plane as JSON frames: RPC invocations, data packets,
// byte-stream uploads split into base64 chunks, and outbound broadcasts.
// The media plane is out of scope; session attachment is signaled with
// lightweight control frames so the far side can route audio tracks.
package roomws

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/binfin8/haakeem-agent/pkg/ingest"
	"github.com/binfin8/haakeem-agent/pkg/room"
)

// Config carries the connection parameters.
type Config struct {
	// URL is the websocket endpoint (ws:// or wss://).
	URL string

	// Token is sent as a bearer token during the handshake.
	Token string

	// RoomName and Identity announce who is joining.
	RoomName string
	Identity string

	// HandshakeTimeout bounds the dial. Zero means 10s.
	HandshakeTimeout time.Duration
}

// frame is the wire format. Type selects which fields are meaningful.
type frame struct {
	ID     string `json:"id,omitempty"`
	Type   string `json:"type"`
	Caller string `json:"caller,omitempty"`

	// rpc
	Method string `json:"method,omitempty"`

	// data, publish
	Payload string `json:"payload,omitempty"`

	// stream_open / stream_chunk / stream_close
	StreamID string `json:"stream_id,omitempty"`
	Name     string `json:"name,omitempty"`
	MIMEType string `json:"mime_type,omitempty"`
	Size     int64  `json:"size,omitempty"`
	Topic    string `json:"topic,omitempty"`
	Chunk    string `json:"chunk,omitempty"`

	// attach / participant
	Session     string `json:"session,omitempty"`
	Participant string `json:"participant,omitempty"`
}

const (
	frameRPC         = "rpc"
	frameData        = "data"
	frameStreamOpen  = "stream_open"
	frameStreamChunk = "stream_chunk"
	frameStreamClose = "stream_close"
	framePublish     = "publish"
	frameAttach      = "attach"
	frameDetach      = "detach"
	frameParticipant = "participant"
)

// Conn is one websocket room connection. It implements room.Room and
// room.IO.
type Conn struct {
	conn      *websocket.Conn
	closeCh   chan struct{}
	closeOnce sync.Once

	writeMu sync.Mutex

	acc *ingest.Accumulator

	mu          sync.Mutex
	rpcHandlers map[string]room.RPCHandler
	dataHandler room.DataHandler
	topics      map[string]room.ByteStreamHandler
	streams     map[string]*streamReader
}

// Dial connects to the room endpoint and starts the background reader.
func Dial(ctx context.Context, cfg Config) (*Conn, error) {
	timeout := cfg.HandshakeTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	headers := http.Header{}
	if cfg.Token != "" {
		headers.Set("Authorization", "Bearer "+cfg.Token)
	}
	if cfg.RoomName != "" {
		headers.Set("X-Room-Name", cfg.RoomName)
	}
	if cfg.Identity != "" {
		headers.Set("X-Identity", cfg.Identity)
	}

	dialer := websocket.Dialer{HandshakeTimeout: timeout}
	wsConn, resp, err := dialer.DialContext(ctx, cfg.URL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("roomws: connect %s: status %d: %w", cfg.URL, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("roomws: connect %s: %w", cfg.URL, err)
	}

	c := &Conn{
		conn:        wsConn,
		closeCh:     make(chan struct{}),
		acc:         ingest.NewAccumulator(),
		rpcHandlers: map[string]room.RPCHandler{},
		topics:      map[string]room.ByteStreamHandler{},
		streams:     map[string]*streamReader{},
	}
	go c.readLoop()
	return c, nil
}

// RegisterRPC registers a handler for a named RPC method.
func (c *Conn) RegisterRPC(method string, h room.RPCHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, dup := c.rpcHandlers[method]; dup {
		return fmt.Errorf("roomws: rpc method %q already registered", method)
	}
	c.rpcHandlers[method] = h
	return nil
}

// HandleData registers the handler for incoming data packets. The last
// registration wins.
func (c *Conn) HandleData(h room.DataHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dataHandler = h
}

// RegisterByteStream registers a handler for byte streams on a topic.
func (c *Conn) RegisterByteStream(topic string, h room.ByteStreamHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, dup := c.topics[topic]; dup {
		return fmt.Errorf("roomws: byte stream topic %q already registered", topic)
	}
	c.topics[topic] = h
	return nil
}

// PublishData broadcasts a payload to the room.
func (c *Conn) PublishData(ctx context.Context, payload []byte) error {
	return c.send(frame{
		ID:      uuid.NewString(),
		Type:    framePublish,
		Payload: base64.StdEncoding.EncodeToString(payload),
	})
}

// Attach signals that the session identified by id is taking the room's
// audio tracks.
func (c *Conn) Attach(ctx context.Context, id string) error {
	return c.send(frame{ID: uuid.NewString(), Type: frameAttach, Session: id})
}

// Detach releases the currently attached session.
func (c *Conn) Detach(ctx context.Context) error {
	return c.send(frame{ID: uuid.NewString(), Type: frameDetach})
}

// SetParticipant routes the named participant's audio to the session input.
func (c *Conn) SetParticipant(identity string) {
	if err := c.send(frame{ID: uuid.NewString(), Type: frameParticipant, Participant: identity}); err != nil {
		slog.Warn("roomws: set participant failed", "identity", identity, "error", err)
	}
}

// Close tears the connection down. Open streams are abandoned so their
// handlers unblock.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeCh)
		err = c.conn.Close()

		c.mu.Lock()
		for id, sr := range c.streams {
			sr.abort()
			delete(c.streams, id)
		}
		c.mu.Unlock()
	})
	return err
}

// Done is closed when the connection ends, from either side.
func (c *Conn) Done() <-chan struct{} { return c.closeCh }

func (c *Conn) send(f frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	select {
	case <-c.closeCh:
		return fmt.Errorf("roomws: connection closed")
	default:
	}
	if err := c.conn.WriteJSON(f); err != nil {
		return fmt.Errorf("roomws: write %s frame: %w", f.Type, err)
	}
	return nil
}

func (c *Conn) readLoop() {
	defer c.Close()

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.closeCh:
			default:
				slog.Warn("roomws: read failed, closing", "error", err)
			}
			return
		}

		var f frame
		if err := json.Unmarshal(message, &f); err != nil {
			slog.Warn("roomws: undecodable frame ignored", "len", len(message), "error", err)
			continue
		}
		c.dispatch(f)
	}
}

func (c *Conn) dispatch(f frame) {
	switch f.Type {
	case frameRPC:
		c.mu.Lock()
		h := c.rpcHandlers[f.Method]
		c.mu.Unlock()
		if h == nil {
			slog.Warn("roomws: rpc for unregistered method", "method", f.Method)
			return
		}
		go h(context.Background(), f.Caller)

	case frameData:
		payload, err := base64.StdEncoding.DecodeString(f.Payload)
		if err != nil {
			slog.Warn("roomws: data frame with bad payload ignored", "error", err)
			return
		}
		c.mu.Lock()
		h := c.dataHandler
		c.mu.Unlock()
		if h != nil {
			go h(payload, f.Caller)
		}

	case frameStreamOpen:
		c.openStream(f)

	case frameStreamChunk:
		chunk, err := base64.StdEncoding.DecodeString(f.Chunk)
		if err != nil {
			slog.Warn("roomws: stream chunk with bad encoding dropped",
				"stream", f.StreamID, "error", err)
			return
		}
		c.mu.Lock()
		sr := c.streams[f.StreamID]
		c.mu.Unlock()
		if sr == nil {
			slog.Warn("roomws: chunk for unknown stream dropped", "stream", f.StreamID)
			return
		}
		c.acc.Append(f.StreamID, chunk)

	case frameStreamClose:
		c.mu.Lock()
		sr := c.streams[f.StreamID]
		delete(c.streams, f.StreamID)
		c.mu.Unlock()
		if sr != nil {
			sr.finish()
		}

	default:
		slog.Warn("roomws: unknown frame type ignored", "type", f.Type)
	}
}

func (c *Conn) openStream(f frame) {
	c.mu.Lock()
	h := c.topics[f.Topic]
	c.mu.Unlock()
	if h == nil {
		slog.Warn("roomws: stream on unregistered topic ignored",
			"topic", f.Topic, "stream", f.StreamID)
		return
	}

	c.mu.Lock()
	if _, dup := c.streams[f.StreamID]; dup {
		c.mu.Unlock()
		slog.Warn("roomws: duplicate stream open ignored", "stream", f.StreamID)
		return
	}
	sr := newStreamReader(room.StreamInfo{
		ID:       f.StreamID,
		Name:     f.Name,
		MIMEType: f.MIMEType,
		Size:     f.Size,
		Topic:    f.Topic,
	}, c.acc)
	c.streams[f.StreamID] = sr
	c.mu.Unlock()

	go h(sr, f.Caller)
}

var (
	_ room.Room = (*Conn)(nil)
	_ room.IO   = (*Conn)(nil)
)

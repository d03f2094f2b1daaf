package roomws

import (
	"bytes"
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/binfin8/haakeem-agent/pkg/ingest"
	"github.com/binfin8/haakeem-agent/pkg/room"
)

// testServer upgrades one websocket connection and records both directions.
type testServer struct {
	srv *httptest.Server

	mu       sync.Mutex
	conn     *websocket.Conn
	received []frame
	headers  http.Header
	gotConn  chan struct{}
	gotFrame chan struct{}
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{
		gotConn:  make(chan struct{}),
		gotFrame: make(chan struct{}, 64),
	}
	upgrader := websocket.Upgrader{}
	ts.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		ts.mu.Lock()
		ts.conn = conn
		ts.headers = r.Header.Clone()
		ts.mu.Unlock()
		close(ts.gotConn)

		for {
			var f frame
			if err := conn.ReadJSON(&f); err != nil {
				return
			}
			ts.mu.Lock()
			ts.received = append(ts.received, f)
			ts.mu.Unlock()
			select {
			case ts.gotFrame <- struct{}{}:
			default:
			}
		}
	}))
	t.Cleanup(ts.srv.Close)
	return ts
}

func (ts *testServer) url() string {
	return "ws" + strings.TrimPrefix(ts.srv.URL, "http")
}

func (ts *testServer) sendToClient(t *testing.T, f frame) {
	t.Helper()
	select {
	case <-ts.gotConn:
	case <-time.After(time.Second):
		t.Fatal("no client connected")
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if err := ts.conn.WriteJSON(f); err != nil {
		t.Fatalf("server write: %v", err)
	}
}

func (ts *testServer) waitFrame(t *testing.T, frameType string) frame {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		ts.mu.Lock()
		for _, f := range ts.received {
			if f.Type == frameType {
				ts.mu.Unlock()
				return f
			}
		}
		ts.mu.Unlock()
		select {
		case <-ts.gotFrame:
		case <-deadline:
			t.Fatalf("no %q frame received by server", frameType)
		}
	}
}

func dialTest(t *testing.T, ts *testServer) *Conn {
	t.Helper()
	c, err := Dial(context.Background(), Config{
		URL:      ts.url(),
		Token:    "tok",
		RoomName: "courtroom",
		Identity: "agent-1",
	})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestDial_SendsHandshakeHeaders(t *testing.T) {
	ts := newTestServer(t)
	dialTest(t, ts)

	<-ts.gotConn
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if got := ts.headers.Get("Authorization"); got != "Bearer tok" {
		t.Errorf("Authorization = %q", got)
	}
	if got := ts.headers.Get("X-Room-Name"); got != "courtroom" {
		t.Errorf("X-Room-Name = %q", got)
	}
	if got := ts.headers.Get("X-Identity"); got != "agent-1" {
		t.Errorf("X-Identity = %q", got)
	}
}

func TestDial_RefusedEndpoint(t *testing.T) {
	if _, err := Dial(context.Background(), Config{URL: "ws://127.0.0.1:1/room"}); err == nil {
		t.Fatal("Dial against a closed port should fail")
	}
}

func TestRPCDispatch(t *testing.T) {
	ts := newTestServer(t)
	c := dialTest(t, ts)

	called := make(chan string, 1)
	if err := c.RegisterRPC("start_turn", func(ctx context.Context, caller string) {
		called <- caller
	}); err != nil {
		t.Fatalf("RegisterRPC: %v", err)
	}
	if err := c.RegisterRPC("start_turn", func(ctx context.Context, caller string) {}); err == nil {
		t.Error("duplicate RPC registration should fail")
	}

	ts.sendToClient(t, frame{Type: frameRPC, Method: "start_turn", Caller: "user-3"})

	select {
	case caller := <-called:
		if caller != "user-3" {
			t.Errorf("caller = %q; want user-3", caller)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("rpc handler never invoked")
	}
}

func TestDataDispatch(t *testing.T) {
	ts := newTestServer(t)
	c := dialTest(t, ts)

	type packet struct {
		payload string
		from    string
	}
	got := make(chan packet, 1)
	c.HandleData(func(payload []byte, participant string) {
		got <- packet{string(payload), participant}
	})

	ts.sendToClient(t, frame{
		Type:    frameData,
		Caller:  "user-9",
		Payload: base64.StdEncoding.EncodeToString([]byte("switch_to_arabic")),
	})

	select {
	case p := <-got:
		if p.payload != "switch_to_arabic" || p.from != "user-9" {
			t.Errorf("packet = %+v", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("data handler never invoked")
	}

	// Undecodable payloads are dropped without reaching the handler.
	ts.sendToClient(t, frame{Type: frameData, Payload: "%%%not-base64%%%"})
	select {
	case p := <-got:
		t.Errorf("bad payload reached handler: %+v", p)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestByteStream_Reassembly(t *testing.T) {
	ts := newTestServer(t)
	c := dialTest(t, ts)

	type result struct {
		info room.StreamInfo
		data []byte
		from string
	}
	got := make(chan result, 1)
	err := c.RegisterByteStream("files", func(r room.ByteStreamReader, participant string) {
		data, derr := ingest.Drain(r)
		if derr != nil {
			t.Errorf("Drain: %v", derr)
		}
		got <- result{info: r.Info(), data: data, from: participant}
	})
	if err != nil {
		t.Fatalf("RegisterByteStream: %v", err)
	}
	if err := c.RegisterByteStream("files", func(room.ByteStreamReader, string) {}); err == nil {
		t.Error("duplicate topic registration should fail")
	}

	chunk := func(b []byte) string { return base64.StdEncoding.EncodeToString(b) }
	ts.sendToClient(t, frame{
		Type: frameStreamOpen, StreamID: "st-1", Topic: "files",
		Name: "brief.txt", MIMEType: "text/plain", Size: 11, Caller: "user-5",
	})
	ts.sendToClient(t, frame{Type: frameStreamChunk, StreamID: "st-1", Chunk: chunk([]byte("hello "))})
	ts.sendToClient(t, frame{Type: frameStreamChunk, StreamID: "st-1", Chunk: chunk([]byte("court"))})
	ts.sendToClient(t, frame{Type: frameStreamClose, StreamID: "st-1"})

	select {
	case r := <-got:
		if !bytes.Equal(r.data, []byte("hello court")) {
			t.Errorf("data = %q", r.data)
		}
		if r.info.Name != "brief.txt" || r.info.MIMEType != "text/plain" || r.info.ID != "st-1" {
			t.Errorf("info = %+v", r.info)
		}
		if r.from != "user-5" {
			t.Errorf("participant = %q", r.from)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stream handler never completed")
	}
}

func TestByteStream_UnregisteredTopicIgnored(t *testing.T) {
	ts := newTestServer(t)
	c := dialTest(t, ts)

	called := make(chan struct{}, 1)
	if err := c.RegisterByteStream("files", func(r room.ByteStreamReader, _ string) {
		called <- struct{}{}
	}); err != nil {
		t.Fatal(err)
	}

	ts.sendToClient(t, frame{Type: frameStreamOpen, StreamID: "st-x", Topic: "screenshots"})
	ts.sendToClient(t, frame{Type: frameStreamChunk, StreamID: "st-x", Chunk: "aGk="})
	ts.sendToClient(t, frame{Type: frameStreamClose, StreamID: "st-x"})

	select {
	case <-called:
		t.Error("handler invoked for a different topic")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPublishData(t *testing.T) {
	ts := newTestServer(t)
	c := dialTest(t, ts)

	if err := c.PublishData(context.Background(), []byte("active_agent:attorney")); err != nil {
		t.Fatalf("PublishData: %v", err)
	}

	f := ts.waitFrame(t, framePublish)
	decoded, err := base64.StdEncoding.DecodeString(f.Payload)
	if err != nil {
		t.Fatalf("payload not base64: %v", err)
	}
	if string(decoded) != "active_agent:attorney" {
		t.Errorf("payload = %q", decoded)
	}
	if f.ID == "" {
		t.Error("publish frame missing id")
	}
}

func TestAttachDetachParticipantFrames(t *testing.T) {
	ts := newTestServer(t)
	c := dialTest(t, ts)
	ctx := context.Background()

	if err := c.Attach(ctx, "attorney"); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if f := ts.waitFrame(t, frameAttach); f.Session != "attorney" {
		t.Errorf("attach session = %q", f.Session)
	}

	c.SetParticipant("user-2")
	if f := ts.waitFrame(t, frameParticipant); f.Participant != "user-2" {
		t.Errorf("participant = %q", f.Participant)
	}

	if err := c.Detach(ctx); err != nil {
		t.Fatalf("Detach: %v", err)
	}
	ts.waitFrame(t, frameDetach)
}

func TestClose_IsIdempotentAndAbortsStreams(t *testing.T) {
	ts := newTestServer(t)
	c := dialTest(t, ts)

	drained := make(chan error, 1)
	if err := c.RegisterByteStream("files", func(r room.ByteStreamReader, _ string) {
		_, err := ingest.Drain(r)
		drained <- err
	}); err != nil {
		t.Fatal(err)
	}

	ts.sendToClient(t, frame{Type: frameStreamOpen, StreamID: "st-1", Topic: "files"})
	// Give the open a moment to register before tearing down.
	time.Sleep(50 * time.Millisecond)

	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}

	select {
	case err := <-drained:
		if err != nil {
			t.Errorf("aborted stream should drain to EOF, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stream handler still blocked after Close")
	}

	select {
	case <-c.Done():
	default:
		t.Error("Done should be closed")
	}

	if err := c.PublishData(context.Background(), []byte("x")); err == nil {
		t.Error("publish after close should fail")
	}
}

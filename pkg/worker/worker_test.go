package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/binfin8/haakeem-agent/pkg/orchestrator"
	"github.com/binfin8/haakeem-agent/pkg/room"
	"github.com/binfin8/haakeem-agent/pkg/session"
	"github.com/binfin8/haakeem-agent/pkg/variant"
)

// fakeRoom implements room.Room and room.IO, capturing every registration
// so tests can drive the handlers directly.
type fakeRoom struct {
	mu        sync.Mutex
	rpcs      map[string]room.RPCHandler
	data      room.DataHandler
	topics    map[string]room.ByteStreamHandler
	topicRegs int
	published []string
	detaches  int
}

func newFakeRoom() *fakeRoom {
	return &fakeRoom{
		rpcs:   map[string]room.RPCHandler{},
		topics: map[string]room.ByteStreamHandler{},
	}
}

func (f *fakeRoom) RegisterRPC(method string, h room.RPCHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, dup := f.rpcs[method]; dup {
		return fmt.Errorf("method %q already registered", method)
	}
	f.rpcs[method] = h
	return nil
}

func (f *fakeRoom) HandleData(h room.DataHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data = h
}

func (f *fakeRoom) RegisterByteStream(topic string, h room.ByteStreamHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topicRegs++
	if _, dup := f.topics[topic]; dup {
		return fmt.Errorf("topic %q already registered", topic)
	}
	f.topics[topic] = h
	return nil
}

func (f *fakeRoom) PublishData(ctx context.Context, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, string(payload))
	return nil
}

func (f *fakeRoom) Attach(ctx context.Context, id string) error { return nil }
func (f *fakeRoom) Detach(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detaches++
	return nil
}
func (f *fakeRoom) SetParticipant(identity string) {}

func (f *fakeRoom) sendData(payload string, participant string) {
	f.mu.Lock()
	h := f.data
	f.mu.Unlock()
	h([]byte(payload), participant)
}

func (f *fakeRoom) callRPC(t *testing.T, method, caller string) {
	t.Helper()
	f.mu.Lock()
	h := f.rpcs[method]
	f.mu.Unlock()
	if h == nil {
		t.Fatalf("rpc method %q not registered", method)
	}
	h(context.Background(), caller)
}

// recordPipe is a minimal pipeline that records conversation writes.
type recordPipe struct {
	mu       sync.Mutex
	messages []string
	replies  int
}

func (p *recordPipe) SetAudioEnabled(bool) error        { return nil }
func (p *recordPipe) Interrupt() error                  { return nil }
func (p *recordPipe) CommitInput(context.Context) error { return nil }
func (p *recordPipe) AddMessage(role, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, role+":"+text)
	return nil
}
func (p *recordPipe) GenerateReply(context.Context, string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replies++
	return nil
}
func (p *recordPipe) Close() error { return nil }

type countingFactory struct {
	mu       sync.Mutex
	failLeft int
	calls    int
	pipes    []*recordPipe
}

func (f *countingFactory) NewSession(ctx context.Context, desc variant.Descriptor) (*session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failLeft > 0 {
		f.failLeft--
		return nil, errors.New("backend down")
	}
	p := &recordPipe{}
	f.pipes = append(f.pipes, p)
	return session.New(desc, p), nil
}

// chunkStream replays fixed chunks as a byte stream.
type chunkStream struct {
	info   room.StreamInfo
	chunks [][]byte
}

func (s *chunkStream) Info() room.StreamInfo { return s.info }
func (s *chunkStream) Next() ([]byte, error) {
	if len(s.chunks) == 0 {
		return nil, io.EOF
	}
	c := s.chunks[0]
	s.chunks = s.chunks[1:]
	return c, nil
}
func (s *chunkStream) Close() error { return nil }

func fastSequencer() *session.Sequencer {
	return &session.Sequencer{
		InitialGrace:    time.Millisecond,
		InterruptPause:  time.Millisecond,
		ContinuousGrace: time.Millisecond,
		ManualGrace:     time.Millisecond,
	}
}

func newTestWorker(f *countingFactory) (*Worker, *fakeRoom, *orchestrator.Orchestrator) {
	rm := newFakeRoom()
	orch := orchestrator.New(f, rm, rm, fastSequencer())
	orch.PreSwitchDelayContinuous = time.Millisecond
	orch.PreSwitchDelayManual = time.Millisecond
	orch.InterruptPause = time.Millisecond
	w := New(Config{FallbackDelay: 20 * time.Millisecond}, rm, orch)
	return w, rm, orch
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %s", what)
		default:
			time.Sleep(time.Millisecond)
		}
	}
}

func TestStart_BindsTransportAndStartsDefault(t *testing.T) {
	f := &countingFactory{}
	w, rm, orch := newTestWorker(f)

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	rm.mu.Lock()
	for _, method := range rpcMethods {
		if rm.rpcs[method] == nil {
			t.Errorf("rpc method %q not registered", method)
		}
	}
	if rm.data == nil {
		t.Error("data handler not registered")
	}
	if rm.topics[UploadTopic] == nil {
		t.Errorf("topic %q not registered", UploadTopic)
	}
	rm.mu.Unlock()

	if orch.Current() != variant.Default {
		t.Errorf("Current() = %q; want default %q", orch.Current(), variant.Default)
	}
	if !orch.Session().AudioEnabled() {
		t.Error("default variant is continuous; audio should be enabled")
	}
}

func TestStart_BindingIsIdempotent(t *testing.T) {
	f := &countingFactory{}
	w, rm, _ := newTestWorker(f)
	ctx := context.Background()

	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.topicRegs != 1 {
		t.Errorf("byte stream registrations = %d; want 1 across restarts", rm.topicRegs)
	}
}

func TestDataSwitchThenRPCTurn(t *testing.T) {
	f := &countingFactory{}
	w, rm, orch := newTestWorker(f)

	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	rm.sendData("switch_to_click_to_talk", "user-1")
	waitFor(t, "switch to click_to_talk", func() bool {
		return orch.Current() == variant.ClickToTalk
	})

	rm.callRPC(t, "start_turn", "user-1")
	s := orch.Session()
	if s.TurnState() != session.TurnListening {
		t.Errorf("turn state = %v; want listening", s.TurnState())
	}
	if !s.AudioEnabled() {
		t.Error("start_turn should enable audio")
	}

	rm.callRPC(t, "cancel_turn", "user-1")
	if s.AudioEnabled() {
		t.Error("cancel_turn should disable audio")
	}
}

func TestDataHandler_IgnoresUndecodablePayloads(t *testing.T) {
	f := &countingFactory{}
	w, rm, orch := newTestWorker(f)

	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	rm.sendData("\xff\xfe", "user-1")
	rm.sendData("definitely not a token", "user-1")
	w.background.Wait()

	if orch.Current() != variant.Default {
		t.Errorf("junk payloads changed the session: %q", orch.Current())
	}
}

func TestUploadStream_ReachesConversation(t *testing.T) {
	f := &countingFactory{}
	w, rm, orch := newTestWorker(f)

	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	rm.mu.Lock()
	h := rm.topics[UploadTopic]
	rm.mu.Unlock()

	h(&chunkStream{
		info: room.StreamInfo{Name: "contract.txt", MIMEType: "text/plain", Topic: UploadTopic},
		chunks: [][]byte{
			[]byte("the tenant shall "),
			[]byte("pay monthly"),
		},
	}, "user-4")

	h2 := orch.Session().History()
	if len(h2) != 1 {
		t.Fatalf("history = %v", h2)
	}
	if !strings.Contains(h2[0].Text, "the tenant shall pay monthly") ||
		!strings.Contains(h2[0].Text, "contract.txt") {
		t.Errorf("history entry = %q", h2[0].Text)
	}
}

func TestFallback_RecoversAfterDoubleFailure(t *testing.T) {
	f := &countingFactory{failLeft: 2}
	w, _, orch := newTestWorker(f)

	if err := w.Start(context.Background()); err == nil {
		t.Fatal("Start should surface the double failure")
	}
	if orch.Session() != nil {
		t.Fatal("no session should be live after a double failure")
	}

	// The deferred fallback fires once and recovers the room.
	waitFor(t, "fallback start", func() bool {
		return orch.Session() != nil
	})
	if orch.Current() != variant.Default {
		t.Errorf("fallback started %q; want default", orch.Current())
	}
}

func TestFallback_FiresAtMostOnce(t *testing.T) {
	f := &countingFactory{failLeft: 2}
	w, _, orch := newTestWorker(f)
	ctx := context.Background()

	if err := w.Start(ctx); err == nil {
		t.Fatal("Start should fail")
	}
	waitFor(t, "fallback start", func() bool { return orch.Session() != nil })

	f.mu.Lock()
	callsAfterRecovery := f.calls
	f.mu.Unlock()

	// A later failed switch schedules nothing new.
	w.scheduleFallback(ctx)
	time.Sleep(60 * time.Millisecond)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls != callsAfterRecovery {
		t.Errorf("factory calls grew from %d to %d; fallback must fire at most once",
			callsAfterRecovery, f.calls)
	}
}

func TestRun_ShutsDownOnCancel(t *testing.T) {
	f := &countingFactory{}
	w, rm, orch := newTestWorker(f)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	waitFor(t, "initial start", func() bool { return orch.Session() != nil })
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run never returned after cancel")
	}
	if orch.Session() != nil {
		t.Error("session should be torn down")
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.detaches != 1 {
		t.Errorf("detaches = %d; want 1", rm.detaches)
	}
}

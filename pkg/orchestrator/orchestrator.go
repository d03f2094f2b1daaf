// Package orchestrator owns the single live-session slot of a room worker:
// it serializes start/switch operations behind a single-flight guard,
// composes the teardown sequencer with variant construction, dispatches
// normalized commands, and injects completed file ingestions into whichever
// session is current.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/binfin8/haakeem-agent/pkg/command"
	"github.com/binfin8/haakeem-agent/pkg/ingest"
	"github.com/binfin8/haakeem-agent/pkg/room"
	"github.com/binfin8/haakeem-agent/pkg/session"
	"github.com/binfin8/haakeem-agent/pkg/variant"
)

// ErrSwitchInProgress is returned when a start-or-switch arrives while
// another one is still executing. The request is rejected, not queued:
// dropping a redundant switch is preferred over reordering.
var ErrSwitchInProgress = errors.New("orchestrator: switch already in progress")

// SessionFactory constructs a session (and its collaborator pipeline) for a
// variant descriptor.
type SessionFactory interface {
	NewSession(ctx context.Context, desc variant.Descriptor) (*session.Session, error)
}

// FactoryFunc adapts a function to SessionFactory.
type FactoryFunc func(ctx context.Context, desc variant.Descriptor) (*session.Session, error)

func (f FactoryFunc) NewSession(ctx context.Context, desc variant.Descriptor) (*session.Session, error) {
	return f(ctx, desc)
}

// Publisher broadcasts data to the room. room.Room satisfies it.
type Publisher interface {
	PublishData(ctx context.Context, payload []byte) error
}

// Orchestrator is the session-lifecycle state machine for one room worker.
type Orchestrator struct {
	// PreSwitchDelayContinuous and PreSwitchDelayManual follow the
	// lightweight pre-switch interrupt, proportional to how much
	// in-flight state the outgoing variant can hold.
	PreSwitchDelayContinuous time.Duration
	PreSwitchDelayManual     time.Duration

	// InterruptPause separates the repeated interrupts of a dispatched
	// interrupt command.
	InterruptPause time.Duration

	factory   SessionFactory
	io        room.IO
	publisher Publisher
	sequencer *session.Sequencer

	// switching is the switch guard: true exactly while one
	// start-or-switch executes end to end.
	switching atomic.Bool

	mu      sync.Mutex
	sess    *session.Session
	current variant.ID

	background sync.WaitGroup
}

// New creates an orchestrator with production delays.
func New(factory SessionFactory, io room.IO, publisher Publisher, seq *session.Sequencer) *Orchestrator {
	if seq == nil {
		seq = session.NewSequencer()
	}
	return &Orchestrator{
		PreSwitchDelayContinuous: 150 * time.Millisecond,
		PreSwitchDelayManual:     100 * time.Millisecond,
		InterruptPause:           50 * time.Millisecond,
		factory:                  factory,
		io:                       io,
		publisher:                publisher,
		sequencer:                seq,
	}
}

// Current returns the last successfully started variant id, or "" before
// the first start. It only changes when a start-or-switch completes: while
// a switch is executing, observers still see the outgoing variant.
func (o *Orchestrator) Current() variant.ID {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current
}

// Session returns the live session, or nil.
func (o *Orchestrator) Session() *session.Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sess
}

// StartOrSwitch tears down the active session, if any, and starts a session
// of the resolved variant. At most one StartOrSwitch executes at a time;
// concurrent calls get ErrSwitchInProgress immediately.
//
// On construction or attach failure the same target variant is retried
// exactly once; if the retry also fails the error is surfaced and the room
// is left without a session rather than silently starting a different
// variant.
func (o *Orchestrator) StartOrSwitch(ctx context.Context, id variant.ID) error {
	if !o.switching.CompareAndSwap(false, true) {
		slog.Info("switch rejected, another switch in progress", "requested", id)
		return ErrSwitchInProgress
	}
	defer o.switching.Store(false)

	desc := variant.Resolve(id)
	if desc.ID != id {
		slog.Warn("unknown variant requested, using fallback", "requested", id, "resolved", desc.ID)
	}

	o.mu.Lock()
	old := o.sess
	o.sess = nil
	o.mu.Unlock()

	if old != nil {
		o.preSwitchInterrupt(ctx, old)
		o.sequencer.Teardown(ctx, old, old.Variant.TurnMode)
		if err := o.io.Detach(ctx); err != nil {
			slog.Warn("detach failed", "variant", old.Variant.ID, "error", err)
		}
	}

	sess, err := o.startSession(ctx, desc)
	if err != nil {
		slog.Error("session start failed, retrying once", "variant", desc.ID, "error", err)
		sess, err = o.startSession(ctx, desc)
		if err != nil {
			return fmt.Errorf("orchestrator: start %s: %w", desc.ID, err)
		}
	}

	o.mu.Lock()
	o.sess = sess
	o.current = desc.ID
	o.mu.Unlock()

	sess.SetAudioEnabled(desc.DefaultAudioEnabled)
	slog.Info("session started",
		"variant", desc.ID, "mode", desc.TurnMode.String(), "audio", desc.DefaultAudioEnabled)

	o.publishActive(ctx, desc.ID)

	if err := sess.GenerateReply(ctx, desc.Greeting); err != nil {
		slog.Warn("greeting failed", "variant", desc.ID, "error", err)
	}
	return nil
}

// preSwitchInterrupt requests an immediate stop from the outgoing session
// before the full teardown runs.
func (o *Orchestrator) preSwitchInterrupt(ctx context.Context, old *session.Session) {
	delay := o.PreSwitchDelayManual
	if old.Variant.TurnMode != variant.TurnManual {
		old.SetAudioEnabled(false)
		delay = o.PreSwitchDelayContinuous
	}
	if err := old.Interrupt(); err != nil {
		slog.Warn("pre-switch interrupt failed", "variant", old.Variant.ID, "error", err)
	}
	sleep(ctx, delay)
}

func (o *Orchestrator) startSession(ctx context.Context, desc variant.Descriptor) (*session.Session, error) {
	sess, err := o.factory.NewSession(ctx, desc)
	if err != nil {
		return nil, fmt.Errorf("construct session: %w", err)
	}
	if err := o.io.Attach(ctx, string(desc.ID)); err != nil {
		if cerr := sess.Close(); cerr != nil {
			slog.Warn("closing unattached session failed", "variant", desc.ID, "error", cerr)
		}
		return nil, fmt.Errorf("attach session: %w", err)
	}
	return sess, nil
}

func (o *Orchestrator) publishActive(ctx context.Context, id variant.ID) {
	if o.publisher == nil {
		return
	}
	if err := o.publisher.PublishData(ctx, []byte("active_agent:"+string(id))); err != nil {
		slog.Warn("failed to broadcast active agent", "variant", id, "error", err)
	}
}

// Dispatch applies one normalized command to the current session. Turn
// control commands are no-ops unless the active variant's turn mode is
// manual. Dispatch never blocks on interrupt completion or file ingestion;
// those run as detached background tasks.
func (o *Orchestrator) Dispatch(ctx context.Context, cmd command.Command) error {
	switch c := cmd.(type) {
	case *command.StartTurn:
		if s, ok := o.manualSession(); ok {
			slog.Info("start turn", "caller", c.Caller)
			if c.Caller != "" {
				o.io.SetParticipant(c.Caller)
			}
			s.StartTurn()
		}

	case *command.EndTurn:
		if s, ok := o.manualSession(); ok {
			slog.Info("end turn", "caller", c.Caller)
			s.EndTurn(ctx)
		}

	case *command.CancelTurn:
		if s, ok := o.manualSession(); ok {
			slog.Info("cancel turn", "caller", c.Caller)
			s.CancelTurn()
		}

	case *command.SwitchTo:
		return o.StartOrSwitch(ctx, c.Variant)

	case *command.Interrupt:
		s := o.Session()
		if s == nil {
			slog.Warn("no active session to interrupt")
			return nil
		}
		o.background.Add(1)
		go func() {
			defer o.background.Done()
			o.hardInterrupt(ctx, s)
		}()

	case *command.Chat:
		s := o.Session()
		if s == nil {
			return nil
		}
		text := command.NormalizeBrand(c.Text)
		s.AppendContext("user", text)
		if err := s.GenerateReply(ctx, "Please respond helpfully and concisely."); err != nil {
			slog.Error("chat reply failed", "error", err)
		}

	case *command.FileUpload:
		o.background.Add(1)
		go func() {
			defer o.background.Done()
			o.IngestUpload(ctx, c.Data, c.MIMEType, c.FileName, c.Caller)
		}()

	default:
		slog.Warn("unhandled command", "command", cmd.Name())
	}
	return nil
}

// manualSession returns the live session only when its variant uses manual
// turn control.
func (o *Orchestrator) manualSession() (*session.Session, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.sess == nil || o.sess.Variant.TurnMode != variant.TurnManual {
		return nil, false
	}
	return o.sess, true
}

// hardInterrupt issues three spaced interrupts plus best-effort output and
// pipeline clearing. The session reference was taken at dispatch time; a
// concurrent switch may invalidate it, which is fine — every call below is
// best-effort against a possibly torn-down pipeline.
func (o *Orchestrator) hardInterrupt(ctx context.Context, s *session.Session) {
	for i := 1; i <= 3; i++ {
		if err := s.Interrupt(); err != nil {
			slog.Warn("interrupt failed", "attempt", i, "error", err)
		}
		sleep(ctx, o.InterruptPause)
	}
	p := s.Pipeline()
	if oc, ok := p.(session.OutputClearer); ok {
		if err := oc.ClearOutput(); err != nil {
			slog.Warn("interrupt: clear output failed", "error", err)
		}
	}
	if pc, ok := p.(session.PipelineClearer); ok {
		if err := pc.ClearPipeline(); err != nil {
			slog.Warn("interrupt: clear audio pipeline failed", "error", err)
		}
	}
	if os, ok := p.(session.OutputStopper); ok {
		if err := os.StopOutput(); err != nil {
			slog.Warn("interrupt: stop output failed", "error", err)
		}
	}
}

// IngestUpload extracts an uploaded file and injects the result into
// whichever session is current at completion time — if a switch happened
// mid-ingestion the summary lands in the new session. Every outcome,
// including unsupported types, becomes a conversational reply.
func (o *Orchestrator) IngestUpload(ctx context.Context, data []byte, mimeType, filename, source string) {
	slog.Info("processing upload", "file", filename, "mime", mimeType, "bytes", len(data), "from", source)

	res := ingest.Extract(data, mimeType, filename)

	s := o.Session()
	if s == nil {
		slog.Error("no session to receive upload", "file", filename)
		return
	}

	if res.Unsupported {
		instructions := fmt.Sprintf(
			"I received the file '%s', but I wasn't able to process this file type (%s). "+
				"I can help analyze PDF documents, text files, and images. "+
				"Please try uploading a supported file format.",
			filename, mimeType)
		if err := s.GenerateReply(ctx, instructions); err != nil {
			slog.Error("unsupported-upload reply failed", "file", filename, "error", err)
		}
		return
	}

	prompt := fmt.Sprintf(
		"I've received a file '%s' (%s) from %s. Here's the content:\n\n%s\n\n"+
			"Please analyze this document and provide legal insights or answer any questions about it.",
		filename, mimeType, source, res.Text)
	s.AppendContext("user", prompt)

	instructions := fmt.Sprintf(
		"You have received and analyzed the file '%s' via upload. "+
			"Provide a helpful summary and legal analysis of the document content. "+
			"Be thorough and professional in your response.",
		filename)
	if err := s.GenerateReply(ctx, instructions); err != nil {
		slog.Error("upload reply failed", "file", filename, "error", err)
	}
}

// Wait blocks until all detached background tasks finish. Used on worker
// shutdown.
func (o *Orchestrator) Wait() {
	o.background.Wait()
}

// Shutdown tears down the live session, if any, and waits for background
// tasks.
func (o *Orchestrator) Shutdown(ctx context.Context) {
	o.mu.Lock()
	s := o.sess
	o.sess = nil
	o.mu.Unlock()

	if s != nil {
		o.sequencer.Teardown(ctx, s, s.Variant.TurnMode)
		if err := o.io.Detach(ctx); err != nil {
			slog.Warn("detach on shutdown failed", "error", err)
		}
	}
	o.background.Wait()
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

// Package session holds the live state of one agent session and the timed
// teardown sequence that must run before the next session may start.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/binfin8/haakeem-agent/pkg/variant"
)

// TurnState tracks where a manual turn currently is.
type TurnState int

const (
	TurnIdle TurnState = iota
	TurnListening
	TurnCommitting
)

// String returns the string representation of the turn state.
func (ts TurnState) String() string {
	switch ts {
	case TurnListening:
		return "listening"
	case TurnCommitting:
		return "committing"
	default:
		return "idle"
	}
}

// DefaultCommitTimeout bounds how long EndTurn waits for a finalized
// transcript before responding with whatever input is available.
const DefaultCommitTimeout = 3 * time.Second

// Message is one role-tagged entry in the conversation context.
type Message struct {
	Role string
	Text string
}

// Session is the live instance of one agent variant. Exactly one session is
// live per room at any instant; that invariant belongs to the orchestrator,
// not to the session itself.
type Session struct {
	Variant variant.Descriptor

	// CommitTimeout overrides DefaultCommitTimeout when positive.
	CommitTimeout time.Duration

	mu           sync.Mutex
	pipeline     Pipeline
	turnState    TurnState
	audioEnabled bool
	closed       bool
	history      []Message
}

// New creates a session bound to a variant descriptor and its pipeline.
// Audio starts disabled; the orchestrator sets the initial state after
// attaching the session to the transport.
func New(desc variant.Descriptor, p Pipeline) *Session {
	return &Session{Variant: desc, pipeline: p}
}

// Pipeline returns the collaborator pipeline backing this session.
func (s *Session) Pipeline() Pipeline { return s.pipeline }

// TurnState returns the current turn state.
func (s *Session) TurnState() TurnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turnState
}

// AudioEnabled reports whether audio input is currently enabled.
func (s *Session) AudioEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.audioEnabled
}

// Closed reports whether Close has run.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// SetAudioEnabled gates the session's audio input. The pipeline call is
// best-effort; the recorded state changes regardless so the orchestration
// invariants hold even over a misbehaving pipeline.
func (s *Session) SetAudioEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setAudioEnabledLocked(enabled)
}

func (s *Session) setAudioEnabledLocked(enabled bool) {
	if err := s.pipeline.SetAudioEnabled(enabled); err != nil {
		slog.Warn("failed to set audio input", "variant", s.Variant.ID, "enabled", enabled, "error", err)
	}
	s.audioEnabled = enabled
}

// StartTurn begins a manual turn: any current agent speech is stopped, a
// previous partial turn is discarded, and audio input opens.
func (s *Session) StartTurn() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.pipeline.Interrupt(); err != nil {
		slog.Warn("start turn interrupt failed", "variant", s.Variant.ID, "error", err)
	}
	s.clearUserTurnLocked()
	s.setAudioEnabledLocked(true)
	s.turnState = TurnListening
}

// EndTurn closes audio input and commits the turn. The commit waits at most
// the commit timeout for a finalized transcript; on timeout the session
// still generates a reply from whatever partial input was captured, because
// the user must never be answered with silence.
func (s *Session) EndTurn(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.setAudioEnabledLocked(false)
	s.turnState = TurnCommitting

	timeout := s.CommitTimeout
	if timeout <= 0 {
		timeout = DefaultCommitTimeout
	}
	commitCtx, cancel := context.WithTimeout(ctx, timeout)
	err := s.pipeline.CommitInput(commitCtx)
	cancel()
	if err != nil {
		slog.Warn("turn commit incomplete, responding with partial input",
			"variant", s.Variant.ID, "error", err)
	}

	if err := s.pipeline.GenerateReply(ctx, ""); err != nil {
		slog.Error("reply generation failed", "variant", s.Variant.ID, "error", err)
	}
	s.turnState = TurnIdle
}

// CancelTurn closes audio input and discards the buffered turn.
func (s *Session) CancelTurn() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.setAudioEnabledLocked(false)
	s.clearUserTurnLocked()
	s.turnState = TurnIdle
}

func (s *Session) clearUserTurnLocked() {
	if tc, ok := s.pipeline.(TurnClearer); ok {
		if err := tc.ClearUserTurn(); err != nil {
			slog.Warn("failed to clear user turn", "variant", s.Variant.ID, "error", err)
		}
	}
}

// Interrupt forwards one interrupt to the pipeline.
func (s *Session) Interrupt() error {
	return s.pipeline.Interrupt()
}

// AppendContext appends a role-tagged message to the conversation context
// and mirrors it into the pipeline. The context is append-only for the
// session's life and discarded on close.
func (s *Session) AppendContext(role, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.history = append(s.history, Message{Role: role, Text: text})
	if err := s.pipeline.AddMessage(role, text); err != nil {
		slog.Warn("failed to mirror message into pipeline", "variant", s.Variant.ID, "error", err)
	}
}

// GenerateReply asks the pipeline for an agent response.
func (s *Session) GenerateReply(ctx context.Context, instructions string) error {
	if err := s.pipeline.GenerateReply(ctx, instructions); err != nil {
		return fmt.Errorf("session %s: generate reply: %w", s.Variant.ID, err)
	}
	return nil
}

// History returns a copy of the conversation context.
func (s *Session) History() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.history))
	copy(out, s.history)
	return out
}

// Close releases the pipeline and discards the conversation context.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.history = nil
	if err := s.pipeline.Close(); err != nil {
		return fmt.Errorf("session %s: close pipeline: %w", s.Variant.ID, err)
	}
	return nil
}

package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/binfin8/haakeem-agent/pkg/variant"
)

// Sequencer performs the ordered, timed shutdown of an active session so no
// audio or buffered output from the old variant can leak into the next one.
// Every step is independently best-effort: failures are logged and the
// sequence continues, because a stuck teardown must never prevent the next
// session from starting.
type Sequencer struct {
	// InitialGrace follows the audio-input disable on continuous-audio
	// variants, letting in-flight voice activity detection settle.
	InitialGrace time.Duration

	// InterruptPause separates the repeated interrupt calls.
	InterruptPause time.Duration

	// ContinuousGrace and ManualGrace are the final drain waits before
	// close. Continuous pipelines carry more in-flight state, so their
	// wait is longer.
	ContinuousGrace time.Duration
	ManualGrace     time.Duration
}

// NewSequencer returns a sequencer with the production delays.
func NewSequencer() *Sequencer {
	return &Sequencer{
		InitialGrace:    150 * time.Millisecond,
		InterruptPause:  100 * time.Millisecond,
		ContinuousGrace: 400 * time.Millisecond,
		ManualGrace:     200 * time.Millisecond,
	}
}

// interruptRepeat is how many times the interrupt is issued during
// teardown. A single interrupt in the underlying speech pipeline is not
// guaranteed to land; repetition is the defense against stale audio
// staying mid-playback.
const interruptRepeat = 3

// Teardown runs the shutdown sequence against a session. It never returns
// an error and always reaches the close step. The delays bound its
// wall-clock time; ctx cancellation shortens the waits but does not skip
// steps.
func (q *Sequencer) Teardown(ctx context.Context, s *Session, mode variant.TurnMode) {
	if s == nil {
		return
	}
	log := slog.With("variant", s.Variant.ID, "mode", mode.String())
	log.Info("tearing down session")

	p := s.Pipeline()

	// Disabling input is the most time-sensitive step: it stops new audio
	// entering the pipeline while the rest of the state drains.
	if mode != variant.TurnManual {
		s.SetAudioEnabled(false)
		q.sleep(ctx, q.InitialGrace)
	}

	if tc, ok := p.(TurnClearer); ok {
		if err := tc.ClearUserTurn(); err != nil {
			log.Warn("teardown: clear user turn failed", "error", err)
		}
	}

	for i := 1; i <= interruptRepeat; i++ {
		if err := p.Interrupt(); err != nil {
			log.Warn("teardown: interrupt failed", "attempt", i, "error", err)
		}
		q.sleep(ctx, q.InterruptPause)
	}

	if rc, ok := p.(ResponseClearer); ok {
		if err := rc.ClearResponse(); err != nil {
			log.Warn("teardown: clear response failed", "error", err)
		}
	}

	if oc, ok := p.(OutputClearer); ok {
		if err := oc.ClearOutput(); err != nil {
			log.Warn("teardown: clear output failed", "error", err)
		}
	}
	if os, ok := p.(OutputStopper); ok {
		if err := os.StopOutput(); err != nil {
			log.Warn("teardown: stop output failed", "error", err)
		}
	}

	if pc, ok := p.(PipelineClearer); ok {
		if err := pc.ClearPipeline(); err != nil {
			log.Warn("teardown: clear audio pipeline failed", "error", err)
		}
	}

	grace := q.ManualGrace
	if mode != variant.TurnManual {
		grace = q.ContinuousGrace
	}
	q.sleep(ctx, grace)

	if err := s.Close(); err != nil {
		log.Warn("teardown: close failed", "error", err)
	}
	log.Info("session torn down")
}

func (q *Sequencer) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

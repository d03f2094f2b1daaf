package session

import "context"

// Pipeline is the boundary to the speech/LLM/TTS collaborators backing a
// session. Implementations live outside the orchestration core.
type Pipeline interface {
	// SetAudioEnabled gates the audio input stream.
	SetAudioEnabled(enabled bool) error

	// Interrupt stops any in-flight agent speech. Not guaranteed
	// idempotent-and-complete on the first call; callers repeat it.
	Interrupt() error

	// CommitInput finalizes the buffered user input into a turn. Blocks
	// until the transcript is final or ctx expires.
	CommitInput(ctx context.Context) error

	// AddMessage appends a role-tagged message to the conversation.
	AddMessage(role, text string) error

	// GenerateReply produces an agent response, optionally steered by
	// one-off instructions.
	GenerateReply(ctx context.Context, instructions string) error

	// Close releases the pipeline. No calls are valid afterwards.
	Close() error
}

// Optional pipeline capabilities. Best-effort cleanup probes for these by
// type assertion; a pipeline implements whichever subset it supports.

// TurnClearer discards a partially accumulated user turn.
type TurnClearer interface {
	ClearUserTurn() error
}

// ResponseClearer drops any cached in-flight response state.
type ResponseClearer interface {
	ClearResponse() error
}

// OutputClearer drops buffered speech output.
type OutputClearer interface {
	ClearOutput() error
}

// OutputStopper halts speech synthesis output.
type OutputStopper interface {
	StopOutput() error
}

// PipelineClearer flushes the audio pipeline's internal buffers.
type PipelineClearer interface {
	ClearPipeline() error
}

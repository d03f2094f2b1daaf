// Package command normalizes the three transport-specific message shapes a
// room worker receives (RPC invocations, data-channel packets, chat lines)
// into one fixed set of control commands.
package command

import (
	"github.com/binfin8/haakeem-agent/pkg/variant"
)

// Ensure all command types implement Command.
var (
	_ Command = (*StartTurn)(nil)
	_ Command = (*EndTurn)(nil)
	_ Command = (*CancelTurn)(nil)
	_ Command = (*SwitchTo)(nil)
	_ Command = (*Interrupt)(nil)
	_ Command = (*Chat)(nil)
	_ Command = (*FileUpload)(nil)
)

// Command is the interface for normalized control commands.
type Command interface {
	isCommand()
	Name() string
}

// StartTurn begins a manual user turn.
type StartTurn struct {
	Caller string
}

func (*StartTurn) isCommand()   {}
func (*StartTurn) Name() string { return "start_turn" }

// EndTurn ends a manual user turn and requests a response.
type EndTurn struct {
	Caller string
}

func (*EndTurn) isCommand()   {}
func (*EndTurn) Name() string { return "end_turn" }

// CancelTurn discards the current manual user turn.
type CancelTurn struct {
	Caller string
}

func (*CancelTurn) isCommand()   {}
func (*CancelTurn) Name() string { return "cancel_turn" }

// SwitchTo requests a switch to another agent variant.
type SwitchTo struct {
	Variant variant.ID
	Caller  string
}

func (*SwitchTo) isCommand()   {}
func (*SwitchTo) Name() string { return "switch_to" }

// Interrupt stops any in-flight agent speech.
type Interrupt struct {
	Caller string
}

func (*Interrupt) isCommand()   {}
func (*Interrupt) Name() string { return "interrupt_agent" }

// Chat is a free-text chat line addressed to the agent.
type Chat struct {
	Text   string
	Caller string
}

func (*Chat) isCommand()   {}
func (*Chat) Name() string { return "chat" }

// FileUpload is a file delivered over the data channel as a JSON fallback
// for the byte-stream path.
type FileUpload struct {
	FileName string
	MIMEType string
	Data     []byte
	Caller   string
}

func (*FileUpload) isCommand()   {}
func (*FileUpload) Name() string { return "file_upload" }

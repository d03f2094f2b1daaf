package command

import (
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/binfin8/haakeem-agent/pkg/variant"
)

// Router resolves raw transport events into commands. It is stateless and
// transport-agnostic: turn-mode gating happens at dispatch, not here.
type Router struct{}

// RouteRPC resolves a named RPC invocation. Unknown methods are logged and
// ignored.
func (Router) RouteRPC(method, caller string) (Command, bool) {
	switch method {
	case "start_turn":
		return &StartTurn{Caller: caller}, true
	case "end_turn":
		return &EndTurn{Caller: caller}, true
	case "cancel_turn":
		return &CancelTurn{Caller: caller}, true
	default:
		slog.Info("ignoring unknown rpc method", "method", method, "caller", caller)
		return nil, false
	}
}

// RouteData resolves a data-channel payload. The payload is expected to be
// UTF-8 text carrying either an exact control token, a "chat:"-prefixed
// line, or a JSON file-upload fallback object. Anything else is logged and
// ignored; decoding failures never propagate to the caller.
func (Router) RouteData(payload []byte, caller string) (Command, bool) {
	if !utf8.Valid(payload) {
		slog.Info("ignoring undecodable data packet", "bytes", len(payload), "caller", caller)
		return nil, false
	}
	msg := string(payload)

	switch msg {
	case "start_turn":
		return &StartTurn{Caller: caller}, true
	case "end_turn":
		return &EndTurn{Caller: caller}, true
	case "cancel_turn":
		return &CancelTurn{Caller: caller}, true
	case "interrupt_agent":
		return &Interrupt{Caller: caller}, true
	}

	if id, ok := strings.CutPrefix(msg, "switch_to_"); ok {
		return &SwitchTo{Variant: variant.ID(id), Caller: caller}, true
	}

	if text, ok := strings.CutPrefix(msg, "chat:"); ok {
		return &Chat{Text: text, Caller: caller}, true
	}

	if cmd, ok := routeUploadFallback(msg, caller); ok {
		return cmd, true
	}

	slog.Info("ignoring unknown command", "message", msg, "caller", caller)
	return nil, false
}

// uploadFallback is the JSON shape clients use when the byte-stream path is
// unavailable.
type uploadFallback struct {
	Type     string `json:"type"`
	Data     string `json:"data"`
	FileName string `json:"fileName"`
	MIMEType string `json:"mimeType"`
}

func routeUploadFallback(msg, caller string) (Command, bool) {
	var f uploadFallback
	if err := json.Unmarshal([]byte(msg), &f); err != nil || f.Type != "file_upload" {
		return nil, false
	}
	data, err := base64.StdEncoding.DecodeString(f.Data)
	if err != nil {
		slog.Warn("file upload fallback with invalid base64 data", "file", f.FileName, "caller", caller)
		return nil, false
	}
	name := f.FileName
	if name == "" {
		name = "unknown.txt"
	}
	mime := f.MIMEType
	if mime == "" {
		mime = "application/octet-stream"
	}
	return &FileUpload{FileName: name, MIMEType: mime, Data: data, Caller: caller}, true
}

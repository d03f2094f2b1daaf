// Package openaipipe is the default session pipeline, backed by OpenAI chat
// completions. Replies are generated as text, split into sentence frames,
// and drained through the speech output buffer into a Sink that owns actual
// delivery (synthesis, room tracks). It implements every optional pipeline
// capability so interrupts and teardown can fully clear it.
package openaipipe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/binfin8/haakeem-agent/pkg/audiobuf"
	"github.com/binfin8/haakeem-agent/pkg/session"
	"github.com/binfin8/haakeem-agent/pkg/variant"
)

// Sink receives generated output. SendFrame carries incremental speech
// output; SendText carries the complete reply transcript.
type Sink interface {
	SendFrame(ctx context.Context, f audiobuf.Frame) error
	SendText(ctx context.Context, text string) error
}

// Config carries the API parameters shared by all sessions.
type Config struct {
	APIKey  string
	BaseURL string

	// Model defaults to gpt-4o.
	Model string

	MaxTokens int64
}

// Pipeline is one variant's conversation state plus the generation path.
type Pipeline struct {
	client openai.Client
	model  string
	maxTok int64
	voice  string
	sink   Sink
	out    *audiobuf.Buffer

	pumpDone chan struct{}

	mu        sync.Mutex
	messages  []openai.ChatCompletionMessageParamUnion
	pending   []string
	audioOn   bool
	genCancel context.CancelFunc
	closed    bool
}

// New builds a pipeline for one variant descriptor. The descriptor's
// instructions become the system message; the sink receives all output.
func New(cfg Config, desc variant.Descriptor, sink Sink) *Pipeline {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	model := cfg.Model
	if model == "" {
		model = openai.ChatModelGPT4o
	}

	p := &Pipeline{
		client:   openai.NewClient(opts...),
		model:    model,
		maxTok:   cfg.MaxTokens,
		voice:    desc.Voice,
		sink:     sink,
		out:      audiobuf.New(),
		pumpDone: make(chan struct{}),
		messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(desc.Instructions),
		},
	}
	go p.pump()
	return p
}

// Voice returns the synthesis voice for this pipeline's variant. Sinks that
// synthesize use it; the pipeline itself only carries it.
func (p *Pipeline) Voice() string { return p.voice }

// pump drains the output buffer into the sink until the buffer stops.
func (p *Pipeline) pump() {
	defer close(p.pumpDone)
	for {
		f, err := p.out.Next()
		if err != nil {
			return
		}
		if err := p.sink.SendFrame(context.Background(), f); err != nil {
			slog.Warn("output frame delivery failed", "error", err)
		}
	}
}

// SetAudioEnabled records the audio input gate. The pipeline has no audio
// capture of its own; the transport consults this state.
func (p *Pipeline) SetAudioEnabled(enabled bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.audioOn = enabled
	return nil
}

// AudioEnabled reports the recorded input gate.
func (p *Pipeline) AudioEnabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.audioOn
}

// AppendTranscript adds a partial speech transcript to the uncommitted
// turn. CommitInput turns the accumulated parts into one user message.
func (p *Pipeline) AppendTranscript(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || text == "" {
		return
	}
	p.pending = append(p.pending, text)
}

// CommitInput finalizes the uncommitted turn into a user message. An empty
// turn commits to nothing and is not an error.
func (p *Pipeline) CommitInput(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.pending) == 0 {
		return nil
	}
	text := strings.Join(p.pending, " ")
	p.pending = nil
	p.messages = append(p.messages, openai.UserMessage(text))
	return nil
}

// AddMessage appends a role-tagged message to the conversation.
func (p *Pipeline) AddMessage(role, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.New("openaipipe: pipeline closed")
	}
	switch role {
	case "system":
		p.messages = append(p.messages, openai.SystemMessage(text))
	case "assistant":
		p.messages = append(p.messages, openai.AssistantMessage(text))
	default:
		p.messages = append(p.messages, openai.UserMessage(text))
	}
	return nil
}

// GenerateReply produces one assistant reply and queues it for output.
// Non-empty instructions steer this reply only; they are not added to the
// conversation. A concurrent Interrupt cancels the in-flight request.
func (p *Pipeline) GenerateReply(ctx context.Context, instructions string) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return errors.New("openaipipe: pipeline closed")
	}
	msgs := make([]openai.ChatCompletionMessageParamUnion, len(p.messages), len(p.messages)+1)
	copy(msgs, p.messages)
	if instructions != "" {
		msgs = append(msgs, openai.SystemMessage(instructions))
	}

	genCtx, cancel := context.WithCancel(ctx)
	p.genCancel = cancel
	p.mu.Unlock()
	defer func() {
		cancel()
		p.mu.Lock()
		if p.genCancel != nil {
			p.genCancel = nil
		}
		p.mu.Unlock()
	}()

	params := openai.ChatCompletionNewParams{
		Model:    p.model,
		Messages: msgs,
	}
	if p.maxTok > 0 {
		params.MaxTokens = openai.Int(p.maxTok)
	}

	resp, err := p.client.Chat.Completions.New(genCtx, params)
	if err != nil {
		return fmt.Errorf("openaipipe: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return errors.New("openaipipe: empty completion")
	}
	text := resp.Choices[0].Message.Content

	p.mu.Lock()
	p.messages = append(p.messages, openai.AssistantMessage(text))
	p.mu.Unlock()

	for _, sentence := range splitSentences(text) {
		if err := p.out.Push(audiobuf.Frame{Text: sentence}); err != nil {
			break
		}
	}
	if err := p.sink.SendText(ctx, text); err != nil {
		slog.Warn("reply transcript delivery failed", "error", err)
	}
	return nil
}

// Interrupt cancels any in-flight generation and drops queued output.
func (p *Pipeline) Interrupt() error {
	p.mu.Lock()
	cancel := p.genCancel
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	p.out.Clear()
	return nil
}

// ClearUserTurn discards the uncommitted turn.
func (p *Pipeline) ClearUserTurn() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = nil
	return nil
}

// ClearResponse cancels the in-flight generation, if any.
func (p *Pipeline) ClearResponse() error {
	p.mu.Lock()
	cancel := p.genCancel
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

// ClearOutput drops all queued output frames.
func (p *Pipeline) ClearOutput() error {
	p.out.Clear()
	return nil
}

// StopOutput halts current delivery: in-flight generation is canceled and
// the queue is dropped. The pipeline stays usable.
func (p *Pipeline) StopOutput() error {
	if err := p.ClearResponse(); err != nil {
		return err
	}
	p.out.Clear()
	return nil
}

// ClearPipeline resets all transient state: the uncommitted turn and the
// output queue. The conversation itself is kept.
func (p *Pipeline) ClearPipeline() error {
	p.mu.Lock()
	p.pending = nil
	p.mu.Unlock()
	p.out.Clear()
	return nil
}

// Close cancels generation, stops the output buffer and waits for the pump
// to exit. Idempotent.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	cancel := p.genCancel
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	p.out.Stop()
	<-p.pumpDone
	return nil
}

// NewSessionFactory returns a factory constructing one pipeline-backed
// session per variant descriptor.
func NewSessionFactory(cfg Config, sink Sink) func(ctx context.Context, desc variant.Descriptor) (*session.Session, error) {
	return func(ctx context.Context, desc variant.Descriptor) (*session.Session, error) {
		if cfg.APIKey == "" {
			return nil, errors.New("openaipipe: missing API key")
		}
		return session.New(desc, New(cfg, desc, sink)), nil
	}
}

// splitSentences cuts a reply into delivery-sized frames on sentence
// boundaries. Text without terminal punctuation comes back whole.
func splitSentences(text string) []string {
	var out []string
	var sb strings.Builder
	for _, r := range text {
		sb.WriteRune(r)
		switch r {
		case '.', '!', '?', '؟', '。':
			if s := strings.TrimSpace(sb.String()); s != "" {
				out = append(out, s)
			}
			sb.Reset()
		}
	}
	if s := strings.TrimSpace(sb.String()); s != "" {
		out = append(out, s)
	}
	return out
}

var (
	_ session.Pipeline        = (*Pipeline)(nil)
	_ session.TurnClearer     = (*Pipeline)(nil)
	_ session.ResponseClearer = (*Pipeline)(nil)
	_ session.OutputClearer   = (*Pipeline)(nil)
	_ session.OutputStopper   = (*Pipeline)(nil)
	_ session.PipelineClearer = (*Pipeline)(nil)
)

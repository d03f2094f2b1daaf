// Package worker binds the room transport to the orchestration core: it
// registers the RPC methods and data handler, binds the upload topic once
// for the life of the room binding, starts the default variant, and owns
// the recovery policy when a start fails outright.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/binfin8/haakeem-agent/pkg/command"
	"github.com/binfin8/haakeem-agent/pkg/ingest"
	"github.com/binfin8/haakeem-agent/pkg/orchestrator"
	"github.com/binfin8/haakeem-agent/pkg/room"
	"github.com/binfin8/haakeem-agent/pkg/variant"
)

// UploadTopic is the byte-stream topic file uploads arrive on.
const UploadTopic = "files"

var rpcMethods = []string{"start_turn", "end_turn", "cancel_turn"}

// Config tunes the worker.
type Config struct {
	// DefaultVariant is started when the worker comes up and when the
	// fallback fires. Zero value means the registry default.
	DefaultVariant variant.ID

	// FallbackDelay is how long after a double start failure the single
	// deferred fallback start runs. Zero means 5s.
	FallbackDelay time.Duration
}

// Worker wires one room connection to one orchestrator.
type Worker struct {
	cfg    Config
	rm     room.Room
	orch   *orchestrator.Orchestrator
	router command.Router

	bindOnce     sync.Once
	fallbackOnce sync.Once
	background   sync.WaitGroup
}

// New creates a worker over an established room connection.
func New(cfg Config, rm room.Room, orch *orchestrator.Orchestrator) *Worker {
	if cfg.DefaultVariant == "" {
		cfg.DefaultVariant = variant.Default
	}
	if cfg.FallbackDelay <= 0 {
		cfg.FallbackDelay = 5 * time.Second
	}
	return &Worker{cfg: cfg, rm: rm, orch: orch}
}

// Start registers all transport handlers and starts the default variant.
// Handler registration happens at most once per worker regardless of how
// many times Start is called; the upload topic binding in particular must
// survive every session create/destroy that follows.
func (w *Worker) Start(ctx context.Context) error {
	w.bindOnce.Do(func() { w.bind(ctx) })

	if err := w.orch.StartOrSwitch(ctx, w.cfg.DefaultVariant); err != nil {
		slog.Error("initial session start failed", "variant", w.cfg.DefaultVariant, "error", err)
		w.scheduleFallback(ctx)
		return err
	}
	return nil
}

// Run starts the worker and blocks until ctx is canceled, then shuts the
// orchestrator down. A failed initial start does not abort Run: the room
// stays connected so the deferred fallback and operator switch commands can
// still recover it.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.Start(ctx); err != nil {
		slog.Warn("worker running without an active session", "error", err)
	}

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	w.orch.Shutdown(shutdownCtx)
	w.background.Wait()
	return nil
}

func (w *Worker) bind(ctx context.Context) {
	for _, method := range rpcMethods {
		method := method
		err := w.rm.RegisterRPC(method, func(ctx context.Context, caller string) {
			cmd, ok := w.router.RouteRPC(method, caller)
			if !ok {
				return
			}
			w.dispatch(ctx, cmd)
		})
		if err != nil {
			slog.Warn("rpc registration skipped", "method", method, "error", err)
		}
	}

	w.rm.HandleData(func(payload []byte, participant string) {
		cmd, ok := w.router.RouteData(payload, participant)
		if !ok {
			return
		}
		// Never block the transport reader on a switch or ingestion.
		w.background.Add(1)
		go func() {
			defer w.background.Done()
			w.dispatch(ctx, cmd)
		}()
	})

	if err := w.rm.RegisterByteStream(UploadTopic, w.onUpload); err != nil {
		// Already bound from an earlier room binding; the existing handler
		// keeps serving.
		slog.Info("upload topic already bound", "topic", UploadTopic, "error", err)
	}
}

func (w *Worker) dispatch(ctx context.Context, cmd command.Command) {
	err := w.orch.Dispatch(ctx, cmd)
	switch {
	case err == nil:
	case errors.Is(err, orchestrator.ErrSwitchInProgress):
		slog.Info("command dropped, switch in progress", "command", cmd.Name())
	default:
		slog.Error("command failed", "command", cmd.Name(), "error", err)
		if _, isSwitch := cmd.(*command.SwitchTo); isSwitch {
			w.scheduleFallback(ctx)
		}
	}
}

// onUpload drains one byte stream fully, then hands the bytes to the
// orchestrator for extraction and injection.
func (w *Worker) onUpload(r room.ByteStreamReader, participant string) {
	info := r.Info()
	data, err := ingest.Drain(r)
	if err != nil {
		slog.Error("upload stream drain failed", "file", info.Name, "error", err)
		return
	}
	w.orch.IngestUpload(context.Background(), data, info.MIMEType, info.Name, participant)
}

// scheduleFallback arms the one deferred recovery start of the default
// variant. A start or switch has already failed twice by the time this is
// called; without it the room would sit silent until an operator notices.
// It fires at most once per worker.
func (w *Worker) scheduleFallback(ctx context.Context) {
	w.fallbackOnce.Do(func() {
		slog.Warn("scheduling fallback start", "variant", w.cfg.DefaultVariant, "delay", w.cfg.FallbackDelay)
		w.background.Add(1)
		go func() {
			defer w.background.Done()
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.cfg.FallbackDelay):
			}
			if w.orch.Session() != nil {
				return
			}
			if err := w.orch.StartOrSwitch(ctx, w.cfg.DefaultVariant); err != nil {
				slog.Error("fallback start failed", "variant", w.cfg.DefaultVariant, "error", err)
			}
		}()
	})
}

package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/binfin8/haakeem-agent/cmd/haakeem-agent/internal/config"
	"github.com/binfin8/haakeem-agent/pkg/audiobuf"
	"github.com/binfin8/haakeem-agent/pkg/openaipipe"
	"github.com/binfin8/haakeem-agent/pkg/orchestrator"
	"github.com/binfin8/haakeem-agent/pkg/room/roomws"
	"github.com/binfin8/haakeem-agent/pkg/session"
	"github.com/binfin8/haakeem-agent/pkg/variant"
	"github.com/binfin8/haakeem-agent/pkg/worker"
)

var (
	flagConfig   string
	flagURL      string
	flagToken    string
	flagRoomName string
	flagVariant  string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the room worker",
	Long: `Connects to the room, starts the default agent variant, and serves
commands until interrupted. Flags override the config file.`,
	RunE: runWorker,
}

func init() {
	runCmd.Flags().StringVarP(&flagConfig, "config", "f", "", "YAML config file")
	runCmd.Flags().StringVar(&flagURL, "url", "", "room websocket URL")
	runCmd.Flags().StringVar(&flagToken, "token", "", "room access token")
	runCmd.Flags().StringVar(&flagRoomName, "room-name", "", "room name")
	runCmd.Flags().StringVar(&flagVariant, "default-variant", "", "variant started on boot")

	rootCmd.AddCommand(runCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	level := slog.LevelInfo
	if IsVerbose() {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	if flagURL != "" {
		cfg.Room.URL = flagURL
	}
	if flagToken != "" {
		cfg.Room.Token = flagToken
	}
	if flagRoomName != "" {
		cfg.Room.Name = flagRoomName
	}
	if flagVariant != "" {
		cfg.Agent.DefaultVariant = flagVariant
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, err := roomws.Dial(ctx, roomws.Config{
		URL:      cfg.Room.URL,
		Token:    cfg.Room.Token,
		RoomName: cfg.Room.Name,
		Identity: cfg.Agent.Identity,
	})
	if err != nil {
		return err
	}
	defer conn.Close()

	slog.Info("connected to room",
		"url", cfg.Room.URL, "room", cfg.Room.Name,
		"agent", cfg.Agent.Name, "identity", cfg.Agent.Identity)

	factory := openaipipe.NewSessionFactory(openaipipe.Config{
		APIKey:    cfg.OpenAI.APIKey,
		BaseURL:   cfg.OpenAI.BaseURL,
		Model:     cfg.OpenAI.Model,
		MaxTokens: cfg.OpenAI.MaxTokens,
	}, &roomSink{conn: conn})

	orch := orchestrator.New(orchestrator.FactoryFunc(factory), conn, conn, session.NewSequencer())
	w := worker.New(worker.Config{
		DefaultVariant: variant.ID(cfg.Agent.DefaultVariant),
		FallbackDelay:  cfg.Agent.FallbackDelay,
	}, conn, orch)

	// A dropped connection ends the run the same way a signal does.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-conn.Done()
		cancel()
	}()

	return w.Run(runCtx)
}

// roomSink delivers generated output over the room's data channel. A media
// transport would synthesize frames to audio tracks instead; over the
// control plane each frame and transcript goes out as a tagged broadcast.
type roomSink struct {
	conn *roomws.Conn
}

func (s *roomSink) SendFrame(ctx context.Context, f audiobuf.Frame) error {
	if f.Text == "" {
		return nil
	}
	return s.conn.PublishData(ctx, []byte("agent_speech:"+f.Text))
}

func (s *roomSink) SendText(ctx context.Context, text string) error {
	return s.conn.PublishData(ctx, fmt.Appendf(nil, "agent_response:%s", text))
}

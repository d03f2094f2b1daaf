package commands

import (
	"github.com/spf13/cobra"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "haakeem-agent",
	Short: "HAAKEEM room worker",
	Long: `haakeem-agent - one room worker hosting the HAAKEEM voice agent.

The worker joins a single room, starts the default agent variant, and
serves switch/turn/chat/upload commands until stopped. Exactly one agent
session is live at a time; operators hot-swap between four variants:

  attorney              continuous listening, English
  arabic                continuous listening, Arabic
  click_to_talk         push-to-talk, English
  arabic_click_to_talk  push-to-talk, Arabic

Configuration comes from a YAML file plus environment overrides
(HAAKEEM_AGENT_NAME, HAAKEEM_AGENT_IDENTITY, OPENAI_API_KEY).

Examples:
  haakeem-agent run --config worker.yaml
  haakeem-agent run --url wss://rooms.example.com/court-1 --token $ROOM_TOKEN
  haakeem-agent variants`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// IsVerbose returns whether verbose mode is enabled.
func IsVerbose() bool {
	return verbose
}

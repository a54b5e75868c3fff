// Command voiceturn runs the push-to-talk voice pipeline.
//
// Usage:
//
//	voiceturn serve --config voiceturn.yaml   # session server for browsers
//	voiceturn talk                            # local microphone and speaker
//	voiceturn watch ws://localhost:8080/ws/feed
//
// Environment variables:
//
//	OPENAI_API_KEY      - OpenAI transcription and voice
//	NVIDIA_API_KEY      - NIM transcription and chat
//	ELEVENLABS_API_KEY  - ElevenLabs voice
//	ELEVENLABS_VOICE_ID - ElevenLabs voice id or name
//	GOOGLE_API_KEY      - Google Cloud transcription and voice
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-voiceturn/internal/config"
	"github.com/teslashibe/go-voiceturn/internal/log"
)

var version = "dev"

var (
	configPath string
	logLevel   string
	logFormat  string

	cfg *config.Config
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "voiceturn",
		Short: "Push-to-talk voice conversations",
		Long: `voiceturn records an utterance, transcribes it, asks the chat service
for a reply and speaks it, falling back across providers when one fails.`,
		SilenceUsage:      true,
		PersistentPreRunE: setup,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "text or json")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(talkCmd())
	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("voiceturn %s\n", version)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads the configuration and initializes logging.
func setup(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		loaded.Log.Level = logLevel
	}
	if logFormat != "" {
		loaded.Log.Format = logFormat
	}

	log.Init(log.Options{Level: loaded.Log.Level, Format: loaded.Log.Format})
	cfg = loaded
	return nil
}

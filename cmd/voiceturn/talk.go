package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/teslashibe/go-voiceturn/internal/log"
	"github.com/teslashibe/go-voiceturn/pkg/audioio"
	"github.com/teslashibe/go-voiceturn/pkg/conversation"
	"github.com/teslashibe/go-voiceturn/pkg/metrics"
	"github.com/teslashibe/go-voiceturn/pkg/stt"
	"github.com/teslashibe/go-voiceturn/pkg/trace"
	"github.com/teslashibe/go-voiceturn/pkg/tts"
	"github.com/teslashibe/go-voiceturn/pkg/voice"
)

func talkCmd() *cobra.Command {
	var showTrace bool

	cmd := &cobra.Command{
		Use:   "talk",
		Short: "Talk through the local microphone and speaker",
		Long: `Press Enter to start recording and Enter again to send.
Type a line to send it as text. /cancel, /clear and /quit do what they say.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTalk(cmd.Context(), os.Stdin, os.Stdout, showTrace)
		},
	}
	cmd.Flags().BoolVar(&showTrace, "trace", false, "print pipeline trace events")
	return cmd
}

func runTalk(parent context.Context, in io.Reader, out io.Writer, showTrace bool) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := log.L()
	p, err := buildPipeline(ctx, cfg, metrics.New(prometheus.NewRegistry()), logger)
	if err != nil {
		return err
	}
	defer p.providers.Close()

	capturer, err := audioio.NewCapturer(cfg.Audio, logger)
	if err != nil {
		return err
	}
	player := audioio.NewPlayer(cfg.Audio, logger)

	buf := trace.NewBuffer(0)
	if showTrace {
		defer buf.Subscribe(func(e trace.Event) { fmt.Fprintf(out, "   · %s\n", e) })()
	}

	sttChain, err := stt.NewChain(p.providers.STT, append([]stt.ChainOption{
		stt.WithChainLogger(logger), stt.WithTrace(buf),
	}, p.providers.STTOptions...)...)
	if err != nil {
		return err
	}
	ttsChain, err := tts.NewChain(p.providers.TTS, player, append([]tts.ChainOption{
		tts.WithChainLogger(logger), tts.WithTrace(buf),
	}, p.providers.TTSOptions...)...)
	if err != nil {
		return err
	}
	conv, err := conversation.New(p.providers.Chat, append([]conversation.Option{
		conversation.WithLogger(logger), conversation.WithTrace(buf),
	}, p.providers.ConversationOptions...)...)
	if err != nil {
		return err
	}

	events := make(chan voice.Event, 64)
	ctl, err := voice.New(capturer, sttChain, ttsChain, conv,
		voice.WithSessionID("local"),
		voice.WithSink(voice.SinkFunc(func(e voice.Event) {
			select {
			case events <- e:
			default:
			}
		})),
		voice.WithLogger(logger),
		voice.WithTrace(buf),
	)
	if err != nil {
		return err
	}
	defer ctl.Cancel()

	ctl.Latency().OnUpdate(func(l voice.Latency) {
		fmt.Fprintf(out, "   ⏱  %s\n", l.FormatLatency())
	})

	go printEvents(ctx, out, events)

	fmt.Fprintln(out, "🎤 Press Enter to talk, Enter again to send. /quit to exit.")

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := handleLine(ctx, ctl, strings.TrimSpace(line), out); quit {
				return nil
			}
		}
	}
}

// handleLine runs one line of terminal input. It returns true on /quit.
func handleLine(ctx context.Context, ctl *voice.Controller, line string, out io.Writer) bool {
	var err error
	switch line {
	case "":
		err = ctl.Toggle(ctx)
	case "/quit", "/exit":
		return true
	case "/cancel":
		ctl.Cancel()
	case "/clear":
		ctl.Clear()
		fmt.Fprintln(out, "🧹 Conversation cleared")
	default:
		err = ctl.SubmitText(ctx, line)
	}

	switch {
	case err == nil:
	case errors.Is(err, voice.ErrTurnInProgress):
		fmt.Fprintln(out, "⏳ Still working on the last one. /cancel to drop it.")
	case errors.Is(err, voice.ErrAlreadyRecording):
		fmt.Fprintln(out, "🎙️  Recording. Press Enter to send.")
	default:
		// Capture failures already arrived as a notice.
		log.Component("talk").Debug("command failed", "error", err)
	}
	return false
}

func printEvents(ctx context.Context, out io.Writer, events <-chan voice.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-events:
			switch e.Type {
			case voice.EventState:
				switch e.State {
				case voice.StateRecording:
					fmt.Fprintln(out, "🔴 Recording... press Enter to send")
				case voice.StateTranscribing:
					fmt.Fprintln(out, "✍️  Transcribing...")
				case voice.StateAwaitingReply:
					fmt.Fprintln(out, "🤔 Thinking...")
				case voice.StateSpeaking:
					fmt.Fprintln(out, "🔊 Speaking (Enter to interrupt)")
				}
			case voice.EventTranscript:
				fmt.Fprintf(out, "👤 %s  (%.0f%% via %s)\n", e.Text, e.Confidence*100, e.Provider)
			case voice.EventReply:
				fmt.Fprintf(out, "🗣️  %s\n", e.Text)
			case voice.EventNotice:
				if e.Notice != nil {
					fmt.Fprintf(out, "⚠️  %s\n", e.Notice.Text)
				}
			}
		}
	}
}

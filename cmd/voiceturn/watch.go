package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/teslashibe/go-voiceturn/internal/log"
	"github.com/teslashibe/go-voiceturn/pkg/hub"
	"github.com/teslashibe/go-voiceturn/pkg/voice"
)

func watchCmd() *cobra.Command {
	var session string

	cmd := &cobra.Command{
		Use:   "watch [feed-url]",
		Short: "Follow the state and trace feed of a running server",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := "ws://localhost" + cfg.Server.Address + "/ws/feed"
			if len(args) == 1 {
				raw = args[0]
			}
			feed, err := feedURL(raw, session)
			if err != nil {
				return err
			}
			return runWatch(cmd.Context(), feed, os.Stdout)
		},
	}
	cmd.Flags().StringVarP(&session, "session", "s", "", "only show events of this session")
	return cmd
}

func feedURL(raw, session string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("feed url: %w", err)
	}
	if session != "" {
		q := u.Query()
		q.Set("session", session)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func runWatch(parent context.Context, feed string, out io.Writer) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, feed, nil)
	if err != nil {
		return fmt.Errorf("connect %s: %w", feed, err)
	}
	defer conn.Close()

	log.Component("watch").Info("connected", "url", feed)

	go func() {
		<-ctx.Done()
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return err
		}

		var ev hub.FeedEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			continue
		}
		fmt.Fprintln(out, formatFeedEvent(ev))
	}
}

func formatFeedEvent(ev hub.FeedEvent) string {
	session := ev.Session
	if len(session) > 8 {
		session = session[:8]
	}

	switch {
	case ev.Trace != nil:
		return fmt.Sprintf("[%s] %s", session, ev.Trace)
	case ev.Event != nil:
		e := ev.Event
		ts := e.Time.Format("15:04:05.000")
		switch e.Type {
		case voice.EventState:
			return fmt.Sprintf("[%s] %s state %s -> %s", session, ts, e.From, e.State)
		case voice.EventNotice:
			if e.Notice != nil {
				return fmt.Sprintf("[%s] %s notice %s: %s", session, ts, e.Notice.Kind, e.Notice.Text)
			}
		case voice.EventTranscript:
			return fmt.Sprintf("[%s] %s heard %q (%.2f, %s)", session, ts, e.Text, e.Confidence, e.Provider)
		case voice.EventReply:
			return fmt.Sprintf("[%s] %s reply %q", session, ts, e.Text)
		}
		return fmt.Sprintf("[%s] %s %s", session, ts, e.Type)
	default:
		return fmt.Sprintf("[%s] %s", session, ev.Kind)
	}
}

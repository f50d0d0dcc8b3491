package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os/signal"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"
)

const watchHandshakeTimeout = 5 * time.Second

// newWatchCommand prints dispatcher state changes streamed by a running
// daemon's status server.
func newWatchCommand() *cobra.Command {
	var (
		addr    string
		rawJSON bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream dispatcher state from a running daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), unix.SIGINT, unix.SIGTERM)
			defer stop()
			return watchState(ctx, stateURL(addr), cmd.OutOrStdout(), rawJSON)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", defaultHTTPListen, "Status server address (host:port) or ws:// URL")
	cmd.Flags().BoolVar(&rawJSON, "json", false, "Print raw JSON messages")
	return cmd
}

// stateURL turns host:port into the state websocket URL.
func stateURL(addr string) string {
	if strings.HasPrefix(addr, "ws://") || strings.HasPrefix(addr, "wss://") {
		return addr
	}
	u := url.URL{Scheme: "ws", Host: addr, Path: "/ws/state"}
	return u.String()
}

// watchState connects to wsURL and writes one line per state message to out
// until ctx is canceled or the server goes away.
func watchState(ctx context.Context, wsURL string, out io.Writer, rawJSON bool) error {
	d := websocket.Dialer{HandshakeTimeout: watchHandshakeTimeout}
	conn, _, err := d.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("connect %s: %w", wsURL, err)
	}
	defer conn.Close()

	// Unblock ReadMessage on cancel.
	stopClose := context.AfterFunc(ctx, func() {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = conn.Close()
	})
	defer stopClose()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read state: %w", err)
		}

		if rawJSON {
			fmt.Fprintln(out, string(msg))
			continue
		}
		line, err := formatStateMessage(msg)
		if err != nil {
			fmt.Fprintf(out, "[unparsed] %s\n", msg)
			continue
		}
		fmt.Fprintln(out, line)
	}
}

// formatStateMessage renders a state/state_init frame as a single line.
func formatStateMessage(msg []byte) (string, error) {
	var env struct {
		Type string        `json:"type"`
		Data StateSnapshot `json:"data"`
	}
	if err := json.Unmarshal(msg, &env); err != nil {
		return "", err
	}
	if env.Type != wsMessageState && env.Type != wsMessageStateInit {
		return "", errors.New("not a state message")
	}

	s := env.Data
	names := make([]string, 0, len(s.Duties))
	for name := range s.Duties {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	fmt.Fprintf(&b, "%s %-9s ready=%t listening=%t",
		s.At.Format("15:04:05.000"), s.State, s.Ready, s.Listening)
	for _, name := range names {
		fmt.Fprintf(&b, " %s=%.0f", name, s.Duties[name])
	}
	return b.String(), nil
}

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"github.com/spf13/cobra"
)

// observeCmd tails the dashboard event feed from a terminal. Handy for
// checking what operators would see without opening a browser.
func observeCmd() *cobra.Command {
	var wsURL string
	cmd := &cobra.Command{
		Use:   "observe",
		Short: "Stream dashboard events to the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			conn, _, err := websocket.Dial(dialCtx, wsURL, nil)
			cancel()
			if err != nil {
				return fmt.Errorf("ws dial: %w", err)
			}
			defer conn.Close(websocket.StatusNormalClosure, "done")
			conn.SetReadLimit(1 << 20)

			fmt.Fprintf(os.Stderr, "connected to %s\n", wsURL)

			// Keepalive pings so idle connections stay open through proxies.
			go func() {
				ticker := time.NewTicker(30 * time.Second)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
						_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"ping"}`))
					}
				}
			}()

			for {
				_, data, err := conn.Read(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					return fmt.Errorf("ws read: %w", err)
				}
				var event map[string]any
				if err := json.Unmarshal(data, &event); err != nil {
					continue
				}
				if event["type"] == "pong" {
					continue
				}
				line, _ := json.Marshal(event)
				fmt.Println(string(line))
			}
		},
	}
	cmd.Flags().StringVarP(&wsURL, "url", "u", "ws://127.0.0.1:8490/ws", "gateway websocket URL")
	return cmd
}

package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/livedesk-ai/livedesk/internal/config"
	"github.com/livedesk-ai/livedesk/internal/notify"
	"github.com/livedesk-ai/livedesk/internal/store"
	"github.com/livedesk-ai/livedesk/internal/store/pg"
	"github.com/livedesk-ai/livedesk/internal/store/sqlite"
)

// drainCmd runs one notification drain pass and exits. Useful from cron
// or an operator shell when no drain schedule is configured.
func drainCmd() *cobra.Command {
	var maxN int
	cmd := &cobra.Command{
		Use:   "drain",
		Short: "Deliver pending operator notifications once",
		RunE: func(cmd *cobra.Command, args []string) error {
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			var stores *store.Stores
			if cfg.IsManaged() {
				stores, err = pg.NewStores(cfg.Database.PostgresDSN)
			} else {
				stores, err = sqlite.NewStores(cfg.Database.SQLitePath)
			}
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer stores.Close()

			queue := notify.NewQueue(stores.Notifications, buildSender(cfg))
			if maxN <= 0 {
				maxN = cfg.Notifications.DrainBatch
			}

			ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
			defer cancel()

			res, err := queue.Drain(ctx, maxN)
			if err != nil {
				return err
			}
			fmt.Printf("sent: %d, failed: %d\n", res.Sent, res.Failed)
			return nil
		},
	}
	cmd.Flags().IntVarP(&maxN, "max", "m", 0, "max notifications to deliver (default: config drain_batch)")
	return cmd
}

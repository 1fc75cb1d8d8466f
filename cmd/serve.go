package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/livedesk-ai/livedesk/internal/config"
	"github.com/livedesk-ai/livedesk/internal/dispatcher"
	"github.com/livedesk-ai/livedesk/internal/gateway"
	"github.com/livedesk-ai/livedesk/internal/hub"
	"github.com/livedesk-ai/livedesk/internal/line"
	"github.com/livedesk-ai/livedesk/internal/notify"
	"github.com/livedesk-ai/livedesk/internal/providers"
	"github.com/livedesk-ai/livedesk/internal/router"
	"github.com/livedesk-ai/livedesk/internal/session"
	"github.com/livedesk-ai/livedesk/internal/store"
	"github.com/livedesk-ai/livedesk/internal/store/pg"
	"github.com/livedesk-ai/livedesk/internal/store/sqlite"
	"github.com/livedesk-ai/livedesk/internal/tracing"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}
}

func runServe() {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, cfg.Telemetry)
	if err != nil {
		slog.Error("tracing setup failed", "error", err)
		os.Exit(1)
	}
	defer shutdownTracing(context.Background())

	// Storage: Postgres when a DSN is present, embedded SQLite otherwise.
	var stores *store.Stores
	if cfg.IsManaged() {
		stores, err = pg.NewStores(cfg.Database.PostgresDSN)
		slog.Info("storage backend", "driver", "postgres")
	} else {
		stores, err = sqlite.NewStores(cfg.Database.SQLitePath)
		slog.Info("storage backend", "driver", "sqlite", "path", cfg.Database.SQLitePath)
	}
	if err != nil {
		slog.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer stores.Close()

	platform := line.NewClient(cfg.Line.ChannelToken, cfg.Line.APIBase, cfg.Line.BlobBase)
	sessions := session.NewService(stores.Users)

	provider := providers.NewOpenAIClient(
		cfg.Provider.APIKey,
		cfg.Provider.APIBase,
		cfg.Provider.Model,
		cfg.Provider.MaxTokens,
		cfg.Provider.Temperature,
		time.Duration(cfg.Provider.TimeoutSeconds)*time.Second,
	)
	toolRouter := router.New(provider, cfg.Handoff.ApologyText)

	broadcastHub := hub.New()
	queue := notify.NewQueue(stores.Notifications, buildSender(cfg))

	disp := dispatcher.New(cfg, platform, sessions, toolRouter, broadcastHub, queue,
		stores.History, stores.Activity)
	server := gateway.NewServer(cfg, disp, broadcastHub, sessions, queue, platform,
		stores.Users, stores.History)

	scheduler, err := notify.NewScheduler(queue, cfg.Notifications.DrainSchedule, cfg.Notifications.DrainBatch)
	if err != nil {
		slog.Error("invalid drain schedule", "error", err)
		os.Exit(1)
	}

	// The group owns every long-running task; a server failure cancels
	// the watcher and the scheduler through the shared context.
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		config.Watch(ctx, cfg, cfgPath)
		return nil
	})
	if scheduler != nil {
		g.Go(func() error {
			scheduler.Run(ctx)
			return nil
		})
	}
	g.Go(func() error {
		return server.Start(ctx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("gateway stopped", "error", err)
		os.Exit(1)
	}
	slog.Info("gateway shut down")
}

// buildSender picks the notification channel from config. Missing
// credentials disable delivery; the queue still accepts and holds rows.
func buildSender(cfg *config.Config) notify.Sender {
	switch cfg.Notifications.Channel {
	case "discord":
		if cfg.Notifications.DiscordToken == "" || cfg.Notifications.DiscordChannel == "" {
			slog.Warn("discord notifications not configured")
			return nil
		}
		sender, err := notify.NewDiscordSender(cfg.Notifications.DiscordToken, cfg.Notifications.DiscordChannel)
		if err != nil {
			slog.Error("discord sender init failed", "error", err)
			return nil
		}
		return sender
	case "", "telegram":
		if cfg.Notifications.TelegramToken == "" || cfg.Notifications.TelegramChatID == "" {
			slog.Warn("telegram notifications not configured")
			return nil
		}
		sender, err := notify.NewTelegramSender(cfg.Notifications.TelegramToken, cfg.Notifications.TelegramChatID)
		if err != nil {
			slog.Error("telegram sender init failed", "error", err)
			return nil
		}
		return sender
	default:
		slog.Warn("unknown notification channel", "channel", cfg.Notifications.Channel)
		return nil
	}
}

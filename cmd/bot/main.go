package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/eliseohh/quotebot/internal/bot"
	"github.com/eliseohh/quotebot/internal/config"
	"github.com/eliseohh/quotebot/internal/journal"
	"github.com/eliseohh/quotebot/internal/logging"
	"github.com/eliseohh/quotebot/internal/metrics"
	"github.com/eliseohh/quotebot/internal/quotes"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Version is injected via ldflags.
var Version = "1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// flagKeys maps command-line flags onto config keys.
var flagKeys = map[string]string{
	"token":        "bot.token",
	"file":         "quotes.file",
	"log-level":    "log.level",
	"journal":      "journal.path",
	"metrics-addr": "metrics.addr",
}

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:          "quotebot",
		Short:        "Telegram Inline Quotations Bot",
		Version:      Version,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath, flagOverrides(cmd.Flags()))
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&configPath, "config", "c", "", "YAML config file")
	f.StringP("token", "t", "", "Bot token")
	f.StringP("file", "f", "", "Filename of the quotations")
	f.String("log-level", "", "trace, debug, info, warn or error")
	f.String("journal", "", "sqlite file to journal answered queries in")
	f.String("metrics-addr", "", "host:port to serve Prometheus metrics on")

	return cmd
}

// flagOverrides returns only the flags set explicitly, so unset flags never
// shadow env or file values.
func flagOverrides(fs *pflag.FlagSet) map[string]any {
	out := make(map[string]any)
	fs.Visit(func(f *pflag.Flag) {
		if key, ok := flagKeys[f.Name]; ok {
			out[key] = f.Value.String()
		}
	})
	return out
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := logging.New(&logging.Config{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Service: "quotebot",
		Version: Version,
		File: logging.FileConfig{
			Enabled:    cfg.Log.File.Enabled,
			Path:       cfg.Log.File.Path,
			MaxSizeMB:  cfg.Log.File.MaxSizeMB,
			MaxBackups: cfg.Log.File.MaxBackups,
			MaxAgeDays: cfg.Log.File.MaxAgeDays,
			Compress:   cfg.Log.File.Compress,
		},
	})
	slog.SetDefault(logger)

	// 1. Quotations (fatal if missing)
	idx, err := quotes.Load(cfg.Quotes.File)
	if err != nil {
		return err
	}
	logger.Info("quotations loaded", slog.String("file", cfg.Quotes.File), slog.Int("count", idx.Len()))

	m := metrics.New()
	m.SetQuotations(idx.Len())

	opts := []bot.Option{bot.WithLogger(logger), bot.WithMetrics(m)}

	// 2. Journal
	if cfg.Journal.Path != "" {
		j, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			return err
		}
		defer j.Close()

		opts = append(opts, bot.WithJournal(j))
		go j.RunPruner(ctx, cfg.Journal.Retention, cfg.Journal.PruneInterval, logger)
	}

	// 3. Metrics listener
	if cfg.Metrics.Addr != "" {
		go func() {
			if err := m.Serve(ctx, cfg.Metrics.Addr, logger); err != nil {
				logger.Error("metrics listener stopped", slog.Any("error", err))
			}
		}()
	}

	// 4. Bot
	b, err := bot.New(bot.Config{
		Token:       cfg.Bot.Token,
		PollTimeout: cfg.Bot.PollTimeout,
		CacheTime:   cfg.Bot.CacheTime,
		Synchronous: cfg.Bot.Synchronous,
	}, idx, opts...)
	if err != nil {
		return fmt.Errorf("bot init failed: %w", err)
	}

	b.Run(ctx)
	return nil
}

package main

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/uptrace/bun"

	guest "github.com/goliatone/go-guest"
	"github.com/goliatone/go-guest/activitymap"
	"github.com/goliatone/go-guest/config"
	"github.com/goliatone/go-guest/store"
)

type rootOptions struct {
	configPath string
	driver     string
	dsn        string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "guestctl",
		Short:         "Manage temporary guest accounts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "configuration file")
	cmd.PersistentFlags().StringVar(&opts.driver, "driver", "", "database driver (sqlite, postgres)")
	cmd.PersistentFlags().StringVar(&opts.dsn, "dsn", "", "database DSN")

	cmd.AddCommand(
		newDeleteExpiredCommand(opts),
		newMigrateCommand(opts),
		newSweepCommand(opts),
	)
	return cmd
}

func (o *rootOptions) load() (guest.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return cfg, err
	}
	if o.driver != "" {
		cfg.DatabaseDriver = o.driver
	}
	if o.dsn != "" {
		cfg.DatabaseDSN = o.dsn
	}
	return cfg, nil
}

func openDB(ctx context.Context, cfg guest.Config) (*bun.DB, error) {
	db, err := store.Open(cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func newRegistry(cfg guest.Config, db *bun.DB, logger guest.Logger, opts ...guest.RegistryOption) (*guest.Registry[*guest.Guest], error) {
	base := []guest.RegistryOption{guest.WithRegistryLogger(logger)}
	return guest.NewRegistry(cfg, guest.NewRepositoryManager(db), guest.DefaultGuestModel(), append(base, opts...)...)
}

// auditOption streams lifecycle events to w as JSON lines.
func auditOption(enabled bool, w io.Writer) []guest.RegistryOption {
	if !enabled {
		return nil
	}
	return []guest.RegistryOption{
		guest.WithRegistryActivitySink(activitymap.NewJSONSink(w, activitymap.WithActorFallback("guestctl"))),
	}
}

func cliLogger(verbosity int) guest.Logger {
	if verbosity < 2 {
		return guest.NopLogger()
	}
	return guest.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
}

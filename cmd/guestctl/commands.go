package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	guest "github.com/goliatone/go-guest"
	"github.com/goliatone/go-guest/store"
)

func newDeleteExpiredCommand(opts *rootOptions) *cobra.Command {
	var verbosity int
	var audit bool

	cmd := &cobra.Command{
		Use:     "delete_expired_users",
		Aliases: []string{"delete-expired-users"},
		Short:   "Delete guest accounts older than MAX_AGE",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			db, err := openDB(ctx, cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			registry, err := newRegistry(cfg, db, cliLogger(verbosity), auditOption(audit, cmd.ErrOrStderr())...)
			if err != nil {
				return err
			}

			deleted, err := guest.NewSweeper(registry, cfg).Run(ctx)
			if err != nil {
				return err
			}

			if verbosity >= 1 {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d expired guest user(s).\n", deleted)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&verbosity, "verbosity", "v", 1, "0 is silent, 1 prints a summary, 2 adds logs")
	cmd.Flags().BoolVar(&audit, "audit", false, "write one JSON line per deleted guest to stderr")
	return cmd
}

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the users and guests schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			db, err := openDB(ctx, cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := store.Migrate(ctx, db); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Schema is up to date.")
			return nil
		},
	}
}

func newSweepCommand(opts *rootOptions) *cobra.Command {
	var audit bool

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired guests on SWEEP_SCHEDULE until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			db, err := openDB(ctx, cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			logger := cliLogger(2)
			registry, err := newRegistry(cfg, db, logger, auditOption(audit, cmd.ErrOrStderr())...)
			if err != nil {
				return err
			}

			sweeper := guest.NewSweeper(registry, cfg, guest.WithSweeperLogger(logger))
			if err := sweeper.Start(ctx); err != nil {
				return err
			}

			<-ctx.Done()
			sweeper.Stop()
			return nil
		},
	}

	cmd.Flags().BoolVar(&audit, "audit", false, "write one JSON line per deleted guest to stderr")
	return cmd
}

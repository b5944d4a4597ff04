package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/billbatista/clubledger/config"
	"github.com/billbatista/clubledger/database"
	"github.com/billbatista/clubledger/eventlogger"
	"github.com/billbatista/clubledger/ledger"
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
}

// NewRootCommand creates the root command of the clubledger CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "clubledger",
		Short:         "Shared cost ledger for the club",
		Long:          "Tracks lunches, special costs and transfers as a double-entry points and money ledger.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to YAML config file")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewRebuildCommand(opts))
	cmd.AddCommand(NewCheckCommand(opts))
	cmd.AddCommand(NewUserCommand(opts))

	return cmd
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

// app is the wiring shared by the commands.
type app struct {
	cfg     config.Config
	db      *database.DB
	worker  *eventlogger.Worker
	service *ledger.Service
}

func openApp(opts *RootOptions) (*app, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	level, _ := cfg.Log.SlogLevel()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	db, err := database.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}

	worker := eventlogger.NewWorker(eventlogger.NewSqlEventLogger(db), cfg.Audit.BufferSize)
	worker.Start()

	service := ledger.NewService(db,
		ledger.WithAccountNames(ledger.AccountNames{
			System: cfg.Ledger.SystemUsername,
			Andeo:  cfg.Ledger.AndeoUsername,
		}),
		ledger.WithBatchSize(cfg.Ledger.BatchSize),
		ledger.WithAuditor(worker),
	)

	return &app{cfg: cfg, db: db, worker: worker, service: service}, nil
}

func (a *app) Close() {
	a.worker.Shutdown()
	if err := a.db.Close(); err != nil {
		slog.Error("failed to close database", "error", err)
	}
}

// withApp opens the app for the duration of fn.
func withApp(opts *RootOptions, fn func(ctx context.Context, a *app) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := openApp(opts)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(cmd.Context(), a)
	}
}

func printf(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}

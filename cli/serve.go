package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/billbatista/clubledger/server"
	"github.com/billbatista/clubledger/session"
	"github.com/billbatista/clubledger/user"
	"github.com/spf13/cobra"
)

func NewServeCommand(opts *RootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(ctx context.Context, a *app) error {
				if addr == "" {
					addr = a.cfg.Server.Addr
				}

				srv := server.New(a.service, user.NewRepository(a.db), session.NewRepository(a.db, session.WithTTL(a.cfg.Server.SessionTTL)), a.worker)
				httpServer := &http.Server{
					Addr:              addr,
					Handler:           srv.Routes(),
					ReadHeaderTimeout: 10 * time.Second,
				}

				ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
				defer stop()

				errCh := make(chan error, 1)
				go func() {
					slog.Info("server starting", "addr", addr)
					errCh <- httpServer.ListenAndServe()
				}()

				select {
				case err := <-errCh:
					if !errors.Is(err, http.ErrServerClosed) {
						return err
					}
					return nil
				case <-ctx.Done():
				}

				slog.Info("shutting down server")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return httpServer.Shutdown(shutdownCtx)
			})(cmd, args)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}

func NewMigrateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create tables and clearing accounts",
		RunE: withApp(opts, func(ctx context.Context, a *app) error {
			if err := a.db.Migrate(ctx); err != nil {
				return err
			}
			users := user.NewRepository(a.db)
			if err := users.EnsureClearingAccounts(ctx, a.cfg.Ledger.SystemUsername, a.cfg.Ledger.AndeoUsername); err != nil {
				return err
			}
			slog.Info("database migrated")
			return nil
		}),
	}
}

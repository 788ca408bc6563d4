package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bborgeswq/eproc-scraper-2.0/common/logging"
	"github.com/bborgeswq/eproc-scraper-2.0/scraper/internal/lock"
	"github.com/bborgeswq/eproc-scraper-2.0/scraper/internal/server"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the sync loop with the HTTP status server",
		Long: `Runs a sync immediately and keeps running: a minute after a run that left
work behind, a day after a clean one, with backoff after failures. Health,
metrics and run status are served over HTTP on server.port.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), st)
		},
	}
}

func runServe(parent context.Context, st *state) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := buildServices(ctx, st.cfg, st.logger, true)
	if err != nil {
		return err
	}
	defer svc.Close()

	srv := server.New(server.Config{
		Port:         st.cfg.Server.Port,
		ReadTimeout:  st.cfg.Server.ReadTimeout,
		WriteTimeout: st.cfg.Server.WriteTimeout,
		IdleTimeout:  st.cfg.Server.IdleTimeout,
	}, server.NewHandler(svc.store, svc.loop, svc.bus, st.logger))

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.ListenAndServe() }()

	loopDone := make(chan struct{})
	go func() {
		svc.loop.Start(ctx)
		close(loopDone)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		st.logger.Info("Shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			runErr = fmt.Errorf("http server: %w", err)
		}
		stop()
	}
	<-loopDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		st.logger.Error("Server forced to shutdown", logging.Error(err))
	}
	st.logger.Info("Stopped gracefully")
	return runErr
}

func newSyncCmd(st *state) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run a single sync pass",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("limit") {
				st.cfg.Sync.ProcessLimit = limit
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			svc, err := buildServices(ctx, st.cfg, st.logger, true)
			if err != nil {
				return err
			}
			defer svc.Close()

			res, err := svc.loop.RunOnce(ctx)
			if errors.Is(err, lock.ErrNotAcquired) {
				return errors.New("another sync is running")
			}
			if res != nil {
				if rerr := renderResult(cmd.OutOrStdout(), st.output, res); rerr != nil {
					return rerr
				}
			}
			return err
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "cases to add or refresh in this run (0 = no limit)")
	return cmd
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/permitcheck/internal/ingest"
	"github.com/sells-group/permitcheck/internal/monitoring"
	"github.com/sells-group/permitcheck/internal/search"
	"github.com/sells-group/permitcheck/internal/server"
)

var (
	servePort      int
	serveNoRefresh bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the search API and run scheduled refreshes",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("serve"); err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.EnsureState(ctx); err != nil {
			return err
		}

		schedDone := make(chan struct{})
		if serveNoRefresh {
			close(schedDone)
		} else {
			engine, err := newEngine(cfg, st)
			if err != nil {
				return err
			}
			go func() {
				defer close(schedDone)
				ingest.Schedule(ctx, engine, cfg.Refresh.Interval, ingest.RunOpts{})
			}()
		}

		monDone := make(chan struct{})
		if cfg.Monitoring.Enabled {
			checker := monitoring.NewChecker(
				monitoring.NewCollector(st),
				monitoring.NewAlerter(cfg.Monitoring),
				cfg.Monitoring,
			)
			go func() {
				defer close(monDone)
				checker.Run(ctx)
			}()
		} else {
			close(monDone)
		}

		api := server.New(
			search.NewSearcher(st),
			search.NewLookuper(st, newAdvisor(cfg)),
			st,
			server.Options{
				CORSOrigins: cfg.Server.CORSOrigins,
				Threshold:   cfg.Search.Threshold,
			},
		)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           api.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port), zap.Bool("refresh", !serveNoRefresh))
		listenErr := srv.ListenAndServe()

		// The store closes only after an in-flight refresh has stopped.
		stop()
		<-schedDone
		<-monDone

		if listenErr != nil && !errors.Is(listenErr, http.ErrServerClosed) {
			return eris.Wrap(listenErr, "server listen")
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().BoolVar(&serveNoRefresh, "no-refresh", false, "serve without running scheduled refreshes")
	rootCmd.AddCommand(serveCmd)
}

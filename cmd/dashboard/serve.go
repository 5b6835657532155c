package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"aiworker/dashboard-go/internal/app"
	internalhttp "aiworker/dashboard-go/internal/http"
	"aiworker/dashboard-go/internal/tui"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the dashboard API and card stream over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a := app.New(ctx, cfg, logger)
		defer a.Close()

		if a.Resume() {
			logger.Info("session restored", zap.String("storage", a.Session.StorageBackend()))
		}

		srv := &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           internalhttp.NewRouter(a),
			ReadHeaderTimeout: 5 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			logger.Info("dashboard listening", zap.String("addr", srv.Addr), zap.String("backend", cfg.BackendURL))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
		return g.Wait()
	},
}

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Open the dashboard in the terminal",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a := app.New(ctx, cfg, logger)
		defer a.Close()

		a.Resume()
		return tui.Run(ctx, a)
	},
}

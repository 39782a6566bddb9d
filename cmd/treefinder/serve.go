package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/atlekbai/treefinder/internal/handler"
	"github.com/atlekbai/treefinder/internal/logger"
	"github.com/atlekbai/treefinder/internal/metrics"
	"github.com/atlekbai/treefinder/internal/middleware"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the pages API over HTTP",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	log := logger.Get()

	// SIGHUP reloads the schema registry, which also drops cached access predicates.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				if err := a.reg.Load(ctx, a.pool); err != nil {
					log.Error("reload schema registry", "error", err)
					continue
				}
				log.Info("schema registry reloaded", "fields", a.reg.FieldCount())
			}
		}
	}()

	mux := http.NewServeMux()
	handler.New(a.finder, a.store).Register(mux)

	srv := &http.Server{
		Addr: a.cfg.Addr(),
		Handler: middleware.Chain(mux,
			middleware.Recovery,
			middleware.RequestID,
			middleware.Logging,
			metrics.Middleware,
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info("listening", "addr", a.cfg.Addr())
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

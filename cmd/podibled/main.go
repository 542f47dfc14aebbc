// Package main provides the entry point for the podible server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/podible/podible/internal/config"
	"github.com/podible/podible/internal/core"
	"github.com/podible/podible/internal/httpapi"
	"github.com/podible/podible/internal/logger"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Environment: cfg.App.Environment,
		Level:       logger.ParseLevel(cfg.Logger.Level),
	})

	c, err := core.New(cfg, log.Logger)
	if err != nil {
		log.Error("failed to build core", "error", err)
		os.Exit(1)
	}

	if len(cfg.Library.Roots) == 0 {
		log.Warn("no library roots configured; feed requests will fail until roots are provided")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := c.Start(ctx); err != nil {
		log.Error("failed to start core", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      httpapi.New(c, log.Logger),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", srv.Addr, "roots", cfg.Library.Roots)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-serveErr:
		if err != nil {
			log.Error("http server", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown", "error", err)
	}
	if err := c.Close(shutdownCtx); err != nil {
		log.Error("core shutdown", "error", err)
	}

	log.Info("shutdown complete")
}

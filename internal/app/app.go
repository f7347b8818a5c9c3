// Package app assembles the process: config, logging, stores, the platform
// gateway connection, the orchestrator, and the HTTP surface.
package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/you-humble/chatmover/internal/transport"
)

const (
	shutdownTimeout = 10 * time.Second
	cleanupInterval = 24 * time.Hour
)

type app struct {
	di  *dependencyInjector
	srv *http.Server
}

func New(ctx context.Context) *app {
	di := newDI()
	di.Logger()

	// Startup order matters: sweep the staging root before anything can
	// write to it.
	di.WorkStore()

	mux := http.NewServeMux()
	return &app{
		di: di,
		srv: &http.Server{
			Addr: di.Config().HTTPAddr,
			Handler: transport.WithRecover(
				transport.LogMiddleware(
					di.Router(ctx).MountRoutes(mux),
				),
			),
		},
	}
}

func (a *app) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("starting server", slog.String("addr", a.srv.Addr))
		if err := a.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.String("error", err.Error()))
			return err
		}
		return nil
	})

	if retention := a.di.Config().Archive.Retention; retention > 0 && a.di.archiveStore != nil {
		g.Go(func() error {
			a.archiveCleanupLoop(gctx, retention)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		return a.shutdown()
	})

	return g.Wait()
}

func (a *app) archiveCleanupLoop(ctx context.Context, retention time.Duration) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.di.archiveStore.CleanupOlderThan(ctx, retention); err != nil {
				slog.Warn("archive cleanup", slog.String("error", err.Error()))
			}
		}
	}
}

func (a *app) shutdown() error {
	slog.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if a.di.archiver != nil {
		if err := a.di.archiver.Close(shutdownCtx); err != nil {
			slog.Warn("archiver drain", slog.String("error", err.Error()))
		}
	}

	if err := a.srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", slog.String("error", err.Error()))
		return err
	}

	slog.Info("server gracefully stopped")
	return nil
}

package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	apphttp "impresos-uribe/cotizaciones/internal/app/http"
	"impresos-uribe/cotizaciones/internal/app/http/handlers"
)

const shutdownTimeout = 10 * time.Second

// ErrStartup is returned by Serve when the HTTP listener could not start.
var ErrStartup = errors.New("startup failed")

// Serve starts the controller and the HTTP server and blocks until ctx is
// done or the server fails.
func Serve(ctx context.Context, rt *Runtime) error {
	ctrl := rt.Controller()
	rt.Assets.Preload(ctx)
	if err := ctrl.Start(ctx); err != nil {
		// permission and network failures are part of the state; retry is
		// available over HTTP
		rt.Log.Error("app: controller start failed", slog.Any("error", err))
	}
	defer ctrl.Stop()

	router := apphttp.NewRouter(rt.Cfg, handlers.New(ctrl, rt.Assets, rt.Log), rt.Metrics, rt.Log)
	// long-lived requests such as /v1/events end when base is cancelled
	base, cancelBase := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelBase()
	srv := &http.Server{
		Addr:              rt.Cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return base },
	}
	srv.RegisterOnShutdown(cancelBase)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rt.Log.Info("app: listening", slog.String("addr", rt.Cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%w: %w", ErrStartup, err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		rt.Log.Info("app: shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

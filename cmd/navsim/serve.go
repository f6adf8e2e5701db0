// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianNav/services/nav/api"
	"github.com/AleutianAI/AleutianNav/services/nav/config"
)

type serveOptions struct {
	addr      string
	interval  time.Duration
	failEdges []string
	watch     bool
}

func newServeCmd() *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the navigator continuously with an HTTP control API",
		Long:  `serve ticks the navigator in real time and accepts goals over HTTP at /v1/nav/goal. Status, history and Prometheus metrics are served alongside.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.addr, "addr", "", "listen address; empty uses the config value")
	f.DurationVar(&opts.interval, "tick-interval", -1, "tick period; negative uses the config value")
	f.StringArrayVar(&opts.failEdges, "fail-edge", nil, "inject a movement failure: src>dest[@times[@reason]]")
	f.BoolVar(&opts.watch, "watch", true, "reload the config file when it changes")
	return cmd
}

func serve(ctx context.Context, opts *serveOptions) error {
	e, err := newEnv(ctx, configPath, scenarioPath)
	if err != nil {
		return err
	}
	defer e.close(context.Background())
	if err := e.injectFaults(opts.failEdges); err != nil {
		return err
	}

	addr := opts.addr
	if addr == "" {
		addr = e.cfg.API.Addr
	}
	interval := tickInterval(opts.interval, e.cfg)
	if interval <= 0 {
		interval = config.Default().Execution.TickInterval
	}

	if opts.watch && configPath != "" {
		w, err := config.NewWatcher(configPath, e.cfg, e.applyReload, e.logger)
		if err != nil {
			return err
		}
		if err := w.Start(ctx); err != nil {
			return err
		}
		defer w.Stop()
	}

	gin.SetMode(gin.ReleaseMode)
	handlers := api.NewHandlers(e.nav, e.history, e.logger).
		WithHistoryLimit(e.cfg.API.HistoryLimit).
		WithFeed(e.feed)
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.NewRouter(e.cfg.Observability.Telemetry.ServiceName, handlers),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		e.logger.Info("api listening", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), e.cfg.API.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return tickLoop(gctx, e, interval)
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	e.logger.Info("navsim stopped")
	return err
}

// tickLoop ticks the navigator every interval until ctx is done. Idle
// ticks are cheap: Tick returns at once when there is no goal.
func tickLoop(ctx context.Context, e *env, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			rep := e.nav.Tick(ctx)
			if rep.Arrived {
				st := e.nav.Status()
				e.logger.Info("goal reached",
					slog.String("goal", st.Goal),
					slog.String("position", st.Position.String()),
					slog.Int("commits", st.Commits))
			}
		}
	}
}

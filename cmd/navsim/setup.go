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
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/awnumar/memguard"
	"go.opentelemetry.io/otel"

	"github.com/AleutianAI/AleutianNav/services/nav/bias"
	"github.com/AleutianAI/AleutianNav/services/nav/config"
	"github.com/AleutianAI/AleutianNav/services/nav/gridpos"
	"github.com/AleutianAI/AleutianNav/services/nav/history"
	"github.com/AleutianAI/AleutianNav/services/nav/movement"
	"github.com/AleutianAI/AleutianNav/services/nav/navigator"
	"github.com/AleutianAI/AleutianNav/services/nav/sim"
	"github.com/AleutianAI/AleutianNav/services/nav/storage/badger"
	"github.com/AleutianAI/AleutianNav/services/nav/storage/export"
	"github.com/AleutianAI/AleutianNav/services/nav/storage/influx"
	"github.com/AleutianAI/AleutianNav/services/nav/telemetry"
)

// env is everything a command needs, wired from configuration.
type env struct {
	cfg      config.NavConfig
	level    *slog.LevelVar
	logger   *slog.Logger
	scenario sim.Scenario
	world    *sim.World
	graph    *sim.Graph
	agent    *sim.Agent
	history  history.Recorder
	feed     *history.Feed
	nav      *navigator.Navigator

	closers []func(context.Context) error
}

// newEnv loads configuration and wires the navigator against a simulated
// world.
//
// Inputs:
//
//	ctx - Used for telemetry exporter setup.
//	configPath - Config file. Empty uses defaults and environment.
//	scenarioPath - Scenario file. Empty uses the built-in scenario.
//
// Outputs:
//
//	*env - Call close when done.
//	error - Non-nil if any component fails to start.
func newEnv(ctx context.Context, configPath, scenarioPath string) (*env, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	e := &env{cfg: cfg, level: new(slog.LevelVar)}
	e.logger = cfg.NewLogger(os.Stderr, e.level)
	slog.SetDefault(e.logger)

	shutdown, err := telemetry.Init(ctx, cfg.Observability.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	e.closers = append(e.closers, shutdown)

	e.scenario = sim.DefaultScenario()
	if scenarioPath != "" {
		if e.scenario, err = sim.LoadScenario(scenarioPath); err != nil {
			e.close(ctx)
			return nil, err
		}
	}
	e.world = e.scenario.Build()
	e.graph = sim.NewGraph(e.world)
	e.agent = sim.NewAgent(e.scenario.Start)

	primary, err := e.openHistory()
	if err != nil {
		e.close(ctx)
		return nil, err
	}
	e.feed = history.NewFeed()
	sinks := []history.Sink{e.feed}
	if cfg.Storage.Influx.Enabled {
		sink, err := e.openInflux()
		if err != nil {
			e.close(ctx)
			return nil, err
		}
		sinks = append(sinks, sink)
	}
	e.history = history.Tee(primary, sinks...)

	metrics, err := telemetry.NewMetrics(otel.Meter(cfg.Observability.Telemetry.ServiceName))
	if err != nil {
		e.close(ctx)
		return nil, fmt.Errorf("create metrics: %w", err)
	}

	radius, peak := cfg.Bias.HazardRadius, cfg.Bias.HazardPeak
	e.nav, err = navigator.New(cfg.NavigatorConfig(), navigator.Deps{
		Agent:    e.agent,
		Provider: e.graph,
		Hazards:  func() []bias.Hazard { return e.world.Hazards(radius, peak) },
		History:  e.history,
		Metrics:  metrics,
		Logger:   e.logger,
	})
	if err != nil {
		e.close(ctx)
		return nil, err
	}
	e.closers = append(e.closers, func(context.Context) error { return e.nav.Close() })
	return e, nil
}

func (e *env) openHistory() (history.Recorder, error) {
	switch e.cfg.Storage.Backend {
	case config.BackendBadger:
		db, err := badger.Open(e.cfg.BadgerConfig(e.logger))
		if err != nil {
			return nil, fmt.Errorf("open history store: %w", err)
		}
		e.closers = append(e.closers, func(context.Context) error { return db.Close() })
		e.logger.Info("history persisted", slog.String("path", db.Path()))
		return badger.NewHistoryStore(db, e.cfg.Storage.Retention), nil
	default:
		return history.NewMemory(e.cfg.Storage.HistoryCapacity), nil
	}
}

// influxTokenEnv holds the InfluxDB API token. It is sealed in an enclave
// as soon as it is read.
const influxTokenEnv = "NAV_INFLUX_TOKEN"

func (e *env) openInflux() (*influx.Sink, error) {
	raw := os.Getenv(influxTokenEnv)
	if raw == "" {
		return nil, fmt.Errorf("influx enabled but %s is not set", influxTokenEnv)
	}
	token := memguard.NewEnclave([]byte(raw))
	os.Unsetenv(influxTokenEnv)

	sink, err := influx.NewSink(e.cfg.InfluxSinkConfig(), token)
	if err != nil {
		return nil, err
	}
	e.closers = append(e.closers, func(context.Context) error {
		sink.Close()
		memguard.Purge()
		return nil
	})
	e.logger.Info("history mirrored to influx",
		slog.String("url", e.cfg.Storage.Influx.URL),
		slog.String("bucket", e.cfg.Storage.Influx.Bucket))
	return sink, nil
}

// export writes history to dest, or to the configured destination when
// dest is empty. Nothing happens when neither is set.
func (e *env) export(ctx context.Context, dest string) (int, error) {
	if dest == "" {
		dest = e.cfg.Storage.Export.Destination
	}
	if dest == "" {
		return 0, nil
	}
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Storage.Export.Timeout)
	defer cancel()
	n, err := (&export.Exporter{}).Export(ctx, e.history, dest, e.cfg.Storage.Export.Limit)
	if err != nil {
		return 0, err
	}
	e.logger.Info("history exported", slog.String("dest", dest), slog.Int("entries", n))
	return n, nil
}

// close releases components in reverse order of creation.
func (e *env) close(ctx context.Context) error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	e.closers = nil
	return errors.Join(errs...)
}

// applyReload adopts settings that can change without a restart.
func (e *env) applyReload(cfg config.NavConfig) {
	e.level.Set(cfg.Level())
}

// parseFailEdge reads "x,y,z>x,y,z[@times[@reason]]". times defaults to 1
// and reason to blocked. A negative times fails the edge forever.
func parseFailEdge(raw string) (src, dest gridpos.Pos, times int, reason movement.FailureReason, err error) {
	times, reason = 1, movement.ReasonBlocked
	edge, rest, hasRest := strings.Cut(raw, "@")
	from, to, ok := strings.Cut(edge, ">")
	if !ok {
		return src, dest, 0, 0, fmt.Errorf("fail edge %q: want src>dest", raw)
	}
	if src, err = gridpos.Parse(from); err != nil {
		return src, dest, 0, 0, err
	}
	if dest, err = gridpos.Parse(to); err != nil {
		return src, dest, 0, 0, err
	}
	if !hasRest {
		return src, dest, times, reason, nil
	}
	n, r, hasReason := strings.Cut(rest, "@")
	if times, err = strconv.Atoi(n); err != nil {
		return src, dest, 0, 0, fmt.Errorf("fail edge %q: bad count: %w", raw, err)
	}
	if hasReason {
		reason = movement.ParseFailureReason(r)
		if reason == movement.ReasonUnknown {
			return src, dest, 0, 0, fmt.Errorf("fail edge %q: unknown reason %q", raw, r)
		}
	}
	return src, dest, times, reason, nil
}

// injectFaults applies every --fail-edge flag.
func (e *env) injectFaults(specs []string) error {
	for _, s := range specs {
		src, dest, times, reason, err := parseFailEdge(s)
		if err != nil {
			return err
		}
		e.graph.FailEdge(src, dest, "", times, reason)
		e.logger.Info("fault injected",
			slog.String("src", src.String()),
			slog.String("dest", dest.String()),
			slog.Int("times", times),
			slog.String("reason", reason.String()))
	}
	return nil
}

func tickInterval(flagValue time.Duration, cfg config.NavConfig) time.Duration {
	if flagValue >= 0 {
		return flagValue
	}
	return cfg.Execution.TickInterval
}

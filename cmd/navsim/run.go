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
	"os"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianNav/services/nav/goal"
	"github.com/AleutianAI/AleutianNav/services/nav/gridpos"
	"github.com/AleutianAI/AleutianNav/services/nav/navigator"
	"github.com/AleutianAI/AleutianNav/services/nav/sim"
)

// errGoalFailed makes the exit status non-zero when the navigator gives up.
var errGoalFailed = errors.New("navigator gave up on the goal")

// errNoGoal is returned when --goal is missing and there is no terminal to
// ask on.
var errNoGoal = errors.New("--goal is required")

type runOptions struct {
	goal      string
	radius    int
	maxTicks  int
	interval  time.Duration
	failEdges []string
	plain     bool
	tui       bool
	export    string
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Navigate to one goal and print a report",
		Example: `  navsim run --goal 10,64,0
  navsim run --goal 0,64,8 --fail-edge "0,64,0>0,64,1@2@blocked"
  navsim run --goal 24,64,0 --tui --export gs://nav-runs/latest.jsonl`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runGoal(cmd.Context(), cmd, opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.goal, "goal", "", "goal position x,y,z (prompted for on a terminal)")
	f.IntVar(&opts.radius, "radius", 0, "accept any position within this radius of the goal")
	f.IntVar(&opts.maxTicks, "max-ticks", 20000, "give up after this many ticks (0 is unbounded)")
	f.DurationVar(&opts.interval, "tick-interval", -1, "real-time pacing per tick; negative uses the config value")
	f.StringArrayVar(&opts.failEdges, "fail-edge", nil, "inject a movement failure: src>dest[@times[@reason]]")
	f.BoolVar(&opts.plain, "plain", false, "disable colors")
	f.BoolVar(&opts.tui, "tui", false, "show a live view instead of an event log")
	f.StringVar(&opts.export, "export", "", "write history to a file or gs://bucket/object after the run")
	return cmd
}

// stdinIsTerminal reports whether the goal can be prompted for.
var stdinIsTerminal = func() bool {
	return isatty.IsTerminal(os.Stdin.Fd())
}

// promptGoal asks for a goal on the terminal.
func promptGoal() (string, error) {
	if !stdinIsTerminal() {
		return "", errNoGoal
	}
	var raw string
	err := huh.NewInput().
		Title("Goal position").
		Description("x,y,z").
		Placeholder("10,64,0").
		Value(&raw).
		Validate(func(v string) error {
			_, err := gridpos.Parse(v)
			return err
		}).
		Run()
	if err != nil {
		return "", fmt.Errorf("goal prompt: %w", err)
	}
	return raw, nil
}

func runGoal(ctx context.Context, cmd *cobra.Command, opts *runOptions) error {
	if opts.goal == "" {
		raw, err := promptGoal()
		if err != nil {
			return err
		}
		opts.goal = raw
	}
	target, err := gridpos.Parse(opts.goal)
	if err != nil {
		return err
	}
	var g goal.Goal = goal.NewBlock(target)
	if opts.radius > 0 {
		g = goal.Near{Pos: target, Radius: opts.radius}
	}

	e, err := newEnv(ctx, configPath, scenarioPath)
	if err != nil {
		return err
	}
	defer e.close(context.Background())
	if err := e.injectFaults(opts.failEdges); err != nil {
		return err
	}

	p := newPrinter(cmd.OutOrStdout(), opts.plain)
	p.title(fmt.Sprintf("navsim %s %s %v", e.scenario.Start, iconArrow, g))

	if err := e.nav.SetGoal(ctx, g); err != nil {
		return err
	}
	var rep sim.Report
	interval := tickInterval(opts.interval, e.cfg)
	if opts.tui {
		rep, err = runTUI(ctx, p, e, interval, opts.maxTicks)
	} else {
		runner := &sim.Runner{
			Nav:          e.nav,
			MaxTicks:     opts.maxTicks,
			TickInterval: interval,
			OnTick:       func(tick int, rep navigator.TickReport) { p.event(tick, rep) },
			Logger:       e.logger,
		}
		rep, err = runner.Run(ctx)
	}
	p.summary(rep)
	if err != nil {
		return err
	}

	if n, err := e.export(ctx, opts.export); err != nil {
		p.warning(fmt.Sprintf("export failed: %v", err))
	} else if n > 0 {
		p.success(fmt.Sprintf("exported %d history entries", n))
	}

	if rep.Status.Failed {
		return errGoalFailed
	}
	return nil
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command navsim drives the navigator through a simulated voxel world.
//
// Usage:
//
//	navsim run --goal 10,64,0 [--scenario world.yaml] [--fail-edge 0,64,0>1,64,0@2@blocked]
//	navsim run [--goal 10,64,0] [--tui] [--export runs.jsonl]
//	navsim serve [--addr 127.0.0.1:8089]
//	navsim export --dest gs://bucket/object
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	configPath   string
	scenarioPath string
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "navsim",
		Short:         "Voxel pathfinding and path execution simulator",
		Long:          `navsim runs the A* planner and path executor against a simulated block world, with fault injection for exercising recovery and replanning.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (YAML or JSON)")
	root.PersistentFlags().StringVar(&scenarioPath, "scenario", "", "scenario file (YAML); empty uses the built-in world")
	root.AddCommand(newRunCmd(), newServeCmd(), newExportCmd())
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		newPrinter(os.Stderr, false).failure(err.Error())
		stop()
		os.Exit(1)
	}
}

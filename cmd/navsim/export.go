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

	"github.com/spf13/cobra"
)

var errNoDestination = errors.New("no export destination: pass --dest or set storage.export.destination")

func newExportCmd() *cobra.Command {
	var dest string
	var plain bool
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write recorded history as JSON lines",
		Long: `Reads search and recovery history from the configured store and writes
it newest first, one JSON object per line. Only the badger backend keeps
history between runs.`,
		Example: `  navsim export --config nav.yaml --dest runs.jsonl
  navsim export --config nav.yaml --dest gs://nav-runs/2025-06-01.jsonl`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			e, err := newEnv(ctx, configPath, scenarioPath)
			if err != nil {
				return err
			}
			defer e.close(context.Background())

			if dest == "" && e.cfg.Storage.Export.Destination == "" {
				return errNoDestination
			}
			n, err := e.export(ctx, dest)
			if err != nil {
				return err
			}
			p := newPrinter(cmd.OutOrStdout(), plain)
			p.success(fmt.Sprintf("exported %d history entries", n))
			return nil
		},
	}
	cmd.Flags().StringVar(&dest, "dest", "", "file path or gs://bucket/object; defaults to the configured destination")
	cmd.Flags().BoolVar(&plain, "plain", false, "disable colors")
	return cmd
}

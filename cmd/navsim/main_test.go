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
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianNav/services/nav/execution"
	"github.com/AleutianAI/AleutianNav/services/nav/gridpos"
	"github.com/AleutianAI/AleutianNav/services/nav/movement"
	"github.com/AleutianAI/AleutianNav/services/nav/navigator"
	"github.com/AleutianAI/AleutianNav/services/nav/recovery"
)

func TestParseFailEdge(t *testing.T) {
	src, dest, times, reason, err := parseFailEdge("0,64,0>1,64,0")
	require.NoError(t, err)
	assert.Equal(t, gridpos.New(0, 64, 0), src)
	assert.Equal(t, gridpos.New(1, 64, 0), dest)
	assert.Equal(t, 1, times)
	assert.Equal(t, movement.ReasonBlocked, reason)

	_, _, times, reason, err = parseFailEdge("(0,64,0)>(0,64,1)@-1@unreachable")
	require.NoError(t, err)
	assert.Equal(t, -1, times)
	assert.Equal(t, movement.ReasonUnreachable, reason)

	for _, bad := range []string{"0,64,0", "0,64>1,64,0", "0,64,0>1,64,0@x", "0,64,0>1,64,0@1@melted"} {
		_, _, _, _, err := parseFailEdge(bad)
		assert.Error(t, err, bad)
	}
}

func TestPrinter_PlainEvents(t *testing.T) {
	var buf bytes.Buffer
	p := newPrinter(&buf, false)
	require.True(t, p.plain, "buffers are not terminals")

	p.event(1, navigator.TickReport{})
	assert.Empty(t, buf.String(), "quiet ticks print nothing")

	p.event(7, navigator.TickReport{
		Committed: true,
		Executed:  true,
		Arrived:   true,
	})
	assert.Contains(t, buf.String(), "[    7] committed path, arrived")

	buf.Reset()
	sig := &recovery.Signal{
		Edge:   recovery.Edge{Src: gridpos.New(0, 64, 0), Dest: gridpos.New(1, 64, 0)},
		Reason: movement.ReasonUnreachable,
	}
	p.event(9, navigator.TickReport{Replanned: true, Execution: execution.TickResult{Signal: sig}})
	assert.Contains(t, buf.String(), "abandoned (0,64,0) → (1,64,0) (unreachable), replanning")
}

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	t.Setenv("OTEL_METRICS_EXPORTER", "none")
	t.Setenv("OTEL_TRACES_EXPORTER", "none")
	cfgFile := filepath.Join(dir, "nav.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte(`
execution:
  tick_interval: 0s
  replan_interval: 1ms
storage:
  backend: badger
  path: `+filepath.Join(dir, "history")+`
observability:
  log_level: error
`), 0o600))
	return cfgFile
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func countLines(t *testing.T, path string) int {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return bytes.Count(data, []byte("\n"))
}

func TestRunCommand_ReachesGoal(t *testing.T) {
	dir := t.TempDir()
	cfgFile := writeConfig(t, dir)
	runExport := filepath.Join(dir, "run.jsonl")

	out, err := execute(t, "run", "--config", cfgFile, "--goal", "10,64,0", "--plain",
		"--fail-edge", "0,64,0>1,64,0@1@blocked", "--export", runExport)
	require.NoError(t, err, out)

	assert.Contains(t, out, "goal reached")
	assert.Contains(t, out, "Block(10,64,0)")
	assert.Contains(t, out, "exported")
	_, err = os.Stat(filepath.Join(dir, "history"))
	assert.NoError(t, err, "badger history directory created")
	recorded := countLines(t, runExport)
	assert.Positive(t, recorded, "search and recovery entries exported")

	// The store outlives the run.
	later := filepath.Join(dir, "later.jsonl")
	out, err = execute(t, "export", "--config", cfgFile, "--dest", later, "--plain")
	require.NoError(t, err, out)
	assert.Equal(t, recorded, countLines(t, later))
}

func TestExportCommand_NeedsDestination(t *testing.T) {
	cfgFile := writeConfig(t, t.TempDir())
	_, err := execute(t, "export", "--config", cfgFile)
	assert.ErrorIs(t, err, errNoDestination)
}

func TestRunCommand_RequiresGoal(t *testing.T) {
	restore := stdinIsTerminal
	stdinIsTerminal = func() bool { return false }
	defer func() { stdinIsTerminal = restore }()

	_, err := execute(t, "run", "--plain")
	assert.ErrorIs(t, err, errNoGoal)
}

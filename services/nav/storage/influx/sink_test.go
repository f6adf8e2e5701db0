// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package influx

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/awnumar/memguard"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianNav/services/nav/gridpos"
	"github.com/AleutianAI/AleutianNav/services/nav/history"
	"github.com/AleutianAI/AleutianNav/services/nav/movement"
	"github.com/AleutianAI/AleutianNav/services/nav/recovery"
)

type captured struct {
	mu     sync.Mutex
	bodies []string
	auth   string
	query  string
}

func fakeInflux(t *testing.T, status int) (*httptest.Server, *captured) {
	t.Helper()
	c := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		c.mu.Lock()
		c.bodies = append(c.bodies, string(body))
		c.auth = r.Header.Get("Authorization")
		c.query = r.URL.RawQuery
		c.mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, c
}

func searchEntry() history.Entry {
	dest := gridpos.New(10, 64, 0)
	e := history.NewEntry("run-1", history.KindSearch, time.Unix(1700000000, 0))
	e.Goal = "Block(10,64,0)"
	e.Search = &history.Search{
		Trigger: "goal", Result: "success_to_goal",
		Start: gridpos.New(0, 64, 0), Dest: &dest,
		Length: 11, Cost: 10.5, Nodes: 42, DurationMs: 1.25,
	}
	return e
}

func TestNewSink_Validation(t *testing.T) {
	_, err := NewSink(Config{URL: "http://x"}, memguard.NewEnclave([]byte("t")))
	assert.ErrorIs(t, err, ErrIncomplete)
	_, err = NewSink(Config{URL: "http://x", Org: "o", Bucket: "b"}, nil)
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestSink_WritesSearchPoint(t *testing.T) {
	srv, c := fakeInflux(t, http.StatusNoContent)
	sink, err := NewSink(Config{URL: srv.URL, Org: "aleutian", Bucket: "nav"}, memguard.NewEnclave([]byte("secret-token")))
	require.NoError(t, err)
	defer sink.Close()

	require.NoError(t, sink.Append(context.Background(), searchEntry()))

	c.mu.Lock()
	defer c.mu.Unlock()
	require.Len(t, c.bodies, 1)
	assert.Contains(t, c.bodies[0], "nav_search,")
	assert.Contains(t, c.bodies[0], "run_id=run-1")
	assert.Contains(t, c.bodies[0], "nodes=42i")
	assert.Equal(t, "Token secret-token", c.auth)
	assert.Contains(t, c.query, "bucket=nav")
}

func TestSink_ServerError(t *testing.T) {
	srv, _ := fakeInflux(t, http.StatusInternalServerError)
	sink, err := NewSink(Config{URL: srv.URL, Org: "o", Bucket: "nav"}, memguard.NewEnclave([]byte("t")))
	require.NoError(t, err)
	defer sink.Close()
	assert.Error(t, sink.Append(context.Background(), searchEntry()))
}

func TestSink_SkipsEmptyEntries(t *testing.T) {
	srv, c := fakeInflux(t, http.StatusNoContent)
	sink, err := NewSink(Config{URL: srv.URL, Org: "o", Bucket: "nav"}, memguard.NewEnclave([]byte("t")))
	require.NoError(t, err)
	defer sink.Close()

	require.NoError(t, sink.Append(context.Background(), history.NewEntry("run", history.KindSearch, time.Now())))
	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Empty(t, c.bodies)
}

func TestPoint_Recovery(t *testing.T) {
	e := history.NewEntry("run-2", history.KindRecovery, time.Unix(1700000000, 0))
	e.Recovery = &recovery.Signal{
		Edge:     recovery.Edge{Src: gridpos.New(0, 64, 0), Dest: gridpos.New(1, 64, 0)},
		Kind:     "traverse",
		Reason:   movement.ReasonUnreachable,
		Attempts: 1,
	}
	line := write.PointToLineProtocol(Point(e), time.Second)
	assert.Contains(t, line, "nav_recovery,")
	assert.Contains(t, line, "reason=unreachable")
	assert.Contains(t, line, "kind=traverse")
	assert.Contains(t, line, "attempts=1i")
	assert.Contains(t, line, "1700000000")
}

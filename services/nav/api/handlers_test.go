// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianNav/services/nav/goal"
	"github.com/AleutianAI/AleutianNav/services/nav/gridpos"
	"github.com/AleutianAI/AleutianNav/services/nav/history"
	"github.com/AleutianAI/AleutianNav/services/nav/navigator"
	"github.com/AleutianAI/AleutianNav/services/nav/sim"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router  *gin.Engine
	nav     *navigator.Navigator
	history *history.Memory
}

func setup(t *testing.T) *testServer {
	t.Helper()
	s := sim.DefaultScenario()
	rec := history.NewMemory(32)
	nav, err := navigator.New(navigator.DefaultConfig(), navigator.Deps{
		Agent:    sim.NewAgent(s.Start),
		Provider: sim.NewGraph(s.Build()),
		History:  rec,
	})
	require.NoError(t, err)
	t.Cleanup(func() { nav.Close() })
	return &testServer{
		router:  NewRouter("nav-test", NewHandlers(nav, rec, nil)),
		nav:     nav,
		history: rec,
	}
}

func (s *testServer) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func TestHandleHealth(t *testing.T) {
	s := setup(t)
	w := s.do(t, http.MethodGet, "/v1/nav/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[HealthResponse](t, w)
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, ServiceVersion, resp.Version)
	assert.Equal(t, s.nav.RunID(), resp.RunID)
}

func TestHandleStatus_Idle(t *testing.T) {
	s := setup(t)
	w := s.do(t, http.MethodGet, "/v1/nav/status", nil)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[navigator.Status](t, w)
	assert.Equal(t, s.nav.RunID(), resp.RunID)
	assert.Equal(t, "idle", resp.State)
	assert.Empty(t, resp.Goal)
	assert.Equal(t, gridpos.New(0, 64, 0), resp.Position)
}

func intp(v int) *int { return &v }

func TestHandleGoal_Accepted(t *testing.T) {
	s := setup(t)
	w := s.do(t, http.MethodPost, "/v1/nav/goal", GoalRequest{Kind: GoalBlock, X: intp(3), Y: intp(64), Z: intp(2)})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	resp := decode[GoalResponse](t, w)
	assert.Equal(t, goal.NewBlock(gridpos.New(3, 64, 2)).String(), resp.Goal)
	assert.Equal(t, resp.Goal, s.nav.Status().Goal)
	assert.False(t, s.nav.Done())
}

func TestHandleGoal_KeepsRequestID(t *testing.T) {
	s := setup(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/nav/goal", bytes.NewBufferString(`{"kind":"xz","x":4,"z":4}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", "req-123")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	assert.Equal(t, "req-123", w.Header().Get("X-Request-ID"))
	assert.Equal(t, goal.XZ{X: 4, Z: 4}.String(), s.nav.Status().Goal)
}

func TestHandleGoal_Rejected(t *testing.T) {
	tests := []struct {
		name string
		body any
		code string
	}{
		{"malformed", `{"kind":`, "INVALID_REQUEST"},
		{"missing kind", map[string]int{"x": 1, "y": 64, "z": 1}, "INVALID_GOAL"},
		{"unknown kind", GoalRequest{Kind: "sphere", X: intp(1), Y: intp(64), Z: intp(1)}, "INVALID_GOAL"},
		{"block without y", GoalRequest{Kind: GoalBlock, X: intp(1), Z: intp(1)}, "INVALID_GOAL"},
		{"near without radius", GoalRequest{Kind: GoalNear, X: intp(1), Y: intp(64), Z: intp(1)}, "INVALID_GOAL"},
		{"out of world", GoalRequest{Kind: GoalBlock, X: intp(1), Y: intp(gridpos.MaxY + 1), Z: intp(1)}, "INVALID_GOAL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := setup(t)
			w := s.do(t, http.MethodPost, "/v1/nav/goal", tt.body)
			require.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.code, decode[ErrorResponse](t, w).Code)
			assert.True(t, s.nav.Done(), "goal left unset")
		})
	}
}

func TestHandleGoal_Closed(t *testing.T) {
	s := setup(t)
	require.NoError(t, s.nav.Close())
	w := s.do(t, http.MethodPost, "/v1/nav/goal", GoalRequest{Kind: GoalNear, X: intp(3), Y: intp(64), Z: intp(0), Radius: 2})
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "NAVIGATOR_CLOSED", decode[ErrorResponse](t, w).Code)
}

func TestHandleHistory(t *testing.T) {
	s := setup(t)
	ctx := context.Background()
	now := time.Now()
	for i := 0; i < 5; i++ {
		e := history.NewEntry(s.nav.RunID(), history.KindSearch, now.Add(time.Duration(i)*time.Second))
		e.Search = &history.Search{Trigger: navigator.TriggerGoal, Length: i}
		require.NoError(t, s.history.Append(ctx, e))
	}

	w := s.do(t, http.MethodGet, "/v1/nav/history?limit=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[HistoryResponse](t, w)
	require.Equal(t, 2, resp.Count)
	assert.Equal(t, 4, resp.Entries[0].Search.Length, "newest first")

	w = s.do(t, http.MethodGet, "/v1/nav/history", nil)
	assert.Equal(t, 5, decode[HistoryResponse](t, w).Count)

	for _, bad := range []string{"0", "-1", "abc"} {
		w = s.do(t, http.MethodGet, "/v1/nav/history?limit="+bad, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, bad)
	}
}

func TestHandleHistory_Disabled(t *testing.T) {
	s := setup(t)
	router := NewRouter("nav-test", NewHandlers(s.nav, nil, nil))
	req := httptest.NewRequest(http.MethodGet, "/v1/nav/history", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := setup(t)
	w := s.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandleHistory_RunFilter(t *testing.T) {
	s := setup(t)
	ctx := context.Background()
	other := "6f1c1c7e-4f55-4a36-9d61-3c8b8f1d9b10"
	require.NoError(t, s.history.Append(ctx, history.NewEntry(s.nav.RunID(), history.KindSearch, time.Now())))
	require.NoError(t, s.history.Append(ctx, history.NewEntry(other, history.KindSearch, time.Now())))

	w := s.do(t, http.MethodGet, "/v1/nav/history?run_id="+other, nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[HistoryResponse](t, w)
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, other, resp.Entries[0].RunID)

	w = s.do(t, http.MethodGet, "/v1/nav/history?run_id=not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_RUN_ID", decode[ErrorResponse](t, w).Code)
}

func TestHandleStream(t *testing.T) {
	s := setup(t)
	feed := history.NewFeed()
	router := NewRouter("nav-test", NewHandlers(s.nav, s.history, nil).WithFeed(feed))
	srv := httptest.NewServer(router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/nav/stream?interval_ms=60000"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))

	var first StreamMessage
	require.NoError(t, ws.ReadJSON(&first))
	assert.Equal(t, MessageStatus, first.Type)
	require.NotNil(t, first.Status)
	assert.Equal(t, s.nav.RunID(), first.Status.RunID)

	e := history.NewEntry(s.nav.RunID(), history.KindRecovery, time.Now())
	require.Eventually(t, func() bool { return feed.Subscribers() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, feed.Append(context.Background(), e))

	var next StreamMessage
	require.NoError(t, ws.ReadJSON(&next))
	assert.Equal(t, MessageEntry, next.Type)
	require.NotNil(t, next.Entry)
	assert.Equal(t, e.ID, next.Entry.ID)

	ws.Close()
	assert.Eventually(t, func() bool { return feed.Subscribers() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHandleStream_BadInterval(t *testing.T) {
	s := setup(t)
	w := s.do(t, http.MethodGet, "/v1/nav/stream?interval_ms=0", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

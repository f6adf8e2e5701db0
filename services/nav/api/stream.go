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
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/AleutianNav/services/nav/history"
	"github.com/AleutianAI/AleutianNav/services/nav/navigator"
)

// Stream message types.
const (
	MessageStatus = "status"
	MessageEntry  = "entry"
)

const (
	defaultStreamInterval = 500 * time.Millisecond
	minStreamInterval     = 50 * time.Millisecond
	streamWriteTimeout    = 5 * time.Second
	streamBuffer          = 64
)

// StreamMessage is one websocket frame.
type StreamMessage struct {
	Type   string            `json:"type"`
	Status *navigator.Status `json:"status,omitempty"`
	Entry  *history.Entry    `json:"entry,omitempty"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 16 * 1024,
}

// HandleStream handles GET /v1/nav/stream.
//
// Description:
//
//	Upgrades to a websocket and pushes a status frame on connect and then
//	every interval_ms milliseconds (default 500, minimum 50). When a
//	history feed is configured, every new history entry is pushed as it
//	is recorded. Client frames are ignored; the stream ends when the
//	client disconnects.
func (h *Handlers) HandleStream(c *gin.Context) {
	interval := defaultStreamInterval
	if raw := c.Query("interval_ms"); raw != "" {
		ms, err := strconv.Atoi(raw)
		if err != nil || ms <= 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "interval_ms must be a positive integer", Code: "INVALID_INTERVAL"})
			return
		}
		interval = max(time.Duration(ms)*time.Millisecond, minStreamInterval)
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer ws.Close()
	logger := h.logger.With(slog.String("handler", "HandleStream"), slog.String("remote", c.Request.RemoteAddr))
	logger.Debug("stream client connected")

	var entries <-chan history.Entry
	if h.feed != nil {
		ch, cancel := h.feed.Subscribe(streamBuffer)
		defer cancel()
		entries = ch
	}

	// The reader only detects disconnects.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(m StreamMessage) bool {
		ws.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
		if err := ws.WriteJSON(m); err != nil {
			logger.Debug("stream write failed", slog.String("error", err.Error()))
			return false
		}
		return true
	}
	status := func() bool {
		st := h.nav.Status()
		return send(StreamMessage{Type: MessageStatus, Status: &st})
	}

	if !status() {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-gone:
			logger.Debug("stream client disconnected")
			return
		case <-ticker.C:
			if !status() {
				return
			}
		case e, ok := <-entries:
			if !ok {
				entries = nil
				continue
			}
			if !send(StreamMessage{Type: MessageEntry, Entry: &e}) {
				return
			}
		}
	}
}

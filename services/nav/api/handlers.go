// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package api serves navigator diagnostics and goal control over HTTP.
package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-openapi/strfmt"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/AleutianNav/services/nav/gridpos"
	"github.com/AleutianAI/AleutianNav/services/nav/history"
	"github.com/AleutianAI/AleutianNav/services/nav/navigator"
	"github.com/AleutianAI/AleutianNav/services/nav/telemetry"
)

// ServiceVersion is reported by the health endpoint.
const ServiceVersion = "0.1.0"

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 1000
)

var goalValidate = validator.New(validator.WithRequiredStructEnabled())

// Handlers holds the HTTP handlers.
//
// Thread Safety: Safe for concurrent use. The navigator serialises access
// to its own state.
type Handlers struct {
	nav          *navigator.Navigator
	history      history.Recorder
	feed         *history.Feed
	historyLimit int
	logger       *slog.Logger
}

// NewHandlers creates handlers for nav.
//
// Inputs:
//
//	nav - The navigator to control. Must not be nil.
//	rec - History source. Nil disables /history.
//	logger - Nil uses slog.Default.
func NewHandlers(nav *navigator.Navigator, rec history.Recorder, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		nav:          nav,
		history:      rec,
		historyLimit: defaultHistoryLimit,
		logger:       logger,
	}
}

// WithHistoryLimit sets the default page size for /history.
func (h *Handlers) WithHistoryLimit(limit int) *Handlers {
	if limit > 0 {
		h.historyLimit = min(limit, maxHistoryLimit)
	}
	return h
}

// WithFeed enables /stream history events.
func (h *Handlers) WithFeed(feed *history.Feed) *Handlers {
	h.feed = feed
	return h
}

// RegisterRoutes mounts the nav routes under rg.
//
// Routes:
//
//	GET  /nav/health
//	GET  /nav/status
//	POST /nav/goal
//	GET  /nav/history
//	GET  /nav/stream (websocket)
func RegisterRoutes(rg *gin.RouterGroup, h *Handlers) {
	nav := rg.Group("/nav")
	nav.GET("/health", h.HandleHealth)
	nav.GET("/status", h.HandleStatus)
	nav.POST("/goal", h.HandleGoal)
	nav.GET("/history", h.HandleHistory)
	nav.GET("/stream", h.HandleStream)
}

// NewRouter builds the engine with recovery, tracing and /metrics.
func NewRouter(serviceName string, h *Handlers) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.GET("/metrics", gin.WrapH(telemetry.MetricsHandler()))
	RegisterRoutes(router.Group("/v1"), h)
	return router
}

// HandleHealth handles GET /v1/nav/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: ServiceVersion,
		RunID:   h.nav.RunID(),
	})
}

// HandleStatus handles GET /v1/nav/status.
func (h *Handlers) HandleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, StatusResponse{Status: h.nav.Status()})
}

// HandleGoal handles POST /v1/nav/goal.
//
// Description:
//
//	Replaces the navigator's goal. The search starts immediately; the
//	response does not wait for it.
//
// Request Body:
//
//	GoalRequest
//
// Response:
//
//	202 Accepted: GoalResponse
//	400 Bad Request: Malformed or invalid body
//	503 Service Unavailable: Navigator closed
func (h *Handlers) HandleGoal(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := telemetry.LoggerWithTrace(c.Request.Context(), h.logger).With(
		slog.String("request_id", requestID),
		slog.String("handler", "HandleGoal"),
	)

	var req GoalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body", Code: "INVALID_REQUEST"})
		return
	}
	if err := goalValidate.Struct(req); err != nil {
		logger.Warn("goal rejected", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_GOAL"})
		return
	}
	if req.Kind != GoalXZ && !gridpos.New(*req.X, *req.Y, *req.Z).InRange() {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "goal outside the world", Code: "INVALID_GOAL"})
		return
	}

	g := req.Goal()
	if err := h.nav.SetGoal(c.Request.Context(), g); err != nil {
		status, code := http.StatusInternalServerError, "GOAL_FAILED"
		if errors.Is(err, navigator.ErrClosed) {
			status, code = http.StatusServiceUnavailable, "NAVIGATOR_CLOSED"
		}
		logger.Error("set goal failed", slog.String("error", err.Error()))
		c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
		return
	}
	logger.Info("goal accepted", slog.String("goal", fmt.Sprint(g)))
	c.JSON(http.StatusAccepted, GoalResponse{RunID: h.nav.RunID(), Goal: fmt.Sprint(g)})
}

// HandleHistory handles GET /v1/nav/history.
//
// Query Parameters:
//
//	limit - Maximum entries, newest first.
//	run_id - Only entries from this run. Must be a UUID. Applied after
//	  limit, so a page may hold fewer than limit entries.
func (h *Handlers) HandleHistory(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "history is disabled", Code: "NO_HISTORY"})
		return
	}
	limit := h.historyLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "limit must be a positive integer", Code: "INVALID_LIMIT"})
			return
		}
		limit = min(n, maxHistoryLimit)
	}
	runID := c.Query("run_id")
	if runID != "" && !strfmt.IsUUID(runID) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "run_id must be a UUID", Code: "INVALID_RUN_ID"})
		return
	}

	entries, err := h.history.Recent(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("history read failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "history read failed", Code: "HISTORY_FAILED"})
		return
	}
	filtered := make([]history.Entry, 0, len(entries))
	for _, e := range entries {
		if runID == "" || e.RunID == runID {
			filtered = append(filtered, e)
		}
	}
	entries = filtered
	c.JSON(http.StatusOK, HistoryResponse{Entries: entries, Count: len(entries)})
}

func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads navigator configuration.
//
// Priority is env > file > defaults. Files are YAML, with JSON accepted as a
// fallback. Environment variables use the NAV_ prefix. A Watcher reloads the
// file when it changes on disk.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianNav/services/nav/execution"
	"github.com/AleutianAI/AleutianNav/services/nav/navigator"
	"github.com/AleutianAI/AleutianNav/services/nav/recovery"
	"github.com/AleutianAI/AleutianNav/services/nav/search"
	"github.com/AleutianAI/AleutianNav/services/nav/storage/badger"
	"github.com/AleutianAI/AleutianNav/services/nav/storage/influx"
	"github.com/AleutianAI/AleutianNav/services/nav/telemetry"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid nav config")

// Open set implementations selectable by name.
const (
	OpenSetBinaryHeap = "binary_heap"
	OpenSetLinkedList = "linked_list"
)

// History backends.
const (
	BackendMemory = "memory"
	BackendBadger = "badger"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// NavConfig is the complete navigator configuration.
//
// Thread Safety: Safe to read concurrently. Not safe to modify after creation.
type NavConfig struct {
	Search        SearchConfig        `json:"search" yaml:"search"`
	Bias          BiasConfig          `json:"bias" yaml:"bias"`
	Recovery      RecoveryConfig      `json:"recovery" yaml:"recovery"`
	Execution     ExecutionConfig     `json:"execution" yaml:"execution"`
	Storage       StorageConfig       `json:"storage" yaml:"storage"`
	Observability ObservabilityConfig `json:"observability" yaml:"observability"`
	API           APIConfig           `json:"api" yaml:"api"`
}

// SearchConfig tunes A*.
type SearchConfig struct {
	Epsilon        float64       `json:"epsilon" yaml:"epsilon" validate:"gte=1"`
	PrimaryTimeout time.Duration `json:"primary_timeout" yaml:"primary_timeout" validate:"gt=0"`
	FailureTimeout time.Duration `json:"failure_timeout" yaml:"failure_timeout" validate:"gt=0"`
	MaxNodes       int           `json:"max_nodes" yaml:"max_nodes" validate:"gte=0"`
	MinImprovement float64       `json:"min_improvement" yaml:"min_improvement" validate:"gt=0"`
	OpenSet        string        `json:"open_set" yaml:"open_set" validate:"oneof=binary_heap linked_list"`
}

// BiasConfig tunes the cost bias map.
type BiasConfig struct {
	BacktrackCoefficient float64 `json:"backtrack_coefficient" yaml:"backtrack_coefficient" validate:"gte=1"`
	FailurePenalty       float64 `json:"failure_penalty" yaml:"failure_penalty" validate:"gte=1"`
	HazardRadius         int     `json:"hazard_radius" yaml:"hazard_radius" validate:"gte=0,lte=16"`
	HazardPeak           float64 `json:"hazard_peak" yaml:"hazard_peak" validate:"gte=1"`
}

// RecoveryConfig tunes failure memory and the retry budget.
type RecoveryConfig struct {
	MaxRetries     int           `json:"max_retries" yaml:"max_retries" validate:"gte=1"`
	MemoryDuration time.Duration `json:"memory_duration" yaml:"memory_duration" validate:"gt=0"`
}

// ExecutionConfig tunes the executor and the replan loop.
type ExecutionConfig struct {
	TimeoutMultiplier     float64       `json:"timeout_multiplier" yaml:"timeout_multiplier" validate:"gt=0"`
	TimeoutSlackTicks     int           `json:"timeout_slack_ticks" yaml:"timeout_slack_ticks" validate:"gte=0"`
	MaxDistFromPath       int           `json:"max_dist_from_path" yaml:"max_dist_from_path" validate:"gte=1"`
	OffPathToleranceTicks int           `json:"off_path_tolerance_ticks" yaml:"off_path_tolerance_ticks" validate:"gte=1"`
	MaxPathLength         int           `json:"max_path_length" yaml:"max_path_length" validate:"gte=0"`
	PlanAheadMovements    int           `json:"plan_ahead_movements" yaml:"plan_ahead_movements" validate:"gte=0"`
	ReplanInterval        time.Duration `json:"replan_interval" yaml:"replan_interval" validate:"gt=0"`
	ReplanBurst           int           `json:"replan_burst" yaml:"replan_burst" validate:"gte=1"`
	MaxSearchFailures     int           `json:"max_search_failures" yaml:"max_search_failures" validate:"gte=1"`
	TickInterval          time.Duration `json:"tick_interval" yaml:"tick_interval" validate:"gte=0"`
}

// StorageConfig selects where run history goes.
type StorageConfig struct {
	Backend         string        `json:"backend" yaml:"backend" validate:"oneof=memory badger"`
	Path            string        `json:"path" yaml:"path" validate:"required_if=Backend badger"`
	SyncWrites      bool          `json:"sync_writes" yaml:"sync_writes"`
	GCInterval      time.Duration `json:"gc_interval" yaml:"gc_interval" validate:"gte=0"`
	Retention       time.Duration `json:"retention" yaml:"retention" validate:"gte=0"`
	HistoryCapacity int           `json:"history_capacity" yaml:"history_capacity" validate:"gte=1"`
	Influx          InfluxConfig  `json:"influx" yaml:"influx"`
	Export          ExportConfig  `json:"export" yaml:"export"`
}

// InfluxConfig mirrors history into InfluxDB. The token is read from
// NAV_INFLUX_TOKEN only, never from the file.
type InfluxConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	URL     string `json:"url" yaml:"url" validate:"required_if=Enabled true,omitempty,url"`
	Org     string `json:"org" yaml:"org" validate:"required_if=Enabled true"`
	Bucket  string `json:"bucket" yaml:"bucket" validate:"required_if=Enabled true"`
}

// ExportConfig configures history export. Destination is a local file
// path or a gs://bucket/object URL.
type ExportConfig struct {
	Destination string        `json:"destination" yaml:"destination"`
	Timeout     time.Duration `json:"timeout" yaml:"timeout" validate:"gt=0"`
	Limit       int           `json:"limit" yaml:"limit" validate:"gte=0"`
}

// ObservabilityConfig covers logging and OTel.
type ObservabilityConfig struct {
	LogLevel  string           `json:"log_level" yaml:"log_level" validate:"oneof=debug info warn error"`
	LogFormat string           `json:"log_format" yaml:"log_format" validate:"oneof=json text"`
	Telemetry telemetry.Config `json:"telemetry" yaml:"telemetry"`
}

// APIConfig configures the diagnostics HTTP server.
type APIConfig struct {
	Addr            string        `json:"addr" yaml:"addr" validate:"required,hostname_port"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" validate:"gt=0"`
	HistoryLimit    int           `json:"history_limit" yaml:"history_limit" validate:"gte=1,lte=1000"`
}

// Default returns the default configuration.
func Default() NavConfig {
	so := search.DefaultOptions()
	ex := execution.DefaultConfig()
	nv := navigator.DefaultConfig()
	return NavConfig{
		Search: SearchConfig{
			Epsilon:        so.Epsilon,
			PrimaryTimeout: so.PrimaryTimeout,
			FailureTimeout: so.FailureTimeout,
			MinImprovement: so.MinImprovement,
			OpenSet:        OpenSetBinaryHeap,
		},
		Bias: BiasConfig{
			BacktrackCoefficient: nv.BacktrackCoefficient,
			FailurePenalty:       nv.FailurePenalty,
			HazardRadius:         3,
			HazardPeak:           4,
		},
		Recovery: RecoveryConfig{
			MaxRetries:     recovery.DefaultMaxRetries,
			MemoryDuration: recovery.DefaultMemoryDuration,
		},
		Execution: ExecutionConfig{
			TimeoutMultiplier:     ex.TimeoutMultiplier,
			TimeoutSlackTicks:     ex.TimeoutSlackTicks,
			MaxDistFromPath:       ex.MaxDistFromPath,
			OffPathToleranceTicks: ex.OffPathToleranceTicks,
			PlanAheadMovements:    nv.PlanAheadMovements,
			ReplanInterval:        nv.ReplanInterval,
			ReplanBurst:           nv.ReplanBurst,
			MaxSearchFailures:     nv.MaxSearchFailures,
			TickInterval:          50 * time.Millisecond,
		},
		Storage: StorageConfig{
			Backend:         BackendMemory,
			SyncWrites:      true,
			GCInterval:      5 * time.Minute,
			Retention:       7 * 24 * time.Hour,
			HistoryCapacity: 1024,
			Influx: InfluxConfig{
				Org:    "aleutian",
				Bucket: "nav",
			},
			Export: ExportConfig{
				Timeout: 30 * time.Second,
			},
		},
		Observability: ObservabilityConfig{
			LogLevel:  "info",
			LogFormat: "text",
			Telemetry: telemetry.DefaultConfig(),
		},
		API: APIConfig{
			Addr:            "127.0.0.1:8089",
			ShutdownTimeout: 5 * time.Second,
			HistoryLimit:    100,
		},
	}
}

// Load reads configuration with priority env > file > defaults.
//
// Inputs:
//   - path: YAML or JSON file. Empty or missing uses defaults.
//
// Outputs:
//   - NavConfig: The merged configuration.
//   - error: Non-nil if the file is unreadable or invalid, or the result
//     fails validation.
func Load(path string) (NavConfig, error) {
	cfg := Default()
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *NavConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jsonErr := json.Unmarshal(data, cfg); jsonErr != nil {
			return fmt.Errorf("parse config (tried YAML and JSON): YAML error: %v, JSON error: %w", err, jsonErr)
		}
	}
	return nil
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			*dst = i
		}
	}
}

func envFloat(key string, dst *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		*dst = v == "true" || v == "1"
	}
}

func applyEnv(cfg *NavConfig) {
	envFloat("NAV_SEARCH_EPSILON", &cfg.Search.Epsilon)
	envDuration("NAV_SEARCH_PRIMARY_TIMEOUT", &cfg.Search.PrimaryTimeout)
	envDuration("NAV_SEARCH_FAILURE_TIMEOUT", &cfg.Search.FailureTimeout)
	envInt("NAV_SEARCH_MAX_NODES", &cfg.Search.MaxNodes)
	envString("NAV_SEARCH_OPEN_SET", &cfg.Search.OpenSet)

	envFloat("NAV_BIAS_BACKTRACK_COEFFICIENT", &cfg.Bias.BacktrackCoefficient)
	envFloat("NAV_BIAS_FAILURE_PENALTY", &cfg.Bias.FailurePenalty)

	envInt("NAV_RECOVERY_MAX_RETRIES", &cfg.Recovery.MaxRetries)
	envDuration("NAV_RECOVERY_MEMORY_DURATION", &cfg.Recovery.MemoryDuration)

	envInt("NAV_EXECUTION_MAX_PATH_LENGTH", &cfg.Execution.MaxPathLength)
	envDuration("NAV_EXECUTION_REPLAN_INTERVAL", &cfg.Execution.ReplanInterval)
	envDuration("NAV_EXECUTION_TICK_INTERVAL", &cfg.Execution.TickInterval)

	envString("NAV_STORAGE_BACKEND", &cfg.Storage.Backend)
	envString("NAV_STORAGE_PATH", &cfg.Storage.Path)
	envBool("NAV_STORAGE_SYNC_WRITES", &cfg.Storage.SyncWrites)
	envBool("NAV_INFLUX_ENABLED", &cfg.Storage.Influx.Enabled)
	envString("NAV_INFLUX_URL", &cfg.Storage.Influx.URL)
	envString("NAV_INFLUX_ORG", &cfg.Storage.Influx.Org)
	envString("NAV_INFLUX_BUCKET", &cfg.Storage.Influx.Bucket)
	envString("NAV_EXPORT_DESTINATION", &cfg.Storage.Export.Destination)

	envString("NAV_LOG_LEVEL", &cfg.Observability.LogLevel)
	envString("NAV_LOG_FORMAT", &cfg.Observability.LogFormat)

	envString("NAV_API_ADDR", &cfg.API.Addr)
}

// Validate checks struct tags and cross-field constraints.
//
// Outputs:
//   - error: ErrInvalidConfig wrapping the first problems found.
func (c NavConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.Search.FailureTimeout < c.Search.PrimaryTimeout {
		return fmt.Errorf("%w: search.failure_timeout (%s) is shorter than search.primary_timeout (%s)",
			ErrInvalidConfig, c.Search.FailureTimeout, c.Search.PrimaryTimeout)
	}
	if c.Execution.MaxPathLength == 1 {
		return fmt.Errorf("%w: execution.max_path_length must be 0 or at least 2", ErrInvalidConfig)
	}
	if v := c.Observability.Telemetry.ServiceVersion; v != "" && !semver.IsValid("v"+strings.TrimPrefix(v, "v")) {
		return fmt.Errorf("%w: observability.telemetry.service_version %q is not a semantic version", ErrInvalidConfig, v)
	}
	return nil
}

// SearchOptions converts the search section.
func (c NavConfig) SearchOptions() search.Options {
	o := search.Options{
		Epsilon:        c.Search.Epsilon,
		PrimaryTimeout: c.Search.PrimaryTimeout,
		FailureTimeout: c.Search.FailureTimeout,
		MaxNodes:       c.Search.MaxNodes,
		MinImprovement: c.Search.MinImprovement,
	}
	if c.Search.OpenSet == OpenSetLinkedList {
		o.NewOpenSet = func(t *search.NodeTable) search.OpenSet { return search.NewLinkedListOpenSet(t) }
	}
	return o
}

// ExecutionConfig converts the recovery and execution sections.
func (c NavConfig) ExecutionConfig() execution.Config {
	return execution.Config{
		MaxRetries:            c.Recovery.MaxRetries,
		MemoryDuration:        c.Recovery.MemoryDuration,
		TimeoutMultiplier:     c.Execution.TimeoutMultiplier,
		TimeoutSlackTicks:     c.Execution.TimeoutSlackTicks,
		MaxDistFromPath:       c.Execution.MaxDistFromPath,
		OffPathToleranceTicks: c.Execution.OffPathToleranceTicks,
	}
}

// NavigatorConfig assembles the navigator configuration.
func (c NavConfig) NavigatorConfig() navigator.Config {
	return navigator.Config{
		Search:               c.SearchOptions(),
		Execution:            c.ExecutionConfig(),
		BacktrackCoefficient: c.Bias.BacktrackCoefficient,
		FailurePenalty:       c.Bias.FailurePenalty,
		MaxPathLength:        c.Execution.MaxPathLength,
		PlanAheadMovements:   c.Execution.PlanAheadMovements,
		ReplanInterval:       c.Execution.ReplanInterval,
		ReplanBurst:          c.Execution.ReplanBurst,
		MaxSearchFailures:    c.Execution.MaxSearchFailures,
	}
}

// BadgerConfig converts the storage section.
func (c NavConfig) BadgerConfig(logger *slog.Logger) badger.Config {
	return badger.Config{
		Path:           c.Storage.Path,
		SyncWrites:     c.Storage.SyncWrites,
		GCInterval:     c.Storage.GCInterval,
		GCDiscardRatio: 0.5,
		Retention:      c.Storage.Retention,
		Logger:         logger,
	}
}

// Level parses the configured log level. Unknown values mean info.
func (c NavConfig) Level() slog.Level {
	switch c.Observability.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// InfluxSinkConfig converts the influx section.
func (c NavConfig) InfluxSinkConfig() influx.Config {
	return influx.Config{
		URL:    c.Storage.Influx.URL,
		Org:    c.Storage.Influx.Org,
		Bucket: c.Storage.Influx.Bucket,
	}
}

// NewLogger builds the slog logger described by the observability section.
//
// Inputs:
//   - w: Log destination.
//   - level: Receives the configured level. Nil uses a fixed level. Setting
//     it later changes the logger's threshold, which is how reloads apply.
func (c NavConfig) NewLogger(w io.Writer, level *slog.LevelVar) *slog.Logger {
	var leveler slog.Leveler = c.Level()
	if level != nil {
		level.Set(c.Level())
		leveler = level
	}
	opts := &slog.HandlerOptions{Level: leveler}
	if c.Observability.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

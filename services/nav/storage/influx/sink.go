// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package influx mirrors navigator history into InfluxDB as time series.
//
// Searches become points in nav_search and abandoned edges points in
// nav_recovery, both tagged with the run ID.
package influx

import (
	"context"
	"errors"
	"fmt"

	"github.com/awnumar/memguard"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/AleutianAI/AleutianNav/services/nav/history"
)

var (
	// ErrNoToken is returned when the sink is created without a token.
	ErrNoToken = errors.New("influx token required")

	// ErrIncomplete is returned when URL, org or bucket is missing.
	ErrIncomplete = errors.New("influx url, org and bucket are required")
)

// Measurement names.
const (
	MeasurementSearch   = "nav_search"
	MeasurementRecovery = "nav_recovery"
)

// Config locates the bucket.
type Config struct {
	URL    string `json:"url" yaml:"url"`
	Org    string `json:"org" yaml:"org"`
	Bucket string `json:"bucket" yaml:"bucket"`
}

// Sink writes history entries as points. It implements history.Sink.
//
// Thread Safety: Safe for concurrent use.
type Sink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	bucket   string
}

var _ history.Sink = (*Sink)(nil)

// NewSink connects a blocking writer.
//
// Inputs:
//
//	cfg - Bucket location.
//	token - API token sealed in an enclave. It is opened only long enough
//	  to build the client.
//
// Outputs:
//
//	*Sink - Call Close when done.
//	error - ErrIncomplete, ErrNoToken, or a failure to open the enclave.
func NewSink(cfg Config, token *memguard.Enclave) (*Sink, error) {
	if cfg.URL == "" || cfg.Org == "" || cfg.Bucket == "" {
		return nil, ErrIncomplete
	}
	if token == nil {
		return nil, ErrNoToken
	}
	buf, err := token.Open()
	if err != nil {
		return nil, fmt.Errorf("open influx token: %w", err)
	}
	client := influxdb2.NewClient(cfg.URL, buf.String())
	buf.Destroy()

	return &Sink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		bucket:   cfg.Bucket,
	}, nil
}

// Append implements history.Sink.
func (s *Sink) Append(ctx context.Context, e history.Entry) error {
	p := Point(e)
	if p == nil {
		return nil
	}
	if err := s.writeAPI.WritePoint(ctx, p); err != nil {
		return fmt.Errorf("write %s to %s: %w", e.Kind, s.bucket, err)
	}
	return nil
}

// Close releases the client.
func (s *Sink) Close() {
	s.client.Close()
}

// Point converts an entry. Entries without a payload yield nil.
func Point(e history.Entry) *write.Point {
	switch {
	case e.Kind == history.KindSearch && e.Search != nil:
		sr := e.Search
		p := influxdb2.NewPointWithMeasurement(MeasurementSearch).
			AddTag("run_id", e.RunID).
			AddTag("trigger", sr.Trigger).
			AddTag("result", sr.Result).
			AddField("length", sr.Length).
			AddField("cost", sr.Cost).
			AddField("nodes", sr.Nodes).
			AddField("duration_ms", sr.DurationMs).
			AddField("start", sr.Start.String()).
			SetTime(e.Time)
		if sr.Dest != nil {
			p.AddField("dest", sr.Dest.String())
		}
		if e.Goal != "" {
			p.AddTag("goal", e.Goal)
		}
		return p
	case e.Kind == history.KindRecovery && e.Recovery != nil:
		sig := e.Recovery
		p := influxdb2.NewPointWithMeasurement(MeasurementRecovery).
			AddTag("run_id", e.RunID).
			AddTag("reason", sig.Reason.String()).
			AddField("src", sig.Edge.Src.String()).
			AddField("dest", sig.Edge.Dest.String()).
			AddField("attempts", sig.Attempts).
			AddField("path_index", sig.PathIndex).
			SetTime(e.Time)
		if sig.Kind != "" {
			p.AddTag("kind", sig.Kind)
		}
		return p
	default:
		return nil
	}
}

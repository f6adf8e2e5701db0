// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry bootstraps OpenTelemetry for the navigation service.
//
// Init installs a TracerProvider and a MeterProvider chosen by exporter
// name. After it returns, otel.Tracer and otel.Meter hand out instruments
// backed by the configured exporters. Metrics holds the instruments the
// navigator records into.
//
// Search, execution and recovery packages also register Prometheus
// collectors directly through promauto; the prometheus metric exporter
// shares the default registry, so one /metrics endpoint serves both.
//
// # Environment Variables
//
//   - OTEL_TRACES_EXPORTER: otlp, stdout, or none (default: none)
//   - OTEL_METRICS_EXPORTER: prometheus, stdout, or none (default: prometheus)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint (default: localhost:4317)
//   - NAV_ENV: deployment environment (default: development)
//
// # Thread Safety
//
// All exported functions are safe for concurrent use after Init returns.
package telemetry

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.


// Package telemetry configures OpenTelemetry tracing and metrics for a
// testsynth run.
//
// Traces go to an OTLP collector or stdout. Metrics are exposed through a
// Prometheus registry served by the status server, or printed to stdout.
// Packages take their tracer from otel.Tracer, so nothing else needs to know
// which exporter was chosen.
//
// # Thread Safety
//
// Init is called once at startup. Everything else is safe for concurrent
// use.
package telemetry

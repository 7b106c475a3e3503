/*
Package metrics provides comprehensive metrics collection and monitoring for a
triage collection run.

# Overview

The metrics package implements Prometheus-based metrics collection for artifact
acquisition, memory capture, upload throughput, and errors encountered during a
run. It provides both real-time Prometheus metrics and historical tracking for
debugging and analysis.

Architecture

	┌─────────────┐
	│  Collector  │  ← Main metrics aggregator
	└──────┬──────┘
	       │
	   ┌───┴────────────────────────────┐
	   │                                │
	┌──▼───────────┐         ┌─────────▼──────┐
	│  Prometheus  │         │  HTTP Endpoints │
	│   Registry   │         │  /metrics       │
	│              │         │  /health        │
	│ - Counters   │         │  /debug/metrics │
	│ - Histograms │         └─────────────────┘
	│ - Gauges     │
	└──────────────┘

# Core Components

Collector: The main metrics collector that aggregates and exports metrics.
It maintains both Prometheus metrics (for monitoring systems) and internal
operation tracking (for debugging).

	collector, err := metrics.NewCollector(&metrics.Config{
		Enabled:   true,
		Port:      9090,
		Path:      "/metrics",
		Namespace: "triage_collector",
	})
	if err != nil {
		log.Fatal(err)
	}

	if err := collector.Start(ctx); err != nil {
		log.Fatal(err)
	}
	defer collector.Stop(ctx)

# Recording Operations

The collector tracks operations with timing, size, and success/failure status:

	startTime := time.Now()
	data, err := acquireArtifact(path)
	duration := time.Since(startTime)

	collector.RecordOperation("acquire", duration, int64(len(data)), err == nil)

# Artifact and Upload Metrics

Track collected artifacts, skipped artifacts, and cumulative upload bytes:

	collector.RecordArtifactCollected("registry_hive", 4096)
	collector.RecordArtifactSkipped("prefetch", "not_found")

	collector.UpdateBytesUploaded("s3", cumulativeBytes)
	collector.RecordRetry("upload.s3")

# Error Tracking

Record and classify errors for monitoring and alerting:

	if err != nil {
		collector.RecordError("s3_upload", err)
		return err
	}

# Prometheus Metrics

The collector exports standard Prometheus metrics:

Counters:
  - triage_collector_operations_total{operation,status}: Total operations by type and status
  - triage_collector_artifacts_total{outcome,type}: Artifacts by outcome and type
  - triage_collector_retries_total{component}: Retried operations by component
  - triage_collector_errors_total{operation,type}: Errors by operation and classification

Histograms:
  - triage_collector_operation_duration_seconds{operation}: Operation latency distribution
  - triage_collector_operation_size_bytes{operation}: Operation size distribution

Gauges:
  - triage_collector_upload_bytes{sink}: Cumulative bytes uploaded per sink
  - triage_collector_active_workers: Current number of active collection workers

# HTTP Endpoints

The metrics server exposes several endpoints:

/metrics - Prometheus-formatted metrics (for scraping)

	curl http://localhost:9090/metrics

/health - Health check endpoint

	curl http://localhost:9090/health
	{"status":"healthy","service":"triage-collector-metrics"}

/debug/metrics - Human-readable metrics summary

	curl http://localhost:9090/debug/metrics
	{
	  "uptime": "2m15s",
	  "last_reset": "2026-03-02 14:05:11.482913 +0000 UTC m=+0.000412",
	  "operations": {
	    "acquire": {
	      "count": 342,
	      "errors": 3,
	      "avg_duration": "45ms",
	      "avg_size": 524288.00
	    }
	  }
	}

/debug/operations - Tabular operations summary

	curl http://localhost:9090/debug/operations
	Collection Run Operations Summary
	==================================

	Uptime: 2m15s
	Last Reset: 2026-03-02 14:05:11.482913 +0000 UTC m=+0.000412

	Operation                 Count     Errors Avg Duration     Avg Size    Last Op
	----------                -----     ------ ------------     --------    -------
	acquire                     342          3         45ms       524288   14:07:26
	upload                        1          0        12.4s    734003200   14:07:26

# Configuration

The Config struct controls metrics behavior:

	config := &metrics.Config{
		Enabled:        true,              // Enable/disable metrics collection
		Port:           9090,              // HTTP server port
		Path:           "/metrics",        // Prometheus metrics endpoint path
		Namespace:      "triage_collector",// Prometheus namespace
		Subsystem:      "",                // Optional subsystem prefix
		UpdateInterval: 30 * time.Second,  // Periodic update interval
		Labels:         map[string]string{ // Custom labels for all metrics
			"host":   "WORKSTATION01",
			"case_id": "case-2026-0147",
		},
	}

# Best Practices

1. Operation Recording
Record each artifact acquisition, memory region read, and upload part with
accurate timing and size information. Use consistent operation names across
the codebase.

2. Artifact Metrics
Record every artifact outcome (collected, skipped, locked, denied) so the
run's summary and the Prometheus export agree on totals.

3. Error Classification
Record all errors with meaningful operation context. The collector automatically
classifies errors (timeout, connection, not_found, permission, throttling) for
better monitoring and alerting.

4. Resource Limits
Be mindful of metric cardinality. Avoid high-cardinality labels (like full file
paths) that can explode the metric count.

5. Debugging
Use the /debug/* endpoints for troubleshooting without requiring Prometheus.
These endpoints provide human-readable summaries of current run state.

# Performance Considerations

- Every Record*/Update* call on a disabled collector returns before
  touching any metric
- RecordOperation updates the internal operations table under the
  collector's mutex and then updates the Prometheus metrics directly;
  nothing is buffered between the two
- The other Record*/Update* methods update Prometheus metrics only and
  take no collector lock
- GetMetrics and /debug/operations read the operations table under a
  read lock

# Thread Safety

All Collector methods are thread-safe and can be called concurrently from
multiple goroutines. The collector uses RWMutex for efficient concurrent access.

# Integration with Monitoring Systems

Prometheus Setup:

	scrape_configs:
	  - job_name: 'triage-collector'
	    static_configs:
	      - targets: ['localhost:9090']
	    metrics_path: '/metrics'
	    scrape_interval: 15s

# Example Usage

Complete example of metrics integration:

	package main

	import (
		"context"
		"log"
		"time"

		"github.com/forensant/triage-collector/internal/metrics"
	)

	func main() {
		collector, err := metrics.NewCollector(&metrics.Config{
			Enabled:   true,
			Port:      9090,
			Namespace: "triage_collector",
		})
		if err != nil {
			log.Fatal(err)
		}

		ctx := context.Background()
		if err := collector.Start(ctx); err != nil {
			log.Fatal(err)
		}
		defer collector.Stop(ctx)

		start := time.Now()
		err = acquireRegistryHive()
		duration := time.Since(start)

		collector.RecordOperation("acquire", duration, 1024, err == nil)
		if err != nil {
			collector.RecordError("acquire", err)
		}
	}

	func acquireRegistryHive() error {
		return nil
	}

# See Also

  - pkg/health: Component health tracking
  - internal/circuit: Circuit breaker for upload reliability
  - pkg/errors: Structured error handling

For more information on Prometheus metrics and best practices, see:
https://prometheus.io/docs/practices/naming/
*/
package metrics

/*
Package metrics provides Prometheus metrics collection and exposition for MoonMind.

The metrics package defines and registers all MoonMind metrics using the
Prometheus client library, providing observability into queue depth, job
lifecycle outcomes, lease health, artifact volume, and API performance.
Metrics are exposed via HTTP endpoint for scraping by Prometheus servers.

# Architecture

MoonMind's metrics system follows Prometheus best practices with
instrumentation across all components:

	┌──────────────────── METRICS SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │          Prometheus Registry                │          │
	│  │  - Global DefaultRegistry                   │          │
	│  │  - MustRegister at package init             │          │
	│  │  - Automatic Go runtime metrics             │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │              Metric Types                   │          │
	│  │                                              │          │
	│  │  Gauge: Instant values (queue depth)        │          │
	│  │  Counter: Monotonic increases (claims)      │          │
	│  │  Histogram: Distributions (job duration)    │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Metric Categories                 │          │
	│  │                                              │          │
	│  │  Queue: Queued/running depth, terminals     │          │
	│  │  Claims: Claim outcomes, lease expiries     │          │
	│  │  Events: Timeline appends by level          │          │
	│  │  Artifacts: Bytes stored                    │          │
	│  │  Skills: Cache hits, fetch outcomes         │          │
	│  │  Notifications: Webhook delivery outcomes   │          │
	│  │  API: Request count, duration per route     │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          HTTP Metrics Endpoint              │          │
	│  │  - Path: /metrics                           │          │
	│  │  - Format: Prometheus text exposition       │          │
	│  │  - Handler: promhttp.Handler()              │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Core Components

Metric Registry:
  - Global Prometheus DefaultRegistry
  - All metrics registered at package init
  - Automatic collection of Go runtime metrics
  - Thread-safe for concurrent updates

Queue Depth Collector:
  - Periodically polls the store for per-type status counts
  - Resets and repopulates the queued/running gauges each cycle
  - Decoupled from the store through the CountSource interface

Timer Helper:
  - Convenience wrapper for timing operations
  - Start timer, observe duration to histogram
  - Supports label values for histogram vectors

Health Checker:
  - Tracks per-component health with messages
  - Readiness gates on critical components (database, artifacts)
  - Serves /healthz, /readyz, and liveness JSON handlers

# Metrics Catalog

Queue Metrics:

moonmind_jobs_queued{type}:
  - Type: Gauge
  - Description: Jobs currently in QUEUED by job type
  - Labels: type (task/manifest/codex_exec/codex_skill)
  - Example: moonmind_jobs_queued{type="task"} 12

moonmind_jobs_running{type}:
  - Type: Gauge
  - Description: Jobs currently in RUNNING by job type
  - Labels: type
  - Example: moonmind_jobs_running{type="task"} 4

moonmind_jobs_total{type, status}:
  - Type: Counter
  - Description: Jobs reaching a terminal status
  - Labels: type, status (COMPLETED/FAILED/CANCELLED/DEAD_LETTER)
  - Example: moonmind_jobs_total{type="task",status="COMPLETED"} 310

moonmind_job_duration_seconds{type}:
  - Type: Histogram
  - Description: Claim-to-terminal duration in seconds
  - Labels: type
  - Buckets: Exponential, 1s to ~2.3h (factor 2, 14 buckets)

Claim and Lease Metrics:

moonmind_job_claims_total{outcome}:
  - Type: Counter
  - Description: Claim attempts by outcome
  - Labels: outcome (claimed/empty/lost_race)
  - Example: moonmind_job_claims_total{outcome="claimed"} 290

moonmind_lease_expirations_total{outcome}:
  - Type: Counter
  - Description: Expired leases normalized by the sweeper, by disposition
  - Labels: outcome (requeued/dead_letter/cancelled)
  - Example: moonmind_lease_expirations_total{outcome="requeued"} 7

Timeline Metrics:

moonmind_events_total{level}:
  - Type: Counter
  - Description: Timeline events appended by level
  - Labels: level (info/warning/error)

Artifact Metrics:

moonmind_artifact_bytes_total:
  - Type: Counter
  - Description: Total artifact bytes accepted for storage
  - Example: moonmind_artifact_bytes_total 1.24e+09

Skill Metrics:

moonmind_skill_cache_hits_total:
  - Type: Counter
  - Description: Skill materializations served from the content cache

moonmind_skill_fetches_total{scheme, outcome}:
  - Type: Counter
  - Description: Skill source fetches by scheme and outcome
  - Labels: scheme (git/http/local/builtin), outcome (ok/error)

Notification Metrics:

moonmind_notifications_total{outcome}:
  - Type: Counter
  - Description: Proposal webhook deliveries by outcome
  - Labels: outcome (delivered/failed)

API Metrics:

moonmind_api_requests_total{method, route, status}:
  - Type: Counter
  - Description: HTTP requests by method, route template, and status code
  - Labels: method, route, status
  - Example: moonmind_api_requests_total{method="POST",route="/api/queue/jobs",status="201"} 48

moonmind_api_request_duration_seconds{method, route}:
  - Type: Histogram
  - Description: HTTP request duration in seconds
  - Labels: method, route
  - Buckets: 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10

# Usage

Updating Counter Metrics:

	import "github.com/moonmind/moonmind/pkg/metrics"

	// Increment by 1
	metrics.JobClaims.WithLabelValues("claimed").Inc()

	// Add arbitrary value
	metrics.ArtifactBytes.Add(float64(n))

Recording Histogram Observations:

	// Direct observation
	metrics.JobDuration.WithLabelValues("task").Observe(42.5)

	// Using Timer helper
	timer := metrics.NewTimer()
	// ... perform operation ...
	timer.ObserveDurationVec(metrics.APIRequestDuration, "POST", "/api/queue/jobs")

Running the Queue Depth Collector:

	collector := metrics.NewCollector(store, 15*time.Second)
	collector.Start()
	defer collector.Stop()

Reporting Component Health:

	metrics.SetVersion("1.0.0")
	metrics.UpdateComponent("database", true, "connected")
	metrics.UpdateComponent("artifacts", false, "permission denied")

	http.HandleFunc("/healthz", metrics.HealthHandler())
	http.HandleFunc("/readyz", metrics.ReadyHandler())
	http.Handle("/metrics", metrics.Handler())

# Integration Points

This package integrates with:

  - pkg/queue: Records claim outcomes, terminal counts, job duration
  - pkg/storage: Serves as CountSource for the queue depth collector
  - pkg/events: Counts timeline appends by level
  - pkg/artifacts: Accumulates stored artifact bytes
  - pkg/skills: Tracks cache hits and fetch outcomes
  - pkg/proposals: Counts webhook delivery outcomes
  - pkg/api: Instruments HTTP request count and duration
  - pkg/health: Feeds component status into the health checker
  - Prometheus: Scrapes /metrics endpoint

# Design Patterns

Package Init Registration:
  - All metrics registered in init() function
  - MustRegister panics on duplicate registration
  - Ensures metrics available before main()
  - No runtime registration needed

Label Discipline:
  - Use WithLabelValues for cardinality-bounded labels
  - Route labels use the route template, never the raw path
  - Job IDs and worker IDs never appear as labels
  - Keep label count low (< 4 per metric)

Gauge Reset Pattern:
  - Collector resets queued/running gauges before repopulating
  - Prevents stale series when a job type drains to zero

Timer Pattern:
  - Create timer at operation start
  - Observe duration into histogram on completion
  - Supports both simple and vector histograms

# Monitoring

Prometheus Queries (PromQL):

Queue Health:
  - Total queued: sum(moonmind_jobs_queued)
  - Running by type: moonmind_jobs_running
  - Dead-letter rate: rate(moonmind_jobs_total{status="DEAD_LETTER"}[5m])
  - Lease expiry rate: rate(moonmind_lease_expirations_total[5m])

Claim Efficiency:
  - Claim rate: rate(moonmind_job_claims_total{outcome="claimed"}[1m])
  - Lost races: rate(moonmind_job_claims_total{outcome="lost_race"}[5m])
  - Empty polls: rate(moonmind_job_claims_total{outcome="empty"}[5m])

API Performance:
  - Request rate: rate(moonmind_api_requests_total[1m])
  - Error rate: rate(moonmind_api_requests_total{status=~"5.."}[1m])
  - p95 latency: histogram_quantile(0.95, moonmind_api_request_duration_seconds_bucket)

Job Throughput:
  - Completions: rate(moonmind_jobs_total{status="COMPLETED"}[5m])
  - p95 job duration: histogram_quantile(0.95, moonmind_job_duration_seconds_bucket)

# Alerting Rules

Recommended Prometheus alerts:

Growing Dead-Letter Count:
  - Alert: rate(moonmind_jobs_total{status="DEAD_LETTER"}[15m]) > 0
  - Description: Jobs are exhausting their attempt budget
  - Action: Inspect job timelines, check worker fleet health

High Lease Expiry Rate:
  - Alert: rate(moonmind_lease_expirations_total[5m]) > 0.1
  - Description: Workers losing leases faster than normal
  - Action: Check worker connectivity and heartbeat cadence

Queue Backlog:
  - Alert: sum(moonmind_jobs_queued) > 100 for 15m
  - Description: Claims not keeping up with enqueues
  - Action: Scale workers, check claim eligibility filters

High API Latency:
  - Alert: histogram_quantile(0.95, moonmind_api_request_duration_seconds_bucket) > 1
  - Description: p95 API latency > 1 second
  - Action: Check database performance, pool saturation

# See Also

  - Prometheus documentation: https://prometheus.io/docs/
  - Prometheus client library: https://github.com/prometheus/client_golang
  - Histogram best practices: https://prometheus.io/docs/practices/histograms/
*/
package metrics

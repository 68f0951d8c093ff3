/*
Package health provides the readiness checks served at /readyz.

The server registers one named check per hard dependency and runs them on
demand when a readiness probe arrives. Liveness (/healthz) never touches
this package; a process that can answer HTTP is alive regardless of its
dependencies.

# Architecture

	┌──────────────────── READINESS ────────────────────┐
	│                                                    │
	│  GET /readyz                                       │
	│      │                                             │
	│      ▼                                             │
	│  Checker.Run(ctx)                                  │
	│      │  per-check timeout                          │
	│      ├──► database       db.PingContext            │
	│      └──► artifact_root  write + remove probe file │
	│      │                                             │
	│      ▼                                             │
	│  Report{healthy, checks[]} ──► 200 or 503          │
	└────────────────────────────────────────────────────┘

# Semantics

  - Checks run sequentially in registration order; the report carries one
    Result per check with its error string and duration.
  - One failing check fails the whole report. There are no soft checks;
    optional dependencies (webhooks, mirrors) must not be registered.
  - Every check runs under its own timeout so a hung dependency cannot
    pin the probe handler past timeout * len(checks).

# Usage

	checker := health.NewChecker(5 * time.Second)
	checker.Register("database", health.DatabasePing(db))
	checker.Register("artifact_root", health.DirWritable(cfg.ArtifactRoot))

	report := checker.Run(ctx)
	if !report.Healthy {
		// respond 503 with the report body
	}
*/
package health

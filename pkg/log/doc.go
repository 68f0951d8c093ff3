/*
Package log provides structured logging for MoonMind using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging
with component-specific loggers, configurable log levels, optional rotated
file output, and helper functions for common logging patterns. All logs
include timestamps and support filtering by severity level.

# Architecture

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│                                                           │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Global Logger                    │          │
	│  │  - Zerolog instance                         │          │
	│  │  - Initialized via log.Init()               │          │
	│  │  - Thread-safe for concurrent use           │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                     │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Configuration                     │          │
	│  │  - Level: debug/info/warn/error             │          │
	│  │  - Format: JSON or console (human)          │          │
	│  │  - Output: stdout, rotated file, custom     │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                     │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │         Component Loggers                   │          │
	│  │  - WithComponent("queue")                   │          │
	│  │  - WithJobID("6f1c…")                       │          │
	│  │  - WithWorkerID("worker-7")                 │          │
	│  └────────────────────────────────────────────┘          │
	└───────────────────────────────────────────────────────────┘

# Core Components

Global Logger:
  - Package-level zerolog.Logger instance
  - Initialized once via log.Init()
  - Accessible from all MoonMind packages

Log Levels:
  - Debug: Detailed debugging information
  - Info: General informational messages (production default)
  - Warn: Potential issues
  - Error: Operation failures
  - Fatal: Critical errors (process exits)

File Output:
  - Config.File routes output through lumberjack rotation
  - MaxSizeMB / MaxBackups / MaxAgeDays bound disk usage
  - Rotated archives are gzip-compressed

# Usage

Initializing the logger:

	import "github.com/moonmind/moonmind/pkg/log"

	// JSON output (production)
	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
	})

	// Console output (development)
	log.Init(log.Config{
		Level:      log.DebugLevel,
		JSONOutput: false,
	})

	// Rotated file output
	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		File:       "/var/log/moonmind/server.log",
		MaxSizeMB:  100,
		MaxBackups: 7,
	})

Structured logging:

	log.Logger.Info().
		Str("job_id", job.ID).
		Str("worker_id", workerID).
		Msg("Job claimed")

Component loggers:

	queueLog := log.WithComponent("queue")
	queueLog.Warn().Str("job_id", id).Msg("Cancellation requested")

# Integration Points

This package integrates with:

  - pkg/queue: lifecycle transitions, lease sweeps, pause toggles
  - pkg/storage: transaction failures and claim diagnostics
  - pkg/api: request logging middleware
  - pkg/skills: bundle fetch and materialization progress
  - pkg/proposals: notification delivery outcomes

# Security

Log content rules:
  - Raw worker tokens are never logged; only token ids and worker ids
  - Proposal and manifest text is redacted before it reaches a log field
  - Use typed fields (.Str, .Int, .Err) for user-supplied data

# See Also

  - Zerolog documentation: https://github.com/rs/zerolog
  - 12-Factor App Logs: https://12factor.net/logs
*/
package log

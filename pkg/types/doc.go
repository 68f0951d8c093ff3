/*
Package types defines the core data structures used throughout MoonMind.

This package contains the entity definitions for jobs, artifacts, events,
worker tokens, live sessions, operator controls, proposals, and manifest
registry records, along with the request/response envelopes shared by the
REST and MCP surfaces. It has no business logic; every struct maps onto a
database row (db tags) and a camelCase wire form (json tags).

# Entity Hierarchy

	AgentJob (lifecycle: queued → running → terminal)
	├── JobArtifact     one row per uploaded file
	├── JobEvent        append-only journal, (created_at, id) cursor
	└── TaskRunLiveSession
	     └── TaskRunControlEvent (audit)

	WorkerToken              scoped bearer credential (hash at rest)
	SystemWorkerPauseState   singleton row, monotonic version
	└── SystemControlEvent   (audit)
	TaskProposal             reviewer inbox entry, dedup-keyed
	ManifestRegistryRecord   named manifest, hash-keyed versioning

# Job Lifecycle

	            claim                    complete
	  QUEUED ──────────▶ RUNNING ──────────────────▶ SUCCEEDED
	    │ ▲                │ fail(retryable, attempt<max)
	    │ └────────────────┤
	    │                  │ fail(!retryable)       ▶ FAILED
	    │ request_cancel   │ fail(retryable, last)  ▶ DEAD_LETTER
	    ▼                  │ ack_cancel             ▶ CANCELLED
	 CANCELLED ◀───────────┘

Terminal statuses clear claimed_by/lease_expires_at/next_attempt_at and set
finished_at. Attempt numbers are 1-based and only increase.

# Usage

	job := &types.AgentJob{
		ID:          uuid.NewString(),
		Type:        types.JobTypeTask,
		Status:      types.JobStatusQueued,
		Priority:    5,
		Payload:     payload,
		Attempt:     1,
		MaxAttempts: 3,
	}

	if job.Status.Terminal() {
		// no further transitions allowed
	}

JSONB columns use the JSONMap alias, which implements driver.Valuer and
sql.Scanner; string lists persist as Postgres text[] via pq.StringArray.

# Integration Points

  - pkg/storage: persists every entity here
  - pkg/queue: enforces the lifecycle invariants
  - pkg/api, pkg/mcp: serialize the json views
  - pkg/contract: normalizes AgentJob.Payload for task-typed jobs
*/
package types

/*
Package storage provides PostgreSQL-backed persistence for the MoonMind queue core.

The storage package implements the Store interface over PostgreSQL via sqlx,
covering jobs and their append-only event journals, artifacts, worker tokens,
live sessions, the worker-pause singleton, task proposals, and the manifest
registry. Every mutating method runs in exactly one transaction; lifecycle
methods append their own journal events inside that transaction so a state
change and its audit line can never be observed apart.

# Architecture

MoonMind leans on row locks rather than application-side coordination.
Competing workers contend on the claim index, never on each other:

	┌──────────────────── POSTGRES STORAGE ────────────────────┐
	│                                                           │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Postgres (sqlx.DB)               │          │
	│  │  - Pooled lib/pq connections                │          │
	│  │  - $n placeholders via squirrel             │          │
	│  │  - One COMMIT per Store method              │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                     │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │              Table Layout                    │          │
	│  │  ┌────────────────────────────────┐         │          │
	│  │  │ agent_jobs          (job rows) │         │          │
	│  │  │ job_events      (journal rows) │         │          │
	│  │  │ job_artifacts   (upload index) │         │          │
	│  │  │ worker_tokens    (credentials) │         │          │
	│  │  │ task_run_live_sessions         │         │          │
	│  │  │ task_run_control_events        │         │          │
	│  │  │ system_worker_pause_state (=1) │         │          │
	│  │  │ system_control_events          │         │          │
	│  │  │ task_proposals                 │         │          │
	│  │  │ proposal_notifications         │         │          │
	│  │  │ manifest_registry_records      │         │          │
	│  │  └────────────────────────────────┘         │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                     │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │        Concurrency Control                   │          │
	│  │  - Claim: FOR UPDATE SKIP LOCKED batches    │          │
	│  │  - Lifecycle: FOR UPDATE on the job row     │          │
	│  │  - Mutate*: closure over a locked row       │          │
	│  │  - Winner: conditional UPDATE re-check      │          │
	│  └────────────────────────────────────────────┘          │
	│                                                           │
	└───────────────────────────────────────────────────────────┘

# Claim Flow

ClaimJob first normalizes expired leases, then scans eligible queued rows in
priority order, applying the worker's repository and capability policy to each
candidate in memory:

	normalize expired leases (cancel / dead-letter / requeue)
	        │
	        ▼
	SELECT ... WHERE status='queued' AND next_attempt_at due
	ORDER BY priority DESC, created_at ASC, id ASC
	LIMIT 200 FOR UPDATE SKIP LOCKED
	        │
	        ▼
	per row: repository allowed? required capabilities covered?
	        │
	        ▼
	UPDATE agent_jobs SET status='running', claimed_by, lease_expires_at
	WHERE id=$1 AND status='queued' AND attempt <= max_attempts

A batch that yields no eligible row advances a (priority, created_at, id)
cursor and fetches the next page; a short page ends the scan empty-handed.

# Read-Modify-Write

Rows with non-trivial update rules (live sessions, the pause singleton,
proposals) are mutated through closures:

	session, err := store.MutateLiveSession(ctx, runID, func(s *types.TaskRunLiveSession) error {
		s.Status = types.LiveSessionReady
		s.ReadyAt = &now
		return nil
	})

The store locks the row, applies the closure, enforces invariants the caller
cannot break (ended_at is write-once, pause version always increments, a pause
mutation appends exactly one control event), and writes the row back.

# Journal Cursor

job_events pages on the composite (created_at, id) cursor so readers polling
a hot job never skip entries that share a timestamp:

	WHERE job_id = $1 AND (created_at > $2 OR (created_at = $2 AND id > $3))
	ORDER BY created_at ASC, id ASC
*/
package storage

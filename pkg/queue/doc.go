/*
Package queue implements the MoonMind queue core service.

The queue package owns every policy decision between the HTTP adapters and
the Postgres store: payload contracts, worker authorization, lifecycle
orchestration, artifact limits, pause gating, live-session rules, and
telemetry aggregation. Persistence invariants (single-transaction
transitions, row locking, the journal cursor) live in pkg/storage; this
layer decides what is allowed and which events each operation emits.

# Architecture

	┌───────────────────── QUEUE SERVICE ─────────────────────────┐
	│                                                              │
	│  HTTP / MCP adapters                                         │
	│        │                                                     │
	│        ▼                                                     │
	│  ┌──────────────────────────────────────────────┐           │
	│  │                  Service                      │           │
	│  │                                               │           │
	│  │  CreateJob ── contract / manifest normalize   │           │
	│  │  ClaimJob ─── policy ∩ types, pause gate      │           │
	│  │  Heartbeat / Complete / Fail ── backoff       │           │
	│  │  RequestCancel / AckCancel ── cooperative     │           │
	│  │  UploadArtifact ── size cap, ownership        │           │
	│  │  Events ── cursor rules, long-poll            │           │
	│  │  Tokens ── mint / resolve / revoke            │           │
	│  │  Pause ── singleton, versioned                │           │
	│  │  Live sessions ── status machine, grants      │           │
	│  │  Telemetry ── migration window summary        │           │
	│  └───────┬──────────────┬───────────────┬───────┘           │
	│          │              │               │                    │
	│          ▼              ▼               ▼                    │
	│   storage.Store   artifacts.Store   events.Hub               │
	│   (Postgres)      (filesystem)      (long-poll wakeups)      │
	│                                                              │
	│  Sweeper ──────▶ NormalizeExpiredLeases (ticker)             │
	└──────────────────────────────────────────────────────────────┘

# Claim Policy

A claim request passes through, in order:

 1. Worker identity: the token's worker must match the request's workerId.
 2. Type scope: request allowedTypes ∩ token allowed_job_types; a
    non-overlapping pair is an authorization error, not an empty result.
 3. Pause gate: while the singleton pause row is set, no claim is
    attempted and the response carries the pause snapshot.
 4. Store eligibility: repository allow-list and capability subset checks
    run row by row inside the locked claim scan.

# Retry Backoff

Retryable failures requeue with delay min(max, base * 2^(attempt-1)).
The service computes the delay; the store applies it while it still holds
the row lock, so the attempt counter it is based on cannot go stale.

# Event Emission

Every lifecycle transition appends its journal event inside the store
transaction. The service publishes the job id to the hub only after the
store call returns, so a long-poller woken by the hub always finds the
event already committed.
*/
package queue

/*
Package events provides the in-memory wakeup hub for journal long-polling.

The events package implements a lightweight per-job signal hub. Journal
events themselves live in Postgres and are read with a (created_at, id)
cursor; the hub exists only so a long-poll reader can sleep until the
journal grows instead of re-querying on a tight interval.

# Architecture

	┌────────────────────── WAKEUP HUB ──────────────────────┐
	│                                                         │
	│  Writer (queue service)                                 │
	│    commit journal event ──► Hub.Publish(jobID)          │
	│                                  │                      │
	│                                  ▼                      │
	│                    waiters[jobID] signal set            │
	│                    (one buffered chan per reader)       │
	│                                  │                      │
	│                                  ▼                      │
	│  Reader (events GET, waitSeconds > 0)                   │
	│    Hub.Wait(ctx, jobID, timeout)                        │
	│      woken ──► re-run cursor query ──► respond          │
	│      timeout ──► respond with empty page                │
	└─────────────────────────────────────────────────────────┘

# Delivery Semantics

The hub is intentionally lossy in the safe direction:

  - Publish carries no payload. A reader that wakes re-reads from its own
    cursor, so duplicate or coalesced signals are harmless.
  - Signal channels are buffered (1). A publish racing a reader's select
    still lands; further publishes coalesce into the pending signal.
  - A reader that never subscribes misses nothing: its next poll reads
    the same rows from the store.

# Usage

Waking readers after a commit:

	hub.Publish(job.ID)

Long-polling for new events:

	woken := hub.Wait(ctx, jobID, 25*time.Second)
	events, err := store.ListEvents(ctx, jobID, query)

The wakeup result only decides whether the caller retries the query or
returns the page it already has.
*/
package events

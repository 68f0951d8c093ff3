/*
Package mcp exposes the queue as a fixed set of schema-validated tools over
JSON-RPC 2.0.

The dispatcher is transport-neutral: the REST layer feeds it whole JSON-RPC
envelopes on POST /mcp and flat {tool, arguments} calls on
POST /mcp/tools/call. Both paths run the same validation and the same
handlers, and failures surface the same wire codes as the native REST
routes.

# Architecture

	┌───────────────────── MCP DISPATCH ─────────────────────┐
	│                                                         │
	│  POST /mcp  (JSON-RPC)        POST /mcp/tools/call      │
	│    initialize / ping            {tool, arguments}       │
	│    tools/list                        │                  │
	│    tools/call ────────┐              │                  │
	│                       ▼              ▼                  │
	│                 CallTool(name, arguments)               │
	│                   │ 1. tool lookup (404 on miss)        │
	│                   │ 2. worker-scope gate                │
	│                   │ 3. compiled JSON schema check       │
	│                   ▼                                     │
	│                 queue.Service verb                      │
	└─────────────────────────────────────────────────────────┘

# Tool Set

queue.enqueue, queue.claim, queue.heartbeat, queue.complete, queue.fail,
queue.cancel, queue.get, queue.list, queue.upload_artifact. Artifact
content travels base64-encoded; every other argument mirrors the REST
request bodies field for field.

# Error Parity

Handlers return pkg/errors values untouched. The flat form maps them with
the shared HTTP mapping; the JSON-RPC form folds them into RPC codes and
carries the wire code in error.data.code. A worker calling queue.claim with
a stale token sees worker_auth_failed on either surface.

# Integration Points

This package integrates with:

  - pkg/queue: Every tool handler is a thin binding over a service verb
  - pkg/api: Mounts the dispatcher and builds the Session from headers
  - pkg/errors: Single source for codes and status mapping
*/
package mcp

/*
Package api serves the REST surface over the queue, proposal, and registry
services, plus the MCP bridge and the operational endpoints.

The package is a thin adapter: handlers parse params, bind bodies, pick
identity off headers, and call into the services. All domain rules
(contracts, ownership, state machines, limits) live below; all transport
rules (status codes, the error envelope, multipart shapes) live here.

# Architecture

	┌─────────────────────── HTTP FRONT ───────────────────────┐
	│                                                           │
	│  gin engine                                               │
	│    recovery ─► request log ─► metrics ─► route group      │
	│                                   │                       │
	│            ┌──────────────────────┼──────────────────┐    │
	│            ▼                      ▼                  ▼    │
	│      /queue/...             /task-runs/...      /mcp      │
	│      /proposals             /system/...         /metrics  │
	│      /manifests                                 /healthz  │
	│            │                      │             /readyz   │
	│            ▼                      ▼                       │
	│      queue.Service          queue.Service                 │
	│      proposals.Service      (control, sessions)           │
	│      registry.Service                                     │
	└───────────────────────────────────────────────────────────┘

# Identity

Three headers carry identity, each with a different trust story:

  - X-MoonMind-Worker-Token: worker bearer token, resolved against the
    token store into a WorkerPolicy. Required on worker routes (claim,
    lifecycle verbs, uploads, session report/heartbeat); optional on the
    MCP surface, where per-tool scopes gate instead.
  - X-MoonMind-User-Id: the authenticated principal, asserted by the
    fronting proxy after OIDC. Handlers pass it through as the actor.
  - X-MoonMind-Operator: "true" when the proxy vouches the principal is
    an operator; gates the worker-pause routes.

Raw worker tokens are never logged; the auth middleware hands the chain a
resolved policy, not the credential.

# Errors

Every non-2xx response is the envelope {detail:{code, message}} produced
from pkg/errors. Status selection is the single shared mapping in
errors.HTTPStatus, so the REST surface and the MCP dispatcher cannot
drift apart.

# Success codes

Handlers return bodies; the handle wrapper serializes with the status
already on the writer. Creation routes set 201 before returning; all
other successes are 200. Artifact downloads stream bytes directly and
bypass the wrapper.
*/
package api

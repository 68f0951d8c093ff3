/*
Package client provides the Go client for the MoonMind queue API.

The client wraps the REST surface with typed methods so workers and
producers never hand-build envelopes. It handles identity headers, JSON
encoding, multipart artifact uploads, and turns error envelopes back into
the typed errors the server raised.

# Architecture

	┌──────────────────── WORKER PROCESS ─────────────────────┐
	│                                                          │
	│  c := client.NewWithToken(server, token)                 │
	│                                                          │
	│  loop:                                                   │
	│    resp, _ := c.Claim(ctx, &types.ClaimRequest{...})     │
	│    if resp.Job == nil { sleep; continue }                │
	│    go heartbeat(c, resp.Job)                             │
	│    run job ──► c.AppendEvent / c.UploadArtifact          │
	│    c.Complete / c.Fail / c.AckCancel                     │
	│                                                          │
	└────────────────────────┬─────────────────────────────────┘
	                         │ REST + X-MoonMind-Worker-Token
	                         ▼
	                 MoonMind API server

# Error Handling

Non-2xx responses carry a {detail:{code,message}} envelope. The client
rebuilds the typed error from it, so the same predicates work on both
sides of the wire:

	_, err := c.Complete(ctx, jobID, req)
	switch {
	case errors.IsOwnership(err):
		// another worker holds the lease now
	case errors.IsState(err):
		// job already terminal
	case errors.IsNotFound(err):
		// job id unknown
	}

# Long-Polling Events

ListEvents with WaitSeconds > 0 holds the request open server-side until
the journal grows. The default client timeout leaves headroom above the
server's 60 second ceiling:

	events, err := c.ListEvents(ctx, jobID, client.ListEventsQuery{
		After:       &cursorTime,
		AfterEventID: cursorID,
		WaitSeconds: 25,
	})

# Thread Safety

The client is safe for concurrent use. Identity setters mutate shared
header state, so configure the client before sharing it across
goroutines.
*/
package client

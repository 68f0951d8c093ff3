/*
Package errors defines the closed error sum shared by every MoonMind surface.

Each error carries a Kind (transport classification), a stable wire code, and
a caller-facing message. The REST envelope and the MCP dispatcher derive
their responses from the same HTTPStatus/CodeOf mapping, so a failure looks
identical no matter which surface reported it.

# Core Components

Error kinds and their normative status codes:

	Validation        422 (413 when code is artifact_too_large)
	State             409   operation not allowed in the current state
	Ownership         409   worker does not hold the active claim
	NotFound          404
	Authentication    401   missing or invalid worker token
	Authorization     403   token does not cover the requested worker/scope
	JobAuthorization  403   user is not the creator/requester of the run
	Contract          422   task or manifest payload violations
	Materialization   422   skill bundle failures, code surfaced verbatim
	Internal          500

# Usage

	if job.Status != types.JobStatusRunning {
		return errors.NewState(errors.CodeJobStateConflict,
			"job is not running")
	}

	if err := store.GetJob(ctx, id); err != nil {
		if errors.IsNotFound(err) {
			// 404 path
		}
	}

The package re-exports New/Is/As so callers never need a second errors
import alongside this one.

# Integration Points

  - pkg/api: maps errors onto {detail:{code, message}} envelopes
  - pkg/mcp: reuses the same mapping for tool-call results
  - pkg/storage, pkg/queue, pkg/skills: produce the sum's members
*/
package errors

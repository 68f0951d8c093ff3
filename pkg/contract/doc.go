/*
Package contract normalizes task-family job payloads into a single canonical
shape.

Producers submit tasks directly (type task) or through the legacy types
codex_exec and codex_skill. All three converge on one payload layout before
persistence, so workers, telemetry, and eligibility filtering only ever see
canonical documents.

# Architecture

	┌──────────────────── TASK CONTRACT ───────────────────────┐
	│                                                            │
	│   type=task ───────────────┐                               │
	│   type=codex_exec ── lift ─┼──► normalizeTask              │
	│   type=codex_skill ─ lift ─┘        │                      │
	│                                     ▼                      │
	│   repository shape  ── owner/repo | https | git@host:path  │
	│   targetRuntime     ── codex|gemini|claude (universal→cfg) │
	│   instructions      ── required, trimmed                   │
	│   publish.mode      ── none|branch|pr (default cfg)       │
	│   skill             ── {id:"auto", args:{}} default        │
	│   steps             ── forbidden task-scoped keys          │
	│   container         ── image+command, env rules, excl.     │
	│   auth refs         ── vault://mount/path#field only       │
	│                                     │                      │
	│                                     ▼                      │
	│   requiredCapabilities: [runtime, git, (gh), skill caps,   │
	│                          step caps, (docker), declared]    │
	│   stagePlan: prepare, execute, (publish)                   │
	└────────────────────────────────────────────────────────┘

# Core Components

Normalizer:
  - Carries the configured defaults (runtime, publish mode, skill id)
  - Normalize(jobType, payload) returns the CanonicalTask view plus the
    normalized payload to persist; the input is cloned, never mutated
  - All violations are contract errors carrying invalid_queue_payload

Legacy Lifts:
  - codex_exec: {instruction, ref, publish, codex} becomes a task with
    git.ref and runtime blocks; publish accepts a mode string, a {mode}
    object, or a boolean
  - codex_skill: {skillId, inputs, codex} becomes a task whose skill args
    are the inputs minus the lifted repository/instructions keys;
    instructions are synthesized when absent
  - Auth blocks and caller-declared capabilities pass through unchanged

Capability Derivation:
  - Ordered, deduplicated, lowercased
  - Base [runtime, git]; gh for pr publishing; skill then step
    requirements; docker for enabled containers; declared extras last
  - The derived list lands on payload.requiredCapabilities, which claim
    eligibility reads verbatim

# Usage

	normalizer := contract.NewNormalizer(cfg.DefaultRuntime, cfg.DefaultPublishMode, contract.DefaultSkillID)

	canonical, payload, err := normalizer.Normalize(req.Type, req.Payload)
	if err != nil {
		return err // 422 invalid_queue_payload
	}

	job.Payload = payload
	if canonical.LegacyLifted {
		// append the "Legacy job type submitted" warning event
	}

# Integration Points

This package integrates with:

  - pkg/queue: Normalizes every create_job for task-family types
  - pkg/proposals: Normalizes prospective task envelopes before promotion
  - pkg/security: Validates vault auth references
  - pkg/storage: Claim eligibility consumes the derived capability list
*/
package contract

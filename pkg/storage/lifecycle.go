package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/moonmind/moonmind/pkg/errors"
	"github.com/moonmind/moonmind/pkg/metrics"
	"github.com/moonmind/moonmind/pkg/types"
)

// requireRunningOwner guards every worker-issued transition: the job must be
// RUNNING and claimed by the calling worker. This serializes heartbeat,
// complete, and fail in the order the worker issued them.
func requireRunningOwner(job *types.AgentJob, workerID string) error {
	if job.Status != types.JobStatusRunning {
		return errors.NewState(errors.CodeJobStateConflict,
			fmt.Sprintf("job %s is %s, expected %s", job.ID, job.Status, types.JobStatusRunning))
	}
	if job.ClaimedBy == nil || *job.ClaimedBy != workerID {
		return errors.NewOwnership(fmt.Sprintf("job %s is not claimed by worker %s", job.ID, workerID))
	}
	return nil
}

// HeartbeatJob extends the lease of a running job owned by the worker
func (s *Postgres) HeartbeatJob(ctx context.Context, jobID, workerID string, lease time.Duration) (*types.AgentJob, error) {
	var job *types.AgentJob
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		job, err = s.getJobForUpdate(ctx, tx, jobID)
		if err != nil {
			return err
		}
		if err := requireRunningOwner(job, workerID); err != nil {
			return err
		}

		now := s.now().UTC()
		leaseExpires := now.Add(lease)
		if _, err := tx.ExecContext(ctx,
			`UPDATE agent_jobs SET lease_expires_at = $2, updated_at = $3 WHERE id = $1`,
			job.ID, leaseExpires, now); err != nil {
			return fmt.Errorf("failed to extend lease for job %s: %w", job.ID, err)
		}
		job.LeaseExpiresAt = &leaseExpires
		job.UpdatedAt = now

		return s.insertEventTx(ctx, tx, &types.JobEvent{
			JobID:   job.ID,
			Level:   types.EventLevelInfo,
			Message: EventHeartbeatReceived,
			Payload: types.JSONMap{"workerId": workerID},
		})
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// CompleteJob transitions a running job to SUCCEEDED
func (s *Postgres) CompleteJob(ctx context.Context, jobID, workerID string, resultSummary *string) (*types.AgentJob, error) {
	var job *types.AgentJob
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		job, err = s.getJobForUpdate(ctx, tx, jobID)
		if err != nil {
			return err
		}
		if err := requireRunningOwner(job, workerID); err != nil {
			return err
		}

		now := s.now().UTC()
		if _, err := tx.ExecContext(ctx,
			`UPDATE agent_jobs
			 SET status = $2, result_summary = $3, claimed_by = NULL,
			     lease_expires_at = NULL, next_attempt_at = NULL,
			     finished_at = $4, updated_at = $4
			 WHERE id = $1`,
			job.ID, types.JobStatusSucceeded, resultSummary, now); err != nil {
			return fmt.Errorf("failed to complete job %s: %w", job.ID, err)
		}
		s.markTerminal(job, types.JobStatusSucceeded, now)
		job.ResultSummary = resultSummary

		payload := types.JSONMap{"workerId": workerID}
		if resultSummary != nil {
			payload["resultSummary"] = *resultSummary
		}
		return s.insertEventTx(ctx, tx, &types.JobEvent{
			JobID:   job.ID,
			Level:   types.EventLevelInfo,
			Message: EventJobCompleted,
			Payload: payload,
		})
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// FailJob reports a failure from the owning worker. A cancel-requested job
// short-circuits to CANCELLED regardless of retryable; otherwise retryable
// failures requeue with back-off until attempts exhaust into DEAD_LETTER.
// Failing an already-CANCELLED job is an idempotent no-op.
func (s *Postgres) FailJob(ctx context.Context, jobID, workerID, errorMessage string, retryable bool, backoff func(attempt int) time.Duration) (*types.AgentJob, error) {
	var job *types.AgentJob
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		job, err = s.getJobForUpdate(ctx, tx, jobID)
		if err != nil {
			return err
		}
		if job.Status == types.JobStatusCancelled {
			return nil
		}
		if err := requireRunningOwner(job, workerID); err != nil {
			return err
		}

		now := s.now().UTC()
		switch {
		case job.CancelRequestedAt != nil:
			return s.failToCancelled(ctx, tx, job, workerID, errorMessage, now)
		case retryable && job.Attempt < job.MaxAttempts:
			return s.failToRequeue(ctx, tx, job, workerID, errorMessage, now, backoff)
		case retryable:
			return s.failTerminal(ctx, tx, job, workerID, errorMessage, types.JobStatusDeadLetter, now)
		default:
			return s.failTerminal(ctx, tx, job, workerID, errorMessage, types.JobStatusFailed, now)
		}
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (s *Postgres) failToCancelled(ctx context.Context, tx *sqlx.Tx, job *types.AgentJob, workerID, errorMessage string, now time.Time) error {
	if _, err := tx.ExecContext(ctx,
		`UPDATE agent_jobs
		 SET status = $2, error_message = $3, claimed_by = NULL,
		     lease_expires_at = NULL, next_attempt_at = NULL,
		     finished_at = $4, updated_at = $4
		 WHERE id = $1`,
		job.ID, types.JobStatusCancelled, errorMessage, now); err != nil {
		return fmt.Errorf("failed to cancel failing job %s: %w", job.ID, err)
	}
	s.markTerminal(job, types.JobStatusCancelled, now)
	job.ErrorMessage = &errorMessage

	return s.insertEventTx(ctx, tx, &types.JobEvent{
		JobID:   job.ID,
		Level:   types.EventLevelWarn,
		Message: EventJobCancelled,
		Payload: types.JSONMap{"workerId": workerID, "via": "fail_job", "error": errorMessage},
	})
}

func (s *Postgres) failToRequeue(ctx context.Context, tx *sqlx.Tx, job *types.AgentJob, workerID, errorMessage string, now time.Time, backoff func(attempt int) time.Duration) error {
	delay := time.Duration(0)
	if backoff != nil {
		delay = backoff(job.Attempt)
	}
	nextAttemptAt := now.Add(delay)
	if _, err := tx.ExecContext(ctx,
		`UPDATE agent_jobs
		 SET status = $2, error_message = $3, claimed_by = NULL,
		     lease_expires_at = NULL, attempt = attempt + 1,
		     next_attempt_at = $4, updated_at = $5
		 WHERE id = $1`,
		job.ID, types.JobStatusQueued, errorMessage, nextAttemptAt, now); err != nil {
		return fmt.Errorf("failed to requeue job %s: %w", job.ID, err)
	}
	job.Status = types.JobStatusQueued
	job.ErrorMessage = &errorMessage
	job.ClaimedBy = nil
	job.LeaseExpiresAt = nil
	job.Attempt++
	job.NextAttemptAt = &nextAttemptAt
	job.UpdatedAt = now

	return s.insertEventTx(ctx, tx, &types.JobEvent{
		JobID:   job.ID,
		Level:   types.EventLevelWarn,
		Message: EventJobFailedRetryable,
		Payload: types.JSONMap{
			"workerId":      workerID,
			"error":         errorMessage,
			"attempt":       job.Attempt,
			"nextAttemptAt": nextAttemptAt.Format(time.RFC3339Nano),
		},
	})
}

func (s *Postgres) failTerminal(ctx context.Context, tx *sqlx.Tx, job *types.AgentJob, workerID, errorMessage string, status types.JobStatus, now time.Time) error {
	if _, err := tx.ExecContext(ctx,
		`UPDATE agent_jobs
		 SET status = $2, error_message = $3, claimed_by = NULL,
		     lease_expires_at = NULL, next_attempt_at = NULL,
		     finished_at = $4, updated_at = $4
		 WHERE id = $1`,
		job.ID, status, errorMessage, now); err != nil {
		return fmt.Errorf("failed to fail job %s: %w", job.ID, err)
	}
	s.markTerminal(job, status, now)
	job.ErrorMessage = &errorMessage

	return s.insertEventTx(ctx, tx, &types.JobEvent{
		JobID:   job.ID,
		Level:   types.EventLevelError,
		Message: EventJobFailed,
		Payload: types.JSONMap{
			"workerId": workerID,
			"error":    errorMessage,
			"attempt":  job.Attempt,
			"terminal": string(status),
		},
	})
}

// RequestCancel asks for cooperative cancellation. QUEUED jobs cancel
// immediately; RUNNING jobs keep state and gain cancel_requested_at for the
// worker to observe. Repeat requests return noop codes without state change.
func (s *Postgres) RequestCancel(ctx context.Context, jobID string, actorUserID *string, reason string) (*CancelOutcome, error) {
	outcome := &CancelOutcome{}
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		job, err := s.getJobForUpdate(ctx, tx, jobID)
		if err != nil {
			return err
		}
		outcome.Job = job
		now := s.now().UTC()

		switch job.Status {
		case types.JobStatusQueued:
			return s.cancelQueued(ctx, tx, job, actorUserID, reason, now)
		case types.JobStatusRunning:
			if job.CancelRequestedAt != nil {
				outcome.Noop = NoopRunningRequested
				return nil
			}
			return s.flagRunningCancel(ctx, tx, job, actorUserID, reason, now)
		case types.JobStatusCancelled:
			outcome.Noop = NoopCancelled
			return nil
		default:
			return errors.NewState(errors.CodeJobStateConflict,
				fmt.Sprintf("job %s is %s and cannot be cancelled", job.ID, job.Status))
		}
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

func (s *Postgres) cancelQueued(ctx context.Context, tx *sqlx.Tx, job *types.AgentJob, actorUserID *string, reason string, now time.Time) error {
	var reasonPtr *string
	if reason != "" {
		reasonPtr = &reason
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE agent_jobs
		 SET status = $2, cancel_requested_at = $3, cancel_requested_by_user_id = $4,
		     cancel_reason = $5, next_attempt_at = NULL, finished_at = $3, updated_at = $3
		 WHERE id = $1`,
		job.ID, types.JobStatusCancelled, now, actorUserID, reasonPtr); err != nil {
		return fmt.Errorf("failed to cancel queued job %s: %w", job.ID, err)
	}
	s.markTerminal(job, types.JobStatusCancelled, now)
	job.CancelRequestedAt = &now
	job.CancelRequestedByUserID = actorUserID
	job.CancelReason = reasonPtr

	return s.insertEventTx(ctx, tx, &types.JobEvent{
		JobID:   job.ID,
		Level:   types.EventLevelInfo,
		Message: EventJobCancelled,
		Payload: cancelEventPayload(actorUserID, reason),
	})
}

func (s *Postgres) flagRunningCancel(ctx context.Context, tx *sqlx.Tx, job *types.AgentJob, actorUserID *string, reason string, now time.Time) error {
	var reasonPtr *string
	if reason != "" {
		reasonPtr = &reason
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE agent_jobs
		 SET cancel_requested_at = $2, cancel_requested_by_user_id = $3,
		     cancel_reason = $4, updated_at = $2
		 WHERE id = $1`,
		job.ID, now, actorUserID, reasonPtr); err != nil {
		return fmt.Errorf("failed to flag cancel on job %s: %w", job.ID, err)
	}
	job.CancelRequestedAt = &now
	job.CancelRequestedByUserID = actorUserID
	job.CancelReason = reasonPtr
	job.UpdatedAt = now

	return s.insertEventTx(ctx, tx, &types.JobEvent{
		JobID:   job.ID,
		Level:   types.EventLevelWarn,
		Message: EventCancellationRequested,
		Payload: cancelEventPayload(actorUserID, reason),
	})
}

// AckCancel is the worker-side terminal acknowledgement of a cancellation.
// Acking an already-CANCELLED job returns noop_cancelled.
func (s *Postgres) AckCancel(ctx context.Context, jobID, workerID string) (*CancelOutcome, error) {
	outcome := &CancelOutcome{}
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		job, err := s.getJobForUpdate(ctx, tx, jobID)
		if err != nil {
			return err
		}
		outcome.Job = job

		if job.Status == types.JobStatusCancelled {
			outcome.Noop = NoopCancelled
			return nil
		}
		if err := requireRunningOwner(job, workerID); err != nil {
			return err
		}
		if job.CancelRequestedAt == nil {
			return errors.NewState(errors.CodeJobStateConflict,
				fmt.Sprintf("job %s has no pending cancellation", job.ID))
		}

		now := s.now().UTC()
		if _, err := tx.ExecContext(ctx,
			`UPDATE agent_jobs
			 SET status = $2, claimed_by = NULL, lease_expires_at = NULL,
			     next_attempt_at = NULL, finished_at = $3, updated_at = $3
			 WHERE id = $1`,
			job.ID, types.JobStatusCancelled, now); err != nil {
			return fmt.Errorf("failed to ack cancel on job %s: %w", job.ID, err)
		}
		s.markTerminal(job, types.JobStatusCancelled, now)

		return s.insertEventTx(ctx, tx, &types.JobEvent{
			JobID:   job.ID,
			Level:   types.EventLevelInfo,
			Message: EventJobCancelled,
			Payload: types.JSONMap{"workerId": workerID, "via": "ack_cancel"},
		})
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// markTerminal applies the terminal-state invariant to the in-memory job and
// records the terminal metrics
func (s *Postgres) markTerminal(job *types.AgentJob, status types.JobStatus, now time.Time) {
	job.Status = status
	job.ClaimedBy = nil
	job.LeaseExpiresAt = nil
	job.NextAttemptAt = nil
	job.FinishedAt = &now
	job.UpdatedAt = now

	metrics.JobsTerminal.WithLabelValues(string(job.Type), string(status)).Inc()
	if job.StartedAt != nil {
		metrics.JobDuration.WithLabelValues(string(job.Type)).Observe(now.Sub(*job.StartedAt).Seconds())
	}
}

func cancelEventPayload(actorUserID *string, reason string) types.JSONMap {
	payload := types.JSONMap{}
	if actorUserID != nil {
		payload["requestedBy"] = *actorUserID
	}
	if reason != "" {
		payload["reason"] = reason
	}
	return payload
}

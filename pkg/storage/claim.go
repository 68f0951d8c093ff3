package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/moonmind/moonmind/pkg/metrics"
	"github.com/moonmind/moonmind/pkg/types"
)

// claimBatchSize bounds the per-page scan of the claim walk
const claimBatchSize = 200

type claimCursor struct {
	priority  int
	createdAt time.Time
	id        string
}

// ClaimJob atomically assigns the next eligible queued job to a worker.
// Expired leases are normalized first so a stuck job never shadows the
// queue. Returns nil when no eligible job exists.
func (s *Postgres) ClaimJob(ctx context.Context, q ClaimQuery) (*types.AgentJob, error) {
	var claimed *types.AgentJob
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		now := s.now().UTC()
		if _, err := s.normalizeExpiredTx(ctx, tx, now, q.RetryDelay); err != nil {
			return err
		}

		workerCaps := make(map[string]bool, len(q.Capabilities))
		for _, c := range q.Capabilities {
			workerCaps[strings.ToLower(strings.TrimSpace(c))] = true
		}
		allowedRepos := make(map[string]bool, len(q.AllowedRepositories))
		for _, r := range q.AllowedRepositories {
			allowedRepos[r] = true
		}

		var cursor *claimCursor
		for {
			batch, err := s.claimBatch(ctx, tx, now, q.Types, cursor)
			if err != nil {
				return err
			}
			if len(batch) == 0 {
				metrics.JobClaims.WithLabelValues("empty").Inc()
				return nil
			}
			for _, job := range batch {
				if !claimEligible(job, allowedRepos, workerCaps) {
					continue
				}
				won, err := s.tryClaim(ctx, tx, job, q.WorkerID, q.Lease, now)
				if err != nil {
					return err
				}
				if won {
					claimed = job
					metrics.JobClaims.WithLabelValues("claimed").Inc()
					return nil
				}
			}
			if len(batch) < claimBatchSize {
				metrics.JobClaims.WithLabelValues("empty").Inc()
				return nil
			}
			last := batch[len(batch)-1]
			cursor = &claimCursor{priority: last.Priority, createdAt: last.CreatedAt, id: last.ID}
		}
	})
	return claimed, err
}

// claimBatch locks the next page of claimable rows in claim order
func (s *Postgres) claimBatch(ctx context.Context, tx *sqlx.Tx, now time.Time, jobTypes []string, cursor *claimCursor) ([]*types.AgentJob, error) {
	query := `SELECT ` + jobColumns + ` FROM agent_jobs
		WHERE status = $1 AND (next_attempt_at IS NULL OR next_attempt_at <= $2)`
	args := []any{types.JobStatusQueued, now}

	if len(jobTypes) > 0 {
		args = append(args, pq.Array(jobTypes))
		query += fmt.Sprintf(" AND type = ANY($%d)", len(args))
	}
	if cursor != nil {
		p, c, i := len(args)+1, len(args)+2, len(args)+3
		args = append(args, cursor.priority, cursor.createdAt, cursor.id)
		query += fmt.Sprintf(
			" AND (priority < $%d OR (priority = $%d AND (created_at > $%d OR (created_at = $%d AND id > $%d))))",
			p, p, c, c, i)
	}
	query += fmt.Sprintf(
		" ORDER BY priority DESC, created_at ASC, id ASC LIMIT %d FOR UPDATE SKIP LOCKED",
		claimBatchSize)

	batch := []*types.AgentJob{}
	if err := tx.SelectContext(ctx, &batch, query, args...); err != nil {
		return nil, fmt.Errorf("failed to scan claim batch: %w", err)
	}
	return batch, nil
}

// claimEligible tests one locked candidate against the worker's policy and
// advertised capabilities. A job with no capability claim is never picked.
func claimEligible(job *types.AgentJob, allowedRepos, workerCaps map[string]bool) bool {
	if len(allowedRepos) > 0 && !allowedRepos[job.Payload.String("repository")] {
		return false
	}
	required := job.Payload.StringSlice("requiredCapabilities")
	if len(required) == 0 {
		return false
	}
	for _, c := range required {
		if !workerCaps[strings.ToLower(c)] {
			return false
		}
	}
	return true
}

// tryClaim performs the conditional QUEUED->RUNNING update. The re-check of
// status and the retry window makes concurrent double-claims impossible even
// for rows inspected outside this transaction's locks.
func (s *Postgres) tryClaim(ctx context.Context, tx *sqlx.Tx, job *types.AgentJob, workerID string, lease time.Duration, now time.Time) (bool, error) {
	leaseExpires := now.Add(lease)
	res, err := tx.ExecContext(ctx,
		`UPDATE agent_jobs
		 SET status = $2, claimed_by = $3, lease_expires_at = $4,
		     started_at = COALESCE(started_at, $5), next_attempt_at = NULL, updated_at = $5
		 WHERE id = $1 AND status = $6 AND (next_attempt_at IS NULL OR next_attempt_at <= $5)`,
		job.ID, types.JobStatusRunning, workerID, leaseExpires, now, types.JobStatusQueued)
	if err != nil {
		return false, fmt.Errorf("failed to claim job %s: %w", job.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read claim result: %w", err)
	}
	if affected == 0 {
		return false, nil
	}

	job.Status = types.JobStatusRunning
	job.ClaimedBy = &workerID
	job.LeaseExpiresAt = &leaseExpires
	if job.StartedAt == nil {
		started := now
		job.StartedAt = &started
	}
	job.NextAttemptAt = nil
	job.UpdatedAt = now

	return true, s.insertEventTx(ctx, tx, &types.JobEvent{
		JobID:   job.ID,
		Level:   types.EventLevelInfo,
		Message: EventJobClaimed,
		Payload: types.JSONMap{
			"workerId":     workerID,
			"attempt":      job.Attempt,
			"leaseSeconds": int(lease.Seconds()),
		},
	})
}

// NormalizeExpiredLeases sweeps RUNNING rows whose lease has lapsed. The
// claim path runs the same normalization first, so this is a liveness
// backstop for idle queues rather than the primary mechanism.
func (s *Postgres) NormalizeExpiredLeases(ctx context.Context, retryDelay time.Duration) (int, error) {
	var normalized int
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		normalized, err = s.normalizeExpiredTx(ctx, tx, s.now().UTC(), retryDelay)
		return err
	})
	return normalized, err
}

func (s *Postgres) normalizeExpiredTx(ctx context.Context, tx *sqlx.Tx, now time.Time, retryDelay time.Duration) (int, error) {
	expired := []*types.AgentJob{}
	err := tx.SelectContext(ctx, &expired,
		`SELECT `+jobColumns+` FROM agent_jobs
		 WHERE status = $1 AND lease_expires_at <= $2
		 FOR UPDATE SKIP LOCKED`,
		types.JobStatusRunning, now)
	if err != nil {
		return 0, fmt.Errorf("failed to scan expired leases: %w", err)
	}

	for _, job := range expired {
		switch {
		case job.CancelRequestedAt != nil:
			// A cancel-requested job whose worker vanished still reaches
			// CANCELLED without an ack, bounding observation latency.
			if err := s.expireToCancelled(ctx, tx, job, now); err != nil {
				return 0, err
			}
		case job.Attempt >= job.MaxAttempts:
			if err := s.expireToDeadLetter(ctx, tx, job, now); err != nil {
				return 0, err
			}
		default:
			if err := s.expireToRequeue(ctx, tx, job, now, retryDelay); err != nil {
				return 0, err
			}
		}
	}
	return len(expired), nil
}

func (s *Postgres) expireToCancelled(ctx context.Context, tx *sqlx.Tx, job *types.AgentJob, now time.Time) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE agent_jobs
		 SET status = $2, claimed_by = NULL, lease_expires_at = NULL,
		     next_attempt_at = NULL, finished_at = $3, updated_at = $3
		 WHERE id = $1`,
		job.ID, types.JobStatusCancelled, now)
	if err != nil {
		return fmt.Errorf("failed to cancel expired job %s: %w", job.ID, err)
	}
	metrics.LeaseExpirations.WithLabelValues("cancelled").Inc()
	return s.insertEventTx(ctx, tx, &types.JobEvent{
		JobID:   job.ID,
		Level:   types.EventLevelWarn,
		Message: EventJobCancelled,
		Payload: types.JSONMap{"reason": "lease_expired", "workerId": derefString(job.ClaimedBy)},
	})
}

func (s *Postgres) expireToDeadLetter(ctx context.Context, tx *sqlx.Tx, job *types.AgentJob, now time.Time) error {
	synthesized := fmt.Sprintf("lease expired after attempt %d of %d", job.Attempt, job.MaxAttempts)
	_, err := tx.ExecContext(ctx,
		`UPDATE agent_jobs
		 SET status = $2, claimed_by = NULL, lease_expires_at = NULL,
		     next_attempt_at = NULL, error_message = COALESCE(error_message, $3),
		     finished_at = $4, updated_at = $4
		 WHERE id = $1`,
		job.ID, types.JobStatusDeadLetter, synthesized, now)
	if err != nil {
		return fmt.Errorf("failed to dead-letter expired job %s: %w", job.ID, err)
	}
	metrics.LeaseExpirations.WithLabelValues("dead_letter").Inc()
	return s.insertEventTx(ctx, tx, &types.JobEvent{
		JobID:   job.ID,
		Level:   types.EventLevelError,
		Message: EventJobFailed,
		Payload: types.JSONMap{"reason": "lease_expired", "attempt": job.Attempt, "workerId": derefString(job.ClaimedBy)},
	})
}

func (s *Postgres) expireToRequeue(ctx context.Context, tx *sqlx.Tx, job *types.AgentJob, now time.Time, retryDelay time.Duration) error {
	nextAttemptAt := now.Add(retryDelay)
	_, err := tx.ExecContext(ctx,
		`UPDATE agent_jobs
		 SET status = $2, claimed_by = NULL, lease_expires_at = NULL,
		     attempt = attempt + 1, next_attempt_at = $3, updated_at = $4
		 WHERE id = $1`,
		job.ID, types.JobStatusQueued, nextAttemptAt, now)
	if err != nil {
		return fmt.Errorf("failed to requeue expired job %s: %w", job.ID, err)
	}
	metrics.LeaseExpirations.WithLabelValues("requeued").Inc()
	return s.insertEventTx(ctx, tx, &types.JobEvent{
		JobID:   job.ID,
		Level:   types.EventLevelWarn,
		Message: EventJobFailedRetryable,
		Payload: types.JSONMap{"reason": "lease_expired", "attempt": job.Attempt + 1, "workerId": derefString(job.ClaimedBy)},
	})
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

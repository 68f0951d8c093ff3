package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/moonmind/moonmind/pkg/errors"
	"github.com/moonmind/moonmind/pkg/types"
)

const jobColumns = `id, type, status, priority, payload, created_by_user_id,
	requested_by_user_id, affinity_key, claimed_by, lease_expires_at,
	next_attempt_at, attempt, max_attempts, result_summary, error_message,
	cancel_requested_at, cancel_requested_by_user_id, cancel_reason,
	artifacts_path, started_at, finished_at, created_at, updated_at`

// CreateJob persists a new job plus its submission events in one transaction
func (s *Postgres) CreateJob(ctx context.Context, job *types.AgentJob, events ...*types.JobEvent) error {
	now := s.now().UTC()
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = types.JobStatusQueued
	}
	if job.Attempt == 0 {
		job.Attempt = 1
	}
	job.CreatedAt = now
	job.UpdatedAt = now

	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		return s.insertJobTx(ctx, tx, job, events)
	})
}

func (s *Postgres) insertJobTx(ctx context.Context, tx *sqlx.Tx, job *types.AgentJob, events []*types.JobEvent) error {
	query, args, err := s.sb.Insert("agent_jobs").
		Columns("id", "type", "status", "priority", "payload",
			"created_by_user_id", "requested_by_user_id", "affinity_key",
			"attempt", "max_attempts", "next_attempt_at",
			"created_at", "updated_at").
		Values(job.ID, job.Type, job.Status, job.Priority, job.Payload,
			job.CreatedByUserID, job.RequestedByUserID, job.AffinityKey,
			job.Attempt, job.MaxAttempts, job.NextAttemptAt,
			job.CreatedAt, job.UpdatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build job insert: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}
	for _, event := range events {
		event.JobID = job.ID
		if err := s.insertEventTx(ctx, tx, event); err != nil {
			return err
		}
	}
	return nil
}

// GetJob fetches one job by id
func (s *Postgres) GetJob(ctx context.Context, id string) (*types.AgentJob, error) {
	var job types.AgentJob
	err := s.db.GetContext(ctx, &job,
		`SELECT `+jobColumns+` FROM agent_jobs WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(errors.CodeJobNotFound, fmt.Sprintf("job %s not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

// getJobForUpdate locks one row for a lifecycle transition
func (s *Postgres) getJobForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*types.AgentJob, error) {
	var job types.AgentJob
	err := tx.GetContext(ctx, &job,
		`SELECT `+jobColumns+` FROM agent_jobs WHERE id = $1 FOR UPDATE`, id)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(errors.CodeJobNotFound, fmt.Sprintf("job %s not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock job: %w", err)
	}
	return &job, nil
}

// ListJobs returns jobs newest first, optionally filtered
func (s *Postgres) ListJobs(ctx context.Context, filter JobFilter) ([]*types.AgentJob, error) {
	builder := s.sb.Select(jobColumns).
		From("agent_jobs").
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(filter.Limit))
	if filter.Status != nil {
		builder = builder.Where(sq.Eq{"status": *filter.Status})
	}
	if filter.Type != nil {
		builder = builder.Where(sq.Eq{"type": *filter.Type})
	}
	if filter.Repository != nil {
		builder = builder.Where("payload ->> 'repository' = ?", *filter.Repository)
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build job list: %w", err)
	}
	jobs := []*types.AgentJob{}
	if err := s.db.SelectContext(ctx, &jobs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, nil
}

// ListJobsSince returns jobs created inside the telemetry window, newest
// first, reporting whether the limit truncated the result
func (s *Postgres) ListJobsSince(ctx context.Context, since time.Time, limit int) ([]*types.AgentJob, bool, error) {
	jobs := []*types.AgentJob{}
	err := s.db.SelectContext(ctx, &jobs,
		`SELECT `+jobColumns+` FROM agent_jobs
		 WHERE created_at >= $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2`, since, limit+1)
	if err != nil {
		return nil, false, fmt.Errorf("failed to list jobs since %s: %w", since, err)
	}
	truncated := len(jobs) > limit
	if truncated {
		jobs = jobs[:limit]
	}
	return jobs, truncated, nil
}

// SetJobLiveControl merges the operator control block into the job payload
// so workers observe pause/takeover intent on their next poll
func (s *Postgres) SetJobLiveControl(ctx context.Context, jobID string, control types.LiveControl) error {
	data, err := json.Marshal(control)
	if err != nil {
		return fmt.Errorf("failed to marshal live control: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE agent_jobs
		 SET payload = jsonb_set(payload, '{liveControl}', $2::jsonb, true), updated_at = $3
		 WHERE id = $1`,
		jobID, data, s.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to set live control: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return errors.NewNotFound(errors.CodeJobNotFound, fmt.Sprintf("job %s not found", jobID))
	}
	return nil
}

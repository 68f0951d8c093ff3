package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/moonmind/moonmind/pkg/errors"
	"github.com/moonmind/moonmind/pkg/metrics"
	"github.com/moonmind/moonmind/pkg/types"
)

const eventColumns = `id, job_id, level, message, payload, created_at`

// foreign_key_violation
const pqForeignKeyViolation = "23503"

func (s *Postgres) insertEventTx(ctx context.Context, tx *sqlx.Tx, event *types.JobEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Level == "" {
		event.Level = types.EventLevelInfo
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = s.now().UTC()
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO job_events (id, job_id, level, message, payload, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		event.ID, event.JobID, event.Level, event.Message, event.Payload, event.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert event for job %s: %w", event.JobID, err)
	}
	metrics.EventsTotal.WithLabelValues(string(event.Level)).Inc()
	return nil
}

// AppendEvent appends one journal entry to a job's event stream
func (s *Postgres) AppendEvent(ctx context.Context, event *types.JobEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Level == "" {
		event.Level = types.EventLevelInfo
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = s.now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO job_events (id, job_id, level, message, payload, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		event.ID, event.JobID, event.Level, event.Message, event.Payload, event.CreatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && string(pqErr.Code) == pqForeignKeyViolation {
			return errors.NewNotFound(errors.CodeJobNotFound, fmt.Sprintf("job %s not found", event.JobID))
		}
		return fmt.Errorf("failed to append event for job %s: %w", event.JobID, err)
	}
	metrics.EventsTotal.WithLabelValues(string(event.Level)).Inc()
	return nil
}

// ListEvents pages a job's event stream ascending over the composite
// (created_at, id) cursor. AfterEventID refines After for rows sharing a
// timestamp; supplying it without After is rejected.
func (s *Postgres) ListEvents(ctx context.Context, jobID string, q types.ListEventsQuery) ([]*types.JobEvent, error) {
	if q.AfterEventID != nil && q.After == nil {
		return nil, errors.NewValidation(errors.CodeInvalidQueuePayload,
			"afterEventId requires after")
	}

	query := `SELECT ` + eventColumns + ` FROM job_events WHERE job_id = $1`
	args := []any{jobID}
	switch {
	case q.After != nil && q.AfterEventID != nil:
		args = append(args, *q.After, *q.AfterEventID)
		query += ` AND (created_at > $2 OR (created_at = $2 AND id > $3))`
	case q.After != nil:
		args = append(args, *q.After)
		query += ` AND created_at > $2`
	}
	args = append(args, q.Limit)
	query += fmt.Sprintf(` ORDER BY created_at ASC, id ASC LIMIT $%d`, len(args))

	events := []*types.JobEvent{}
	if err := s.db.SelectContext(ctx, &events, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list events for job %s: %w", jobID, err)
	}
	return events, nil
}

// ListEventsForJobs fetches events across a job set for telemetry, oldest
// first, reporting whether the limit truncated the result
func (s *Postgres) ListEventsForJobs(ctx context.Context, jobIDs []string, limit int) ([]*types.JobEvent, bool, error) {
	if len(jobIDs) == 0 {
		return nil, false, nil
	}
	events := []*types.JobEvent{}
	err := s.db.SelectContext(ctx, &events,
		`SELECT `+eventColumns+` FROM job_events
		 WHERE job_id = ANY($1)
		 ORDER BY created_at ASC, id ASC
		 LIMIT $2`,
		pq.Array(jobIDs), limit+1)
	if err != nil {
		return nil, false, fmt.Errorf("failed to list events for %d jobs: %w", len(jobIDs), err)
	}
	truncated := len(events) > limit
	if truncated {
		events = events[:limit]
	}
	return events, truncated, nil
}

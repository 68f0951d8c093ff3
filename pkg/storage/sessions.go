package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/moonmind/moonmind/pkg/errors"
	"github.com/moonmind/moonmind/pkg/types"
)

const sessionColumns = `id, task_run_id, provider, status, ready_at, ended_at,
	expires_at, rw_granted_until, worker_id, worker_hostname, attach_ro,
	attach_rw, web_ro, web_rw, last_heartbeat_at, error_message, created_at,
	updated_at`

// CreateLiveSession inserts the at-most-one session row for a task run. When
// a session already exists the existing row is returned and created is false.
func (s *Postgres) CreateLiveSession(ctx context.Context, session *types.TaskRunLiveSession) (*types.TaskRunLiveSession, bool, error) {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.Status == "" {
		session.Status = types.LiveSessionStarting
	}
	now := s.now().UTC()
	session.CreatedAt = now
	session.UpdatedAt = now

	var insertedID string
	err := s.db.QueryRowxContext(ctx,
		`INSERT INTO task_run_live_sessions (id, task_run_id, provider, status,
		   ready_at, ended_at, expires_at, rw_granted_until, worker_id,
		   worker_hostname, attach_ro, attach_rw, web_ro, web_rw,
		   last_heartbeat_at, error_message, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		 ON CONFLICT (task_run_id) DO NOTHING
		 RETURNING id`,
		session.ID, session.TaskRunID, session.Provider, session.Status,
		session.ReadyAt, session.EndedAt, session.ExpiresAt, session.RWGrantedUntil,
		session.WorkerID, session.WorkerHostname, session.AttachRO, session.AttachRW,
		session.WebRO, session.WebRW, session.LastHeartbeatAt, session.ErrorMessage,
		session.CreatedAt, session.UpdatedAt).Scan(&insertedID)
	if err == nil {
		return session, true, nil
	}
	if !isNoRows(err) {
		return nil, false, fmt.Errorf("failed to create live session for task run %s: %w", session.TaskRunID, err)
	}

	// Conflict: a session already exists and rows are never deleted
	existing, err := s.GetLiveSession(ctx, session.TaskRunID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// GetLiveSession loads the session row for a task run
func (s *Postgres) GetLiveSession(ctx context.Context, taskRunID string) (*types.TaskRunLiveSession, error) {
	session := &types.TaskRunLiveSession{}
	err := s.db.GetContext(ctx, session,
		`SELECT `+sessionColumns+` FROM task_run_live_sessions WHERE task_run_id = $1`, taskRunID)
	if err != nil {
		if isNoRows(err) {
			return nil, errors.NewNotFound(errors.CodeLiveSessionNotFound,
				fmt.Sprintf("no live session for task run %s", taskRunID))
		}
		return nil, fmt.Errorf("failed to get live session for task run %s: %w", taskRunID, err)
	}
	return session, nil
}

// MutateLiveSession applies fn to the locked session row and writes it back.
// ended_at is write-once: a value set before fn runs survives any change fn
// makes to it.
func (s *Postgres) MutateLiveSession(ctx context.Context, taskRunID string, fn func(*types.TaskRunLiveSession) error) (*types.TaskRunLiveSession, error) {
	session := &types.TaskRunLiveSession{}
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, session,
			`SELECT `+sessionColumns+` FROM task_run_live_sessions WHERE task_run_id = $1 FOR UPDATE`,
			taskRunID)
		if err != nil {
			if isNoRows(err) {
				return errors.NewNotFound(errors.CodeLiveSessionNotFound,
					fmt.Sprintf("no live session for task run %s", taskRunID))
			}
			return fmt.Errorf("failed to lock live session for task run %s: %w", taskRunID, err)
		}

		endedAt := session.EndedAt
		if err := fn(session); err != nil {
			return err
		}
		if endedAt != nil {
			session.EndedAt = endedAt
		}
		session.UpdatedAt = s.now().UTC()

		_, err = tx.ExecContext(ctx,
			`UPDATE task_run_live_sessions SET
			   provider = $2, status = $3, ready_at = $4, ended_at = $5,
			   expires_at = $6, rw_granted_until = $7, worker_id = $8,
			   worker_hostname = $9, attach_ro = $10, attach_rw = $11,
			   web_ro = $12, web_rw = $13, last_heartbeat_at = $14,
			   error_message = $15, updated_at = $16
			 WHERE task_run_id = $1`,
			taskRunID, session.Provider, session.Status, session.ReadyAt,
			session.EndedAt, session.ExpiresAt, session.RWGrantedUntil,
			session.WorkerID, session.WorkerHostname, session.AttachRO,
			session.AttachRW, session.WebRO, session.WebRW,
			session.LastHeartbeatAt, session.ErrorMessage, session.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to update live session for task run %s: %w", taskRunID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// AppendTaskRunControlEvent records one operator action in the audit trail
func (s *Postgres) AppendTaskRunControlEvent(ctx context.Context, event *types.TaskRunControlEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = s.now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO task_run_control_events (id, task_run_id, action, actor_user_id, detail, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		event.ID, event.TaskRunID, event.Action, event.ActorUserID, event.Detail, event.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append control event for task run %s: %w", event.TaskRunID, err)
	}
	return nil
}

// ListTaskRunControlEvents returns the audit trail, newest first
func (s *Postgres) ListTaskRunControlEvents(ctx context.Context, taskRunID string, limit int) ([]*types.TaskRunControlEvent, error) {
	events := []*types.TaskRunControlEvent{}
	err := s.db.SelectContext(ctx, &events,
		`SELECT id, task_run_id, action, actor_user_id, detail, created_at
		 FROM task_run_control_events
		 WHERE task_run_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2`,
		taskRunID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list control events for task run %s: %w", taskRunID, err)
	}
	return events, nil
}

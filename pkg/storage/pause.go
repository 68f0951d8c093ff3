package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/moonmind/moonmind/pkg/types"
)

const pauseColumns = `id, paused, mode, reason, version, requested_by_user_id, requested_at, updated_at`

// GetPauseState reads the pause singleton. The row is seeded by migration.
func (s *Postgres) GetPauseState(ctx context.Context) (*types.SystemWorkerPauseState, error) {
	state := &types.SystemWorkerPauseState{}
	err := s.db.GetContext(ctx, state,
		`SELECT `+pauseColumns+` FROM system_worker_pause_state WHERE id = 1`)
	if err != nil {
		return nil, fmt.Errorf("failed to get pause state: %w", err)
	}
	return state, nil
}

// MutatePauseState applies fn to the locked singleton, bumps version, and
// appends exactly one control event for the transition
func (s *Postgres) MutatePauseState(ctx context.Context, action string, actorUserID *string, fn func(*types.SystemWorkerPauseState) error) (*types.SystemWorkerPauseState, error) {
	state := &types.SystemWorkerPauseState{}
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, state,
			`SELECT `+pauseColumns+` FROM system_worker_pause_state WHERE id = 1 FOR UPDATE`)
		if err != nil {
			return fmt.Errorf("failed to lock pause state: %w", err)
		}

		if err := fn(state); err != nil {
			return err
		}
		state.Version++
		state.UpdatedAt = s.now().UTC()

		_, err = tx.ExecContext(ctx,
			`UPDATE system_worker_pause_state SET
			   paused = $1, mode = $2, reason = $3, version = $4,
			   requested_by_user_id = $5, requested_at = $6, updated_at = $7
			 WHERE id = 1`,
			state.Paused, state.Mode, state.Reason, state.Version,
			state.RequestedByUserID, state.RequestedAt, state.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to update pause state: %w", err)
		}

		detail := types.JSONMap{
			"paused":  state.Paused,
			"version": state.Version,
		}
		if state.Mode != nil {
			detail["mode"] = string(*state.Mode)
		}
		if state.Reason != nil {
			detail["reason"] = *state.Reason
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO system_control_events (id, action, actor_user_id, detail, created_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			uuid.NewString(), action, actorUserID, detail, state.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to append system control event: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return state, nil
}

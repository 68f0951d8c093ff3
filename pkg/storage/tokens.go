package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/moonmind/moonmind/pkg/errors"
	"github.com/moonmind/moonmind/pkg/types"
)

const tokenColumns = `id, worker_id, token_hash, description, allowed_repositories,
	allowed_job_types, capabilities, is_active, created_at, updated_at`

// CreateWorkerToken stores a minted credential. Only the sha256 hash is
// persisted; the caller holds the raw token.
func (s *Postgres) CreateWorkerToken(ctx context.Context, token *types.WorkerToken) error {
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	now := s.now().UTC()
	token.IsActive = true
	token.CreatedAt = now
	token.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO worker_tokens (id, worker_id, token_hash, description,
		   allowed_repositories, allowed_job_types, capabilities, is_active,
		   created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		token.ID, token.WorkerID, token.TokenHash, token.Description,
		token.AllowedRepositories, token.AllowedJobTypes, token.Capabilities,
		token.IsActive, token.CreatedAt, token.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create worker token: %w", err)
	}
	return nil
}

// GetWorkerTokenByHash resolves a presented token by its sha256 hash.
// Revoked tokens are still returned; the caller decides how to treat them.
func (s *Postgres) GetWorkerTokenByHash(ctx context.Context, tokenHash string) (*types.WorkerToken, error) {
	token := &types.WorkerToken{}
	err := s.db.GetContext(ctx, token,
		`SELECT `+tokenColumns+` FROM worker_tokens WHERE token_hash = $1`, tokenHash)
	if err != nil {
		if isNoRows(err) {
			return nil, errors.NewNotFound(errors.CodeWorkerTokenNotFound, "worker token not found")
		}
		return nil, fmt.Errorf("failed to look up worker token: %w", err)
	}
	return token, nil
}

// ListWorkerTokens returns all tokens, newest first
func (s *Postgres) ListWorkerTokens(ctx context.Context) ([]*types.WorkerToken, error) {
	tokens := []*types.WorkerToken{}
	err := s.db.SelectContext(ctx, &tokens,
		`SELECT `+tokenColumns+` FROM worker_tokens ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list worker tokens: %w", err)
	}
	return tokens, nil
}

// RevokeWorkerToken deactivates a token. Revocation is permanent.
func (s *Postgres) RevokeWorkerToken(ctx context.Context, id string) (*types.WorkerToken, error) {
	token := &types.WorkerToken{}
	err := s.db.GetContext(ctx, token,
		`UPDATE worker_tokens SET is_active = FALSE, updated_at = $2
		 WHERE id = $1
		 RETURNING `+tokenColumns,
		id, s.now().UTC())
	if err != nil {
		if isNoRows(err) {
			return nil, errors.NewNotFound(errors.CodeWorkerTokenNotFound,
				fmt.Sprintf("worker token %s not found", id))
		}
		return nil, fmt.Errorf("failed to revoke worker token %s: %w", id, err)
	}
	return token, nil
}

package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/moonmind/moonmind/pkg/errors"
	"github.com/moonmind/moonmind/pkg/types"
)

const artifactColumns = `id, job_id, name, content_type, size_bytes, digest, storage_path, created_at`

// CreateArtifact records an uploaded file. Re-uploading a name the job
// already has replaces that row (the id is kept stable). Events ride in the
// same transaction.
func (s *Postgres) CreateArtifact(ctx context.Context, artifact *types.JobArtifact, events ...*types.JobEvent) (*types.JobArtifact, error) {
	if artifact.ID == "" {
		artifact.ID = uuid.NewString()
	}
	if artifact.ContentType == "" {
		artifact.ContentType = "application/octet-stream"
	}
	artifact.CreatedAt = s.now().UTC()

	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		row := tx.QueryRowxContext(ctx,
			`INSERT INTO job_artifacts (id, job_id, name, content_type, size_bytes, digest, storage_path, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 ON CONFLICT (job_id, name) DO UPDATE SET
			   content_type = EXCLUDED.content_type,
			   size_bytes   = EXCLUDED.size_bytes,
			   digest       = EXCLUDED.digest,
			   storage_path = EXCLUDED.storage_path,
			   created_at   = EXCLUDED.created_at
			 RETURNING id`,
			artifact.ID, artifact.JobID, artifact.Name, artifact.ContentType,
			artifact.SizeBytes, artifact.Digest, artifact.StoragePath, artifact.CreatedAt)
		if err := row.Scan(&artifact.ID); err != nil {
			return fmt.Errorf("failed to record artifact %s for job %s: %w", artifact.Name, artifact.JobID, err)
		}
		for _, event := range events {
			event.JobID = artifact.JobID
			if err := s.insertEventTx(ctx, tx, event); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return artifact, nil
}

// GetArtifact loads one artifact and verifies it belongs to the given job
func (s *Postgres) GetArtifact(ctx context.Context, jobID, artifactID string) (*types.JobArtifact, error) {
	artifact := &types.JobArtifact{}
	err := s.db.GetContext(ctx, artifact,
		`SELECT `+artifactColumns+` FROM job_artifacts WHERE id = $1`, artifactID)
	if err != nil {
		if isNoRows(err) {
			return nil, errors.NewNotFound(errors.CodeArtifactNotFound,
				fmt.Sprintf("artifact %s not found", artifactID))
		}
		return nil, fmt.Errorf("failed to get artifact %s: %w", artifactID, err)
	}
	if artifact.JobID != jobID {
		return nil, errors.NewNotFound(errors.CodeArtifactJobMismatch,
			fmt.Sprintf("artifact %s does not belong to job %s", artifactID, jobID))
	}
	return artifact, nil
}

// ListArtifacts returns a job's artifacts, newest first
func (s *Postgres) ListArtifacts(ctx context.Context, jobID string, limit int) ([]*types.JobArtifact, error) {
	artifacts := []*types.JobArtifact{}
	err := s.db.SelectContext(ctx, &artifacts,
		`SELECT `+artifactColumns+` FROM job_artifacts
		 WHERE job_id = $1
		 ORDER BY created_at DESC, name ASC
		 LIMIT $2`,
		jobID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts for job %s: %w", jobID, err)
	}
	return artifacts, nil
}

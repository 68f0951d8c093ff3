package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/moonmind/moonmind/pkg/errors"
	"github.com/moonmind/moonmind/pkg/types"
)

const manifestColumns = `id, name, content, content_hash, version, last_run_job_id,
	last_run_status, last_run_started_at, last_run_finished_at, state_json,
	created_at, updated_at`

// UpsertManifestRecord stores manifest content under a registry name. The
// version bumps only when the content hash actually changes; re-storing
// identical content is a no-op.
func (s *Postgres) UpsertManifestRecord(ctx context.Context, name, content, contentHash string) (*types.ManifestRegistryRecord, error) {
	record := &types.ManifestRegistryRecord{}
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, record,
			`SELECT `+manifestColumns+` FROM manifest_registry_records WHERE name = $1 FOR UPDATE`, name)
		if err != nil && !isNoRows(err) {
			return fmt.Errorf("failed to lock manifest record %s: %w", name, err)
		}
		now := s.now().UTC()

		if isNoRows(err) {
			record.ID = uuid.NewString()
			record.Name = name
			record.Content = content
			record.ContentHash = contentHash
			record.Version = 1
			record.CreatedAt = now
			record.UpdatedAt = now
			_, err := tx.ExecContext(ctx,
				`INSERT INTO manifest_registry_records (id, name, content, content_hash, version, created_at, updated_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				record.ID, record.Name, record.Content, record.ContentHash,
				record.Version, record.CreatedAt, record.UpdatedAt)
			if err != nil {
				return fmt.Errorf("failed to insert manifest record %s: %w", name, err)
			}
			return nil
		}

		if record.ContentHash == contentHash {
			return nil
		}
		record.Content = content
		record.ContentHash = contentHash
		record.Version++
		record.UpdatedAt = now
		_, err = tx.ExecContext(ctx,
			`UPDATE manifest_registry_records SET content = $2, content_hash = $3, version = $4, updated_at = $5
			 WHERE name = $1`,
			name, record.Content, record.ContentHash, record.Version, record.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to update manifest record %s: %w", name, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// GetManifestRecord fetches one registry entry by name
func (s *Postgres) GetManifestRecord(ctx context.Context, name string) (*types.ManifestRegistryRecord, error) {
	record := &types.ManifestRegistryRecord{}
	err := s.db.GetContext(ctx, record,
		`SELECT `+manifestColumns+` FROM manifest_registry_records WHERE name = $1`, name)
	if err != nil {
		if isNoRows(err) {
			return nil, errors.NewNotFound(errors.CodeManifestNotFound,
				fmt.Sprintf("manifest %s not found", name))
		}
		return nil, fmt.Errorf("failed to get manifest record %s: %w", name, err)
	}
	return record, nil
}

// ListManifestRecords returns all registry entries ordered by name
func (s *Postgres) ListManifestRecords(ctx context.Context) ([]*types.ManifestRegistryRecord, error) {
	records := []*types.ManifestRegistryRecord{}
	err := s.db.SelectContext(ctx, &records,
		`SELECT `+manifestColumns+` FROM manifest_registry_records ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list manifest records: %w", err)
	}
	return records, nil
}

// UpdateManifestLastRun records the outcome of the latest run for a named
// manifest. State, when present, replaces the stored incremental state.
func (s *Postgres) UpdateManifestLastRun(ctx context.Context, name string, run ManifestRunState) error {
	now := s.now().UTC()
	var res sql.Result
	var err error
	if run.State != nil {
		res, err = s.db.ExecContext(ctx,
			`UPDATE manifest_registry_records SET
			   last_run_job_id = $2, last_run_status = $3,
			   last_run_started_at = $4, last_run_finished_at = $5,
			   state_json = $6, updated_at = $7
			 WHERE name = $1`,
			name, run.JobID, run.Status, run.StartedAt, run.FinishedAt, run.State, now)
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE manifest_registry_records SET
			   last_run_job_id = $2, last_run_status = $3,
			   last_run_started_at = $4, last_run_finished_at = $5, updated_at = $6
			 WHERE name = $1`,
			name, run.JobID, run.Status, run.StartedAt, run.FinishedAt, now)
	}
	if err != nil {
		return fmt.Errorf("failed to update last run for manifest %s: %w", name, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check last run update for manifest %s: %w", name, err)
	}
	if affected == 0 {
		return errors.NewNotFound(errors.CodeManifestNotFound,
			fmt.Sprintf("manifest %s not found", name))
	}
	return nil
}

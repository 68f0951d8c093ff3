package storage

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moonmind/moonmind/pkg/errors"
	"github.com/moonmind/moonmind/pkg/types"
)

var artifactColumnNames = []string{
	"id", "job_id", "name", "content_type", "size_bytes", "digest",
	"storage_path", "created_at",
}

func TestCreateArtifactKeepsExistingIDOnReplace(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	// Conflict on (job_id, name): RETURNING yields the original row id
	mock.ExpectQuery(`ON CONFLICT \(job_id, name\) DO UPDATE SET`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("a-original"))
	mock.ExpectExec(`INSERT INTO job_events`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	digest := "sha256:abc"
	artifact, err := store.CreateArtifact(context.Background(), &types.JobArtifact{
		JobID:       "j1",
		Name:        "report.html",
		SizeBytes:   2048,
		Digest:      &digest,
		StoragePath: "/var/lib/moonmind/artifacts/j1/report.html",
	}, &types.JobEvent{Message: EventArtifactUploaded})
	require.NoError(t, err)
	assert.Equal(t, "a-original", artifact.ID)
	assert.Equal(t, "application/octet-stream", artifact.ContentType)
	assert.Equal(t, testNow, artifact.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetArtifactJobMismatch(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`FROM job_artifacts WHERE id = \$1`).
		WithArgs("a1").
		WillReturnRows(sqlmock.NewRows(artifactColumnNames).
			AddRow("a1", "other-job", "report.html", "text/html", 100, nil,
				"/var/lib/moonmind/artifacts/other-job/report.html", testNow))

	_, err := store.GetArtifact(context.Background(), "j1", "a1")
	assert.True(t, errors.IsNotFound(err))
	assert.Equal(t, errors.CodeArtifactJobMismatch, errors.CodeOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetArtifactNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`FROM job_artifacts WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows(artifactColumnNames))

	_, err := store.GetArtifact(context.Background(), "j1", "missing")
	assert.True(t, errors.IsNotFound(err))
	assert.Equal(t, errors.CodeArtifactNotFound, errors.CodeOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListArtifacts(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`FROM job_artifacts`).
		WithArgs("j1", 100).
		WillReturnRows(sqlmock.NewRows(artifactColumnNames).
			AddRow("a1", "j1", "report.html", "text/html", 100, nil,
				"/var/lib/moonmind/artifacts/j1/report.html", testNow))

	artifacts, err := store.ListArtifacts(context.Background(), "j1", 100)
	require.NoError(t, err)
	require.Len(t, artifacts, 1)
	assert.Equal(t, "report.html", artifacts[0].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

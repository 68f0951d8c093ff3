package storage

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moonmind/moonmind/pkg/types"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newMockStore(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := NewPostgresFromDB(sqlx.NewDb(db, "sqlmock"))
	store.now = func() time.Time { return testNow }
	return store, mock
}

var jobColumnNames = []string{
	"id", "type", "status", "priority", "payload", "created_by_user_id",
	"requested_by_user_id", "affinity_key", "claimed_by", "lease_expires_at",
	"next_attempt_at", "attempt", "max_attempts", "result_summary",
	"error_message", "cancel_requested_at", "cancel_requested_by_user_id",
	"cancel_reason", "artifacts_path", "started_at", "finished_at",
	"created_at", "updated_at",
}

func jobRows(t *testing.T, jobs ...*types.AgentJob) *sqlmock.Rows {
	t.Helper()
	rows := sqlmock.NewRows(jobColumnNames)
	for _, j := range jobs {
		payload := []byte("{}")
		if j.Payload != nil {
			var err error
			payload, err = json.Marshal(j.Payload)
			require.NoError(t, err)
		}
		rows.AddRow(j.ID, j.Type, j.Status, j.Priority, payload,
			j.CreatedByUserID, j.RequestedByUserID, j.AffinityKey,
			j.ClaimedBy, j.LeaseExpiresAt, j.NextAttemptAt,
			j.Attempt, j.MaxAttempts, j.ResultSummary, j.ErrorMessage,
			j.CancelRequestedAt, j.CancelRequestedByUserID, j.CancelReason,
			j.ArtifactsPath, j.StartedAt, j.FinishedAt, j.CreatedAt, j.UpdatedAt)
	}
	return rows
}

func queuedJob(id string, priority int, payload types.JSONMap) *types.AgentJob {
	return &types.AgentJob{
		ID:          id,
		Type:        types.JobTypeTask,
		Status:      types.JobStatusQueued,
		Priority:    priority,
		Payload:     payload,
		Attempt:     1,
		MaxAttempts: 3,
		CreatedAt:   testNow.Add(-time.Hour),
		UpdatedAt:   testNow.Add(-time.Hour),
	}
}

func runningJob(id, workerID string) *types.AgentJob {
	lease := testNow.Add(5 * time.Minute)
	started := testNow.Add(-10 * time.Minute)
	return &types.AgentJob{
		ID:             id,
		Type:           types.JobTypeTask,
		Status:         types.JobStatusRunning,
		Payload:        types.JSONMap{"requiredCapabilities": []any{"manifest"}},
		ClaimedBy:      &workerID,
		LeaseExpiresAt: &lease,
		Attempt:        1,
		MaxAttempts:    3,
		StartedAt:      &started,
		CreatedAt:      testNow.Add(-time.Hour),
		UpdatedAt:      testNow.Add(-10 * time.Minute),
	}
}

func TestCreateJobDefaults(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO agent_jobs`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO job_events`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	job := &types.AgentJob{
		Type:        types.JobTypeTask,
		Payload:     types.JSONMap{"requiredCapabilities": []string{"manifest"}},
		MaxAttempts: 3,
	}
	event := &types.JobEvent{Message: EventJobQueued}
	err := store.CreateJob(context.Background(), job, event)
	require.NoError(t, err)

	assert.NotEmpty(t, job.ID)
	assert.Equal(t, types.JobStatusQueued, job.Status)
	assert.Equal(t, 1, job.Attempt)
	assert.Equal(t, testNow, job.CreatedAt)
	assert.Equal(t, job.ID, event.JobID)
	assert.Equal(t, types.EventLevelInfo, event.Level)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTxRollsBackOnError(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := store.withTx(context.Background(), func(tx *sqlx.Tx) error {
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountJobsByStatus(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT type, status, COUNT\(\*\) FROM agent_jobs GROUP BY type, status`).
		WillReturnRows(sqlmock.NewRows([]string{"type", "status", "count"}).
			AddRow("task", "queued", 4).
			AddRow("task", "running", 2).
			AddRow("manifest", "succeeded", 7))

	counts, err := store.CountJobsByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, counts["task"]["queued"])
	assert.Equal(t, 2, counts["task"]["running"])
	assert.Equal(t, 7, counts["manifest"]["succeeded"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

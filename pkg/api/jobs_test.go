package api

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moonmind/moonmind/pkg/errors"
	"github.com/moonmind/moonmind/pkg/security"
	"github.com/moonmind/moonmind/pkg/storage"
	"github.com/moonmind/moonmind/pkg/types"
)

func validTaskPayload() types.JSONMap {
	return types.JSONMap{
		"repository":    "moonmind/demo",
		"targetRuntime": "codex",
		"task":          map[string]any{"instructions": "fix the flaky integration test"},
	}
}

func TestCreateJob(t *testing.T) {
	var created *types.AgentJob
	store := &fakeStore{
		createJob: func(_ context.Context, job *types.AgentJob, _ ...*types.JobEvent) error {
			job.ID = "job-9"
			created = job
			return nil
		},
	}
	env := newTestEnv(t, store)

	rec := env.doJSON(t, http.MethodPost, "/queue/jobs", map[string]any{
		"type":    "task",
		"payload": validTaskPayload(),
	}, map[string]string{HeaderUserID: "user-7"})

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"id":"job-9"`)
	require.NotNil(t, created.CreatedByUserID)
	assert.Equal(t, "user-7", *created.CreatedByUserID)
}

func TestCreateJobMalformedBody(t *testing.T) {
	env := newTestEnv(t, &fakeStore{})

	rec := env.do(http.MethodPost, "/queue/jobs", strings.NewReader("{nope"), nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, errors.CodeInvalidQueuePayload, envelopeCode(t, rec))
}

func TestCreateJobContractViolation(t *testing.T) {
	env := newTestEnv(t, &fakeStore{})

	rec := env.doJSON(t, http.MethodPost, "/queue/jobs", map[string]any{
		"type":    "task",
		"payload": types.JSONMap{"repository": "moonmind/demo"},
	}, nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestListJobsUnknownStatus(t *testing.T) {
	env := newTestEnv(t, &fakeStore{})

	rec := env.do(http.MethodGet, "/queue/jobs?status=sleeping", nil, nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, errors.CodeInvalidQueuePayload, envelopeCode(t, rec))
}

func TestListJobs(t *testing.T) {
	var got storage.JobFilter
	store := &fakeStore{
		listJobs: func(_ context.Context, filter storage.JobFilter) ([]*types.AgentJob, error) {
			got = filter
			return []*types.AgentJob{{ID: "job-1"}, {ID: "job-2"}}, nil
		},
	}
	env := newTestEnv(t, store)

	rec := env.do(http.MethodGet, "/queue/jobs?status=queued&type=task&limit=10", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"items"`)
	assert.Contains(t, rec.Body.String(), "job-2")

	require.NotNil(t, got.Status)
	assert.Equal(t, types.JobStatusQueued, *got.Status)
	require.NotNil(t, got.Type)
	assert.Equal(t, types.JobTypeTask, *got.Type)
	assert.Equal(t, 10, got.Limit)
}

func TestListJobsEmptyIsArray(t *testing.T) {
	store := &fakeStore{
		listJobs: func(context.Context, storage.JobFilter) ([]*types.AgentJob, error) {
			return nil, nil
		},
	}
	env := newTestEnv(t, store)

	rec := env.do(http.MethodGet, "/queue/jobs", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"items":[]}`, rec.Body.String())
}

func TestGetJobNotFound(t *testing.T) {
	store := &fakeStore{
		getJob: func(_ context.Context, id string) (*types.AgentJob, error) {
			return nil, errors.NewNotFound(errors.CodeJobNotFound, "job "+id+" not found")
		},
	}
	env := newTestEnv(t, store)

	rec := env.do(http.MethodGet, "/queue/jobs/nope", nil, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, errors.CodeJobNotFound, envelopeCode(t, rec))
}

func TestClaimRequiresToken(t *testing.T) {
	env := newTestEnv(t, (&fakeStore{}).withActiveToken("worker-1"))

	body := map[string]any{"workerId": "worker-1", "leaseSeconds": 60}

	rec := env.doJSON(t, http.MethodPost, "/queue/jobs/claim", body, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, errors.CodeWorkerAuthFailed, envelopeCode(t, rec))

	rec = env.doJSON(t, http.MethodPost, "/queue/jobs/claim", body,
		map[string]string{HeaderWorkerToken: "mmwt_not_hex"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.doJSON(t, http.MethodPost, "/queue/jobs/claim", body,
		map[string]string{HeaderWorkerToken: security.WorkerTokenPrefix + strings.Repeat("ff00", 12)})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestClaimRevokedToken(t *testing.T) {
	hash := security.HashWorkerToken(testWorkerToken)
	store := &fakeStore{
		getWorkerTokenByHash: func(context.Context, string) (*types.WorkerToken, error) {
			return &types.WorkerToken{ID: "tok-1", WorkerID: "worker-1", TokenHash: hash, IsActive: false}, nil
		},
	}
	env := newTestEnv(t, store)

	rec := env.doJSON(t, http.MethodPost, "/queue/jobs/claim",
		map[string]any{"workerId": "worker-1", "leaseSeconds": 60}, workerHeaders())
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, errors.CodeWorkerAuthFailed, envelopeCode(t, rec))
}

func TestClaimWorkerMismatch(t *testing.T) {
	env := newTestEnv(t, (&fakeStore{}).withActiveToken("worker-1"))

	rec := env.doJSON(t, http.MethodPost, "/queue/jobs/claim",
		map[string]any{"workerId": "worker-2", "leaseSeconds": 60}, workerHeaders())
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, errors.CodeWorkerNotAuthorized, envelopeCode(t, rec))
}

func TestClaimReturnsJobAndSystem(t *testing.T) {
	store := (&fakeStore{
		getPauseState: func(context.Context) (*types.SystemWorkerPauseState, error) {
			return unpaused(), nil
		},
		claimJob: func(_ context.Context, q storage.ClaimQuery) (*types.AgentJob, error) {
			claimed := q.WorkerID
			return &types.AgentJob{ID: "job-3", Status: types.JobStatusRunning, ClaimedBy: &claimed}, nil
		},
	}).withActiveToken("worker-1")
	env := newTestEnv(t, store)

	rec := env.doJSON(t, http.MethodPost, "/queue/jobs/claim",
		map[string]any{"workerId": "worker-1", "leaseSeconds": 60}, workerHeaders())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"job-3"`)
	assert.Contains(t, rec.Body.String(), `"workerPause"`)
}

func TestClaimWhilePaused(t *testing.T) {
	mode := types.PauseModeDrain
	reason := "maintenance window"
	store := (&fakeStore{
		getPauseState: func(context.Context) (*types.SystemWorkerPauseState, error) {
			now := time.Now().UTC()
			return &types.SystemWorkerPauseState{
				ID: 1, Paused: true, Mode: &mode, Reason: &reason, Version: 9, RequestedAt: &now,
			}, nil
		},
	}).withActiveToken("worker-1")
	env := newTestEnv(t, store)

	rec := env.doJSON(t, http.MethodPost, "/queue/jobs/claim",
		map[string]any{"workerId": "worker-1", "leaseSeconds": 60}, workerHeaders())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"job":null`)
	assert.Contains(t, rec.Body.String(), `"paused":true`)
}

func TestHeartbeatConflictPassthrough(t *testing.T) {
	store := (&fakeStore{
		heartbeatJob: func(_ context.Context, jobID, workerID string, _ time.Duration) (*types.AgentJob, error) {
			return nil, errors.NewState(errors.CodeJobStateConflict, "job "+jobID+" is not running")
		},
	}).withActiveToken("worker-1")
	env := newTestEnv(t, store)

	rec := env.doJSON(t, http.MethodPost, "/queue/jobs/job-3/heartbeat",
		map[string]any{"workerId": "worker-1"}, workerHeaders())
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, errors.CodeJobStateConflict, envelopeCode(t, rec))
}

func TestFailRequiresErrorMessage(t *testing.T) {
	env := newTestEnv(t, (&fakeStore{}).withActiveToken("worker-1"))

	rec := env.doJSON(t, http.MethodPost, "/queue/jobs/job-3/fail",
		map[string]any{"workerId": "worker-1", "errorMessage": "   "}, workerHeaders())
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, errors.CodeInvalidQueuePayload, envelopeCode(t, rec))
}

func TestCancelJob(t *testing.T) {
	var gotActor *string
	var gotReason string
	store := &fakeStore{
		requestCancel: func(_ context.Context, jobID string, actorUserID *string, reason string) (*storage.CancelOutcome, error) {
			gotActor = actorUserID
			gotReason = reason
			now := time.Now().UTC()
			return &storage.CancelOutcome{Job: &types.AgentJob{
				ID: jobID, Status: types.JobStatusRunning, CancelRequestedAt: &now,
			}}, nil
		},
	}
	env := newTestEnv(t, store)

	rec := env.doJSON(t, http.MethodPost, "/queue/jobs/job-3/cancel",
		map[string]any{"reason": "superseded"}, map[string]string{HeaderUserID: "user-7"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, gotActor)
	assert.Equal(t, "user-7", *gotActor)
	assert.Equal(t, "superseded", gotReason)
}

func TestCancelJobEmptyBody(t *testing.T) {
	store := &fakeStore{
		requestCancel: func(_ context.Context, jobID string, _ *string, _ string) (*storage.CancelOutcome, error) {
			return &storage.CancelOutcome{Job: &types.AgentJob{ID: jobID, Status: types.JobStatusCancelled}}, nil
		},
	}
	env := newTestEnv(t, store)

	rec := env.do(http.MethodPost, "/queue/jobs/job-3/cancel", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"cancelled"`)
}

package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moonmind/moonmind/pkg/errors"
	"github.com/moonmind/moonmind/pkg/storage"
	"github.com/moonmind/moonmind/pkg/types"
)

func TestRetryBackoffDoublesUpToCap(t *testing.T) {
	cfg := testConfig(t)
	cfg.RetryBackoffBaseSeconds = 30
	cfg.RetryBackoffMaxSeconds = 3600
	svc := newTestService(t, &fakeStore{}, cfg)

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 30 * time.Second},
		{2, 60 * time.Second},
		{3, 120 * time.Second},
		{7, 1920 * time.Second},
		{8, 3600 * time.Second}, // 30s * 2^7 = 3840s, capped
		{20, 3600 * time.Second},
		{500, 3600 * time.Second}, // shift guard, no overflow
		{0, 30 * time.Second},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, svc.retryBackoff(tc.attempt), "attempt %d", tc.attempt)
	}
}

func TestHeartbeatDefaultsLease(t *testing.T) {
	var gotLease time.Duration
	store := &fakeStore{
		heartbeatJob: func(_ context.Context, jobID, workerID string, lease time.Duration) (*types.AgentJob, error) {
			gotLease = lease
			return &types.AgentJob{ID: jobID, Status: types.JobStatusRunning}, nil
		},
	}
	svc := newTestService(t, store, testConfig(t))

	_, err := svc.Heartbeat(context.Background(), "job-1", &types.HeartbeatRequest{WorkerID: "worker-a"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 60*time.Second, gotLease)
}

func TestHeartbeatRejectsNegativeLease(t *testing.T) {
	svc := newTestService(t, &fakeStore{}, testConfig(t))

	_, err := svc.Heartbeat(context.Background(), "job-1", &types.HeartbeatRequest{
		WorkerID:     "worker-a",
		LeaseSeconds: -5,
	}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}

func TestHeartbeatRejectsWorkerOutsidePolicy(t *testing.T) {
	svc := newTestService(t, &fakeStore{}, testConfig(t))

	policy := &types.WorkerPolicy{WorkerID: "worker-a"}
	_, err := svc.Heartbeat(context.Background(), "job-1", &types.HeartbeatRequest{
		WorkerID: "worker-b",
	}, policy)
	require.Error(t, err)
	assert.True(t, errors.IsAuthorization(err))
}

func TestCompletePassesSummaryThrough(t *testing.T) {
	summary := "merged as PR #42"
	var gotSummary *string
	store := &fakeStore{
		completeJob: func(_ context.Context, jobID, workerID string, resultSummary *string) (*types.AgentJob, error) {
			gotSummary = resultSummary
			return &types.AgentJob{ID: jobID, Status: types.JobStatusSucceeded}, nil
		},
	}
	svc := newTestService(t, store, testConfig(t))

	job, err := svc.Complete(context.Background(), "job-1", &types.CompleteRequest{
		WorkerID:      "worker-a",
		ResultSummary: &summary,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusSucceeded, job.Status)
	require.NotNil(t, gotSummary)
	assert.Equal(t, summary, *gotSummary)
}

func TestFailRequiresErrorMessage(t *testing.T) {
	svc := newTestService(t, &fakeStore{}, testConfig(t))

	_, err := svc.Fail(context.Background(), "job-1", &types.FailRequest{
		WorkerID:     "worker-a",
		ErrorMessage: "   ",
	}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}

func TestFailDefaultsRetryable(t *testing.T) {
	var gotRetryable bool
	store := &fakeStore{
		failJob: func(_ context.Context, jobID, workerID, errorMessage string, retryable bool, backoff func(int) time.Duration) (*types.AgentJob, error) {
			gotRetryable = retryable
			// Backoff reflects the attempt the store read under lock.
			assert.Equal(t, 60*time.Second, backoff(2))
			return &types.AgentJob{ID: jobID, Status: types.JobStatusQueued, Attempt: 3}, nil
		},
	}
	cfg := testConfig(t)
	cfg.RetryBackoffBaseSeconds = 30
	svc := newTestService(t, store, cfg)

	_, err := svc.Fail(context.Background(), "job-1", &types.FailRequest{
		WorkerID:     "worker-a",
		ErrorMessage: "execute stage crashed",
	}, nil)
	require.NoError(t, err)
	assert.True(t, gotRetryable)
}

func TestFailHonorsExplicitNonRetryable(t *testing.T) {
	var gotRetryable bool
	store := &fakeStore{
		failJob: func(_ context.Context, jobID, workerID, errorMessage string, retryable bool, _ func(int) time.Duration) (*types.AgentJob, error) {
			gotRetryable = retryable
			return &types.AgentJob{ID: jobID, Status: types.JobStatusFailed, Attempt: 1}, nil
		},
	}
	svc := newTestService(t, store, testConfig(t))

	no := false
	job, err := svc.Fail(context.Background(), "job-1", &types.FailRequest{
		WorkerID:     "worker-a",
		ErrorMessage: "bad credentials",
		Retryable:    &no,
	}, nil)
	require.NoError(t, err)
	assert.False(t, gotRetryable)
	assert.Equal(t, types.JobStatusFailed, job.Status)
}

func TestRequestCancelTrimsReason(t *testing.T) {
	var gotReason string
	store := &fakeStore{
		requestCancel: func(_ context.Context, jobID string, actorUserID *string, reason string) (*storage.CancelOutcome, error) {
			gotReason = reason
			return &storage.CancelOutcome{
				Job: &types.AgentJob{ID: jobID, Status: types.JobStatusCancelled},
			}, nil
		},
	}
	svc := newTestService(t, store, testConfig(t))

	actor := "user-1"
	job, err := svc.RequestCancel(context.Background(), "job-1", &actor, &types.CancelRequest{
		Reason: "  no longer needed  ",
	})
	require.NoError(t, err)
	assert.Equal(t, "no longer needed", gotReason)
	assert.Equal(t, types.JobStatusCancelled, job.Status)
}

func TestAckCancelChecksPolicyWorker(t *testing.T) {
	svc := newTestService(t, &fakeStore{}, testConfig(t))

	policy := &types.WorkerPolicy{WorkerID: "worker-a"}
	_, err := svc.AckCancel(context.Background(), "job-1", &types.AckCancelRequest{
		WorkerID: "worker-b",
	}, policy)
	require.Error(t, err)
	assert.True(t, errors.IsAuthorization(err))
}

func TestAckCancelReturnsCancelledJob(t *testing.T) {
	store := &fakeStore{
		ackCancel: func(_ context.Context, jobID, workerID string) (*storage.CancelOutcome, error) {
			return &storage.CancelOutcome{
				Job: &types.AgentJob{ID: jobID, Status: types.JobStatusCancelled},
			}, nil
		},
	}
	svc := newTestService(t, store, testConfig(t))

	job, err := svc.AckCancel(context.Background(), "job-1", &types.AckCancelRequest{WorkerID: "worker-a"}, nil)
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusCancelled, job.Status)
}

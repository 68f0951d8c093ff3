package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moonmind/moonmind/pkg/errors"
	"github.com/moonmind/moonmind/pkg/types"
)

func ownedJob(id, creator string, worker *string) *types.AgentJob {
	return &types.AgentJob{
		ID:              id,
		Type:            types.JobTypeTask,
		Status:          types.JobStatusRunning,
		CreatedByUserID: &creator,
		ClaimedBy:       worker,
	}
}

// sessionStore holds one session row and applies mutations like the real
// store, so state machine tests exercise real transitions.
type sessionStore struct {
	*fakeStore
	session *types.TaskRunLiveSession
}

func newSessionStore(job *types.AgentJob) *sessionStore {
	ss := &sessionStore{}
	ss.fakeStore = &fakeStore{
		getJob: func(_ context.Context, id string) (*types.AgentJob, error) {
			return job, nil
		},
		appendEvent: func(context.Context, *types.JobEvent) error { return nil },
		appendControlEvent: func(context.Context, *types.TaskRunControlEvent) error {
			return nil
		},
		createLiveSession: func(_ context.Context, session *types.TaskRunLiveSession) (*types.TaskRunLiveSession, bool, error) {
			if ss.session != nil {
				copied := *ss.session
				return &copied, false, nil
			}
			session.ID = "ls-1"
			session.CreatedAt = time.Now().UTC()
			ss.session = session
			copied := *session
			return &copied, true, nil
		},
		getLiveSession: func(_ context.Context, taskRunID string) (*types.TaskRunLiveSession, error) {
			if ss.session == nil {
				return nil, errors.NewNotFound(errors.CodeLiveSessionNotFound,
					"no live session for task run "+taskRunID)
			}
			copied := *ss.session
			return &copied, nil
		},
		mutateLiveSession: func(_ context.Context, taskRunID string, fn func(*types.TaskRunLiveSession) error) (*types.TaskRunLiveSession, error) {
			if ss.session == nil {
				return nil, errors.NewNotFound(errors.CodeLiveSessionNotFound,
					"no live session for task run "+taskRunID)
			}
			if err := fn(ss.session); err != nil {
				return nil, err
			}
			ss.session.UpdatedAt = time.Now().UTC()
			copied := *ss.session
			return &copied, nil
		},
	}
	return ss
}

func TestCreateLiveSessionRequiresRunOwner(t *testing.T) {
	job := ownedJob("job-1", "user-1", nil)
	store := newSessionStore(job)
	svc := newTestService(t, store, testConfig(t))

	_, err := svc.CreateLiveSession(context.Background(), "job-1", "user-2")
	require.Error(t, err)
	assert.True(t, errors.IsJobAuthorization(err))

	_, err = svc.CreateLiveSession(context.Background(), "job-1", "")
	require.Error(t, err)
	assert.True(t, errors.IsJobAuthorization(err))
}

func TestCreateLiveSessionIsIdempotentWhileStarting(t *testing.T) {
	job := ownedJob("job-1", "user-1", nil)
	store := newSessionStore(job)
	svc := newTestService(t, store, testConfig(t))

	first, err := svc.CreateLiveSession(context.Background(), "job-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, types.LiveSessionStarting, first.Status)
	assert.Equal(t, "tmate", first.Provider)
	assert.NotNil(t, first.ExpiresAt)

	second, err := svc.CreateLiveSession(context.Background(), "job-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestCreateLiveSessionRestartsDisabledRow(t *testing.T) {
	job := ownedJob("job-1", "user-1", nil)
	store := newSessionStore(job)
	store.session = &types.TaskRunLiveSession{
		ID:        "ls-1",
		TaskRunID: "job-1",
		Provider:  "tmate",
		Status:    types.LiveSessionDisabled,
	}
	svc := newTestService(t, store, testConfig(t))

	session, err := svc.CreateLiveSession(context.Background(), "job-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, types.LiveSessionStarting, session.Status)
}

func TestCreateLiveSessionRejectsEndedRun(t *testing.T) {
	job := ownedJob("job-1", "user-1", nil)
	store := newSessionStore(job)
	endedAt := time.Now().UTC()
	store.session = &types.TaskRunLiveSession{
		ID:        "ls-1",
		TaskRunID: "job-1",
		Status:    types.LiveSessionEnded,
		EndedAt:   &endedAt,
	}
	svc := newTestService(t, store, testConfig(t))

	_, err := svc.CreateLiveSession(context.Background(), "job-1", "user-1")
	require.Error(t, err)
	assert.True(t, errors.IsState(err))
	assert.Equal(t, errors.CodeInvalidState, errors.CodeOf(err))
}

func TestReportLiveSessionCreatesRowAndSetsReady(t *testing.T) {
	worker := "worker-a"
	job := ownedJob("job-1", "user-1", &worker)
	store := newSessionStore(job)
	svc := newTestService(t, store, testConfig(t))

	ro := "ssh ro@tmate"
	rw := "ssh rw@tmate"
	session, err := svc.ReportLiveSession(context.Background(), "job-1", &types.LiveSessionReportRequest{
		WorkerID: worker,
		Status:   types.LiveSessionReady,
		AttachRO: &ro,
		AttachRW: &rw,
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, types.LiveSessionReady, session.Status)
	assert.NotNil(t, session.ReadyAt)
	assert.NotNil(t, session.LastHeartbeatAt)
	require.NotNil(t, session.AttachRO)
	assert.Equal(t, ro, *session.AttachRO)
	require.NotNil(t, session.WorkerID)
	assert.Equal(t, worker, *session.WorkerID)
}

func TestReportLiveSessionRejectsForeignWorker(t *testing.T) {
	owner := "worker-a"
	job := ownedJob("job-1", "user-1", &owner)
	store := newSessionStore(job)
	svc := newTestService(t, store, testConfig(t))

	_, err := svc.ReportLiveSession(context.Background(), "job-1", &types.LiveSessionReportRequest{
		WorkerID: "worker-b",
		Status:   types.LiveSessionReady,
	}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsOwnership(err))
}

func TestReportLiveSessionAcceptsTerminalFromPriorWorker(t *testing.T) {
	// The job has been released, but the worker that ran the session may
	// still report its ending.
	job := ownedJob("job-1", "user-1", nil)
	store := newSessionStore(job)
	prior := "worker-a"
	store.session = &types.TaskRunLiveSession{
		ID:        "ls-1",
		TaskRunID: "job-1",
		Provider:  "tmate",
		Status:    types.LiveSessionReady,
		WorkerID:  &prior,
	}
	svc := newTestService(t, store, testConfig(t))

	session, err := svc.ReportLiveSession(context.Background(), "job-1", &types.LiveSessionReportRequest{
		WorkerID: prior,
		Status:   types.LiveSessionEnded,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, types.LiveSessionEnded, session.Status)
	assert.NotNil(t, session.EndedAt)
}

func TestReportLiveSessionClearsWebEndpointsWhenDisallowed(t *testing.T) {
	worker := "worker-a"
	job := ownedJob("job-1", "user-1", &worker)
	store := newSessionStore(job)
	cfg := testConfig(t)
	cfg.LiveSessionAllowWeb = false
	svc := newTestService(t, store, cfg)

	web := "https://tmate.example/ro"
	session, err := svc.ReportLiveSession(context.Background(), "job-1", &types.LiveSessionReportRequest{
		WorkerID: worker,
		Status:   types.LiveSessionReady,
		WebRO:    &web,
		WebRW:    &web,
	}, nil)
	require.NoError(t, err)
	assert.Nil(t, session.WebRO)
	assert.Nil(t, session.WebRW)
}

func TestGrantWriteRequiresReadySession(t *testing.T) {
	job := ownedJob("job-1", "user-1", nil)
	store := newSessionStore(job)
	store.session = &types.TaskRunLiveSession{
		ID:        "ls-1",
		TaskRunID: "job-1",
		Status:    types.LiveSessionStarting,
	}
	svc := newTestService(t, store, testConfig(t))

	_, err := svc.GrantLiveSessionWrite(context.Background(), "job-1", "user-1", &types.GrantWriteRequest{})
	require.Error(t, err)
	assert.True(t, errors.IsState(err))
}

func TestGrantWriteRevealsEndpointAndClampsTTL(t *testing.T) {
	job := ownedJob("job-1", "user-1", nil)
	store := newSessionStore(job)
	rw := "ssh rw@tmate"
	store.session = &types.TaskRunLiveSession{
		ID:        "ls-1",
		TaskRunID: "job-1",
		Provider:  "tmate",
		Status:    types.LiveSessionReady,
		AttachRW:  &rw,
	}
	fixed := time.Date(2025, 11, 3, 12, 0, 0, 0, time.UTC)
	svc := newTestService(t, store, testConfig(t))
	svc.now = func() time.Time { return fixed }

	resp, err := svc.GrantLiveSessionWrite(context.Background(), "job-1", "user-1", &types.GrantWriteRequest{
		TTLMinutes: 10000,
	})
	require.NoError(t, err)
	assert.Equal(t, rw, resp.AttachRW)
	assert.Equal(t, fixed.Add(240*time.Minute), resp.GrantedUntil)
	require.NotNil(t, store.session.RWGrantedUntil)
	assert.Equal(t, resp.GrantedUntil, *store.session.RWGrantedUntil)
}

func TestGrantWriteDefaultsTTLFromConfig(t *testing.T) {
	job := ownedJob("job-1", "user-1", nil)
	store := newSessionStore(job)
	rw := "ssh rw@tmate"
	store.session = &types.TaskRunLiveSession{
		ID:        "ls-1",
		TaskRunID: "job-1",
		Status:    types.LiveSessionReady,
		AttachRW:  &rw,
	}
	fixed := time.Date(2025, 11, 3, 12, 0, 0, 0, time.UTC)
	cfg := testConfig(t)
	cfg.LiveSessionRWGrantTTLMinutes = 30
	svc := newTestService(t, store, cfg)
	svc.now = func() time.Time { return fixed }

	resp, err := svc.GrantLiveSessionWrite(context.Background(), "job-1", "user-1", &types.GrantWriteRequest{})
	require.NoError(t, err)
	assert.Equal(t, fixed.Add(30*time.Minute), resp.GrantedUntil)
}

func TestRevokeLiveSessionEndsSession(t *testing.T) {
	job := ownedJob("job-1", "user-1", nil)
	store := newSessionStore(job)
	store.session = &types.TaskRunLiveSession{
		ID:        "ls-1",
		TaskRunID: "job-1",
		Status:    types.LiveSessionReady,
	}
	svc := newTestService(t, store, testConfig(t))

	session, err := svc.RevokeLiveSession(context.Background(), "job-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, types.LiveSessionRevoked, session.Status)
	assert.NotNil(t, session.EndedAt)
	assert.NotNil(t, session.RWGrantedUntil)
}

func TestLiveSessionSerializationHidesWriteEndpoints(t *testing.T) {
	rw := "ssh rw@tmate"
	webRW := "https://tmate.example/rw"
	session := &types.TaskRunLiveSession{
		ID:        "ls-1",
		TaskRunID: "job-1",
		Status:    types.LiveSessionReady,
		AttachRW:  &rw,
		WebRW:     &webRW,
	}

	data, err := json.Marshal(session)
	require.NoError(t, err)
	assert.NotContains(t, string(data), rw)
	assert.NotContains(t, string(data), webRW)
}

func TestHeartbeatLiveSessionRequiresClaim(t *testing.T) {
	job := ownedJob("job-1", "user-1", nil)
	store := newSessionStore(job)
	svc := newTestService(t, store, testConfig(t))

	_, err := svc.HeartbeatLiveSession(context.Background(), "job-1", "worker-a", nil)
	require.Error(t, err)
	assert.True(t, errors.IsOwnership(err))
}

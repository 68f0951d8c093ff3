package api

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moonmind/moonmind/pkg/errors"
	"github.com/moonmind/moonmind/pkg/security"
	"github.com/moonmind/moonmind/pkg/types"
)

func operatorHeaders(userID string) map[string]string {
	headers := map[string]string{HeaderOperator: "true"}
	if userID != "" {
		headers[HeaderUserID] = userID
	}
	return headers
}

func TestWorkerPauseRequiresOperator(t *testing.T) {
	env := newTestEnv(t, &fakeStore{})

	rec := env.do(http.MethodGet, "/system/worker-pause", nil, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, errors.CodeWorkerPauseForbidden, envelopeCode(t, rec))

	rec = env.doJSON(t, http.MethodPost, "/system/worker-pause",
		map[string]any{"paused": true, "reason": "maintenance"},
		map[string]string{HeaderUserID: "user-7"})
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, errors.CodeWorkerPauseForbidden, envelopeCode(t, rec))
}

func TestGetWorkerPause(t *testing.T) {
	store := &fakeStore{
		getPauseState: func(context.Context) (*types.SystemWorkerPauseState, error) {
			return unpaused(), nil
		},
	}
	env := newTestEnv(t, store)

	rec := env.do(http.MethodGet, "/system/worker-pause", nil, operatorHeaders(""))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"paused":false`)
	assert.Contains(t, rec.Body.String(), `"version":4`)
}

func TestSetWorkerPauseActorMissing(t *testing.T) {
	env := newTestEnv(t, &fakeStore{})

	rec := env.doJSON(t, http.MethodPost, "/system/worker-pause",
		map[string]any{"paused": true, "reason": "maintenance"}, operatorHeaders(""))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, errors.CodeWorkerPauseActorMissing, envelopeCode(t, rec))
}

func TestSetWorkerPause(t *testing.T) {
	var gotAction string
	var gotActor *string
	store := &fakeStore{
		mutatePauseState: func(_ context.Context, action string, actorUserID *string, fn func(*types.SystemWorkerPauseState) error) (*types.SystemWorkerPauseState, error) {
			gotAction = action
			gotActor = actorUserID
			state := unpaused()
			if err := fn(state); err != nil {
				return nil, err
			}
			state.Version++
			return state, nil
		},
	}
	env := newTestEnv(t, store)

	rec := env.doJSON(t, http.MethodPost, "/system/worker-pause",
		map[string]any{"paused": true, "mode": "drain", "reason": "maintenance window"},
		operatorHeaders("user-7"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"paused":true`)
	assert.Contains(t, rec.Body.String(), `"version":5`)

	assert.Equal(t, "pause", gotAction)
	require.NotNil(t, gotActor)
	assert.Equal(t, "user-7", *gotActor)
}

func TestSetWorkerPauseAlreadyPaused(t *testing.T) {
	mode := types.PauseModeDrain
	store := &fakeStore{
		mutatePauseState: func(_ context.Context, _ string, _ *string, fn func(*types.SystemWorkerPauseState) error) (*types.SystemWorkerPauseState, error) {
			state := unpaused()
			state.Paused = true
			state.Mode = &mode
			if err := fn(state); err != nil {
				return nil, err
			}
			return state, nil
		},
	}
	env := newTestEnv(t, store)

	rec := env.doJSON(t, http.MethodPost, "/system/worker-pause",
		map[string]any{"paused": true, "reason": "again"}, operatorHeaders("user-7"))
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, errors.CodeWorkerPauseInvalidRequest, envelopeCode(t, rec))
}

func TestSetWorkerPauseNeedsReason(t *testing.T) {
	env := newTestEnv(t, &fakeStore{})

	rec := env.doJSON(t, http.MethodPost, "/system/worker-pause",
		map[string]any{"paused": true}, operatorHeaders("user-7"))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, errors.CodeWorkerPauseInvalidRequest, envelopeCode(t, rec))
}

func TestMintWorkerToken(t *testing.T) {
	var stored *types.WorkerToken
	store := &fakeStore{
		createWorkerToken: func(_ context.Context, token *types.WorkerToken) error {
			token.ID = "tok-9"
			stored = token
			return nil
		},
	}
	env := newTestEnv(t, store)

	rec := env.doJSON(t, http.MethodPost, "/queue/workers/tokens", map[string]any{
		"workerId":        "worker-1",
		"description":     "ci runner",
		"allowedJobTypes": []string{"task"},
	}, nil)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp types.CreateWorkerTokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, security.LooksLikeWorkerToken(resp.Token))
	assert.Equal(t, "tok-9", resp.WorkerToken.ID)

	// Only the digest is persisted, and it never rides the wire.
	require.NotNil(t, stored)
	assert.Equal(t, security.HashWorkerToken(resp.Token), stored.TokenHash)
	assert.NotContains(t, rec.Body.String(), stored.TokenHash)
}

func TestMintWorkerTokenUnknownType(t *testing.T) {
	env := newTestEnv(t, &fakeStore{})

	rec := env.doJSON(t, http.MethodPost, "/queue/workers/tokens", map[string]any{
		"workerId":        "worker-1",
		"allowedJobTypes": []string{"sleep"},
	}, nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, errors.CodeInvalidQueuePayload, envelopeCode(t, rec))
}

func TestListWorkerTokens(t *testing.T) {
	store := &fakeStore{
		listWorkerTokens: func(context.Context) ([]*types.WorkerToken, error) {
			return []*types.WorkerToken{{ID: "tok-1", WorkerID: "worker-1", IsActive: true}}, nil
		},
	}
	env := newTestEnv(t, store)

	rec := env.do(http.MethodGet, "/queue/workers/tokens", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"items"`)
	assert.Contains(t, rec.Body.String(), `"tok-1"`)
}

func TestRevokeWorkerToken(t *testing.T) {
	store := &fakeStore{
		revokeWorkerToken: func(_ context.Context, id string) (*types.WorkerToken, error) {
			return &types.WorkerToken{ID: id, WorkerID: "worker-1", IsActive: false}, nil
		},
	}
	env := newTestEnv(t, store)

	rec := env.do(http.MethodPost, "/queue/workers/tokens/tok-1/revoke", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"isActive":false`)
}

func TestMigrationTelemetry(t *testing.T) {
	var gotSince time.Time
	store := &fakeStore{
		listJobsSince: func(_ context.Context, since time.Time, _ int) ([]*types.AgentJob, bool, error) {
			gotSince = since
			return nil, false, nil
		},
		listEventsForJob: func(context.Context, []string, int) ([]*types.JobEvent, bool, error) {
			return nil, false, nil
		},
	}
	env := newTestEnv(t, store)

	rec := env.do(http.MethodGet, "/queue/telemetry/migration", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"windowHours":24`)
	assert.Contains(t, rec.Body.String(), `"totalJobs":0`)

	// Default window reaches 24h back.
	assert.WithinDuration(t, time.Now().UTC().Add(-24*time.Hour), gotSince, time.Minute)
}

func TestMigrationTelemetryBadWindow(t *testing.T) {
	env := newTestEnv(t, &fakeStore{})

	rec := env.do(http.MethodGet, "/queue/telemetry/migration?windowHours=0", nil, nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, errors.CodeInvalidQueuePayload, envelopeCode(t, rec))
}

package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moonmind/moonmind/pkg/errors"
	"github.com/moonmind/moonmind/pkg/types"
)

func writeJSON(t *testing.T, w http.ResponseWriter, status int, body any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(t, json.NewEncoder(w).Encode(body))
}

func envelope(code, message string) map[string]any {
	return map[string]any{"detail": map[string]string{"code": code, "message": message}}
}

func TestCreateJob(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/queue/jobs", r.URL.Path)

		var req types.CreateJobRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, types.JobTypeTask, req.Type)

		writeJSON(t, w, http.StatusCreated, types.AgentJob{
			ID:     "job-1",
			Type:   req.Type,
			Status: types.JobStatusQueued,
		})
	}))
	defer srv.Close()

	job, err := New(srv.URL).CreateJob(context.Background(), &types.CreateJobRequest{
		Type:    types.JobTypeTask,
		Payload: types.JSONMap{"task": map[string]any{}},
	})
	require.NoError(t, err)
	assert.Equal(t, "job-1", job.ID)
	assert.Equal(t, types.JobStatusQueued, job.Status)
}

func TestWorkerTokenHeader(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get(types.HeaderWorkerToken)
		writeJSON(t, w, http.StatusOK, types.ClaimResponse{})
	}))
	defer srv.Close()

	_, err := NewWithToken(srv.URL, "mmwt_deadbeef").Claim(context.Background(), &types.ClaimRequest{
		WorkerID:     "w-1",
		LeaseSeconds: 60,
	})
	require.NoError(t, err)
	assert.Equal(t, "mmwt_deadbeef", got)
}

func TestClaimEmptyQueue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/queue/jobs/claim", r.URL.Path)
		writeJSON(t, w, http.StatusOK, map[string]any{
			"job": nil,
			"system": map[string]any{
				"workerPause": map[string]any{"paused": true, "version": 7},
			},
		})
	}))
	defer srv.Close()

	resp, err := New(srv.URL).Claim(context.Background(), &types.ClaimRequest{
		WorkerID:     "w-1",
		LeaseSeconds: 60,
	})
	require.NoError(t, err)
	assert.Nil(t, resp.Job)
	assert.True(t, resp.System.WorkerPause.Paused)
	assert.Equal(t, int64(7), resp.System.WorkerPause.Version)
}

func TestListEventsQueryParams(t *testing.T) {
	after := time.Date(2026, 2, 10, 8, 30, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/queue/jobs/job-1/events", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, after.Format(time.RFC3339Nano), q.Get("after"))
		assert.Equal(t, "evt-9", q.Get("afterEventId"))
		assert.Equal(t, "25", q.Get("limit"))
		assert.Equal(t, "10", q.Get("waitSeconds"))

		writeJSON(t, w, http.StatusOK, map[string]any{
			"items": []types.JobEvent{{ID: "evt-10", JobID: "job-1", Message: "worker.heartbeat"}},
		})
	}))
	defer srv.Close()

	events, err := New(srv.URL).ListEvents(context.Background(), "job-1", ListEventsQuery{
		After:        &after,
		AfterEventID: "evt-9",
		Limit:        25,
		WaitSeconds:  10,
	})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "evt-10", events[0].ID)
}

func TestUploadArtifactMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/queue/jobs/job-1/artifacts/upload", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))

		assert.Equal(t, "w-1", r.FormValue("workerId"))
		assert.Equal(t, "logs/run.log", r.FormValue("name"))
		assert.Equal(t, "text/plain", r.FormValue("contentType"))

		file, _, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		data, err := io.ReadAll(file)
		require.NoError(t, err)
		assert.Equal(t, "line one\n", string(data))

		writeJSON(t, w, http.StatusCreated, types.JobArtifact{
			ID:    "art-1",
			JobID: "job-1",
			Name:  "logs/run.log",
		})
	}))
	defer srv.Close()

	artifact, err := New(srv.URL).UploadArtifact(context.Background(), "job-1", UploadArtifactInput{
		WorkerID:    "w-1",
		Name:        "logs/run.log",
		ContentType: "text/plain",
		Data:        strings.NewReader("line one\n"),
	})
	require.NoError(t, err)
	assert.Equal(t, "art-1", artifact.ID)
}

func TestDownloadArtifact(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/queue/jobs/job-1/artifacts/art-1/download", r.URL.Path)
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprint(w, "artifact bytes")
	}))
	defer srv.Close()

	body, err := New(srv.URL).DownloadArtifact(context.Background(), "job-1", "art-1")
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "artifact bytes", string(data))
}

func TestDownloadArtifactError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusNotFound, envelope("artifact_not_found", "no such artifact"))
	}))
	defer srv.Close()

	_, err := New(srv.URL).DownloadArtifact(context.Background(), "job-1", "missing")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
	assert.Equal(t, "artifact_not_found", errors.CodeOf(err))
}

func TestMintWorkerToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/queue/workers/tokens", r.URL.Path)

		var req types.CreateWorkerTokenRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "w-1", req.WorkerID)
		assert.Equal(t, []string{"acme/api"}, req.AllowedRepositories)

		writeJSON(t, w, http.StatusCreated, types.CreateWorkerTokenResponse{
			Token:       "mmwt_" + strings.Repeat("ab", 24),
			WorkerToken: types.WorkerToken{ID: "tok-1", WorkerID: "w-1", IsActive: true},
		})
	}))
	defer srv.Close()

	resp, err := New(srv.URL).MintWorkerToken(context.Background(), &types.CreateWorkerTokenRequest{
		WorkerID:            "w-1",
		AllowedRepositories: []string{"acme/api"},
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(resp.Token, "mmwt_"))
	assert.Equal(t, "tok-1", resp.WorkerToken.ID)
}

func TestErrorFromResponseMapping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		code    string
		message string
		check   func(error) bool
	}{
		{"authentication", http.StatusUnauthorized, "worker_auth_failed", "bad token", errors.IsAuthentication},
		{"authorization", http.StatusForbidden, "worker_not_authorized", "scope denied", errors.IsAuthorization},
		{"job access", http.StatusForbidden, "job_access_denied", "not your run", errors.IsJobAuthorization},
		{"not found", http.StatusNotFound, "job_not_found", "no such job", errors.IsNotFound},
		{"ownership", http.StatusConflict, "job_ownership_mismatch", "lease moved", errors.IsOwnership},
		{"state", http.StatusConflict, "job_state_conflict", "already terminal", errors.IsState},
		{"validation", http.StatusUnprocessableEntity, "invalid_queue_payload", "bad payload", errors.IsValidation},
		{"too large", http.StatusRequestEntityTooLarge, "artifact_too_large", "50MB cap", errors.IsValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeJSON(t, w, tt.status, envelope(tt.code, tt.message))
			}))
			defer srv.Close()

			_, err := New(srv.URL).GetJob(context.Background(), "job-1")
			require.Error(t, err)
			assert.True(t, tt.check(err), "wrong kind for %s: %v", tt.name, err)
			assert.Equal(t, tt.code, errors.CodeOf(err))
			assert.Equal(t, tt.message, errors.MessageOf(err))
		})
	}
}

func TestErrorFromResponseNonEnvelopeBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprint(w, "<html>upstream timeout</html>")
	}))
	defer srv.Close()

	_, err := New(srv.URL).GetJob(context.Background(), "job-1")
	require.Error(t, err)
	assert.Equal(t, errors.CodeInternalError, errors.CodeOf(err))
	assert.False(t, errors.IsNotFound(err))
}

func TestOwnershipRoundTrip(t *testing.T) {
	// The server writes its envelope from a typed error; the client must
	// rebuild an error the same predicates accept.
	original := errors.NewOwnership("job is claimed by another worker")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, errors.HTTPStatus(original),
			envelope(errors.CodeOf(original), errors.MessageOf(original)))
	}))
	defer srv.Close()

	_, err := New(srv.URL).Complete(context.Background(), "job-1", &types.CompleteRequest{WorkerID: "w-2"})
	require.Error(t, err)
	assert.True(t, errors.IsOwnership(err))
	assert.Equal(t, errors.CodeOf(original), errors.CodeOf(err))
}

func TestReady(t *testing.T) {
	healthy := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/readyz", r.URL.Path)
		status := http.StatusOK
		if !healthy {
			status = http.StatusServiceUnavailable
		}
		writeJSON(t, w, status, map[string]any{"healthy": healthy})
	}))
	defer srv.Close()

	c := New(srv.URL)

	ok, err := c.Ready(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	healthy = false
	ok, err = c.Ready(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRevokeWorkerToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/queue/workers/tokens/tok-1/revoke", r.URL.Path)
		writeJSON(t, w, http.StatusOK, types.WorkerToken{ID: "tok-1", WorkerID: "w-1", IsActive: false})
	}))
	defer srv.Close()

	token, err := New(srv.URL).RevokeWorkerToken(context.Background(), "tok-1")
	require.NoError(t, err)
	assert.False(t, token.IsActive)
}

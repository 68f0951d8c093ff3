package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/moonmind/moonmind/pkg/errors"
	"github.com/moonmind/moonmind/pkg/types"
)

// DefaultTimeout bounds every request. It sits above the 60 second
// long-poll ceiling on the events route so waiting readers are not cut
// off by their own client.
const DefaultTimeout = 90 * time.Second

// Client is the REST client for the MoonMind queue API. One Client is safe
// for concurrent use; workers typically hold a single instance for the
// life of the process.
type Client struct {
	http *resty.Client
}

// New creates a client for user- and operator-facing calls.
func New(baseURL string) *Client {
	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(DefaultTimeout).
		SetHeader("Accept", "application/json")
	return &Client{http: httpClient}
}

// NewWithToken creates a client that authenticates every request with a
// worker bearer token.
func NewWithToken(baseURL, workerToken string) *Client {
	return New(baseURL).SetWorkerToken(workerToken)
}

// SetWorkerToken attaches the worker bearer token to every request.
func (c *Client) SetWorkerToken(token string) *Client {
	c.http.SetHeader(types.HeaderWorkerToken, token)
	return c
}

// SetUserID asserts the principal header, for trusted in-cluster callers
// that sit behind the fronting proxy's trust boundary.
func (c *Client) SetUserID(userID string) *Client {
	c.http.SetHeader(types.HeaderUserID, userID)
	return c
}

// SetOperator asserts the operator header required by pause control.
func (c *Client) SetOperator() *Client {
	c.http.SetHeader(types.HeaderOperator, "true")
	return c
}

// SetTimeout sets the request timeout.
func (c *Client) SetTimeout(timeout time.Duration) *Client {
	c.http.SetTimeout(timeout)
	return c
}

// SetRetry sets transport-level retry configuration.
func (c *Client) SetRetry(count int, waitTime time.Duration) *Client {
	c.http.SetRetryCount(count)
	c.http.SetRetryWaitTime(waitTime)
	return c
}

// SetDebug enables request/response dumping.
func (c *Client) SetDebug(debug bool) *Client {
	c.http.SetDebug(debug)
	return c
}

// ============ Job Operations ============

// CreateJob enqueues a job.
func (c *Client) CreateJob(ctx context.Context, req *types.CreateJobRequest) (*types.AgentJob, error) {
	var job types.AgentJob
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&job).
		Post("/queue/jobs")
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	if err := ErrorFromResponse(resp); err != nil {
		return nil, err
	}
	return &job, nil
}

// GetJob fetches one job by id.
func (c *Client) GetJob(ctx context.Context, jobID string) (*types.AgentJob, error) {
	var job types.AgentJob
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", jobID).
		SetResult(&job).
		Get("/queue/jobs/{id}")
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	if err := ErrorFromResponse(resp); err != nil {
		return nil, err
	}
	return &job, nil
}

// ListJobsQuery filters the job list. Zero values are omitted.
type ListJobsQuery struct {
	Status     string
	Type       string
	Repository string
	Limit      int
}

// ListJobs lists jobs newest first.
func (c *Client) ListJobs(ctx context.Context, q ListJobsQuery) ([]*types.AgentJob, error) {
	var out struct {
		Items []*types.AgentJob `json:"items"`
	}
	r := c.http.R().SetContext(ctx).SetResult(&out)
	if q.Status != "" {
		r.SetQueryParam("status", q.Status)
	}
	if q.Type != "" {
		r.SetQueryParam("type", q.Type)
	}
	if q.Repository != "" {
		r.SetQueryParam("repository", q.Repository)
	}
	if q.Limit > 0 {
		r.SetQueryParam("limit", strconv.Itoa(q.Limit))
	}
	resp, err := r.Get("/queue/jobs")
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	if err := ErrorFromResponse(resp); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// Claim asks for the next eligible job. The response job is nil when the
// queue has nothing this worker may run; the system snapshot is always
// present so idle workers still observe pause state.
func (c *Client) Claim(ctx context.Context, req *types.ClaimRequest) (*types.ClaimResponse, error) {
	var out types.ClaimResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		Post("/queue/jobs/claim")
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	if err := ErrorFromResponse(resp); err != nil {
		return nil, err
	}
	return &out, nil
}

// Heartbeat extends the caller's lease on a running job.
func (c *Client) Heartbeat(ctx context.Context, jobID string, req *types.HeartbeatRequest) (*types.AgentJob, error) {
	var job types.AgentJob
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", jobID).
		SetBody(req).
		SetResult(&job).
		Post("/queue/jobs/{id}/heartbeat")
	if err != nil {
		return nil, fmt.Errorf("heartbeat job: %w", err)
	}
	if err := ErrorFromResponse(resp); err != nil {
		return nil, err
	}
	return &job, nil
}

// Complete reports successful terminal completion.
func (c *Client) Complete(ctx context.Context, jobID string, req *types.CompleteRequest) (*types.AgentJob, error) {
	var job types.AgentJob
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", jobID).
		SetBody(req).
		SetResult(&job).
		Post("/queue/jobs/{id}/complete")
	if err != nil {
		return nil, fmt.Errorf("complete job: %w", err)
	}
	if err := ErrorFromResponse(resp); err != nil {
		return nil, err
	}
	return &job, nil
}

// Fail reports a failure. Unless req.Retryable is false the server decides
// between retry backoff and the dead letter state from the attempt budget.
func (c *Client) Fail(ctx context.Context, jobID string, req *types.FailRequest) (*types.AgentJob, error) {
	var job types.AgentJob
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", jobID).
		SetBody(req).
		SetResult(&job).
		Post("/queue/jobs/{id}/fail")
	if err != nil {
		return nil, fmt.Errorf("fail job: %w", err)
	}
	if err := ErrorFromResponse(resp); err != nil {
		return nil, err
	}
	return &job, nil
}

// RequestCancel asks for cooperative cancellation. Queued jobs cancel
// immediately; running jobs are flagged and keep running until the worker
// acknowledges.
func (c *Client) RequestCancel(ctx context.Context, jobID string, req *types.CancelRequest) (*types.AgentJob, error) {
	var job types.AgentJob
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", jobID).
		SetBody(req).
		SetResult(&job).
		Post("/queue/jobs/{id}/cancel")
	if err != nil {
		return nil, fmt.Errorf("cancel job: %w", err)
	}
	if err := ErrorFromResponse(resp); err != nil {
		return nil, err
	}
	return &job, nil
}

// AckCancel acknowledges a pending cancellation from the owning worker.
func (c *Client) AckCancel(ctx context.Context, jobID string, req *types.AckCancelRequest) (*types.AgentJob, error) {
	var job types.AgentJob
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", jobID).
		SetBody(req).
		SetResult(&job).
		Post("/queue/jobs/{id}/cancel/ack")
	if err != nil {
		return nil, fmt.Errorf("ack cancel: %w", err)
	}
	if err := ErrorFromResponse(resp); err != nil {
		return nil, err
	}
	return &job, nil
}

// ============ Journal Events ============

// AppendEvent appends one journal entry to a job.
func (c *Client) AppendEvent(ctx context.Context, jobID string, req *types.AppendEventRequest) (*types.JobEvent, error) {
	var event types.JobEvent
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", jobID).
		SetBody(req).
		SetResult(&event).
		Post("/queue/jobs/{id}/events")
	if err != nil {
		return nil, fmt.Errorf("append event: %w", err)
	}
	if err := ErrorFromResponse(resp); err != nil {
		return nil, err
	}
	return &event, nil
}

// ListEventsQuery pages a job's journal with the composite cursor.
// AfterEventID is only meaningful together with After; WaitSeconds > 0
// long-polls until new events land or the window lapses.
type ListEventsQuery struct {
	After        *time.Time
	AfterEventID string
	Limit        int
	WaitSeconds  int
}

// ListEvents reads a journal page in (createdAt, id) order.
func (c *Client) ListEvents(ctx context.Context, jobID string, q ListEventsQuery) ([]*types.JobEvent, error) {
	var out struct {
		Items []*types.JobEvent `json:"items"`
	}
	r := c.http.R().
		SetContext(ctx).
		SetPathParam("id", jobID).
		SetResult(&out)
	if q.After != nil {
		r.SetQueryParam("after", q.After.Format(time.RFC3339Nano))
	}
	if q.AfterEventID != "" {
		r.SetQueryParam("afterEventId", q.AfterEventID)
	}
	if q.Limit > 0 {
		r.SetQueryParam("limit", strconv.Itoa(q.Limit))
	}
	if q.WaitSeconds > 0 {
		r.SetQueryParam("waitSeconds", strconv.Itoa(q.WaitSeconds))
	}
	resp, err := r.Get("/queue/jobs/{id}/events")
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	if err := ErrorFromResponse(resp); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// ============ Artifacts ============

// UploadArtifactInput carries one artifact upload. Data is streamed as the
// multipart file part.
type UploadArtifactInput struct {
	WorkerID    string
	Name        string
	ContentType string
	Digest      string
	Data        io.Reader
}

// UploadArtifact stores a file under the job's artifact subtree.
func (c *Client) UploadArtifact(ctx context.Context, jobID string, in UploadArtifactInput) (*types.JobArtifact, error) {
	form := map[string]string{
		"workerId": in.WorkerID,
		"name":     in.Name,
	}
	if in.ContentType != "" {
		form["contentType"] = in.ContentType
	}
	if in.Digest != "" {
		form["digest"] = in.Digest
	}

	var artifact types.JobArtifact
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", jobID).
		SetFileReader("file", in.Name, in.Data).
		SetFormData(form).
		SetResult(&artifact).
		Post("/queue/jobs/{id}/artifacts/upload")
	if err != nil {
		return nil, fmt.Errorf("upload artifact: %w", err)
	}
	if err := ErrorFromResponse(resp); err != nil {
		return nil, err
	}
	return &artifact, nil
}

// ListArtifacts lists a job's artifact records.
func (c *Client) ListArtifacts(ctx context.Context, jobID string, limit int) ([]*types.JobArtifact, error) {
	var out struct {
		Items []*types.JobArtifact `json:"items"`
	}
	r := c.http.R().
		SetContext(ctx).
		SetPathParam("id", jobID).
		SetResult(&out)
	if limit > 0 {
		r.SetQueryParam("limit", strconv.Itoa(limit))
	}
	resp, err := r.Get("/queue/jobs/{id}/artifacts")
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	if err := ErrorFromResponse(resp); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// DownloadArtifact streams an artifact's bytes. The caller must close the
// returned reader.
func (c *Client) DownloadArtifact(ctx context.Context, jobID, artifactID string) (io.ReadCloser, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		SetPathParams(map[string]string{"id": jobID, "artifactId": artifactID}).
		Get("/queue/jobs/{id}/artifacts/{artifactId}/download")
	if err != nil {
		return nil, fmt.Errorf("download artifact: %w", err)
	}
	if resp.StatusCode() >= http.StatusBadRequest {
		defer resp.RawBody().Close()
		body, _ := io.ReadAll(io.LimitReader(resp.RawBody(), 1<<20))
		return nil, errorFromEnvelope(resp.StatusCode(), body)
	}
	return resp.RawBody(), nil
}

// ============ Live Sessions ============

// ReportLiveSession upserts the worker-side view of a task run's terminal
// session. Attach endpoints in the response are sanitized; RW endpoints
// only appear through an explicit write grant.
func (c *Client) ReportLiveSession(ctx context.Context, taskRunID string, req *types.LiveSessionReportRequest) (*types.TaskRunLiveSession, error) {
	var session types.TaskRunLiveSession
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", taskRunID).
		SetBody(req).
		SetResult(&session).
		Post("/task-runs/{id}/live-session/report")
	if err != nil {
		return nil, fmt.Errorf("report live session: %w", err)
	}
	if err := ErrorFromResponse(resp); err != nil {
		return nil, err
	}
	return &session, nil
}

// HeartbeatLiveSession refreshes the session keepalive from the owning
// worker.
func (c *Client) HeartbeatLiveSession(ctx context.Context, taskRunID, workerID string) (*types.TaskRunLiveSession, error) {
	var session types.TaskRunLiveSession
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", taskRunID).
		SetBody(map[string]string{"workerId": workerID}).
		SetResult(&session).
		Post("/task-runs/{id}/live-session/heartbeat")
	if err != nil {
		return nil, fmt.Errorf("heartbeat live session: %w", err)
	}
	if err := ErrorFromResponse(resp); err != nil {
		return nil, err
	}
	return &session, nil
}

// ============ Worker Tokens ============

// MintWorkerToken creates a scoped bearer credential. The raw token in the
// response is shown exactly once.
func (c *Client) MintWorkerToken(ctx context.Context, req *types.CreateWorkerTokenRequest) (*types.CreateWorkerTokenResponse, error) {
	var out types.CreateWorkerTokenResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		Post("/queue/workers/tokens")
	if err != nil {
		return nil, fmt.Errorf("mint worker token: %w", err)
	}
	if err := ErrorFromResponse(resp); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListWorkerTokens lists token records. Hashes never leave the server.
func (c *Client) ListWorkerTokens(ctx context.Context) ([]*types.WorkerToken, error) {
	var out struct {
		Items []*types.WorkerToken `json:"items"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/queue/workers/tokens")
	if err != nil {
		return nil, fmt.Errorf("list worker tokens: %w", err)
	}
	if err := ErrorFromResponse(resp); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// RevokeWorkerToken deactivates a token by id. Revocation is idempotent.
func (c *Client) RevokeWorkerToken(ctx context.Context, tokenID string) (*types.WorkerToken, error) {
	var token types.WorkerToken
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", tokenID).
		SetResult(&token).
		Post("/queue/workers/tokens/{id}/revoke")
	if err != nil {
		return nil, fmt.Errorf("revoke worker token: %w", err)
	}
	if err := ErrorFromResponse(resp); err != nil {
		return nil, err
	}
	return &token, nil
}

// ============ Health ============

// Ready reports whether the server's readiness checks pass.
func (c *Client) Ready(ctx context.Context) (bool, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		Get("/readyz")
	if err != nil {
		return false, fmt.Errorf("readiness probe: %w", err)
	}
	return resp.StatusCode() == http.StatusOK, nil
}

// ============ Error Mapping ============

// ErrorFromResponse rebuilds the typed error carried by a non-2xx envelope
// so callers branch with errors.IsOwnership, errors.IsState and friends
// exactly as server-side code does. A 2xx response returns nil.
func ErrorFromResponse(resp *resty.Response) error {
	if !resp.IsError() {
		return nil
	}
	return errorFromEnvelope(resp.StatusCode(), resp.Body())
}

func errorFromEnvelope(status int, body []byte) error {
	var env struct {
		Detail struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"detail"`
	}
	code := errors.CodeInternalError
	message := http.StatusText(status)
	if err := json.Unmarshal(body, &env); err == nil && env.Detail.Code != "" {
		code = env.Detail.Code
		message = env.Detail.Message
	}
	return &errors.Error{Kind: kindForStatus(status, code), Code: code, Message: message}
}

// kindForStatus inverts the server's status mapping. Contract and
// materialization failures collapse into validation; their wire codes
// stay intact for finer branching.
func kindForStatus(status int, code string) errors.Kind {
	switch status {
	case http.StatusUnauthorized:
		return errors.KindAuthentication
	case http.StatusForbidden:
		if code == errors.CodeJobAccessDenied {
			return errors.KindJobAuthorization
		}
		return errors.KindAuthorization
	case http.StatusNotFound:
		return errors.KindNotFound
	case http.StatusConflict:
		if code == errors.CodeJobOwnershipMismatch {
			return errors.KindOwnership
		}
		return errors.KindState
	case http.StatusUnprocessableEntity, http.StatusRequestEntityTooLarge:
		return errors.KindValidation
	default:
		return errors.KindInternal
	}
}

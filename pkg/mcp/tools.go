package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/moonmind/moonmind/pkg/errors"
	"github.com/moonmind/moonmind/pkg/queue"
	"github.com/moonmind/moonmind/pkg/storage"
	"github.com/moonmind/moonmind/pkg/types"
)

// Tool scopes. Worker tools need a resolved token policy; user tools act as
// the session principal; read tools take whatever the session carries.
type toolScope int

const (
	scopeRead toolScope = iota
	scopeUser
	scopeWorker
)

// Session carries the caller identity one dispatch runs under. The HTTP
// layer fills it from the same headers the REST routes use.
type Session struct {
	Policy *types.WorkerPolicy
	UserID string
}

func (s Session) actor() *string {
	if s.UserID == "" {
		return nil
	}
	id := s.UserID
	return &id
}

// Tool is one dispatchable queue verb: an argument schema plus a handler
// bound to the queue service.
type Tool struct {
	Name        string
	Description string
	InputSchema map[string]any
	Scope       toolScope
	Handler     func(ctx context.Context, sess Session, args json.RawMessage) (any, error)
}

// queueTools builds the fixed tool set over the queue service.
func queueTools(svc *queue.Service) []*Tool {
	return []*Tool{
		enqueueTool(svc),
		claimTool(svc),
		heartbeatTool(svc),
		completeTool(svc),
		failTool(svc),
		cancelTool(svc),
		getTool(svc),
		listTool(svc),
		uploadArtifactTool(svc),
	}
}

func enqueueTool(svc *queue.Service) *Tool {
	return &Tool{
		Name:        "queue.enqueue",
		Description: "Enqueue a new agent job. The payload envelope is validated against the job type's contract.",
		Scope:       scopeUser,
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"type": map[string]any{
					"type":        "string",
					"description": "Job type: task, manifest, or workflow",
				},
				"payload": map[string]any{
					"type":        "object",
					"description": "Type-specific job payload envelope",
				},
				"priority": map[string]any{
					"type":        "integer",
					"description": "Claim ordering weight, higher first",
				},
				"affinityKey": map[string]any{
					"type":        "string",
					"description": "Serialization key; at most one running job per key",
				},
				"maxAttempts": map[string]any{
					"type":    "integer",
					"minimum": 1,
				},
				"requestedByUserId": map[string]any{
					"type": "string",
				},
			},
			"required":             []any{"type", "payload"},
			"additionalProperties": false,
		},
		Handler: func(ctx context.Context, sess Session, args json.RawMessage) (any, error) {
			var req types.CreateJobRequest
			if err := json.Unmarshal(args, &req); err != nil {
				return nil, invalidArguments(err)
			}
			req.CreatedByUserID = sess.actor()
			return svc.CreateJob(ctx, &req)
		},
	}
}

func claimTool(svc *queue.Service) *Tool {
	return &Tool{
		Name:        "queue.claim",
		Description: "Claim the next eligible job for a worker. Returns {job|null, system}.",
		Scope:       scopeWorker,
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"workerId": map[string]any{
					"type":      "string",
					"minLength": 1,
				},
				"leaseSeconds": map[string]any{
					"type":    "integer",
					"minimum": 1,
				},
				"allowedTypes": map[string]any{
					"type":  "array",
					"items": map[string]any{"type": "string"},
				},
				"workerCapabilities": map[string]any{
					"type":  "array",
					"items": map[string]any{"type": "string"},
				},
			},
			"required":             []any{"workerId", "leaseSeconds"},
			"additionalProperties": false,
		},
		Handler: func(ctx context.Context, sess Session, args json.RawMessage) (any, error) {
			var req types.ClaimRequest
			if err := json.Unmarshal(args, &req); err != nil {
				return nil, invalidArguments(err)
			}
			return svc.ClaimJob(ctx, &req, sess.Policy)
		},
	}
}

func heartbeatTool(svc *queue.Service) *Tool {
	return &Tool{
		Name:        "queue.heartbeat",
		Description: "Extend the lease of a running job owned by this worker.",
		Scope:       scopeWorker,
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"jobId":    map[string]any{"type": "string"},
				"workerId": map[string]any{"type": "string"},
				"leaseSeconds": map[string]any{
					"type":    "integer",
					"minimum": 1,
				},
			},
			"required":             []any{"jobId", "workerId"},
			"additionalProperties": false,
		},
		Handler: func(ctx context.Context, sess Session, args json.RawMessage) (any, error) {
			var p struct {
				JobID        string `json:"jobId"`
				WorkerID     string `json:"workerId"`
				LeaseSeconds int    `json:"leaseSeconds"`
			}
			if err := json.Unmarshal(args, &p); err != nil {
				return nil, invalidArguments(err)
			}
			req := &types.HeartbeatRequest{WorkerID: p.WorkerID, LeaseSeconds: p.LeaseSeconds}
			return svc.Heartbeat(ctx, p.JobID, req, sess.Policy)
		},
	}
}

func completeTool(svc *queue.Service) *Tool {
	return &Tool{
		Name:        "queue.complete",
		Description: "Mark a running job owned by this worker as completed.",
		Scope:       scopeWorker,
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"jobId":         map[string]any{"type": "string"},
				"workerId":      map[string]any{"type": "string"},
				"resultSummary": map[string]any{"type": "string"},
			},
			"required":             []any{"jobId", "workerId"},
			"additionalProperties": false,
		},
		Handler: func(ctx context.Context, sess Session, args json.RawMessage) (any, error) {
			var p struct {
				JobID         string  `json:"jobId"`
				WorkerID      string  `json:"workerId"`
				ResultSummary *string `json:"resultSummary"`
			}
			if err := json.Unmarshal(args, &p); err != nil {
				return nil, invalidArguments(err)
			}
			req := &types.CompleteRequest{WorkerID: p.WorkerID, ResultSummary: p.ResultSummary}
			return svc.Complete(ctx, p.JobID, req, sess.Policy)
		},
	}
}

func failTool(svc *queue.Service) *Tool {
	return &Tool{
		Name:        "queue.fail",
		Description: "Report a job failure. Retryable failures requeue with backoff until attempts are exhausted.",
		Scope:       scopeWorker,
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"jobId":        map[string]any{"type": "string"},
				"workerId":     map[string]any{"type": "string"},
				"errorMessage": map[string]any{"type": "string"},
				"retryable":    map[string]any{"type": "boolean"},
			},
			"required":             []any{"jobId", "workerId"},
			"additionalProperties": false,
		},
		Handler: func(ctx context.Context, sess Session, args json.RawMessage) (any, error) {
			var p struct {
				JobID        string `json:"jobId"`
				WorkerID     string `json:"workerId"`
				ErrorMessage string `json:"errorMessage"`
				Retryable    *bool  `json:"retryable"`
			}
			if err := json.Unmarshal(args, &p); err != nil {
				return nil, invalidArguments(err)
			}
			req := &types.FailRequest{
				WorkerID:     p.WorkerID,
				ErrorMessage: p.ErrorMessage,
				Retryable:    p.Retryable,
			}
			return svc.Fail(ctx, p.JobID, req, sess.Policy)
		},
	}
}

func cancelTool(svc *queue.Service) *Tool {
	return &Tool{
		Name:        "queue.cancel",
		Description: "Request cooperative cancellation of a job.",
		Scope:       scopeUser,
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"jobId":  map[string]any{"type": "string"},
				"reason": map[string]any{"type": "string"},
			},
			"required":             []any{"jobId"},
			"additionalProperties": false,
		},
		Handler: func(ctx context.Context, sess Session, args json.RawMessage) (any, error) {
			var p struct {
				JobID  string `json:"jobId"`
				Reason string `json:"reason"`
			}
			if err := json.Unmarshal(args, &p); err != nil {
				return nil, invalidArguments(err)
			}
			return svc.RequestCancel(ctx, p.JobID, sess.actor(), &types.CancelRequest{Reason: p.Reason})
		},
	}
}

func getTool(svc *queue.Service) *Tool {
	return &Tool{
		Name:        "queue.get",
		Description: "Fetch one job by id.",
		Scope:       scopeRead,
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"jobId": map[string]any{"type": "string"},
			},
			"required":             []any{"jobId"},
			"additionalProperties": false,
		},
		Handler: func(ctx context.Context, sess Session, args json.RawMessage) (any, error) {
			var p struct {
				JobID string `json:"jobId"`
			}
			if err := json.Unmarshal(args, &p); err != nil {
				return nil, invalidArguments(err)
			}
			return svc.GetJob(ctx, p.JobID)
		},
	}
}

func listTool(svc *queue.Service) *Tool {
	return &Tool{
		Name:        "queue.list",
		Description: "List jobs, newest first, optionally filtered by status, type, or repository.",
		Scope:       scopeRead,
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"status":     map[string]any{"type": "string"},
				"type":       map[string]any{"type": "string"},
				"repository": map[string]any{"type": "string"},
				"limit": map[string]any{
					"type":    "integer",
					"minimum": 1,
					"maximum": queue.MaxJobListLimit,
				},
			},
			"additionalProperties": false,
		},
		Handler: func(ctx context.Context, sess Session, args json.RawMessage) (any, error) {
			var p struct {
				Status     *string `json:"status"`
				Type       *string `json:"type"`
				Repository *string `json:"repository"`
				Limit      int     `json:"limit"`
			}
			if err := json.Unmarshal(args, &p); err != nil {
				return nil, invalidArguments(err)
			}
			filter := storage.JobFilter{Repository: p.Repository, Limit: p.Limit}
			if p.Status != nil {
				status := types.JobStatus(*p.Status)
				filter.Status = &status
			}
			if p.Type != nil {
				jobType := types.JobType(*p.Type)
				filter.Type = &jobType
			}
			jobs, err := svc.ListJobs(ctx, filter)
			if err != nil {
				return nil, err
			}
			return map[string]any{"jobs": jobs, "count": len(jobs)}, nil
		},
	}
}

func uploadArtifactTool(svc *queue.Service) *Tool {
	return &Tool{
		Name:        "queue.upload_artifact",
		Description: "Upload one artifact for a job. Content is base64-encoded.",
		Scope:       scopeWorker,
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"jobId":    map[string]any{"type": "string"},
				"workerId": map[string]any{"type": "string"},
				"name": map[string]any{
					"type":        "string",
					"description": "Relative artifact path, e.g. logs/run.log",
				},
				"contentBase64": map[string]any{"type": "string"},
				"contentType":   map[string]any{"type": "string"},
				"digest": map[string]any{
					"type":        "string",
					"description": "Optional sha256:<hex> integrity check",
				},
			},
			"required":             []any{"jobId", "workerId", "name", "contentBase64"},
			"additionalProperties": false,
		},
		Handler: func(ctx context.Context, sess Session, args json.RawMessage) (any, error) {
			var p struct {
				JobID         string  `json:"jobId"`
				WorkerID      string  `json:"workerId"`
				Name          string  `json:"name"`
				ContentBase64 string  `json:"contentBase64"`
				ContentType   string  `json:"contentType"`
				Digest        *string `json:"digest"`
			}
			if err := json.Unmarshal(args, &p); err != nil {
				return nil, invalidArguments(err)
			}
			data, err := base64.StdEncoding.DecodeString(p.ContentBase64)
			if err != nil {
				return nil, errors.NewValidation(errors.CodeInvalidToolArguments,
					fmt.Sprintf("contentBase64 is not valid base64: %v", err))
			}
			return svc.UploadArtifact(ctx, queue.UploadArtifactInput{
				JobID:       p.JobID,
				WorkerID:    &p.WorkerID,
				Name:        p.Name,
				ContentType: p.ContentType,
				Digest:      p.Digest,
				Data:        data,
			}, sess.Policy)
		},
	}
}

func invalidArguments(err error) error {
	return errors.NewValidation(errors.CodeInvalidToolArguments,
		fmt.Sprintf("tool arguments do not decode: %v", err))
}

package api

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/moonmind/moonmind/pkg/storage"
	"github.com/moonmind/moonmind/pkg/types"
)

func (h *Handler) createJob(c *gin.Context) (any, error) {
	var req types.CreateJobRequest
	if err := bindJSON(c, &req); err != nil {
		return nil, err
	}
	req.CreatedByUserID = actorFrom(c)

	job, err := h.queue.CreateJob(c.Request.Context(), &req)
	if err != nil {
		return nil, err
	}
	created(c)
	return job, nil
}

func (h *Handler) listJobs(c *gin.Context) (any, error) {
	limit, err := parseIntQuery(c, "limit", defaultJobListLimit)
	if err != nil {
		return nil, err
	}
	filter := storage.JobFilter{Limit: limit, Repository: stringQuery(c, "repository")}
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		status := types.JobStatus(raw)
		filter.Status = &status
	}
	if raw := strings.TrimSpace(c.Query("type")); raw != "" {
		jobType := types.JobType(raw)
		filter.Type = &jobType
	}

	jobs, err := h.queue.ListJobs(c.Request.Context(), filter)
	if err != nil {
		return nil, err
	}
	if jobs == nil {
		jobs = []*types.AgentJob{}
	}
	return gin.H{"items": jobs}, nil
}

func (h *Handler) getJob(c *gin.Context) (any, error) {
	return h.queue.GetJob(c.Request.Context(), c.Param("id"))
}

func (h *Handler) claimJob(c *gin.Context) (any, error) {
	var req types.ClaimRequest
	if err := bindJSON(c, &req); err != nil {
		return nil, err
	}
	return h.queue.ClaimJob(c.Request.Context(), &req, policyFrom(c))
}

func (h *Handler) heartbeatJob(c *gin.Context) (any, error) {
	var req types.HeartbeatRequest
	if err := bindJSON(c, &req); err != nil {
		return nil, err
	}
	return h.queue.Heartbeat(c.Request.Context(), c.Param("id"), &req, policyFrom(c))
}

func (h *Handler) completeJob(c *gin.Context) (any, error) {
	var req types.CompleteRequest
	if err := bindJSON(c, &req); err != nil {
		return nil, err
	}
	return h.queue.Complete(c.Request.Context(), c.Param("id"), &req, policyFrom(c))
}

func (h *Handler) failJob(c *gin.Context) (any, error) {
	var req types.FailRequest
	if err := bindJSON(c, &req); err != nil {
		return nil, err
	}
	return h.queue.Fail(c.Request.Context(), c.Param("id"), &req, policyFrom(c))
}

func (h *Handler) cancelJob(c *gin.Context) (any, error) {
	req := types.CancelRequest{}
	if c.Request.ContentLength > 0 {
		if err := bindJSON(c, &req); err != nil {
			return nil, err
		}
	}
	return h.queue.RequestCancel(c.Request.Context(), c.Param("id"), actorFrom(c), &req)
}

func (h *Handler) ackCancelJob(c *gin.Context) (any, error) {
	var req types.AckCancelRequest
	if err := bindJSON(c, &req); err != nil {
		return nil, err
	}
	return h.queue.AckCancel(c.Request.Context(), c.Param("id"), &req, policyFrom(c))
}

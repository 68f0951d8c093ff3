package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/moonmind/moonmind/pkg/types"
)

func (h *Handler) migrationTelemetry(c *gin.Context) (any, error) {
	windowHours, err := parseIntQuery(c, "windowHours", defaultTelemetryWindowHours)
	if err != nil {
		return nil, err
	}
	limit, err := parseIntQuery(c, "limit", defaultTelemetryEventLimit)
	if err != nil {
		return nil, err
	}
	return h.queue.GetMigrationTelemetry(c.Request.Context(), windowHours, limit)
}

func (h *Handler) mintWorkerToken(c *gin.Context) (any, error) {
	var req types.CreateWorkerTokenRequest
	if err := bindJSON(c, &req); err != nil {
		return nil, err
	}
	resp, err := h.queue.MintWorkerToken(c.Request.Context(), &req)
	if err != nil {
		return nil, err
	}
	created(c)
	return resp, nil
}

func (h *Handler) listWorkerTokens(c *gin.Context) (any, error) {
	items, err := h.queue.ListWorkerTokens(c.Request.Context())
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*types.WorkerToken{}
	}
	return gin.H{"items": items}, nil
}

func (h *Handler) revokeWorkerToken(c *gin.Context) (any, error) {
	return h.queue.RevokeWorkerToken(c.Request.Context(), c.Param("id"))
}

func (h *Handler) getWorkerPause(c *gin.Context) (any, error) {
	return h.queue.GetWorkerPause(c.Request.Context())
}

func (h *Handler) setWorkerPause(c *gin.Context) (any, error) {
	var req types.WorkerPauseRequest
	if err := bindJSON(c, &req); err != nil {
		return nil, err
	}
	return h.queue.SetWorkerPause(c.Request.Context(), userIDFrom(c), &req)
}

// healthz answers liveness: the process can serve HTTP.
func (h *Handler) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// readyz runs the registered dependency checks and reports 503 until all
// of them pass.
func (h *Handler) readyz(c *gin.Context) {
	report := h.checker.Run(c.Request.Context())
	status := http.StatusOK
	if !report.Healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, report)
}

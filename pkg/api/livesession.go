package api

import (
	"github.com/gin-gonic/gin"

	"github.com/moonmind/moonmind/pkg/types"
)

func (h *Handler) createLiveSession(c *gin.Context) (any, error) {
	return h.queue.CreateLiveSession(c.Request.Context(), c.Param("id"), userIDFrom(c))
}

func (h *Handler) getLiveSession(c *gin.Context) (any, error) {
	return h.queue.GetLiveSession(c.Request.Context(), c.Param("id"), userIDFrom(c))
}

func (h *Handler) grantLiveSessionWrite(c *gin.Context) (any, error) {
	req := types.GrantWriteRequest{}
	if c.Request.ContentLength > 0 {
		if err := bindJSON(c, &req); err != nil {
			return nil, err
		}
	}
	return h.queue.GrantLiveSessionWrite(c.Request.Context(), c.Param("id"), userIDFrom(c), &req)
}

func (h *Handler) revokeLiveSessionWrite(c *gin.Context) (any, error) {
	return h.queue.RevokeLiveSession(c.Request.Context(), c.Param("id"), userIDFrom(c))
}

func (h *Handler) reportLiveSession(c *gin.Context) (any, error) {
	var req types.LiveSessionReportRequest
	if err := bindJSON(c, &req); err != nil {
		return nil, err
	}
	return h.queue.ReportLiveSession(c.Request.Context(), c.Param("id"), &req, policyFrom(c))
}

func (h *Handler) heartbeatLiveSession(c *gin.Context) (any, error) {
	var req struct {
		WorkerID string `json:"workerId" binding:"required"`
	}
	if err := bindJSON(c, &req); err != nil {
		return nil, err
	}
	return h.queue.HeartbeatLiveSession(c.Request.Context(), c.Param("id"), req.WorkerID, policyFrom(c))
}

func (h *Handler) applyControlAction(c *gin.Context) (any, error) {
	var req types.ControlActionRequest
	if err := bindJSON(c, &req); err != nil {
		return nil, err
	}
	return h.queue.ApplyControlAction(c.Request.Context(), c.Param("id"), userIDFrom(c), &req)
}

func (h *Handler) listControlEvents(c *gin.Context) (any, error) {
	limit, err := parseIntQuery(c, "limit", defaultControlLimit)
	if err != nil {
		return nil, err
	}
	items, err := h.queue.ListTaskRunControlEvents(c.Request.Context(), c.Param("id"), userIDFrom(c), limit)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*types.TaskRunControlEvent{}
	}
	return gin.H{"items": items}, nil
}

func (h *Handler) sendOperatorMessage(c *gin.Context) (any, error) {
	var req types.OperatorMessageRequest
	if err := bindJSON(c, &req); err != nil {
		return nil, err
	}
	event, err := h.queue.SendOperatorMessage(c.Request.Context(), c.Param("id"), userIDFrom(c), &req)
	if err != nil {
		return nil, err
	}
	created(c)
	return event, nil
}

package api

import (
	"github.com/gin-gonic/gin"

	"github.com/moonmind/moonmind/pkg/types"
)

func (h *Handler) appendJobEvent(c *gin.Context) (any, error) {
	var req types.AppendEventRequest
	if err := bindJSON(c, &req); err != nil {
		return nil, err
	}
	event, err := h.queue.AppendJobEvent(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		return nil, err
	}
	created(c)
	return event, nil
}

func (h *Handler) listJobEvents(c *gin.Context) (any, error) {
	limit, err := parseIntQuery(c, "limit", defaultEventListLimit)
	if err != nil {
		return nil, err
	}
	after, err := parseTimeQuery(c, "after")
	if err != nil {
		return nil, err
	}
	waitSeconds, err := parseIntQuery(c, "waitSeconds", 0)
	if err != nil {
		return nil, err
	}
	q := types.ListEventsQuery{
		After:        after,
		AfterEventID: stringQuery(c, "afterEventId"),
		Limit:        limit,
	}

	items, err := h.queue.ListJobEvents(c.Request.Context(), c.Param("id"), q, waitSeconds)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*types.JobEvent{}
	}
	return gin.H{"items": items}, nil
}

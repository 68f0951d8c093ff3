package api

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/moonmind/moonmind/pkg/types"
)

func (h *Handler) createProposal(c *gin.Context) (any, error) {
	var req types.CreateProposalRequest
	if err := bindJSON(c, &req); err != nil {
		return nil, err
	}
	resp, err := h.proposals.Create(c.Request.Context(), &req)
	if err != nil {
		return nil, err
	}
	created(c)
	return resp, nil
}

func (h *Handler) listProposals(c *gin.Context) (any, error) {
	limit, err := parseIntQuery(c, "limit", defaultProposalLimit)
	if err != nil {
		return nil, err
	}
	includeSnoozed, err := boolQuery(c, "includeSnoozed")
	if err != nil {
		return nil, err
	}
	onlySnoozed, err := boolQuery(c, "onlySnoozed")
	if err != nil {
		return nil, err
	}
	filter := types.ProposalListFilter{
		Category:       stringQuery(c, "category"),
		Repository:     stringQuery(c, "repository"),
		IncludeSnoozed: includeSnoozed,
		OnlySnoozed:    onlySnoozed,
		Cursor:         strings.TrimSpace(c.Query("cursor")),
		Limit:          limit,
	}
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		status := types.ProposalStatus(raw)
		filter.Status = &status
	}
	if raw := strings.TrimSpace(c.Query("originSource")); raw != "" {
		source := types.OriginSource(raw)
		filter.OriginSource = &source
	}

	items, nextCursor, err := h.proposals.List(c.Request.Context(), filter)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*types.TaskProposal{}
	}
	body := gin.H{"items": items}
	if nextCursor != "" {
		body["nextCursor"] = nextCursor
	}
	return body, nil
}

func (h *Handler) getProposal(c *gin.Context) (any, error) {
	return h.proposals.Get(c.Request.Context(), c.Param("id"))
}

func (h *Handler) promoteProposal(c *gin.Context) (any, error) {
	req := types.PromoteProposalRequest{}
	if c.Request.ContentLength > 0 {
		if err := bindJSON(c, &req); err != nil {
			return nil, err
		}
	}
	resp, err := h.proposals.Promote(c.Request.Context(), c.Param("id"), &req, actorFrom(c))
	if err != nil {
		return nil, err
	}
	created(c)
	return resp, nil
}

func (h *Handler) dismissProposal(c *gin.Context) (any, error) {
	req := types.DecideProposalRequest{}
	if c.Request.ContentLength > 0 {
		if err := bindJSON(c, &req); err != nil {
			return nil, err
		}
	}
	return h.proposals.Dismiss(c.Request.Context(), c.Param("id"), &req, actorFrom(c))
}

func (h *Handler) snoozeProposal(c *gin.Context) (any, error) {
	var req types.SnoozeProposalRequest
	if err := bindJSON(c, &req); err != nil {
		return nil, err
	}
	return h.proposals.Snooze(c.Request.Context(), c.Param("id"), &req, actorFrom(c))
}

func (h *Handler) unsnoozeProposal(c *gin.Context) (any, error) {
	return h.proposals.Unsnooze(c.Request.Context(), c.Param("id"))
}

func (h *Handler) updateProposalPriority(c *gin.Context) (any, error) {
	var req types.UpdateProposalPriorityRequest
	if err := bindJSON(c, &req); err != nil {
		return nil, err
	}
	return h.proposals.UpdatePriority(c.Request.Context(), c.Param("id"), &req)
}

package api

import (
	"github.com/gin-gonic/gin"

	"github.com/moonmind/moonmind/pkg/types"
)

func (h *Handler) upsertManifest(c *gin.Context) (any, error) {
	var req types.UpsertManifestRequest
	if err := bindJSON(c, &req); err != nil {
		return nil, err
	}
	return h.registry.UpsertManifest(c.Request.Context(), c.Param("name"), &req)
}

func (h *Handler) listManifests(c *gin.Context) (any, error) {
	items, err := h.registry.ListManifests(c.Request.Context())
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*types.ManifestRegistryRecord{}
	}
	return gin.H{"items": items}, nil
}

func (h *Handler) getManifest(c *gin.Context) (any, error) {
	return h.registry.GetManifest(c.Request.Context(), c.Param("name"))
}

func (h *Handler) submitManifestRun(c *gin.Context) (any, error) {
	var req types.SubmitManifestRunRequest
	if err := bindJSON(c, &req); err != nil {
		return nil, err
	}
	job, err := h.registry.SubmitManifestRun(c.Request.Context(), c.Param("name"), &req, actorFrom(c))
	if err != nil {
		return nil, err
	}
	created(c)
	return job, nil
}

package api

import (
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/moonmind/moonmind/pkg/errors"
	"github.com/moonmind/moonmind/pkg/queue"
	"github.com/moonmind/moonmind/pkg/types"
)

func (h *Handler) uploadArtifact(c *gin.Context) (any, error) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return nil, errors.NewValidation(errors.CodeInvalidQueuePayload,
			"multipart field file is required")
	}
	workerID := strings.TrimSpace(c.PostForm("workerId"))
	if workerID == "" {
		return nil, errors.NewValidation(errors.CodeInvalidQueuePayload, "workerId is required")
	}
	name := strings.TrimSpace(c.PostForm("name"))
	if name == "" {
		return nil, errors.NewValidation(errors.CodeInvalidQueuePayload, "name is required")
	}

	contentType := strings.TrimSpace(c.PostForm("contentType"))
	if contentType == "" {
		contentType = fileHeader.Header.Get("Content-Type")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	f, err := fileHeader.Open()
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer f.Close()

	// Read one byte past the limit so the size check in the service fires
	// without buffering an arbitrarily large body.
	data, err := io.ReadAll(io.LimitReader(f, h.cfg.ArtifactMaxBytes+1))
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	in := queue.UploadArtifactInput{
		JobID:       c.Param("id"),
		WorkerID:    &workerID,
		Name:        name,
		ContentType: contentType,
		Digest:      nil,
		Data:        data,
	}
	if digest := strings.TrimSpace(c.PostForm("digest")); digest != "" {
		in.Digest = &digest
	}

	artifact, err := h.queue.UploadArtifact(c.Request.Context(), in, policyFrom(c))
	if err != nil {
		return nil, err
	}
	created(c)
	return artifact, nil
}

func (h *Handler) listArtifacts(c *gin.Context) (any, error) {
	limit, err := parseIntQuery(c, "limit", defaultArtifactLimit)
	if err != nil {
		return nil, err
	}
	items, err := h.queue.ListArtifacts(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*types.JobArtifact{}
	}
	return gin.H{"items": items}, nil
}

// downloadArtifact streams bytes instead of a JSON body, so it bypasses
// the handle wrapper.
func (h *Handler) downloadArtifact(c *gin.Context) {
	artifact, reader, err := h.queue.OpenArtifact(c.Request.Context(),
		c.Param("id"), c.Param("artifactId"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	defer reader.Close()

	headers := map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", path.Base(artifact.Name)),
	}
	c.DataFromReader(http.StatusOK, artifact.SizeBytes, artifact.ContentType, reader, headers)
}

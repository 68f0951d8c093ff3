package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/moonmind/moonmind/pkg/mcp"
)

// Flat tool-call form used by agents that skip the JSON-RPC framing.
type toolCallRequest struct {
	Tool      string          `json:"tool"`
	Arguments json.RawMessage `json:"arguments"`
}

func (h *Handler) mcpSession(c *gin.Context) mcp.Session {
	return mcp.Session{
		Policy: policyFrom(c),
		UserID: userIDFrom(c),
	}
}

// handleMCP serves the JSON-RPC surface. Responses ride HTTP 200 even for
// protocol errors; notifications return 202 with no body.
func (h *Handler) handleMCP(c *gin.Context) {
	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusOK, mcp.NewErrorResponse(nil, mcp.ErrorCodeParseError, "request body unreadable", nil))
		return
	}
	req, err := mcp.ParseRequest(data)
	if err != nil {
		c.JSON(http.StatusOK, mcp.NewErrorResponse(nil, mcp.ErrorCodeParseError, err.Error(), nil))
		return
	}

	resp := h.mcp.Handle(c.Request.Context(), h.mcpSession(c), req)
	if resp == nil {
		c.Status(http.StatusAccepted)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// listMCPTools exposes tool discovery outside the JSON-RPC framing.
func (h *Handler) listMCPTools(c *gin.Context) (any, error) {
	return h.mcp.ListTools(), nil
}

// callMCPTool serves the flat {tool, arguments} form. Unlike the JSON-RPC
// surface, failures map onto the REST envelope with the shared status
// table, so agents get the same codes either way.
func (h *Handler) callMCPTool(c *gin.Context) (any, error) {
	var req toolCallRequest
	if err := bindJSON(c, &req); err != nil {
		return nil, err
	}
	result, err := h.mcp.CallTool(c.Request.Context(), h.mcpSession(c), req.Tool, req.Arguments)
	if err != nil {
		return nil, err
	}
	return gin.H{"result": result}, nil
}

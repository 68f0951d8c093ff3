package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/moonmind/moonmind/pkg/config"
	"github.com/moonmind/moonmind/pkg/errors"
	"github.com/moonmind/moonmind/pkg/health"
	"github.com/moonmind/moonmind/pkg/log"
	"github.com/moonmind/moonmind/pkg/mcp"
	"github.com/moonmind/moonmind/pkg/proposals"
	"github.com/moonmind/moonmind/pkg/queue"
	"github.com/moonmind/moonmind/pkg/registry"
	"github.com/moonmind/moonmind/pkg/types"
)

// Identity headers, shared with pkg/client so workers and the server
// agree on the wire names.
const (
	HeaderWorkerToken = types.HeaderWorkerToken
	HeaderUserID      = types.HeaderUserID
	HeaderOperator    = types.HeaderOperator
)

// Adapter-side defaults for list endpoints. The services reject limits
// outside their bounds instead of clamping, so defaults live here.
const (
	defaultJobListLimit   = 50
	defaultEventListLimit = 100
	defaultControlLimit   = 50
	defaultArtifactLimit  = 100
	defaultProposalLimit  = 50

	defaultTelemetryWindowHours = 24
	defaultTelemetryEventLimit  = 5000
)

// Gin context keys set by middleware.
const ctxWorkerPolicy = "workerPolicy"

// Handler carries the service handles every route closes over.
type Handler struct {
	queue     *queue.Service
	proposals *proposals.Service
	registry  *registry.Service
	mcp       *mcp.Server
	checker   *health.Checker
	cfg       *config.Config
	logger    zerolog.Logger
}

// NewHandler wires the HTTP handler set over the core services.
func NewHandler(queueSvc *queue.Service, proposalSvc *proposals.Service,
	registrySvc *registry.Service, mcpServer *mcp.Server,
	checker *health.Checker, cfg *config.Config) *Handler {
	return &Handler{
		queue:     queueSvc,
		proposals: proposalSvc,
		registry:  registrySvc,
		mcp:       mcpServer,
		checker:   checker,
		cfg:       cfg,
		logger:    log.WithComponent("api"),
	}
}

// handleFunc is the shape all JSON handlers share: return a body and let
// handle serialize it, or return an error and let the envelope writer map
// it. Handlers that need a non-200 success call c.Status first.
type handleFunc func(c *gin.Context) (any, error)

func handle(c *gin.Context, fn handleFunc) {
	body, err := fn(c)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(c.Writer.Status(), body)
}

// errorEnvelope is the wire shape for every non-2xx response.
type errorEnvelope struct {
	Detail errorDetail `json:"detail"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// abortWithError maps the error through the shared status table and writes
// the envelope. The cause is attached to the gin context so the request
// logger can record it without leaking detail to the client.
func abortWithError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(errors.HTTPStatus(err), errorEnvelope{Detail: errorDetail{
		Code:    errors.CodeOf(err),
		Message: errors.MessageOf(err),
	}})
}

// bindJSON decodes the request body, turning gin binding failures into
// validation errors so they ride the standard envelope.
func bindJSON(c *gin.Context, dst any) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		return errors.NewValidation(errors.CodeInvalidQueuePayload,
			"request body is invalid: "+err.Error())
	}
	return nil
}

// policyFrom returns the worker policy resolved by workerAuth, or nil on
// routes where worker identity is optional.
func policyFrom(c *gin.Context) *types.WorkerPolicy {
	v, ok := c.Get(ctxWorkerPolicy)
	if !ok {
		return nil
	}
	policy, _ := v.(*types.WorkerPolicy)
	return policy
}

// userIDFrom returns the proxy-asserted principal, empty when anonymous.
func userIDFrom(c *gin.Context) string {
	return strings.TrimSpace(c.GetHeader(HeaderUserID))
}

// actorFrom is userIDFrom as the nullable shape the services take.
func actorFrom(c *gin.Context) *string {
	if id := userIDFrom(c); id != "" {
		return &id
	}
	return nil
}

func created(c *gin.Context) {
	c.Status(http.StatusCreated)
}

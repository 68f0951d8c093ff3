package api

import (
	"github.com/gin-gonic/gin"

	"github.com/moonmind/moonmind/pkg/errors"
	"github.com/moonmind/moonmind/pkg/metrics"
)

// wrap adapts a handleFunc for route registration.
func wrap(fn handleFunc) gin.HandlerFunc {
	return func(c *gin.Context) { handle(c, fn) }
}

// registerRoutes mounts every route group onto the engine.
func registerRoutes(e *gin.Engine, h *Handler) {
	initQueueRouters(e, h)
	initSystemRouters(e, h)
	initTaskRunRouters(e, h)
	initProposalRouters(e, h)
	initManifestRouters(e, h)
	initMCPRouters(e, h)
	initOpsRouters(e, h)

	e.NoRoute(func(c *gin.Context) {
		abortWithError(c, errors.NewNotFound("route_not_found",
			"no route for "+c.Request.Method+" "+c.Request.URL.Path))
	})
}

func initQueueRouters(e *gin.Engine, h *Handler) {
	queue := e.Group("/queue")

	jobs := queue.Group("/jobs")
	{
		jobs.POST("", wrap(h.createJob))
		jobs.GET("", wrap(h.listJobs))
		jobs.POST("/claim", h.workerAuth(true), wrap(h.claimJob))
		jobs.GET("/:id", wrap(h.getJob))
		jobs.POST("/:id/heartbeat", h.workerAuth(true), wrap(h.heartbeatJob))
		jobs.POST("/:id/complete", h.workerAuth(true), wrap(h.completeJob))
		jobs.POST("/:id/fail", h.workerAuth(true), wrap(h.failJob))
		jobs.POST("/:id/cancel", wrap(h.cancelJob))
		jobs.POST("/:id/cancel/ack", h.workerAuth(true), wrap(h.ackCancelJob))
		jobs.POST("/:id/artifacts/upload", h.workerAuth(true), wrap(h.uploadArtifact))
		jobs.GET("/:id/artifacts", wrap(h.listArtifacts))
		jobs.GET("/:id/artifacts/:artifactId/download", h.downloadArtifact)
		jobs.POST("/:id/events", wrap(h.appendJobEvent))
		jobs.GET("/:id/events", wrap(h.listJobEvents))
	}

	queue.GET("/telemetry/migration", wrap(h.migrationTelemetry))

	tokens := queue.Group("/workers/tokens")
	{
		tokens.POST("", wrap(h.mintWorkerToken))
		tokens.GET("", wrap(h.listWorkerTokens))
		tokens.POST("/:id/revoke", wrap(h.revokeWorkerToken))
	}
}

func initSystemRouters(e *gin.Engine, h *Handler) {
	pause := e.Group("/system/worker-pause", requireOperator())
	{
		pause.GET("", wrap(h.getWorkerPause))
		pause.POST("", wrap(h.setWorkerPause))
	}
}

func initTaskRunRouters(e *gin.Engine, h *Handler) {
	runs := e.Group("/task-runs/:id")

	live := runs.Group("/live-session")
	{
		live.POST("", wrap(h.createLiveSession))
		live.GET("", wrap(h.getLiveSession))
		live.POST("/grant-write", wrap(h.grantLiveSessionWrite))
		live.POST("/revoke", wrap(h.revokeLiveSessionWrite))
		live.POST("/report", h.workerAuth(true), wrap(h.reportLiveSession))
		live.POST("/heartbeat", h.workerAuth(true), wrap(h.heartbeatLiveSession))
	}

	runs.POST("/control", wrap(h.applyControlAction))
	runs.GET("/control", wrap(h.listControlEvents))
	runs.POST("/operator-messages", wrap(h.sendOperatorMessage))
}

func initProposalRouters(e *gin.Engine, h *Handler) {
	group := e.Group("/proposals")
	{
		group.POST("", wrap(h.createProposal))
		group.GET("", wrap(h.listProposals))
		group.GET("/:id", wrap(h.getProposal))
		group.POST("/:id/promote", wrap(h.promoteProposal))
		group.POST("/:id/dismiss", wrap(h.dismissProposal))
		group.POST("/:id/snooze", wrap(h.snoozeProposal))
		group.POST("/:id/unsnooze", wrap(h.unsnoozeProposal))
		group.POST("/:id/priority", wrap(h.updateProposalPriority))
	}
}

func initManifestRouters(e *gin.Engine, h *Handler) {
	group := e.Group("/manifests")
	{
		group.GET("", wrap(h.listManifests))
		group.PUT("/:name", wrap(h.upsertManifest))
		group.GET("/:name", wrap(h.getManifest))
		group.POST("/:name/runs", wrap(h.submitManifestRun))
	}
}

func initMCPRouters(e *gin.Engine, h *Handler) {
	group := e.Group("/mcp", h.workerAuth(false))
	{
		group.POST("", h.handleMCP)
		group.GET("/tools", wrap(h.listMCPTools))
		group.POST("/tools/call", wrap(h.callMCPTool))
	}
}

func initOpsRouters(e *gin.Engine, h *Handler) {
	e.GET("/healthz", h.healthz)
	e.GET("/readyz", h.readyz)
	e.GET("/metrics", gin.WrapH(metrics.Handler()))
}

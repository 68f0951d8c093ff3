package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/moonmind/moonmind/pkg/errors"
	"github.com/moonmind/moonmind/pkg/metrics"
)

// requestLogger emits one structured line per request. 5xx responses log
// at error level and carry the attached cause.
func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		event := logger.Info()
		if status >= http.StatusInternalServerError {
			event = logger.Error()
		}
		if last := c.Errors.Last(); last != nil {
			event = event.Err(last.Err)
		}
		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Str("client", c.ClientIP()).
			Msg("http request")
	}
}

// observeRequests records request counters keyed by route template rather
// than raw path so label cardinality stays bounded.
func observeRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method
		metrics.APIRequestsTotal.WithLabelValues(method, route,
			strconv.Itoa(c.Writer.Status())).Inc()
		metrics.APIRequestDuration.WithLabelValues(method, route).
			Observe(time.Since(start).Seconds())
	}
}

// recovery converts handler panics into the standard envelope instead of
// gin's bare 500.
func recovery(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error().
					Interface("panic", r).
					Str("path", c.Request.URL.Path).
					Msg("handler panicked")
				abortWithError(c, errors.NewInternal(fmt.Errorf("panic: %v", r)))
			}
		}()
		c.Next()
	}
}

// workerAuth resolves the bearer token into a worker policy for the rest
// of the chain. Required routes reject missing and invalid tokens with
// 401. Optional routes (the MCP surface, where per-tool scopes gate
// instead) pass through without a policy when no token is presented but
// still reject a bad one.
func (h *Handler) workerAuth(required bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderWorkerToken))
		if raw == "" {
			if required {
				abortWithError(c, errors.NewAuthentication("worker token required"))
			}
			return
		}
		policy, err := h.queue.ResolveWorkerToken(c.Request.Context(), raw)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.Set(ctxWorkerPolicy, policy)
	}
}

// requireOperator gates pause control behind the proxy-asserted operator
// header.
func requireOperator() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !strings.EqualFold(strings.TrimSpace(c.GetHeader(HeaderOperator)), "true") {
			abortWithError(c, errors.NewPauseForbidden("operator access required"))
		}
	}
}

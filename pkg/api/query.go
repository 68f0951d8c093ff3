package api

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/moonmind/moonmind/pkg/errors"
)

// parseIntQuery reads an integer query parameter, falling back when the
// parameter is absent. Range checks stay in the services.
func parseIntQuery(c *gin.Context, name string, fallback int) (int, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.NewValidationf(errors.CodeInvalidQueuePayload,
			"%s must be an integer; got %q", name, raw)
	}
	return n, nil
}

// parseTimeQuery reads an RFC 3339 timestamp query parameter.
func parseTimeQuery(c *gin.Context, name string) (*time.Time, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, errors.NewValidationf(errors.CodeInvalidQueuePayload,
			"%s must be an RFC 3339 timestamp; got %q", name, raw)
	}
	return &t, nil
}

// stringQuery reads a trimmed query parameter as a nullable string.
func stringQuery(c *gin.Context, name string) *string {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil
	}
	return &raw
}

// boolQuery reads a boolean query parameter, treating absence as false.
func boolQuery(c *gin.Context, name string) (bool, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, errors.NewValidationf(errors.CodeInvalidQueuePayload,
			"%s must be a boolean; got %q", name, raw)
	}
	return v, nil
}

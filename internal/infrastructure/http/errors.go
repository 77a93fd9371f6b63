package http

import (
	"errors"
	"net/http"

	"eventsync/internal/infrastructure/eventbus"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// writeError maps service errors to a status code. Publish failures are
// reported as 503 since the caller may retry them.
func writeError(c *gin.Context, err error) {
	var pe *eventbus.PublishError
	if errors.As(err, &pe) {
		status := http.StatusServiceUnavailable
		if pe.Reason == eventbus.ReasonInvalidEnvelope || pe.Reason == eventbus.ReasonUnknownTopic {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error(), "reason": pe.Reason})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}

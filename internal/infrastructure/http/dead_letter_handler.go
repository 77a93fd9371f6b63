package http

import (
	"errors"
	"net/http"
	"strconv"

	"eventsync/internal/application/deadletter"
	"eventsync/internal/infrastructure/dlq"

	"github.com/gin-gonic/gin"
)

type DeadLetterHandler struct {
	service *deadletter.Service
}

func NewDeadLetterHandler(s *deadletter.Service) *DeadLetterHandler {
	return &DeadLetterHandler{
		service: s,
	}
}

func (h *DeadLetterHandler) Register(r gin.IRouter) {
	g := r.Group("/dead-letters")
	g.GET("", h.List)
	g.POST("/:id/resolve", h.Resolve)
	g.POST("/replay", h.Replay)
}

func (h *DeadLetterHandler) List(c *gin.Context) {
	limit, ok := limitQuery(c)
	if !ok {
		return
	}

	entries, err := h.service.List(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"dead_letters": entries, "count": len(entries)})
}

func (h *DeadLetterHandler) Resolve(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	if err := h.service.Resolve(c.Request.Context(), id); err != nil {
		if errors.Is(err, dlq.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "dead letter not found"})
			return
		}
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"dead_letter_id": id, "resolved": true})
}

func (h *DeadLetterHandler) Replay(c *gin.Context) {
	limit, ok := limitQuery(c)
	if !ok {
		return
	}

	res, err := h.service.Replay(c.Request.Context(), limit)
	if errors.Is(err, deadletter.ErrReplayUnavailable) {
		c.JSON(http.StatusNotImplemented, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "replayed": res.Replayed, "skipped": res.Skipped})
		return
	}

	c.JSON(http.StatusOK, gin.H{"replayed": res.Replayed, "skipped": res.Skipped})
}

func limitQuery(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
		return 0, false
	}
	return limit, true
}

package http

import (
	"net/http"

	"eventsync/internal/common/health"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Routes is implemented by every handler that contributes endpoints to the
// ops router.
type Routes interface {
	Register(r gin.IRouter)
}

// NewRouter builds the ops router of a service. /health and /metrics are
// always present; the remaining endpoints come from routes.
func NewRouter(checker health.HealthChecker, gatherer prometheus.Gatherer, routes ...Routes) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		status := checker.Check(c.Request.Context())
		if status.Status != health.StatusHealthy {
			c.JSON(http.StatusServiceUnavailable, status)
			return
		}
		c.JSON(http.StatusOK, status)
	})

	if gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	internal := router.Group("/internal")
	for _, r := range routes {
		r.Register(internal)
	}

	return router
}

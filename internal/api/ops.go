package api

import (
	"context"
	"net/http"
	"time"

	"UD_milestone_rewards/pkg/logger"
	"go.uber.org/zap"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

type opsRoutes struct {
	checks map[string]HealthCheck
}

// NewOpsRoutes mounts /health and /metrics at the router root.
func NewOpsRoutes(router gin.IRoutes, gatherer prometheus.Gatherer, checks map[string]HealthCheck) {
	r := &opsRoutes{checks: checks}

	router.GET("/health", r.Health)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
}

func (r *opsRoutes) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	results := gin.H{}
	for name, check := range r.checks {
		if err := check(ctx); err != nil {
			logger.Logger().Warn("health check failed", zap.String("dependency", name), zap.Error(err))
			results[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}

	c.JSON(status, gin.H{"status": http.StatusText(status), "checks": results})
}

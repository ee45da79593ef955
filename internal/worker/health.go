package worker

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthHandler serves GET /health: 200 when every instance is connected, else 503
func HealthHandler(w *Worker, service string) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := http.StatusOK
		state := "healthy"
		if !w.Healthy() {
			status = http.StatusServiceUnavailable
			state = "unhealthy"
		}

		c.JSON(status, gin.H{
			"status":    state,
			"service":   service,
			"worker_id": w.ID(),
			"instances": w.Status(),
		})
	}
}

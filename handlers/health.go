package handlers

import (
	"net/http"

	"bidmarket/utils"

	"github.com/gin-gonic/gin"
)

// HealthHandler serves the last health snapshot; it never pings on the request path.
func HealthHandler(m *utils.HealthMonitor) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := m.Status()
		code := http.StatusOK
		if !status.Healthy && !status.CheckedAt.IsZero() {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, status)
	}
}

package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Version is reported by the ping endpoint.
const Version = "0.1.0"

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "agentlink",
		"version": Version,
	})
}

package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const redacted = "********"

// handleGetConfig returns the configuration with secrets masked.
func (s *Server) handleGetConfig(c *gin.Context) {
	server := s.cfg.GetServer()
	if server.Password != "" {
		server.Password = redacted
	}

	apiCfg := s.cfg.API
	if apiCfg.Token != "" {
		apiCfg.Token = redacted
	}

	c.JSON(http.StatusOK, gin.H{
		"server":     server,
		"connection": s.cfg.GetConnection(),
		"api":        apiCfg,
		"mqtt":       s.cfg.MQTT,
		"journal":    s.cfg.Journal,
		"logging":    s.cfg.Logging,
	})
}

package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/voxel-agent/agentlink/internal/util"
)

const maxHistoryLimit = 500

// handleStatus returns the connection status.
func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.commander.Status())
}

// handleSystem returns host and process information.
func (s *Server) handleSystem(c *gin.Context) {
	resp := gin.H{"system": util.GetSystemInfo()}
	if usage, err := util.GetProcessUsage(); err == nil {
		resp["process"] = usage
	} else {
		resp["process_error"] = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

// handleChatHistory returns journaled chat lines, newest first.
func (s *Server) handleChatHistory(c *gin.Context) {
	if s.history == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "journal is disabled"})
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		if n > maxHistoryLimit {
			n = maxHistoryLimit
		}
		limit = n
	}

	records, err := s.history.RecentChat(limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to read chat history")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"messages": records,
		"count":    len(records),
	})
}

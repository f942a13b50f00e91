package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/voxel-agent/agentlink/internal/connector"
)

type chatRequest struct {
	Text string `json:"text" binding:"required"`
}

type moveRequest struct {
	X     *float32 `json:"x" binding:"required"`
	Y     *float32 `json:"y" binding:"required"`
	Z     *float32 `json:"z" binding:"required"`
	Pitch *float32 `json:"pitch"`
	Yaw   *float32 `json:"yaw"`
}

type blockRequest struct {
	X    *int32 `json:"x" binding:"required"`
	Y    *int32 `json:"y" binding:"required"`
	Z    *int32 `json:"z" binding:"required"`
	Item uint16 `json:"item"`
}

// handleChat sends a chat message.
func (s *Server) handleChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.commander.SendChatMessage(req.Text); err != nil {
		s.commandError(c, "chat", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "sent"})
}

// handleMove moves the player.
func (s *Server) handleMove(c *gin.Context) {
	var req moveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var opts []connector.LookOption
	if req.Pitch != nil {
		opts = append(opts, connector.WithPitch(*req.Pitch))
	}
	if req.Yaw != nil {
		opts = append(opts, connector.WithYaw(*req.Yaw))
	}

	if err := s.commander.MoveTo(*req.X, *req.Y, *req.Z, opts...); err != nil {
		s.commandError(c, "move", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "moved", "player": s.commander.Player()})
}

// handleDig digs the block at a position.
func (s *Server) handleDig(c *gin.Context) {
	var req blockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.commander.DigBlock(*req.X, *req.Y, *req.Z); err != nil {
		s.commandError(c, "dig", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "sent"})
}

// handlePlace places an item at a position.
func (s *Server) handlePlace(c *gin.Context) {
	var req blockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.commander.PlaceBlock(*req.X, *req.Y, *req.Z, req.Item); err != nil {
		s.commandError(c, "place", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "sent"})
}

// handleDisconnect ends the session.
func (s *Server) handleDisconnect(c *gin.Context) {
	if err := s.commander.Disconnect(); err != nil {
		s.commandError(c, "disconnect", err)
		return
	}
	s.logger.Info().Str("client_ip", c.ClientIP()).Msg("API: disconnect requested")
	c.JSON(http.StatusOK, gin.H{"status": "disconnected"})
}

// commandError maps a command failure to an HTTP status.
func (s *Server) commandError(c *gin.Context, command string, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, connector.ErrNotConnected) {
		status = http.StatusConflict
	} else {
		s.logger.Error().Err(err).Str("command", command).Msg("API: command failed")
	}
	c.JSON(status, gin.H{"error": err.Error(), "command": command})
}

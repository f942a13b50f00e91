package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/voxel-agent/agentlink/internal/events"
)

const (
	streamBuffer     = 64
	streamWriteWait  = 5 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = streamPongWait * 9 / 10
)

func (s *Server) upgrader() websocket.Upgrader {
	allowed := s.cfg.API.AllowedOrigins
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, o := range allowed {
				if o == "*" || strings.EqualFold(o, origin) {
					return true
				}
			}
			return false
		},
	}
}

// handleEvents streams bus events as JSON over a websocket. The optional
// types query parameter is a comma separated list of event types.
func (s *Server) handleEvents(c *gin.Context) {
	if s.eventBus == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event stream unavailable"})
		return
	}

	filter := parseTypes(c.Query("types"))

	up := s.upgrader()
	ws, err := up.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	stream, cancel := s.eventBus.Listen(streamBuffer)
	s.logger.Debug().Str("client_ip", c.ClientIP()).Msg("event stream opened")

	go s.readPump(ws, cancel)
	s.writePump(ws, stream, filter)
	cancel()

	s.logger.Debug().Str("client_ip", c.ClientIP()).Msg("event stream closed")
}

// readPump discards client input and cancels the stream when the peer goes away.
func (s *Server) readPump(ws *websocket.Conn, cancel func()) {
	defer cancel()
	ws.SetReadLimit(4096)
	ws.SetReadDeadline(time.Now().Add(streamPongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(streamPongWait))
		return nil
	})
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) writePump(ws *websocket.Conn, stream <-chan events.Event, filter map[events.EventType]bool) {
	ticker := time.NewTicker(streamPingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case ev, ok := <-stream:
			ws.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if !ok {
				ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
				return
			}
			if filter != nil && !filter[ev.Type] {
				continue
			}
			if err := ws.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func parseTypes(raw string) map[events.EventType]bool {
	if raw == "" {
		return nil
	}
	out := make(map[events.EventType]bool)
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out[events.EventType(t)] = true
		}
	}
	return out
}

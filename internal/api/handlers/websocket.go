package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/jimmy058910/replitballgame-sub015/internal/api/middleware"
	"github.com/jimmy058910/replitballgame-sub015/internal/services"
)

type WebSocketHandler struct {
	hub      *services.WebSocketHub
	upgrader websocket.Upgrader
	log      *logrus.Logger
}

func NewWebSocketHandler(hub *services.WebSocketHub, log *logrus.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origin enforcement happens in the CORS layer; the hub serves
			// public read-only streams.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log: log,
	}
}

// Handle upgrades the connection and hands it to the hub. The client picks
// topics and playback preferences over the socket itself.
func (h *WebSocketHandler) Handle(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	teamID, _ := middleware.TeamID(c)
	client := services.NewClient(h.hub, conn, teamID)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}

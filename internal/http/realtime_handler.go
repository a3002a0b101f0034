package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"minichat/internal/domain"
	"minichat/internal/realtime"
	"minichat/internal/service"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Frame es el mensaje que viaja por el socket del feed de cambios.
type Frame struct {
	Type  string `json:"type"`
	Table string `json:"table"`
	Event string `json:"event,omitempty"`
}

const (
	FrameSubscribed = "subscribed"
	FrameChanged    = "changed"
)

// RealtimeHandler publica el feed de cambios por WebSocket.
type RealtimeHandler struct {
	logger   *zap.Logger
	hub      *realtime.Hub
	jwtServ  *service.JWTService
	upgrader websocket.Upgrader
}

// NewRealtimeHandler crea el handler; allowedOrigins sigue el formato de
// ALLOWED_ORIGINS. Los clientes que no mandan Origin (no navegadores) pasan.
func NewRealtimeHandler(logger *zap.Logger, hub *realtime.Hub, jwtServ *service.JWTService, allowedOrigins string) *RealtimeHandler {
	allowOrigin := originMatcher(allowedOrigins)
	return &RealtimeHandler{
		logger:  logger,
		hub:     hub,
		jwtServ: jwtServ,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowOrigin(origin)
			},
		},
	}
}

// Subscribe maneja GET /realtime/:table?token=...&events=INSERT,DELETE.
func (h *RealtimeHandler) Subscribe(c *gin.Context) {
	table := c.Param("table")
	if table != domain.MessagesTable {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown table"})
		return
	}

	token := c.Query("token")
	if token == "" {
		token, _ = bearerToken(c.GetHeader("Authorization"))
	}
	claims, err := h.jwtServ.ParseAccessToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	sub := h.hub.Subscribe(table, parseEvents(c.Query("events")))
	h.logger.Info("feed subscribed",
		zap.String("subscription_id", sub.ID),
		zap.String("user_id", claims.UserID),
		zap.String("table", table),
	)

	done := make(chan struct{})
	go readPump(conn, done)
	h.writePump(conn, sub, done)

	h.logger.Info("feed unsubscribed", zap.String("subscription_id", sub.ID))
}

func (h *RealtimeHandler) writePump(conn *websocket.Conn, sub *realtime.Subscription, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		sub.Close()
		_ = conn.Close()
	}()

	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(Frame{Type: FrameSubscribed, Table: sub.Table()}); err != nil {
		return
	}

	for {
		select {
		case ev, ok := <-sub.Events():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(Frame{Type: FrameChanged, Table: ev.Table, Event: ev.Event}); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// readPump solo procesa control frames; cualquier error cierra la suscripcion.
func readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	conn.SetReadLimit(1024)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func parseEvents(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{domain.EventAll}
	}
	var events []string
	for _, ev := range strings.Split(raw, ",") {
		if ev = strings.ToUpper(strings.TrimSpace(ev)); ev != "" {
			events = append(events, ev)
		}
	}
	return events
}

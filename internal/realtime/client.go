package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/eventpass/streamgate/internal/middleware"
	"github.com/eventpass/streamgate/pkg/response"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // viewers are authenticated by token and ticket, not origin
	},
}

// WSMessage is the WebSocket message envelope.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// TokenValidator returns the user ID carried by a bearer token.
type TokenValidator func(token string) (uuid.UUID, error)

// TicketAuthorizer resolves the session a ticket unlocks for a user.
type TicketAuthorizer interface {
	Authorize(ctx context.Context, ticketID, userID uuid.UUID) (uuid.UUID, error)
}

// Client represents a single viewer connection in a session room.
type Client struct {
	ID        string
	SessionID uuid.UUID
	UserID    uuid.UUID
	hub       *Hub
	conn      *websocket.Conn
	send      chan WSMessage
	done      chan struct{}
	logger    *zap.Logger
}

// ServeWs handles GET /ws?ticket_id=&token= (or the token cookie), upgrades the connection and runs the client loop.
func ServeWs(hub *Hub, logger *zap.Logger, validate TokenValidator, authz TicketAuthorizer) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		ticketIDStr := c.Query("ticket_id")
		token := c.Query("token")
		if token == "" {
			// browsers cannot set headers on a websocket handshake; the page sends the cookie
			token, _ = middleware.BearerToken(c)
		}
		if ticketIDStr == "" || token == "" {
			response.BadRequest(c, "ticket_id and token required")
			return
		}
		ticketID, err := uuid.Parse(ticketIDStr)
		if err != nil {
			response.BadRequest(c, "invalid ticket_id")
			return
		}
		userID, err := validate(token)
		if err != nil {
			response.Unauthorized(c, "invalid token")
			return
		}
		sessionID, err := authz.Authorize(c.Request.Context(), ticketID, userID)
		if err != nil {
			response.Forbidden(c, err.Error())
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := &Client{
			ID:        uuid.New().String(),
			SessionID: sessionID,
			UserID:    userID,
			hub:       hub,
			conn:      conn,
			send:      make(chan WSMessage, 64),
			done:      make(chan struct{}),
			logger:    logger,
		}
		hub.Register(client)
		go client.writePump()
		client.readPump()
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		close(c.done)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		return nil
	})

	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			break
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))

		switch msg.Event {
		case "join":
			c.hub.Broadcast(c.SessionID, EventAudienceCount, map[string]int{
				"count": c.hub.AudienceCount(c.SessionID),
			})
		default:
			// viewers only listen
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

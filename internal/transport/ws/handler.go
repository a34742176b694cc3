package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"reviewlens/internal/logger"
	"reviewlens/internal/model"
	"reviewlens/internal/service"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	turnTimeout    = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // the session token is checked before upgrading
	},
}

// Dialogue is the part of the chat service driven over a socket. Replies
// reach the client through the hub broadcast.
type Dialogue interface {
	Step(ctx context.Context, sessionID, message, selectedFactor string) (*model.BotTurn, error)
	Finalize(ctx context.Context, sessionID string) (*model.BotTurn, error)
}

// stepPayload is the payload of a client "message" envelope
type stepPayload struct {
	Message        string `json:"message"`
	SelectedFactor string `json:"selectedFactor,omitempty"`
}

// Handler handles WebSocket connections
type Handler struct {
	hub      *Hub
	authSvc  *service.AuthService
	dialogue Dialogue
	log      *logger.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(hub *Hub, authSvc *service.AuthService, dialogue Dialogue, log *logger.Logger) *Handler {
	return &Handler{
		hub:      hub,
		authSvc:  authSvc,
		dialogue: dialogue,
		log:      logger.OrNop(log),
	}
}

// SessionWS handles GET /v1/ws/sessions/{id}
func (h *Handler) SessionWS(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	token := r.URL.Query().Get("token")

	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	claims, err := h.authSvc.ValidateSessionToken(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	if claims.SessionID != sessionID {
		http.Error(w, "token not valid for this session", http.StatusForbidden)
		return
	}

	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "session", sessionID, "error", err)
		return
	}

	conn := &Connection{
		SessionID: sessionID,
		Send:      make(chan []byte, 256),
		Hub:       h.hub,
	}

	h.hub.Register(conn)

	go h.writePump(wsConn, conn)
	go h.readPump(wsConn, conn)
}

func (h *Handler) readPump(wsConn *websocket.Conn, conn *Connection) {
	defer func() {
		h.hub.Unregister(conn)
		wsConn.Close()
	}()

	wsConn.SetReadLimit(maxMessageSize)
	wsConn.SetReadDeadline(time.Now().Add(pongWait))
	wsConn.SetPongHandler(func(string) error {
		wsConn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := wsConn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Warn("websocket read failed", "session", conn.SessionID, "error", err)
			}
			break
		}
		h.handleMessage(conn, data)
	}
}

func (h *Handler) handleMessage(conn *Connection, data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		h.sendError(conn, "invalid message")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), turnTimeout)
	defer cancel()

	switch msg.Type {
	case MsgUserMessage:
		var p stepPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			h.sendError(conn, "invalid message payload")
			return
		}
		if _, err := h.dialogue.Step(ctx, conn.SessionID, p.Message, p.SelectedFactor); err != nil {
			h.sendError(conn, err.Error())
		}
	case MsgFinalize:
		if _, err := h.dialogue.Finalize(ctx, conn.SessionID); err != nil {
			h.sendError(conn, err.Error())
		}
	default:
		h.sendError(conn, "unknown message type: "+string(msg.Type))
	}
}

// sendError replies to the one connection that sent a bad request
func (h *Handler) sendError(conn *Connection, message string) {
	h.hub.SendTo(conn, MsgError, map[string]string{"error": message})
}

func (h *Handler) writePump(wsConn *websocket.Conn, conn *Connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		wsConn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			wsConn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				wsConn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := wsConn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			wsConn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := wsConn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

package collab

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"quill/api/internal/auth"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 1 << 20
	sendBuffer     = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// inboundMessage is the document-scoped envelope clients send. Edit and save
// payloads historically used either "content" or "text"; both are accepted.
type inboundMessage struct {
	Type       string          `json:"type"`
	DocumentID int64           `json:"documentId"`
	Content    string          `json:"content"`
	Text       string          `json:"text"`
	Position   json.RawMessage `json:"position"`
}

func (m inboundMessage) body() string {
	if m.Content != "" {
		return m.Content
	}
	return m.Text
}

// WSHandler upgrades connections and pumps messages between the transport and
// the controller. The principal is resolved once at upgrade time; connections
// without a valid token are refused without a payload.
type WSHandler struct {
	controller *Controller
	secret     []byte
}

func NewWSHandler(controller *Controller, secret []byte) *WSHandler {
	return &WSHandler{controller: controller, secret: secret}
}

type client struct {
	sessionID string
	userID    int64
	conn      *websocket.Conn
	send      chan []byte
}

// Send queues the event for delivery. Slow consumers have events dropped
// rather than stalling broadcast for everyone else.
func (c *client) Send(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Printf("marshal event: %v", err)
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	claims, err := auth.ParseToken(h.secret, r.URL.Query().Get("token"))
	if err != nil {
		// Unrecognized principal: refuse without a body.
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade: %v", err)
		return
	}

	c := &client{
		sessionID: uuid.New().String(),
		userID:    claims.UserID,
		conn:      conn,
		send:      make(chan []byte, sendBuffer),
	}

	go h.writePump(c)
	h.readPump(c)
}

func (h *WSHandler) readPump(c *client) {
	defer func() {
		if err := h.controller.Disconnect(context.Background(), c.sessionID); err != nil {
			log.Printf("disconnect cleanup: session=%s: %v", c.sessionID, err)
		}
		close(c.send)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("websocket read: session=%s: %v", c.sessionID, err)
			}
			return
		}

		var msg inboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("malformed message: session=%s: %v", c.sessionID, err)
			continue
		}
		h.dispatch(c, msg)
	}
}

// dispatch runs one inbound message to completion. Handler errors are scoped
// to the message: logged, never fatal to the connection or the process.
func (h *WSHandler) dispatch(c *client, msg inboundMessage) {
	ctx := context.Background()

	var err error
	switch msg.Type {
	case "join":
		err = h.controller.Join(ctx, c.sessionID, c.userID, msg.DocumentID, c)
	case "leave":
		err = h.controller.Leave(ctx, c.sessionID)
	case "edit", "draft":
		err = h.controller.DraftEdit(ctx, c.userID, msg.DocumentID, msg.body())
	case "save":
		err = h.controller.Save(ctx, c.sessionID, c.userID, msg.DocumentID, msg.body())
	case "cursor":
		h.controller.Cursor(msg.DocumentID, c.userID, msg.Position)
	case "chat":
		err = h.controller.Chat(ctx, msg.DocumentID, c.userID, msg.body())
	case "online-users":
		err = h.controller.OnlineUsers(ctx, c.sessionID, msg.DocumentID)
	default:
		log.Printf("unknown message type %q: session=%s", msg.Type, c.sessionID)
	}
	if err != nil {
		log.Printf("handle %s: session=%s doc=%d: %v", msg.Type, c.sessionID, msg.DocumentID, err)
	}
}

func (h *WSHandler) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

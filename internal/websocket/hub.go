package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// TopicSession - сообщения чата, смена фазы и снимка сессии.
	TopicSession = "session"
	// TopicTasks - статусы асинхронных задач.
	TopicTasks = "tasks"

	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 512
	sendBuffer     = 256
)

// Hub управляет WebSocket-соединениями клиентов сессий.
type Hub struct {
	clients    map[uuid.UUID]*Client
	register   chan *Client
	unregister chan *Client
	broadcast  chan Message
	done       chan struct{}
	upgrader   websocket.Upgrader
	logger     *zap.Logger
}

// Client - одно WebSocket-соединение. SessionID - сессия, к которой привязан клиент.
type Client struct {
	ID        uuid.UUID
	SessionID string
	conn      *websocket.Conn
	hub       *Hub
	send      chan []byte
	mu        sync.RWMutex
	topics    map[string]bool
}

// Message - сообщение для отправки клиенту.
type Message struct {
	Type    string      `json:"type"`
	Topic   string      `json:"topic"`
	Payload interface{} `json:"payload"`
	Target  string      `json:"target,omitempty"` // ID сессии или пусто для рассылки всем
}

// NewHub создает хаб. allowedOrigins пустой - разрешены любые источники.
func NewHub(allowedOrigins []string, logger *zap.Logger) *Hub {
	h := &Hub{
		clients:    make(map[uuid.UUID]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan Message, sendBuffer),
		done:       make(chan struct{}),
		logger:     logger.Named("WebSocketHub"),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return len(allowedOrigins) == 0 || origin == "" || slices.Contains(allowedOrigins, origin)
		},
	}
	return h
}

// Run обрабатывает регистрацию и рассылку до отмены ctx.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for id, client := range h.clients {
				close(client.send)
				delete(h.clients, id)
			}
			h.logger.Info("WebSocket hub stopped")
			return

		case client := <-h.register:
			h.clients[client.ID] = client
			h.logger.Debug("Client connected", zap.String("clientID", client.ID.String()), zap.String("sessionID", client.SessionID))

		case client := <-h.unregister:
			if _, ok := h.clients[client.ID]; ok {
				close(client.send)
				delete(h.clients, client.ID)
				h.logger.Debug("Client disconnected", zap.String("clientID", client.ID.String()))
			}

		case message := <-h.broadcast:
			data, err := json.Marshal(message)
			if err != nil {
				h.logger.Error("Failed to marshal websocket message", zap.String("type", message.Type), zap.Error(err))
				continue
			}
			for id, client := range h.clients {
				if message.Target != "" && client.SessionID != message.Target {
					continue
				}
				if !client.IsSubscribed(message.Topic) {
					continue
				}
				select {
				case client.send <- data:
				default:
					// Медленный клиент отключается
					close(client.send)
					delete(h.clients, id)
					h.logger.Warn("Dropping slow websocket client", zap.String("clientID", id.String()))
				}
			}
		}
	}
}

func (h *Hub) enqueue(message Message) {
	select {
	case h.broadcast <- message:
	case <-h.done:
	default:
		h.logger.Warn("WebSocket broadcast queue is full, message dropped", zap.String("type", message.Type))
	}
}

// SendToUser отправляет сообщение клиентам одной сессии. Не блокирует вызывающего.
func (h *Hub) SendToUser(sessionID, messageType, topic string, payload interface{}) {
	h.enqueue(Message{Type: messageType, Topic: topic, Payload: payload, Target: sessionID})
}

// Broadcast отправляет сообщение всем клиентам, подписанным на тему.
func (h *Hub) Broadcast(messageType, topic string, payload interface{}) {
	h.enqueue(Message{Type: messageType, Topic: topic, Payload: payload})
}

// Handler - gin обработчик GET /ws?session_id=...
func (h *Hub) Handler(c *gin.Context) {
	sessionID := c.Query("session_id")
	if sessionID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "session_id is required"})
		return
	}
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		ID:        uuid.New(),
		SessionID: sessionID,
		conn:      conn,
		hub:       h,
		send:      make(chan []byte, sendBuffer),
		topics:    map[string]bool{TopicSession: true, TopicTasks: true},
	}
	select {
	case h.register <- client:
	case <-h.done:
		_ = conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("WebSocket read error", zap.String("clientID", c.ID.String()), zap.Error(err))
			}
			return
		}

		var cmd struct {
			Action string `json:"action"`
			Topic  string `json:"topic"`
		}
		if err := json.Unmarshal(message, &cmd); err != nil {
			c.hub.logger.Debug("Invalid websocket command", zap.Error(err))
			continue
		}
		switch cmd.Action {
		case "subscribe":
			c.Subscribe(cmd.Topic)
		case "unsubscribe":
			c.Unsubscribe(cmd.Topic)
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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

// Subscribe подписывает клиента на тему
func (c *Client) Subscribe(topic string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.topics[topic] = true
}

// Unsubscribe отписывает клиента от темы
func (c *Client) Unsubscribe(topic string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.topics, topic)
}

// IsSubscribed проверяет, подписан ли клиент на тему
func (c *Client) IsSubscribed(topic string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.topics[topic]
}

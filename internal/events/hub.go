package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Типы событий, которые получают клиенты сессии.
const (
	TypeStateChanged    = "state.changed"
	TypeMessageAppended = "message.appended"
	TypeStoryReplaced   = "story.replaced"
	TypeVideoStatus     = "video.status"
	TypeVideoReady      = "video.ready"
	TypeAlert           = "alert"
	TypeAudioPlay       = "audio.play"
	TypeAudioStop       = "audio.stop"
	TypeSpeechSpeak     = "speech.speak"
	TypeSpeechCancel    = "speech.cancel"
	TypeTaskUpdate      = "task.update"
)

const (
	// Время, разрешенное для записи сообщения клиенту.
	writeWait = 10 * time.Second
	// Время, разрешенное для чтения следующего pong сообщения от клиента.
	pongWait = 60 * time.Second
	// Отправлять пинги клиенту с этим периодом. Должно быть меньше pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Максимальный размер сообщения, разрешенный от клиента.
	maxMessageSize = 512
	// Размер очереди отправки одного клиента.
	sendBuffer = 64
)

var (
	wsConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "story_canvas_ws_connections",
		Help: "Open WebSocket connections.",
	})
	wsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "story_canvas_ws_slow_clients_dropped_total",
		Help: "WebSocket clients disconnected because their send queue overflowed.",
	})
)

// Event - сообщение, которое уходит в WebSocket.
type Event struct {
	Type      string      `json:"type"`
	SessionID string      `json:"session_id"`
	Payload   interface{} `json:"payload,omitempty"`
	At        time.Time   `json:"at"`
}

// Client представляет собой одно WebSocket соединение сессии.
type Client struct {
	ID        string
	SessionID string
	conn      *websocket.Conn
	send      chan []byte
}

// Hub рассылает события всем соединениям сессии.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]map[*Client]struct{}
	logger   *zap.Logger
}

// NewHub создает пустой Hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		sessions: make(map[string]map[*Client]struct{}),
		logger:   logger.Named("EventHub"),
	}
}

// Publish отправляет событие всем клиентам сессии. Не блокируется:
// клиент с переполненной очередью отключается.
func (h *Hub) Publish(sessionID, eventType string, payload interface{}) {
	data, err := json.Marshal(Event{Type: eventType, SessionID: sessionID, Payload: payload, At: time.Now().UTC()})
	if err != nil {
		h.logger.Error("Failed to marshal event", zap.String("type", eventType), zap.Error(err))
		return
	}

	var slow []*Client
	h.mu.RLock()
	for c := range h.sessions[sessionID] {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn("Send queue overflow, dropping client", zap.String("session_id", sessionID), zap.String("client_id", c.ID))
		wsDropped.Inc()
		h.unregister(c)
	}
}

// ClientCount возвращает число подключенных клиентов сессии.
func (h *Hub) ClientCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}

// CloseSession отключает всех клиентов сессии.
func (h *Hub) CloseSession(sessionID string) {
	h.mu.Lock()
	clients := h.sessions[sessionID]
	delete(h.sessions, sessionID)
	for c := range clients {
		close(c.send)
	}
	h.mu.Unlock()

	if len(clients) > 0 {
		wsConnections.Sub(float64(len(clients)))
		h.logger.Info("Session connections closed", zap.String("session_id", sessionID), zap.Int("clients", len(clients)))
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	if h.sessions[c.SessionID] == nil {
		h.sessions[c.SessionID] = make(map[*Client]struct{})
	}
	h.sessions[c.SessionID][c] = struct{}{}
	h.mu.Unlock()
	wsConnections.Inc()
}

// unregister удаляет клиента. Канал send закрывает только тот, кто удалил клиента из карты.
func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	clients, ok := h.sessions[c.SessionID]
	if ok {
		if _, present := clients[c]; present {
			delete(clients, c)
			close(c.send)
			if len(clients) == 0 {
				delete(h.sessions, c.SessionID)
			}
			wsConnections.Dec()
		}
	}
	h.mu.Unlock()
}

// Serve регистрирует уже установленное соединение и запускает его read/write циклы.
func (h *Hub) Serve(conn *websocket.Conn, sessionID string) *Client {
	c := &Client{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		conn:      conn,
		send:      make(chan []byte, sendBuffer),
	}
	h.register(c)

	log := h.logger.With(zap.String("session_id", sessionID), zap.String("client_id", c.ID))
	log.Info("WebSocket connection established")

	go c.writePump(log)
	go c.readPump(h, log)
	return c
}

// readPump читает соединение только ради pong и обнаружения закрытия.
func (c *Client) readPump(h *Hub, log *zap.Logger) {
	defer func() {
		h.unregister(c)
		_ = c.conn.Close()
		log.Debug("readPump finished")
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn("WebSocket read error", zap.Error(err))
			} else {
				log.Info("WebSocket connection closed")
			}
			return
		}
		// Клиент ничего не присылает, входящие сообщения игнорируются
	}
}

func (c *Client) writePump(log *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
		log.Debug("writePump finished")
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
				log.Warn("Failed to write message", zap.Error(err))
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Warn("Failed to send ping", zap.Error(err))
				return
			}
		}
	}
}

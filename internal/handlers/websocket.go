package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/neto007/HRM-pipeline/internal/common"
	"github.com/neto007/HRM-pipeline/internal/interfaces"
)

const writeTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// WSMessage is the envelope of every pushed message.
type WSMessage struct {
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// WebSocketHandler pushes pipeline events to connected clients.
type WebSocketHandler struct {
	logger           arbor.ILogger
	clients          map[*websocket.Conn]bool
	clientMutex      map[*websocket.Conn]*sync.Mutex
	mu               sync.RWMutex
	allowedEvents    map[string]bool          // Whitelist of events to broadcast (empty = allow all)
	intervals        map[string]time.Duration // Minimum interval per event type
	throttleMu       sync.Mutex
	throttlers       map[string]*rate.Limiter // Keyed by event type and job id
	serverInstanceID string                   // Clients use it to detect a server restart
}

// NewWebSocketHandler creates the handler and subscribes it to every event
// when eventService is non-nil.
func NewWebSocketHandler(eventService interfaces.EventService, logger arbor.ILogger, config *common.WebSocketConfig) *WebSocketHandler {
	h := &WebSocketHandler{
		logger:           logger,
		clients:          make(map[*websocket.Conn]bool),
		clientMutex:      make(map[*websocket.Conn]*sync.Mutex),
		allowedEvents:    make(map[string]bool),
		intervals:        make(map[string]time.Duration),
		throttlers:       make(map[string]*rate.Limiter),
		serverInstanceID: uuid.New().String(),
	}

	if config != nil {
		for _, eventType := range config.AllowedEvents {
			h.allowedEvents[eventType] = true
		}
		for eventType, intervalStr := range config.ThrottleIntervals {
			d, err := time.ParseDuration(intervalStr)
			if err != nil || d <= 0 {
				logger.Warn().
					Str("event_type", eventType).
					Str("interval", intervalStr).
					Msg("Invalid throttle interval, event not throttled")
				continue
			}
			h.intervals[eventType] = d
		}
	}

	if eventService != nil {
		if err := eventService.SubscribeAll(h.handleEvent); err != nil {
			logger.Warn().Err(err).Msg("Failed to subscribe WebSocket handler to events")
		}
	}

	logger.Debug().
		Str("server_instance_id", h.serverInstanceID).
		Int("allowed_events", len(h.allowedEvents)).
		Int("throttled_events", len(h.intervals)).
		Msg("WebSocket handler initialized")
	return h
}

// HandleWebSocket handles WebSocket connections
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	h.mu.Lock()
	h.clients[conn] = true
	h.clientMutex[conn] = &sync.Mutex{}
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug().Int("clients", count).Msg("WebSocket client connected")

	h.send(conn, WSMessage{
		Type:      "hello",
		Payload:   map[string]string{"server_instance_id": h.serverInstanceID, "version": common.GetVersion()},
		Timestamp: time.Now(),
	})

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		delete(h.clientMutex, conn)
		remaining := len(h.clients)
		h.mu.Unlock()

		conn.Close()
		h.logger.Debug().Int("clients", remaining).Msg("WebSocket client disconnected")
	}()

	// Read until the client goes away; inbound messages are ignored.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Msg("WebSocket error")
			}
			return
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *WebSocketHandler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *WebSocketHandler) handleEvent(ctx context.Context, event interfaces.Event) error {
	if !h.shouldBroadcast(event) {
		return nil
	}
	h.Broadcast(WSMessage{Type: string(event.Type), Payload: event.Payload, Timestamp: time.Now()})
	return nil
}

// shouldBroadcast applies the whitelist and per-job throttling. Job state
// changes are never throttled so terminal states always reach clients.
func (h *WebSocketHandler) shouldBroadcast(event interfaces.Event) bool {
	eventType := string(event.Type)
	if len(h.allowedEvents) > 0 && !h.allowedEvents[eventType] {
		return false
	}

	interval, ok := h.intervals[eventType]
	if !ok || event.Type == interfaces.EventJobStateChanged {
		return true
	}

	key := eventType
	if payload, ok := event.Payload.(map[string]interface{}); ok {
		if jobID, ok := payload["job_id"].(string); ok {
			key += "/" + jobID
		}
	}

	h.throttleMu.Lock()
	limiter, ok := h.throttlers[key]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(interval), 1)
		h.throttlers[key] = limiter
	}
	h.throttleMu.Unlock()

	return limiter.Allow()
}

// Broadcast sends msg to all connected clients.
func (h *WebSocketHandler) Broadcast(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("type", msg.Type).Msg("Failed to marshal WebSocket message")
		return
	}

	h.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	mutexes := make([]*sync.Mutex, 0, len(h.clients))
	for conn := range h.clients {
		clients = append(clients, conn)
		mutexes = append(mutexes, h.clientMutex[conn])
	}
	h.mu.RUnlock()

	for i, conn := range clients {
		if err := h.write(conn, mutexes[i], data); err != nil {
			h.logger.Warn().Err(err).Str("type", msg.Type).Msg("Failed to send message to client")
		}
	}
}

func (h *WebSocketHandler) send(conn *websocket.Conn, msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	h.mu.RLock()
	mutex := h.clientMutex[conn]
	h.mu.RUnlock()
	if mutex == nil {
		return
	}
	if err := h.write(conn, mutex, data); err != nil {
		h.logger.Warn().Err(err).Msg("Failed to send message to client")
	}
}

func (h *WebSocketHandler) write(conn *websocket.Conn, mutex *sync.Mutex, data []byte) error {
	mutex.Lock()
	defer mutex.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

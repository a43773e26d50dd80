package events

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/EasyAdvertisers/alfreyaa-app/internal/domain"
)

// Subscriber abstracts a streaming client.
type Subscriber interface {
	Send([]byte) error
	Close()
}

// Hub fans session events out to every subscriber of that session.
type Hub struct {
	logger    *slog.Logger
	clients   map[string]map[Subscriber]struct{}
	register  chan subscription
	unreg     chan subscription
	broadcast chan message
}

type message struct {
	sessionID string
	payload   []byte
}

type subscription struct {
	sessionID string
	client    Subscriber
}

// NewHub creates a Hub and starts its dispatch loop.
func NewHub(logger *slog.Logger) *Hub {
	h := &Hub{
		logger:    logger,
		clients:   make(map[string]map[Subscriber]struct{}),
		register:  make(chan subscription),
		unreg:     make(chan subscription),
		broadcast: make(chan message),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case sub := <-h.register:
			if _, ok := h.clients[sub.sessionID]; !ok {
				h.clients[sub.sessionID] = make(map[Subscriber]struct{})
			}
			h.clients[sub.sessionID][sub.client] = struct{}{}
		case sub := <-h.unreg:
			if clients, ok := h.clients[sub.sessionID]; ok {
				delete(clients, sub.client)
				if len(clients) == 0 {
					delete(h.clients, sub.sessionID)
				}
			}
		case msg := <-h.broadcast:
			if clients, ok := h.clients[msg.sessionID]; ok {
				for c := range clients {
					if err := c.Send(msg.payload); err != nil {
						c.Close()
						delete(clients, c)
					}
				}
				if len(clients) == 0 {
					delete(h.clients, msg.sessionID)
				}
			}
		}
	}
}

// Register adds a client to a session stream.
func (h *Hub) Register(sessionID string, client Subscriber) {
	h.register <- subscription{sessionID: sessionID, client: client}
}

// Unregister removes a client.
func (h *Hub) Unregister(sessionID string, client Subscriber) {
	h.unreg <- subscription{sessionID: sessionID, client: client}
}

// Publish stamps and broadcasts an event to the session's subscribers.
func (h *Hub) Publish(event domain.Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		if h.logger != nil {
			h.logger.Error("failed to encode event", "error", err, "session_id", event.SessionID)
		}
		return
	}
	h.broadcast <- message{sessionID: event.SessionID, payload: payload}
}

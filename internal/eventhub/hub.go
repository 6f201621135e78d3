// Package eventhub is the daemon's authenticated, bidirectional pub/sub
// layer: browser and proxy clients connect over a websocket, authenticate
// with the shared daemon token, and receive a fire-and-forget broadcast
// of domain events as they happen.
package eventhub

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/consultd/consultd/internal/model"
)

// EventType is one of the hub's fixed, named broadcast events.
type EventType string

const (
	EventClientsCount        EventType = "clients:count"
	EventConfigUpdated       EventType = "config:updated"
	EventConversationCreated EventType = "conversation:created"
	EventConversationMessage EventType = "conversation:message"
	EventConversationEnded   EventType = "conversation:ended"
	EventConversationDeleted EventType = "conversation:deleted"
)

// Envelope is the wire shape of every broadcast message.
type Envelope struct {
	Type    EventType   `json:"type"`
	Payload interface{} `json:"payload"`
}

// Handler matches the teacher's eventbus.Handler registration idiom,
// adapted from "run local side-effects for an event" to "decide whether
// and how to notify a single remote subscriber." Most subscribers use
// the zero-configuration broadcast path below; Handler exists for
// in-process listeners (e.g. metrics) that want to observe every event
// without a network round trip.
type Handler interface {
	ID() string
	Handles() []EventType
	Priority() int
	Handle(ctx context.Context, eventType EventType, payload interface{})
}

// Hub owns the connected-client table and the in-process handler list. A
// *Client outlives its websocket connection only until disconnect: the
// client table has no replay buffer, so a subscriber that drops a message
// has lost it for good.
type Hub struct {
	mu       sync.RWMutex
	clients  map[uuid.UUID]*Client
	handlers []Handler
	log      *logrus.Entry
}

// New creates an empty Hub.
func New(log *logrus.Entry) *Hub {
	return &Hub{
		clients: make(map[uuid.UUID]*Client),
		log:     log,
	}
}

// RegisterHandler adds an in-process handler. It takes the hub lock, so
// it may run concurrently with Broadcast; a Broadcast already in progress
// does not call the new handler.
func (h *Hub) RegisterHandler(handler Handler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers = append(h.handlers, handler)
}

// Join adds a connected client to the table and returns its registration.
func (h *Hub) Join(kind model.ClientKind, send chan<- []byte) *Client {
	c := &Client{
		ClientRegistration: model.ClientRegistration{
			ID:          uuid.NewString(),
			Kind:        kind,
			ConnectedAt: time.Now(),
		},
		send: send,
	}
	h.mu.Lock()
	h.clients[uuid.MustParse(c.ID)] = c
	count := len(h.clients)
	h.mu.Unlock()

	h.broadcastCount(count)
	return c
}

// Leave removes a client from the table on disconnect.
func (h *Hub) Leave(id string) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return
	}
	h.mu.Lock()
	delete(h.clients, parsed)
	count := len(h.clients)
	h.mu.Unlock()

	h.broadcastCount(count)
}

// ClientCount returns the number of currently connected clients; used by
// lifecycle's idle timer.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) broadcastCount(count int) {
	h.Broadcast(EventClientsCount, map[string]int{"count": count})
}

// Broadcast fans an event out to every connected client's send channel
// (fire-and-forget: when a client's channel is full the event is dropped
// for that client, which stays connected, so the broadcaster never
// blocks) and to every
// registered in-process handler, in ascending priority order.
func (h *Hub) Broadcast(eventType EventType, payload interface{}) {
	env := Envelope{Type: eventType, Payload: payload}
	data, err := json.Marshal(env)
	if err != nil {
		h.log.WithError(err).WithField("event", eventType).Error("marshal broadcast envelope")
		return
	}

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	handlers := make([]Handler, len(h.handlers))
	copy(handlers, h.handlers)
	h.mu.RUnlock()

	for _, c := range clients {
		select {
		case c.send <- data:
		default:
			h.log.WithField("client", c.ID).Warn("client send buffer full, dropping")
		}
	}

	sort.Slice(handlers, func(i, j int) bool { return handlers[i].Priority() < handlers[j].Priority() })
	for _, handler := range handlers {
		for _, t := range handler.Handles() {
			if t == eventType {
				handler.Handle(context.Background(), eventType, payload)
				break
			}
		}
	}
}

// Client is a single connected subscriber.
type Client struct {
	model.ClientRegistration
	send chan<- []byte
}

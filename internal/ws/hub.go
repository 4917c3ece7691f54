package ws

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/commonroom/commonroom/internal/community"
	logger "github.com/commonroom/commonroom/middleware/log"
)

// Hub fans CommunityStore events out to WebSocket clients. Each client is
// attached to one group room; only message events for that room reach it.
type Hub struct {
	store *community.Store
	log   *logger.Logger

	// Group ID -> connected clients.
	rooms map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	events     chan community.Event

	unsubscribe func()
}

func NewHub(store *community.Store, log *logger.Logger) *Hub {
	h := &Hub{
		store:      store,
		log:        log,
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		events:     make(chan community.Event, 64),
	}

	h.unsubscribe = store.Subscribe(func(_ community.Snapshot, event community.Event) {
		if event.Type != community.EventMessageSent {
			return
		}
		select {
		case h.events <- event:
		default:
			// A slow hub must not stall the store; drop and log.
			log.Warn("ws hub event buffer full, dropping event",
				zap.String("group_id", event.GroupID))
		}
	})

	return h
}

// Run owns the room bookkeeping. It exits when Close is called.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			if client == nil {
				return
			}
			room, ok := h.rooms[client.groupID]
			if !ok {
				room = make(map[*Client]bool)
				h.rooms[client.groupID] = room
			}
			room[client] = true

		case client := <-h.unregister:
			if room, ok := h.rooms[client.groupID]; ok {
				if room[client] {
					delete(room, client)
					close(client.send)
					if len(room) == 0 {
						delete(h.rooms, client.groupID)
					}
				}
			}

		case event := <-h.events:
			h.broadcast(event)
		}
	}
}

// Close detaches the hub from the store and stops Run.
func (h *Hub) Close() {
	h.unsubscribe()
	h.register <- nil
}

func (h *Hub) broadcast(event community.Event) {
	room := h.rooms[event.GroupID]
	if len(room) == 0 {
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		h.log.Error("marshal ws event", zap.Error(err))
		return
	}

	for client := range room {
		select {
		case client.send <- payload:
		default:
			// Client is not draining its queue; drop it.
			delete(room, client)
			close(client.send)
		}
	}
}

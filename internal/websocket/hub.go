// Package websocket pushes note change events to the owner's open
// connections.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"hdnotes-server/internal/domain"
	"hdnotes-server/internal/logging"
)

var (
	ErrTooManyConnections = errors.New("too many connections for user")
	ErrHubClosed          = errors.New("websocket hub closed")
)

type Config struct {
	MaxConnPerUser int
	MaxMessageSize int64
	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
}

type Hub struct {
	cfg Config
	log logging.Logger

	mu        sync.RWMutex
	clients   map[string]*Client
	userIndex map[string]map[string]*Client
	closed    bool
}

func NewHub(cfg Config, log logging.Logger) *Hub {
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = 10 * time.Second
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = 60 * time.Second
	}
	if cfg.PingPeriod <= 0 || cfg.PingPeriod >= cfg.PongWait {
		cfg.PingPeriod = cfg.PongWait * 9 / 10
	}

	return &Hub{
		cfg:       cfg,
		log:       log,
		clients:   make(map[string]*Client),
		userIndex: make(map[string]map[string]*Client),
	}
}

func (h *Hub) Register(client *Client) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrHubClosed
	}

	conns := h.userIndex[client.UserID]
	if h.cfg.MaxConnPerUser > 0 && len(conns) >= h.cfg.MaxConnPerUser {
		h.log.Warn(context.Background(), "max websocket connections reached", "user_id", client.UserID)
		return ErrTooManyConnections
	}

	if conns == nil {
		conns = make(map[string]*Client)
		h.userIndex[client.UserID] = conns
	}
	conns[client.ID] = client
	h.clients[client.ID] = client

	h.log.Debug(context.Background(), "websocket client registered", "client_id", client.ID, "user_id", client.UserID)
	return nil
}

// Unregister removes the client and closes its send channel. It is safe to
// call more than once.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.remove(client)
}

func (h *Hub) remove(client *Client) {
	if _, ok := h.clients[client.ID]; !ok {
		return
	}

	delete(h.clients, client.ID)
	delete(h.userIndex[client.UserID], client.ID)
	if len(h.userIndex[client.UserID]) == 0 {
		delete(h.userIndex, client.UserID)
	}
	close(client.Send)

	h.log.Debug(context.Background(), "websocket client unregistered", "client_id", client.ID)
}

// Publish delivers msg to every connection of userID without blocking.
// A client whose buffer is full is dropped.
func (h *Hub) Publish(userID string, msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	var slow []*Client

	h.mu.RLock()
	for _, client := range h.userIndex[userID] {
		select {
		case client.Send <- data:
		default:
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range slow {
		h.log.Warn(context.Background(), "websocket send buffer full, dropping client", "client_id", client.ID)
		h.Unregister(client)
	}
	return nil
}

func (h *Hub) UserConnections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.userIndex[userID])
}

// Close drops every client and refuses new registrations.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for _, client := range h.clients {
		h.remove(client)
	}
}

func (h *Hub) NoteCreated(note *domain.Note) {
	h.publish(note.OwnerID, TypeNoteCreated, note)
}

func (h *Hub) NoteUpdated(note *domain.Note) {
	h.publish(note.OwnerID, TypeNoteUpdated, note)
}

func (h *Hub) NoteDeleted(ownerID, noteID string) {
	h.publish(ownerID, TypeNoteDeleted, NoteDeletedPayload{NoteID: noteID})
}

func (h *Hub) publish(userID string, msgType MessageType, payload interface{}) {
	msg, err := NewMessage(msgType, payload)
	if err == nil {
		err = h.Publish(userID, msg)
	}
	if err != nil {
		h.log.Error(context.Background(), "failed to publish note event", "type", msgType, "error", err)
	}
}

func (h *Hub) handleMessage(client *Client, data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		h.reply(client, TypeError, ErrorPayload{Error: "malformed message"})
		return
	}

	switch msg.Type {
	case TypePing:
		h.reply(client, TypePong, nil)
	default:
		h.reply(client, TypeError, ErrorPayload{Error: "unsupported message type"})
	}
}

func (h *Hub) reply(client *Client, msgType MessageType, payload interface{}) {
	msg, err := NewMessage(msgType, payload)
	if err != nil {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	select {
	case client.Send <- data:
	default:
	}
}

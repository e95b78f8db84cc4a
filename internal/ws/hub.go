package ws

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"chat-engine/internal/observability"
)

// wireConn is the subset of *websocket.Conn the hub writes to.
type wireConn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// frame is the server-to-client envelope.
type frame struct {
	Event string      `json:"event"`
	AckID *int64      `json:"ack_id,omitempty"`
	Data  interface{} `json:"data"`
}

// Client is one live websocket connection of a user.
type Client struct {
	Info ConnInfo

	ws wireConn
	mu sync.Mutex
}

// Send writes one event frame to the connection.
func (c *Client) Send(event string, payload interface{}) error {
	return c.write(frame{Event: event, Data: payload})
}

// Ack writes a response frame for a client request.
func (c *Client) Ack(ackID int64, payload interface{}) error {
	return c.write(frame{Event: "ack", AckID: &ackID, Data: payload})
}

func (c *Client) write(f frame) error {
	body, err := json.Marshal(f)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, body)
}

// Hub maps logical users to live connections and connections to the rooms
// they receive events for.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*Client]bool
	users map[int]map[*Client]bool

	log *zap.SugaredLogger
}

// NewHub creates an empty hub.
func NewHub(log *zap.SugaredLogger) *Hub {
	return &Hub{
		rooms: make(map[string]map[*Client]bool),
		users: make(map[int]map[*Client]bool),
		log:   log,
	}
}

// Register creates a client for the connection and tracks it under its user.
func (h *Hub) Register(ws wireConn, info ConnInfo) *Client {
	client := &Client{Info: info, ws: ws}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.users[info.UserID]; !ok {
		h.users[info.UserID] = make(map[*Client]bool)
	}
	h.users[info.UserID][client] = true
	return client
}

// Unregister removes a client from its user set and every room.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(client)
}

func (h *Hub) removeLocked(client *Client) {
	if conns, ok := h.users[client.Info.UserID]; ok {
		delete(conns, client)
		if len(conns) == 0 {
			delete(h.users, client.Info.UserID)
		}
	}
	for room, members := range h.rooms {
		delete(members, client)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// Join adds one connection to a room.
func (h *Hub) Join(client *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[room]; !ok {
		h.rooms[room] = make(map[*Client]bool)
	}
	h.rooms[room][client] = true
}

// Leave removes one connection from a room.
func (h *Hub) Leave(client *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if members, ok := h.rooms[room]; ok {
		delete(members, client)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// JoinUser joins the user's entire active connection set to a room. Used when
// a chat is created so the first fanout already reaches every device.
func (h *Hub) JoinUser(userID int, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns, ok := h.users[userID]
	if !ok {
		return
	}
	if _, ok := h.rooms[room]; !ok {
		h.rooms[room] = make(map[*Client]bool)
	}
	for client := range conns {
		h.rooms[room][client] = true
	}
}

// UserInRoom reports whether any of the user's connections is in the room.
func (h *Hub) UserInRoom(userID int, room string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	members, ok := h.rooms[room]
	if !ok {
		return false
	}
	for client := range members {
		if client.Info.UserID == userID {
			return true
		}
	}
	return false
}

// Emit sends an event to every connection in the room. Failed writes close
// and deregister the connection; delivery is best effort.
func (h *Hub) Emit(room, event string, payload interface{}) {
	h.emit(room, -1, event, payload)
}

// EmitExceptUser sends an event to the room, skipping every connection of
// one user. Used for typing indicators, which never echo to the sender.
func (h *Hub) EmitExceptUser(room string, skipUserID int, event string, payload interface{}) {
	h.emit(room, skipUserID, event, payload)
}

func (h *Hub) emit(room string, skipUserID int, event string, payload interface{}) {
	h.mu.RLock()
	members := make([]*Client, 0, len(h.rooms[room]))
	for client := range h.rooms[room] {
		if client.Info.UserID == skipUserID {
			continue
		}
		members = append(members, client)
	}
	h.mu.RUnlock()

	for _, client := range members {
		if err := client.Send(event, payload); err != nil {
			h.log.Warnw("websocket write failed", "room", room, "event", event, "conn_id", client.Info.ConnID, "error", err)
			observability.IncWSEvent("chat", "ws_error")
			_ = client.ws.Close()
			h.Unregister(client)
		}
	}
}

// RoomSize returns the number of connections currently in the room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

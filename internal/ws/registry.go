package ws

import (
	"log"
	"sync"
)

// RoomRegistry tracks which live connections are subscribed to which chat
// room. It is in-process state only: broadcasts reach connections held by
// this server instance and no other (see the scaling note in DESIGN.md).
type RoomRegistry struct {
	mu      sync.RWMutex
	rooms   map[int]map[*Client]struct{}
	clients map[*Client]map[int]struct{}
}

func NewRoomRegistry() *RoomRegistry {
	return &RoomRegistry{
		rooms:   make(map[int]map[*Client]struct{}),
		clients: make(map[*Client]map[int]struct{}),
	}
}

func (r *RoomRegistry) Join(client *Client, chatID int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.rooms[chatID] == nil {
		r.rooms[chatID] = make(map[*Client]struct{})
	}
	r.rooms[chatID][client] = struct{}{}

	if r.clients[client] == nil {
		r.clients[client] = make(map[int]struct{})
	}
	r.clients[client][chatID] = struct{}{}
}

// Leave detaches the connection's local subscription. It never touches
// persisted membership and succeeds regardless of it.
func (r *RoomRegistry) Leave(client *Client, chatID int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.detach(client, chatID)
}

// LeaveAll removes the client from every room. Called on disconnect.
func (r *RoomRegistry) LeaveAll(client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for chatID := range r.clients[client] {
		r.detach(client, chatID)
	}
	delete(r.clients, client)
}

func (r *RoomRegistry) detach(client *Client, chatID int) {
	if room := r.rooms[chatID]; room != nil {
		delete(room, client)
		if len(room) == 0 {
			delete(r.rooms, chatID)
		}
	}
	if joined := r.clients[client]; joined != nil {
		delete(joined, chatID)
	}
}

// IsJoined reports whether the connection is currently subscribed to the room.
func (r *RoomRegistry) IsJoined(client *Client, chatID int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.clients[client][chatID]
	return ok
}

// Subscribers returns the number of live connections in the room.
func (r *RoomRegistry) Subscribers(chatID int) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.rooms[chatID])
}

// Broadcast delivers one event to every connection subscribed to the room,
// the sender's own connections included. Write failures close the offending
// connection and drop its subscriptions; delivery to the rest continues.
func (r *RoomRegistry) Broadcast(chatID int, event string, data interface{}) {
	r.mu.RLock()
	recipients := make([]*Client, 0, len(r.rooms[chatID]))
	for client := range r.rooms[chatID] {
		recipients = append(recipients, client)
	}
	r.mu.RUnlock()

	var failed []*Client
	for _, client := range recipients {
		if err := client.Send(event, data); err != nil {
			log.Printf("Error sending %s to client %s: %v", event, client.ID, err)
			client.Close()
			failed = append(failed, client)
		}
	}

	for _, client := range failed {
		r.LeaveAll(client)
	}
}

package ws

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"

	"CommuneChat/server/internal/models"
)

// Client is one authenticated live connection. A user with several open
// connections holds several independent clients, each with its own room
// subscriptions.
type Client struct {
	ID   string
	User *models.User

	conn    *websocket.Conn
	writeMu sync.Mutex
}

func NewClient(id string, user *models.User, conn *websocket.Conn) *Client {
	return &Client{
		ID:   id,
		User: user,
		conn: conn,
	}
}

// Send writes one event frame. Gorilla connections forbid concurrent
// writers, so every write goes through the client's write lock.
func (c *Client) Send(event string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	return c.conn.WriteJSON(Frame{Event: event, Data: payload})
}

func (c *Client) SendException(code int, message string) error {
	return c.Send(EventException, Exception{Code: code, Message: message})
}

func (c *Client) Close() error {
	return c.conn.Close()
}

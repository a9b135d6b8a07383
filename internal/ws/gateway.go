package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"CommuneChat/server/internal/auth"
	"CommuneChat/server/internal/models"
	"CommuneChat/server/internal/services"
)

// Gateway owns the realtime chat surface: handshake authentication, room
// subscriptions, and message fan-out.
type Gateway struct {
	chats    ChatStore
	users    UserStore
	verifier TokenVerifier
	registry *RoomRegistry
	upgrader websocket.Upgrader

	sendMu    sync.Mutex
	sendLocks map[int]*sync.Mutex
}

var errBadPayload = errors.New("malformed event payload")

func NewGateway(chats ChatStore, users UserStore, verifier TokenVerifier) *Gateway {
	return &Gateway{
		chats:    chats,
		users:    users,
		verifier: verifier,
		registry: NewRoomRegistry(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		sendLocks: make(map[int]*sync.Mutex),
	}
}

// sendLock returns the mutex serializing message delivery for one room.
// Connections run on independent goroutines, so without it a message
// persisted second could be fanned out first.
func (g *Gateway) sendLock(chatID int) *sync.Mutex {
	g.sendMu.Lock()
	defer g.sendMu.Unlock()

	lock, ok := g.sendLocks[chatID]
	if !ok {
		lock = &sync.Mutex{}
		g.sendLocks[chatID] = lock
	}
	return lock
}

// Registry exposes the room registry for subscription inspection and
// out-of-band broadcasts.
func (g *Gateway) Registry() *RoomRegistry {
	return g.registry
}

// HandleWebSocket authenticates the handshake and runs the connection's
// event loop. Authentication failures terminate the connection; once the
// loop is running, domain failures only ever produce exception events.
func (g *Gateway) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, err := g.authenticate(ctx, r)
	if err != nil {
		log.Printf("Rejected websocket handshake: %v", err)
		http.Error(w, "Invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Error upgrading to WebSocket: %v", err)
		return
	}

	client := NewClient(uuid.NewString(), user, conn)
	defer func() {
		g.registry.LeaveAll(client)
		conn.Close()
		log.Printf("Client %s (user %d) disconnected", client.ID, user.ID)
	}()

	log.Printf("Client %s connected as user %d (%s)", client.ID, user.ID, user.Username)

	err = client.Send(EventOnConnected, map[string]interface{}{
		"client_id": client.ID,
		"user":      user.Public(),
	})
	if err != nil {
		log.Printf("Error sending onConnected to client %s: %v", client.ID, err)
		return
	}

	// Best effort: a failed auto-join leaves the connection authenticated
	// but unsubscribed, never disconnected.
	g.autoJoin(ctx, client)

	for {
		var frame Frame
		if err := conn.ReadJSON(&frame); err != nil {
			// A frame that fails to decode poisons only that frame, not the
			// transport; the next message is still readable.
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) || errors.Is(err, io.ErrUnexpectedEOF) {
				log.Printf("Malformed frame from client %s: %v", client.ID, err)
				if sendErr := client.SendException(CodeBadRequest, "malformed event frame"); sendErr != nil {
					return
				}
				continue
			}
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("Error reading from client %s: %v", client.ID, err)
			}
			return
		}

		g.dispatch(ctx, client, frame)
	}
}

func (g *Gateway) authenticate(ctx context.Context, r *http.Request) (*models.User, error) {
	token, err := auth.TokenFromRequest(r)
	if err != nil {
		return nil, err
	}

	claims, err := g.verifier.Verify(token)
	if err != nil {
		return nil, err
	}

	user, err := g.users.GetUserByID(ctx, claims.UserID())
	if err != nil {
		return nil, err
	}

	return user, nil
}

// autoJoin subscribes the new connection to every room the user may access:
// all chats for admins, the user's persisted memberships otherwise.
func (g *Gateway) autoJoin(ctx context.Context, client *Client) {
	var chatIDs []int
	var err error

	if client.User.IsAdmin() {
		chatIDs, err = g.chats.GetAllChatIDs(ctx)
	} else {
		chatIDs, err = g.chats.GetUserChatIDs(ctx, client.User.ID)
	}
	if err != nil {
		log.Printf("Auto-join lookup failed for client %s: %v", client.ID, err)
		return
	}

	for _, chatID := range chatIDs {
		g.registry.Join(client, chatID)
	}

	log.Printf("Client %s auto-joined %d rooms", client.ID, len(chatIDs))
}

func (g *Gateway) dispatch(ctx context.Context, client *Client, frame Frame) {
	var err error

	switch frame.Event {
	case EventCreateChat:
		err = g.handleCreateChat(ctx, client, frame.Data)
	case EventEnterChat:
		err = g.handleEnterChat(ctx, client, frame.Data)
	case EventLeaveChat:
		err = g.handleLeaveChat(client, frame.Data)
	case EventSendMessage:
		err = g.handleSendMessage(ctx, client, frame.Data)
	default:
		err = fmt.Errorf("unknown event %q: %w", frame.Event, errBadPayload)
	}

	if err != nil {
		code, message := wsError(err)
		log.Printf("Event %s from client %s failed: %v", frame.Event, client.ID, err)
		if sendErr := client.SendException(code, message); sendErr != nil {
			log.Printf("Error sending exception to client %s: %v", client.ID, sendErr)
		}
	}
}

func (g *Gateway) handleCreateChat(ctx context.Context, client *Client, data json.RawMessage) error {
	var spec services.CreateChatSpec
	if err := json.Unmarshal(data, &spec); err != nil {
		return fmt.Errorf("invalid createChat payload: %w", errBadPayload)
	}

	if spec.Type != "" && !models.ValidChatType(spec.Type) {
		return fmt.Errorf("chat type %q: %w", spec.Type, errBadPayload)
	}

	chat, err := g.chats.CreateChat(ctx, spec, client.User.ID)
	if err != nil {
		return err
	}

	g.registry.Join(client, chat.ID)

	// Creator only; other members learn about the chat on their next
	// connect or listing.
	return client.Send(EventOnCreatedChat, chat)
}

func (g *Gateway) handleEnterChat(ctx context.Context, client *Client, data json.RawMessage) error {
	var req EnterChatRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("invalid enterChat payload: %w", errBadPayload)
	}

	chat, err := g.chats.GetChatByID(ctx, req.ChatID)
	if err != nil {
		return err
	}

	allowed := client.User.IsAdmin() || chat.Type == models.ChatTypePublic
	if !allowed {
		allowed, err = g.chats.IsMember(ctx, chat.ID, client.User.ID)
		if err != nil {
			return err
		}
	}
	if !allowed {
		return models.ErrForbidden
	}

	g.registry.Join(client, chat.ID)
	log.Printf("Client %s entered room %d", client.ID, chat.ID)

	return client.Send(EventOnEnteredChat, map[string]int{"chat_id": chat.ID})
}

func (g *Gateway) handleLeaveChat(client *Client, data json.RawMessage) error {
	var req LeaveChatRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("invalid leaveChat payload: %w", errBadPayload)
	}

	g.registry.Leave(client, req.ChatID)
	log.Printf("Client %s left room %d", client.ID, req.ChatID)

	return client.Send(EventOnLeftChat, map[string]int{"chat_id": req.ChatID})
}

func (g *Gateway) handleSendMessage(ctx context.Context, client *Client, data json.RawMessage) error {
	var req SendMessageRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("invalid sendMessage payload: %w", errBadPayload)
	}

	// Held across persist and fan-out: broadcasts for a room must leave in
	// the order their messages were persisted.
	lock := g.sendLock(req.ChatID)
	lock.Lock()
	defer lock.Unlock()

	message, err := g.chats.CreateMessage(ctx, req.ChatID, client.User.ID, req.Content)
	if err != nil {
		return err
	}

	g.registry.Broadcast(message.ChatID, EventOnMessage, message)
	return nil
}

// wsError maps a domain failure to the structured exception carried back to
// the requesting connection.
func wsError(err error) (int, string) {
	switch {
	case errors.Is(err, models.ErrChatNotFound):
		return CodeNotFound, "chat does not exist"
	case errors.Is(err, models.ErrUserNotFound):
		return CodeNotFound, "user does not exist"
	case errors.Is(err, models.ErrForbidden), errors.Is(err, models.ErrNotMember):
		return CodeForbidden, "access to chat denied"
	case errors.Is(err, models.ErrEmptyContent), errors.Is(err, models.ErrContentTooLong),
		errors.Is(err, errBadPayload):
		return CodeBadRequest, err.Error()
	default:
		return CodeInternal, "internal server error"
	}
}

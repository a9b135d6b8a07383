package ws

import (
	"encoding/json"
)

// Client-to-server events.
const (
	EventCreateChat  = "createChat"
	EventEnterChat   = "enterChat"
	EventLeaveChat   = "leaveChat"
	EventSendMessage = "sendMessage"
)

// Server-to-client events.
const (
	EventOnConnected   = "onConnected"
	EventOnCreatedChat = "onCreatedChat"
	EventOnEnteredChat = "onEnteredChat"
	EventOnLeftChat    = "onLeftChat"
	EventOnMessage     = "onMessage"
	EventException     = "exception"
)

// Structured error codes carried by exception events.
const (
	CodeNotFound   = 100
	CodeBadRequest = 400
	CodeForbidden  = 403
	CodeInternal   = 500
)

// Frame is the wire envelope for every event in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type Exception struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type EnterChatRequest struct {
	ChatID int `json:"chat_id"`
}

type LeaveChatRequest struct {
	ChatID int `json:"chat_id"`
}

type SendMessageRequest struct {
	ChatID  int    `json:"chat_id"`
	Content string `json:"content"`
}

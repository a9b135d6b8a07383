package models

import (
	"time"
)

// MaxMessageLength bounds the content of a single chat message.
const MaxMessageLength = 2000

type Message struct {
	ID        int           `json:"id" db:"id"`
	ChatID    int           `json:"chat_id" db:"chat_id"`
	UserID    int           `json:"-" db:"user_id"`
	User      PublicProfile `json:"user"`
	Content   string        `json:"content" db:"content"`
	CreatedAt time.Time     `json:"created_at" db:"created_at"`
}

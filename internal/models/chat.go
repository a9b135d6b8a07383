package models

import (
	"time"
)

const (
	ChatTypePrivate = "private"
	ChatTypePublic  = "public"
	ChatTypeSupport = "support"
)

type Chat struct {
	ID        int             `json:"id" db:"id"`
	Title     string          `json:"title" db:"title"`
	Type      string          `json:"type" db:"type"`
	OwnerID   int             `json:"owner_id" db:"owner_id"`
	Users     []PublicProfile `json:"users,omitempty"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
	DeletedAt *time.Time      `json:"deleted_at,omitempty" db:"deleted_at"`
}

// ValidChatType reports whether t is one of the supported chat types.
func ValidChatType(t string) bool {
	switch t {
	case ChatTypePrivate, ChatTypePublic, ChatTypeSupport:
		return true
	}
	return false
}

type ChatWithUnread struct {
	Chat
	UnreadCount int `json:"unread_count"`
}

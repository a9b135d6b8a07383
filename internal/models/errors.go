package models

import "errors"

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrChatNotFound   = errors.New("chat not found")
	ErrForbidden      = errors.New("access to chat denied")
	ErrNotMember      = errors.New("user is not a member of the chat")
	ErrEmptyContent   = errors.New("message content is empty")
	ErrContentTooLong = errors.New("message content exceeds maximum length")
)

package ws

import (
	"context"

	"CommuneChat/server/internal/auth"
	"CommuneChat/server/internal/models"
	"CommuneChat/server/internal/services"
)

// ChatStore is the slice of the chat persistence layer the gateway consumes.
// The pgx-backed chat service satisfies it; tests substitute an in-memory
// implementation.
type ChatStore interface {
	GetChatByID(ctx context.Context, chatID int) (*models.Chat, error)
	IsMember(ctx context.Context, chatID, userID int) (bool, error)
	GetUserChatIDs(ctx context.Context, userID int) ([]int, error)
	GetAllChatIDs(ctx context.Context) ([]int, error)
	CreateChat(ctx context.Context, spec services.CreateChatSpec, ownerID int) (*models.Chat, error)
	CreateMessage(ctx context.Context, chatID, authorID int, content string) (*models.Message, error)
}

type UserStore interface {
	GetUserByID(ctx context.Context, id int) (*models.User, error)
}

// TokenVerifier resolves a raw bearer token to its claims or fails.
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

// VerifierFunc adapts a plain verification function to TokenVerifier.
type VerifierFunc func(token string) (*auth.Claims, error)

func (f VerifierFunc) Verify(token string) (*auth.Claims, error) {
	return f(token)
}

package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CommuneChat/server/internal/db"
	"CommuneChat/server/internal/models"
)

// These tests run against a real postgres instance. Set TEST_DATABASE_URL to
// enable them; they are skipped otherwise.

var initOnce sync.Once

func requireDB(t *testing.T) {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	initOnce.Do(func() {
		os.Setenv("DATABASE_URL", dsn)
		db.InitDB()
	})
}

func uniqueName(prefix string) string {
	return fmt.Sprintf("%s_%d", prefix, time.Now().UnixNano())
}

func createTestUser(t *testing.T, us *UserService, role string) *models.User {
	t.Helper()
	ctx := context.Background()
	name := uniqueName("u")

	id, code, err := us.CreateUser(ctx, &models.User{
		Username: name,
		Email:    name + "@example.com",
		Nickname: name,
		Password: "test-password",
	})
	require.NoError(t, err)
	require.Len(t, code, 6)

	if role == models.RoleAdmin {
		_, err = db.Pool.Exec(ctx, "UPDATE users SET role = $1 WHERE id = $2", role, id)
		require.NoError(t, err)
	}

	user, err := us.GetUserByID(ctx, id)
	require.NoError(t, err)
	return user
}

func TestCreateUserAndVerifyEmail(t *testing.T) {
	requireDB(t)
	ctx := context.Background()
	us := NewUserService()

	name := uniqueName("verify")
	id, code, err := us.CreateUser(ctx, &models.User{
		Username: name,
		Email:    name + "@example.com",
		Nickname: name,
		Password: "test-password",
	})
	require.NoError(t, err)

	created, err := us.GetUserByID(ctx, id)
	require.NoError(t, err)
	assert.False(t, created.IsEmailVerified)
	assert.NotEqual(t, "test-password", created.Password, "password must be stored hashed")

	_, err = us.VerifyEmail(ctx, name+"@example.com", "000000")
	require.Error(t, err)

	verified, err := us.VerifyEmail(ctx, name+"@example.com", code)
	require.NoError(t, err)
	assert.True(t, verified.IsEmailVerified)
}

func TestCreateChatDefaults(t *testing.T) {
	requireDB(t)
	ctx := context.Background()
	us := NewUserService()
	cs := NewChatService(us)
	owner := createTestUser(t, us, models.RoleUser)

	chat, err := cs.CreateChat(ctx, CreateChatSpec{}, owner.ID)
	require.NoError(t, err)

	assert.Equal(t, models.ChatTypePrivate, chat.Type)
	assert.True(t, strings.HasPrefix(chat.Title, "Chat "))
	assert.Equal(t, owner.ID, chat.OwnerID)

	members, err := cs.GetMembers(ctx, chat.ID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, owner.ID, members[0].ID)
}

func TestJoinChatIdempotent(t *testing.T) {
	requireDB(t)
	ctx := context.Background()
	us := NewUserService()
	cs := NewChatService(us)
	owner := createTestUser(t, us, models.RoleUser)
	joiner := createTestUser(t, us, models.RoleUser)

	chat, err := cs.CreateChat(ctx, CreateChatSpec{Type: models.ChatTypePublic}, owner.ID)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err = cs.JoinChat(ctx, chat.ID, joiner)
		require.NoError(t, err)
	}

	members, err := cs.GetMembers(ctx, chat.ID)
	require.NoError(t, err)
	assert.Len(t, members, 2)
}

func TestJoinPrivateChatForbidden(t *testing.T) {
	requireDB(t)
	ctx := context.Background()
	us := NewUserService()
	cs := NewChatService(us)
	owner := createTestUser(t, us, models.RoleUser)
	stranger := createTestUser(t, us, models.RoleUser)

	chat, err := cs.CreateChat(ctx, CreateChatSpec{Type: models.ChatTypePrivate}, owner.ID)
	require.NoError(t, err)

	_, err = cs.JoinChat(ctx, chat.ID, stranger)
	assert.True(t, errors.Is(err, models.ErrForbidden))
}

func TestJoinChatAdminLeavesNoMembership(t *testing.T) {
	requireDB(t)
	ctx := context.Background()
	us := NewUserService()
	cs := NewChatService(us)
	owner := createTestUser(t, us, models.RoleUser)
	admin := createTestUser(t, us, models.RoleAdmin)

	chat, err := cs.CreateChat(ctx, CreateChatSpec{Type: models.ChatTypePrivate}, owner.ID)
	require.NoError(t, err)

	_, err = cs.JoinChat(ctx, chat.ID, admin)
	require.NoError(t, err)

	isMember, err := cs.IsMember(ctx, chat.ID, admin.ID)
	require.NoError(t, err)
	assert.False(t, isMember)
}

func TestExitChatSoftDeletesWhenEmpty(t *testing.T) {
	requireDB(t)
	ctx := context.Background()
	us := NewUserService()
	cs := NewChatService(us)
	owner := createTestUser(t, us, models.RoleUser)

	chat, err := cs.CreateChat(ctx, CreateChatSpec{Type: models.ChatTypePublic}, owner.ID)
	require.NoError(t, err)

	require.NoError(t, cs.ExitChat(ctx, chat.ID, owner))

	_, err = cs.GetChatByID(ctx, chat.ID)
	assert.True(t, errors.Is(err, models.ErrChatNotFound))

	// A second exit sees the chat as gone.
	err = cs.ExitChat(ctx, chat.ID, owner)
	assert.True(t, errors.Is(err, models.ErrChatNotFound))
}

func TestExitChatNotMember(t *testing.T) {
	requireDB(t)
	ctx := context.Background()
	us := NewUserService()
	cs := NewChatService(us)
	owner := createTestUser(t, us, models.RoleUser)
	stranger := createTestUser(t, us, models.RoleUser)

	chat, err := cs.CreateChat(ctx, CreateChatSpec{Type: models.ChatTypePublic}, owner.ID)
	require.NoError(t, err)

	err = cs.ExitChat(ctx, chat.ID, stranger)
	assert.True(t, errors.Is(err, models.ErrNotMember))
}

func TestCreateMessageValidation(t *testing.T) {
	requireDB(t)
	ctx := context.Background()
	us := NewUserService()
	cs := NewChatService(us)
	owner := createTestUser(t, us, models.RoleUser)

	chat, err := cs.CreateChat(ctx, CreateChatSpec{Type: models.ChatTypePublic}, owner.ID)
	require.NoError(t, err)

	_, err = cs.CreateMessage(ctx, chat.ID, owner.ID, "")
	assert.True(t, errors.Is(err, models.ErrEmptyContent))

	_, err = cs.CreateMessage(ctx, chat.ID, owner.ID, strings.Repeat("x", models.MaxMessageLength+1))
	assert.True(t, errors.Is(err, models.ErrContentTooLong))

	_, err = cs.CreateMessage(ctx, 0, owner.ID, "hello")
	assert.True(t, errors.Is(err, models.ErrChatNotFound))

	msg, err := cs.CreateMessage(ctx, chat.ID, owner.ID, "hello")
	require.NoError(t, err)
	assert.Equal(t, owner.Username, msg.User.Username)
	assert.NotZero(t, msg.ID)
}

func TestUnreadCountRoundTrip(t *testing.T) {
	requireDB(t)
	ctx := context.Background()
	us := NewUserService()
	cs := NewChatService(us)
	sender := createTestUser(t, us, models.RoleUser)
	reader := createTestUser(t, us, models.RoleUser)

	chat, err := cs.CreateChat(ctx, CreateChatSpec{
		Type:    models.ChatTypePublic,
		UserIDs: []int{sender.ID, reader.ID},
	}, sender.ID)
	require.NoError(t, err)

	// A fresh chat has nothing unread.
	count, err := cs.GetUnreadCount(ctx, chat.ID, reader.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	// No marker yet: every message counts as unread.
	for i := 0; i < 3; i++ {
		_, err = cs.CreateMessage(ctx, chat.ID, sender.ID, fmt.Sprintf("msg %d", i))
		require.NoError(t, err)
	}

	count, err = cs.GetUnreadCount(ctx, chat.ID, reader.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	require.NoError(t, cs.MarkChatRead(ctx, chat.ID, reader.ID))

	count, err = cs.GetUnreadCount(ctx, chat.ID, reader.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	// A later message becomes unread again; marking read twice upserts.
	time.Sleep(10 * time.Millisecond)
	_, err = cs.CreateMessage(ctx, chat.ID, sender.ID, "one more")
	require.NoError(t, err)

	count, err = cs.GetUnreadCount(ctx, chat.ID, reader.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, cs.MarkChatRead(ctx, chat.ID, reader.ID))
	count, err = cs.GetUnreadCount(ctx, chat.ID, reader.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestPaginateMessagesOrder(t *testing.T) {
	requireDB(t)
	ctx := context.Background()
	us := NewUserService()
	cs := NewChatService(us)
	owner := createTestUser(t, us, models.RoleUser)

	chat, err := cs.CreateChat(ctx, CreateChatSpec{Type: models.ChatTypePublic}, owner.ID)
	require.NoError(t, err)

	for i := 1; i <= 5; i++ {
		_, err = cs.CreateMessage(ctx, chat.ID, owner.ID, fmt.Sprintf("msg %d", i))
		require.NoError(t, err)
	}

	messages, total, err := cs.PaginateMessages(ctx, chat.ID, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, messages, 3)

	// Newest first.
	assert.Equal(t, "msg 5", messages[0].Content)
	assert.Equal(t, "msg 4", messages[1].Content)

	messages, _, err = cs.PaginateMessages(ctx, chat.ID, 2, 3)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "msg 2", messages[0].Content)
}

package services

import (
	"context"
	"log"
	"time"

	"CommuneChat/server/internal/db"
	"CommuneChat/server/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
)

type CreateChatSpec struct {
	Type    string  `json:"type"`
	Title   *string `json:"title,omitempty"`
	UserIDs []int   `json:"user_ids,omitempty"`
}

type ChatService interface {
	PaginateChats(ctx context.Context, page, limit int, userID *int) ([]models.ChatWithUnread, int, error)
	GetChatByID(ctx context.Context, chatID int) (*models.Chat, error)
	CreateChat(ctx context.Context, spec CreateChatSpec, ownerID int) (*models.Chat, error)
	CheckIfChatExists(ctx context.Context, chatID int) (bool, error)
	IsMember(ctx context.Context, chatID, userID int) (bool, error)
	GetUserChatIDs(ctx context.Context, userID int) ([]int, error)
	GetAllChatIDs(ctx context.Context) ([]int, error)
	GetMembers(ctx context.Context, chatID int) ([]models.PublicProfile, error)
	JoinChat(ctx context.Context, chatID int, actor *models.User) (*models.Chat, error)
	ExitChat(ctx context.Context, chatID int, actor *models.User) error
	CreateMessage(ctx context.Context, chatID, authorID int, content string) (*models.Message, error)
	PaginateMessages(ctx context.Context, chatID, page, limit int) ([]models.Message, int, error)
	MarkChatRead(ctx context.Context, chatID, userID int) error
	GetUnreadCount(ctx context.Context, chatID, userID int) (int, error)
}

type chatService struct {
	UserService *UserService
}

func NewChatService(userService *UserService) *chatService {
	return &chatService{
		UserService: userService,
	}
}

func (cs *chatService) PaginateChats(ctx context.Context, page, limit int, userID *int) ([]models.ChatWithUnread, int, error) {
	query := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar).
		Select("chats.id", "chats.title", "chats.type", "chats.owner_id",
			"chats.created_at", "chats.updated_at").
		From("chats").
		Where(squirrel.Eq{"chats.deleted_at": nil}).
		OrderBy("chats.updated_at DESC").
		Limit(uint64(limit)).
		Offset(uint64((page - 1) * limit))

	countQuery := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar).
		Select("COUNT(*)").
		From("chats").
		Where(squirrel.Eq{"chats.deleted_at": nil})

	if userID != nil {
		membership := squirrel.Expr(
			"chats.id IN (SELECT chat_id FROM chat_users WHERE user_id = ?)", *userID)
		query = query.Where(membership)
		countQuery = countQuery.Where(membership)
	}

	sqlStr, args, err := query.ToSql()
	if err != nil {
		log.Printf("Failed to build SQL query: %v", err)
		return nil, 0, err
	}

	rows, err := db.Pool.Query(ctx, sqlStr, args...)
	if err != nil {
		log.Printf("Error listing chats: %v", err)
		return nil, 0, err
	}
	defer rows.Close()

	var chats []models.ChatWithUnread
	for rows.Next() {
		var chat models.ChatWithUnread
		err := rows.Scan(&chat.ID, &chat.Title, &chat.Type, &chat.OwnerID,
			&chat.CreatedAt, &chat.UpdatedAt)
		if err != nil {
			log.Printf("Error scanning chat row: %v", err)
			return nil, 0, err
		}
		chats = append(chats, chat)
	}
	if rows.Err() != nil {
		return nil, 0, rows.Err()
	}

	countSQL, countArgs, err := countQuery.ToSql()
	if err != nil {
		log.Printf("Failed to build SQL query: %v", err)
		return nil, 0, err
	}

	var total int
	err = db.Pool.QueryRow(ctx, countSQL, countArgs...).Scan(&total)
	if err != nil {
		log.Printf("Error counting chats: %v", err)
		return nil, 0, err
	}

	for i := range chats {
		members, err := cs.GetMembers(ctx, chats[i].ID)
		if err != nil {
			log.Printf("Error getting members for chat %d: %v", chats[i].ID, err)
			continue
		}
		chats[i].Users = members

		if userID != nil {
			unread, err := cs.GetUnreadCount(ctx, chats[i].ID, *userID)
			if err != nil {
				log.Printf("Error getting unread count for chat %d: %v", chats[i].ID, err)
				continue
			}
			chats[i].UnreadCount = unread
		}
	}

	return chats, total, nil
}

func (cs *chatService) GetChatByID(ctx context.Context, chatID int) (*models.Chat, error) {
	query := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar).
		Select("id", "title", "type", "owner_id", "created_at", "updated_at").
		From("chats").
		Where(squirrel.And{
			squirrel.Eq{"id": chatID},
			squirrel.Eq{"deleted_at": nil},
		})

	sqlStr, args, err := query.ToSql()
	if err != nil {
		log.Printf("Failed to build SQL query: %v", err)
		return nil, err
	}

	var chat models.Chat
	err = db.Pool.QueryRow(ctx, sqlStr, args...).Scan(
		&chat.ID, &chat.Title, &chat.Type, &chat.OwnerID, &chat.CreatedAt, &chat.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, models.ErrChatNotFound
		}
		log.Printf("Error getting chat %d: %v", chatID, err)
		return nil, err
	}

	members, err := cs.GetMembers(ctx, chatID)
	if err != nil {
		log.Printf("Error getting members for chat %d: %v", chatID, err)
		return nil, err
	}
	chat.Users = members

	return &chat, nil
}

// CreateChat inserts the chat and its initial member set. A missing title
// defaults to a label stamped with the creation time; a missing member list
// defaults to the creator alone.
func (cs *chatService) CreateChat(ctx context.Context, spec CreateChatSpec, ownerID int) (*models.Chat, error) {
	title := ""
	if spec.Title != nil {
		title = *spec.Title
	}
	if title == "" {
		title = "Chat " + time.Now().Format("2006-01-02 15:04")
	}

	chatType := spec.Type
	if chatType == "" {
		chatType = models.ChatTypePrivate
	}

	memberIDs := spec.UserIDs
	if len(memberIDs) == 0 {
		memberIDs = []int{ownerID}
	}

	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		log.Printf("Error starting transaction: %v", err)
		return nil, err
	}
	defer tx.Rollback(ctx)

	query := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar).
		Insert("chats").
		Columns("title", "type", "owner_id").
		Values(title, chatType, ownerID).
		Suffix("RETURNING id")

	sqlStr, args, err := query.ToSql()
	if err != nil {
		log.Printf("Failed to build SQL query: %v", err)
		return nil, err
	}

	var chatID int
	err = tx.QueryRow(ctx, sqlStr, args...).Scan(&chatID)
	if err != nil {
		log.Printf("Error creating chat: %v", err)
		return nil, err
	}

	insert := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar).
		Insert("chat_users").
		Columns("chat_id", "user_id").
		Suffix("ON CONFLICT DO NOTHING")
	for _, userID := range memberIDs {
		insert = insert.Values(chatID, userID)
	}

	sqlStr, args, err = insert.ToSql()
	if err != nil {
		log.Printf("Failed to build SQL query: %v", err)
		return nil, err
	}

	_, err = tx.Exec(ctx, sqlStr, args...)
	if err != nil {
		log.Printf("Error adding members to chat %d: %v", chatID, err)
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		log.Printf("Error committing chat creation: %v", err)
		return nil, err
	}

	log.Printf("Chat created with ID %d by user %d", chatID, ownerID)
	return cs.GetChatByID(ctx, chatID)
}

func (cs *chatService) CheckIfChatExists(ctx context.Context, chatID int) (bool, error) {
	query := `
        SELECT EXISTS (
            SELECT 1
            FROM chats
            WHERE id = $1 AND deleted_at IS NULL
        )
    `

	var exists bool
	err := db.Pool.QueryRow(ctx, query, chatID).Scan(&exists)
	if err != nil {
		log.Printf("Error checking if chat %d exists: %v", chatID, err)
		return false, err
	}

	return exists, nil
}

func (cs *chatService) IsMember(ctx context.Context, chatID, userID int) (bool, error) {
	query := `
        SELECT EXISTS (
            SELECT 1
            FROM chat_users
            WHERE chat_id = $1 AND user_id = $2
        )
    `

	var exists bool
	err := db.Pool.QueryRow(ctx, query, chatID, userID).Scan(&exists)
	if err != nil {
		log.Printf("Error checking if user %d is a member of chat %d: %v", userID, chatID, err)
		return false, err
	}

	return exists, nil
}

func (cs *chatService) GetUserChatIDs(ctx context.Context, userID int) ([]int, error) {
	query := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar).
		Select("chat_users.chat_id").
		From("chat_users").
		Join("chats ON chats.id = chat_users.chat_id").
		Where(squirrel.And{
			squirrel.Eq{"chat_users.user_id": userID},
			squirrel.Eq{"chats.deleted_at": nil},
		})

	sqlStr, args, err := query.ToSql()
	if err != nil {
		log.Printf("Failed to build SQL query: %v", err)
		return nil, err
	}

	return cs.queryIDs(ctx, sqlStr, args)
}

func (cs *chatService) GetAllChatIDs(ctx context.Context) ([]int, error) {
	query := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar).
		Select("id").
		From("chats").
		Where(squirrel.Eq{"deleted_at": nil})

	sqlStr, args, err := query.ToSql()
	if err != nil {
		log.Printf("Failed to build SQL query: %v", err)
		return nil, err
	}

	return cs.queryIDs(ctx, sqlStr, args)
}

func (cs *chatService) queryIDs(ctx context.Context, sqlStr string, args []interface{}) ([]int, error) {
	rows, err := db.Pool.Query(ctx, sqlStr, args...)
	if err != nil {
		log.Printf("Error querying chat ids: %v", err)
		return nil, err
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			log.Printf("Error scanning chat id: %v", err)
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (cs *chatService) GetMembers(ctx context.Context, chatID int) ([]models.PublicProfile, error) {
	query := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar).
		Select("users.id", "users.username", "users.nickname", "users.role").
		From("users").
		Join("chat_users ON users.id = chat_users.user_id").
		Where(squirrel.Eq{"chat_users.chat_id": chatID}).
		OrderBy("users.id")

	sqlStr, args, err := query.ToSql()
	if err != nil {
		log.Printf("Failed to build SQL query: %v", err)
		return nil, err
	}

	rows, err := db.Pool.Query(ctx, sqlStr, args...)
	if err != nil {
		log.Printf("Error getting members for chat %d: %v", chatID, err)
		return nil, err
	}
	defer rows.Close()

	var members []models.PublicProfile
	for rows.Next() {
		var member models.PublicProfile
		err := rows.Scan(&member.ID, &member.Username, &member.Nickname, &member.Role)
		if err != nil {
			log.Printf("Error scanning member row: %v", err)
			return nil, err
		}
		members = append(members, member)
	}

	return members, rows.Err()
}

// JoinChat records durable membership. Private chats accept new members only
// from their owner or an admin; admins themselves are never recorded, and a
// repeated join returns the existing state. The insert relies on the
// primary key conflict clause, so concurrent joins cannot double-insert.
func (cs *chatService) JoinChat(ctx context.Context, chatID int, actor *models.User) (*models.Chat, error) {
	chat, err := cs.GetChatByID(ctx, chatID)
	if err != nil {
		return nil, err
	}

	if actor.IsAdmin() {
		log.Printf("Admin %d entered chat %d without membership", actor.ID, chatID)
		return chat, nil
	}

	if chat.Type == models.ChatTypePrivate && chat.OwnerID != actor.ID {
		log.Printf("User %d denied joining private chat %d", actor.ID, chatID)
		return nil, models.ErrForbidden
	}

	query := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar).
		Insert("chat_users").
		Columns("chat_id", "user_id").
		Values(chatID, actor.ID).
		Suffix("ON CONFLICT DO NOTHING")

	sqlStr, args, err := query.ToSql()
	if err != nil {
		log.Printf("Failed to build SQL query: %v", err)
		return nil, err
	}

	_, err = db.Pool.Exec(ctx, sqlStr, args...)
	if err != nil {
		log.Printf("Error joining user %d to chat %d: %v", actor.ID, chatID, err)
		return nil, err
	}

	log.Printf("User %d joined chat %d", actor.ID, chatID)
	return cs.GetChatByID(ctx, chatID)
}

// ExitChat removes durable membership. Exiting is a no-op for admins since
// they are never recorded as members. When the last member leaves, the chat
// is soft-deleted. Delete, remaining-member count, and soft delete run in a
// single transaction so concurrent exits cannot miss the empty state.
func (cs *chatService) ExitChat(ctx context.Context, chatID int, actor *models.User) error {
	exists, err := cs.CheckIfChatExists(ctx, chatID)
	if err != nil {
		return err
	}
	if !exists {
		return models.ErrChatNotFound
	}

	if actor.IsAdmin() {
		log.Printf("Admin %d exit from chat %d is a no-op", actor.ID, chatID)
		return nil
	}

	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		log.Printf("Error starting transaction: %v", err)
		return err
	}
	defer tx.Rollback(ctx)

	deleteQuery := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar).
		Delete("chat_users").
		Where(squirrel.And{
			squirrel.Eq{"chat_id": chatID},
			squirrel.Eq{"user_id": actor.ID},
		})

	sqlStr, args, err := deleteQuery.ToSql()
	if err != nil {
		log.Printf("Failed to build SQL query: %v", err)
		return err
	}

	result, err := tx.Exec(ctx, sqlStr, args...)
	if err != nil {
		log.Printf("Error removing user %d from chat %d: %v", actor.ID, chatID, err)
		return err
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotMember
	}

	var remaining int
	err = tx.QueryRow(ctx,
		"SELECT COUNT(*) FROM chat_users WHERE chat_id = $1", chatID).Scan(&remaining)
	if err != nil {
		log.Printf("Error counting remaining members of chat %d: %v", chatID, err)
		return err
	}

	if remaining == 0 {
		_, err = tx.Exec(ctx,
			"UPDATE chats SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL", chatID)
		if err != nil {
			log.Printf("Error soft-deleting chat %d: %v", chatID, err)
			return err
		}
		log.Printf("Chat %d soft-deleted after last member left", chatID)
	}

	if err := tx.Commit(ctx); err != nil {
		log.Printf("Error committing exit from chat %d: %v", chatID, err)
		return err
	}

	log.Printf("User %d exited chat %d", actor.ID, chatID)
	return nil
}

// CreateMessage persists a message and bumps the chat's activity timestamp
// so chat listings sort by recency. The returned message carries the
// author's public profile only.
func (cs *chatService) CreateMessage(ctx context.Context, chatID, authorID int, content string) (*models.Message, error) {
	if content == "" {
		return nil, models.ErrEmptyContent
	}
	if len(content) > models.MaxMessageLength {
		return nil, models.ErrContentTooLong
	}

	exists, err := cs.CheckIfChatExists(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, models.ErrChatNotFound
	}

	query := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar).
		Insert("messages").
		Columns("chat_id", "user_id", "content").
		Values(chatID, authorID, content).
		Suffix("RETURNING id, created_at")

	sqlStr, args, err := query.ToSql()
	if err != nil {
		log.Printf("Failed to build SQL query: %v", err)
		return nil, err
	}

	var messageID int
	var createdAt time.Time
	err = db.Pool.QueryRow(ctx, sqlStr, args...).Scan(&messageID, &createdAt)
	if err != nil {
		log.Printf("Error saving message in chat %d: %v", chatID, err)
		return nil, err
	}

	_, err = db.Pool.Exec(ctx,
		"UPDATE chats SET updated_at = NOW() WHERE id = $1", chatID)
	if err != nil {
		log.Printf("Error bumping activity timestamp of chat %d: %v", chatID, err)
	}

	author, err := cs.UserService.GetUserByID(ctx, authorID)
	if err != nil {
		log.Printf("Error fetching author %d of message %d: %v", authorID, messageID, err)
		return nil, err
	}

	message := &models.Message{
		ID:        messageID,
		ChatID:    chatID,
		UserID:    authorID,
		User:      author.Public(),
		Content:   content,
		CreatedAt: createdAt,
	}

	log.Printf("Message %d saved in chat %d by user %d", messageID, chatID, authorID)
	return message, nil
}

func (cs *chatService) PaginateMessages(ctx context.Context, chatID, page, limit int) ([]models.Message, int, error) {
	query := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar).
		Select("messages.id", "messages.chat_id", "messages.user_id", "messages.content",
			"messages.created_at", "users.username", "users.nickname", "users.role").
		From("messages").
		Join("users ON users.id = messages.user_id").
		Where(squirrel.Eq{"messages.chat_id": chatID}).
		OrderBy("messages.created_at DESC", "messages.id DESC").
		Limit(uint64(limit)).
		Offset(uint64((page - 1) * limit))

	sqlStr, args, err := query.ToSql()
	if err != nil {
		log.Printf("Failed to build SQL query: %v", err)
		return nil, 0, err
	}

	rows, err := db.Pool.Query(ctx, sqlStr, args...)
	if err != nil {
		log.Printf("Error listing messages for chat %d: %v", chatID, err)
		return nil, 0, err
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var msg models.Message
		err := rows.Scan(&msg.ID, &msg.ChatID, &msg.UserID, &msg.Content,
			&msg.CreatedAt, &msg.User.Username, &msg.User.Nickname, &msg.User.Role)
		if err != nil {
			log.Printf("Error scanning message row: %v", err)
			return nil, 0, err
		}
		msg.User.ID = msg.UserID
		messages = append(messages, msg)
	}
	if rows.Err() != nil {
		return nil, 0, rows.Err()
	}

	var total int
	err = db.Pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM messages WHERE chat_id = $1", chatID).Scan(&total)
	if err != nil {
		log.Printf("Error counting messages for chat %d: %v", chatID, err)
		return nil, 0, err
	}

	return messages, total, nil
}

// MarkChatRead upserts the (chat, user) last-read marker to now.
func (cs *chatService) MarkChatRead(ctx context.Context, chatID, userID int) error {
	query := `
        INSERT INTO chat_last_reads (chat_id, user_id, last_read_at)
        VALUES ($1, $2, NOW())
        ON CONFLICT ON CONSTRAINT uq_chat_last_reads_chat_user
        DO UPDATE SET last_read_at = NOW()
    `

	_, err := db.Pool.Exec(ctx, query, chatID, userID)
	if err != nil {
		log.Printf("Error marking chat %d read for user %d: %v", chatID, userID, err)
		return err
	}

	return nil
}

// GetUnreadCount counts messages created strictly after the user's last-read
// marker. A chat that was never read counts all of its messages.
func (cs *chatService) GetUnreadCount(ctx context.Context, chatID, userID int) (int, error) {
	query := `
        SELECT COUNT(*)
        FROM messages
        WHERE chat_id = $1
          AND created_at > COALESCE(
              (SELECT last_read_at FROM chat_last_reads
               WHERE chat_id = $1 AND user_id = $2),
              'epoch'::timestamptz)
    `

	var count int
	err := db.Pool.QueryRow(ctx, query, chatID, userID).Scan(&count)
	if err != nil {
		log.Printf("Error getting unread count for chat %d and user %d: %v", chatID, userID, err)
		return 0, err
	}

	return count, nil
}

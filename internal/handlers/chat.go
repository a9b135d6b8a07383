package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"CommuneChat/server/internal/appMiddleware"
	"CommuneChat/server/internal/models"
	"CommuneChat/server/internal/services"
)

var chatService services.ChatService

func init() {
	chatService = services.NewChatService(userService)
}

// PaginateChats lists all live chats, no authentication required.
func PaginateChats(w http.ResponseWriter, r *http.Request) {
	page, limit := parsePagination(r)

	chats, total, err := chatService.PaginateChats(r.Context(), page, limit, nil)
	if err != nil {
		log.Printf("Error listing chats: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writePage(w, chats, total, page, limit)
}

// PaginateMyChats lists the caller's chats with unread counts.
func PaginateMyChats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := appMiddleware.UserIDFromContext(ctx)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	page, limit := parsePagination(r)

	chats, total, err := chatService.PaginateChats(ctx, page, limit, &userID)
	if err != nil {
		log.Printf("Error listing chats for user %d: %v", userID, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writePage(w, chats, total, page, limit)
}

// GetChatByID returns the chat detail together with its latest messages and
// the caller's unread count, and advances the caller's read marker as a
// detached best-effort task.
func GetChatByID(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	chatID, ok := chatIDFromURL(w, r)
	if !ok {
		return
	}

	userID, ok := appMiddleware.UserIDFromContext(ctx)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	user, err := userService.GetUserByID(ctx, userID)
	if err != nil {
		log.Printf("Error fetching user %d: %v", userID, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	chat, err := chatService.GetChatByID(ctx, chatID)
	if err != nil {
		if errors.Is(err, models.ErrChatNotFound) {
			http.Error(w, "Chat not found", http.StatusNotFound)
			return
		}
		log.Printf("Error getting chat %d: %v", chatID, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if err := authorizeRead(ctx, chat, user); err != nil {
		http.Error(w, "Access to chat denied", http.StatusForbidden)
		return
	}

	page, limit := parsePagination(r)
	messages, total, err := chatService.PaginateMessages(ctx, chatID, page, limit)
	if err != nil {
		log.Printf("Error getting messages for chat %d: %v", chatID, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	unread, err := chatService.GetUnreadCount(ctx, chatID, userID)
	if err != nil {
		log.Printf("Error getting unread count for chat %d: %v", chatID, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	markChatReadAsync(chatID, userID)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"chat":           chat,
		"messages":       messages,
		"total_messages": total,
		"unread_count":   unread,
	})
}

func CreateChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := appMiddleware.UserIDFromContext(ctx)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var spec services.CreateChatSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if spec.Type != "" && !models.ValidChatType(spec.Type) {
		http.Error(w, "Invalid chat type", http.StatusBadRequest)
		return
	}

	chat, err := chatService.CreateChat(ctx, spec, userID)
	if err != nil {
		log.Printf("Error creating chat for user %d: %v", userID, err)
		http.Error(w, "Failed to create chat", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(chat)
}

func JoinChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	chatID, ok := chatIDFromURL(w, r)
	if !ok {
		return
	}

	user, ok := actorFromContext(w, r)
	if !ok {
		return
	}

	chat, err := chatService.JoinChat(ctx, chatID, user)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrChatNotFound):
			http.Error(w, "Chat not found", http.StatusNotFound)
		case errors.Is(err, models.ErrForbidden):
			http.Error(w, "Access to chat denied", http.StatusForbidden)
		default:
			log.Printf("Error joining user %d to chat %d: %v", user.ID, chatID, err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(chat)
}

func ExitChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	chatID, ok := chatIDFromURL(w, r)
	if !ok {
		return
	}

	user, ok := actorFromContext(w, r)
	if !ok {
		return
	}

	if err := chatService.ExitChat(ctx, chatID, user); err != nil {
		switch {
		case errors.Is(err, models.ErrChatNotFound):
			http.Error(w, "Chat not found", http.StatusNotFound)
		case errors.Is(err, models.ErrNotMember):
			http.Error(w, "User is not a member of this chat", http.StatusForbidden)
		default:
			log.Printf("Error exiting user %d from chat %d: %v", user.ID, chatID, err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"success": true})
}

func PaginateChatMessages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	chatID, ok := chatIDFromURL(w, r)
	if !ok {
		return
	}

	page, limit := parsePagination(r)

	messages, total, err := chatService.PaginateMessages(ctx, chatID, page, limit)
	if err != nil {
		log.Printf("Error getting messages for chat %d: %v", chatID, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writePage(w, messages, total, page, limit)
}

// markChatReadAsync advances the read marker without blocking the response.
// Failure is observable only in logs; it is never retried synchronously and
// never surfaces to the caller.
func markChatReadAsync(chatID, userID int) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := chatService.MarkChatRead(ctx, chatID, userID); err != nil {
			log.Printf("Best-effort read marker update failed for chat %d, user %d: %v", chatID, userID, err)
		}
	}()
}

// authorizeRead applies the room read rule: admin, recorded member, or
// public chat type.
func authorizeRead(ctx context.Context, chat *models.Chat, user *models.User) error {
	if user.IsAdmin() || chat.Type == models.ChatTypePublic {
		return nil
	}

	isMember, err := chatService.IsMember(ctx, chat.ID, user.ID)
	if err != nil {
		return err
	}
	if !isMember {
		return models.ErrForbidden
	}
	return nil
}

func actorFromContext(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	userID, ok := appMiddleware.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return nil, false
	}

	user, err := userService.GetUserByID(r.Context(), userID)
	if err != nil {
		log.Printf("Error fetching user %d: %v", userID, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return nil, false
	}

	return user, true
}

func chatIDFromURL(w http.ResponseWriter, r *http.Request) (int, bool) {
	chatIDStr := chi.URLParam(r, "chat_id")
	chatID, err := strconv.Atoi(chatIDStr)
	if err != nil || chatID <= 0 {
		log.Printf("Invalid chat ID: %s", chatIDStr)
		http.Error(w, "Invalid chat ID", http.StatusBadRequest)
		return 0, false
	}
	return chatID, true
}

func parsePagination(r *http.Request) (int, int) {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		page = 1
	}

	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit < 1 || limit > 100 {
		limit = 20
	}

	return page, limit
}

func writePage(w http.ResponseWriter, data interface{}, total, page, limit int) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"data":  data,
		"total": total,
		"page":  page,
		"limit": limit,
	})
}

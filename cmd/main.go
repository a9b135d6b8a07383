package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"CommuneChat/server/internal/appMiddleware"
	"CommuneChat/server/internal/auth"
	"CommuneChat/server/internal/db"
	"CommuneChat/server/internal/handlers"
	"CommuneChat/server/internal/services"
	"CommuneChat/server/internal/ws"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func main() {
	db.InitDB()
	defer db.CloseDB()

	userService := services.NewUserService()
	chatService := services.NewChatService(userService)

	// The handshake accepts either token kind; the kind tag only matters
	// for the REST surface.
	gateway := ws.NewGateway(chatService, userService, ws.VerifierFunc(func(token string) (*auth.Claims, error) {
		return auth.VerifyToken(token, auth.KindAny)
	}))

	r := chi.NewRouter()

	r.Use(appMiddleware.CorsMiddleware)

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Post("/register", handlers.Register)
	r.Post("/auth/verify-email", handlers.VerifyEmail)
	r.Post("/login", handlers.Login)
	r.Get("/chats", handlers.PaginateChats)

	r.Group(func(r chi.Router) {
		r.Use(appMiddleware.AuthMiddleware)
		r.Get("/api/profile", handlers.GetProfile)
		r.Post("/auth/logout", handlers.Logout)

		r.Post("/api/chats", handlers.CreateChat)
		r.Get("/api/chats/my", handlers.PaginateMyChats)
		r.Get("/api/chats/{chat_id}", handlers.GetChatByID)
		r.Post("/api/chats/{chat_id}/join", handlers.JoinChat)
		r.Delete("/api/chats/{chat_id}/exit", handlers.ExitChat)
		r.Get("/api/chats/{chat_id}/messages", handlers.PaginateChatMessages)
	})

	r.Group(func(r chi.Router) {
		r.Use(appMiddleware.RefreshMiddleware)
		r.Post("/auth/refresh", handlers.Refresh)
	})

	r.Get("/ws", gateway.HandleWebSocket)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	log.Printf("Server started on port %s\n", port)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %s\n", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	<-stop

	log.Println("Stopping the server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server shutdown error: %s\n", err)
	}
	log.Println("Server has been successfully stopped")
}

package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"CommuneChat/server/internal/models"
	"CommuneChat/server/internal/services"
)

var userService = services.NewUserService()

func Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Nickname string `json:"nickname"`
		Password string `json:"password"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" || req.Email == "" || req.Password == "" {
		log.Printf("Invalid register request: %v", err)
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if req.Nickname == "" {
		req.Nickname = req.Username
	}

	ctx := r.Context()

	exists, err := userService.CheckUserExists(ctx, req.Username, req.Email)
	if err != nil {
		log.Printf("Error checking user existence: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if exists {
		http.Error(w, "User with this email or username already exists", http.StatusConflict)
		return
	}

	user := &models.User{
		Username: req.Username,
		Email:    req.Email,
		Nickname: req.Nickname,
		Password: req.Password,
	}

	userID, code, err := userService.CreateUser(ctx, user)
	if err != nil {
		log.Printf("Error creating user: %v", err)
		http.Error(w, "Failed to create user", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": "User created, email verification required",
		"user_id": userID,
		// Returned for test environments; production delivers it by mail.
		"verification_code": code,
	})
}

func VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email            string `json:"email"`
		VerificationCode string `json:"verification_code"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.VerificationCode == "" {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	user, err := userService.VerifyEmail(r.Context(), req.Email, req.VerificationCode)
	if err != nil {
		log.Printf("Email verification failed for %s: %v", req.Email, err)
		http.Error(w, "Verification failed", http.StatusBadRequest)
		return
	}

	writeTokenPair(w, user)
}

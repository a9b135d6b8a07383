package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"CommuneChat/server/internal/appMiddleware"
	"CommuneChat/server/internal/auth"
	"CommuneChat/server/internal/models"
	"CommuneChat/server/internal/utils"
)

func Login(w http.ResponseWriter, r *http.Request) {
	var loginData struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}

	err := json.NewDecoder(r.Body).Decode(&loginData)
	if err != nil || loginData.Username == "" || loginData.Password == "" {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	user, err := userService.GetUserByUsername(ctx, loginData.Username)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			writeJSONError(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		log.Printf("Error fetching user by username: %v", err)
		writeJSONError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	if err := utils.CheckPasswordHash(loginData.Password, user.Password); err != nil {
		log.Printf("Password verification failed for user %d", user.ID)
		writeJSONError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	writeTokenPair(w, user)
}

// Refresh mints a new access token for a caller holding a valid refresh
// token (enforced by RefreshMiddleware).
func Refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := appMiddleware.UserIDFromContext(ctx)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	user, err := userService.GetUserByID(ctx, userID)
	if err != nil {
		log.Printf("Error fetching user %d for refresh: %v", userID, err)
		writeJSONError(w, http.StatusUnauthorized, "User not found")
		return
	}

	accessToken, err := auth.SignToken(user, auth.KindAccess)
	if err != nil {
		log.Printf("Error signing access token for user %d: %v", user.ID, err)
		writeJSONError(w, http.StatusInternalServerError, "Token creation error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"access_token": accessToken,
		"user":         user.Public(),
	})
}

// Logout blacklists the presented token; it stays unusable until expiry.
func Logout(w http.ResponseWriter, r *http.Request) {
	token, ok := appMiddleware.TokenFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	auth.Blacklist.Add(token)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Successfully logged out"})
}

func writeTokenPair(w http.ResponseWriter, user *models.User) {
	accessToken, err := auth.SignToken(user, auth.KindAccess)
	if err != nil {
		log.Printf("Error signing access token for user %d: %v", user.ID, err)
		writeJSONError(w, http.StatusInternalServerError, "Token creation error")
		return
	}

	refreshToken, err := auth.SignToken(user, auth.KindRefresh)
	if err != nil {
		log.Printf("Error signing refresh token for user %d: %v", user.ID, err)
		writeJSONError(w, http.StatusInternalServerError, "Token creation error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"user":          user.Public(),
	})
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"message": message})
}

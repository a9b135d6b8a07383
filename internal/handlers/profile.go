package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"CommuneChat/server/internal/appMiddleware"
)

func GetProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := appMiddleware.UserIDFromContext(ctx)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	user, err := userService.GetUserByID(ctx, userID)
	if err != nil {
		log.Printf("Error fetching profile for user %d: %v", userID, err)
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(user)
}

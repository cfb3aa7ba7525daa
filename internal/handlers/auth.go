package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/servly-app/servlygo/internal/models"
	"github.com/servly-app/servlygo/internal/utils"
)

// LoginRequest represents a login request
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequest represents a registration request
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Role     string `json:"role"`
}

// login handles user login
func (r *Router) login(w http.ResponseWriter, req *http.Request) {
	var loginReq LoginRequest
	if err := json.NewDecoder(req.Body).Decode(&loginReq); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	// 1. Find User
	var user models.UserAuth
	if err := r.db.Where("email = ?", loginReq.Email).First(&user).Error; err != nil {
		respondError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	// 2. Check Password
	if !utils.CheckPasswordHash(loginReq.Password, user.Password) {
		respondError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	// 3. Update Last Login
	now := time.Now()
	user.LastLogin = &now
	r.db.Save(&user)

	// 4. Generate Tokens
	accessToken, refreshToken, err := utils.GenerateTokens(&user, r.cfg)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to generate tokens")
		return
	}

	// The remote client authenticates with the same token
	r.client.SetToken(accessToken)

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"tokens": map[string]string{
			"accessToken":  accessToken,
			"refreshToken": refreshToken,
		},
		"user": user,
	})
}

// register handles user registration
func (r *Router) register(w http.ResponseWriter, req *http.Request) {
	var regReq RegisterRequest
	if err := json.NewDecoder(req.Body).Decode(&regReq); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	// 1. Hash Password
	hashedPassword, err := utils.HashPassword(regReq.Password)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to hash password")
		return
	}

	// 2. Create User
	user := models.UserAuth{
		Email:    regReq.Email,
		Password: hashedPassword,
		Name:     regReq.Name,
		Role:     "customer",
	}
	if regReq.Role == "provider" {
		user.Role = "provider"
	}

	if err := r.db.Create(&user).Error; err != nil {
		respondError(w, http.StatusBadRequest, "Failed to create user (email might exist)")
		return
	}

	// 3. Generate Tokens for immediate login
	accessToken, refreshToken, err := utils.GenerateTokens(&user, r.cfg)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "User created but failed to generate tokens")
		return
	}

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "User registered successfully",
		"tokens": map[string]string{
			"accessToken":  accessToken,
			"refreshToken": refreshToken,
		},
		"user": user,
	})
}

// logout ends the local session. Queued mutations and cached entities
// belong to the account, so both are dropped along with the visible state.
func (r *Router) logout(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	if err := r.queue.Clear(ctx); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to clear pending mutations")
		return
	}
	if err := r.cache.Clear(ctx); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to clear cached entities")
		return
	}
	r.bookings.Clear()
	r.client.SetToken("")

	log.Printf("🧹 Session cleared: queue, cache and visible state dropped")
	respondJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

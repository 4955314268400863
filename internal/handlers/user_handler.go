package handlers

import (
	"net/http"

	"community-campaigns/internal/auth"
	"community-campaigns/internal/services"

	"github.com/gin-gonic/gin"
)

// UserHandler handles user-related endpoints
type UserHandler struct {
	users services.UserLookup
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(users services.UserLookup) *UserHandler {
	return &UserHandler{users: users}
}

// GetProfile returns the current user's profile
// GET /api/user/profile
func (h *UserHandler) GetProfile(c *gin.Context) {
	userID, exists := auth.GetUserID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "User not authenticated",
		})
		return
	}

	user, err := h.users.GetByID(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":             user.ID,
		"email":          user.Email,
		"nickname":       user.Nickname,
		"wallet_address": user.WalletAddress,
		"is_admin":       user.IsAdmin,
		"created_at":     user.CreatedAt,
	})
}

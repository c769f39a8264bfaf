package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/habitcraft/habitcraft/backend/internal/middleware"
	"github.com/habitcraft/habitcraft/backend/internal/services"
	"github.com/habitcraft/habitcraft/backend/pkg/response"
)

type UserHandler struct {
	authService *services.AuthService
}

func NewUserHandler(authService *services.AuthService) *UserHandler {
	return &UserHandler{authService: authService}
}

// GetCurrentUser returns the authenticated user's profile
// GET /api/users/me
func (h *UserHandler) GetCurrentUser(c *gin.Context) {
	userID := middleware.GetUserID(c)

	user, err := h.authService.GetUserByID(userID)
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			response.NotFound(c, "user not found")
			return
		}
		response.Error(c, err)
		return
	}

	response.Success(c, gin.H{"user": user})
}

// ChangePassword updates the authenticated user's password and revokes all
// of their refresh tokens, forcing re-login on every other device
// PUT /api/users/me/password
func (h *UserHandler) ChangePassword(c *gin.Context) {
	var req services.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if req.NewPassword != req.ConfirmPassword {
		response.BadRequest(c, "password confirmation does not match")
		return
	}

	userID := middleware.GetUserID(c)
	if err := h.authService.ChangePassword(userID, &req, auditContext(c)); err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidCurrentPassword):
			response.Unauthorized(c, "invalid current password")
		case errors.Is(err, services.ErrUserNotFound):
			response.NotFound(c, "user not found")
		default:
			response.Error(c, err)
		}
		return
	}

	response.Success(c, gin.H{"message": "password updated"})
}

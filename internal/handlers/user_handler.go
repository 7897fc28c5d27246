package handlers

import (
	"errors"
	"net/http"

	"defendo-server/internal/services"
	"defendo-server/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// UpdateProfileRequest is the request body for PUT /api/users/me
type UpdateProfileRequest struct {
	Email *string `json:"email,omitempty"`
	Phone *string `json:"phone,omitempty"`
}

// ChangePasswordRequest is the request body for POST /api/users/me/password
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

// EnableTOTPRequest is the request body for POST /api/users/me/totp/enable
type EnableTOTPRequest struct {
	Code string `json:"code" binding:"required"`
}

// UserHandler handles self-service profile requests
type UserHandler struct {
	userService UserServiceInterface
}

// NewUserHandler creates a new user handler
func NewUserHandler(userService UserServiceInterface) *UserHandler {
	return &UserHandler{userService: userService}
}

// Me returns the authenticated user's profile (GET /api/users/me)
func (h *UserHandler) Me(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	user, err := h.userService.GetUser(userID)
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		logger.Error("Failed to get user",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get user"})
		return
	}

	c.JSON(http.StatusOK, user.ToResponse())
}

// UpdateMe updates the authenticated user's profile (PUT /api/users/me)
func (h *UserHandler) UpdateMe(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid profile update request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	updates := make(map[string]interface{})
	if req.Email != nil {
		updates["email"] = *req.Email
	}
	if req.Phone != nil {
		updates["phone"] = *req.Phone
	}
	if len(updates) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No valid fields to update"})
		return
	}

	if err := h.userService.UpdateUser(userID, updates); err != nil {
		logger.Warn("Profile update failed",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.userService.GetUser(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get user"})
		return
	}

	c.JSON(http.StatusOK, user.ToResponse())
}

// ChangePassword handles self-service password change (POST /api/users/me/password)
func (h *UserHandler) ChangePassword(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid password change request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	if err := h.userService.ChangePassword(userID, req.OldPassword, req.NewPassword); err != nil {
		logger.Warn("Password change failed",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Password changed successfully",
	})
}

// GenerateTOTP creates a TOTP secret for 2FA enrollment
// (POST /api/users/me/totp/generate)
func (h *UserHandler) GenerateTOTP(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	secret, err := h.userService.GenerateTOTPSecret(userID)
	if err != nil {
		logger.Error("Failed to generate TOTP secret",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate TOTP secret"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"secret": secret,
	})
}

// EnableTOTP turns on 2FA after verifying a code from the enrolled device
// (POST /api/users/me/totp/enable)
func (h *UserHandler) EnableTOTP(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req EnableTOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "TOTP code is required"})
		return
	}

	if err := h.userService.EnableTOTP(userID, req.Code); err != nil {
		if errors.Is(err, services.ErrInvalidTOTP) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid TOTP code"})
			return
		}
		logger.Error("Failed to enable TOTP",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "2FA enabled",
	})
}

// DisableTOTP turns off 2FA (POST /api/users/me/totp/disable)
func (h *UserHandler) DisableTOTP(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	if err := h.userService.DisableTOTP(userID); err != nil {
		logger.Error("Failed to disable TOTP",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to disable TOTP"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "2FA disabled",
	})
}

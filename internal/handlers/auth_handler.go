package handlers

import (
	"errors"
	"net/http"

	"defendo-server/internal/config"
	"defendo-server/internal/models"
	"defendo-server/internal/services"
	"defendo-server/pkg/logger"
	"defendo-server/pkg/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// LoginRequest is the request body for POST /api/auth/login
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	TOTPCode string `json:"totp_code,omitempty"`
}

// AuthHandler handles registration and authentication requests
type AuthHandler struct {
	config      *config.Config
	userService UserServiceInterface
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(cfg *config.Config, userService UserServiceInterface) *AuthHandler {
	return &AuthHandler{
		config:      cfg,
		userService: userService,
	}
}

// Register handles user registration (POST /api/auth/register)
func (h *AuthHandler) Register(c *gin.Context) {
	logger.Info("User registration endpoint called")

	var req models.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid registration request", zap.Error(err))
		if req.Username == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Username is required"})
			return
		}
		if req.Email == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Email is required"})
			return
		}
		if req.Password == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Password is required"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	user, err := h.userService.CreateUser(req.Username, req.Email, req.Password, req.Phone)
	if err != nil {
		logger.Warn("User registration failed",
			zap.String("username", req.Username),
			zap.Error(err),
		)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	logger.Info("User registered successfully",
		zap.String("user_id", user.ID),
		zap.String("username", user.Username),
	)

	c.JSON(http.StatusCreated, user.ToResponse())
}

// Login handles user authentication and returns a JWT token (POST /api/auth/login)
func (h *AuthHandler) Login(c *gin.Context) {
	logger.Info("Auth login endpoint called")

	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Error("Failed to parse login request")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	if req.Username == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Username and password are required"})
		return
	}

	user, err := h.userService.Authenticate(req.Username, req.Password, req.TOTPCode)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidCredentials), errors.Is(err, services.ErrInvalidTOTP):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		case errors.Is(err, services.ErrAccountLocked):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Account is locked"})
		default:
			logger.Error("Authentication error",
				zap.String("username", req.Username),
				zap.Error(err),
			)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		}
		return
	}

	token, err := middleware.GenerateToken(user.ID, h.config)
	if err != nil {
		logger.Error("Failed to generate token",
			zap.String("user_id", user.ID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token": token,
		"user":  user.ToResponse(),
	})
}

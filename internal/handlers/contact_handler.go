package handlers

import (
	"errors"
	"net/http"

	"defendo-server/internal/models"
	"defendo-server/internal/services"
	"defendo-server/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ContactHandler handles emergency contact management requests
type ContactHandler struct {
	contacts ContactServiceInterface
}

// NewContactHandler creates a new contact handler
func NewContactHandler(contacts ContactServiceInterface) *ContactHandler {
	return &ContactHandler{contacts: contacts}
}

// Create adds an emergency contact (POST /api/contacts)
func (h *ContactHandler) Create(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req models.CreateContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid contact create request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	contact, err := h.contacts.CreateContact(userID, &req)
	if err != nil {
		if errors.Is(err, services.ErrInvalidPhone) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		logger.Error("Failed to create contact",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, contact)
}

// List returns the user's contacts in directory order (GET /api/contacts)
func (h *ContactHandler) List(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	contacts, err := h.contacts.ListContacts(userID)
	if err != nil {
		logger.Error("Failed to list contacts",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list contacts"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"contacts": contacts,
		"count":    len(contacts),
	})
}

// Get returns a single owned contact (GET /api/contacts/:id)
func (h *ContactHandler) Get(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	contact, err := h.contacts.GetContact(userID, c.Param("id"))
	if err != nil {
		if errors.Is(err, services.ErrContactNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Contact not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get contact"})
		return
	}

	c.JSON(http.StatusOK, contact)
}

// Update modifies an owned contact (PUT /api/contacts/:id)
func (h *ContactHandler) Update(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req models.UpdateContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid contact update request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	contact, err := h.contacts.UpdateContact(userID, c.Param("id"), &req)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrContactNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Contact not found"})
		case errors.Is(err, services.ErrInvalidPhone):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			logger.Error("Failed to update contact",
				zap.String("user_id", userID),
				zap.Error(err),
			)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, contact)
}

// Delete removes an owned contact (DELETE /api/contacts/:id)
func (h *ContactHandler) Delete(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	if err := h.contacts.DeleteContact(userID, c.Param("id")); err != nil {
		if errors.Is(err, services.ErrContactNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Contact not found"})
			return
		}
		logger.Error("Failed to delete contact",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete contact"})
		return
	}

	c.Status(http.StatusNoContent)
}

package handlers

import (
	"net/http"

	"defendo-server/internal/models"
	"defendo-server/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ReportLocationRequest is the request body for POST /api/location
type ReportLocationRequest struct {
	Latitude  float64 `json:"latitude" binding:"min=-90,max=90"`
	Longitude float64 `json:"longitude" binding:"min=-180,max=180"`
	Accuracy  float64 `json:"accuracy"`
	Address   string  `json:"address"`
	Timestamp int64   `json:"timestamp"`
}

// LocationHandler accepts location fixes pushed by the mobile client
type LocationHandler struct {
	reporter LocationReporterInterface
}

// NewLocationHandler creates a new location handler
func NewLocationHandler(reporter LocationReporterInterface) *LocationHandler {
	return &LocationHandler{reporter: reporter}
}

// Report stores the latest location fix of the user (POST /api/location)
func (h *LocationHandler) Report(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req ReportLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid location report", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	h.reporter.Report(userID, models.Location{
		Latitude:   req.Latitude,
		Longitude:  req.Longitude,
		Accuracy:   req.Accuracy,
		Address:    req.Address,
		CapturedAt: req.Timestamp,
	})

	c.Status(http.StatusNoContent)
}

package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"defendo-server/internal/db"
	"defendo-server/internal/models"
	"defendo-server/internal/services"
	"defendo-server/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AlertStreamInterface upgrades a request to a live alert event stream
type AlertStreamInterface interface {
	Subscribe(userID string, w http.ResponseWriter, r *http.Request) error
}

// SOSHandler exposes the SOS engine and the alert record over HTTP
type SOSHandler struct {
	engine   EngineInterface
	alerts   db.AlertRepository
	logRepo  db.NotificationLogRepository
	stream   AlertStreamInterface
	reporter LocationReporterInterface
}

// NewSOSHandler creates a new SOS handler
func NewSOSHandler(engine EngineInterface, alerts db.AlertRepository, logRepo db.NotificationLogRepository, stream AlertStreamInterface, reporter LocationReporterInterface) *SOSHandler {
	return &SOSHandler{
		engine:   engine,
		alerts:   alerts,
		logRepo:  logRepo,
		stream:   stream,
		reporter: reporter,
	}
}

// currentUserID reads the authenticated user id set by the JWT middleware
func currentUserID(c *gin.Context) (string, bool) {
	v, exists := c.Get("userID")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return "", false
	}
	userID, ok := v.(string)
	if !ok || userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return "", false
	}
	return userID, true
}

// Activate starts an SOS alert (POST /api/sos/activate). The body may carry
// a fresh location fix, which is stored before the engine reads it.
func (h *SOSHandler) Activate(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	if c.Request.ContentLength > 0 {
		var req ReportLocationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			logger.Warn("Invalid location fix on activation", zap.Error(err))
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
	}

	alertID, err := h.engine.Activate(userID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrAlertInProgress):
			c.JSON(http.StatusConflict, gin.H{"error": "An alert is already in progress"})
			return
		case errors.Is(err, services.ErrLocationUnavailable):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Location unavailable - report a location fix and retry"})
			return
		case errors.Is(err, services.ErrPersistence):
			// The alert is live even though the record write failed
			logger.Error("Alert activated with persistence failure",
				zap.String("user_id", userID),
				zap.String("alert_id", alertID),
				zap.Error(err),
			)
			c.JSON(http.StatusCreated, gin.H{
				"alert_id": alertID,
				"status":   models.AlertStatusActive,
				"warning":  "alert record could not be persisted",
			})
			return
		default:
			logger.Error("Failed to activate alert",
				zap.String("user_id", userID),
				zap.Error(err),
			)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to activate alert"})
			return
		}
	}

	c.JSON(http.StatusCreated, gin.H{
		"alert_id": alertID,
		"status":   models.AlertStatusActive,
	})
}

// Cancel stops the user's alert if one is running (POST /api/sos/cancel).
// Cancelling with no alert in progress is a success: the end state is the
// same either way.
func (h *SOSHandler) Cancel(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	h.engine.Cancel(userID)
	c.Status(http.StatusNoContent)
}

// Current returns the user's in-progress alert (GET /api/sos/current)
func (h *SOSHandler) Current(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	alert := h.engine.CurrentAlert(userID)
	if alert == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No alert in progress"})
		return
	}

	c.JSON(http.StatusOK, alert)
}

// Remaining returns the countdown left before the alert expires, zero when
// no alert is running (GET /api/sos/remaining)
func (h *SOSHandler) Remaining(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	alert := h.engine.CurrentAlert(userID)
	if alert == nil {
		c.JSON(http.StatusOK, gin.H{"remaining_seconds": 0})
		return
	}

	remaining := h.engine.TimeRemaining(userID)
	c.JSON(http.StatusOK, gin.H{
		"alert_id":          alert.ID,
		"remaining_seconds": int64(remaining / time.Second),
	})
}

// Stream upgrades to a WebSocket delivering alert status events
// (GET /api/sos/stream)
func (h *SOSHandler) Stream(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	if err := h.stream.Subscribe(userID, c.Writer, c.Request); err != nil {
		logger.Warn("Alert stream upgrade failed",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		// Upgrade failures already wrote the HTTP error response
	}
}

// History lists the user's past and present alerts (GET /api/alerts)
func (h *SOSHandler) History(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	limit := 50
	offset := 0
	if limitParam := c.Query("limit"); limitParam != "" {
		l, err := strconv.Atoi(limitParam)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit parameter"})
			return
		}
		if l > 0 && l <= 100 {
			limit = l
		}
	}
	if offsetParam := c.Query("offset"); offsetParam != "" {
		o, err := strconv.Atoi(offsetParam)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid offset parameter"})
			return
		}
		if o >= 0 {
			offset = o
		}
	}

	alerts, err := h.alerts.ListByUser(userID, limit, offset)
	if err != nil {
		logger.Error("Failed to list alerts",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list alerts"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// Notifications returns the append-only notification log of one alert
// (GET /api/alerts/:id/notifications)
func (h *SOSHandler) Notifications(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	alert, ok := h.ownedAlert(c, userID)
	if !ok {
		return
	}

	entries, err := h.logRepo.ListByAlert(alert.ID)
	if err != nil {
		logger.Error("Failed to list notification log",
			zap.String("alert_id", alert.ID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list notifications"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"alert_id":      alert.ID,
		"notifications": entries,
		"count":         len(entries),
	})
}

// Resolve marks a finished alert as resolved (POST /api/alerts/:id/resolve).
// A live alert cannot be resolved; it has to be cancelled so its timers
// are disarmed.
func (h *SOSHandler) Resolve(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	alert, ok := h.ownedAlert(c, userID)
	if !ok {
		return
	}

	if current := h.engine.CurrentAlert(userID); current != nil && current.ID == alert.ID {
		c.JSON(http.StatusConflict, gin.H{"error": "Alert is still in progress - cancel it instead"})
		return
	}

	if err := h.alerts.UpdateStatus(alert.ID, models.AlertStatusResolved, time.Now().Unix()); err != nil {
		if errors.Is(err, db.ErrTerminalStatus) {
			c.JSON(http.StatusConflict, gin.H{"error": "Alert is already closed"})
			return
		}
		logger.Error("Failed to resolve alert",
			zap.String("alert_id", alert.ID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to resolve alert"})
		return
	}

	logger.Info("Alert resolved",
		zap.String("user_id", userID),
		zap.String("alert_id", alert.ID),
	)

	c.JSON(http.StatusOK, gin.H{
		"alert_id": alert.ID,
		"status":   models.AlertStatusResolved,
	})
}

// ownedAlert loads the :id alert and enforces ownership
func (h *SOSHandler) ownedAlert(c *gin.Context, userID string) (*models.Alert, bool) {
	alertID := c.Param("id")
	if alertID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Alert ID is required"})
		return nil, false
	}

	alert, err := h.alerts.GetByID(alertID)
	if err != nil {
		logger.Error("Failed to get alert",
			zap.String("alert_id", alertID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get alert"})
		return nil, false
	}
	if alert == nil || alert.UserID != userID {
		c.JSON(http.StatusNotFound, gin.H{"error": "Alert not found"})
		return nil, false
	}

	return alert, true
}

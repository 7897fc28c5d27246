package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"defendo-server/internal/models"
	"defendo-server/pkg/logger"

	"go.uber.org/zap"
)

// dispatchRequest is the payload posted to the telephony gateway
type dispatchRequest struct {
	Kind    string `json:"kind"` // "call" or "sms"
	Phone   string `json:"phone"`
	Name    string `json:"name"`
	Message string `json:"message,omitempty"`
}

// Gateway dispatches calls and texts through an HTTP telephony webhook.
// When no URL is configured it degrades to logging each dispatch, which is
// what local development runs with.
type Gateway struct {
	url    string
	client *http.Client
}

// NewGateway creates a Gateway posting to the given webhook URL
func NewGateway(url string, timeout time.Duration) *Gateway {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Gateway{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Call asks the gateway to place a voice call to the contact
func (g *Gateway) Call(contact *models.EmergencyContact) error {
	if contact == nil || contact.Phone == "" {
		return fmt.Errorf("contact phone is required")
	}

	g.dispatch(dispatchRequest{
		Kind:  "call",
		Phone: contact.Phone,
		Name:  contact.Name,
	})
	return nil
}

// SendText asks the gateway to deliver an SMS to the contact
func (g *Gateway) SendText(contact *models.EmergencyContact, message string) error {
	if contact == nil || contact.Phone == "" {
		return fmt.Errorf("contact phone is required")
	}
	if message == "" {
		return fmt.Errorf("message is required")
	}

	g.dispatch(dispatchRequest{
		Kind:    "sms",
		Phone:   contact.Phone,
		Name:    contact.Name,
		Message: message,
	})
	return nil
}

// dispatch hands the request off without blocking the caller. The result is
// only observable through the log; the alert pipeline does not wait on it.
func (g *Gateway) dispatch(req dispatchRequest) {
	if g.url == "" {
		logger.Info("Notification dispatch (no gateway configured)",
			zap.String("kind", req.Kind),
			zap.String("phone", req.Phone),
		)
		return
	}

	body, err := json.Marshal(req)
	if err != nil {
		logger.Error("Failed to encode dispatch request", zap.Error(err))
		return
	}

	go func() {
		resp, err := g.client.Post(g.url, "application/json", bytes.NewReader(body))
		if err != nil {
			logger.Error("Notification dispatch failed",
				zap.String("kind", req.Kind),
				zap.String("phone", req.Phone),
				zap.Error(err),
			)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			logger.Warn("Notification gateway rejected dispatch",
				zap.String("kind", req.Kind),
				zap.String("phone", req.Phone),
				zap.Int("status", resp.StatusCode),
			)
			return
		}

		logger.Info("Notification dispatched",
			zap.String("kind", req.Kind),
			zap.String("phone", req.Phone),
		)
	}()
}

package models

import (
	"time"

	"github.com/google/uuid"
)

// AlertStatus is the lifecycle status of an SOS alert
type AlertStatus string

const (
	AlertStatusActive    AlertStatus = "active"
	AlertStatusEscalated AlertStatus = "escalated"
	AlertStatusExpired   AlertStatus = "expired"
	AlertStatusResolved  AlertStatus = "resolved"
	AlertStatusCancelled AlertStatus = "cancelled"
)

// IsTerminal reports whether no further status transition may be applied.
// Expired alerts stay queryable but the session has already returned to idle.
func (s AlertStatus) IsTerminal() bool {
	return s == AlertStatusResolved || s == AlertStatusCancelled
}

// Location is a point-in-time location snapshot attached to an alert
type Location struct {
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	Accuracy   float64 `json:"accuracy"`
	Address    string  `json:"address,omitempty"`
	CapturedAt int64   `json:"captured_at"` // Unix timestamp the fix was taken
}

// Alert represents one SOS emergency episode.
// Alerts are never deleted; they are archived through their status.
type Alert struct {
	ID          string      `json:"id"` // UUID
	UserID      string      `json:"user_id"`
	Status      AlertStatus `json:"status"`
	IsEscalated bool        `json:"is_escalated"`
	Location    *Location   `json:"location,omitempty"` // refreshed at escalation and expiry
	CreatedAt   int64       `json:"created_at"`
	UpdatedAt   int64       `json:"updated_at"`
	ResolvedAt  *int64      `json:"resolved_at,omitempty"`
}

// NewAlert creates an active alert with a generated UUID and timestamps
func NewAlert(userID string, loc *Location) *Alert {
	now := time.Now().Unix()
	return &Alert{
		ID:        uuid.New().String(),
		UserID:    userID,
		Status:    AlertStatusActive,
		Location:  loc,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

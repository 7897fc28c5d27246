package models

import (
	"time"

	"github.com/google/uuid"
)

// EmergencyContact is a notification target owned by a user profile.
// Contacts exist independently of any single alert; the engine only reads
// the list at fan-out time.
type EmergencyContact struct {
	ID           string `json:"id"` // UUID
	UserID       string `json:"user_id"`
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	Relationship string `json:"relationship,omitempty"`
	IsPrimary    bool   `json:"is_primary"`
	CreatedAt    int64  `json:"created_at"`
	UpdatedAt    int64  `json:"updated_at"`
}

// CreateContactRequest represents the request body for adding a contact
type CreateContactRequest struct {
	Name         string `json:"name" binding:"required,min=1,max=100"`
	Phone        string `json:"phone" binding:"required"`
	Relationship string `json:"relationship"`
	IsPrimary    bool   `json:"is_primary"`
}

// UpdateContactRequest represents the request body for updating a contact
type UpdateContactRequest struct {
	Name         *string `json:"name,omitempty"`
	Phone        *string `json:"phone,omitempty"`
	Relationship *string `json:"relationship,omitempty"`
	IsPrimary    *bool   `json:"is_primary,omitempty"`
}

// NewEmergencyContact creates a contact with a generated UUID and timestamps
func NewEmergencyContact(userID, name, phone, relationship string, isPrimary bool) *EmergencyContact {
	now := time.Now().Unix()
	return &EmergencyContact{
		ID:           uuid.New().String(),
		UserID:       userID,
		Name:         name,
		Phone:        phone,
		Relationship: relationship,
		IsPrimary:    isPrimary,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

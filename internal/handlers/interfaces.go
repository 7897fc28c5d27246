package handlers

import (
	"time"

	"defendo-server/internal/models"
)

// UserServiceInterface defines the contract for user service operations
// This interface is used for dependency injection and testing
type UserServiceInterface interface {
	CreateUser(username, email, password, phone string) (*models.User, error)
	Authenticate(username, password, totpCode string) (*models.User, error)
	GetUser(id string) (*models.User, error)
	UpdateUser(id string, updates map[string]interface{}) error
	DeleteUser(id string) error
	ChangePassword(id, oldPassword, newPassword string) error

	// 2FA/TOTP methods
	GenerateTOTPSecret(userID string) (string, error)
	EnableTOTP(userID, totpCode string) error
	DisableTOTP(userID string) error
}

// ContactServiceInterface defines the contract for emergency contact operations
type ContactServiceInterface interface {
	CreateContact(userID string, req *models.CreateContactRequest) (*models.EmergencyContact, error)
	GetContact(userID, contactID string) (*models.EmergencyContact, error)
	ListContacts(userID string) ([]*models.EmergencyContact, error)
	UpdateContact(userID, contactID string, req *models.UpdateContactRequest) (*models.EmergencyContact, error)
	DeleteContact(userID, contactID string) error
}

// EngineInterface defines the contract for the SOS escalation engine
type EngineInterface interface {
	Activate(userID string) (string, error)
	Cancel(userID string)
	CurrentAlert(userID string) *models.Alert
	TimeRemaining(userID string) time.Duration
}

// LocationReporterInterface accepts location fixes from the client
type LocationReporterInterface interface {
	Report(userID string, loc models.Location)
}

package services

import (
	"errors"
	"fmt"
	"regexp"

	"defendo-server/internal/db"
	"defendo-server/internal/models"
	"defendo-server/pkg/logger"

	"go.uber.org/zap"
)

var (
	// ErrInvalidPhone indicates the phone number is not dialable
	ErrInvalidPhone = errors.New("phone number must contain 7-15 digits, optionally prefixed with +")

	// ErrContactNotFound indicates the contact does not exist or belongs to another user
	ErrContactNotFound = errors.New("contact not found")
)

// phonePattern accepts E.164-ish numbers with optional separators.
// The digits are what the dialer needs; separators are kept for display.
var phonePattern = regexp.MustCompile(`^\+?[0-9][0-9\-\s()]{5,18}[0-9]$`)

// ContactService provides business logic for emergency contact management
type ContactService struct {
	repo db.ContactRepository
}

// NewContactService creates a new ContactService instance
func NewContactService(repo db.ContactRepository) *ContactService {
	return &ContactService{repo: repo}
}

// CreateContact validates and stores a new emergency contact for a user
func (s *ContactService) CreateContact(userID string, req *models.CreateContactRequest) (*models.EmergencyContact, error) {
	if userID == "" {
		return nil, errors.New("user ID cannot be empty")
	}
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}
	if req.Name == "" {
		return nil, errors.New("contact name cannot be empty")
	}
	if err := validatePhone(req.Phone); err != nil {
		return nil, err
	}

	contact := models.NewEmergencyContact(userID, req.Name, req.Phone, req.Relationship, req.IsPrimary)
	if err := s.repo.Create(contact); err != nil {
		return nil, fmt.Errorf("failed to create contact: %w", err)
	}

	logger.Info("Emergency contact created",
		zap.String("user_id", userID),
		zap.String("contact_id", contact.ID),
		zap.Bool("is_primary", contact.IsPrimary),
	)

	return contact, nil
}

// GetContact retrieves a contact, enforcing ownership
func (s *ContactService) GetContact(userID, contactID string) (*models.EmergencyContact, error) {
	if userID == "" {
		return nil, errors.New("user ID cannot be empty")
	}
	if contactID == "" {
		return nil, errors.New("contact ID cannot be empty")
	}

	contact, err := s.repo.GetByID(contactID)
	if err != nil {
		return nil, fmt.Errorf("failed to get contact: %w", err)
	}
	if contact == nil || contact.UserID != userID {
		return nil, ErrContactNotFound
	}

	return contact, nil
}

// ListContacts retrieves all contacts of a user in directory order
func (s *ContactService) ListContacts(userID string) ([]*models.EmergencyContact, error) {
	if userID == "" {
		return nil, errors.New("user ID cannot be empty")
	}

	contacts, err := s.repo.ListByUser(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list contacts: %w", err)
	}

	return contacts, nil
}

// UpdateContact applies the non-nil fields of the request to an owned contact
func (s *ContactService) UpdateContact(userID, contactID string, req *models.UpdateContactRequest) (*models.EmergencyContact, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	contact, err := s.GetContact(userID, contactID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		if *req.Name == "" {
			return nil, errors.New("contact name cannot be empty")
		}
		contact.Name = *req.Name
	}
	if req.Phone != nil {
		if err := validatePhone(*req.Phone); err != nil {
			return nil, err
		}
		contact.Phone = *req.Phone
	}
	if req.Relationship != nil {
		contact.Relationship = *req.Relationship
	}
	if req.IsPrimary != nil {
		contact.IsPrimary = *req.IsPrimary
	}

	if err := s.repo.Update(contact); err != nil {
		return nil, fmt.Errorf("failed to update contact: %w", err)
	}

	return contact, nil
}

// DeleteContact removes an owned contact
func (s *ContactService) DeleteContact(userID, contactID string) error {
	if _, err := s.GetContact(userID, contactID); err != nil {
		return err
	}

	if err := s.repo.Delete(contactID); err != nil {
		return fmt.Errorf("failed to delete contact: %w", err)
	}

	logger.Info("Emergency contact deleted",
		zap.String("user_id", userID),
		zap.String("contact_id", contactID),
	)

	return nil
}

// validatePhone checks that the phone number is dialable
func validatePhone(phone string) error {
	if !phonePattern.MatchString(phone) {
		return ErrInvalidPhone
	}

	digits := 0
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	if digits < 7 || digits > 15 {
		return ErrInvalidPhone
	}

	return nil
}

package db

import (
	"database/sql"
	"fmt"
	"time"

	"defendo-server/internal/models"

	"github.com/google/uuid"
)

// ContactRepository defines the interface for emergency-contact data access
type ContactRepository interface {
	Create(contact *models.EmergencyContact) error
	GetByID(id string) (*models.EmergencyContact, error)
	ListByUser(userID string) ([]*models.EmergencyContact, error)
	Update(contact *models.EmergencyContact) error
	Delete(id string) error
}

// contactRepository implements ContactRepository on sqlite
type contactRepository struct {
	db *sql.DB
}

// NewContactRepository creates a new ContactRepository
func NewContactRepository(db *sql.DB) ContactRepository {
	return &contactRepository{db: db}
}

// Create creates a new emergency contact
func (r *contactRepository) Create(contact *models.EmergencyContact) error {
	if contact == nil {
		return fmt.Errorf("contact cannot be nil")
	}

	// Generate UUID if not provided
	if contact.ID == "" {
		contact.ID = uuid.New().String()
	}

	now := time.Now().Unix()
	if contact.CreatedAt == 0 {
		contact.CreatedAt = now
	}
	contact.UpdatedAt = now

	query := `
		INSERT INTO emergency_contacts (id, user_id, name, phone, relationship, is_primary, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Exec(query,
		contact.ID,
		contact.UserID,
		contact.Name,
		contact.Phone,
		contact.Relationship,
		contact.IsPrimary,
		contact.CreatedAt,
		contact.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create contact: %w", err)
	}

	return nil
}

// GetByID retrieves a contact by ID, returning nil when not found
func (r *contactRepository) GetByID(id string) (*models.EmergencyContact, error) {
	if id == "" {
		return nil, fmt.Errorf("contact ID cannot be empty")
	}

	query := `
		SELECT id, user_id, name, phone, relationship, is_primary, created_at, updated_at
		FROM emergency_contacts
		WHERE id = ?
	`

	contact := &models.EmergencyContact{}
	err := r.db.QueryRow(query, id).Scan(
		&contact.ID,
		&contact.UserID,
		&contact.Name,
		&contact.Phone,
		&contact.Relationship,
		&contact.IsPrimary,
		&contact.CreatedAt,
		&contact.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get contact by ID: %w", err)
	}

	return contact, nil
}

// ListByUser retrieves all contacts of a user in directory order:
// primary contacts first, then oldest first
func (r *contactRepository) ListByUser(userID string) ([]*models.EmergencyContact, error) {
	if userID == "" {
		return nil, fmt.Errorf("user ID cannot be empty")
	}

	query := `
		SELECT id, user_id, name, phone, relationship, is_primary, created_at, updated_at
		FROM emergency_contacts
		WHERE user_id = ?
		ORDER BY is_primary DESC, created_at ASC
	`

	rows, err := r.db.Query(query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list contacts: %w", err)
	}
	defer rows.Close()

	var contacts []*models.EmergencyContact
	for rows.Next() {
		contact := &models.EmergencyContact{}
		err := rows.Scan(
			&contact.ID,
			&contact.UserID,
			&contact.Name,
			&contact.Phone,
			&contact.Relationship,
			&contact.IsPrimary,
			&contact.CreatedAt,
			&contact.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contact: %w", err)
		}
		contacts = append(contacts, contact)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return contacts, nil
}

// Update updates a contact's fields
func (r *contactRepository) Update(contact *models.EmergencyContact) error {
	if contact == nil {
		return fmt.Errorf("contact cannot be nil")
	}
	if contact.ID == "" {
		return fmt.Errorf("contact ID cannot be empty")
	}

	contact.UpdatedAt = time.Now().Unix()

	query := `
		UPDATE emergency_contacts
		SET name = ?, phone = ?, relationship = ?, is_primary = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.Exec(query,
		contact.Name,
		contact.Phone,
		contact.Relationship,
		contact.IsPrimary,
		contact.UpdatedAt,
		contact.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update contact: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("contact not found: %s", contact.ID)
	}

	return nil
}

// Delete removes a contact by ID
func (r *contactRepository) Delete(id string) error {
	if id == "" {
		return fmt.Errorf("contact ID cannot be empty")
	}

	result, err := r.db.Exec("DELETE FROM emergency_contacts WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete contact: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("contact not found: %s", id)
	}

	return nil
}

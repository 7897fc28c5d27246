package db

import (
	"database/sql"
	"fmt"
	"time"

	"defendo-server/internal/models"

	"github.com/google/uuid"
)

// UserRepository defines the interface for user data access
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id string) (*models.User, error)
	GetByUsername(username string) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	Update(user *models.User) error
	Delete(id string) error
}

// userRepository implements UserRepository interface
type userRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepository{db: db}
}

// Create creates a new user in the database
func (r *userRepository) Create(user *models.User) error {
	if user == nil {
		return fmt.Errorf("user cannot be nil")
	}

	// Generate UUID if not provided
	if user.ID == "" {
		user.ID = uuid.New().String()
	}

	now := time.Now().Unix()
	user.CreatedAt = now
	user.UpdatedAt = now

	query := `
		INSERT INTO users (id, username, email, phone, password_hash, totp_secret, totp_enabled,
			active, failed_login_attempts, locked_until, last_login, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Exec(query,
		user.ID,
		user.Username,
		user.Email,
		user.Phone,
		user.PasswordHash,
		user.TOTPSecret,
		user.TOTPEnabled,
		user.Active,
		user.FailedLoginAttempts,
		user.LockedUntil,
		user.LastLogin,
		user.CreatedAt,
		user.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by ID
func (r *userRepository) GetByID(id string) (*models.User, error) {
	if id == "" {
		return nil, fmt.Errorf("user ID cannot be empty")
	}

	return r.getOne("id = ?", id)
}

// GetByUsername retrieves a user by username
func (r *userRepository) GetByUsername(username string) (*models.User, error) {
	if username == "" {
		return nil, fmt.Errorf("username cannot be empty")
	}

	return r.getOne("username = ?", username)
}

// GetByEmail retrieves a user by email
func (r *userRepository) GetByEmail(email string) (*models.User, error) {
	if email == "" {
		return nil, fmt.Errorf("email cannot be empty")
	}

	return r.getOne("email = ?", email)
}

func (r *userRepository) getOne(where string, arg interface{}) (*models.User, error) {
	query := `
		SELECT id, username, email, phone, password_hash, totp_secret, totp_enabled,
			active, failed_login_attempts, locked_until, last_login, created_at, updated_at
		FROM users
		WHERE ` + where

	user := &models.User{}
	var phone sql.NullString
	err := r.db.QueryRow(query, arg).Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&phone,
		&user.PasswordHash,
		&user.TOTPSecret,
		&user.TOTPEnabled,
		&user.Active,
		&user.FailedLoginAttempts,
		&user.LockedUntil,
		&user.LastLogin,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	user.Phone = phone.String
	return user, nil
}

// Update writes all mutable user fields back to the database
func (r *userRepository) Update(user *models.User) error {
	if user == nil {
		return fmt.Errorf("user cannot be nil")
	}
	if user.ID == "" {
		return fmt.Errorf("user ID cannot be empty")
	}

	user.UpdatedAt = time.Now().Unix()

	query := `
		UPDATE users
		SET email = ?, phone = ?, password_hash = ?, totp_secret = ?, totp_enabled = ?,
			active = ?, failed_login_attempts = ?, locked_until = ?, last_login = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.Exec(query,
		user.Email,
		user.Phone,
		user.PasswordHash,
		user.TOTPSecret,
		user.TOTPEnabled,
		user.Active,
		user.FailedLoginAttempts,
		user.LockedUntil,
		user.LastLogin,
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("user not found: %s", user.ID)
	}

	return nil
}

// Delete removes a user by ID
func (r *userRepository) Delete(id string) error {
	if id == "" {
		return fmt.Errorf("user ID cannot be empty")
	}

	result, err := r.db.Exec("DELETE FROM users WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("user not found: %s", id)
	}

	return nil
}

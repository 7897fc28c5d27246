package db

import (
	"database/sql"
	"errors"
	"fmt"

	"defendo-server/internal/models"
)

// ErrTerminalStatus is returned when a status write targets an alert that
// has already reached resolved or cancelled. The status-check-on-write is
// what keeps a late timer fire from reviving a cancelled alert.
var ErrTerminalStatus = errors.New("alert is in a terminal status")

// AlertRepository defines the interface for alert persistence
type AlertRepository interface {
	Create(alert *models.Alert) error
	UpdateStatus(id string, status models.AlertStatus, at int64) error
	UpdateLocation(id string, loc *models.Location) error
	SetEscalated(id string, at int64) error
	GetByID(id string) (*models.Alert, error)
	ListByUser(userID string, limit, offset int) ([]*models.Alert, error)
}

// alertRepository implements AlertRepository on sqlite
type alertRepository struct {
	db *sql.DB
}

// NewAlertRepository creates a new AlertRepository
func NewAlertRepository(db *sql.DB) AlertRepository {
	return &alertRepository{db: db}
}

// Create persists a new alert record
func (r *alertRepository) Create(alert *models.Alert) error {
	if alert == nil {
		return fmt.Errorf("alert cannot be nil")
	}
	if alert.ID == "" {
		return fmt.Errorf("alert ID cannot be empty")
	}
	if alert.UserID == "" {
		return fmt.Errorf("user ID cannot be empty")
	}

	query := `
		INSERT INTO alerts (id, user_id, status, is_escalated, latitude, longitude,
			accuracy, address, location_captured_at, created_at, updated_at, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var lat, lon, acc *float64
	var addr *string
	var capturedAt *int64
	if alert.Location != nil {
		lat = &alert.Location.Latitude
		lon = &alert.Location.Longitude
		acc = &alert.Location.Accuracy
		if alert.Location.Address != "" {
			addr = &alert.Location.Address
		}
		capturedAt = &alert.Location.CapturedAt
	}

	_, err := r.db.Exec(query,
		alert.ID,
		alert.UserID,
		alert.Status,
		alert.IsEscalated,
		lat,
		lon,
		acc,
		addr,
		capturedAt,
		alert.CreatedAt,
		alert.UpdatedAt,
		alert.ResolvedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}

	return nil
}

// UpdateStatus applies a status transition. Writes against alerts already in
// a terminal status are rejected with ErrTerminalStatus so that transitions
// stay monotonic even when a timer fire races a cancel.
func (r *alertRepository) UpdateStatus(id string, status models.AlertStatus, at int64) error {
	if id == "" {
		return fmt.Errorf("alert ID cannot be empty")
	}

	var resolvedAt *int64
	if status == models.AlertStatusResolved || status == models.AlertStatusCancelled || status == models.AlertStatusExpired {
		resolvedAt = &at
	}

	result, err := r.db.Exec(`
		UPDATE alerts SET status = ?, updated_at = ?, resolved_at = COALESCE(?, resolved_at)
		WHERE id = ? AND status NOT IN (?, ?)
	`, status, at, resolvedAt, id, models.AlertStatusResolved, models.AlertStatusCancelled)
	if err != nil {
		return fmt.Errorf("failed to update alert status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		existing, getErr := r.GetByID(id)
		if getErr != nil {
			return getErr
		}
		if existing == nil {
			return fmt.Errorf("alert not found: %s", id)
		}
		return ErrTerminalStatus
	}

	return nil
}

// UpdateLocation refreshes the location snapshot of an alert
func (r *alertRepository) UpdateLocation(id string, loc *models.Location) error {
	if id == "" {
		return fmt.Errorf("alert ID cannot be empty")
	}
	if loc == nil {
		return fmt.Errorf("location cannot be nil")
	}

	_, err := r.db.Exec(`
		UPDATE alerts SET latitude = ?, longitude = ?, accuracy = ?, address = ?, location_captured_at = ?
		WHERE id = ?
	`, loc.Latitude, loc.Longitude, loc.Accuracy, loc.Address, loc.CapturedAt, id)
	if err != nil {
		return fmt.Errorf("failed to update alert location: %w", err)
	}

	return nil
}

// SetEscalated marks the alert as having gone through an escalation pass
func (r *alertRepository) SetEscalated(id string, at int64) error {
	if id == "" {
		return fmt.Errorf("alert ID cannot be empty")
	}

	_, err := r.db.Exec(`UPDATE alerts SET is_escalated = 1, updated_at = ? WHERE id = ?`, at, id)
	if err != nil {
		return fmt.Errorf("failed to mark alert escalated: %w", err)
	}

	return nil
}

// GetByID retrieves an alert by ID, returning nil when not found
func (r *alertRepository) GetByID(id string) (*models.Alert, error) {
	if id == "" {
		return nil, fmt.Errorf("alert ID cannot be empty")
	}

	row := r.db.QueryRow(`
		SELECT id, user_id, status, is_escalated, latitude, longitude,
			accuracy, address, location_captured_at, created_at, updated_at, resolved_at
		FROM alerts
		WHERE id = ?
	`, id)

	alert, err := scanAlert(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert by ID: %w", err)
	}

	return alert, nil
}

// ListByUser retrieves the alert history of a user, newest first
func (r *alertRepository) ListByUser(userID string, limit, offset int) ([]*models.Alert, error) {
	if userID == "" {
		return nil, fmt.Errorf("user ID cannot be empty")
	}
	if limit <= 0 {
		limit = 100 // default limit
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.db.Query(`
		SELECT id, user_id, status, is_escalated, latitude, longitude,
			accuracy, address, location_captured_at, created_at, updated_at, resolved_at
		FROM alerts
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*models.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, alert)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return alerts, nil
}

// scanner covers both *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanAlert(s scanner) (*models.Alert, error) {
	alert := &models.Alert{}
	var lat, lon, acc sql.NullFloat64
	var addr sql.NullString
	var capturedAt sql.NullInt64

	err := s.Scan(
		&alert.ID,
		&alert.UserID,
		&alert.Status,
		&alert.IsEscalated,
		&lat,
		&lon,
		&acc,
		&addr,
		&capturedAt,
		&alert.CreatedAt,
		&alert.UpdatedAt,
		&alert.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}

	if lat.Valid && lon.Valid {
		alert.Location = &models.Location{
			Latitude:   lat.Float64,
			Longitude:  lon.Float64,
			Accuracy:   acc.Float64,
			Address:    addr.String,
			CapturedAt: capturedAt.Int64,
		}
	}

	return alert, nil
}

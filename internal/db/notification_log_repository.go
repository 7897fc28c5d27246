package db

import (
	"database/sql"
	"fmt"

	"defendo-server/internal/models"
)

// NotificationLogRepository is the append-only audit log of contact
// notification attempts. Entries are never updated or deleted.
type NotificationLogRepository interface {
	Append(entry *models.NotificationLogEntry) error
	ListByAlert(alertID string) ([]*models.NotificationLogEntry, error)
}

type notificationLogRepository struct {
	db *sql.DB
}

// NewNotificationLogRepository creates a new NotificationLogRepository
func NewNotificationLogRepository(db *sql.DB) NotificationLogRepository {
	return &notificationLogRepository{db: db}
}

// Append records one notification attempt
func (r *notificationLogRepository) Append(entry *models.NotificationLogEntry) error {
	if entry == nil {
		return fmt.Errorf("entry cannot be nil")
	}
	if entry.AlertID == "" {
		return fmt.Errorf("alert ID cannot be empty")
	}
	if entry.ContactID == "" {
		return fmt.Errorf("contact ID cannot be empty")
	}
	if entry.Channel != models.ChannelCall && entry.Channel != models.ChannelSMS {
		return fmt.Errorf("unknown channel: %s", entry.Channel)
	}

	result, err := r.db.Exec(`
		INSERT INTO notification_log (alert_id, contact_id, channel, message, outcome, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		entry.AlertID,
		entry.ContactID,
		entry.Channel,
		entry.Message,
		entry.Outcome,
		entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to append notification log entry: %w", err)
	}

	id, err := result.LastInsertId()
	if err == nil {
		entry.ID = id
	}

	return nil
}

// ListByAlert retrieves all log entries of an alert in insertion order
func (r *notificationLogRepository) ListByAlert(alertID string) ([]*models.NotificationLogEntry, error) {
	if alertID == "" {
		return nil, fmt.Errorf("alert ID cannot be empty")
	}

	rows, err := r.db.Query(`
		SELECT id, alert_id, contact_id, channel, message, outcome, timestamp
		FROM notification_log
		WHERE alert_id = ?
		ORDER BY id ASC
	`, alertID)
	if err != nil {
		return nil, fmt.Errorf("failed to list notification log: %w", err)
	}
	defer rows.Close()

	var entries []*models.NotificationLogEntry
	for rows.Next() {
		entry := &models.NotificationLogEntry{}
		err := rows.Scan(
			&entry.ID,
			&entry.AlertID,
			&entry.ContactID,
			&entry.Channel,
			&entry.Message,
			&entry.Outcome,
			&entry.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification log entry: %w", err)
		}
		entries = append(entries, entry)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return entries, nil
}

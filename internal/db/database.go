package db

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Database wraps the sqlite connection and owns schema creation
type Database struct {
	db *sql.DB
}

// NewDatabase opens the sqlite database at the given DSN and creates the
// schema if it does not exist yet
func NewDatabase(dsn string) (*Database, error) {
	if dsn == "" {
		return nil, errors.New("database path is required")
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	// Verify we can actually connect to the database
	if err := db.Ping(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("ping failed: %w, close failed: %v", err, closeErr)
		}
		return nil, err
	}

	// Try to create tables - if this fails, the database is not usable
	if err := createTables(db); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("create tables failed: %w, close failed: %v", err, closeErr)
		}
		return nil, err
	}

	return &Database{db: db}, nil
}

// GetDB exposes the underlying connection for the repositories
func (d *Database) GetDB() *sql.DB {
	return d.db
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}

const schema = `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT UNIQUE NOT NULL,
		email TEXT UNIQUE NOT NULL,
		phone TEXT,
		password_hash TEXT NOT NULL,
		totp_secret TEXT,
		totp_enabled BOOLEAN DEFAULT 0,
		failed_login_attempts INTEGER DEFAULT 0,
		locked_until INTEGER,
		last_login INTEGER,
		active BOOLEAN DEFAULT 1,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS emergency_contacts (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL,
		phone TEXT NOT NULL,
		relationship TEXT,
		is_primary BOOLEAN DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS alerts (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		status TEXT NOT NULL,
		is_escalated BOOLEAN DEFAULT 0,
		latitude REAL,
		longitude REAL,
		accuracy REAL,
		address TEXT,
		location_captured_at INTEGER,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		resolved_at INTEGER
	);

	CREATE TABLE IF NOT EXISTS notification_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		alert_id TEXT NOT NULL,
		contact_id TEXT NOT NULL,
		channel TEXT NOT NULL,
		message TEXT,
		outcome TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		FOREIGN KEY (alert_id) REFERENCES alerts(id)
	);

	CREATE INDEX IF NOT EXISTS idx_users_username ON users(username);
	CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);
	CREATE INDEX IF NOT EXISTS idx_contacts_user_id ON emergency_contacts(user_id);
	CREATE INDEX IF NOT EXISTS idx_alerts_user_id ON alerts(user_id);
	CREATE INDEX IF NOT EXISTS idx_alerts_status ON alerts(status);
	CREATE INDEX IF NOT EXISTS idx_notification_log_alert_id ON notification_log(alert_id);
`

// Close closes the database connection
func (d *Database) Close() error {
	if d == nil {
		return errors.New("database is nil")
	}

	if d.db == nil {
		return errors.New("database already closed")
	}

	err := d.db.Close()
	if err != nil {
		d.db = nil
		return err
	}
	d.db = nil
	return nil
}

package services

import "errors"

var (
	// ErrLocationUnavailable blocks activation: no alert is created and the
	// client must prompt for location permission and retry
	ErrLocationUnavailable = errors.New("location unavailable")

	// ErrAlertInProgress rejects activate() while an alert is already
	// active or escalated. This is a contract violation by the caller, not
	// a user-facing condition.
	ErrAlertInProgress = errors.New("an alert is already in progress")

	// ErrPersistence wraps alert-store write failures. The state machine
	// still advances locally; during an emergency a visible SOS beats a
	// consistent database.
	ErrPersistence = errors.New("alert persistence failed")
)

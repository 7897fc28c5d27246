package models

// NotificationChannelKind identifies how a contact was notified
type NotificationChannelKind string

const (
	ChannelCall NotificationChannelKind = "call"
	ChannelSMS  NotificationChannelKind = "sms"
)

// NotificationOutcome records what the engine observed at dispatch time.
// Both channels are fire-and-forget, so delivery is never confirmed:
// "attempted" means the dispatch was handed off, "failed" means it was
// rejected before ever leaving the process.
type NotificationOutcome string

const (
	OutcomeAttempted NotificationOutcome = "attempted"
	OutcomeFailed    NotificationOutcome = "failed"
)

// NotificationLogEntry is the audit record of a single contact-notification
// attempt. Entries are append-only and accumulate for the lifetime of the
// alert, one per contact per channel per fan-out pass.
type NotificationLogEntry struct {
	ID        int64                   `json:"id"`
	AlertID   string                  `json:"alert_id"`
	ContactID string                  `json:"contact_id"`
	Channel   NotificationChannelKind `json:"channel"`
	Message   *string                 `json:"message,omitempty"` // sms only
	Outcome   NotificationOutcome     `json:"outcome"`
	Timestamp int64                   `json:"timestamp"`
}

package services

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"defendo-server/internal/db"
	"defendo-server/internal/models"
	"defendo-server/internal/notify"
	"defendo-server/pkg/logger"

	"go.uber.org/zap"
)

// Message headlines, one per fan-out pass. The body shape is shared.
const (
	HeadlineActivated = "SOS Emergency Activated"
	HeadlineEscalated = "Escalation Alert"
	HeadlineExpired   = "SOS Final Alert - No Response"
)

const messageTimeLayout = "2006-01-02 15:04:05 MST"

// ContactDirectory supplies the ordered emergency-contact list for a user.
// The engine reads a snapshot per fan-out pass and never mutates it.
type ContactDirectory interface {
	ListByUser(userID string) ([]*models.EmergencyContact, error)
}

// LocationSource supplies the current location of a user on demand
type LocationSource interface {
	Current(userID string) (*models.Location, error)
}

// EngineTimings are the two delays armed on activation
type EngineTimings struct {
	EscalationDelay time.Duration // short delay until the escalation pass
	Countdown       time.Duration // full window until the final pass
}

// sosSession is the live state of one user's alert. At most one exists per
// user; its removal is the Idle state.
type sosSession struct {
	alert           *models.Alert
	escalationTimer *time.Timer
	countdownTimer  *time.Timer
	deadline        time.Time
}

// EscalationEngine drives an alert through its lifecycle: activation
// fan-out, an escalation pass after a short delay, a final pass when the
// countdown elapses, and cancellation at any point in between.
//
// Every transition and timer fire runs under one mutex and re-checks the
// session's alert id and status before acting, so a timer racing a cancel
// is a no-op rather than a resurrection.
type EscalationEngine struct {
	mu        sync.Mutex
	timings   EngineTimings
	alerts    db.AlertRepository
	auditLog  db.NotificationLogRepository
	contacts  ContactDirectory
	locations LocationSource
	channel   notify.Channel
	sessions  map[string]*sosSession
	listeners []func(models.Alert)
}

// NewEscalationEngine creates an engine with all collaborators injected
func NewEscalationEngine(
	timings EngineTimings,
	alerts db.AlertRepository,
	auditLog db.NotificationLogRepository,
	contacts ContactDirectory,
	locations LocationSource,
	channel notify.Channel,
) *EscalationEngine {
	if timings.EscalationDelay <= 0 {
		timings.EscalationDelay = 10 * time.Second
	}
	if timings.Countdown <= 0 {
		timings.Countdown = 300 * time.Second
	}
	return &EscalationEngine{
		timings:   timings,
		alerts:    alerts,
		auditLog:  auditLog,
		contacts:  contacts,
		locations: locations,
		channel:   channel,
		sessions:  make(map[string]*sosSession),
	}
}

// OnStatusChanged registers a handler invoked with an alert snapshot after
// every status transition. Handlers run outside the engine lock.
func (e *EscalationEngine) OnStatusChanged(fn func(models.Alert)) {
	if fn == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, fn)
}

// Activate starts a new alert for the user: creates and persists the alert,
// runs the activation fan-out pass, and arms both the escalation and the
// countdown timer.
//
// A persistence failure does not abort activation; the returned error wraps
// ErrPersistence and the alert id is still valid.
func (e *EscalationEngine) Activate(userID string) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("user ID is required")
	}

	e.mu.Lock()

	if _, exists := e.sessions[userID]; exists {
		e.mu.Unlock()
		return "", ErrAlertInProgress
	}

	// A current location is the precondition for arming an SOS. Nothing is
	// created or persisted without one.
	loc, err := e.locations.Current(userID)
	if err != nil {
		e.mu.Unlock()
		logger.Warn("SOS activation rejected - no location fix", zap.String("user_id", userID))
		return "", ErrLocationUnavailable
	}

	now := time.Now()
	alert := models.NewAlert(userID, loc)

	var persistErr error
	if err := e.alerts.Create(alert); err != nil {
		persistErr = fmt.Errorf("%w: %v", ErrPersistence, err)
		logger.Error("Failed to persist alert, continuing locally",
			zap.String("alert_id", alert.ID),
			zap.Error(err),
		)
	}

	e.fanOutLocked(alert, HeadlineActivated, now)

	alertID := alert.ID
	sess := &sosSession{
		alert:    alert,
		deadline: now.Add(e.timings.Countdown),
	}
	sess.escalationTimer = time.AfterFunc(e.timings.EscalationDelay, func() {
		e.escalate(userID, alertID)
	})
	sess.countdownTimer = time.AfterFunc(e.timings.Countdown, func() {
		e.expire(userID, alertID)
	})
	e.sessions[userID] = sess

	logger.Info("SOS alert activated",
		zap.String("alert_id", alertID),
		zap.String("user_id", userID),
	)

	snapshot := *alert
	e.mu.Unlock()
	e.emit(snapshot)

	return alertID, persistErr
}

// Cancel stops the alert of a user, if any. It is safe to call from any
// state and calling it twice is the same as calling it once.
func (e *EscalationEngine) Cancel(userID string) {
	e.mu.Lock()

	sess, exists := e.sessions[userID]
	if !exists {
		e.mu.Unlock()
		return
	}

	sess.escalationTimer.Stop()
	sess.countdownTimer.Stop()
	delete(e.sessions, userID)

	now := time.Now().Unix()
	sess.alert.Status = models.AlertStatusCancelled
	sess.alert.UpdatedAt = now
	sess.alert.ResolvedAt = &now

	if err := e.alerts.UpdateStatus(sess.alert.ID, models.AlertStatusCancelled, now); err != nil && !errors.Is(err, db.ErrTerminalStatus) {
		logger.Error("Failed to persist alert cancellation",
			zap.String("alert_id", sess.alert.ID),
			zap.Error(err),
		)
	}

	logger.Info("SOS alert cancelled",
		zap.String("alert_id", sess.alert.ID),
		zap.String("user_id", userID),
	)

	snapshot := *sess.alert
	e.mu.Unlock()
	e.emit(snapshot)
}

// CurrentAlert returns a copy of the user's live alert, or nil when idle
func (e *EscalationEngine) CurrentAlert(userID string) *models.Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	sess, exists := e.sessions[userID]
	if !exists {
		return nil
	}
	snapshot := *sess.alert
	return &snapshot
}

// TimeRemaining returns the time left on the countdown, zero when idle
func (e *EscalationEngine) TimeRemaining(userID string) time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()

	sess, exists := e.sessions[userID]
	if !exists {
		return 0
	}
	remaining := time.Until(sess.deadline)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// escalate is the escalation-timer fire. It only acts when the session
// still carries the same alert in Active status; any other observation
// means a cancel, expiry, or duplicate fire won the race.
func (e *EscalationEngine) escalate(userID, alertID string) {
	e.mu.Lock()

	sess, exists := e.sessions[userID]
	if !exists || sess.alert.ID != alertID || sess.alert.Status != models.AlertStatusActive {
		e.mu.Unlock()
		return
	}

	now := time.Now()
	e.refreshLocationLocked(sess.alert)
	e.fanOutLocked(sess.alert, HeadlineEscalated, now)

	sess.alert.Status = models.AlertStatusEscalated
	sess.alert.IsEscalated = true
	sess.alert.UpdatedAt = now.Unix()

	if err := e.alerts.UpdateStatus(alertID, models.AlertStatusEscalated, now.Unix()); err != nil {
		logger.Error("Failed to persist escalation", zap.String("alert_id", alertID), zap.Error(err))
	}
	if err := e.alerts.SetEscalated(alertID, now.Unix()); err != nil {
		logger.Error("Failed to persist escalation flag", zap.String("alert_id", alertID), zap.Error(err))
	}

	logger.Info("SOS alert escalated", zap.String("alert_id", alertID))

	snapshot := *sess.alert
	e.mu.Unlock()
	e.emit(snapshot)
}

// expire is the countdown-timer fire: the final fan-out pass. Both timers
// are armed together and escalation usually fires first, so expiry is
// accepted from Active as well as Escalated.
func (e *EscalationEngine) expire(userID, alertID string) {
	e.mu.Lock()

	sess, exists := e.sessions[userID]
	if !exists || sess.alert.ID != alertID {
		e.mu.Unlock()
		return
	}
	if sess.alert.Status != models.AlertStatusActive && sess.alert.Status != models.AlertStatusEscalated {
		e.mu.Unlock()
		return
	}

	now := time.Now()
	e.refreshLocationLocked(sess.alert)
	e.fanOutLocked(sess.alert, HeadlineExpired, now)

	sess.escalationTimer.Stop()
	unixNow := now.Unix()
	sess.alert.Status = models.AlertStatusExpired
	sess.alert.UpdatedAt = unixNow
	sess.alert.ResolvedAt = &unixNow

	// The session ends here: the user returns to idle while the alert
	// record keeps its distinct expired status.
	delete(e.sessions, userID)

	if err := e.alerts.UpdateStatus(alertID, models.AlertStatusExpired, unixNow); err != nil && !errors.Is(err, db.ErrTerminalStatus) {
		logger.Error("Failed to persist alert expiry", zap.String("alert_id", alertID), zap.Error(err))
	}

	logger.Info("SOS countdown expired, final alert sent", zap.String("alert_id", alertID))

	snapshot := *sess.alert
	e.mu.Unlock()
	e.emit(snapshot)
}

// refreshLocationLocked replaces the alert's location snapshot with a fresh
// fix when one is obtainable, keeping the previous snapshot otherwise
func (e *EscalationEngine) refreshLocationLocked(alert *models.Alert) {
	loc, err := e.locations.Current(alert.UserID)
	if err != nil {
		logger.Warn("Location refresh failed, keeping previous snapshot",
			zap.String("alert_id", alert.ID),
		)
		return
	}
	alert.Location = loc

	if err := e.alerts.UpdateLocation(alert.ID, loc); err != nil {
		logger.Error("Failed to persist refreshed location",
			zap.String("alert_id", alert.ID),
			zap.Error(err),
		)
	}
}

// fanOutLocked notifies every emergency contact of the user once: a call
// attempt and a text with the rendered message. The pass never blocks on
// delivery and an empty directory is a no-op, not an error. Contacts
// sharing a phone number are notified once per pass.
func (e *EscalationEngine) fanOutLocked(alert *models.Alert, headline string, now time.Time) {
	contacts, err := e.contacts.ListByUser(alert.UserID)
	if err != nil {
		logger.Error("Failed to read contact directory",
			zap.String("alert_id", alert.ID),
			zap.Error(err),
		)
		return
	}
	if len(contacts) == 0 {
		logger.Warn("Fan-out skipped - no emergency contacts",
			zap.String("alert_id", alert.ID),
			zap.String("user_id", alert.UserID),
		)
		return
	}

	message := RenderMessage(headline, alert.Location, now)

	seen := make(map[string]bool, len(contacts))
	for _, contact := range contacts {
		if contact.Phone == "" || seen[contact.Phone] {
			continue
		}
		seen[contact.Phone] = true

		callOutcome := models.OutcomeAttempted
		if err := e.channel.Call(contact); err != nil {
			callOutcome = models.OutcomeFailed
			logger.Warn("Call dispatch rejected",
				zap.String("alert_id", alert.ID),
				zap.String("contact_id", contact.ID),
				zap.Error(err),
			)
		}
		e.appendLogEntry(alert.ID, contact.ID, models.ChannelCall, nil, callOutcome, now)

		smsOutcome := models.OutcomeAttempted
		if err := e.channel.SendText(contact, message); err != nil {
			smsOutcome = models.OutcomeFailed
			logger.Warn("SMS dispatch rejected",
				zap.String("alert_id", alert.ID),
				zap.String("contact_id", contact.ID),
				zap.Error(err),
			)
		}
		msg := message
		e.appendLogEntry(alert.ID, contact.ID, models.ChannelSMS, &msg, smsOutcome, now)
	}
}

func (e *EscalationEngine) appendLogEntry(alertID, contactID string, channel models.NotificationChannelKind, message *string, outcome models.NotificationOutcome, now time.Time) {
	entry := &models.NotificationLogEntry{
		AlertID:   alertID,
		ContactID: contactID,
		Channel:   channel,
		Message:   message,
		Outcome:   outcome,
		Timestamp: now.Unix(),
	}
	if err := e.auditLog.Append(entry); err != nil {
		logger.Warn("Failed to append notification log entry",
			zap.String("alert_id", alertID),
			zap.Error(err),
		)
	}
}

// emit delivers an alert snapshot to all status listeners outside the lock
func (e *EscalationEngine) emit(alert models.Alert) {
	e.mu.Lock()
	listeners := make([]func(models.Alert), len(e.listeners))
	copy(listeners, e.listeners)
	e.mu.Unlock()

	for _, fn := range listeners {
		fn(alert)
	}
}

// RenderMessage renders the emergency message body:
//
//	<headline>
//	Location: <address or coordinates or "Unknown location">
//	Coordinates: <lat>, <lon>
//	Time: <formatted timestamp>
func RenderMessage(headline string, loc *models.Location, at time.Time) string {
	address := "Unknown location"
	lat, lon := "0", "0"
	if loc != nil {
		lat = strconv.FormatFloat(loc.Latitude, 'f', -1, 64)
		lon = strconv.FormatFloat(loc.Longitude, 'f', -1, 64)
		if loc.Address != "" {
			address = loc.Address
		} else {
			address = lat + ", " + lon
		}
	}
	return fmt.Sprintf("%s\nLocation: %s\nCoordinates: %s, %s\nTime: %s",
		headline, address, lat, lon, at.Format(messageTimeLayout))
}

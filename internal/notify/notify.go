package notify

import (
	"defendo-server/internal/models"
)

// Channel performs the actual call and text dispatch for a contact. Both
// operations are fire-and-forget: an error return means the dispatch was
// rejected up front (bad phone, misconfiguration), never that delivery
// failed downstream.
type Channel interface {
	Call(contact *models.EmergencyContact) error
	SendText(contact *models.EmergencyContact, message string) error
}
